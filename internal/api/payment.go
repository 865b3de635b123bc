package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/circletel/circletel/internal/emandate"
)

func (s *Server) handleInitiateEmandate(w http.ResponseWriter, r *http.Request) {
	if s.mandates == nil {
		writeError(w, http.StatusServiceUnavailable, "NetCash eMandate service not configured")
		return
	}
	var req emandate.Request
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	identity := getIdentityFromContext(r.Context())
	req.AuthUserID = identity.UserID
	// Only admins may start a mandate on behalf of another customer.
	if req.CustomerID != "" && !identity.IsAdmin() {
		c, err := s.store.GetCustomerByAuthUser(r.Context(), identity.UserID)
		if err != nil {
			writeAppError(w, s.logger, "failed to load customer", err)
			return
		}
		if c == nil || c.ID != req.CustomerID {
			writeError(w, http.StatusForbidden, "cannot initiate a mandate for another customer")
			return
		}
	}
	req.IPAddress = s.clientIP(r)
	req.UserAgent = r.UserAgent()

	resp, err := s.mandates.Initiate(r.Context(), req)
	if err != nil {
		writeAppError(w, s.logger, "emandate initiation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEmandateReport(w http.ResponseWriter, r *http.Request) {
	if s.mandates == nil {
		writeError(w, http.StatusServiceUnavailable, "NetCash eMandate service not configured")
		return
	}
	res, err := s.mandates.CheckLoadReport(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeAppError(w, s.logger, "emandate load report failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
