package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/circletel/circletel/internal/cms"
	"github.com/circletel/circletel/internal/coverage"
	"github.com/circletel/circletel/internal/quotes"
	"github.com/circletel/circletel/internal/store"
)

type statusRequest struct {
	Status string `json:"status"`
}

// --- Business quotes ---

func (s *Server) handleListQuotes(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListQuotes(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.logger.Error("failed to list quotes", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list quotes")
		return
	}
	if list == nil {
		list = []store.BusinessQuote{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	var req quotes.NewQuote
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	d, err := quotes.Create(r.Context(), s.store, req, getIdentityFromContext(r.Context()).UserID, s.now())
	if err != nil {
		writeAppError(w, s.logger, "failed to create quote", err)
		return
	}
	s.logger.Info("quote created", "quote_number", d.QuoteNumber, "company", d.CompanyName)
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	d, err := quotes.Get(r.Context(), s.store, chi.URLParam(r, "quoteID"))
	if err != nil {
		writeAppError(w, s.logger, "failed to get quote", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleQuoteStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	d, err := quotes.Transition(r.Context(), s.store, chi.URLParam(r, "quoteID"), req.Status, getIdentityFromContext(r.Context()).UserID)
	if err != nil {
		writeAppError(w, s.logger, "failed to update quote status", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// --- Base stations ---

func (s *Server) handleListBaseStations(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListBaseStations(r.Context())
	if err != nil {
		s.logger.Error("failed to list base stations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list base stations")
		return
	}
	if list == nil {
		list = []store.BaseStation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSyncBaseStations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stations []store.BaseStation `json:"stations"`
	}
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	if len(req.Stations) == 0 {
		writeError(w, http.StatusBadRequest, "stations must not be empty")
		return
	}
	res, err := coverage.Sync(r.Context(), s.store, req.Stations)
	if err != nil {
		writeAppError(w, s.logger, "base station sync failed", err)
		return
	}
	s.logger.Info("base stations synced", "received", res.Received, "upserted", res.Upserted, "skipped", res.Skipped)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleNearestBaseStations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	p := coverage.Point{Lat: lat, Lng: lng}
	if errLat != nil || errLng != nil || !p.Valid() {
		writeError(w, http.StatusBadRequest, "valid lat and lng are required")
		return
	}
	radius := coverage.DefaultRadiusKm
	if v := q.Get("radius_km"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			radius = f
		}
	}
	limit, _ := pagination(r, 10)

	list, err := coverage.Nearest(r.Context(), s.store, p, radius, limit)
	if err != nil {
		writeAppError(w, s.logger, "nearest base station lookup failed", err)
		return
	}
	if list == nil {
		list = []coverage.Nearby{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"point":     p,
		"radius_km": radius,
		"stations":  list,
	})
}

// --- CMS pages ---

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	list, err := s.pages.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeAppError(w, s.logger, "failed to list pages", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var req cms.PageInput
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	p, err := s.pages.Create(r.Context(), req, getIdentityFromContext(r.Context()).UserID)
	if err != nil {
		writeAppError(w, s.logger, "failed to create page", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.pages.Get(r.Context(), chi.URLParam(r, "pageID"))
	if err != nil {
		writeAppError(w, s.logger, "failed to get page", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	var req cms.PageInput
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	p, err := s.pages.Update(r.Context(), chi.URLParam(r, "pageID"), req)
	if err != nil {
		writeAppError(w, s.logger, "failed to update page", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePageStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	p, err := s.pages.Transition(r.Context(), chi.URLParam(r, "pageID"), req.Status)
	if err != nil {
		writeAppError(w, s.logger, "failed to update page status", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleGetPublishedPage serves a published page to the public site.
func (s *Server) handleGetPublishedPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.pages.Published(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeAppError(w, s.logger, "failed to get page", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
