package api

import (
	"errors"
	"net/http"

	"github.com/circletel/circletel/internal/jobs"
)

// handleRunJob runs a registered job once and returns its result. POST
// bodies and the ?date= query may pick the billing date.
func (s *Server) handleRunJob(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.runner == nil {
			writeError(w, http.StatusServiceUnavailable, "job runner not configured")
			return
		}
		var req struct {
			Date string `json:"date"`
		}
		if r.Method == http.MethodPost && r.ContentLength != 0 {
			if !s.decodeBody(w, r, &req, true) {
				return
			}
		}
		if req.Date == "" {
			req.Date = r.URL.Query().Get("date")
		}

		result, err := s.runner.Run(r.Context(), name, jobs.Params{
			Date:        req.Date,
			TriggeredBy: getTriggerFromContext(r.Context()),
		})
		if err != nil {
			var de *jobs.DateError
			switch {
			case errors.As(err, &de):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, jobs.ErrUnknownJob):
				writeError(w, http.StatusNotFound, "job not configured: "+name)
			case errors.Is(err, jobs.ErrBusy):
				writeError(w, http.StatusConflict, err.Error())
			default:
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Submission failed", Details: err.Error()})
			}
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
