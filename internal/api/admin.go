package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/circletel/circletel/internal/billing"
	"github.com/circletel/circletel/internal/integrations"
	"github.com/circletel/circletel/internal/store"
)

// --- Invoices ---

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)
	invoices, err := s.store.ListInvoices(r.Context(), store.InvoiceFilter{
		CustomerID: r.URL.Query().Get("customer_id"),
		Status:     r.URL.Query().Get("status"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.logger.Error("failed to list invoices", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list invoices")
		return
	}
	if invoices == nil {
		invoices = []store.Invoice{}
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req billing.NewInvoice
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	if req.CustomerID != "" {
		c, err := s.store.GetCustomer(r.Context(), req.CustomerID)
		if err != nil {
			writeAppError(w, s.logger, "failed to load customer", err)
			return
		}
		if c == nil {
			writeError(w, http.StatusNotFound, "customer not found")
			return
		}
	}
	inv, err := billing.CreateInvoice(r.Context(), s.store, req, s.now())
	if err != nil {
		writeAppError(w, s.logger, "failed to create invoice", err)
		return
	}
	s.logger.Info("invoice created", "invoice_number", inv.InvoiceNumber, "customer_id", inv.CustomerID,
		"by", getIdentityFromContext(r.Context()).UserID)
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.store.GetInvoice(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		s.logger.Error("failed to get invoice", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get invoice")
		return
	}
	if inv == nil {
		writeError(w, http.StatusNotFound, "invoice not found")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// --- Cron logs ---

func (s *Server) handleListCronLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := pagination(r, 50)
	execs, err := s.store.ListCronExecutions(r.Context(), store.CronFilter{
		JobName: r.URL.Query().Get("job"),
		Status:  r.URL.Query().Get("status"),
		Limit:   limit,
	})
	if err != nil {
		s.logger.Error("failed to list cron executions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list cron logs")
		return
	}
	if execs == nil {
		execs = []store.CronExecution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

// --- Webhooks ---

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	limit, _ := pagination(r, 50)
	logs, err := s.store.ListWebhookLogs(r.Context(), store.WebhookFilter{
		Provider: r.URL.Query().Get("provider"),
		Status:   r.URL.Query().Get("status"),
		Limit:    limit,
	})
	if err != nil {
		s.logger.Error("failed to list webhook logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}
	if logs == nil {
		logs = []store.WebhookLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// handleWebhookStats summarises the last ?hours= hours (default 24).
func (s *Server) handleWebhookStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 24*90 {
			hours = n
		}
	}
	since := s.now().Add(-time.Duration(hours) * time.Hour)
	stats, err := s.store.WebhookStats(r.Context(), since)
	if err != nil {
		s.logger.Error("failed to compute webhook stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute webhook stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since": since.UTC(),
		"hours": hours,
		"stats": stats,
	})
}

func (s *Server) handleWebhookAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "webhookID")
	l, err := s.store.GetWebhookLog(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get webhook log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get webhook")
		return
	}
	if l == nil {
		writeError(w, http.StatusNotFound, "webhook not found")
		return
	}
	audit, err := s.store.ListWebhookAudit(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list webhook audit", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list webhook audit")
		return
	}
	if audit == nil {
		audit = []store.WebhookAudit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"webhook": l,
		"audit":   audit,
	})
}

func (s *Server) handleReplayWebhook(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "webhook processor not configured")
		return
	}
	id := chi.URLParam(r, "webhookID")
	res, err := s.processor.Replay(r.Context(), id)
	if err != nil {
		writeAppError(w, s.logger, "webhook replay failed", err)
		return
	}
	s.logger.Info("webhook replayed", "webhook_log_id", id, "status", res.Status,
		"by", getIdentityFromContext(r.Context()).UserID)
	resp := map[string]any{
		"success": res.Status != billing.StatusFailed,
		"result":  res,
	}
	if res.Err != nil {
		resp["error"] = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Integrations ---

// handleIntegrationsHealth reports the stored registry status, or probes
// every integration first when ?refresh=true.
func (s *Server) handleIntegrationsHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if s.health == nil {
			writeError(w, http.StatusServiceUnavailable, "integration health checks not configured")
			return
		}
		sum, err := s.health.Check(r.Context())
		if err != nil {
			s.logger.Error("integration health check failed", "error", err)
			writeError(w, http.StatusInternalServerError, "integration health check failed")
			return
		}
		writeJSON(w, http.StatusOK, sum)
		return
	}

	list, err := s.store.ListIntegrations(r.Context())
	if err != nil {
		s.logger.Error("failed to list integrations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list integrations")
		return
	}
	if list == nil {
		list = []store.Integration{}
	}
	counts := map[string]int{
		integrations.StatusHealthy:  0,
		integrations.StatusDegraded: 0,
		integrations.StatusDown:     0,
		integrations.StatusUnknown:  0,
	}
	alerts := 0
	for _, in := range list {
		st := in.HealthStatus
		if _, ok := counts[st]; !ok {
			st = integrations.StatusUnknown
		}
		counts[st]++
		if in.HasActiveAlert {
			alerts++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":         len(list),
		"healthy":       counts[integrations.StatusHealthy],
		"degraded":      counts[integrations.StatusDegraded],
		"down":          counts[integrations.StatusDown],
		"unknown":       counts[integrations.StatusUnknown],
		"active_alerts": alerts,
		"integrations":  list,
	})
}

func (s *Server) handleIntegrationHealth(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	in, err := s.store.GetIntegration(r.Context(), slug)
	if err != nil {
		s.logger.Error("failed to get integration", "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get integration")
		return
	}
	if in == nil {
		writeError(w, http.StatusNotFound, "integration not found")
		return
	}
	hooks, err := s.store.ListIntegrationWebhooks(r.Context(), slug, 20)
	if err != nil {
		s.logger.Warn("failed to list integration webhooks", "slug", slug, "error", err)
	}
	if hooks == nil {
		hooks = []store.IntegrationWebhookLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"integration":     in,
		"recent_webhooks": hooks,
	})
}
