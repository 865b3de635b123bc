// Package api provides the HTTP API and middleware for the CircleTel backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/circletel/circletel/internal/auth"
	"github.com/circletel/circletel/internal/billing"
	"github.com/circletel/circletel/internal/blob"
	"github.com/circletel/circletel/internal/cms"
	"github.com/circletel/circletel/internal/config"
	"github.com/circletel/circletel/internal/didit"
	"github.com/circletel/circletel/internal/emandate"
	"github.com/circletel/circletel/internal/events"
	"github.com/circletel/circletel/internal/integrations"
	"github.com/circletel/circletel/internal/jobs"
	"github.com/circletel/circletel/internal/metrics"
	"github.com/circletel/circletel/internal/ratelimit"
	"github.com/circletel/circletel/internal/store"
)

// HealthChecker runs an integration health sweep.
type HealthChecker interface {
	Check(ctx context.Context) (*integrations.Summary, error)
}

// Options are the dependencies of a Server. Bus, KYC, Blobs and Signer are optional;
// the routes that need them answer 503 when they are missing.
type Options struct {
	Config         *config.Config
	Store          store.Store
	Auth           auth.Provider
	Cron           *auth.CronAuthenticator
	Processor      *billing.Processor
	KYC            *didit.Handler
	Runner         *jobs.Runner
	Health         HealthChecker
	Mandates       *emandate.Service
	Blobs          blob.Store
	Signer         *blob.Signer
	Bus            *events.Bus
	WebhookLimiter ratelimit.WindowLimiter
	Logger         *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	store          store.Store
	authProvider   auth.Provider
	cron           *auth.CronAuthenticator
	processor      *billing.Processor
	kyc            *didit.Handler
	runner         *jobs.Runner
	health         HealthChecker
	mandates       *emandate.Service
	pages          *cms.Service
	blobs          blob.Store
	signer         *blob.Signer
	logger         *slog.Logger
	mux            *chi.Mux
	startTime      time.Time
	environment    string
	production     bool
	webhookSecret  string
	maxBodyBytes   int64
	maxUploadBytes int64
	presignTTL     time.Duration
	rl             *ratelimit.TokenLimiter
	webhookRL      ratelimit.WindowLimiter
	trustedProxies []netip.Prefix
	now            func() time.Time
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	cfg := opts.Config
	cron := opts.Cron
	if cron == nil {
		cron = auth.NewCronAuthenticator(cfg.Auth.CronSecret, cfg.Auth.CronSecretHash)
	}
	webhookRL := opts.WebhookLimiter
	if webhookRL == nil {
		limit, window := cfg.RateLimit.WebhookLimit, cfg.RateLimit.WebhookWindow.Duration
		if limit <= 0 {
			limit = 100
		}
		if window <= 0 {
			window = time.Minute
		}
		webhookRL = ratelimit.NewMemoryWindow(limit, window)
	}
	srv := &Server{
		store:          opts.Store,
		authProvider:   opts.Auth,
		cron:           cron,
		processor:      opts.Processor,
		kyc:            opts.KYC,
		runner:         opts.Runner,
		health:         opts.Health,
		mandates:       opts.Mandates,
		pages:          cms.NewService(opts.Store),
		blobs:          opts.Blobs,
		signer:         opts.Signer,
		logger:         opts.Logger.With("component", "api"),
		startTime:      time.Now(),
		environment:    cfg.Environment,
		production:     cfg.Production(),
		webhookSecret:  cfg.NetCash.WebhookSecret,
		maxBodyBytes:   cfg.Server.MaxBodyBytes,
		maxUploadBytes: cfg.Server.MaxUploadBytes,
		presignTTL:     cfg.Blob.PresignTTL.Duration,
		rl:             ratelimit.NewTokenLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		webhookRL:      webhookRL,
		now:            time.Now,
	}
	if srv.presignTTL == 0 {
		srv.presignTTL = 15 * time.Minute
	}
	proxies, err := cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		srv.logger.Warn("ignoring trusted proxies", "error", err)
	}
	srv.trustedProxies = proxies

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(metrics.Instrument)
	mux.Use(securityHeadersMiddleware)
	mux.Use(makeCORSMiddleware(cfg.Server.AllowedOrigins))

	mux.Get("/healthz", srv.handleHealthz)
	mux.Get("/readyz", srv.handleReadyz)
	mux.Handle("/metrics", metrics.Handler())

	// Provider callbacks authenticate by signature, not session.
	mux.With(srv.webhookRateLimitMiddleware).Post("/api/payment/netcash/webhook", srv.handleNetcashWebhook)
	mux.Get("/api/payment/netcash/webhook", srv.handleNetcashWebhookHealth)
	mux.Post("/api/webhooks/didit", srv.handleDiditWebhook)

	// Signed download links carry their own credentials.
	mux.Get("/api/files", srv.handleDownloadFile)

	mux.Get("/api/pages/{slug}", srv.handleGetPublishedPage)

	// The feed authenticates on the handshake (?token= for browsers).
	if opts.Bus != nil {
		mux.Handle("/api/admin/events/ws", events.NewFeed(opts.Bus, opts.Auth, cfg.Server.AllowedOrigins, opts.Logger))
	}

	mux.Group(func(r chi.Router) {
		r.Use(srv.cronOrAdminMiddleware)
		r.Get("/api/cron/submit-cc-debit-orders", srv.handleRunJob(jobs.CCDebitOrders))
		r.Post("/api/cron/submit-cc-debit-orders", srv.handleRunJob(jobs.CCDebitOrders))
		r.Get("/api/cron/submit-debit-orders", srv.handleRunJob(jobs.DebitOrders))
		r.Post("/api/cron/submit-debit-orders", srv.handleRunJob(jobs.DebitOrders))
		r.Get("/api/cron/payment-sync-monitor", srv.handleRunJob(jobs.PaymentSyncMonitor))
		r.Get("/api/cron/integrations-health-check", srv.handleRunJob(jobs.IntegrationsHealth))
	})

	mux.Group(func(r chi.Router) {
		r.Use(srv.authMiddleware)
		r.Use(rateLimitMiddleware(srv.rl))

		r.Get("/api/me", srv.handleGetMe)
		r.Post("/api/payment/emandate/initiate", srv.handleInitiateEmandate)
		r.Get("/api/kyc/documents", srv.handleListKYCDocuments)
		r.Post("/api/kyc/documents", srv.handleUploadKYCDocument)
		r.Get("/api/kyc/documents/{documentID}/url", srv.handleKYCDocumentURL)

		r.Group(func(r chi.Router) {
			r.Use(srv.adminMiddleware)

			r.Get("/api/admin/invoices", srv.handleListInvoices)
			r.Post("/api/admin/invoices", srv.handleCreateInvoice)
			r.Get("/api/admin/invoices/{invoiceID}", srv.handleGetInvoice)

			r.Get("/api/admin/cron-logs", srv.handleListCronLogs)

			r.Get("/api/admin/emandates/{requestID}/report", srv.handleEmandateReport)

			r.Get("/api/admin/webhooks", srv.handleListWebhooks)
			r.Get("/api/admin/webhooks/stats", srv.handleWebhookStats)
			r.Get("/api/admin/webhooks/{webhookID}/audit", srv.handleWebhookAudit)
			r.Post("/api/admin/webhooks/{webhookID}/replay", srv.handleReplayWebhook)

			r.Get("/api/admin/integrations/health", srv.handleIntegrationsHealth)
			r.Get("/api/admin/integrations/health/{slug}", srv.handleIntegrationHealth)

			r.Get("/api/admin/quotes", srv.handleListQuotes)
			r.Post("/api/admin/quotes", srv.handleCreateQuote)
			r.Get("/api/admin/quotes/{quoteID}", srv.handleGetQuote)
			r.Post("/api/admin/quotes/{quoteID}/status", srv.handleQuoteStatus)

			r.Get("/api/admin/base-stations", srv.handleListBaseStations)
			r.Post("/api/admin/base-stations/sync", srv.handleSyncBaseStations)
			r.Get("/api/admin/base-stations/nearest", srv.handleNearestBaseStations)

			r.Get("/api/admin/cms/pages", srv.handleListPages)
			r.Post("/api/admin/cms/pages", srv.handleCreatePage)
			r.Get("/api/admin/cms/pages/{pageID}", srv.handleGetPage)
			r.Put("/api/admin/cms/pages/{pageID}", srv.handleUpdatePage)
			r.Post("/api/admin/cms/pages/{pageID}/status", srv.handlePageStatus)

			r.Get("/api/admin/customers/{customerID}/kyc-documents", srv.handleAdminListKYCDocuments)
		})
	})

	srv.mux = mux
	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// StartBackgroundTasks starts periodic cleanup of the rate limiters.
func (s *Server) StartBackgroundTasks(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.rl.Cleanup(10 * time.Minute); n > 0 {
					s.logger.Debug("rate limiter cleanup", "removed", n)
				}
				if mw, ok := s.webhookRL.(*ratelimit.MemoryWindow); ok {
					mw.Cleanup()
				}
			}
		}
	}()
}

// --- Health handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- User handlers ---

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())
	resp := map[string]any{
		"user_id": identity.UserID,
		"email":   identity.Email,
		"role":    identity.Role,
	}
	c, err := s.store.GetCustomerByAuthUser(r.Context(), identity.UserID)
	if err != nil {
		s.logger.Warn("failed to load customer for user", "user_id", identity.UserID, "error", err)
	}
	if c != nil {
		resp["customer"] = c
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// decodeBody reads a size-limited JSON body into v. An empty body leaves v
// untouched when allowEmpty is set.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid request body")
	return false
}

// pagination reads limit and offset query parameters, capping limit at 500.
func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
