// Package app ties the CircleTel API components together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/circletel/circletel/internal/api"
	"github.com/circletel/circletel/internal/auth"
	"github.com/circletel/circletel/internal/billing"
	"github.com/circletel/circletel/internal/blob"
	"github.com/circletel/circletel/internal/config"
	"github.com/circletel/circletel/internal/didit"
	"github.com/circletel/circletel/internal/emandate"
	"github.com/circletel/circletel/internal/events"
	"github.com/circletel/circletel/internal/integrations"
	"github.com/circletel/circletel/internal/jobs"
	"github.com/circletel/circletel/internal/netcash"
	"github.com/circletel/circletel/internal/notify"
	"github.com/circletel/circletel/internal/ratelimit"
	"github.com/circletel/circletel/internal/store"
	"github.com/circletel/circletel/internal/zoho"
)

// App is the CircleTel API process.
type App struct {
	cfg       *config.Config
	store     store.Store
	runner    *jobs.Runner
	scheduler *jobs.Scheduler
	api       *api.Server
	redis     *ratelimit.RedisWindow
	logger    *slog.Logger
}

// New builds every component from configuration. The returned App owns the
// store and must be run or closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := store.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	a, err := build(ctx, cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, db store.Store, logger *slog.Logger) (*App, error) {
	authProvider, err := auth.NewProvider(ctx, cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("init auth provider: %w", err)
	}

	hc := &http.Client{Timeout: 60 * time.Second}
	bus := events.NewBus()

	mailer := notify.NewEmailClient(cfg.Email, cfg.Server.BaseURL, hc)
	sms := notify.NewSMSClient(cfg.SMS, hc)
	alerter := notify.NewAlertClient(cfg.Alerts.WebhookURL, hc)
	zohoClient := zoho.New(cfg.Zoho, hc, logger)
	batches := netcash.NewBatchService(cfg.NetCash, hc)
	mandates := netcash.NewMandateService(batches, cfg.NetCash.SoftwareVendorKey)

	processor := billing.NewProcessor(billing.ProcessorOptions{
		Store:      db,
		Mailer:     mailer,
		Zoho:       zohoClient,
		Events:     bus,
		Logger:     logger,
		MaxRetries: cfg.Webhooks.MaxRetries,
	})

	checker := integrations.NewChecker(integrations.CheckerOptions{
		Store:         db,
		HTTPClient:    &http.Client{Timeout: cfg.Integrations.ProbeTimeout.Duration},
		Pingers:       map[string]integrations.Pinger{"zoho-billing": zohoClient},
		Timeout:       cfg.Integrations.ProbeTimeout.Duration,
		SlowThreshold: cfg.Integrations.SlowThreshold.Duration,
		AlertAfter:    cfg.Integrations.AlertAfter,
		Alerter:       alerter,
		Events:        bus,
		Logger:        logger,
	})

	loc := jobs.DefaultLocation()
	if cfg.Scheduler.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Scheduler.Timezone); err == nil {
			loc = l
		} else {
			logger.Warn("unknown scheduler timezone, using SAST", "timezone", cfg.Scheduler.Timezone, "error", err)
		}
	}
	runner := jobs.NewRunner(db, logger)
	jobs.New(jobs.Options{
		Store:    db,
		Batches:  batches,
		Mailer:   mailer,
		SMS:      sms,
		Alerter:  alerter,
		Health:   checker,
		Monitor:  cfg.Monitor,
		PayNow:   cfg.NetCash,
		Location: loc,
		Logger:   logger,
	}).Register(runner)

	signer := blob.NewSigner(cfg.Blob.SigningSecret, cfg.Blob.PublicURL)
	blobs, err := blob.Open(ctx, cfg.Blob, signer)
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	a := &App{
		cfg:    cfg,
		store:  db,
		runner: runner,
		logger: logger.With("component", "app"),
	}

	var webhookRL ratelimit.WindowLimiter
	if cfg.RateLimit.RedisAddr != "" {
		a.redis = ratelimit.NewRedisWindow(cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword,
			cfg.RateLimit.WebhookLimit, cfg.RateLimit.WebhookWindow.Duration)
		if err := a.redis.Ping(ctx); err != nil {
			a.logger.Warn("redis unreachable, webhook limits fail open until it recovers", "addr", cfg.RateLimit.RedisAddr, "error", err)
		}
		webhookRL = a.redis
	}

	if cfg.Scheduler.Enabled {
		sched, err := jobs.NewScheduler(runner, cfg.Scheduler, logger)
		if err != nil {
			return nil, fmt.Errorf("init scheduler: %w", err)
		}
		a.scheduler = sched
	}

	a.api = api.NewServer(api.Options{
		Config:    cfg,
		Store:     db,
		Auth:      authProvider,
		Processor: processor,
		KYC: didit.NewHandler(didit.Options{
			Store:  db,
			Secret: cfg.Didit.WebhookSecret,
			Events: bus,
			Logger: logger,
		}),
		Runner:         runner,
		Health:         checker,
		Mandates:       emandate.NewService(db, mandates, logger),
		Blobs:          blobs,
		Signer:         signer,
		Bus:            bus,
		WebhookLimiter: webhookRL,
		Logger:         logger,
	})

	a.warnInsecure(authProvider, batches, mailer, zohoClient)
	return a, nil
}

// warnInsecure logs configuration that works but should not reach production.
func (a *App) warnInsecure(p auth.Provider, batches *netcash.BatchService, mailer *notify.EmailClient, z *zoho.Client) {
	cfg := a.cfg
	if p.Name() == "supabase" && len(cfg.Auth.SupabaseJWTSecret) < 32 {
		a.logger.Warn("JWT secret is shorter than 32 characters, use a stronger secret in production")
	}
	if cfg.Auth.CronSecret == "" && cfg.Auth.CronSecretHash == "" {
		a.logger.Warn("no cron secret configured, cron endpoints accept unauthenticated calls")
	}
	if cfg.NetCash.WebhookSecret == "" {
		a.logger.Warn("netcash webhook secret not configured, payment webhooks will be rejected")
	}
	for _, origin := range cfg.Server.AllowedOrigins {
		if origin == "*" {
			a.logger.Warn("CORS allowed_origins contains wildcard '*', restrict to specific origins in production")
			break
		}
	}
	if !batches.Configured() {
		a.logger.Warn("netcash debit order service key not configured, batch jobs will fail")
	}
	if !mailer.Configured() {
		a.logger.Info("resend api key not configured, emails are skipped")
	}
	if !z.Configured() {
		a.logger.Info("zoho billing not configured, payment sync is skipped")
	}
}

// RunJob runs one registered job and returns its result.
func (a *App) RunJob(ctx context.Context, name, date string) (any, error) {
	return a.runner.Run(ctx, name, jobs.Params{Date: date, TriggeredBy: jobs.TriggerCLI})
}

// Jobs lists the registered job names.
func (a *App) Jobs() []string { return a.runner.Names() }

// SeedRegistry applies the integration registry seed: the configured YAML
// file if any, otherwise the built-in list.
func (a *App) SeedRegistry(ctx context.Context) error {
	seed := &integrations.DefaultSeed
	if path := a.cfg.Integrations.RegistryFile; path != "" {
		s, err := integrations.LoadSeed(path)
		if err != nil {
			return err
		}
		seed = s
	}
	n, err := integrations.Apply(ctx, a.store, seed)
	if err != nil {
		return fmt.Errorf("seed integration registry: %w", err)
	}
	a.logger.Info("integration registry seeded", "integrations", n)
	return nil
}

// Close releases the store and any shared clients.
func (a *App) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return a.store.Close()
}

// Run serves HTTP and runs background tasks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := a.SeedRegistry(ctx); err != nil {
		a.logger.Warn("integration registry seed failed", "error", err)
	}

	a.api.StartBackgroundTasks(ctx)

	schedDone := make(chan struct{})
	if a.scheduler != nil {
		go func() {
			defer close(schedDone)
			a.scheduler.Run(ctx)
		}()
		a.logger.Info("scheduler started", "jobs", a.scheduler.Entries())
	} else {
		close(schedDone)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("circletel api listening", "addr", a.cfg.Server.Addr, "environment", a.cfg.Environment)
		if a.cfg.Server.TLSCert != "" && a.cfg.Server.TLSKey != "" {
			errCh <- srv.ListenAndServeTLS(a.cfg.Server.TLSCert, a.cfg.Server.TLSKey)
		} else {
			a.logger.Warn("TLS not configured, running without encryption (development only)")
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			_ = srv.Close()
		} else {
			a.logger.Info("http server stopped gracefully")
		}

		select {
		case <-schedDone:
		case <-shutdownCtx.Done():
			a.logger.Warn("scheduled jobs still running at shutdown")
		}

		a.logger.Info("closing store")
		_ = a.Close()
		a.logger.Info("shutdown complete")
		return ctx.Err()

	case err := <-errCh:
		_ = a.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
