package integrations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/circletel/circletel/internal/events"
	"github.com/circletel/circletel/internal/metrics"
	"github.com/circletel/circletel/internal/notify"
	"github.com/circletel/circletel/internal/store"
)

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusDown     = "down"
	StatusUnknown  = "unknown"
)

const maxConcurrentProbes = 4

// Pinger checks an integration through its own API client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Alerter delivers an operator alert.
type Alerter interface {
	Configured() bool
	Send(ctx context.Context, a notify.MonitorAlert) error
}

// CheckResult is the probe outcome for one integration.
type CheckResult struct {
	Slug                string `json:"slug"`
	Name                string `json:"name"`
	Status              string `json:"status"`
	PreviousStatus      string `json:"previous_status"`
	ResponseTimeMs      int64  `json:"response_time_ms"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	HasActiveAlert      bool   `json:"has_active_alert"`
	Error               string `json:"error,omitempty"`
}

// Summary is the outcome of one health-check run.
type Summary struct {
	Status       string        `json:"status"`
	Total        int           `json:"total"`
	Healthy      int           `json:"healthy"`
	Degraded     int           `json:"degraded"`
	Down         int           `json:"down"`
	Unknown      int           `json:"unknown"`
	Integrations []CheckResult `json:"integrations"`
	AlertSent    bool          `json:"alert_sent"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// CheckerOptions configures a Checker.
type CheckerOptions struct {
	Store         store.Store
	HTTPClient    *http.Client
	Pingers       map[string]Pinger
	Timeout       time.Duration
	SlowThreshold time.Duration
	AlertAfter    int
	Alerter       Alerter
	Events        events.Publisher
	Logger        *slog.Logger
}

// Checker probes the integrations in the registry and records their health.
type Checker struct {
	store      store.Store
	http       *http.Client
	pingers    map[string]Pinger
	timeout    time.Duration
	slow       time.Duration
	alertAfter int
	alerter    Alerter
	events     events.Publisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewChecker creates a health checker.
func NewChecker(opts CheckerOptions) *Checker {
	c := &Checker{
		store:      opts.Store,
		http:       opts.HTTPClient,
		pingers:    opts.Pingers,
		timeout:    opts.Timeout,
		slow:       opts.SlowThreshold,
		alertAfter: opts.AlertAfter,
		alerter:    opts.Alerter,
		events:     opts.Events,
		logger:     opts.Logger.With("component", "integrations"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.slow <= 0 {
		c.slow = 3 * time.Second
	}
	if c.alertAfter <= 0 {
		c.alertAfter = 3
	}
	if c.events == nil {
		c.events = events.Nop{}
	}
	return c
}

// Check probes every enabled integration that has health checking switched
// on, writes the results back to the registry and alerts on integrations
// that have just gone down.
func (c *Checker) Check(ctx context.Context) (*Summary, error) {
	all, err := c.store.ListIntegrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}

	var targets []store.Integration
	for _, i := range all {
		if i.IsEnabled && i.HealthCheckEnabled {
			targets = append(targets, i)
		}
	}

	probes := make([]probeOutcome, len(targets))
	sem := make(chan struct{}, maxConcurrentProbes)
	var wg sync.WaitGroup
	for idx, in := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			probes[idx].status, probes[idx].elapsed, probes[idx].err = c.probe(ctx, in)
		}()
	}
	wg.Wait()

	results := make([]CheckResult, len(targets))
	for idx, in := range targets {
		results[idx] = c.record(ctx, in, probes[idx])
	}

	sum := &Summary{Total: len(results), Integrations: results, CheckedAt: c.now()}
	var newlyDown []CheckResult
	for _, r := range results {
		switch r.Status {
		case StatusHealthy:
			sum.Healthy++
		case StatusDegraded:
			sum.Degraded++
		case StatusDown:
			sum.Down++
			if r.PreviousStatus != StatusDown {
				newlyDown = append(newlyDown, r)
			}
		default:
			sum.Unknown++
		}
	}
	switch {
	case sum.Down > 0:
		sum.Status = StatusDown
	case sum.Degraded > 0:
		sum.Status = StatusDegraded
	default:
		sum.Status = StatusHealthy
	}
	sort.Slice(sum.Integrations, func(i, j int) bool { return sum.Integrations[i].Slug < sum.Integrations[j].Slug })

	if len(newlyDown) > 0 {
		sum.AlertSent = c.alert(ctx, newlyDown)
	}
	return sum, nil
}

type probeOutcome struct {
	status  string
	elapsed time.Duration
	err     error
}

// record writes a probe outcome back to the registry.
func (c *Checker) record(ctx context.Context, in store.Integration, p probeOutcome) CheckResult {
	r := CheckResult{Slug: in.Slug, Name: in.Name, PreviousStatus: in.HealthStatus}
	status, elapsed := p.status, p.elapsed
	r.Status = status
	r.ResponseTimeMs = elapsed.Milliseconds()
	if p.err != nil {
		r.Error = p.err.Error()
	}
	if status == StatusUnknown {
		return r
	}

	r.ConsecutiveFailures = 0
	if status == StatusDown {
		r.ConsecutiveFailures = in.ConsecutiveFailures + 1
	}
	r.HasActiveAlert = r.ConsecutiveFailures >= c.alertAfter

	metrics.RecordIntegrationHealth(in.Slug, status, elapsed)
	err := c.store.RecordIntegrationHealth(ctx, store.IntegrationHealth{
		Slug:                in.Slug,
		Status:              status,
		CheckedAt:           c.now(),
		ResponseTimeMs:      r.ResponseTimeMs,
		ConsecutiveFailures: r.ConsecutiveFailures,
		HasActiveAlert:      r.HasActiveAlert,
		LastError:           r.Error,
	})
	if err != nil {
		c.logger.Warn("record integration health failed", "slug", in.Slug, "error", err)
	}
	if status != in.HealthStatus {
		c.logger.Info("integration status changed", "slug", in.Slug, "from", in.HealthStatus, "to", status)
		c.events.Publish(events.IntegrationStatus, r)
	}
	return r
}

func (c *Checker) probe(ctx context.Context, in store.Integration) (string, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	if p, ok := c.pingers[in.Slug]; ok {
		err := p.Ping(ctx)
		elapsed := time.Since(start)
		if err != nil {
			return StatusDown, elapsed, err
		}
		return c.bySpeed(elapsed), elapsed, nil
	}
	if in.HealthCheckURL == "" {
		return StatusUnknown, 0, errors.New("no health check configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.HealthCheckURL, nil)
	if err != nil {
		return StatusDown, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "CircleTel-HealthCheck/1.0")
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return StatusDown, elapsed, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return StatusDown, elapsed, fmt.Errorf("HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return StatusDegraded, elapsed, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return c.bySpeed(elapsed), elapsed, nil
}

func (c *Checker) bySpeed(elapsed time.Duration) string {
	if elapsed > c.slow {
		return StatusDegraded
	}
	return StatusHealthy
}

func (c *Checker) alert(ctx context.Context, down []CheckResult) bool {
	for _, r := range down {
		c.logger.Error("integration down", "slug", r.Slug, "error", r.Error)
	}
	if c.alerter == nil || !c.alerter.Configured() {
		return false
	}
	a := notify.MonitorAlert{Monitor: "Integration Health", Status: StatusDown}
	for _, r := range down {
		a.Checks = append(a.Checks, notify.AlertCheck{
			Name:      r.Name,
			Value:     StatusDown,
			Threshold: StatusHealthy,
			Message:   r.Error,
		})
	}
	if err := c.alerter.Send(ctx, a); err != nil {
		c.logger.Warn("send integration alert failed", "error", err)
		return false
	}
	return true
}
