// Package jobs runs the scheduled billing and monitoring jobs and records
// every execution in cron_execution_log.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/circletel/circletel/internal/metrics"
	"github.com/circletel/circletel/internal/store"
)

// Job names.
const (
	CCDebitOrders      = "submit-cc-debit-orders"
	DebitOrders        = "submit-debit-orders"
	PaymentSyncMonitor = "payment-sync-monitor"
	IntegrationsHealth = "integrations-health-check"
)

// Execution statuses.
const (
	StatusRunning             = "running"
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusFailed              = "failed"
)

// Triggers.
const (
	TriggerCron      = "cron"
	TriggerManual    = "manual"
	TriggerScheduler = "scheduler"
	TriggerCLI       = "cli"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrBusy       = errors.New("job already running")
)

// DateError reports an unparseable billing date.
type DateError struct {
	Value string
}

func (e *DateError) Error() string {
	return fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", e.Value)
}

// Params are the inputs to one job run.
type Params struct {
	Date        string // YYYY-MM-DD; empty means today
	TriggeredBy string
}

// Report is what a job hands back to the runner. Result is returned to the
// caller and stored as the execution details.
type Report struct {
	Status    string
	Processed int
	Failed    int
	Result    any
	Error     string
}

// Func is a job body. A returned error fails the execution; a Report with
// StatusFailed records a handled failure and is still returned to callers.
type Func func(ctx context.Context, p Params) (*Report, error)

// Runner executes registered jobs and logs each execution.
type Runner struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	jobs    map[string]Func
	running map[string]bool
}

// NewRunner creates an empty runner.
func NewRunner(s store.Store, logger *slog.Logger) *Runner {
	return &Runner{
		store:   s,
		logger:  logger.With("component", "jobs"),
		now:     time.Now,
		jobs:    make(map[string]Func),
		running: make(map[string]bool),
	}
}

// Register adds or replaces a job.
func (r *Runner) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[name] = fn
}

// Names lists the registered jobs in order.
func (r *Runner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes a job once. Overlapping runs of the same job are refused
// with ErrBusy.
func (r *Runner) Run(ctx context.Context, name string, p Params) (any, error) {
	r.mu.Lock()
	fn, ok := r.jobs[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if r.running[name] {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBusy, name)
	}
	r.running[name] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.running, name)
		r.mu.Unlock()
	}()

	if p.TriggeredBy == "" {
		p.TriggeredBy = TriggerManual
	}
	start := r.now()
	exec := &store.CronExecution{JobName: name, Status: StatusRunning, TriggeredBy: p.TriggeredBy, StartedAt: start}
	if err := r.store.CreateCronExecution(ctx, exec); err != nil {
		r.logger.Warn("record job start failed", "job", name, "error", err)
		exec = nil
	}

	r.logger.Info("job started", "job", name, "date", p.Date, "triggered_by", p.TriggeredBy)
	rep, err := fn(ctx, p)
	if rep == nil {
		rep = &Report{}
	}
	if err != nil {
		rep.Status = StatusFailed
		rep.Error = err.Error()
	}
	if rep.Status == "" {
		rep.Status = StatusCompleted
	}
	elapsed := r.now().Sub(start)
	metrics.RecordJob(name, rep.Status, elapsed)

	if exec != nil {
		r.complete(ctx, exec, rep, elapsed)
	}

	log := r.logger.With("job", name, "status", rep.Status, "duration_ms", elapsed.Milliseconds(),
		"processed", rep.Processed, "failed", rep.Failed)
	switch rep.Status {
	case StatusFailed:
		log.Error("job failed", "error", rep.Error)
	case StatusCompletedWithErrors:
		log.Warn("job completed with errors")
	default:
		log.Info("job completed")
	}
	return rep.Result, err
}

func (r *Runner) complete(ctx context.Context, exec *store.CronExecution, rep *Report, elapsed time.Duration) {
	done := r.now().UTC()
	exec.Status = rep.Status
	exec.CompletedAt = &done
	exec.ExecutionTimeMs = elapsed.Milliseconds()
	exec.RecordsProcessed = rep.Processed
	exec.RecordsFailed = rep.Failed
	exec.ErrorMessage = rep.Error
	if rep.Result != nil {
		if b, err := json.Marshal(rep.Result); err == nil {
			exec.Details = b
		}
	}
	// The request context may already be cancelled; the log row is still wanted.
	if err := r.store.CompleteCronExecution(context.WithoutCancel(ctx), exec); err != nil {
		r.logger.Warn("record job completion failed", "job", exec.JobName, "error", err)
	}
}

// statusFor derives the execution status from collected errors.
func statusFor(errs []string) string {
	if len(errs) > 0 {
		return StatusCompletedWithErrors
	}
	return StatusCompleted
}

// billingDate resolves the date a billing job runs for. An empty value
// means today in loc.
func billingDate(value string, now time.Time, loc *time.Location) (time.Time, error) {
	if value == "" {
		t := now.In(loc)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, value, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.In(loc)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
	}
	return time.Time{}, &DateError{Value: value}
}

// addMonth moves t one calendar month forward, clamping to the last day of
// the target month.
func addMonth(t time.Time) time.Time {
	first := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	day := min(t.Day(), last)
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, t.Location())
}
