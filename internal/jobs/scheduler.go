package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/circletel/circletel/internal/config"
)

// DefaultSchedule is the cron spec for each job in the service time zone.
var DefaultSchedule = map[string]string{
	CCDebitOrders:      "0 4 * * *",
	DebitOrders:        "0 4 * * *",
	PaymentSyncMonitor: "0 * * * *",
	IntegrationsHealth: "*/15 * * * *",
}

// Scheduler triggers registered jobs on their cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	logger *slog.Logger
}

// NewScheduler builds a scheduler for every job registered with r. Specs in
// cfg.Jobs override DefaultSchedule; an empty override disables the job.
func NewScheduler(r *Runner, cfg config.SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	loc := DefaultLocation()
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("scheduler timezone: %w", err)
		}
		loc = l
	}
	s := &Scheduler{
		runner: r,
		logger: logger.With("component", "scheduler"),
	}
	s.cron = cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{s.logger}))

	for _, name := range r.Names() {
		spec, ok := cfg.Jobs[name]
		if !ok {
			spec = DefaultSchedule[name]
		}
		if spec == "" {
			s.logger.Info("job not scheduled", "job", name)
			continue
		}
		if _, err := s.cron.AddFunc(spec, s.trigger(name)); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", name, err)
		}
		s.logger.Info("job scheduled", "job", name, "spec", spec, "timezone", loc.String())
	}
	return s, nil
}

func (s *Scheduler) trigger(name string) func() {
	return func() {
		_, err := s.runner.Run(context.Background(), name, Params{TriggeredBy: TriggerScheduler})
		if errors.Is(err, ErrBusy) {
			s.logger.Warn("skipped scheduled run, previous run still active", "job", name)
		}
	}
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// Entries reports how many jobs are scheduled.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
