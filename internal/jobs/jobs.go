package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/circletel/circletel/internal/config"
	"github.com/circletel/circletel/internal/integrations"
	"github.com/circletel/circletel/internal/netcash"
	"github.com/circletel/circletel/internal/notify"
	"github.com/circletel/circletel/internal/store"
)

// BatchSubmitter uploads and authorises NetCash debit batches.
type BatchSubmitter interface {
	Configured() bool
	CardsConfigured() bool
	SubmitCardBatch(ctx context.Context, name string, items []netcash.CardDebit) (*netcash.BatchResult, error)
	SubmitBankBatch(ctx context.Context, name string, items []netcash.BankDebit) (*netcash.BatchResult, error)
	AuthoriseBatch(ctx context.Context, batchID string) error
}

// Mailer sends operator and billing emails.
type Mailer interface {
	Configured() bool
	SendMonitorAlert(ctx context.Context, a notify.MonitorAlert) error
	SendPayNowInvoice(ctx context.Context, n notify.PayNowNotice) error
}

// Texter sends SMS messages.
type Texter interface {
	Configured() bool
	Send(ctx context.Context, to, content string) (string, error)
}

// Alerter posts monitor alerts to the chat webhook.
type Alerter interface {
	Configured() bool
	Send(ctx context.Context, a notify.MonitorAlert) error
}

// HealthChecker probes the integration registry.
type HealthChecker interface {
	Check(ctx context.Context) (*integrations.Summary, error)
}

// Options configures the job set.
type Options struct {
	Store    store.Store
	Batches  BatchSubmitter
	Mailer   Mailer
	SMS      Texter
	Alerter  Alerter
	Health   HealthChecker
	Monitor  config.MonitorConfig
	PayNow   config.NetCashConfig
	Location *time.Location
	Logger   *slog.Logger
}

// Jobs holds the dependencies shared by the scheduled jobs.
type Jobs struct {
	store    store.Store
	batches  BatchSubmitter
	mailer   Mailer
	sms      Texter
	alerter  Alerter
	health   HealthChecker
	monitor  config.MonitorConfig
	paynow   config.NetCashConfig
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
	rateWait time.Duration
}

// New creates the job set.
func New(opts Options) *Jobs {
	j := &Jobs{
		store:    opts.Store,
		batches:  opts.Batches,
		mailer:   opts.Mailer,
		sms:      opts.SMS,
		alerter:  opts.Alerter,
		health:   opts.Health,
		monitor:  opts.Monitor,
		paynow:   opts.PayNow,
		loc:      opts.Location,
		logger:   opts.Logger.With("component", "jobs"),
		now:      time.Now,
		rateWait: 200 * time.Millisecond,
	}
	if j.loc == nil {
		j.loc = DefaultLocation()
	}
	if j.monitor.FailedSyncCritical == 0 {
		j.monitor.FailedSyncCritical = 5
	}
	if j.monitor.SuccessRateWarning == 0 {
		j.monitor.SuccessRateWarning = 95
	}
	if j.monitor.StalePendingAge.Duration == 0 {
		j.monitor.StalePendingAge.Duration = 4 * time.Hour
	}
	if j.monitor.Window.Duration == 0 {
		j.monitor.Window.Duration = 24 * time.Hour
	}
	return j
}

// Register adds every job to r.
func (j *Jobs) Register(r *Runner) {
	r.Register(CCDebitOrders, j.CCDebitOrders)
	r.Register(DebitOrders, j.DebitOrders)
	r.Register(PaymentSyncMonitor, j.PaymentSyncMonitor)
	if j.health != nil {
		r.Register(IntegrationsHealth, j.IntegrationsHealth)
	}
}

// DefaultLocation returns South African Standard Time.
func DefaultLocation() *time.Location {
	if loc, err := time.LoadLocation("Africa/Johannesburg"); err == nil {
		return loc
	}
	return time.FixedZone("SAST", 2*60*60)
}

// IntegrationsHealth runs the integration health check.
func (j *Jobs) IntegrationsHealth(ctx context.Context, _ Params) (*Report, error) {
	sum, err := j.health.Check(ctx)
	if err != nil {
		return nil, err
	}
	rep := &Report{Result: sum, Processed: sum.Total, Failed: sum.Down, Status: StatusCompleted}
	if sum.Down > 0 {
		rep.Status = StatusCompletedWithErrors
	}
	return rep, nil
}

// recordBatch stores a submitted batch and its items. Failures are logged
// only; the batch is already with NetCash.
func (j *Jobs) recordBatch(ctx context.Context, b *store.DebitOrderBatch, items []store.DebitOrderBatchItem) {
	if b.BatchID == "" {
		return
	}
	if err := j.store.UpsertDebitBatch(ctx, b); err != nil {
		j.logger.Error("record batch failed", "batch_id", b.BatchID, "error", err)
		return
	}
	for i := range items {
		items[i].BatchID = b.BatchID
	}
	if err := j.store.AddDebitBatchItems(ctx, items); err != nil {
		j.logger.Error("record batch items failed", "batch_id", b.BatchID, "error", err)
	}
}

func notifyPayNow(c *store.Customer, inv store.Invoice, link string) notify.PayNowNotice {
	return notify.PayNowNotice{
		To:               c.Email,
		CustomerName:     c.FullName(),
		InvoiceNumber:    inv.InvoiceNumber,
		Amount:           inv.AmountDue,
		DueDate:          inv.DueDate,
		PayURL:           link,
		EmandateReminder: true,
	}
}
