package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/circletel/circletel/internal/notify"
	"github.com/circletel/circletel/internal/store"
)

// Check outcomes.
const (
	CheckPass = "pass"
	CheckWarn = "warn"
	CheckFail = "fail"
)

// Overall monitor health.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// MonitorCheck is one threshold evaluated by the payment sync monitor.
type MonitorCheck struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Value     string `json:"value"`
	Threshold string `json:"threshold"`
	Message   string `json:"message"`
}

// MonitorResult is the payment sync health summary.
type MonitorResult struct {
	Status     string          `json:"status"`
	Timestamp  time.Time       `json:"timestamp"`
	Checks     []MonitorCheck  `json:"checks"`
	AlertsSent map[string]bool `json:"alerts_sent"`
}

// PaymentSyncMonitor checks how well payments are reaching Zoho Billing and
// alerts operators when the sync is critical.
func (j *Jobs) PaymentSyncMonitor(ctx context.Context, _ Params) (*Report, error) {
	now := j.now()
	local := now.In(j.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, j.loc)

	stats, err := j.store.PaymentSyncStats(ctx, now.Add(-j.monitor.Window.Duration), now.Add(-j.monitor.StalePendingAge.Duration), dayStart)
	if err != nil {
		return nil, fmt.Errorf("load payment sync stats: %w", err)
	}

	res := &MonitorResult{
		Timestamp:  now.UTC(),
		Checks:     j.evaluate(stats),
		AlertsSent: map[string]bool{"email": false, "webhook": false},
	}
	res.Status = overall(res.Checks)

	if res.Status == HealthCritical {
		j.raiseAlert(ctx, res)
	}
	j.logMonitorRun(ctx, res, stats, j.now().Sub(now))

	rep := &Report{Result: res, Processed: stats.AttemptedSync, Failed: stats.FailedSyncs}
	if res.Status != HealthHealthy {
		rep.Status = StatusCompletedWithErrors
	}
	return rep, nil
}

func (j *Jobs) evaluate(s *store.SyncStats) []MonitorCheck {
	window := hoursLabel(j.monitor.Window.Duration)
	stale := hoursLabel(j.monitor.StalePendingAge.Duration)
	checks := make([]MonitorCheck, 0, 4)

	failed := MonitorCheck{
		Name:      fmt.Sprintf("Failed Syncs (%s)", window),
		Value:     fmt.Sprint(s.FailedSyncs),
		Threshold: fmt.Sprintf("<= %d", j.monitor.FailedSyncCritical),
	}
	switch {
	case s.FailedSyncs > j.monitor.FailedSyncCritical:
		failed.Status = CheckFail
		failed.Message = fmt.Sprintf("%d payments failed to sync to Zoho Billing", s.FailedSyncs)
	case s.FailedSyncs > j.monitor.FailedSyncWarning:
		failed.Status = CheckWarn
		failed.Message = fmt.Sprintf("%d payments failed to sync to Zoho Billing", s.FailedSyncs)
	default:
		failed.Status = CheckPass
		failed.Message = "No failed syncs"
	}
	checks = append(checks, failed)

	rate := 100
	if s.AttemptedSync > 0 {
		rate = int(math.Round(float64(s.SyncedCount) / float64(s.AttemptedSync) * 100))
	}
	success := MonitorCheck{
		Name:      fmt.Sprintf("Sync Success Rate (%s)", window),
		Value:     fmt.Sprintf("%d%%", rate),
		Threshold: fmt.Sprintf(">= %d%%", j.monitor.SuccessRateWarning),
		Status:    CheckPass,
		Message:   fmt.Sprintf("%d of %d payments synced", s.SyncedCount, s.AttemptedSync),
	}
	if rate < j.monitor.SuccessRateWarning {
		success.Status = CheckFail
	}
	checks = append(checks, success)

	pending := MonitorCheck{
		Name:      fmt.Sprintf("Stale Pending Syncs (>%s)", stale),
		Value:     fmt.Sprint(s.StalePending),
		Threshold: "0",
		Status:    CheckPass,
		Message:   "No stale pending syncs",
	}
	if s.StalePending > 0 {
		pending.Status = CheckWarn
		pending.Message = fmt.Sprintf("%d payments pending sync for more than %s", s.StalePending, stale)
	}
	checks = append(checks, pending)

	checks = append(checks, MonitorCheck{
		Name:      "Payments Today",
		Value:     fmt.Sprint(s.PaymentsToday),
		Threshold: "-",
		Status:    CheckPass,
		Message:   fmt.Sprintf("%d payments received today", s.PaymentsToday),
	})
	return checks
}

func overall(checks []MonitorCheck) string {
	status := HealthHealthy
	for _, c := range checks {
		switch c.Status {
		case CheckFail:
			return HealthCritical
		case CheckWarn:
			status = HealthWarning
		}
	}
	return status
}

func (j *Jobs) raiseAlert(ctx context.Context, res *MonitorResult) {
	alert := notify.MonitorAlert{Monitor: "Payment Sync", Status: HealthCritical}
	for _, c := range res.Checks {
		if c.Status == CheckFail {
			alert.Checks = append(alert.Checks, notify.AlertCheck{Name: c.Name, Value: c.Value, Threshold: c.Threshold, Message: c.Message})
		}
	}
	if j.mailer != nil && j.mailer.Configured() {
		if err := j.mailer.SendMonitorAlert(ctx, alert); err != nil {
			j.logger.Error("monitor alert email failed", "error", err)
		} else {
			res.AlertsSent["email"] = true
		}
	}
	if j.alerter != nil && j.alerter.Configured() {
		if err := j.alerter.Send(ctx, alert); err != nil {
			j.logger.Error("monitor alert webhook failed", "error", err)
		} else {
			res.AlertsSent["webhook"] = true
		}
	}
}

func (j *Jobs) logMonitorRun(ctx context.Context, res *MonitorResult, stats *store.SyncStats, took time.Duration) {
	req, _ := json.Marshal(stats)
	resp, _ := json.Marshal(res)
	status := "synced"
	if res.Status != HealthHealthy {
		status = "failed"
	}
	l := &store.ZohoSyncLog{
		EntityType:      "payment_monitoring",
		EntityID:        res.Timestamp.Format(time.RFC3339),
		Operation:       "health_check",
		Status:          status,
		RequestPayload:  req,
		ResponsePayload: resp,
		DurationMs:      took.Milliseconds(),
	}
	if res.Status != HealthHealthy {
		l.ErrorMessage = "payment sync " + res.Status
	}
	if err := j.store.LogZohoSync(ctx, l); err != nil {
		j.logger.Warn("record monitor run failed", "error", err)
	}
}

func hoursLabel(d time.Duration) string {
	return fmt.Sprintf("%dh", int(d.Hours()))
}
