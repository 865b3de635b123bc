package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/circletel/circletel/internal/events"
	"github.com/circletel/circletel/internal/metrics"
	"github.com/circletel/circletel/internal/netcash"
	"github.com/circletel/circletel/internal/notify"
	"github.com/circletel/circletel/internal/store"
	"github.com/circletel/circletel/internal/zoho"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvoiceNotFound  = errors.New("invoice not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrWebhookNotFound  = errors.New("webhook log not found")
	ErrNotReplayable    = errors.New("webhook cannot be replayed")
)

// MsgDuplicate is returned for a webhook whose transaction was already processed.
const MsgDuplicate = "Duplicate webhook, already processed"

// Webhook log statuses.
const (
	StatusReceived   = "received"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
	StatusDuplicate  = "duplicate"
)

// Audit actions.
const (
	ActionOrderUpdated        = "order_updated"
	ActionInvoiceUpdated      = "invoice_updated"
	ActionTransactionRecorded = "transaction_recorded"
	ActionEmailSent           = "email_sent"
	ActionEmailFailed         = "email_failed"
	ActionZohoSynced          = "zoho_synced"
	ActionZohoFailed          = "zoho_failed"
	ActionRICATriggered       = "rica_triggered"
	ActionLogged              = "logged"
	ActionProcessingFailed    = "processing_failed"
)

// Mailer sends the customer and finance emails raised by payment events.
type Mailer interface {
	Configured() bool
	SendPaymentReceipt(ctx context.Context, r notify.Receipt) error
	SendPaymentFailure(ctx context.Context, n notify.PaymentNotice) error
	SendRefundNotice(ctx context.Context, n notify.PaymentNotice) error
	SendChargebackAlert(ctx context.Context, n notify.PaymentNotice) error
}

// PaymentRecorder records payments in the accounting system.
type PaymentRecorder interface {
	Configured() bool
	RecordPayment(ctx context.Context, p zoho.PaymentRequest) (*zoho.Payment, error)
}

// Webhook is a validated NetCash notification ready for processing.
type Webhook struct {
	Payload           *netcash.Payload
	Raw               []byte
	SignatureVerified bool
	SourceIP          string
	UserAgent         string
	Headers           map[string]string
}

// Result is the outcome of processing one webhook.
type Result struct {
	WebhookLogID string        `json:"webhook_log_id"`
	WebhookID    string        `json:"webhook_id"`
	Type         string        `json:"type"`
	Status       string        `json:"status"`
	Actions      []string      `json:"actions_taken"`
	Message      string        `json:"message,omitempty"`
	Duration     time.Duration `json:"-"`
	Err          error         `json:"-"`
}

// ProcessorOptions configures a Processor. Mailer, Zoho and Events are optional.
type ProcessorOptions struct {
	Store      store.Store
	Mailer     Mailer
	Zoho       PaymentRecorder
	Events     events.Publisher
	Logger     *slog.Logger
	MaxRetries int
}

// Processor reconciles NetCash payment webhooks.
type Processor struct {
	store      store.Store
	mailer     Mailer
	zoho       PaymentRecorder
	events     events.Publisher
	logger     *slog.Logger
	maxRetries int
	now        func() time.Time
}

// NewProcessor creates a webhook processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	p := &Processor{
		store:      opts.Store,
		mailer:     opts.Mailer,
		zoho:       opts.Zoho,
		events:     opts.Events,
		logger:     opts.Logger.With("component", "billing"),
		maxRetries: opts.MaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if p.events == nil {
		p.events = events.Nop{}
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 3
	}
	return p
}

// Process records and reconciles a webhook. The returned error is non-nil only
// when the webhook could not be logged at all; business failures are reported
// through Result.Status and Result.Err.
func (p *Processor) Process(ctx context.Context, wh Webhook) (*Result, error) {
	start := time.Now()
	typ := netcash.WebhookType(wh.Payload)
	res := &Result{WebhookID: uuid.NewString(), Type: typ}

	if wh.Payload.TransactionID != "" {
		dup, err := p.store.HasProcessedWebhook(ctx, wh.Payload.TransactionID, typ)
		if err != nil {
			return nil, fmt.Errorf("check duplicate webhook: %w", err)
		}
		if dup {
			l := p.newLog(wh, res.WebhookID, typ, StatusDuplicate)
			if err := p.store.CreateWebhookLog(ctx, l); err != nil {
				p.logger.Warn("failed to log duplicate webhook", "error", err)
			}
			res.WebhookLogID = l.ID
			res.Status = StatusDuplicate
			res.Message = MsgDuplicate
			res.Duration = time.Since(start)
			p.logger.Info("duplicate webhook ignored", "transaction_id", wh.Payload.TransactionID, "type", typ)
			p.events.Publish(events.WebhookDuplicate, res)
			return res, nil
		}
	}

	l := p.newLog(wh, res.WebhookID, typ, StatusReceived)
	if err := p.store.CreateWebhookLog(ctx, l); err != nil {
		return nil, fmt.Errorf("create webhook log: %w", err)
	}
	res.WebhookLogID = l.ID
	p.run(ctx, wh.Payload, res, start)
	return res, nil
}

// Replay re-runs a stored failed webhook. Only signature-verified webhooks
// with retries left are eligible.
func (p *Processor) Replay(ctx context.Context, webhookLogID string) (*Result, error) {
	l, err := p.store.GetWebhookLog(ctx, webhookLogID)
	if err != nil {
		return nil, fmt.Errorf("get webhook log: %w", err)
	}
	if l == nil {
		return nil, fmt.Errorf("%w: %s", ErrWebhookNotFound, webhookLogID)
	}
	switch {
	case l.Status != StatusFailed:
		return nil, fmt.Errorf("%w: status is %s", ErrNotReplayable, l.Status)
	case !l.SignatureVerified:
		return nil, fmt.Errorf("%w: signature was not verified", ErrNotReplayable)
	case l.RetryCount >= p.maxRetries:
		return nil, fmt.Errorf("%w: retry limit of %d reached", ErrNotReplayable, p.maxRetries)
	}

	payload, err := netcash.ParsePayload([]byte(l.RawPayload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReplayable, err)
	}
	if _, err := p.store.IncrementWebhookRetry(ctx, l.ID); err != nil {
		return nil, fmt.Errorf("increment retry: %w", err)
	}

	res := &Result{WebhookLogID: l.ID, WebhookID: l.WebhookID, Type: l.EventType}
	p.logger.Info("replaying webhook", "webhook_log_id", l.ID, "retry", l.RetryCount+1)
	p.run(ctx, payload, res, time.Now())
	return res, nil
}

// Stats summarises webhook processing since the given time.
func (p *Processor) Stats(ctx context.Context, since time.Time) (*store.WebhookStats, error) {
	return p.store.WebhookStats(ctx, since)
}

func (p *Processor) newLog(wh Webhook, webhookID, typ, status string) *store.WebhookLog {
	headers, _ := json.Marshal(wh.Headers)
	return &store.WebhookLog{
		Provider:          "netcash",
		WebhookID:         webhookID,
		EventType:         typ,
		TransactionID:     wh.Payload.TransactionID,
		Reference:         wh.Payload.Reference,
		Status:            status,
		SignatureVerified: wh.SignatureVerified,
		SourceIP:          wh.SourceIP,
		UserAgent:         wh.UserAgent,
		Headers:           types.JSONText(headers),
		RawPayload:        string(wh.Raw),
		ReceivedAt:        p.now(),
	}
}

// run executes the handler for the webhook type and closes out the log.
func (p *Processor) run(ctx context.Context, pl *netcash.Payload, res *Result, start time.Time) {
	if err := p.store.UpdateWebhookLogStatus(ctx, res.WebhookLogID, StatusProcessing); err != nil {
		p.logger.Warn("failed to mark webhook processing", "webhook_log_id", res.WebhookLogID, "error", err)
	}

	r := &reconciliation{p: p, logID: res.WebhookLogID, pl: pl}
	var err error
	switch res.Type {
	case netcash.TypePaymentSuccess:
		err = r.paymentSuccess(ctx)
	case netcash.TypePaymentFailure:
		err = r.paymentFailure(ctx)
	case netcash.TypeRefund:
		err = r.reversal(ctx, "refunded", "refunded", "cancelled")
	case netcash.TypeChargeback:
		err = r.reversal(ctx, "chargeback", "chargeback", "disputed")
	default:
		r.actions = append(r.actions, ActionLogged)
	}

	res.Actions = r.actions
	res.Duration = time.Since(start)
	completion := store.WebhookCompletion{
		Status:             StatusProcessed,
		ActionsTaken:       r.actions,
		ResponseStatusCode: 200,
		DurationMs:         res.Duration.Milliseconds(),
	}
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		res.Message = err.Error()
		completion.Status = StatusFailed
		completion.ErrorMessage = err.Error()
		r.audit(ctx, ActionProcessingFailed, false, map[string]any{"error": err.Error()})
		res.Actions = r.actions
		completion.ActionsTaken = r.actions
	} else {
		res.Status = StatusProcessed
		res.Message = "Webhook processed successfully"
	}

	if err := p.store.CompleteWebhookLog(ctx, res.WebhookLogID, completion); err != nil {
		p.logger.Warn("failed to complete webhook log", "webhook_log_id", res.WebhookLogID, "error", err)
	}

	if res.Err != nil {
		p.logger.Error("webhook processing failed",
			"webhook_log_id", res.WebhookLogID, "type", res.Type, "reference", pl.Reference, "error", res.Err)
		p.events.Publish(events.WebhookFailed, res)
		return
	}
	p.logger.Info("webhook processed",
		"webhook_log_id", res.WebhookLogID, "type", res.Type, "reference", pl.Reference,
		"actions", strings.Join(res.Actions, ","), "duration_ms", res.Duration.Milliseconds())
	p.events.Publish(events.WebhookProcessed, res)
}

// reconciliation carries per-webhook state through the handlers.
type reconciliation struct {
	p       *Processor
	logID   string
	pl      *netcash.Payload
	actions []string
	orderID string
	invID   string
}

func (r *reconciliation) audit(ctx context.Context, action string, success bool, detail map[string]any) {
	r.actions = append(r.actions, action)
	raw, _ := json.Marshal(detail)
	err := r.p.store.LogWebhookAudit(ctx, &store.WebhookAudit{
		WebhookLogID: r.logID,
		Action:       action,
		OrderID:      r.orderID,
		InvoiceID:    r.invID,
		Success:      success,
		Detail:       types.JSONText(raw),
	})
	if err != nil {
		r.p.logger.Warn("failed to write webhook audit", "action", action, "error", err)
	}
}

func (r *reconciliation) transactionID() string {
	if r.pl.TransactionID != "" {
		return r.pl.TransactionID
	}
	return "NC-" + strings.ToUpper(netcash.IdempotencyKey(r.pl)[:16])
}

func (r *reconciliation) recordTransaction(ctx context.Context, status, invoiceID, orderID, customerID string) (*store.PaymentTransaction, error) {
	raw, err := json.Marshal(netcash.SanitizeForLogging(r.pl))
	if err != nil {
		return nil, err
	}
	tx := &store.PaymentTransaction{
		TransactionID: r.transactionID(),
		Reference:     r.pl.Reference,
		Provider:      "netcash",
		InvoiceID:     invoiceID,
		OrderID:       orderID,
		CustomerID:    customerID,
		Amount:        r.pl.AmountRands(),
		Currency:      "ZAR",
		Status:        status,
		PaymentMethod: r.pl.Method,
		ResponseCode:  r.pl.ResponseCode,
		ResponseText:  r.pl.ResponseText,
		RawPayload:    types.JSONText(raw),
	}
	if status == "completed" {
		t := r.p.now()
		tx.CompletedAt = &t
	}
	if err := r.p.store.UpsertTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}
	r.audit(ctx, ActionTransactionRecorded, true, map[string]any{"transaction_id": tx.TransactionID, "status": status, "amount": tx.Amount})
	return tx, nil
}

// findOrder resolves a payment reference to an order: by stored payment
// reference, then by an embedded order UUID, then by order number.
func (r *reconciliation) findOrder(ctx context.Context, ref string) (*store.Order, error) {
	o, err := r.p.store.GetOrderByPaymentReference(ctx, ref)
	if err != nil || o != nil {
		return o, err
	}
	if id := netcash.ExtractOrderID(ref); id != "" {
		o, err = r.p.store.GetOrder(ctx, id)
		if err != nil || o != nil {
			return o, err
		}
	}
	return r.p.store.GetOrderByNumber(ctx, ref)
}

func (r *reconciliation) requireOrder(ctx context.Context) (*store.Order, error) {
	o, err := r.findOrder(ctx, r.pl.Reference)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if o == nil {
		return nil, fmt.Errorf("%w: Order not found for reference: %s", ErrOrderNotFound, r.pl.Reference)
	}
	r.orderID = o.ID
	return o, nil
}

func (r *reconciliation) customer(ctx context.Context, id string) *store.Customer {
	if id == "" {
		return nil
	}
	c, err := r.p.store.GetCustomer(ctx, id)
	if err != nil {
		r.p.logger.Warn("failed to load customer", "customer_id", id, "error", err)
		return nil
	}
	return c
}

func (r *reconciliation) paymentSuccess(ctx context.Context) error {
	if ref := netcash.InvoiceReference(r.pl); ref != "" {
		return r.invoicePayment(ctx, ref)
	}
	return r.orderPayment(ctx)
}

func (r *reconciliation) invoicePayment(ctx context.Context, number string) error {
	inv, err := r.p.store.GetInvoiceByNumber(ctx, number)
	if err != nil {
		return fmt.Errorf("find invoice: %w", err)
	}
	if inv == nil {
		return fmt.Errorf("%w: Invoice not found: %s", ErrInvoiceNotFound, number)
	}
	r.invID, r.orderID = inv.ID, inv.OrderID

	prior, err := r.p.store.GetTransaction(ctx, r.transactionID())
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}
	tx, err := r.recordTransaction(ctx, "completed", inv.ID, inv.OrderID, inv.CustomerID)
	if err != nil {
		return err
	}

	// A transaction already completed against this invoice has been applied to its balance.
	if prior == nil || prior.Status != "completed" || prior.InvoiceID != inv.ID {
		u := ApplyPayment(inv, tx.Amount, r.p.now())
		if err := r.p.store.ApplyInvoicePayment(ctx, inv.ID, u); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		inv.AmountPaid, inv.AmountDue, inv.Status = u.AmountPaid, u.AmountDue, u.Status
		r.audit(ctx, ActionInvoiceUpdated, true, map[string]any{
			"invoice_number": inv.InvoiceNumber, "amount_paid": u.AmountPaid, "amount_due": u.AmountDue, "status": u.Status,
		})
	}

	cust := r.customer(ctx, inv.CustomerID)
	if inv.Status == InvoicePaid && inv.OrderID != "" {
		if err := r.p.store.UpdateOrderStatus(ctx, inv.OrderID, "payment_received"); err != nil {
			r.p.logger.Warn("failed to advance order after invoice payment", "order_id", inv.OrderID, "error", err)
			r.audit(ctx, ActionOrderUpdated, false, map[string]any{"error": err.Error()})
		} else {
			r.audit(ctx, ActionOrderUpdated, true, map[string]any{"status": "payment_received"})
			if cust != nil && cust.KYCStatus == "approved" {
				r.audit(ctx, ActionRICATriggered, true, map[string]any{"customer_id": cust.ID})
			}
		}
	}

	if cust != nil {
		r.email(ctx, "receipt", func() error {
			return r.p.mailer.SendPaymentReceipt(ctx, notify.Receipt{
				To:            cust.Email,
				CustomerName:  cust.FullName(),
				Reference:     r.pl.Reference,
				InvoiceNumber: inv.InvoiceNumber,
				Amount:        tx.Amount,
				AmountDue:     inv.AmountDue,
				TransactionID: tx.TransactionID,
				PaidAt:        r.p.now(),
			})
		})
	}
	r.syncZoho(ctx, inv, cust, tx)
	return nil
}

func (r *reconciliation) orderPayment(ctx context.Context) error {
	o, err := r.requireOrder(ctx)
	if err != nil {
		return err
	}
	prior, err := r.p.store.GetTransaction(ctx, r.transactionID())
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}
	tx, err := r.recordTransaction(ctx, "completed", "", o.ID, o.CustomerID)
	if err != nil {
		return err
	}

	update := store.OrderPaymentUpdate{Status: "active", PaymentStatus: "paid"}
	paidAt := r.p.now()
	update.PaymentDate = &paidAt
	if prior == nil || prior.Status != "completed" {
		total := Round(o.TotalPaid + tx.Amount)
		update.TotalPaid = &total
	}
	if err := r.p.store.UpdateOrderPayment(ctx, o.ID, update); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	r.audit(ctx, ActionOrderUpdated, true, map[string]any{"order_number": o.OrderNumber, "payment_status": "paid", "status": "active"})

	if cust := r.customer(ctx, o.CustomerID); cust != nil {
		r.email(ctx, "receipt", func() error {
			return r.p.mailer.SendPaymentReceipt(ctx, notify.Receipt{
				To:            cust.Email,
				CustomerName:  cust.FullName(),
				Reference:     r.pl.Reference,
				PackageName:   o.PackageName,
				Amount:        tx.Amount,
				TransactionID: tx.TransactionID,
				PaidAt:        paidAt,
			})
		})
	}
	return nil
}

func (r *reconciliation) paymentFailure(ctx context.Context) error {
	o, err := r.requireOrder(ctx)
	if err != nil {
		return err
	}
	if _, err := r.recordTransaction(ctx, "failed", "", o.ID, o.CustomerID); err != nil {
		return err
	}

	reason := r.pl.ResponseText
	if reason == "" {
		reason = r.pl.StatusText
	}
	if reason == "" {
		reason = "Payment declined"
	}
	if err := r.p.store.UpdateOrderPayment(ctx, o.ID, store.OrderPaymentUpdate{
		Status: "pending", PaymentStatus: "failed", PaymentError: reason,
	}); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	r.audit(ctx, ActionOrderUpdated, true, map[string]any{"payment_status": "failed", "reason": reason})

	if cust := r.customer(ctx, o.CustomerID); cust != nil {
		r.email(ctx, "failure", func() error {
			return r.p.mailer.SendPaymentFailure(ctx, notify.PaymentNotice{
				To:            cust.Email,
				CustomerName:  cust.FullName(),
				Reference:     r.pl.Reference,
				OrderNumber:   o.OrderNumber,
				Amount:        r.pl.AmountRands(),
				TransactionID: r.pl.TransactionID,
				Reason:        reason,
			})
		})
	}
	return nil
}

// reversal handles refunds and chargebacks: the transaction and order are
// marked and the customer (refund) or finance team (chargeback) is told.
func (r *reconciliation) reversal(ctx context.Context, txStatus, paymentStatus, orderStatus string) error {
	o, err := r.requireOrder(ctx)
	if err != nil {
		return err
	}
	if _, err := r.recordTransaction(ctx, txStatus, "", o.ID, o.CustomerID); err != nil {
		return err
	}
	if err := r.p.store.UpdateOrderPayment(ctx, o.ID, store.OrderPaymentUpdate{
		Status: orderStatus, PaymentStatus: paymentStatus,
	}); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	r.audit(ctx, ActionOrderUpdated, true, map[string]any{"payment_status": paymentStatus, "status": orderStatus})

	n := notify.PaymentNotice{
		Reference:     r.pl.Reference,
		OrderNumber:   o.OrderNumber,
		Amount:        r.pl.AmountRands(),
		TransactionID: r.pl.TransactionID,
		Reason:        r.pl.ResponseText,
	}
	cust := r.customer(ctx, o.CustomerID)
	if cust != nil {
		n.To, n.CustomerName = cust.Email, cust.FullName()
	}
	if txStatus == "chargeback" {
		r.email(ctx, "chargeback", func() error { return r.p.mailer.SendChargebackAlert(ctx, n) })
	} else if cust != nil {
		r.email(ctx, "refund", func() error { return r.p.mailer.SendRefundNotice(ctx, n) })
	}
	return nil
}

// email sends one notification. Failures are audited, never returned.
func (r *reconciliation) email(ctx context.Context, kind string, send func() error) {
	if r.p.mailer == nil || !r.p.mailer.Configured() {
		return
	}
	if err := send(); err != nil {
		r.p.logger.Warn("failed to send email", "kind", kind, "reference", r.pl.Reference, "error", err)
		r.audit(ctx, ActionEmailFailed, false, map[string]any{"kind": kind, "error": err.Error()})
		return
	}
	r.audit(ctx, ActionEmailSent, true, map[string]any{"kind": kind})
}

// syncZoho records the payment against the invoice in Zoho Billing when both
// sides are linked. Failures are audited and logged to zoho_sync_logs.
func (r *reconciliation) syncZoho(ctx context.Context, inv *store.Invoice, cust *store.Customer, tx *store.PaymentTransaction) {
	if tx.ZohoSyncStatus == "synced" {
		return
	}
	if r.p.zoho == nil || !r.p.zoho.Configured() || inv.ZohoInvoiceID == "" || cust == nil || cust.ZohoCustomerID == "" {
		if err := r.p.store.SetTransactionZohoSync(ctx, tx.TransactionID, "skipped", ""); err != nil {
			r.p.logger.Warn("failed to mark zoho sync skipped", "transaction_id", tx.TransactionID, "error", err)
		}
		return
	}
	if err := r.p.store.SetTransactionZohoSync(ctx, tx.TransactionID, "pending", ""); err != nil {
		r.p.logger.Warn("failed to mark zoho sync pending", "transaction_id", tx.TransactionID, "error", err)
	}

	req := zoho.PaymentRequest{
		CustomerID:      cust.ZohoCustomerID,
		PaymentMode:     zohoPaymentMode(r.pl.Method),
		Amount:          tx.Amount,
		Date:            r.p.now().Format(time.DateOnly),
		ReferenceNumber: tx.TransactionID,
		Description:     "NetCash payment " + r.pl.Reference,
		Invoices:        []zoho.InvoiceApplication{{InvoiceID: inv.ZohoInvoiceID, AmountApplied: tx.Amount}},
	}
	reqJSON, _ := json.Marshal(req)
	start := time.Now()
	payment, err := r.p.zoho.RecordPayment(ctx, req)
	entry := &store.ZohoSyncLog{
		EntityType:     "payment",
		EntityID:       tx.ID,
		Operation:      "record_payment",
		RequestPayload: types.JSONText(reqJSON),
		DurationMs:     time.Since(start).Milliseconds(),
	}

	if err != nil {
		entry.Status = "failed"
		entry.ErrorMessage = err.Error()
		if serr := r.p.store.SetTransactionZohoSync(ctx, tx.TransactionID, "failed", ""); serr != nil {
			r.p.logger.Warn("failed to mark zoho sync failed", "transaction_id", tx.TransactionID, "error", serr)
		}
		r.p.logger.Warn("zoho payment sync failed", "invoice", inv.InvoiceNumber, "error", err)
		r.audit(ctx, ActionZohoFailed, false, map[string]any{"error": err.Error()})
	} else {
		entry.Status = "synced"
		entry.ZohoEntityID = payment.PaymentID
		respJSON, _ := json.Marshal(payment)
		entry.ResponsePayload = types.JSONText(respJSON)
		if err := r.p.store.SetTransactionZohoSync(ctx, tx.TransactionID, "synced", payment.PaymentID); err != nil {
			r.p.logger.Warn("failed to mark zoho sync synced", "transaction_id", tx.TransactionID, "error", err)
		}
		if err := r.p.store.SetInvoiceZohoPayment(ctx, inv.ID, payment.PaymentID); err != nil {
			r.p.logger.Warn("failed to store zoho payment id", "invoice_id", inv.ID, "error", err)
		}
		r.audit(ctx, ActionZohoSynced, true, map[string]any{"zoho_payment_id": payment.PaymentID})
	}
	metrics.RecordZohoSync(entry.Status)
	if err := r.p.store.LogZohoSync(ctx, entry); err != nil {
		r.p.logger.Warn("failed to write zoho sync log", "error", err)
	}
}

func zohoPaymentMode(method string) string {
	m := strings.ToLower(method)
	switch {
	case strings.Contains(m, "card"), m == "cc", m == "1":
		return "creditcard"
	case strings.Contains(m, "eft"), strings.Contains(m, "bank"), strings.Contains(m, "debit"):
		return "banktransfer"
	default:
		return "others"
	}
}
