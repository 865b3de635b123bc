package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/circletel/circletel/internal/netcash"
	"github.com/circletel/circletel/internal/store"
)

var (
	debitInvoiceStatuses = []string{"draft", "sent", "partial", "overdue"}
	debitMethods         = []string{"debit_order", "Debit Order"}
)

// Mandate readiness for a customer.
const (
	mandateActive  = "active"
	mandatePending = "pending"
	mandateNone    = "none"
)

// DebitSubmission is the result of a bank debit-order run.
type DebitSubmission struct {
	Date          string   `json:"date"`
	TotalEligible int      `json:"totalEligible"`
	Submitted     int      `json:"submitted"`
	Skipped       int      `json:"skipped"`
	PayNowSent    int      `json:"paynowSent"`
	BatchID       string   `json:"batchId,omitempty"`
	Errors        []string `json:"errors"`
}

type skippedInvoice struct {
	invoice store.Invoice
	reason  string
}

// DebitOrders submits a bank debit batch for invoices and recurring orders
// due on the billing date. Invoices whose customer has no signed mandate
// get a Pay Now email and SMS instead.
func (j *Jobs) DebitOrders(ctx context.Context, p Params) (*Report, error) {
	day, err := billingDate(p.Date, j.now(), j.loc)
	if err != nil {
		return nil, err
	}
	date := day.Format(time.DateOnly)
	res := &DebitSubmission{Date: date, Errors: []string{}}
	rep := &Report{Result: res}

	if j.batches == nil || !j.batches.Configured() {
		res.Errors = append(res.Errors, "NetCash Debit Order Service not configured")
		rep.Status, rep.Error = StatusFailed, res.Errors[0]
		return rep, nil
	}

	invoices, err := j.store.ListInvoicesDue(ctx, date, debitInvoiceStatuses, debitMethods)
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch invoices: %w", err)
	}
	orders, err := j.store.ListOrdersDueForBilling(ctx, date)
	if err != nil {
		res.Errors = append(res.Errors, "Failed to fetch orders: "+err.Error())
	}

	mandates := make(map[string]string)
	mandateFor := func(customerID string) string {
		if st, ok := mandates[customerID]; ok {
			return st
		}
		st := j.mandateStatus(ctx, customerID)
		mandates[customerID] = st
		return st
	}

	var items []netcash.BankDebit
	var skipped []skippedInvoice
	covered := make(map[string]bool)
	for _, inv := range invoices {
		if inv.OrderID != "" {
			covered[inv.OrderID] = true
		}
		switch st := mandateFor(inv.CustomerID); st {
		case mandateActive:
			items = append(items, netcash.BankDebit{
				AccountReference: inv.InvoiceNumber,
				Amount:           inv.AmountDue,
				ActionDate:       day,
				CustomerID:       inv.CustomerID,
				InvoiceID:        inv.ID,
			})
		default:
			res.Skipped++
			skipped = append(skipped, skippedInvoice{invoice: inv, reason: st})
			j.logger.Info("skipping invoice", "invoice", inv.InvoiceNumber, "mandate", st)
		}
	}
	for _, o := range orders {
		if covered[o.ID] {
			continue
		}
		if st := mandateFor(o.CustomerID); st != mandateActive {
			res.Skipped++
			j.logger.Info("skipping order", "order", o.OrderNumber, "mandate", st)
			continue
		}
		items = append(items, netcash.BankDebit{
			AccountReference: "PAY-" + o.OrderNumber,
			Amount:           o.PackagePrice,
			ActionDate:       day,
			CustomerID:       o.CustomerID,
			OrderID:          o.ID,
		})
	}
	res.TotalEligible = len(items) + res.Skipped
	rep.Failed = res.Skipped

	if len(items) > 0 {
		name := fmt.Sprintf("CircleTel-%s-%d", date, j.now().UnixMilli())
		batch, err := j.batches.SubmitBankBatch(ctx, name, items)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			rep.Status, rep.Error = StatusFailed, err.Error()
			return rep, nil
		}
		res.BatchID = batch.BatchID
		res.Submitted = batch.ItemsSubmitted
		rep.Processed = res.Submitted
		items = acceptedItems(items, batch.Accepted, func(it netcash.BankDebit) string { return it.AccountReference })
		rep.Failed = res.TotalEligible - len(items)
		j.finishBankBatch(ctx, res, name, date, day, batch, items)
	} else {
		j.logger.Info("no eligible debit orders", "date", date)
	}

	for i, s := range skipped {
		if i > 0 && j.rateWait > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(j.rateWait):
			}
		}
		if j.sendPayNow(ctx, s) {
			res.PayNowSent++
		}
	}

	rep.Status = statusFor(res.Errors)
	j.logger.Info("debit order run complete", "submitted", res.Submitted, "skipped", res.Skipped, "paynow_sent", res.PayNowSent)
	return rep, nil
}

func (j *Jobs) finishBankBatch(ctx context.Context, res *DebitSubmission, name, date string, day time.Time, batch *netcash.BatchResult, items []netcash.BankDebit) {
	rec := &store.DebitOrderBatch{
		BatchID:    batch.BatchID,
		BatchName:  name,
		BatchType:  "debit_order",
		ActionDate: date,
		ItemCount:  len(items),
		Status:     "submitted",
	}
	if batch.BatchID != "" {
		if err := j.batches.AuthoriseBatch(ctx, batch.BatchID); err != nil {
			res.Errors = append(res.Errors, "Batch authorisation failed: "+err.Error())
			j.logger.Warn("batch not authorised", "batch_id", batch.BatchID, "error", err)
		} else {
			at := j.now().UTC()
			rec.Status, rec.AuthorisedAt = "authorised", &at
		}
	}

	rows := make([]store.DebitOrderBatchItem, len(items))
	for i, it := range items {
		rec.TotalAmount += it.Amount
		rows[i] = store.DebitOrderBatchItem{
			InvoiceID:        it.InvoiceID,
			OrderID:          it.OrderID,
			CustomerID:       it.CustomerID,
			AccountReference: it.AccountReference,
			Amount:           it.Amount,
		}
	}
	j.recordBatch(ctx, rec, rows)

	next := addMonth(day).Format(time.DateOnly)
	for _, it := range items {
		if it.OrderID == "" {
			continue
		}
		if err := j.store.SetOrderNextBillingDate(ctx, it.OrderID, next); err != nil {
			j.logger.Error("update next billing date failed", "account_reference", it.AccountReference, "error", err)
		}
	}
}

// acceptedItems keeps the items whose account reference the batch upload
// accepted, in their original order.
func acceptedItems[T any](items []T, accepted []string, ref func(T) string) []T {
	keep := make(map[string]bool, len(accepted))
	for _, r := range accepted {
		keep[r] = true
	}
	out := items[:0:0]
	for _, it := range items {
		if keep[ref(it)] {
			out = append(out, it)
		}
	}
	return out
}

// mandateStatus reports whether a customer has a signed, verified bank
// mandate, one awaiting signature, or none at all.
func (j *Jobs) mandateStatus(ctx context.Context, customerID string) string {
	methods, err := j.store.ListPaymentMethodsByCustomer(ctx, customerID)
	if err != nil {
		j.logger.Warn("load payment methods failed", "customer_id", customerID, "error", err)
		return mandateNone
	}
	status := mandateNone
	for _, pm := range methods {
		if pm.MethodType != "bank_account" {
			continue
		}
		switch pm.MandateStatus {
		case "failed", "cancelled":
			continue
		case "active", "approved":
			if pm.IsActive && pm.IsVerified {
				return mandateActive
			}
		}
		status = mandatePending
	}
	return status
}

func (j *Jobs) sendPayNow(ctx context.Context, s skippedInvoice) bool {
	inv := s.invoice
	c, err := j.store.GetCustomer(ctx, inv.CustomerID)
	if err != nil || c == nil {
		j.logger.Warn("pay now skipped, customer not found", "invoice", inv.InvoiceNumber, "error", err)
		return false
	}
	link := netcash.PayNowLink(j.paynow.PayNowURL, j.paynow.PayNowServiceKey, inv.InvoiceNumber,
		"CircleTel invoice "+inv.InvoiceNumber, inv.AmountDue, inv.ID)
	name := c.FirstName
	if name == "" {
		name = "Customer"
	}

	sent := false
	if j.mailer != nil && j.mailer.Configured() && c.Email != "" {
		err := j.mailer.SendPayNowInvoice(ctx, notifyPayNow(c, inv, link))
		if err != nil {
			j.logger.Warn("pay now email failed", "invoice", inv.InvoiceNumber, "error", err)
		} else {
			sent = true
		}
	}
	if j.sms != nil && j.sms.Configured() && c.Phone != "" {
		msg := fmt.Sprintf("Hi %s, your CircleTel invoice %s (R%.2f) is due. Your debit order is not yet active. Pay now: %s or complete your debit order setup at circletel.co.za/dashboard/billing",
			name, inv.InvoiceNumber, inv.AmountDue, link)
		if _, err := j.sms.Send(ctx, c.Phone, msg); err != nil {
			j.logger.Warn("pay now sms failed", "invoice", inv.InvoiceNumber, "error", err)
		} else {
			sent = true
		}
	}
	if sent {
		j.logger.Info("pay now sent", "invoice", inv.InvoiceNumber, "reason", s.reason)
	}
	return sent
}
