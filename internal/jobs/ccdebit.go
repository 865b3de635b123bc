package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/circletel/circletel/internal/netcash"
	"github.com/circletel/circletel/internal/store"
)

// Invoice statuses and collection methods picked up by the card debit run.
var (
	cardInvoiceStatuses = []string{"unpaid", "sent", "partial", "overdue"}
	cardMethods         = []string{"credit_card", "Credit Card", "card"}
)

// CCSubmission is the result of a credit-card debit run.
type CCSubmission struct {
	Date          string   `json:"date"`
	TotalEligible int      `json:"totalEligible"`
	Submitted     int      `json:"submitted"`
	Skipped       int      `json:"skipped"`
	BatchID       string   `json:"batchId,omitempty"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
}

// CCDebitOrders submits a credit-card debit batch for unpaid invoices due on
// the billing date that are collected by tokenised card.
func (j *Jobs) CCDebitOrders(ctx context.Context, p Params) (*Report, error) {
	day, err := billingDate(p.Date, j.now(), j.loc)
	if err != nil {
		return nil, err
	}
	date := day.Format(time.DateOnly)
	res := &CCSubmission{Date: date, Errors: []string{}, Warnings: []string{}}
	rep := &Report{Result: res}

	if j.batches == nil || !j.batches.CardsConfigured() {
		res.Errors = append(res.Errors, "NetCash CC Debit Service not configured")
		rep.Status, rep.Error = StatusFailed, res.Errors[0]
		return rep, nil
	}

	invoices, err := j.store.ListInvoicesDue(ctx, date, cardInvoiceStatuses, cardMethods)
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch invoices: %w", err)
	}
	if len(invoices) == 0 {
		j.logger.Info("no credit card invoices due", "date", date)
		return rep, nil
	}

	seen := make(map[string]bool)
	var customerIDs []string
	for _, inv := range invoices {
		if !seen[inv.CustomerID] {
			seen[inv.CustomerID] = true
			customerIDs = append(customerIDs, inv.CustomerID)
		}
	}
	cards, err := j.store.ListActiveCards(ctx, customerIDs)
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch payment methods: %w", err)
	}
	byCustomer := make(map[string]store.PaymentMethod, len(cards))
	for _, c := range cards {
		if _, ok := byCustomer[c.CustomerID]; !ok {
			byCustomer[c.CustomerID] = c
		}
	}

	now := j.now().In(j.loc)
	var items []netcash.CardDebit
	for _, inv := range invoices {
		card, ok := byCustomer[inv.CustomerID]
		if !ok {
			res.Skipped++
			res.Warnings = append(res.Warnings, fmt.Sprintf("Invoice %s: No active card token", inv.InvoiceNumber))
			continue
		}
		if netcash.CardExpired(card.CardExpiryMonth, card.CardExpiryYear, now) {
			res.Skipped++
			res.Warnings = append(res.Warnings, fmt.Sprintf("Invoice %s: Card expired", inv.InvoiceNumber))
			continue
		}
		cardType := card.CardType
		if cardType == "" {
			cardType = "visa"
		}
		items = append(items, netcash.CardDebit{
			AccountReference: inv.InvoiceNumber,
			Amount:           inv.AmountDue,
			ActionDate:       day,
			CustomerID:       inv.CustomerID,
			InvoiceID:        inv.ID,
			PaymentMethodID:  card.ID,
			CardToken:        card.CardToken,
			CardHolderName:   j.holderName(ctx, card),
			CardType:         cardType,
			ExpiryMonth:      card.CardExpiryMonth,
			ExpiryYear:       card.CardExpiryYear,
			MaskedNumber:     maskCard(card.CardLastFour),
		})
	}
	res.TotalEligible = len(items) + res.Skipped
	rep.Failed = res.Skipped
	if len(items) == 0 {
		j.logger.Info("no eligible credit card debits", "date", date, "skipped", res.Skipped)
		return rep, nil
	}

	name := fmt.Sprintf("CircleTel-CC-%s-%d", date, j.now().UnixMilli())
	batch, err := j.batches.SubmitCardBatch(ctx, name, items)
	if batch != nil {
		res.Warnings = append(res.Warnings, batch.Warnings...)
	}
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		rep.Status, rep.Error = StatusFailed, err.Error()
		return rep, nil
	}
	res.BatchID = batch.BatchID
	res.Submitted = batch.ItemsSubmitted
	rep.Processed = res.Submitted
	items = acceptedItems(items, batch.Accepted, func(it netcash.CardDebit) string { return it.AccountReference })
	rep.Failed = res.TotalEligible - len(items)

	rec := &store.DebitOrderBatch{
		BatchID:    batch.BatchID,
		BatchName:  name,
		BatchType:  "credit_card",
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
	ids := make([]string, len(items))
	for i, it := range items {
		rec.TotalAmount += it.Amount
		rows[i] = store.DebitOrderBatchItem{
			InvoiceID:        it.InvoiceID,
			CustomerID:       it.CustomerID,
			PaymentMethodID:  it.PaymentMethodID,
			AccountReference: it.AccountReference,
			Amount:           it.Amount,
		}
		ids[i] = it.PaymentMethodID
	}
	j.recordBatch(ctx, rec, rows)
	if err := j.store.TouchCardTokens(ctx, ids, j.now()); err != nil {
		j.logger.Warn("update token last used failed", "error", err)
	}

	rep.Status = statusFor(res.Errors)
	j.logger.Info("credit card batch submitted", "batch_id", res.BatchID, "submitted", res.Submitted, "skipped", res.Skipped)
	return rep, nil
}

func (j *Jobs) holderName(ctx context.Context, card store.PaymentMethod) string {
	if card.CardHolderName != "" {
		return card.CardHolderName
	}
	c, err := j.store.GetCustomer(ctx, card.CustomerID)
	if err != nil || c == nil {
		return "Customer"
	}
	if name := c.FullName(); name != "" {
		return name
	}
	return "Customer"
}

func maskCard(lastFour string) string {
	if lastFour == "" {
		return ""
	}
	return "************" + lastFour
}
