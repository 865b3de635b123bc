package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/circletel/circletel/internal/store"
)

// InvoiceDueDays is the payment term for new invoices.
const InvoiceDueDays = 7

// LineItem is one VAT-exclusive invoice line.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// NewInvoice is the input for CreateInvoice.
type NewInvoice struct {
	CustomerID              string     `json:"customer_id"`
	OrderID                 string     `json:"order_id,omitempty"`
	PaymentCollectionMethod string     `json:"payment_collection_method,omitempty"`
	Status                  string     `json:"status,omitempty"`
	LineItems               []LineItem `json:"line_items"`
}

// ValidationError reports bad invoice input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// CreateInvoice numbers, totals and stores a new invoice due InvoiceDueDays from now.
func CreateInvoice(ctx context.Context, s store.Store, in NewInvoice, now time.Time) (*store.Invoice, error) {
	if in.CustomerID == "" {
		return nil, &ValidationError{Message: "customer_id is required"}
	}
	if len(in.LineItems) == 0 {
		return nil, &ValidationError{Message: "at least one line item is required"}
	}
	status := in.Status
	switch status {
	case "":
		status = "draft"
	case "draft", "sent":
	default:
		return nil, &ValidationError{Message: fmt.Sprintf("invalid status %q", status)}
	}

	var subtotal float64
	lines := make([]LineItem, len(in.LineItems))
	for i, li := range in.LineItems {
		if strings.TrimSpace(li.Description) == "" {
			return nil, &ValidationError{Message: fmt.Sprintf("line %d: description is required", i+1)}
		}
		if li.Quantity <= 0 {
			li.Quantity = 1
		}
		if li.UnitPrice < 0 {
			return nil, &ValidationError{Message: fmt.Sprintf("line %d: unit_price must not be negative", i+1)}
		}
		li.Amount = Round(float64(li.Quantity) * li.UnitPrice)
		subtotal += li.Amount
		lines[i] = li
	}
	sub, vat, total := Totals(subtotal)

	items, err := json.Marshal(lines)
	if err != nil {
		return nil, err
	}

	cust, err := s.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if cust == nil {
		return nil, ErrCustomerNotFound
	}

	now = now.UTC()
	inv := &store.Invoice{
		CustomerID:              in.CustomerID,
		OrderID:                 in.OrderID,
		Status:                  status,
		InvoiceDate:             now.Format(time.DateOnly),
		DueDate:                 now.AddDate(0, 0, InvoiceDueDays).Format(time.DateOnly),
		Subtotal:                sub,
		VATAmount:               vat,
		TotalAmount:             total,
		AmountDue:               total,
		PaymentCollectionMethod: in.PaymentCollectionMethod,
		LineItems:               items,
	}

	// Numbers come from a per-year count; a concurrent insert takes the next one.
	for attempt := 0; attempt < 5; attempt++ {
		n, err := s.CountInvoicesForYear(ctx, now.Year())
		if err != nil {
			return nil, fmt.Errorf("count invoices: %w", err)
		}
		inv.ID = ""
		inv.InvoiceNumber = InvoiceNumber(now.Year(), n+1+attempt)
		err = s.CreateInvoice(ctx, inv)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("create invoice: %w", err)
		}
	}
	return nil, fmt.Errorf("create invoice: could not allocate an invoice number: %w", store.ErrConflict)
}
