package zoho

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// InvoiceApplication applies part of a payment to one invoice.
type InvoiceApplication struct {
	InvoiceID     string  `json:"invoice_id"`
	AmountApplied float64 `json:"amount_applied"`
}

// PaymentRequest records a customer payment in Zoho Billing.
type PaymentRequest struct {
	CustomerID      string               `json:"customer_id"`
	PaymentMode     string               `json:"payment_mode"`
	Amount          float64              `json:"amount"`
	Date            string               `json:"date,omitempty"`
	ReferenceNumber string               `json:"reference_number,omitempty"`
	Description     string               `json:"description,omitempty"`
	Invoices        []InvoiceApplication `json:"invoices"`
}

// Payment is a recorded Zoho payment.
type Payment struct {
	PaymentID     string  `json:"payment_id"`
	PaymentNumber string  `json:"payment_number"`
	Amount        float64 `json:"amount"`
}

// Invoice is the subset of a Zoho invoice the API reads.
type Invoice struct {
	InvoiceID     string  `json:"invoice_id"`
	InvoiceNumber string  `json:"invoice_number"`
	Status        string  `json:"status"`
	Total         float64 `json:"total"`
	Balance       float64 `json:"balance"`
}

// RecordPayment posts a payment and returns the created record.
func (c *Client) RecordPayment(ctx context.Context, p PaymentRequest) (*Payment, error) {
	data, err := c.do(ctx, http.MethodPost, "/payments", p)
	if err != nil {
		return nil, err
	}
	pay := gjson.GetBytes(data, "payment")
	if !pay.Exists() {
		return nil, errors.New("Failed to record payment")
	}
	out := &Payment{
		PaymentID:     pay.Get("payment_id").String(),
		PaymentNumber: pay.Get("payment_number").String(),
		Amount:        pay.Get("amount").Float(),
	}
	c.logger.Info("payment recorded", "payment_id", out.PaymentID, "amount", out.Amount, "invoices", len(p.Invoices))
	return out, nil
}

// GetInvoice fetches an invoice by ID.
func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	data, err := c.do(ctx, http.MethodGet, "/invoices/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	inv := gjson.GetBytes(data, "invoice")
	if !inv.Exists() {
		return nil, fmt.Errorf("zoho invoice %s not found", id)
	}
	return &Invoice{
		InvoiceID:     inv.Get("invoice_id").String(),
		InvoiceNumber: inv.Get("invoice_number").String(),
		Status:        inv.Get("status").String(),
		Total:         inv.Get("total").Float(),
		Balance:       inv.Get("balance").Float(),
	}, nil
}
