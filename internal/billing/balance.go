// Package billing reconciles NetCash payment notifications against orders and
// invoices and fans the outcome out to email, Zoho Billing and the audit trail.
package billing

import (
	"fmt"
	"math"
	"time"

	"github.com/circletel/circletel/internal/store"
)

// VATRate is the South African VAT rate applied to invoices and quotes.
const VATRate = 0.15

// Invoice statuses written by payment reconciliation.
const (
	InvoicePaid    = "paid"
	InvoicePartial = "partial"
)

// Round rounds a rand amount to cents.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}

// ApplyPayment computes the invoice balance after a payment of amount rand.
// The invoice is paid exactly when nothing remains due.
func ApplyPayment(inv *store.Invoice, amount float64, at time.Time) store.InvoicePaymentUpdate {
	paid := Round(inv.AmountPaid + amount)
	due := Round(math.Max(0, inv.TotalAmount-paid))
	u := store.InvoicePaymentUpdate{AmountPaid: paid, AmountDue: due, Status: InvoicePartial}
	if due <= 0 {
		u.Status = InvoicePaid
		t := at.UTC()
		u.PaidAt = &t
	}
	return u
}

// Totals splits a VAT-exclusive subtotal into VAT and total, rounded to cents.
func Totals(subtotal float64) (sub, vat, total float64) {
	sub = Round(subtotal)
	vat = Round(sub * VATRate)
	return sub, vat, Round(sub + vat)
}

// InvoiceNumber formats the n-th invoice of a year as INV-YYYY-NNN.
func InvoiceNumber(year, n int) string {
	return fmt.Sprintf("INV-%d-%03d", year, n)
}
