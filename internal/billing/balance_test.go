package billing

import (
	"testing"
	"time"

	"github.com/circletel/circletel/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPayment(t *testing.T) {
	at := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		total      float64
		paid       float64
		payment    float64
		wantPaid   float64
		wantDue    float64
		wantStatus string
	}{
		{"full payment", 899, 0, 899, 899, 0, InvoicePaid},
		{"partial payment", 899, 0, 400, 400, 499, InvoicePartial},
		{"completes partial", 899, 400, 499, 899, 0, InvoicePaid},
		{"overpayment floors due at zero", 899, 0, 1000, 1000, 0, InvoicePaid},
		{"cent rounding", 100.10, 0.05, 0.02, 0.07, 100.03, InvoicePartial},
		{"float noise", 0.3, 0.1, 0.2, 0.3, 0, InvoicePaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &store.Invoice{TotalAmount: tt.total, AmountPaid: tt.paid}
			u := ApplyPayment(inv, tt.payment, at)
			assert.InDelta(t, tt.wantPaid, u.AmountPaid, 0.0001)
			assert.InDelta(t, tt.wantDue, u.AmountDue, 0.0001)
			assert.Equal(t, tt.wantStatus, u.Status)
			if tt.wantStatus == InvoicePaid {
				require.NotNil(t, u.PaidAt)
				assert.True(t, u.PaidAt.Equal(at))
			} else {
				assert.Nil(t, u.PaidAt)
			}
		})
	}
}

func TestTotals(t *testing.T) {
	sub, vat, total := Totals(781.74)
	assert.Equal(t, 781.74, sub)
	assert.Equal(t, 117.26, vat)
	assert.Equal(t, 899.0, total)
}

func TestInvoiceNumber(t *testing.T) {
	assert.Equal(t, "INV-2025-001", InvoiceNumber(2025, 1))
	assert.Equal(t, "INV-2025-1234", InvoiceNumber(2025, 1234))
}
