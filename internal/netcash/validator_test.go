package netcash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNetcashIP(t *testing.T) {
	assert.True(t, IsNetcashIP("127.0.0.1", true))
	assert.True(t, IsNetcashIP("::1", true))
	assert.True(t, IsNetcashIP("1.2.3.4", false))
	assert.True(t, IsNetcashIP("196.33.252.100", true))
	assert.True(t, IsNetcashIP("41.203.154.50", true))
	assert.False(t, IsNetcashIP("1.2.3.4", true))
	assert.False(t, IsNetcashIP("unknown", true))
}

func TestValidateSignature(t *testing.T) {
	const secret = "test-webhook-secret"
	body := []byte(`{"test":"data","amount":"10000"}`)
	sig := Sign(body, secret)

	assert.True(t, ValidateSignature(body, sig, secret))
	assert.True(t, ValidateSignature(body, strings.ToUpper(sig), secret))
	assert.False(t, ValidateSignature(body, "invalid-signature", secret))
	assert.False(t, ValidateSignature(body, Sign(body, "wrong-secret"), secret))
	assert.False(t, ValidateSignature([]byte(`{"test":"data","amount":"99999"}`), sig, secret))
	assert.False(t, ValidateSignature(body, sig, ""))
	assert.False(t, ValidateSignature(body, "", secret))
}

func TestValidateURLEncodedSignature(t *testing.T) {
	const secret = "test-webhook-secret"

	params := map[string]string{"amount": "10000", "reference": "INV-001", "status": "approved"}
	sig := Sign([]byte("amount=10000&reference=INV-001&status=approved"), secret)
	assert.True(t, ValidateURLEncodedSignature(params, sig, secret))

	sorted := map[string]string{"z": "3", "a": "1", "m": "2", "Signature": "ignored"}
	assert.True(t, ValidateURLEncodedSignature(sorted, Sign([]byte("a=1&m=2&z=3"), secret), secret))
}

func TestParsePayloadJSON(t *testing.T) {
	p, err := ParsePayload([]byte(`{"Reference":"INV-001","Status":"Approved","Amount":"10000","TransactionID":"TX-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "INV-001", p.Reference)
	assert.Equal(t, "Approved", p.Status)
	assert.Equal(t, "TX-1", p.TransactionID)
	assert.InDelta(t, 100.0, p.AmountRands(), 0.0001)
	assert.False(t, p.FormEncoded())
}

func TestParsePayloadNumericAmount(t *testing.T) {
	p, err := ParsePayload([]byte(`{"Reference":"INV-001","Status":"Approved","Amount":89900}`))
	require.NoError(t, err)
	assert.Equal(t, "89900", p.Amount)
	assert.InDelta(t, 899.0, p.AmountRands(), 0.0001)
}

func TestParsePayloadForm(t *testing.T) {
	p, err := ParsePayload([]byte("Reference=INV-002&Status=Declined&Amount=5000&ResponseText=Insufficient+funds"))
	require.NoError(t, err)
	assert.True(t, p.FormEncoded())
	assert.Equal(t, "Insufficient funds", p.ResponseText)
	assert.Equal(t, "INV-002", p.Params["Reference"])
}

func TestParsePayloadDerivesStatusFromResponseCode(t *testing.T) {
	for code, want := range map[string]string{"0": "Approved", "1": "Declined", "2": "Cancelled"} {
		p, err := ParsePayload([]byte(`{"Reference":"INV-001","Amount":"100","ResponseCode":"` + code + `"}`))
		require.NoError(t, err, "code %s", code)
		assert.Equal(t, want, p.Status)
	}
}

func TestParsePayloadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", "not valid json", "Invalid JSON payload"},
		{"broken json", `{"Reference":`, "Invalid JSON payload"},
		{"missing reference", `{"Status":"Approved","Amount":"10000"}`, "Missing required field: Reference"},
		{"missing status", `{"Reference":"INV-001","Amount":"10000"}`, "Missing required field: Status"},
		{"missing amount", `{"Reference":"INV-001","Status":"Approved"}`, "Missing required field: Amount"},
		{"non-numeric amount", `{"Reference":"INV-001","Status":"Approved","Amount":"not-a-number"}`, "Invalid amount format"},
		{"negative amount", `{"Reference":"INV-001","Status":"Approved","Amount":"-100"}`, "Invalid amount format"},
		{"nan amount", `{"Reference":"INV-001","Status":"Approved","Amount":"NaN"}`, "Invalid amount format"},
		{"inf amount", `{"Reference":"INV-001","Status":"Approved","Amount":"Inf"}`, "Invalid amount format"},
		{"infinity amount", `{"Reference":"INV-001","Status":"Approved","Amount":"+Infinity"}`, "Invalid amount format"},
		{"hex amount", `{"Reference":"INV-001","Status":"Approved","Amount":"0x1p10"}`, "Invalid amount format"},
		{"exponent amount", `{"Reference":"INV-001","Status":"Approved","Amount":"1e400"}`, "Invalid amount format"},
		{"nan form amount", "Reference=INV-001&Status=Approved&Amount=NaN", "Invalid amount format"},
		{"invalid status", `{"Reference":"INV-001","Status":"InvalidStatus","Amount":"10000"}`, "Invalid status: InvalidStatus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload([]byte(tt.body))
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Errors, tt.want)
		})
	}
}

func TestParsePayloadAcceptsAllStatuses(t *testing.T) {
	for _, status := range []string{"Approved", "Declined", "Cancelled", "Pending", "Failed", "Refunded", "Chargeback"} {
		_, err := ParsePayload([]byte(`{"Reference":"INV-001","Status":"` + status + `","Amount":"10000"}`))
		assert.NoError(t, err, status)
	}
}

func TestIdempotencyKey(t *testing.T) {
	a := &Payload{Reference: "INV-001", Status: "Approved", Amount: "10000"}
	b := &Payload{Reference: "INV-002", Status: "Approved", Amount: "10000"}
	withTx := &Payload{Reference: "INV-001", Status: "Approved", Amount: "10000", TransactionID: "TX-123"}

	key := IdempotencyKey(a)
	assert.Equal(t, key, IdempotencyKey(a))
	assert.NotEqual(t, key, IdempotencyKey(b))
	assert.NotEqual(t, key, IdempotencyKey(withTx))
	assert.Regexp(t, `^[a-f0-9]{64}$`, key)
}

func TestMapStatus(t *testing.T) {
	cases := map[string]string{
		"Approved":         "completed",
		"Declined":         "failed",
		"Cancelled":        "cancelled",
		"Pending":          "pending",
		"Failed":           "failed",
		"Refunded":         "refunded",
		"Chargeback":       "chargeback",
		"SomeRandomStatus": "unknown",
	}
	for in, want := range cases {
		assert.Equal(t, want, MapStatus(in), in)
	}
}

func TestWebhookType(t *testing.T) {
	cases := map[string]string{
		"Approved":   TypePaymentSuccess,
		"Declined":   TypePaymentFailure,
		"Failed":     TypePaymentFailure,
		"Cancelled":  TypePaymentFailure,
		"Pending":    TypePaymentPending,
		"Refunded":   TypeRefund,
		"Chargeback": TypeChargeback,
		"Other":      TypeNotify,
	}
	for status, want := range cases {
		assert.Equal(t, want, WebhookType(&Payload{Status: status}), status)
	}
}

func TestExtractOrderID(t *testing.T) {
	const id = "550e8400-e29b-41d4-a716-446655440000"
	assert.Equal(t, id, ExtractOrderID(id))
	assert.Equal(t, id, ExtractOrderID("ORDER-"+id+"-X"))
	assert.Equal(t, id, ExtractOrderID(strings.ToUpper(id)))
	assert.Empty(t, ExtractOrderID("INV-2025-001"))
}

func TestInvoiceReference(t *testing.T) {
	assert.Equal(t, "INV-2025-001", InvoiceReference(&Payload{Reference: "INV-2025-001"}))
	assert.Equal(t, "INV-2025-002", InvoiceReference(&Payload{Reference: "ORD-1", Extra1: "INV-2025-002"}))
	assert.Empty(t, InvoiceReference(&Payload{Reference: "ORD-1"}))
}

func TestSanitizeForLogging(t *testing.T) {
	p := &Payload{Reference: "INV-001", CardNumber: "4111111111111111", Params: map[string]string{"CardNumber": "4111111111111111"}}
	out := SanitizeForLogging(p)

	assert.Equal(t, "************1111", out.CardNumber)
	assert.Equal(t, "INV-001", out.Reference)
	assert.Nil(t, out.Params)
	assert.Equal(t, "4111111111111111", p.CardNumber, "original must not change")
}
