package netcash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
	"regexp"
	"sort"
	"strings"
)

var netcashRanges = []netip.Prefix{
	netip.MustParsePrefix("196.33.252.0/24"),
	netip.MustParsePrefix("41.203.154.0/24"),
}

var uuidPattern = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// IsNetcashIP reports whether a webhook source address is allowed. Loopback is
// always allowed; outside production every address is.
func IsNetcashIP(ip string, production bool) bool {
	if ip == "127.0.0.1" || ip == "::1" {
		return true
	}
	if !production {
		return true
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range netcashRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Sign returns the hex HMAC-SHA256 of data under secret.
func Sign(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks a hex HMAC-SHA256 signature of the raw body.
func ValidateSignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// ValidateURLEncodedSignature checks a signature computed over the form
// parameters sorted by key and joined as k=v&k=v. Any signature parameter is
// excluded from the signed string.
func ValidateURLEncodedSignature(params map[string]string, signature, secret string) bool {
	return ValidateSignature([]byte(canonicalParams(params)), signature, secret)
}

func canonicalParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.EqualFold(k, "signature") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// IdempotencyKey derives a stable 64-character key for a notification.
func IdempotencyKey(p *Payload) string {
	parts := []string{p.Reference, p.Status, p.Amount}
	if p.TransactionID != "" {
		parts = append(parts, p.TransactionID)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// MapStatus converts a NetCash status to a payment_transactions status.
func MapStatus(status string) string {
	switch status {
	case "Approved":
		return "completed"
	case "Declined", "Failed":
		return "failed"
	case "Cancelled":
		return "cancelled"
	case "Pending":
		return "pending"
	case "Refunded":
		return "refunded"
	case "Chargeback":
		return "chargeback"
	default:
		return "unknown"
	}
}

// Webhook types routed by the billing processor.
const (
	TypePaymentSuccess = "payment_success"
	TypePaymentFailure = "payment_failure"
	TypePaymentPending = "payment_pending"
	TypeRefund         = "refund"
	TypeChargeback     = "chargeback"
	TypeNotify         = "notify"
)

// WebhookType classifies a notification by its status.
func WebhookType(p *Payload) string {
	switch p.Status {
	case "Approved":
		return TypePaymentSuccess
	case "Declined", "Failed", "Cancelled":
		return TypePaymentFailure
	case "Pending":
		return TypePaymentPending
	case "Refunded":
		return TypeRefund
	case "Chargeback":
		return TypeChargeback
	default:
		return TypeNotify
	}
}

// ExtractOrderID returns the first UUID in a payment reference, lower-cased,
// or "" when there is none.
func ExtractOrderID(reference string) string {
	return strings.ToLower(uuidPattern.FindString(reference))
}

// InvoiceReference returns the invoice number a payment is for, taken from
// Reference or Extra1.
func InvoiceReference(p *Payload) string {
	switch {
	case strings.HasPrefix(p.Reference, "INV-"):
		return p.Reference
	case strings.HasPrefix(p.Extra1, "INV-"):
		return p.Extra1
	default:
		return ""
	}
}

// SanitizeForLogging returns a copy of p with the card number masked.
func SanitizeForLogging(p *Payload) Payload {
	out := *p
	out.Params = nil
	if n := len(out.CardNumber); n > 0 {
		last := out.CardNumber
		if n > 4 {
			last = out.CardNumber[n-4:]
		}
		out.CardNumber = strings.Repeat("*", 12) + last
	}
	return out
}
