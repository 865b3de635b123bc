// Package netcash implements the NetCash payment integration: webhook
// payload validation and the NIWS SOAP batch services.
package netcash

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNotConfigured is returned when a NetCash service key is missing.
var ErrNotConfigured = errors.New("netcash: service not configured")

// Statuses accepted in a payment notification.
var validStatuses = map[string]bool{
	"Approved":   true,
	"Declined":   true,
	"Cancelled":  true,
	"Pending":    true,
	"Failed":     true,
	"Refunded":   true,
	"Chargeback": true,
}

// amountPattern is a plain non-negative decimal. It rejects the NaN, Inf, hex
// and exponent forms strconv.ParseFloat would accept.
var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Payload is a NetCash payment notification. Amount is in cents.
type Payload struct {
	TransactionID   string `json:"TransactionID,omitempty"`
	Reference       string `json:"Reference"`
	Status          string `json:"Status"`
	Amount          string `json:"Amount"`
	ResponseCode    string `json:"ResponseCode,omitempty"`
	ResponseText    string `json:"ResponseText,omitempty"`
	StatusText      string `json:"StatusText,omitempty"`
	Method          string `json:"Method,omitempty"`
	CardNumber      string `json:"CardNumber,omitempty"`
	RequestTrace    string `json:"RequestTrace,omitempty"`
	TransactionDate string `json:"TransactionDate,omitempty"`
	Extra1          string `json:"Extra1,omitempty"`
	Extra2          string `json:"Extra2,omitempty"`
	Extra3          string `json:"Extra3,omitempty"`

	// Params holds the raw fields of a form-encoded postback.
	Params map[string]string `json:"-"`
}

// AmountRands converts the cents amount to rand.
func (p *Payload) AmountRands() float64 {
	v, err := strconv.ParseFloat(p.Amount, 64)
	if err != nil {
		return 0
	}
	return v / 100
}

// FormEncoded reports whether the payload arrived as URL-encoded form data.
func (p *Payload) FormEncoded() bool { return p.Params != nil }

// ValidationError lists every problem found in a payload.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Errors, "; ")
}

var payloadFields = []string{
	"TransactionID", "Reference", "Status", "Amount", "ResponseCode", "ResponseText",
	"StatusText", "Method", "CardNumber", "RequestTrace", "TransactionDate",
	"Extra1", "Extra2", "Extra3",
}

// ParsePayload decodes a JSON or URL-encoded notification and validates the
// required fields. The returned error is a *ValidationError.
func ParsePayload(raw []byte) (*Payload, error) {
	fields, params, ok := decodeFields(raw)
	if !ok {
		return nil, &ValidationError{Errors: []string{"Invalid JSON payload"}}
	}

	p := &Payload{
		TransactionID:   fields["TransactionID"],
		Reference:       fields["Reference"],
		Status:          fields["Status"],
		Amount:          fields["Amount"],
		ResponseCode:    fields["ResponseCode"],
		ResponseText:    fields["ResponseText"],
		StatusText:      fields["StatusText"],
		Method:          fields["Method"],
		CardNumber:      fields["CardNumber"],
		RequestTrace:    fields["RequestTrace"],
		TransactionDate: fields["TransactionDate"],
		Extra1:          fields["Extra1"],
		Extra2:          fields["Extra2"],
		Extra3:          fields["Extra3"],
		Params:          params,
	}
	if p.Status == "" && p.ResponseCode != "" {
		p.Status = statusFromResponseCode(p.ResponseCode)
	}

	var errs []string
	for _, f := range []struct{ name, value string }{
		{"Reference", p.Reference},
		{"Status", p.Status},
		{"Amount", p.Amount},
	} {
		if f.value == "" {
			errs = append(errs, "Missing required field: "+f.name)
		}
	}
	if p.Amount != "" {
		if !amountPattern.MatchString(p.Amount) {
			errs = append(errs, "Invalid amount format")
		}
	}
	if p.Status != "" && !validStatuses[p.Status] {
		errs = append(errs, fmt.Sprintf("Invalid status: %s", p.Status))
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return p, nil
}

// decodeFields extracts the known payload fields. params is non-nil only for
// form-encoded bodies.
func decodeFields(raw []byte) (fields, params map[string]string, ok bool) {
	body := bytes.TrimSpace(raw)
	fields = make(map[string]string, len(payloadFields))

	if len(body) > 0 && body[0] == '{' {
		if !gjson.ValidBytes(body) {
			return nil, nil, false
		}
		doc := gjson.ParseBytes(body)
		for _, name := range payloadFields {
			if v := doc.Get(name); v.Exists() && v.Type != gjson.Null {
				fields[name] = strings.TrimSpace(v.String())
			}
		}
		return fields, nil, true
	}

	if !bytes.Contains(body, []byte("=")) {
		return nil, nil, false
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, nil, false
	}
	params = make(map[string]string, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}
	for _, name := range payloadFields {
		if v, found := params[name]; found {
			fields[name] = strings.TrimSpace(v)
		}
	}
	return fields, params, true
}

func statusFromResponseCode(code string) string {
	switch code {
	case "0":
		return "Approved"
	case "1":
		return "Declined"
	case "2":
		return "Cancelled"
	default:
		return ""
	}
}
