package notify

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/circletel/circletel/internal/config"
	"github.com/tidwall/gjson"
)

// SMSClient sends text messages through the Clickatell platform API.
type SMSClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewSMSClient creates a Clickatell client.
func NewSMSClient(cfg config.SMSConfig, hc *http.Client) *SMSClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://platform.clickatell.com"
	}
	return &SMSClient{apiKey: cfg.ClickatellAPIKey, baseURL: base, http: httpClient(hc)}
}

// Configured reports whether a Clickatell API key is set.
func (c *SMSClient) Configured() bool { return c.apiKey != "" }

type smsMessage struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Content string `json:"content"`
}

// Send delivers content to a South African mobile number and returns the
// Clickatell message ID.
func (c *SMSClient) Send(ctx context.Context, to, content string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	msisdn := InternationalNumber(to)
	if msisdn == "" {
		return "", fmt.Errorf("clickatell: invalid mobile number %q", to)
	}

	data, err := postJSON(ctx, c.http, c.baseURL+"/messages", map[string]string{
		"Authorization": c.apiKey,
	}, map[string]any{
		"messages": []smsMessage{{Channel: "sms", To: msisdn, Content: content}},
	})
	if err != nil {
		return "", fmt.Errorf("clickatell: %w", err)
	}
	msg := gjson.GetBytes(data, "messages.0")
	if !msg.Get("accepted").Bool() {
		reason := msg.Get("error.description").String()
		if reason == "" {
			reason = msg.Get("error").String()
		}
		return "", fmt.Errorf("clickatell: message rejected: %s", reason)
	}
	return msg.Get("apiMessageId").String(), nil
}

var digitsOnly = regexp.MustCompile(`\D`)

// InternationalNumber converts a local 0XX number to 27XX form.
func InternationalNumber(phone string) string {
	d := digitsOnly.ReplaceAllString(phone, "")
	switch {
	case strings.HasPrefix(d, "27") && len(d) == 11:
		return d
	case strings.HasPrefix(d, "0") && len(d) == 10:
		return "27" + d[1:]
	default:
		return ""
	}
}
