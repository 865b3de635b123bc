package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/circletel/circletel/internal/config"
	"github.com/tidwall/gjson"
)

// Email is a single outbound message.
type Email struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// EmailClient sends email through the Resend API.
type EmailClient struct {
	apiKey  string
	baseURL string
	http    *http.Client

	from        string
	financeFrom string
	alertsFrom  string
	financeTo   string
	alertsTo    []string
	siteURL     string
}

// NewEmailClient creates a Resend client. siteURL is used for links in
// operator alerts.
func NewEmailClient(cfg config.EmailConfig, siteURL string, hc *http.Client) *EmailClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.resend.com"
	}
	return &EmailClient{
		apiKey:      cfg.ResendAPIKey,
		baseURL:     base,
		http:        httpClient(hc),
		from:        cfg.From,
		financeFrom: cfg.FinanceFrom,
		alertsFrom:  cfg.AlertsFrom,
		financeTo:   cfg.FinanceTo,
		alertsTo:    cfg.AlertsTo,
		siteURL:     siteURL,
	}
}

// Configured reports whether a Resend API key is set.
func (c *EmailClient) Configured() bool { return c.apiKey != "" }

// Send delivers e and returns the Resend message ID.
func (c *EmailClient) Send(ctx context.Context, e Email) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if len(e.To) == 0 || e.To[0] == "" {
		return "", fmt.Errorf("email %q has no recipient", e.Subject)
	}
	if e.From == "" {
		e.From = c.from
	}
	data, err := postJSON(ctx, c.http, c.baseURL+"/emails", map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, e)
	if err != nil {
		return "", fmt.Errorf("resend: %w", err)
	}
	return gjson.GetBytes(data, "id").String(), nil
}

// SendPaymentReceipt confirms a successful payment to the customer.
func (c *EmailClient) SendPaymentReceipt(ctx context.Context, r Receipt) error {
	html, err := render("receipt", r)
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, Email{
		From:    c.from,
		To:      []string{r.To},
		Subject: "Payment Received - " + r.Reference,
		HTML:    html,
	})
	return err
}

// SendPaymentFailure tells the customer a payment was declined.
func (c *EmailClient) SendPaymentFailure(ctx context.Context, n PaymentNotice) error {
	if n.Reason == "" {
		n.Reason = "Payment was declined"
	}
	html, err := render("failure", n)
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, Email{From: c.from, To: []string{n.To}, Subject: "Payment Failed - " + n.Reference, HTML: html})
	return err
}

// SendRefundNotice confirms a refund to the customer from the finance sender.
func (c *EmailClient) SendRefundNotice(ctx context.Context, n PaymentNotice) error {
	html, err := render("refund", n)
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, Email{From: c.financeFrom, To: []string{n.To}, Subject: "Refund Processed - " + n.Reference, HTML: html})
	return err
}

// SendChargebackAlert warns the finance team about a disputed payment.
func (c *EmailClient) SendChargebackAlert(ctx context.Context, n PaymentNotice) error {
	if n.TransactionID == "" {
		n.TransactionID = "N/A"
	}
	html, err := render("chargeback", n)
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, Email{From: c.alertsFrom, To: []string{c.financeTo}, Subject: "Chargeback Alert - " + n.Reference, HTML: html})
	return err
}

// SendMonitorAlert emails the operators a list of failing checks.
func (c *EmailClient) SendMonitorAlert(ctx context.Context, a MonitorAlert) error {
	if a.DashboardURL == "" {
		a.DashboardURL = strings.TrimRight(c.siteURL, "/") + "/admin/dashboard"
	}
	html, err := render("monitor", a)
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, Email{From: c.alertsFrom, To: c.alertsTo, Subject: a.Subject(), HTML: html})
	return err
}

// SendPayNowInvoice emails an invoice with a NetCash Pay Now link.
func (c *EmailClient) SendPayNowInvoice(ctx context.Context, n PayNowNotice) error {
	html, err := render("paynow", n)
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, Email{
		From:    c.financeFrom,
		To:      []string{n.To},
		Subject: fmt.Sprintf("Invoice %s - R%.2f due %s", n.InvoiceNumber, n.Amount, n.DueDate),
		HTML:    html,
	})
	return err
}
