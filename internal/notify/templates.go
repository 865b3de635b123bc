package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// Receipt is the content of a payment confirmation email.
type Receipt struct {
	To            string
	CustomerName  string
	Reference     string
	InvoiceNumber string
	PackageName   string
	Amount        float64
	AmountDue     float64
	TransactionID string
	PaidAt        time.Time
}

// PaymentNotice covers failure, refund and chargeback messages.
type PaymentNotice struct {
	To            string
	CustomerName  string
	Reference     string
	OrderNumber   string
	Amount        float64
	TransactionID string
	Reason        string
}

// AlertCheck is one failing check in a monitor alert.
type AlertCheck struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Threshold string `json:"threshold"`
	Message   string `json:"message"`
}

// MonitorAlert is an operator alert raised by a scheduled monitor.
type MonitorAlert struct {
	Monitor      string
	Status       string
	Checks       []AlertCheck
	DashboardURL string
}

// Subject renders the alert subject line.
func (a MonitorAlert) Subject() string {
	return fmt.Sprintf("[ALERT] %s %s - %d issue(s) detected", a.Monitor, strings.ToUpper(a.Status), len(a.Checks))
}

// PayNowNotice is an invoice email with a Pay Now link.
type PayNowNotice struct {
	To               string
	CustomerName     string
	InvoiceNumber    string
	Amount           float64
	DueDate          string
	PayURL           string
	EmandateReminder bool
}

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"rand":  func(v float64) string { return fmt.Sprintf("R%.2f", v) },
	"upper": strings.ToUpper,
	"date":  func(t time.Time) string { return t.Format("02 Jan 2006 15:04") },
}).Parse(`
{{define "header"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">{{end}}
{{define "footer"}}<hr style="border: none; border-top: 1px solid #ddd; margin: 30px 0;">
<p style="font-size: 12px; color: #666;">This is an automated message from CircleTel. Please do not reply.</p></div>{{end}}

{{define "receipt"}}{{template "header"}}
<h1 style="color: #F5831F;">Thank you for your payment</h1>
<p>Dear {{.CustomerName}},</p>
<p>We have received your payment of <strong>{{rand .Amount}}</strong>.</p>
<div style="background-color: #f5f5f5; padding: 20px; border-radius: 8px;">
<p><strong>Reference:</strong> {{.Reference}}</p>
{{if .InvoiceNumber}}<p><strong>Invoice:</strong> {{.InvoiceNumber}}</p>
<p><strong>Balance outstanding:</strong> {{rand .AmountDue}}</p>{{end}}
{{if .PackageName}}<p><strong>Package:</strong> {{.PackageName}}</p>{{end}}
{{if .TransactionID}}<p><strong>Transaction ID:</strong> {{.TransactionID}}</p>{{end}}
<p><strong>Date:</strong> {{date .PaidAt}}</p>
</div>
<p>Questions? Email support@circletel.co.za or call 0860 CIRCLE (247 253).</p>
{{template "footer"}}{{end}}

{{define "failure"}}{{template "header"}}
<h1 style="color: #dc2626;">Payment failed</h1>
<p>Dear {{.CustomerName}},</p>
<p>Your payment for <strong>{{.Reference}}</strong> could not be processed: {{.Reason}}.</p>
<p>Please try again or use a different payment method.</p>
{{template "footer"}}{{end}}

{{define "refund"}}{{template "header"}}
<h1 style="color: #F5831F;">Refund processed</h1>
<p>Dear {{.CustomerName}},</p>
<p>A refund of <strong>{{rand .Amount}}</strong> for <strong>{{.Reference}}</strong> has been processed.
Funds usually reflect within 5 to 7 business days.</p>
{{template "footer"}}{{end}}

{{define "chargeback"}}{{template "header"}}
<h1 style="color: #dc2626;">Chargeback received</h1>
<p><strong>Reference:</strong> {{.Reference}}</p>
{{if .OrderNumber}}<p><strong>Order:</strong> {{.OrderNumber}}</p>{{end}}
<p><strong>Customer:</strong> {{.CustomerName}}</p>
<p><strong>Amount:</strong> {{rand .Amount}}</p>
<p><strong>Transaction ID:</strong> {{.TransactionID}}</p>
<p>The order has been marked as disputed. Please review with NetCash.</p>
{{template "footer"}}{{end}}

{{define "monitor"}}{{template "header"}}
<h1 style="color: #dc2626;">{{.Monitor}} {{upper .Status}}</h1>
<table style="width: 100%; border-collapse: collapse;">
<tr><th align="left">Check</th><th align="left">Value</th><th align="left">Threshold</th><th align="left">Detail</th></tr>
{{range .Checks}}<tr><td>{{.Name}}</td><td>{{.Value}}</td><td>{{.Threshold}}</td><td>{{.Message}}</td></tr>
{{end}}</table>
<p style="margin-top: 20px;"><a href="{{.DashboardURL}}">View Admin Dashboard</a></p>
{{template "footer"}}{{end}}

{{define "paynow"}}{{template "header"}}
<h1 style="color: #F5831F;">Invoice {{.InvoiceNumber}}</h1>
<p>Dear {{.CustomerName}},</p>
<p>Your invoice of <strong>{{rand .Amount}}</strong> is due on {{.DueDate}}.</p>
<p><a href="{{.PayURL}}" style="background-color: #F5831F; color: white; padding: 10px 20px; border-radius: 4px; text-decoration: none;">Pay Now</a></p>
{{if .EmandateReminder}}<p>Your debit order mandate is still awaiting your signature. Once it is signed, future invoices will be collected automatically.</p>{{end}}
{{template "footer"}}{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", name, err)
	}
	return buf.String(), nil
}
