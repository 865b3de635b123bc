package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AlertClient posts Slack-compatible attachments to an incoming webhook.
type AlertClient struct {
	url  string
	http *http.Client
	now  func() time.Time
}

// NewAlertClient creates an alert client for url. An empty url disables it.
func NewAlertClient(url string, hc *http.Client) *AlertClient {
	return &AlertClient{url: url, http: httpClient(hc), now: time.Now}
}

// Configured reports whether an alert webhook URL is set.
func (c *AlertClient) Configured() bool { return c.url != "" }

type attachmentField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type attachment struct {
	Color  string            `json:"color"`
	Title  string            `json:"title"`
	Fields []attachmentField `json:"fields"`
	Footer string            `json:"footer"`
	TS     int64             `json:"ts"`
}

// Send posts a monitor alert.
func (c *AlertClient) Send(ctx context.Context, a MonitorAlert) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	color := "#f59e0b"
	if a.Status == "critical" || a.Status == "down" {
		color = "#dc2626"
	}
	fields := make([]attachmentField, 0, len(a.Checks))
	for _, ch := range a.Checks {
		fields = append(fields, attachmentField{
			Title: ch.Name,
			Value: fmt.Sprintf("%s (threshold: %s)\n%s", ch.Value, ch.Threshold, ch.Message),
		})
	}
	payload := map[string]any{
		"username":   "CircleTel " + a.Monitor + " Monitor",
		"icon_emoji": ":rotating_light:",
		"attachments": []attachment{{
			Color:  color,
			Title:  fmt.Sprintf("%s Alert: %s", a.Monitor, strings.ToUpper(a.Status)),
			Fields: fields,
			Footer: "CircleTel " + a.Monitor + " Monitoring",
			TS:     c.now().Unix(),
		}},
	}
	if _, err := postJSON(ctx, c.http, c.url, nil, payload); err != nil {
		return fmt.Errorf("alert webhook: %w", err)
	}
	return nil
}
