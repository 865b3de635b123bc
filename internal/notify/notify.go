// Package notify sends customer and operator notifications: Resend email,
// Clickatell SMS and Slack-compatible alert webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// ErrNotConfigured is returned by a client whose credentials are missing.
var ErrNotConfigured = errors.New("notify: not configured")

const defaultTimeout = 15 * time.Second

// postJSON sends v as JSON and returns the response body. Non-2xx responses
// become errors carrying the provider's message when it has one.
func postJSON(ctx context.Context, hc *http.Client, url string, headers map[string]string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := resp.Status
		for _, path := range []string{"message", "error.description", "error"} {
			if v := gjson.GetBytes(data, path); v.Exists() && v.Type == gjson.String {
				msg = v.String()
				break
			}
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}
	return data, nil
}

// HTTPError is a rejected provider request.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

func httpClient(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	return &http.Client{Timeout: defaultTimeout}
}
