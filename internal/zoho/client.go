// Package zoho is a client for the Zoho Billing API used to mirror NetCash
// payments into the accounting ledger.
package zoho

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/circletel/circletel/internal/config"
	"github.com/tidwall/gjson"
)

// ErrNotConfigured is returned when Zoho credentials are missing.
var ErrNotConfigured = errors.New("zoho: not configured")

var billingURLs = map[string]string{
	"US": "https://www.zohoapis.com/billing/v1",
	"EU": "https://www.zohoapis.eu/billing/v1",
	"IN": "https://www.zohoapis.in/billing/v1",
	"AU": "https://www.zohoapis.com.au/billing/v1",
	"CN": "https://www.zohoapis.com.cn/billing/v1",
}

var accountsURLs = map[string]string{
	"US": "https://accounts.zoho.com",
	"EU": "https://accounts.zoho.eu",
	"IN": "https://accounts.zoho.in",
	"AU": "https://accounts.zoho.com.au",
	"CN": "https://accounts.zoho.com.cn",
}

// APIError is an error response from Zoho Billing.
type APIError struct {
	StatusCode int
	Code       int64
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Zoho Billing API error: %s (%d)", e.Message, e.Code)
}

// Client talks to Zoho Billing with a refresh-token OAuth grant.
type Client struct {
	cfg         config.ZohoConfig
	accountsURL string
	billingURL  string
	http        *http.Client
	logger      *slog.Logger

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
	now         func() time.Time
}

// New creates a Zoho Billing client. URLs default by region.
func New(cfg config.ZohoConfig, hc *http.Client, logger *slog.Logger) *Client {
	region := strings.ToUpper(cfg.Region)
	if _, ok := billingURLs[region]; !ok {
		region = "US"
	}
	c := &Client{
		cfg:         cfg,
		accountsURL: strings.TrimRight(cfg.AccountsURL, "/"),
		billingURL:  strings.TrimRight(cfg.BillingURL, "/"),
		http:        hc,
		logger:      logger.With("component", "zoho"),
		now:         time.Now,
	}
	if c.accountsURL == "" {
		c.accountsURL = accountsURLs[region]
	}
	if c.billingURL == "" {
		c.billingURL = billingURLs[region]
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// Configured reports whether credentials and an organisation are set.
func (c *Client) Configured() bool { return c.cfg.Configured() }

// token returns a cached access token, refreshing it one minute before expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.expiresAt.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {c.cfg.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL+"/oauth/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("zoho token refresh: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	doc := gjson.ParseBytes(data)
	if e := doc.Get("error"); e.Exists() {
		return "", fmt.Errorf("zoho token refresh: %s", e.String())
	}
	tok := doc.Get("access_token").String()
	if resp.StatusCode != http.StatusOK || tok == "" {
		return "", fmt.Errorf("zoho token refresh: unexpected response %d", resp.StatusCode)
	}
	ttl := doc.Get("expires_in").Int()
	if ttl <= 0 {
		ttl = 3600
	}
	c.accessToken = tok
	c.expiresAt = c.now().Add(time.Duration(ttl) * time.Second)
	c.logger.Debug("access token refreshed", "expires_in", ttl)
	return tok, nil
}

// do sends a Billing API request and returns the response body.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	target := c.billingURL + endpoint + sep + "organization_id=" + url.QueryEscape(c.cfg.OrgID)

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", endpoint, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+tok)
	req.Header.Set("X-com-zoho-subscriptions-organizationid", c.cfg.OrgID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zoho %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	doc := gjson.ParseBytes(data)
	code := doc.Get("code").Int()
	if resp.StatusCode < 200 || resp.StatusCode > 299 || code != 0 {
		msg := doc.Get("message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Code: code, Message: msg}
	}
	return data, nil
}

// Ping verifies credentials by fetching one customer record.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/customers?per_page=1", nil)
	return err
}
