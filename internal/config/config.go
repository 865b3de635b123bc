// Package config handles CircleTel API configuration loading and validation.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// knownWeakSecrets is a blocklist of secrets that must never be used in production.
var knownWeakSecrets = map[string]bool{
	"super-secret-jwt-token-with-at-least-32-characters-long": true,
	"changeme": true,
	"secret":   true,
}

// GenerateRandomSecret returns a cryptographically random 64-character hex string.
func GenerateRandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Config is the top-level service configuration.
type Config struct {
	Environment  string             `json:"environment,omitempty"` // "development" (default) or "production"
	Server       ServerConfig       `json:"server"`
	Auth         AuthConfig         `json:"auth"`
	Storage      StorageConfig      `json:"storage"`
	Logging      LoggingConfig      `json:"logging"`
	RateLimit    RateLimitConfig    `json:"rate_limit,omitempty"`
	NetCash      NetCashConfig      `json:"netcash"`
	Email        EmailConfig        `json:"email,omitempty"`
	SMS          SMSConfig          `json:"sms,omitempty"`
	Zoho         ZohoConfig         `json:"zoho,omitempty"`
	Didit        DiditConfig        `json:"didit,omitempty"`
	Alerts       AlertsConfig       `json:"alerts,omitempty"`
	Blob         BlobConfig         `json:"blob,omitempty"`
	Scheduler    SchedulerConfig    `json:"scheduler,omitempty"`
	Integrations IntegrationsConfig `json:"integrations,omitempty"`
	Monitor      MonitorConfig      `json:"monitor,omitempty"`
	Webhooks     WebhookConfig      `json:"webhooks,omitempty"`
}

// Production reports whether the service runs with production safeguards.
func (c *Config) Production() bool { return c.Environment == "production" }

// ServerConfig defines the listener settings.
type ServerConfig struct {
	Addr           string   `json:"addr"` // e.g. ":8080"
	TLSCert        string   `json:"tls_cert,omitempty"`
	TLSKey         string   `json:"tls_key,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`  // CORS origins; default ["*"]
	MaxBodyBytes   int64    `json:"max_body_bytes,omitempty"`   // default 1MB
	MaxUploadBytes int64    `json:"max_upload_bytes,omitempty"` // KYC documents; default 10MB
	BaseURL        string   `json:"base_url,omitempty"`         // public site URL used in emails
	TrustedProxies []string `json:"trusted_proxies,omitempty"`  // CIDRs or IPs whose forwarding headers are honoured
}

// TrustedProxyPrefixes parses TrustedProxies. A bare IP is a single-address
// prefix.
func (c ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, v := range c.TrustedProxies {
		if p, err := netip.ParsePrefix(v); err == nil {
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: invalid address %q", v)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// AuthConfig defines session-token and cron authentication.
type AuthConfig struct {
	Provider          string `json:"provider,omitempty"` // "supabase" (default) or "jwks"
	SupabaseURL       string `json:"supabase_url,omitempty"`
	SupabaseJWTSecret string `json:"supabase_jwt_secret,omitempty"`
	Audience          string `json:"audience,omitempty"` // default "authenticated"
	CronSecret        string `json:"cron_secret,omitempty"`
	CronSecretHash    string `json:"cron_secret_hash,omitempty"` // bcrypt hash alternative to cron_secret
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Driver string `json:"driver"` // "sqlite" (default) or "postgres"
	DSN    string `json:"dsn"`    // e.g. "circletel.db", ":memory:" or a postgres URL
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"` // "json" or "text"
}

// RateLimitConfig defines rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64  `json:"requests_per_second,omitempty"` // default 10
	Burst             int      `json:"burst,omitempty"`               // default 20
	WebhookLimit      int      `json:"webhook_limit,omitempty"`       // default 100 per window
	WebhookWindow     Duration `json:"webhook_window,omitempty"`      // default 60s
	RedisAddr         string   `json:"redis_addr,omitempty"`          // shared webhook window across instances
	RedisPassword     string   `json:"redis_password,omitempty"`
}

// NetCashConfig holds the NetCash merchant service keys.
type NetCashConfig struct {
	WebhookSecret     string `json:"webhook_secret,omitempty"`
	ServiceKey        string `json:"service_key,omitempty"`         // debit order service key
	PCIVaultKey       string `json:"pci_vault_key,omitempty"`       // credit card tokenisation vault
	SoftwareVendorKey string `json:"software_vendor_key,omitempty"` // issued per integrator
	WSURL             string `json:"ws_url,omitempty"`
	PayNowURL         string `json:"paynow_url,omitempty"`
	PayNowServiceKey  string `json:"paynow_service_key,omitempty"`
	AccountReference  string `json:"account_reference_prefix,omitempty"` // default "CT-"
}

// EmailConfig configures the Resend email client.
type EmailConfig struct {
	ResendAPIKey string   `json:"resend_api_key,omitempty"`
	BaseURL      string   `json:"base_url,omitempty"`     // default https://api.resend.com
	From         string   `json:"from,omitempty"`         // default "CircleTel <orders@notifications.circletelsa.co.za>"
	FinanceFrom  string   `json:"finance_from,omitempty"` // default "CircleTel Finance <finance@notifications.circletelsa.co.za>"
	AlertsFrom   string   `json:"alerts_from,omitempty"`
	FinanceTo    string   `json:"finance_to,omitempty"` // chargeback alerts
	AlertsTo     []string `json:"alerts_to,omitempty"`
}

// SMSConfig configures the Clickatell SMS client.
type SMSConfig struct {
	ClickatellAPIKey string `json:"clickatell_api_key,omitempty"`
	BaseURL          string `json:"base_url,omitempty"` // default https://platform.clickatell.com
}

// ZohoConfig configures Zoho Billing OAuth.
type ZohoConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	OrgID        string `json:"org_id,omitempty"`
	Region       string `json:"region,omitempty"` // US (default), EU, IN, AU, CN
	AccountsURL  string `json:"accounts_url,omitempty"`
	BillingURL   string `json:"billing_url,omitempty"`
}

// Configured reports whether Zoho credentials are present.
func (z ZohoConfig) Configured() bool {
	return z.ClientID != "" && z.ClientSecret != "" && z.RefreshToken != "" && z.OrgID != ""
}

// DiditConfig configures the Didit KYC webhook.
type DiditConfig struct {
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// AlertsConfig configures the chat alert webhook (Slack-compatible).
type AlertsConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"`
}

// BlobConfig selects where KYC documents are stored.
type BlobConfig struct {
	Driver        string   `json:"driver,omitempty"` // "fs" (default), "s3" or "memory"
	Path          string   `json:"path,omitempty"`   // fs root; default "./circletel-files"
	Bucket        string   `json:"bucket,omitempty"`
	Region        string   `json:"region,omitempty"`
	Endpoint      string   `json:"endpoint,omitempty"` // S3-compatible endpoint (e.g. Supabase storage)
	PathStyle     bool     `json:"path_style,omitempty"`
	AccessKey     string   `json:"access_key,omitempty"`
	SecretKey     string   `json:"secret_key,omitempty"`
	PresignTTL    Duration `json:"presign_ttl,omitempty"`    // default 15m
	PublicURL     string   `json:"public_url,omitempty"`     // default http://localhost<server.addr>/api/files
	SigningSecret string   `json:"signing_secret,omitempty"` // default auth.supabase_jwt_secret
}

// SchedulerConfig enables the in-process cron trigger. Disabled by default.
type SchedulerConfig struct {
	Enabled  bool              `json:"enabled,omitempty"`
	Timezone string            `json:"timezone,omitempty"` // default "Africa/Johannesburg"
	Jobs     map[string]string `json:"jobs,omitempty"`     // job name -> cron spec override
}

// IntegrationsConfig configures integration health monitoring.
type IntegrationsConfig struct {
	RegistryFile  string   `json:"registry_file,omitempty"`  // YAML seed for integration_registry
	ProbeTimeout  Duration `json:"probe_timeout,omitempty"`  // default 10s
	SlowThreshold Duration `json:"slow_threshold,omitempty"` // default 3s
	AlertAfter    int      `json:"alert_after,omitempty"`    // consecutive failures; default 3
}

// MonitorConfig holds payment-sync monitor thresholds.
type MonitorConfig struct {
	FailedSyncWarning  int      `json:"failed_sync_warning,omitempty"`  // default 0 (warn when > 0)
	FailedSyncCritical int      `json:"failed_sync_critical,omitempty"` // default 5
	SuccessRateWarning int      `json:"success_rate_warning,omitempty"` // default 95
	StalePendingAge    Duration `json:"stale_pending_age,omitempty"`    // default 4h
	Window             Duration `json:"window,omitempty"`               // default 24h
}

// WebhookConfig controls webhook reprocessing.
type WebhookConfig struct {
	MaxRetries int `json:"max_retries,omitempty"` // default 3
}

// Duration is a JSON-friendly time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val) * time.Second
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// envOverlay holds secrets usually injected by the deployment environment.
type envOverlay struct {
	CronSecret        string `env:"CRON_SECRET"`
	NetCashWebhook    string `env:"NETCASH_WEBHOOK_SECRET"`
	NetCashServiceKey string `env:"NETCASH_DEBIT_ORDER_SERVICE_KEY"`
	NetCashVaultKey   string `env:"NETCASH_PCI_VAULT_KEY"`
	NetCashVendorKey  string `env:"NETCASH_SOFTWARE_VENDOR_KEY"`
	NetCashWSURL      string `env:"NETCASH_WS_URL"`
	NetCashPayNowKey  string `env:"NETCASH_PAYNOW_SERVICE_KEY"`
	ResendAPIKey      string `env:"RESEND_API_KEY"`
	ZohoClientID      string `env:"ZOHO_CLIENT_ID"`
	ZohoClientSecret  string `env:"ZOHO_CLIENT_SECRET"`
	ZohoRefreshToken  string `env:"ZOHO_REFRESH_TOKEN"`
	ZohoOrgID         string `env:"ZOHO_ORG_ID"`
	ClickatellAPIKey  string `env:"CLICKATELL_API_KEY"`
	DiditSecret       string `env:"DIDIT_WEBHOOK_SECRET"`
	SupabaseURL       string `env:"NEXT_PUBLIC_SUPABASE_URL"`
	SupabaseJWTSecret string `env:"SUPABASE_JWT_SECRET"`
	DatabaseURL       string `env:"DATABASE_URL"`
	AlertWebhookURL   string `env:"ALERT_WEBHOOK_URL"`
	RedisAddr         string `env:"REDIS_ADDR"`
}

// LoadEnvFile loads KEY=value pairs from a dotenv file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads a config file, overlays environment secrets, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverlay
	if err := envdecode.Decode(&env); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return err
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Auth.CronSecret, env.CronSecret)
	set(&c.Auth.SupabaseURL, env.SupabaseURL)
	set(&c.Auth.SupabaseJWTSecret, env.SupabaseJWTSecret)
	set(&c.NetCash.WebhookSecret, env.NetCashWebhook)
	set(&c.NetCash.ServiceKey, env.NetCashServiceKey)
	set(&c.NetCash.PCIVaultKey, env.NetCashVaultKey)
	set(&c.NetCash.SoftwareVendorKey, env.NetCashVendorKey)
	set(&c.NetCash.WSURL, env.NetCashWSURL)
	set(&c.NetCash.PayNowServiceKey, env.NetCashPayNowKey)
	set(&c.Email.ResendAPIKey, env.ResendAPIKey)
	set(&c.Zoho.ClientID, env.ZohoClientID)
	set(&c.Zoho.ClientSecret, env.ZohoClientSecret)
	set(&c.Zoho.RefreshToken, env.ZohoRefreshToken)
	set(&c.Zoho.OrgID, env.ZohoOrgID)
	set(&c.SMS.ClickatellAPIKey, env.ClickatellAPIKey)
	set(&c.Didit.WebhookSecret, env.DiditSecret)
	set(&c.Alerts.WebhookURL, env.AlertWebhookURL)
	set(&c.RateLimit.RedisAddr, env.RedisAddr)
	if env.DatabaseURL != "" {
		c.Storage.Driver = "postgres"
		c.Storage.DSN = env.DatabaseURL
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		return err
	}
	switch c.Environment {
	case "", "development", "production":
	default:
		return fmt.Errorf("environment must be development or production, got %q", c.Environment)
	}
	switch c.Storage.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.Storage.Driver)
	}
	switch c.Auth.Provider {
	case "", "supabase":
		if c.Auth.SupabaseJWTSecret == "" {
			return fmt.Errorf("auth.supabase_jwt_secret is required")
		}
		if len(c.Auth.SupabaseJWTSecret) < 32 {
			return fmt.Errorf("auth.supabase_jwt_secret must be at least 32 characters")
		}
	case "jwks":
		if c.Auth.SupabaseURL == "" {
			return fmt.Errorf("auth.supabase_url is required when provider is jwks")
		}
	default:
		return fmt.Errorf("unknown auth provider: %q", c.Auth.Provider)
	}
	if c.Environment == "production" {
		if knownWeakSecrets[c.Auth.SupabaseJWTSecret] {
			return fmt.Errorf("auth.supabase_jwt_secret is a well-known weak secret, generate a new one")
		}
		if knownWeakSecrets[c.Auth.CronSecret] {
			return fmt.Errorf("auth.cron_secret is a well-known weak secret, generate a new one")
		}
	}
	switch c.Blob.Driver {
	case "", "fs", "memory":
	case "s3":
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required when driver is s3")
		}
	default:
		return fmt.Errorf("unknown blob driver: %q", c.Blob.Driver)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Auth.Provider == "" {
		c.Auth.Provider = "supabase"
	}
	if c.Auth.Audience == "" {
		c.Auth.Audience = "authenticated"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = "circletel.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if c.RateLimit.WebhookLimit == 0 {
		c.RateLimit.WebhookLimit = 100
	}
	if c.RateLimit.WebhookWindow.Duration == 0 {
		c.RateLimit.WebhookWindow.Duration = 60 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1024 * 1024 // 1MB
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "https://www.circletel.co.za"
	}
	if c.NetCash.WSURL == "" {
		c.NetCash.WSURL = "https://ws.netcash.co.za/NIWS/niws_nif.svc"
	}
	if c.NetCash.PayNowURL == "" {
		c.NetCash.PayNowURL = "https://paynow.netcash.co.za/site/paynow.aspx"
	}
	if c.NetCash.AccountReference == "" {
		c.NetCash.AccountReference = "CT-"
	}
	if c.Email.BaseURL == "" {
		c.Email.BaseURL = "https://api.resend.com"
	}
	if c.Email.From == "" {
		c.Email.From = "CircleTel <orders@notifications.circletelsa.co.za>"
	}
	if c.Email.FinanceFrom == "" {
		c.Email.FinanceFrom = "CircleTel Finance <finance@notifications.circletelsa.co.za>"
	}
	if c.Email.AlertsFrom == "" {
		c.Email.AlertsFrom = "CircleTel Alerts <alerts@notifications.circletelsa.co.za>"
	}
	if c.Email.FinanceTo == "" {
		c.Email.FinanceTo = "finance@circletel.co.za"
	}
	if len(c.Email.AlertsTo) == 0 {
		c.Email.AlertsTo = []string{"dev@circletel.co.za"}
	}
	if c.SMS.BaseURL == "" {
		c.SMS.BaseURL = "https://platform.clickatell.com"
	}
	if c.Zoho.Region == "" {
		c.Zoho.Region = "US"
	}
	if c.Blob.Driver == "" {
		c.Blob.Driver = "fs"
	}
	if c.Blob.Path == "" {
		c.Blob.Path = "./circletel-files"
	}
	if c.Blob.PresignTTL.Duration == 0 {
		c.Blob.PresignTTL.Duration = 15 * time.Minute
	}
	if c.Blob.PublicURL == "" {
		c.Blob.PublicURL = "http://localhost" + c.Server.Addr + "/api/files"
	}
	if c.Blob.SigningSecret == "" {
		c.Blob.SigningSecret = c.Auth.SupabaseJWTSecret
	}
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "Africa/Johannesburg"
	}
	if c.Integrations.ProbeTimeout.Duration == 0 {
		c.Integrations.ProbeTimeout.Duration = 10 * time.Second
	}
	if c.Integrations.SlowThreshold.Duration == 0 {
		c.Integrations.SlowThreshold.Duration = 3 * time.Second
	}
	if c.Integrations.AlertAfter == 0 {
		c.Integrations.AlertAfter = 3
	}
	if c.Monitor.FailedSyncCritical == 0 {
		c.Monitor.FailedSyncCritical = 5
	}
	if c.Monitor.SuccessRateWarning == 0 {
		c.Monitor.SuccessRateWarning = 95
	}
	if c.Monitor.StalePendingAge.Duration == 0 {
		c.Monitor.StalePendingAge.Duration = 4 * time.Hour
	}
	if c.Monitor.Window.Duration == 0 {
		c.Monitor.Window.Duration = 24 * time.Hour
	}
	if c.Webhooks.MaxRetries == 0 {
		c.Webhooks.MaxRetries = 3
	}
}
