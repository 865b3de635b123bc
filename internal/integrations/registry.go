// Package integrations maintains the integration registry and probes the
// health of each third-party integration.
package integrations

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/circletel/circletel/internal/store"
	"gopkg.in/yaml.v3"
)

// Entry is one integration in a registry seed file.
type Entry struct {
	Slug           string `yaml:"slug"`
	Name           string `yaml:"name"`
	Category       string `yaml:"category"`
	Enabled        *bool  `yaml:"enabled,omitempty"`
	HealthCheck    *bool  `yaml:"health_check,omitempty"`
	HealthCheckURL string `yaml:"health_check_url,omitempty"`
}

// Seed is the registry seed document.
type Seed struct {
	Integrations []Entry `yaml:"integrations"`
}

// DefaultSeed lists the integrations CircleTel depends on. Integrations
// without a URL are probed through a registered Pinger.
var DefaultSeed = Seed{Integrations: []Entry{
	{Slug: "netcash", Name: "NetCash", Category: "payments", HealthCheckURL: "https://ws.netcash.co.za/NIWS/niws_nif.svc"},
	{Slug: "zoho-billing", Name: "Zoho Billing", Category: "billing"},
	{Slug: "zoho-crm", Name: "Zoho CRM", Category: "crm", HealthCheckURL: "https://www.zohoapis.com/crm/v2/settings/modules"},
	{Slug: "zoho-sign", Name: "Zoho Sign", Category: "contracts", HealthCheckURL: "https://sign.zoho.com/api/v1/requests"},
	{Slug: "didit", Name: "Didit KYC", Category: "compliance", HealthCheckURL: "https://verification.didit.me/v2/session/"},
	{Slug: "clickatell", Name: "Clickatell SMS", Category: "notifications", HealthCheckURL: "https://platform.clickatell.com/"},
	{Slug: "resend", Name: "Resend Email", Category: "notifications", HealthCheckURL: "https://api.resend.com/domains"},
	{Slug: "mtn", Name: "MTN Coverage", Category: "coverage", HealthCheckURL: "https://mtnsi.mtn.co.za/"},
	{Slug: "google-maps", Name: "Google Maps", Category: "coverage", HealthCheckURL: "https://maps.googleapis.com/maps/api/geocode/json"},
}}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a YAML seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse registry seed: %w", err)
	}
	seen := make(map[string]bool, len(s.Integrations))
	var errs []string
	for i, e := range s.Integrations {
		switch {
		case e.Slug == "":
			errs = append(errs, fmt.Sprintf("integration %d: slug is required", i))
		case seen[e.Slug]:
			errs = append(errs, fmt.Sprintf("integration %q: duplicate slug", e.Slug))
		case e.Name == "":
			errs = append(errs, fmt.Sprintf("integration %q: name is required", e.Slug))
		}
		seen[e.Slug] = true
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid registry seed: %s", strings.Join(errs, "; "))
	}
	return &s, nil
}

// Apply upserts every seed entry. Health history of existing rows is kept.
func Apply(ctx context.Context, s store.Store, seed *Seed) (int, error) {
	for _, e := range seed.Integrations {
		i := &store.Integration{
			Slug:               e.Slug,
			Name:               e.Name,
			Category:           e.Category,
			IsEnabled:          boolOr(e.Enabled, true),
			HealthCheckEnabled: boolOr(e.HealthCheck, true),
			HealthCheckURL:     e.HealthCheckURL,
		}
		if i.Category == "" {
			i.Category = "other"
		}
		if err := s.UpsertIntegration(ctx, i); err != nil {
			return 0, fmt.Errorf("upsert integration %s: %w", e.Slug, err)
		}
	}
	return len(seed.Integrations), nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
