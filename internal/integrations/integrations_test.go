package integrations

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/circletel/circletel/internal/notify"
	"github.com/circletel/circletel/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []notify.MonitorAlert
}

func (a *fakeAlerter) Configured() bool { return true }

func (a *fakeAlerter) Send(_ context.Context, m notify.MonitorAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, m)
	return nil
}

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed([]byte(`
integrations:
  - slug: resend
    name: Resend Email
    category: notifications
    health_check_url: https://api.resend.com/domains
  - slug: mtn
    name: MTN Coverage
    enabled: false
`))
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if len(seed.Integrations) != 2 {
		t.Fatalf("expected 2 integrations, got %d", len(seed.Integrations))
	}
	if seed.Integrations[1].Enabled == nil || *seed.Integrations[1].Enabled {
		t.Error("expected mtn to be disabled")
	}
}

func TestParseSeedRejectsInvalid(t *testing.T) {
	_, err := ParseSeed([]byte(`
integrations:
  - slug: resend
    name: Resend
  - slug: resend
    name: Again
  - name: No Slug
`))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"duplicate slug", "slug is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLoadSeedAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	if err := os.WriteFile(path, []byte("integrations:\n  - slug: didit\n    name: Didit KYC\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatal(err)
	}
	s := newTestStore(t)
	n, err := Apply(context.Background(), s, seed)
	if err != nil || n != 1 {
		t.Fatalf("Apply = %d, %v", n, err)
	}
	got, _ := s.GetIntegration(context.Background(), "didit")
	if got == nil || !got.IsEnabled || !got.HealthCheckEnabled || got.Category != "other" || got.HealthStatus != StatusUnknown {
		t.Errorf("integration: %+v", got)
	}
}

func TestDefaultSeedIsValid(t *testing.T) {
	s := newTestStore(t)
	if _, err := Apply(context.Background(), s, &DefaultSeed); err != nil {
		t.Fatal(err)
	}
	all, err := s.ListIntegrations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(DefaultSeed.Integrations) {
		t.Errorf("expected %d integrations, got %d", len(DefaultSeed.Integrations), len(all))
	}
}

func register(t *testing.T, s store.Store, slug, url string) {
	t.Helper()
	if err := s.UpsertIntegration(context.Background(), &store.Integration{
		Slug: slug, Name: strings.ToUpper(slug), Category: "test",
		IsEnabled: true, HealthCheckEnabled: true, HealthCheckURL: url,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestCheckClassifiesResponses(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ok.Close()
	unauthorized := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer unauthorized.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	s := newTestStore(t)
	register(t, s, "resend", ok.URL)
	register(t, s, "clickatell", unauthorized.URL)
	register(t, s, "mtn", broken.URL)
	register(t, s, "google-maps", "")
	register(t, s, "zoho-billing", "")
	if err := s.UpsertIntegration(context.Background(), &store.Integration{Slug: "off", Name: "Off", IsEnabled: false, HealthCheckEnabled: true}); err != nil {
		t.Fatal(err)
	}

	alerter := &fakeAlerter{}
	c := NewChecker(CheckerOptions{
		Store:   s,
		Alerter: alerter,
		Pingers: map[string]Pinger{"zoho-billing": PingFunc(func(context.Context) error { return nil })},
		Logger:  slog.Default(),
	})

	sum, err := c.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if sum.Total != 5 || sum.Healthy != 2 || sum.Degraded != 1 || sum.Down != 1 || sum.Unknown != 1 {
		t.Errorf("summary: %+v", sum)
	}
	if sum.Status != StatusDown {
		t.Errorf("overall status = %q", sum.Status)
	}
	if !sum.AlertSent || len(alerter.alerts) != 1 || len(alerter.alerts[0].Checks) != 1 {
		t.Errorf("alerts: %+v", alerter.alerts)
	}

	mtn, _ := s.GetIntegration(context.Background(), "mtn")
	if mtn.HealthStatus != StatusDown || mtn.ConsecutiveFailures != 1 || mtn.HealthLastCheckedAt == nil {
		t.Errorf("mtn: %+v", mtn)
	}
	maps, _ := s.GetIntegration(context.Background(), "google-maps")
	if maps.HealthStatus != StatusUnknown {
		t.Errorf("google-maps status = %q", maps.HealthStatus)
	}
}

func TestCheckRaisesActiveAlertAfterRepeatedFailures(t *testing.T) {
	s := newTestStore(t)
	register(t, s, "zoho-billing", "")

	alerter := &fakeAlerter{}
	c := NewChecker(CheckerOptions{
		Store:      s,
		Alerter:    alerter,
		AlertAfter: 3,
		Pingers:    map[string]Pinger{"zoho-billing": PingFunc(func(context.Context) error { return errors.New("token refresh failed") })},
		Logger:     slog.Default(),
	})

	var sum *Summary
	for i := 0; i < 3; i++ {
		var err error
		if sum, err = c.Check(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	r := sum.Integrations[0]
	if r.ConsecutiveFailures != 3 || !r.HasActiveAlert || r.Error != "token refresh failed" {
		t.Errorf("result: %+v", r)
	}
	if len(alerter.alerts) != 1 {
		t.Errorf("expected one alert for the transition to down, got %d", len(alerter.alerts))
	}
}

func TestCheckSlowResponseIsDegraded(t *testing.T) {
	s := newTestStore(t)
	register(t, s, "slow", "")
	c := NewChecker(CheckerOptions{
		Store:         s,
		SlowThreshold: time.Millisecond,
		Pingers: map[string]Pinger{"slow": PingFunc(func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		})},
		Logger: slog.Default(),
	})
	sum, err := c.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Integrations[0].Status != StatusDegraded {
		t.Errorf("status = %q", sum.Integrations[0].Status)
	}
}
