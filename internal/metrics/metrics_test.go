package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestInstrumentAndHandler(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/api/admin/invoices/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/admin/invoices/inv-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}

	RecordWebhook("netcash", "payment_success", "processed", 20*time.Millisecond)
	RecordJob("payment-sync-monitor", "completed", 0)
	RecordIntegrationHealth("zoho-billing", "degraded", time.Second)
	RecordRateLimited("webhook")
	RecordZohoSync("synced")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`circletel_http_requests_total{method="GET",route="/api/admin/invoices/{id}",status="404"} 1`,
		`circletel_webhooks_processed_total{provider="netcash",status="processed",type="payment_success"} 1`,
		`circletel_jobs_runs_total{job="payment-sync-monitor",status="completed"} 1`,
		`circletel_integrations_health_status{slug="zoho-billing"} 0.5`,
		`circletel_http_rate_limited_total{scope="webhook"} 1`,
		`circletel_zoho_syncs_total{status="synced"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
