// Package metrics exposes Prometheus collectors for the API, webhook
// processing, cron jobs and integration probes.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "circletel",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "circletel",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "circletel",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "route"})

	webhooks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "circletel",
		Subsystem: "webhooks",
		Name:      "processed_total",
		Help:      "Payment webhooks by type and outcome.",
	}, []string{"provider", "type", "status"})

	webhookDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "circletel",
		Subsystem: "webhooks",
		Name:      "processing_duration_seconds",
		Help:      "Time spent reconciling a payment webhook.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"provider", "type"})

	rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "circletel",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by a rate limiter.",
	}, []string{"scope"})

	jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "circletel",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Cron job executions by outcome.",
	}, []string{"job", "status"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "circletel",
		Subsystem: "jobs",
		Name:      "run_duration_seconds",
		Help:      "Duration of cron job executions.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"job"})

	integrationUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "circletel",
		Subsystem: "integrations",
		Name:      "health_status",
		Help:      "Integration health: 1 healthy, 0.5 degraded, 0 down or unknown.",
	}, []string{"slug"})

	integrationLatency = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "circletel",
		Subsystem: "integrations",
		Name:      "response_time_seconds",
		Help:      "Last probe response time.",
	}, []string{"slug"})

	zohoSyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "circletel",
		Subsystem: "zoho",
		Name:      "syncs_total",
		Help:      "Zoho Billing sync attempts by outcome.",
	}, []string{"status"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		webhooks,
		webhookDuration,
		rateLimited,
		jobRuns,
		jobDuration,
		integrationUp,
		integrationLatency,
		zohoSyncs,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Instrument records request counts and latency labelled by chi route pattern.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordWebhook records one processed webhook.
func RecordWebhook(provider, typ, status string, d time.Duration) {
	webhooks.WithLabelValues(provider, typ, status).Inc()
	webhookDuration.WithLabelValues(provider, typ).Observe(d.Seconds())
}

// RecordRateLimited counts a rejected request.
func RecordRateLimited(scope string) {
	rateLimited.WithLabelValues(scope).Inc()
}

// RecordJob records one cron job execution.
func RecordJob(job, status string, d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	jobRuns.WithLabelValues(job, status).Inc()
	jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// RecordIntegrationHealth records a probe outcome.
func RecordIntegrationHealth(slug, status string, d time.Duration) {
	v := 0.0
	switch status {
	case "healthy":
		v = 1
	case "degraded":
		v = 0.5
	}
	integrationUp.WithLabelValues(slug).Set(v)
	integrationLatency.WithLabelValues(slug).Set(d.Seconds())
}

// RecordZohoSync counts a Zoho sync attempt.
func RecordZohoSync(status string) {
	zohoSyncs.WithLabelValues(status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Flush implements http.Flusher when the underlying writer does.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
