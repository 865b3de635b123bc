package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/circletel/circletel/internal/jobs"
	"github.com/circletel/circletel/internal/netcash"
	"github.com/circletel/circletel/internal/ratelimit"
	"github.com/circletel/circletel/internal/store"
)

type webhookResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Error     string   `json:"error"`
	Errors    []string `json:"errors"`
	WebhookID string   `json:"webhookId"`
}

func addInvoice(t *testing.T, s store.Store, customerID, number string, total float64) *store.Invoice {
	t.Helper()
	inv := &store.Invoice{
		InvoiceNumber: number,
		CustomerID:    customerID,
		Status:        "sent",
		DueDate:       "2025-03-20",
		TotalAmount:   total,
		AmountDue:     total,
	}
	if err := s.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	return inv
}

func netcashRequest(t *testing.T, fields map[string]string, secret string) *http.Request {
	t.Helper()
	body, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", "/api/payment/netcash/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Netcash-Signature", netcash.Sign(body, secret))
	}
	return req
}

func TestNetcashWebhookPaysInvoice(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	c := addCustomer(t, env.store, "user-1")
	inv := addInvoice(t, env.store, c.ID, "INV-2025-001", 899)

	fields := map[string]string{
		"TransactionID": "NC-100", "Reference": "INV-2025-001", "Status": "Approved", "Amount": "89900",
	}
	w := env.do(netcashRequest(t, fields, testWebhookSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp webhookResponse
	parseJSONResponse(t, w, &resp)
	if !resp.Success || resp.Message != "Webhook processed successfully" || resp.WebhookID == "" {
		t.Fatalf("response = %+v", resp)
	}

	got, err := env.store.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "paid" || got.AmountDue != 0 {
		t.Errorf("invoice = %+v", got)
	}

	// Redelivery of the same transaction is acknowledged without reprocessing.
	w = env.do(netcashRequest(t, fields, testWebhookSecret))
	resp = webhookResponse{}
	parseJSONResponse(t, w, &resp)
	if !resp.Success || !strings.Contains(resp.Message, "already processed") {
		t.Errorf("duplicate response = %+v", resp)
	}
}

func TestNetcashWebhookRejectsBadSignature(t *testing.T) {
	env := setupTestServer(t)

	fields := map[string]string{"TransactionID": "NC-1", "Reference": "INV-2025-001", "Status": "Approved", "Amount": "100"}
	w := env.do(netcashRequest(t, fields, "some-other-secret"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp webhookResponse
	parseJSONResponse(t, w, &resp)
	if resp.Success || resp.Error != "Webhook validation failed" {
		t.Fatalf("response = %+v", resp)
	}
	if len(resp.Errors) != 1 || resp.Errors[0] != "Invalid webhook signature" {
		t.Errorf("errors = %v", resp.Errors)
	}

	w = env.do(netcashRequest(t, fields, ""))
	resp = webhookResponse{}
	parseJSONResponse(t, w, &resp)
	if len(resp.Errors) != 1 || resp.Errors[0] != "Missing webhook signature" {
		t.Errorf("errors = %v", resp.Errors)
	}
}

func hasError(errs []string, want string) bool {
	for _, e := range errs {
		if e == want {
			return true
		}
	}
	return false
}

func TestNetcashWebhookRejectsUnknownIPInProduction(t *testing.T) {
	env := setupTestServer(t, func(o *Options) { o.Config.Environment = "production" })

	fields := map[string]string{"TransactionID": "NC-1", "Reference": "INV-2025-001", "Status": "Approved", "Amount": "100"}
	req := netcashRequest(t, fields, testWebhookSecret)
	req.RemoteAddr = "8.8.8.8:4431"
	w := env.do(req)

	var resp webhookResponse
	parseJSONResponse(t, w, &resp)
	if resp.Success {
		t.Fatal("expected rejection")
	}
	if !hasError(resp.Errors, "Unauthorized IP address: 8.8.8.8") {
		t.Errorf("errors = %v", resp.Errors)
	}
}

func TestNetcashWebhookIgnoresSpoofedForwardedFor(t *testing.T) {
	env := setupTestServer(t, func(o *Options) { o.Config.Environment = "production" })

	fields := map[string]string{"TransactionID": "NC-1", "Reference": "INV-2025-001", "Status": "Approved", "Amount": "100"}
	for _, h := range []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"} {
		req := netcashRequest(t, fields, testWebhookSecret)
		req.RemoteAddr = "8.8.8.8:4431"
		req.Header.Set(h, "196.33.252.10")
		w := env.do(req)

		var resp webhookResponse
		parseJSONResponse(t, w, &resp)
		if resp.Success || !hasError(resp.Errors, "Unauthorized IP address: 8.8.8.8") {
			t.Errorf("%s spoof: success %v errors %v", h, resp.Success, resp.Errors)
		}
	}
}

func TestNetcashWebhookTrustedProxy(t *testing.T) {
	env := setupTestServer(t, func(o *Options) {
		o.Config.Environment = "production"
		o.Config.Server.TrustedProxies = []string{"10.0.0.0/8"}
	})

	fields := map[string]string{"TransactionID": "NC-1", "Reference": "INV-2025-001", "Status": "Approved", "Amount": "100"}
	req := netcashRequest(t, fields, testWebhookSecret)
	req.RemoteAddr = "10.1.2.3:4431"
	req.Header.Set("X-Forwarded-For", "196.33.252.10")
	w := env.do(req)

	var resp webhookResponse
	parseJSONResponse(t, w, &resp)
	for _, e := range resp.Errors {
		if strings.HasPrefix(e, "Unauthorized IP address") {
			t.Errorf("forwarded NetCash address rejected: %v", resp.Errors)
		}
	}

	req = netcashRequest(t, fields, testWebhookSecret)
	req.RemoteAddr = "10.1.2.3:4431"
	req.Header.Set("X-Forwarded-For", "196.33.252.10, 8.8.8.8")
	w = env.do(req)
	resp = webhookResponse{}
	parseJSONResponse(t, w, &resp)
	if !hasError(resp.Errors, "Unauthorized IP address: 8.8.8.8") {
		t.Errorf("appended hop: errors = %v", resp.Errors)
	}
}

func TestNetcashWebhookWithoutSecret(t *testing.T) {
	env := setupTestServer(t, func(o *Options) { o.Config.NetCash.WebhookSecret = "" })

	w := env.do(netcashRequest(t, map[string]string{"TransactionID": "NC-1"}, ""))
	var resp webhookResponse
	parseJSONResponse(t, w, &resp)
	if resp.Success || resp.Error != "Payment configuration not found" {
		t.Errorf("response = %+v", resp)
	}

	w = env.do(httptest.NewRequest("GET", "/api/payment/netcash/webhook", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health: expected 503, got %d", w.Code)
	}
	var health map[string]string
	parseJSONResponse(t, w, &health)
	if health["status"] != "unhealthy" {
		t.Errorf("health = %v", health)
	}
}

func TestNetcashWebhookHealth(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(httptest.NewRequest("GET", "/api/payment/netcash/webhook", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var health map[string]string
	parseJSONResponse(t, w, &health)
	if health["status"] != "healthy" || health["environment"] != "test" {
		t.Errorf("health = %v", health)
	}
	if _, err := time.Parse(time.RFC3339, health["timestamp"]); err != nil {
		t.Errorf("timestamp %q: %v", health["timestamp"], err)
	}
}

func TestNetcashWebhookRateLimit(t *testing.T) {
	env := setupTestServer(t, func(o *Options) {
		o.WebhookLimiter = ratelimit.NewMemoryWindow(2, time.Minute)
	})

	fields := map[string]string{"TransactionID": "NC-1"}
	for i := 0; i < 2; i++ {
		if w := env.do(netcashRequest(t, fields, "")); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := env.do(netcashRequest(t, fields, ""))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	var resp webhookResponse
	parseJSONResponse(t, w, &resp)
	if resp.Success || resp.Error != "Rate limit exceeded" {
		t.Errorf("response = %+v", resp)
	}
}

func TestDiditWebhookNotConfigured(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(httptest.NewRequest("POST", "/api/webhooks/didit", strings.NewReader(`{}`)))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

// --- Cron ---

func registerFakeJob(env *testEnv, name string, fn jobs.Func) {
	env.runner.Register(name, fn)
}

func TestCronRequiresSecret(t *testing.T) {
	env := setupTestServer(t)
	registerFakeJob(env, jobs.CCDebitOrders, func(context.Context, jobs.Params) (*jobs.Report, error) {
		return &jobs.Report{}, nil
	})

	w := env.do(httptest.NewRequest("GET", "/api/cron/submit-cc-debit-orders", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	var body map[string]string
	parseJSONResponse(t, w, &body)
	if body["error"] != "Unauthorized" {
		t.Errorf("error = %q", body["error"])
	}

	w = env.do(jsonRequest(t, "GET", "/api/cron/submit-cc-debit-orders", env.token(t, "user-1", "user"), nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("non-admin token: expected 401, got %d", w.Code)
	}
}

func TestCronRunsJob(t *testing.T) {
	env := setupTestServer(t)
	var got jobs.Params
	registerFakeJob(env, jobs.CCDebitOrders, func(_ context.Context, p jobs.Params) (*jobs.Report, error) {
		got = p
		return &jobs.Report{Processed: 3, Result: map[string]any{"success": true, "submitted": 3}}, nil
	})

	w := env.do(jsonRequest(t, "POST", "/api/cron/submit-cc-debit-orders", testCronSecret, map[string]string{"date": "2025-03-25"}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result map[string]any
	parseJSONResponse(t, w, &result)
	if result["submitted"] != float64(3) {
		t.Errorf("result = %v", result)
	}
	if got.Date != "2025-03-25" || got.TriggeredBy != jobs.TriggerCron {
		t.Errorf("params = %+v", got)
	}

	execs, err := env.store.ListCronExecutions(context.Background(), store.CronFilter{JobName: jobs.CCDebitOrders})
	if err != nil {
		t.Fatal(err)
	}
	if len(execs) != 1 || execs[0].Status != jobs.StatusCompleted || execs[0].TriggeredBy != jobs.TriggerCron {
		t.Errorf("executions = %+v", execs)
	}
}

func TestCronAcceptsAdminToken(t *testing.T) {
	env := setupTestServer(t)
	var got jobs.Params
	registerFakeJob(env, jobs.DebitOrders, func(_ context.Context, p jobs.Params) (*jobs.Report, error) {
		got = p
		return &jobs.Report{Result: map[string]any{"success": true}}, nil
	})

	w := env.do(jsonRequest(t, "GET", "/api/cron/submit-debit-orders?date=2025-04-01", env.token(t, "admin-1", "admin"), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got.TriggeredBy != jobs.TriggerManual || got.Date != "2025-04-01" {
		t.Errorf("params = %+v", got)
	}
}

func TestCronJobErrors(t *testing.T) {
	env := setupTestServer(t)
	registerFakeJob(env, jobs.CCDebitOrders, func(_ context.Context, p jobs.Params) (*jobs.Report, error) {
		return nil, &jobs.DateError{Value: p.Date}
	})
	registerFakeJob(env, jobs.DebitOrders, func(context.Context, jobs.Params) (*jobs.Report, error) {
		return nil, errors.New("netcash unreachable")
	})

	w := env.do(jsonRequest(t, "GET", "/api/cron/submit-cc-debit-orders?date=25-03-2025", testCronSecret, nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad date: expected 400, got %d", w.Code)
	}

	w = env.do(jsonRequest(t, "GET", "/api/cron/submit-debit-orders", testCronSecret, nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body errorBody
	parseJSONResponse(t, w, &body)
	if body.Error != "Submission failed" || body.Details != "netcash unreachable" {
		t.Errorf("body = %+v", body)
	}

	w = env.do(jsonRequest(t, "GET", "/api/cron/payment-sync-monitor", testCronSecret, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unregistered job: expected 404, got %d", w.Code)
	}
}

// --- eMandate ---

func addOrder(t *testing.T, s store.Store, customerID, number string) *store.Order {
	t.Helper()
	o := &store.Order{
		OrderNumber:   number,
		CustomerID:    customerID,
		PackageName:   "SkyFibre 50",
		PackagePrice:  699,
		Status:        "pending",
		PaymentStatus: "pending",
	}
	if err := s.CreateOrder(context.Background(), o); err != nil {
		t.Fatal(err)
	}
	return o
}

func TestInitiateEmandate(t *testing.T) {
	env := setupTestServer(t)
	c := addCustomer(t, env.store, "user-1")
	o := addOrder(t, env.store, c.ID, "ORD-2025-0001")

	w := env.do(jsonRequest(t, "POST", "/api/payment/emandate/initiate", env.token(t, "user-1", "user"), map[string]any{
		"order_id":    o.ID,
		"billing_day": 25,
		"bank_details": map[string]string{
			"bank_name": "FNB", "account_name": "S Dlamini", "account_number": "62812345678",
			"branch_code": "250655", "account_type": "cheque",
		},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Success   bool   `json:"success"`
		FileToken string `json:"file_token"`
	}
	parseJSONResponse(t, w, &resp)
	if !resp.Success || resp.FileToken != "FT-900" {
		t.Errorf("response = %+v", resp)
	}
	if env.submitter.calls != 1 {
		t.Errorf("submitter calls = %d", env.submitter.calls)
	}
}

func TestInitiateEmandateValidation(t *testing.T) {
	env := setupTestServer(t)
	addCustomer(t, env.store, "user-1")
	other := addCustomer(t, env.store, "user-2")
	tok := env.token(t, "user-1", "user")

	w := env.do(jsonRequest(t, "POST", "/api/payment/emandate/initiate", tok, map[string]any{}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing order_id: expected 400, got %d", w.Code)
	}

	w = env.do(jsonRequest(t, "POST", "/api/payment/emandate/initiate", tok, map[string]any{
		"order_id": "ord-1", "customer_id": other.ID,
	}))
	if w.Code != http.StatusForbidden {
		t.Errorf("other customer: expected 403, got %d", w.Code)
	}

	foreign := addOrder(t, env.store, other.ID, "ORD-2025-0002")
	w = env.do(jsonRequest(t, "POST", "/api/payment/emandate/initiate", tok, map[string]any{
		"order_id": foreign.ID,
	}))
	if w.Code != http.StatusNotFound {
		t.Errorf("other customer's order: expected 404, got %d: %s", w.Code, w.Body.String())
	}
	if o, _ := env.store.GetOrder(context.Background(), foreign.ID); o.Status != "pending" {
		t.Errorf("foreign order status changed to %q", o.Status)
	}
	if env.submitter.calls != 0 {
		t.Errorf("submitter called %d times", env.submitter.calls)
	}
}

func TestEmandateLoadReport(t *testing.T) {
	env := setupTestServer(t)
	c := addCustomer(t, env.store, "user-1")
	o := addOrder(t, env.store, c.ID, "ORD-2025-0001")

	w := env.do(jsonRequest(t, "POST", "/api/payment/emandate/initiate", env.token(t, "user-1", "user"), map[string]any{
		"order_id": o.ID,
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("initiate: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var initiated struct {
		RequestID string `json:"emandate_request_id"`
	}
	parseJSONResponse(t, w, &initiated)
	admin := env.token(t, "admin-1", "admin")
	path := "/api/admin/emandates/" + initiated.RequestID + "/report"

	w = env.do(jsonRequest(t, "GET", path, env.token(t, "user-1", "user"), nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("customer token: expected 403, got %d", w.Code)
	}

	w = env.do(jsonRequest(t, "GET", path, admin, nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("no report service: expected 503, got %d: %s", w.Code, w.Body.String())
	}

	env.submitter.report = &netcash.LoadReport{
		BatchName: "MANDATE-0001",
		Result:    netcash.ReportUnsuccessful,
		Errors:    []netcash.ReportError{{AccountReference: c.AccountNumber, LineNumber: 2, Message: "Invalid branch code"}},
	}
	w = env.do(jsonRequest(t, "GET", path, admin, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var rep struct {
		Result string `json:"result"`
		Status string `json:"status"`
	}
	parseJSONResponse(t, w, &rep)
	if rep.Result != netcash.ReportUnsuccessful || rep.Status != "failed" {
		t.Errorf("report = %+v", rep)
	}
	er, _ := env.store.GetEmandateRequest(context.Background(), initiated.RequestID)
	if er.Status != "failed" || er.ErrorMessage != "Invalid branch code" {
		t.Errorf("emandate request: status %q error %q", er.Status, er.ErrorMessage)
	}

	w = env.do(jsonRequest(t, "GET", "/api/admin/emandates/00000000-0000-0000-0000-000000000000/report", admin, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown request: expected 404, got %d", w.Code)
	}
}
