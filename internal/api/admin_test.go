package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/circletel/circletel/internal/blob"
	"github.com/circletel/circletel/internal/store"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func withBlobs(o *Options) {
	o.Signer = blob.NewSigner("download-signing-secret", "http://example.com/api/files")
	o.Blobs = blob.NewMemory(o.Signer)
}

func uploadRequest(t *testing.T, token, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", "/api/kyc/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestKYCDocumentUploadAndDownload(t *testing.T) {
	env := setupTestServer(t, withBlobs)
	c := addCustomer(t, env.store, "user-1")
	tok := env.token(t, "user-1", "user")

	w := env.do(uploadRequest(t, tok, "my id.png", pngHeader, map[string]string{"document_type": "id_document"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var doc store.KYCDocument
	parseJSONResponse(t, w, &doc)
	if doc.CustomerID != c.ID || doc.ContentType != "image/png" || doc.DocumentType != "id_document" {
		t.Fatalf("document = %+v", doc)
	}
	stored, err := env.store.GetKYCDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stored.StorageKey, "kyc/"+c.ID+"/") {
		t.Errorf("storage key = %q", stored.StorageKey)
	}

	w = env.do(jsonRequest(t, "GET", "/api/kyc/documents", tok, nil))
	var docs []store.KYCDocument
	parseJSONResponse(t, w, &docs)
	if len(docs) != 1 || docs[0].ID != doc.ID {
		t.Fatalf("documents = %+v", docs)
	}

	w = env.do(jsonRequest(t, "GET", "/api/kyc/documents/"+doc.ID+"/url", tok, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("url: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var link struct {
		URL string `json:"url"`
	}
	parseJSONResponse(t, w, &link)
	u, err := url.Parse(link.URL)
	if err != nil {
		t.Fatal(err)
	}

	w = env.do(httptest.NewRequest("GET", "/api/files?"+u.RawQuery, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q", got)
	}
	body, _ := io.ReadAll(w.Body)
	if !bytes.Equal(body, pngHeader) {
		t.Errorf("downloaded %d bytes, want %d", len(body), len(pngHeader))
	}

	// A tampered link is refused.
	q := u.Query()
	q.Set("key", "kyc/someone-else/file.png")
	w = env.do(httptest.NewRequest("GET", "/api/files?"+q.Encode(), nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("tampered link: expected 403, got %d", w.Code)
	}
}

func TestKYCDocumentRejectsUnsupportedType(t *testing.T) {
	env := setupTestServer(t, withBlobs)
	addCustomer(t, env.store, "user-1")

	w := env.do(uploadRequest(t, env.token(t, "user-1", "user"), "notes.txt", []byte("just some text"), nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	w = env.do(uploadRequest(t, env.token(t, "user-1", "user"), "id.png", pngHeader, map[string]string{"document_type": "selfie"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad document_type: expected 400, got %d", w.Code)
	}
}

func TestKYCDocumentOwnership(t *testing.T) {
	env := setupTestServer(t, withBlobs)
	addCustomer(t, env.store, "user-1")
	other := addCustomer(t, env.store, "user-2")

	w := env.do(uploadRequest(t, env.token(t, "user-2", "user"), "id.png", pngHeader, nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d", w.Code)
	}
	var doc store.KYCDocument
	parseJSONResponse(t, w, &doc)

	w = env.do(jsonRequest(t, "GET", "/api/kyc/documents/"+doc.ID+"/url", env.token(t, "user-1", "user"), nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("other customer: expected 404, got %d", w.Code)
	}

	admin := env.token(t, "admin-1", "admin")
	w = env.do(jsonRequest(t, "GET", "/api/admin/customers/"+other.ID+"/kyc-documents", admin, nil))
	var docs []store.KYCDocument
	parseJSONResponse(t, w, &docs)
	if len(docs) != 1 {
		t.Errorf("admin list = %+v", docs)
	}
}

func TestKYCUploadWithoutCustomer(t *testing.T) {
	env := setupTestServer(t, withBlobs)

	w := env.do(uploadRequest(t, env.token(t, "nobody", "user"), "id.png", pngHeader, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestAdminInvoices(t *testing.T) {
	env := setupTestServer(t)
	c := addCustomer(t, env.store, "user-1")
	admin := env.token(t, "admin-1", "admin")

	w := env.do(jsonRequest(t, "POST", "/api/admin/invoices", admin, map[string]any{
		"customer_id": c.ID,
		"line_items":  []map[string]any{{"description": "SkyFibre 100", "quantity": 1, "unit_price": 899}},
	}))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var inv store.Invoice
	parseJSONResponse(t, w, &inv)
	if !strings.HasPrefix(inv.InvoiceNumber, "INV-") || inv.CustomerID != c.ID {
		t.Errorf("invoice = %+v", inv)
	}

	w = env.do(jsonRequest(t, "GET", "/api/admin/invoices?customer_id="+c.ID, admin, nil))
	var list []store.Invoice
	parseJSONResponse(t, w, &list)
	if len(list) != 1 || list[0].ID != inv.ID {
		t.Errorf("list = %+v", list)
	}

	w = env.do(jsonRequest(t, "GET", "/api/admin/invoices/"+inv.ID, admin, nil))
	if w.Code != http.StatusOK {
		t.Errorf("get: expected 200, got %d", w.Code)
	}
	w = env.do(jsonRequest(t, "GET", "/api/admin/invoices/missing", admin, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", w.Code)
	}

	w = env.do(jsonRequest(t, "POST", "/api/admin/invoices", admin, map[string]any{"customer_id": c.ID}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("no line items: expected 400, got %d", w.Code)
	}
	w = env.do(jsonRequest(t, "POST", "/api/admin/invoices", admin, map[string]any{
		"customer_id": "nope",
		"line_items":  []map[string]any{{"description": "x", "quantity": 1, "unit_price": 1}},
	}))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown customer: expected 404, got %d", w.Code)
	}
}

func TestAdminInvalidBody(t *testing.T) {
	env := setupTestServer(t)
	req := httptest.NewRequest("POST", "/api/admin/quotes", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+env.token(t, "admin-1", "admin"))

	w := env.do(req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]string
	parseJSONResponse(t, w, &body)
	if body["error"] != "invalid request body" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestAdminQuoteWorkflow(t *testing.T) {
	env := setupTestServer(t)
	admin := env.token(t, "admin-1", "admin")

	w := env.do(jsonRequest(t, "POST", "/api/admin/quotes", admin, map[string]any{
		"company_name":  "Acme Logistics",
		"contact_name":  "Naledi",
		"contact_email": "naledi@acme.co.za",
		"items": []map[string]any{
			{"description": "Business Fibre 200", "item_type": "monthly", "quantity": 2, "unit_price": 1499},
		},
	}))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var q struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	parseJSONResponse(t, w, &q)
	if q.Status != "draft" {
		t.Errorf("status = %q", q.Status)
	}

	w = env.do(jsonRequest(t, "POST", "/api/admin/quotes/"+q.ID+"/status", admin, map[string]string{"status": "accepted"}))
	if w.Code != http.StatusConflict {
		t.Errorf("draft -> accepted: expected 409, got %d", w.Code)
	}

	w = env.do(jsonRequest(t, "POST", "/api/admin/quotes/"+q.ID+"/status", admin, map[string]string{"status": "sent"}))
	if w.Code != http.StatusOK {
		t.Fatalf("draft -> sent: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(jsonRequest(t, "POST", "/api/admin/quotes/"+q.ID+"/status", admin, map[string]string{}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing status: expected 400, got %d", w.Code)
	}

	w = env.do(jsonRequest(t, "GET", "/api/admin/quotes?status=sent", admin, nil))
	var list []store.BusinessQuote
	parseJSONResponse(t, w, &list)
	if len(list) != 1 {
		t.Errorf("list = %+v", list)
	}
}

func TestAdminPagesAndPublicRoute(t *testing.T) {
	env := setupTestServer(t)
	admin := env.token(t, "admin-1", "admin")

	w := env.do(jsonRequest(t, "POST", "/api/admin/cms/pages", admin, map[string]string{
		"slug": "fibre-deals", "title": "Fibre deals", "content": "<p>Winter specials</p>",
	}))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var page store.CMSPage
	parseJSONResponse(t, w, &page)

	w = env.do(jsonRequest(t, "POST", "/api/admin/cms/pages", admin, map[string]string{"slug": "fibre-deals", "title": "Again"}))
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate slug: expected 409, got %d", w.Code)
	}

	// Drafts are not public.
	w = env.do(httptest.NewRequest("GET", "/api/pages/fibre-deals", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("draft page: expected 404, got %d", w.Code)
	}

	w = env.do(jsonRequest(t, "POST", "/api/admin/cms/pages/"+page.ID+"/status", admin, map[string]string{"status": "published"}))
	if w.Code != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(httptest.NewRequest("GET", "/api/pages/fibre-deals", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("published page: expected 200, got %d", w.Code)
	}
	var public store.CMSPage
	parseJSONResponse(t, w, &public)
	if public.Title != "Fibre deals" {
		t.Errorf("page = %+v", public)
	}
}

func TestAdminBaseStations(t *testing.T) {
	env := setupTestServer(t)
	admin := env.token(t, "admin-1", "admin")

	w := env.do(jsonRequest(t, "POST", "/api/admin/base-stations/sync", admin, map[string]any{
		"stations": []map[string]any{
			{"site_code": "JHB-001", "name": "Sandton", "provider": "tarana", "latitude": -26.1076, "longitude": 28.0567, "status": "active"},
			{"site_code": "JHB-002", "name": "Rosebank", "provider": "tarana", "latitude": -26.1452, "longitude": 28.0436, "status": "active"},
			{"site_code": "CPT-001", "name": "Cape Town", "provider": "mtn", "latitude": -33.9249, "longitude": 18.4241, "status": "active"},
			{"site_code": "", "name": "Broken", "latitude": 0, "longitude": 0},
		},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		Received int `json:"received"`
		Upserted int `json:"upserted"`
		Skipped  int `json:"skipped"`
	}
	parseJSONResponse(t, w, &res)
	if res.Received != 4 || res.Upserted != 3 || res.Skipped != 1 {
		t.Errorf("sync result = %+v", res)
	}

	w = env.do(jsonRequest(t, "GET", "/api/admin/base-stations/nearest?lat=-26.11&lng=28.05&radius_km=10", admin, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("nearest: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var near struct {
		Stations []struct {
			SiteCode   string  `json:"site_code"`
			DistanceKm float64 `json:"distance_km"`
		} `json:"stations"`
	}
	parseJSONResponse(t, w, &near)
	if len(near.Stations) != 2 || near.Stations[0].SiteCode != "JHB-001" {
		t.Errorf("nearest = %+v", near.Stations)
	}

	w = env.do(jsonRequest(t, "GET", "/api/admin/base-stations/nearest?lat=abc&lng=28", admin, nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad lat: expected 400, got %d", w.Code)
	}

	w = env.do(jsonRequest(t, "POST", "/api/admin/base-stations/sync", admin, map[string]any{"stations": []any{}}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty sync: expected 400, got %d", w.Code)
	}
}

func TestAdminIntegrationsHealthFromRegistry(t *testing.T) {
	env := setupTestServer(t)
	admin := env.token(t, "admin-1", "admin")

	w := env.do(jsonRequest(t, "GET", "/api/admin/integrations/health", admin, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var sum struct {
		Total int `json:"total"`
	}
	parseJSONResponse(t, w, &sum)
	if sum.Total != 0 {
		t.Errorf("total = %d", sum.Total)
	}

	w = env.do(jsonRequest(t, "GET", "/api/admin/integrations/health?refresh=true", admin, nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("refresh without checker: expected 503, got %d", w.Code)
	}

	w = env.do(jsonRequest(t, "GET", "/api/admin/integrations/health/zoho-books", admin, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown slug: expected 404, got %d", w.Code)
	}
}
