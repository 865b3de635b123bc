package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCustomer is a helper that inserts a customer and returns it.
func createTestCustomer(t *testing.T, s *SQLiteStore, email string) *Customer {
	t.Helper()
	c := &Customer{
		AuthUserID:    "auth-" + uuid.New().String()[:8],
		AccountNumber: "CT-2025-00001",
		FirstName:     "Thandi",
		LastName:      "Mokoena",
		Email:         email,
	}
	if err := s.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("createTestCustomer(%s): %v", email, err)
	}
	return c
}

// createTestOrder is a helper that inserts an order for a customer.
func createTestOrder(t *testing.T, s *SQLiteStore, customerID, number string) *Order {
	t.Helper()
	o := &Order{
		OrderNumber:      number,
		CustomerID:       customerID,
		PackageName:      "SkyFibre 100",
		PackagePrice:     899,
		PaymentReference: "PAY-" + number,
		PaymentMethod:    "debit_order",
	}
	if err := s.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("createTestOrder(%s): %v", number, err)
	}
	return o
}

// createTestInvoice is a helper that inserts an unpaid invoice.
func createTestInvoice(t *testing.T, s *SQLiteStore, customerID, number string, total float64) *Invoice {
	t.Helper()
	inv := &Invoice{
		InvoiceNumber:           number,
		CustomerID:              customerID,
		Status:                  "sent",
		InvoiceDate:             "2025-03-01",
		DueDate:                 "2025-03-25",
		TotalAmount:             total,
		AmountDue:               total,
		PaymentCollectionMethod: "credit_card",
		LineItems:               types.JSONText(`[{"description":"SkyFibre 100","amount":899}]`),
	}
	if err := s.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("createTestInvoice(%s): %v", number, err)
	}
	return inv
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestSeparateMemoryStoresAreIsolated(t *testing.T) {
	a := newTestStore(t)
	b := newTestStore(t)
	c := createTestCustomer(t, a, "a@example.com")

	got, err := b.GetCustomer(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("customer leaked between in-memory stores")
	}
}

func TestCustomerCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createTestCustomer(t, s, "thandi@example.com")

	got, err := s.GetCustomer(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected customer, got nil")
	}
	if got.KYCStatus != "not_started" {
		t.Errorf("KYCStatus: got %q, want not_started", got.KYCStatus)
	}
	if got.FullName() != "Thandi Mokoena" {
		t.Errorf("FullName: got %q", got.FullName())
	}

	byAuth, err := s.GetCustomerByAuthUser(ctx, c.AuthUserID)
	if err != nil || byAuth == nil || byAuth.ID != c.ID {
		t.Fatalf("GetCustomerByAuthUser: got %+v, err %v", byAuth, err)
	}

	if err := s.UpdateCustomerKYCStatus(ctx, c.ID, "approved"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetCustomer(ctx, c.ID)
	if got.KYCStatus != "approved" {
		t.Errorf("KYCStatus after update: got %q", got.KYCStatus)
	}

	missing, err := s.GetCustomer(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Error("expected nil for missing customer")
	}
}

func TestOrderPaymentUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createTestCustomer(t, s, "order@example.com")
	o := createTestOrder(t, s, c.ID, "ORD-20250301-0001")

	byRef, err := s.GetOrderByPaymentReference(ctx, o.PaymentReference)
	if err != nil || byRef == nil || byRef.ID != o.ID {
		t.Fatalf("GetOrderByPaymentReference: got %+v, err %v", byRef, err)
	}

	paidAt := time.Now().UTC().Truncate(time.Second)
	total := 899.0
	if err := s.UpdateOrderPayment(ctx, o.ID, OrderPaymentUpdate{
		Status:        "payment_received",
		PaymentStatus: "paid",
		PaymentDate:   &paidAt,
		TotalPaid:     &total,
	}); err != nil {
		t.Fatalf("UpdateOrderPayment: %v", err)
	}

	got, err := s.GetOrderByNumber(ctx, o.OrderNumber)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "payment_received" || got.PaymentStatus != "paid" {
		t.Errorf("status: got %q/%q", got.Status, got.PaymentStatus)
	}
	if got.TotalPaid != 899 {
		t.Errorf("TotalPaid: got %v, want 899", got.TotalPaid)
	}
	if got.PaymentDate == nil || !got.PaymentDate.Equal(paidAt) {
		t.Errorf("PaymentDate: got %v, want %v", got.PaymentDate, paidAt)
	}

	// A failure update leaves the paid columns alone.
	if err := s.UpdateOrderPayment(ctx, o.ID, OrderPaymentUpdate{PaymentStatus: "failed", PaymentError: "Insufficient funds"}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetOrder(ctx, o.ID)
	if got.Status != "payment_received" || got.PaymentStatus != "failed" || got.PaymentError != "Insufficient funds" {
		t.Errorf("after failure: %+v", got)
	}

	if err := s.UpdateOrderPayment(ctx, "missing", OrderPaymentUpdate{PaymentStatus: "paid"}); err == nil {
		t.Error("expected error for missing order")
	}
}

func TestDuplicateOrderNumberConflicts(t *testing.T) {
	s := newTestStore(t)
	c := createTestCustomer(t, s, "dupe@example.com")
	createTestOrder(t, s, c.ID, "ORD-1")

	err := s.CreateOrder(context.Background(), &Order{OrderNumber: "ORD-1", CustomerID: c.ID})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestOrdersDueForBilling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createTestCustomer(t, s, "billing@example.com")

	due := &Order{OrderNumber: "ORD-DUE", CustomerID: c.ID, Status: "active", PaymentMethod: "debit_order",
		BillingActive: true, BillingDay: 1, NextBillingDate: "2025-04-01"}
	later := &Order{OrderNumber: "ORD-LATER", CustomerID: c.ID, Status: "active", PaymentMethod: "debit_order",
		BillingActive: true, BillingDay: 15, NextBillingDate: "2025-04-15"}
	card := &Order{OrderNumber: "ORD-CARD", CustomerID: c.ID, Status: "active", PaymentMethod: "credit_card",
		BillingActive: true, BillingDay: 1, NextBillingDate: "2025-04-01"}
	for _, o := range []*Order{due, later, card} {
		if err := s.CreateOrder(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	orders, err := s.ListOrdersDueForBilling(ctx, "2025-04-01")
	if err != nil {
		t.Fatalf("ListOrdersDueForBilling: %v", err)
	}
	if len(orders) != 1 || orders[0].OrderNumber != "ORD-DUE" {
		t.Fatalf("got %+v, want only ORD-DUE", orders)
	}

	if err := s.SetOrderNextBillingDate(ctx, due.ID, "2025-05-01"); err != nil {
		t.Fatal(err)
	}
	orders, _ = s.ListOrdersDueForBilling(ctx, "2025-04-01")
	if len(orders) != 0 {
		t.Errorf("expected no orders after advancing billing date, got %d", len(orders))
	}
}

func TestInvoicePaymentAndDueQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createTestCustomer(t, s, "inv@example.com")
	inv := createTestInvoice(t, s, c.ID, "INV-2025-00001", 899)
	createTestInvoice(t, s, c.ID, "INV-2025-00002", 499)

	due, err := s.ListInvoicesDue(ctx, "2025-03-25", []string{"sent", "partial", "overdue"}, []string{"credit_card"})
	if err != nil {
		t.Fatalf("ListInvoicesDue: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due: got %d, want 2", len(due))
	}

	paidAt := time.Now().UTC()
	if err := s.ApplyInvoicePayment(ctx, inv.ID, InvoicePaymentUpdate{AmountPaid: 899, AmountDue: 0, Status: "paid", PaidAt: &paidAt}); err != nil {
		t.Fatalf("ApplyInvoicePayment: %v", err)
	}
	got, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "paid" || got.AmountDue != 0 || got.AmountPaid != 899 || got.PaidAt == nil {
		t.Errorf("after payment: %+v", got)
	}

	due, _ = s.ListInvoicesDue(ctx, "2025-03-25", []string{"sent", "partial", "overdue"}, []string{"credit_card"})
	if len(due) != 1 || due[0].InvoiceNumber != "INV-2025-00002" {
		t.Errorf("due after payment: %+v", due)
	}

	n, err := s.CountInvoicesForYear(ctx, 2025)
	if err != nil || n != 2 {
		t.Errorf("CountInvoicesForYear: got %d, err %v", n, err)
	}

	list, err := s.ListInvoices(ctx, InvoiceFilter{CustomerID: c.ID, Status: "paid"})
	if err != nil || len(list) != 1 {
		t.Errorf("ListInvoices paid: got %d, err %v", len(list), err)
	}
	if string(list[0].LineItems) == "" {
		t.Error("line items lost")
	}
}

func TestUpsertTransactionIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &PaymentTransaction{TransactionID: "NC-1001", Reference: "INV-2025-00001", Provider: "netcash", Amount: 899, Status: "pending"}
	if err := s.UpsertTransaction(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	completed := time.Now().UTC()
	second := &PaymentTransaction{TransactionID: "NC-1001", Reference: "INV-2025-00001", Provider: "netcash", Amount: 899, Status: "completed", CompletedAt: &completed}
	if err := s.UpsertTransaction(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("ID changed on upsert: %s -> %s", first.ID, second.ID)
	}

	got, err := s.GetTransaction(ctx, "NC-1001")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" || got.CompletedAt == nil {
		t.Errorf("after upsert: %+v", got)
	}
	if got.Currency != "ZAR" {
		t.Errorf("Currency: got %q, want ZAR", got.Currency)
	}

	if err := s.SetTransactionZohoSync(ctx, "NC-1001", "synced", "zp-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTransactionZohoSync(ctx, "NC-1001", "synced", ""); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetTransaction(ctx, "NC-1001")
	if got.ZohoSyncStatus != "synced" || got.ZohoPaymentID != "zp-1" {
		t.Errorf("zoho sync: got %q/%q", got.ZohoSyncStatus, got.ZohoPaymentID)
	}
}

func TestPaymentSyncStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for id, sync := range map[string]string{"tx-synced": "synced", "tx-failed": "failed", "tx-pending": "pending", "tx-none": ""} {
		if err := s.UpsertTransaction(ctx, &PaymentTransaction{TransactionID: id, Amount: 100, Status: "completed"}); err != nil {
			t.Fatal(err)
		}
		if sync != "" {
			if err := s.SetTransactionZohoSync(ctx, id, sync, ""); err != nil {
				t.Fatal(err)
			}
		}
	}

	n := time.Now()
	st, err := s.PaymentSyncStats(ctx, n.Add(-24*time.Hour), n.Add(time.Hour), n.Add(-time.Hour))
	if err != nil {
		t.Fatalf("PaymentSyncStats: %v", err)
	}
	want := SyncStats{FailedSyncs: 1, AttemptedSync: 3, SyncedCount: 1, StalePending: 1, PaymentsToday: 4}
	if *st != want {
		t.Errorf("stats: got %+v, want %+v", *st, want)
	}

	// Nothing is stale when the cutoff is in the past.
	st, _ = s.PaymentSyncStats(ctx, n.Add(-24*time.Hour), n.Add(-4*time.Hour), n.Add(-time.Hour))
	if st.StalePending != 0 {
		t.Errorf("StalePending: got %d, want 0", st.StalePending)
	}
}

func TestWebhookLogLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	l := &WebhookLog{Provider: "netcash", WebhookID: "wh-1", EventType: "payment.completed", TransactionID: "NC-1",
		Status: "received", SignatureVerified: true, RawPayload: `{"TransactionAccepted":"true"}`}
	if err := s.CreateWebhookLog(ctx, l); err != nil {
		t.Fatalf("CreateWebhookLog: %v", err)
	}

	processed, err := s.HasProcessedWebhook(ctx, "NC-1", "payment.completed")
	if err != nil || processed {
		t.Fatalf("HasProcessedWebhook before completion: %v, %v", processed, err)
	}

	if err := s.CompleteWebhookLog(ctx, l.ID, WebhookCompletion{
		Status: "processed", ActionsTaken: []string{"transaction_recorded", "invoice_updated"}, ResponseStatusCode: 200, DurationMs: 40,
	}); err != nil {
		t.Fatalf("CompleteWebhookLog: %v", err)
	}

	processed, _ = s.HasProcessedWebhook(ctx, "NC-1", "payment.completed")
	if !processed {
		t.Error("expected processed webhook to be detected")
	}
	processed, _ = s.HasProcessedWebhook(ctx, "NC-1", "payment.failed")
	if processed {
		t.Error("different event type should not count as processed")
	}

	got, err := s.GetWebhookLog(ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProcessedAt == nil || got.ProcessingDurationMs == nil || *got.ProcessingDurationMs != 40 {
		t.Errorf("completion not stored: %+v", got)
	}
	if string(got.ActionsTaken) != `["transaction_recorded","invoice_updated"]` {
		t.Errorf("ActionsTaken: got %s", got.ActionsTaken)
	}

	n, err := s.IncrementWebhookRetry(ctx, l.ID)
	if err != nil || n != 1 {
		t.Errorf("IncrementWebhookRetry: got %d, err %v", n, err)
	}

	if err := s.LogWebhookAudit(ctx, &WebhookAudit{WebhookLogID: l.ID, Action: "invoice_updated", Success: true}); err != nil {
		t.Fatal(err)
	}
	audit, err := s.ListWebhookAudit(ctx, l.ID)
	if err != nil || len(audit) != 1 || audit[0].Action != "invoice_updated" {
		t.Errorf("audit: %+v, err %v", audit, err)
	}
}

func TestWebhookStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(status string, verified bool, dur int64) {
		t.Helper()
		l := &WebhookLog{Provider: "netcash", WebhookID: uuid.NewString(), EventType: "payment.completed", Status: "received", SignatureVerified: verified}
		if err := s.CreateWebhookLog(ctx, l); err != nil {
			t.Fatal(err)
		}
		if status != "received" {
			if err := s.CompleteWebhookLog(ctx, l.ID, WebhookCompletion{Status: status, DurationMs: dur}); err != nil {
				t.Fatal(err)
			}
		}
	}
	mk("processed", true, 100)
	mk("processed", true, 300)
	mk("failed", false, 200)
	mk("received", true, 0)

	st, err := s.WebhookStats(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("WebhookStats: %v", err)
	}
	if st.Total != 4 || st.Processed != 2 || st.Failed != 1 || st.Pending != 1 || st.SignatureVerifiedCount != 3 {
		t.Errorf("stats: %+v", st)
	}
	if st.AvgProcessingTimeMs != 200 {
		t.Errorf("AvgProcessingTimeMs: got %v, want 200", st.AvgProcessingTimeMs)
	}

	logs, err := s.ListWebhookLogs(ctx, WebhookFilter{Status: "processed"})
	if err != nil || len(logs) != 2 {
		t.Errorf("ListWebhookLogs: got %d, err %v", len(logs), err)
	}
}

func TestPaymentMethods(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createTestCustomer(t, s, "pm@example.com")

	card := &PaymentMethod{CustomerID: c.ID, MethodType: "credit_card", IsActive: true, IsPrimary: true, CardToken: "tok-1", CardLastFour: "4242"}
	unsigned := &PaymentMethod{CustomerID: c.ID, MethodType: "bank_account", MandateStatus: "pending", AccountReference: "CT-ORD-1"}
	signed := &PaymentMethod{CustomerID: c.ID, MethodType: "bank_account", MandateStatus: "active", AccountReference: "CT-ORD-1"}
	for _, pm := range []*PaymentMethod{card, unsigned, signed} {
		if err := s.CreatePaymentMethod(ctx, pm); err != nil {
			t.Fatal(err)
		}
	}

	cards, err := s.ListActiveCards(ctx, []string{c.ID, "other"})
	if err != nil {
		t.Fatalf("ListActiveCards: %v", err)
	}
	if len(cards) != 1 || cards[0].CardToken != "tok-1" {
		t.Fatalf("cards: %+v", cards)
	}

	at := time.Now().UTC()
	if err := s.TouchCardTokens(ctx, []string{card.ID}, at); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetPaymentMethod(ctx, card.ID)
	if got.TokenLastUsedAt == nil {
		t.Error("TokenLastUsedAt not set")
	}

	n, err := s.DeleteUnsignedPaymentMethods(ctx, c.ID, "CT-ORD-1")
	if err != nil || n != 1 {
		t.Fatalf("DeleteUnsignedPaymentMethods: got %d, err %v", n, err)
	}
	all, _ := s.ListPaymentMethodsByCustomer(ctx, c.ID)
	if len(all) != 2 {
		t.Errorf("remaining methods: got %d, want 2", len(all))
	}

	if err := s.UpdatePaymentMethodMandate(ctx, signed.ID, "cancelled"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetPaymentMethod(ctx, signed.ID)
	if got.IsActive || got.IsVerified {
		t.Errorf("cancelled mandate should be inactive: %+v", got)
	}
}

func TestQuoteVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q := &BusinessQuote{QuoteNumber: "QT-2025-001", CompanyName: "Acme (Pty) Ltd", ContactName: "Sipho", ContactEmail: "sipho@acme.co.za",
		Subtotal: 1000, VATAmount: 150, TotalAmount: 1150, ValidUntil: "2025-04-30", CreatedBy: "admin-1"}
	items := []QuoteItem{
		{Description: "Business Fibre 200", ItemType: "monthly", Quantity: 1, UnitPrice: 900, LineTotal: 900},
		{Description: "Installation", ItemType: "once_off", Quantity: 1, UnitPrice: 100, LineTotal: 100},
	}
	if err := s.CreateQuote(ctx, q, items); err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if q.Status != "draft" || q.Version != 1 {
		t.Errorf("defaults: status %q version %d", q.Status, q.Version)
	}

	gotItems, err := s.ListQuoteItems(ctx, q.ID)
	if err != nil || len(gotItems) != 2 || gotItems[1].Position != 2 {
		t.Fatalf("items: %+v, err %v", gotItems, err)
	}

	if err := s.UpdateQuoteStatus(ctx, q.ID, "sent", &QuoteVersion{Version: 2, Status: "sent", Snapshot: types.JSONText(`{"total":1150}`), ChangedBy: "admin-1"}); err != nil {
		t.Fatalf("UpdateQuoteStatus: %v", err)
	}
	got, _ := s.GetQuote(ctx, q.ID)
	if got.Status != "sent" || got.Version != 2 {
		t.Errorf("after update: status %q version %d", got.Status, got.Version)
	}
	versions, err := s.ListQuoteVersions(ctx, q.ID)
	if err != nil || len(versions) != 1 || versions[0].Version != 2 {
		t.Errorf("versions: %+v, err %v", versions, err)
	}

	n, _ := s.CountQuotesForYear(ctx, 2025)
	if n != 1 {
		t.Errorf("CountQuotesForYear: got %d", n)
	}
	sent, _ := s.ListQuotes(ctx, "sent")
	if len(sent) != 1 {
		t.Errorf("ListQuotes(sent): got %d", len(sent))
	}
}

func TestUpsertBaseStations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.UpsertBaseStations(ctx, []BaseStation{
		{SiteCode: "JHB-001", Name: "Midrand", Provider: "tarana", Latitude: -25.99, Longitude: 28.12, Status: "active"},
		{SiteCode: "CPT-001", Name: "Bellville", Provider: "tarana", Latitude: -33.90, Longitude: 18.63, Status: "active"},
	})
	if err != nil || n != 2 {
		t.Fatalf("first upsert: %d, %v", n, err)
	}
	if _, err := s.UpsertBaseStations(ctx, []BaseStation{{SiteCode: "JHB-001", Name: "Midrand North", Provider: "tarana", Status: "maintenance"}}); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListBaseStations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("stations: got %d, want 2", len(all))
	}
	if all[1].SiteCode != "JHB-001" || all[1].Name != "Midrand North" || all[1].Status != "maintenance" {
		t.Errorf("updated station: %+v", all[1])
	}
}

func TestCronExecutionLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &CronExecution{JobName: "cc-debit-batch", TriggeredBy: "cron"}
	if err := s.CreateCronExecution(ctx, e); err != nil {
		t.Fatalf("CreateCronExecution: %v", err)
	}
	done := time.Now().UTC()
	e.Status = "completed"
	e.CompletedAt = &done
	e.ExecutionTimeMs = 1200
	e.RecordsProcessed = 12
	e.Details = types.JSONText(`{"batch_id":"B-1"}`)
	if err := s.CompleteCronExecution(ctx, e); err != nil {
		t.Fatalf("CompleteCronExecution: %v", err)
	}

	list, err := s.ListCronExecutions(ctx, CronFilter{JobName: "cc-debit-batch"})
	if err != nil || len(list) != 1 {
		t.Fatalf("ListCronExecutions: %+v, err %v", list, err)
	}
	if list[0].Status != "completed" || list[0].RecordsProcessed != 12 || list[0].CompletedAt == nil {
		t.Errorf("execution: %+v", list[0])
	}
}

func TestDebitBatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createTestCustomer(t, s, "batch@example.com")

	b := &DebitOrderBatch{BatchID: "B-20250325", BatchName: "CC Batch 2025-03-25", BatchType: "credit_card",
		ActionDate: "2025-03-25", ItemCount: 2, TotalAmount: 1398, Status: "submitted"}
	if err := s.UpsertDebitBatch(ctx, b); err != nil {
		t.Fatalf("UpsertDebitBatch: %v", err)
	}
	if err := s.AddDebitBatchItems(ctx, []DebitOrderBatchItem{
		{BatchID: b.BatchID, CustomerID: c.ID, AccountReference: "CT-INV-2", Amount: 499},
		{BatchID: b.BatchID, CustomerID: c.ID, AccountReference: "CT-INV-1", Amount: 899},
	}); err != nil {
		t.Fatalf("AddDebitBatchItems: %v", err)
	}

	if err := s.UpsertDebitBatch(ctx, &DebitOrderBatch{BatchID: b.BatchID, BatchName: b.BatchName, BatchType: b.BatchType,
		ActionDate: b.ActionDate, ItemCount: 2, TotalAmount: 1398, Status: "authorised"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetDebitBatch(ctx, b.BatchID)
	if err != nil || got == nil || got.Status != "authorised" {
		t.Fatalf("GetDebitBatch: %+v, err %v", got, err)
	}
	items, _ := s.ListDebitBatchItems(ctx, b.BatchID)
	if len(items) != 2 || items[0].AccountReference != "CT-INV-1" || items[0].Status != "pending" {
		t.Errorf("items: %+v", items)
	}
}

func TestIntegrationHealthPreservedOnUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertIntegration(ctx, &Integration{Slug: "zoho-billing", Name: "Zoho Billing", Category: "billing", IsEnabled: true, HealthCheckEnabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordIntegrationHealth(ctx, IntegrationHealth{Slug: "zoho-billing", Status: "down", CheckedAt: time.Now(), ConsecutiveFailures: 3, HasActiveAlert: true, LastError: "timeout"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertIntegration(ctx, &Integration{Slug: "zoho-billing", Name: "Zoho Billing (EU)", Category: "billing", IsEnabled: true, HealthCheckEnabled: true}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetIntegration(ctx, "zoho-billing")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Zoho Billing (EU)" {
		t.Errorf("Name: got %q", got.Name)
	}
	if got.HealthStatus != "down" || got.ConsecutiveFailures != 3 || !got.HasActiveAlert {
		t.Errorf("health lost on upsert: %+v", got)
	}
}

func TestCMSPages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &CMSPage{Slug: "fibre-deals", Title: "Fibre Deals", Content: "<p>hello</p>", AuthorID: "admin-1"}
	if err := s.CreatePage(ctx, p); err != nil {
		t.Fatal(err)
	}
	published := time.Now().UTC()
	p.Status = "published"
	p.PublishedAt = &published
	if err := s.UpdatePage(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetPageBySlug(ctx, "fibre-deals")
	if err != nil || got == nil || got.Status != "published" {
		t.Fatalf("GetPageBySlug: %+v, err %v", got, err)
	}
	drafts, _ := s.ListPages(ctx, "draft")
	if len(drafts) != 0 {
		t.Errorf("drafts: got %d, want 0", len(drafts))
	}

	err = s.CreatePage(ctx, &CMSPage{Slug: "fibre-deals", Title: "Dup"})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate slug, got %v", err)
	}
}

func TestKYCSessionFlow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createTestCustomer(t, s, "kyc@example.com")

	sess := &KYCSession{DiditSessionID: "didit-1", CustomerID: c.ID}
	if err := s.CreateKYCSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetKYCSessionByDiditID(ctx, "didit-1")
	if err != nil || got == nil {
		t.Fatalf("GetKYCSessionByDiditID: %v", err)
	}
	done := time.Now().UTC()
	got.Status = "completed"
	got.VerificationResult = "approved"
	got.RiskScore = 12
	got.CompletedAt = &done
	if err := s.UpdateKYCSession(ctx, got); err != nil {
		t.Fatal(err)
	}
	again, _ := s.GetKYCSessionByDiditID(ctx, "didit-1")
	if again.VerificationResult != "approved" || again.RiskScore != 12 {
		t.Errorf("session: %+v", again)
	}

	doc := &KYCDocument{CustomerID: c.ID, DocumentType: "id_document", FileName: "id.pdf", ContentType: "application/pdf", SizeBytes: 1024, StorageKey: "kyc/" + c.ID + "/id.pdf"}
	if err := s.CreateKYCDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	docs, err := s.ListKYCDocuments(ctx, c.ID)
	if err != nil || len(docs) != 1 || docs[0].Status != "uploaded" {
		t.Errorf("docs: %+v, err %v", docs, err)
	}
}
