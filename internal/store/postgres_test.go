package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return newPostgresFromDB(db), mock
}

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping Postgres tests")
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresRebindsPlaceholders(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "auth_user_id", "account_number", "first_name", "last_name", "email", "phone",
		"zoho_customer_id", "kyc_status", "created_at", "updated_at"}).
		AddRow("c-1", "auth-1", "CT-2025-00001", "Thandi", "Mokoena", "thandi@example.com", "", "", "approved", created, created)
	mock.ExpectQuery(`SELECT .+ FROM customers WHERE id = \$1`).WithArgs("c-1").WillReturnRows(rows)

	c, err := s.GetCustomer(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	if c == nil || c.Email != "thandi@example.com" || c.KYCStatus != "approved" {
		t.Errorf("customer: %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresNotFoundReturnsNil(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`SELECT .+ FROM payment_transactions WHERE transaction_id = \$1`).
		WithArgs("NC-404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	tx, err := s.GetTransaction(context.Background(), "NC-404")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx != nil {
		t.Errorf("expected nil transaction, got %+v", tx)
	}
}

func TestPostgresHasProcessedWebhook(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM webhook_logs\s+WHERE transaction_id = \$1 AND event_type = \$2 AND status = 'processed'`).
		WithArgs("NC-1", "payment.completed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := s.HasProcessedWebhook(context.Background(), "NC-1", "payment.completed")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected processed webhook")
	}
}

func TestPostgresUniqueViolationIsConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`UPDATE customers SET kyc_status = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("approved", sqlmock.AnyArg(), "c-1").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := s.UpdateCustomerKYCStatus(context.Background(), "c-1", "approved")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestPostgresPing(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectPing()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// TestPostgresMigration verifies that migrations run without error on a fresh database.
func TestPostgresMigration(t *testing.T) {
	s := newTestPostgresStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}

// TestPostgresPaymentFlow exercises customer -> invoice -> transaction -> invoice payment.
func TestPostgresPaymentFlow(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	suffix := uuid.New().String()[:8]

	c := &Customer{Email: "pg-" + suffix + "@example.com", FirstName: "Pg", LastName: "Test"}
	if err := s.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	inv := &Invoice{InvoiceNumber: "INV-PG-" + suffix, CustomerID: c.ID, Status: "sent", DueDate: "2025-03-25", TotalAmount: 899, AmountDue: 899}
	if err := s.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	txID := "NC-PG-" + suffix
	for i := 0; i < 2; i++ {
		if err := s.UpsertTransaction(ctx, &PaymentTransaction{TransactionID: txID, Reference: inv.InvoiceNumber, InvoiceID: inv.ID, Amount: 899, Status: "completed"}); err != nil {
			t.Fatalf("UpsertTransaction #%d: %v", i+1, err)
		}
	}

	paidAt := time.Now().UTC()
	if err := s.ApplyInvoicePayment(ctx, inv.ID, InvoicePaymentUpdate{AmountPaid: 899, AmountDue: 0, Status: "paid", PaidAt: &paidAt}); err != nil {
		t.Fatalf("ApplyInvoicePayment: %v", err)
	}
	got, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "paid" || got.AmountDue != 0 {
		t.Errorf("invoice: %+v", got)
	}
}
