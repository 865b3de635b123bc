package quotes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/circletel/circletel/internal/store"
	"github.com/tidwall/gjson"
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

var issued = time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)

func sampleQuote() NewQuote {
	return NewQuote{
		CompanyName:  "Karoo Freight (Pty) Ltd",
		ContactName:  "Johan Botha",
		ContactEmail: "johan@karoofreight.co.za",
		Items: []Item{
			{Description: "SkyFibre Business 200", Quantity: 2, UnitPrice: 1899},
			{Description: "Installation", ItemType: "once_off", UnitPrice: 2500.5},
		},
	}
}

func TestCreate(t *testing.T) {
	s := newTestStore(t)
	d, err := Create(context.Background(), s, sampleQuote(), "admin-1", issued)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.QuoteNumber != "QT-2025-001" || d.Status != StatusDraft || d.Version != 1 {
		t.Errorf("quote: %+v", d.BusinessQuote)
	}
	if d.Subtotal != 6298.5 || d.VATAmount != 944.78 || d.TotalAmount != 7243.28 {
		t.Errorf("totals: %.2f %.2f %.2f", d.Subtotal, d.VATAmount, d.TotalAmount)
	}
	if d.ValidUntil != "2025-07-10" {
		t.Errorf("valid_until = %s", d.ValidUntil)
	}
	if len(d.Items) != 2 || d.Items[0].LineTotal != 3798 || d.Items[0].ItemType != "monthly" || d.Items[1].Quantity != 1 {
		t.Errorf("items: %+v", d.Items)
	}

	next, err := Create(context.Background(), s, sampleQuote(), "admin-1", issued)
	if err != nil {
		t.Fatal(err)
	}
	if next.QuoteNumber != "QT-2025-002" {
		t.Errorf("second quote number = %s", next.QuoteNumber)
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestStore(t)
	tests := []struct {
		name   string
		modify func(*NewQuote)
	}{
		{"company", func(q *NewQuote) { q.CompanyName = " " }},
		{"email", func(q *NewQuote) { q.ContactEmail = "not-an-email" }},
		{"no items", func(q *NewQuote) { q.Items = nil }},
		{"description", func(q *NewQuote) { q.Items[0].Description = "" }},
		{"negative price", func(q *NewQuote) { q.Items[1].UnitPrice = -1 }},
		{"item type", func(q *NewQuote) { q.Items[0].ItemType = "weekly" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := sampleQuote()
			tt.modify(&q)
			_, err := Create(context.Background(), s, q, "admin-1", issued)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestTransitionRecordsVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d, err := Create(ctx, s, sampleQuote(), "admin-1", issued)
	if err != nil {
		t.Fatal(err)
	}

	sent, err := Transition(ctx, s, d.ID, StatusSent, "admin-2")
	if err != nil {
		t.Fatalf("draft -> sent: %v", err)
	}
	if sent.Status != StatusSent || sent.Version != 2 || len(sent.Versions) != 1 {
		t.Errorf("after send: %+v versions=%d", sent.BusinessQuote, len(sent.Versions))
	}
	if got := gjson.GetBytes(sent.Versions[0].Snapshot, "quote.status").String(); got != StatusDraft {
		t.Errorf("snapshot status = %q", got)
	}
	if got := gjson.GetBytes(sent.Versions[0].Snapshot, "items.#").Int(); got != 2 {
		t.Errorf("snapshot items = %d", got)
	}

	accepted, err := Transition(ctx, s, d.ID, StatusAccepted, "customer")
	if err != nil {
		t.Fatalf("sent -> accepted: %v", err)
	}
	if accepted.Version != 3 || len(accepted.Versions) != 2 || accepted.Versions[1].ChangedBy != "customer" {
		t.Errorf("after accept: %+v", accepted.Versions)
	}

	_, err = Transition(ctx, s, d.ID, StatusRejected, "admin-1")
	var te *TransitionError
	if !errors.As(err, &te) || te.From != StatusAccepted {
		t.Errorf("expected TransitionError from accepted, got %v", err)
	}
}

func TestTransitionRules(t *testing.T) {
	tests := []struct {
		from, to string
		ok       bool
	}{
		{StatusDraft, StatusSent, true},
		{StatusDraft, StatusAccepted, false},
		{StatusSent, StatusAccepted, true},
		{StatusSent, StatusRejected, true},
		{StatusSent, StatusDraft, false},
		{StatusRejected, StatusSent, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := Get(context.Background(), s, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
