// Package quotes manages B2B business quotes.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/circletel/circletel/internal/billing"
	"github.com/circletel/circletel/internal/store"
)

// ValidDays is how long a quote stays open after it is issued.
const ValidDays = 30

// Quote statuses.
const (
	StatusDraft    = "draft"
	StatusSent     = "sent"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

var ErrNotFound = errors.New("quote not found")

// transitions lists the statuses reachable from each status.
var transitions = map[string][]string{
	StatusDraft: {StatusSent},
	StatusSent:  {StatusAccepted, StatusRejected},
}

// ValidationError reports bad quote input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// TransitionError reports a status change the workflow does not allow.
type TransitionError struct {
	From, To string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move quote from %s to %s", e.From, e.To)
}

// Item is a requested quote line.
type Item struct {
	Description string  `json:"description"`
	ItemType    string  `json:"item_type"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// NewQuote is the input for Create.
type NewQuote struct {
	CustomerID   string `json:"customer_id,omitempty"`
	CompanyName  string `json:"company_name"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	Notes        string `json:"notes,omitempty"`
	Items        []Item `json:"items"`
}

// Detail is a quote with its lines and version history.
type Detail struct {
	*store.BusinessQuote
	Items    []store.QuoteItem    `json:"items"`
	Versions []store.QuoteVersion `json:"versions,omitempty"`
}

// Number formats a quote number such as QT-2025-007.
func Number(year, n int) string {
	return fmt.Sprintf("QT-%d-%03d", year, n)
}

// Create validates, totals and stores a draft quote.
func Create(ctx context.Context, s store.Store, in NewQuote, createdBy string, now time.Time) (*Detail, error) {
	if strings.TrimSpace(in.CompanyName) == "" {
		return nil, &ValidationError{Message: "company_name is required"}
	}
	if _, err := mail.ParseAddress(in.ContactEmail); err != nil {
		return nil, &ValidationError{Message: "contact_email is invalid"}
	}
	if len(in.Items) == 0 {
		return nil, &ValidationError{Message: "at least one item is required"}
	}

	items := make([]store.QuoteItem, len(in.Items))
	var subtotal float64
	for i, it := range in.Items {
		if strings.TrimSpace(it.Description) == "" {
			return nil, &ValidationError{Message: fmt.Sprintf("item %d: description is required", i+1)}
		}
		if it.UnitPrice < 0 {
			return nil, &ValidationError{Message: fmt.Sprintf("item %d: unit_price must not be negative", i+1)}
		}
		switch it.ItemType {
		case "":
			it.ItemType = "monthly"
		case "monthly", "once_off":
		default:
			return nil, &ValidationError{Message: fmt.Sprintf("item %d: invalid item_type %q", i+1, it.ItemType)}
		}
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		line := billing.Round(float64(it.Quantity) * it.UnitPrice)
		subtotal += line
		items[i] = store.QuoteItem{
			Description: it.Description,
			ItemType:    it.ItemType,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   line,
		}
	}
	sub, vat, total := billing.Totals(subtotal)

	now = now.UTC()
	q := &store.BusinessQuote{
		CustomerID:   in.CustomerID,
		CompanyName:  in.CompanyName,
		ContactName:  in.ContactName,
		ContactEmail: in.ContactEmail,
		Status:       StatusDraft,
		Subtotal:     sub,
		VATAmount:    vat,
		TotalAmount:  total,
		ValidUntil:   now.AddDate(0, 0, ValidDays).Format(time.DateOnly),
		Notes:        in.Notes,
		CreatedBy:    createdBy,
	}

	for attempt := 0; attempt < 5; attempt++ {
		n, err := s.CountQuotesForYear(ctx, now.Year())
		if err != nil {
			return nil, fmt.Errorf("count quotes: %w", err)
		}
		q.ID = ""
		q.QuoteNumber = Number(now.Year(), n+1+attempt)
		for i := range items {
			items[i].ID = ""
		}
		err = s.CreateQuote(ctx, q, items)
		if err == nil {
			return &Detail{BusinessQuote: q, Items: items}, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("create quote: %w", err)
		}
	}
	return nil, fmt.Errorf("create quote: could not allocate a quote number: %w", store.ErrConflict)
}

// Get loads a quote with its items and versions.
func Get(ctx context.Context, s store.Store, id string) (*Detail, error) {
	q, err := s.GetQuote(ctx, id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrNotFound
	}
	items, err := s.ListQuoteItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list quote items: %w", err)
	}
	versions, err := s.ListQuoteVersions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list quote versions: %w", err)
	}
	return &Detail{BusinessQuote: q, Items: items, Versions: versions}, nil
}

// CanTransition reports whether a quote may move from one status to another.
func CanTransition(from, to string) bool {
	return slices.Contains(transitions[from], to)
}

// Transition moves a quote to status and records a snapshot of the quote as
// it stood before the change.
func Transition(ctx context.Context, s store.Store, id, status, changedBy string) (*Detail, error) {
	d, err := Get(ctx, s, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(d.Status, status) {
		return nil, &TransitionError{From: d.Status, To: status}
	}

	snap, err := json.Marshal(struct {
		Quote *store.BusinessQuote `json:"quote"`
		Items []store.QuoteItem    `json:"items"`
	}{d.BusinessQuote, d.Items})
	if err != nil {
		return nil, fmt.Errorf("snapshot quote: %w", err)
	}
	v := &store.QuoteVersion{
		Version:   d.Version,
		Status:    status,
		Snapshot:  snap,
		ChangedBy: changedBy,
	}
	if err := s.UpdateQuoteStatus(ctx, id, status, v); err != nil {
		return nil, fmt.Errorf("update quote status: %w", err)
	}
	return Get(ctx, s, id)
}
