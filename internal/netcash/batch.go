package netcash

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/circletel/circletel/internal/config"
)

// ErrNoValidItems is returned when every batch item failed validation.
var ErrNoValidItems = errors.New("No valid items after validation")

// Upload result codes that indicate a rejected batch.
var uploadErrorCodes = map[string]bool{
	"100": true, "200": true,
	"311": true, "312": true, "313": true, "314": true, "315": true, "316": true,
}

// CardDebit is one tokenised credit-card charge.
type CardDebit struct {
	AccountReference string
	Amount           float64
	ActionDate       time.Time
	CustomerID       string
	InvoiceID        string
	PaymentMethodID  string
	CardToken        string
	CardHolderName   string
	CardType         string
	ExpiryMonth      int
	ExpiryYear       int
	MaskedNumber     string
}

// BankDebit is one debit against a masterfile bank mandate.
type BankDebit struct {
	AccountReference string
	Amount           float64
	ActionDate       time.Time
	CustomerID       string
	InvoiceID        string
	OrderID          string
}

// BatchResult describes an accepted batch upload. Accepted lists the
// account references of the items sent in the upload.
type BatchResult struct {
	BatchID        string   `json:"batchId,omitempty"`
	BatchReference string   `json:"batchReference,omitempty"`
	ItemsSubmitted int      `json:"itemsSubmitted"`
	Accepted       []string `json:"accepted,omitempty"`
	Warnings       []string `json:"warnings"`
}

// BatchService uploads and authorises debit order batches.
type BatchService struct {
	soap        *SOAPClient
	serviceKey  string
	pciVaultKey string
	now         func() time.Time
}

// NewBatchService creates a batch service from the NetCash config.
func NewBatchService(cfg config.NetCashConfig, hc *http.Client) *BatchService {
	return &BatchService{
		soap:        NewSOAPClient(cfg.WSURL, hc),
		serviceKey:  cfg.ServiceKey,
		pciVaultKey: cfg.PCIVaultKey,
		now:         time.Now,
	}
}

// Configured reports whether bank debit batches can be submitted.
func (s *BatchService) Configured() bool { return s.serviceKey != "" }

// CardsConfigured reports whether credit-card batches can be submitted.
func (s *BatchService) CardsConfigured() bool {
	return s.serviceKey != "" && s.pciVaultKey != ""
}

// SubmitCardBatch validates and uploads a credit-card debit batch. Invalid
// items are skipped with a warning. The result is returned alongside any
// error so callers can report the warnings.
func (s *BatchService) SubmitCardBatch(ctx context.Context, name string, items []CardDebit) (*BatchResult, error) {
	res := &BatchResult{Warnings: []string{}}
	if !s.CardsConfigured() {
		return res, fmt.Errorf("NetCash Credit Card Debit service not configured: %w", ErrNotConfigured)
	}
	if len(items) == 0 {
		res.Warnings = append(res.Warnings, "No items to submit")
		return res, nil
	}

	valid := make([]CardDebit, 0, len(items))
	for _, it := range items {
		if reason := s.validateCard(it); reason != "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Skipping %s: %s", it.AccountReference, reason))
			continue
		}
		valid = append(valid, it)
	}
	if len(valid) == 0 {
		return res, ErrNoValidItems
	}
	if name == "" {
		name = fmt.Sprintf("CircleTel-CC-Batch-%d", s.now().UnixMilli())
	}

	id, ref, err := s.upload(ctx, name, func(b *xmlBuilder) {
		for _, it := range valid {
			b.open("DebitOrderItem")
			b.elem("AccountReference", truncate(it.AccountReference, 22))
			b.elem("Amount", FormatAmount(it.Amount))
			b.elem("ActionDate", FormatDate(it.ActionDate))
			b.elem("Key131", "2")
			b.elem("Key132", truncate(it.CardHolderName, 50))
			b.elem("Key133", CardTypeCode(it.CardType))
			b.elem("Key134", fmt.Sprintf("%02d", it.ExpiryMonth))
			b.elem("Key135", strconv.Itoa(it.ExpiryYear))
			b.elem("Key136", it.CardToken)
			b.elem("Key137", it.MaskedNumber)
			b.close("DebitOrderItem")
		}
	})
	if err != nil {
		return res, err
	}
	res.BatchID, res.BatchReference, res.ItemsSubmitted = id, ref, len(valid)
	for _, it := range valid {
		res.Accepted = append(res.Accepted, it.AccountReference)
	}
	return res, nil
}

// SubmitBankBatch uploads a debit batch against masterfile bank mandates.
func (s *BatchService) SubmitBankBatch(ctx context.Context, name string, items []BankDebit) (*BatchResult, error) {
	res := &BatchResult{Warnings: []string{}}
	if !s.Configured() {
		return res, fmt.Errorf("NetCash Debit Order Service not configured: %w", ErrNotConfigured)
	}
	if len(items) == 0 {
		res.Warnings = append(res.Warnings, "No items to submit")
		return res, nil
	}

	valid := make([]BankDebit, 0, len(items))
	for _, it := range items {
		switch {
		case it.AccountReference == "":
			res.Warnings = append(res.Warnings, "Skipping item: Missing account reference")
		case it.Amount <= 0:
			res.Warnings = append(res.Warnings, fmt.Sprintf("Skipping %s: Invalid amount", it.AccountReference))
		default:
			valid = append(valid, it)
		}
	}
	if len(valid) == 0 {
		return res, ErrNoValidItems
	}
	if name == "" {
		name = fmt.Sprintf("CircleTel-Batch-%d", s.now().UnixMilli())
	}

	id, ref, err := s.upload(ctx, name, func(b *xmlBuilder) {
		for _, it := range valid {
			b.open("DebitOrderItem")
			b.elem("AccountReference", truncate(it.AccountReference, 22))
			b.elem("Amount", FormatAmount(it.Amount))
			b.elem("ActionDate", FormatDate(it.ActionDate))
			b.elem("Key131", "1")
			b.close("DebitOrderItem")
		}
	})
	if err != nil {
		return res, err
	}
	res.BatchID, res.BatchReference, res.ItemsSubmitted = id, ref, len(valid)
	for _, it := range valid {
		res.Accepted = append(res.Accepted, it.AccountReference)
	}
	return res, nil
}

func (s *BatchService) upload(ctx context.Context, name string, items func(b *xmlBuilder)) (batchID, batchRef string, err error) {
	result, err := s.soap.Call(ctx, "UploadDebitOrderBatch", func(b *xmlBuilder) {
		b.elem("tem:ServiceKey", s.serviceKey)
		b.elem("tem:BatchName", name)
		b.open("tem:DebitOrderItems")
		items(b)
		b.close("tem:DebitOrderItems")
	})
	if err != nil {
		return "", "", err
	}
	if uploadErrorCodes[result] {
		return "", "", &APIError{Method: "UploadDebitOrderBatch", Code: result, Message: resultMessage(result)}
	}
	if result == "" {
		return "", "", errors.New("Unknown error submitting batch")
	}
	id, ref, found := strings.Cut(result, "|")
	if !found || ref == "" {
		ref = id
	}
	return id, ref, nil
}

// AuthoriseBatch releases an uploaded batch for processing.
func (s *BatchService) AuthoriseBatch(ctx context.Context, batchID string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	result, err := s.soap.Call(ctx, "AuthoriseBatch", func(b *xmlBuilder) {
		b.elem("tem:ServiceKey", s.serviceKey)
		b.elem("tem:BatchId", batchID)
	})
	if err != nil {
		return err
	}
	if result == "0" || result == "Success" {
		return nil
	}
	return &APIError{Method: "AuthoriseBatch", Code: result, Message: resultMessage(result)}
}

// validateCard returns a skip reason, or "" for a valid item.
func (s *BatchService) validateCard(it CardDebit) string {
	switch {
	case it.CardToken == "":
		return "Missing card token"
	case it.AccountReference == "":
		return "Missing account reference"
	case it.Amount <= 0:
		return "Invalid amount"
	case it.ExpiryMonth == 0 || it.ExpiryYear == 0:
		return "Missing expiry date"
	case CardExpired(it.ExpiryMonth, it.ExpiryYear, s.now()):
		return "Card is expired"
	}
	return ""
}

// CardExpired reports whether a card's expiry month is before now's month.
func CardExpired(month, year int, now time.Time) bool {
	y, m := now.Year(), int(now.Month())
	return year < y || (year == y && month < m)
}

// CardTypeCode maps a card brand to its NetCash code, defaulting to Visa.
func CardTypeCode(cardType string) string {
	switch strings.ToLower(cardType) {
	case "mastercard":
		return "2"
	case "amex":
		return "3"
	default:
		return "1"
	}
}

// FormatDate renders t as CCYYMMDD.
func FormatDate(t time.Time) string { return t.Format("20060102") }

// FormatAmount renders a rand amount with two decimals.
func FormatAmount(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
