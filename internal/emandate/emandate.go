// Package emandate starts NetCash debit-order mandate signing for an order.
package emandate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/circletel/circletel/internal/netcash"
	"github.com/circletel/circletel/internal/store"
)

var (
	ErrOrderIDRequired      = errors.New("order_id is required")
	ErrCustomerRequired     = errors.New("customer_id is required or provide Authorization header")
	ErrCustomerNotFound     = errors.New("Customer not found")
	ErrNoCustomerForUser    = errors.New("Customer record not found for authenticated user")
	ErrAccountNumberMissing = errors.New("Customer account number not yet assigned. Please contact support.")
	ErrOrderNotFound        = errors.New("Order not found")
	ErrPaymentMethod        = errors.New("Failed to create payment method")
	ErrRequestRecord        = errors.New("Failed to create eMandate request")
	ErrRequestNotFound      = errors.New("eMandate request not found")
	ErrNotSubmitted         = errors.New("eMandate request has not been submitted to NetCash")
)

// SubmitError is returned when NetCash rejects the mandate.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string { return "Failed to create eMandate with NetCash: " + e.Err.Error() }

func (e *SubmitError) Unwrap() error { return e.Err }

// ValidBillingDays are the debit days NetCash offers CircleTel customers.
var ValidBillingDays = []int{1, 5, 25, 30}

const requestTTL = 7 * 24 * time.Hour

// Gateway uploads mandates for signature and reads back their load reports.
type Gateway interface {
	SubmitMandate(ctx context.Context, req netcash.MandateRequest) (string, error)
	RequestLoadReport(ctx context.Context, fileToken string) (*netcash.LoadReport, error)
}

// BankDetails are optional account details captured at checkout.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	BranchCode    string `json:"branch_code"`
	AccountType   string `json:"account_type"`
}

// Request is an eMandate initiation request. AuthUserID is used to find the
// customer when CustomerID is empty.
type Request struct {
	OrderID     string       `json:"order_id"`
	CustomerID  string       `json:"customer_id,omitempty"`
	BillingDay  int          `json:"billing_day,omitempty"`
	BankDetails *BankDetails `json:"bank_details,omitempty"`
	AuthUserID  string       `json:"-"`
	IPAddress   string       `json:"-"`
	UserAgent   string       `json:"-"`
}

// Response describes a submitted mandate.
type Response struct {
	Success          bool      `json:"success"`
	RequestID        string    `json:"emandate_request_id"`
	PaymentMethodID  string    `json:"payment_method_id"`
	FileToken        string    `json:"file_token"`
	AccountReference string    `json:"account_reference"`
	ExpiresAt        time.Time `json:"expires_at"`
	Message          string    `json:"message"`
}

// Service initiates mandates.
type Service struct {
	store   store.Store
	gateway Gateway
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates an eMandate service.
func NewService(s store.Store, gateway Gateway, logger *slog.Logger) *Service {
	return &Service{
		store:   s,
		gateway: gateway,
		logger:  logger.With("component", "emandate"),
		now:     time.Now,
	}
}

// Initiate records a pending bank payment method and mandate request for the
// order, then submits the mandate to NetCash for the customer to sign.
func (s *Service) Initiate(ctx context.Context, req Request) (*Response, error) {
	if req.OrderID == "" {
		return nil, ErrOrderIDRequired
	}

	customerID := req.CustomerID
	if customerID == "" {
		if req.AuthUserID == "" {
			return nil, ErrCustomerRequired
		}
		c, err := s.store.GetCustomerByAuthUser(ctx, req.AuthUserID)
		if err != nil {
			return nil, fmt.Errorf("lookup customer: %w", err)
		}
		if c == nil {
			return nil, ErrNoCustomerForUser
		}
		customerID = c.ID
	}

	debitDay := req.BillingDay
	if !slices.Contains(ValidBillingDays, debitDay) {
		debitDay = 1
	}

	customer, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	if customer == nil {
		return nil, ErrCustomerNotFound
	}
	if customer.AccountNumber == "" {
		s.logger.Error("customer account number not assigned", "customer_id", customerID)
		return nil, ErrAccountNumberMissing
	}

	order, err := s.store.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	// Another customer's order is reported as missing.
	if order == nil || order.CustomerID != customerID {
		return nil, ErrOrderNotFound
	}

	ref := customer.AccountNumber
	if n, err := s.store.DeleteUnsignedPaymentMethods(ctx, customerID, ref); err != nil {
		s.logger.Warn("clean up unsigned payment methods failed", "account_reference", ref, "error", err)
	} else if n > 0 {
		s.logger.Info("removed unsigned payment methods", "account_reference", ref, "count", n)
	}

	pm := &store.PaymentMethod{
		CustomerID:       customerID,
		OrderID:          order.ID,
		MethodType:       "bank_account",
		IsPrimary:        true,
		MandateStatus:    "pending",
		AccountReference: ref,
		MandateAmount:    order.PackagePrice,
		MandateFrequency: "monthly",
		DebitDay:         debitDay,
	}
	if bd := req.BankDetails; bd != nil {
		pm.BankName = bd.BankName
		pm.AccountHolder = bd.AccountName
		pm.BranchCode = bd.BranchCode
		pm.AccountNumberMasked = MaskAccount(bd.AccountNumber)
		if bd.AccountType != "" {
			pm.AccountType = StoredAccountType(bd.AccountType)
		}
	}
	if err := s.store.CreatePaymentMethod(ctx, pm); err != nil {
		s.logger.Error("create payment method failed", "order_id", order.ID, "error", err)
		return nil, ErrPaymentMethod
	}

	now := s.now()
	mandate := BuildMandate(customer, order, debitDay, req.BankDetails, now)
	payload, err := json.Marshal(mandate)
	if err != nil {
		return nil, fmt.Errorf("marshal mandate: %w", err)
	}
	er := &store.EmandateRequest{
		OrderID:          order.ID,
		CustomerID:       customerID,
		PaymentMethodID:  pm.ID,
		AccountReference: ref,
		Status:           "pending",
		BillingDay:       debitDay,
		RequestPayload:   payload,
		IPAddress:        req.IPAddress,
		UserAgent:        req.UserAgent,
		ExpiresAt:        now.Add(requestTTL).UTC(),
	}
	if err := s.store.CreateEmandateRequest(ctx, er); err != nil {
		s.logger.Error("create emandate request failed", "order_id", order.ID, "error", err)
		if derr := s.store.DeletePaymentMethod(ctx, pm.ID); derr != nil {
			s.logger.Warn("roll back payment method failed", "payment_method_id", pm.ID, "error", derr)
		}
		return nil, ErrRequestRecord
	}

	token, err := s.gateway.SubmitMandate(ctx, mandate)
	if err != nil {
		s.logger.Error("netcash mandate submission failed", "emandate_request_id", er.ID, "error", err)
		if uerr := s.store.UpdateEmandateRequest(ctx, er.ID, "failed", "", err.Error()); uerr != nil {
			s.logger.Warn("mark emandate request failed", "error", uerr)
		}
		if uerr := s.store.UpdatePaymentMethodMandate(ctx, pm.ID, "failed"); uerr != nil {
			s.logger.Warn("mark payment method failed", "error", uerr)
		}
		return nil, &SubmitError{Err: err}
	}

	if err := s.store.UpdateEmandateRequest(ctx, er.ID, "sent", token, ""); err != nil {
		s.logger.Warn("mark emandate request sent", "error", err)
	}
	if err := s.store.UpdateOrderStatus(ctx, order.ID, "payment_method_pending"); err != nil {
		s.logger.Warn("update order status failed", "order_id", order.ID, "error", err)
	}
	s.logger.Info("mandate submitted", "emandate_request_id", er.ID, "payment_method_id", pm.ID, "account_reference", ref)

	return &Response{
		Success:          true,
		RequestID:        er.ID,
		PaymentMethodID:  pm.ID,
		FileToken:        token,
		AccountReference: ref,
		ExpiresAt:        er.ExpiresAt,
		Message:          "Mandate request submitted. Customer will receive an email/SMS from NetCash to sign the mandate.",
	}, nil
}

// ReportResult is the outcome of checking a submitted mandate's load report.
type ReportResult struct {
	RequestID string                `json:"emandate_request_id"`
	FileToken string                `json:"file_token"`
	Result    string                `json:"result"`
	BatchName string                `json:"batch_name,omitempty"`
	Errors    []netcash.ReportError `json:"errors"`
	Status    string                `json:"status"`
}

// CheckLoadReport fetches the NetCash load report for a sent mandate
// request. An unsuccessful load marks the request and its payment method
// failed with the reported errors.
func (s *Service) CheckLoadReport(ctx context.Context, requestID string) (*ReportResult, error) {
	er, err := s.store.GetEmandateRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load emandate request: %w", err)
	}
	if er == nil {
		return nil, ErrRequestNotFound
	}
	if er.FileToken == "" {
		return nil, ErrNotSubmitted
	}

	report, err := s.gateway.RequestLoadReport(ctx, er.FileToken)
	if err != nil {
		return nil, fmt.Errorf("request load report: %w", err)
	}

	res := &ReportResult{
		RequestID: er.ID,
		FileToken: er.FileToken,
		Result:    report.Result,
		BatchName: report.BatchName,
		Errors:    report.Errors,
		Status:    er.Status,
	}
	if report.Result != netcash.ReportUnsuccessful {
		return res, nil
	}

	msg := "Mandate load unsuccessful"
	if len(report.Errors) > 0 {
		parts := make([]string, 0, len(report.Errors))
		for _, e := range report.Errors {
			parts = append(parts, e.Message)
		}
		msg = strings.Join(parts, "; ")
	}
	if err := s.store.UpdateEmandateRequest(ctx, er.ID, "failed", er.FileToken, msg); err != nil {
		return nil, fmt.Errorf("mark emandate request failed: %w", err)
	}
	if er.PaymentMethodID != "" {
		if err := s.store.UpdatePaymentMethodMandate(ctx, er.PaymentMethodID, "failed"); err != nil {
			s.logger.Warn("mark payment method failed", "payment_method_id", er.PaymentMethodID, "error", err)
		}
	}
	s.logger.Warn("mandate load unsuccessful", "emandate_request_id", er.ID, "errors", len(report.Errors))
	res.Status = "failed"
	return res, nil
}

// BuildMandate assembles the NetCash mandate for an order. Debits start on
// debitDay of the month after now.
func BuildMandate(c *store.Customer, o *store.Order, debitDay int, bd *BankDetails, now time.Time) netcash.MandateRequest {
	next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
	m := netcash.MandateRequest{
		AccountReference:    c.AccountNumber,
		MandateName:         strings.TrimSpace(c.FirstName + " " + c.LastName),
		IsConsumer:          true,
		FirstName:           c.FirstName,
		Surname:             c.LastName,
		MobileNumber:        netcash.NormalizeMobile(c.Phone),
		MandateAmount:       o.PackagePrice,
		DebitFrequency:      1,
		CommencementMonth:   int(next.Month()),
		CommencementDay:     fmt.Sprintf("%02d", debitDay),
		AgreementDate:       now,
		AgreementReference:  o.OrderNumber,
		EmailAddress:        c.Email,
		PublicHolidayOption: 1,
		Field1:              o.ID,
		Field2:              o.OrderNumber,
		Field3:              c.ID,
	}
	if bd != nil {
		m.BankDetailType = 1
		m.BankAccountName = bd.AccountName
		m.BankAccountNumber = bd.AccountNumber
		m.BranchCode = bd.BranchCode
		m.BankAccountType = NetcashAccountType(bd.AccountType)
	}
	return m
}

// MaskAccount keeps the last four digits of an account number.
func MaskAccount(number string) string {
	if number == "" {
		return ""
	}
	if len(number) > 4 {
		number = number[len(number)-4:]
	}
	return "****" + number
}

// StoredAccountType maps a checkout account type onto the payment_methods
// values. Cheque accounts are stored as current.
func StoredAccountType(t string) string {
	switch strings.ToLower(t) {
	case "savings":
		return "savings"
	case "transmission":
		return "transmission"
	default:
		return "current"
	}
}

// NetcashAccountType returns the NetCash bank account type code.
func NetcashAccountType(t string) int {
	switch strings.ToLower(t) {
	case "savings":
		return 2
	case "transmission":
		return 3
	default:
		return 1
	}
}
