package netcash

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultSoftwareVendorKey identifies CircleTel as the integrating vendor.
const DefaultSoftwareVendorKey = "24ade73c-98cf-47b3-99be-cc7b867b3080"

var mandateErrorCodes = map[string]bool{"100": true, "101": true, "102": true, "200": true}

// MandateRequest is one eMandate record in a BatchFileUpload file.
type MandateRequest struct {
	AccountReference    string    `json:"account_reference"`
	MandateName         string    `json:"mandate_name"`
	IsConsumer          bool      `json:"is_consumer"`
	FirstName           string    `json:"first_name"`
	Surname             string    `json:"surname"`
	MobileNumber        string    `json:"mobile_number"`
	MandateAmount       float64   `json:"mandate_amount"`
	DebitFrequency      int       `json:"debit_frequency"`
	CommencementMonth   int       `json:"commencement_month"`
	CommencementDay     string    `json:"commencement_day"`
	AgreementDate       time.Time `json:"agreement_date"`
	AgreementReference  string    `json:"agreement_reference"`
	EmailAddress        string    `json:"email_address,omitempty"`
	SkipSend            bool      `json:"skip_send,omitempty"`
	PublicHolidayOption int       `json:"public_holiday_option,omitempty"`

	BankDetailType    int    `json:"bank_detail_type,omitempty"`
	BankAccountName   string `json:"bank_account_name,omitempty"`
	BankAccountType   int    `json:"bank_account_type,omitempty"`
	BranchCode        string `json:"branch_code,omitempty"`
	BankAccountNumber string `json:"-"`

	Field1 string `json:"field1,omitempty"`
	Field2 string `json:"field2,omitempty"`
	Field3 string `json:"field3,omitempty"`
}

// MandateService submits eMandate batches and reads their load reports.
type MandateService struct {
	soap       *SOAPClient
	serviceKey string
	vendorKey  string
	now        func() time.Time
}

// NewMandateService creates an eMandate service sharing the batch service's
// NIWS endpoint and keys.
func NewMandateService(s *BatchService, vendorKey string) *MandateService {
	if vendorKey == "" {
		vendorKey = DefaultSoftwareVendorKey
	}
	return &MandateService{soap: s.soap, serviceKey: s.serviceKey, vendorKey: vendorKey, now: s.now}
}

// Configured reports whether the debit order service key is set.
func (s *MandateService) Configured() bool { return s.serviceKey != "" }

// SubmitMandate uploads a single mandate request and returns the file token.
func (s *MandateService) SubmitMandate(ctx context.Context, req MandateRequest) (string, error) {
	return s.SubmitBatch(ctx, "CircleTel-"+req.AccountReference, []MandateRequest{req})
}

// SubmitBatch uploads mandate requests via BatchFileUpload and returns the
// file token.
func (s *MandateService) SubmitBatch(ctx context.Context, name string, reqs []MandateRequest) (string, error) {
	if !s.Configured() {
		return "", fmt.Errorf("NetCash Debit Order Service Key not configured: %w", ErrNotConfigured)
	}
	if len(reqs) == 0 {
		return "", &APIError{Method: "BatchFileUpload", Code: "NO_ITEMS", Message: "No mandate requests provided"}
	}
	file := s.BuildFile(name, reqs)

	result, err := s.soap.Call(ctx, "BatchFileUpload", func(b *xmlBuilder) {
		b.elem("tem:ServiceKey", s.serviceKey)
		b.elem("tem:File", file)
	})
	if err != nil {
		return "", err
	}
	if mandateErrorCodes[result] {
		return "", &APIError{Method: "BatchFileUpload", Code: result, Message: resultMessage(result)}
	}
	return result, nil
}

// BuildFile renders the tab-delimited H/K/T/F mandate file.
func (s *MandateService) BuildFile(name string, reqs []MandateRequest) string {
	if name == "" {
		name = fmt.Sprintf("CircleTel-Batch-%d", s.now().UnixMilli())
	}
	var hasEmail, hasBank, hasCustom bool
	for _, r := range reqs {
		hasEmail = hasEmail || r.EmailAddress != ""
		hasBank = hasBank || r.BankDetailType != 0
		hasCustom = hasCustom || r.Field1 != "" || r.Field2 != "" || r.Field3 != ""
	}

	keys := []string{"101", "102", "110", "114", "113", "202", "161", "530", "531", "532", "534", "535", "540", "541"}
	if hasEmail {
		keys = append(keys, "201")
	}
	if hasBank {
		keys = append(keys, "131", "132", "133", "134", "135", "136")
	}
	if hasCustom {
		keys = append(keys, "311", "312", "313")
	}

	lines := make([]string, 0, len(reqs)+3)
	lines = append(lines, strings.Join([]string{"H", s.serviceKey, "1", "Mandates", name, FormatDate(s.now()), s.vendorKey}, "\t"))
	lines = append(lines, "K\t"+strings.Join(keys, "\t"))

	var totalCents int64
	for _, r := range reqs {
		cents := toCents(r.MandateAmount)
		totalCents += cents
		f := []string{
			"T",
			truncate(r.AccountReference, 22),
			truncate(r.MandateName, 50),
			boolFlag(r.IsConsumer),
			truncate(r.FirstName, 50),
			truncate(r.Surname, 50),
			NormalizeMobile(r.MobileNumber),
			strconv.FormatInt(cents, 10),
			strconv.Itoa(r.DebitFrequency),
			fmt.Sprintf("%02d", r.CommencementMonth),
			r.CommencementDay,
			FormatDate(r.AgreementDate),
			truncate(r.AgreementReference, 50),
			boolFlag(!r.SkipSend),
			strconv.Itoa(r.PublicHolidayOption),
		}
		if hasEmail {
			f = append(f, r.EmailAddress)
		}
		if hasBank {
			f = append(f,
				strconv.Itoa(orDefault(r.BankDetailType, 1)),
				r.BankAccountName,
				strconv.Itoa(orDefault(r.BankAccountType, 1)),
				r.BranchCode,
				"0",
				r.BankAccountNumber,
			)
		}
		if hasCustom {
			f = append(f, r.Field1, r.Field2, r.Field3)
		}
		lines = append(lines, strings.Join(f, "\t"))
	}

	lines = append(lines, strings.Join([]string{"F", strconv.Itoa(len(reqs)), strconv.FormatInt(totalCents, 10), "9999"}, "\t"))
	return strings.Join(lines, "\n")
}

// Load report outcomes.
const (
	ReportSuccessful           = "SUCCESSFUL"
	ReportUnsuccessful         = "UNSUCCESSFUL"
	ReportSuccessfulWithErrors = "SUCCESSFUL WITH ERRORS"
)

// LoadReport is the parsed result of RequestFileUploadReport.
type LoadReport struct {
	BatchName string        `json:"batch_name"`
	Result    string        `json:"result"`
	Errors    []ReportError `json:"errors"`
}

// Successful reports whether every record loaded.
func (r *LoadReport) Successful() bool { return r.Result == ReportSuccessful }

// ReportError is one rejected line of an uploaded file.
type ReportError struct {
	AccountReference string `json:"account_reference"`
	LineNumber       int    `json:"line_number"`
	Message          string `json:"message"`
}

// RequestLoadReport fetches and parses the load report for a file token.
func (s *MandateService) RequestLoadReport(ctx context.Context, fileToken string) (*LoadReport, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	result, err := s.soap.Call(ctx, "RequestFileUploadReport", func(b *xmlBuilder) {
		b.elem("tem:ServiceKey", s.serviceKey)
		b.elem("tem:FileToken", fileToken)
	})
	if err != nil {
		return nil, err
	}
	if result == "" {
		return nil, errors.New("Could not parse load report")
	}
	return ParseLoadReport(result), nil
}

var reportLinePattern = regexp.MustCompile(`Line\s*:\s*(\d+)`)

// ParseLoadReport parses a tab-delimited NetCash load report.
func ParseLoadReport(report string) *LoadReport {
	out := &LoadReport{Errors: []ReportError{}}
	for _, line := range strings.Split(report, "\n") {
		line = strings.TrimRight(line, "\r")
		parts := strings.Split(line, "\t")
		switch {
		case strings.HasPrefix(line, "###BEGIN"):
			if len(parts) > 1 {
				out.BatchName = parts[1]
			}
			if len(parts) > 2 {
				switch status := parts[2]; {
				case strings.Contains(status, ReportSuccessfulWithErrors):
					out.Result = ReportSuccessfulWithErrors
				case strings.Contains(status, ReportUnsuccessful):
					out.Result = ReportUnsuccessful
				case strings.Contains(status, ReportSuccessful):
					out.Result = ReportSuccessful
				}
			}
		case strings.HasPrefix(line, "###ERROR"):
			msg := "Unknown error"
			if len(parts) > 1 && parts[1] != "" {
				msg = parts[1]
			}
			out.Errors = append(out.Errors, ReportError{Message: msg})
		case strings.HasPrefix(line, "###"), strings.TrimSpace(line) == "":
		case len(parts) >= 3:
			e := ReportError{AccountReference: parts[0], Message: parts[2]}
			if m := reportLinePattern.FindStringSubmatch(parts[1]); m != nil {
				e.LineNumber, _ = strconv.Atoi(m[1])
			}
			out.Errors = append(out.Errors, e)
		}
	}
	return out
}

var nonDigits = regexp.MustCompile(`\D`)

// NormalizeMobile reduces a phone number to 10 local digits (27... → 0...).
func NormalizeMobile(phone string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	if strings.HasPrefix(digits, "27") && len(digits) == 11 {
		digits = "0" + digits[2:]
	}
	if len(digits) > 10 {
		digits = digits[:10]
	}
	if len(digits) < 10 {
		digits = strings.Repeat("0", 10-len(digits)) + digits
	}
	return digits
}

func toCents(rand float64) int64 {
	if rand < 0 {
		return int64(rand*100 - 0.5)
	}
	return int64(rand*100 + 0.5)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
