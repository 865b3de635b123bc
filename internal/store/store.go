// Package store defines the persistence interface for the CircleTel API and
// provides SQLite and PostgreSQL implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ErrConflict is returned when a write violates a uniqueness rule.
var ErrConflict = errors.New("store: conflict")

// Store is the persistence interface for the CircleTel API.
type Store interface {
	// Customers
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetCustomerByAuthUser(ctx context.Context, authUserID string) (*Customer, error)
	UpdateCustomerKYCStatus(ctx context.Context, id, status string) error

	// Orders
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*Order, error)
	GetOrderByPaymentReference(ctx context.Context, ref string) (*Order, error)
	UpdateOrderPayment(ctx context.Context, id string, u OrderPaymentUpdate) error
	UpdateOrderStatus(ctx context.Context, id, status string) error
	ListOrdersDueForBilling(ctx context.Context, date string) ([]Order, error)
	SetOrderNextBillingDate(ctx context.Context, id, date string) error

	// Invoices
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error)
	ListInvoices(ctx context.Context, f InvoiceFilter) ([]Invoice, error)
	ListInvoicesDue(ctx context.Context, dueDate string, statuses, methods []string) ([]Invoice, error)
	ApplyInvoicePayment(ctx context.Context, id string, u InvoicePaymentUpdate) error
	SetInvoiceZohoPayment(ctx context.Context, id, zohoPaymentID string) error
	CountInvoicesForYear(ctx context.Context, year int) (int, error)

	// Payment transactions
	UpsertTransaction(ctx context.Context, tx *PaymentTransaction) error
	GetTransaction(ctx context.Context, transactionID string) (*PaymentTransaction, error)
	SetTransactionZohoSync(ctx context.Context, transactionID, status, zohoPaymentID string) error
	PaymentSyncStats(ctx context.Context, since, staleBefore, dayStart time.Time) (*SyncStats, error)

	// Payment methods
	CreatePaymentMethod(ctx context.Context, pm *PaymentMethod) error
	GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error)
	ListActiveCards(ctx context.Context, customerIDs []string) ([]PaymentMethod, error)
	ListPaymentMethodsByCustomer(ctx context.Context, customerID string) ([]PaymentMethod, error)
	DeleteUnsignedPaymentMethods(ctx context.Context, customerID, accountReference string) (int64, error)
	DeletePaymentMethod(ctx context.Context, id string) error
	UpdatePaymentMethodMandate(ctx context.Context, id, mandateStatus string) error
	TouchCardTokens(ctx context.Context, ids []string, at time.Time) error

	// eMandates
	CreateEmandateRequest(ctx context.Context, r *EmandateRequest) error
	UpdateEmandateRequest(ctx context.Context, id, status, fileToken, errMsg string) error
	GetEmandateRequest(ctx context.Context, id string) (*EmandateRequest, error)

	// Webhook logs
	CreateWebhookLog(ctx context.Context, l *WebhookLog) error
	GetWebhookLog(ctx context.Context, id string) (*WebhookLog, error)
	UpdateWebhookLogStatus(ctx context.Context, id, status string) error
	CompleteWebhookLog(ctx context.Context, id string, c WebhookCompletion) error
	IncrementWebhookRetry(ctx context.Context, id string) (int, error)
	HasProcessedWebhook(ctx context.Context, transactionID, eventType string) (bool, error)
	ListWebhookLogs(ctx context.Context, f WebhookFilter) ([]WebhookLog, error)
	WebhookStats(ctx context.Context, since time.Time) (*WebhookStats, error)
	LogWebhookAudit(ctx context.Context, a *WebhookAudit) error
	ListWebhookAudit(ctx context.Context, webhookLogID string) ([]WebhookAudit, error)

	// Zoho sync logs
	LogZohoSync(ctx context.Context, l *ZohoSyncLog) error
	ListZohoSyncLogs(ctx context.Context, entityType string, limit int) ([]ZohoSyncLog, error)

	// KYC
	UpsertKYBSubject(ctx context.Context, s *KYBSubject) error
	GetKYBSubject(ctx context.Context, id string) (*KYBSubject, error)
	UpdateKYBSubjectStatus(ctx context.Context, id, kycStatus, riskTier string) error
	CreateKYCSession(ctx context.Context, s *KYCSession) error
	GetKYCSessionByDiditID(ctx context.Context, diditSessionID string) (*KYCSession, error)
	UpdateKYCSession(ctx context.Context, s *KYCSession) error
	CreateKYCDocument(ctx context.Context, d *KYCDocument) error
	GetKYCDocument(ctx context.Context, id string) (*KYCDocument, error)
	ListKYCDocuments(ctx context.Context, customerID string) ([]KYCDocument, error)

	// Integrations
	UpsertIntegration(ctx context.Context, i *Integration) error
	GetIntegration(ctx context.Context, slug string) (*Integration, error)
	ListIntegrations(ctx context.Context) ([]Integration, error)
	RecordIntegrationHealth(ctx context.Context, h IntegrationHealth) error
	LogIntegrationWebhook(ctx context.Context, l *IntegrationWebhookLog) error
	ListIntegrationWebhooks(ctx context.Context, slug string, limit int) ([]IntegrationWebhookLog, error)

	// Cron executions
	CreateCronExecution(ctx context.Context, e *CronExecution) error
	CompleteCronExecution(ctx context.Context, e *CronExecution) error
	ListCronExecutions(ctx context.Context, f CronFilter) ([]CronExecution, error)

	// Debit order batches
	UpsertDebitBatch(ctx context.Context, b *DebitOrderBatch) error
	AddDebitBatchItems(ctx context.Context, items []DebitOrderBatchItem) error
	GetDebitBatch(ctx context.Context, batchID string) (*DebitOrderBatch, error)
	ListDebitBatchItems(ctx context.Context, batchID string) ([]DebitOrderBatchItem, error)

	// Business quotes
	CreateQuote(ctx context.Context, q *BusinessQuote, items []QuoteItem) error
	GetQuote(ctx context.Context, id string) (*BusinessQuote, error)
	ListQuotes(ctx context.Context, status string) ([]BusinessQuote, error)
	ListQuoteItems(ctx context.Context, quoteID string) ([]QuoteItem, error)
	UpdateQuoteStatus(ctx context.Context, id, status string, version *QuoteVersion) error
	ListQuoteVersions(ctx context.Context, quoteID string) ([]QuoteVersion, error)
	CountQuotesForYear(ctx context.Context, year int) (int, error)

	// Base stations
	UpsertBaseStations(ctx context.Context, stations []BaseStation) (int, error)
	ListBaseStations(ctx context.Context) ([]BaseStation, error)

	// CMS pages
	CreatePage(ctx context.Context, p *CMSPage) error
	GetPage(ctx context.Context, id string) (*CMSPage, error)
	GetPageBySlug(ctx context.Context, slug string) (*CMSPage, error)
	UpdatePage(ctx context.Context, p *CMSPage) error
	ListPages(ctx context.Context, status string) ([]CMSPage, error)

	// Health
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Customer is a CircleTel account holder.
type Customer struct {
	ID             string    `db:"id" json:"id"`
	AuthUserID     string    `db:"auth_user_id" json:"auth_user_id,omitempty"`
	AccountNumber  string    `db:"account_number" json:"account_number"` // CT-YYYY-NNNNN
	FirstName      string    `db:"first_name" json:"first_name"`
	LastName       string    `db:"last_name" json:"last_name"`
	Email          string    `db:"email" json:"email"`
	Phone          string    `db:"phone" json:"phone,omitempty"`
	ZohoCustomerID string    `db:"zoho_customer_id" json:"zoho_customer_id,omitempty"`
	KYCStatus      string    `db:"kyc_status" json:"kyc_status"` // not_started, pending, approved, declined, pending_review
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns "First Last", trimmed.
func (c *Customer) FullName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	default:
		return c.LastName
	}
}

// Order is a consumer_orders row.
type Order struct {
	ID               string     `db:"id" json:"id"`
	OrderNumber      string     `db:"order_number" json:"order_number"`
	CustomerID       string     `db:"customer_id" json:"customer_id"`
	PackageName      string     `db:"package_name" json:"package_name"`
	PackagePrice     float64    `db:"package_price" json:"package_price"`
	Status           string     `db:"status" json:"status"`
	PaymentStatus    string     `db:"payment_status" json:"payment_status"`
	PaymentMethod    string     `db:"payment_method" json:"payment_method,omitempty"`
	PaymentReference string     `db:"payment_reference" json:"payment_reference,omitempty"`
	PaymentDate      *time.Time `db:"payment_date" json:"payment_date,omitempty"`
	TotalPaid        float64    `db:"total_paid" json:"total_paid"`
	PaymentError     string     `db:"payment_error" json:"payment_error,omitempty"`
	BillingActive    bool       `db:"billing_active" json:"billing_active"`
	BillingDay       int        `db:"billing_day" json:"billing_day,omitempty"`
	NextBillingDate  string     `db:"next_billing_date" json:"next_billing_date,omitempty"` // YYYY-MM-DD
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// OrderPaymentUpdate carries the payment columns written by the webhook processor.
type OrderPaymentUpdate struct {
	Status        string
	PaymentStatus string
	PaymentDate   *time.Time
	TotalPaid     *float64
	PaymentError  string
}

// Invoice is a customer_invoices row. Amounts are in rand.
type Invoice struct {
	ID                      string         `db:"id" json:"id"`
	InvoiceNumber           string         `db:"invoice_number" json:"invoice_number"`
	CustomerID              string         `db:"customer_id" json:"customer_id"`
	OrderID                 string         `db:"order_id" json:"order_id,omitempty"`
	Status                  string         `db:"status" json:"status"` // draft, sent, partial, overdue, paid, cancelled
	InvoiceDate             string         `db:"invoice_date" json:"invoice_date"`
	DueDate                 string         `db:"due_date" json:"due_date"`
	Subtotal                float64        `db:"subtotal" json:"subtotal"`
	VATAmount               float64        `db:"vat_amount" json:"vat_amount"`
	TotalAmount             float64        `db:"total_amount" json:"total_amount"`
	AmountPaid              float64        `db:"amount_paid" json:"amount_paid"`
	AmountDue               float64        `db:"amount_due" json:"amount_due"`
	PaymentCollectionMethod string         `db:"payment_collection_method" json:"payment_collection_method,omitempty"`
	LineItems               types.JSONText `db:"line_items" json:"line_items"`
	ZohoInvoiceID           string         `db:"zoho_invoice_id" json:"zoho_invoice_id,omitempty"`
	ZohoPaymentID           string         `db:"zoho_payment_id" json:"zoho_payment_id,omitempty"`
	PaidAt                  *time.Time     `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt               time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at" json:"updated_at"`
}

// InvoicePaymentUpdate is the result of applying a payment to an invoice.
type InvoicePaymentUpdate struct {
	AmountPaid float64
	AmountDue  float64
	Status     string
	PaidAt     *time.Time
}

// InvoiceFilter narrows ListInvoices.
type InvoiceFilter struct {
	CustomerID string
	Status     string
	Limit      int
	Offset     int
}

// PaymentTransaction is a payment_transactions row, unique by TransactionID.
type PaymentTransaction struct {
	ID             string         `db:"id" json:"id"`
	TransactionID  string         `db:"transaction_id" json:"transaction_id"`
	Reference      string         `db:"reference" json:"reference"`
	Provider       string         `db:"provider" json:"provider"`
	InvoiceID      string         `db:"invoice_id" json:"invoice_id,omitempty"`
	OrderID        string         `db:"order_id" json:"order_id,omitempty"`
	CustomerID     string         `db:"customer_id" json:"customer_id,omitempty"`
	Amount         float64        `db:"amount" json:"amount"`
	Currency       string         `db:"currency" json:"currency"`
	Status         string         `db:"status" json:"status"` // completed, failed, pending, refunded, chargeback, cancelled
	PaymentMethod  string         `db:"payment_method" json:"payment_method,omitempty"`
	ResponseCode   string         `db:"response_code" json:"response_code,omitempty"`
	ResponseText   string         `db:"response_text" json:"response_text,omitempty"`
	RawPayload     types.JSONText `db:"raw_payload" json:"raw_payload"`
	ZohoSyncStatus string         `db:"zoho_sync_status" json:"zoho_sync_status,omitempty"` // pending, synced, failed, skipped
	ZohoPaymentID  string         `db:"zoho_payment_id" json:"zoho_payment_id,omitempty"`
	CompletedAt    *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// SyncStats feeds the payment-sync monitor.
type SyncStats struct {
	FailedSyncs   int `db:"failed_syncs"`
	AttemptedSync int `db:"attempted"`
	SyncedCount   int `db:"synced"`
	StalePending  int `db:"stale_pending"`
	PaymentsToday int `db:"payments_today"`
}

// PaymentMethod is a stored bank mandate or tokenised card.
type PaymentMethod struct {
	ID                  string     `db:"id" json:"id"`
	CustomerID          string     `db:"customer_id" json:"customer_id"`
	OrderID             string     `db:"order_id" json:"order_id,omitempty"`
	MethodType          string     `db:"method_type" json:"method_type"` // bank_account, credit_card
	IsActive            bool       `db:"is_active" json:"is_active"`
	IsPrimary           bool       `db:"is_primary" json:"is_primary"`
	IsVerified          bool       `db:"is_verified" json:"is_verified"`
	MandateStatus       string     `db:"mandate_status" json:"mandate_status,omitempty"` // pending, active, approved, failed, cancelled
	AccountReference    string     `db:"account_reference" json:"account_reference,omitempty"`
	MandateAmount       float64    `db:"mandate_amount" json:"mandate_amount,omitempty"`
	MandateFrequency    string     `db:"mandate_frequency" json:"mandate_frequency,omitempty"`
	DebitDay            int        `db:"debit_day" json:"debit_day,omitempty"`
	BankName            string     `db:"bank_name" json:"bank_name,omitempty"`
	BranchCode          string     `db:"branch_code" json:"branch_code,omitempty"`
	AccountHolder       string     `db:"account_holder" json:"account_holder,omitempty"`
	AccountNumberMasked string     `db:"account_number_masked" json:"account_number_masked,omitempty"`
	AccountType         string     `db:"account_type" json:"account_type,omitempty"`
	CardToken           string     `db:"card_token" json:"-"`
	CardType            string     `db:"card_type" json:"card_type,omitempty"`
	CardLastFour        string     `db:"card_last_four" json:"card_last_four,omitempty"`
	CardExpiryMonth     int        `db:"card_expiry_month" json:"card_expiry_month,omitempty"`
	CardExpiryYear      int        `db:"card_expiry_year" json:"card_expiry_year,omitempty"`
	CardHolderName      string     `db:"card_holder_name" json:"card_holder_name,omitempty"`
	TokenLastUsedAt     *time.Time `db:"token_last_used_at" json:"token_last_used_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// EmandateRequest tracks a debit-order mandate sent to NetCash for signature.
type EmandateRequest struct {
	ID               string         `db:"id" json:"id"`
	OrderID          string         `db:"order_id" json:"order_id"`
	CustomerID       string         `db:"customer_id" json:"customer_id"`
	PaymentMethodID  string         `db:"payment_method_id" json:"payment_method_id"`
	AccountReference string         `db:"account_reference" json:"account_reference"`
	Status           string         `db:"status" json:"status"` // pending, sent, signed, failed, expired
	BillingDay       int            `db:"billing_day" json:"billing_day"`
	FileToken        string         `db:"netcash_file_token" json:"netcash_file_token,omitempty"`
	RequestPayload   types.JSONText `db:"request_payload" json:"request_payload"`
	ErrorMessage     string         `db:"error_message" json:"error_message,omitempty"`
	IPAddress        string         `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent        string         `db:"user_agent" json:"user_agent,omitempty"`
	ExpiresAt        time.Time      `db:"expires_at" json:"expires_at"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// WebhookLog is a webhook_logs row recording one inbound payment notification.
type WebhookLog struct {
	ID                   string         `db:"id" json:"id"`
	Provider             string         `db:"provider" json:"provider"`
	WebhookID            string         `db:"webhook_id" json:"webhook_id"`
	EventType            string         `db:"event_type" json:"event_type"`
	TransactionID        string         `db:"transaction_id" json:"transaction_id,omitempty"`
	Reference            string         `db:"reference" json:"reference,omitempty"`
	Status               string         `db:"status" json:"status"` // received, processing, processed, failed, duplicate
	SignatureVerified    bool           `db:"signature_verified" json:"signature_verified"`
	SourceIP             string         `db:"source_ip" json:"source_ip,omitempty"`
	UserAgent            string         `db:"user_agent" json:"user_agent,omitempty"`
	Headers              types.JSONText `db:"headers" json:"headers"`
	RawPayload           string         `db:"raw_payload" json:"raw_payload"`
	ActionsTaken         types.JSONText `db:"actions_taken" json:"actions_taken"`
	ErrorMessage         string         `db:"error_message" json:"error_message,omitempty"`
	ResponseStatusCode   int            `db:"response_status_code" json:"response_status_code,omitempty"`
	ProcessingDurationMs *int64         `db:"processing_duration_ms" json:"processing_duration_ms,omitempty"`
	RetryCount           int            `db:"retry_count" json:"retry_count"`
	ReceivedAt           time.Time      `db:"received_at" json:"received_at"`
	ProcessedAt          *time.Time     `db:"processed_at" json:"processed_at,omitempty"`
}

// WebhookCompletion closes out a webhook log after processing.
type WebhookCompletion struct {
	Status             string
	ActionsTaken       []string
	ErrorMessage       string
	ResponseStatusCode int
	DurationMs         int64
}

// WebhookFilter narrows ListWebhookLogs.
type WebhookFilter struct {
	Provider string
	Status   string
	Limit    int
}

// WebhookStats summarises webhook processing since a point in time.
type WebhookStats struct {
	Total                  int     `db:"total" json:"total"`
	Processed              int     `db:"processed" json:"processed"`
	Failed                 int     `db:"failed" json:"failed"`
	Pending                int     `db:"pending" json:"pending"`
	SignatureVerifiedCount int     `db:"signature_verified_count" json:"signature_verified_count"`
	AvgProcessingTimeMs    float64 `db:"avg_processing_time" json:"avg_processing_time"`
}

// WebhookAudit is a payment_webhook_audit row: one action taken for a webhook.
type WebhookAudit struct {
	ID           string         `db:"id" json:"id"`
	WebhookLogID string         `db:"webhook_log_id" json:"webhook_log_id"`
	Action       string         `db:"action" json:"action"`
	OrderID      string         `db:"order_id" json:"order_id,omitempty"`
	InvoiceID    string         `db:"invoice_id" json:"invoice_id,omitempty"`
	Success      bool           `db:"success" json:"success"`
	Detail       types.JSONText `db:"detail" json:"detail"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// ZohoSyncLog is a zoho_sync_logs row.
type ZohoSyncLog struct {
	ID              string         `db:"id" json:"id"`
	EntityType      string         `db:"entity_type" json:"entity_type"`
	EntityID        string         `db:"entity_id" json:"entity_id"`
	Operation       string         `db:"operation" json:"operation"`
	Status          string         `db:"status" json:"status"` // synced, failed
	ZohoEntityID    string         `db:"zoho_entity_id" json:"zoho_entity_id,omitempty"`
	RequestPayload  types.JSONText `db:"request_payload" json:"request_payload"`
	ResponsePayload types.JSONText `db:"response_payload" json:"response_payload"`
	ErrorMessage    string         `db:"error_message" json:"error_message,omitempty"`
	DurationMs      int64          `db:"duration_ms" json:"duration_ms"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// KYBSubject is a business (or sole proprietor) undergoing verification.
type KYBSubject struct {
	ID                 string     `db:"id" json:"id"`
	CustomerID         string     `db:"customer_id" json:"customer_id,omitempty"`
	BusinessName       string     `db:"business_name" json:"business_name"`
	RegistrationNumber string     `db:"registration_number" json:"registration_number,omitempty"`
	KYCStatus          string     `db:"kyc_status" json:"kyc_status"`
	RiskTier           string     `db:"risk_tier" json:"risk_tier,omitempty"` // low, medium, high
	VerifiedAt         *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// KYCSession is a Didit verification session.
type KYCSession struct {
	ID                 string         `db:"id" json:"id"`
	DiditSessionID     string         `db:"didit_session_id" json:"didit_session_id"`
	CustomerID         string         `db:"customer_id" json:"customer_id,omitempty"`
	KYBSubjectID       string         `db:"kyb_subject_id" json:"kyb_subject_id,omitempty"`
	Status             string         `db:"status" json:"status"`                                     // not_started, in_progress, completed, abandoned, declined
	VerificationResult string         `db:"verification_result" json:"verification_result,omitempty"` // approved, declined, pending_review
	RiskScore          int            `db:"risk_score" json:"risk_score"`
	RiskTier           string         `db:"risk_tier" json:"risk_tier,omitempty"`
	ExtractedData      types.JSONText `db:"extracted_data" json:"extracted_data"`
	RawWebhookPayload  types.JSONText `db:"raw_webhook_payload" json:"-"`
	WebhookReceivedAt  *time.Time     `db:"webhook_received_at" json:"webhook_received_at,omitempty"`
	CompletedAt        *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// KYCDocument is an uploaded identity or business document held in blob storage.
type KYCDocument struct {
	ID           string    `db:"id" json:"id"`
	CustomerID   string    `db:"customer_id" json:"customer_id"`
	DocumentType string    `db:"document_type" json:"document_type"`
	FileName     string    `db:"file_name" json:"file_name"`
	ContentType  string    `db:"content_type" json:"content_type"`
	SizeBytes    int64     `db:"size_bytes" json:"size_bytes"`
	StorageKey   string    `db:"storage_key" json:"-"`
	Status       string    `db:"status" json:"status"` // uploaded, verified, rejected
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Integration is an integration_registry row.
type Integration struct {
	ID                  string     `db:"id" json:"id"`
	Slug                string     `db:"slug" json:"slug"`
	Name                string     `db:"name" json:"name"`
	Category            string     `db:"category" json:"category"`
	IsEnabled           bool       `db:"is_enabled" json:"is_enabled"`
	HealthCheckEnabled  bool       `db:"health_check_enabled" json:"health_check_enabled"`
	HealthCheckURL      string     `db:"health_check_url" json:"health_check_url,omitempty"`
	HealthStatus        string     `db:"health_status" json:"health_status"` // healthy, degraded, down, unknown
	HealthLastCheckedAt *time.Time `db:"health_last_checked_at" json:"health_last_checked_at,omitempty"`
	LastResponseTimeMs  int64      `db:"last_response_time_ms" json:"last_response_time_ms"`
	ConsecutiveFailures int        `db:"consecutive_failures" json:"consecutive_failures"`
	HasActiveAlert      bool       `db:"has_active_alert" json:"has_active_alert"`
	LastError           string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// IntegrationHealth is one probe outcome written back to the registry.
type IntegrationHealth struct {
	Slug                string
	Status              string
	CheckedAt           time.Time
	ResponseTimeMs      int64
	ConsecutiveFailures int
	HasActiveAlert      bool
	LastError           string
}

// IntegrationWebhookLog records an inbound third-party webhook.
type IntegrationWebhookLog struct {
	ID                string         `db:"id" json:"id"`
	IntegrationSlug   string         `db:"integration_slug" json:"integration_slug"`
	EventType         string         `db:"event_type" json:"event_type"`
	Status            string         `db:"status" json:"status"` // processed, failed, duplicate
	SignatureVerified bool           `db:"signature_verified" json:"signature_verified"`
	Payload           types.JSONText `db:"payload" json:"payload"`
	ErrorMessage      string         `db:"error_message" json:"error_message,omitempty"`
	ReceivedAt        time.Time      `db:"received_at" json:"received_at"`
}

// CronExecution is a cron_execution_log row.
type CronExecution struct {
	ID               string         `db:"id" json:"id"`
	JobName          string         `db:"job_name" json:"job_name"`
	Status           string         `db:"status" json:"status"`             // running, completed, completed_with_errors, failed
	TriggeredBy      string         `db:"triggered_by" json:"triggered_by"` // cron, manual, scheduler, cli
	StartedAt        time.Time      `db:"started_at" json:"started_at"`
	CompletedAt      *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	ExecutionTimeMs  int64          `db:"execution_time_ms" json:"execution_time_ms"`
	RecordsProcessed int            `db:"records_processed" json:"records_processed"`
	RecordsFailed    int            `db:"records_failed" json:"records_failed"`
	Details          types.JSONText `db:"details" json:"details"`
	ErrorMessage     string         `db:"error_message" json:"error_message,omitempty"`
}

// CronFilter narrows ListCronExecutions.
type CronFilter struct {
	JobName string
	Status  string
	Limit   int
}

// DebitOrderBatch is a NetCash batch submission.
type DebitOrderBatch struct {
	ID           string     `db:"id" json:"id"`
	BatchID      string     `db:"batch_id" json:"batch_id"`
	BatchName    string     `db:"batch_name" json:"batch_name"`
	BatchType    string     `db:"batch_type" json:"batch_type"` // credit_card, debit_order
	ActionDate   string     `db:"action_date" json:"action_date"`
	ItemCount    int        `db:"item_count" json:"item_count"`
	TotalAmount  float64    `db:"total_amount" json:"total_amount"`
	Status       string     `db:"status" json:"status"` // submitted, authorised, failed
	ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
	SubmittedAt  time.Time  `db:"submitted_at" json:"submitted_at"`
	AuthorisedAt *time.Time `db:"authorised_at" json:"authorised_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// DebitOrderBatchItem is one debit within a batch.
type DebitOrderBatchItem struct {
	ID               string    `db:"id" json:"id"`
	BatchID          string    `db:"batch_id" json:"batch_id"`
	InvoiceID        string    `db:"invoice_id" json:"invoice_id,omitempty"`
	OrderID          string    `db:"order_id" json:"order_id,omitempty"`
	CustomerID       string    `db:"customer_id" json:"customer_id"`
	PaymentMethodID  string    `db:"payment_method_id" json:"payment_method_id,omitempty"`
	AccountReference string    `db:"account_reference" json:"account_reference"`
	Amount           float64   `db:"amount" json:"amount"`
	Status           string    `db:"status" json:"status"` // pending, successful, failed
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// BusinessQuote is a B2B quote.
type BusinessQuote struct {
	ID           string    `db:"id" json:"id"`
	QuoteNumber  string    `db:"quote_number" json:"quote_number"`
	CustomerID   string    `db:"customer_id" json:"customer_id,omitempty"`
	CompanyName  string    `db:"company_name" json:"company_name"`
	ContactName  string    `db:"contact_name" json:"contact_name"`
	ContactEmail string    `db:"contact_email" json:"contact_email"`
	Status       string    `db:"status" json:"status"` // draft, sent, accepted, rejected, expired
	Subtotal     float64   `db:"subtotal" json:"subtotal"`
	VATAmount    float64   `db:"vat_amount" json:"vat_amount"`
	TotalAmount  float64   `db:"total_amount" json:"total_amount"`
	ValidUntil   string    `db:"valid_until" json:"valid_until"`
	Notes        string    `db:"notes" json:"notes,omitempty"`
	Version      int       `db:"version" json:"version"`
	CreatedBy    string    `db:"created_by" json:"created_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// QuoteItem is a line on a business quote.
type QuoteItem struct {
	ID          string  `db:"id" json:"id"`
	QuoteID     string  `db:"quote_id" json:"quote_id"`
	Position    int     `db:"position" json:"position"`
	Description string  `db:"description" json:"description"`
	ItemType    string  `db:"item_type" json:"item_type"` // monthly, once_off
	Quantity    int     `db:"quantity" json:"quantity"`
	UnitPrice   float64 `db:"unit_price" json:"unit_price"`
	LineTotal   float64 `db:"line_total" json:"line_total"`
}

// QuoteVersion is a snapshot taken when a quote changes status.
type QuoteVersion struct {
	ID        string         `db:"id" json:"id"`
	QuoteID   string         `db:"quote_id" json:"quote_id"`
	Version   int            `db:"version" json:"version"`
	Status    string         `db:"status" json:"status"`
	Snapshot  types.JSONText `db:"snapshot" json:"snapshot"`
	ChangedBy string         `db:"changed_by" json:"changed_by"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// BaseStation is a wireless tower used for coverage checks.
type BaseStation struct {
	ID         string    `db:"id" json:"id"`
	SiteCode   string    `db:"site_code" json:"site_code"`
	Name       string    `db:"name" json:"name"`
	Provider   string    `db:"provider" json:"provider"` // tarana, mtn
	Technology string    `db:"technology" json:"technology"`
	Latitude   float64   `db:"latitude" json:"latitude"`
	Longitude  float64   `db:"longitude" json:"longitude"`
	Status     string    `db:"status" json:"status"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CMSPage is a marketing page managed through the admin CMS.
type CMSPage struct {
	ID          string     `db:"id" json:"id"`
	Slug        string     `db:"slug" json:"slug"`
	Title       string     `db:"title" json:"title"`
	Content     string     `db:"content" json:"content"`
	Status      string     `db:"status" json:"status"` // draft, in_review, published, archived
	AuthorID    string     `db:"author_id" json:"author_id"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
