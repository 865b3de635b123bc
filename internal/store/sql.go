package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL stores.
// Queries are written with ? placeholders and rebound for the driver.
type sqlStore struct {
	db *sqlx.DB
}

func now() time.Time { return time.Now().UTC() }

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func jsonOrEmpty(j types.JSONText) types.JSONText {
	if len(j) == 0 {
		return types.JSONText("{}")
	}
	return j
}

func marshalJSON(v any) (types.JSONText, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return types.JSONText(b), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *sqlStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return res, err
}

func (s *sqlStore) named(ctx context.Context, q string, arg any) error {
	_, err := s.db.NamedExecContext(ctx, q, arg)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// get scans one row into dest. It reports false with a nil error when no row matched.
func (s *sqlStore) get(ctx context.Context, dest any, q string, args ...any) (bool, error) {
	err := s.db.GetContext(ctx, dest, s.db.Rebind(q), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqlStore) selectIn(ctx context.Context, dest any, q string, args ...any) error {
	query, inArgs, err := sqlx.In(q, args...)
	if err != nil {
		return err
	}
	return s.db.SelectContext(ctx, dest, s.db.Rebind(query), inArgs...)
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// --- Customers ---

const customerCols = `id, auth_user_id, account_number, first_name, last_name, email, phone, zoho_customer_id, kyc_status, created_at, updated_at`

func (s *sqlStore) CreateCustomer(ctx context.Context, c *Customer) error {
	c.ID = newID(c.ID)
	if c.KYCStatus == "" {
		c.KYCStatus = "not_started"
	}
	c.CreatedAt, c.UpdatedAt = now(), now()
	return s.named(ctx, `INSERT INTO customers (`+customerCols+`)
		VALUES (:id, :auth_user_id, :account_number, :first_name, :last_name, :email, :phone, :zoho_customer_id, :kyc_status, :created_at, :updated_at)`, c)
}

func (s *sqlStore) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var c Customer
	ok, err := s.get(ctx, &c, `SELECT `+customerCols+` FROM customers WHERE id = ?`, id)
	if !ok {
		return nil, err
	}
	return &c, nil
}

func (s *sqlStore) GetCustomerByAuthUser(ctx context.Context, authUserID string) (*Customer, error) {
	var c Customer
	ok, err := s.get(ctx, &c, `SELECT `+customerCols+` FROM customers WHERE auth_user_id = ?`, authUserID)
	if !ok {
		return nil, err
	}
	return &c, nil
}

func (s *sqlStore) UpdateCustomerKYCStatus(ctx context.Context, id, status string) error {
	_, err := s.exec(ctx, `UPDATE customers SET kyc_status = ?, updated_at = ? WHERE id = ?`, status, now(), id)
	return err
}

// --- Orders ---

const orderCols = `id, order_number, customer_id, package_name, package_price, status, payment_status, payment_method,
	payment_reference, payment_date, total_paid, payment_error, billing_active, billing_day, next_billing_date, created_at, updated_at`

func (s *sqlStore) CreateOrder(ctx context.Context, o *Order) error {
	o.ID = newID(o.ID)
	if o.Status == "" {
		o.Status = "pending"
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = "pending"
	}
	o.CreatedAt, o.UpdatedAt = now(), now()
	return s.named(ctx, `INSERT INTO consumer_orders (`+orderCols+`)
		VALUES (:id, :order_number, :customer_id, :package_name, :package_price, :status, :payment_status, :payment_method,
		:payment_reference, :payment_date, :total_paid, :payment_error, :billing_active, :billing_day, :next_billing_date, :created_at, :updated_at)`, o)
}

func (s *sqlStore) getOrder(ctx context.Context, where string, arg any) (*Order, error) {
	var o Order
	ok, err := s.get(ctx, &o, `SELECT `+orderCols+` FROM consumer_orders WHERE `+where, arg)
	if !ok {
		return nil, err
	}
	return &o, nil
}

func (s *sqlStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.getOrder(ctx, "id = ?", id)
}

func (s *sqlStore) GetOrderByNumber(ctx context.Context, number string) (*Order, error) {
	return s.getOrder(ctx, "order_number = ?", number)
}

func (s *sqlStore) GetOrderByPaymentReference(ctx context.Context, ref string) (*Order, error) {
	return s.getOrder(ctx, "payment_reference = ?", ref)
}

func (s *sqlStore) UpdateOrderPayment(ctx context.Context, id string, u OrderPaymentUpdate) error {
	sets := []string{"payment_error = ?", "updated_at = ?"}
	args := []any{u.PaymentError, now()}
	if u.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, u.Status)
	}
	if u.PaymentStatus != "" {
		sets = append(sets, "payment_status = ?")
		args = append(args, u.PaymentStatus)
	}
	if u.PaymentDate != nil {
		sets = append(sets, "payment_date = ?")
		args = append(args, u.PaymentDate.UTC())
	}
	if u.TotalPaid != nil {
		sets = append(sets, "total_paid = ?")
		args = append(args, *u.TotalPaid)
	}
	args = append(args, id)
	res, err := s.exec(ctx, `UPDATE consumer_orders SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *sqlStore) UpdateOrderStatus(ctx context.Context, id, status string) error {
	_, err := s.exec(ctx, `UPDATE consumer_orders SET status = ?, updated_at = ? WHERE id = ?`, status, now(), id)
	return err
}

func (s *sqlStore) ListOrdersDueForBilling(ctx context.Context, date string) ([]Order, error) {
	var orders []Order
	err := s.selectIn(ctx, &orders, `SELECT `+orderCols+` FROM consumer_orders
		WHERE status = 'active' AND billing_active = ? AND payment_method IN (?) AND next_billing_date = ?
		ORDER BY order_number`, true, []string{"debit_order", "Debit Order"}, date)
	return orders, err
}

func (s *sqlStore) SetOrderNextBillingDate(ctx context.Context, id, date string) error {
	_, err := s.exec(ctx, `UPDATE consumer_orders SET next_billing_date = ?, updated_at = ? WHERE id = ?`, date, now(), id)
	return err
}

// --- Invoices ---

const invoiceCols = `id, invoice_number, customer_id, order_id, status, invoice_date, due_date, subtotal, vat_amount, total_amount,
	amount_paid, amount_due, payment_collection_method, line_items, zoho_invoice_id, zoho_payment_id, paid_at, created_at, updated_at`

func (s *sqlStore) CreateInvoice(ctx context.Context, inv *Invoice) error {
	inv.ID = newID(inv.ID)
	if inv.Status == "" {
		inv.Status = "draft"
	}
	inv.LineItems = jsonOrEmpty(inv.LineItems)
	inv.CreatedAt, inv.UpdatedAt = now(), now()
	return s.named(ctx, `INSERT INTO customer_invoices (`+invoiceCols+`)
		VALUES (:id, :invoice_number, :customer_id, :order_id, :status, :invoice_date, :due_date, :subtotal, :vat_amount, :total_amount,
		:amount_paid, :amount_due, :payment_collection_method, :line_items, :zoho_invoice_id, :zoho_payment_id, :paid_at, :created_at, :updated_at)`, inv)
}

func (s *sqlStore) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	var inv Invoice
	ok, err := s.get(ctx, &inv, `SELECT `+invoiceCols+` FROM customer_invoices WHERE id = ?`, id)
	if !ok {
		return nil, err
	}
	return &inv, nil
}

func (s *sqlStore) GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error) {
	var inv Invoice
	ok, err := s.get(ctx, &inv, `SELECT `+invoiceCols+` FROM customer_invoices WHERE invoice_number = ?`, number)
	if !ok {
		return nil, err
	}
	return &inv, nil
}

func (s *sqlStore) ListInvoices(ctx context.Context, f InvoiceFilter) ([]Invoice, error) {
	q := `SELECT ` + invoiceCols + ` FROM customer_invoices WHERE 1=1`
	var args []any
	if f.CustomerID != "" {
		q += " AND customer_id = ?"
		args = append(args, f.CustomerID)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	var invoices []Invoice
	err := s.db.SelectContext(ctx, &invoices, s.db.Rebind(q), args...)
	return invoices, err
}

func (s *sqlStore) ListInvoicesDue(ctx context.Context, dueDate string, statuses, methods []string) ([]Invoice, error) {
	var invoices []Invoice
	err := s.selectIn(ctx, &invoices, `SELECT `+invoiceCols+` FROM customer_invoices
		WHERE due_date = ? AND status IN (?) AND payment_collection_method IN (?) AND amount_due > 0
		ORDER BY invoice_number`, dueDate, statuses, methods)
	return invoices, err
}

func (s *sqlStore) ApplyInvoicePayment(ctx context.Context, id string, u InvoicePaymentUpdate) error {
	var paidAt any
	if u.PaidAt != nil {
		paidAt = u.PaidAt.UTC()
	}
	_, err := s.exec(ctx, `UPDATE customer_invoices
		SET amount_paid = ?, amount_due = ?, status = ?, paid_at = COALESCE(?, paid_at), updated_at = ?
		WHERE id = ?`, u.AmountPaid, u.AmountDue, u.Status, paidAt, now(), id)
	return err
}

func (s *sqlStore) SetInvoiceZohoPayment(ctx context.Context, id, zohoPaymentID string) error {
	_, err := s.exec(ctx, `UPDATE customer_invoices SET zoho_payment_id = ?, updated_at = ? WHERE id = ?`, zohoPaymentID, now(), id)
	return err
}

func (s *sqlStore) CountInvoicesForYear(ctx context.Context, year int) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM customer_invoices WHERE invoice_number LIKE ?`),
		fmt.Sprintf("INV-%d-%%", year))
	return n, err
}

// --- Payment transactions ---

const txCols = `id, transaction_id, reference, provider, invoice_id, order_id, customer_id, amount, currency, status, payment_method,
	response_code, response_text, raw_payload, zoho_sync_status, zoho_payment_id, completed_at, created_at, updated_at`

// UpsertTransaction inserts a transaction or updates the existing row with the same transaction_id.
// The stored row's ID and created_at are loaded back into tx.
func (s *sqlStore) UpsertTransaction(ctx context.Context, tx *PaymentTransaction) error {
	tx.ID = newID(tx.ID)
	tx.RawPayload = jsonOrEmpty(tx.RawPayload)
	if tx.Currency == "" {
		tx.Currency = "ZAR"
	}
	tx.CreatedAt, tx.UpdatedAt = now(), now()
	err := s.named(ctx, `INSERT INTO payment_transactions (`+txCols+`)
		VALUES (:id, :transaction_id, :reference, :provider, :invoice_id, :order_id, :customer_id, :amount, :currency, :status, :payment_method,
		:response_code, :response_text, :raw_payload, :zoho_sync_status, :zoho_payment_id, :completed_at, :created_at, :updated_at)
		ON CONFLICT (transaction_id) DO UPDATE SET
			status = excluded.status,
			amount = excluded.amount,
			reference = excluded.reference,
			invoice_id = excluded.invoice_id,
			order_id = excluded.order_id,
			customer_id = excluded.customer_id,
			payment_method = excluded.payment_method,
			response_code = excluded.response_code,
			response_text = excluded.response_text,
			raw_payload = excluded.raw_payload,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`, tx)
	if err != nil {
		return err
	}
	stored, err := s.GetTransaction(ctx, tx.TransactionID)
	if err != nil {
		return err
	}
	if stored != nil {
		tx.ID, tx.CreatedAt = stored.ID, stored.CreatedAt
		tx.ZohoSyncStatus, tx.ZohoPaymentID = stored.ZohoSyncStatus, stored.ZohoPaymentID
	}
	return nil
}

func (s *sqlStore) GetTransaction(ctx context.Context, transactionID string) (*PaymentTransaction, error) {
	var tx PaymentTransaction
	ok, err := s.get(ctx, &tx, `SELECT `+txCols+` FROM payment_transactions WHERE transaction_id = ?`, transactionID)
	if !ok {
		return nil, err
	}
	return &tx, nil
}

func (s *sqlStore) SetTransactionZohoSync(ctx context.Context, transactionID, status, zohoPaymentID string) error {
	_, err := s.exec(ctx, `UPDATE payment_transactions
		SET zoho_sync_status = ?, zoho_payment_id = CASE WHEN ? = '' THEN zoho_payment_id ELSE ? END, updated_at = ?
		WHERE transaction_id = ?`, status, zohoPaymentID, zohoPaymentID, now(), transactionID)
	return err
}

func (s *sqlStore) PaymentSyncStats(ctx context.Context, since, staleBefore, dayStart time.Time) (*SyncStats, error) {
	var st SyncStats
	err := s.db.GetContext(ctx, &st, s.db.Rebind(`SELECT
		(SELECT COUNT(*) FROM payment_transactions WHERE zoho_sync_status = 'failed' AND updated_at >= ?) AS failed_syncs,
		(SELECT COUNT(*) FROM payment_transactions WHERE zoho_sync_status <> '' AND created_at >= ?) AS attempted,
		(SELECT COUNT(*) FROM payment_transactions WHERE zoho_sync_status = 'synced' AND created_at >= ?) AS synced,
		(SELECT COUNT(*) FROM payment_transactions WHERE zoho_sync_status = 'pending' AND created_at < ?) AS stale_pending,
		(SELECT COUNT(*) FROM payment_transactions WHERE status = 'completed' AND created_at >= ?) AS payments_today`),
		since.UTC(), since.UTC(), since.UTC(), staleBefore.UTC(), dayStart.UTC())
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// --- Payment methods ---

const pmCols = `id, customer_id, order_id, method_type, is_active, is_primary, is_verified, mandate_status, account_reference,
	mandate_amount, mandate_frequency, debit_day, bank_name, branch_code, account_holder, account_number_masked, account_type,
	card_token, card_type, card_last_four, card_expiry_month, card_expiry_year, card_holder_name, token_last_used_at, created_at, updated_at`

func (s *sqlStore) CreatePaymentMethod(ctx context.Context, pm *PaymentMethod) error {
	pm.ID = newID(pm.ID)
	pm.CreatedAt, pm.UpdatedAt = now(), now()
	return s.named(ctx, `INSERT INTO payment_methods (`+pmCols+`)
		VALUES (:id, :customer_id, :order_id, :method_type, :is_active, :is_primary, :is_verified, :mandate_status, :account_reference,
		:mandate_amount, :mandate_frequency, :debit_day, :bank_name, :branch_code, :account_holder, :account_number_masked, :account_type,
		:card_token, :card_type, :card_last_four, :card_expiry_month, :card_expiry_year, :card_holder_name, :token_last_used_at, :created_at, :updated_at)`, pm)
}

func (s *sqlStore) GetPaymentMethod(ctx context.Context, id string) (*PaymentMethod, error) {
	var pm PaymentMethod
	ok, err := s.get(ctx, &pm, `SELECT `+pmCols+` FROM payment_methods WHERE id = ?`, id)
	if !ok {
		return nil, err
	}
	return &pm, nil
}

func (s *sqlStore) ListActiveCards(ctx context.Context, customerIDs []string) ([]PaymentMethod, error) {
	if len(customerIDs) == 0 {
		return nil, nil
	}
	var pms []PaymentMethod
	err := s.selectIn(ctx, &pms, `SELECT `+pmCols+` FROM payment_methods
		WHERE method_type = 'credit_card' AND is_active = ? AND card_token <> '' AND customer_id IN (?)
		ORDER BY is_primary DESC, created_at DESC`, true, customerIDs)
	return pms, err
}

func (s *sqlStore) ListPaymentMethodsByCustomer(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	var pms []PaymentMethod
	err := s.db.SelectContext(ctx, &pms, s.db.Rebind(`SELECT `+pmCols+` FROM payment_methods
		WHERE customer_id = ? ORDER BY is_primary DESC, created_at DESC`), customerID)
	return pms, err
}

// DeleteUnsignedPaymentMethods removes mandates for the same account reference that were never signed.
func (s *sqlStore) DeleteUnsignedPaymentMethods(ctx context.Context, customerID, accountReference string) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM payment_methods
		WHERE customer_id = ? AND account_reference = ? AND method_type = 'bank_account'
		AND mandate_status NOT IN ('active', 'approved')`, customerID, accountReference)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqlStore) DeletePaymentMethod(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `DELETE FROM payment_methods WHERE id = ?`, id)
	return err
}

func (s *sqlStore) UpdatePaymentMethodMandate(ctx context.Context, id, mandateStatus string) error {
	verified := mandateStatus == "active" || mandateStatus == "approved"
	_, err := s.exec(ctx, `UPDATE payment_methods SET mandate_status = ?, is_verified = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		mandateStatus, verified, mandateStatus != "failed" && mandateStatus != "cancelled", now(), id)
	return err
}

func (s *sqlStore) TouchCardTokens(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`UPDATE payment_methods SET token_last_used_at = ?, updated_at = ? WHERE id IN (?)`, at.UTC(), now(), ids)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, q, args...)
	return err
}

// --- eMandates ---

const emandateCols = `id, order_id, customer_id, payment_method_id, account_reference, status, billing_day, netcash_file_token,
	request_payload, error_message, ip_address, user_agent, expires_at, created_at, updated_at`

func (s *sqlStore) CreateEmandateRequest(ctx context.Context, r *EmandateRequest) error {
	r.ID = newID(r.ID)
	r.RequestPayload = jsonOrEmpty(r.RequestPayload)
	r.CreatedAt, r.UpdatedAt = now(), now()
	r.ExpiresAt = r.ExpiresAt.UTC()
	return s.named(ctx, `INSERT INTO emandate_requests (`+emandateCols+`)
		VALUES (:id, :order_id, :customer_id, :payment_method_id, :account_reference, :status, :billing_day, :netcash_file_token,
		:request_payload, :error_message, :ip_address, :user_agent, :expires_at, :created_at, :updated_at)`, r)
}

func (s *sqlStore) UpdateEmandateRequest(ctx context.Context, id, status, fileToken, errMsg string) error {
	_, err := s.exec(ctx, `UPDATE emandate_requests SET status = ?, netcash_file_token = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, fileToken, errMsg, now(), id)
	return err
}

func (s *sqlStore) GetEmandateRequest(ctx context.Context, id string) (*EmandateRequest, error) {
	var r EmandateRequest
	ok, err := s.get(ctx, &r, `SELECT `+emandateCols+` FROM emandate_requests WHERE id = ?`, id)
	if !ok {
		return nil, err
	}
	return &r, nil
}

// --- Webhook logs ---

const webhookCols = `id, provider, webhook_id, event_type, transaction_id, reference, status, signature_verified, source_ip, user_agent,
	headers, raw_payload, actions_taken, error_message, response_status_code, processing_duration_ms, retry_count, received_at, processed_at`

func (s *sqlStore) CreateWebhookLog(ctx context.Context, l *WebhookLog) error {
	l.ID = newID(l.ID)
	l.Headers = jsonOrEmpty(l.Headers)
	if len(l.ActionsTaken) == 0 {
		l.ActionsTaken = types.JSONText("[]")
	}
	if l.ReceivedAt.IsZero() {
		l.ReceivedAt = now()
	}
	l.ReceivedAt = l.ReceivedAt.UTC()
	return s.named(ctx, `INSERT INTO webhook_logs (`+webhookCols+`)
		VALUES (:id, :provider, :webhook_id, :event_type, :transaction_id, :reference, :status, :signature_verified, :source_ip, :user_agent,
		:headers, :raw_payload, :actions_taken, :error_message, :response_status_code, :processing_duration_ms, :retry_count, :received_at, :processed_at)`, l)
}

func (s *sqlStore) GetWebhookLog(ctx context.Context, id string) (*WebhookLog, error) {
	var l WebhookLog
	ok, err := s.get(ctx, &l, `SELECT `+webhookCols+` FROM webhook_logs WHERE id = ?`, id)
	if !ok {
		return nil, err
	}
	return &l, nil
}

func (s *sqlStore) UpdateWebhookLogStatus(ctx context.Context, id, status string) error {
	_, err := s.exec(ctx, `UPDATE webhook_logs SET status = ? WHERE id = ?`, status, id)
	return err
}

func (s *sqlStore) CompleteWebhookLog(ctx context.Context, id string, c WebhookCompletion) error {
	actions := c.ActionsTaken
	if actions == nil {
		actions = []string{}
	}
	raw, err := marshalJSON(actions)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `UPDATE webhook_logs
		SET status = ?, actions_taken = ?, error_message = ?, response_status_code = ?, processing_duration_ms = ?, processed_at = ?
		WHERE id = ?`, c.Status, raw, c.ErrorMessage, c.ResponseStatusCode, c.DurationMs, now(), id)
	return err
}

func (s *sqlStore) IncrementWebhookRetry(ctx context.Context, id string) (int, error) {
	if _, err := s.exec(ctx, `UPDATE webhook_logs SET retry_count = retry_count + 1 WHERE id = ?`, id); err != nil {
		return 0, err
	}
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT retry_count FROM webhook_logs WHERE id = ?`), id)
	return n, err
}

// HasProcessedWebhook reports whether a webhook for the same transaction and event was already processed.
// Failed attempts do not count, so they may be reprocessed.
func (s *sqlStore) HasProcessedWebhook(ctx context.Context, transactionID, eventType string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM webhook_logs
		WHERE transaction_id = ? AND event_type = ? AND status = 'processed'`), transactionID, eventType)
	return n > 0, err
}

func (s *sqlStore) ListWebhookLogs(ctx context.Context, f WebhookFilter) ([]WebhookLog, error) {
	q := `SELECT ` + webhookCols + ` FROM webhook_logs WHERE 1=1`
	var args []any
	if f.Provider != "" {
		q += " AND provider = ?"
		args = append(args, f.Provider)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q += " ORDER BY received_at DESC LIMIT ?"
	args = append(args, limit)

	var logs []WebhookLog
	err := s.db.SelectContext(ctx, &logs, s.db.Rebind(q), args...)
	return logs, err
}

func (s *sqlStore) WebhookStats(ctx context.Context, since time.Time) (*WebhookStats, error) {
	var st WebhookStats
	err := s.db.GetContext(ctx, &st, s.db.Rebind(`SELECT
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN status = 'processed' THEN 1 ELSE 0 END), 0) AS processed,
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS failed,
		COALESCE(SUM(CASE WHEN status IN ('received', 'processing') THEN 1 ELSE 0 END), 0) AS pending,
		COALESCE(SUM(CASE WHEN signature_verified = ? THEN 1 ELSE 0 END), 0) AS signature_verified_count,
		CAST(COALESCE(AVG(processing_duration_ms), 0) AS DOUBLE PRECISION) AS avg_processing_time
		FROM webhook_logs WHERE received_at >= ?`), true, since.UTC())
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *sqlStore) LogWebhookAudit(ctx context.Context, a *WebhookAudit) error {
	a.ID = newID(a.ID)
	a.Detail = jsonOrEmpty(a.Detail)
	a.CreatedAt = now()
	return s.named(ctx, `INSERT INTO payment_webhook_audit (id, webhook_log_id, action, order_id, invoice_id, success, detail, created_at)
		VALUES (:id, :webhook_log_id, :action, :order_id, :invoice_id, :success, :detail, :created_at)`, a)
}

func (s *sqlStore) ListWebhookAudit(ctx context.Context, webhookLogID string) ([]WebhookAudit, error) {
	var out []WebhookAudit
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT id, webhook_log_id, action, order_id, invoice_id, success, detail, created_at
		FROM payment_webhook_audit WHERE webhook_log_id = ? ORDER BY created_at, id`), webhookLogID)
	return out, err
}

// --- Zoho sync logs ---

func (s *sqlStore) LogZohoSync(ctx context.Context, l *ZohoSyncLog) error {
	l.ID = newID(l.ID)
	l.RequestPayload = jsonOrEmpty(l.RequestPayload)
	l.ResponsePayload = jsonOrEmpty(l.ResponsePayload)
	l.CreatedAt = now()
	return s.named(ctx, `INSERT INTO zoho_sync_logs (id, entity_type, entity_id, operation, status, zoho_entity_id,
		request_payload, response_payload, error_message, duration_ms, created_at)
		VALUES (:id, :entity_type, :entity_id, :operation, :status, :zoho_entity_id,
		:request_payload, :response_payload, :error_message, :duration_ms, :created_at)`, l)
}

func (s *sqlStore) ListZohoSyncLogs(ctx context.Context, entityType string, limit int) ([]ZohoSyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []ZohoSyncLog
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT id, entity_type, entity_id, operation, status, zoho_entity_id,
		request_payload, response_payload, error_message, duration_ms, created_at
		FROM zoho_sync_logs WHERE entity_type = ? ORDER BY created_at DESC LIMIT ?`), entityType, limit)
	return out, err
}

// --- KYC ---

const kybCols = `id, customer_id, business_name, registration_number, kyc_status, risk_tier, verified_at, created_at, updated_at`

func (s *sqlStore) UpsertKYBSubject(ctx context.Context, k *KYBSubject) error {
	k.ID = newID(k.ID)
	if k.KYCStatus == "" {
		k.KYCStatus = "not_started"
	}
	k.CreatedAt, k.UpdatedAt = now(), now()
	return s.named(ctx, `INSERT INTO kyb_subjects (`+kybCols+`)
		VALUES (:id, :customer_id, :business_name, :registration_number, :kyc_status, :risk_tier, :verified_at, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			business_name = excluded.business_name,
			registration_number = excluded.registration_number,
			updated_at = excluded.updated_at`, k)
}

func (s *sqlStore) GetKYBSubject(ctx context.Context, id string) (*KYBSubject, error) {
	var k KYBSubject
	ok, err := s.get(ctx, &k, `SELECT `+kybCols+` FROM kyb_subjects WHERE id = ?`, id)
	if !ok {
		return nil, err
	}
	return &k, nil
}

func (s *sqlStore) UpdateKYBSubjectStatus(ctx context.Context, id, kycStatus, riskTier string) error {
	var verifiedAt any
	if kycStatus == "approved" {
		verifiedAt = now()
	}
	_, err := s.exec(ctx, `UPDATE kyb_subjects
		SET kyc_status = ?, risk_tier = CASE WHEN ? = '' THEN risk_tier ELSE ? END, verified_at = COALESCE(?, verified_at), updated_at = ?
		WHERE id = ?`, kycStatus, riskTier, riskTier, verifiedAt, now(), id)
	return err
}

const kycSessionCols = `id, didit_session_id, customer_id, kyb_subject_id, status, verification_result, risk_score, risk_tier,
	extracted_data, raw_webhook_payload, webhook_received_at, completed_at, created_at, updated_at`

func (s *sqlStore) CreateKYCSession(ctx context.Context, k *KYCSession) error {
	k.ID = newID(k.ID)
	if k.Status == "" {
		k.Status = "not_started"
	}
	k.ExtractedData = jsonOrEmpty(k.ExtractedData)
	k.RawWebhookPayload = jsonOrEmpty(k.RawWebhookPayload)
	k.CreatedAt, k.UpdatedAt = now(), now()
	return s.named(ctx, `INSERT INTO kyc_sessions (`+kycSessionCols+`)
		VALUES (:id, :didit_session_id, :customer_id, :kyb_subject_id, :status, :verification_result, :risk_score, :risk_tier,
		:extracted_data, :raw_webhook_payload, :webhook_received_at, :completed_at, :created_at, :updated_at)`, k)
}

func (s *sqlStore) GetKYCSessionByDiditID(ctx context.Context, diditSessionID string) (*KYCSession, error) {
	var k KYCSession
	ok, err := s.get(ctx, &k, `SELECT `+kycSessionCols+` FROM kyc_sessions WHERE didit_session_id = ?`, diditSessionID)
	if !ok {
		return nil, err
	}
	return &k, nil
}

func (s *sqlStore) UpdateKYCSession(ctx context.Context, k *KYCSession) error {
	k.UpdatedAt = now()
	k.ExtractedData = jsonOrEmpty(k.ExtractedData)
	k.RawWebhookPayload = jsonOrEmpty(k.RawWebhookPayload)
	return s.named(ctx, `UPDATE kyc_sessions SET
		status = :status, verification_result = :verification_result, risk_score = :risk_score, risk_tier = :risk_tier,
		extracted_data = :extracted_data, raw_webhook_payload = :raw_webhook_payload,
		webhook_received_at = :webhook_received_at, completed_at = :completed_at, updated_at = :updated_at
		WHERE id = :id`, k)
}

const kycDocCols = `id, customer_id, document_type, file_name, content_type, size_bytes, storage_key, status, created_at`

func (s *sqlStore) CreateKYCDocument(ctx context.Context, d *KYCDocument) error {
	d.ID = newID(d.ID)
	if d.Status == "" {
		d.Status = "uploaded"
	}
	d.CreatedAt = now()
	return s.named(ctx, `INSERT INTO kyc_documents (`+kycDocCols+`)
		VALUES (:id, :customer_id, :document_type, :file_name, :content_type, :size_bytes, :storage_key, :status, :created_at)`, d)
}

func (s *sqlStore) GetKYCDocument(ctx context.Context, id string) (*KYCDocument, error) {
	var d KYCDocument
	ok, err := s.get(ctx, &d, `SELECT `+kycDocCols+` FROM kyc_documents WHERE id = ?`, id)
	if !ok {
		return nil, err
	}
	return &d, nil
}

func (s *sqlStore) ListKYCDocuments(ctx context.Context, customerID string) ([]KYCDocument, error) {
	var out []KYCDocument
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT `+kycDocCols+` FROM kyc_documents
		WHERE customer_id = ? ORDER BY created_at DESC`), customerID)
	return out, err
}

// --- Integrations ---

const integrationCols = `id, slug, name, category, is_enabled, health_check_enabled, health_check_url, health_status,
	health_last_checked_at, last_response_time_ms, consecutive_failures, has_active_alert, last_error, created_at, updated_at`

// UpsertIntegration registers an integration by slug. Health columns of an existing row are preserved.
func (s *sqlStore) UpsertIntegration(ctx context.Context, i *Integration) error {
	i.ID = newID(i.ID)
	if i.HealthStatus == "" {
		i.HealthStatus = "unknown"
	}
	i.CreatedAt, i.UpdatedAt = now(), now()
	return s.named(ctx, `INSERT INTO integration_registry (`+integrationCols+`)
		VALUES (:id, :slug, :name, :category, :is_enabled, :health_check_enabled, :health_check_url, :health_status,
		:health_last_checked_at, :last_response_time_ms, :consecutive_failures, :has_active_alert, :last_error, :created_at, :updated_at)
		ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			is_enabled = excluded.is_enabled,
			health_check_enabled = excluded.health_check_enabled,
			health_check_url = excluded.health_check_url,
			updated_at = excluded.updated_at`, i)
}

func (s *sqlStore) GetIntegration(ctx context.Context, slug string) (*Integration, error) {
	var i Integration
	ok, err := s.get(ctx, &i, `SELECT `+integrationCols+` FROM integration_registry WHERE slug = ?`, slug)
	if !ok {
		return nil, err
	}
	return &i, nil
}

func (s *sqlStore) ListIntegrations(ctx context.Context) ([]Integration, error) {
	var out []Integration
	err := s.db.SelectContext(ctx, &out, `SELECT `+integrationCols+` FROM integration_registry ORDER BY category, name`)
	return out, err
}

func (s *sqlStore) RecordIntegrationHealth(ctx context.Context, h IntegrationHealth) error {
	_, err := s.exec(ctx, `UPDATE integration_registry
		SET health_status = ?, health_last_checked_at = ?, last_response_time_ms = ?, consecutive_failures = ?,
		has_active_alert = ?, last_error = ?, updated_at = ?
		WHERE slug = ?`, h.Status, h.CheckedAt.UTC(), h.ResponseTimeMs, h.ConsecutiveFailures, h.HasActiveAlert, h.LastError, now(), h.Slug)
	return err
}

func (s *sqlStore) LogIntegrationWebhook(ctx context.Context, l *IntegrationWebhookLog) error {
	l.ID = newID(l.ID)
	l.Payload = jsonOrEmpty(l.Payload)
	if l.ReceivedAt.IsZero() {
		l.ReceivedAt = now()
	}
	return s.named(ctx, `INSERT INTO integration_webhook_logs (id, integration_slug, event_type, status, signature_verified, payload, error_message, received_at)
		VALUES (:id, :integration_slug, :event_type, :status, :signature_verified, :payload, :error_message, :received_at)`, l)
}

func (s *sqlStore) ListIntegrationWebhooks(ctx context.Context, slug string, limit int) ([]IntegrationWebhookLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []IntegrationWebhookLog
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT id, integration_slug, event_type, status, signature_verified, payload, error_message, received_at
		FROM integration_webhook_logs WHERE integration_slug = ? ORDER BY received_at DESC LIMIT ?`), slug, limit)
	return out, err
}

// --- Cron executions ---

const cronCols = `id, job_name, status, triggered_by, started_at, completed_at, execution_time_ms, records_processed, records_failed, details, error_message`

func (s *sqlStore) CreateCronExecution(ctx context.Context, e *CronExecution) error {
	e.ID = newID(e.ID)
	if e.Status == "" {
		e.Status = "running"
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = now()
	}
	e.StartedAt = e.StartedAt.UTC()
	e.Details = jsonOrEmpty(e.Details)
	return s.named(ctx, `INSERT INTO cron_execution_log (`+cronCols+`)
		VALUES (:id, :job_name, :status, :triggered_by, :started_at, :completed_at, :execution_time_ms, :records_processed, :records_failed, :details, :error_message)`, e)
}

func (s *sqlStore) CompleteCronExecution(ctx context.Context, e *CronExecution) error {
	e.Details = jsonOrEmpty(e.Details)
	return s.named(ctx, `UPDATE cron_execution_log SET
		status = :status, completed_at = :completed_at, execution_time_ms = :execution_time_ms,
		records_processed = :records_processed, records_failed = :records_failed, details = :details, error_message = :error_message
		WHERE id = :id`, e)
}

func (s *sqlStore) ListCronExecutions(ctx context.Context, f CronFilter) ([]CronExecution, error) {
	q := `SELECT ` + cronCols + ` FROM cron_execution_log WHERE 1=1`
	var args []any
	if f.JobName != "" {
		q += " AND job_name = ?"
		args = append(args, f.JobName)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	var out []CronExecution
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(q), args...)
	return out, err
}

// --- Debit order batches ---

const batchCols = `id, batch_id, batch_name, batch_type, action_date, item_count, total_amount, status, error_message, submitted_at, authorised_at, created_at`

func (s *sqlStore) UpsertDebitBatch(ctx context.Context, b *DebitOrderBatch) error {
	b.ID = newID(b.ID)
	b.CreatedAt = now()
	if b.SubmittedAt.IsZero() {
		b.SubmittedAt = now()
	}
	return s.named(ctx, `INSERT INTO debit_order_batches (`+batchCols+`)
		VALUES (:id, :batch_id, :batch_name, :batch_type, :action_date, :item_count, :total_amount, :status, :error_message, :submitted_at, :authorised_at, :created_at)
		ON CONFLICT (batch_id) DO UPDATE SET
			status = excluded.status,
			item_count = excluded.item_count,
			total_amount = excluded.total_amount,
			error_message = excluded.error_message,
			authorised_at = excluded.authorised_at`, b)
}

func (s *sqlStore) AddDebitBatchItems(ctx context.Context, items []DebitOrderBatchItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i := range items {
		items[i].ID = newID(items[i].ID)
		if items[i].Status == "" {
			items[i].Status = "pending"
		}
		items[i].CreatedAt = now()
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO debit_order_batch_items
			(id, batch_id, invoice_id, order_id, customer_id, payment_method_id, account_reference, amount, status, created_at)
			VALUES (:id, :batch_id, :invoice_id, :order_id, :customer_id, :payment_method_id, :account_reference, :amount, :status, :created_at)`,
			&items[i]); err != nil {
			return fmt.Errorf("insert batch item %s: %w", items[i].AccountReference, err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) GetDebitBatch(ctx context.Context, batchID string) (*DebitOrderBatch, error) {
	var b DebitOrderBatch
	ok, err := s.get(ctx, &b, `SELECT `+batchCols+` FROM debit_order_batches WHERE batch_id = ?`, batchID)
	if !ok {
		return nil, err
	}
	return &b, nil
}

func (s *sqlStore) ListDebitBatchItems(ctx context.Context, batchID string) ([]DebitOrderBatchItem, error) {
	var out []DebitOrderBatchItem
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT id, batch_id, invoice_id, order_id, customer_id, payment_method_id,
		account_reference, amount, status, created_at FROM debit_order_batch_items WHERE batch_id = ? ORDER BY account_reference`), batchID)
	return out, err
}

// --- Business quotes ---

const quoteCols = `id, quote_number, customer_id, company_name, contact_name, contact_email, status, subtotal, vat_amount,
	total_amount, valid_until, notes, version, created_by, created_at, updated_at`

func (s *sqlStore) CreateQuote(ctx context.Context, q *BusinessQuote, items []QuoteItem) error {
	q.ID = newID(q.ID)
	if q.Status == "" {
		q.Status = "draft"
	}
	if q.Version == 0 {
		q.Version = 1
	}
	q.CreatedAt, q.UpdatedAt = now(), now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `INSERT INTO business_quotes (`+quoteCols+`)
		VALUES (:id, :quote_number, :customer_id, :company_name, :contact_name, :contact_email, :status, :subtotal, :vat_amount,
		:total_amount, :valid_until, :notes, :version, :created_by, :created_at, :updated_at)`, q); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return err
	}
	for i := range items {
		items[i].ID = newID(items[i].ID)
		items[i].QuoteID = q.ID
		items[i].Position = i + 1
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO business_quote_items
			(id, quote_id, position, description, item_type, quantity, unit_price, line_total)
			VALUES (:id, :quote_id, :position, :description, :item_type, :quantity, :unit_price, :line_total)`, &items[i]); err != nil {
			return fmt.Errorf("insert quote item: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) GetQuote(ctx context.Context, id string) (*BusinessQuote, error) {
	var q BusinessQuote
	ok, err := s.get(ctx, &q, `SELECT `+quoteCols+` FROM business_quotes WHERE id = ?`, id)
	if !ok {
		return nil, err
	}
	return &q, nil
}

func (s *sqlStore) ListQuotes(ctx context.Context, status string) ([]BusinessQuote, error) {
	q := `SELECT ` + quoteCols + ` FROM business_quotes`
	var args []any
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, status)
	}
	q += " ORDER BY created_at DESC"
	var out []BusinessQuote
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(q), args...)
	return out, err
}

func (s *sqlStore) ListQuoteItems(ctx context.Context, quoteID string) ([]QuoteItem, error) {
	var out []QuoteItem
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT id, quote_id, position, description, item_type, quantity, unit_price, line_total
		FROM business_quote_items WHERE quote_id = ? ORDER BY position`), quoteID)
	return out, err
}

// UpdateQuoteStatus moves a quote to status and, when version is non-nil, bumps the
// quote version and records the snapshot in the same transaction.
func (s *sqlStore) UpdateQuoteStatus(ctx context.Context, id, status string, version *QuoteVersion) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE business_quotes SET status = ?, version = version + 1, updated_at = ? WHERE id = ?`),
		status, now(), id); err != nil {
		return err
	}
	if version != nil {
		version.ID = newID(version.ID)
		version.QuoteID = id
		version.Snapshot = jsonOrEmpty(version.Snapshot)
		version.CreatedAt = now()
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO business_quote_versions (id, quote_id, version, status, snapshot, changed_by, created_at)
			VALUES (:id, :quote_id, :version, :status, :snapshot, :changed_by, :created_at)`, version); err != nil {
			return fmt.Errorf("insert quote version: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) ListQuoteVersions(ctx context.Context, quoteID string) ([]QuoteVersion, error) {
	var out []QuoteVersion
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT id, quote_id, version, status, snapshot, changed_by, created_at
		FROM business_quote_versions WHERE quote_id = ? ORDER BY version`), quoteID)
	return out, err
}

func (s *sqlStore) CountQuotesForYear(ctx context.Context, year int) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM business_quotes WHERE quote_number LIKE ?`),
		fmt.Sprintf("QT-%d-%%", year))
	return n, err
}

// --- Base stations ---

func (s *sqlStore) UpsertBaseStations(ctx context.Context, stations []BaseStation) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for i := range stations {
		st := &stations[i]
		st.ID = newID(st.ID)
		st.UpdatedAt = now()
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO base_stations (id, site_code, name, provider, technology, latitude, longitude, status, updated_at)
			VALUES (:id, :site_code, :name, :provider, :technology, :latitude, :longitude, :status, :updated_at)
			ON CONFLICT (site_code) DO UPDATE SET
				name = excluded.name,
				provider = excluded.provider,
				technology = excluded.technology,
				latitude = excluded.latitude,
				longitude = excluded.longitude,
				status = excluded.status,
				updated_at = excluded.updated_at`, st); err != nil {
			return 0, fmt.Errorf("upsert base station %s: %w", st.SiteCode, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stations), nil
}

func (s *sqlStore) ListBaseStations(ctx context.Context) ([]BaseStation, error) {
	var out []BaseStation
	err := s.db.SelectContext(ctx, &out, `SELECT id, site_code, name, provider, technology, latitude, longitude, status, updated_at
		FROM base_stations ORDER BY site_code`)
	return out, err
}

// --- CMS pages ---

const pageCols = `id, slug, title, content, status, author_id, published_at, created_at, updated_at`

func (s *sqlStore) CreatePage(ctx context.Context, p *CMSPage) error {
	p.ID = newID(p.ID)
	if p.Status == "" {
		p.Status = "draft"
	}
	p.CreatedAt, p.UpdatedAt = now(), now()
	return s.named(ctx, `INSERT INTO cms_pages (`+pageCols+`)
		VALUES (:id, :slug, :title, :content, :status, :author_id, :published_at, :created_at, :updated_at)`, p)
}

func (s *sqlStore) GetPage(ctx context.Context, id string) (*CMSPage, error) {
	var p CMSPage
	ok, err := s.get(ctx, &p, `SELECT `+pageCols+` FROM cms_pages WHERE id = ?`, id)
	if !ok {
		return nil, err
	}
	return &p, nil
}

func (s *sqlStore) GetPageBySlug(ctx context.Context, slug string) (*CMSPage, error) {
	var p CMSPage
	ok, err := s.get(ctx, &p, `SELECT `+pageCols+` FROM cms_pages WHERE slug = ?`, slug)
	if !ok {
		return nil, err
	}
	return &p, nil
}

func (s *sqlStore) UpdatePage(ctx context.Context, p *CMSPage) error {
	p.UpdatedAt = now()
	return s.named(ctx, `UPDATE cms_pages SET slug = :slug, title = :title, content = :content, status = :status,
		published_at = :published_at, updated_at = :updated_at WHERE id = :id`, p)
}

func (s *sqlStore) ListPages(ctx context.Context, status string) ([]CMSPage, error) {
	q := `SELECT ` + pageCols + ` FROM cms_pages`
	var args []any
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, status)
	}
	q += " ORDER BY updated_at DESC"
	var out []CMSPage
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(q), args...)
	return out, err
}
