package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	*sqlStore
}

// NewSQLite creates a new SQLite store and runs migrations.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	// For in-memory databases, use a named shared cache so all connections in the
	// pool see the same data while separate stores stay isolated.
	if dsn == ":memory:" {
		dsn = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{sqlStore: &sqlStore{db: sqlx.NewDb(db, "sqlite")}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			auth_user_id TEXT NOT NULL DEFAULT '',
			account_number TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			zoho_customer_id TEXT NOT NULL DEFAULT '',
			kyc_status TEXT NOT NULL DEFAULT 'not_started',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_customers_auth_user ON customers(auth_user_id)`,
		`CREATE TABLE IF NOT EXISTS consumer_orders (
			id TEXT PRIMARY KEY,
			order_number TEXT UNIQUE NOT NULL,
			customer_id TEXT NOT NULL REFERENCES customers(id),
			package_name TEXT NOT NULL DEFAULT '',
			package_price REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_status TEXT NOT NULL DEFAULT 'pending',
			payment_method TEXT NOT NULL DEFAULT '',
			payment_reference TEXT NOT NULL DEFAULT '',
			payment_date DATETIME,
			total_paid REAL NOT NULL DEFAULT 0,
			payment_error TEXT NOT NULL DEFAULT '',
			billing_active INTEGER NOT NULL DEFAULT 0,
			billing_day INTEGER NOT NULL DEFAULT 0,
			next_billing_date TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_payment_reference ON consumer_orders(payment_reference)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_next_billing ON consumer_orders(next_billing_date)`,
		`CREATE TABLE IF NOT EXISTS customer_invoices (
			id TEXT PRIMARY KEY,
			invoice_number TEXT UNIQUE NOT NULL,
			customer_id TEXT NOT NULL REFERENCES customers(id),
			order_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'draft',
			invoice_date TEXT NOT NULL DEFAULT '',
			due_date TEXT NOT NULL DEFAULT '',
			subtotal REAL NOT NULL DEFAULT 0,
			vat_amount REAL NOT NULL DEFAULT 0,
			total_amount REAL NOT NULL DEFAULT 0,
			amount_paid REAL NOT NULL DEFAULT 0,
			amount_due REAL NOT NULL DEFAULT 0,
			payment_collection_method TEXT NOT NULL DEFAULT '',
			line_items TEXT NOT NULL DEFAULT '[]',
			zoho_invoice_id TEXT NOT NULL DEFAULT '',
			zoho_payment_id TEXT NOT NULL DEFAULT '',
			paid_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_due ON customer_invoices(due_date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_customer ON customer_invoices(customer_id)`,
		`CREATE TABLE IF NOT EXISTS payment_transactions (
			id TEXT PRIMARY KEY,
			transaction_id TEXT UNIQUE NOT NULL,
			reference TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT 'netcash',
			invoice_id TEXT NOT NULL DEFAULT '',
			order_id TEXT NOT NULL DEFAULT '',
			customer_id TEXT NOT NULL DEFAULT '',
			amount REAL NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'ZAR',
			status TEXT NOT NULL,
			payment_method TEXT NOT NULL DEFAULT '',
			response_code TEXT NOT NULL DEFAULT '',
			response_text TEXT NOT NULL DEFAULT '',
			raw_payload TEXT NOT NULL DEFAULT '{}',
			zoho_sync_status TEXT NOT NULL DEFAULT '',
			zoho_payment_id TEXT NOT NULL DEFAULT '',
			completed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_zoho_sync ON payment_transactions(zoho_sync_status, created_at)`,
		`CREATE TABLE IF NOT EXISTS payment_methods (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL REFERENCES customers(id),
			order_id TEXT NOT NULL DEFAULT '',
			method_type TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			is_primary INTEGER NOT NULL DEFAULT 0,
			is_verified INTEGER NOT NULL DEFAULT 0,
			mandate_status TEXT NOT NULL DEFAULT '',
			account_reference TEXT NOT NULL DEFAULT '',
			mandate_amount REAL NOT NULL DEFAULT 0,
			mandate_frequency TEXT NOT NULL DEFAULT '',
			debit_day INTEGER NOT NULL DEFAULT 0,
			bank_name TEXT NOT NULL DEFAULT '',
			branch_code TEXT NOT NULL DEFAULT '',
			account_holder TEXT NOT NULL DEFAULT '',
			account_number_masked TEXT NOT NULL DEFAULT '',
			account_type TEXT NOT NULL DEFAULT '',
			card_token TEXT NOT NULL DEFAULT '',
			card_type TEXT NOT NULL DEFAULT '',
			card_last_four TEXT NOT NULL DEFAULT '',
			card_expiry_month INTEGER NOT NULL DEFAULT 0,
			card_expiry_year INTEGER NOT NULL DEFAULT 0,
			card_holder_name TEXT NOT NULL DEFAULT '',
			token_last_used_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_methods_customer ON payment_methods(customer_id)`,
		`CREATE TABLE IF NOT EXISTS emandate_requests (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			payment_method_id TEXT NOT NULL,
			account_reference TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			billing_day INTEGER NOT NULL DEFAULT 1,
			netcash_file_token TEXT NOT NULL DEFAULT '',
			request_payload TEXT NOT NULL DEFAULT '{}',
			error_message TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_logs (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL DEFAULT 'netcash',
			webhook_id TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL DEFAULT '',
			transaction_id TEXT NOT NULL DEFAULT '',
			reference TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'received',
			signature_verified INTEGER NOT NULL DEFAULT 0,
			source_ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			headers TEXT NOT NULL DEFAULT '{}',
			raw_payload TEXT NOT NULL DEFAULT '',
			actions_taken TEXT NOT NULL DEFAULT '[]',
			error_message TEXT NOT NULL DEFAULT '',
			response_status_code INTEGER NOT NULL DEFAULT 0,
			processing_duration_ms INTEGER,
			retry_count INTEGER NOT NULL DEFAULT 0,
			received_at DATETIME NOT NULL,
			processed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_logs_tx ON webhook_logs(transaction_id, event_type, status)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_logs_received ON webhook_logs(received_at)`,
		`CREATE TABLE IF NOT EXISTS payment_webhook_audit (
			id TEXT PRIMARY KEY,
			webhook_log_id TEXT NOT NULL,
			action TEXT NOT NULL,
			order_id TEXT NOT NULL DEFAULT '',
			invoice_id TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL DEFAULT 1,
			detail TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_audit_log ON payment_webhook_audit(webhook_log_id)`,
		`CREATE TABLE IF NOT EXISTS zoho_sync_logs (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL DEFAULT '',
			operation TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			zoho_entity_id TEXT NOT NULL DEFAULT '',
			request_payload TEXT NOT NULL DEFAULT '{}',
			response_payload TEXT NOT NULL DEFAULT '{}',
			error_message TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS kyb_subjects (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL DEFAULT '',
			business_name TEXT NOT NULL DEFAULT '',
			registration_number TEXT NOT NULL DEFAULT '',
			kyc_status TEXT NOT NULL DEFAULT 'not_started',
			risk_tier TEXT NOT NULL DEFAULT '',
			verified_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS kyc_sessions (
			id TEXT PRIMARY KEY,
			didit_session_id TEXT UNIQUE NOT NULL,
			customer_id TEXT NOT NULL DEFAULT '',
			kyb_subject_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'not_started',
			verification_result TEXT NOT NULL DEFAULT '',
			risk_score INTEGER NOT NULL DEFAULT 0,
			risk_tier TEXT NOT NULL DEFAULT '',
			extracted_data TEXT NOT NULL DEFAULT '{}',
			raw_webhook_payload TEXT NOT NULL DEFAULT '{}',
			webhook_received_at DATETIME,
			completed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS kyc_documents (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			document_type TEXT NOT NULL,
			file_name TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			storage_key TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'uploaded',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS integration_registry (
			id TEXT PRIMARY KEY,
			slug TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			is_enabled INTEGER NOT NULL DEFAULT 1,
			health_check_enabled INTEGER NOT NULL DEFAULT 1,
			health_check_url TEXT NOT NULL DEFAULT '',
			health_status TEXT NOT NULL DEFAULT 'unknown',
			health_last_checked_at DATETIME,
			last_response_time_ms INTEGER NOT NULL DEFAULT 0,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			has_active_alert INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS integration_webhook_logs (
			id TEXT PRIMARY KEY,
			integration_slug TEXT NOT NULL,
			event_type TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			signature_verified INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL DEFAULT '{}',
			error_message TEXT NOT NULL DEFAULT '',
			received_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cron_execution_log (
			id TEXT PRIMARY KEY,
			job_name TEXT NOT NULL,
			status TEXT NOT NULL,
			triggered_by TEXT NOT NULL DEFAULT 'cron',
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			execution_time_ms INTEGER NOT NULL DEFAULT 0,
			records_processed INTEGER NOT NULL DEFAULT 0,
			records_failed INTEGER NOT NULL DEFAULT 0,
			details TEXT NOT NULL DEFAULT '{}',
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cron_log_job ON cron_execution_log(job_name, started_at)`,
		`CREATE TABLE IF NOT EXISTS debit_order_batches (
			id TEXT PRIMARY KEY,
			batch_id TEXT UNIQUE NOT NULL,
			batch_name TEXT NOT NULL,
			batch_type TEXT NOT NULL,
			action_date TEXT NOT NULL,
			item_count INTEGER NOT NULL DEFAULT 0,
			total_amount REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			submitted_at DATETIME NOT NULL,
			authorised_at DATETIME,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS debit_order_batch_items (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL REFERENCES debit_order_batches(batch_id),
			invoice_id TEXT NOT NULL DEFAULT '',
			order_id TEXT NOT NULL DEFAULT '',
			customer_id TEXT NOT NULL,
			payment_method_id TEXT NOT NULL DEFAULT '',
			account_reference TEXT NOT NULL,
			amount REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS business_quotes (
			id TEXT PRIMARY KEY,
			quote_number TEXT UNIQUE NOT NULL,
			customer_id TEXT NOT NULL DEFAULT '',
			company_name TEXT NOT NULL,
			contact_name TEXT NOT NULL DEFAULT '',
			contact_email TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'draft',
			subtotal REAL NOT NULL DEFAULT 0,
			vat_amount REAL NOT NULL DEFAULT 0,
			total_amount REAL NOT NULL DEFAULT 0,
			valid_until TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1,
			created_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS business_quote_items (
			id TEXT PRIMARY KEY,
			quote_id TEXT NOT NULL REFERENCES business_quotes(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			description TEXT NOT NULL,
			item_type TEXT NOT NULL DEFAULT 'monthly',
			quantity INTEGER NOT NULL DEFAULT 1,
			unit_price REAL NOT NULL DEFAULT 0,
			line_total REAL NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS business_quote_versions (
			id TEXT PRIMARY KEY,
			quote_id TEXT NOT NULL REFERENCES business_quotes(id) ON DELETE CASCADE,
			version INTEGER NOT NULL,
			status TEXT NOT NULL,
			snapshot TEXT NOT NULL DEFAULT '{}',
			changed_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS base_stations (
			id TEXT PRIMARY KEY,
			site_code TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			technology TEXT NOT NULL DEFAULT '',
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cms_pages (
			id TEXT PRIMARY KEY,
			slug TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'draft',
			author_id TEXT NOT NULL DEFAULT '',
			published_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n  SQL: %s", err, m)
		}
	}
	return nil
}
