/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.TxStore and generic.PaymentJournal using SQLite.
  This is the default durable store of the server.

KEY TABLES:
  installments: One row per (loan_id, sequence_number); mutable ledger rows
  payments:     Append-only journal of applied payments

MONEY STORAGE:
  Amounts are stored as TEXT with exactly two decimals
  ("210.00") and parsed back with shopspring/decimal. REAL columns
  would reintroduce binary fractions and cent drift.

CONCURRENCY:
  The pool is limited to one connection. Every transaction therefore
  owns the database until it commits or rolls back, which gives the
  per-loan exclusivity WithLoanTx promises (and incidentally makes
  ":memory:" databases work, since each connection of an in-memory
  database would otherwise see its own empty schema).

WAL MODE:
  File databases are opened with WAL for better crash recovery.

USAGE:
  store, err := sqlite.New("./data/lending.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := lending.NewEngine(store, logger)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ generic.TxStore        = (*Store)(nil)
	_ generic.PaymentJournal = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	if dbPath == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Installments (one ledger row per scheduled repayment)
	CREATE TABLE IF NOT EXISTS installments (
		loan_id TEXT NOT NULL,
		sequence_number INTEGER NOT NULL,
		scheduled_date TEXT NOT NULL,
		planned_principal TEXT NOT NULL,
		planned_interest TEXT NOT NULL,
		planned_total TEXT NOT NULL,
		paid_principal TEXT NOT NULL,
		paid_interest TEXT NOT NULL,
		paid_total TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (loan_id, sequence_number)
	);

	-- Oldest-unpaid lookup
	CREATE INDEX IF NOT EXISTS idx_installments_loan_date
		ON installments(loan_id, scheduled_date);

	-- Payments (append-only journal)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		amount TEXT NOT NULL,
		credited TEXT NOT NULL,
		unapplied TEXT NOT NULL,
		target_sequence INTEGER NOT NULL,
		rollover_sequence INTEGER NOT NULL DEFAULT 0,
		payment_date TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_loan
		ON payments(loan_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SCHEDULE STORE (generic.ScheduleStore interface)
// =============================================================================

func (s *Store) LoadInstallments(ctx context.Context, loanID generic.LoanID) ([]generic.Installment, error) {
	return loadInstallments(ctx, s.db, loanID)
}

// ReplaceInstallments deletes and inserts in one transaction.
func (s *Store) ReplaceInstallments(ctx context.Context, loanID generic.LoanID, installments []generic.Installment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := replaceInstallments(ctx, tx, loanID, installments); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) UpsertInstallment(ctx context.Context, inst generic.Installment) error {
	return upsertInstallment(ctx, s.db, inst)
}

func loadInstallments(ctx context.Context, q querier, loanID generic.LoanID) ([]generic.Installment, error) {
	query := `
		SELECT loan_id, sequence_number, scheduled_date,
		       planned_principal, planned_interest, planned_total,
		       paid_principal, paid_interest, paid_total, status
		FROM installments
		WHERE loan_id = ?
		ORDER BY sequence_number ASC
	`
	rows, err := q.QueryContext(ctx, query, string(loanID))
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()

	installments := []generic.Installment{}
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		installments = append(installments, inst)
	}
	return installments, rows.Err()
}

func replaceInstallments(ctx context.Context, q querier, loanID generic.LoanID, installments []generic.Installment) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM installments WHERE loan_id = ?`, string(loanID)); err != nil {
		return fmt.Errorf("failed to delete installments: %w", err)
	}
	for _, inst := range installments {
		inst.LoanID = loanID
		if err := upsertInstallment(ctx, q, inst); err != nil {
			return err
		}
	}
	return nil
}

func upsertInstallment(ctx context.Context, q querier, inst generic.Installment) error {
	query := `
		INSERT INTO installments
		(loan_id, sequence_number, scheduled_date,
		 planned_principal, planned_interest, planned_total,
		 paid_principal, paid_interest, paid_total, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(loan_id, sequence_number) DO UPDATE SET
			scheduled_date = excluded.scheduled_date,
			planned_principal = excluded.planned_principal,
			planned_interest = excluded.planned_interest,
			planned_total = excluded.planned_total,
			paid_principal = excluded.paid_principal,
			paid_interest = excluded.paid_interest,
			paid_total = excluded.paid_total,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		string(inst.LoanID),
		inst.SequenceNumber,
		inst.ScheduledDate.String(),
		generic.FormatMoney(inst.PlannedPrincipal),
		generic.FormatMoney(inst.PlannedInterest),
		generic.FormatMoney(inst.PlannedTotal),
		generic.FormatMoney(inst.PaidPrincipal),
		generic.FormatMoney(inst.PaidInterest),
		generic.FormatMoney(inst.PaidTotal),
		string(inst.Status),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert installment %d: %w", inst.SequenceNumber, err)
	}
	return nil
}

func scanInstallment(rows *sql.Rows) (generic.Installment, error) {
	var (
		inst          generic.Installment
		loanID        string
		scheduledDate string
		amounts       [6]string
		status        string
	)
	err := rows.Scan(
		&loanID, &inst.SequenceNumber, &scheduledDate,
		&amounts[0], &amounts[1], &amounts[2],
		&amounts[3], &amounts[4], &amounts[5], &status,
	)
	if err != nil {
		return inst, fmt.Errorf("failed to scan installment: %w", err)
	}

	inst.LoanID = generic.LoanID(loanID)
	inst.Status = generic.InstallmentStatus(status)
	if inst.ScheduledDate, err = generic.ParseDate(scheduledDate); err != nil {
		return inst, err
	}

	targets := []*decimal.Decimal{
		&inst.PlannedPrincipal, &inst.PlannedInterest, &inst.PlannedTotal,
		&inst.PaidPrincipal, &inst.PaidInterest, &inst.PaidTotal,
	}
	for i, target := range targets {
		if *target, err = decimal.NewFromString(amounts[i]); err != nil {
			return inst, fmt.Errorf("failed to parse amount %q: %w", amounts[i], err)
		}
	}
	return inst, nil
}

// =============================================================================
// PAYMENT JOURNAL (generic.PaymentJournal interface)
// =============================================================================

func (s *Store) AppendPayment(ctx context.Context, rec generic.PaymentRecord) error {
	return appendPayment(ctx, s.db, rec)
}

func (s *Store) LoadPayments(ctx context.Context, loanID generic.LoanID) ([]generic.PaymentRecord, error) {
	return loadPayments(ctx, s.db, loanID)
}

func (s *Store) PaymentExists(ctx context.Context, key string) (bool, error) {
	return paymentExists(ctx, s.db, key)
}

func appendPayment(ctx context.Context, q querier, rec generic.PaymentRecord) error {
	query := `
		INSERT INTO payments
		(id, loan_id, mode, amount, credited, unapplied, target_sequence,
		 rollover_sequence, payment_date, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		rec.ID,
		string(rec.LoanID),
		string(rec.Mode),
		generic.FormatMoney(rec.Amount),
		generic.FormatMoney(rec.Credited),
		generic.FormatMoney(rec.Unapplied),
		rec.TargetSequence,
		rec.RolloverSeq,
		rec.PaymentDate.String(),
		nullString(rec.IdempotencyKey),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicatePayment
		}
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

func loadPayments(ctx context.Context, q querier, loanID generic.LoanID) ([]generic.PaymentRecord, error) {
	query := `
		SELECT id, loan_id, mode, amount, credited, unapplied, target_sequence,
		       rollover_sequence, payment_date, idempotency_key, created_at
		FROM payments
		WHERE loan_id = ?
		ORDER BY created_at ASC, rowid ASC
	`
	rows, err := q.QueryContext(ctx, query, string(loanID))
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	records := []generic.PaymentRecord{}
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanPayment(rows *sql.Rows) (generic.PaymentRecord, error) {
	var (
		rec                     generic.PaymentRecord
		loan, mode, paymentDate string
		amounts                 [3]string
		idempotencyKey          sql.NullString
		createdAt               string
	)
	if err := rows.Scan(&rec.ID, &loan, &mode, &amounts[0], &amounts[1], &amounts[2],
		&rec.TargetSequence, &rec.RolloverSeq, &paymentDate, &idempotencyKey, &createdAt); err != nil {
		return rec, fmt.Errorf("failed to scan payment: %w", err)
	}
	rec.LoanID = generic.LoanID(loan)
	rec.Mode = generic.PaymentMode(mode)
	rec.IdempotencyKey = idempotencyKey.String

	var err error
	targets := []*decimal.Decimal{&rec.Amount, &rec.Credited, &rec.Unapplied}
	for i, target := range targets {
		if *target, err = decimal.NewFromString(amounts[i]); err != nil {
			return rec, fmt.Errorf("failed to parse payment %s amount %q: %w", rec.ID, amounts[i], err)
		}
	}
	if rec.PaymentDate, err = generic.ParseDate(paymentDate); err != nil {
		return rec, fmt.Errorf("failed to parse payment %s date: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return rec, fmt.Errorf("failed to parse payment %s created_at %q: %w", rec.ID, createdAt, err)
	}
	return rec, nil
}

func paymentExists(ctx context.Context, q querier, key string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payments WHERE idempotency_key = ?", key,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithLoanTx executes fn within a database transaction. The single pooled
// connection makes the transaction exclusive for its whole duration.
func (s *Store) WithLoanTx(ctx context.Context, loanID generic.LoanID, fn func(generic.ScheduleStore) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction for loan %s: %w", loanID, err)
	}
	return nil
}

// txStore routes every call through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) LoadInstallments(ctx context.Context, loanID generic.LoanID) ([]generic.Installment, error) {
	return loadInstallments(ctx, ts.tx, loanID)
}

func (ts *txStore) ReplaceInstallments(ctx context.Context, loanID generic.LoanID, installments []generic.Installment) error {
	return replaceInstallments(ctx, ts.tx, loanID, installments)
}

func (ts *txStore) UpsertInstallment(ctx context.Context, inst generic.Installment) error {
	return upsertInstallment(ctx, ts.tx, inst)
}

func (ts *txStore) AppendPayment(ctx context.Context, rec generic.PaymentRecord) error {
	return appendPayment(ctx, ts.tx, rec)
}

func (ts *txStore) LoadPayments(ctx context.Context, loanID generic.LoanID) ([]generic.PaymentRecord, error) {
	return loadPayments(ctx, ts.tx, loanID)
}

func (ts *txStore) PaymentExists(ctx context.Context, key string) (bool, error) {
	return paymentExists(ctx, ts.tx, key)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
