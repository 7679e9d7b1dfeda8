/*
Package postgres provides a PostgreSQL implementation of the storage
interfaces on top of pgx.

CONCURRENCY:
  WithLoanTx opens a pgx transaction and takes
  pg_advisory_xact_lock(hashtext(loan_id)) before running fn. Two
  transactions on the same loan queue behind each other; different loans
  proceed in parallel. The lock is released on commit or rollback.

MONEY STORAGE:
  NUMERIC(18,2) columns. Values cross the wire as text (::text on read,
  ::numeric on write) so no float conversion ever happens.

SEE ALSO:
  - generic/store.go: Interface definitions
  - store/sqlite/sqlite.go: Default embedded store
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/generic"
)

// PoolConfig tunes the pgx pool.
type PoolConfig struct {
	DatabaseURL     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Store implements generic.TxStore and generic.PaymentJournal.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ generic.TxStore        = (*Store)(nil)
	_ generic.PaymentJournal = (*Store)(nil)
)

// NewPool parses cfg, connects and pings.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// New wraps pool and migrates the schema.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS installments (
		loan_id TEXT NOT NULL,
		sequence_number INTEGER NOT NULL,
		scheduled_date DATE NOT NULL,
		planned_principal NUMERIC(18,2) NOT NULL,
		planned_interest NUMERIC(18,2) NOT NULL,
		planned_total NUMERIC(18,2) NOT NULL,
		paid_principal NUMERIC(18,2) NOT NULL,
		paid_interest NUMERIC(18,2) NOT NULL,
		paid_total NUMERIC(18,2) NOT NULL,
		status TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (loan_id, sequence_number),
		CHECK (paid_total = paid_principal + paid_interest)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_installments_loan_date ON installments (loan_id, scheduled_date)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		amount NUMERIC(18,2) NOT NULL,
		credited NUMERIC(18,2) NOT NULL,
		unapplied NUMERIC(18,2) NOT NULL,
		target_sequence INTEGER NOT NULL,
		rollover_sequence INTEGER NOT NULL DEFAULT 0,
		payment_date DATE NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_loan ON payments (loan_id, created_at)`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =============================================================================
// SCHEDULE STORE
// =============================================================================

func (s *Store) LoadInstallments(ctx context.Context, loanID generic.LoanID) ([]generic.Installment, error) {
	return loadInstallments(ctx, s.pool, loanID)
}

func (s *Store) ReplaceInstallments(ctx context.Context, loanID generic.LoanID, installments []generic.Installment) error {
	return s.WithLoanTx(ctx, loanID, func(ts generic.ScheduleStore) error {
		return ts.ReplaceInstallments(ctx, loanID, installments)
	})
}

func (s *Store) UpsertInstallment(ctx context.Context, inst generic.Installment) error {
	return upsertInstallment(ctx, s.pool, inst)
}

func loadInstallments(ctx context.Context, q querier, loanID generic.LoanID) ([]generic.Installment, error) {
	rows, err := q.Query(ctx, `
SELECT loan_id, sequence_number, scheduled_date,
       planned_principal::text, planned_interest::text, planned_total::text,
       paid_principal::text, paid_interest::text, paid_total::text, status
FROM installments
WHERE loan_id = $1
ORDER BY sequence_number ASC`, string(loanID))
	if err != nil {
		return nil, fmt.Errorf("query installments: %w", err)
	}
	defer rows.Close()

	out := []generic.Installment{}
	for rows.Next() {
		var (
			inst    generic.Installment
			loan    string
			date    time.Time
			amounts [6]string
			status  string
		)
		if err := rows.Scan(&loan, &inst.SequenceNumber, &date,
			&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5], &status); err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		inst.LoanID = generic.LoanID(loan)
		inst.ScheduledDate = generic.DateOf(date)
		inst.Status = generic.InstallmentStatus(status)
		targets := []*decimal.Decimal{
			&inst.PlannedPrincipal, &inst.PlannedInterest, &inst.PlannedTotal,
			&inst.PaidPrincipal, &inst.PaidInterest, &inst.PaidTotal,
		}
		for i, t := range targets {
			if *t, err = decimal.NewFromString(amounts[i]); err != nil {
				return nil, fmt.Errorf("parse amount %q: %w", amounts[i], err)
			}
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func upsertInstallment(ctx context.Context, q querier, inst generic.Installment) error {
	_, err := q.Exec(ctx, `
INSERT INTO installments (
  loan_id, sequence_number, scheduled_date,
  planned_principal, planned_interest, planned_total,
  paid_principal, paid_interest, paid_total, status, updated_at
) VALUES ($1, $2, $3::date, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10, now())
ON CONFLICT (loan_id, sequence_number) DO UPDATE SET
  scheduled_date = EXCLUDED.scheduled_date,
  planned_principal = EXCLUDED.planned_principal,
  planned_interest = EXCLUDED.planned_interest,
  planned_total = EXCLUDED.planned_total,
  paid_principal = EXCLUDED.paid_principal,
  paid_interest = EXCLUDED.paid_interest,
  paid_total = EXCLUDED.paid_total,
  status = EXCLUDED.status,
  updated_at = now()`,
		string(inst.LoanID), inst.SequenceNumber, inst.ScheduledDate.String(),
		generic.FormatMoney(inst.PlannedPrincipal), generic.FormatMoney(inst.PlannedInterest), generic.FormatMoney(inst.PlannedTotal),
		generic.FormatMoney(inst.PaidPrincipal), generic.FormatMoney(inst.PaidInterest), generic.FormatMoney(inst.PaidTotal),
		string(inst.Status),
	)
	if err != nil {
		return fmt.Errorf("upsert installment %d: %w", inst.SequenceNumber, err)
	}
	return nil
}

// =============================================================================
// PAYMENT JOURNAL
// =============================================================================

func (s *Store) AppendPayment(ctx context.Context, rec generic.PaymentRecord) error {
	return appendPayment(ctx, s.pool, rec)
}

func (s *Store) LoadPayments(ctx context.Context, loanID generic.LoanID) ([]generic.PaymentRecord, error) {
	return loadPayments(ctx, s.pool, loanID)
}

func (s *Store) PaymentExists(ctx context.Context, key string) (bool, error) {
	return paymentExists(ctx, s.pool, key)
}

func appendPayment(ctx context.Context, q querier, rec generic.PaymentRecord) error {
	var key *string
	if rec.IdempotencyKey != "" {
		key = &rec.IdempotencyKey
	}
	_, err := q.Exec(ctx, `
INSERT INTO payments (
  id, loan_id, mode, amount, credited, unapplied,
  target_sequence, rollover_sequence, payment_date, idempotency_key, created_at
) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9::date, $10, $11)`,
		rec.ID, string(rec.LoanID), string(rec.Mode),
		generic.FormatMoney(rec.Amount), generic.FormatMoney(rec.Credited), generic.FormatMoney(rec.Unapplied),
		rec.TargetSequence, rec.RolloverSeq, rec.PaymentDate.String(), key, rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return generic.ErrDuplicatePayment
		}
		return fmt.Errorf("append payment: %w", err)
	}
	return nil
}

func loadPayments(ctx context.Context, q querier, loanID generic.LoanID) ([]generic.PaymentRecord, error) {
	rows, err := q.Query(ctx, `
SELECT id, loan_id, mode, amount::text, credited::text, unapplied::text,
       target_sequence, rollover_sequence, payment_date, COALESCE(idempotency_key, ''), created_at
FROM payments
WHERE loan_id = $1
ORDER BY created_at ASC, id ASC`, string(loanID))
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	out := []generic.PaymentRecord{}
	for rows.Next() {
		var (
			rec                         generic.PaymentRecord
			loan, mode                  string
			amount, credited, unapplied string
			paymentDate                 time.Time
		)
		if err := rows.Scan(&rec.ID, &loan, &mode, &amount, &credited, &unapplied,
			&rec.TargetSequence, &rec.RolloverSeq, &paymentDate, &rec.IdempotencyKey, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		rec.LoanID = generic.LoanID(loan)
		rec.Mode = generic.PaymentMode(mode)
		rec.PaymentDate = generic.DateOf(paymentDate)
		for _, f := range []struct {
			target *decimal.Decimal
			raw    string
		}{{&rec.Amount, amount}, {&rec.Credited, credited}, {&rec.Unapplied, unapplied}} {
			if *f.target, err = decimal.NewFromString(f.raw); err != nil {
				return nil, fmt.Errorf("parse payment %s amount %q: %w", rec.ID, f.raw, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func paymentExists(ctx context.Context, q querier, key string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE idempotency_key = $1)`, key).Scan(&exists)
	return exists, err
}

// =============================================================================
// TRANSACTIONS - pgx transaction + per-loan advisory lock
// =============================================================================

func (s *Store) WithLoanTx(ctx context.Context, loanID generic.LoanID, fn func(generic.ScheduleStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(loanID)); err != nil {
		return fmt.Errorf("lock loan %s: %w", loanID, err)
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit loan %s: %w", loanID, err)
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

func (ts *txStore) LoadInstallments(ctx context.Context, loanID generic.LoanID) ([]generic.Installment, error) {
	return loadInstallments(ctx, ts.tx, loanID)
}

func (ts *txStore) ReplaceInstallments(ctx context.Context, loanID generic.LoanID, installments []generic.Installment) error {
	if _, err := ts.tx.Exec(ctx, `DELETE FROM installments WHERE loan_id = $1`, string(loanID)); err != nil {
		return fmt.Errorf("delete installments: %w", err)
	}
	for _, inst := range installments {
		inst.LoanID = loanID
		if err := upsertInstallment(ctx, ts.tx, inst); err != nil {
			return err
		}
	}
	return nil
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
