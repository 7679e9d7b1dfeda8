/*
store.go - Persistence interface for installment schedules

PURPOSE:
  Defines the contract between the engine and durable storage. The engine
  treats the store as a transactional key-value table keyed by loan ID
  and never reaches past these methods.

KEY INTERFACES:
  ScheduleStore:  Load / replace / upsert installments of one loan
  TxStore:        Runs a function inside a per-loan transaction
  PaymentJournal: Optional audit trail of applied payments

ATOMICITY:
  ReplaceInstallments is delete-then-insert as one unit; it is never
  observable half-deleted. WithLoanTx serializes every mutation of a
  given loan and rolls back everything fn wrote if fn returns an error.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go:  SQLite (default)
  - store/postgres/postgres.go: PostgreSQL with advisory locks

SEE ALSO:
  - lending/engine.go: The only caller of WithLoanTx
*/
package generic

import "context"

// =============================================================================
// SCHEDULE STORE - Installments keyed by loan
// =============================================================================

type ScheduleStore interface {
	// LoadInstallments returns the loan's installments ordered by
	// SequenceNumber. An unknown loan yields an empty slice.
	LoadInstallments(ctx context.Context, loanID LoanID) ([]Installment, error)

	// ReplaceInstallments erases every installment of the loan and inserts
	// the given set, atomically.
	ReplaceInstallments(ctx context.Context, loanID LoanID, installments []Installment) error

	// UpsertInstallment inserts or overwrites the row identified by
	// (LoanID, SequenceNumber).
	UpsertInstallment(ctx context.Context, installment Installment) error
}

// =============================================================================
// TRANSACTIONAL STORE - At most one mutation per loan at a time
// =============================================================================

// TxStore wraps ScheduleStore with per-loan transactions.
type TxStore interface {
	ScheduleStore

	// WithLoanTx executes fn while holding the loan's exclusive lock.
	// If fn returns error, every write made through the passed store is
	// rolled back. If fn returns nil, they are committed together.
	//
	// The store passed to fn also implements PaymentJournal when the
	// backing store does.
	WithLoanTx(ctx context.Context, loanID LoanID, fn func(ScheduleStore) error) error
}

// =============================================================================
// PAYMENT JOURNAL - Append-only record of applied payments
// =============================================================================

// PaymentJournal is optional. Stores that implement it let the engine
// audit payments and enforce idempotency keys.
type PaymentJournal interface {
	AppendPayment(ctx context.Context, record PaymentRecord) error

	// LoadPayments returns the loan's payments in the order they were applied.
	LoadPayments(ctx context.Context, loanID LoanID) ([]PaymentRecord, error)

	// PaymentExists checks whether an idempotency key was already used.
	PaymentExists(ctx context.Context, idempotencyKey string) (bool, error)
}
