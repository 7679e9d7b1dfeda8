/*
errors.go - Centralized error types for the lending engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; nothing is swallowed.

ERROR CATEGORIES:
  1. Parameter errors - Loan fields missing or inconsistent
  2. Lookup errors    - Installment not found, nothing left to pay
  3. Payment errors   - Non-positive amount, duplicate idempotency key
  4. Store errors     - Transactional failures (always rolled back)

USAGE:
  _, err := engine.ApplyPayment(ctx, req)
  if errors.Is(err, generic.ErrNoPendingInstallments) {
      // loan already settled
  }

SEE ALSO:
  - lending/engine.go: Wraps store failures in StoreError
  - api/handlers.go: Maps categories to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingParameter is returned when a required loan field is absent.
	// The engine never guesses defaults for required fields.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrInvalidParameter is returned when a loan field is present but
	// out of range or inconsistent with the others.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInstallmentNotFound is returned when a targeted installment does
	// not exist for the loan.
	ErrInstallmentNotFound = errors.New("installment not found")

	// ErrNoPendingInstallments is returned when a partial payment has no
	// unpaid installment to land on.
	ErrNoPendingInstallments = errors.New("no pending installments")

	// ErrInvalidAmount is returned for non-positive payment amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrDuplicatePayment is returned when an idempotency key was already used.
	ErrDuplicatePayment = errors.New("duplicate payment")

	// ErrStore marks failures from the persistence collaborator.
	ErrStore = errors.New("store error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingParameterError names the absent loan field.
type MissingParameterError struct {
	LoanID LoanID
	Field  string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing parameter %q for loan %s", e.Field, e.LoanID)
}

func (e *MissingParameterError) Unwrap() error { return ErrMissingParameter }

// InvalidParameterError names the offending field and why it was rejected.
type InvalidParameterError struct {
	LoanID LoanID
	Field  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %q for loan %s: %s", e.Field, e.LoanID, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }

type InstallmentNotFoundError struct {
	LoanID         LoanID
	SequenceNumber int
}

func (e *InstallmentNotFoundError) Error() string {
	return fmt.Sprintf("installment %d not found for loan %s", e.SequenceNumber, e.LoanID)
}

func (e *InstallmentNotFoundError) Unwrap() error { return ErrInstallmentNotFound }

// StoreError wraps a persistence failure. It matches both ErrStore and the
// underlying driver error.
type StoreError struct {
	Op     string
	LoanID LoanID
	Err    error
}

func NewStoreError(op string, loanID LoanID, err error) *StoreError {
	return &StoreError{Op: op, LoanID: loanID, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s (loan %s): %v", e.Op, e.LoanID, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsEngineError reports whether err already belongs to the taxonomy above.
func IsEngineError(err error) bool {
	return IsClientError(err) || IsNotFound(err) ||
		errors.Is(err, ErrNoPendingInstallments) ||
		errors.Is(err, ErrStore)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingParameter) ||
		errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrDuplicatePayment)
}

// IsNotFound returns true if the error indicates a missing installment.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInstallmentNotFound)
}
