/*
Package generic provides the core primitives of the lending engine.

PURPOSE:
  This package contains the domain-agnostic types shared by the schedule
  generator, the payment allocator, the fines module and every store
  implementation. It knows nothing about HTTP, SQL or logging.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: fixed-point decimal amounts rounded to the cent
  - Installment: a mutable ledger row owned by exactly one loan
  - InstallmentStatus: pending / partial / paid, derived from paid amounts
  - PaymentRecord: an audit entry for one applied payment

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for money
  2. Rounding: Every stored amount is rounded half-up to 2 places
  3. Derived state: Status and totals are recomputed, never set by hand
  4. Type Safety: LoanID is its own type

USAGE:
  inst := generic.Installment{
      LoanID:           "loan-1",
      SequenceNumber:   1,
      PlannedPrincipal: generic.MustParseMoney("200.00"),
      PlannedInterest:  generic.MustParseMoney("10.00"),
  }
  inst.Normalize()

SEE ALSO:
  - cadence.go: Next meeting date calculation
  - ledger.go: Queries over a loan's installment set
  - store.go: Persistence interfaces
*/
package generic

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point decimal with 2-digit precision
// =============================================================================

// MoneyPlaces is the number of decimal places kept for every stored amount.
const MoneyPlaces = 2

// Bounds accepted for incoming amounts. MaxMoneyIntegerDigits matches the
// NUMERIC(18,2) columns of the postgres store.
const (
	MaxMoneyIntegerDigits = 16
	MaxMoneyScale         = 12
)

// ErrMoneyOutOfRange is returned by CheckMoneyRange.
var ErrMoneyOutOfRange = errors.New("amount out of range")

// CheckMoneyRange rejects amounts with more than MaxMoneyIntegerDigits
// integer digits or more than MaxMoneyScale fractional digits. It looks at
// the coefficient and exponent only, so it is safe to call before rounding
// values like "1e20000000".
func CheckMoneyRange(d decimal.Decimal) error {
	exp := int(d.Exponent())
	if exp < -MaxMoneyScale || d.NumDigits()+exp > MaxMoneyIntegerDigits {
		return ErrMoneyOutOfRange
	}
	return nil
}

// RoundMoney rounds half-up to the cent.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// ParseMoney parses a decimal string, checks its range and rounds it to
// the cent.
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if err := CheckMoneyRange(d); err != nil {
		return decimal.Zero, err
	}
	return RoundMoney(d), nil
}

// MustParseMoney is ParseMoney for literals known to be valid.
func MustParseMoney(s string) decimal.Decimal {
	d, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return d
}

// MinMoney returns the smaller of a and b.
func MinMoney(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// FormatMoney renders an amount with exactly two decimals, as stored.
func FormatMoney(d decimal.Decimal) string { return d.StringFixed(MoneyPlaces) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LoanID string

// =============================================================================
// INSTALLMENT - Scheduled repayment unit of a loan
// =============================================================================

type InstallmentStatus string

const (
	StatusPending InstallmentStatus = "pending"
	StatusPartial InstallmentStatus = "partial"
	StatusPaid    InstallmentStatus = "paid"
)

// Installment is one row of a loan's repayment ledger.
//
// INVARIANTS (restored by Normalize):
//   - PlannedTotal == PlannedPrincipal + PlannedInterest
//   - PaidTotal == PaidPrincipal + PaidInterest
//   - Status is derived from PaidTotal vs PlannedTotal
type Installment struct {
	LoanID           LoanID
	SequenceNumber   int
	ScheduledDate    Date
	PlannedPrincipal decimal.Decimal
	PlannedInterest  decimal.Decimal
	PlannedTotal     decimal.Decimal
	PaidPrincipal    decimal.Decimal
	PaidInterest     decimal.Decimal
	PaidTotal        decimal.Decimal
	Status           InstallmentStatus
}

// Normalize rounds every amount to the cent and recomputes the derived
// totals and status.
func (i *Installment) Normalize() {
	i.PlannedPrincipal = RoundMoney(i.PlannedPrincipal)
	i.PlannedInterest = RoundMoney(i.PlannedInterest)
	i.PlannedTotal = i.PlannedPrincipal.Add(i.PlannedInterest)
	i.PaidPrincipal = RoundMoney(i.PaidPrincipal)
	i.PaidInterest = RoundMoney(i.PaidInterest)
	i.PaidTotal = i.PaidPrincipal.Add(i.PaidInterest)
	i.Status = DeriveStatus(i.PaidTotal, i.PlannedTotal)
}

// DeriveStatus maps paid vs planned to a status. A row with nothing
// planned is considered settled.
func DeriveStatus(paid, planned decimal.Decimal) InstallmentStatus {
	switch {
	case paid.GreaterThanOrEqual(planned):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

func (i Installment) IsPaid() bool { return i.Status == StatusPaid }

// InterestDue is the unpaid part of the planned interest (never negative).
func (i Installment) InterestDue() decimal.Decimal {
	return decimal.Max(decimal.Zero, i.PlannedInterest.Sub(i.PaidInterest))
}

// PrincipalDue is the unpaid part of the planned principal (never negative).
func (i Installment) PrincipalDue() decimal.Decimal {
	return decimal.Max(decimal.Zero, i.PlannedPrincipal.Sub(i.PaidPrincipal))
}

// Outstanding is InterestDue + PrincipalDue.
func (i Installment) Outstanding() decimal.Decimal {
	return i.InterestDue().Add(i.PrincipalDue())
}

// =============================================================================
// PAYMENT - Mode and audit record
// =============================================================================

type PaymentMode string

const (
	// PaymentFull marks the targeted installment fully settled; the amount
	// is informational.
	PaymentFull PaymentMode = "full"
	// PaymentPartial runs the amount through the interest-then-principal
	// waterfall.
	PaymentPartial PaymentMode = "partial"
)

func (m PaymentMode) Valid() bool { return m == PaymentFull || m == PaymentPartial }

// PaymentRecord is the audit entry written for every applied payment.
type PaymentRecord struct {
	ID             string
	LoanID         LoanID
	Mode           PaymentMode
	Amount         decimal.Decimal // as supplied by the caller
	Credited       decimal.Decimal // money actually credited to installments
	Unapplied      decimal.Decimal // overpayment left after the loan was covered
	TargetSequence int             // installment the payment settled first
	RolloverSeq    int             // 0 when no installment was synthesized
	PaymentDate    Date
	IdempotencyKey string
	CreatedAt      time.Time
}
