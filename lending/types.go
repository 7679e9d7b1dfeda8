// Package lending implements loan amortization and payment allocation on
// top of the generic primitives.
package lending

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/generic"
)

// PeriodDays is the fixed length of one repayment period. Due dates are
// spaced by exactly this many days, not by calendar months. This matches
// the recorded schedules of existing loans; switching to calendar months
// would move every downstream due date.
const PeriodDays = 30

// MaxInstallmentCount is the longest schedule accepted: fifty years of
// 30-day periods.
const MaxInstallmentCount = 600

// =============================================================================
// LOAN PARAMETERS - Supplied by the loan-origination module
// =============================================================================

// LoanParameters are frozen at origination. Absent decimals are
// represented with Valid=false, an absent count with 0 and an absent date
// with the zero Date.
type LoanParameters struct {
	ID                     generic.LoanID
	Principal              decimal.NullDecimal
	TotalInterest          decimal.NullDecimal // currency units, not a rate
	TotalPayable           decimal.NullDecimal
	InstallmentCount       int
	FixedInstallmentAmount decimal.NullDecimal
	DisbursementDate       generic.Date
}

// terms are validated parameters with every amount rounded to the cent.
type terms struct {
	loanID           generic.LoanID
	principal        decimal.Decimal
	totalInterest    decimal.Decimal
	totalPayable     decimal.Decimal
	count            int
	fixedAmount      *decimal.Decimal
	disbursementDate generic.Date
}

// Validate checks presence of the four required fields first, then ranges
// and consistency. TotalInterest, when absent, is derived as
// TotalPayable - Principal.
func (p LoanParameters) Validate() error {
	_, err := p.terms()
	return err
}

func (p LoanParameters) terms() (terms, error) {
	missing := func(field string) error {
		return &generic.MissingParameterError{LoanID: p.ID, Field: field}
	}
	invalid := func(field, reason string) error {
		return &generic.InvalidParameterError{LoanID: p.ID, Field: field, Reason: reason}
	}

	switch {
	case p.ID == "":
		return terms{}, missing("id")
	case !p.Principal.Valid:
		return terms{}, missing("principal")
	case !p.TotalPayable.Valid:
		return terms{}, missing("total_payable")
	case p.InstallmentCount == 0:
		return terms{}, missing("installment_count")
	case p.DisbursementDate.IsZero():
		return terms{}, missing("disbursement_date")
	}

	amounts := []struct {
		field string
		value decimal.NullDecimal
	}{
		{"principal", p.Principal},
		{"total_interest", p.TotalInterest},
		{"total_payable", p.TotalPayable},
		{"fixed_installment_amount", p.FixedInstallmentAmount},
	}
	for _, a := range amounts {
		if !a.value.Valid {
			continue
		}
		if err := generic.CheckMoneyRange(a.value.Decimal); err != nil {
			return terms{}, invalid(a.field, err.Error())
		}
	}

	t := terms{
		loanID:           p.ID,
		principal:        generic.RoundMoney(p.Principal.Decimal),
		totalPayable:     generic.RoundMoney(p.TotalPayable.Decimal),
		count:            p.InstallmentCount,
		disbursementDate: p.DisbursementDate,
	}
	if p.TotalInterest.Valid {
		t.totalInterest = generic.RoundMoney(p.TotalInterest.Decimal)
	} else {
		t.totalInterest = t.totalPayable.Sub(t.principal)
	}

	if !t.principal.IsPositive() {
		return terms{}, invalid("principal", "must be greater than zero")
	}
	if t.count < 1 {
		return terms{}, invalid("installment_count", "must be at least 1")
	}
	if t.count > MaxInstallmentCount {
		return terms{}, invalid("installment_count", fmt.Sprintf("must be at most %d", MaxInstallmentCount))
	}
	if t.totalInterest.IsNegative() {
		return terms{}, invalid("total_interest", "must not be negative")
	}
	if !t.totalPayable.Equal(t.principal.Add(t.totalInterest)) {
		return terms{}, invalid("total_payable", "must equal principal + total_interest ("+
			generic.FormatMoney(t.principal.Add(t.totalInterest))+")")
	}
	if p.FixedInstallmentAmount.Valid {
		fixed := generic.RoundMoney(p.FixedInstallmentAmount.Decimal)
		if !fixed.IsPositive() {
			return terms{}, invalid("fixed_installment_amount", "must be greater than zero")
		}
		t.fixedAmount = &fixed
	}
	return t, nil
}

// =============================================================================
// PAYMENT REQUEST / OUTCOME
// =============================================================================

// PaymentRequest is one payment event. TargetSequence 0 means "no target":
// partial payments then land on the oldest unpaid installment.
type PaymentRequest struct {
	LoanID         generic.LoanID
	Amount         decimal.Decimal
	PaymentDate    generic.Date
	Mode           generic.PaymentMode
	TargetSequence int
	IdempotencyKey string
}

// PaymentOutcome is what the engine reports back after a payment.
type PaymentOutcome struct {
	PaymentID string
	Updated   generic.Installment
	// Rollover is the synthesized trailing installment, if any.
	Rollover *generic.Installment
	// Credited is the money that landed on installments.
	Credited decimal.Decimal
	// Unapplied is the overpayment left after the whole loan was covered.
	Unapplied decimal.Decimal
}
