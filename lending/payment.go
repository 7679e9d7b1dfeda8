package lending

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/generic"
)

// =============================================================================
// PAYMENT ALLOCATOR - Waterfall + prepayment rollover
// =============================================================================

// Allocation is the new state produced by one payment. Nothing is
// persisted here; the Engine writes Updated and Rollover in one transaction.
type Allocation struct {
	Updated   generic.Installment
	Rollover  *generic.Installment
	Credited  decimal.Decimal
	Unapplied decimal.Decimal
}

// Allocate applies req to a loan's current installments.
//
// Full mode settles the targeted installment at its planned amounts; the
// supplied amount is informational.
//
// Partial mode lands on the targeted installment, or on the oldest unpaid
// one, and absorbs the amount interest first, then principal. If money is
// left over, the loan-wide outstanding balance is recomputed and, when
// positive, a trailing installment for that balance is synthesized one
// period after the payment date and credited with the leftover through the
// same waterfall. Whatever still remains is reported as Unapplied.
//
// For partial payments Credited + Unapplied always equals the amount.
func Allocate(installments []generic.Installment, req PaymentRequest) (Allocation, error) {
	if !req.Mode.Valid() {
		return Allocation{}, &generic.InvalidParameterError{
			LoanID: req.LoanID, Field: "mode", Reason: fmt.Sprintf("unknown payment mode %q", req.Mode),
		}
	}
	if err := generic.CheckMoneyRange(req.Amount); err != nil {
		return Allocation{}, fmt.Errorf("%w: %v for loan %s", generic.ErrInvalidAmount, err, req.LoanID)
	}
	amount := generic.RoundMoney(req.Amount)
	if !amount.IsPositive() {
		return Allocation{}, fmt.Errorf("%w: %s for loan %s", generic.ErrInvalidAmount, generic.FormatMoney(amount), req.LoanID)
	}
	if req.PaymentDate.IsZero() {
		return Allocation{}, &generic.MissingParameterError{LoanID: req.LoanID, Field: "payment_date"}
	}

	rows := make([]generic.Installment, len(installments))
	copy(rows, installments)

	if req.Mode == generic.PaymentFull {
		return settleFull(rows, req)
	}
	return allocatePartial(rows, req, amount)
}

func settleFull(rows []generic.Installment, req PaymentRequest) (Allocation, error) {
	if req.TargetSequence == 0 {
		return Allocation{}, &generic.MissingParameterError{LoanID: req.LoanID, Field: "target_installment"}
	}
	idx := generic.FindBySequence(rows, req.TargetSequence)
	if idx < 0 {
		return Allocation{}, &generic.InstallmentNotFoundError{LoanID: req.LoanID, SequenceNumber: req.TargetSequence}
	}

	inst := rows[idx]
	before := inst.PaidTotal
	inst.PaidPrincipal = inst.PlannedPrincipal
	inst.PaidInterest = inst.PlannedInterest
	inst.Normalize()

	return Allocation{
		Updated:   inst,
		Credited:  decimal.Max(decimal.Zero, inst.PaidTotal.Sub(before)),
		Unapplied: decimal.Zero,
	}, nil
}

func allocatePartial(rows []generic.Installment, req PaymentRequest, amount decimal.Decimal) (Allocation, error) {
	var idx int
	if req.TargetSequence != 0 {
		idx = generic.FindBySequence(rows, req.TargetSequence)
		if idx < 0 {
			return Allocation{}, &generic.InstallmentNotFoundError{LoanID: req.LoanID, SequenceNumber: req.TargetSequence}
		}
	} else {
		idx = generic.OldestUnpaid(rows)
		if idx < 0 {
			return Allocation{}, fmt.Errorf("%w for loan %s", generic.ErrNoPendingInstallments, req.LoanID)
		}
	}

	remaining := applyWaterfall(&rows[idx], amount)
	out := Allocation{Updated: rows[idx]}

	if remaining.IsPositive() {
		summary := generic.Summarize(rows)
		if summary.Outstanding().IsPositive() {
			rollover := generic.Installment{
				LoanID:           req.LoanID,
				SequenceNumber:   generic.MaxSequence(rows) + 1,
				ScheduledDate:    req.PaymentDate.AddDays(PeriodDays),
				PlannedPrincipal: summary.OutstandingPrincipal,
				PlannedInterest:  summary.OutstandingInterest,
				PaidPrincipal:    decimal.Zero,
				PaidInterest:     decimal.Zero,
			}
			remaining = applyWaterfall(&rollover, remaining)
			out.Rollover = &rollover
		}
	}

	out.Unapplied = remaining
	out.Credited = amount.Sub(remaining)
	return out, nil
}

// applyWaterfall credits amount to inst, interest first, and returns what
// the installment could not absorb.
func applyWaterfall(inst *generic.Installment, amount decimal.Decimal) decimal.Decimal {
	take := generic.MinMoney(amount, inst.InterestDue())
	inst.PaidInterest = inst.PaidInterest.Add(take)
	amount = amount.Sub(take)

	if amount.IsPositive() {
		take = generic.MinMoney(amount, inst.PrincipalDue())
		inst.PaidPrincipal = inst.PaidPrincipal.Add(take)
		amount = amount.Sub(take)
	}

	inst.Normalize()
	return amount
}
