package lending

import (
	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/generic"
)

// =============================================================================
// SCHEDULE GENERATOR - Loan parameters to installment rows
// =============================================================================

// GenerateSchedule builds the full installment schedule of a loan.
//
// Installments 1..N-1 carry the uniform split: a total of
// FixedInstallmentAmount (or TotalPayable/N) of which TotalInterest/N is
// interest. Installment N absorbs whatever principal and interest remain,
// so the planned sums equal Principal and TotalInterest to the cent.
//
// Installment i is due PeriodDays*i days after disbursement.
//
// The uniform split is capped at the running balance, so an oversized
// fixed amount or upward rounding never drives a planned amount negative.
func GenerateSchedule(p LoanParameters) ([]generic.Installment, error) {
	t, err := p.terms()
	if err != nil {
		return nil, err
	}

	n := decimal.NewFromInt(int64(t.count))

	installmentTotal := generic.RoundMoney(t.totalPayable.Div(n))
	if t.fixedAmount != nil {
		installmentTotal = *t.fixedAmount
	}

	interestPer := decimal.Zero
	if t.totalInterest.IsPositive() {
		interestPer = generic.RoundMoney(t.totalInterest.Div(n))
	}

	remainingPrincipal := t.principal
	remainingInterest := t.totalInterest
	firstDate := t.disbursementDate.AddDays(PeriodDays)

	schedule := make([]generic.Installment, 0, t.count)
	for i := 1; i <= t.count; i++ {
		var principal, interest decimal.Decimal
		if i < t.count {
			interest = generic.MinMoney(interestPer, remainingInterest)
			principal = generic.MinMoney(
				decimal.Max(decimal.Zero, installmentTotal.Sub(interest)),
				remainingPrincipal,
			)
		} else {
			interest = remainingInterest
			principal = remainingPrincipal
		}
		remainingInterest = remainingInterest.Sub(interest)
		remainingPrincipal = remainingPrincipal.Sub(principal)

		inst := generic.Installment{
			LoanID:           t.loanID,
			SequenceNumber:   i,
			ScheduledDate:    firstDate.AddDays(PeriodDays * (i - 1)),
			PlannedPrincipal: principal,
			PlannedInterest:  interest,
			PaidPrincipal:    decimal.Zero,
			PaidInterest:     decimal.Zero,
		}
		inst.Normalize()
		schedule = append(schedule, inst)
	}
	return schedule, nil
}
