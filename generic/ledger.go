/*
ledger.go - Queries over a loan's installment set

PURPOSE:
  A loan's installments are its repayment ledger. Loan-wide figures
  (outstanding principal, total credited) are always computed from the
  rows, never kept in a separate field that could drift.

HELPERS:
  - SortBySequence:  Ledger order
  - FindBySequence:  Locate a row by its sequence number
  - OldestUnpaid:    First row whose status is not paid
  - MaxSequence:     Highest sequence number in use
  - Summarize:       Planned / paid / outstanding totals

SEE ALSO:
  - lending/payment.go: Allocation uses these helpers
  - store.go: Persistence of the rows
*/
package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SortBySequence orders installments by SequenceNumber.
func SortBySequence(installments []Installment) {
	sort.SliceStable(installments, func(a, b int) bool {
		return installments[a].SequenceNumber < installments[b].SequenceNumber
	})
}

// FindBySequence returns the index of the installment, or -1.
func FindBySequence(installments []Installment, seq int) int {
	for i, inst := range installments {
		if inst.SequenceNumber == seq {
			return i
		}
	}
	return -1
}

// OldestUnpaid returns the index of the earliest-scheduled installment
// that is not paid, or -1. The slice is not reordered.
func OldestUnpaid(installments []Installment) int {
	best := -1
	for i, inst := range installments {
		if inst.IsPaid() {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		b := installments[best]
		if inst.ScheduledDate.Before(b.ScheduledDate) ||
			(inst.ScheduledDate.Equal(b.ScheduledDate) && inst.SequenceNumber < b.SequenceNumber) {
			best = i
		}
	}
	return best
}

func MaxSequence(installments []Installment) int {
	highest := 0
	for _, inst := range installments {
		if inst.SequenceNumber > highest {
			highest = inst.SequenceNumber
		}
	}
	return highest
}

// =============================================================================
// SUMMARY - Loan-wide totals derived from the rows
// =============================================================================

type ScheduleSummary struct {
	Installments         int
	PaidInstallments     int
	PlannedPrincipal     decimal.Decimal
	PlannedInterest      decimal.Decimal
	PaidPrincipal        decimal.Decimal
	PaidInterest         decimal.Decimal
	OutstandingPrincipal decimal.Decimal
	OutstandingInterest  decimal.Decimal
}

func (s ScheduleSummary) PlannedTotal() decimal.Decimal {
	return s.PlannedPrincipal.Add(s.PlannedInterest)
}

func (s ScheduleSummary) PaidTotal() decimal.Decimal {
	return s.PaidPrincipal.Add(s.PaidInterest)
}

func (s ScheduleSummary) Outstanding() decimal.Decimal {
	return s.OutstandingPrincipal.Add(s.OutstandingInterest)
}

// Summarize adds up every installment of a loan.
func Summarize(installments []Installment) ScheduleSummary {
	s := ScheduleSummary{
		Installments:         len(installments),
		PlannedPrincipal:     decimal.Zero,
		PlannedInterest:      decimal.Zero,
		PaidPrincipal:        decimal.Zero,
		PaidInterest:         decimal.Zero,
		OutstandingPrincipal: decimal.Zero,
		OutstandingInterest:  decimal.Zero,
	}
	for _, inst := range installments {
		if inst.IsPaid() {
			s.PaidInstallments++
		}
		s.PlannedPrincipal = s.PlannedPrincipal.Add(inst.PlannedPrincipal)
		s.PlannedInterest = s.PlannedInterest.Add(inst.PlannedInterest)
		s.PaidPrincipal = s.PaidPrincipal.Add(inst.PaidPrincipal)
		s.PaidInterest = s.PaidInterest.Add(inst.PaidInterest)
		s.OutstandingPrincipal = s.OutstandingPrincipal.Add(inst.PrincipalDue())
		s.OutstandingInterest = s.OutstandingInterest.Add(inst.InterestDue())
	}
	return s
}
