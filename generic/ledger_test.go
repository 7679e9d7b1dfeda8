package generic_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) decimal.Decimal { return generic.MustParseMoney(s) }

func row(seq int, date string, principal, interest, paidPrincipal, paidInterest string) generic.Installment {
	inst := generic.Installment{
		LoanID:           "loan-1",
		SequenceNumber:   seq,
		ScheduledDate:    generic.MustParseDate(date),
		PlannedPrincipal: money(principal),
		PlannedInterest:  money(interest),
		PaidPrincipal:    money(paidPrincipal),
		PaidInterest:     money(paidInterest),
	}
	inst.Normalize()
	return inst
}

// =============================================================================
// INSTALLMENT
// =============================================================================

func TestInstallment_Normalize_RecomputesTotalsAndStatus(t *testing.T) {
	// GIVEN: An installment with unrounded amounts and stale totals
	inst := generic.Installment{
		PlannedPrincipal: decimal.RequireFromString("200.004"),
		PlannedInterest:  decimal.RequireFromString("9.996"),
		PlannedTotal:     money("1"),
		PaidInterest:     money("5"),
		PaidPrincipal:    decimal.Zero,
		Status:           generic.StatusPaid,
	}

	// WHEN: Normalizing
	inst.Normalize()

	// THEN: Amounts are rounded, totals re-derived, status recomputed
	assert.Equal(t, "200.00", generic.FormatMoney(inst.PlannedPrincipal))
	assert.Equal(t, "10.00", generic.FormatMoney(inst.PlannedInterest))
	assert.Equal(t, "210.00", generic.FormatMoney(inst.PlannedTotal))
	assert.Equal(t, "5.00", generic.FormatMoney(inst.PaidTotal))
	assert.Equal(t, generic.StatusPartial, inst.Status)
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, generic.StatusPending, generic.DeriveStatus(decimal.Zero, money("210")))
	assert.Equal(t, generic.StatusPartial, generic.DeriveStatus(money("0.01"), money("210")))
	assert.Equal(t, generic.StatusPaid, generic.DeriveStatus(money("210"), money("210")))
	assert.Equal(t, generic.StatusPaid, generic.DeriveStatus(money("300"), money("210")))
	assert.Equal(t, generic.StatusPaid, generic.DeriveStatus(decimal.Zero, decimal.Zero), "nothing planned is settled")
}

func TestInstallment_DueAmountsNeverNegative(t *testing.T) {
	inst := row(1, "2024-01-31", "200", "10", "250", "12")

	assert.True(t, inst.InterestDue().IsZero())
	assert.True(t, inst.PrincipalDue().IsZero())
	assert.True(t, inst.Outstanding().IsZero())
	assert.True(t, inst.IsPaid())
}

// =============================================================================
// LEDGER QUERIES
// =============================================================================

func TestOldestUnpaid_UsesScheduledDateNotSliceOrder(t *testing.T) {
	// GIVEN: Rows stored out of date order, the first one paid
	rows := []generic.Installment{
		row(1, "2024-01-31", "200", "10", "200", "10"),
		row(3, "2024-03-31", "200", "10", "0", "0"),
		row(2, "2024-03-01", "200", "10", "0", "5"),
	}

	// WHEN: Looking up the oldest unpaid row
	idx := generic.OldestUnpaid(rows)

	// THEN: Sequence 2 wins, and the slice is untouched
	require.Equal(t, 2, idx)
	assert.Equal(t, 2, rows[idx].SequenceNumber)
	assert.Equal(t, 3, rows[1].SequenceNumber)
}

func TestOldestUnpaid_TieOnDateUsesSequence(t *testing.T) {
	rows := []generic.Installment{
		row(6, "2024-03-01", "10", "0", "0", "0"),
		row(2, "2024-03-01", "200", "10", "0", "0"),
	}
	assert.Equal(t, 1, generic.OldestUnpaid(rows))
}

func TestOldestUnpaid_AllPaid(t *testing.T) {
	rows := []generic.Installment{row(1, "2024-01-31", "200", "10", "200", "10")}
	assert.Equal(t, -1, generic.OldestUnpaid(rows))
	assert.Equal(t, -1, generic.OldestUnpaid(nil))
}

func TestFindBySequenceAndMax(t *testing.T) {
	rows := []generic.Installment{
		row(4, "2024-04-30", "1", "0", "0", "0"),
		row(1, "2024-01-31", "1", "0", "0", "0"),
	}
	assert.Equal(t, 1, generic.FindBySequence(rows, 1))
	assert.Equal(t, -1, generic.FindBySequence(rows, 2))
	assert.Equal(t, 4, generic.MaxSequence(rows))
	assert.Equal(t, 0, generic.MaxSequence(nil))
}

func TestSortBySequence(t *testing.T) {
	rows := []generic.Installment{
		row(3, "2024-02-01", "1", "0", "0", "0"),
		row(1, "2024-03-31", "1", "0", "0", "0"),
		row(2, "2024-03-01", "1", "0", "0", "0"),
	}
	generic.SortBySequence(rows)
	assert.Equal(t, []int{1, 2, 3}, []int{rows[0].SequenceNumber, rows[1].SequenceNumber, rows[2].SequenceNumber})
}

func TestSummarize(t *testing.T) {
	// GIVEN: One paid, one partial, one untouched installment
	rows := []generic.Installment{
		row(1, "2024-01-31", "200", "10", "200", "10"),
		row(2, "2024-03-01", "200", "10", "0", "5"),
		row(3, "2024-03-31", "200", "10", "0", "0"),
	}

	// WHEN: Summarizing
	s := generic.Summarize(rows)

	// THEN: Totals are derived from the rows
	assert.Equal(t, 3, s.Installments)
	assert.Equal(t, 1, s.PaidInstallments)
	assert.Equal(t, "630.00", generic.FormatMoney(s.PlannedTotal()))
	assert.Equal(t, "215.00", generic.FormatMoney(s.PaidTotal()))
	assert.Equal(t, "400.00", generic.FormatMoney(s.OutstandingPrincipal))
	assert.Equal(t, "15.00", generic.FormatMoney(s.OutstandingInterest))
	assert.Equal(t, "415.00", generic.FormatMoney(s.Outstanding()))
}

func TestSummarize_Empty(t *testing.T) {
	s := generic.Summarize(nil)
	assert.Equal(t, 0, s.Installments)
	assert.True(t, s.Outstanding().IsZero())
}

// =============================================================================
// MONEY / DATE
// =============================================================================

func TestRoundMoney_HalfUp(t *testing.T) {
	assert.Equal(t, "0.01", generic.FormatMoney(generic.RoundMoney(decimal.RequireFromString("0.005"))))
	assert.Equal(t, "333.33", generic.FormatMoney(generic.RoundMoney(money("1000").Div(decimal.NewFromInt(3)))))
	assert.Equal(t, "210.00", generic.FormatMoney(money("210")))

	_, err := generic.ParseMoney("12,50")
	assert.Error(t, err)
}

func TestCheckMoneyRange(t *testing.T) {
	ok := []string{"0", "0.01", "1050.00", "9999999999999999.99", "-250", "0.000000000001"}
	for _, s := range ok {
		assert.NoError(t, generic.CheckMoneyRange(decimal.RequireFromString(s)), s)
	}

	tooBig := []string{"1e20000000", "1e16", "12345678901234567", "0.0000000000001", "1e-40"}
	for _, s := range tooBig {
		assert.ErrorIs(t, generic.CheckMoneyRange(decimal.RequireFromString(s)), generic.ErrMoneyOutOfRange, s)
	}
}

func TestParseMoney_RejectsOutOfRange(t *testing.T) {
	// GIVEN: A short literal with an enormous exponent
	start := time.Now()

	// WHEN: Parsing it
	_, err := generic.ParseMoney("1e20000000")

	// THEN: It is rejected without expanding the value
	require.ErrorIs(t, err, generic.ErrMoneyOutOfRange)
	assert.Less(t, time.Since(start), time.Second)

	d, err := generic.ParseMoney("12.345")
	require.NoError(t, err)
	assert.Equal(t, "12.35", generic.FormatMoney(d))
}

func TestDate_Arithmetic(t *testing.T) {
	d := generic.NewDate(2024, time.January, 1)

	assert.Equal(t, "2024-01-31", d.AddDays(30).String())
	assert.Equal(t, "2024-03-01", d.AddDays(60).String(), "2024 is a leap year")
	assert.Equal(t, "2024-02-01", d.FirstOfNextMonth().String())
	assert.Equal(t, "2025-01-01", generic.NewDate(2024, time.December, 31).FirstOfNextMonth().String())
	assert.Equal(t, 60, generic.DaysBetween(d, d.AddDays(60)))
	assert.Equal(t, "", generic.Date{}.String())
}

func TestDate_DateOfDropsTimeOfDay(t *testing.T) {
	ts := time.Date(2024, time.May, 30, 23, 59, 0, 0, time.UTC)
	assert.True(t, generic.DateOf(ts).Equal(generic.NewDate(2024, time.May, 30)))
}

func TestDate_JSON(t *testing.T) {
	type wrapper struct {
		Date generic.Date `json:"date"`
	}

	b, err := json.Marshal(wrapper{Date: generic.NewDate(2024, time.February, 29)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-02-29"}`, string(b))

	b, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":null}`, string(b))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-05-30"}`), &w))
	assert.Equal(t, "2024-05-30", w.Date.String())

	require.NoError(t, json.Unmarshal([]byte(`{"date":""}`), &w))
	assert.True(t, w.Date.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"date":"30/05/2024"}`), &w))
}
