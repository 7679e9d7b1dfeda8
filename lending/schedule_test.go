package lending_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/generic"
	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) decimal.Decimal { return generic.MustParseMoney(s) }

func amount(s string) decimal.NullDecimal { return decimal.NewNullDecimal(money(s)) }

// standardLoan is $1000 principal + $50 interest in 5 installments.
func standardLoan() lending.LoanParameters {
	return lending.LoanParameters{
		ID:               "loan-1",
		Principal:        amount("1000"),
		TotalInterest:    amount("50"),
		TotalPayable:     amount("1050"),
		InstallmentCount: 5,
		DisbursementDate: generic.MustParseDate("2024-01-01"),
	}
}

func sumPlanned(rows []generic.Installment) (principal, interest decimal.Decimal) {
	principal, interest = decimal.Zero, decimal.Zero
	for _, r := range rows {
		principal = principal.Add(r.PlannedPrincipal)
		interest = interest.Add(r.PlannedInterest)
	}
	return principal, interest
}

// =============================================================================
// SCHEDULE GENERATION
// =============================================================================

func TestGenerateSchedule_EvenSplit(t *testing.T) {
	// GIVEN: $1000 + $50 over 5 installments disbursed 2024-01-01

	// WHEN: Generating the schedule
	rows, err := lending.GenerateSchedule(standardLoan())

	// THEN: Five identical $200/$10 installments, 30 days apart
	require.NoError(t, err)
	require.Len(t, rows, 5)

	wantDates := []string{"2024-01-31", "2024-03-01", "2024-03-31", "2024-04-30", "2024-05-30"}
	for i, r := range rows {
		assert.Equal(t, generic.LoanID("loan-1"), r.LoanID)
		assert.Equal(t, i+1, r.SequenceNumber)
		assert.Equal(t, wantDates[i], r.ScheduledDate.String(), "installment %d", i+1)
		assert.Equal(t, "200.00", generic.FormatMoney(r.PlannedPrincipal))
		assert.Equal(t, "10.00", generic.FormatMoney(r.PlannedInterest))
		assert.Equal(t, "210.00", generic.FormatMoney(r.PlannedTotal))
		assert.True(t, r.PaidTotal.IsZero())
		assert.Equal(t, generic.StatusPending, r.Status)
	}
}

func TestGenerateSchedule_LastInstallmentAbsorbsRemainder(t *testing.T) {
	// GIVEN: $1000 + $100 over 3 installments (1100/3 does not divide)
	p := standardLoan()
	p.TotalInterest = amount("100")
	p.TotalPayable = amount("1100")
	p.InstallmentCount = 3

	// WHEN: Generating
	rows, err := lending.GenerateSchedule(p)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// THEN: 366.67 = 33.33 interest + 333.34 principal twice; the last row
	// takes what is left
	for _, r := range rows[:2] {
		assert.Equal(t, "33.33", generic.FormatMoney(r.PlannedInterest))
		assert.Equal(t, "333.34", generic.FormatMoney(r.PlannedPrincipal))
	}
	assert.Equal(t, "33.34", generic.FormatMoney(rows[2].PlannedInterest))
	assert.Equal(t, "333.32", generic.FormatMoney(rows[2].PlannedPrincipal))

	principal, interest := sumPlanned(rows)
	assert.True(t, principal.Equal(money("1000")))
	assert.True(t, interest.Equal(money("100")))
}

func TestGenerateSchedule_SumsMatchForManyShapes(t *testing.T) {
	loans := []struct{ principal, interest string }{
		{"1000", "50"},
		{"1000", "0"},
		{"999.99", "123.45"},
		{"50", "7.77"},
		{"0.10", "0.07"},
		{"12345.67", "2345.68"},
	}

	for _, l := range loans {
		for n := 1; n <= 24; n++ {
			t.Run(fmt.Sprintf("%s+%s/%d", l.principal, l.interest, n), func(t *testing.T) {
				p := standardLoan()
				p.Principal = amount(l.principal)
				p.TotalInterest = amount(l.interest)
				p.TotalPayable = decimal.NewNullDecimal(money(l.principal).Add(money(l.interest)))
				p.InstallmentCount = n

				rows, err := lending.GenerateSchedule(p)
				require.NoError(t, err)
				require.Len(t, rows, n)

				principal, interest := sumPlanned(rows)
				assert.True(t, principal.Equal(money(l.principal)), "principal sum %s", principal)
				assert.True(t, interest.Equal(money(l.interest)), "interest sum %s", interest)
				for _, r := range rows {
					assert.False(t, r.PlannedPrincipal.IsNegative(), "installment %d principal", r.SequenceNumber)
					assert.False(t, r.PlannedInterest.IsNegative(), "installment %d interest", r.SequenceNumber)
					assert.True(t, r.PlannedTotal.Equal(r.PlannedPrincipal.Add(r.PlannedInterest)))
				}
			})
		}
	}
}

func TestGenerateSchedule_FixedInstallmentAmount(t *testing.T) {
	// GIVEN: A fixed $250 installment on the standard loan
	p := standardLoan()
	p.FixedInstallmentAmount = amount("250")

	// WHEN: Generating
	rows, err := lending.GenerateSchedule(p)
	require.NoError(t, err)

	// THEN: $240 principal per row until the balance runs out
	assert.Equal(t, "240.00", generic.FormatMoney(rows[0].PlannedPrincipal))
	assert.Equal(t, "240.00", generic.FormatMoney(rows[3].PlannedPrincipal))
	assert.Equal(t, "40.00", generic.FormatMoney(rows[4].PlannedPrincipal))
	assert.Equal(t, "10.00", generic.FormatMoney(rows[4].PlannedInterest))

	principal, interest := sumPlanned(rows)
	assert.True(t, principal.Equal(money("1000")))
	assert.True(t, interest.Equal(money("50")))
}

func TestGenerateSchedule_OversizedFixedAmountNeverNegative(t *testing.T) {
	p := standardLoan()
	p.FixedInstallmentAmount = amount("600")

	rows, err := lending.GenerateSchedule(p)
	require.NoError(t, err)

	assert.Equal(t, "590.00", generic.FormatMoney(rows[0].PlannedPrincipal))
	assert.Equal(t, "410.00", generic.FormatMoney(rows[1].PlannedPrincipal))
	for _, r := range rows[2:] {
		assert.True(t, r.PlannedPrincipal.IsZero())
		assert.False(t, r.PlannedPrincipal.IsNegative())
	}
	principal, _ := sumPlanned(rows)
	assert.True(t, principal.Equal(money("1000")))
}

func TestGenerateSchedule_DerivesMissingInterest(t *testing.T) {
	p := standardLoan()
	p.TotalInterest = decimal.NullDecimal{}

	rows, err := lending.GenerateSchedule(p)
	require.NoError(t, err)

	_, interest := sumPlanned(rows)
	assert.True(t, interest.Equal(money("50")))
}

func TestGenerateSchedule_Deterministic(t *testing.T) {
	a, err := lending.GenerateSchedule(standardLoan())
	require.NoError(t, err)
	b, err := lending.GenerateSchedule(standardLoan())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestGenerateSchedule_MissingParameters(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*lending.LoanParameters)
	}{
		{"id", func(p *lending.LoanParameters) { p.ID = "" }},
		{"principal", func(p *lending.LoanParameters) { p.Principal = decimal.NullDecimal{} }},
		{"total_payable", func(p *lending.LoanParameters) { p.TotalPayable = decimal.NullDecimal{} }},
		{"installment_count", func(p *lending.LoanParameters) { p.InstallmentCount = 0 }},
		{"disbursement_date", func(p *lending.LoanParameters) { p.DisbursementDate = generic.Date{} }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			p := standardLoan()
			tt.mutate(&p)

			rows, err := lending.GenerateSchedule(p)

			assert.Nil(t, rows)
			require.ErrorIs(t, err, generic.ErrMissingParameter)
			var mp *generic.MissingParameterError
			require.True(t, errors.As(err, &mp))
			assert.Equal(t, tt.field, mp.Field)
			assert.True(t, generic.IsClientError(err))
		})
	}
}

func TestGenerateSchedule_InvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		mutate func(*lending.LoanParameters)
	}{
		{"zero principal", "principal", func(p *lending.LoanParameters) { p.Principal = amount("0") }},
		{"negative count", "installment_count", func(p *lending.LoanParameters) { p.InstallmentCount = -2 }},
		{"negative interest", "total_interest", func(p *lending.LoanParameters) {
			p.TotalInterest = amount("-1")
			p.TotalPayable = amount("999")
		}},
		{"payable mismatch", "total_payable", func(p *lending.LoanParameters) { p.TotalPayable = amount("1049.99") }},
		{"zero fixed amount", "fixed_installment_amount", func(p *lending.LoanParameters) { p.FixedInstallmentAmount = amount("0") }},
		{"count above maximum", "installment_count", func(p *lending.LoanParameters) { p.InstallmentCount = lending.MaxInstallmentCount + 1 }},
		{"count far above maximum", "installment_count", func(p *lending.LoanParameters) { p.InstallmentCount = 1 << 50 }},
		{"principal exponent out of range", "principal", func(p *lending.LoanParameters) {
			p.Principal = decimal.NewNullDecimal(decimal.New(1, 20000000))
		}},
		{"payable exponent out of range", "total_payable", func(p *lending.LoanParameters) {
			p.TotalPayable = decimal.NewNullDecimal(decimal.New(1, 20000000))
		}},
		{"fixed amount scale out of range", "fixed_installment_amount", func(p *lending.LoanParameters) {
			p.FixedInstallmentAmount = decimal.NewNullDecimal(decimal.New(1, -40))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := standardLoan()
			tt.mutate(&p)

			_, err := lending.GenerateSchedule(p)

			require.ErrorIs(t, err, generic.ErrInvalidParameter)
			var ip *generic.InvalidParameterError
			require.True(t, errors.As(err, &ip))
			assert.Equal(t, tt.field, ip.Field)
		})
	}
}

func TestGenerateSchedule_MaxInstallmentCount(t *testing.T) {
	// GIVEN: The longest schedule accepted
	p := standardLoan()
	p.InstallmentCount = lending.MaxInstallmentCount

	// WHEN: Generating
	rows, err := lending.GenerateSchedule(p)

	// THEN: Every installment is present and the sums are exact
	require.NoError(t, err)
	require.Len(t, rows, lending.MaxInstallmentCount)
	principal, interest := sumPlanned(rows)
	assert.Equal(t, "1000.00", generic.FormatMoney(principal))
	assert.Equal(t, "50.00", generic.FormatMoney(interest))
}
