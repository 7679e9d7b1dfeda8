package factory_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/factory"
	"github.com/warp/lending-engine/generic"
	"github.com/warp/lending-engine/lending"
)

func TestParseLoan_StringAmounts(t *testing.T) {
	// GIVEN: A loan as sent by the origination module
	body := []byte(`{
		"id": "loan-42",
		"principal": "1000.00",
		"total_interest": "50.00",
		"total_payable": "1050.00",
		"installment_count": 5,
		"disbursement_date": "2024-01-01"
	}`)

	// WHEN: Parsing
	p, err := factory.ParseLoan(body)

	// THEN: Every field is present and valid
	require.NoError(t, err)
	assert.Equal(t, generic.LoanID("loan-42"), p.ID)
	assert.True(t, p.Principal.Valid)
	assert.Equal(t, "1000.00", generic.FormatMoney(p.Principal.Decimal))
	assert.Equal(t, 5, p.InstallmentCount)
	assert.False(t, p.FixedInstallmentAmount.Valid)
	assert.Equal(t, "2024-01-01", p.DisbursementDate.String())
	assert.NoError(t, p.Validate())
}

func TestParseLoan_NumberAmountsKeepDigits(t *testing.T) {
	p, err := factory.ParseLoan([]byte(`{"id":"l","principal":0.1,"total_payable":0.30,"installment_count":1,"disbursement_date":"2024-01-01"}`))
	require.NoError(t, err)
	assert.Equal(t, "0.10", generic.FormatMoney(p.Principal.Decimal))
	assert.Equal(t, "0.30", generic.FormatMoney(p.TotalPayable.Decimal))
	assert.False(t, p.TotalInterest.Valid)
}

func TestParseLoan_AbsentAndNullStayMissing(t *testing.T) {
	p, err := factory.ParseLoan([]byte(`{"id":"l","principal":null,"total_payable":"10","installment_count":1,"disbursement_date":"2024-01-01"}`))
	require.NoError(t, err)
	assert.False(t, p.Principal.Valid)

	err = p.Validate()
	require.ErrorIs(t, err, generic.ErrMissingParameter)
	assert.Contains(t, err.Error(), "principal")
}

func TestParseLoan_Errors(t *testing.T) {
	_, err := factory.ParseLoan([]byte(`{"id":`))
	assert.Error(t, err)

	_, err = factory.ParseLoan([]byte(`{"id":"l","principal":"ten"}`))
	assert.Error(t, err)

	_, err = factory.ParseLoan([]byte(`{"id":"l","disbursement_date":"01/01/2024"}`))
	assert.ErrorIs(t, err, generic.ErrInvalidParameter)

	_, err = factory.ParseLoan([]byte(`{"id":"l","principal":1e20000000}`))
	assert.ErrorIs(t, err, generic.ErrMoneyOutOfRange)

	_, err = factory.ParseLoan([]byte(`{"id":"l","total_payable":"1e-40"}`))
	assert.ErrorIs(t, err, generic.ErrMoneyOutOfRange)
}

func TestToJSON_RoundTrip(t *testing.T) {
	original, err := factory.ParseLoan([]byte(`{"id":"l","principal":"1000","total_interest":"50","total_payable":"1050","installment_count":5,"fixed_installment_amount":"250","disbursement_date":"2024-01-01"}`))
	require.NoError(t, err)

	b, err := json.Marshal(factory.ToJSON(original))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"l","principal":"1000.00","total_interest":"50.00","total_payable":"1050.00","installment_count":5,"fixed_installment_amount":"250.00","disbursement_date":"2024-01-01"}`, string(b))

	again, err := factory.ParseLoan(b)
	require.NoError(t, err)

	a, err := lending.GenerateSchedule(original)
	require.NoError(t, err)
	c, err := lending.GenerateSchedule(again)
	require.NoError(t, err)
	assert.Equal(t, len(a), len(c))
	for i := range a {
		assert.True(t, a[i].PlannedTotal.Equal(c[i].PlannedTotal))
	}
}
