/*
Package factory converts JSON loan records into lending.LoanParameters.

PURPOSE:
  The loan-origination module hands loans to the engine as JSON. Amounts
  travel as strings ("1000.00") so they never pass through float64; a
  bare JSON number is accepted too and parsed from its literal text.

JSON SCHEMA:
  {
    "id": "loan-42",
    "principal": "1000.00",
    "total_interest": "50.00",
    "total_payable": "1050.00",
    "installment_count": 5,
    "fixed_installment_amount": null,
    "disbursement_date": "2024-01-01"
  }

ABSENT VS ZERO:
  A missing or null field stays absent (NullDecimal.Valid=false) so the
  engine can report MissingParameter instead of silently using 0.

USAGE:
  params, err := factory.ParseLoan(body)
  schedule, err := engine.GenerateSchedule(ctx, params)

SEE ALSO:
  - lending/types.go: LoanParameters and validation
  - api/handlers.go: Calls ParseLoan/FromJSON for request bodies
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/generic"
	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// LoanJSON is the JSON representation of a loan's origination parameters.
type LoanJSON struct {
	ID                     string  `json:"id"`
	Principal              *Amount `json:"principal,omitempty"`
	TotalInterest          *Amount `json:"total_interest,omitempty"`
	TotalPayable           *Amount `json:"total_payable,omitempty"`
	InstallmentCount       int     `json:"installment_count,omitempty"`
	FixedInstallmentAmount *Amount `json:"fixed_installment_amount,omitempty"`
	DisbursementDate       string  `json:"disbursement_date,omitempty"`
}

// Amount is a decimal that unmarshals from either a JSON string or a JSON
// number, keeping the literal digits.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) *Amount { return &Amount{Decimal: d} }

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", b, err)
	}
	if err := generic.CheckMoneyRange(d); err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(generic.FormatMoney(a.Decimal))
}

// =============================================================================
// CONVERSION
// =============================================================================

// ParseLoan decodes a JSON document into loan parameters.
func ParseLoan(data []byte) (lending.LoanParameters, error) {
	var lj LoanJSON
	if err := json.Unmarshal(data, &lj); err != nil {
		return lending.LoanParameters{}, fmt.Errorf("invalid loan JSON: %w", err)
	}
	return FromJSON(lj)
}

// FromJSON converts an already-decoded LoanJSON. Only the date format can
// fail here; range checks belong to LoanParameters.Validate.
func FromJSON(lj LoanJSON) (lending.LoanParameters, error) {
	params := lending.LoanParameters{
		ID:                     generic.LoanID(lj.ID),
		Principal:              nullDecimal(lj.Principal),
		TotalInterest:          nullDecimal(lj.TotalInterest),
		TotalPayable:           nullDecimal(lj.TotalPayable),
		InstallmentCount:       lj.InstallmentCount,
		FixedInstallmentAmount: nullDecimal(lj.FixedInstallmentAmount),
	}
	if lj.DisbursementDate != "" {
		d, err := generic.ParseDate(lj.DisbursementDate)
		if err != nil {
			return lending.LoanParameters{}, &generic.InvalidParameterError{
				LoanID: params.ID, Field: "disbursement_date", Reason: err.Error(),
			}
		}
		params.DisbursementDate = d
	}
	return params, nil
}

// ToJSON is the inverse of FromJSON.
func ToJSON(p lending.LoanParameters) LoanJSON {
	return LoanJSON{
		ID:                     string(p.ID),
		Principal:              amountOf(p.Principal),
		TotalInterest:          amountOf(p.TotalInterest),
		TotalPayable:           amountOf(p.TotalPayable),
		InstallmentCount:       p.InstallmentCount,
		FixedInstallmentAmount: amountOf(p.FixedInstallmentAmount),
		DisbursementDate:       p.DisbursementDate.String(),
	}
}

func nullDecimal(a *Amount) decimal.NullDecimal {
	if a == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(a.Decimal)
}

func amountOf(d decimal.NullDecimal) *Amount {
	if !d.Valid {
		return nil
	}
	return NewAmount(d.Decimal)
}
