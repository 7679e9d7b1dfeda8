/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  engine's types from the wire contract. Money is always a string with
  two decimals; dates are YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers and in the engine, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/loan.go: LoanJSON request body
*/
package api

import (
	"time"

	"github.com/warp/lending-engine/factory"
	"github.com/warp/lending-engine/generic"
	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// INSTALLMENTS
// =============================================================================

type InstallmentDTO struct {
	LoanID           string `json:"loan_id"`
	SequenceNumber   int    `json:"sequence_number"`
	ScheduledDate    string `json:"scheduled_date"`
	PlannedPrincipal string `json:"planned_principal"`
	PlannedInterest  string `json:"planned_interest"`
	PlannedTotal     string `json:"planned_total"`
	PaidPrincipal    string `json:"paid_principal"`
	PaidInterest     string `json:"paid_interest"`
	PaidTotal        string `json:"paid_total"`
	Status           string `json:"status"`
}

type SummaryDTO struct {
	Installments         int    `json:"installments"`
	PaidInstallments     int    `json:"paid_installments"`
	PlannedTotal         string `json:"planned_total"`
	PaidTotal            string `json:"paid_total"`
	OutstandingPrincipal string `json:"outstanding_principal"`
	OutstandingInterest  string `json:"outstanding_interest"`
	Outstanding          string `json:"outstanding"`
}

// ScheduleResponse is returned by schedule generation and listing.
type ScheduleResponse struct {
	LoanID       string           `json:"loan_id"`
	Installments []InstallmentDTO `json:"installments"`
	Summary      SummaryDTO       `json:"summary"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// ApplyPaymentRequest is the body of POST /api/loans/{id}/payments.
type ApplyPaymentRequest struct {
	Amount            *factory.Amount `json:"amount"`
	PaymentDate       string          `json:"payment_date"`
	Mode              string          `json:"mode"`
	TargetInstallment int             `json:"target_installment,omitempty"`
	IdempotencyKey    string          `json:"idempotency_key,omitempty"`
}

type PaymentOutcomeDTO struct {
	PaymentID string          `json:"payment_id"`
	Updated   InstallmentDTO  `json:"updated"`
	Rollover  *InstallmentDTO `json:"rollover,omitempty"`
	Credited  string          `json:"credited"`
	Unapplied string          `json:"unapplied"`
}

type PaymentRecordDTO struct {
	ID                string `json:"id"`
	LoanID            string `json:"loan_id"`
	Mode              string `json:"mode"`
	Amount            string `json:"amount"`
	Credited          string `json:"credited"`
	Unapplied         string `json:"unapplied"`
	TargetInstallment int    `json:"target_installment"`
	RolloverSequence  int    `json:"rollover_sequence,omitempty"`
	PaymentDate       string `json:"payment_date"`
	IdempotencyKey    string `json:"idempotency_key,omitempty"`
	CreatedAt         string `json:"created_at"`
}

// =============================================================================
// CADENCE / FINES
// =============================================================================

type NextMeetingDTO struct {
	Anchor    string `json:"anchor"`
	Weekday   string `json:"weekday"`
	Frequency string `json:"frequency"`
	Next      string `json:"next"`
}

// FineDueDateRequest is the body of POST /api/fines/due-date.
type FineDueDateRequest struct {
	ID        string          `json:"id"`
	MemberID  string          `json:"member_id,omitempty"`
	GroupID   string          `json:"group_id,omitempty"`
	Amount    *factory.Amount `json:"amount,omitempty"`
	IssuedOn  string          `json:"issued_on"`
	Weekday   string          `json:"weekday"`
	Frequency string          `json:"frequency"`
	AsOf      string          `json:"as_of,omitempty"`
}

type FineDueDateDTO struct {
	ID          string `json:"id"`
	DueDate     string `json:"due_date"`
	Overdue     bool   `json:"overdue"`
	DaysOverdue int    `json:"days_overdue"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toInstallmentDTO(inst generic.Installment) InstallmentDTO {
	return InstallmentDTO{
		LoanID:           string(inst.LoanID),
		SequenceNumber:   inst.SequenceNumber,
		ScheduledDate:    inst.ScheduledDate.String(),
		PlannedPrincipal: generic.FormatMoney(inst.PlannedPrincipal),
		PlannedInterest:  generic.FormatMoney(inst.PlannedInterest),
		PlannedTotal:     generic.FormatMoney(inst.PlannedTotal),
		PaidPrincipal:    generic.FormatMoney(inst.PaidPrincipal),
		PaidInterest:     generic.FormatMoney(inst.PaidInterest),
		PaidTotal:        generic.FormatMoney(inst.PaidTotal),
		Status:           string(inst.Status),
	}
}

func toScheduleResponse(loanID generic.LoanID, rows []generic.Installment) ScheduleResponse {
	dtos := make([]InstallmentDTO, len(rows))
	for i, inst := range rows {
		dtos[i] = toInstallmentDTO(inst)
	}
	s := generic.Summarize(rows)
	return ScheduleResponse{
		LoanID:       string(loanID),
		Installments: dtos,
		Summary: SummaryDTO{
			Installments:         s.Installments,
			PaidInstallments:     s.PaidInstallments,
			PlannedTotal:         generic.FormatMoney(s.PlannedTotal()),
			PaidTotal:            generic.FormatMoney(s.PaidTotal()),
			OutstandingPrincipal: generic.FormatMoney(s.OutstandingPrincipal),
			OutstandingInterest:  generic.FormatMoney(s.OutstandingInterest),
			Outstanding:          generic.FormatMoney(s.Outstanding()),
		},
	}
}

func toPaymentOutcomeDTO(out lending.PaymentOutcome) PaymentOutcomeDTO {
	dto := PaymentOutcomeDTO{
		PaymentID: out.PaymentID,
		Updated:   toInstallmentDTO(out.Updated),
		Credited:  generic.FormatMoney(out.Credited),
		Unapplied: generic.FormatMoney(out.Unapplied),
	}
	if out.Rollover != nil {
		r := toInstallmentDTO(*out.Rollover)
		dto.Rollover = &r
	}
	return dto
}

func toPaymentRecordDTO(rec generic.PaymentRecord) PaymentRecordDTO {
	return PaymentRecordDTO{
		ID:                rec.ID,
		LoanID:            string(rec.LoanID),
		Mode:              string(rec.Mode),
		Amount:            generic.FormatMoney(rec.Amount),
		Credited:          generic.FormatMoney(rec.Credited),
		Unapplied:         generic.FormatMoney(rec.Unapplied),
		TargetInstallment: rec.TargetSequence,
		RolloverSequence:  rec.RolloverSeq,
		PaymentDate:       rec.PaymentDate.String(),
		IdempotencyKey:    rec.IdempotencyKey,
		CreatedAt:         rec.CreatedAt.Format(time.RFC3339),
	}
}
