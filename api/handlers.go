/*
handlers.go - HTTP API handlers for the lending engine

PURPOSE:
  Exposes schedule generation, payment allocation and the meeting
  calendar via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to lending.Engine.

ENDPOINTS:
  Loans:
    POST   /api/loans/{id}/schedule      Generate (or regenerate) the schedule
    GET    /api/loans/{id}/installments  Current installments + summary
    POST   /api/loans/{id}/payments      Apply a payment
    GET    /api/loans/{id}/payments      Payment journal

  Calendar:
    GET    /api/cadence/next             Next meeting date
    POST   /api/fines/due-date           Fine deadline

  Ops:
    GET    /health                       Liveness + store ping

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Missing/invalid parameters, invalid amount
  - 404: Target installment not found
  - 409: Duplicate payment, nothing left to pay
  - 500: Store failures

SECURITY NOTE:
  No authentication or authorization. The engine is meant to sit behind
  the platform's gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/lending-engine/factory"
	"github.com/warp/lending-engine/fines"
	"github.com/warp/lending-engine/generic"
	"github.com/warp/lending-engine/lending"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *lending.Engine
	Logger logrus.FieldLogger
	// Pinger is optional; /health skips the store check without it.
	Pinger Pinger
}

// NewHandler creates a handler around the engine. If the engine's store
// can be pinged it is used for /health.
func NewHandler(engine *lending.Engine, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = engine.Logger
	}
	h := &Handler{Engine: engine, Logger: logger}
	if p, ok := engine.Store.(Pinger); ok {
		h.Pinger = p
	}
	return h
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// GenerateSchedule builds the installment plan from the loan in the body.
// POST /api/loans/{id}/schedule
func (h *Handler) GenerateSchedule(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "id")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	params, err := factory.ParseLoan(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid loan", err)
		return
	}
	if params.ID == "" {
		params.ID = generic.LoanID(loanID)
	}
	if string(params.ID) != loanID {
		writeError(w, http.StatusBadRequest, "Loan ID mismatch",
			fmt.Errorf("body id %q does not match path id %q", params.ID, loanID))
		return
	}

	rows, err := h.Engine.GenerateSchedule(r.Context(), params)
	if err != nil {
		writeEngineError(w, err, "Failed to generate schedule")
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleResponse(params.ID, rows))
}

// ListInstallments returns the stored installments with a loan summary.
// GET /api/loans/{id}/installments
func (h *Handler) ListInstallments(w http.ResponseWriter, r *http.Request) {
	loanID := generic.LoanID(chi.URLParam(r, "id"))

	rows, err := h.Engine.Installments(r.Context(), loanID)
	if err != nil {
		writeEngineError(w, err, "Failed to load installments")
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(loanID, rows))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ApplyPayment allocates one payment.
// POST /api/loans/{id}/payments
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	loanID := generic.LoanID(chi.URLParam(r, "id"))

	var req ApplyPaymentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	payment, err := req.toPaymentRequest(loanID)
	if err != nil {
		writeEngineError(w, err, "Invalid payment")
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && payment.IdempotencyKey == "" {
		payment.IdempotencyKey = key
	}

	out, err := h.Engine.ApplyPayment(r.Context(), payment)
	if err != nil {
		writeEngineError(w, err, "Failed to apply payment")
		return
	}
	writeJSON(w, http.StatusOK, toPaymentOutcomeDTO(out))
}

// ListPayments returns the payment journal for a loan, oldest first.
// GET /api/loans/{id}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	loanID := generic.LoanID(chi.URLParam(r, "id"))

	records, err := h.Engine.Payments(r.Context(), loanID)
	if err != nil {
		writeEngineError(w, err, "Failed to load payments")
		return
	}
	dtos := make([]PaymentRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toPaymentRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (req ApplyPaymentRequest) toPaymentRequest(loanID generic.LoanID) (lending.PaymentRequest, error) {
	out := lending.PaymentRequest{
		LoanID:         loanID,
		Mode:           generic.PaymentMode(strings.ToLower(strings.TrimSpace(req.Mode))),
		TargetSequence: req.TargetInstallment,
		IdempotencyKey: req.IdempotencyKey,
	}
	if out.Mode == "" {
		out.Mode = generic.PaymentPartial
	}
	if req.Amount == nil {
		return out, &generic.MissingParameterError{LoanID: loanID, Field: "amount"}
	}
	out.Amount = req.Amount.Decimal
	if req.PaymentDate != "" {
		d, err := generic.ParseDate(req.PaymentDate)
		if err != nil {
			return out, &generic.InvalidParameterError{LoanID: loanID, Field: "payment_date", Reason: err.Error()}
		}
		out.PaymentDate = d
	}
	return out, nil
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

// NextMeeting computes the next meeting date from query parameters.
// GET /api/cadence/next?anchor=2024-01-31&weekday=monday&frequency=monthly
func (h *Handler) NextMeeting(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	anchorStr := q.Get("anchor")
	if anchorStr == "" {
		writeError(w, http.StatusBadRequest, "Missing anchor", &generic.MissingParameterError{Field: "anchor"})
		return
	}
	anchor, err := generic.ParseDate(anchorStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid anchor", err)
		return
	}

	weekday := generic.ParseWeekday(q.Get("weekday"))
	freq := generic.ParseFrequency(q.Get("frequency"))
	next := h.Engine.NextMeetingDate(anchor, weekday, freq)

	writeJSON(w, http.StatusOK, NextMeetingDTO{
		Anchor:    anchor.String(),
		Weekday:   weekday.String(),
		Frequency: string(freq),
		Next:      next.String(),
	})
}

// FineDueDate computes when a fine must be paid.
// POST /api/fines/due-date
func (h *Handler) FineDueDate(w http.ResponseWriter, r *http.Request) {
	var req FineDueDateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fine := fines.Fine{
		ID:       req.ID,
		MemberID: req.MemberID,
		GroupID:  req.GroupID,
		Rules:    fines.ParseMeetingRules(req.Weekday, req.Frequency),
	}
	if req.Amount != nil {
		fine.Amount = req.Amount.Decimal
	}
	if req.IssuedOn != "" {
		d, err := generic.ParseDate(req.IssuedOn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid issued_on", err)
			return
		}
		fine.IssuedOn = d
	}
	if err := fine.Validate(); err != nil {
		writeEngineError(w, err, "Invalid fine")
		return
	}

	asOf := generic.Today()
	if req.AsOf != "" {
		d, err := generic.ParseDate(req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of", err)
			return
		}
		asOf = d
	}

	writeJSON(w, http.StatusOK, FineDueDateDTO{
		ID:          fine.ID,
		DueDate:     fine.DueDate().String(),
		Overdue:     fine.IsOverdue(asOf),
		DaysOverdue: fine.DaysOverdue(asOf),
	})
}

// Health reports liveness and, when available, store connectivity.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Pinger != nil {
		if err := h.Pinger.Ping(r.Context()); err != nil {
			h.Logger.WithError(err).Error("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps the engine's error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrDuplicatePayment),
		errors.Is(err, generic.ErrNoPendingInstallments):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error, message string) {
	writeError(w, statusFor(err), message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
