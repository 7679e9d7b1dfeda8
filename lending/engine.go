/*
engine.go - Transactional entry points of the lending engine

PURPOSE:
  Wires the pure schedule generator and payment allocator to a
  generic.TxStore. Every mutation of a loan runs inside one WithLoanTx
  call, so two concurrent payments can never double-credit the same
  installment and a failure never leaves a half-applied payment.

OPERATIONS:
  GenerateSchedule: validate -> build -> ReplaceInstallments (destructive)
  ApplyPayment:     load -> Allocate -> upsert updated (+ rollover) -> journal
  NextMeetingDate:  pure cadence calculation

ERRORS:
  Parameter and lookup errors come back unchanged. Anything raised by the
  store is wrapped in *generic.StoreError. The engine never retries.

LOGGING:
  One logrus entry per operation, with loan_id and the figures that
  matter for support ("why is this installment partial?").

SEE ALSO:
  - schedule.go: GenerateSchedule
  - payment.go:  Allocate
  - generic/store.go: Store contract
*/
package lending

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/lending-engine/generic"
)

// Engine is safe for concurrent use; it keeps no state between calls.
type Engine struct {
	Store  generic.TxStore
	Logger logrus.FieldLogger

	// Now stamps payment records. Defaults to time.Now.
	Now func() time.Time
	// NewID generates payment record IDs. Defaults to uuid.NewString.
	NewID func() string
}

func NewEngine(store generic.TxStore, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		logger = l
	}
	return &Engine{
		Store:  store,
		Logger: logger,
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

// =============================================================================
// SCHEDULE GENERATION
// =============================================================================

// GenerateSchedule builds the loan's schedule and replaces any prior one.
// Calling it twice with the same parameters yields identical rows.
func (e *Engine) GenerateSchedule(ctx context.Context, params LoanParameters) ([]generic.Installment, error) {
	schedule, err := GenerateSchedule(params)
	if err != nil {
		e.Logger.WithError(err).WithField("loan_id", params.ID).Warn("schedule rejected")
		return nil, err
	}

	err = e.Store.WithLoanTx(ctx, params.ID, func(s generic.ScheduleStore) error {
		if err := s.ReplaceInstallments(ctx, params.ID, schedule); err != nil {
			return generic.NewStoreError("replace installments", params.ID, err)
		}
		return nil
	})
	if err != nil {
		err = asStoreError("generate schedule", params.ID, err)
		e.Logger.WithError(err).WithField("loan_id", params.ID).Error("schedule not persisted")
		return nil, err
	}

	e.Logger.WithFields(logrus.Fields{
		"loan_id":      params.ID,
		"installments": len(schedule),
		"first_due":    schedule[0].ScheduledDate.String(),
		"last_due":     schedule[len(schedule)-1].ScheduledDate.String(),
	}).Info("schedule generated")
	return schedule, nil
}

// Installments returns the persisted schedule of a loan by sequence.
func (e *Engine) Installments(ctx context.Context, loanID generic.LoanID) ([]generic.Installment, error) {
	rows, err := e.Store.LoadInstallments(ctx, loanID)
	if err != nil {
		return nil, generic.NewStoreError("load installments", loanID, err)
	}
	generic.SortBySequence(rows)
	return rows, nil
}

// Payments returns the journal of a loan, or nil when the store keeps none.
func (e *Engine) Payments(ctx context.Context, loanID generic.LoanID) ([]generic.PaymentRecord, error) {
	journal, ok := e.Store.(generic.PaymentJournal)
	if !ok {
		return nil, nil
	}
	recs, err := journal.LoadPayments(ctx, loanID)
	if err != nil {
		return nil, generic.NewStoreError("load payments", loanID, err)
	}
	return recs, nil
}

// =============================================================================
// PAYMENT APPLICATION
// =============================================================================

// ApplyPayment runs one payment as a single read-modify-write unit.
func (e *Engine) ApplyPayment(ctx context.Context, req PaymentRequest) (PaymentOutcome, error) {
	amountField := "out of range"
	if generic.CheckMoneyRange(req.Amount) == nil {
		amountField = generic.FormatMoney(req.Amount)
	}
	log := e.Logger.WithFields(logrus.Fields{
		"loan_id": req.LoanID,
		"mode":    req.Mode,
		"amount":  amountField,
		"target":  req.TargetSequence,
	})

	var out PaymentOutcome
	err := e.Store.WithLoanTx(ctx, req.LoanID, func(s generic.ScheduleStore) error {
		journal, hasJournal := s.(generic.PaymentJournal)
		if hasJournal && req.IdempotencyKey != "" {
			exists, err := journal.PaymentExists(ctx, req.IdempotencyKey)
			if err != nil {
				return generic.NewStoreError("check idempotency key", req.LoanID, err)
			}
			if exists {
				return generic.ErrDuplicatePayment
			}
		}

		rows, err := s.LoadInstallments(ctx, req.LoanID)
		if err != nil {
			return generic.NewStoreError("load installments", req.LoanID, err)
		}

		alloc, err := Allocate(rows, req)
		if err != nil {
			return err
		}

		if err := s.UpsertInstallment(ctx, alloc.Updated); err != nil {
			return generic.NewStoreError("update installment", req.LoanID, err)
		}
		if alloc.Rollover != nil {
			if err := s.UpsertInstallment(ctx, *alloc.Rollover); err != nil {
				return generic.NewStoreError("insert rollover installment", req.LoanID, err)
			}
		}

		out = PaymentOutcome{
			PaymentID: e.NewID(),
			Updated:   alloc.Updated,
			Rollover:  alloc.Rollover,
			Credited:  alloc.Credited,
			Unapplied: alloc.Unapplied,
		}

		if hasJournal {
			rec := generic.PaymentRecord{
				ID:             out.PaymentID,
				LoanID:         req.LoanID,
				Mode:           req.Mode,
				Amount:         generic.RoundMoney(req.Amount),
				Credited:       alloc.Credited,
				Unapplied:      alloc.Unapplied,
				TargetSequence: alloc.Updated.SequenceNumber,
				PaymentDate:    req.PaymentDate,
				IdempotencyKey: req.IdempotencyKey,
				CreatedAt:      e.Now().UTC(),
			}
			if alloc.Rollover != nil {
				rec.RolloverSeq = alloc.Rollover.SequenceNumber
			}
			if err := journal.AppendPayment(ctx, rec); err != nil {
				return generic.NewStoreError("append payment", req.LoanID, err)
			}
		}
		return nil
	})
	if err != nil {
		err = asStoreError("apply payment", req.LoanID, err)
		if generic.IsClientError(err) || generic.IsNotFound(err) {
			log.WithError(err).Warn("payment rejected")
		} else {
			log.WithError(err).Error("payment failed")
		}
		return PaymentOutcome{}, err
	}

	fields := logrus.Fields{
		"installment": out.Updated.SequenceNumber,
		"status":      out.Updated.Status,
		"credited":    generic.FormatMoney(out.Credited),
	}
	if out.Rollover != nil {
		fields["rollover"] = out.Rollover.SequenceNumber
	}
	if out.Unapplied.IsPositive() {
		fields["unapplied"] = generic.FormatMoney(out.Unapplied)
	}
	log.WithFields(fields).Info("payment applied")
	return out, nil
}

// =============================================================================
// CADENCE
// =============================================================================

// NextMeetingDate is the cadence calculator exposed to surrounding modules.
func (e *Engine) NextMeetingDate(anchor generic.Date, weekday generic.Weekday, freq generic.Frequency) generic.Date {
	return generic.NextOccurrence(anchor, weekday, freq)
}

// asStoreError leaves taxonomy errors alone and wraps anything else, such
// as a failed begin or commit, as a store error.
func asStoreError(op string, loanID generic.LoanID, err error) error {
	if generic.IsEngineError(err) {
		return err
	}
	return generic.NewStoreError(op, loanID, err)
}
