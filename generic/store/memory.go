// Package store provides in-memory ScheduleStore implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/lending-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.TxStore and generic.PaymentJournal.
type Memory struct {
	mu           sync.Mutex
	installments map[generic.LoanID][]generic.Installment
	payments     map[generic.LoanID][]generic.PaymentRecord
	idempotency  map[string]bool

	// loanLocks serializes WithLoanTx per loan; mu guards the maps.
	loanLocks map[generic.LoanID]*sync.Mutex
}

var (
	_ generic.TxStore        = (*Memory)(nil)
	_ generic.PaymentJournal = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		installments: make(map[generic.LoanID][]generic.Installment),
		payments:     make(map[generic.LoanID][]generic.PaymentRecord),
		idempotency:  make(map[string]bool),
		loanLocks:    make(map[generic.LoanID]*sync.Mutex),
	}
}

func (m *Memory) LoadInstallments(_ context.Context, loanID generic.LoanID) ([]generic.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(loanID), nil
}

func (m *Memory) ReplaceInstallments(_ context.Context, loanID generic.LoanID, installments []generic.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceLocked(loanID, installments)
	return nil
}

func (m *Memory) UpsertInstallment(_ context.Context, inst generic.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(inst)
	return nil
}

func (m *Memory) AppendPayment(_ context.Context, rec generic.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendPaymentLocked(rec)
}

func (m *Memory) LoadPayments(_ context.Context, loanID generic.LoanID) ([]generic.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generic.PaymentRecord{}, m.payments[loanID]...), nil
}

func (m *Memory) PaymentExists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idempotency[key], nil
}

func (m *Memory) loadLocked(loanID generic.LoanID) []generic.Installment {
	return copyRows(m.installments[loanID])
}

func (m *Memory) replaceLocked(loanID generic.LoanID, installments []generic.Installment) {
	m.installments[loanID] = replaceRows(loanID, installments)
}

func (m *Memory) upsertLocked(inst generic.Installment) {
	m.installments[inst.LoanID] = upsertRow(m.installments[inst.LoanID], inst)
}

func (m *Memory) appendPaymentLocked(rec generic.PaymentRecord) error {
	if rec.IdempotencyKey != "" {
		if m.idempotency[rec.IdempotencyKey] {
			return generic.ErrDuplicatePayment
		}
		m.idempotency[rec.IdempotencyKey] = true
	}
	m.payments[rec.LoanID] = append(m.payments[rec.LoanID], rec)
	return nil
}

func (m *Memory) loanLock(loanID generic.LoanID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loanLocks[loanID]
	if !ok {
		l = &sync.Mutex{}
		m.loanLocks[loanID] = l
	}
	return l
}

func copyRows(rows []generic.Installment) []generic.Installment {
	out := make([]generic.Installment, len(rows))
	copy(out, rows)
	return out
}

func replaceRows(loanID generic.LoanID, installments []generic.Installment) []generic.Installment {
	rows := make([]generic.Installment, 0, len(installments))
	for _, inst := range installments {
		inst.LoanID = loanID
		rows = append(rows, inst)
	}
	generic.SortBySequence(rows)
	return rows
}

// upsertRow may modify rows in place; callers pass a slice they own.
func upsertRow(rows []generic.Installment, inst generic.Installment) []generic.Installment {
	if i := generic.FindBySequence(rows, inst.SequenceNumber); i >= 0 {
		rows[i] = inst
		return rows
	}
	rows = append(rows, inst)
	generic.SortBySequence(rows)
	return rows
}

// =============================================================================
// TRANSACTIONS - Staged writes, published on commit
// =============================================================================

// WithLoanTx executes fn while holding the loan's lock. Writes made through
// the view are staged and only become visible to other readers when fn
// returns nil. On error nothing is published.
func (m *Memory) WithLoanTx(ctx context.Context, loanID generic.LoanID, fn func(generic.ScheduleStore) error) error {
	lock := m.loanLock(loanID)
	lock.Lock()
	defer lock.Unlock()

	view := newTxMemoryView(m)
	if err := fn(view); err != nil {
		return err
	}
	return view.commit()
}

// txMemoryView reads through to the parent and keeps its own writes
// local. The loan lock held by WithLoanTx keeps other transactions on the
// same loan out.
type txMemoryView struct {
	parent *Memory

	// installments holds the full staged row set of every loan written.
	installments map[generic.LoanID][]generic.Installment
	payments     []generic.PaymentRecord
	keys         map[string]bool
}

func newTxMemoryView(parent *Memory) *txMemoryView {
	return &txMemoryView{
		parent:       parent,
		installments: make(map[generic.LoanID][]generic.Installment),
		keys:         make(map[string]bool),
	}
}

func (tv *txMemoryView) LoadInstallments(ctx context.Context, loanID generic.LoanID) ([]generic.Installment, error) {
	if rows, ok := tv.installments[loanID]; ok {
		return copyRows(rows), nil
	}
	return tv.parent.LoadInstallments(ctx, loanID)
}

func (tv *txMemoryView) ReplaceInstallments(_ context.Context, loanID generic.LoanID, installments []generic.Installment) error {
	tv.installments[loanID] = replaceRows(loanID, installments)
	return nil
}

func (tv *txMemoryView) UpsertInstallment(ctx context.Context, inst generic.Installment) error {
	rows, ok := tv.installments[inst.LoanID]
	if !ok {
		loaded, err := tv.parent.LoadInstallments(ctx, inst.LoanID)
		if err != nil {
			return err
		}
		rows = loaded
	}
	tv.installments[inst.LoanID] = upsertRow(rows, inst)
	return nil
}

func (tv *txMemoryView) AppendPayment(ctx context.Context, rec generic.PaymentRecord) error {
	if rec.IdempotencyKey != "" {
		exists, err := tv.PaymentExists(ctx, rec.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return generic.ErrDuplicatePayment
		}
		tv.keys[rec.IdempotencyKey] = true
	}
	tv.payments = append(tv.payments, rec)
	return nil
}

func (tv *txMemoryView) LoadPayments(ctx context.Context, loanID generic.LoanID) ([]generic.PaymentRecord, error) {
	records, err := tv.parent.LoadPayments(ctx, loanID)
	if err != nil {
		return nil, err
	}
	for _, rec := range tv.payments {
		if rec.LoanID == loanID {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (tv *txMemoryView) PaymentExists(ctx context.Context, key string) (bool, error) {
	if tv.keys[key] {
		return true, nil
	}
	return tv.parent.PaymentExists(ctx, key)
}

// commit publishes the staged state in one critical section. Keys are
// global, so a transaction on another loan may have claimed one of ours
// since it was checked; the commit then fails and publishes nothing.
func (tv *txMemoryView) commit() error {
	m := tv.parent
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range tv.keys {
		if m.idempotency[key] {
			return generic.ErrDuplicatePayment
		}
	}
	for loanID, rows := range tv.installments {
		m.installments[loanID] = rows
	}
	for _, rec := range tv.payments {
		if err := m.appendPaymentLocked(rec); err != nil {
			return err
		}
	}
	return nil
}
