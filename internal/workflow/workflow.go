// Package workflow drives a self-service transfer through its states:
//
//	SelectType -> CapturingDetails -> AwaitingAuthorization -> Committed
//
// with terminal Cancelled, Failed and Blocked branches. The commit is a
// single logical unit: the debit and its ledger record are applied
// together or not at all.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/heritagebank/ledgercore/internal/authgate"
	"github.com/heritagebank/ledgercore/internal/domain"
	"github.com/heritagebank/ledgercore/internal/events"
	"github.com/heritagebank/ledgercore/internal/ledger"
	"github.com/heritagebank/ledgercore/internal/recorder"
	"github.com/heritagebank/ledgercore/internal/store"
)

type State string

const (
	StateSelectType            State = "select_type"
	StateCapturingDetails      State = "capturing_details"
	StateAwaitingAuthorization State = "awaiting_authorization"
	StateCommitted             State = "committed"
	StateCancelled             State = "cancelled"
	StateFailed                State = "failed"
	StateBlocked               State = "blocked"
)

func (s State) Terminal() bool {
	switch s {
	case StateCommitted, StateCancelled, StateFailed, StateBlocked:
		return true
	}
	return false
}

var (
	ErrInvalidTransition = errors.New("operation not valid in current state")
	ErrWorkflowNotFound  = errors.New("transfer workflow not found or expired")
	ErrAccountBlocked    = errors.New("account is restricted from transfers")
	ErrUnknownClass      = errors.New("unknown transfer class")
)

const defaultInstanceTTL = 30 * time.Minute

// Workflow is one in-flight transfer attempt. All methods serialize on
// the instance mutex; a transfer that reaches a terminal state accepts
// no further input.
type Workflow struct {
	ID        string
	AccountID string

	mgr *Manager

	mu          sync.Mutex
	state       State
	class       domain.TransferClass
	details     domain.RecipientDetails
	amount      decimal.Decimal
	challengeID string
	result      *domain.Transaction
	expiresAt   time.Time
}

// Manager owns the workflow registry plus the collaborators a workflow
// commits through. Abandoned instances expire with their challenges so
// a stale browser tab cannot replay one.
type Manager struct {
	ledger *ledger.Ledger
	gate   *authgate.Gate
	rec    *recorder.Recorder
	pub    events.Publisher
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	flows map[string]*Workflow
}

func NewManager(l *ledger.Ledger, g *authgate.Gate, r *recorder.Recorder, pub events.Publisher) *Manager {
	return &Manager{
		ledger: l,
		gate:   g,
		rec:    r,
		pub:    pub,
		ttl:    defaultInstanceTTL,
		now:    time.Now,
		flows:  make(map[string]*Workflow),
	}
}

// Start opens a workflow for the account. A blocked account
// short-circuits to the terminal Blocked state before type selection.
func (m *Manager) Start(ctx context.Context, accountID string) (*Workflow, error) {
	acct, err := m.ledger.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	w := &Workflow{
		ID:        uuid.New().String(),
		AccountID: accountID,
		mgr:       m,
		state:     StateSelectType,
		expiresAt: m.now().Add(m.ttl),
	}
	if acct.Status == domain.AccountBlocked {
		w.state = StateBlocked
		return w, ErrAccountBlocked
	}

	m.mu.Lock()
	m.sweepLocked()
	m.flows[w.ID] = w
	m.mu.Unlock()
	return w, nil
}

func (m *Manager) Get(id string) (*Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	w, ok := m.flows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return w, nil
}

func (m *Manager) sweepLocked() {
	now := m.now()
	for id, w := range m.flows {
		if now.After(w.expiresAt) {
			delete(m.flows, id)
		}
	}
}

// SelectClass moves SelectType -> CapturingDetails. No side effects.
func (w *Workflow) SelectClass(class domain.TransferClass) error {
	if class != domain.TransferLocal && class != domain.TransferInternational {
		return ErrUnknownClass
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateSelectType {
		return ErrInvalidTransition
	}
	w.class = class
	w.state = StateCapturingDetails
	return nil
}

// SubmitDetails validates the captured form against a fresh balance
// read and, on success, opens the PIN challenge and moves to
// AwaitingAuthorization. Validation failures leave the workflow in
// CapturingDetails so the user can correct and resubmit.
func (w *Workflow) SubmitDetails(ctx context.Context, details domain.RecipientDetails, amount decimal.Decimal) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateCapturingDetails {
		return ErrInvalidTransition
	}
	if details.Class() != w.class {
		return ErrUnknownClass
	}
	if err := details.Validate(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ledger.ErrInvalidAmount
	}

	// Fresh read at this instant, not a balance cached at dialog open.
	balance, err := w.mgr.ledger.Balance(ctx, w.AccountID)
	if err != nil {
		return err
	}
	if amount.GreaterThan(balance) {
		return store.ErrInsufficientFunds
	}

	challengeID, err := w.mgr.gate.BeginChallenge(ctx, w.AccountID)
	if err != nil {
		return err
	}

	w.details = details
	w.amount = amount
	w.challengeID = challengeID
	w.state = StateAwaitingAuthorization
	return nil
}

// VerifyPIN submits one authorization attempt. Lockout on the third
// consecutive failure is terminal for this workflow; the account itself
// is unaffected. On authorization the debit commits immediately.
func (w *Workflow) VerifyPIN(ctx context.Context, pin string) (authgate.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateAwaitingAuthorization {
		return authgate.Result{}, ErrInvalidTransition
	}

	res, err := w.mgr.gate.Verify(ctx, w.challengeID, pin)
	if err != nil {
		if errors.Is(err, authgate.ErrLockedOut) {
			w.state = StateFailed
			w.mgr.gate.Discard(w.challengeID)
		}
		return res, err
	}
	if res.Verdict == authgate.VerdictRetry {
		return res, nil
	}

	stored, _, err := w.commitLocked(ctx)
	if err != nil {
		w.state = StateFailed
		return res, err
	}
	w.result = stored
	w.state = StateCommitted
	w.publishCommitted(stored)
	return res, nil
}

// commitLocked performs the debit and paired record as one atomic unit
// through the store.
func (w *Workflow) commitLocked(ctx context.Context) (*domain.Transaction, decimal.Decimal, error) {
	classLabel := "Local"
	if w.class == domain.TransferInternational {
		classLabel = "International"
	}
	record := w.mgr.rec.Prepare(domain.Transaction{
		AccountID:           w.AccountID,
		Direction:           domain.DirectionDebit,
		Type:                domain.TxTransfer,
		Amount:              w.amount,
		Description:         fmt.Sprintf("%s transfer to %s", classLabel, w.details.RecipientName()),
		CounterpartyName:    w.details.RecipientName(),
		CounterpartyAccount: w.details.AccountRef(),
		Status:              domain.TxCompleted,
	})
	return w.mgr.ledger.DebitWithRecord(ctx, w.AccountID, w.amount, record)
}

func (w *Workflow) publishCommitted(rec *domain.Transaction) {
	if w.mgr.pub == nil {
		return
	}
	evt := events.TransferCommitted{
		Reference:     rec.Reference,
		AccountID:     rec.AccountID,
		Amount:        rec.Amount,
		TransferClass: string(w.class),
		RecipientName: rec.CounterpartyName,
		OccurredAt:    rec.CreatedAt,
	}
	if err := w.mgr.pub.Publish(events.TopicTransferCommitted, evt); err != nil {
		log.Printf("event publish failed for %s: %v", rec.Reference, err)
	}
}

// Cancel aborts the workflow from any non-terminal state. No ledger
// mutation has occurred, so there is nothing to compensate.
func (w *Workflow) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Terminal() {
		return ErrInvalidTransition
	}
	if w.challengeID != "" {
		w.mgr.gate.Discard(w.challengeID)
	}
	w.state = StateCancelled
	return nil
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Result returns the committed record, or nil before commit.
func (w *Workflow) Result() *domain.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

func (w *Workflow) Class() domain.TransferClass {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.class
}
