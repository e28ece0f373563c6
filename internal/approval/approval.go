// Package approval implements the admin decision gate for deposits and
// legacy pending withdrawals: Pending -> Approved | Rejected, terminal.
// The ledger mutates iff an item is approved, exactly once; concurrent
// decisions are serialized by the store's conditional update.
package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/heritagebank/ledgercore/internal/domain"
	"github.com/heritagebank/ledgercore/internal/ledger"
	"github.com/heritagebank/ledgercore/internal/recorder"
	"github.com/heritagebank/ledgercore/internal/store"
)

type Service struct {
	store store.Store
	rec   *recorder.Recorder
	now   func() time.Time
}

func New(s store.Store, r *recorder.Recorder) *Service {
	return &Service{store: s, rec: r, now: time.Now}
}

// SubmitDeposit queues a user deposit for admin review. No balance
// change happens until approval.
func (s *Service) SubmitDeposit(ctx context.Context, accountID string, amount decimal.Decimal, method string) (*domain.ApprovalItem, error) {
	return s.submit(ctx, accountID, domain.KindDeposit, amount, method)
}

// SubmitWithdrawal queues a withdrawal for admin review. Self-service
// transfers bypass this and commit through the workflow; this path
// serves the approval-routed withdrawal model.
func (s *Service) SubmitWithdrawal(ctx context.Context, accountID string, amount decimal.Decimal, method string) (*domain.ApprovalItem, error) {
	return s.submit(ctx, accountID, domain.KindWithdrawal, amount, method)
}

func (s *Service) submit(ctx context.Context, accountID string, kind domain.ApprovalKind, amount decimal.Decimal, method string) (*domain.ApprovalItem, error) {
	if !amount.IsPositive() {
		return nil, ledger.ErrInvalidAmount
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.InsertApproval(ctx, domain.ApprovalItem{
		AccountID: accountID,
		Kind:      kind,
		Amount:    amount,
		Method:    method,
		Reference: recorder.NewReference(),
		Status:    domain.ApprovalPending,
	})
}

// Approve decides the item and applies the ledger mutation with its
// paired record atomically. A concurrent second decision loses with
// ErrAlreadyDecided and causes no duplicate mutation.
func (s *Service) Approve(ctx context.Context, itemID, notes string) (*domain.ApprovalItem, error) {
	item, err := s.store.GetApproval(ctx, itemID)
	if err != nil {
		return nil, err
	}

	direction := domain.DirectionCredit
	txType := domain.TxDeposit
	verb := "deposit"
	if item.Kind == domain.KindWithdrawal {
		direction = domain.DirectionDebit
		txType = domain.TxWithdrawal
		verb = "withdrawal"
	}
	record := s.rec.Prepare(domain.Transaction{
		AccountID:   item.AccountID,
		Direction:   direction,
		Type:        txType,
		Amount:      item.Amount,
		Description: fmt.Sprintf("Approved %s %s", verb, item.Reference),
		Status:      domain.TxCompleted,
	})

	return s.store.DecideApproval(ctx, itemID, domain.ApprovalApproved, notes, s.now().UTC(), record)
}

// Reject decides the item with no ledger mutation.
func (s *Service) Reject(ctx context.Context, itemID, notes string) (*domain.ApprovalItem, error) {
	return s.store.DecideApproval(ctx, itemID, domain.ApprovalRejected, notes, s.now().UTC(), domain.Transaction{})
}

func (s *Service) List(ctx context.Context, status domain.ApprovalStatus) ([]domain.ApprovalItem, error) {
	return s.store.ListApprovals(ctx, status)
}
