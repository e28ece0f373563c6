package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/heritagebank/ledgercore/internal/domain"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAccountRestricted  = errors.New("account restricted")
	ErrDuplicateReference = errors.New("duplicate reference number")
	ErrApprovalNotFound   = errors.New("approval item not found")
	ErrAlreadyDecided     = errors.New("approval item already decided")
)

// Store is the persistence boundary for the money-movement core. All
// balance mutations are atomic conditional updates: a debit succeeds
// only if the account is active and holds sufficient funds at the
// moment of the write, never as a read-then-write pair.
type Store interface {
	CreateAccount(ctx context.Context, acct domain.Account) (*domain.Account, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	SetAccountStatus(ctx context.Context, id string, status domain.AccountStatus) error
	SetPINHash(ctx context.Context, id, hash string) error

	// AdjustBalance applies a signed delta. Negative deltas require an
	// active account with balance >= -delta and fail with
	// ErrInsufficientFunds or ErrAccountRestricted otherwise.
	AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error)

	// DebitAndRecord debits the account and persists the paired ledger
	// entry as a single atomic unit. Either both apply or neither does.
	DebitAndRecord(ctx context.Context, accountID string, amount decimal.Decimal, record domain.Transaction) (*domain.Transaction, decimal.Decimal, error)

	// CreditAndRecord is the credit-side twin of DebitAndRecord.
	CreditAndRecord(ctx context.Context, accountID string, amount decimal.Decimal, record domain.Transaction) (*domain.Transaction, decimal.Decimal, error)

	InsertTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, accountID string, filter domain.TxFilter) ([]domain.Transaction, error)

	InsertApproval(ctx context.Context, item domain.ApprovalItem) (*domain.ApprovalItem, error)
	GetApproval(ctx context.Context, id string) (*domain.ApprovalItem, error)
	ListApprovals(ctx context.Context, status domain.ApprovalStatus) ([]domain.ApprovalItem, error)

	// DecideApproval flips a pending item to approved or rejected.
	// Exactly one concurrent decision wins; losers get
	// ErrAlreadyDecided. On approval the ledger mutation and the paired
	// record are applied atomically with the status flip, using the
	// supplied pre-referenced record.
	DecideApproval(ctx context.Context, id string, decision domain.ApprovalStatus, notes string, decidedAt time.Time, record domain.Transaction) (*domain.ApprovalItem, error)
}
