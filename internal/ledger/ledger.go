// Package ledger is the sole authority for balance reads and mutations.
// Callers pair every successful mutation with a transaction record; the
// *WithRecord helpers delegate that pairing to the store, which applies
// both atomically.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/heritagebank/ledgercore/internal/domain"
	"github.com/heritagebank/ledgercore/internal/store"
)

var ErrInvalidAmount = errors.New("amount must be positive")

type Ledger struct {
	store store.Store
}

func New(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Balance is a pure read.
func (l *Ledger) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acct, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

func (l *Ledger) Account(ctx context.Context, accountID string) (*domain.Account, error) {
	return l.store.GetAccount(ctx, accountID)
}

// Debit atomically decreases the balance. The store enforces the funds
// and restriction preconditions in a single conditional update.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return l.store.AdjustBalance(ctx, accountID, amount.Neg())
}

// Credit atomically increases the balance.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return l.store.AdjustBalance(ctx, accountID, amount)
}

// DebitWithRecord debits and appends the paired ledger entry as one
// atomic unit.
func (l *Ledger) DebitWithRecord(ctx context.Context, accountID string, amount decimal.Decimal, record domain.Transaction) (*domain.Transaction, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return nil, decimal.Zero, ErrInvalidAmount
	}
	return l.store.DebitAndRecord(ctx, accountID, amount, record)
}

// CreditWithRecord credits and appends the paired ledger entry as one
// atomic unit.
func (l *Ledger) CreditWithRecord(ctx context.Context, accountID string, amount decimal.Decimal, record domain.Transaction) (*domain.Transaction, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return nil, decimal.Zero, ErrInvalidAmount
	}
	return l.store.CreditAndRecord(ctx, accountID, amount, record)
}
