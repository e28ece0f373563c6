package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/heritagebank/ledgercore/internal/domain"
)

// MemoryStore is an in-memory Store used by tests and for DB-less boot.
// Per-account mutation is serialized through a lock map so concurrent
// debits against one account see each other's writes.
type MemoryStore struct {
	mu           sync.Mutex
	accounts     map[string]*domain.Account
	transactions []domain.Transaction
	references   map[string]struct{}
	approvals    map[string]*domain.ApprovalItem

	lockMu       sync.Mutex
	accountLocks map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*domain.Account),
		references:   make(map[string]struct{}),
		approvals:    make(map[string]*domain.ApprovalItem),
		accountLocks: make(map[string]*sync.Mutex),
	}
}

func (m *MemoryStore) accountLock(id string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	if _, ok := m.accountLocks[id]; !ok {
		m.accountLocks[id] = &sync.Mutex{}
	}
	return m.accountLocks[id]
}

func (m *MemoryStore) CreateAccount(ctx context.Context, acct domain.Account) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	if acct.Status == "" {
		acct.Status = domain.AccountActive
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	cp := acct
	m.accounts[acct.ID] = &cp
	out := acct
	return &out, nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (m *MemoryStore) SetAccountStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.Status = status
	return nil
}

func (m *MemoryStore) SetPINHash(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.PINHash = hash
	return nil
}

// adjustLocked applies the conditional update. Caller must hold the
// account lock for id.
func (m *MemoryStore) adjustLocked(id string, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return decimal.Zero, ErrAccountNotFound
	}
	if delta.IsNegative() {
		if acct.Status == domain.AccountBlocked {
			return decimal.Zero, ErrAccountRestricted
		}
		if acct.Balance.Add(delta).IsNegative() {
			return decimal.Zero, ErrInsufficientFunds
		}
	}
	acct.Balance = acct.Balance.Add(delta)
	return acct.Balance, nil
}

func (m *MemoryStore) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	lock := m.accountLock(id)
	lock.Lock()
	defer lock.Unlock()
	return m.adjustLocked(id, delta)
}

func (m *MemoryStore) insertTransactionLocked(tx domain.Transaction) (*domain.Transaction, error) {
	if _, dup := m.references[tx.Reference]; dup {
		return nil, ErrDuplicateReference
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	m.references[tx.Reference] = struct{}{}
	m.transactions = append(m.transactions, tx)
	out := tx
	return &out, nil
}

func (m *MemoryStore) InsertTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTransactionLocked(tx)
}

// DebitAndRecord holds the account lock across both the balance write
// and the record insert so no interleaved reader can observe one
// without the other. A duplicate reference rolls the debit back.
func (m *MemoryStore) DebitAndRecord(ctx context.Context, accountID string, amount decimal.Decimal, record domain.Transaction) (*domain.Transaction, decimal.Decimal, error) {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	newBal, err := m.adjustLocked(accountID, amount.Neg())
	if err != nil {
		return nil, decimal.Zero, err
	}

	m.mu.Lock()
	stored, err := m.insertTransactionLocked(record)
	m.mu.Unlock()
	if err != nil {
		// Compensate: the debit must not stand without its record.
		if _, rbErr := m.adjustLocked(accountID, amount); rbErr != nil {
			return nil, decimal.Zero, rbErr
		}
		return nil, decimal.Zero, err
	}
	return stored, newBal, nil
}

func (m *MemoryStore) CreditAndRecord(ctx context.Context, accountID string, amount decimal.Decimal, record domain.Transaction) (*domain.Transaction, decimal.Decimal, error) {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	newBal, err := m.adjustLocked(accountID, amount)
	if err != nil {
		return nil, decimal.Zero, err
	}

	m.mu.Lock()
	stored, err := m.insertTransactionLocked(record)
	m.mu.Unlock()
	if err != nil {
		if _, rbErr := m.adjustLocked(accountID, amount.Neg()); rbErr != nil {
			return nil, decimal.Zero, rbErr
		}
		return nil, decimal.Zero, err
	}
	return stored, newBal, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, accountID string, filter domain.TxFilter) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Transaction
	for _, tx := range m.transactions {
		if tx.AccountID == accountID && filter.Matches(tx.Type) {
			out = append(out, tx)
		}
	}
	// Newest first; references embed issuance time so they break ties.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Reference > out[j].Reference
	})
	return out, nil
}

func (m *MemoryStore) InsertApproval(ctx context.Context, item domain.ApprovalItem) (*domain.ApprovalItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Status == "" {
		item.Status = domain.ApprovalPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	cp := item
	m.approvals[item.ID] = &cp
	out := item
	return &out, nil
}

func (m *MemoryStore) GetApproval(ctx context.Context, id string) (*domain.ApprovalItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.approvals[id]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *MemoryStore) ListApprovals(ctx context.Context, status domain.ApprovalStatus) ([]domain.ApprovalItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ApprovalItem
	for _, item := range m.approvals {
		if status == "" || item.Status == status {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DecideApproval(ctx context.Context, id string, decision domain.ApprovalStatus, notes string, decidedAt time.Time, record domain.Transaction) (*domain.ApprovalItem, error) {
	m.mu.Lock()
	item, ok := m.approvals[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrApprovalNotFound
	}
	if item.Status != domain.ApprovalPending {
		m.mu.Unlock()
		return nil, ErrAlreadyDecided
	}
	// Claim the decision before mutating the ledger so a concurrent
	// decider fails with ErrAlreadyDecided instead of double-applying.
	item.Status = decision
	item.AdminNotes = notes
	t := decidedAt
	item.DecidedAt = &t
	kind := item.Kind
	accountID := item.AccountID
	amount := item.Amount
	m.mu.Unlock()

	if decision == domain.ApprovalApproved {
		var err error
		if kind == domain.KindWithdrawal {
			_, _, err = m.DebitAndRecord(ctx, accountID, amount, record)
		} else {
			_, _, err = m.CreditAndRecord(ctx, accountID, amount, record)
		}
		if err != nil {
			// Release the claim so the item can be re-decided.
			m.mu.Lock()
			item.Status = domain.ApprovalPending
			item.DecidedAt = nil
			m.mu.Unlock()
			return nil, err
		}
	}

	m.mu.Lock()
	cp := *item
	m.mu.Unlock()
	return &cp, nil
}

var _ Store = (*MemoryStore)(nil)
