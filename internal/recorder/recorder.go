// Package recorder appends immutable transaction records and serves
// the account history. Reference numbers are issued here: a TXN prefix,
// the issuance timestamp in nanoseconds (sortable), and a uuid fragment
// (collision-resistant under concurrent issuance).
package recorder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heritagebank/ledgercore/internal/domain"
	"github.com/heritagebank/ledgercore/internal/store"
)

type Recorder struct {
	store store.Store
	now   func() time.Time
}

func New(s store.Store) *Recorder {
	return &Recorder{store: s, now: time.Now}
}

// NewReference issues a fresh reference number.
func NewReference() string {
	frag := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("TXN%d%s", time.Now().UnixNano(), frag)
}

// Prepare stamps a record with a reference and timestamp without
// persisting it, for callers that hand it to an atomic paired store
// operation.
func (r *Recorder) Prepare(rec domain.Transaction) domain.Transaction {
	if rec.Reference == "" {
		rec.Reference = NewReference()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}
	return rec
}

// Append persists a record, generating the reference when the caller
// did not supply one. A caller-supplied reference that already exists
// fails with the store's duplicate sentinel.
func (r *Recorder) Append(ctx context.Context, rec domain.Transaction) (*domain.Transaction, error) {
	return r.store.InsertTransaction(ctx, r.Prepare(rec))
}

// ListFor returns the account's records newest first, optionally
// filtered by type. Each call is a fresh consistent snapshot.
func (r *Recorder) ListFor(ctx context.Context, accountID string, filter domain.TxFilter) ([]domain.Transaction, error) {
	return r.store.ListTransactions(ctx, accountID, filter)
}
