// Package events defines the commit-event contract. Publishing is
// fire-and-forget: a failed publish never reverses a committed transfer.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const TopicTransferCommitted = "transfer_committed"

type Publisher interface {
	Publish(topic string, event any) error
}

// TransferCommitted is emitted after a debit and its paired record have
// been durably applied.
type TransferCommitted struct {
	Reference     string          `json:"reference_number"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransferClass string          `json:"transfer_class"`
	RecipientName string          `json:"recipient_name"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
