package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMissingRecipientField is returned when a transfer class is missing
// one of its required recipient fields.
var ErrMissingRecipientField = errors.New("missing required recipient field")

type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
)

// Account holds the authoritative balance. The balance never goes
// negative; it changes only through the ledger's conditional adjustments.
type Account struct {
	ID        string          `json:"id"`
	Number    string          `json:"account_number"`
	OwnerName string          `json:"owner_name"`
	Balance   decimal.Decimal `json:"balance"`
	Status    AccountStatus   `json:"status"`
	PINHash   string          `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
}

// HasPIN reports whether a transaction PIN has been configured.
func (a *Account) HasPIN() bool { return a.PINHash != "" }

type TransferClass string

const (
	TransferLocal         TransferClass = "local"
	TransferInternational TransferClass = "international"
)

// RecipientDetails is the per-class payload of a transfer. Each class
// validates its own required fields before the workflow accepts them.
type RecipientDetails interface {
	Class() TransferClass
	RecipientName() string
	AccountRef() string
	Validate() error
}

// LocalDetails describes a recipient at a domestic bank.
type LocalDetails struct {
	Recipient     string `json:"recipient_name"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	Narration     string `json:"narration"`
}

func (d LocalDetails) Class() TransferClass  { return TransferLocal }
func (d LocalDetails) RecipientName() string { return d.Recipient }
func (d LocalDetails) AccountRef() string    { return d.AccountNumber }

func (d LocalDetails) Validate() error {
	if d.Recipient == "" || d.BankName == "" || d.AccountNumber == "" {
		return ErrMissingRecipientField
	}
	return nil
}

// InternationalDetails describes a SWIFT/IBAN recipient.
type InternationalDetails struct {
	Recipient string `json:"recipient_name"`
	BankName  string `json:"bank_name"`
	SwiftCode string `json:"swift_code"`
	IBAN      string `json:"iban"`
	Country   string `json:"country"`
	Purpose   string `json:"purpose"`
}

func (d InternationalDetails) Class() TransferClass  { return TransferInternational }
func (d InternationalDetails) RecipientName() string { return d.Recipient }
func (d InternationalDetails) AccountRef() string    { return d.IBAN }

func (d InternationalDetails) Validate() error {
	if d.Recipient == "" || d.SwiftCode == "" || d.IBAN == "" || d.Country == "" {
		return ErrMissingRecipientField
	}
	return nil
}

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

type TxType string

const (
	TxDeposit    TxType = "deposit"
	TxWithdrawal TxType = "withdrawal"
	TxTransfer   TxType = "transfer"
)

type TxStatus string

const (
	TxCompleted TxStatus = "completed"
	TxPending   TxStatus = "pending"
	TxFailed    TxStatus = "failed"
)

// TxFilter narrows a history listing. TxFilterAll matches every type.
type TxFilter string

const (
	TxFilterAll        TxFilter = "all"
	TxFilterDeposit    TxFilter = "deposit"
	TxFilterWithdrawal TxFilter = "withdrawal"
	TxFilterTransfer   TxFilter = "transfer"
)

func (f TxFilter) Matches(t TxType) bool {
	return f == "" || f == TxFilterAll || string(f) == string(t)
}

// Transaction is an immutable ledger entry. Reference is unique and
// sortable by issuance time.
type Transaction struct {
	ID                  string          `json:"id"`
	AccountID           string          `json:"account_id"`
	Direction           Direction       `json:"direction"`
	Type                TxType          `json:"type"`
	Amount              decimal.Decimal `json:"amount"`
	Description         string          `json:"description"`
	Reference           string          `json:"reference_number"`
	CounterpartyName    string          `json:"recipient_name,omitempty"`
	CounterpartyAccount string          `json:"recipient_account,omitempty"`
	Status              TxStatus        `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type ApprovalKind string

const (
	KindDeposit    ApprovalKind = "deposit"
	KindWithdrawal ApprovalKind = "withdrawal"
)

// ApprovalItem is a deposit or legacy withdrawal awaiting an admin
// decision. The ledger mutates iff the item transitions to approved,
// exactly once per item.
type ApprovalItem struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"account_id"`
	Kind       ApprovalKind    `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method,omitempty"`
	Reference  string          `json:"reference_number"`
	Status     ApprovalStatus  `json:"status"`
	AdminNotes string          `json:"admin_notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	DecidedAt  *time.Time      `json:"decided_at,omitempty"`
}
