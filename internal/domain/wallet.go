package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Wallet represents a wallets row. Balance is in centavos, numeric(15,0).
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostLedgerEntryParams is the input to the atomic PostLedgerEntry operation.
// Delta is the signed balance change; Amount is always the positive magnitude.
type PostLedgerEntryParams struct {
	WalletID    uuid.UUID
	Type        TransactionType
	Amount      int64
	Delta       int64
	Description string
	ExternalID  *string
	Metadata    json.RawMessage
}

// OpenPendingParams describes a PENDING transaction that does not move the balance yet.
type OpenPendingParams struct {
	WalletID    uuid.UUID
	Type        TransactionType
	Amount      int64
	Description string
	ExternalID  *string
	Metadata    json.RawMessage
}

// CommandResult is the return value from all ledger commands.
type CommandResult struct {
	Transaction *Transaction
	Wallet      *Wallet
	Events      []OutboxDraft
	Idempotent  bool // true if the command matched an existing transaction and changed nothing
}

// CreditParams holds the input for ExecuteCredit (DEPOSIT, PRIZE, REFUND).
type CreditParams struct {
	WalletID    uuid.UUID
	Type        TransactionType
	Amount      int64
	Description string
	ExternalID  string
	Metadata    json.RawMessage
}

// DebitParams holds the input for ExecuteDebit (WITHDRAW, BET).
type DebitParams struct {
	WalletID    uuid.UUID
	Type        TransactionType
	Amount      int64
	Description string
	ExternalID  string
	Metadata    json.RawMessage
}
