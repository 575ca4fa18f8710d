package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransactionType enumerates wallet transaction types.
type TransactionType string

const (
	TxDeposit  TransactionType = "DEPOSIT"
	TxWithdraw TransactionType = "WITHDRAW"
	TxBet      TransactionType = "BET"
	TxPrize    TransactionType = "PRIZE"
	TxRefund   TransactionType = "REFUND"
)

// IsCredit reports whether a SUCCESS transaction of this type increases the balance.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TxDeposit, TxPrize, TxRefund:
		return true
	}
	return false
}

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdraw, TxBet, TxPrize, TxRefund:
		return true
	}
	return false
}

// TransactionStatus tracks a transaction's lifecycle. Only PENDING may change.
type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "PENDING"
	TxStatusSuccess   TransactionStatus = "SUCCESS"
	TxStatusFailed    TransactionStatus = "FAILED"
	TxStatusCancelled TransactionStatus = "CANCELLED"
)

// Valid reports whether s is a known transaction status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TxStatusPending, TxStatusSuccess, TxStatusFailed, TxStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s != TxStatusPending
}

// Transaction represents a transactions row (append-only ledger entry).
type Transaction struct {
	ID           uuid.UUID         `json:"id"`
	WalletID     uuid.UUID         `json:"wallet_id"`
	Type         TransactionType   `json:"type"`
	Status       TransactionStatus `json:"status"`
	Amount       int64             `json:"amount"`
	BalanceAfter *int64            `json:"balance_after,omitempty"`
	Description  string            `json:"description"`
	ExternalID   *string           `json:"external_id,omitempty"`
	Metadata     json.RawMessage   `json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// IdempotencyKey is the composite key used for deduplication.
type IdempotencyKey struct {
	WalletID   uuid.UUID
	Type       TransactionType
	ExternalID string
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	Type   *TransactionType
	Status *TransactionStatus
	Limit  int
	Offset int
}

// TransactionSums are the SUCCESS credit and debit totals for one wallet.
type TransactionSums struct {
	Credits int64 `json:"credits"`
	Debits  int64 `json:"debits"`
	Count   int   `json:"count"`
}
