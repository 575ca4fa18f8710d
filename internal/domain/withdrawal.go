package domain

import (
	"time"

	"github.com/google/uuid"
)

// WithdrawalStatus is the review lifecycle of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalApproved   WithdrawalStatus = "APPROVED"
	WithdrawalRejected   WithdrawalStatus = "REJECTED"
)

// Valid reports whether s is a known withdrawal status.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPending, WithdrawalProcessing, WithdrawalApproved, WithdrawalRejected:
		return true
	}
	return false
}

// WithdrawalPayoutStatus tracks the outbound Pix transfer for an approved withdrawal.
type WithdrawalPayoutStatus string

const (
	WithdrawalPayoutNone    WithdrawalPayoutStatus = "NONE"
	WithdrawalPayoutPending WithdrawalPayoutStatus = "PENDING"
	WithdrawalPayoutPaid    WithdrawalPayoutStatus = "PAID"
	WithdrawalPayoutFailed  WithdrawalPayoutStatus = "FAILED"
)

// FromPayoutStatus maps a gateway payout status onto the withdrawal's payout status.
func FromPayoutStatus(s PayoutStatus) WithdrawalPayoutStatus {
	switch s {
	case PayoutApproved:
		return WithdrawalPayoutPaid
	case PayoutFailed:
		return WithdrawalPayoutFailed
	}
	return WithdrawalPayoutPending
}

// Withdrawal is a withdrawals row. The funds were debited by TransactionID at request time;
// a rejection credits them back through RefundTransactionID.
type Withdrawal struct {
	ID                  uuid.UUID              `json:"id"`
	UserID              uuid.UUID              `json:"user_id"`
	WalletID            uuid.UUID              `json:"wallet_id"`
	TransactionID       uuid.UUID              `json:"transaction_id"`
	Amount              int64                  `json:"amount"`
	PixKey              string                 `json:"pix_key"`
	Status              WithdrawalStatus       `json:"status"`
	GatewayID           *uuid.UUID             `json:"gateway_id,omitempty"`
	PayoutID            *string                `json:"payout_id,omitempty"`
	PayoutStatus        WithdrawalPayoutStatus `json:"payout_status"`
	RefundTransactionID *uuid.UUID             `json:"refund_transaction_id,omitempty"`
	ReviewedAt          *time.Time             `json:"reviewed_at,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// WithdrawResult is returned to the user after a withdrawal request.
type WithdrawResult struct {
	TransactionID uuid.UUID        `json:"transactionId"`
	WithdrawalID  uuid.UUID        `json:"withdrawalId"`
	Status        WithdrawalStatus `json:"status"`
	Balance       int64            `json:"balance"`
}
