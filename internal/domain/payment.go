package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentOrderStatus is the Pix charge lifecycle: PENDING -> APPROVED | CANCELLED | EXPIRED.
type PaymentOrderStatus string

const (
	OrderPending   PaymentOrderStatus = "PENDING"
	OrderApproved  PaymentOrderStatus = "APPROVED"
	OrderCancelled PaymentOrderStatus = "CANCELLED"
	OrderExpired   PaymentOrderStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentOrderStatus) IsTerminal() bool {
	return s == OrderApproved || s == OrderCancelled || s == OrderExpired
}

// TransactionStatus maps a terminal order status onto its linked DEPOSIT transaction.
func (s PaymentOrderStatus) TransactionStatus() TransactionStatus {
	switch s {
	case OrderApproved:
		return TxStatusSuccess
	case OrderCancelled:
		return TxStatusCancelled
	case OrderExpired:
		return TxStatusFailed
	}
	return TxStatusPending
}

// PaymentOrder is one outstanding Pix inbound charge, 1:1 with a DEPOSIT transaction.
// GatewayID is the gateway that created the charge, not the currently active one.
type PaymentOrder struct {
	ID            uuid.UUID          `json:"id"`
	TransactionID uuid.UUID          `json:"transaction_id"`
	UserID        uuid.UUID          `json:"user_id"`
	GatewayID     uuid.UUID          `json:"gateway_id"`
	ExternalID    string             `json:"external_id"`
	Amount        int64              `json:"amount"`
	PixCode       string             `json:"pix_code"`
	PixQrBase64   string             `json:"pix_qr_base64"`
	ExpiresAt     time.Time          `json:"expires_at"`
	Status        PaymentOrderStatus `json:"status"`
	CheckedAt     *time.Time         `json:"checked_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// IsExpired reports whether a PENDING order has passed its expiry at now.
func (o *PaymentOrder) IsExpired(now time.Time) bool {
	return o.Status == OrderPending && now.After(o.ExpiresAt)
}

// ReconcileSource identifies which observer drove a transition.
type ReconcileSource string

const (
	SourceCreate  ReconcileSource = "create"
	SourceWebhook ReconcileSource = "webhook"
	SourcePoll    ReconcileSource = "poll"
	SourceExpiry  ReconcileSource = "expiry"
)

// PaymentEvent is the audit trail of a payment order.
type PaymentEvent struct {
	ID         uuid.UUID           `json:"id"`
	OrderID    uuid.UUID           `json:"order_id"`
	Source     ReconcileSource     `json:"source"`
	FromStatus *PaymentOrderStatus `json:"from_status,omitempty"`
	ToStatus   PaymentOrderStatus  `json:"to_status"`
	Message    string              `json:"message"`
	RawData    json.RawMessage     `json:"raw_data,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// DepositResult is returned to the user after a Pix charge is created.
type DepositResult struct {
	PaymentOrderID uuid.UUID `json:"paymentOrderId"`
	Amount         int64     `json:"amount"`
	PixCode        string    `json:"pixCode"`
	PixQrBase64    string    `json:"pixQrBase64"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// PaymentStatusResult is the answer to a status check.
type PaymentStatusResult struct {
	PaymentOrderID uuid.UUID          `json:"paymentOrderId"`
	Status         PaymentOrderStatus `json:"status"`
}
