package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventUserCreated         EventType = "palpitai.user.created"
	EventTransactionPosted   EventType = "palpitai.wallet.transaction.posted"
	EventPaymentOrderSettled EventType = "palpitai.payment.order.settled"
	EventWithdrawalRequested EventType = "palpitai.withdrawal.requested"
	EventWithdrawalApproved  EventType = "palpitai.withdrawal.approved"
	EventWithdrawalRejected  EventType = "palpitai.withdrawal.rejected"
	EventRoundFinalized      EventType = "palpitai.round.finalized"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateUser       AggregateType = "user"
	AggregateWallet     AggregateType = "wallet"
	AggregatePayment    AggregateType = "payment"
	AggregateWithdrawal AggregateType = "withdrawal"
	AggregateRound      AggregateType = "round"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRow is an unpublished outbox event together with its sequence id.
type OutboxRow struct {
	SeqID int64
	OutboxDraft
}

// GuardResult is the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"`
}
