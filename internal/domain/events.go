package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newDraft(aggType AggregateType, aggID string, evtType EventType, payload interface{}) OutboxDraft {
	data, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: aggType,
		AggregateID:   aggID,
		EventType:     evtType,
		PartitionKey:  aggID,
		Headers:       json.RawMessage(`{}`),
		Payload:       data,
		OccurredAt:    time.Now(),
	}
}

// NewTransactionPostedEvent creates the standard wallet event for a ledger entry.
func NewTransactionPostedEvent(tx *Transaction) OutboxDraft {
	return newDraft(AggregateWallet, tx.WalletID.String(), EventTransactionPosted, tx)
}

// NewUserCreatedEvent creates a user lifecycle event.
func NewUserCreatedEvent(userID, walletID uuid.UUID, email string) OutboxDraft {
	return newDraft(AggregateUser, userID.String(), EventUserCreated, map[string]string{
		"user_id":   userID.String(),
		"wallet_id": walletID.String(),
		"email":     email,
	})
}

// NewPaymentOrderSettledEvent records a payment order reaching a terminal state.
func NewPaymentOrderSettledEvent(order *PaymentOrder, source ReconcileSource) OutboxDraft {
	return newDraft(AggregatePayment, order.ID.String(), EventPaymentOrderSettled, map[string]interface{}{
		"order_id":       order.ID.String(),
		"user_id":        order.UserID.String(),
		"transaction_id": order.TransactionID.String(),
		"gateway_id":     order.GatewayID.String(),
		"status":         order.Status,
		"amount":         order.Amount,
		"source":         source,
	})
}

// NewWithdrawalEvent records a withdrawal lifecycle change.
func NewWithdrawalEvent(w *Withdrawal, evtType EventType) OutboxDraft {
	return newDraft(AggregateWithdrawal, w.ID.String(), evtType, map[string]interface{}{
		"withdrawal_id": w.ID.String(),
		"user_id":       w.UserID.String(),
		"amount":        w.Amount,
		"status":        w.Status,
		"payout_status": w.PayoutStatus,
	})
}

// NewRoundFinalizedEvent records a completed prize distribution.
func NewRoundFinalizedEvent(result *DistributionResult) OutboxDraft {
	return newDraft(AggregateRound, result.RoundID.String(), EventRoundFinalized, result)
}
