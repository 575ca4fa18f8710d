package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/palpitai/platform/internal/domain"
)

// ExecuteCredit increases the wallet balance (DEPOSIT, PRIZE, REFUND).
// Pattern: Lock → Idempotency → PostLedgerEntry
func (e *Engine) ExecuteCredit(ctx context.Context, tx pgx.Tx, params domain.CreditParams) (*domain.CommandResult, error) {
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if !params.Type.IsCredit() {
		return nil, domain.ErrValidation(fmt.Sprintf("%s is not a credit type", params.Type))
	}

	// Lock
	wallet, err := e.LockWalletForUpdate(ctx, tx, params.WalletID)
	if err != nil {
		return nil, fmt.Errorf("credit: %w", err)
	}

	// Idempotency check
	if params.ExternalID != "" {
		existing, err := e.FindExistingTransaction(ctx, tx, domain.IdempotencyKey{
			WalletID:   params.WalletID,
			Type:       params.Type,
			ExternalID: params.ExternalID,
		})
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &domain.CommandResult{Transaction: existing, Wallet: wallet, Idempotent: true}, nil
		}
	}

	// Post ledger entry: balance += amount
	entry, updated, err := e.PostLedgerEntry(ctx, tx, domain.PostLedgerEntryParams{
		WalletID:    params.WalletID,
		Type:        params.Type,
		Amount:      params.Amount,
		Delta:       params.Amount,
		Description: params.Description,
		ExternalID:  strPtr(params.ExternalID),
		Metadata:    ensureJSON(params.Metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("credit post: %w", err)
	}

	return &domain.CommandResult{
		Transaction: entry,
		Wallet:      updated,
		Events:      []domain.OutboxDraft{domain.NewTransactionPostedEvent(entry)},
	}, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ensureJSON(data json.RawMessage) json.RawMessage {
	if data == nil {
		return json.RawMessage(`{}`)
	}
	return data
}

func mergeMeta(base json.RawMessage, extra map[string]interface{}) json.RawMessage {
	merged := make(map[string]interface{})
	if len(base) > 0 {
		_ = json.Unmarshal(base, &merged)
	}
	for k, v := range extra {
		merged[k] = v
	}
	out, _ := json.Marshal(merged)
	return out
}
