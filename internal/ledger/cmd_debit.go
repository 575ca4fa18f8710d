package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/palpitai/platform/internal/domain"
)

// ExecuteDebit decreases the wallet balance (WITHDRAW, BET).
// The funds check runs against the locked row, so two concurrent debits
// cannot both pass against the same balance.
func (e *Engine) ExecuteDebit(ctx context.Context, tx pgx.Tx, params domain.DebitParams) (*domain.CommandResult, error) {
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if params.Type.IsCredit() || !params.Type.Valid() {
		return nil, domain.ErrValidation(fmt.Sprintf("%s is not a debit type", params.Type))
	}

	// Lock
	wallet, err := e.LockWalletForUpdate(ctx, tx, params.WalletID)
	if err != nil {
		return nil, fmt.Errorf("debit: %w", err)
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

	if wallet.Balance < params.Amount {
		return nil, domain.ErrInsufficientFunds()
	}

	entry, updated, err := e.PostLedgerEntry(ctx, tx, domain.PostLedgerEntryParams{
		WalletID:    params.WalletID,
		Type:        params.Type,
		Amount:      params.Amount,
		Delta:       -params.Amount,
		Description: params.Description,
		ExternalID:  strPtr(params.ExternalID),
		Metadata:    mergeMeta(params.Metadata, map[string]interface{}{"balanceBefore": wallet.Balance}),
	})
	if err != nil {
		return nil, fmt.Errorf("debit post: %w", err)
	}

	return &domain.CommandResult{
		Transaction: entry,
		Wallet:      updated,
		Events:      []domain.OutboxDraft{domain.NewTransactionPostedEvent(entry)},
	}, nil
}
