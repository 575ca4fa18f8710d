package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/palpitai/platform/internal/domain"
)

// ExecuteOpenPending appends a PENDING credit that does not move the balance.
// Deposits use it while the Pix charge awaits payment.
func (e *Engine) ExecuteOpenPending(ctx context.Context, tx pgx.Tx, params domain.OpenPendingParams) (*domain.CommandResult, error) {
	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if !params.Type.IsCredit() {
		return nil, domain.ErrValidation("only credits can be opened as pending")
	}

	if params.ExternalID != nil {
		existing, err := e.FindExistingTransaction(ctx, tx, domain.IdempotencyKey{
			WalletID:   params.WalletID,
			Type:       params.Type,
			ExternalID: *params.ExternalID,
		})
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &domain.CommandResult{Transaction: existing, Idempotent: true}, nil
		}
	}

	entry, err := e.transactions.Insert(ctx, tx, domain.PostLedgerEntryParams{
		WalletID:    params.WalletID,
		Type:        params.Type,
		Amount:      params.Amount,
		Description: params.Description,
		ExternalID:  params.ExternalID,
		Metadata:    ensureJSON(params.Metadata),
	}, domain.TxStatusPending, nil)
	if err != nil {
		return nil, fmt.Errorf("open pending: %w", err)
	}
	return &domain.CommandResult{Transaction: entry}, nil
}

// ExecuteSettlePending flips a PENDING credit to SUCCESS and applies it to the
// balance. A transaction that already left PENDING is returned unchanged with
// Idempotent set, so concurrent observers credit at most once.
func (e *Engine) ExecuteSettlePending(ctx context.Context, tx pgx.Tx, txID uuid.UUID) (*domain.CommandResult, error) {
	pending, err := e.transactions.LockForUpdate(ctx, tx, txID)
	if err != nil {
		return nil, fmt.Errorf("settle: lock transaction: %w", err)
	}
	if pending == nil {
		return nil, domain.ErrNotFound("transaction", txID.String())
	}
	if pending.Status != domain.TxStatusPending {
		return &domain.CommandResult{Transaction: pending, Idempotent: true}, nil
	}
	if !pending.Type.IsCredit() {
		return nil, domain.ErrInvalidState(fmt.Sprintf("pending %s cannot be settled as a credit", pending.Type))
	}

	if _, err := e.LockWalletForUpdate(ctx, tx, pending.WalletID); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	updated, err := e.wallets.UpdateBalance(ctx, tx, pending.WalletID, pending.Amount)
	if err != nil {
		return nil, fmt.Errorf("settle: update balance: %w", err)
	}

	ok, err := e.transactions.MarkSettled(ctx, tx, pending.ID, domain.TxStatusSuccess, &updated.Balance)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	if !ok {
		// Unreachable while the row lock is held; fail loudly so the caller rolls back.
		return nil, domain.ErrInvalidState("transaction left PENDING while locked")
	}

	pending.Status = domain.TxStatusSuccess
	pending.BalanceAfter = &updated.Balance
	event := domain.NewTransactionPostedEvent(pending)
	if err := e.outbox.Insert(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("settle: insert outbox event: %w", err)
	}

	e.metrics.LedgerPosting(string(pending.Type))
	return &domain.CommandResult{
		Transaction: pending,
		Wallet:      updated,
		Events:      []domain.OutboxDraft{event},
	}, nil
}

// ExecuteFailPending moves a PENDING transaction to FAILED or CANCELLED without
// touching the balance.
func (e *Engine) ExecuteFailPending(ctx context.Context, tx pgx.Tx, txID uuid.UUID, status domain.TransactionStatus) (*domain.CommandResult, error) {
	if status != domain.TxStatusFailed && status != domain.TxStatusCancelled {
		return nil, domain.ErrValidation(fmt.Sprintf("%s is not a failure status", status))
	}

	pending, err := e.transactions.LockForUpdate(ctx, tx, txID)
	if err != nil {
		return nil, fmt.Errorf("fail pending: lock transaction: %w", err)
	}
	if pending == nil {
		return nil, domain.ErrNotFound("transaction", txID.String())
	}
	if pending.Status != domain.TxStatusPending {
		return &domain.CommandResult{Transaction: pending, Idempotent: true}, nil
	}

	if _, err := e.transactions.MarkSettled(ctx, tx, pending.ID, status, nil); err != nil {
		return nil, fmt.Errorf("fail pending: %w", err)
	}
	pending.Status = status
	return &domain.CommandResult{Transaction: pending}, nil
}
