package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/infra"
	"github.com/palpitai/platform/internal/repository"
)

// Engine provides the foundational ledger operations:
//  1. LockWalletForUpdate: row-level pessimistic lock
//  2. FindExistingTransaction: idempotency check
//  3. PostLedgerEntry: atomic balance update + append-only insert + outbox event
//
// Every command runs inside the caller's pgx.Tx so a business operation can
// combine several postings with its own writes in one atomic unit.
type Engine struct {
	wallets      repository.WalletRepository
	transactions repository.TransactionRepository
	outbox       repository.OutboxRepository
	metrics      *infra.Metrics
}

// NewEngine creates a ledger engine with the given repositories. metrics may be nil.
func NewEngine(
	wallets repository.WalletRepository,
	transactions repository.TransactionRepository,
	outbox repository.OutboxRepository,
	metrics *infra.Metrics,
) *Engine {
	return &Engine{
		wallets:      wallets,
		transactions: transactions,
		outbox:       outbox,
		metrics:      metrics,
	}
}

// LockWalletForUpdate acquires a row-level lock and returns the wallet.
// Must be called within a transaction.
func (e *Engine) LockWalletForUpdate(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := e.wallets.LockForUpdate(ctx, tx, walletID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	if wallet == nil {
		return nil, domain.ErrNotFound("wallet", walletID.String())
	}
	return wallet, nil
}

// FindExistingTransaction checks if a transaction with the same idempotency key exists.
// Returns nil if no duplicate found.
func (e *Engine) FindExistingTransaction(ctx context.Context, tx pgx.Tx, key domain.IdempotencyKey) (*domain.Transaction, error) {
	existing, err := e.transactions.FindExisting(ctx, tx, key)
	if err != nil {
		return nil, fmt.Errorf("find existing transaction: %w", err)
	}
	return existing, nil
}

// PostLedgerEntry atomically updates the wallet balance and inserts a SUCCESS ledger entry.
// This is the core write primitive; every balance-moving command delegates to it.
//
// Steps:
//  1. Update the balance using server-side arithmetic
//  2. Insert the transaction with the post-update balance snapshot
//  3. Insert the outbox event
//
// All 3 steps run within the caller's transaction. The caller must hold the wallet lock.
func (e *Engine) PostLedgerEntry(ctx context.Context, tx pgx.Tx, params domain.PostLedgerEntryParams) (*domain.Transaction, *domain.Wallet, error) {
	updated, err := e.wallets.UpdateBalance(ctx, tx, params.WalletID, params.Delta)
	if err != nil {
		return nil, nil, fmt.Errorf("update balance: %w", err)
	}
	if updated == nil {
		return nil, nil, domain.ErrNotFound("wallet", params.WalletID.String())
	}

	entry, err := e.transactions.Insert(ctx, tx, params, domain.TxStatusSuccess, &updated.Balance)
	if err != nil {
		return nil, nil, fmt.Errorf("insert transaction: %w", err)
	}

	event := domain.NewTransactionPostedEvent(entry)
	if err := e.outbox.Insert(ctx, tx, event); err != nil {
		return nil, nil, fmt.Errorf("insert outbox event: %w", err)
	}

	e.metrics.LedgerPosting(string(entry.Type))
	return entry, updated, nil
}
