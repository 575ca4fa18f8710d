package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/palpitai/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// UserRepository provides access to users.
type UserRepository interface {
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error)
	FindByEmail(ctx context.Context, db DBTX, email string) (*domain.User, error)

	// Create inserts a new user. A duplicate email or cpf returns ErrConflict.
	Create(ctx context.Context, db DBTX, user *domain.User) error

	// List returns users joined with their wallet balance, newest first.
	List(ctx context.Context, db DBTX, page domain.Page) ([]domain.UserSummary, error)
	Count(ctx context.Context, db DBTX) (int, error)
}

// WalletRepository provides access to wallets.
type WalletRepository interface {
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Wallet, error)
	FindByUserID(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.Wallet, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the wallet.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)


	Create(ctx context.Context, db DBTX, wallet *domain.Wallet) error

	// UpdateBalance applies delta with server-side arithmetic and returns the updated row.
	UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta int64) (*domain.Wallet, error)
}

// TransactionRepository provides access to transactions.
type TransactionRepository interface {
	// FindExisting checks the idempotency index for a duplicate transaction.
	FindExisting(ctx context.Context, db DBTX, key domain.IdempotencyKey) (*domain.Transaction, error)

	// Insert appends a ledger entry. balanceAfter is nil for PENDING rows.
	Insert(ctx context.Context, db DBTX, params domain.PostLedgerEntryParams, status domain.TransactionStatus, balanceAfter *int64) (*domain.Transaction, error)

	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Transaction, error)
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error)

	// MarkSettled moves a PENDING transaction to a terminal status. It returns
	// false without changing anything when the row is no longer PENDING.
	MarkSettled(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, balanceAfter *int64) (bool, error)

	// ListByWallet returns transactions for a wallet, newest first.
	ListByWallet(ctx context.Context, db DBTX, walletID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error)
	CountByWallet(ctx context.Context, db DBTX, walletID uuid.UUID, filter domain.TransactionFilter) (int, error)

	// ListAll returns transactions across all wallets, newest first.
	ListAll(ctx context.Context, db DBTX, filter domain.TransactionFilter) ([]domain.Transaction, error)

	// SumSuccess returns the SUCCESS credit and debit totals of a wallet.
	SumSuccess(ctx context.Context, db DBTX, walletID uuid.UUID) (domain.TransactionSums, error)

	// LastBalanceSnapshot returns balance_after of the newest SUCCESS row, or nil.
	LastBalanceSnapshot(ctx context.Context, db DBTX, walletID uuid.UUID) (*int64, error)

	// DailySumByType returns the total amount of non-failed transactions of the
	// given type for a wallet since the start of the current calendar day (UTC).
	DailySumByType(ctx context.Context, db DBTX, walletID uuid.UUID, txType domain.TransactionType) (int64, error)

	// SumSuccessByType returns the platform-wide SUCCESS total of a type.
	SumSuccessByType(ctx context.Context, db DBTX, txType domain.TransactionType) (int64, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the ledger entry).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox poller, oldest first.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxRow, error)

	// MarkPublished stamps publishedAt on the given rows.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

// PaymentOrderRepository provides access to payment_orders and payment_events.
type PaymentOrderRepository interface {
	Create(ctx context.Context, db DBTX, order *domain.PaymentOrder) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PaymentOrder, error)
	FindByExternalID(ctx context.Context, db DBTX, externalID string) (*domain.PaymentOrder, error)
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentOrder, error)

	// UpdateStatus moves a PENDING order to status. It returns false when the
	// order already left PENDING.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentOrderStatus, checkedAt time.Time) (bool, error)

	// TouchCheckedAt records a gateway observation that did not change the status.
	TouchCheckedAt(ctx context.Context, db DBTX, id uuid.UUID, checkedAt time.Time) error

	InsertEvent(ctx context.Context, db DBTX, event *domain.PaymentEvent) error
	ListEvents(ctx context.Context, db DBTX, orderID uuid.UUID) ([]domain.PaymentEvent, error)
}

// GatewayRepository provides access to payment_gateways.
type GatewayRepository interface {
	List(ctx context.Context, db DBTX) ([]domain.Gateway, error)
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Gateway, error)

	// FindActive returns the single active gateway, or nil.
	FindActive(ctx context.Context, db DBTX) (*domain.Gateway, error)

	Create(ctx context.Context, db DBTX, g *domain.Gateway) error
	Update(ctx context.Context, db DBTX, g *domain.Gateway) error
	DeactivateAll(ctx context.Context, tx pgx.Tx) error
	SetActive(ctx context.Context, db DBTX, id uuid.UUID, active bool) (bool, error)
	Delete(ctx context.Context, db DBTX, id uuid.UUID) (bool, error)
}

// WithdrawalRepository provides access to withdrawals.
type WithdrawalRepository interface {
	Create(ctx context.Context, db DBTX, w *domain.Withdrawal) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Withdrawal, error)

	// Claim moves a withdrawal from one status to another with a conditional
	// update. It returns false when the row was not in from.
	Claim(ctx context.Context, db DBTX, id uuid.UUID, from, to domain.WithdrawalStatus) (bool, error)

	// ClaimPayout marks an APPROVED withdrawal whose payout is NONE or FAILED as
	// payout PENDING. It returns false when another caller got there first.
	ClaimPayout(ctx context.Context, db DBTX, id uuid.UUID) (bool, error)

	// CompleteApproval records the review outcome of a PROCESSING withdrawal.
	// It returns false when the row was not PROCESSING.
	CompleteApproval(ctx context.Context, db DBTX, id uuid.UUID, gatewayID *uuid.UUID, payoutID *string, payout domain.WithdrawalPayoutStatus) (bool, error)

	UpdatePayout(ctx context.Context, db DBTX, id uuid.UUID, gatewayID *uuid.UUID, payoutID *string, payout domain.WithdrawalPayoutStatus) error

	// MarkRejected moves a PENDING withdrawal to REJECTED. It returns false when
	// the row was not PENDING.
	MarkRejected(ctx context.Context, tx pgx.Tx, id uuid.UUID, refundTxID uuid.UUID) (bool, error)

	List(ctx context.Context, db DBTX, status *domain.WithdrawalStatus, page domain.Page) ([]domain.Withdrawal, error)
	CountPending(ctx context.Context, db DBTX) (int, error)
}

// RoundRepository provides access to rounds and matches.
type RoundRepository interface {
	// Create inserts a round and its matches.
	Create(ctx context.Context, tx pgx.Tx, round *domain.Round) error

	// FindByID returns a round with its matches ordered by position.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Round, error)

	// LockForUpdate locks the round row exclusively and loads its matches.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Round, error)

	// LockForShare locks the round row against status changes while bets are placed.
	LockForShare(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Round, error)

	List(ctx context.Context, db DBTX, page domain.Page) ([]domain.Round, error)

	// ListActive returns OPEN rounds whose betting deadline has not passed.
	ListActive(ctx context.Context, db DBTX, now time.Time) ([]domain.Round, error)
	CountActive(ctx context.Context, db DBTX, now time.Time) (int, error)

	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RoundStatus) error

	// Finalize moves a CLOSED round to FINALIZED with its pool figures.
	Finalize(ctx context.Context, tx pgx.Tx, id uuid.UUID, pool, unclaimed int64) (bool, error)

	FindMatch(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Match, error)

	// SetMatchResult sets a result that is still unset. It returns false if a
	// result was already recorded.
	SetMatchResult(ctx context.Context, db DBTX, matchID uuid.UUID, result domain.MatchResult) (bool, error)
}

// BetRepository provides access to bet_slips and bet_slip_matches.
type BetRepository interface {
	// CreateSlip inserts a slip and all of its predictions.
	CreateSlip(ctx context.Context, tx pgx.Tx, slip *domain.BetSlip) error

	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.BetSlip, error)
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, page domain.Page) ([]domain.BetSlip, error)

	// ListByRound returns every slip of a round with its predictions.
	ListByRound(ctx context.Context, db DBTX, roundID uuid.UUID) ([]domain.BetSlip, error)

	// UpdateHits writes per-prediction correctness and the slip hit totals.
	UpdateHits(ctx context.Context, tx pgx.Tx, slips []domain.BetSlip) error

	SetPrize(ctx context.Context, tx pgx.Tx, slipID uuid.UUID, amount int64) error

	// SumPriceByRound returns the total stake collected for a round.
	SumPriceByRound(ctx context.Context, db DBTX, roundID uuid.UUID) (int64, error)
	Count(ctx context.Context, db DBTX) (int, error)
}

// ReserveFundRepository provides access to the single-row reserve_fund table.
type ReserveFundRepository interface {
	Increment(ctx context.Context, tx pgx.Tx, amount int64) (int64, error)
	Get(ctx context.Context, db DBTX) (int64, error)
}
