package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/ledger"
	"github.com/palpitai/platform/internal/projection"
	"github.com/palpitai/platform/internal/repository"
)

// ReportService serves the admin dashboard and ledger audits.
type ReportService struct {
	pool         *pgxpool.Pool
	users        repository.UserRepository
	wallets      repository.WalletRepository
	transactions repository.TransactionRepository
	bets         repository.BetRepository
	rounds       repository.RoundRepository
	withdrawals  repository.WithdrawalRepository
	reserve      repository.ReserveFundRepository
	auditor      *ledger.Auditor
	cache        projection.Store
	logger       *slog.Logger
}

// ReportRepos groups the repositories a ReportService reads.
type ReportRepos struct {
	Users        repository.UserRepository
	Wallets      repository.WalletRepository
	Transactions repository.TransactionRepository
	Bets         repository.BetRepository
	Rounds       repository.RoundRepository
	Withdrawals  repository.WithdrawalRepository
	Reserve      repository.ReserveFundRepository
}

// NewReportService creates a ReportService. Stats are cached in cache.
func NewReportService(pool *pgxpool.Pool, repos ReportRepos, auditor *ledger.Auditor, cache projection.Store, logger *slog.Logger) *ReportService {
	return &ReportService{
		pool:         pool,
		users:        repos.Users,
		wallets:      repos.Wallets,
		transactions: repos.Transactions,
		bets:         repos.Bets,
		rounds:       repos.Rounds,
		withdrawals:  repos.Withdrawals,
		reserve:      repos.Reserve,
		auditor:      auditor,
		cache:        cache,
		logger:       logger,
	}
}

// Stats returns the dashboard summary, recomputed at most every 30 seconds.
func (s *ReportService) Stats(ctx context.Context) (*domain.PlatformStats, error) {
	cached, err := projection.GetStats(ctx, s.cache)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, projection.ErrNotFound) {
		s.logger.Warn("stats cache read failed", "error", err)
	}

	stats, err := s.computeStats(ctx)
	if err != nil {
		return nil, err
	}
	if err := projection.CacheStats(ctx, s.cache, *stats); err != nil {
		s.logger.Warn("stats cache write failed", "error", err)
	}
	return stats, nil
}

// InvalidateStats drops the cached summary after a money-moving admin action.
func (s *ReportService) InvalidateStats(ctx context.Context) {
	if err := projection.InvalidateStats(ctx, s.cache); err != nil {
		s.logger.Warn("stats cache invalidation failed", "error", err)
	}
}

func (s *ReportService) computeStats(ctx context.Context) (*domain.PlatformStats, error) {
	var stats domain.PlatformStats
	var err error

	if stats.Users, err = s.users.Count(ctx, s.pool); err != nil {
		return nil, domain.ErrInternal("count users", err)
	}
	if stats.Bets, err = s.bets.Count(ctx, s.pool); err != nil {
		return nil, domain.ErrInternal("count bets", err)
	}
	if stats.ActiveRounds, err = s.rounds.CountActive(ctx, s.pool, time.Now()); err != nil {
		return nil, domain.ErrInternal("count active rounds", err)
	}
	if stats.TotalVolume, err = s.transactions.SumSuccessByType(ctx, s.pool, domain.TxBet); err != nil {
		return nil, domain.ErrInternal("sum bet volume", err)
	}
	if stats.ReserveFund, err = s.reserve.Get(ctx, s.pool); err != nil {
		return nil, domain.ErrInternal("read reserve fund", err)
	}
	if stats.PendingWithdrawals, err = s.withdrawals.CountPending(ctx, s.pool); err != nil {
		return nil, domain.ErrInternal("count pending withdrawals", err)
	}
	return &stats, nil
}

// UserList is a page of users with the total count.
type UserList struct {
	Users []domain.UserSummary `json:"users"`
	Total int                  `json:"total"`
}

// ListUsers returns users with their balances.
func (s *ReportService) ListUsers(ctx context.Context, page domain.Page) (*UserList, error) {
	users, err := s.users.List(ctx, s.pool, page)
	if err != nil {
		return nil, domain.ErrInternal("list users", err)
	}
	total, err := s.users.Count(ctx, s.pool)
	if err != nil {
		return nil, domain.ErrInternal("count users", err)
	}
	return &UserList{Users: users, Total: total}, nil
}

// ListTransactions returns ledger entries across all wallets.
func (s *ReportService) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	txs, err := s.transactions.ListAll(ctx, s.pool, filter)
	if err != nil {
		return nil, domain.ErrInternal("list transactions", err)
	}
	return txs, nil
}

// AuditWallet checks the balance invariant of a user's wallet against a
// consistent snapshot of its ledger.
func (s *ReportService) AuditWallet(ctx context.Context, userID uuid.UUID) (*ledger.AuditReport, error) {
	wallet, err := s.wallets.FindByUserID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find wallet", err)
	}
	if wallet == nil {
		return nil, domain.ErrNotFound("wallet for user", userID.String())
	}

	var report *ledger.AuditReport
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		report, err = s.auditor.AuditWallet(ctx, tx, wallet.ID)
		return err
	})
	if err != nil {
		return nil, internalErr("audit wallet", err)
	}
	if !report.AllPassed {
		s.logger.Error("wallet audit failed", "wallet_id", wallet.ID, "user_id", userID)
	}
	return report, nil
}
