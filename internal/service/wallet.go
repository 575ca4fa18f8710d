package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/repository"
)

// WalletService serves wallet reads.
type WalletService struct {
	pool         *pgxpool.Pool
	wallets      repository.WalletRepository
	transactions repository.TransactionRepository
}

// NewWalletService creates a WalletService.
func NewWalletService(pool *pgxpool.Pool, wallets repository.WalletRepository, transactions repository.TransactionRepository) *WalletService {
	return &WalletService{pool: pool, wallets: wallets, transactions: transactions}
}

// WalletView is the user's balance with a page of their ledger.
type WalletView struct {
	WalletID     uuid.UUID            `json:"walletId"`
	Balance      int64                `json:"balance"`
	Transactions []domain.Transaction `json:"transactions"`
	Total        int                  `json:"total"`
	Page         int                  `json:"page"`
	Limit        int                  `json:"limit"`
}

// GetWallet returns the user's balance and transactions, newest first.
func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID, page domain.Page, txType *domain.TransactionType) (*WalletView, error) {
	wallet, err := s.wallets.FindByUserID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find wallet", err)
	}
	if wallet == nil {
		return nil, domain.ErrNotFound("wallet for user", userID.String())
	}

	p := page.Normalize()
	filter := domain.TransactionFilter{Type: txType, Limit: p.Limit, Offset: p.Offset()}
	txs, err := s.transactions.ListByWallet(ctx, s.pool, wallet.ID, filter)
	if err != nil {
		return nil, domain.ErrInternal("list transactions", err)
	}
	total, err := s.transactions.CountByWallet(ctx, s.pool, wallet.ID, filter)
	if err != nil {
		return nil, domain.ErrInternal("count transactions", err)
	}

	return &WalletView{
		WalletID:     wallet.ID,
		Balance:      wallet.Balance,
		Transactions: txs,
		Total:        total,
		Page:         p.Page,
		Limit:        p.Limit,
	}, nil
}
