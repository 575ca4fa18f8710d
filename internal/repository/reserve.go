package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/palpitai/platform/internal/infra"
)

type reserveFundRepo struct{}

// NewReserveFundRepository returns a pgx-backed ReserveFundRepository.
func NewReserveFundRepository() ReserveFundRepository {
	return &reserveFundRepo{}
}

func (r *reserveFundRepo) Increment(ctx context.Context, tx pgx.Tx, amount int64) (int64, error) {
	var bal pgtype.Numeric
	err := tx.QueryRow(ctx, `
		INSERT INTO reserve_fund (id, balance, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET balance = reserve_fund.balance + EXCLUDED.balance, updated_at = now()
		RETURNING balance`, infra.Int64ToNumeric(amount)).Scan(&bal)
	if err != nil {
		return 0, fmt.Errorf("increment reserve fund: %w", err)
	}
	return infra.NumericToInt64(bal)
}

func (r *reserveFundRepo) Get(ctx context.Context, db DBTX) (int64, error) {
	var bal pgtype.Numeric
	err := db.QueryRow(ctx, `SELECT balance FROM reserve_fund WHERE id = 1`).Scan(&bal)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get reserve fund: %w", err)
	}
	return infra.NumericToInt64(bal)
}
