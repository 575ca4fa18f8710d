package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/infra"
)

type withdrawalRepo struct{}

// NewWithdrawalRepository returns a pgx-backed WithdrawalRepository.
func NewWithdrawalRepository() WithdrawalRepository {
	return &withdrawalRepo{}
}

const withdrawalColumns = `id, user_id, wallet_id, transaction_id, amount, pix_key, status,
	gateway_id, payout_id, payout_status, refund_transaction_id, reviewed_at, created_at, updated_at`

func (r *withdrawalRepo) Create(ctx context.Context, db DBTX, w *domain.Withdrawal) error {
	_, err := db.Exec(ctx, `
		INSERT INTO withdrawals (id, user_id, wallet_id, transaction_id, amount, pix_key, status, payout_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID, w.UserID, w.WalletID, w.TransactionID, infra.Int64ToNumeric(w.Amount),
		w.PixKey, string(w.Status), string(w.PayoutStatus))
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

func (r *withdrawalRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Withdrawal, error) {
	row := db.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)
	return scanWithdrawal(row)
}

func (r *withdrawalRepo) Claim(ctx context.Context, db DBTX, id uuid.UUID, from, to domain.WithdrawalStatus) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE withdrawals SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("claim withdrawal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *withdrawalRepo) ClaimPayout(ctx context.Context, db DBTX, id uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE withdrawals SET payout_status = 'PENDING', updated_at = now()
		WHERE id = $1 AND status = 'APPROVED' AND payout_status IN ('NONE', 'FAILED')`, id)
	if err != nil {
		return false, fmt.Errorf("claim payout: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *withdrawalRepo) CompleteApproval(ctx context.Context, db DBTX, id uuid.UUID, gatewayID *uuid.UUID, payoutID *string, payout domain.WithdrawalPayoutStatus) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE withdrawals
		SET status = 'APPROVED', gateway_id = $2, payout_id = $3, payout_status = $4,
		    reviewed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PROCESSING'`,
		id, gatewayID, payoutID, string(payout))
	if err != nil {
		return false, fmt.Errorf("complete approval: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *withdrawalRepo) UpdatePayout(ctx context.Context, db DBTX, id uuid.UUID, gatewayID *uuid.UUID, payoutID *string, payout domain.WithdrawalPayoutStatus) error {
	_, err := db.Exec(ctx, `
		UPDATE withdrawals
		SET gateway_id = COALESCE($2, gateway_id), payout_id = COALESCE($3, payout_id),
		    payout_status = $4, updated_at = now()
		WHERE id = $1`,
		id, gatewayID, payoutID, string(payout))
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	return nil
}

func (r *withdrawalRepo) MarkRejected(ctx context.Context, tx pgx.Tx, id uuid.UUID, refundTxID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE withdrawals
		SET status = 'REJECTED', refund_transaction_id = $2, reviewed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PENDING'`, id, refundTxID)
	if err != nil {
		return false, fmt.Errorf("reject withdrawal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *withdrawalRepo) List(ctx context.Context, db DBTX, status *domain.WithdrawalStatus, page domain.Page) ([]domain.Withdrawal, error) {
	p := page.Normalize()
	var filter *string
	if status != nil {
		s := string(*status)
		filter = &s
	}
	rows, err := db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, filter, p.Limit, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("query withdrawals: %w", err)
	}
	defer rows.Close()

	var list []domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *w)
	}
	return list, rows.Err()
}

func (r *withdrawalRepo) CountPending(ctx context.Context, db DBTX) (int, error) {
	var n int
	if err := db.QueryRow(ctx, `SELECT count(*) FROM withdrawals WHERE status = 'PENDING'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending withdrawals: %w", err)
	}
	return n, nil
}

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	var amountNum pgtype.Numeric
	err := row.Scan(
		&w.ID, &w.UserID, &w.WalletID, &w.TransactionID, &amountNum, &w.PixKey, &w.Status,
		&w.GatewayID, &w.PayoutID, &w.PayoutStatus, &w.RefundTransactionID, &w.ReviewedAt,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan withdrawal: %w", err)
	}
	var convErr error
	w.Amount, convErr = infra.NumericToInt64(amountNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert withdrawal amount: %w", convErr)
	}
	return &w, nil
}
