package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/infra"
)

type transactionRepo struct{}

// NewTransactionRepository returns a pgx-backed TransactionRepository.
func NewTransactionRepository() TransactionRepository {
	return &transactionRepo{}
}

const transactionColumns = `id, wallet_id, type, status, amount, balance_after,
	description, external_id, metadata, created_at, updated_at`

func (r *transactionRepo) FindExisting(ctx context.Context, db DBTX, key domain.IdempotencyKey) (*domain.Transaction, error) {
	row := db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE wallet_id = $1 AND type = $2 AND external_id = $3`,
		key.WalletID, string(key.Type), key.ExternalID)
	return scanTransaction(row)
}

func (r *transactionRepo) Insert(ctx context.Context, db DBTX, params domain.PostLedgerEntryParams, status domain.TransactionStatus, balanceAfter *int64) (*domain.Transaction, error) {
	meta := params.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}

	row := db.QueryRow(ctx, `
		INSERT INTO transactions
		  (wallet_id, type, status, amount, balance_after, description, external_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+transactionColumns,
		params.WalletID,
		string(params.Type),
		string(status),
		infra.Int64ToNumeric(params.Amount),
		nullableNumeric(balanceAfter),
		params.Description,
		params.ExternalID,
		meta,
	)
	return scanTransaction(row)
}

func (r *transactionRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Transaction, error) {
	row := db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r *transactionRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	row := tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	return scanTransaction(row)
}

func (r *transactionRepo) MarkSettled(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, balanceAfter *int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET status = $2, balance_after = COALESCE($3, balance_after), updated_at = clock_timestamp()
		WHERE id = $1 AND status = 'PENDING'`,
		id, string(status), nullableNumeric(balanceAfter))
	if err != nil {
		return false, fmt.Errorf("settle transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *transactionRepo) ListByWallet(ctx context.Context, db DBTX, walletID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	where, args := transactionWhere(&walletID, filter)
	limit, offset := clampLimit(filter.Limit), filter.Offset
	args = append(args, limit, offset)

	rows, err := db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM transactions
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, transactionColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *transactionRepo) CountByWallet(ctx context.Context, db DBTX, walletID uuid.UUID, filter domain.TransactionFilter) (int, error) {
	where, args := transactionWhere(&walletID, filter)
	var n int
	if err := db.QueryRow(ctx, `SELECT count(*) FROM transactions `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (r *transactionRepo) ListAll(ctx context.Context, db DBTX, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	where, args := transactionWhere(nil, filter)
	args = append(args, clampLimit(filter.Limit), filter.Offset)

	rows, err := db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM transactions
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, transactionColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("query all transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *transactionRepo) SumSuccess(ctx context.Context, db DBTX, walletID uuid.UUID) (domain.TransactionSums, error) {
	var credits, debits pgtype.Numeric
	var sums domain.TransactionSums
	err := db.QueryRow(ctx, `
		SELECT
		  COALESCE(SUM(amount) FILTER (WHERE type IN ('DEPOSIT', 'PRIZE', 'REFUND')), 0),
		  COALESCE(SUM(amount) FILTER (WHERE type IN ('WITHDRAW', 'BET')), 0),
		  count(*)
		FROM transactions
		WHERE wallet_id = $1 AND status = 'SUCCESS'`, walletID).Scan(&credits, &debits, &sums.Count)
	if err != nil {
		return sums, fmt.Errorf("sum transactions: %w", err)
	}
	if sums.Credits, err = infra.NumericToInt64(credits); err != nil {
		return sums, fmt.Errorf("convert credits: %w", err)
	}
	if sums.Debits, err = infra.NumericToInt64(debits); err != nil {
		return sums, fmt.Errorf("convert debits: %w", err)
	}
	return sums, nil
}

func (r *transactionRepo) LastBalanceSnapshot(ctx context.Context, db DBTX, walletID uuid.UUID) (*int64, error) {
	var bal pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT balance_after FROM transactions
		WHERE wallet_id = $1 AND status = 'SUCCESS' AND balance_after IS NOT NULL
		ORDER BY updated_at DESC, created_at DESC
		LIMIT 1`, walletID).Scan(&bal)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last balance snapshot: %w", err)
	}
	return numericPtr(bal)
}

func (r *transactionRepo) DailySumByType(ctx context.Context, db DBTX, walletID uuid.UUID, txType domain.TransactionType) (int64, error) {
	var total pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE wallet_id = $1 AND type = $2
		  AND status IN ('PENDING', 'SUCCESS')
		  AND created_at >= date_trunc('day', now() AT TIME ZONE 'UTC') AT TIME ZONE 'UTC'`,
		walletID, string(txType)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("daily sum: %w", err)
	}
	return infra.NumericToInt64(total)
}

func (r *transactionRepo) SumSuccessByType(ctx context.Context, db DBTX, txType domain.TransactionType) (int64, error) {
	var total pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE type = $1 AND status = 'SUCCESS'`, string(txType)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum by type: %w", err)
	}
	return infra.NumericToInt64(total)
}

func transactionWhere(walletID *uuid.UUID, f domain.TransactionFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if walletID != nil {
		args = append(args, *walletID)
		conds = append(conds, fmt.Sprintf("wallet_id = $%d", len(args)))
	}
	if f.Type != nil {
		args = append(args, string(*f.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

func nullableNumeric(v *int64) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{}
	}
	return infra.Int64ToNumeric(*v)
}

func numericPtr(n pgtype.Numeric) (*int64, error) {
	if !n.Valid {
		return nil, nil
	}
	v, err := infra.NumericToInt64(n)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amountNum, balNum pgtype.Numeric
	err := row.Scan(
		&tx.ID, &tx.WalletID, &tx.Type, &tx.Status, &amountNum, &balNum,
		&tx.Description, &tx.ExternalID, &tx.Metadata, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if err := convertTransaction(&tx, amountNum, balNum); err != nil {
		return nil, err
	}
	return &tx, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var amountNum, balNum pgtype.Numeric
		err := rows.Scan(
			&tx.ID, &tx.WalletID, &tx.Type, &tx.Status, &amountNum, &balNum,
			&tx.Description, &tx.ExternalID, &tx.Metadata, &tx.CreatedAt, &tx.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		if err := convertTransaction(&tx, amountNum, balNum); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func convertTransaction(tx *domain.Transaction, amountNum, balNum pgtype.Numeric) error {
	var err error
	tx.Amount, err = infra.NumericToInt64(amountNum)
	if err != nil {
		return fmt.Errorf("convert amount: %w", err)
	}
	tx.BalanceAfter, err = numericPtr(balNum)
	if err != nil {
		return fmt.Errorf("convert balance_after: %w", err)
	}
	return nil
}
