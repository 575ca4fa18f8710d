package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/infra"
)

type paymentOrderRepo struct{}

// NewPaymentOrderRepository returns a pgx-backed PaymentOrderRepository.
func NewPaymentOrderRepository() PaymentOrderRepository {
	return &paymentOrderRepo{}
}

const paymentOrderColumns = `id, transaction_id, user_id, gateway_id, external_id, amount,
	pix_code, pix_qr_base64, expires_at, status, checked_at, created_at, updated_at`

func (r *paymentOrderRepo) Create(ctx context.Context, db DBTX, o *domain.PaymentOrder) error {
	_, err := db.Exec(ctx, `
		INSERT INTO payment_orders (id, transaction_id, user_id, gateway_id, external_id, amount,
			pix_code, pix_qr_base64, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.TransactionID, o.UserID, o.GatewayID, o.ExternalID,
		infra.Int64ToNumeric(o.Amount), o.PixCode, o.PixQrBase64, o.ExpiresAt, string(o.Status),
	)
	if err != nil {
		return fmt.Errorf("insert payment order: %w", err)
	}
	return nil
}

func (r *paymentOrderRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.PaymentOrder, error) {
	row := db.QueryRow(ctx, `SELECT `+paymentOrderColumns+` FROM payment_orders WHERE id = $1`, id)
	return scanPaymentOrder(row)
}

func (r *paymentOrderRepo) FindByExternalID(ctx context.Context, db DBTX, externalID string) (*domain.PaymentOrder, error) {
	row := db.QueryRow(ctx, `SELECT `+paymentOrderColumns+` FROM payment_orders WHERE external_id = $1`, externalID)
	return scanPaymentOrder(row)
}

func (r *paymentOrderRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentOrder, error) {
	row := tx.QueryRow(ctx, `SELECT `+paymentOrderColumns+` FROM payment_orders WHERE id = $1 FOR UPDATE`, id)
	return scanPaymentOrder(row)
}

func (r *paymentOrderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.PaymentOrderStatus, checkedAt time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE payment_orders SET status = $2, checked_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'PENDING'`,
		id, string(status), checkedAt)
	if err != nil {
		return false, fmt.Errorf("update payment order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentOrderRepo) TouchCheckedAt(ctx context.Context, db DBTX, id uuid.UUID, checkedAt time.Time) error {
	_, err := db.Exec(ctx, `UPDATE payment_orders SET checked_at = $2 WHERE id = $1`, id, checkedAt)
	if err != nil {
		return fmt.Errorf("touch payment order: %w", err)
	}
	return nil
}

func (r *paymentOrderRepo) InsertEvent(ctx context.Context, db DBTX, event *domain.PaymentEvent) error {
	raw := event.RawData
	if raw == nil {
		raw = json.RawMessage(`{}`)
	}
	var from *string
	if event.FromStatus != nil {
		s := string(*event.FromStatus)
		from = &s
	}
	_, err := db.Exec(ctx, `
		INSERT INTO payment_events (order_id, source, from_status, to_status, message, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.OrderID, string(event.Source), from, string(event.ToStatus), event.Message, raw)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

func (r *paymentOrderRepo) ListEvents(ctx context.Context, db DBTX, orderID uuid.UUID) ([]domain.PaymentEvent, error) {
	rows, err := db.Query(ctx, `
		SELECT id, order_id, source, from_status, to_status, message, raw_data, created_at
		FROM payment_events WHERE order_id = $1
		ORDER BY created_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query payment events: %w", err)
	}
	defer rows.Close()

	var events []domain.PaymentEvent
	for rows.Next() {
		var e domain.PaymentEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Source, &e.FromStatus, &e.ToStatus,
			&e.Message, &e.RawData, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanPaymentOrder(row pgx.Row) (*domain.PaymentOrder, error) {
	var o domain.PaymentOrder
	var amountNum pgtype.Numeric
	err := row.Scan(
		&o.ID, &o.TransactionID, &o.UserID, &o.GatewayID, &o.ExternalID, &amountNum,
		&o.PixCode, &o.PixQrBase64, &o.ExpiresAt, &o.Status, &o.CheckedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment order: %w", err)
	}
	var convErr error
	o.Amount, convErr = infra.NumericToInt64(amountNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert payment order amount: %w", convErr)
	}
	return &o, nil
}
