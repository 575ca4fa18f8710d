package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/palpitai/platform/internal/domain"
)

type gatewayRepo struct{}

// NewGatewayRepository returns a pgx-backed GatewayRepository.
func NewGatewayRepository() GatewayRepository {
	return &gatewayRepo{}
}

const gatewayColumns = `id, name, provider, credentials, is_active, automatic_withdrawal, created_at, updated_at`

func (r *gatewayRepo) List(ctx context.Context, db DBTX) ([]domain.Gateway, error) {
	rows, err := db.Query(ctx, `SELECT `+gatewayColumns+` FROM payment_gateways ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query gateways: %w", err)
	}
	defer rows.Close()

	var gateways []domain.Gateway
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, *g)
	}
	return gateways, rows.Err()
}

func (r *gatewayRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Gateway, error) {
	row := db.QueryRow(ctx, `SELECT `+gatewayColumns+` FROM payment_gateways WHERE id = $1`, id)
	return scanGateway(row)
}

func (r *gatewayRepo) FindActive(ctx context.Context, db DBTX) (*domain.Gateway, error) {
	row := db.QueryRow(ctx, `SELECT `+gatewayColumns+` FROM payment_gateways WHERE is_active LIMIT 1`)
	return scanGateway(row)
}

func (r *gatewayRepo) Create(ctx context.Context, db DBTX, g *domain.Gateway) error {
	_, err := db.Exec(ctx, `
		INSERT INTO payment_gateways (id, name, provider, credentials, is_active, automatic_withdrawal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.Name, string(g.Provider), g.Credentials, g.IsActive, g.AutomaticWithdrawal, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert gateway: %w", err)
	}
	return nil
}

func (r *gatewayRepo) Update(ctx context.Context, db DBTX, g *domain.Gateway) error {
	_, err := db.Exec(ctx, `
		UPDATE payment_gateways
		SET name = $2, credentials = $3, automatic_withdrawal = $4, updated_at = now()
		WHERE id = $1`,
		g.ID, g.Name, g.Credentials, g.AutomaticWithdrawal)
	if err != nil {
		return fmt.Errorf("update gateway: %w", err)
	}
	return nil
}

func (r *gatewayRepo) DeactivateAll(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `UPDATE payment_gateways SET is_active = false, updated_at = now() WHERE is_active`)
	if err != nil {
		return fmt.Errorf("deactivate gateways: %w", err)
	}
	return nil
}

func (r *gatewayRepo) SetActive(ctx context.Context, db DBTX, id uuid.UUID, active bool) (bool, error) {
	tag, err := db.Exec(ctx, `UPDATE payment_gateways SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return false, fmt.Errorf("set gateway active: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *gatewayRepo) Delete(ctx context.Context, db DBTX, id uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `DELETE FROM payment_gateways WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return false, domain.ErrConflict("gateway is referenced by payment orders or withdrawals")
	}
	if err != nil {
		return false, fmt.Errorf("delete gateway: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanGateway(row pgx.Row) (*domain.Gateway, error) {
	var g domain.Gateway
	err := row.Scan(&g.ID, &g.Name, &g.Provider, &g.Credentials, &g.IsActive, &g.AutomaticWithdrawal, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan gateway: %w", err)
	}
	return &g, nil
}
