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

type betRepo struct{}

// NewBetRepository returns a pgx-backed BetRepository.
func NewBetRepository() BetRepository {
	return &betRepo{}
}

const betSlipColumns = `id, user_id, round_id, price, total_acertos, prize_amount, created_at`

func (r *betRepo) CreateSlip(ctx context.Context, tx pgx.Tx, slip *domain.BetSlip) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bet_slips (id, user_id, round_id, price, prize_amount, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)`,
		slip.ID, slip.UserID, slip.RoundID, infra.Int64ToNumeric(slip.Price), slip.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bet slip: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range slip.Predictions {
		batch.Queue(`
			INSERT INTO bet_slip_matches (id, bet_slip_id, match_id, prediction)
			VALUES ($1, $2, $3, $4)`,
			p.ID, slip.ID, p.MatchID, string(p.Prediction))
	}
	br := tx.SendBatch(ctx, batch)
	for range slip.Predictions {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert bet slip match: %w", err)
		}
	}
	return br.Close()
}

func (r *betRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.BetSlip, error) {
	row := db.QueryRow(ctx, `SELECT `+betSlipColumns+` FROM bet_slips WHERE id = $1`, id)
	slip, err := scanBetSlip(row)
	if err != nil || slip == nil {
		return slip, err
	}
	preds, err := r.predictions(ctx, db, []uuid.UUID{slip.ID})
	if err != nil {
		return nil, err
	}
	slip.Predictions = preds[slip.ID]
	return slip, nil
}

func (r *betRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, page domain.Page) ([]domain.BetSlip, error) {
	p := page.Normalize()
	rows, err := db.Query(ctx, `
		SELECT `+betSlipColumns+` FROM bet_slips
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, p.Limit, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("query user bet slips: %w", err)
	}
	defer rows.Close()

	slips, err := collectBetSlips(rows)
	if err != nil {
		return nil, err
	}
	return r.attachPredictions(ctx, db, slips)
}

func (r *betRepo) ListByRound(ctx context.Context, db DBTX, roundID uuid.UUID) ([]domain.BetSlip, error) {
	rows, err := db.Query(ctx, `
		SELECT `+betSlipColumns+` FROM bet_slips
		WHERE round_id = $1
		ORDER BY created_at ASC, id ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("query round bet slips: %w", err)
	}
	defer rows.Close()

	slips, err := collectBetSlips(rows)
	if err != nil {
		return nil, err
	}
	return r.attachPredictions(ctx, db, slips)
}

func (r *betRepo) UpdateHits(ctx context.Context, tx pgx.Tx, slips []domain.BetSlip) error {
	batch := &pgx.Batch{}
	queued := 0
	for _, s := range slips {
		for _, p := range s.Predictions {
			batch.Queue(`UPDATE bet_slip_matches SET is_correct = $2 WHERE id = $1`, p.ID, p.IsCorrect)
			queued++
		}
		batch.Queue(`UPDATE bet_slips SET total_acertos = $2 WHERE id = $1`, s.ID, s.TotalAcertos)
		queued++
	}
	if queued == 0 {
		return nil
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("update hits: %w", err)
		}
	}
	return br.Close()
}

func (r *betRepo) SetPrize(ctx context.Context, tx pgx.Tx, slipID uuid.UUID, amount int64) error {
	_, err := tx.Exec(ctx, `UPDATE bet_slips SET prize_amount = $2 WHERE id = $1`, slipID, infra.Int64ToNumeric(amount))
	if err != nil {
		return fmt.Errorf("set prize: %w", err)
	}
	return nil
}

func (r *betRepo) SumPriceByRound(ctx context.Context, db DBTX, roundID uuid.UUID) (int64, error) {
	var total pgtype.Numeric
	err := db.QueryRow(ctx, `SELECT COALESCE(SUM(price), 0) FROM bet_slips WHERE round_id = $1`, roundID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum round revenue: %w", err)
	}
	return infra.NumericToInt64(total)
}

func (r *betRepo) Count(ctx context.Context, db DBTX) (int, error) {
	var n int
	if err := db.QueryRow(ctx, `SELECT count(*) FROM bet_slips`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bet slips: %w", err)
	}
	return n, nil
}

func (r *betRepo) attachPredictions(ctx context.Context, db DBTX, slips []domain.BetSlip) ([]domain.BetSlip, error) {
	if len(slips) == 0 {
		return slips, nil
	}
	ids := make([]uuid.UUID, len(slips))
	for i := range slips {
		ids[i] = slips[i].ID
	}
	preds, err := r.predictions(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	for i := range slips {
		slips[i].Predictions = preds[slips[i].ID]
	}
	return slips, nil
}

func (r *betRepo) predictions(ctx context.Context, db DBTX, slipIDs []uuid.UUID) (map[uuid.UUID][]domain.BetSlipMatch, error) {
	rows, err := db.Query(ctx, `
		SELECT bsm.id, bsm.bet_slip_id, bsm.match_id, bsm.prediction, bsm.is_correct
		FROM bet_slip_matches bsm
		JOIN matches m ON m.id = bsm.match_id
		WHERE bsm.bet_slip_id = ANY($1)
		ORDER BY bsm.bet_slip_id, m.position ASC`, slipIDs)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.BetSlipMatch, len(slipIDs))
	for rows.Next() {
		var p domain.BetSlipMatch
		if err := rows.Scan(&p.ID, &p.BetSlipID, &p.MatchID, &p.Prediction, &p.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out[p.BetSlipID] = append(out[p.BetSlipID], p)
	}
	return out, rows.Err()
}

func scanBetSlip(row pgx.Row) (*domain.BetSlip, error) {
	var s domain.BetSlip
	var priceNum, prizeNum pgtype.Numeric
	err := row.Scan(&s.ID, &s.UserID, &s.RoundID, &priceNum, &s.TotalAcertos, &prizeNum, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan bet slip: %w", err)
	}
	if s.Price, err = infra.NumericToInt64(priceNum); err != nil {
		return nil, fmt.Errorf("convert price: %w", err)
	}
	if s.PrizeAmount, err = infra.NumericToInt64(prizeNum); err != nil {
		return nil, fmt.Errorf("convert prize_amount: %w", err)
	}
	return &s, nil
}

func collectBetSlips(rows pgx.Rows) ([]domain.BetSlip, error) {
	var slips []domain.BetSlip
	for rows.Next() {
		s, err := scanBetSlip(rows)
		if err != nil {
			return nil, err
		}
		slips = append(slips, *s)
	}
	return slips, rows.Err()
}
