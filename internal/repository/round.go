package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/infra"
)

type roundRepo struct{}

// NewRoundRepository returns a pgx-backed RoundRepository.
func NewRoundRepository() RoundRepository {
	return &roundRepo{}
}

const roundColumns = `id, title, status, start_time, end_time, pool_amount, unclaimed_amount, created_at, updated_at`

func (r *roundRepo) Create(ctx context.Context, tx pgx.Tx, round *domain.Round) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO rounds (id, title, status, start_time, end_time, pool_amount, unclaimed_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7)`,
		round.ID, round.Title, string(round.Status), round.StartTime, round.EndTime, round.CreatedAt, round.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert round: %w", err)
	}

	batch := &pgx.Batch{}
	for _, m := range round.Matches {
		batch.Queue(`
			INSERT INTO matches (id, round_id, position, home_team, away_team, start_time)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, round.ID, m.Position, m.HomeTeam, m.AwayTeam, m.StartTime)
	}
	br := tx.SendBatch(ctx, batch)
	for range round.Matches {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert match: %w", err)
		}
	}
	return br.Close()
}

func (r *roundRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Round, error) {
	row := db.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id)
	return r.withMatches(ctx, db, row)
}

func (r *roundRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Round, error) {
	row := tx.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1 FOR UPDATE`, id)
	return r.withMatches(ctx, tx, row)
}

func (r *roundRepo) LockForShare(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Round, error) {
	row := tx.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1 FOR SHARE`, id)
	return r.withMatches(ctx, tx, row)
}

func (r *roundRepo) List(ctx context.Context, db DBTX, page domain.Page) ([]domain.Round, error) {
	p := page.Normalize()
	rows, err := db.Query(ctx, `
		SELECT `+roundColumns+` FROM rounds
		ORDER BY start_time DESC, id DESC
		LIMIT $1 OFFSET $2`, p.Limit, p.Offset())
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()
	return collectRounds(rows)
}

func (r *roundRepo) ListActive(ctx context.Context, db DBTX, now time.Time) ([]domain.Round, error) {
	rows, err := db.Query(ctx, `
		SELECT `+roundColumns+` FROM rounds
		WHERE status = 'OPEN' AND end_time > $1
		ORDER BY end_time ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("query active rounds: %w", err)
	}
	defer rows.Close()

	rounds, err := collectRounds(rows)
	if err != nil {
		return nil, err
	}
	for i := range rounds {
		if rounds[i].Matches, err = r.listMatches(ctx, db, rounds[i].ID); err != nil {
			return nil, err
		}
	}
	return rounds, nil
}

func (r *roundRepo) CountActive(ctx context.Context, db DBTX, now time.Time) (int, error) {
	var n int
	err := db.QueryRow(ctx, `SELECT count(*) FROM rounds WHERE status = 'OPEN' AND end_time > $1`, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active rounds: %w", err)
	}
	return n, nil
}

func (r *roundRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.RoundStatus) error {
	_, err := tx.Exec(ctx, `UPDATE rounds SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update round status: %w", err)
	}
	return nil
}

func (r *roundRepo) Finalize(ctx context.Context, tx pgx.Tx, id uuid.UUID, pool, unclaimed int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE rounds
		SET status = 'FINALIZED', pool_amount = $2, unclaimed_amount = $3, updated_at = now()
		WHERE id = $1 AND status = 'CLOSED'`,
		id, infra.Int64ToNumeric(pool), infra.Int64ToNumeric(unclaimed))
	if err != nil {
		return false, fmt.Errorf("finalize round: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *roundRepo) FindMatch(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Match, error) {
	var m domain.Match
	err := db.QueryRow(ctx, `
		SELECT id, round_id, position, home_team, away_team, start_time, result
		FROM matches WHERE id = $1`, id).
		Scan(&m.ID, &m.RoundID, &m.Position, &m.HomeTeam, &m.AwayTeam, &m.StartTime, &m.Result)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan match: %w", err)
	}
	return &m, nil
}

func (r *roundRepo) SetMatchResult(ctx context.Context, db DBTX, matchID uuid.UUID, result domain.MatchResult) (bool, error) {
	tag, err := db.Exec(ctx, `UPDATE matches SET result = $2 WHERE id = $1 AND result IS NULL`, matchID, string(result))
	if err != nil {
		return false, fmt.Errorf("set match result: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *roundRepo) withMatches(ctx context.Context, db DBTX, row pgx.Row) (*domain.Round, error) {
	round, err := scanRound(row)
	if err != nil || round == nil {
		return round, err
	}
	round.Matches, err = r.listMatches(ctx, db, round.ID)
	if err != nil {
		return nil, err
	}
	return round, nil
}

func (r *roundRepo) listMatches(ctx context.Context, db DBTX, roundID uuid.UUID) ([]domain.Match, error) {
	rows, err := db.Query(ctx, `
		SELECT id, round_id, position, home_team, away_team, start_time, result
		FROM matches WHERE round_id = $1
		ORDER BY position ASC`, roundID)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		var m domain.Match
		if err := rows.Scan(&m.ID, &m.RoundID, &m.Position, &m.HomeTeam, &m.AwayTeam, &m.StartTime, &m.Result); err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func scanRound(row pgx.Row) (*domain.Round, error) {
	var rd domain.Round
	var poolNum, unclaimedNum pgtype.Numeric
	err := row.Scan(&rd.ID, &rd.Title, &rd.Status, &rd.StartTime, &rd.EndTime,
		&poolNum, &unclaimedNum, &rd.CreatedAt, &rd.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan round: %w", err)
	}
	if rd.PoolAmount, err = infra.NumericToInt64(poolNum); err != nil {
		return nil, fmt.Errorf("convert pool_amount: %w", err)
	}
	if rd.UnclaimedAmount, err = infra.NumericToInt64(unclaimedNum); err != nil {
		return nil, fmt.Errorf("convert unclaimed_amount: %w", err)
	}
	return &rd, nil
}

func collectRounds(rows pgx.Rows) ([]domain.Round, error) {
	var rounds []domain.Round
	for rows.Next() {
		rd, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *rd)
	}
	return rounds, rows.Err()
}
