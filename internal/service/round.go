package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/repository"
)

// RoundService manages rounds and their match results.
type RoundService struct {
	pool   *pgxpool.Pool
	rounds repository.RoundRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewRoundService creates a RoundService.
func NewRoundService(pool *pgxpool.Pool, rounds repository.RoundRepository, logger *slog.Logger) *RoundService {
	return &RoundService{pool: pool, rounds: rounds, logger: logger, now: time.Now}
}

// MatchInput describes one match of a new round.
type MatchInput struct {
	HomeTeam  string    `json:"homeTeam"`
	AwayTeam  string    `json:"awayTeam"`
	StartTime time.Time `json:"startTime"`
}

// CreateRoundInput holds the fields of a new round.
type CreateRoundInput struct {
	Title     string       `json:"title"`
	StartTime time.Time    `json:"startTime"`
	EndTime   time.Time    `json:"endTime"`
	Matches   []MatchInput `json:"matches"`
}

// Validate checks the round shape.
func (in CreateRoundInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return domain.ErrValidation("title is required")
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() || !in.EndTime.After(in.StartTime) {
		return domain.ErrValidation("endTime must be after startTime")
	}
	if len(in.Matches) != domain.MatchesPerRound {
		return domain.ErrValidation(fmt.Sprintf("a round has exactly %d matches", domain.MatchesPerRound))
	}
	for i, m := range in.Matches {
		if strings.TrimSpace(m.HomeTeam) == "" || strings.TrimSpace(m.AwayTeam) == "" {
			return domain.ErrValidation(fmt.Sprintf("match %d needs both teams", i+1))
		}
	}
	return nil
}

// Create opens a new round with its matches in position order.
func (s *RoundService) Create(ctx context.Context, in CreateRoundInput) (*domain.Round, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	round := &domain.Round{
		ID:        uuid.New(),
		Title:     strings.TrimSpace(in.Title),
		Status:    domain.RoundOpen,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Matches:   make([]domain.Match, 0, len(in.Matches)),
	}
	for i, m := range in.Matches {
		start := m.StartTime
		if start.IsZero() {
			start = in.StartTime
		}
		round.Matches = append(round.Matches, domain.Match{
			ID:        uuid.New(),
			RoundID:   round.ID,
			Position:  i + 1,
			HomeTeam:  strings.TrimSpace(m.HomeTeam),
			AwayTeam:  strings.TrimSpace(m.AwayTeam),
			StartTime: start,
		})
	}

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return s.rounds.Create(ctx, tx, round)
	})
	if err != nil {
		return nil, domain.ErrInternal("create round", err)
	}

	s.logger.Info("round created", "round_id", round.ID, "title", round.Title)
	return round, nil
}

// List returns rounds, newest first.
func (s *RoundService) List(ctx context.Context, page domain.Page) ([]domain.Round, error) {
	rounds, err := s.rounds.List(ctx, s.pool, page)
	if err != nil {
		return nil, domain.ErrInternal("list rounds", err)
	}
	return rounds, nil
}

// Active returns the rounds currently accepting bets.
func (s *RoundService) Active(ctx context.Context) ([]domain.Round, error) {
	rounds, err := s.rounds.ListActive(ctx, s.pool, s.now())
	if err != nil {
		return nil, domain.ErrInternal("list active rounds", err)
	}
	return rounds, nil
}

// Get returns a round with its matches.
func (s *RoundService) Get(ctx context.Context, id uuid.UUID) (*domain.Round, error) {
	round, err := s.rounds.FindByID(ctx, s.pool, id)
	if err != nil {
		return nil, domain.ErrInternal("find round", err)
	}
	if round == nil {
		return nil, domain.ErrNotFound("round", id.String())
	}
	return round, nil
}

// SetMatchResult records a match outcome. A result can only be set once.
func (s *RoundService) SetMatchResult(ctx context.Context, matchID uuid.UUID, result domain.MatchResult) (*domain.Match, error) {
	if !result.Valid() {
		return nil, domain.ErrValidation(fmt.Sprintf("result %q must be H, D or A", result))
	}

	match, err := s.rounds.FindMatch(ctx, s.pool, matchID)
	if err != nil {
		return nil, domain.ErrInternal("find match", err)
	}
	if match == nil {
		return nil, domain.ErrNotFound("match", matchID.String())
	}

	ok, err := s.rounds.SetMatchResult(ctx, s.pool, matchID, result)
	if err != nil {
		return nil, domain.ErrInternal("set match result", err)
	}
	if !ok {
		return nil, domain.ErrConflict(fmt.Sprintf("match %s already has a result", matchID))
	}

	match.Result = &result
	s.logger.Info("match result set", "match_id", matchID, "round_id", match.RoundID, "result", result)
	return match, nil
}
