package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/ledger"
	"github.com/palpitai/platform/internal/repository"
)

// BetService places and reads bet slips. A slip costs a fixed stake and
// carries one prediction for every match of its round.
type BetService struct {
	pool    *pgxpool.Pool
	bets    repository.BetRepository
	rounds  repository.RoundRepository
	wallets repository.WalletRepository
	engine  *ledger.Engine
	stake   int64
	logger  *slog.Logger
	now     func() time.Time
}

// NewBetService creates a BetService charging stake centavos per slip.
func NewBetService(
	pool *pgxpool.Pool,
	bets repository.BetRepository,
	rounds repository.RoundRepository,
	wallets repository.WalletRepository,
	engine *ledger.Engine,
	stake int64,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		pool:    pool,
		bets:    bets,
		rounds:  rounds,
		wallets: wallets,
		engine:  engine,
		stake:   stake,
		logger:  logger,
		now:     time.Now,
	}
}

// PlaceBet debits the stake and stores the slip in one transaction. The round
// row is share-locked so it cannot close between the checks and the insert.
func (s *BetService) PlaceBet(ctx context.Context, userID, roundID uuid.UUID, predictions []domain.Prediction) (*domain.BetSlip, error) {
	if err := ValidatePredictions(predictions); err != nil {
		return nil, err
	}

	wallet, err := s.wallets.FindByUserID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find wallet", err)
	}
	if wallet == nil {
		return nil, domain.ErrNotFound("wallet for user", userID.String())
	}

	slip := &domain.BetSlip{
		ID:      uuid.New(),
		UserID:  userID,
		RoundID: roundID,
		Price:   s.stake,
	}

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		round, err := s.rounds.LockForShare(ctx, tx, roundID)
		if err != nil {
			return domain.ErrInternal("lock round", err)
		}
		if round == nil {
			return domain.ErrNotFound("round", roundID.String())
		}
		if !round.AcceptsBets(s.now()) {
			return domain.ErrRoundClosed(fmt.Sprintf("round %q is not accepting bets", round.Title))
		}
		if err := MatchPredictions(round, predictions); err != nil {
			return err
		}

		if _, err := s.engine.ExecuteDebit(ctx, tx, domain.DebitParams{
			WalletID:    wallet.ID,
			Type:        domain.TxBet,
			Amount:      s.stake,
			Description: "Aposta no concurso: " + round.Title,
			ExternalID:  "bet:" + slip.ID.String(),
		}); err != nil {
			return internalErr("debit stake", err)
		}

		slip.Predictions = make([]domain.BetSlipMatch, 0, len(predictions))
		for _, p := range predictions {
			slip.Predictions = append(slip.Predictions, domain.BetSlipMatch{
				ID:         uuid.New(),
				BetSlipID:  slip.ID,
				MatchID:    p.MatchID,
				Prediction: p.Prediction,
			})
		}
		if err := s.bets.CreateSlip(ctx, tx, slip); err != nil {
			return domain.ErrInternal("create bet slip", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slip.CreatedAt = s.now()
	s.logger.Info("bet placed", "slip_id", slip.ID, "user_id", userID, "round_id", roundID)
	return slip, nil
}

// MyBets lists the user's slips, newest first.
func (s *BetService) MyBets(ctx context.Context, userID uuid.UUID, page domain.Page) ([]domain.BetSlip, error) {
	slips, err := s.bets.ListByUser(ctx, s.pool, userID, page)
	if err != nil {
		return nil, domain.ErrInternal("list bet slips", err)
	}
	return slips, nil
}

// GetBet returns one of the user's slips with its predictions.
func (s *BetService) GetBet(ctx context.Context, userID, slipID uuid.UUID) (*domain.BetSlip, error) {
	slip, err := s.bets.FindByID(ctx, s.pool, slipID)
	if err != nil {
		return nil, domain.ErrInternal("find bet slip", err)
	}
	if slip == nil {
		return nil, domain.ErrNotFound("bet slip", slipID.String())
	}
	if slip.UserID != userID {
		return nil, domain.ErrForbidden("bet slip belongs to another user")
	}
	return slip, nil
}

// ValidatePredictions checks the shape of a submission: one valid 1X2 pick for
// each of MatchesPerRound distinct matches.
func ValidatePredictions(predictions []domain.Prediction) error {
	if len(predictions) != domain.MatchesPerRound {
		return domain.ErrInvalidSelection(fmt.Sprintf("expected %d predictions, got %d", domain.MatchesPerRound, len(predictions)))
	}
	seen := make(map[uuid.UUID]bool, len(predictions))
	for _, p := range predictions {
		if !p.Prediction.Valid() {
			return domain.ErrInvalidSelection(fmt.Sprintf("prediction %q must be H, D or A", p.Prediction))
		}
		if seen[p.MatchID] {
			return domain.ErrInvalidSelection(fmt.Sprintf("match %s predicted twice", p.MatchID))
		}
		seen[p.MatchID] = true
	}
	return nil
}

// MatchPredictions checks that the predictions cover exactly the round's matches.
func MatchPredictions(round *domain.Round, predictions []domain.Prediction) error {
	inRound := make(map[uuid.UUID]bool, len(round.Matches))
	for _, m := range round.Matches {
		inRound[m.ID] = true
	}
	for _, p := range predictions {
		if !inRound[p.MatchID] {
			return domain.ErrInvalidSelection(fmt.Sprintf("match %s is not part of round %s", p.MatchID, round.ID))
		}
	}
	if len(predictions) != len(round.Matches) {
		return domain.ErrInvalidSelection("every match of the round must be predicted")
	}
	return nil
}
