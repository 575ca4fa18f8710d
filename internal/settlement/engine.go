package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/infra"
	"github.com/palpitai/platform/internal/ledger"
	"github.com/palpitai/platform/internal/repository"
)

// PrizeEngine runs the two admin-triggered phases of a round's settlement:
// hit calculation (OPEN|CLOSED -> CLOSED) and prize distribution (CLOSED -> FINALIZED).
type PrizeEngine struct {
	pool    *pgxpool.Pool
	rounds  repository.RoundRepository
	bets    repository.BetRepository
	wallets repository.WalletRepository
	reserve repository.ReserveFundRepository
	outbox  repository.OutboxRepository
	ledger  *ledger.Engine
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewPrizeEngine creates a PrizeEngine.
func NewPrizeEngine(
	pool *pgxpool.Pool,
	rounds repository.RoundRepository,
	bets repository.BetRepository,
	wallets repository.WalletRepository,
	reserve repository.ReserveFundRepository,
	outbox repository.OutboxRepository,
	engine *ledger.Engine,
	metrics *infra.Metrics,
	logger *slog.Logger,
) *PrizeEngine {
	return &PrizeEngine{
		pool:    pool,
		rounds:  rounds,
		bets:    bets,
		wallets: wallets,
		reserve: reserve,
		outbox:  outbox,
		ledger:  engine,
		metrics: metrics,
		logger:  logger,
	}
}

// CalculateRoundHits scores every slip of the round against the match results
// and closes the round. Re-running on a CLOSED round rescores; a FINALIZED
// round is rejected so paid prizes are never recomputed.
func (e *PrizeEngine) CalculateRoundHits(ctx context.Context, roundID uuid.UUID) (*domain.Round, error) {
	var round *domain.Round
	var scored int

	err := pgx.BeginTxFunc(ctx, e.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		round, err = e.rounds.LockForUpdate(ctx, tx, roundID)
		if err != nil {
			return domain.ErrInternal("lock round", err)
		}
		if round == nil {
			return domain.ErrNotFound("round", roundID.String())
		}
		if round.Status != domain.RoundOpen && round.Status != domain.RoundClosed {
			return domain.ErrInvalidRoundState(fmt.Sprintf("round %s is %s; hits can only be calculated on OPEN or CLOSED rounds", roundID, round.Status))
		}

		results := make(map[uuid.UUID]domain.MatchResult, len(round.Matches))
		missing := 0
		for _, m := range round.Matches {
			if m.Result == nil {
				missing++
				continue
			}
			results[m.ID] = *m.Result
		}
		if missing > 0 || len(round.Matches) == 0 {
			return domain.ErrIncompleteResults(roundID.String(), missing)
		}

		slips, err := e.bets.ListByRound(ctx, tx, roundID)
		if err != nil {
			return domain.ErrInternal("list bet slips", err)
		}
		for i := range slips {
			ScoreSlip(&slips[i], results)
		}
		if err := e.bets.UpdateHits(ctx, tx, slips); err != nil {
			return domain.ErrInternal("update hits", err)
		}
		scored = len(slips)

		if round.Status == domain.RoundOpen {
			if err := e.rounds.UpdateStatus(ctx, tx, roundID, domain.RoundClosed); err != nil {
				return domain.ErrInternal("close round", err)
			}
			round.Status = domain.RoundClosed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("round hits calculated", "round_id", roundID, "slips", scored)
	return round, nil
}

// DistributePrizes pays every winner of a CLOSED round, funds the reserve and
// finalizes the round in one transaction. Any failure leaves the round CLOSED
// with no prize paid.
func (e *PrizeEngine) DistributePrizes(ctx context.Context, roundID uuid.UUID) (*domain.DistributionResult, error) {
	var plan *Plan

	err := pgx.BeginTxFunc(ctx, e.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		round, err := e.rounds.LockForUpdate(ctx, tx, roundID)
		if err != nil {
			return domain.ErrInternal("lock round", err)
		}
		if round == nil {
			return domain.ErrNotFound("round", roundID.String())
		}
		if round.Status != domain.RoundClosed {
			return domain.ErrInvalidRoundState(fmt.Sprintf("round %s is %s; prizes can only be distributed on CLOSED rounds", roundID, round.Status))
		}

		slips, err := e.bets.ListByRound(ctx, tx, roundID)
		if err != nil {
			return domain.ErrInternal("list bet slips", err)
		}
		plan, err = PlanDistribution(roundID, slips)
		if err != nil {
			return err
		}

		if err := e.payAwards(ctx, tx, round, plan.Awards); err != nil {
			return err
		}

		if plan.ReserveContribution > 0 {
			if _, err := e.reserve.Increment(ctx, tx, plan.ReserveContribution); err != nil {
				return domain.ErrInternal("increment reserve fund", err)
			}
		}

		ok, err := e.rounds.Finalize(ctx, tx, roundID, plan.PrizePool, plan.Unclaimed)
		if err != nil {
			return domain.ErrInternal("finalize round", err)
		}
		if !ok {
			return domain.ErrInvalidRoundState(fmt.Sprintf("round %s left CLOSED during distribution", roundID))
		}

		if err := e.outbox.Insert(ctx, tx, domain.NewRoundFinalizedEvent(&plan.DistributionResult)); err != nil {
			return domain.ErrInternal("insert outbox event", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.PrizeDistribution()
	e.logger.Info("prizes distributed",
		"round_id", roundID,
		"total_revenue", plan.TotalRevenue,
		"prize_pool", plan.PrizePool,
		"total_paid", plan.TotalPaid,
		"unclaimed", plan.Unclaimed,
		"winners", len(plan.Awards),
	)
	return &plan.DistributionResult, nil
}

type walletAward struct {
	Award
	walletID uuid.UUID
}

// payAwards credits winners in wallet id order so concurrent ledger writers
// always lock wallets in the same sequence.
func (e *PrizeEngine) payAwards(ctx context.Context, tx pgx.Tx, round *domain.Round, awards []Award) error {
	resolved := make([]walletAward, 0, len(awards))
	walletByUser := make(map[uuid.UUID]uuid.UUID)
	for _, a := range awards {
		walletID, ok := walletByUser[a.UserID]
		if !ok {
			w, err := e.wallets.FindByUserID(ctx, tx, a.UserID)
			if err != nil {
				return domain.ErrInternal("find winner wallet", err)
			}
			if w == nil {
				return domain.ErrNotFound("wallet for user", a.UserID.String())
			}
			walletID = w.ID
			walletByUser[a.UserID] = walletID
		}
		resolved = append(resolved, walletAward{Award: a, walletID: walletID})
	}
	sort.Slice(resolved, func(i, j int) bool {
		if resolved[i].walletID != resolved[j].walletID {
			return resolved[i].walletID.String() < resolved[j].walletID.String()
		}
		return resolved[i].SlipID.String() < resolved[j].SlipID.String()
	})

	for _, a := range resolved {
		meta, _ := json.Marshal(map[string]interface{}{
			"roundId":   round.ID.String(),
			"betSlipId": a.SlipID.String(),
			"hits":      a.Hits,
		})
		if _, err := e.ledger.ExecuteCredit(ctx, tx, domain.CreditParams{
			WalletID:    a.walletID,
			Type:        domain.TxPrize,
			Amount:      a.Amount,
			Description: fmt.Sprintf("Prêmio do concurso: %s (%d acertos)", round.Title, a.Hits),
			ExternalID:  "prize:" + a.SlipID.String(),
			Metadata:    meta,
		}); err != nil {
			if _, ok := domain.AsAppError(err); ok {
				return err
			}
			return domain.ErrInternal("credit prize", err)
		}
		if err := e.bets.SetPrize(ctx, tx, a.SlipID, a.Amount); err != nil {
			return domain.ErrInternal("set slip prize", err)
		}
	}
	return nil
}
