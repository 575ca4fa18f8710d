package settlement

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
	"github.com/shopspring/decimal"
)

// Revenue split of a round. What is left after pool and reserve is platform margin.
var (
	PrizePoolShare   = decimal.RequireFromString("0.70")
	ReserveFundShare = decimal.RequireFromString("0.025")
)

// Tier is a prize tier: slips with exactly Hits correct predictions share Share of the pool.
type Tier struct {
	Hits  int
	Share decimal.Decimal
}

// Tiers are ordered from the top prize down.
var Tiers = []Tier{
	{Hits: 14, Share: decimal.RequireFromString("0.70")},
	{Hits: 13, Share: decimal.RequireFromString("0.15")},
	{Hits: 12, Share: decimal.RequireFromString("0.15")},
}

// ScoreSlip marks each prediction against results and returns the hit count.
// A prediction whose match has no result counts as a miss.
func ScoreSlip(slip *domain.BetSlip, results map[uuid.UUID]domain.MatchResult) int {
	hits := 0
	for i := range slip.Predictions {
		p := &slip.Predictions[i]
		res, ok := results[p.MatchID]
		correct := ok && res == p.Prediction
		p.IsCorrect = &correct
		if correct {
			hits++
		}
	}
	slip.TotalAcertos = &hits
	return hits
}

// Award is one winning slip's prize.
type Award struct {
	SlipID uuid.UUID
	UserID uuid.UUID
	Hits   int
	Amount int64
}

// Plan is the full outcome of a distribution before anything is written.
type Plan struct {
	domain.DistributionResult
	Awards []Award
}

// share returns floor(amount * s) in centavos.
func share(amount int64, s decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(s).Floor().IntPart()
}

// PlanDistribution splits a round's revenue. Every figure is floored to the
// centavo. A tier with no winners is forfeited into Unclaimed; the centavos lost
// to equal splits are reported as RoundingRemainder.
func PlanDistribution(roundID uuid.UUID, slips []domain.BetSlip) (*Plan, error) {
	var revenue int64
	byHits := make(map[int][]domain.BetSlip)
	for _, s := range slips {
		if s.TotalAcertos == nil {
			return nil, domain.ErrInvalidRoundState(fmt.Sprintf("bet slip %s has no hit count", s.ID))
		}
		revenue += s.Price
		byHits[*s.TotalAcertos] = append(byHits[*s.TotalAcertos], s)
	}

	pool := share(revenue, PrizePoolShare)
	plan := &Plan{
		DistributionResult: domain.DistributionResult{
			RoundID:             roundID,
			TotalRevenue:        revenue,
			PrizePool:           pool,
			ReserveContribution: share(revenue, ReserveFundShare),
			WinnerCounts:        make(map[int]int, len(Tiers)),
		},
	}

	var budgeted int64
	for _, tier := range Tiers {
		budget := share(pool, tier.Share)
		budgeted += budget
		winners := byHits[tier.Hits]
		sort.Slice(winners, func(i, j int) bool { return winners[i].ID.String() < winners[j].ID.String() })

		tp := domain.TierPayout{Hits: tier.Hits, Budget: budget, Winners: len(winners)}
		plan.WinnerCounts[tier.Hits] = len(winners)

		if len(winners) == 0 {
			plan.Unclaimed += budget
			plan.Tiers = append(plan.Tiers, tp)
			continue
		}

		tp.IndividualPrize = budget / int64(len(winners))
		tp.Paid = tp.IndividualPrize * int64(len(winners))
		plan.TotalPaid += tp.Paid
		plan.Tiers = append(plan.Tiers, tp)

		if tp.IndividualPrize == 0 {
			continue
		}
		for _, w := range winners {
			plan.Awards = append(plan.Awards, Award{SlipID: w.ID, UserID: w.UserID, Hits: tier.Hits, Amount: tp.IndividualPrize})
		}
	}

	plan.RoundingRemainder = pool - plan.TotalPaid - plan.Unclaimed
	return plan, nil
}
