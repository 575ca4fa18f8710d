package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchesPerRound is the fixed number of matches in every round.
const MatchesPerRound = 14

// RoundStatus is the round lifecycle: OPEN -> CLOSED -> FINALIZED.
// FINALIZED is terminal.
type RoundStatus string

const (
	RoundOpen      RoundStatus = "OPEN"
	RoundClosed    RoundStatus = "CLOSED"
	RoundFinalized RoundStatus = "FINALIZED"
)

// MatchResult is a 1X2 outcome: home win, draw, away win.
type MatchResult string

const (
	ResultHome MatchResult = "H"
	ResultDraw MatchResult = "D"
	ResultAway MatchResult = "A"
)

// Valid reports whether r is H, D or A.
func (r MatchResult) Valid() bool {
	return r == ResultHome || r == ResultDraw || r == ResultAway
}

// Round is a rounds row with its matches.
type Round struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	Status          RoundStatus `json:"status"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         time.Time   `json:"end_time"`
	PoolAmount      int64       `json:"pool_amount"`
	UnclaimedAmount int64       `json:"unclaimed_amount"`
	Matches         []Match     `json:"matches,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// AcceptsBets reports whether a bet may be placed at now.
func (r *Round) AcceptsBets(now time.Time) bool {
	return r.Status == RoundOpen && !now.After(r.EndTime)
}

// Match is a matches row. Result is set once.
type Match struct {
	ID        uuid.UUID    `json:"id"`
	RoundID   uuid.UUID    `json:"round_id"`
	Position  int          `json:"position"`
	HomeTeam  string       `json:"home_team"`
	AwayTeam  string       `json:"away_team"`
	StartTime time.Time    `json:"start_time"`
	Result    *MatchResult `json:"result,omitempty"`
}

// BetSlip is one user's complete entry for a round.
type BetSlip struct {
	ID           uuid.UUID      `json:"id"`
	UserID       uuid.UUID      `json:"user_id"`
	RoundID      uuid.UUID      `json:"round_id"`
	Price        int64          `json:"price"`
	TotalAcertos *int           `json:"total_acertos,omitempty"`
	PrizeAmount  int64          `json:"prize_amount"`
	Predictions  []BetSlipMatch `json:"predictions,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// BetSlipMatch is one prediction on a slip. IsCorrect is set by hit calculation.
type BetSlipMatch struct {
	ID         uuid.UUID   `json:"id"`
	BetSlipID  uuid.UUID   `json:"bet_slip_id"`
	MatchID    uuid.UUID   `json:"match_id"`
	Prediction MatchResult `json:"prediction"`
	IsCorrect  *bool       `json:"is_correct,omitempty"`
}

// Prediction is a single user pick submitted with placeBet.
type Prediction struct {
	MatchID    uuid.UUID   `json:"matchId"`
	Prediction MatchResult `json:"prediction"`
}

// TierPayout describes one prize tier of a distribution.
type TierPayout struct {
	Hits            int   `json:"hits"`
	Budget          int64 `json:"budget"`
	Winners         int   `json:"winners"`
	IndividualPrize int64 `json:"individual_prize"`
	Paid            int64 `json:"paid"`
}

// DistributionResult summarizes a round's prize distribution.
type DistributionResult struct {
	RoundID             uuid.UUID    `json:"round_id"`
	TotalRevenue        int64        `json:"total_revenue"`
	PrizePool           int64        `json:"prize_pool"`
	ReserveContribution int64        `json:"reserve_contribution"`
	Tiers               []TierPayout `json:"tiers"`
	WinnerCounts        map[int]int  `json:"winner_counts"`
	TotalPaid           int64        `json:"total_paid"`
	Unclaimed           int64        `json:"unclaimed"`
	RoundingRemainder   int64        `json:"rounding_remainder"`
}
