//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bettor struct {
	token  string
	userID uuid.UUID
}

// fundedBettor registers a user holding exactly one stake.
func fundedBettor(t *testing.T, env *testutil.TestEnv, name, email string) bettor {
	t.Helper()
	token, userID := env.RegisterUser(name, email, "senha-forte-1")
	env.Fund(token, 1000)
	return bettor{token: token, userID: userID}
}

func placeSlip(t *testing.T, env *testutil.TestEnv, b bettor, round domain.Round, picks []domain.MatchResult) domain.BetSlip {
	t.Helper()
	resp := env.PlaceBet(b.token, round, picks)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var slip domain.BetSlip
	testutil.DecodeJSON(t, resp, &slip)
	return slip
}

func calculate(t *testing.T, env *testutil.TestEnv, adminToken string, roundID uuid.UUID) *http.Response {
	t.Helper()
	return env.POST("/admin/prizes/"+roundID.String()+"/calculate", nil, adminToken)
}

func distribute(t *testing.T, env *testutil.TestEnv, adminToken string, roundID uuid.UUID) *http.Response {
	t.Helper()
	return env.POST("/admin/prizes/"+roundID.String()+"/distribute", nil, adminToken)
}

func roundStatus(t *testing.T, env *testutil.TestEnv, roundID uuid.UUID) domain.RoundStatus {
	t.Helper()
	var status string
	require.NoError(t, env.Pool.QueryRow(context.Background(),
		"SELECT status FROM rounds WHERE id = $1", roundID).Scan(&status))
	return domain.RoundStatus(status)
}

// ─── Distribution Tests (4) ────────────────────────────────────────────────

func TestDistribute_TopTierWinner(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, false)
	round := env.CreateRound(adminToken, "Rodada 1", time.Now().Add(24*time.Hour))

	results := testutil.Uniform(domain.ResultHome)
	ana := fundedBettor(t, env, "Ana", "ana@palpitai.com.br")
	bia := fundedBettor(t, env, "Bia", "bia@palpitai.com.br")
	caio := fundedBettor(t, env, "Caio", "caio@palpitai.com.br")
	placeSlip(t, env, ana, round, results)
	placeSlip(t, env, bia, round, testutil.WithMisses(results, 1))
	placeSlip(t, env, caio, round, testutil.Uniform(domain.ResultAway))

	env.SetResults(adminToken, round, results)

	resp := calculate(t, env, adminToken, round.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var closed domain.Round
	testutil.DecodeJSON(t, resp, &closed)
	assert.Equal(t, domain.RoundClosed, closed.Status)

	resp = distribute(t, env, adminToken, round.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res domain.DistributionResult
	testutil.DecodeJSON(t, resp, &res)

	assert.Equal(t, int64(3000), res.TotalRevenue)
	assert.Equal(t, int64(2100), res.PrizePool)
	assert.Equal(t, int64(75), res.ReserveContribution)
	assert.Equal(t, 1, res.WinnerCounts[14])
	assert.Equal(t, 1, res.WinnerCounts[13])
	assert.Equal(t, 0, res.WinnerCounts[12])
	assert.Equal(t, int64(1470+315), res.TotalPaid)
	assert.Equal(t, int64(315), res.Unclaimed)
	assert.Equal(t, int64(0), res.RoundingRemainder)
	assert.LessOrEqual(t, res.PrizePool+res.ReserveContribution, res.TotalRevenue)

	testutil.AssertBalance(t, env, ana.userID, 1470)
	testutil.AssertBalance(t, env, bia.userID, 315)
	testutil.AssertBalance(t, env, caio.userID, 0)
	assert.Equal(t, int64(75), testutil.ReserveFund(t, env))
	assert.Equal(t, domain.RoundFinalized, roundStatus(t, env, round.ID))
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, domain.EventRoundFinalized))

	var pool, unclaimed int64
	require.NoError(t, env.Pool.QueryRow(context.Background(),
		"SELECT pool_amount, unclaimed_amount FROM rounds WHERE id = $1", round.ID).Scan(&pool, &unclaimed))
	assert.Equal(t, int64(2100), pool)
	assert.Equal(t, int64(315), unclaimed)
}

func TestDistribute_EqualSplitFloorsToCentavo(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, false)
	round := env.CreateRound(adminToken, "Rodada 1", time.Now().Add(24*time.Hour))

	results := testutil.Uniform(domain.ResultDraw)
	ana := fundedBettor(t, env, "Ana", "ana@palpitai.com.br")
	bia := fundedBettor(t, env, "Bia", "bia@palpitai.com.br")
	caio := fundedBettor(t, env, "Caio", "caio@palpitai.com.br")
	placeSlip(t, env, ana, round, results)
	biaSlip := placeSlip(t, env, bia, round, testutil.WithMisses(results, 1))
	placeSlip(t, env, caio, round, testutil.WithMisses(results, 1))

	env.SetResults(adminToken, round, results)
	resp := calculate(t, env, adminToken, round.ID)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = distribute(t, env, adminToken, round.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res domain.DistributionResult
	testutil.DecodeJSON(t, resp, &res)

	// Tier 13 budget is 315 split two ways: 157 each, one centavo left over.
	require.Len(t, res.Tiers, 3)
	assert.Equal(t, 13, res.Tiers[1].Hits)
	assert.Equal(t, int64(315), res.Tiers[1].Budget)
	assert.Equal(t, int64(157), res.Tiers[1].IndividualPrize)
	assert.Equal(t, int64(1), res.RoundingRemainder)
	assert.Equal(t, res.PrizePool, res.TotalPaid+res.Unclaimed+res.RoundingRemainder)

	testutil.AssertBalance(t, env, ana.userID, 1470)
	testutil.AssertBalance(t, env, bia.userID, 157)
	testutil.AssertBalance(t, env, caio.userID, 157)

	resp = env.GET("/bets/"+biaSlip.ID.String(), bia.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var slip domain.BetSlip
	testutil.DecodeJSON(t, resp, &slip)
	require.NotNil(t, slip.TotalAcertos)
	assert.Equal(t, 13, *slip.TotalAcertos)
	assert.Equal(t, int64(157), slip.PrizeAmount)
}

func TestDistribute_OpenRoundRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, false)
	round := env.CreateRound(adminToken, "Rodada 1", time.Now().Add(24*time.Hour))
	ana := fundedBettor(t, env, "Ana", "ana@palpitai.com.br")
	placeSlip(t, env, ana, round, testutil.Uniform(domain.ResultHome))

	resp := distribute(t, env, adminToken, round.ID)
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeInvalidRoundState)

	testutil.AssertBalance(t, env, ana.userID, 0)
	assert.Equal(t, int64(0), testutil.ReserveFund(t, env))
	assert.Equal(t, domain.RoundOpen, roundStatus(t, env, round.ID))
}

func TestDistribute_SecondRunRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, false)
	round := env.CreateRound(adminToken, "Rodada 1", time.Now().Add(24*time.Hour))
	results := testutil.Uniform(domain.ResultAway)
	ana := fundedBettor(t, env, "Ana", "ana@palpitai.com.br")
	placeSlip(t, env, ana, round, results)

	env.SetResults(adminToken, round, results)
	resp := calculate(t, env, adminToken, round.ID)
	resp.Body.Close()
	resp = distribute(t, env, adminToken, round.ID)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance := testutil.WalletBalance(t, env, ana.userID)

	resp = distribute(t, env, adminToken, round.ID)
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeInvalidRoundState)
	testutil.AssertBalance(t, env, ana.userID, balance)
	assert.Equal(t, 1, testutil.CountTransactions(t, env, ana.userID, domain.TxPrize, domain.TxStatusSuccess))
}

// ─── Hit Calculation Tests (3) ─────────────────────────────────────────────

func TestCalculate_IncompleteResults(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	round := env.CreateRound(adminToken, "Rodada 1", time.Now().Add(24*time.Hour))

	partial := round
	partial.Matches = round.Matches[:13]
	env.SetResults(adminToken, partial, testutil.Uniform(domain.ResultHome))

	resp := calculate(t, env, adminToken, round.ID)
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeIncompleteResults)
	assert.Equal(t, domain.RoundOpen, roundStatus(t, env, round.ID))
}

func TestCalculate_FinalizedRoundRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	round := env.CreateRound(adminToken, "Rodada 1", time.Now().Add(24*time.Hour))
	env.SetResults(adminToken, round, testutil.Uniform(domain.ResultHome))

	resp := calculate(t, env, adminToken, round.ID)
	resp.Body.Close()
	resp = distribute(t, env, adminToken, round.ID)
	resp.Body.Close()
	require.Equal(t, domain.RoundFinalized, roundStatus(t, env, round.ID))

	resp = calculate(t, env, adminToken, round.ID)
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeInvalidRoundState)
}

func TestCalculate_ClosesBetting(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, false)
	round := env.CreateRound(adminToken, "Rodada 1", time.Now().Add(24*time.Hour))
	env.SetResults(adminToken, round, testutil.Uniform(domain.ResultHome))
	resp := calculate(t, env, adminToken, round.ID)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ana := fundedBettor(t, env, "Ana", "ana@palpitai.com.br")
	resp = env.PlaceBet(ana.token, round, testutil.Uniform(domain.ResultHome))
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeRoundClosed)
	testutil.AssertBalance(t, env, ana.userID, 1000)
}

// ─── Match Result Tests (1) ────────────────────────────────────────────────

func TestSetMatchResult_OnlyOnce(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	round := env.CreateRound(adminToken, "Rodada 1", time.Now().Add(24*time.Hour))
	path := "/admin/matches/" + round.Matches[0].ID.String() + "/result"

	resp := env.PUT(path, map[string]string{"result": "H"}, adminToken)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.PUT(path, map[string]string{"result": "A"}, adminToken)
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeConflict)

	resp = env.PUT(path, map[string]string{"result": "X"}, adminToken)
	testutil.AssertStatus(t, resp, http.StatusBadRequest)
	testutil.AssertErrorCode(t, resp, domain.CodeValidation)
}
