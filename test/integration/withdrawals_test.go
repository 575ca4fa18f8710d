//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPixKey = "ana@palpitai.com.br"

func requestWithdrawal(t *testing.T, env *testutil.TestEnv, token string, amount int64) domain.WithdrawResult {
	t.Helper()
	resp := env.POST("/wallet/withdraw", map[string]interface{}{"amount": amount, "pixKey": testPixKey}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res domain.WithdrawResult
	testutil.DecodeJSON(t, resp, &res)
	return res
}

func reviewWithdrawal(t *testing.T, env *testutil.TestEnv, adminToken string, id uuid.UUID, action string) domain.Withdrawal {
	t.Helper()
	resp := env.POST("/admin/withdrawals/"+id.String()+"/"+action, nil, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode, action)
	var w domain.Withdrawal
	testutil.DecodeJSON(t, resp, &w)
	return w
}

// ─── Withdrawal Request Tests (3) ──────────────────────────────────────────

func TestWithdraw_DebitsImmediately(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Ana", "ana@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 5000)

	res := requestWithdrawal(t, env, token, 2000)

	assert.Equal(t, domain.WithdrawalPending, res.Status)
	assert.Equal(t, int64(3000), res.Balance)
	testutil.AssertBalance(t, env, userID, 3000)
	assert.Equal(t, 1, testutil.CountTransactions(t, env, userID, domain.TxWithdraw, domain.TxStatusSuccess))
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, domain.EventWithdrawalRequested))
}

func TestWithdraw_BelowMinimum(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Bia", "bia@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 5000)

	resp := env.POST("/wallet/withdraw", map[string]interface{}{"amount": 1999, "pixKey": testPixKey}, token)
	testutil.AssertStatus(t, resp, http.StatusBadRequest)
	testutil.AssertErrorCode(t, resp, domain.CodeBelowMinimum)
	testutil.AssertBalance(t, env, userID, 5000)
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.RegisterUser("Caio", "caio@palpitai.com.br", "senha-forte-1")

	resp := env.POST("/wallet/withdraw", map[string]interface{}{"amount": 2000, "pixKey": testPixKey}, token)
	testutil.AssertStatus(t, resp, http.StatusBadRequest)
	testutil.AssertErrorCode(t, resp, domain.CodeInsufficientFunds)
	testutil.AssertBalance(t, env, userID, 0)
}

// ─── Withdrawal Review Tests (6) ───────────────────────────────────────────

func TestWithdraw_RejectRefunds(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, false)
	token, userID := env.RegisterUser("Dani", "dani@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 2000)
	res := requestWithdrawal(t, env, token, 2000)
	testutil.AssertBalance(t, env, userID, 0)

	w := reviewWithdrawal(t, env, adminToken, res.WithdrawalID, "reject")

	assert.Equal(t, domain.WithdrawalRejected, w.Status)
	require.NotNil(t, w.RefundTransactionID)
	testutil.AssertBalance(t, env, userID, 2000)
	assert.Equal(t, 1, testutil.CountTransactions(t, env, userID, domain.TxRefund, domain.TxStatusSuccess))

	resp := env.POST("/admin/withdrawals/"+res.WithdrawalID.String()+"/reject", nil, adminToken)
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeInvalidState)
	testutil.AssertBalance(t, env, userID, 2000)
}

func TestWithdraw_ApproveManual(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, false)
	token, userID := env.RegisterUser("Enzo", "enzo@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 3000)
	res := requestWithdrawal(t, env, token, 2000)

	w := reviewWithdrawal(t, env, adminToken, res.WithdrawalID, "approve")

	assert.Equal(t, domain.WithdrawalApproved, w.Status)
	assert.Equal(t, domain.WithdrawalPayoutNone, w.PayoutStatus)
	assert.Nil(t, w.PayoutID)
	assert.Equal(t, 0, env.Gateway.PayoutCalls())
	testutil.AssertBalance(t, env, userID, 1000)

	// An approved withdrawal can no longer be rejected.
	resp := env.POST("/admin/withdrawals/"+res.WithdrawalID.String()+"/reject", nil, adminToken)
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeInvalidState)
}

func TestWithdraw_ApproveAutomaticPayout(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	gatewayID := env.SetupGateway(adminToken, true)
	token, _ := env.RegisterUser("Fabi", "fabi@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 3000)
	res := requestWithdrawal(t, env, token, 2500)

	w := reviewWithdrawal(t, env, adminToken, res.WithdrawalID, "approve")

	assert.Equal(t, domain.WithdrawalApproved, w.Status)
	assert.Equal(t, domain.WithdrawalPayoutPaid, w.PayoutStatus)
	require.NotNil(t, w.PayoutID)
	require.NotNil(t, w.GatewayID)
	assert.Equal(t, gatewayID, *w.GatewayID)
	assert.Equal(t, 1, env.Gateway.PayoutCalls())
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, domain.EventWithdrawalApproved))
}

func TestWithdraw_PayoutFailureReleases(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, true)
	token, userID := env.RegisterUser("Gil", "gil@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 3000)
	res := requestWithdrawal(t, env, token, 2000)
	env.Gateway.FailPayouts(true)

	resp := env.POST("/admin/withdrawals/"+res.WithdrawalID.String()+"/approve", nil, adminToken)
	testutil.AssertStatus(t, resp, http.StatusBadGateway)
	testutil.AssertErrorCode(t, resp, domain.CodeGateway)
	testutil.AssertBalance(t, env, userID, 1000)

	// Released back to PENDING, so it can be reviewed again.
	env.Gateway.FailPayouts(false)
	w := reviewWithdrawal(t, env, adminToken, res.WithdrawalID, "approve")
	assert.Equal(t, domain.WithdrawalApproved, w.Status)
	assert.Equal(t, domain.WithdrawalPayoutPaid, w.PayoutStatus)
}

func TestWithdraw_RetryPayoutAfterManualApproval(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, false)
	token, _ := env.RegisterUser("Hana", "hana@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 3000)
	res := requestWithdrawal(t, env, token, 2000)
	reviewWithdrawal(t, env, adminToken, res.WithdrawalID, "approve")

	env.Gateway.SetPayoutStatus("pending")
	w := reviewWithdrawal(t, env, adminToken, res.WithdrawalID, "retry-payout")
	assert.Equal(t, domain.WithdrawalPayoutPending, w.PayoutStatus)
	require.NotNil(t, w.PayoutID)

	env.Gateway.SetPayoutStatus("processed")
	resp := env.GET("/admin/withdrawals/"+res.WithdrawalID.String()+"/payout-status", adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.DecodeJSON(t, resp, &w)
	assert.Equal(t, domain.WithdrawalPayoutPaid, w.PayoutStatus)

	// Nothing left to retry once paid.
	resp = env.POST("/admin/withdrawals/"+res.WithdrawalID.String()+"/retry-payout", nil, adminToken)
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeInvalidState)
}

func TestWithdraw_ListFiltersByStatus(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, false)
	token, _ := env.RegisterUser("Ivo", "ivo@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 6000)
	first := requestWithdrawal(t, env, token, 2000)
	requestWithdrawal(t, env, token, 2000)
	reviewWithdrawal(t, env, adminToken, first.WithdrawalID, "reject")

	resp := env.GET("/admin/withdrawals?status=PENDING", adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending []domain.Withdrawal
	testutil.DecodeJSON(t, resp, &pending)
	assert.Len(t, pending, 1)

	resp = env.GET("/admin/withdrawals?status=BOGUS", adminToken)
	testutil.AssertStatus(t, resp, http.StatusBadRequest)
	testutil.AssertErrorCode(t, resp, domain.CodeValidation)
}

// ─── Stale Review Recovery Tests (3) ───────────────────────────────────────

// strandInProcessing leaves a withdrawal in PROCESSING as if an approval died
// mid-flight, optionally after its payout was already sent.
func strandInProcessing(t *testing.T, env *testutil.TestEnv, id uuid.UUID, gatewayID *uuid.UUID, payoutID *string, age string) {
	t.Helper()
	payout := domain.WithdrawalPayoutNone
	if payoutID != nil {
		payout = domain.WithdrawalPayoutPaid
	}
	_, err := env.Pool.Exec(context.Background(),
		`UPDATE withdrawals
		    SET status = 'PROCESSING', gateway_id = $2, payout_id = $3, payout_status = $4,
		        updated_at = now() - $5::interval
		  WHERE id = $1`,
		id, gatewayID, payoutID, string(payout), age)
	require.NoError(t, err)
}

func TestWithdraw_RecoverCompletesRecordedPayout(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	gatewayID := env.SetupGateway(adminToken, true)
	token, userID := env.RegisterUser("Joana", "joana@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 3000)
	res := requestWithdrawal(t, env, token, 2000)
	payoutID := "payout-recovered-1"
	strandInProcessing(t, env, res.WithdrawalID, &gatewayID, &payoutID, "10 minutes")

	w := reviewWithdrawal(t, env, adminToken, res.WithdrawalID, "recover")

	assert.Equal(t, domain.WithdrawalApproved, w.Status)
	require.NotNil(t, w.PayoutID)
	assert.Equal(t, payoutID, *w.PayoutID)
	assert.Equal(t, domain.WithdrawalPayoutPaid, w.PayoutStatus)
	assert.Equal(t, 0, env.Gateway.PayoutCalls())
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, domain.EventWithdrawalApproved))
	testutil.AssertBalance(t, env, userID, 1000)

	resp := env.POST("/admin/withdrawals/"+res.WithdrawalID.String()+"/recover", nil, adminToken)
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeInvalidState)
}

func TestWithdraw_RecoverWithoutPayoutReleases(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, true)
	token, userID := env.RegisterUser("Lucas", "lucas@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 2000)
	res := requestWithdrawal(t, env, token, 2000)
	strandInProcessing(t, env, res.WithdrawalID, nil, nil, "10 minutes")

	w := reviewWithdrawal(t, env, adminToken, res.WithdrawalID, "recover")
	assert.Equal(t, domain.WithdrawalPending, w.Status)
	assert.Nil(t, w.PayoutID)
	assert.Equal(t, 0, testutil.CountOutboxEvents(t, env, domain.EventWithdrawalApproved))

	w = reviewWithdrawal(t, env, adminToken, res.WithdrawalID, "reject")
	assert.Equal(t, domain.WithdrawalRejected, w.Status)
	testutil.AssertBalance(t, env, userID, 2000)
}

func TestWithdraw_RecoverRefusesFreshReview(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, true)
	token, userID := env.RegisterUser("Maya", "maya@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 2000)
	res := requestWithdrawal(t, env, token, 2000)
	strandInProcessing(t, env, res.WithdrawalID, nil, nil, "0 seconds")

	resp := env.POST("/admin/withdrawals/"+res.WithdrawalID.String()+"/recover", nil, adminToken)
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeInvalidState)

	// A PENDING withdrawal has nothing to recover either.
	_, err := env.Pool.Exec(context.Background(),
		`UPDATE withdrawals SET status = 'PENDING' WHERE id = $1`, res.WithdrawalID)
	require.NoError(t, err)
	resp = env.POST("/admin/withdrawals/"+res.WithdrawalID.String()+"/recover", nil, adminToken)
	testutil.AssertStatus(t, resp, http.StatusConflict)
	testutil.AssertErrorCode(t, resp, domain.CodeInvalidState)
	testutil.AssertBalance(t, env, userID, 0)
}
