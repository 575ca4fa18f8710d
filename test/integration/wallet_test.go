//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/infra"
	"github.com/palpitai/platform/internal/ledger"
	"github.com/palpitai/platform/internal/repository"
	"github.com/palpitai/platform/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Deposit Tests (6) ─────────────────────────────────────────────────────

func TestDeposit_CreatesPendingOrder(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Ana", "ana@palpitai.com.br", "senha-forte-1")

	order, externalID := env.Deposit(token, 5000)

	assert.Equal(t, int64(5000), order.Amount)
	assert.NotEmpty(t, order.PixCode)
	assert.NotEmpty(t, order.PixQrBase64)
	assert.True(t, order.ExpiresAt.After(time.Now()))
	assert.NotEmpty(t, externalID)
	assert.Equal(t, domain.OrderPending, testutil.OrderStatus(t, env, order.PaymentOrderID))
	assert.Equal(t, 1, testutil.CountTransactions(t, env, userID, domain.TxDeposit, domain.TxStatusPending))
	testutil.AssertBalance(t, env, userID, 0)
}

func TestDeposit_NoActiveGateway(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.RegisterUser("Bia", "bia@palpitai.com.br", "senha-forte-1")

	resp := env.POST("/wallet/deposit", map[string]int64{"amount": 5000}, token)
	testutil.AssertStatus(t, resp, http.StatusServiceUnavailable)
	testutil.AssertErrorCode(t, resp, domain.CodeNoActiveGateway)
	assert.Equal(t, 0, testutil.CountTransactions(t, env, userID, domain.TxDeposit, domain.TxStatusPending))
}

func TestDeposit_BelowMinimum(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, _ := env.RegisterUser("Caio", "caio@palpitai.com.br", "senha-forte-1")

	resp := env.POST("/wallet/deposit", map[string]int64{"amount": 999}, token)
	testutil.AssertStatus(t, resp, http.StatusBadRequest)
	testutil.AssertErrorCode(t, resp, domain.CodeBelowMinimum)
}

func TestDeposit_AboveSingleLimit(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, _ := env.RegisterUser("Dani", "dani@palpitai.com.br", "senha-forte-1")

	resp := env.POST("/wallet/deposit", map[string]int64{"amount": 500001}, token)
	testutil.AssertStatus(t, resp, http.StatusUnprocessableEntity)
	testutil.AssertErrorCode(t, resp, domain.CodeLimitExceeded)
}

func TestDeposit_GatewayFailureLeavesNothing(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Enzo", "enzo@palpitai.com.br", "senha-forte-1")
	env.Gateway.FailCharges(true)

	resp := env.POST("/wallet/deposit", map[string]int64{"amount": 5000}, token)
	testutil.AssertStatus(t, resp, http.StatusBadGateway)
	testutil.AssertErrorCode(t, resp, domain.CodeGateway)

	assert.Equal(t, 0, testutil.CountTransactions(t, env, userID, domain.TxDeposit, domain.TxStatusPending))
	var orders int
	require.NoError(t, env.Pool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM payment_orders WHERE user_id = $1", userID).Scan(&orders))
	assert.Equal(t, 0, orders)
}

func TestDeposit_ShowsInHistoryAfterApproval(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, _ := env.RegisterUser("Fabi", "fabi@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 5000)

	resp := env.GET("/wallet/me?type=DEPOSIT", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view struct {
		Balance      int64                `json:"balance"`
		Transactions []domain.Transaction `json:"transactions"`
	}
	testutil.DecodeJSON(t, resp, &view)
	assert.Equal(t, int64(5000), view.Balance)
	require.Len(t, view.Transactions, 1)
	assert.Equal(t, domain.TxStatusSuccess, view.Transactions[0].Status)
	require.NotNil(t, view.Transactions[0].BalanceAfter)
	assert.Equal(t, int64(5000), *view.Transactions[0].BalanceAfter)
}

// ─── Poll Reconciliation Tests (5) ─────────────────────────────────────────

func TestPoll_PendingStaysPending(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Gil", "gil@palpitai.com.br", "senha-forte-1")
	order, _ := env.Deposit(token, 5000)

	assert.Equal(t, domain.OrderPending, env.PaymentStatus(token, order.PaymentOrderID))
	assert.Equal(t, 1, env.Gateway.StatusQueries())
	testutil.AssertBalance(t, env, userID, 0)

	var checked *time.Time
	require.NoError(t, env.Pool.QueryRow(context.Background(),
		"SELECT checked_at FROM payment_orders WHERE id = $1", order.PaymentOrderID).Scan(&checked))
	assert.NotNil(t, checked)
}

func TestPoll_ApprovedCreditsOnce(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Hana", "hana@palpitai.com.br", "senha-forte-1")
	order, externalID := env.Deposit(token, 5000)
	env.Gateway.SetPaymentStatus(externalID, "approved")

	for i := 0; i < 3; i++ {
		assert.Equal(t, domain.OrderApproved, env.PaymentStatus(token, order.PaymentOrderID))
	}

	testutil.AssertBalance(t, env, userID, 5000)
	assert.Equal(t, 1, testutil.CountTransactions(t, env, userID, domain.TxDeposit, domain.TxStatusSuccess))
	// Terminal orders are answered from the database.
	assert.Equal(t, 1, env.Gateway.StatusQueries())
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, domain.EventPaymentOrderSettled))
}

func TestPoll_RejectedCancelsOrder(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Ivo", "ivo@palpitai.com.br", "senha-forte-1")
	order, externalID := env.Deposit(token, 5000)
	env.Gateway.SetPaymentStatus(externalID, "rejected")

	assert.Equal(t, domain.OrderCancelled, env.PaymentStatus(token, order.PaymentOrderID))
	testutil.AssertBalance(t, env, userID, 0)
	assert.Equal(t, 1, testutil.CountTransactions(t, env, userID, domain.TxDeposit, domain.TxStatusCancelled))
}

func TestPoll_ExpiredOrderNeverCallsGateway(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Jade", "jade@palpitai.com.br", "senha-forte-1")
	order, externalID := env.Deposit(token, 5000)

	_, err := env.Pool.Exec(context.Background(),
		"UPDATE payment_orders SET expires_at = now() - interval '1 minute' WHERE id = $1", order.PaymentOrderID)
	require.NoError(t, err)
	// Even a late approval at the gateway is ignored once the charge expired.
	env.Gateway.SetPaymentStatus(externalID, "approved")

	for i := 0; i < 3; i++ {
		assert.Equal(t, domain.OrderExpired, env.PaymentStatus(token, order.PaymentOrderID))
	}

	assert.Equal(t, 0, env.Gateway.StatusQueries())
	testutil.AssertBalance(t, env, userID, 0)
	assert.Equal(t, 1, testutil.CountTransactions(t, env, userID, domain.TxDeposit, domain.TxStatusFailed))
}

func TestPoll_OtherUsersOrderForbidden(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	owner, _ := env.RegisterUser("Kaio", "kaio@palpitai.com.br", "senha-forte-1")
	other, _ := env.RegisterUser("Lia", "lia@palpitai.com.br", "senha-forte-1")
	order, _ := env.Deposit(owner, 5000)

	resp := env.GET("/wallet/payment-status/"+order.PaymentOrderID.String(), other)
	testutil.AssertStatus(t, resp, http.StatusForbidden)
	testutil.AssertErrorCode(t, resp, domain.CodeForbidden)
}

// ─── Audit Tests (1) ───────────────────────────────────────────────────────

func TestAudit_BalanceMatchesLedger(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, false)
	token, userID := env.RegisterUser("Mel", "mel@palpitai.com.br", "senha-forte-1")
	env.Fund(token, 5000)
	env.Fund(token, 2500)

	resp := env.GET("/admin/reports/audit/"+userID.String(), adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report ledger.AuditReport
	testutil.DecodeJSON(t, resp, &report)
	assert.Equal(t, int64(7500), report.Balance)
	assert.Equal(t, int64(7500), report.Credits)
	assert.Equal(t, int64(0), report.Debits)
	assert.True(t, report.AllPassed, "%+v", report.Invariants)
}

func TestAudit_LateSettlementKeepsSnapshotParity(t *testing.T) {
	env := testutil.NewTestEnv(t)
	adminToken := env.AdminToken()
	env.SetupGateway(adminToken, false)
	token, userID := env.RegisterUser("Nina", "nina@palpitai.com.br", "senha-forte-1")
	ctx := context.Background()

	order, _ := env.Deposit(token, 2000)
	var pendingTxID uuid.UUID
	require.NoError(t, env.Pool.QueryRow(ctx,
		"SELECT transaction_id FROM payment_orders WHERE id = $1", order.PaymentOrderID).Scan(&pendingTxID))

	// A settlement whose database transaction started before a later posting.
	tx, err := env.Pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx, "SELECT 1")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	env.Fund(token, 1000)

	engine := ledger.NewEngine(repository.NewWalletRepository(), repository.NewTransactionRepository(),
		repository.NewOutboxRepository(), infra.NewMetrics())
	_, err = engine.ExecuteSettlePending(ctx, tx, pendingTxID)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	resp := env.GET("/admin/reports/audit/"+userID.String(), adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report ledger.AuditReport
	testutil.DecodeJSON(t, resp, &report)
	assert.Equal(t, int64(3000), report.Balance)
	assert.True(t, report.AllPassed, "%+v", report.Invariants)
}
