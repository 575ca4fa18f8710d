//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookBody(externalID string) []byte {
	return []byte(fmt.Sprintf(`{"action":"payment.updated","type":"payment","data":{"id":"%s"}}`, externalID))
}

func postWebhook(t *testing.T, env *testutil.TestEnv, body []byte) {
	t.Helper()
	resp := env.RawPOST("/webhooks/payments", body, map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ack map[string]bool
	testutil.DecodeJSON(t, resp, &ack)
	assert.True(t, ack["ok"])
}

func approvedEvents(t *testing.T, env *testutil.TestEnv, orderID uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, env.Pool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM payment_events WHERE order_id = $1 AND to_status = 'APPROVED'", orderID).Scan(&n))
	return n
}

// ─── Webhook Tests (7) ─────────────────────────────────────────────────────

func TestWebhook_ApprovedCredits(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Ana", "ana@palpitai.com.br", "senha-forte-1")
	order, externalID := env.Deposit(token, 5000)
	env.Gateway.SetPaymentStatus(externalID, "approved")

	postWebhook(t, env, webhookBody(externalID))

	assert.Equal(t, domain.OrderApproved, testutil.OrderStatus(t, env, order.PaymentOrderID))
	testutil.AssertBalance(t, env, userID, 5000)

	var source string
	require.NoError(t, env.Pool.QueryRow(context.Background(),
		"SELECT source FROM payment_events WHERE order_id = $1 AND to_status = 'APPROVED'", order.PaymentOrderID).Scan(&source))
	assert.Equal(t, string(domain.SourceWebhook), source)
}

func TestWebhook_NumericTopLevelID(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Bia", "bia@palpitai.com.br", "senha-forte-1")
	order, externalID := env.Deposit(token, 5000)
	env.Gateway.SetPaymentStatus(externalID, "approved")

	// Fake ids are numeric, so the raw value is valid JSON.
	postWebhook(t, env, []byte(fmt.Sprintf(`{"id":%s,"topic":"payment"}`, externalID)))

	assert.Equal(t, domain.OrderApproved, testutil.OrderStatus(t, env, order.PaymentOrderID))
	testutil.AssertBalance(t, env, userID, 5000)
}

func TestWebhook_DuplicateDeliveryCreditsOnce(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Caio", "caio@palpitai.com.br", "senha-forte-1")
	order, externalID := env.Deposit(token, 5000)
	env.Gateway.SetPaymentStatus(externalID, "approved")

	for i := 0; i < 3; i++ {
		postWebhook(t, env, webhookBody(externalID))
	}

	testutil.AssertBalance(t, env, userID, 5000)
	assert.Equal(t, 1, testutil.CountTransactions(t, env, userID, domain.TxDeposit, domain.TxStatusSuccess))
	assert.Equal(t, 1, approvedEvents(t, env, order.PaymentOrderID))
}

func TestWebhook_PendingIsNoop(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Dani", "dani@palpitai.com.br", "senha-forte-1")
	order, externalID := env.Deposit(token, 5000)

	postWebhook(t, env, webhookBody(externalID))

	assert.Equal(t, domain.OrderPending, testutil.OrderStatus(t, env, order.PaymentOrderID))
	testutil.AssertBalance(t, env, userID, 0)
}

func TestWebhook_PaidJustBeforeExpiryCredits(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Gabi", "gabi@palpitai.com.br", "senha-forte-1")
	order, externalID := env.Deposit(token, 5000)

	// Paid in time, notified after expires_at.
	_, err := env.Pool.Exec(context.Background(),
		"UPDATE payment_orders SET expires_at = now() - interval '1 second' WHERE id = $1", order.PaymentOrderID)
	require.NoError(t, err)
	env.Gateway.SetPaymentStatus(externalID, "approved")

	postWebhook(t, env, webhookBody(externalID))

	assert.Equal(t, 1, env.Gateway.StatusQueries())
	assert.Equal(t, domain.OrderApproved, testutil.OrderStatus(t, env, order.PaymentOrderID))
	testutil.AssertBalance(t, env, userID, 5000)
	assert.Equal(t, 1, testutil.CountTransactions(t, env, userID, domain.TxDeposit, domain.TxStatusSuccess))
	assert.Equal(t, 1, approvedEvents(t, env, order.PaymentOrderID))
}

func TestWebhook_UnknownOrderAcknowledged(t *testing.T) {
	env := testutil.NewTestEnv(t)

	postWebhook(t, env, webhookBody("999999999"))
}

func TestWebhook_MalformedAcknowledged(t *testing.T) {
	env := testutil.NewTestEnv(t)

	postWebhook(t, env, []byte(`not json at all`))
	postWebhook(t, env, []byte(`{"data":{}}`))
}

// ─── Webhook + Poll Race Tests (1) ─────────────────────────────────────────

func TestWebhookAndPoll_ConcurrentApprovalCreditsOnce(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SetupGateway(env.AdminToken(), false)
	token, userID := env.RegisterUser("Enzo", "enzo@palpitai.com.br", "senha-forte-1")
	order, externalID := env.Deposit(token, 5000)
	env.Gateway.SetPaymentStatus(externalID, "approved")

	statusURL := env.Server.URL + "/wallet/payment-status/" + order.PaymentOrderID.String()
	webhookURL := env.Server.URL + "/webhooks/payments"

	const rounds = 5
	var wg sync.WaitGroup
	statuses := make(chan domain.PaymentOrderStatus, rounds)
	errs := make(chan error, 2*rounds)

	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, statusURL, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			var res domain.PaymentStatusResult
			if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
				errs <- err
				return
			}
			statuses <- res.Status
		}()
		go func() {
			defer wg.Done()
			resp, err := http.Post(webhookURL, "application/json", bytes.NewReader(webhookBody(externalID)))
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs <- fmt.Errorf("webhook status %d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()
	close(statuses)
	close(errs)

	for err := range errs {
		t.Errorf("request failed: %v", err)
	}
	for s := range statuses {
		assert.Equal(t, domain.OrderApproved, s)
	}

	assert.Equal(t, domain.OrderApproved, testutil.OrderStatus(t, env, order.PaymentOrderID))
	testutil.AssertBalance(t, env, userID, 5000)
	assert.Equal(t, 1, testutil.CountTransactions(t, env, userID, domain.TxDeposit, domain.TxStatusSuccess))
	assert.Equal(t, 1, approvedEvents(t, env, order.PaymentOrderID))
}
