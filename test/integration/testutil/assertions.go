//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
)

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// AssertErrorCode checks that the response body contains the expected error code.
func AssertErrorCode(t *testing.T, resp *http.Response, expectedCode string) {
	t.Helper()
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	DecodeJSON(t, resp, &errResp)
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, errResp.Code, errResp.Message)
	}
}

// WalletBalance reads a user's stored balance.
func WalletBalance(t *testing.T, env *TestEnv, userID uuid.UUID) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var balance int64
	if err := env.Pool.QueryRow(ctx,
		"SELECT balance FROM wallets WHERE user_id = $1", userID).Scan(&balance); err != nil {
		t.Fatalf("WalletBalance: %v", err)
	}
	return balance
}

// AssertBalance checks the stored balance and that it equals the sum of the
// wallet's SUCCESS ledger entries.
func AssertBalance(t *testing.T, env *TestEnv, userID uuid.UUID, expected int64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var balance, ledger int64
	err := env.Pool.QueryRow(ctx, `
		SELECT w.balance,
		       COALESCE(SUM(CASE WHEN t.type IN ('DEPOSIT','PRIZE','REFUND') THEN t.amount ELSE -t.amount END)
		                FILTER (WHERE t.status = 'SUCCESS'), 0)
		FROM wallets w
		LEFT JOIN transactions t ON t.wallet_id = w.id
		WHERE w.user_id = $1
		GROUP BY w.balance`, userID).Scan(&balance, &ledger)
	if err != nil {
		t.Fatalf("AssertBalance: query: %v", err)
	}
	if balance != expected {
		t.Errorf("balance: expected %d, got %d", expected, balance)
	}
	if ledger != balance {
		t.Errorf("ledger sum %d does not match balance %d", ledger, balance)
	}
}

// CountTransactions returns how many of the user's transactions have the
// given type and status.
func CountTransactions(t *testing.T, env *TestEnv, userID uuid.UUID, txType domain.TransactionType, status domain.TransactionStatus) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.user_id = $1 AND t.type = $2 AND t.status = $3`,
		userID, string(txType), string(status)).Scan(&count)
	if err != nil {
		t.Fatalf("CountTransactions: %v", err)
	}
	return count
}

// OrderStatus reads a payment order's stored status.
func OrderStatus(t *testing.T, env *TestEnv, orderID uuid.UUID) domain.PaymentOrderStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var status string
	if err := env.Pool.QueryRow(ctx,
		"SELECT status FROM payment_orders WHERE id = $1", orderID).Scan(&status); err != nil {
		t.Fatalf("OrderStatus: %v", err)
	}
	return domain.PaymentOrderStatus(status)
}

// ReserveFund reads the platform reserve balance.
func ReserveFund(t *testing.T, env *TestEnv) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var balance int64
	if err := env.Pool.QueryRow(ctx, "SELECT balance FROM reserve_fund WHERE id = 1").Scan(&balance); err != nil {
		t.Fatalf("ReserveFund: %v", err)
	}
	return balance
}

// CountOutboxEvents returns the number of outbox events of one type.
func CountOutboxEvents(t *testing.T, env *TestEnv, eventType domain.EventType) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_outbox WHERE "eventType" = $1`, string(eventType)).Scan(&count)
	if err != nil {
		t.Fatalf("CountOutboxEvents: %v", err)
	}
	return count
}
