//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
)

var cpfSeq atomic.Int64

// ValidCPF builds a CPF with correct check digits from n.
func ValidCPF(n int64) string {
	base := fmt.Sprintf("%09d", 100000000+n%800000000)
	digits := []byte(base)
	for _, size := range []int{9, 10} {
		sum := 0
		for i := 0; i < size; i++ {
			sum += int(digits[i]-'0') * (size + 1 - i)
		}
		d := (sum * 10) % 11
		if d == 10 {
			d = 0
		}
		digits = append(digits, byte('0'+d))
	}
	return string(digits)
}

// RegisterUser creates a user with a fresh CPF and returns the token and user ID.
func (env *TestEnv) RegisterUser(name, email, password string) (token string, userID uuid.UUID) {
	env.t.Helper()
	resp := env.POST("/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"cpf":      ValidCPF(cpfSeq.Add(1)),
		"password": password,
	}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		env.t.Fatalf("RegisterUser: expected 201, got %d", resp.StatusCode)
	}

	var result struct {
		Token  string    `json:"token"`
		UserID uuid.UUID `json:"userId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("RegisterUser: decode: %v", err)
	}
	return result.Token, result.UserID
}

// Login authenticates an existing account and returns its token.
func (env *TestEnv) Login(email, password string) string {
	env.t.Helper()
	resp := env.POST("/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("Login: expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("Login: decode: %v", err)
	}
	return result.Token
}

// AdminToken bootstraps the test admin and logs in as it.
func (env *TestEnv) AdminToken() string {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := env.App.Auth.EnsureAdmin(ctx, TestAdminEmail, TestAdminPassword); err != nil {
		env.t.Fatalf("AdminToken: ensure admin: %v", err)
	}
	return env.Login(TestAdminEmail, TestAdminPassword)
}

// Do performs a JSON request with an optional bearer token.
func (env *TestEnv) Do(method, path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("%s %s: encode: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// GET performs a GET request with optional auth token.
func (env *TestEnv) GET(path, token string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodGet, path, nil, token)
}

// POST performs a POST request with optional auth token.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodPost, path, body, token)
}

// PUT performs a PUT request with optional auth token.
func (env *TestEnv) PUT(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodPut, path, body, token)
}

// DELETE performs a DELETE request with optional auth token.
func (env *TestEnv) DELETE(path, token string) *http.Response {
	env.t.Helper()
	return env.Do(http.MethodDelete, path, nil, token)
}

// RawPOST performs a POST request with raw bytes and custom headers.
func (env *TestEnv) RawPOST(path string, body []byte, headers map[string]string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, bytes.NewReader(body))
	if err != nil {
		env.t.Fatalf("RawPOST %s: new request: %v", path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("RawPOST %s: %v", path, err)
	}
	return resp
}

// SetupGateway registers a Mercado Pago gateway backed by the fake and activates it.
func (env *TestEnv) SetupGateway(adminToken string, automaticWithdrawal bool) uuid.UUID {
	env.t.Helper()
	id := env.RegisterGateway(adminToken, env.Gateway, automaticWithdrawal)
	env.ActivateGateway(adminToken, id)
	return id
}

// RegisterGateway stores an inactive Mercado Pago gateway backed by fake.
func (env *TestEnv) RegisterGateway(adminToken string, fake *FakeGateway, automaticWithdrawal bool) uuid.UUID {
	env.t.Helper()
	resp := env.POST("/admin/gateways", map[string]interface{}{
		"name":                "Mercado Pago (fake)",
		"provider":            domain.GatewayMercadoPago,
		"credentials":         fake.Credentials(),
		"automaticWithdrawal": automaticWithdrawal,
	}, adminToken)
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		env.t.Fatalf("RegisterGateway: expected 201, got %d", resp.StatusCode)
	}
	var gw domain.Gateway
	DecodeJSON(env.t, resp, &gw)
	return gw.ID
}

// ActivateGateway makes id the active gateway.
func (env *TestEnv) ActivateGateway(adminToken string, id uuid.UUID) {
	env.t.Helper()
	resp := env.POST("/admin/gateways/"+id.String()+"/activate", nil, adminToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("ActivateGateway: expected 200, got %d", resp.StatusCode)
	}
}

// ExtraGateway starts another fake whose payment ids do not overlap env.Gateway's.
func (env *TestEnv) ExtraGateway() *FakeGateway {
	env.t.Helper()
	g := NewFakeGateway()
	g.nextID = 900000
	env.t.Cleanup(g.Server.Close)
	return g
}

// Deposit opens a Pix deposit and returns the order with its gateway id.
func (env *TestEnv) Deposit(token string, amount int64) (domain.DepositResult, string) {
	env.t.Helper()
	resp := env.POST("/wallet/deposit", map[string]int64{"amount": amount}, token)
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		env.t.Fatalf("Deposit: expected 201, got %d", resp.StatusCode)
	}
	var result domain.DepositResult
	DecodeJSON(env.t, resp, &result)
	return result, env.OrderExternalID(result.PaymentOrderID)
}

// OrderExternalID reads the gateway id stored on a payment order.
func (env *TestEnv) OrderExternalID(orderID uuid.UUID) string {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var externalID string
	if err := env.Pool.QueryRow(ctx,
		"SELECT external_id FROM payment_orders WHERE id = $1", orderID).Scan(&externalID); err != nil {
		env.t.Fatalf("OrderExternalID: %v", err)
	}
	return externalID
}

// PaymentStatus polls an order through the API.
func (env *TestEnv) PaymentStatus(token string, orderID uuid.UUID) domain.PaymentOrderStatus {
	env.t.Helper()
	resp := env.GET("/wallet/payment-status/"+orderID.String(), token)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		env.t.Fatalf("PaymentStatus: expected 200, got %d", resp.StatusCode)
	}
	var result domain.PaymentStatusResult
	DecodeJSON(env.t, resp, &result)
	return result.Status
}

// Fund deposits amount and has the fake approve it, crediting the wallet.
func (env *TestEnv) Fund(token string, amount int64) {
	env.t.Helper()
	order, externalID := env.Deposit(token, amount)
	env.Gateway.SetPaymentStatus(externalID, "approved")
	if status := env.PaymentStatus(token, order.PaymentOrderID); status != domain.OrderApproved {
		env.t.Fatalf("Fund: expected APPROVED, got %s", status)
	}
}

// CreateRound opens a 14-match round through the admin API.
func (env *TestEnv) CreateRound(adminToken, title string, endTime time.Time) domain.Round {
	env.t.Helper()
	start := time.Now().Add(-time.Hour)
	matches := make([]map[string]string, domain.MatchesPerRound)
	for i := range matches {
		matches[i] = map[string]string{
			"homeTeam": fmt.Sprintf("Casa %d", i+1),
			"awayTeam": fmt.Sprintf("Fora %d", i+1),
		}
	}
	resp := env.POST("/admin/rounds", map[string]interface{}{
		"title":     title,
		"startTime": start,
		"endTime":   endTime,
		"matches":   matches,
	}, adminToken)
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		env.t.Fatalf("CreateRound: expected 201, got %d", resp.StatusCode)
	}
	var round domain.Round
	DecodeJSON(env.t, resp, &round)
	return round
}

// Picks pairs each match of round with the given predictions, in position order.
func Picks(round domain.Round, results []domain.MatchResult) []domain.Prediction {
	preds := make([]domain.Prediction, len(round.Matches))
	for i, m := range round.Matches {
		preds[i] = domain.Prediction{MatchID: m.ID, Prediction: results[i]}
	}
	return preds
}

// Uniform returns a 14-long result list with every entry set to r.
func Uniform(r domain.MatchResult) []domain.MatchResult {
	out := make([]domain.MatchResult, domain.MatchesPerRound)
	for i := range out {
		out[i] = r
	}
	return out
}

// WithMisses copies results and flips the first n entries to a wrong outcome.
func WithMisses(results []domain.MatchResult, n int) []domain.MatchResult {
	out := append([]domain.MatchResult(nil), results...)
	for i := 0; i < n; i++ {
		if out[i] == domain.ResultHome {
			out[i] = domain.ResultAway
		} else {
			out[i] = domain.ResultHome
		}
	}
	return out
}

// PlaceBet submits a slip for round and returns the raw response.
func (env *TestEnv) PlaceBet(token string, round domain.Round, results []domain.MatchResult) *http.Response {
	env.t.Helper()
	return env.POST("/bets", map[string]interface{}{
		"roundId":     round.ID,
		"predictions": Picks(round, results),
	}, token)
}

// SetResults records the outcome of every match in round.
func (env *TestEnv) SetResults(adminToken string, round domain.Round, results []domain.MatchResult) {
	env.t.Helper()
	for i, m := range round.Matches {
		resp := env.PUT("/admin/matches/"+m.ID.String()+"/result", map[string]domain.MatchResult{"result": results[i]}, adminToken)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			env.t.Fatalf("SetResults: match %d: expected 200, got %d", m.Position, resp.StatusCode)
		}
	}
}
