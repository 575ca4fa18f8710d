//go:build integration

package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// FakeGatewayToken is the access token the fake Mercado Pago accepts.
const FakeGatewayToken = "TEST-fake-access-token"

// FakeGateway emulates the Mercado Pago payments and transaction-intents
// endpoints. Payment ids are numeric, as the real API returns them.
type FakeGateway struct {
	Server *httptest.Server

	mu            sync.Mutex
	nextID        int64
	payments      map[string]string
	intents       map[string]string
	payoutStatus  string
	failCharges   bool
	failPayouts   bool
	statusQueries int
	payoutCalls   int
}

// NewFakeGateway starts the fake. Close it with Server.Close.
func NewFakeGateway() *FakeGateway {
	g := &FakeGateway{
		nextID:       1000,
		payments:     make(map[string]string),
		intents:      make(map[string]string),
		payoutStatus: "processed",
	}

	r := chi.NewRouter()
	r.Use(g.requireToken)
	r.Post("/v1/payments", g.createPayment)
	r.Get("/v1/payments/{id}", g.getPayment)
	r.Post("/v1/transaction-intents/process", g.createIntent)
	r.Get("/v1/transaction-intents/{id}", g.getIntent)

	g.Server = httptest.NewServer(r)
	return g
}

// URL is the base URL to store in the gateway credentials.
func (g *FakeGateway) URL() string { return g.Server.URL }

// Credentials returns Mercado Pago credentials pointing at the fake.
func (g *FakeGateway) Credentials() map[string]string {
	return map[string]string{"accessToken": FakeGatewayToken, "baseUrl": g.Server.URL}
}

// SetPaymentStatus changes what the fake reports for a charge.
func (g *FakeGateway) SetPaymentStatus(externalID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[externalID] = status
}

// SetPayoutStatus sets the status returned for new and existing transfers.
func (g *FakeGateway) SetPayoutStatus(status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payoutStatus = status
	for id := range g.intents {
		g.intents[id] = status
	}
}

// FailCharges makes charge creation answer 500.
func (g *FakeGateway) FailCharges(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failCharges = fail
}

// FailPayouts makes transfer creation answer 500.
func (g *FakeGateway) FailPayouts(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failPayouts = fail
}

// StatusQueries counts GET /v1/payments/{id} calls.
func (g *FakeGateway) StatusQueries() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusQueries
}

// PayoutCalls counts transfer creation calls.
func (g *FakeGateway) PayoutCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.payoutCalls
}

func (g *FakeGateway) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+FakeGatewayToken {
			writeFake(w, http.StatusUnauthorized, map[string]string{"message": "invalid access token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *FakeGateway) createPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentMethodID string `json:"payment_method_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentMethodID != "pix" {
		writeFake(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}

	g.mu.Lock()
	if g.failCharges {
		g.mu.Unlock()
		writeFake(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
		return
	}
	g.nextID++
	id := g.nextID
	g.payments[fmt.Sprint(id)] = "pending"
	g.mu.Unlock()

	writeFake(w, http.StatusCreated, map[string]interface{}{
		"id":     id,
		"status": "pending",
		"point_of_interaction": map[string]interface{}{
			"transaction_data": map[string]string{
				"qr_code":        fmt.Sprintf("00020126580014br.gov.bcb.pix%d", id),
				"qr_code_base64": "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk",
			},
		},
	})
}

func (g *FakeGateway) getPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g.mu.Lock()
	g.statusQueries++
	status, ok := g.payments[id]
	g.mu.Unlock()
	if !ok {
		writeFake(w, http.StatusNotFound, map[string]string{"message": "payment not found"})
		return
	}
	writeFake(w, http.StatusOK, map[string]interface{}{"id": id, "status": status})
}

func (g *FakeGateway) createIntent(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(r.Header.Get("X-Idempotency-Key")) == "" {
		writeFake(w, http.StatusBadRequest, map[string]string{"message": "missing idempotency key"})
		return
	}

	g.mu.Lock()
	g.payoutCalls++
	if g.failPayouts {
		g.mu.Unlock()
		writeFake(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
		return
	}
	g.nextID++
	id := fmt.Sprintf("ti_%d", g.nextID)
	g.intents[id] = g.payoutStatus
	status := g.payoutStatus
	g.mu.Unlock()

	writeFake(w, http.StatusCreated, map[string]string{"id": id, "status": status})
}

func (g *FakeGateway) getIntent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g.mu.Lock()
	status, ok := g.intents[id]
	g.mu.Unlock()
	if !ok {
		writeFake(w, http.StatusNotFound, map[string]string{"message": "intent not found"})
		return
	}
	writeFake(w, http.StatusOK, map[string]string{"id": id, "status": status})
}

func writeFake(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
