package infra

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.LedgerPosting("DEPOSIT")
	m.LedgerPosting("DEPOSIT")
	m.Reconciliation("webhook", "APPROVED")
	m.GatewayCall("MERCADOPAGO", "get_payment_status", nil)
	m.GatewayCall("MERCADOPAGO", "get_payment_status", errors.New("timeout"))
	m.Webhook("not_found")
	m.PrizeDistribution()

	body := scrape(t, m)
	assert.Contains(t, body, `palpitai_ledger_postings_total{type="DEPOSIT"} 2`)
	assert.Contains(t, body, `palpitai_reconciliation_transitions_total{source="webhook",status="APPROVED"} 1`)
	assert.Contains(t, body, `palpitai_gateway_calls_total{operation="get_payment_status",outcome="ok",provider="MERCADOPAGO"} 1`)
	assert.Contains(t, body, `palpitai_gateway_calls_total{operation="get_payment_status",outcome="error",provider="MERCADOPAGO"} 1`)
	assert.Contains(t, body, `palpitai_webhooks_received_total{outcome="not_found"} 1`)
	assert.Contains(t, body, `palpitai_prize_distributions_total 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LedgerPosting("BET")
		m.Reconciliation("poll", "EXPIRED")
		m.GatewayCall("EFIPAY", "create_pix_charge", nil)
		m.Webhook("ok")
		m.PrizeDistribution()
		m.OutboxEvent("published")
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
