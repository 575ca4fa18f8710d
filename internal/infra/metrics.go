package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus counters of the money core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	reconciliation *prometheus.CounterVec
	ledgerPostings *prometheus.CounterVec
	gatewayCalls   *prometheus.CounterVec
	webhooks       *prometheus.CounterVec
	distributions  prometheus.Counter
	outboxEvents   *prometheus.CounterVec
}

// NewMetrics creates the counters on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reconciliation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "palpitai_reconciliation_transitions_total",
			Help: "payment order transitions by observer and resulting status",
		}, []string{"source", "status"}),
		ledgerPostings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "palpitai_ledger_postings_total",
			Help: "SUCCESS ledger entries by transaction type",
		}, []string{"type"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "palpitai_gateway_calls_total",
			Help: "payment gateway calls by provider, operation and outcome",
		}, []string{"provider", "operation", "outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "palpitai_webhooks_received_total",
			Help: "payment webhooks by processing outcome",
		}, []string{"outcome"}),
		distributions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "palpitai_prize_distributions_total",
			Help: "rounds finalized by prize distribution",
		}),
		outboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "palpitai_outbox_events_total",
			Help: "outbox events by publish outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reconciliation, m.ledgerPostings, m.gatewayCalls, m.webhooks, m.distributions, m.outboxEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Reconciliation(source, status string) {
	if m == nil {
		return
	}
	m.reconciliation.WithLabelValues(source, status).Inc()
}

func (m *Metrics) LedgerPosting(txType string) {
	if m == nil {
		return
	}
	m.ledgerPostings.WithLabelValues(txType).Inc()
}

func (m *Metrics) GatewayCall(provider, operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gatewayCalls.WithLabelValues(provider, operation, outcome).Inc()
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PrizeDistribution() {
	if m == nil {
		return
	}
	m.distributions.Inc()
}

func (m *Metrics) OutboxEvent(outcome string) {
	if m == nil {
		return
	}
	m.outboxEvents.WithLabelValues(outcome).Inc()
}
