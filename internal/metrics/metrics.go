// Package metrics holds the prometheus collectors for the ledger and the
// request lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/congo-pay/p2p_wallet/internal/ledger"
)

const namespace = "p2p_wallet"

// Metrics implements ledger.Observer and records request and reversal events.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec
	requestTransitions *prometheus.CounterVec
	reversalsTotal     *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations partitioned by operation, kind and outcome.",
			},
			[]string{"op", "kind", "outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Wall time of ledger operations including retries.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"op"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "conflict_retries_total",
				Help:      "Attempts retried after a concurrency conflict.",
			},
			[]string{"op"},
		),
		requestTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "transitions_total",
				Help:      "Request lifecycle events by kind and resulting status.",
			},
			[]string{"kind", "status"},
		),
		reversalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reversal",
				Name:      "attempts_total",
				Help:      "Administrative reversal attempts by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

var _ ledger.Observer = (*Metrics)(nil)

// ObserveOperation implements ledger.Observer.
func (m *Metrics) ObserveOperation(op string, kind ledger.Kind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(op, string(kind), outcome).Inc()
	m.operationDuration.WithLabelValues(op).Observe(took.Seconds())
}

// ObserveRetry implements ledger.Observer.
func (m *Metrics) ObserveRetry(op string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(op).Inc()
}

// ObserveRequest counts a request entering status.
func (m *Metrics) ObserveRequest(kind, status string) {
	if m == nil {
		return
	}
	m.requestTransitions.WithLabelValues(kind, status).Inc()
}

// ObserveReversal counts a reversal attempt.
func (m *Metrics) ObserveReversal(err error) {
	if m == nil {
		return
	}
	m.reversalsTotal.WithLabelValues(ledger.Outcome(err)).Inc()
}
