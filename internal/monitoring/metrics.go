// Package monitoring exposes the system's operational surface: prometheus
// instruments, point-in-time status snapshots, and threshold alerting posted
// to a webhook. Nothing here is load-bearing for call or gate semantics.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zamong25/AIS2025-sub001/internal/resilience"
)

var (
	// CallsTotal counts logical calls through the pipeline by outcome.
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delphi_calls_total",
			Help: "Total number of logical calls by outcome",
		},
		[]string{"service", "outcome"},
	)

	// CallDuration tracks logical call latency including retries.
	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delphi_call_duration_seconds",
			Help:    "Logical call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// AttemptsTotal counts underlying transport attempts.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delphi_transport_attempts_total",
			Help: "Total number of transport attempts",
		},
		[]string{"service"},
	)

	// FailuresTotal counts failed calls by failure kind.
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delphi_failures_total",
			Help: "Total number of failed calls by failure kind",
		},
		[]string{"service", "kind"},
	)

	// CircuitState reports the breaker state (0 closed, 1 half-open, 2 open).
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delphi_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"service"},
	)

	// ParseFailuresTotal counts responses that survived the call but failed
	// structured parsing.
	ParseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delphi_parse_failures_total",
			Help: "Total number of unparseable responses",
		},
		[]string{"service"},
	)

	// GateDecisionsTotal counts quality gate outcomes.
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delphi_gate_decisions_total",
			Help: "Total number of quality gate decisions",
		},
		[]string{"decision"},
	)

	// OverallConfidence reports the most recent cycle's weighted confidence.
	OverallConfidence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delphi_overall_confidence",
			Help: "Weighted overall confidence of the latest collection cycle",
		},
	)
)

// RecordCall instruments one finished logical call.
func RecordCall(service string, elapsed time.Duration, err error) {
	CallDuration.WithLabelValues(service).Observe(elapsed.Seconds())
	if err == nil {
		CallsTotal.WithLabelValues(service, "success").Inc()
		return
	}
	CallsTotal.WithLabelValues(service, "failure").Inc()
	FailuresTotal.WithLabelValues(service, resilience.ClassifyError(err)).Inc()
}

// RecordAttempt instruments one transport attempt.
func RecordAttempt(service string) {
	AttemptsTotal.WithLabelValues(service).Inc()
}

// RecordParseFailure instruments a response that failed structured parsing.
func RecordParseFailure(service string) {
	ParseFailuresTotal.WithLabelValues(service).Inc()
}

// RecordGate instruments one quality gate decision.
func RecordGate(proceed bool, confidence float64) {
	decision := "blocked"
	if proceed {
		decision = "proceed"
	}
	GateDecisionsTotal.WithLabelValues(decision).Inc()
	OverallConfidence.Set(confidence)
}

// SetCircuitState publishes the breaker state gauge.
func SetCircuitState(service string, state resilience.CircuitState) {
	var v float64
	switch state {
	case resilience.CircuitHalfOpen:
		v = 1
	case resilience.CircuitOpen:
		v = 2
	}
	CircuitState.WithLabelValues(service).Set(v)
}
