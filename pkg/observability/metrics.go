// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the tabula server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// ExecBuckets covers sandbox executions, from 1ms up to the default
// execution timeout.
var ExecBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabula_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// ActiveTurns tracks turns currently inside the generate-execute loop.
	ActiveTurns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabula_turns_active",
			Help: "Turns in progress",
		},
	)

	// ActiveSessions tracks live sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabula_sessions_active",
			Help: "Live sessions",
		},
	)

	// OracleRequestsTotal counts code generation requests by outcome.
	OracleRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_oracle_requests_total",
			Help: "Oracle requests",
		},
		[]string{"status"},
	)

	// OracleLatency records oracle latency in seconds.
	OracleLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabula_oracle_latency_seconds",
			Help:    "Oracle latency",
			Buckets: LLMBuckets,
		},
	)

	// OracleTokensTotal counts tokens processed by model and direction (input/output).
	OracleTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_oracle_tokens_total",
			Help: "Token count",
		},
		[]string{"model", "direction"},
	)

	// ExecutionsTotal counts sandbox executions by outcome (success/failure).
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_executions_total",
			Help: "Sandbox executions",
		},
		[]string{"outcome"},
	)

	// ExecutionDuration records sandbox execution time in seconds.
	ExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabula_execution_duration_seconds",
			Help:    "Sandbox execution duration",
			Buckets: ExecBuckets,
		},
	)

	// TurnsTotal counts finished turns by status.
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabula_turns_total",
			Help: "Finished turns",
		},
		[]string{"status"},
	)

	// TurnAttempts records how many oracle calls each turn needed.
	TurnAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabula_turn_attempts",
			Help:    "Attempts per turn",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ActiveTurns,
		ActiveSessions,
		OracleRequestsTotal,
		OracleLatency,
		OracleTokensTotal,
		ExecutionsTotal,
		ExecutionDuration,
		TurnsTotal,
		TurnAttempts,
	)
}
