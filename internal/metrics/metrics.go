package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks guarded operations per outcome
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_operations_total",
			Help: "Total number of guarded operations",
		},
		[]string{"operation", "outcome"},
	)

	// RateLimitDecisions tracks limiter admissions and denials
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_ratelimit_decisions_total",
			Help: "Total number of rate limiter decisions",
		},
		[]string{"operation", "decision"},
	)

	// ErrorsHandled tracks recovery handler invocations
	ErrorsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_errors_handled_total",
			Help: "Total number of errors routed through recovery",
		},
		[]string{"kind", "severity"},
	)

	// RecoveryOutcomes tracks strategy execution results
	RecoveryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_recovery_outcomes_total",
			Help: "Total number of recovery strategy executions",
		},
		[]string{"strategy", "outcome"},
	)

	// ConnectionAttempts tracks connection attempts per strategy
	ConnectionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_connection_attempts_total",
			Help: "Total number of connection attempts",
		},
		[]string{"strategy", "outcome"},
	)

	// ConnectionUp reports whether the gateway session is established
	ConnectionUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keeper_connection_up",
			Help: "Whether the gateway connection is established (1) or not (0)",
		},
	)

	// CheckStatus reports the latest status per health check
	// (0 healthy, 1 warning, 2 unhealthy)
	CheckStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keeper_check_status",
			Help: "Latest health check status (0 healthy, 1 warning, 2 unhealthy)",
		},
		[]string{"check"},
	)

	// CheckLatency tracks health check probe latency
	CheckLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keeper_check_latency_seconds",
			Help:    "Health check probe latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"check"},
	)

	// ActiveAlerts reports the number of currently active alerts
	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keeper_active_alerts",
			Help: "Number of currently active health alerts",
		},
	)

	// SignalsTotal tracks signals published on the internal bus
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_signals_total",
			Help: "Total number of signals published on the internal bus",
		},
		[]string{"kind"},
	)

	// DBConnectionPoolUsage reports archive pool utilisation in percent
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keeper_db_pool_usage_percent",
			Help: "Archive database connection pool usage percentage",
		},
	)
)
