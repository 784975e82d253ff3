package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorRecordsTotal tracks records appended to the error store
	ErrorRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errwatch_error_records_total",
			Help: "Total number of error records appended",
		},
		[]string{"type", "severity"},
	)

	// StoreFallbacksTotal tracks appends that could not be persisted
	StoreFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "errwatch_store_fallbacks_total",
			Help: "Total number of error records written to the diagnostic fallback",
		},
	)

	// DetectionRunsTotal tracks detector passes
	DetectionRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "errwatch_detection_runs_total",
			Help: "Total number of detection passes",
		},
	)

	// DetectionFindingsTotal tracks findings per check
	DetectionFindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errwatch_detection_findings_total",
			Help: "Total number of findings produced by detector checks",
		},
		[]string{"check", "severity"},
	)

	// CheckFailuresTotal tracks sub-checks that failed internally
	CheckFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errwatch_check_failures_total",
			Help: "Total number of detector checks that failed and were skipped",
		},
		[]string{"check"},
	)

	// DetectionLatency tracks the duration of a detector pass
	DetectionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "errwatch_detection_latency_seconds",
			Help:    "Detection pass latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HealthChecksTotal tracks health verdicts per agent
	HealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errwatch_health_checks_total",
			Help: "Total number of agent health checks",
		},
		[]string{"agent", "healthy"},
	)

	// AgentErrorRate tracks the last computed error rate per agent
	AgentErrorRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "errwatch_agent_error_rate",
			Help: "Error rate from the latest health check",
		},
		[]string{"agent"},
	)

	// RecoveryActionsTotal tracks recovery decisions
	RecoveryActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errwatch_recovery_actions_total",
			Help: "Total number of recovery decisions",
		},
		[]string{"action"},
	)

	// RecoveryStrategies tracks the size of the strategy table
	RecoveryStrategies = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "errwatch_recovery_strategies",
			Help: "Number of strategies in the recovery table",
		},
	)

	// DBConnectionPoolUsage tracks SQL pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "errwatch_db_connection_pool_usage_percent",
			Help: "Open SQL connections as a percentage of the pool size",
		},
	)
)
