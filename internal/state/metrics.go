package state

import "github.com/prometheus/client_golang/prometheus"

// Operation result labels.
const (
	resultOK            = "ok"
	resultError         = "error"
	resultNotConfigured = "not_configured"
)

var (
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lightswitch_state_operations_total",
			Help: "State store operations by outcome",
		},
		[]string{"operation", "result"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lightswitch_state_operation_duration_seconds",
			Help:    "Latency of state store operations including every tree round-trip",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	legacyMigrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lightswitch_state_legacy_migrations_total",
			Help: "Structured-path writes triggered by reading legacy flat keys",
		},
		[]string{"result"},
	)
	mirrorFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lightswitch_state_mirror_failures_total",
			Help: "Snapshot mirror publishes that failed after a successful write",
		},
	)
)

// MetricsCollectors returns collectors for the state store.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		operations,
		operationDuration,
		legacyMigrations,
		mirrorFailures,
	}
}
