package engine

import "github.com/prometheus/client_golang/prometheus"

// Pass outcomes.
const (
	OutcomeEmpty     = "empty"
	OutcomeOK        = "ok"
	OutcomePartial   = "partial"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

var SyncPasses = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "offcache",
	Subsystem: "sync",
	Name:      "passes_total",
	Help:      "Sync passes by outcome.",
}, []string{"collection", "outcome"})

var SyncRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "offcache",
	Subsystem: "sync",
	Name:      "records_total",
	Help:      "Pending ids reconciled, by result (commit or cancel).",
}, []string{"collection", "result"})

var SyncPassDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "offcache",
	Subsystem: "sync",
	Name:      "pass_duration_seconds",
	Help:      "Wall time of a sync pass.",
	Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
}, []string{"collection"})

// Collectors returns the engine's metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{SyncPasses, SyncRecords, SyncPassDuration}
}
