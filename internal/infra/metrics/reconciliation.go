package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		reconciliationRunsTotal,
		reconciliationDiscrepanciesTotal,
		reconciliationDurationSeconds,
	)
}

var (
	reconciliationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_runs_total",
			Help: "Reconciliation runs by provider and final status.",
		},
		[]string{"provider", "status"},
	)

	reconciliationDiscrepanciesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_discrepancies_total",
			Help: "Discrepancies found, labeled by type.",
		},
		[]string{"provider", "type"},
	)

	reconciliationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reconciliation_duration_seconds",
			Help:    "Wall time of a reconciliation run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"provider"},
	)
)

func ObserveReconciliationRun(provider, status string, elapsed time.Duration) {
	reconciliationRunsTotal.WithLabelValues(norm(provider), norm(status)).Inc()
	reconciliationDurationSeconds.WithLabelValues(norm(provider)).Observe(elapsed.Seconds())
}

func IncDiscrepancy(provider, typ string) {
	reconciliationDiscrepanciesTotal.WithLabelValues(norm(provider), norm(typ)).Inc()
}
