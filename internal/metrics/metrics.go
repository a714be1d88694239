package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	movementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_movements_total",
			Help: "Stock movements processed, by transaction type and outcome",
		},
		[]string{"txn_type", "outcome"},
	)

	postingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inventory_posting_duration_seconds",
			Help:    "Duration of stock ledger posting transactions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"txn_type"},
	)

	lockContentionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_lock_contention_total",
			Help: "Postings aborted by lock timeout, deadlock or serialization failure",
		},
	)

	allocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_allocations_total",
			Help: "Allocation requests, by strategy and outcome (full, partial, none)",
		},
		[]string{"strategy", "outcome"},
	)
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{movementsTotal, postingDuration, lockContentionTotal, allocationsTotal} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveMovement records one posting attempt.
func ObserveMovement(txnType, outcome string, started time.Time) {
	movementsTotal.WithLabelValues(txnType, outcome).Inc()
	postingDuration.WithLabelValues(txnType).Observe(time.Since(started).Seconds())
}

func IncLockContention() {
	lockContentionTotal.Inc()
}

func ObserveAllocation(strategy, outcome string) {
	allocationsTotal.WithLabelValues(strategy, outcome).Inc()
}
