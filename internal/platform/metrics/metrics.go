package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the retention engine.
type Metrics struct {
	DisposalsTotal        *prometheus.CounterVec
	DisposalFailuresTotal *prometheus.CounterVec
	DisposalDuration      prometheus.Histogram
	HoldsAppliedTotal     prometheus.Counter
	HoldsReleasedTotal    prometheus.Counter
	LedgerEntriesTotal    prometheus.Counter
	ChainVerifyFailures   prometheus.Counter
	PostureCacheHits      prometheus.Counter
	PostureCacheMisses    prometheus.Counter
	SweepRecordsProcessed prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		DisposalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_disposals_total",
			Help: "Successful disposals by method and action kind",
		}, []string{"method", "kind"}),
		DisposalFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_disposal_failures_total",
			Help: "Failed disposal attempts by failure stage",
		}, []string{"stage"}),
		DisposalDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodia_disposal_duration_seconds",
			Help:    "End-to-end disposal latency including destruction execution",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		HoldsAppliedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_holds_applied_total",
			Help: "Legal holds placed",
		}),
		HoldsReleasedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_holds_released_total",
			Help: "Legal holds released",
		}),
		LedgerEntriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_ledger_entries_total",
			Help: "Ledger entries appended",
		}),
		ChainVerifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_chain_verify_failures_total",
			Help: "Chain integrity verifications that found a broken link",
		}),
		PostureCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_posture_cache_hits_total",
			Help: "Posture cache hits",
		}),
		PostureCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_posture_cache_misses_total",
			Help: "Posture cache misses",
		}),
		SweepRecordsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_sweep_records_processed_total",
			Help: "Records processed by the scheduled disposal sweep",
		}),
	}
}

// ObserveDisposal records a successful disposal.
func (m *Metrics) ObserveDisposal(method, kind string, elapsed time.Duration) {
	m.DisposalsTotal.WithLabelValues(method, kind).Inc()
	m.DisposalDuration.Observe(elapsed.Seconds())
}
