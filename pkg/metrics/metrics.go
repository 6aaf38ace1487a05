// Package metrics exposes the indexer's Prometheus instrumentation:
// blocks ingested, reorg depth, canonical updates emitted, and store
// batch latency, grounded on the `prometheus.NewRegistry` +
// `prometheus.New{Gauge,Counter,Histogram}` style used throughout the
// example pack's health-logging components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the indexer pipeline reports to.
type Metrics struct {
	Registry *prometheus.Registry

	BlocksIngested      prometheus.Counter
	BlocksDangling      prometheus.Counter
	ReorgDepth          prometheus.Histogram
	CanonicalUpdates    prometheus.Counter
	StoreBatchLatency   prometheus.Histogram
	LedgerApplyFailures prometheus.Counter
	EventLogLength      prometheus.Gauge
}

// New builds a Metrics instance and registers every collector with a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		BlocksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mina_core_blocks_ingested_total",
			Help: "Number of block files successfully decoded and processed.",
		}),
		BlocksDangling: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mina_core_blocks_dangling_total",
			Help: "Number of blocks dropped by the canonical-branch engine for lacking a known parent.",
		}),
		ReorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mina_core_reorg_depth",
			Help:    "Number of blocks demoted per canonical-branch reorganization.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		CanonicalUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mina_core_canonical_updates_total",
			Help: "Total canonicity transitions emitted by the canonical-branch engine.",
		}),
		StoreBatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mina_core_store_batch_commit_seconds",
			Help:    "Latency of committing one atomic store batch.",
			Buckets: prometheus.DefBuckets,
		}),
		LedgerApplyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mina_core_ledger_apply_failures_total",
			Help: "Number of ledger diff application/unapplication errors.",
		}),
		EventLogLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mina_core_event_log_length",
			Help: "Current length of the append-only event log.",
		}),
	}

	reg.MustRegister(
		m.BlocksIngested,
		m.BlocksDangling,
		m.ReorgDepth,
		m.CanonicalUpdates,
		m.StoreBatchLatency,
		m.LedgerApplyFailures,
		m.EventLogLength,
	)

	return m
}
