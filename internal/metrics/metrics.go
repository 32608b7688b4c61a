// Package metrics exposes the indexer's Prometheus collectors. They register
// on the default registry and are served by the API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksProcessed counts blocks fully decoded, persisted, and published.
	BlocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventscope_blocks_processed_total",
		Help: "Blocks fully processed by the indexing pipeline",
	})

	// EventsDecoded counts decoded events by classified kind.
	EventsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventscope_events_decoded_total",
		Help: "Decoded events by kind",
	}, []string{"kind"})

	// BlockErrors counts per-block pipeline failures.
	BlockErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventscope_block_errors_total",
		Help: "Blocks whose decode/persist/publish sequence failed",
	})

	// CycleFailures counts poll cycles that failed after retry exhaustion.
	CycleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventscope_poll_cycle_failures_total",
		Help: "Poll cycles failed after exhausting chain retries",
	})

	// SaveDuration observes the per-block persistence transaction latency.
	SaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventscope_save_block_seconds",
		Help:    "Duration of the per-block persistence transaction",
		Buckets: prometheus.DefBuckets,
	})
)
