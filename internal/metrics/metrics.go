// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CompletionsTotal counts successfully scored attempt completions.
	CompletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "osce_prep",
		Name:      "attempt_completions_total",
		Help:      "Number of attempts scored and finalized.",
	})

	// AggregationWarningsTotal counts non-fatal aggregation failures, by stage.
	AggregationWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "osce_prep",
		Name:      "aggregation_warnings_total",
		Help:      "Aggregation failures surfaced after a score was persisted.",
	}, []string{"stage"})

	// RankRecomputeSeconds observes the cost of the full-table rank rewrite,
	// the engine's known scaling bottleneck.
	RankRecomputeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "osce_prep",
		Name:      "rank_recompute_seconds",
		Help:      "Duration of global rank recomputation.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Handler serves the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
