// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	artifactsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condenser_artifacts_total",
			Help: "Total number of artifacts persisted, labeled by source adapter.",
		},
		[]string{"source"},
	)

	summariesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "condenser_summaries_total",
			Help: "Total number of summary files written.",
		},
	)

	chunkFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "condenser_chunk_failures_total",
			Help: "Total number of chunks abandoned after a generation failure.",
		},
	)

	discoveryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condenser_discovery_errors_total",
			Help: "Total per-candidate discovery failures, labeled by class.",
		},
		[]string{"class"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "condenser_queue_depth",
			Help: "Current number of pending artifact references in the work queue.",
		},
	)

	summaryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "condenser_summary_duration_seconds",
			Help:    "Histogram of per-chunk summarization latencies.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveArtifact counts one persisted artifact for the given source.
func ObserveArtifact(source string) {
	artifactsTotal.WithLabelValues(source).Inc()
}

// ObserveSummary records one completed chunk summarization.
func ObserveSummary(duration time.Duration) {
	summariesTotal.Inc()
	summaryDuration.Observe(duration.Seconds())
}

// ObserveChunkFailure counts one abandoned chunk.
func ObserveChunkFailure() {
	chunkFailuresTotal.Inc()
}

// ObserveDiscoveryError counts one per-candidate failure by class.
func ObserveDiscoveryError(class string) {
	discoveryErrorsTotal.WithLabelValues(class).Inc()
}

// SetQueueDepth updates the queue gauge.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
