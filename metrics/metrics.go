// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//   - things coming into or out of the system: requests, responses, buckets.
//   - the success or error status of any of the above.
//   - the distribution of processing latency.
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResponseCount counts response messages received from the query
	// service, per stream mode.
	//
	// Example usage:
	//   metrics.ResponseCount.WithLabelValues("bidi").Inc()
	ResponseCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dpquery_response_total",
			Help: "Number of response messages received.",
		}, []string{"mode"})

	// ErrorCount measures the number of errors, labeled by failure kind.
	//
	// Example usage:
	//   metrics.ErrorCount.WithLabelValues(kind.String()).Inc()
	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dpquery_error_total",
			Help: "The total number of errors encountered.",
		}, []string{"kind"})

	// BucketCount counts raw buckets folded into correlated blocks.
	BucketCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dpquery_bucket_total",
			Help: "Number of raw buckets correlated.",
		})

	// BufferDepthHistogram tracks the message buffer depth observed at
	// each offer.
	BufferDepthHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "dpquery_buffer_depth",
			Help: "message buffer depth distribution",
			Buckets: []float64{
				0, 1, 2, 3, 4, 5, 6, 8,
				10, 12.5, 16, 20, 25, 32, 40, 50, 63, 79,
				100, 125, 160, 200, 250, 320, 400, 500,
			},
		})

	// SuperDomainSizeHistogram tracks the number of correlated blocks
	// folded into each super domain.
	SuperDomainSizeHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dpquery_super_domain_size",
			Help:    "super domain block count distribution",
			Buckets: []float64{2, 3, 4, 5, 6, 8, 10, 16, 25, 40, 63, 100, math.Inf(+1)},
		})

	// QueryLatencyHistogram tracks end-to-end request latency per mode
	// (seconds).
	QueryLatencyHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dpquery_latency",
			Help: "query latency distribution (seconds)",
			Buckets: []float64{
				0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
				0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100,
			},
		}, []string{"mode"})

	// TableCellsHistogram tracks the total cell count of produced
	// tables.
	TableCellsHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "dpquery_table_cells",
			Help: "table size distribution (cells)",
			Buckets: prometheus.ExponentialBuckets(1, 10, 9),
		})

	// WorkerFailureCount counts stream workers ending in a non-success
	// terminal state.
	WorkerFailureCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dpquery_worker_failure_total",
			Help: "Number of stream workers ending rejected or errored.",
		}, []string{"state"})
)
