// Package metrics declares the Prometheus metrics of the thumbnail service
// and the observers that feed them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnailer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Decoder metrics
var (
	DecoderRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_decoder_runs_total",
			Help: "Total number of decoder invocations by strategy and outcome",
		},
		[]string{"strategy", "outcome"}, // outcome: accepted, rejected, exit, timeout, spawn
	)

	DecoderRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnailer_decoder_run_duration_seconds",
			Help:    "Decoder invocation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		},
		[]string{"strategy"},
	)
)

// Pipeline metrics
var (
	StrategyRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_strategy_runs_total",
			Help: "Total number of strategy runs by outcome",
		},
		[]string{"strategy", "outcome"}, // outcome: accepted, exhausted
	)

	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_fallback_total",
			Help: "Total number of fallback producer runs by outcome",
		},
		[]string{"producer", "outcome"},
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_pipeline_runs_total",
			Help: "Total number of extraction requests by outcome",
		},
		[]string{"outcome"}, // outcome: extracted, fallback, empty, error
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thumbnailer_pipeline_duration_seconds",
			Help:    "Extraction request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
	)

	PipelinesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnailer_pipelines_in_flight",
			Help: "Number of extraction requests currently running",
		},
	)
)

// Temp file metrics
var (
	TempFilesRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_temp_files_removed_total",
			Help: "Total number of temp file deletions by outcome",
		},
		[]string{"outcome"}, // outcome: ok, failed
	)
)

// Job metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnailer_jobs_total",
			Help: "Total number of jobs by final status",
		},
		[]string{"status"},
	)
)
