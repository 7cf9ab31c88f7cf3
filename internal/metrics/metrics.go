// Lodestar - Customer Lifetime Value and Segmentation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lodestar

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest Metrics
	IngestRowsRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lodestar_ingest_rows_read_total",
			Help: "Total number of rows read from the raw transaction log",
		},
	)

	IngestRowsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lodestar_ingest_rows_accepted_total",
			Help: "Total number of new transactions accepted after validation",
		},
	)

	IngestIncrements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lodestar_ingest_increments_total",
			Help: "Incremental loads by outcome",
		},
		[]string{"outcome"}, // "accepted", "empty", "rejected", "error"
	)

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lodestar_validation_failures_total",
			Help: "Failed expectations by name",
		},
		[]string{"expectation"},
	)

	WatermarkTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lodestar_watermark_timestamp_seconds",
			Help: "Unix time of the current ingestion watermark",
		},
	)

	// Pipeline Metrics
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lodestar_pipeline_runs_total",
			Help: "Pipeline runs by final status",
		},
		[]string{"status"}, // "succeeded", "skipped", "failed", "busy"
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lodestar_pipeline_duration_seconds",
			Help:    "Duration of complete pipeline runs",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lodestar_pipeline_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	PipelineLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lodestar_pipeline_last_success_timestamp_seconds",
			Help: "Unix time of the last successful pipeline run",
		},
	)

	FeatureRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lodestar_feature_table_rows",
			Help: "Customers in the most recently built feature table",
		},
	)

	// Model Metrics
	ModelFitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lodestar_model_fit_duration_seconds",
			Help:    "Duration of individual model fits",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	SegmentationCandidateScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lodestar_segmentation_candidate_silhouette",
			Help: "Silhouette score of each segmentation candidate in the last training run",
		},
		[]string{"family", "k"},
	)

	SegmentationCandidateFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lodestar_segmentation_candidate_failures_total",
			Help: "Segmentation candidates skipped because their fit failed",
		},
		[]string{"family"},
	)

	// Registry Metrics
	RegistryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lodestar_registry_operations_total",
			Help: "Model registry operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	RegistryCircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lodestar_registry_circuit_state",
			Help: "Registry circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lodestar_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lodestar_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordStage records the duration of one pipeline stage.
func RecordStage(stage string, duration time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordRun records a finished pipeline run.
func RecordRun(status string, duration time.Duration) {
	PipelineRuns.WithLabelValues(status).Inc()
	PipelineDuration.Observe(duration.Seconds())
	if status == "succeeded" {
		PipelineLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordCandidate records the outcome of one segmentation candidate.
// A non-nil err counts as a skipped candidate.
func RecordCandidate(family string, k int, score float64, err error) {
	if err != nil {
		SegmentationCandidateFailures.WithLabelValues(family).Inc()
		return
	}
	SegmentationCandidateScore.WithLabelValues(family, strconv.Itoa(k)).Set(score)
}

// RecordRegistry records a registry round-trip.
func RecordRegistry(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	RegistryOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// SetWatermark publishes the current watermark.
func SetWatermark(ts time.Time) {
	WatermarkTimestamp.Set(float64(ts.Unix()))
}
