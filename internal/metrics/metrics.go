package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Monitoring core metrics for production observability
var (
	// Ingestion metrics
	PredictionsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelwatch_predictions_ingested_total",
			Help: "Total number of prediction events appended",
		},
		[]string{"model_version", "status"}, // status: ok/out_of_order/rejected
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modelwatch_ingest_duration_seconds",
			Help:    "Prediction append duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~2s
		},
	)

	// Detector metrics
	DetectorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelwatch_detector_runs_total",
			Help: "Total number of detector evaluations",
		},
		[]string{"kind", "outcome"}, // outcome: flagged/clean/degenerate
	)

	DetectorScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelwatch_detector_score",
			Help: "Latest detector score per metric and kind",
		},
		[]string{"metric", "kind"},
	)

	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelwatch_evaluation_duration_seconds",
			Help:    "Full evaluation cycle duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"trigger"}, // trigger: submit/manual
	)

	// Alert metrics
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelwatch_alerts_total",
			Help: "Total number of alerts recorded",
		},
		[]string{"type", "severity", "outcome"}, // outcome: created/refreshed
	)

	AlertsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelwatch_alerts_open",
			Help: "Unacknowledged alerts currently stored",
		},
	)

	// Query surface metrics
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelwatch_cache_requests_total",
			Help: "Facade cache lookups",
		},
		[]string{"result"}, // result: hit/miss
	)

	// Retraining metrics
	RetrainDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelwatch_retrain_decisions_total",
			Help: "Retraining trigger evaluations",
		},
		[]string{"decision"}, // decision: retrain/hold
	)
)
