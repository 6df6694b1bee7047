// Package models defines the core data types shared across modelwatch.
//
// The monitoring core observes a deployed forecasting model: prediction
// events flow in from the serving layer, metric series are derived from
// them, detectors produce detection results, and the alert manager turns
// flagged results into persisted alerts.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DetectorKind identifies which detector produced a DetectionResult.
type DetectorKind string

const (
	KindAnomaly DetectorKind = "anomaly"
	KindDrift   DetectorKind = "drift"
	KindTrend   DetectorKind = "trend"
)

// AlertType classifies a persisted alert.
type AlertType string

const (
	AlertAnomaly      AlertType = "anomaly"
	AlertDistribution AlertType = "distribution"
	AlertTrend        AlertType = "trend"
	// AlertMultiSignal is synthesized when two or more distinct detector
	// kinds flag the same metric within one evaluation cycle.
	AlertMultiSignal AlertType = "multi_signal"
)

// Severity ranks alerts. Ordering matters: Info < Warning < Critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank returns the numeric ordering of a severity level.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Escalate returns the severity one level above s, capped at Critical.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityInfo:
		return SeverityWarning
	default:
		return SeverityCritical
	}
}

// Field is a single named numeric value. Slices of Field preserve the
// ordering the serving layer supplied, which maps do not.
type Field struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// PredictionEvent is one observed inference. Immutable once written;
// identified by the sequence id the store assigns on append.
type PredictionEvent struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	ModelVersion    string    `json:"model_version"`
	InputFeatures   []Field   `json:"input_features"`
	PredictedValues []Field   `json:"predicted_values"`
	// ActualValues is filled later if ground truth arrives; same shape as
	// PredictedValues.
	ActualValues []Field `json:"actual_values,omitempty"`
	// OutOfOrder marks an event whose timestamp regressed relative to the
	// last stored event for the same model version. Stored, never dropped.
	OutOfOrder bool `json:"out_of_order,omitempty"`
}

// MetricPoint is one observation in a metric series.
type MetricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// MetricSeries is a named, time-ordered sequence of scalar values derived
// from prediction events. Timestamps are strictly increasing per series.
type MetricSeries struct {
	Name   string        `json:"name"`
	Points []MetricPoint `json:"points"`
}

// Values returns the series values in time order.
func (s MetricSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Len returns the number of points in the series.
func (s MetricSeries) Len() int { return len(s.Points) }

// RollupBucket is one aggregated period of a metric series.
type RollupBucket struct {
	PeriodStart time.Time `json:"period_start"`
	Count       int       `json:"count"`
	Mean        float64   `json:"mean"`
	StdDev      float64   `json:"std_dev"`
}

// Evidence is the structured payload attached to a DetectionResult. Each
// detector kind has its own variant so the fields are statically known
// while still storable as generic JSON at the persistence boundary.
type Evidence interface {
	Kind() DetectorKind
}

// AnomalyEvidence explains a z-score detection.
type AnomalyEvidence struct {
	ZScore     float64 `json:"z_score"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	Value      float64 `json:"value"`
	Threshold  float64 `json:"threshold"`
	WindowSize int     `json:"window_size"`
	Reason     string  `json:"reason,omitempty"`
}

func (AnomalyEvidence) Kind() DetectorKind { return KindAnomaly }

// DriftEvidence explains a two-sample Kolmogorov-Smirnov detection.
type DriftEvidence struct {
	KSStatistic   float64 `json:"ks_statistic"`
	PValue        float64 `json:"p_value"`
	Alpha         float64 `json:"alpha"`
	ReferenceSize int     `json:"reference_size"`
	RecentSize    int     `json:"recent_size"`
	ReferenceMean float64 `json:"reference_mean"`
	RecentMean    float64 `json:"recent_mean"`
	Reason        string  `json:"reason,omitempty"`
}

func (DriftEvidence) Kind() DetectorKind { return KindDrift }

// TrendDirection classifies a metric's recent movement.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDegrading TrendDirection = "degrading"
	TrendStable    TrendDirection = "stable"
)

// TrendEvidence explains an OLS-slope trend classification.
type TrendEvidence struct {
	Slope      float64        `json:"slope"`
	Threshold  float64        `json:"threshold"`
	WindowSize int            `json:"window_size"`
	Direction  TrendDirection `json:"direction"`
	Reason     string         `json:"reason,omitempty"`
}

func (TrendEvidence) Kind() DetectorKind { return KindTrend }

// Detector evidence Reason values for degenerate-but-valid results.
const (
	ReasonInsufficientHistory = "insufficient_history"
	ReasonInsufficientSamples = "insufficient_samples"
	ReasonZeroVariance        = "zero_variance"
)

// DetectionResult is the output of a single detector run. Ephemeral
// unless it triggers an alert; persisted to monitoring_events either way
// so dashboards can show the latest evaluation per metric.
type DetectionResult struct {
	MetricName  string       `json:"metric_name"`
	Kind        DetectorKind `json:"detector_kind"`
	Score       float64      `json:"score"`
	Flagged     bool         `json:"is_flagged"`
	Evidence    Evidence     `json:"evidence"`
	EvaluatedAt time.Time    `json:"evaluated_at"`
}

// EvidenceJSON marshals the result's evidence for storage.
func (r DetectionResult) EvidenceJSON() string {
	if r.Evidence == nil {
		return "{}"
	}
	b, err := json.Marshal(r.Evidence)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// DecodeEvidence unmarshals a stored evidence payload into the variant
// matching the detector kind.
func DecodeEvidence(kind DetectorKind, raw string) (Evidence, error) {
	switch kind {
	case KindAnomaly:
		var ev AnomalyEvidence
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode anomaly evidence: %w", err)
		}
		return ev, nil
	case KindDrift:
		var ev DriftEvidence
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode drift evidence: %w", err)
		}
		return ev, nil
	case KindTrend:
		var ev TrendEvidence
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode trend evidence: %w", err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown detector kind %q", kind)
	}
}

// Alert is a persisted, deduplicated record of one or more corroborating
// detections. Never deleted; acknowledgment soft-closes it.
type Alert struct {
	ID           string    `json:"id"`
	Type         AlertType `json:"alert_type"`
	Severity     Severity  `json:"severity"`
	MetricName   string    `json:"metric_name"`
	DedupKey     string    `json:"dedup_key"`
	CreatedAt    time.Time `json:"created_at"`
	Acknowledged bool      `json:"acknowledged"`
	// Detail carries the triggering evidence as JSON.
	Detail string `json:"detail"`
}
