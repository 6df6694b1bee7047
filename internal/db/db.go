package db

import (
	"context"
	"time"

	"github.com/modelwatch/modelwatch/internal/models"
)

// Store is the persistence interface for the monitoring core. The
// concrete implementation is SQLite; the interface keeps the storage
// engine pluggable.
type Store interface {
	PredictionStore
	MonitoringEventStore
	AlertStore
	FeedbackStore
	RetrainingLogStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Predictions ─────────────────────────────────────────────────────────────

// PredictionRecord is the DB representation of a prediction event. The
// feature/prediction/actual payloads are stored as JSON to keep the
// schema stable as the model's feature set evolves.
type PredictionRecord struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	ModelVersion    string    `json:"model_version"`
	FeaturesJSON    string    `json:"features_json"`
	PredictionsJSON string    `json:"predictions_json"`
	ActualsJSON     string    `json:"actuals_json"`
	OutOfOrder      bool      `json:"out_of_order"`
}

// SeriesPoint is one (metric, timestamp, value) index entry derived from
// a prediction event.
type SeriesPoint struct {
	MetricName string
	Timestamp  time.Time
	Value      float64
}

// PredictionStore persists prediction events and their derived metric
// series index.
type PredictionStore interface {
	// AppendPrediction stores an event together with its series index
	// points in one transaction and returns the assigned sequence id.
	AppendPrediction(ctx context.Context, rec *PredictionRecord, points []SeriesPoint) (int64, error)

	// GetPrediction retrieves a single event by id.
	GetPrediction(ctx context.Context, id int64) (*PredictionRecord, error)

	// LatestPredictionTime returns the newest stored timestamp for a
	// model version. ok is false when no event exists yet.
	LatestPredictionTime(ctx context.Context, modelVersion string) (t time.Time, ok bool, err error)

	// UpdateActuals fills in ground-truth values for an event and appends
	// the residual series points derived from them.
	UpdateActuals(ctx context.Context, id int64, actualsJSON string, points []SeriesPoint) error

	// QuerySeries returns the (timestamp, value) pairs for a metric in
	// [since, until], oldest first. An empty range yields an empty slice,
	// not an error.
	QuerySeries(ctx context.Context, metricName string, since, until time.Time) ([]models.MetricPoint, error)

	// TailSeries returns the newest n points of a metric, oldest first.
	TailSeries(ctx context.Context, metricName string, n int) ([]models.MetricPoint, error)

	// MetricNames lists all metric names seen so far.
	MetricNames(ctx context.Context) ([]string, error)
}

// ─── Monitoring events ───────────────────────────────────────────────────────

// MonitoringEventRecord is a persisted detector run.
type MonitoringEventRecord struct {
	ID           int64               `json:"id"`
	MetricName   string              `json:"metric_name"`
	DetectorKind models.DetectorKind `json:"detector_kind"`
	Score        float64             `json:"score"`
	Flagged      bool                `json:"is_flagged"`
	EvidenceJSON string              `json:"evidence_json"`
	EvaluatedAt  time.Time           `json:"evaluated_at"`
}

// MonitoringEventQuery filters monitoring event queries.
type MonitoringEventQuery struct {
	MetricName   string
	DetectorKind models.DetectorKind
	FlaggedOnly  bool
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}

// MonitoringEventStore persists detector evaluation history.
type MonitoringEventStore interface {
	// AppendMonitoringEvent stores one detector run.
	AppendMonitoringEvent(ctx context.Context, rec *MonitoringEventRecord) error

	// LatestMonitoringEvent returns the most recent run for a metric and
	// detector kind. Returns nil, nil when none exists.
	LatestMonitoringEvent(ctx context.Context, metricName string, kind models.DetectorKind) (*MonitoringEventRecord, error)

	// QueryMonitoringEvents retrieves runs with optional filters, newest
	// first.
	QueryMonitoringEvents(ctx context.Context, q MonitoringEventQuery) ([]*MonitoringEventRecord, error)
}

// ─── Alerts ──────────────────────────────────────────────────────────────────

// AlertQuery filters alert listing.
type AlertQuery struct {
	Since        time.Time
	Severity     models.Severity
	Acknowledged *bool
	MetricName   string
	Limit        int
	Offset       int
}

// AlertStore persists the alert lifecycle. The dedup check and the
// insert/refresh must happen in one atomic unit so two concurrent
// evaluations cannot both create an alert for the same dedup key.
type AlertStore interface {
	// UpsertAlert applies the dedup policy in a single transaction: if an
	// unacknowledged alert with the same dedup key was created within the
	// active window, its detail and created_at are refreshed and the
	// existing row is returned with created=false. Otherwise the alert is
	// inserted and returned with created=true.
	UpsertAlert(ctx context.Context, alert *models.Alert, window time.Duration) (out *models.Alert, created bool, err error)

	// AcknowledgeAlert marks an alert acknowledged. Idempotent: already
	// acknowledged or unknown ids are a no-op.
	AcknowledgeAlert(ctx context.Context, id string) error

	// ListAlerts retrieves alerts with optional filters, newest first.
	ListAlerts(ctx context.Context, q AlertQuery) ([]*models.Alert, error)

	// GetAlert retrieves a single alert by id. Returns nil, nil when not
	// found.
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
}

// ─── Feedback ────────────────────────────────────────────────────────────────

// FeedbackRecord is ground-truth feedback on one prediction.
type FeedbackRecord struct {
	ID             int64     `json:"id"`
	PredictionID   int64     `json:"prediction_id"`
	MetricName     string    `json:"metric_name"`
	PredictedValue float64   `json:"predicted_value"`
	ActualValue    float64   `json:"actual_value"`
	// Status is one of "correct", "incorrect", "uncertain".
	Status    string    `json:"status"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedbackStore persists prediction feedback used by the retraining
// trigger.
type FeedbackStore interface {
	// AppendFeedback stores one feedback record.
	AppendFeedback(ctx context.Context, rec *FeedbackRecord) (int64, error)

	// FeedbackCount returns the number of feedback records since the
	// given time.
	FeedbackCount(ctx context.Context, since time.Time) (int, error)

	// FeedbackAccuracy returns the fraction of "correct" records since
	// the given time, in [0, 1]. ok is false when no feedback exists.
	FeedbackAccuracy(ctx context.Context, since time.Time) (accuracy float64, ok bool, err error)
}

// ─── Retraining log ──────────────────────────────────────────────────────────

// RetrainingLogRecord tracks one retraining trigger decision.
type RetrainingLogRecord struct {
	ID            int64     `json:"id"`
	Reason        string    `json:"reason"`
	FeedbackCount int       `json:"feedback_count"`
	DriftScore    float64   `json:"drift_score"`
	AccuracyDrop  float64   `json:"accuracy_drop"`
	Confidence    float64   `json:"confidence"`
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
}

// RetrainingLogStore persists retraining trigger history.
type RetrainingLogStore interface {
	// AppendRetrainingLog stores one trigger decision.
	AppendRetrainingLog(ctx context.Context, rec *RetrainingLogRecord) (int64, error)

	// ListRetrainingLog returns trigger decisions, newest first.
	ListRetrainingLog(ctx context.Context, limit int) ([]*RetrainingLogRecord, error)
}
