package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/modelwatch/modelwatch/internal/models"
)

// schema for the monitoring core. Version is tracked in schema_versions.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS predictions (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp        DATETIME NOT NULL,
    model_version    TEXT NOT NULL DEFAULT '',
    features_json    TEXT NOT NULL DEFAULT '{}',
    predictions_json TEXT NOT NULL DEFAULT '{}',
    actuals_json     TEXT NOT NULL DEFAULT '',
    out_of_order     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_predictions_version_ts ON predictions(model_version, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_predictions_ts         ON predictions(timestamp DESC);

CREATE TABLE IF NOT EXISTS metric_points (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    metric_name TEXT NOT NULL,
    timestamp   DATETIME NOT NULL,
    value       REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metric_points_name_ts ON metric_points(metric_name, timestamp ASC);

CREATE TABLE IF NOT EXISTS monitoring_events (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    metric_name   TEXT NOT NULL,
    detector_kind TEXT NOT NULL,
    score         REAL NOT NULL DEFAULT 0.0,
    is_flagged    INTEGER NOT NULL DEFAULT 0,
    evidence_json TEXT NOT NULL DEFAULT '{}',
    evaluated_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitoring_events_metric_kind ON monitoring_events(metric_name, detector_kind, evaluated_at DESC);
CREATE INDEX IF NOT EXISTS idx_monitoring_events_evaluated   ON monitoring_events(evaluated_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
    id           TEXT PRIMARY KEY,
    alert_type   TEXT NOT NULL,
    severity     TEXT NOT NULL DEFAULT 'info',
    metric_name  TEXT NOT NULL,
    dedup_key    TEXT NOT NULL,
    created_at   DATETIME NOT NULL,
    acknowledged INTEGER NOT NULL DEFAULT 0,
    detail_json  TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_alerts_dedup      ON alerts(dedup_key, acknowledged, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_severity   ON alerts(severity);
`,
	},
	// Migration 2: feedback + retraining_log for the retraining trigger.
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS feedback (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    prediction_id   INTEGER NOT NULL DEFAULT 0,
    metric_name     TEXT NOT NULL DEFAULT '',
    predicted_value REAL NOT NULL DEFAULT 0.0,
    actual_value    REAL NOT NULL DEFAULT 0.0,
    status          TEXT NOT NULL,
    comment         TEXT NOT NULL DEFAULT '',
    created_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback(created_at DESC);

CREATE TABLE IF NOT EXISTS retraining_log (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    reason         TEXT NOT NULL,
    feedback_count INTEGER NOT NULL DEFAULT 0,
    drift_score    REAL NOT NULL DEFAULT 0.0,
    accuracy_drop  REAL NOT NULL DEFAULT 0.0,
    confidence     REAL NOT NULL DEFAULT 0.0,
    status         TEXT NOT NULL DEFAULT 'pending',
    started_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_retraining_started_at ON retraining_log(started_at DESC);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path
// and runs all pending schema migrations. Pass ":memory:" for an
// in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// WAL mode lets readers proceed concurrently with the single writer.
	if _, err := sqlDB.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := sqlDB.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: sqlDB}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Predictions ─────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendPrediction(ctx context.Context, rec *PredictionRecord, points []SeriesPoint) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr(err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
        INSERT INTO predictions(timestamp, model_version, features_json, predictions_json, actuals_json, out_of_order)
        VALUES(?,?,?,?,?,?)
    `,
		rec.Timestamp.UTC(), rec.ModelVersion, rec.FeaturesJSON,
		rec.PredictionsJSON, rec.ActualsJSON, boolToInt(rec.OutOfOrder),
	)
	if err != nil {
		return 0, fmt.Errorf("insert prediction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("prediction id: %w", err)
	}

	for _, p := range points {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO metric_points(metric_name, timestamp, value) VALUES(?,?,?)
        `, p.MetricName, p.Timestamp.UTC(), p.Value); err != nil {
			return 0, fmt.Errorf("insert metric point %s: %w", p.MetricName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr(err)
	}
	rec.ID = id
	return id, nil
}

func (s *sqliteStore) GetPrediction(ctx context.Context, id int64) (*PredictionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,timestamp,model_version,features_json,predictions_json,actuals_json,out_of_order FROM predictions WHERE id=?`, id)
	rec := &PredictionRecord{}
	var ts string
	var ooo int
	if err := row.Scan(&rec.ID, &ts, &rec.ModelVersion, &rec.FeaturesJSON,
		&rec.PredictionsJSON, &rec.ActualsJSON, &ooo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Timestamp, _ = parseTime(ts)
	rec.OutOfOrder = ooo != 0
	return rec, nil
}

func (s *sqliteStore) LatestPredictionTime(ctx context.Context, modelVersion string) (time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT timestamp FROM predictions WHERE model_version=? ORDER BY timestamp DESC LIMIT 1`, modelVersion)
	var ts string
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, storageErr(err)
	}
	t, err := parseTime(ts)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (s *sqliteStore) UpdateActuals(ctx context.Context, id int64, actualsJSON string, points []SeriesPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE predictions SET actuals_json=? WHERE id=?`, actualsJSON, id); err != nil {
		return fmt.Errorf("update actuals: %w", err)
	}
	for _, p := range points {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO metric_points(metric_name, timestamp, value) VALUES(?,?,?)
        `, p.MetricName, p.Timestamp.UTC(), p.Value); err != nil {
			return fmt.Errorf("insert residual point %s: %w", p.MetricName, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) QuerySeries(ctx context.Context, metricName string, since, until time.Time) ([]models.MetricPoint, error) {
	query := `SELECT timestamp, value FROM metric_points WHERE metric_name = ?`
	args := []any{metricName}
	if !since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, since.UTC())
	}
	if !until.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, until.UTC())
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var points []models.MetricPoint
	for rows.Next() {
		var ts string
		var v float64
		if err := rows.Scan(&ts, &v); err != nil {
			return nil, err
		}
		t, _ := parseTime(ts)
		points = append(points, models.MetricPoint{Timestamp: t, Value: v})
	}
	return points, rows.Err()
}

func (s *sqliteStore) TailSeries(ctx context.Context, metricName string, n int) ([]models.MetricPoint, error) {
	if n <= 0 {
		n = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT timestamp, value FROM (
            SELECT timestamp, value FROM metric_points
            WHERE metric_name = ?
            ORDER BY timestamp DESC LIMIT ?
        ) ORDER BY timestamp ASC
    `, metricName, n)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var points []models.MetricPoint
	for rows.Next() {
		var ts string
		var v float64
		if err := rows.Scan(&ts, &v); err != nil {
			return nil, err
		}
		t, _ := parseTime(ts)
		points = append(points, models.MetricPoint{Timestamp: t, Value: v})
	}
	return points, rows.Err()
}

func (s *sqliteStore) MetricNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT metric_name FROM metric_points ORDER BY metric_name ASC`)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ─── Monitoring events ───────────────────────────────────────────────────────

func (s *sqliteStore) AppendMonitoringEvent(ctx context.Context, rec *MonitoringEventRecord) error {
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO monitoring_events(metric_name, detector_kind, score, is_flagged, evidence_json, evaluated_at)
        VALUES(?,?,?,?,?,?)
    `,
		rec.MetricName, string(rec.DetectorKind), rec.Score,
		boolToInt(rec.Flagged), rec.EvidenceJSON, rec.EvaluatedAt.UTC(),
	)
	if err != nil {
		return storageErr(err)
	}
	id, _ := result.LastInsertId()
	rec.ID = id
	return nil
}

func (s *sqliteStore) LatestMonitoringEvent(ctx context.Context, metricName string, kind models.DetectorKind) (*MonitoringEventRecord, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id,metric_name,detector_kind,score,is_flagged,evidence_json,evaluated_at
        FROM monitoring_events
        WHERE metric_name=? AND detector_kind=?
        ORDER BY evaluated_at DESC LIMIT 1
    `, metricName, string(kind))
	rec, err := scanMonitoringEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (s *sqliteStore) QueryMonitoringEvents(ctx context.Context, q MonitoringEventQuery) ([]*MonitoringEventRecord, error) {
	query := `SELECT id,metric_name,detector_kind,score,is_flagged,evidence_json,evaluated_at FROM monitoring_events WHERE 1=1`
	args := []any{}

	if q.MetricName != "" {
		query += ` AND metric_name = ?`
		args = append(args, q.MetricName)
	}
	if q.DetectorKind != "" {
		query += ` AND detector_kind = ?`
		args = append(args, string(q.DetectorKind))
	}
	if q.FlaggedOnly {
		query += ` AND is_flagged = 1`
	}
	if !q.From.IsZero() {
		query += ` AND evaluated_at >= ?`
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		query += ` AND evaluated_at <= ?`
		args = append(args, q.To.UTC())
	}
	query += ` ORDER BY evaluated_at DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var result []*MonitoringEventRecord
	for rows.Next() {
		rec, err := scanMonitoringEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func scanMonitoringEvent(row rowScanner) (*MonitoringEventRecord, error) {
	rec := &MonitoringEventRecord{}
	var ts, kind string
	var flagged int
	if err := row.Scan(&rec.ID, &rec.MetricName, &kind, &rec.Score, &flagged, &rec.EvidenceJSON, &ts); err != nil {
		return nil, err
	}
	rec.DetectorKind = models.DetectorKind(kind)
	rec.Flagged = flagged != 0
	rec.EvaluatedAt, _ = parseTime(ts)
	return rec, nil
}

// ─── Alerts ──────────────────────────────────────────────────────────────────

func (s *sqliteStore) UpsertAlert(ctx context.Context, alert *models.Alert, window time.Duration) (*models.Alert, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, storageErr(err)
	}
	defer tx.Rollback()

	cutoff := alert.CreatedAt.Add(-window).UTC()
	row := tx.QueryRowContext(ctx, `
        SELECT id FROM alerts
        WHERE dedup_key=? AND acknowledged=0 AND created_at >= ?
        ORDER BY created_at DESC LIMIT 1
    `, alert.DedupKey, cutoff)

	var existingID string
	err = row.Scan(&existingID)
	switch {
	case err == nil:
		// Refresh, not duplicate: repeat detection inside the window
		// updates the existing alert's detail and timestamp.
		if _, err := tx.ExecContext(ctx, `
            UPDATE alerts SET detail_json=?, created_at=?, severity=?, alert_type=? WHERE id=?
        `, alert.Detail, alert.CreatedAt.UTC(), string(alert.Severity), string(alert.Type), existingID); err != nil {
			return nil, false, fmt.Errorf("refresh alert: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, storageErr(err)
		}
		out := *alert
		out.ID = existingID
		return &out, false, nil

	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO alerts(id, alert_type, severity, metric_name, dedup_key, created_at, acknowledged, detail_json)
            VALUES(?,?,?,?,?,?,0,?)
        `, alert.ID, string(alert.Type), string(alert.Severity), alert.MetricName,
			alert.DedupKey, alert.CreatedAt.UTC(), alert.Detail); err != nil {
			return nil, false, fmt.Errorf("insert alert: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, storageErr(err)
		}
		out := *alert
		return &out, true, nil

	default:
		return nil, false, storageErr(err)
	}
}

func (s *sqliteStore) AcknowledgeAlert(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE alerts SET acknowledged=1 WHERE id=?`, id)
	if err != nil {
		return storageErr(err)
	}
	return nil
}

func (s *sqliteStore) ListAlerts(ctx context.Context, q AlertQuery) ([]*models.Alert, error) {
	query := `SELECT id,alert_type,severity,metric_name,dedup_key,created_at,acknowledged,detail_json FROM alerts WHERE 1=1`
	args := []any{}

	if !q.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, q.Since.UTC())
	}
	if q.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(q.Severity))
	}
	if q.Acknowledged != nil {
		query += ` AND acknowledged = ?`
		args = append(args, boolToInt(*q.Acknowledged))
	}
	if q.MetricName != "" {
		query += ` AND metric_name = ?`
		args = append(args, q.MetricName)
	}
	query += ` ORDER BY created_at DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var result []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *sqliteStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,alert_type,severity,metric_name,dedup_key,created_at,acknowledged,detail_json FROM alerts WHERE id=?`, id)
	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	a := &models.Alert{}
	var ts, alertType, severity string
	var ack int
	if err := row.Scan(&a.ID, &alertType, &severity, &a.MetricName, &a.DedupKey, &ts, &ack, &a.Detail); err != nil {
		return nil, err
	}
	a.Type = models.AlertType(alertType)
	a.Severity = models.Severity(severity)
	a.CreatedAt, _ = parseTime(ts)
	a.Acknowledged = ack != 0
	return a, nil
}

// ─── Feedback ────────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendFeedback(ctx context.Context, rec *FeedbackRecord) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO feedback(prediction_id, metric_name, predicted_value, actual_value, status, comment, created_at)
        VALUES(?,?,?,?,?,?,?)
    `,
		rec.PredictionID, rec.MetricName, rec.PredictedValue, rec.ActualValue,
		rec.Status, rec.Comment, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, storageErr(err)
	}
	id, _ := result.LastInsertId()
	rec.ID = id
	return id, nil
}

func (s *sqliteStore) FeedbackCount(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback WHERE created_at >= ?`, since.UTC()).Scan(&count)
	if err != nil {
		return 0, storageErr(err)
	}
	return count, nil
}

func (s *sqliteStore) FeedbackAccuracy(ctx context.Context, since time.Time) (float64, bool, error) {
	var total, correct int
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*), COALESCE(SUM(CASE WHEN status='correct' THEN 1 ELSE 0 END), 0)
        FROM feedback WHERE created_at >= ?
    `, since.UTC()).Scan(&total, &correct)
	if err != nil {
		return 0, false, storageErr(err)
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(correct) / float64(total), true, nil
}

// ─── Retraining log ──────────────────────────────────────────────────────────

func (s *sqliteStore) AppendRetrainingLog(ctx context.Context, rec *RetrainingLogRecord) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO retraining_log(reason, feedback_count, drift_score, accuracy_drop, confidence, status, started_at)
        VALUES(?,?,?,?,?,?,?)
    `,
		rec.Reason, rec.FeedbackCount, rec.DriftScore, rec.AccuracyDrop,
		rec.Confidence, rec.Status, rec.StartedAt.UTC(),
	)
	if err != nil {
		return 0, storageErr(err)
	}
	id, _ := result.LastInsertId()
	rec.ID = id
	return id, nil
}

func (s *sqliteStore) ListRetrainingLog(ctx context.Context, limit int) ([]*RetrainingLogRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id,reason,feedback_count,drift_score,accuracy_drop,confidence,status,started_at
        FROM retraining_log ORDER BY started_at DESC LIMIT ?
    `, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var result []*RetrainingLogRecord
	for rows.Next() {
		rec := &RetrainingLogRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.Reason, &rec.FeedbackCount, &rec.DriftScore,
			&rec.AccuracyDrop, &rec.Confidence, &rec.Status, &ts); err != nil {
			return nil, err
		}
		rec.StartedAt, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// storageErr wraps driver-level failures in the core's error taxonomy so
// callers can detect an unavailable substrate without matching driver
// strings.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
}

// parseTime handles the datetime formats SQLite hands back.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
