// Package alerting turns flagged detection results into persisted,
// deduplicated alerts and fans them out to notification sinks.
package alerting

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/internal/db"
	"github.com/modelwatch/modelwatch/internal/metrics"
	"github.com/modelwatch/modelwatch/internal/models"
)

// DefaultDedupWindow suppresses repeat alerts for the same metric and
// type within this span; a repeat refreshes the existing alert instead.
const DefaultDedupWindow = 24 * time.Hour

// notifyBuffer bounds the queue between Record and the sink goroutine.
const notifyBuffer = 64

// Sink receives newly created alerts. Implementations must tolerate
// delivery on a background goroutine.
type Sink interface {
	Notify(alert models.Alert)
}

// SeverityThresholds maps a detector score onto a severity level. The
// score must meet Warning to rank above Info and Critical to rank
// highest; thresholds are inclusive.
type SeverityThresholds struct {
	Warning  float64
	Critical float64
}

// Classify returns the severity for a score.
func (t SeverityThresholds) Classify(score float64) models.Severity {
	switch {
	case t.Critical > 0 && score >= t.Critical:
		return models.SeverityCritical
	case t.Warning > 0 && score >= t.Warning:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

// Config tunes the alert manager.
type Config struct {
	DedupWindow time.Duration
	Thresholds  map[models.DetectorKind]SeverityThresholds
}

// DefaultConfig mirrors the detector score conventions: anomaly scores
// are |z|, drift scores are 1-p, trend scores are |slope| (metric
// dependent, so trend defaults lean conservative).
func DefaultConfig() Config {
	return Config{
		DedupWindow: DefaultDedupWindow,
		Thresholds: map[models.DetectorKind]SeverityThresholds{
			models.KindAnomaly: {Warning: 3.0, Critical: 4.5},
			models.KindDrift:   {Warning: 0.95, Critical: 0.99},
			models.KindTrend:   {Warning: 0.01, Critical: 0.1},
		},
	}
}

// Manager records alerts against the store and notifies sinks.
type Manager struct {
	alerts db.AlertStore
	log    *zap.Logger
	cfg    Config
	sinks  []Sink

	notifyCh chan models.Alert
	done     chan struct{}
}

// NewManager wires an alert manager over the alert store. Close must be
// called to drain the notification queue.
func NewManager(alerts db.AlertStore, cfg Config, log *zap.Logger, sinks ...Sink) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = DefaultConfig().Thresholds
	}
	m := &Manager{
		alerts:   alerts,
		log:      log,
		cfg:      cfg,
		sinks:    sinks,
		notifyCh: make(chan models.Alert, notifyBuffer),
		done:     make(chan struct{}),
	}
	go m.notifyLoop()
	return m
}

// Record persists alerts for every flagged result in one evaluation
// cycle. When two or more distinct detector kinds flag the same metric,
// a multi-signal alert is synthesized one severity level above the
// strongest individual signal. Alerts deduplicate on
// metric|type|time-bucket: a repeat inside the window refreshes the
// existing unacknowledged alert. Returns the alerts as persisted.
func (m *Manager) Record(ctx context.Context, results []models.DetectionResult) ([]models.Alert, error) {
	flaggedByMetric := make(map[string][]models.DetectionResult)
	var names []string
	for _, r := range results {
		if !r.Flagged {
			continue
		}
		if _, seen := flaggedByMetric[r.MetricName]; !seen {
			names = append(names, r.MetricName)
		}
		flaggedByMetric[r.MetricName] = append(flaggedByMetric[r.MetricName], r)
	}
	sort.Strings(names)

	var out []models.Alert
	for _, metric := range names {
		group := flaggedByMetric[metric]

		maxSeverity := models.SeverityInfo
		kinds := make(map[models.DetectorKind]bool, len(group))
		for _, r := range group {
			severity := m.severityFor(r.Kind, r.Score)
			if severity.Rank() > maxSeverity.Rank() {
				maxSeverity = severity
			}
			kinds[r.Kind] = true

			alert := models.Alert{
				ID:         uuid.NewString(),
				Type:       alertTypeFor(r.Kind),
				Severity:   severity,
				MetricName: r.MetricName,
				CreatedAt:  r.EvaluatedAt.UTC(),
				Detail:     r.EvidenceJSON(),
			}
			alert.DedupKey = dedupKey(alert, m.cfg.DedupWindow)

			persisted, err := m.upsert(ctx, alert)
			if err != nil {
				return out, err
			}
			out = append(out, *persisted)
		}

		if len(kinds) >= 2 {
			multi, err := m.recordMultiSignal(ctx, metric, group, maxSeverity)
			if err != nil {
				return out, err
			}
			out = append(out, *multi)
		}
	}
	return out, nil
}

// Acknowledge soft-closes an alert. Acknowledging twice is a no-op,
// including for the open-alert gauge.
func (m *Manager) Acknowledge(ctx context.Context, id string) error {
	existing, err := m.alerts.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if err := m.alerts.AcknowledgeAlert(ctx, id); err != nil {
		return err
	}
	if existing != nil && !existing.Acknowledged {
		metrics.AlertsOpen.Dec()
	}
	return nil
}

// List returns stored alerts matching the query, newest first.
func (m *Manager) List(ctx context.Context, q db.AlertQuery) ([]*models.Alert, error) {
	return m.alerts.ListAlerts(ctx, q)
}

// Close stops the notification goroutine after draining queued alerts.
func (m *Manager) Close() {
	close(m.notifyCh)
	<-m.done
}

// ─── Internals ───────────────────────────────────────────────────────────────

func (m *Manager) severityFor(kind models.DetectorKind, score float64) models.Severity {
	if t, ok := m.cfg.Thresholds[kind]; ok {
		return t.Classify(score)
	}
	return models.SeverityInfo
}

func alertTypeFor(kind models.DetectorKind) models.AlertType {
	switch kind {
	case models.KindDrift:
		return models.AlertDistribution
	case models.KindTrend:
		return models.AlertTrend
	default:
		return models.AlertAnomaly
	}
}

// dedupKey buckets creation time by the dedup window so a burst of the
// same condition maps onto one key.
func dedupKey(alert models.Alert, window time.Duration) string {
	bucket := alert.CreatedAt.UTC().Truncate(window).Format(time.RFC3339)
	return alert.MetricName + "|" + string(alert.Type) + "|" + bucket
}

func (m *Manager) upsert(ctx context.Context, alert models.Alert) (*models.Alert, error) {
	persisted, created, err := m.alerts.UpsertAlert(ctx, &alert, m.cfg.DedupWindow)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.AlertsTotal.WithLabelValues(string(persisted.Type), string(persisted.Severity), "created").Inc()
		metrics.AlertsOpen.Inc()
		m.log.Info("alert created",
			zap.String("id", persisted.ID),
			zap.String("type", string(persisted.Type)),
			zap.String("severity", string(persisted.Severity)),
			zap.String("metric", persisted.MetricName))
		m.enqueueNotify(*persisted)
	} else {
		metrics.AlertsTotal.WithLabelValues(string(persisted.Type), string(persisted.Severity), "refreshed").Inc()
		m.log.Debug("alert refreshed",
			zap.String("id", persisted.ID),
			zap.String("metric", persisted.MetricName))
	}
	return persisted, nil
}

type multiSignalDetail struct {
	Kinds  []models.DetectorKind          `json:"kinds"`
	Scores map[models.DetectorKind]float64 `json:"scores"`
}

func (m *Manager) recordMultiSignal(ctx context.Context, metric string, group []models.DetectionResult, maxSeverity models.Severity) (*models.Alert, error) {
	detail := multiSignalDetail{Scores: make(map[models.DetectorKind]float64, len(group))}
	latest := group[0].EvaluatedAt
	for _, r := range group {
		if _, seen := detail.Scores[r.Kind]; !seen {
			detail.Kinds = append(detail.Kinds, r.Kind)
		}
		if r.Score > detail.Scores[r.Kind] {
			detail.Scores[r.Kind] = r.Score
		}
		if r.EvaluatedAt.After(latest) {
			latest = r.EvaluatedAt
		}
	}
	sort.Slice(detail.Kinds, func(i, j int) bool { return detail.Kinds[i] < detail.Kinds[j] })
	detailJSON, _ := json.Marshal(detail)

	alert := models.Alert{
		ID:         uuid.NewString(),
		Type:       models.AlertMultiSignal,
		Severity:   maxSeverity.Escalate(),
		MetricName: metric,
		CreatedAt:  latest.UTC(),
		Detail:     string(detailJSON),
	}
	alert.DedupKey = dedupKey(alert, m.cfg.DedupWindow)
	return m.upsert(ctx, alert)
}

// enqueueNotify hands the alert to the sink goroutine without blocking
// Record; a full queue drops the notification, never the alert itself.
func (m *Manager) enqueueNotify(alert models.Alert) {
	select {
	case m.notifyCh <- alert:
	default:
		m.log.Warn("notification queue full, dropping",
			zap.String("id", alert.ID),
			zap.String("metric", alert.MetricName))
	}
}

func (m *Manager) notifyLoop() {
	defer close(m.done)
	for alert := range m.notifyCh {
		for _, sink := range m.sinks {
			sink.Notify(alert)
		}
	}
}

// LogSink writes alert notifications to the application log.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Notify(alert models.Alert) {
	s.Log.Warn("alert notification",
		zap.String("id", alert.ID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.String("metric", alert.MetricName),
		zap.Time("created_at", alert.CreatedAt))
}
