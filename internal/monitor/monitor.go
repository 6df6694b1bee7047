// Package monitor is the embedding surface of the monitoring core. The
// facade accepts prediction events, runs every detector for the touched
// metrics, records alerts and answers queries, so the host forecasting
// service only ever talks to this package.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/internal/alerting"
	"github.com/modelwatch/modelwatch/internal/cache"
	"github.com/modelwatch/modelwatch/internal/config"
	"github.com/modelwatch/modelwatch/internal/db"
	"github.com/modelwatch/modelwatch/internal/detector/anomaly"
	"github.com/modelwatch/modelwatch/internal/detector/drift"
	"github.com/modelwatch/modelwatch/internal/detector/trend"
	"github.com/modelwatch/modelwatch/internal/metrics"
	"github.com/modelwatch/modelwatch/internal/models"
	"github.com/modelwatch/modelwatch/internal/retrain"
	"github.com/modelwatch/modelwatch/internal/store"
)

// Facade orchestrates ingestion, evaluation, alerting and queries.
type Facade struct {
	predictions *store.PredictionStore
	db          db.Store
	alerts      *alerting.Manager
	trigger     *retrain.Trigger
	cache       cache.Cache
	log         *zap.Logger

	cfg config.Config
}

// New wires a facade from its components. The cache may be nil to
// disable read caching.
func New(cfg config.Config, storage db.Store, log *zap.Logger, sinks ...alerting.Sink) *Facade {
	if log == nil {
		log = zap.NewNop()
	}

	alertCfg := alerting.Config{
		DedupWindow: cfg.Alerting.DedupWindow(),
		Thresholds: map[models.DetectorKind]alerting.SeverityThresholds{
			models.KindAnomaly: {Warning: cfg.Alerting.Anomaly.Warning, Critical: cfg.Alerting.Anomaly.Critical},
			models.KindDrift:   {Warning: cfg.Alerting.Drift.Warning, Critical: cfg.Alerting.Drift.Critical},
			models.KindTrend:   {Warning: cfg.Alerting.Trend.Warning, Critical: cfg.Alerting.Trend.Critical},
		},
	}

	var readCache cache.Cache
	if cfg.Cache.Enabled {
		readCache = cache.NewTTL(cfg.Cache.TTL())
	}

	return &Facade{
		predictions: store.New(storage, log.Named("store")),
		db:          storage,
		alerts:      alerting.NewManager(storage, alertCfg, log.Named("alerting"), sinks...),
		trigger: retrain.NewTrigger(storage, retrain.Thresholds{
			MinFeedback:      cfg.Retrain.MinFeedback,
			DriftScore:       cfg.Retrain.DriftScore,
			AccuracyDrop:     cfg.Retrain.AccuracyDrop,
			BaselineAccuracy: cfg.Retrain.BaselineAccuracy,
			Lookback:         cfg.Retrain.Lookback(),
		}, log.Named("retrain")),
		cache: readCache,
		log:   log,
		cfg:   cfg,
	}
}

// Close releases the alerting notification goroutine. The database
// handle belongs to the caller and is not closed here.
func (f *Facade) Close() {
	f.alerts.Close()
}

// SubmitPrediction stores the event, evaluates every detector for each
// metric the event touched and records any resulting alerts. The
// returned id identifies the stored event even when err is
// ErrOutOfOrder, which reports a stored-but-tagged event, not a
// failure.
func (f *Facade) SubmitPrediction(ctx context.Context, event *models.PredictionEvent) (int64, error) {
	start := time.Now()
	id, err := f.predictions.Append(ctx, event)
	status := "ok"
	switch {
	case err == nil:
	case isOutOfOrder(err):
		status = "out_of_order"
	default:
		metrics.PredictionsIngested.WithLabelValues(versionLabel(event), "rejected").Inc()
		return 0, err
	}
	metrics.PredictionsIngested.WithLabelValues(event.ModelVersion, status).Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	f.invalidate(ctx)

	touched := touchedMetrics(event)
	if evalErr := f.Evaluate(ctx, touched, "submit"); evalErr != nil {
		f.log.Error("evaluation after submit failed",
			zap.Int64("event_id", id), zap.Error(evalErr))
		if err == nil {
			err = evalErr
		}
	}
	return id, err
}

// SubmitActuals attaches ground truth to a stored event. Residual
// series gain points for future evaluation cycles; completed detections
// are not revisited.
func (f *Facade) SubmitActuals(ctx context.Context, eventID int64, actuals []models.Field) error {
	if err := f.predictions.SetActuals(ctx, eventID, actuals); err != nil {
		return err
	}
	f.invalidate(ctx)
	return nil
}

// Evaluate runs all three detectors for each named metric, fanning out
// one goroutine per metric and detector kind. Every result is persisted
// as a monitoring event; flagged results feed the alert manager in one
// batch so multi-signal synthesis sees the whole cycle.
func (f *Facade) Evaluate(ctx context.Context, metricNames []string, triggerLabel string) error {
	if len(metricNames) == 0 {
		return nil
	}
	start := time.Now()

	kinds := []models.DetectorKind{models.KindAnomaly, models.KindDrift, models.KindTrend}
	type slot struct {
		result models.DetectionResult
		err    error
	}
	slots := make([]slot, len(metricNames)*len(kinds))

	var wg sync.WaitGroup
	for mi, name := range metricNames {
		for ki, kind := range kinds {
			wg.Add(1)
			go func(idx int, name string, kind models.DetectorKind) {
				defer wg.Done()
				slots[idx].result, slots[idx].err = f.runDetector(ctx, name, kind)
			}(mi*len(kinds)+ki, name, kind)
		}
	}
	wg.Wait()

	var firstErr error
	results := make([]models.DetectionResult, 0, len(slots))
	for _, s := range slots {
		if s.err != nil {
			if firstErr == nil {
				firstErr = s.err
			}
			continue
		}
		results = append(results, s.result)
	}

	for i := range results {
		r := results[i]
		if err := f.db.AppendMonitoringEvent(ctx, &db.MonitoringEventRecord{
			MetricName:   r.MetricName,
			DetectorKind: r.Kind,
			Score:        r.Score,
			Flagged:      r.Flagged,
			EvidenceJSON: r.EvidenceJSON(),
			EvaluatedAt:  r.EvaluatedAt,
		}); err != nil && firstErr == nil {
			firstErr = err
		}
		observeResult(r)
	}

	if _, err := f.alerts.Record(ctx, results); err != nil && firstErr == nil {
		firstErr = err
	}

	metrics.EvaluationDuration.WithLabelValues(triggerLabel).Observe(time.Since(start).Seconds())
	return firstErr
}

// ─── Query surface ───────────────────────────────────────────────────────────

// ListAlerts returns stored alerts matching the filter, newest first.
func (f *Facade) ListAlerts(ctx context.Context, q db.AlertQuery) ([]*models.Alert, error) {
	return f.alerts.List(ctx, q)
}

// Acknowledge soft-closes an alert; idempotent.
func (f *Facade) Acknowledge(ctx context.Context, id string) error {
	return f.alerts.Acknowledge(ctx, id)
}

// MetricSeries returns the named metric's points within the bounds.
// Results may be served from the TTL cache when fresh.
func (f *Facade) MetricSeries(ctx context.Context, name string, since, until time.Time) (models.MetricSeries, error) {
	key := fmt.Sprintf("series|%s|%d|%d", name, since.UnixNano(), until.UnixNano())
	if cached, ok := f.cacheGet(ctx, key); ok {
		return cached.(models.MetricSeries), nil
	}
	series, err := f.predictions.Series(ctx, name, since, until)
	if err != nil {
		return models.MetricSeries{Name: name}, err
	}
	f.cacheSet(ctx, key, series)
	return series, nil
}

// MetricRollup aggregates the named metric into fixed periods.
func (f *Facade) MetricRollup(ctx context.Context, name string, period time.Duration) ([]models.RollupBucket, error) {
	return f.predictions.Rollup(ctx, name, period)
}

// MetricNames lists every indexed metric.
func (f *Facade) MetricNames(ctx context.Context) ([]string, error) {
	return f.predictions.MetricNames(ctx)
}

// DriftSummary returns the latest persisted drift evaluation for the
// metric, or nil when none exists yet.
func (f *Facade) DriftSummary(ctx context.Context, name string) (*models.DetectionResult, error) {
	return f.latestResult(ctx, name, models.KindDrift)
}

// TrendSummary returns the latest persisted trend evaluation for the
// metric, or nil when none exists yet.
func (f *Facade) TrendSummary(ctx context.Context, name string) (*models.DetectionResult, error) {
	return f.latestResult(ctx, name, models.KindTrend)
}

// RecordFeedback stores one feedback entry for a prediction.
func (f *Facade) RecordFeedback(ctx context.Context, rec *db.FeedbackRecord) (int64, error) {
	if rec.Status == "" {
		return 0, fmt.Errorf("%w: feedback status is required", models.ErrValidation)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return f.db.AppendFeedback(ctx, rec)
}

// CheckRetraining evaluates the retraining trigger for the metric and
// exports the decision.
func (f *Facade) CheckRetraining(ctx context.Context, metricName string) (retrain.Decision, error) {
	decision, err := f.trigger.Check(ctx, metricName)
	if err != nil {
		return decision, err
	}
	label := "hold"
	if decision.ShouldRetrain {
		label = "retrain"
	}
	metrics.RetrainDecisions.WithLabelValues(label).Inc()
	return decision, nil
}

// ─── Internals ───────────────────────────────────────────────────────────────

func (f *Facade) runDetector(ctx context.Context, name string, kind models.DetectorKind) (models.DetectionResult, error) {
	switch kind {
	case models.KindAnomaly:
		series, err := f.predictions.Tail(ctx, name, f.cfg.Anomaly.WindowSize+1)
		if err != nil {
			return models.DetectionResult{}, err
		}
		return anomaly.Detect(series, f.cfg.Anomaly.WindowSize, f.cfg.Anomaly.Threshold), nil

	case models.KindDrift:
		reference, recent, err := f.driftWindows(ctx, name)
		if err != nil {
			return models.DetectionResult{}, err
		}
		return drift.Detect(name, reference, recent, drift.Params{
			Alpha:      f.cfg.Drift.Alpha,
			MinSamples: f.cfg.Drift.MinSamples,
		}), nil

	case models.KindTrend:
		series, err := f.predictions.Tail(ctx, name, f.cfg.Trend.WindowSize)
		if err != nil {
			return models.DetectionResult{}, err
		}
		return trend.Detect(series, f.cfg.Trend.WindowSize, f.cfg.Trend.Threshold, f.badDirection(name)), nil

	default:
		return models.DetectionResult{}, fmt.Errorf("unknown detector kind %q", kind)
	}
}

// driftWindows selects the reference and recent windows per the
// configured baseline mode. Trailing mode takes the recent window from
// the series tail and the reference window immediately before it,
// separated by the configured gap; fixed mode anchors the reference at
// the start of the series.
func (f *Facade) driftWindows(ctx context.Context, name string) ([]float64, []float64, error) {
	d := f.cfg.Drift

	if d.Baseline == "fixed" {
		series, err := f.predictions.Series(ctx, name, time.Time{}, time.Time{})
		if err != nil {
			return nil, nil, err
		}
		values := series.Values()
		if len(values) <= d.ReferenceWindow {
			return values, nil, nil
		}
		reference := values[:d.ReferenceWindow]
		recent := values[len(values)-min(d.RecentWindow, len(values)-d.ReferenceWindow):]
		return reference, recent, nil
	}

	total := d.ReferenceWindow + d.Gap + d.RecentWindow
	series, err := f.predictions.Tail(ctx, name, total)
	if err != nil {
		return nil, nil, err
	}
	values := series.Values()
	if len(values) < total {
		// Not enough history for both windows; hand the detector what
		// exists and let it report insufficient samples.
		if len(values) <= d.RecentWindow {
			return nil, values, nil
		}
		split := len(values) - d.RecentWindow - d.Gap
		if split < 0 {
			split = 0
		}
		return values[:split], values[len(values)-d.RecentWindow:], nil
	}
	return values[:d.ReferenceWindow], values[len(values)-d.RecentWindow:], nil
}

func (f *Facade) badDirection(name string) trend.BadDirection {
	if dir, ok := f.cfg.Trend.BadDirections[name]; ok {
		return trend.BadDirection(dir)
	}
	return trend.BadDirection(f.cfg.Trend.DefaultBadDirection)
}

func (f *Facade) latestResult(ctx context.Context, name string, kind models.DetectorKind) (*models.DetectionResult, error) {
	key := fmt.Sprintf("summary|%s|%s", name, kind)
	if cached, ok := f.cacheGet(ctx, key); ok {
		r := cached.(models.DetectionResult)
		return &r, nil
	}

	rec, err := f.db.LatestMonitoringEvent(ctx, name, kind)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	evidence, err := models.DecodeEvidence(rec.DetectorKind, rec.EvidenceJSON)
	if err != nil {
		return nil, err
	}
	result := models.DetectionResult{
		MetricName:  rec.MetricName,
		Kind:        rec.DetectorKind,
		Score:       rec.Score,
		Flagged:     rec.Flagged,
		Evidence:    evidence,
		EvaluatedAt: rec.EvaluatedAt,
	}
	f.cacheSet(ctx, key, result)
	return &result, nil
}

func (f *Facade) cacheGet(ctx context.Context, key string) (any, bool) {
	if f.cache == nil {
		return nil, false
	}
	v, ok := f.cache.Get(ctx, key)
	if ok {
		metrics.CacheRequests.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	}
	return v, ok
}

func (f *Facade) cacheSet(ctx context.Context, key string, value any) {
	if f.cache != nil {
		f.cache.Set(ctx, key, value, 0)
	}
}

// invalidate drops all cached reads after a write; series and summaries
// are cheap to rebuild and correctness beats hit rate here.
func (f *Facade) invalidate(ctx context.Context) {
	if f.cache != nil {
		f.cache.Clear(ctx)
	}
}

func touchedMetrics(event *models.PredictionEvent) []string {
	names := make([]string, 0, len(event.PredictedValues)+len(event.InputFeatures))
	for _, field := range event.PredictedValues {
		names = append(names, field.Name)
	}
	for _, field := range event.InputFeatures {
		names = append(names, "feature_"+field.Name)
	}
	return names
}

func observeResult(r models.DetectionResult) {
	outcome := "clean"
	switch {
	case r.Flagged:
		outcome = "flagged"
	case hasReason(r.Evidence):
		outcome = "degenerate"
	}
	metrics.DetectorRuns.WithLabelValues(string(r.Kind), outcome).Inc()
	metrics.DetectorScore.WithLabelValues(r.MetricName, string(r.Kind)).Set(r.Score)
}

func hasReason(e models.Evidence) bool {
	switch ev := e.(type) {
	case *models.AnomalyEvidence:
		return ev.Reason != ""
	case *models.DriftEvidence:
		return ev.Reason != ""
	case *models.TrendEvidence:
		return ev.Reason != ""
	default:
		return false
	}
}

func isOutOfOrder(err error) bool {
	return errors.Is(err, models.ErrOutOfOrder)
}

func versionLabel(event *models.PredictionEvent) string {
	if event == nil {
		return ""
	}
	return event.ModelVersion
}
