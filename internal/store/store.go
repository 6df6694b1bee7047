// Package store implements the prediction ingestion layer: validated
// append of prediction events, per-metric series queries and rollups.
// A fixed-capacity in-memory ring buffer per metric fronts SQLite for
// hot reads; SQLite remains the source of truth.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/modelwatch/modelwatch/internal/db"
	"github.com/modelwatch/modelwatch/internal/models"
)

const (
	featurePrefix  = "feature_"
	residualPrefix = "residual_"

	// 24 hours of minutely samples.
	defaultHotCapacity = 1440
)

// PredictionStore ingests prediction events and serves metric series.
type PredictionStore struct {
	store db.Store
	log   *zap.Logger

	mu       sync.Mutex
	locks    map[string]*sync.Mutex // per-metric write serialization
	lastSeen map[string]time.Time   // latest timestamp per model version
	hot      map[string]*ringBuffer
	hotCap   int
}

// New creates a PredictionStore on top of the given persistent store.
func New(store db.Store, log *zap.Logger) *PredictionStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &PredictionStore{
		store:    store,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
		lastSeen: make(map[string]time.Time),
		hot:      make(map[string]*ringBuffer),
		hotCap:   defaultHotCapacity,
	}
}

// Append validates and stores a prediction event, indexing one series
// point per feature and prediction field. An event whose timestamp
// regresses behind the model version's latest is still stored, tagged
// out of order, and reported with ErrOutOfOrder.
func (ps *PredictionStore) Append(ctx context.Context, event *models.PredictionEvent) (int64, error) {
	if err := validate(event); err != nil {
		return 0, err
	}
	event.Timestamp = event.Timestamp.UTC()

	points := seriesPoints(event)
	names := metricNames(points)

	unlock := ps.lockMetrics(names)
	defer unlock()

	outOfOrder, err := ps.checkOrder(ctx, event.ModelVersion, event.Timestamp)
	if err != nil {
		return 0, err
	}
	event.OutOfOrder = outOfOrder

	rec := &db.PredictionRecord{
		Timestamp:       event.Timestamp,
		ModelVersion:    event.ModelVersion,
		FeaturesJSON:    fieldsJSON(event.InputFeatures),
		PredictionsJSON: fieldsJSON(event.PredictedValues),
		ActualsJSON:     fieldsJSON(event.ActualValues),
		OutOfOrder:      outOfOrder,
	}
	id, err := ps.store.AppendPrediction(ctx, rec, points)
	if err != nil {
		return 0, err
	}
	event.ID = id

	for _, p := range points {
		ps.pushHot(ctx, p)
	}

	if outOfOrder {
		ps.log.Warn("out-of-order prediction stored",
			zap.Int64("id", id),
			zap.String("model_version", event.ModelVersion),
			zap.Time("timestamp", event.Timestamp))
		return id, fmt.Errorf("%w: timestamp %s behind latest for model %s",
			models.ErrOutOfOrder, event.Timestamp.Format(time.RFC3339), event.ModelVersion)
	}
	return id, nil
}

// SetActuals attaches observed values to a stored prediction and
// indexes one residual point (actual minus predicted) per field that
// matches a predicted field. Residuals feed future evaluation cycles;
// past detection results are not revisited.
func (ps *PredictionStore) SetActuals(ctx context.Context, id int64, actuals []models.Field) error {
	if len(actuals) == 0 {
		return fmt.Errorf("%w: no actual values", models.ErrValidation)
	}
	rec, err := ps.store.GetPrediction(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: prediction %d not found", models.ErrValidation, id)
	}

	var predicted []models.Field
	if rec.PredictionsJSON != "" {
		if err := json.Unmarshal([]byte(rec.PredictionsJSON), &predicted); err != nil {
			return fmt.Errorf("decode stored predictions: %w", err)
		}
	}
	byName := make(map[string]float64, len(predicted))
	for _, f := range predicted {
		byName[f.Name] = f.Value
	}

	var points []db.SeriesPoint
	for _, a := range actuals {
		pred, ok := byName[a.Name]
		if !ok {
			continue
		}
		points = append(points, db.SeriesPoint{
			MetricName: residualPrefix + a.Name,
			Timestamp:  rec.Timestamp,
			Value:      a.Value - pred,
		})
	}

	unlock := ps.lockMetrics(metricNames(points))
	defer unlock()

	if err := ps.store.UpdateActuals(ctx, id, fieldsJSON(actuals), points); err != nil {
		return err
	}
	for _, p := range points {
		ps.pushHot(ctx, p)
	}
	return nil
}

// Series returns the named metric's points within [since, until],
// oldest first. A metric with no data yields an empty series, not an
// error. Zero bounds are open.
func (ps *PredictionStore) Series(ctx context.Context, name string, since, until time.Time) (models.MetricSeries, error) {
	if pts, ok := ps.hotRange(name, since, until); ok {
		return models.MetricSeries{Name: name, Points: pts}, nil
	}
	pts, err := ps.store.QuerySeries(ctx, name, since, until)
	if err != nil {
		return models.MetricSeries{Name: name}, err
	}
	return models.MetricSeries{Name: name, Points: pts}, nil
}

// Tail returns the newest n points of the named metric, oldest first.
func (ps *PredictionStore) Tail(ctx context.Context, name string, n int) (models.MetricSeries, error) {
	pts, err := ps.store.TailSeries(ctx, name, n)
	if err != nil {
		return models.MetricSeries{Name: name}, err
	}
	return models.MetricSeries{Name: name, Points: pts}, nil
}

// MetricNames lists every metric that has at least one indexed point.
func (ps *PredictionStore) MetricNames(ctx context.Context) ([]string, error) {
	return ps.store.MetricNames(ctx)
}

// Rollup aggregates the named metric into fixed periods, reporting
// count, mean and population standard deviation per bucket. The
// aggregation is pure: the same inputs always produce the same buckets.
func (ps *PredictionStore) Rollup(ctx context.Context, name string, period time.Duration) ([]models.RollupBucket, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: rollup period must be positive", models.ErrValidation)
	}
	pts, err := ps.store.QuerySeries(ctx, name, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return nil, nil
	}

	grouped := make(map[time.Time][]float64)
	for _, p := range pts {
		grouped[p.Timestamp.Truncate(period)] = append(grouped[p.Timestamp.Truncate(period)], p.Value)
	}

	starts := make([]time.Time, 0, len(grouped))
	for start := range grouped {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	buckets := make([]models.RollupBucket, 0, len(starts))
	for _, start := range starts {
		vals := grouped[start]
		buckets = append(buckets, models.RollupBucket{
			PeriodStart: start,
			Count:       len(vals),
			Mean:        stat.Mean(vals, nil),
			StdDev:      popStdDev(vals),
		})
	}
	return buckets, nil
}

// ─── Internals ───────────────────────────────────────────────────────────────

func validate(event *models.PredictionEvent) error {
	switch {
	case event == nil:
		return fmt.Errorf("%w: nil event", models.ErrValidation)
	case event.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", models.ErrValidation)
	case event.ModelVersion == "":
		return fmt.Errorf("%w: missing model version", models.ErrValidation)
	case len(event.PredictedValues) == 0:
		return fmt.Errorf("%w: no predicted values", models.ErrValidation)
	}
	for _, f := range event.PredictedValues {
		if f.Name == "" {
			return fmt.Errorf("%w: predicted value with empty name", models.ErrValidation)
		}
	}
	for _, f := range event.InputFeatures {
		if f.Name == "" {
			return fmt.Errorf("%w: input feature with empty name", models.ErrValidation)
		}
	}
	return nil
}

// seriesPoints derives the indexed series points for an event:
// prediction fields under their own name, features under feature_<name>.
func seriesPoints(event *models.PredictionEvent) []db.SeriesPoint {
	points := make([]db.SeriesPoint, 0, len(event.PredictedValues)+len(event.InputFeatures))
	for _, f := range event.PredictedValues {
		points = append(points, db.SeriesPoint{MetricName: f.Name, Timestamp: event.Timestamp, Value: f.Value})
	}
	for _, f := range event.InputFeatures {
		points = append(points, db.SeriesPoint{MetricName: featurePrefix + f.Name, Timestamp: event.Timestamp, Value: f.Value})
	}
	return points
}

func metricNames(points []db.SeriesPoint) []string {
	names := make([]string, 0, len(points))
	seen := make(map[string]struct{}, len(points))
	for _, p := range points {
		if _, ok := seen[p.MetricName]; ok {
			continue
		}
		seen[p.MetricName] = struct{}{}
		names = append(names, p.MetricName)
	}
	sort.Strings(names)
	return names
}

// lockMetrics acquires the per-metric write locks in sorted order so
// concurrent appends touching overlapping metric sets cannot deadlock.
func (ps *PredictionStore) lockMetrics(names []string) func() {
	locks := make([]*sync.Mutex, 0, len(names))
	ps.mu.Lock()
	for _, n := range names {
		l, ok := ps.locks[n]
		if !ok {
			l = &sync.Mutex{}
			ps.locks[n] = l
		}
		locks = append(locks, l)
	}
	ps.mu.Unlock()

	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// checkOrder reports whether the timestamp regresses behind the model
// version's latest, consulting the store on first sight of a version.
func (ps *PredictionStore) checkOrder(ctx context.Context, modelVersion string, ts time.Time) (bool, error) {
	ps.mu.Lock()
	last, cached := ps.lastSeen[modelVersion]
	ps.mu.Unlock()

	if !cached {
		stored, ok, err := ps.store.LatestPredictionTime(ctx, modelVersion)
		if err != nil {
			return false, err
		}
		if ok {
			last = stored
			cached = true
		}
	}

	outOfOrder := cached && ts.Before(last)

	// Advance-only write-back: a concurrent append may have raised the
	// high-water mark since the read above, so re-check under the lock
	// and never move it backwards.
	candidate := ts
	if cached && last.After(candidate) {
		candidate = last
	}
	ps.mu.Lock()
	if cur, ok := ps.lastSeen[modelVersion]; !ok || candidate.After(cur) {
		ps.lastSeen[modelVersion] = candidate
	}
	ps.mu.Unlock()

	return outOfOrder, nil
}

func (ps *PredictionStore) pushHot(ctx context.Context, p db.SeriesPoint) {
	ps.mu.Lock()
	rb, ok := ps.hot[p.MetricName]
	if !ok {
		rb = newRingBuffer(ps.hotCap)
		ps.hot[p.MetricName] = rb
	}
	ps.mu.Unlock()

	if !ok {
		// A fresh buffer can only vouch for a range if nothing already
		// persisted is newer than its first point. The point itself is
		// committed before this push, so the newest stored timestamp
		// matches p's unless an earlier process wrote later ones.
		newest, err := ps.store.TailSeries(ctx, p.MetricName, 1)
		if err != nil || len(newest) == 0 || newest[len(newest)-1].Timestamp.After(p.Timestamp) {
			rb.invalidate()
		}
	}
	rb.push(models.MetricPoint{Timestamp: p.Timestamp, Value: p.Value})
}

// hotRange serves a range query from the in-memory buffer when the
// buffer provably covers it: the requested lower bound must fall at or
// after the oldest buffered point, the buffer's order must be intact,
// and the buffer must not have started over persisted points newer
// than its first push. Anything else defers to the persistent store.
func (ps *PredictionStore) hotRange(name string, since, until time.Time) ([]models.MetricPoint, bool) {
	ps.mu.Lock()
	rb, ok := ps.hot[name]
	ps.mu.Unlock()
	if !ok {
		return nil, false
	}
	return rb.rangeCovered(since, until)
}

func fieldsJSON(fields []models.Field) string {
	if len(fields) == 0 {
		return ""
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(b)
}

func popStdDev(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	mean := stat.Mean(vals, nil)
	var sum float64
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)))
}
