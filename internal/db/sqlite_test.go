package db

import (
	"context"
	"testing"
	"time"

	"github.com/modelwatch/modelwatch/internal/models"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndGetPrediction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &PredictionRecord{
		Timestamp:       now,
		ModelVersion:    "v1.2.0",
		FeaturesJSON:    `{"temperature":21.5}`,
		PredictionsJSON: `{"demand":340.0}`,
	}
	points := []SeriesPoint{
		{MetricName: "demand", Timestamp: now, Value: 340.0},
	}

	id, err := s.AppendPrediction(ctx, rec, points)
	if err != nil {
		t.Fatalf("AppendPrediction: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero prediction id")
	}

	got, err := s.GetPrediction(ctx, id)
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if got == nil {
		t.Fatal("expected prediction, got nil")
	}
	if got.ModelVersion != "v1.2.0" {
		t.Errorf("model version = %q, want v1.2.0", got.ModelVersion)
	}
	if !got.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, now)
	}
	if got.OutOfOrder {
		t.Error("expected in-order prediction")
	}

	series, err := s.QuerySeries(ctx, "demand", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("QuerySeries: %v", err)
	}
	if len(series) != 1 || series[0].Value != 340.0 {
		t.Errorf("series = %+v, want one point of 340.0", series)
	}
}

func TestLatestPredictionTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.LatestPredictionTime(ctx, "v1"); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v, want false,nil", ok, err)
	}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := &PredictionRecord{Timestamp: base.Add(time.Duration(i) * time.Hour), ModelVersion: "v1"}
		if _, err := s.AppendPrediction(ctx, rec, nil); err != nil {
			t.Fatalf("AppendPrediction: %v", err)
		}
	}

	latest, ok, err := s.LatestPredictionTime(ctx, "v1")
	if err != nil || !ok {
		t.Fatalf("LatestPredictionTime: ok=%v err=%v", ok, err)
	}
	want := base.Add(2 * time.Hour)
	if !latest.Equal(want) {
		t.Errorf("latest = %v, want %v", latest, want)
	}
}

func TestUpdateActuals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rec := &PredictionRecord{Timestamp: now, ModelVersion: "v1", PredictionsJSON: `{"demand":100}`}
	id, err := s.AppendPrediction(ctx, rec, nil)
	if err != nil {
		t.Fatalf("AppendPrediction: %v", err)
	}

	residuals := []SeriesPoint{{MetricName: "residual_demand", Timestamp: now, Value: -5.0}}
	if err := s.UpdateActuals(ctx, id, `{"demand":105}`, residuals); err != nil {
		t.Fatalf("UpdateActuals: %v", err)
	}

	got, err := s.GetPrediction(ctx, id)
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if got.ActualsJSON != `{"demand":105}` {
		t.Errorf("actuals = %q", got.ActualsJSON)
	}

	series, err := s.QuerySeries(ctx, "residual_demand", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("QuerySeries: %v", err)
	}
	if len(series) != 1 || series[0].Value != -5.0 {
		t.Errorf("residual series = %+v", series)
	}
}

func TestQuerySeriesRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var points []SeriesPoint
	for i := 0; i < 10; i++ {
		points = append(points, SeriesPoint{
			MetricName: "mae", Timestamp: base.Add(time.Duration(i) * time.Minute), Value: float64(i),
		})
	}
	rec := &PredictionRecord{Timestamp: base, ModelVersion: "v1"}
	if _, err := s.AppendPrediction(ctx, rec, points); err != nil {
		t.Fatalf("AppendPrediction: %v", err)
	}

	got, err := s.QuerySeries(ctx, "mae", base.Add(2*time.Minute), base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("QuerySeries: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d points, want 4", len(got))
	}
	if got[0].Value != 2 || got[3].Value != 5 {
		t.Errorf("range = [%v..%v], want [2..5]", got[0].Value, got[3].Value)
	}

	tail, err := s.TailSeries(ctx, "mae", 3)
	if err != nil {
		t.Fatalf("TailSeries: %v", err)
	}
	if len(tail) != 3 || tail[0].Value != 7 || tail[2].Value != 9 {
		t.Errorf("tail = %+v, want values 7,8,9 ascending", tail)
	}

	names, err := s.MetricNames(ctx)
	if err != nil {
		t.Fatalf("MetricNames: %v", err)
	}
	if len(names) != 1 || names[0] != "mae" {
		t.Errorf("names = %v", names)
	}
}

func TestMonitoringEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if rec, err := s.LatestMonitoringEvent(ctx, "mae", models.KindAnomaly); err != nil || rec != nil {
		t.Fatalf("empty store: rec=%v err=%v, want nil,nil", rec, err)
	}

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := &MonitoringEventRecord{
			MetricName:   "mae",
			DetectorKind: models.KindAnomaly,
			Score:        float64(i),
			Flagged:      i == 2,
			EvidenceJSON: `{"z_score":3.4}`,
			EvaluatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AppendMonitoringEvent(ctx, rec); err != nil {
			t.Fatalf("AppendMonitoringEvent: %v", err)
		}
		if rec.ID == 0 {
			t.Fatal("expected assigned event id")
		}
	}

	latest, err := s.LatestMonitoringEvent(ctx, "mae", models.KindAnomaly)
	if err != nil {
		t.Fatalf("LatestMonitoringEvent: %v", err)
	}
	if latest == nil || latest.Score != 2 || !latest.Flagged {
		t.Errorf("latest = %+v, want score 2 flagged", latest)
	}

	flagged, err := s.QueryMonitoringEvents(ctx, MonitoringEventQuery{MetricName: "mae", FlaggedOnly: true})
	if err != nil {
		t.Fatalf("QueryMonitoringEvents: %v", err)
	}
	if len(flagged) != 1 {
		t.Errorf("flagged events = %d, want 1", len(flagged))
	}

	limited, err := s.QueryMonitoringEvents(ctx, MonitoringEventQuery{Limit: 2})
	if err != nil {
		t.Fatalf("QueryMonitoringEvents limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited events = %d, want 2", len(limited))
	}
}

func TestUpsertAlertDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alert := &models.Alert{
		ID:         "a-1",
		Type:       models.AlertAnomaly,
		Severity:   models.SeverityWarning,
		MetricName: "mae",
		DedupKey:   "mae|anomaly|2026-03-01",
		CreatedAt:  now,
		Detail:     `{"z_score":3.4}`,
	}

	got, created, err := s.UpsertAlert(ctx, alert, 24*time.Hour)
	if err != nil {
		t.Fatalf("UpsertAlert: %v", err)
	}
	if !created || got.ID != "a-1" {
		t.Fatalf("first upsert: created=%v id=%s", created, got.ID)
	}

	// Same key inside the window refreshes instead of duplicating.
	repeat := &models.Alert{
		ID:         "a-2",
		Type:       models.AlertAnomaly,
		Severity:   models.SeverityCritical,
		MetricName: "mae",
		DedupKey:   "mae|anomaly|2026-03-01",
		CreatedAt:  now.Add(time.Hour),
		Detail:     `{"z_score":4.1}`,
	}
	got, created, err = s.UpsertAlert(ctx, repeat, 24*time.Hour)
	if err != nil {
		t.Fatalf("UpsertAlert repeat: %v", err)
	}
	if created {
		t.Error("expected dedup, got new alert")
	}
	if got.ID != "a-1" {
		t.Errorf("refreshed id = %s, want a-1", got.ID)
	}

	alerts, err := s.ListAlerts(ctx, AlertQuery{})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != models.SeverityCritical {
		t.Errorf("severity = %s, want critical after refresh", alerts[0].Severity)
	}
}

func TestUpsertAlertAfterAckCreatesNew(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	alert := &models.Alert{
		ID: "a-1", Type: models.AlertDistribution, Severity: models.SeverityWarning,
		MetricName: "demand", DedupKey: "demand|distribution|d1", CreatedAt: now, Detail: `{}`,
	}
	if _, _, err := s.UpsertAlert(ctx, alert, 24*time.Hour); err != nil {
		t.Fatalf("UpsertAlert: %v", err)
	}
	if err := s.AcknowledgeAlert(ctx, "a-1"); err != nil {
		t.Fatalf("AcknowledgeAlert: %v", err)
	}
	// Idempotent.
	if err := s.AcknowledgeAlert(ctx, "a-1"); err != nil {
		t.Fatalf("AcknowledgeAlert again: %v", err)
	}

	second := &models.Alert{
		ID: "a-2", Type: models.AlertDistribution, Severity: models.SeverityWarning,
		MetricName: "demand", DedupKey: "demand|distribution|d1", CreatedAt: now.Add(time.Minute), Detail: `{}`,
	}
	_, created, err := s.UpsertAlert(ctx, second, 24*time.Hour)
	if err != nil {
		t.Fatalf("UpsertAlert second: %v", err)
	}
	if !created {
		t.Error("acknowledged alert should not suppress a new one")
	}

	ack := true
	acked, err := s.ListAlerts(ctx, AlertQuery{Acknowledged: &ack})
	if err != nil {
		t.Fatalf("ListAlerts acked: %v", err)
	}
	if len(acked) != 1 || acked[0].ID != "a-1" {
		t.Errorf("acked = %+v, want only a-1", acked)
	}
}

func TestAlertQueryFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sev := []models.Severity{models.SeverityInfo, models.SeverityWarning, models.SeverityCritical}
	for i, sv := range sev {
		a := &models.Alert{
			ID: string(rune('a' + i)), Type: models.AlertAnomaly, Severity: sv,
			MetricName: "mae", DedupKey: "k" + string(rune('0'+i)),
			CreatedAt: base.Add(time.Duration(i) * time.Hour), Detail: `{}`,
		}
		if _, _, err := s.UpsertAlert(ctx, a, time.Hour); err != nil {
			t.Fatalf("UpsertAlert: %v", err)
		}
	}

	crit, err := s.ListAlerts(ctx, AlertQuery{Severity: models.SeverityCritical})
	if err != nil {
		t.Fatalf("ListAlerts severity: %v", err)
	}
	if len(crit) != 1 {
		t.Errorf("critical = %d, want 1", len(crit))
	}

	recent, err := s.ListAlerts(ctx, AlertQuery{Since: base.Add(time.Hour)})
	if err != nil {
		t.Fatalf("ListAlerts since: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("since filter = %d, want 2", len(recent))
	}

	got, err := s.GetAlert(ctx, "b")
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if got == nil || got.Severity != models.SeverityWarning {
		t.Errorf("GetAlert b = %+v", got)
	}
	if missing, err := s.GetAlert(ctx, "zz"); err != nil || missing != nil {
		t.Errorf("missing alert: %v %v, want nil,nil", missing, err)
	}
}

func TestFeedbackAccuracy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if _, ok, err := s.FeedbackAccuracy(ctx, now.Add(-time.Hour)); err != nil || ok {
		t.Fatalf("empty feedback: ok=%v err=%v", ok, err)
	}

	statuses := []string{"correct", "correct", "correct", "incorrect"}
	for _, st := range statuses {
		rec := &FeedbackRecord{MetricName: "demand", Status: st, CreatedAt: now}
		if _, err := s.AppendFeedback(ctx, rec); err != nil {
			t.Fatalf("AppendFeedback: %v", err)
		}
	}

	count, err := s.FeedbackCount(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("FeedbackCount: %v", err)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}

	acc, ok, err := s.FeedbackAccuracy(ctx, now.Add(-time.Hour))
	if err != nil || !ok {
		t.Fatalf("FeedbackAccuracy: ok=%v err=%v", ok, err)
	}
	if acc != 0.75 {
		t.Errorf("accuracy = %v, want 0.75", acc)
	}
}

func TestRetrainingLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &RetrainingLogRecord{
		Reason:        "drift detected; accuracy drop",
		FeedbackCount: 12,
		DriftScore:    0.97,
		AccuracyDrop:  0.15,
		Confidence:    0.8,
		Status:        "pending",
		StartedAt:     time.Now().UTC().Truncate(time.Second),
	}
	id, err := s.AppendRetrainingLog(ctx, rec)
	if err != nil {
		t.Fatalf("AppendRetrainingLog: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	entries, err := s.ListRetrainingLog(ctx, 10)
	if err != nil {
		t.Fatalf("ListRetrainingLog: %v", err)
	}
	if len(entries) != 1 || entries[0].DriftScore != 0.97 {
		t.Errorf("entries = %+v", entries)
	}
}
