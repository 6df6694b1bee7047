package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/modelwatch/modelwatch/internal/db"
	"github.com/modelwatch/modelwatch/internal/metrics"
	"github.com/modelwatch/modelwatch/internal/models"
)

func newTestManager(t *testing.T, sinks ...Sink) (*Manager, db.Store) {
	t.Helper()
	s, err := db.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	m := NewManager(s, DefaultConfig(), nil, sinks...)
	t.Cleanup(func() {
		m.Close()
		_ = s.Close()
	})
	return m, s
}

func flaggedResult(metric string, kind models.DetectorKind, score float64, at time.Time) models.DetectionResult {
	return models.DetectionResult{
		MetricName:  metric,
		Kind:        kind,
		Score:       score,
		Flagged:     true,
		EvaluatedAt: at,
	}
}

func TestRecordCreatesAlert(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alerts, err := m.Record(ctx, []models.DetectionResult{
		flaggedResult("mae", models.KindAnomaly, 3.4, at),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Type != models.AlertAnomaly || a.Severity != models.SeverityWarning {
		t.Errorf("alert = %s/%s, want anomaly/warning", a.Type, a.Severity)
	}
	if a.ID == "" || a.DedupKey == "" {
		t.Errorf("alert missing id or dedup key: %+v", a)
	}
}

func TestUnflaggedResultsProduceNothing(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	alerts, err := m.Record(ctx, []models.DetectionResult{
		{MetricName: "mae", Kind: models.KindAnomaly, Score: 1.2, Flagged: false},
		{MetricName: "mae", Kind: models.KindDrift, Score: 0.3, Flagged: false},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("alerts = %d, want 0", len(alerts))
	}
}

func TestRecordDedupWithinWindow(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	// Two identical detections 10 seconds apart must collapse into one
	// stored row carrying the later timestamp.
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := m.Record(ctx, []models.DetectionResult{
		flaggedResult("mae", models.KindAnomaly, 3.4, at),
	}); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	second, err := m.Record(ctx, []models.DetectionResult{
		flaggedResult("mae", models.KindAnomaly, 3.5, at.Add(10*time.Second)),
	})
	if err != nil {
		t.Fatalf("second Record: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("second Record returned %d alerts", len(second))
	}

	stored, err := s.ListAlerts(ctx, db.AlertQuery{})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored alerts = %d, want 1", len(stored))
	}
	if !stored[0].CreatedAt.Equal(at.Add(10 * time.Second)) {
		t.Errorf("created_at = %v, want the later detection time", stored[0].CreatedAt)
	}
}

func TestSeverityClassification(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		kind  models.DetectorKind
		score float64
		want  models.Severity
	}{
		{models.KindAnomaly, 3.2, models.SeverityWarning},
		{models.KindAnomaly, 5.0, models.SeverityCritical},
		{models.KindAnomaly, 2.0, models.SeverityInfo},
		{models.KindDrift, 0.96, models.SeverityWarning},
		{models.KindDrift, 0.995, models.SeverityCritical},
	}
	for i, tc := range cases {
		metric := string(rune('a' + i)) // distinct metrics avoid dedup
		alerts, err := m.Record(ctx, []models.DetectionResult{
			flaggedResult(metric, tc.kind, tc.score, at),
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if alerts[0].Severity != tc.want {
			t.Errorf("%s score %v: severity = %s, want %s", tc.kind, tc.score, alerts[0].Severity, tc.want)
		}
	}
}

func TestMultiSignalEscalation(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	alerts, err := m.Record(ctx, []models.DetectionResult{
		flaggedResult("mae", models.KindAnomaly, 3.4, at),         // warning
		flaggedResult("mae", models.KindDrift, 0.96, at),          // warning
		flaggedResult("other", models.KindAnomaly, 3.1, at),       // single kind, no multi
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	var multi *models.Alert
	for i := range alerts {
		if alerts[i].Type == models.AlertMultiSignal {
			if multi != nil {
				t.Fatal("more than one multi-signal alert")
			}
			multi = &alerts[i]
		}
	}
	if multi == nil {
		t.Fatal("expected a multi-signal alert for mae")
	}
	if multi.MetricName != "mae" {
		t.Errorf("multi metric = %s", multi.MetricName)
	}
	// Strictly above the strongest individual signal (warning).
	if multi.Severity != models.SeverityCritical {
		t.Errorf("multi severity = %s, want critical", multi.Severity)
	}

	stored, err := s.ListAlerts(ctx, db.AlertQuery{MetricName: "other"})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	for _, a := range stored {
		if a.Type == models.AlertMultiSignal {
			t.Error("single-kind metric must not get a multi-signal alert")
		}
	}
}

func TestMultiSignalCapsAtCritical(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	alerts, err := m.Record(ctx, []models.DetectionResult{
		flaggedResult("mae", models.KindAnomaly, 9.0, at), // critical
		flaggedResult("mae", models.KindDrift, 0.999, at), // critical
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	for _, a := range alerts {
		if a.Type == models.AlertMultiSignal && a.Severity != models.SeverityCritical {
			t.Errorf("multi severity = %s, want capped at critical", a.Severity)
		}
	}
}

func TestAcknowledgeIdempotent(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	alerts, err := m.Record(ctx, []models.DetectionResult{
		flaggedResult("mae", models.KindAnomaly, 3.4, at),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	id := alerts[0].ID

	if err := m.Acknowledge(ctx, id); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if err := m.Acknowledge(ctx, id); err != nil {
		t.Fatalf("second Acknowledge: %v", err)
	}

	stored, err := s.GetAlert(ctx, id)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if !stored.Acknowledged {
		t.Error("alert should stay acknowledged")
	}
}

type captureSink struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (c *captureSink) Notify(a models.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func TestSinkNotifiedOnCreateOnly(t *testing.T) {
	sink := &captureSink{}
	m, _ := newTestManager(t, sink)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := m.Record(ctx, []models.DetectionResult{
			flaggedResult("mae", models.KindAnomaly, 3.4, at.Add(time.Duration(i)*time.Second)),
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for sink.count() < 1 {
		select {
		case <-deadline:
			t.Fatal("sink never notified")
		case <-time.After(10 * time.Millisecond):
		}
	}
	// Give any spurious refresh notifications a moment to arrive.
	time.Sleep(50 * time.Millisecond)
	if got := sink.count(); got != 1 {
		t.Errorf("notifications = %d, want 1 (creates only)", got)
	}
}

func TestAlertMetricsTrackLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	warning := string(models.SeverityWarning)
	created := metrics.AlertsTotal.WithLabelValues(string(models.AlertAnomaly), warning, "created")
	refreshed := metrics.AlertsTotal.WithLabelValues(string(models.AlertAnomaly), warning, "refreshed")
	createdBefore := testutil.ToFloat64(created)
	refreshedBefore := testutil.ToFloat64(refreshed)
	openBefore := testutil.ToFloat64(metrics.AlertsOpen)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alerts, err := m.Record(ctx, []models.DetectionResult{
		flaggedResult("rmse", models.KindAnomaly, 3.4, at),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got := testutil.ToFloat64(created) - createdBefore; got != 1 {
		t.Errorf("created counter delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.AlertsOpen) - openBefore; got != 1 {
		t.Errorf("open gauge delta = %v, want 1", got)
	}

	// A repeat inside the dedup window counts as a refresh and leaves
	// the open gauge untouched.
	if _, err := m.Record(ctx, []models.DetectionResult{
		flaggedResult("rmse", models.KindAnomaly, 3.5, at.Add(10*time.Second)),
	}); err != nil {
		t.Fatalf("second Record: %v", err)
	}
	if got := testutil.ToFloat64(refreshed) - refreshedBefore; got != 1 {
		t.Errorf("refreshed counter delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.AlertsOpen) - openBefore; got != 1 {
		t.Errorf("open gauge delta after refresh = %v, want 1", got)
	}

	// Acknowledge closes the alert once; a second acknowledge must not
	// decrement the gauge again.
	if err := m.Acknowledge(ctx, alerts[0].ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if got := testutil.ToFloat64(metrics.AlertsOpen) - openBefore; got != 0 {
		t.Errorf("open gauge delta after ack = %v, want 0", got)
	}
	if err := m.Acknowledge(ctx, alerts[0].ID); err != nil {
		t.Fatalf("second Acknowledge: %v", err)
	}
	if got := testutil.ToFloat64(metrics.AlertsOpen) - openBefore; got != 0 {
		t.Errorf("open gauge delta after double ack = %v, want 0", got)
	}
}
