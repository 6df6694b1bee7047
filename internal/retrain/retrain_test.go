package retrain

import (
	"context"
	"testing"
	"time"

	"github.com/modelwatch/modelwatch/internal/db"
	"github.com/modelwatch/modelwatch/internal/models"
)

func TestEvaluateTwoOfThree(t *testing.T) {
	th := Thresholds{MinFeedback: 10, DriftScore: 0.95, AccuracyDrop: 0.10, BaselineAccuracy: 0.90}

	cases := []struct {
		name string
		in   Inputs
		want bool
		met  int
	}{
		{
			name: "no signals",
			in:   Inputs{FeedbackCount: 2, DriftScore: 0.3},
			want: false, met: 0,
		},
		{
			name: "feedback only",
			in:   Inputs{FeedbackCount: 20, DriftScore: 0.3},
			want: false, met: 1,
		},
		{
			name: "feedback and drift",
			in:   Inputs{FeedbackCount: 20, DriftScore: 0.97},
			want: true, met: 2,
		},
		{
			name: "drift and accuracy drop",
			in:   Inputs{FeedbackCount: 2, DriftScore: 0.97, RecentAccuracy: 0.70, HasAccuracy: true},
			want: true, met: 2,
		},
		{
			name: "all three",
			in:   Inputs{FeedbackCount: 20, DriftScore: 0.99, RecentAccuracy: 0.60, HasAccuracy: true},
			want: true, met: 3,
		},
		{
			name: "good accuracy does not count",
			in:   Inputs{FeedbackCount: 20, DriftScore: 0.3, RecentAccuracy: 0.92, HasAccuracy: true},
			want: false, met: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(tc.in, th)
			if d.ShouldRetrain != tc.want || d.ConditionsMet != tc.met {
				t.Errorf("retrain=%v met=%d, want %v/%d", d.ShouldRetrain, d.ConditionsMet, tc.want, tc.met)
			}
			if d.ConditionsMet > 0 && len(d.Reasons) != d.ConditionsMet {
				t.Errorf("reasons = %v, want one per met condition", d.Reasons)
			}
		})
	}
}

func TestEvaluateConfidenceAndUrgency(t *testing.T) {
	th := Thresholds{}

	all := Evaluate(Inputs{FeedbackCount: 50, DriftScore: 0.99, RecentAccuracy: 0.5, HasAccuracy: true}, th)
	if all.Confidence != 1.0 || all.Urgency != "high" {
		t.Errorf("all conditions: confidence=%v urgency=%s", all.Confidence, all.Urgency)
	}
	if all.NextCheck != 24*time.Hour {
		t.Errorf("next check = %v, want 24h", all.NextCheck)
	}

	none := Evaluate(Inputs{}, th)
	if none.Confidence != 0 || none.Urgency != "low" {
		t.Errorf("no conditions: confidence=%v urgency=%s", none.Confidence, none.Urgency)
	}
	if len(none.Recommendations) == 0 {
		t.Error("decision should always carry a recommendation")
	}
}

func TestTriggerCheckLogsPositiveDecision(t *testing.T) {
	s, err := db.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 12; i++ {
		rec := &db.FeedbackRecord{MetricName: "demand", Status: "incorrect", CreatedAt: now}
		if _, err := s.AppendFeedback(ctx, rec); err != nil {
			t.Fatalf("AppendFeedback: %v", err)
		}
	}
	if err := s.AppendMonitoringEvent(ctx, &db.MonitoringEventRecord{
		MetricName:   "demand",
		DetectorKind: models.KindDrift,
		Score:        0.98,
		Flagged:      true,
		EvidenceJSON: `{}`,
		EvaluatedAt:  now,
	}); err != nil {
		t.Fatalf("AppendMonitoringEvent: %v", err)
	}

	trigger := NewTrigger(s, Thresholds{}, nil)
	decision, err := trigger.Check(ctx, "demand")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !decision.ShouldRetrain {
		t.Fatalf("decision = %+v, want retrain", decision)
	}

	entries, err := s.ListRetrainingLog(ctx, 10)
	if err != nil {
		t.Fatalf("ListRetrainingLog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	if entries[0].Status != "pending" || entries[0].FeedbackCount != 12 {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestTriggerCheckNegativeDoesNotLog(t *testing.T) {
	s, err := db.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	trigger := NewTrigger(s, Thresholds{}, nil)
	decision, err := trigger.Check(ctx, "demand")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if decision.ShouldRetrain {
		t.Fatal("empty store should not recommend retraining")
	}
	entries, err := s.ListRetrainingLog(ctx, 10)
	if err != nil {
		t.Fatalf("ListRetrainingLog: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("log entries = %d, want 0", len(entries))
	}
}
