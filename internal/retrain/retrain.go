// Package retrain decides when the monitored model has degraded enough
// to be worth retraining, combining accumulated feedback, distribution
// drift and observed accuracy drop.
package retrain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/internal/db"
	"github.com/modelwatch/modelwatch/internal/models"
)

// Thresholds gate the three retraining conditions. Zero values fall
// back to defaults.
type Thresholds struct {
	// MinFeedback is the feedback volume needed before the signal counts.
	MinFeedback int
	// DriftScore is on the 1-p scale used by the drift detector.
	DriftScore float64
	// AccuracyDrop is baseline accuracy minus recent accuracy.
	AccuracyDrop float64
	// BaselineAccuracy is the accuracy the model shipped with.
	BaselineAccuracy float64
	// Lookback bounds the feedback and drift windows considered.
	Lookback time.Duration
}

func (t Thresholds) normalized() Thresholds {
	if t.MinFeedback <= 0 {
		t.MinFeedback = 10
	}
	if t.DriftScore <= 0 {
		t.DriftScore = 0.95
	}
	if t.AccuracyDrop <= 0 {
		t.AccuracyDrop = 0.10
	}
	if t.BaselineAccuracy <= 0 {
		t.BaselineAccuracy = 0.90
	}
	if t.Lookback <= 0 {
		t.Lookback = 7 * 24 * time.Hour
	}
	return t
}

// Inputs are the raw signals a decision is made from.
type Inputs struct {
	FeedbackCount  int
	DriftScore     float64
	RecentAccuracy float64
	// HasAccuracy distinguishes "no feedback yet" from zero accuracy.
	HasAccuracy bool
}

// Decision is the outcome of one trigger evaluation. Retraining is
// recommended when at least two of the three conditions hold.
type Decision struct {
	ShouldRetrain bool
	ConditionsMet int
	// Confidence grows with the number and strength of met conditions.
	Confidence   float64
	AccuracyDrop float64
	Reasons      []string
	// Urgency is low, medium or high.
	Urgency string
	// NextCheck suggests how long to wait before re-evaluating.
	NextCheck time.Duration
	Recommendations []string
}

// Evaluate applies the two-of-three rule to the inputs.
func Evaluate(in Inputs, th Thresholds) Decision {
	t := th.normalized()
	d := Decision{}

	if in.FeedbackCount >= t.MinFeedback {
		d.ConditionsMet++
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("feedback volume %d reached threshold %d", in.FeedbackCount, t.MinFeedback))
	}
	if in.DriftScore >= t.DriftScore {
		d.ConditionsMet++
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("drift score %.3f reached threshold %.3f", in.DriftScore, t.DriftScore))
	}
	if in.HasAccuracy {
		d.AccuracyDrop = t.BaselineAccuracy - in.RecentAccuracy
		if d.AccuracyDrop >= t.AccuracyDrop {
			d.ConditionsMet++
			d.Reasons = append(d.Reasons,
				fmt.Sprintf("accuracy dropped %.3f below baseline %.3f", d.AccuracyDrop, t.BaselineAccuracy))
		}
	}

	d.ShouldRetrain = d.ConditionsMet >= 2
	d.Confidence = float64(d.ConditionsMet) / 3.0

	switch {
	case d.ConditionsMet >= 3:
		d.Urgency = "high"
		d.NextCheck = 24 * time.Hour
		d.Recommendations = append(d.Recommendations,
			"retrain immediately with the accumulated feedback",
			"review recent input distributions before selecting training data")
	case d.ConditionsMet == 2:
		d.Urgency = "medium"
		d.NextCheck = 3 * 24 * time.Hour
		d.Recommendations = append(d.Recommendations,
			"schedule retraining within the next few days",
			"collect additional labeled feedback to confirm the degradation")
	case d.ConditionsMet == 1:
		d.Urgency = "low"
		d.NextCheck = 7 * 24 * time.Hour
		d.Recommendations = append(d.Recommendations,
			"keep monitoring; a single signal is not yet conclusive")
	default:
		d.Urgency = "low"
		d.NextCheck = 7 * 24 * time.Hour
		d.Recommendations = append(d.Recommendations, "model healthy, no action needed")
	}
	return d
}

// Trigger gathers the inputs from storage and logs positive decisions.
type Trigger struct {
	feedback db.FeedbackStore
	events   db.MonitoringEventStore
	logStore db.RetrainingLogStore
	log      *zap.Logger
	th       Thresholds
}

// NewTrigger wires a trigger over the persistence layer.
func NewTrigger(store db.Store, th Thresholds, log *zap.Logger) *Trigger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trigger{
		feedback: store,
		events:   store,
		logStore: store,
		log:      log,
		th:       th.normalized(),
	}
}

// Check evaluates the trigger for one drift-bearing metric. A positive
// decision is appended to the retraining log as pending.
func (tr *Trigger) Check(ctx context.Context, metricName string) (Decision, error) {
	since := time.Now().UTC().Add(-tr.th.Lookback)

	count, err := tr.feedback.FeedbackCount(ctx, since)
	if err != nil {
		return Decision{}, fmt.Errorf("feedback count: %w", err)
	}

	var driftScore float64
	event, err := tr.events.LatestMonitoringEvent(ctx, metricName, models.KindDrift)
	if err != nil {
		return Decision{}, fmt.Errorf("latest drift event: %w", err)
	}
	if event != nil && event.EvaluatedAt.After(since) {
		driftScore = event.Score
	}

	accuracy, hasAccuracy, err := tr.feedback.FeedbackAccuracy(ctx, since)
	if err != nil {
		return Decision{}, fmt.Errorf("feedback accuracy: %w", err)
	}

	decision := Evaluate(Inputs{
		FeedbackCount:  count,
		DriftScore:     driftScore,
		RecentAccuracy: accuracy,
		HasAccuracy:    hasAccuracy,
	}, tr.th)

	if decision.ShouldRetrain {
		rec := &db.RetrainingLogRecord{
			Reason:        strings.Join(decision.Reasons, "; "),
			FeedbackCount: count,
			DriftScore:    driftScore,
			AccuracyDrop:  decision.AccuracyDrop,
			Confidence:    decision.Confidence,
			Status:        "pending",
			StartedAt:     time.Now().UTC(),
		}
		if _, err := tr.logStore.AppendRetrainingLog(ctx, rec); err != nil {
			return decision, fmt.Errorf("append retraining log: %w", err)
		}
		tr.log.Warn("retraining recommended",
			zap.String("metric", metricName),
			zap.Int("conditions_met", decision.ConditionsMet),
			zap.Float64("confidence", decision.Confidence),
			zap.String("urgency", decision.Urgency))
	}
	return decision, nil
}
