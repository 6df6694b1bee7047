// Package trend classifies a metric's recent movement by ordinary
// least squares over the trailing window, using per-metric metadata to
// decide which direction counts as degradation.
package trend

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/modelwatch/modelwatch/internal/models"
)

// BadDirection says which way a metric moves when the model degrades.
// Error metrics degrade upward; accuracy-style metrics degrade downward.
type BadDirection string

const (
	BadUp   BadDirection = "up"
	BadDown BadDirection = "down"
)

// DefaultWindowSize is the number of trailing points regressed.
const DefaultWindowSize = 14

// DefaultThreshold is the absolute slope below which movement is stable.
const DefaultThreshold = 0.01

// minPoints is the fewest observations a meaningful slope needs.
const minPoints = 3

// Detect fits value against time index over the trailing windowSize
// points and classifies the movement. Only a degrading slope flags.
// Fewer than three points yields an unflagged result with an
// insufficient-history reason. The score is the absolute slope.
func Detect(series models.MetricSeries, windowSize int, threshold float64, bad BadDirection) models.DetectionResult {
	if windowSize < minPoints {
		windowSize = DefaultWindowSize
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if bad != BadDown {
		bad = BadUp
	}

	result := models.DetectionResult{
		MetricName:  series.Name,
		Kind:        models.KindTrend,
		EvaluatedAt: time.Now().UTC(),
	}

	values := series.Values()
	if len(values) > windowSize {
		values = values[len(values)-windowSize:]
	}
	if len(values) < minPoints {
		result.Evidence = &models.TrendEvidence{
			Threshold:  threshold,
			WindowSize: windowSize,
			Direction:  models.TrendStable,
			Reason:     models.ReasonInsufficientHistory,
		}
		return result
	}

	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, values, nil, false)

	direction := classify(slope, threshold, bad)
	result.Score = math.Abs(slope)
	result.Flagged = direction == models.TrendDegrading
	result.Evidence = &models.TrendEvidence{
		Slope:      slope,
		Threshold:  threshold,
		WindowSize: windowSize,
		Direction:  direction,
	}
	return result
}

func classify(slope, threshold float64, bad BadDirection) models.TrendDirection {
	if math.Abs(slope) <= threshold {
		return models.TrendStable
	}
	rising := slope > 0
	if (rising && bad == BadUp) || (!rising && bad == BadDown) {
		return models.TrendDegrading
	}
	return models.TrendImproving
}
