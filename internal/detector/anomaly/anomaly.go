// Package anomaly flags individual metric observations that deviate
// from their trailing baseline by more than a z-score threshold.
package anomaly

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/modelwatch/modelwatch/internal/models"
)

// DefaultThreshold is the z-score above which an observation is flagged.
const DefaultThreshold = 3.0

// DefaultWindowSize is the number of trailing points forming the baseline.
const DefaultWindowSize = 30

// Detect evaluates the newest point of the series against the baseline
// formed by the windowSize points immediately before it. The baseline
// uses the population standard deviation. A series shorter than
// windowSize+1 yields an unflagged result with an insufficient-history
// reason; a zero-variance baseline flags any departure from the mean.
func Detect(series models.MetricSeries, windowSize int, threshold float64) models.DetectionResult {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	result := models.DetectionResult{
		MetricName:  series.Name,
		Kind:        models.KindAnomaly,
		EvaluatedAt: time.Now().UTC(),
	}

	values := series.Values()
	if len(values) < windowSize+1 {
		result.Evidence = &models.AnomalyEvidence{
			Threshold:  threshold,
			WindowSize: windowSize,
			Reason:     models.ReasonInsufficientHistory,
		}
		return result
	}

	newest := values[len(values)-1]
	baseline := values[len(values)-1-windowSize : len(values)-1]
	mean, stddev := popMeanStdDev(baseline)

	ev := &models.AnomalyEvidence{
		Mean:       mean,
		StdDev:     stddev,
		Value:      newest,
		Threshold:  threshold,
		WindowSize: windowSize,
	}
	result.Evidence = ev

	if stddev == 0 {
		// Degenerate baseline: any departure from the constant is anomalous.
		ev.Reason = models.ReasonZeroVariance
		if newest != mean {
			result.Flagged = true
			result.Score = threshold
			ev.ZScore = threshold
		}
		return result
	}

	z := (newest - mean) / stddev
	ev.ZScore = z
	result.Score = math.Abs(z)
	result.Flagged = result.Score > threshold
	return result
}

// popMeanStdDev computes the mean and population standard deviation
// (divisor N, not N-1) of the baseline window.
func popMeanStdDev(values []float64) (float64, float64) {
	mean := stat.Mean(values, nil)
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return mean, math.Sqrt(sum / float64(len(values)))
}
