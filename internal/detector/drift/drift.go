// Package drift compares a recent window of a metric against a
// reference window with the two-sample Kolmogorov-Smirnov test.
package drift

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/modelwatch/modelwatch/internal/models"
)

// DefaultAlpha is the significance level below which drift is flagged.
const DefaultAlpha = 0.05

// DefaultMinSamples is the smallest window size the test accepts.
const DefaultMinSamples = 10

// Params tunes a drift evaluation. Zero values fall back to defaults.
type Params struct {
	Alpha      float64
	MinSamples int
}

func (p Params) normalized() Params {
	if p.Alpha <= 0 || p.Alpha >= 1 {
		p.Alpha = DefaultAlpha
	}
	if p.MinSamples <= 0 {
		p.MinSamples = DefaultMinSamples
	}
	return p
}

// Detect runs the two-sample KS test of recent against reference and
// flags when the asymptotic p-value falls below alpha. Either window
// below MinSamples yields an unflagged result with an
// insufficient-samples reason. The score is 1 minus the p-value, so
// stronger evidence of drift scores higher.
func Detect(metricName string, reference, recent []float64, params Params) models.DetectionResult {
	p := params.normalized()

	result := models.DetectionResult{
		MetricName:  metricName,
		Kind:        models.KindDrift,
		EvaluatedAt: time.Now().UTC(),
	}

	if len(reference) < p.MinSamples || len(recent) < p.MinSamples {
		result.Evidence = &models.DriftEvidence{
			Alpha:         p.Alpha,
			ReferenceSize: len(reference),
			RecentSize:    len(recent),
			Reason:        models.ReasonInsufficientSamples,
		}
		return result
	}

	refSorted := sortedCopy(reference)
	recSorted := sortedCopy(recent)

	d := stat.KolmogorovSmirnov(refSorted, nil, recSorted, nil)
	pValue := ksPValue(d, len(reference), len(recent))

	result.Score = 1 - pValue
	result.Flagged = pValue < p.Alpha
	result.Evidence = &models.DriftEvidence{
		KSStatistic:   d,
		PValue:        pValue,
		Alpha:         p.Alpha,
		ReferenceSize: len(reference),
		RecentSize:    len(recent),
		ReferenceMean: stat.Mean(reference, nil),
		RecentMean:    stat.Mean(recent, nil),
	}
	return result
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

// ksPValue is the asymptotic two-sample KS significance
// Q(λ) = 2 Σ_{j≥1} (−1)^{j−1} e^{−2 j² λ²} with the small-sample
// correction λ = (√n_e + 0.12 + 0.11/√n_e)·D, n_e = n·m/(n+m).
func ksPValue(d float64, n, m int) float64 {
	en := math.Sqrt(float64(n) * float64(m) / float64(n+m))
	lambda := (en + 0.12 + 0.11/en) * d
	if lambda <= 0 {
		return 1
	}

	var sum float64
	sign := 1.0
	for j := 1; j <= 100; j++ {
		term := sign * math.Exp(-2*lambda*lambda*float64(j)*float64(j))
		sum += term
		if math.Abs(term) < 1e-10 {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
