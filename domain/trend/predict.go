// Package trend provides pure usage projection functions.
// Projections use an exponentially-weighted moving average over daily
// deltas so acceleration is captured instead of flat extrapolation.
package trend

import "math"

// DefaultAlpha is the EWMA smoothing factor favouring recent days.
const DefaultAlpha = 0.3

// MinHistoryDays is the number of daily samples required before the
// variance-based confidence is considered stable.
const MinHistoryDays = 3

// LowConfidence is reported when history is too short for a stable
// variance statistic.
const LowConfidence = 0.3

// Prediction is a projected end-of-period total with a confidence score.
type Prediction struct {
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"` // in [0,1]
}

// EWMA computes the exponentially-weighted moving average of a series.
// Later values carry more weight. Returns 0 for an empty series.
// This is a PURE function.
func EWMA(values []float64, alpha float64) float64 {
	if len(values) == 0 {
		return 0
	}
	avg := values[0]
	for _, v := range values[1:] {
		avg = alpha*v + (1-alpha)*avg
	}
	return avg
}

// Predict projects the end-of-period total for a metric.
//
//	predicted = cumulative + ewmaDailyRate * daysRemaining
//
// dailyRates are the per-day amounts observed so far in the period.
// Confidence is 1 minus the normalized variance of the daily rates,
// clamped to [0,1]. Fewer than MinHistoryDays samples yield LowConfidence
// rather than an unstable statistic.
// This is a PURE function.
func Predict(dailyRates []float64, cumulative float64, daysRemaining int, alpha float64) Prediction {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}
	if daysRemaining < 0 {
		daysRemaining = 0
	}

	rate := EWMA(dailyRates, alpha)
	value := cumulative + rate*float64(daysRemaining)

	if len(dailyRates) < MinHistoryDays {
		return Prediction{Value: value, Confidence: LowConfidence}
	}

	confidence := clamp01(1 - normalizedVariance(dailyRates))
	return Prediction{Value: value, Confidence: confidence}
}

// normalizedVariance is the variance of the series divided by the square
// of its mean (squared coefficient of variation). A flat series scores 0.
func normalizedVariance(values []float64) float64 {
	n := float64(len(values))
	if n == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n
	if mean == 0 {
		return 1 // all-zero or cancelling series carries no signal
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	variance := ss / n
	return variance / (mean * mean)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
