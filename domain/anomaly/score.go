// Package anomaly provides pure cost anomaly scoring and detection.
package anomaly

import (
	"math"

	"github.com/artpar/guardrail/domain/cost"
)

// Severity buckets an anomaly score. Buckets are contiguous and
// exhaustive over [0,100].
type Severity string

const (
	SeverityLow      Severity = "low"      // [0,25)
	SeverityMedium   Severity = "medium"   // [25,50)
	SeverityHigh     Severity = "high"     // [50,75)
	SeverityCritical Severity = "critical" // [75,100]
)

// SeverityFor maps a score onto its severity bucket.
// This is a PURE function.
func SeverityFor(score float64) Severity {
	switch {
	case score >= 75:
		return SeverityCritical
	case score >= 50:
		return SeverityHigh
	case score >= 25:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Weights combines the score terms; they should sum to 1.
type Weights struct {
	Deviation     float64 `yaml:"deviation"`
	Concentration float64 `yaml:"concentration"`
	Spike         float64 `yaml:"spike"`
}

// DefaultWeights returns the standard term weighting.
func DefaultWeights() Weights {
	return Weights{Deviation: 0.5, Concentration: 0.3, Spike: 0.2}
}

// Anomaly is a typed cost anomaly record (value type).
type Anomaly struct {
	Type                  string   `json:"type"`
	Description           string   `json:"description"`
	CostImpact            float64  `json:"cost_impact"`
	Severity              Severity `json:"severity"`
	OptimizationPotential float64  `json:"optimization_potential"`
}

// Result carries the composite score and the detector findings.
type Result struct {
	Score     float64   `json:"anomaly_score"` // in [0,100]
	Severity  Severity  `json:"severity"`
	Anomalies []Anomaly `json:"anomalies"`
}

// Concentration is a Herfindahl-style sum of squared driver shares:
// 0 means spend is evenly spread, 1 means a single driver dominates.
// This is a PURE function.
func Concentration(drivers []cost.Driver) float64 {
	var h float64
	for _, d := range drivers {
		share := d.PercentOfTotal / 100
		h += share * share
	}
	return clamp01(h)
}

// Score composes the anomaly score from deviation, concentration, and a
// spike flag. Each term is clamped to [0,1] before weighting; the result
// is scaled to [0,100].
// This is a PURE function.
func Score(deviationPct float64, drivers []cost.Driver, spike bool, w Weights) float64 {
	// Spending 100% or more over baseline saturates the deviation term;
	// spending under baseline is not anomalous.
	dev := clamp01(math.Max(0, deviationPct) / 100)
	conc := Concentration(drivers)
	var spikeTerm float64
	if spike {
		spikeTerm = 1
	}
	score := (w.Deviation*dev + w.Concentration*conc + w.Spike*spikeTerm) * 100
	return math.Max(0, math.Min(100, score))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
