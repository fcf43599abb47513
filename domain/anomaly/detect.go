package anomaly

import (
	"fmt"

	"github.com/artpar/guardrail/domain/cost"
)

// Anomaly type names emitted by the detectors.
const (
	TypeRetryStorm   = "retry_storm"
	TypeContextBloat = "context_bloat"
	TypeToolLoop     = "tool_loop"
)

// DetectorConfig holds the detector thresholds. Thresholds are
// configuration, not literals embedded in logic.
type DetectorConfig struct {
	RetryStormPercent     float64 `yaml:"retry_storm_percent"`      // retries share of total cost
	ContextBloatDayGrowth float64 `yaml:"context_bloat_day_growth"` // day-over-day growth rate, 0.5 = +50%/day
	ToolLoopMaxCalls      int     `yaml:"tool_loop_max_calls"`      // tool-call events per trace
	SpikeFactor           float64 `yaml:"spike_factor"`             // last-day multiple of the smoothed rate
}

// DefaultDetectorConfig returns the standard thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		RetryStormPercent:     15,
		ContextBloatDayGrowth: 0.5,
		ToolLoopMaxCalls:      20,
		SpikeFactor:           2,
	}
}

// Input carries everything the detectors inspect. The detectors run
// independently; each may emit one typed anomaly.
type Input struct {
	Analysis          cost.Analysis
	ContextDailyCosts []float64      // context_window spend per day, chronological
	ToolCallsPerTrace map[string]int // tool-call event counts keyed by trace id
}

// Detect runs every pattern detector against the input.
// This is a PURE function.
func Detect(in Input, cfg DetectorConfig, table cost.OptimizationTable) []Anomaly {
	var out []Anomaly
	if a, ok := detectRetryStorm(in.Analysis, cfg); ok {
		out = append(out, a)
	}
	if a, ok := detectContextBloat(in.ContextDailyCosts, cfg, table); ok {
		out = append(out, a)
	}
	if a, ok := detectToolLoop(in.ToolCallsPerTrace, in.Analysis, cfg, table); ok {
		out = append(out, a)
	}
	return out
}

// detectRetryStorm fires when the retries driver exceeds its configured
// share of total cost.
func detectRetryStorm(a cost.Analysis, cfg DetectorConfig) (Anomaly, bool) {
	for _, d := range a.Drivers {
		if d.Type != cost.DriverRetries {
			continue
		}
		if d.PercentOfTotal <= cfg.RetryStormPercent {
			return Anomaly{}, false
		}
		return Anomaly{
			Type: TypeRetryStorm,
			Description: fmt.Sprintf("retries account for %.0f%% of spend ($%.2f), above the %.0f%% threshold",
				d.PercentOfTotal, d.CostImpact, cfg.RetryStormPercent),
			CostImpact:            d.CostImpact,
			Severity:              severityForImpactShare(d.PercentOfTotal),
			OptimizationPotential: d.OptimizationPotential,
		}, true
	}
	return Anomaly{}, false
}

// detectContextBloat fires when context_window cost grows faster than the
// configured day-over-day rate on the most recent day.
func detectContextBloat(daily []float64, cfg DetectorConfig, table cost.OptimizationTable) (Anomaly, bool) {
	if len(daily) < 2 {
		return Anomaly{}, false
	}
	prev := daily[len(daily)-2]
	last := daily[len(daily)-1]
	if prev <= 0 || last <= prev*(1+cfg.ContextBloatDayGrowth) {
		return Anomaly{}, false
	}
	growth := (last - prev) / prev
	return Anomaly{
		Type: TypeContextBloat,
		Description: fmt.Sprintf("context window cost grew %.0f%% day-over-day ($%.2f -> $%.2f)",
			growth*100, prev, last),
		CostImpact:            last - prev,
		Severity:              severityForImpactShare(growth * 100),
		OptimizationPotential: table[cost.DriverContextWindow](last - prev),
	}, true
}

// detectToolLoop fires when any trace exceeds the per-trace tool-call
// ceiling.
func detectToolLoop(byTrace map[string]int, a cost.Analysis, cfg DetectorConfig, table cost.OptimizationTable) (Anomaly, bool) {
	worstTrace, worst := "", 0
	for trace, n := range byTrace {
		if n > worst {
			worstTrace, worst = trace, n
		}
	}
	if worst <= cfg.ToolLoopMaxCalls {
		return Anomaly{}, false
	}
	var toolCost float64
	for _, d := range a.Drivers {
		if d.Type == cost.DriverToolCalls {
			toolCost = d.CostImpact
		}
	}
	return Anomaly{
		Type: TypeToolLoop,
		Description: fmt.Sprintf("trace %s made %d tool calls, above the ceiling of %d",
			worstTrace, worst, cfg.ToolLoopMaxCalls),
		CostImpact:            toolCost,
		Severity:              severityForImpactShare(float64(worst-cfg.ToolLoopMaxCalls) * 5),
		OptimizationPotential: table[cost.DriverToolCalls](toolCost),
	}, true
}

// severityForImpactShare derives a severity from a 0-100 magnitude using
// the shared score buckets.
func severityForImpactShare(magnitude float64) Severity {
	if magnitude > 100 {
		magnitude = 100
	}
	if magnitude < 0 {
		magnitude = 0
	}
	return SeverityFor(magnitude)
}
