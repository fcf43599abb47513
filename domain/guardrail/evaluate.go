// Package guardrail provides pure admission decision logic.
// All functions are deterministic with no side effects. Recording usage
// happens separately, after the caller proceeds, so repeated checks never
// inflate counters.
package guardrail

import (
	"fmt"

	"github.com/artpar/guardrail/domain/plan"
	"github.com/artpar/guardrail/domain/usage"
)

// ViolationType classifies how a limit was crossed.
type ViolationType string

const (
	ViolationWarning ViolationType = "warning" // approaching the limit
	ViolationSoft    ViolationType = "soft"    // over limit on a rate-shaped metric
	ViolationHard    ViolationType = "hard"    // over limit on a hard-capped metric
)

// Action is the admission outcome of a check.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionThrottle Action = "throttle"
	ActionBlock    Action = "block"
)

// LimitShape determines what happens when a metric exceeds its quota.
type LimitShape string

const (
	ShapeHardCapped LimitShape = "hard_capped" // block at 100%
	ShapeRateShaped LimitShape = "rate_shaped" // throttle at 100%
)

// Thresholds consolidates the percentage boundaries shared between the
// evaluator and anomaly scoring, so presentation layers cannot disagree.
type Thresholds struct {
	WarnPercent  float64 // warning tier lower bound (default 75)
	BlockPercent float64 // hard tier lower bound (default 100)
}

// DefaultThresholds returns the standard tiering boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{WarnPercent: 75, BlockPercent: 100}
}

// Policy combines thresholds with the per-metric shape table.
type Policy struct {
	Thresholds Thresholds
	Shapes     map[usage.Metric]LimitShape
}

// DefaultPolicy returns the standard policy: quota-bounded metrics block,
// rate-shaped metrics throttle.
func DefaultPolicy() Policy {
	return Policy{
		Thresholds: DefaultThresholds(),
		Shapes: map[usage.Metric]LimitShape{
			usage.MetricTokens:    ShapeHardCapped,
			usage.MetricRequests:  ShapeHardCapped,
			usage.MetricLogs:      ShapeHardCapped,
			usage.MetricProjects:  ShapeRateShaped,
			usage.MetricWorkflows: ShapeRateShaped,
		},
	}
}

// shapeFor returns the shape for a metric, defaulting to hard-capped.
func (p Policy) shapeFor(metric usage.Metric) LimitShape {
	if s, ok := p.Shapes[metric]; ok {
		return s
	}
	return ShapeHardCapped
}

// Violation describes a crossed or approached limit (value type).
// Produced fresh per evaluation, never persisted standalone.
type Violation struct {
	Type        ViolationType `json:"type"`
	Metric      usage.Metric  `json:"metric"`
	Current     float64       `json:"current"`
	Limit       int64         `json:"limit"`
	Percentage  float64       `json:"percentage"`
	Action      Action        `json:"action"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// Decision is the outcome of an admission check (value type).
// A check never fails; it always yields a Decision.
type Decision struct {
	Allowed    bool       `json:"allowed"`
	Action     Action     `json:"action"`
	Percentage float64    `json:"percentage"`
	Violation  *Violation `json:"violation,omitempty"`
}

// Request describes a proposed usage delta.
type Request struct {
	Metric  usage.Metric
	Amount  float64
	ModelID string // optional capability requirement
}

// Evaluate converts a proposed usage delta into an admission decision.
// This is a PURE function - no side effects, deterministic.
//
// Order of checks:
//  1. Model capability gate - a disallowed model blocks regardless of quota.
//  2. Unlimited quota (-1) allows with percentage 0.
//  3. Projected percentage against the tiering thresholds.
func Evaluate(current float64, limits plan.Limits, policy Policy, req Request) Decision {
	if !limits.AllowsModel(req.ModelID) {
		return Decision{
			Allowed: false,
			Action:  ActionBlock,
			Violation: &Violation{
				Type:       ViolationHard,
				Metric:     req.Metric,
				Current:    current,
				Limit:      0,
				Percentage: 0,
				Action:     ActionBlock,
				Suggestions: []string{
					fmt.Sprintf("model %q is not included in your plan; switch to an allowed model or upgrade", req.ModelID),
				},
			},
		}
	}

	limit := limits.LimitFor(req.Metric)
	if plan.IsUnlimited(limit) {
		return Decision{Allowed: true, Action: ActionAllow, Percentage: 0}
	}

	projected := current + req.Amount
	var percentage float64
	if limit > 0 {
		percentage = projected / float64(limit) * 100
	} else {
		// Zero limit: any positive projection is over.
		if projected > 0 {
			percentage = policy.Thresholds.BlockPercent
		}
	}

	t := policy.Thresholds
	switch {
	case percentage >= t.BlockPercent:
		action := ActionBlock
		vtype := ViolationHard
		if policy.shapeFor(req.Metric) == ShapeRateShaped {
			action = ActionThrottle
			vtype = ViolationSoft
		}
		return Decision{
			Allowed:    action == ActionThrottle,
			Action:     action,
			Percentage: percentage,
			Violation: &Violation{
				Type:        vtype,
				Metric:      req.Metric,
				Current:     projected,
				Limit:       limit,
				Percentage:  percentage,
				Action:      action,
				Suggestions: Suggestions(req.Metric, percentage),
			},
		}
	case percentage >= t.WarnPercent:
		return Decision{
			Allowed:    true,
			Action:     ActionAllow,
			Percentage: percentage,
			Violation: &Violation{
				Type:        ViolationWarning,
				Metric:      req.Metric,
				Current:     projected,
				Limit:       limit,
				Percentage:  percentage,
				Action:      ActionAllow,
				Suggestions: Suggestions(req.Metric, percentage),
			},
		}
	default:
		return Decision{Allowed: true, Action: ActionAllow, Percentage: percentage}
	}
}

// Suggestions returns 1-3 remediation hints for a metric nearing its limit.
// This is a PURE function.
func Suggestions(metric usage.Metric, percentage float64) []string {
	var out []string
	switch metric {
	case usage.MetricTokens:
		out = append(out, "enable prompt caching to cut repeated system-prompt tokens")
		out = append(out, "downgrade simple requests to a smaller model")
		if percentage >= 100 {
			out = append(out, "upgrade your plan for a higher monthly token quota")
		}
	case usage.MetricRequests:
		out = append(out, "batch related calls into fewer requests")
		if percentage >= 100 {
			out = append(out, "upgrade your plan for a higher monthly request quota")
		}
	case usage.MetricLogs:
		out = append(out, "lower log verbosity or sample high-volume traces")
		if percentage >= 100 {
			out = append(out, "upgrade your plan for a higher log quota")
		}
	default:
		out = append(out, "review usage for "+string(metric)+" or upgrade your plan")
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// State classifies the per-metric state machine position.
type State string

const (
	StateNormal   State = "normal"   // < warn threshold
	StateWarning  State = "warning"  // warn..block
	StateExceeded State = "exceeded" // >= block threshold
)

// StateFor maps a usage percentage onto the state machine. No hysteresis:
// a metric returns to Normal the instant the percentage drops back under
// the threshold (sticky behaviour is a configuration choice in the alert
// manager, not here).
// This is a PURE function.
func StateFor(percentage float64, t Thresholds) State {
	switch {
	case percentage >= t.BlockPercent:
		return StateExceeded
	case percentage >= t.WarnPercent:
		return StateWarning
	default:
		return StateNormal
	}
}
