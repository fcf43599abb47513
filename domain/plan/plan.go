// Package plan provides plan value types and pure functions.
package plan

import "github.com/artpar/guardrail/domain/usage"

// Unlimited marks a quota with no cap. It must never produce a block.
const Unlimited int64 = -1

// ModelWildcard in a plan's model list allows every model.
const ModelWildcard = "*"

// Limits holds the per-metric quotas for a plan (immutable value type).
// A value of -1 means unlimited.
type Limits struct {
	TokensPerMonth   int64
	RequestsPerMonth int64
	LogsPerMonth     int64
	Projects         int64
	Workflows        int64
	Seats            int64
	Models           []string // allowed model ids, "*" = all
}

// Plan represents a subscription tier (immutable value type).
type Plan struct {
	ID     string
	Name   string
	Limits Limits
}

// LimitFor returns the quota for a metric. Metrics without a plan quota
// (such as cost) report Unlimited.
// This is a PURE function.
func (l Limits) LimitFor(metric usage.Metric) int64 {
	switch metric {
	case usage.MetricTokens:
		return l.TokensPerMonth
	case usage.MetricRequests:
		return l.RequestsPerMonth
	case usage.MetricLogs:
		return l.LogsPerMonth
	case usage.MetricProjects:
		return l.Projects
	case usage.MetricWorkflows:
		return l.Workflows
	default:
		return Unlimited
	}
}

// AllowsModel checks whether a model id is permitted by the plan.
// An empty model id is always allowed (no capability requested).
// This is a PURE function.
func (l Limits) AllowsModel(modelID string) bool {
	if modelID == "" {
		return true
	}
	for _, m := range l.Models {
		if m == ModelWildcard || m == modelID {
			return true
		}
	}
	return false
}

// IsUnlimited checks if a limit value means no cap.
func IsUnlimited(limit int64) bool {
	return limit < 0
}

// Find locates a plan by ID in a list.
// This is a PURE function.
func Find(plans []Plan, id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
