// Package cost provides cost event types and pure attribution functions.
package cost

import "time"

// DriverType names a category of spend. The set is closed: behaviour per
// driver lives in strategy tables keyed by these constants, never in
// string-keyed conditionals.
type DriverType string

const (
	DriverSystemPrompt   DriverType = "system_prompt"
	DriverToolCalls      DriverType = "tool_calls"
	DriverContextWindow  DriverType = "context_window"
	DriverRetries        DriverType = "retries"
	DriverCacheMiss      DriverType = "cache_miss"
	DriverModelSwitching DriverType = "model_switching"
	DriverNetwork        DriverType = "network"
	DriverDatabase       DriverType = "database"
)

// AllDrivers lists every driver type in stable order.
var AllDrivers = []DriverType{
	DriverSystemPrompt,
	DriverToolCalls,
	DriverContextWindow,
	DriverRetries,
	DriverCacheMiss,
	DriverModelSwitching,
	DriverNetwork,
	DriverDatabase,
}

// IsValidDriver checks if a driver type is known.
func IsValidDriver(d DriverType) bool {
	for _, known := range AllDrivers {
		if d == known {
			return true
		}
	}
	return false
}

// Event is a single immutable cost event. Events are append-only; the
// event log is the source of truth for attribution.
type Event struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"account_id"`
	Timestamp  time.Time  `json:"timestamp"`
	Driver     DriverType `json:"driver"`
	CostImpact float64    `json:"cost_impact"`
	TraceID    string     `json:"trace_id,omitempty"` // optional, groups events of one request trace
}

// explanations is the fixed per-driver narrative used in reports.
var explanations = map[DriverType]string{
	DriverSystemPrompt:   "system prompt tokens repeated on every call",
	DriverToolCalls:      "tool invocation rounds and their token overhead",
	DriverContextWindow:  "context carried beyond the configured baseline budget",
	DriverRetries:        "failed calls retried and billed again",
	DriverCacheMiss:      "responses recomputed instead of served from cache",
	DriverModelSwitching: "switches to higher-priced models mid-workflow",
	DriverNetwork:        "network egress and transfer charges",
	DriverDatabase:       "database reads and writes for request handling",
}

// Explanation returns the fixed narrative fragment for a driver.
func Explanation(d DriverType) string {
	if e, ok := explanations[d]; ok {
		return e
	}
	return string(d)
}
