// Package alert provides alert value types and the pure dedupe rule.
package alert

import (
	"time"

	"github.com/artpar/guardrail/domain/anomaly"
	"github.com/artpar/guardrail/domain/usage"
)

// Type classifies what condition produced an alert.
type Type string

const (
	TypeQuotaWarning  Type = "quota_warning"
	TypeQuotaExceeded Type = "quota_exceeded"
	TypeCostAnomaly   Type = "cost_anomaly"
)

// Alert is a materialized, persisted notification.
// Lifecycle: created active, MarkAsRead transitions to read. Dismissal is
// durable and server-side; a read alert stays stored.
type Alert struct {
	ID        string            `json:"_id"`
	AccountID string            `json:"account_id"`
	Type      Type              `json:"type"`
	Metric    string            `json:"metric"` // usage metric or anomaly type
	Severity  anomaly.Severity  `json:"severity"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Key identifies the dedupe scope: one live alert per account+type+metric.
type Key struct {
	AccountID string
	Type      Type
	Metric    string
}

// DedupeKey returns the alert's dedupe key.
func (a Alert) DedupeKey() Key {
	return Key{AccountID: a.AccountID, Type: a.Type, Metric: a.Metric}
}

// severityRank orders severities for the escalation rule.
var severityRank = map[anomaly.Severity]int{
	anomaly.SeverityLow:      0,
	anomaly.SeverityMedium:   1,
	anomaly.SeverityHigh:     2,
	anomaly.SeverityCritical: 3,
}

// ShouldEmit decides whether a candidate alert may be created given the
// most recent alert for the same key. Within the cooldown window a new
// alert is suppressed unless its severity increased; read alerts suppress
// the same way, so acknowledging an alert does not resurrect it while the
// underlying condition persists.
// This is a PURE function.
func ShouldEmit(latest *Alert, candidate Alert, now time.Time, cooldown time.Duration) bool {
	if latest == nil {
		return true
	}
	if severityRank[candidate.Severity] > severityRank[latest.Severity] {
		return true
	}
	return now.Sub(latest.CreatedAt) >= cooldown
}

// QuotaTypeFor maps a usage percentage state onto the alert type, or
// false when no alert applies.
// This is a PURE function.
func QuotaTypeFor(percentage, warnPct, blockPct float64) (Type, bool) {
	switch {
	case percentage >= blockPct:
		return TypeQuotaExceeded, true
	case percentage >= warnPct:
		return TypeQuotaWarning, true
	default:
		return "", false
	}
}

// QuotaSeverity derives alert severity from the usage percentage.
// This is a PURE function.
func QuotaSeverity(percentage float64) anomaly.Severity {
	switch {
	case percentage >= 100:
		return anomaly.SeverityCritical
	case percentage >= 90:
		return anomaly.SeverityHigh
	default:
		return anomaly.SeverityMedium
	}
}

// MetricName normalizes a usage metric for the dedupe key.
func MetricName(m usage.Metric) string {
	return string(m)
}
