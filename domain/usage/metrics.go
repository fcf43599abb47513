// Package usage provides usage metric types and period arithmetic.
// All functions are pure - no side effects.
package usage

import (
	"sort"
	"time"
)

// Metric identifies a metered counter.
type Metric string

const (
	MetricTokens    Metric = "tokens"
	MetricRequests  Metric = "requests"
	MetricLogs      Metric = "logs"
	MetricProjects  Metric = "projects"
	MetricWorkflows Metric = "workflows"
	MetricCost      Metric = "cost"
)

// AllMetrics lists every metered counter in stable order.
var AllMetrics = []Metric{
	MetricTokens,
	MetricRequests,
	MetricLogs,
	MetricProjects,
	MetricWorkflows,
	MetricCost,
}

// IsValidMetric checks if a metric name is known.
func IsValidMetric(m Metric) bool {
	for _, known := range AllMetrics {
		if m == known {
			return true
		}
	}
	return false
}

// Metrics holds the current-period counters for one account plus a
// daily-bucketed history keyed by UTC date (value type). Mutated only by
// the usage meter; rollover replaces the whole value, never overwrites
// counters in place.
type Metrics struct {
	AccountID string
	PeriodKey string                        // monotonically increasing "2006-01"
	Counters  map[Metric]float64            // current-period totals
	Daily     map[Metric]map[string]float64 // metric -> "2006-01-02" -> amount
}

// NewMetrics creates an empty Metrics value for the given period.
func NewMetrics(accountID, periodKey string) Metrics {
	return Metrics{
		AccountID: accountID,
		PeriodKey: periodKey,
		Counters:  make(map[Metric]float64),
		Daily:     make(map[Metric]map[string]float64),
	}
}

// Clone returns a deep copy, safe to hand to readers.
func (m Metrics) Clone() Metrics {
	out := NewMetrics(m.AccountID, m.PeriodKey)
	for k, v := range m.Counters {
		out.Counters[k] = v
	}
	for metric, days := range m.Daily {
		dst := make(map[string]float64, len(days))
		for d, v := range days {
			dst[d] = v
		}
		out.Daily[metric] = dst
	}
	return out
}

// Current returns the current-period total for a metric.
func (m Metrics) Current(metric Metric) float64 {
	return m.Counters[metric]
}

// PeriodKeyFor returns the billing period key for a time (monthly, UTC).
// Keys sort lexically in chronological order.
func PeriodKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// DayKeyFor returns the daily bucket key for a time (UTC).
func DayKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// PeriodBounds returns the start and end of the billing period containing t.
func PeriodBounds(t time.Time) (start, end time.Time) {
	u := t.UTC()
	start = time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return
}

// DaysElapsed returns the number of complete or partial days elapsed in the
// period containing t, counting today.
func DaysElapsed(t time.Time) int {
	return t.UTC().Day()
}

// DaysInPeriod returns the number of days in the period containing t.
func DaysInPeriod(t time.Time) int {
	start, end := PeriodBounds(t)
	return int(end.Sub(start).Hours() / 24)
}

// DailyPoint is one day of a usage or cost series (value type).
type DailyPoint struct {
	Date  string  `json:"date"` // "2006-01-02"
	Value float64 `json:"value"`
}

// DailySeries extracts a sorted daily series for one metric between two
// date keys inclusive. Days with no data are omitted.
func DailySeries(m Metrics, metric Metric, fromDay, toDay string) []DailyPoint {
	days := m.Daily[metric]
	var out []DailyPoint
	for d, v := range days {
		if d < fromDay || d > toDay {
			continue
		}
		out = append(out, DailyPoint{Date: d, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
