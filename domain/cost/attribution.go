package cost

import (
	"fmt"
	"sort"
	"time"
)

// DeviationCap is the sentinel reported when no baseline exists; the
// analysis is additionally flagged with BaselineMissing.
const DeviationCap = 10000.0

// Driver is the aggregated spend for one driver type (value type).
// Invariants: CostImpact >= 0; across an analysis the PercentOfTotal
// values sum to ~100 when total cost is positive, all zero otherwise.
type Driver struct {
	Type                  DriverType `json:"driver_type"`
	CostImpact            float64    `json:"cost_impact"`
	PercentOfTotal        float64    `json:"percentage_of_total"`
	Explanation           string     `json:"explanation"`
	OptimizationPotential float64    `json:"optimization_potential"`
}

// Timeframe is a half-open interval [From, To).
type Timeframe struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Duration returns the timeframe length.
func (tf Timeframe) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

// Analysis is a derived, read-only attribution snapshot over a timeframe.
// Not persisted; recomputed per query.
type Analysis struct {
	AccountID        string    `json:"account_id"`
	Timeframe        Timeframe `json:"timeframe"`
	TotalCost        float64   `json:"total_cost"`
	ExpectedCost     float64   `json:"expected_cost"`
	DeviationPercent float64   `json:"deviation_percentage"`
	BaselineMissing  bool      `json:"baseline_missing"`
	Drivers          []Driver  `json:"drivers"`
	CostStory        string    `json:"cost_story"`
}

// DailyReport is a single-day attribution snapshot.
type DailyReport struct {
	AccountID  string   `json:"account_id"`
	Date       string   `json:"date"` // "2006-01-02"
	TotalCost  float64  `json:"total_cost"`
	EventCount int      `json:"event_count"`
	Drivers    []Driver `json:"drivers"`
	CostStory  string   `json:"cost_story"`
}

// OptimizationParams tunes the per-driver reclaim heuristics.
type OptimizationParams struct {
	CacheHitImprovement float64 // reclaimable fraction of cache_miss spend
	ContextBaselinePct  float64 // fraction of context spend considered budget
}

// DefaultOptimizationParams returns the standard heuristic tuning.
func DefaultOptimizationParams() OptimizationParams {
	return OptimizationParams{
		CacheHitImprovement: 0.6,
		ContextBaselinePct:  0.5,
	}
}

// OptimizationFunc estimates reclaimable spend for one driver bucket.
type OptimizationFunc func(costImpact float64) float64

// OptimizationTable maps each driver variant to its reclaim heuristic.
// Extending the engine with a new driver means adding a table entry, not
// another conditional.
type OptimizationTable map[DriverType]OptimizationFunc

// NewOptimizationTable builds the strategy table from tuning parameters.
func NewOptimizationTable(p OptimizationParams) OptimizationTable {
	fraction := func(f float64) OptimizationFunc {
		return func(c float64) float64 { return c * f }
	}
	return OptimizationTable{
		DriverRetries:        fraction(1.0), // retried spend is fully avoidable
		DriverCacheMiss:      fraction(p.CacheHitImprovement),
		DriverContextWindow:  fraction(1.0 - p.ContextBaselinePct),
		DriverSystemPrompt:   fraction(0.5), // cacheable prefix
		DriverToolCalls:      fraction(0.25),
		DriverModelSwitching: fraction(0.4),
		DriverNetwork:        fraction(0.1),
		DriverDatabase:       fraction(0.1),
	}
}

// potential applies the table, defaulting to zero for unknown drivers.
func (t OptimizationTable) potential(d DriverType, costImpact float64) float64 {
	if fn, ok := t[d]; ok {
		return fn(costImpact)
	}
	return 0
}

// Attribute buckets events by driver type and computes percentages and
// optimization potential. When total cost is zero all percentages are
// zero, never NaN. Drivers are returned sorted by cost impact descending,
// ties broken by driver type lexical order.
// This is a PURE function.
func Attribute(events []Event, table OptimizationTable) ([]Driver, float64) {
	buckets := make(map[DriverType]float64)
	var total float64
	for _, e := range events {
		if e.CostImpact <= 0 {
			continue
		}
		buckets[e.Driver] += e.CostImpact
		total += e.CostImpact
	}

	drivers := make([]Driver, 0, len(buckets))
	for dt, impact := range buckets {
		var pct float64
		if total > 0 {
			pct = impact / total * 100
		}
		drivers = append(drivers, Driver{
			Type:                  dt,
			CostImpact:            impact,
			PercentOfTotal:        pct,
			Explanation:           Explanation(dt),
			OptimizationPotential: table.potential(dt, impact),
		})
	}

	sort.Slice(drivers, func(i, j int) bool {
		if drivers[i].CostImpact != drivers[j].CostImpact {
			return drivers[i].CostImpact > drivers[j].CostImpact
		}
		return drivers[i].Type < drivers[j].Type
	})

	return drivers, total
}

// Median returns the median of a series, 0 for an empty one.
// Used as the expected-cost baseline: robust to single-day spikes,
// unlike a mean.
// This is a PURE function.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Deviation computes the percentage deviation of total from expected.
// A zero baseline caps the deviation at the sentinel and flags it.
// This is a PURE function.
func Deviation(total, expected float64) (pct float64, baselineMissing bool) {
	if expected <= 0 {
		if total > 0 {
			return DeviationCap, true
		}
		return 0, true
	}
	pct = (total - expected) / expected * 100
	if pct > DeviationCap {
		pct = DeviationCap
	}
	return pct, false
}

// BuildStory renders the fixed narrative from the top-3 drivers by cost
// impact. Never free-form generation - any natural-language summarization
// belongs to an external collaborator.
// This is a PURE function.
func BuildStory(drivers []Driver, total float64) string {
	if total <= 0 || len(drivers) == 0 {
		return "No cost recorded for this timeframe."
	}
	top := drivers
	if len(top) > 3 {
		top = top[:3]
	}
	story := fmt.Sprintf("Spend of $%.2f was led by %s ($%.2f, %.0f%%): %s.",
		total, top[0].Type, top[0].CostImpact, top[0].PercentOfTotal, top[0].Explanation)
	for _, d := range top[1:] {
		story += fmt.Sprintf(" %s added $%.2f (%.0f%%).", d.Type, d.CostImpact, d.PercentOfTotal)
	}
	return story
}
