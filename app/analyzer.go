package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/artpar/guardrail/adapters/metrics"
	"github.com/artpar/guardrail/domain/cost"
	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/pkg/errs"
	"github.com/artpar/guardrail/ports"
	"github.com/rs/zerolog"
)

// Baseline window: how many trailing same-length windows feed the median
// expected-cost estimate.
const baselineWindows = 7

// Analyzer attributes cost to named drivers over a timeframe. Read-only
// over the event log; runs as a cancellable, timeout-bounded job and
// degrades to the last-known-good result when the budget is exceeded.
type Analyzer struct {
	events  ports.CostEventStore
	clock   ports.Clock
	table   cost.OptimizationTable
	budget  time.Duration
	ttl     time.Duration
	metrics *metrics.Collector
	logger  zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cachedAnalysis // accountID|timeframe -> analysis
}

type cachedAnalysis struct {
	analysis cost.Analysis
	storedAt time.Time
}

// AnalyzerDeps contains dependencies for the cost analyzer.
type AnalyzerDeps struct {
	Events   ports.CostEventStore
	Clock    ports.Clock
	Params   cost.OptimizationParams
	Budget   time.Duration // per-analysis time budget (default 5s)
	CacheTTL time.Duration // short TTL for recomputed snapshots (default 60s)
	Metrics  *metrics.Collector
	Logger   zerolog.Logger
}

// NewAnalyzer creates a new cost attribution analyzer.
func NewAnalyzer(deps AnalyzerDeps) *Analyzer {
	budget := deps.Budget
	if budget <= 0 {
		budget = 5 * time.Second
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	params := deps.Params
	if params == (cost.OptimizationParams{}) {
		params = cost.DefaultOptimizationParams()
	}
	return &Analyzer{
		events:  deps.Events,
		clock:   deps.Clock,
		table:   cost.NewOptimizationTable(params),
		budget:  budget,
		ttl:     ttl,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		cache:   make(map[string]cachedAnalysis),
	}
}

// Table exposes the optimization strategy table shared with the scorer.
func (a *Analyzer) Table() cost.OptimizationTable {
	return a.table
}

// ParseTimeframe converts a timeframe token ("24h", "7d", "30d") into a
// duration. Malformed timeframes are a ValidationError.
func ParseTimeframe(s string) (time.Duration, error) {
	if s == "" {
		return 24 * time.Hour, nil
	}
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || n <= 0 {
			return 0, errs.Validation("timeframe", fmt.Sprintf("malformed timeframe %q", s))
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, errs.Validation("timeframe", fmt.Sprintf("malformed timeframe %q", s))
	}
	return d, nil
}

// Analyze attributes an account's spend over the trailing timeframe.
// Missing history yields zeroed fields with the baseline flagged, never
// an error: downstream consumers must always have something to render.
func (a *Analyzer) Analyze(ctx context.Context, accountID, timeframe string) (cost.Analysis, error) {
	window, err := ParseTimeframe(timeframe)
	if err != nil {
		return cost.Analysis{}, err
	}

	cacheKey := accountID + "|" + timeframe
	now := a.clock.Now()

	a.mu.RLock()
	entry, ok := a.cache[cacheKey]
	a.mu.RUnlock()
	if ok && now.Sub(entry.storedAt) < a.ttl {
		return entry.analysis, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()

	start := now
	analysis, err := a.compute(ctx, accountID, window, now)
	if a.metrics != nil {
		a.metrics.AnalysisDuration.Observe(a.clock.Now().Sub(start).Seconds())
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Budget exceeded: serve the last-known-good snapshot.
			if a.metrics != nil {
				a.metrics.AnalysisTimeouts.Inc()
			}
			a.logger.Warn().
				Str("account_id", accountID).
				Dur("budget", a.budget).
				Msg("cost analysis exceeded budget, serving cached result")
			if ok {
				return entry.analysis, nil
			}
			return emptyAnalysis(accountID, window, now), nil
		}
		return cost.Analysis{}, err
	}

	a.mu.Lock()
	a.cache[cacheKey] = cachedAnalysis{analysis: analysis, storedAt: now}
	a.mu.Unlock()

	return analysis, nil
}

// compute builds the analysis from the event log.
func (a *Analyzer) compute(ctx context.Context, accountID string, window time.Duration, now time.Time) (cost.Analysis, error) {
	tf := cost.Timeframe{From: now.Add(-window), To: now}

	events, err := a.events.Range(ctx, accountID, tf.From, tf.To)
	if err != nil {
		return cost.Analysis{}, err
	}

	drivers, total := cost.Attribute(events, a.table)

	expected, err := a.expectedCost(ctx, accountID, window, tf.From)
	if err != nil {
		return cost.Analysis{}, err
	}
	deviation, baselineMissing := cost.Deviation(total, expected)

	return cost.Analysis{
		AccountID:        accountID,
		Timeframe:        tf,
		TotalCost:        total,
		ExpectedCost:     expected,
		DeviationPercent: deviation,
		BaselineMissing:  baselineMissing,
		Drivers:          drivers,
		CostStory:        cost.BuildStory(drivers, total),
	}, nil
}

// expectedCost is the median of the trailing same-length windows before
// the analyzed one. A median resists single-day spikes that would skew a
// mean baseline.
func (a *Analyzer) expectedCost(ctx context.Context, accountID string, window time.Duration, before time.Time) (float64, error) {
	var totals []float64
	end := before
	for i := 0; i < baselineWindows; i++ {
		start := end.Add(-window)
		events, err := a.events.Range(ctx, accountID, start, end)
		if err != nil {
			return 0, err
		}
		var sum float64
		for _, e := range events {
			sum += e.CostImpact
		}
		if len(events) > 0 {
			totals = append(totals, sum)
		}
		end = start
	}
	return cost.Median(totals), nil
}

// DailyReport builds a single-day attribution snapshot.
func (a *Analyzer) DailyReport(ctx context.Context, accountID, date string) (cost.DailyReport, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return cost.DailyReport{}, errs.Validation("date", fmt.Sprintf("malformed date %q", date))
	}

	ctx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()

	from := day.UTC()
	to := from.AddDate(0, 0, 1)
	events, err := a.events.Range(ctx, accountID, from, to)
	if err != nil {
		return cost.DailyReport{}, err
	}

	drivers, total := cost.Attribute(events, a.table)
	return cost.DailyReport{
		AccountID:  accountID,
		Date:       date,
		TotalCost:  total,
		EventCount: len(events),
		Drivers:    drivers,
		CostStory:  cost.BuildStory(drivers, total),
	}, nil
}

// Recommendation is a ranked optimization suggestion derived from the
// driver strategy table.
type Recommendation struct {
	Driver           cost.DriverType `json:"driver"`
	EstimatedSavings float64         `json:"estimated_savings"`
	Description      string          `json:"description"`
}

// Recommendations ranks drivers by reclaimable spend for a timeframe.
func (a *Analyzer) Recommendations(ctx context.Context, accountID, timeframe string) ([]Recommendation, error) {
	analysis, err := a.Analyze(ctx, accountID, timeframe)
	if err != nil {
		return nil, err
	}

	var out []Recommendation
	for _, d := range analysis.Drivers {
		if d.OptimizationPotential <= 0 {
			continue
		}
		out = append(out, Recommendation{
			Driver:           d.Type,
			EstimatedSavings: d.OptimizationPotential,
			Description:      fmt.Sprintf("Reduce %s: %s", d.Type, d.Explanation),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EstimatedSavings != out[j].EstimatedSavings {
			return out[i].EstimatedSavings > out[j].EstimatedSavings
		}
		return out[i].Driver < out[j].Driver
	})
	return out, nil
}

// CostTrend is the daily cost series with projections.
type CostTrend struct {
	Daily     []usage.DailyPoint `json:"daily"`
	NextWeek  float64            `json:"next_week"`
	NextMonth float64            `json:"next_month"`
}

// Trends returns the daily cost series for a period plus EWMA-projected
// near-term totals.
func (a *Analyzer) Trends(ctx context.Context, accountID, period string) (CostTrend, error) {
	window, err := ParseTimeframe(period)
	if err != nil {
		return CostTrend{}, err
	}

	now := a.clock.Now()
	daily, err := a.events.DailyTotals(ctx, accountID, now.Add(-window), now)
	if err != nil {
		return CostTrend{}, err
	}

	rates := make([]float64, 0, len(daily))
	for _, p := range daily {
		rates = append(rates, p.Value)
	}

	week := projectTotal(rates, 7)
	month := projectTotal(rates, 30)
	return CostTrend{Daily: daily, NextWeek: week, NextMonth: month}, nil
}

func projectTotal(dailyRates []float64, days int) float64 {
	if len(dailyRates) == 0 {
		return 0
	}
	// EWMA rate times horizon: captures acceleration, not flat averages.
	p := predictRate(dailyRates)
	return p * float64(days)
}

func emptyAnalysis(accountID string, window time.Duration, now time.Time) cost.Analysis {
	return cost.Analysis{
		AccountID:       accountID,
		Timeframe:       cost.Timeframe{From: now.Add(-window), To: now},
		BaselineMissing: true,
		CostStory:       "No cost recorded for this timeframe.",
	}
}
