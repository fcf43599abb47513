package app

import (
	"context"
	"sort"
	"time"

	"github.com/artpar/guardrail/domain/trend"
	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/pkg/errs"
	"github.com/artpar/guardrail/ports"
)

// Predictor projects end-of-period usage totals from the daily-bucket
// history. Read-only over historical data.
type Predictor struct {
	meter   *Meter
	archive ports.UsageArchive
	clock   ports.Clock
	alpha   float64
}

// PredictorDeps contains dependencies for the trend predictor.
type PredictorDeps struct {
	Meter   *Meter
	Archive ports.UsageArchive
	Clock   ports.Clock
	Alpha   float64 // EWMA smoothing factor, defaults to trend.DefaultAlpha
}

// NewPredictor creates a new trend predictor.
func NewPredictor(deps PredictorDeps) *Predictor {
	alpha := deps.Alpha
	if alpha <= 0 || alpha >= 1 {
		alpha = trend.DefaultAlpha
	}
	return &Predictor{
		meter:   deps.Meter,
		archive: deps.Archive,
		clock:   deps.Clock,
		alpha:   alpha,
	}
}

// Predict projects the end-of-period total for a metric. A brand-new
// account yields a zero-value, low-confidence prediction, never an error.
func (p *Predictor) Predict(ctx context.Context, accountID string, metric usage.Metric) (trend.Prediction, error) {
	snapshot, err := p.meter.Snapshot(ctx, accountID)
	if err != nil {
		return trend.Prediction{}, err
	}

	now := p.clock.Now()
	start, _ := usage.PeriodBounds(now)
	series := usage.DailySeries(snapshot, metric, usage.DayKeyFor(start), usage.DayKeyFor(now))

	rates := make([]float64, 0, len(series))
	for _, pt := range series {
		rates = append(rates, pt.Value)
	}

	daysRemaining := usage.DaysInPeriod(now) - usage.DaysElapsed(now)
	return trend.Predict(rates, snapshot.Current(metric), daysRemaining, p.alpha), nil
}

// DailyTrend returns the last N days of a metric's history, merging the
// in-memory current period with the persistent archive.
func (p *Predictor) DailyTrend(ctx context.Context, accountID string, metric usage.Metric, days int) ([]usage.DailyPoint, error) {
	if days <= 0 {
		return nil, errs.Validation("days", "must be positive")
	}
	now := p.clock.Now()
	from := now.AddDate(0, 0, -(days - 1))
	return p.TrendRange(ctx, accountID, metric, from, now)
}

// predictRate smooths a daily series into a projected per-day rate.
func predictRate(dailyRates []float64) float64 {
	return trend.EWMA(dailyRates, trend.DefaultAlpha)
}

// TrendRange returns a metric's daily history for an explicit date range.
func (p *Predictor) TrendRange(ctx context.Context, accountID string, metric usage.Metric, from, to time.Time) ([]usage.DailyPoint, error) {
	if to.Before(from) {
		return nil, errs.Validation("range", "end date precedes start date")
	}

	fromDay, toDay := usage.DayKeyFor(from), usage.DayKeyFor(to)

	merged := make(map[string]float64)
	if p.archive != nil {
		archived, err := p.archive.DailyRange(ctx, accountID, metric, fromDay, toDay)
		if err == nil {
			for _, pt := range archived {
				merged[pt.Date] = pt.Value
			}
		}
		// Archive read failures degrade to the in-memory window.
	}

	snapshot, err := p.meter.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for _, pt := range usage.DailySeries(snapshot, metric, fromDay, toDay) {
		merged[pt.Date] = pt.Value
	}

	out := make([]usage.DailyPoint, 0, len(merged))
	for d, v := range merged {
		out = append(out, usage.DailyPoint{Date: d, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
