package app

import (
	"context"
	"time"

	"github.com/artpar/guardrail/domain/anomaly"
	"github.com/artpar/guardrail/domain/cost"
	"github.com/artpar/guardrail/ports"
	"github.com/rs/zerolog"
)

// Scorer composes attribution, daily history, and trace counts into an
// anomaly score plus typed detector findings.
type Scorer struct {
	analyzer *Analyzer
	events   ports.CostEventStore
	clock    ports.Clock
	weights  anomaly.Weights
	detector anomaly.DetectorConfig
	logger   zerolog.Logger
}

// ScorerDeps contains dependencies for the anomaly scorer.
type ScorerDeps struct {
	Analyzer *Analyzer
	Events   ports.CostEventStore
	Clock    ports.Clock
	Weights  anomaly.Weights
	Detector anomaly.DetectorConfig
	Logger   zerolog.Logger
}

// NewScorer creates a new anomaly scorer.
func NewScorer(deps ScorerDeps) *Scorer {
	w := deps.Weights
	if w == (anomaly.Weights{}) {
		w = anomaly.DefaultWeights()
	}
	d := deps.Detector
	if d == (anomaly.DetectorConfig{}) {
		d = anomaly.DefaultDetectorConfig()
	}
	if d.SpikeFactor <= 0 {
		d.SpikeFactor = anomaly.DefaultDetectorConfig().SpikeFactor
	}
	return &Scorer{
		analyzer: deps.Analyzer,
		events:   deps.Events,
		clock:    deps.Clock,
		weights:  w,
		detector: d,
		logger:   deps.Logger,
	}
}

// Score analyzes an account's spend over the timeframe and runs the
// pattern detectors against it.
func (s *Scorer) Score(ctx context.Context, accountID, timeframe string) (anomaly.Result, error) {
	analysis, err := s.analyzer.Analyze(ctx, accountID, timeframe)
	if err != nil {
		return anomaly.Result{}, err
	}
	return s.ScoreAnalysis(ctx, analysis)
}

// ScoreAnalysis scores an already-computed analysis. The alert manager
// uses this form to avoid re-running attribution it just performed.
func (s *Scorer) ScoreAnalysis(ctx context.Context, analysis cost.Analysis) (anomaly.Result, error) {
	in, err := s.detectorInput(ctx, analysis)
	if err != nil {
		return anomaly.Result{}, err
	}

	spike, err := s.spike(ctx, analysis)
	if err != nil {
		return anomaly.Result{}, err
	}

	score := anomaly.Score(analysis.DeviationPercent, analysis.Drivers, spike, s.weights)
	result := anomaly.Result{
		Score:     score,
		Severity:  anomaly.SeverityFor(score),
		Anomalies: anomaly.Detect(in, s.detector, s.analyzer.Table()),
	}

	if len(result.Anomalies) > 0 {
		s.logger.Debug().
			Str("account_id", analysis.AccountID).
			Float64("score", result.Score).
			Int("anomalies", len(result.Anomalies)).
			Msg("anomalies detected")
	}
	return result, nil
}

// detectorInput gathers the history the detectors need beyond the
// analysis itself: context_window daily spend and tool-call trace counts.
func (s *Scorer) detectorInput(ctx context.Context, analysis cost.Analysis) (anomaly.Input, error) {
	from, to := analysis.Timeframe.From, analysis.Timeframe.To

	// Context bloat compares day over day, so look back an extra week
	// even for short analysis windows.
	ctxFrom := from
	if to.Sub(ctxFrom) < 7*24*time.Hour {
		ctxFrom = to.Add(-7 * 24 * time.Hour)
	}
	ctxDaily, err := s.events.DriverDailyTotals(ctx, analysis.AccountID, cost.DriverContextWindow, ctxFrom, to)
	if err != nil {
		return anomaly.Input{}, err
	}
	costs := make([]float64, 0, len(ctxDaily))
	for _, p := range ctxDaily {
		costs = append(costs, p.Value)
	}

	byTrace, err := s.events.CountByTrace(ctx, analysis.AccountID, cost.DriverToolCalls, from, to)
	if err != nil {
		return anomaly.Input{}, err
	}

	return anomaly.Input{
		Analysis:          analysis,
		ContextDailyCosts: costs,
		ToolCallsPerTrace: byTrace,
	}, nil
}

// spike reports whether the most recent day's total spend exceeded the
// smoothed daily rate of the days before it by the configured factor.
func (s *Scorer) spike(ctx context.Context, analysis cost.Analysis) (bool, error) {
	daily, err := s.events.DailyTotals(ctx, analysis.AccountID, analysis.Timeframe.To.Add(-7*24*time.Hour), analysis.Timeframe.To)
	if err != nil {
		return false, err
	}
	if len(daily) < 2 {
		return false, nil
	}
	rates := make([]float64, 0, len(daily)-1)
	for _, p := range daily[:len(daily)-1] {
		rates = append(rates, p.Value)
	}
	baseline := predictRate(rates)
	return baseline > 0 && daily[len(daily)-1].Value > s.detector.SpikeFactor*baseline, nil
}
