package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/artpar/guardrail/adapters/clock"
	"github.com/artpar/guardrail/adapters/memory"
	"github.com/artpar/guardrail/domain/anomaly"
	"github.com/artpar/guardrail/domain/cost"
	"github.com/rs/zerolog"
)

func newTestScorer(t *testing.T, clk *clock.Fake) (*Scorer, *memory.CostEventStore) {
	t.Helper()
	analyzer, store := newTestAnalyzer(t, clk)
	s := NewScorer(ScorerDeps{
		Analyzer: analyzer,
		Events:   store,
		Clock:    clk,
		Logger:   zerolog.Nop(),
	})
	return s, store
}

func TestScorer_RetryStorm(t *testing.T) {
	clk := clock.NewFake(testStart)
	s, store := newTestScorer(t, clk)

	seedCostEvents(t, store, testStart.Add(-time.Hour), map[cost.DriverType]float64{
		cost.DriverToolCalls: 70,
		cost.DriverRetries:   30,
	})

	result, err := s.Score(context.Background(), "acct-1", "24h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var found bool
	for _, a := range result.Anomalies {
		if a.Type == anomaly.TypeRetryStorm {
			found = true
			if a.CostImpact != 30 {
				t.Errorf("expected retry impact 30, got %f", a.CostImpact)
			}
		}
	}
	if !found {
		t.Errorf("expected retry_storm at 30%% share, got %+v", result.Anomalies)
	}
	if result.Score <= 0 {
		t.Errorf("expected a positive score for concentrated spend, got %f", result.Score)
	}
}

func TestScorer_ToolLoop(t *testing.T) {
	clk := clock.NewFake(testStart)
	s, store := newTestScorer(t, clk)

	var events []cost.Event
	for i := 0; i < 25; i++ {
		events = append(events, cost.Event{
			ID:         fmt.Sprintf("ce-loop-%d", i),
			AccountID:  "acct-1",
			Timestamp:  testStart.Add(-time.Hour),
			Driver:     cost.DriverToolCalls,
			CostImpact: 1,
			TraceID:    "trace-loop",
		})
	}
	if err := store.Append(context.Background(), events); err != nil {
		t.Fatalf("seeding events: %v", err)
	}

	result, err := s.Score(context.Background(), "acct-1", "24h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var found bool
	for _, a := range result.Anomalies {
		if a.Type == anomaly.TypeToolLoop {
			found = true
		}
	}
	if !found {
		t.Errorf("expected tool_loop for 25 calls in one trace, got %+v", result.Anomalies)
	}
}

func TestScorer_SpikeRaisesScore(t *testing.T) {
	clk := clock.NewFake(testStart)

	// Identical current windows, one over a flat history and one whose
	// last day triples the smoothed rate.
	flatScorer, flatStore := newTestScorer(t, clk)
	spikeScorer, spikeStore := newTestScorer(t, clk)

	for day := 1; day <= 6; day++ {
		at := testStart.Add(-time.Duration(day)*24*time.Hour - time.Hour)
		seedCostEvents(t, flatStore, at, map[cost.DriverType]float64{cost.DriverToolCalls: 10})
		seedCostEvents(t, spikeStore, at, map[cost.DriverType]float64{cost.DriverToolCalls: 10})
	}
	seedCostEvents(t, flatStore, testStart.Add(-time.Hour), map[cost.DriverType]float64{cost.DriverToolCalls: 10})
	seedCostEvents(t, spikeStore, testStart.Add(-time.Hour), map[cost.DriverType]float64{cost.DriverToolCalls: 100})

	flat, err := flatScorer.Score(context.Background(), "acct-1", "24h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spiked, err := spikeScorer.Score(context.Background(), "acct-1", "24h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if spiked.Score <= flat.Score {
		t.Errorf("expected spike to raise the score, got %f vs %f", spiked.Score, flat.Score)
	}
}

func TestScorer_SpikeFactorConfigurable(t *testing.T) {
	clk := clock.NewFake(testStart)

	defaultScorer, defaultStore := newTestScorer(t, clk)

	strictAnalyzer, strictStore := newTestAnalyzer(t, clk)
	strictScorer := NewScorer(ScorerDeps{
		Analyzer: strictAnalyzer,
		Events:   strictStore,
		Clock:    clk,
		Detector: anomaly.DetectorConfig{
			RetryStormPercent:     15,
			ContextBloatDayGrowth: 0.5,
			ToolLoopMaxCalls:      20,
			SpikeFactor:           20,
		},
		Logger: zerolog.Nop(),
	})

	// Last day at 10x the smoothed rate: a spike at the default factor
	// of 2, not at a factor of 20.
	for day := 1; day <= 6; day++ {
		at := testStart.Add(-time.Duration(day)*24*time.Hour - time.Hour)
		seedCostEvents(t, defaultStore, at, map[cost.DriverType]float64{cost.DriverToolCalls: 10})
		seedCostEvents(t, strictStore, at, map[cost.DriverType]float64{cost.DriverToolCalls: 10})
	}
	seedCostEvents(t, defaultStore, testStart.Add(-time.Hour), map[cost.DriverType]float64{cost.DriverToolCalls: 100})
	seedCostEvents(t, strictStore, testStart.Add(-time.Hour), map[cost.DriverType]float64{cost.DriverToolCalls: 100})

	loose, err := defaultScorer.Score(context.Background(), "acct-1", "24h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	strict, err := strictScorer.Score(context.Background(), "acct-1", "24h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strict.Score >= loose.Score {
		t.Errorf("expected a higher spike factor to lower the score, got %f vs %f", strict.Score, loose.Score)
	}
}

func TestScorer_QuietAccount(t *testing.T) {
	clk := clock.NewFake(testStart)
	s, _ := newTestScorer(t, clk)

	result, err := s.Score(context.Background(), "acct-1", "24h")
	if err != nil {
		t.Fatalf("expected no error for an empty account, got %v", err)
	}
	if len(result.Anomalies) != 0 {
		t.Errorf("expected no anomalies, got %+v", result.Anomalies)
	}
	if result.Score != 0 {
		t.Errorf("expected zero score, got %f", result.Score)
	}
	if result.Severity != anomaly.SeverityLow {
		t.Errorf("expected low severity, got %s", result.Severity)
	}
}
