package app

import (
	"context"
	"testing"

	"github.com/artpar/guardrail/adapters/clock"
	"github.com/artpar/guardrail/adapters/memory"
	"github.com/artpar/guardrail/domain/guardrail"
	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/pkg/errs"
	"github.com/rs/zerolog"
)

func newTestEvaluator(t *testing.T, clk *clock.Fake) (*Evaluator, *Meter) {
	t.Helper()
	m, _, accounts := newTestMeter(t, clk)
	resolver := NewPlanResolver(PlanResolverDeps{
		Plans:    memory.NewPlanStore(testPlanSet()),
		Accounts: accounts,
		Clock:    clk,
		Logger:   zerolog.Nop(),
	})
	e := NewEvaluator(EvaluatorDeps{
		Meter:  m,
		Plans:  resolver,
		Clock:  clk,
		Logger: zerolog.Nop(),
	})
	return e, m
}

func TestEvaluator_WarningStillAllows(t *testing.T) {
	clk := clock.NewFake(testStart)
	e, m := newTestEvaluator(t, clk)

	m.Record(context.Background(), "acct-1", usage.MetricTokens, 76000, "ev-seed")

	d, err := e.Check(context.Background(), "acct-1", usage.MetricTokens, 1000, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Action != guardrail.ActionAllow {
		t.Errorf("expected warning tier to allow, got %+v", d)
	}
	if d.Violation == nil || d.Violation.Type != guardrail.ViolationWarning {
		t.Fatalf("expected warning violation, got %+v", d.Violation)
	}
	if d.Percentage != 77 {
		t.Errorf("expected 77%%, got %f", d.Percentage)
	}
}

func TestEvaluator_HardBlockOverLimit(t *testing.T) {
	clk := clock.NewFake(testStart)
	e, m := newTestEvaluator(t, clk)

	m.Record(context.Background(), "acct-1", usage.MetricTokens, 99500, "ev-seed")

	d, err := e.Check(context.Background(), "acct-1", usage.MetricTokens, 1000, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed || d.Action != guardrail.ActionBlock {
		t.Errorf("expected block over the hard cap, got %+v", d)
	}
	if d.Violation == nil || d.Violation.Type != guardrail.ViolationHard {
		t.Errorf("expected hard violation, got %+v", d.Violation)
	}
}

func TestEvaluator_CheckDoesNotConsumeQuota(t *testing.T) {
	clk := clock.NewFake(testStart)
	e, m := newTestEvaluator(t, clk)

	for i := 0; i < 5; i++ {
		if _, err := e.Check(context.Background(), "acct-1", usage.MetricTokens, 1000, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snap, _ := m.Snapshot(context.Background(), "acct-1")
	if snap.Current(usage.MetricTokens) != 0 {
		t.Errorf("expected checks to leave counters untouched, got %f", snap.Current(usage.MetricTokens))
	}
}

func TestEvaluator_ModelGate(t *testing.T) {
	clk := clock.NewFake(testStart)
	e, _ := newTestEvaluator(t, clk)

	d, err := e.Check(context.Background(), "acct-1", usage.MetricRequests, 1, "large-v2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Errorf("expected disallowed model to block, got %+v", d)
	}
}

func TestEvaluator_UnknownAccount(t *testing.T) {
	clk := clock.NewFake(testStart)
	e, _ := newTestEvaluator(t, clk)

	_, err := e.Check(context.Background(), "ghost", usage.MetricTokens, 1, "")
	if !errs.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestEvaluator_InvalidRequest(t *testing.T) {
	clk := clock.NewFake(testStart)
	e, _ := newTestEvaluator(t, clk)

	if _, err := e.Check(context.Background(), "acct-1", usage.MetricTokens, -1, ""); !errs.IsValidation(err) {
		t.Errorf("expected validation error for negative amount, got %v", err)
	}
	if _, err := e.Check(context.Background(), "acct-1", usage.Metric("bandwidth"), 1, ""); !errs.IsValidation(err) {
		t.Errorf("expected validation error for unknown metric, got %v", err)
	}
}
