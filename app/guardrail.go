package app

import (
	"context"
	"fmt"

	"github.com/artpar/guardrail/adapters/metrics"
	"github.com/artpar/guardrail/domain/guardrail"
	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/pkg/errs"
	"github.com/artpar/guardrail/ports"
	"github.com/rs/zerolog"
)

// Evaluator converts a proposed usage delta into an admission decision.
// It sits in the request hot path: one cached plan lookup plus one
// in-memory snapshot, no attribution work, no counter writes.
type Evaluator struct {
	meter   *Meter
	plans   *PlanResolver
	policy  func() guardrail.Policy
	clock   ports.Clock
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// EvaluatorDeps contains dependencies for the evaluator.
type EvaluatorDeps struct {
	Meter   *Meter
	Plans   *PlanResolver
	Policy  func() guardrail.Policy // hot-reloadable policy source
	Clock   ports.Clock
	Metrics *metrics.Collector
	Logger  zerolog.Logger
}

// NewEvaluator creates a new guardrail evaluator.
func NewEvaluator(deps EvaluatorDeps) *Evaluator {
	policy := deps.Policy
	if policy == nil {
		def := guardrail.DefaultPolicy()
		policy = func() guardrail.Policy { return def }
	}
	return &Evaluator{
		meter:   deps.Meter,
		plans:   deps.Plans,
		policy:  policy,
		clock:   deps.Clock,
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}
}

// Check evaluates a proposed usage delta. Policy outcomes are never
// errors: a blocked request still returns a Decision. Errors are
// reserved for unknown accounts/plans and malformed input.
func (e *Evaluator) Check(ctx context.Context, accountID string, metric usage.Metric, amount float64, modelID string) (guardrail.Decision, error) {
	if amount < 0 {
		return guardrail.Decision{}, errs.Validation("amount", "must not be negative")
	}
	if !usage.IsValidMetric(metric) {
		return guardrail.Decision{}, errs.Validation("requestType", fmt.Sprintf("unknown metric %q", metric))
	}

	start := e.clock.Now()

	p, err := e.plans.ResolveAccount(ctx, accountID)
	if err != nil {
		return guardrail.Decision{}, err
	}

	snapshot, err := e.meter.Snapshot(ctx, accountID)
	if err != nil {
		return guardrail.Decision{}, err
	}

	decision := guardrail.Evaluate(snapshot.Current(metric), p.Limits, e.policy(), guardrail.Request{
		Metric:  metric,
		Amount:  amount,
		ModelID: modelID,
	})

	if e.metrics != nil {
		e.metrics.ChecksTotal.WithLabelValues(string(metric), string(decision.Action)).Inc()
		e.metrics.CheckDuration.Observe(e.clock.Now().Sub(start).Seconds())
	}

	if !decision.Allowed {
		e.logger.Info().
			Str("account_id", accountID).
			Str("metric", string(metric)).
			Str("action", string(decision.Action)).
			Float64("percentage", decision.Percentage).
			Msg("request denied by guardrail")
	}

	return decision, nil
}

// Thresholds exposes the active tiering thresholds (shared with the
// alert manager and anomaly scorer so layers cannot disagree).
func (e *Evaluator) Thresholds() guardrail.Thresholds {
	return e.policy().Thresholds
}
