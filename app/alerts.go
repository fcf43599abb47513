package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/artpar/guardrail/adapters/metrics"
	"github.com/artpar/guardrail/core/events"
	"github.com/artpar/guardrail/domain/alert"
	"github.com/artpar/guardrail/domain/guardrail"
	"github.com/artpar/guardrail/domain/plan"
	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/ports"
	"github.com/rs/zerolog"
)

const (
	// DefaultAlertCooldown suppresses repeat alerts for the same key
	// unless severity escalates.
	DefaultAlertCooldown = 24 * time.Hour

	// DefaultEvaluateInterval is how often the background sweep runs.
	DefaultEvaluateInterval = 2 * time.Minute

	// anomalyTimeframe is the window the sweep scores for cost anomalies.
	anomalyTimeframe = "24h"
)

// AlertManager periodically re-checks guardrail state and cost anomalies
// and materializes alerts. Evaluation is idempotent under overlapping
// runs: dedupe happens against persisted alerts, not a lock.
type AlertManager struct {
	alerts   ports.AlertStore
	accounts ports.AccountStore
	meter    *Meter
	plans    *PlanResolver
	eval     *Evaluator
	scorer   *Scorer
	bus      *events.Bus
	clock    ports.Clock
	ids      ports.IDGenerator
	cooldown time.Duration
	interval time.Duration
	sticky   bool
	metrics  *metrics.Collector
	logger   zerolog.Logger

	mu     sync.Mutex
	states map[stateKey]stateEntry
}

type stateKey struct {
	accountID string
	metric    usage.Metric
}

type stateEntry struct {
	state     guardrail.State
	periodKey string
}

// AlertManagerDeps contains dependencies for the alert manager.
type AlertManagerDeps struct {
	Alerts        ports.AlertStore
	Accounts      ports.AccountStore
	Meter         *Meter
	Plans         *PlanResolver
	Evaluator     *Evaluator
	Scorer        *Scorer
	Bus           *events.Bus
	Clock         ports.Clock
	IDs           ports.IDGenerator
	Cooldown      time.Duration
	Interval      time.Duration
	StickyWarning bool // keep warning/exceeded state for the rest of the period
	Metrics       *metrics.Collector
	Logger        zerolog.Logger
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(deps AlertManagerDeps) *AlertManager {
	cooldown := deps.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultAlertCooldown
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = DefaultEvaluateInterval
	}
	return &AlertManager{
		alerts:   deps.Alerts,
		accounts: deps.Accounts,
		meter:    deps.Meter,
		plans:    deps.Plans,
		eval:     deps.Evaluator,
		scorer:   deps.Scorer,
		bus:      deps.Bus,
		clock:    deps.Clock,
		ids:      deps.IDs,
		cooldown: cooldown,
		interval: interval,
		sticky:   deps.StickyWarning,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		states:   make(map[stateKey]stateEntry),
	}
}

// Run sweeps all accounts on the evaluation interval until the context
// is cancelled.
func (m *AlertManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep evaluates every known account. One account's failure never stops
// the rest.
func (m *AlertManager) sweep(ctx context.Context) {
	if m.metrics != nil {
		m.metrics.EvaluateRuns.Inc()
	}
	accounts, err := m.accounts.List(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("alert sweep could not list accounts")
		return
	}
	for _, a := range accounts {
		if _, err := m.Evaluate(ctx, a.ID); err != nil {
			m.logger.Error().Err(err).Str("account_id", a.ID).Msg("alert evaluation failed")
		}
	}
}

// Evaluate re-checks one account's quota state and cost anomalies,
// creating alerts for new or escalated conditions. Returns the alerts
// created by this run.
func (m *AlertManager) Evaluate(ctx context.Context, accountID string) ([]alert.Alert, error) {
	p, err := m.plans.ResolveAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	snapshot, err := m.meter.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var created []alert.Alert

	quota := m.quotaCandidates(accountID, snapshot, p)
	anomalies, err := m.anomalyCandidates(ctx, accountID)
	if err != nil {
		// Attribution problems must not silence quota alerts.
		m.logger.Warn().Err(err).Str("account_id", accountID).Msg("anomaly scoring skipped")
	}

	for _, candidate := range append(quota, anomalies...) {
		emitted, err := m.emit(ctx, candidate)
		if err != nil {
			return created, err
		}
		if emitted {
			created = append(created, candidate)
		}
	}
	return created, nil
}

// quotaCandidates builds candidate alerts from the per-metric quota state.
func (m *AlertManager) quotaCandidates(accountID string, snapshot usage.Metrics, p plan.Plan) []alert.Alert {
	t := m.eval.Thresholds()
	now := m.clock.Now()

	var out []alert.Alert
	for _, metric := range usage.AllMetrics {
		limit := p.Limits.LimitFor(metric)
		if plan.IsUnlimited(limit) {
			continue
		}
		current := snapshot.Current(metric)
		var pct float64
		if limit > 0 {
			pct = current / float64(limit) * 100
		} else if current > 0 {
			pct = t.BlockPercent
		}

		m.trackState(accountID, metric, snapshot.PeriodKey, guardrail.StateFor(pct, t))

		atype, ok := alert.QuotaTypeFor(pct, t.WarnPercent, t.BlockPercent)
		if !ok {
			continue
		}

		title := fmt.Sprintf("%s usage at %.0f%%", metric, pct)
		msg := fmt.Sprintf("Account has used %.0f of %d %s this period (%.0f%%).", current, limit, metric, pct)
		if atype == alert.TypeQuotaExceeded {
			title = fmt.Sprintf("%s quota exceeded", metric)
		}

		out = append(out, alert.Alert{
			ID:        m.ids.New(),
			AccountID: accountID,
			Type:      atype,
			Metric:    alert.MetricName(metric),
			Severity:  alert.QuotaSeverity(pct),
			Title:     title,
			Message:   msg,
			Metadata: map[string]string{
				"percentage": fmt.Sprintf("%.1f", pct),
				"plan_id":    p.ID,
			},
			CreatedAt: now,
		})
	}
	return out
}

// anomalyCandidates builds candidate alerts from the detector findings.
func (m *AlertManager) anomalyCandidates(ctx context.Context, accountID string) ([]alert.Alert, error) {
	if m.scorer == nil {
		return nil, nil
	}
	result, err := m.scorer.Score(ctx, accountID, anomalyTimeframe)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	var out []alert.Alert
	for _, a := range result.Anomalies {
		out = append(out, alert.Alert{
			ID:        m.ids.New(),
			AccountID: accountID,
			Type:      alert.TypeCostAnomaly,
			Metric:    a.Type,
			Severity:  a.Severity,
			Title:     fmt.Sprintf("Cost anomaly: %s", a.Type),
			Message:   a.Description,
			Metadata: map[string]string{
				"cost_impact":            fmt.Sprintf("%.2f", a.CostImpact),
				"optimization_potential": fmt.Sprintf("%.2f", a.OptimizationPotential),
				"anomaly_score":          fmt.Sprintf("%.1f", result.Score),
			},
			CreatedAt: now,
		})
	}
	return out, nil
}

// emit applies the dedupe rule and persists the candidate if it passes.
func (m *AlertManager) emit(ctx context.Context, candidate alert.Alert) (bool, error) {
	latest, err := m.alerts.Latest(ctx, candidate.DedupeKey())
	if err != nil {
		return false, err
	}
	if !alert.ShouldEmit(latest, candidate, m.clock.Now(), m.cooldown) {
		if m.metrics != nil {
			m.metrics.AlertsSuppressed.Inc()
		}
		return false, nil
	}

	if err := m.alerts.Create(ctx, candidate); err != nil {
		return false, err
	}

	if m.metrics != nil {
		m.metrics.AlertsEmitted.WithLabelValues(string(candidate.Type), string(candidate.Severity)).Inc()
	}
	m.logger.Info().
		Str("account_id", candidate.AccountID).
		Str("type", string(candidate.Type)).
		Str("metric", candidate.Metric).
		Str("severity", string(candidate.Severity)).
		Msg("alert created")

	if m.bus != nil {
		m.bus.Publish(ctx, events.Event{
			Name:      events.AlertCreated,
			AccountID: candidate.AccountID,
			Data:      map[string]any{"alert": candidate},
		})
	}
	return true, nil
}

// Active returns the unread alerts for an account, newest first.
func (m *AlertManager) Active(ctx context.Context, accountID string) ([]alert.Alert, error) {
	if _, err := m.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	return m.alerts.ListActive(ctx, accountID)
}

// MarkAsRead transitions an alert from active to read. The dismissal is
// durable: the alert stays stored and keeps suppressing repeats while
// the condition persists.
func (m *AlertManager) MarkAsRead(ctx context.Context, accountID, alertID string) error {
	if err := m.alerts.MarkRead(ctx, alertID); err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Publish(ctx, events.Event{
			Name:      events.AlertRead,
			AccountID: accountID,
			Data:      map[string]any{"alert_id": alertID},
		})
	}
	return nil
}

// State returns the current state machine position for an account metric.
// With sticky warnings off this is just the instantaneous percentage
// mapping; with it on, a state never downgrades within one period.
func (m *AlertManager) State(accountID string, metric usage.Metric) guardrail.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.states[stateKey{accountID, metric}]; ok {
		return e.state
	}
	return guardrail.StateNormal
}

// trackState records the latest computed state, applying the sticky rule.
func (m *AlertManager) trackState(accountID string, metric usage.Metric, periodKey string, computed guardrail.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stateKey{accountID, metric}
	prev, ok := m.states[key]
	if m.sticky && ok && prev.periodKey == periodKey && stateRank(prev.state) > stateRank(computed) {
		return
	}
	m.states[key] = stateEntry{state: computed, periodKey: periodKey}
}

func stateRank(s guardrail.State) int {
	switch s {
	case guardrail.StateExceeded:
		return 2
	case guardrail.StateWarning:
		return 1
	default:
		return 0
	}
}
