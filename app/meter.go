// Package app composes domain logic with stores into the engine services.
package app

import (
	"context"
	"fmt"

	"github.com/artpar/guardrail/adapters/metrics"
	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/pkg/errs"
	"github.com/artpar/guardrail/ports"
	"github.com/rs/zerolog"
)

// Meter maintains per-account, per-metric counters for the current
// billing period plus a rolling daily history.
type Meter struct {
	store    ports.MeterStore
	accounts ports.AccountStore
	clock    ports.Clock
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

// MeterDeps contains dependencies for the meter service.
type MeterDeps struct {
	Store    ports.MeterStore
	Accounts ports.AccountStore
	Clock    ports.Clock
	Metrics  *metrics.Collector
	Logger   zerolog.Logger
}

// NewMeter creates a new usage meter.
func NewMeter(deps MeterDeps) *Meter {
	return &Meter{
		store:    deps.Store,
		accounts: deps.Accounts,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// Record increments a metric's current-period counter and today's daily
// bucket. Idempotent by eventID: duplicate delivery never double-counts.
func (m *Meter) Record(ctx context.Context, accountID string, metric usage.Metric, amount float64, eventID string) error {
	if amount < 0 {
		return errs.Validation("amount", "must not be negative")
	}
	if !usage.IsValidMetric(metric) {
		return errs.Validation("metric", fmt.Sprintf("unknown metric %q", metric))
	}
	if _, err := m.accounts.Get(ctx, accountID); err != nil {
		return err
	}

	after, applied, err := m.store.Increment(ctx, accountID, metric, amount, eventID, m.clock.Now())
	if err != nil {
		return err
	}

	if m.metrics != nil {
		if applied {
			m.metrics.EventsRecorded.WithLabelValues(string(metric)).Inc()
		} else {
			m.metrics.EventsDuplicate.Inc()
		}
	}

	m.logger.Debug().
		Str("account_id", accountID).
		Str("metric", string(metric)).
		Float64("amount", amount).
		Float64("total", after.Current(metric)).
		Msg("usage recorded")

	return nil
}

// Snapshot returns a point-in-time copy of an account's metrics.
func (m *Meter) Snapshot(ctx context.Context, accountID string) (usage.Metrics, error) {
	if _, err := m.accounts.Get(ctx, accountID); err != nil {
		return usage.Metrics{}, err
	}
	return m.store.Snapshot(ctx, accountID, m.clock.Now())
}
