package app

import (
	"context"
	"fmt"

	"github.com/artpar/guardrail/domain/cost"
	"github.com/artpar/guardrail/pkg/errs"
	"github.com/artpar/guardrail/ports"
	"github.com/rs/zerolog"
)

// CostRecorder appends validated cost events to the append-only log.
type CostRecorder struct {
	events   ports.CostEventStore
	accounts ports.AccountStore
	clock    ports.Clock
	ids      ports.IDGenerator
	logger   zerolog.Logger
}

// CostRecorderDeps contains dependencies for the cost recorder.
type CostRecorderDeps struct {
	Events   ports.CostEventStore
	Accounts ports.AccountStore
	Clock    ports.Clock
	IDs      ports.IDGenerator
	Logger   zerolog.Logger
}

// NewCostRecorder creates a new cost recorder.
func NewCostRecorder(deps CostRecorderDeps) *CostRecorder {
	return &CostRecorder{
		events:   deps.Events,
		accounts: deps.Accounts,
		clock:    deps.Clock,
		ids:      deps.IDs,
		logger:   deps.Logger,
	}
}

// Record validates and appends a batch of cost events. Missing IDs and
// timestamps are filled in; the driver enum is closed, unknown drivers
// reject the whole batch.
func (c *CostRecorder) Record(ctx context.Context, accountID string, events []cost.Event) error {
	if len(events) == 0 {
		return errs.Validation("events", "at least one event is required")
	}
	if _, err := c.accounts.Get(ctx, accountID); err != nil {
		return err
	}

	now := c.clock.Now()
	for i := range events {
		e := &events[i]
		if !cost.IsValidDriver(e.Driver) {
			return errs.Validation("driver", fmt.Sprintf("unknown cost driver %q", e.Driver))
		}
		if e.CostImpact < 0 {
			return errs.Validation("cost_impact", "must not be negative")
		}
		e.AccountID = accountID
		if e.ID == "" {
			e.ID = c.ids.New()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
	}

	if err := c.events.Append(ctx, events); err != nil {
		return err
	}

	c.logger.Debug().
		Str("account_id", accountID).
		Int("events", len(events)).
		Msg("cost events recorded")
	return nil
}
