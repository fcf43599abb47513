// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/artpar/guardrail/domain/alert"
	"github.com/artpar/guardrail/domain/cost"
	"github.com/artpar/guardrail/domain/plan"
	"github.com/artpar/guardrail/domain/usage"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// Account links an account to its subscription.
type Account struct {
	ID        string
	PlanID    string
	Seats     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountStore persists account subscriptions.
type AccountStore interface {
	// Get retrieves an account by ID.
	Get(ctx context.Context, id string) (Account, error)

	// List returns all known accounts.
	List(ctx context.Context) ([]Account, error)

	// UpdateSubscription changes the plan and seat count for an account.
	UpdateSubscription(ctx context.Context, id, planID string, seats int) error
}

// PlanStore resolves plan identifiers to their limits.
type PlanStore interface {
	// Get retrieves a plan by ID.
	Get(ctx context.Context, id string) (plan.Plan, error)

	// List returns all configured plans.
	List(ctx context.Context) ([]plan.Plan, error)
}

// MeterStore holds the hot-path usage counters. Implementations must make
// increments atomic per account, shard unrelated accounts, and perform
// period rollover linearizably with respect to concurrent increments.
type MeterStore interface {
	// Snapshot returns a point-in-time copy of the account's metrics for
	// the period containing now, rolling over lazily if the stored period
	// key is stale.
	Snapshot(ctx context.Context, accountID string, now time.Time) (usage.Metrics, error)

	// Increment adds amount to a metric's current-period counter and
	// today's daily bucket. Idempotent by eventID within the dedupe
	// window. Returns the post-increment metrics and whether the event
	// was applied (false when deduplicated).
	Increment(ctx context.Context, accountID string, metric usage.Metric, amount float64, eventID string, now time.Time) (usage.Metrics, bool, error)
}

// UsageArchive persists rolled-over periods and daily history beyond the
// in-memory window.
type UsageArchive interface {
	// ArchivePeriod stores the final totals of a completed period.
	ArchivePeriod(ctx context.Context, m usage.Metrics) error

	// SaveDay upserts one daily bucket value.
	SaveDay(ctx context.Context, accountID string, metric usage.Metric, day string, value float64) error

	// DailyRange returns the archived daily series for a metric between
	// two date keys inclusive.
	DailyRange(ctx context.Context, accountID string, metric usage.Metric, fromDay, toDay string) ([]usage.DailyPoint, error)
}

// CostEventStore is the append-only cost event log, the source of truth
// for attribution.
type CostEventStore interface {
	// Append stores a batch of immutable cost events.
	Append(ctx context.Context, events []cost.Event) error

	// Range returns events for an account within [from, to).
	Range(ctx context.Context, accountID string, from, to time.Time) ([]cost.Event, error)

	// DailyTotals returns total cost per UTC day within [from, to).
	DailyTotals(ctx context.Context, accountID string, from, to time.Time) ([]usage.DailyPoint, error)

	// DriverDailyTotals returns per-day cost for one driver within [from, to).
	DriverDailyTotals(ctx context.Context, accountID string, driver cost.DriverType, from, to time.Time) ([]usage.DailyPoint, error)

	// CountByTrace returns per-trace event counts for one driver within
	// [from, to). Events without a trace id are ignored.
	CountByTrace(ctx context.Context, accountID string, driver cost.DriverType, from, to time.Time) (map[string]int, error)
}

// AlertStore persists usage alerts.
type AlertStore interface {
	// Create stores a new alert.
	Create(ctx context.Context, a alert.Alert) error

	// Latest returns the most recent alert for a dedupe key, read or not.
	Latest(ctx context.Context, key alert.Key) (*alert.Alert, error)

	// ListActive returns unread alerts for an account, newest first.
	ListActive(ctx context.Context, accountID string) ([]alert.Alert, error)

	// MarkRead transitions an alert from active to read.
	MarkRead(ctx context.Context, id string) error
}
