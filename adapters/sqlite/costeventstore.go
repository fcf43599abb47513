package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/artpar/guardrail/domain/cost"
	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/ports"
)

// CostEventStore implements ports.CostEventStore using SQLite.
type CostEventStore struct {
	db *DB
}

// NewCostEventStore creates a new SQLite cost event store.
func NewCostEventStore(db *DB) *CostEventStore {
	return &CostEventStore{db: db}
}

// Append stores a batch of immutable cost events.
func (s *CostEventStore) Append(ctx context.Context, events []cost.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cost_events (id, account_id, timestamp, driver_type, cost_impact, trace_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		// Store timestamps in UTC for consistent day bucketing
		_, err := stmt.ExecContext(ctx,
			e.ID, e.AccountID, e.Timestamp.UTC(), string(e.Driver), e.CostImpact, nullable(e.TraceID),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Range returns events for an account within [from, to).
func (s *CostEventStore) Range(ctx context.Context, accountID string, from, to time.Time) ([]cost.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, timestamp, driver_type, cost_impact, trace_id
		FROM cost_events
		WHERE account_id = ? AND datetime(timestamp) >= datetime(?) AND datetime(timestamp) < datetime(?)
		ORDER BY timestamp
	`, accountID, sqlTime(from), sqlTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []cost.Event
	for rows.Next() {
		var e cost.Event
		var driver string
		var trace sql.NullString
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Timestamp, &driver, &e.CostImpact, &trace); err != nil {
			return nil, err
		}
		e.Driver = cost.DriverType(driver)
		if trace.Valid {
			e.TraceID = trace.String
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// DailyTotals returns total cost per UTC day within [from, to).
func (s *CostEventStore) DailyTotals(ctx context.Context, accountID string, from, to time.Time) ([]usage.DailyPoint, error) {
	return s.queryDaily(ctx, `
		SELECT strftime('%Y-%m-%d', timestamp) AS day, COALESCE(SUM(cost_impact), 0)
		FROM cost_events
		WHERE account_id = ? AND datetime(timestamp) >= datetime(?) AND datetime(timestamp) < datetime(?)
		GROUP BY day ORDER BY day
	`, accountID, sqlTime(from), sqlTime(to))
}

// DriverDailyTotals returns per-day cost for one driver within [from, to).
func (s *CostEventStore) DriverDailyTotals(ctx context.Context, accountID string, driver cost.DriverType, from, to time.Time) ([]usage.DailyPoint, error) {
	return s.queryDaily(ctx, `
		SELECT strftime('%Y-%m-%d', timestamp) AS day, COALESCE(SUM(cost_impact), 0)
		FROM cost_events
		WHERE account_id = ? AND driver_type = ?
		  AND datetime(timestamp) >= datetime(?) AND datetime(timestamp) < datetime(?)
		GROUP BY day ORDER BY day
	`, accountID, string(driver), sqlTime(from), sqlTime(to))
}

func (s *CostEventStore) queryDaily(ctx context.Context, query string, args ...any) ([]usage.DailyPoint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []usage.DailyPoint
	for rows.Next() {
		var p usage.DailyPoint
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountByTrace returns per-trace event counts for one driver.
func (s *CostEventStore) CountByTrace(ctx context.Context, accountID string, driver cost.DriverType, from, to time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, COUNT(*)
		FROM cost_events
		WHERE account_id = ? AND driver_type = ? AND trace_id IS NOT NULL
		  AND datetime(timestamp) >= datetime(?) AND datetime(timestamp) < datetime(?)
		GROUP BY trace_id
	`, accountID, string(driver), sqlTime(from), sqlTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var trace string
		var n int
		if err := rows.Scan(&trace, &n); err != nil {
			return nil, err
		}
		out[trace] = n
	}
	return out, rows.Err()
}

// sqlTime formats a time as ISO8601 UTC for SQLite comparison.
func sqlTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure interface compliance.
var _ ports.CostEventStore = (*CostEventStore)(nil)
