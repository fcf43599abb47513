package sqlite

import (
	"context"

	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/ports"
)

// UsageArchive implements ports.UsageArchive using SQLite.
type UsageArchive struct {
	db *DB
}

// NewUsageArchive creates a new SQLite usage archive.
func NewUsageArchive(db *DB) *UsageArchive {
	return &UsageArchive{db: db}
}

// ArchivePeriod stores the final totals of a completed period.
func (s *UsageArchive) ArchivePeriod(ctx context.Context, m usage.Metrics) error {
	if len(m.Counters) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_periods (account_id, period_key, metric, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, period_key, metric) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for metric, value := range m.Counters {
		if _, err := stmt.ExecContext(ctx, m.AccountID, m.PeriodKey, string(metric), value); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveDay upserts one daily bucket value.
func (s *UsageArchive) SaveDay(ctx context.Context, accountID string, metric usage.Metric, day string, value float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_daily (account_id, metric, day, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, metric, day) DO UPDATE SET value = excluded.value
	`, accountID, string(metric), day, value)
	return err
}

// DailyRange returns the archived daily series for a metric between two
// date keys inclusive.
func (s *UsageArchive) DailyRange(ctx context.Context, accountID string, metric usage.Metric, fromDay, toDay string) ([]usage.DailyPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, value
		FROM usage_daily
		WHERE account_id = ? AND metric = ? AND day >= ? AND day <= ?
		ORDER BY day
	`, accountID, string(metric), fromDay, toDay)
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

// Ensure interface compliance.
var _ ports.UsageArchive = (*UsageArchive)(nil)
