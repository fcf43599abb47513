package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/artpar/guardrail/domain/alert"
	"github.com/artpar/guardrail/domain/anomaly"
	"github.com/artpar/guardrail/pkg/errs"
	"github.com/artpar/guardrail/ports"
)

// AlertStore implements ports.AlertStore using SQLite.
type AlertStore struct {
	db *DB
}

// NewAlertStore creates a new SQLite alert store.
func NewAlertStore(db *DB) *AlertStore {
	return &AlertStore{db: db}
}

// Create stores a new alert.
func (s *AlertStore) Create(ctx context.Context, a alert.Alert) error {
	var meta []byte
	if len(a.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(a.Metadata)
		if err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_alerts (id, account_id, type, metric, severity, title, message, metadata, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.AccountID, string(a.Type), a.Metric, string(a.Severity),
		a.Title, a.Message, nullableBytes(meta), a.Read, a.CreatedAt.UTC())
	return err
}

// Latest returns the most recent alert for a dedupe key, read or not.
func (s *AlertStore) Latest(ctx context.Context, key alert.Key) (*alert.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, type, metric, severity, title, message, metadata, read, created_at
		FROM usage_alerts
		WHERE account_id = ? AND type = ? AND metric = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, key.AccountID, string(key.Type), key.Metric)

	a, err := scanAlert(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActive returns unread alerts for an account, newest first.
func (s *AlertStore) ListActive(ctx context.Context, accountID string) ([]alert.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, type, metric, severity, title, message, metadata, read, created_at
		FROM usage_alerts
		WHERE account_id = ? AND read = 0
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkRead transitions an alert from active to read.
func (s *AlertStore) MarkRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE usage_alerts SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NotFound("alert", id)
	}
	return nil
}

// scanAlert reads one alert row via the given Scan function.
func scanAlert(scan func(...any) error) (alert.Alert, error) {
	var a alert.Alert
	var typ, severity string
	var meta sql.NullString
	err := scan(&a.ID, &a.AccountID, &typ, &a.Metric, &severity,
		&a.Title, &a.Message, &meta, &a.Read, &a.CreatedAt)
	if err != nil {
		return alert.Alert{}, err
	}
	a.Type = alert.Type(typ)
	a.Severity = anomaly.Severity(severity)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &a.Metadata); err != nil {
			return alert.Alert{}, err
		}
	}
	return a, nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// Ensure interface compliance.
var _ ports.AlertStore = (*AlertStore)(nil)
