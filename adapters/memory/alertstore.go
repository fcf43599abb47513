package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/guardrail/domain/alert"
	"github.com/artpar/guardrail/pkg/errs"
	"github.com/artpar/guardrail/ports"
)

// AlertStore is an in-memory implementation of ports.AlertStore for
// tests and ephemeral deployments.
type AlertStore struct {
	mu     sync.RWMutex
	alerts []alert.Alert
}

// NewAlertStore creates an empty in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{}
}

// Create stores a new alert.
func (s *AlertStore) Create(ctx context.Context, a alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

// Latest returns the most recent alert for a dedupe key, read or not.
func (s *AlertStore) Latest(ctx context.Context, key alert.Key) (*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *alert.Alert
	for i := range s.alerts {
		a := s.alerts[i]
		if a.DedupeKey() != key {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			cp := a
			latest = &cp
		}
	}
	return latest, nil
}

// ListActive returns unread alerts for an account, newest first.
func (s *AlertStore) ListActive(ctx context.Context, accountID string) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []alert.Alert
	for _, a := range s.alerts {
		if a.AccountID == accountID && !a.Read {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkRead transitions an alert from active to read.
func (s *AlertStore) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Read = true
			return nil
		}
	}
	return errs.NotFound("alert", id)
}

// Ensure interface compliance.
var _ ports.AlertStore = (*AlertStore)(nil)
