package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/guardrail/domain/cost"
	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/ports"
)

// CostEventStore is an in-memory append-only cost event log, used in
// tests and single-node setups without persistence.
type CostEventStore struct {
	mu     sync.RWMutex
	events map[string][]cost.Event // accountID -> chronological events
}

// NewCostEventStore creates an empty in-memory cost event log.
func NewCostEventStore() *CostEventStore {
	return &CostEventStore{events: make(map[string][]cost.Event)}
}

// Append stores a batch of immutable cost events.
func (s *CostEventStore) Append(ctx context.Context, events []cost.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events[e.AccountID] = append(s.events[e.AccountID], e)
	}
	for id := range s.events {
		evs := s.events[id]
		sort.Slice(evs, func(i, j int) bool { return evs[i].Timestamp.Before(evs[j].Timestamp) })
	}
	return nil
}

// Range returns events for an account within [from, to).
func (s *CostEventStore) Range(ctx context.Context, accountID string, from, to time.Time) ([]cost.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []cost.Event
	for _, e := range s.events[accountID] {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

// DailyTotals returns total cost per UTC day within [from, to).
func (s *CostEventStore) DailyTotals(ctx context.Context, accountID string, from, to time.Time) ([]usage.DailyPoint, error) {
	return s.dailyTotals(accountID, from, to, func(cost.Event) bool { return true })
}

// DriverDailyTotals returns per-day cost for one driver within [from, to).
func (s *CostEventStore) DriverDailyTotals(ctx context.Context, accountID string, driver cost.DriverType, from, to time.Time) ([]usage.DailyPoint, error) {
	return s.dailyTotals(accountID, from, to, func(e cost.Event) bool { return e.Driver == driver })
}

func (s *CostEventStore) dailyTotals(accountID string, from, to time.Time, keep func(cost.Event) bool) ([]usage.DailyPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	days := make(map[string]float64)
	for _, e := range s.events[accountID] {
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) || !keep(e) {
			continue
		}
		days[usage.DayKeyFor(e.Timestamp)] += e.CostImpact
	}
	out := make([]usage.DailyPoint, 0, len(days))
	for d, v := range days {
		out = append(out, usage.DailyPoint{Date: d, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// CountByTrace returns per-trace event counts for one driver.
func (s *CostEventStore) CountByTrace(ctx context.Context, accountID string, driver cost.DriverType, from, to time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, e := range s.events[accountID] {
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			continue
		}
		if e.Driver != driver || e.TraceID == "" {
			continue
		}
		out[e.TraceID]++
	}
	return out, nil
}

// Ensure interface compliance.
var _ ports.CostEventStore = (*CostEventStore)(nil)
