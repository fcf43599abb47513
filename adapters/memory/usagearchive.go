package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/ports"
)

// UsageArchive is an in-memory implementation of ports.UsageArchive.
type UsageArchive struct {
	mu      sync.RWMutex
	periods []usage.Metrics
	daily   map[string]map[usage.Metric]map[string]float64 // account -> metric -> day -> value
}

// NewUsageArchive creates an empty in-memory usage archive.
func NewUsageArchive() *UsageArchive {
	return &UsageArchive{daily: make(map[string]map[usage.Metric]map[string]float64)}
}

// ArchivePeriod stores the final totals of a completed period.
func (s *UsageArchive) ArchivePeriod(ctx context.Context, m usage.Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = append(s.periods, m)
	return nil
}

// ArchivedPeriods returns archived period snapshots for an account.
func (s *UsageArchive) ArchivedPeriods(accountID string) []usage.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []usage.Metrics
	for _, m := range s.periods {
		if m.AccountID == accountID {
			out = append(out, m)
		}
	}
	return out
}

// SaveDay upserts one daily bucket value.
func (s *UsageArchive) SaveDay(ctx context.Context, accountID string, metric usage.Metric, day string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	metrics := s.daily[accountID]
	if metrics == nil {
		metrics = make(map[usage.Metric]map[string]float64)
		s.daily[accountID] = metrics
	}
	days := metrics[metric]
	if days == nil {
		days = make(map[string]float64)
		metrics[metric] = days
	}
	days[day] = value
	return nil
}

// DailyRange returns the archived daily series for a metric.
func (s *UsageArchive) DailyRange(ctx context.Context, accountID string, metric usage.Metric, fromDay, toDay string) ([]usage.DailyPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []usage.DailyPoint
	for d, v := range s.daily[accountID][metric] {
		if d < fromDay || d > toDay {
			continue
		}
		out = append(out, usage.DailyPoint{Date: d, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Ensure interface compliance.
var _ ports.UsageArchive = (*UsageArchive)(nil)
