package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/pkg/errs"
)

func newTestMeterStore(t *testing.T) *MeterStore {
	t.Helper()
	s := NewMeterStore(MeterStoreConfig{NumShards: 4})
	t.Cleanup(s.Close)
	return s
}

func TestMeterStore_IncrementAndSnapshot(t *testing.T) {
	s := newTestMeterStore(t)
	now := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

	m, applied, err := s.Increment(context.Background(), "acct-1", usage.MetricTokens, 500, "ev-1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Errorf("expected first write to apply")
	}
	if m.Current(usage.MetricTokens) != 500 {
		t.Errorf("expected 500 tokens, got %f", m.Current(usage.MetricTokens))
	}

	snap, err := s.Snapshot(context.Background(), "acct-1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Current(usage.MetricTokens) != 500 {
		t.Errorf("expected snapshot to see 500 tokens, got %f", snap.Current(usage.MetricTokens))
	}
	if snap.Daily[usage.MetricTokens]["2026-08-15"] != 500 {
		t.Errorf("expected daily bucket 500, got %f", snap.Daily[usage.MetricTokens]["2026-08-15"])
	}
}

func TestMeterStore_DuplicateEventNotCounted(t *testing.T) {
	s := newTestMeterStore(t)
	now := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

	if _, _, err := s.Increment(context.Background(), "acct-1", usage.MetricRequests, 1, "ev-dup", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, applied, err := s.Increment(context.Background(), "acct-1", usage.MetricRequests, 1, "ev-dup", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Errorf("expected duplicate delivery to be skipped")
	}
	if m.Current(usage.MetricRequests) != 1 {
		t.Errorf("expected a single count, got %f", m.Current(usage.MetricRequests))
	}
}

func TestMeterStore_EmptyEventIDNeverDeduped(t *testing.T) {
	s := newTestMeterStore(t)
	now := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

	s.Increment(context.Background(), "acct-1", usage.MetricRequests, 1, "", now)
	m, applied, _ := s.Increment(context.Background(), "acct-1", usage.MetricRequests, 1, "", now)

	if !applied || m.Current(usage.MetricRequests) != 2 {
		t.Errorf("expected both writes without event IDs to count, got %f", m.Current(usage.MetricRequests))
	}
}

func TestMeterStore_NegativeAmountRejected(t *testing.T) {
	s := newTestMeterStore(t)

	_, _, err := s.Increment(context.Background(), "acct-1", usage.MetricTokens, -5, "ev-1", time.Now())
	if !errs.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestMeterStore_PeriodRolloverResetsCounters(t *testing.T) {
	archive := NewUsageArchive()
	s := NewMeterStore(MeterStoreConfig{NumShards: 4, Archive: archive})
	t.Cleanup(s.Close)

	aug := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	sep := time.Date(2026, 9, 1, 1, 0, 0, 0, time.UTC)

	s.Increment(context.Background(), "acct-1", usage.MetricTokens, 900, "ev-aug", aug)

	m, applied, err := s.Increment(context.Background(), "acct-1", usage.MetricTokens, 100, "ev-sep", sep)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Errorf("expected post-rollover write to apply")
	}
	if m.PeriodKey != "2026-09" {
		t.Errorf("expected period 2026-09, got %s", m.PeriodKey)
	}
	if m.Current(usage.MetricTokens) != 100 {
		t.Errorf("expected fresh period to hold only 100, got %f", m.Current(usage.MetricTokens))
	}

	archived := archive.ArchivedPeriods("acct-1")
	if len(archived) != 1 {
		t.Fatalf("expected one archived period, got %d", len(archived))
	}
	if archived[0].PeriodKey != "2026-08" || archived[0].Current(usage.MetricTokens) != 900 {
		t.Errorf("expected archived 2026-08 total 900, got %s %f", archived[0].PeriodKey, archived[0].Current(usage.MetricTokens))
	}
}

func TestMeterStore_DedupeSurvivesRollover(t *testing.T) {
	s := newTestMeterStore(t)

	aug := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	sep := time.Date(2026, 9, 1, 1, 0, 0, 0, time.UTC)

	if _, _, err := s.Increment(context.Background(), "acct-1", usage.MetricTokens, 100, "ev-1", aug); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Redelivery two hours later lands after the period rolled over. It
	// is still within the dedupe window and must stay a no-op.
	m, applied, err := s.Increment(context.Background(), "acct-1", usage.MetricTokens, 100, "ev-1", sep)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Errorf("expected redelivery across the period boundary to be skipped")
	}
	if m.PeriodKey != "2026-09" {
		t.Errorf("expected period 2026-09, got %s", m.PeriodKey)
	}
	if m.Current(usage.MetricTokens) != 0 {
		t.Errorf("expected the new period untouched by the duplicate, got %f", m.Current(usage.MetricTokens))
	}
}

func TestMeterStore_LateWriterNeverRollsBack(t *testing.T) {
	s := newTestMeterStore(t)

	sep := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	aug := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)

	s.Increment(context.Background(), "acct-1", usage.MetricTokens, 100, "ev-1", sep)

	// A delayed event carrying an August timestamp lands in the current
	// period rather than resurrecting the old one.
	m, _, err := s.Increment(context.Background(), "acct-1", usage.MetricTokens, 50, "ev-2", aug)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.PeriodKey != "2026-09" {
		t.Errorf("expected period to stay at 2026-09, got %s", m.PeriodKey)
	}
	if m.Current(usage.MetricTokens) != 150 {
		t.Errorf("expected 150 total, got %f", m.Current(usage.MetricTokens))
	}
}

func TestMeterStore_RolloverCallback(t *testing.T) {
	var mu sync.Mutex
	var from, to string
	s := NewMeterStore(MeterStoreConfig{
		NumShards: 4,
		OnRollover: func(accountID, fromKey, toKey string) {
			mu.Lock()
			from, to = fromKey, toKey
			mu.Unlock()
		},
	})
	t.Cleanup(s.Close)

	s.Increment(context.Background(), "acct-1", usage.MetricTokens, 1, "", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	s.Snapshot(context.Background(), "acct-1", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))

	mu.Lock()
	defer mu.Unlock()
	if from != "2026-08" || to != "2026-09" {
		t.Errorf("expected rollover 2026-08 -> 2026-09, got %s -> %s", from, to)
	}
}

func TestMeterStore_ConcurrentIncrements(t *testing.T) {
	s := newTestMeterStore(t)
	now := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Increment(context.Background(), "acct-1", usage.MetricRequests, 1, "", now)
			}
		}()
	}
	wg.Wait()

	m, err := s.Snapshot(context.Background(), "acct-1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Current(usage.MetricRequests) != workers*perWorker {
		t.Errorf("expected %d, got %f", workers*perWorker, m.Current(usage.MetricRequests))
	}
}

func TestMeterStore_PruneDedupe(t *testing.T) {
	s := newTestMeterStore(t)
	now := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

	s.Increment(context.Background(), "acct-1", usage.MetricTokens, 1, "ev-old", now)
	s.pruneDedupe(now.Add(DedupeWindow + time.Hour))

	m, applied, _ := s.Increment(context.Background(), "acct-1", usage.MetricTokens, 1, "ev-old", now.Add(DedupeWindow+2*time.Hour))
	if !applied {
		t.Errorf("expected pruned event ID to count again")
	}
	if m.Current(usage.MetricTokens) != 2 {
		t.Errorf("expected 2, got %f", m.Current(usage.MetricTokens))
	}
}
