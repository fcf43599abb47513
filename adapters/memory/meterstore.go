// Package memory provides in-memory implementations of storage ports.
// The meter store is the hot-path counter state: sharded by account so
// unrelated accounts update fully in parallel, serialized within one
// account to prevent lost updates.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/pkg/errs"
	"github.com/artpar/guardrail/ports"
)

// DedupeWindow is how long event IDs are remembered for idempotent
// recording. Duplicate delivery inside the window must not double-count.
const DedupeWindow = 24 * time.Hour

// accountState is the per-account mutable state. Guarded by its shard's
// mutex.
type accountState struct {
	metrics usage.Metrics
	seen    map[string]time.Time // eventID -> first seen
}

// meterShard is a single shard of the meter store.
type meterShard struct {
	mu       sync.Mutex
	accounts map[string]*accountState
}

// MeterStore is a sharded in-memory implementation of ports.MeterStore.
type MeterStore struct {
	shards     []*meterShard
	numShards  int
	archive    ports.UsageArchive // optional, receives rolled-over periods
	onRollover func(accountID, fromKey, toKey string)
	cleanup    *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// MeterStoreConfig configures the meter store.
type MeterStoreConfig struct {
	NumShards       int                // default: 32
	CleanupInterval time.Duration      // dedupe index pruning (default: 1h)
	Archive         ports.UsageArchive // optional period archive sink
	OnRollover      func(accountID, fromKey, toKey string)
}

// NewMeterStore creates a new sharded in-memory meter store.
func NewMeterStore(cfg MeterStoreConfig) *MeterStore {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}

	s := &MeterStore{
		shards:     make([]*meterShard, cfg.NumShards),
		numShards:  cfg.NumShards,
		archive:    cfg.Archive,
		onRollover: cfg.OnRollover,
		done:       make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &meterShard{accounts: make(map[string]*accountState)}
	}

	s.cleanup = time.NewTicker(cfg.CleanupInterval)
	go s.cleanupLoop()

	return s
}

// getShard returns the shard for an account using consistent hashing.
func (s *MeterStore) getShard(accountID string) *meterShard {
	h := fnv.New32a()
	h.Write([]byte(accountID))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// Snapshot returns a point-in-time copy of the account's metrics,
// rolling over first if the stored period key is stale.
func (s *MeterStore) Snapshot(ctx context.Context, accountID string, now time.Time) (usage.Metrics, error) {
	shard := s.getShard(accountID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state := s.stateLocked(shard, accountID, now)
	s.rolloverLocked(ctx, state, now)
	return state.metrics.Clone(), nil
}

// Increment adds amount to a metric's counters, idempotent by eventID.
// A write that observes a stale period key triggers rollover first, so
// the new period's counters are never corrupted by late writers.
func (s *MeterStore) Increment(ctx context.Context, accountID string, metric usage.Metric, amount float64, eventID string, now time.Time) (usage.Metrics, bool, error) {
	if amount < 0 {
		return usage.Metrics{}, false, errs.Validation("amount", "must not be negative")
	}

	shard := s.getShard(accountID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state := s.stateLocked(shard, accountID, now)
	s.rolloverLocked(ctx, state, now)

	if eventID != "" {
		if _, dup := state.seen[eventID]; dup {
			return state.metrics.Clone(), false, nil
		}
		state.seen[eventID] = now
	}

	state.metrics.Counters[metric] += amount

	day := usage.DayKeyFor(now)
	buckets := state.metrics.Daily[metric]
	if buckets == nil {
		buckets = make(map[string]float64)
		state.metrics.Daily[metric] = buckets
	}
	buckets[day] += amount

	if s.archive != nil {
		// Mirror the daily bucket so trend ranges survive restarts.
		// Best effort: archive failures never fail the hot path.
		_ = s.archive.SaveDay(ctx, accountID, metric, day, buckets[day])
	}

	return state.metrics.Clone(), true, nil
}

// stateLocked fetches or creates the account state. Caller holds the
// shard lock.
func (s *MeterStore) stateLocked(shard *meterShard, accountID string, now time.Time) *accountState {
	state, ok := shard.accounts[accountID]
	if !ok {
		state = &accountState{
			metrics: usage.NewMetrics(accountID, usage.PeriodKeyFor(now)),
			seen:    make(map[string]time.Time),
		}
		shard.accounts[accountID] = state
	}
	return state
}

// rolloverLocked archives and zeroes counters when the period key moved
// forward. Period keys sort lexically, so a smaller observed key means a
// late writer from the previous period; those never roll the period back.
// Caller holds the shard lock, making the swap linearizable with respect
// to concurrent increments on the same account.
func (s *MeterStore) rolloverLocked(ctx context.Context, state *accountState, now time.Time) {
	currentKey := usage.PeriodKeyFor(now)
	if state.metrics.PeriodKey >= currentKey {
		return
	}

	if s.archive != nil {
		_ = s.archive.ArchivePeriod(ctx, state.metrics.Clone())
	}
	if s.onRollover != nil {
		s.onRollover(state.metrics.AccountID, state.metrics.PeriodKey, currentKey)
	}

	// Counters reset but the dedupe index survives: a redelivery of an
	// event first seen late in the old period must stay a no-op in the
	// new one. pruneDedupe expires the entries by age.
	state.metrics = usage.NewMetrics(state.metrics.AccountID, currentKey)
}

// cleanupLoop prunes expired dedupe entries.
func (s *MeterStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanup.C:
			s.pruneDedupe(time.Now())
		case <-s.done:
			return
		}
	}
}

// pruneDedupe drops event IDs older than the dedupe window.
func (s *MeterStore) pruneDedupe(now time.Time) {
	cutoff := now.Add(-DedupeWindow)
	for _, shard := range s.shards {
		shard.mu.Lock()
		for _, state := range shard.accounts {
			for id, seen := range state.seen {
				if seen.Before(cutoff) {
					delete(state.seen, id)
				}
			}
		}
		shard.mu.Unlock()
	}
}

// Close stops background cleanup.
func (s *MeterStore) Close() {
	s.closeOnce.Do(func() {
		s.cleanup.Stop()
		close(s.done)
	})
}

// Ensure interface compliance.
var _ ports.MeterStore = (*MeterStore)(nil)
