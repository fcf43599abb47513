package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/guardrail/pkg/errs"
	"github.com/artpar/guardrail/ports"
)

// AccountStore is an in-memory implementation of ports.AccountStore,
// seeded from configuration.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]ports.Account
	clock    ports.Clock
}

// NewAccountStore creates an account store seeded with the given accounts.
func NewAccountStore(seed []ports.Account, clock ports.Clock) *AccountStore {
	s := &AccountStore{
		accounts: make(map[string]ports.Account, len(seed)),
		clock:    clock,
	}
	for _, a := range seed {
		s.accounts[a.ID] = a
	}
	return s
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(ctx context.Context, id string) (ports.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return ports.Account{}, errs.NotFound("account", id)
	}
	return a, nil
}

// List returns all known accounts in stable order.
func (s *AccountStore) List(ctx context.Context) ([]ports.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ports.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateSubscription changes the plan and seat count for an account.
func (s *AccountStore) UpdateSubscription(ctx context.Context, id, planID string, seats int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return errs.NotFound("account", id)
	}
	a.PlanID = planID
	a.Seats = seats
	a.UpdatedAt = s.now()
	s.accounts[id] = a
	return nil
}

func (s *AccountStore) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}

// Ensure interface compliance.
var _ ports.AccountStore = (*AccountStore)(nil)
