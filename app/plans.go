package app

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/guardrail/core/events"
	"github.com/artpar/guardrail/domain/plan"
	"github.com/artpar/guardrail/ports"
	"github.com/rs/zerolog"
)

// DefaultPlanCacheTTL bounds how stale a resolved plan may be without an
// explicit invalidation.
const DefaultPlanCacheTTL = 5 * time.Minute

// PlanResolver resolves a plan identifier to its limits, cached with a
// TTL and explicit invalidation on subscription change.
type PlanResolver struct {
	plans    ports.PlanStore
	accounts ports.AccountStore
	clock    ports.Clock
	bus      *events.Bus
	ttl      time.Duration
	logger   zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cachedPlan
}

type cachedPlan struct {
	plan      plan.Plan
	expiresAt time.Time
}

// PlanResolverDeps contains dependencies for the plan resolver.
type PlanResolverDeps struct {
	Plans    ports.PlanStore
	Accounts ports.AccountStore
	Clock    ports.Clock
	Bus      *events.Bus
	TTL      time.Duration
	Logger   zerolog.Logger
}

// NewPlanResolver creates a new plan resolver.
func NewPlanResolver(deps PlanResolverDeps) *PlanResolver {
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = DefaultPlanCacheTTL
	}
	return &PlanResolver{
		plans:    deps.Plans,
		accounts: deps.Accounts,
		clock:    deps.Clock,
		bus:      deps.Bus,
		ttl:      ttl,
		logger:   deps.Logger,
		cache:    make(map[string]cachedPlan),
	}
}

// Resolve returns the limits for a plan id. Unknown plans are a
// NotFoundError, never a silent default.
func (r *PlanResolver) Resolve(ctx context.Context, planID string) (plan.Plan, error) {
	now := r.clock.Now()

	r.mu.RLock()
	entry, ok := r.cache[planID]
	r.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.plan, nil
	}

	p, err := r.plans.Get(ctx, planID)
	if err != nil {
		return plan.Plan{}, err
	}

	r.mu.Lock()
	r.cache[planID] = cachedPlan{plan: p, expiresAt: now.Add(r.ttl)}
	r.mu.Unlock()

	return p, nil
}

// ResolveAccount resolves the plan for an account's current subscription.
func (r *PlanResolver) ResolveAccount(ctx context.Context, accountID string) (plan.Plan, error) {
	account, err := r.accounts.Get(ctx, accountID)
	if err != nil {
		return plan.Plan{}, err
	}
	return r.Resolve(ctx, account.PlanID)
}

// Invalidate drops a plan from the cache.
func (r *PlanResolver) Invalidate(planID string) {
	r.mu.Lock()
	delete(r.cache, planID)
	r.mu.Unlock()
}

// InvalidateAll drops the whole cache (config reload).
func (r *PlanResolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string]cachedPlan)
	r.mu.Unlock()
}

// UpdateSubscription changes an account's plan and seats, invalidating
// the limit cache so the next check sees the new plan.
func (r *PlanResolver) UpdateSubscription(ctx context.Context, accountID, planID string, seats int) error {
	if _, err := r.plans.Get(ctx, planID); err != nil {
		return err
	}
	account, err := r.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if err := r.accounts.UpdateSubscription(ctx, accountID, planID, seats); err != nil {
		return err
	}

	r.Invalidate(account.PlanID)
	r.Invalidate(planID)

	r.logger.Info().
		Str("account_id", accountID).
		Str("plan_id", planID).
		Int("seats", seats).
		Msg("subscription updated")

	if r.bus != nil {
		r.bus.Publish(ctx, events.Event{
			Name:      events.PlanChanged,
			AccountID: accountID,
			Data:      map[string]any{"plan_id": planID, "seats": seats},
		})
	}
	return nil
}
