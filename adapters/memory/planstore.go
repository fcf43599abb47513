package memory

import (
	"context"
	"sync"

	"github.com/artpar/guardrail/domain/plan"
	"github.com/artpar/guardrail/pkg/errs"
	"github.com/artpar/guardrail/ports"
)

// PlanStore is an in-memory implementation of ports.PlanStore holding
// the mostly-static plan configuration. Replace swaps the whole set on
// config reload.
type PlanStore struct {
	mu    sync.RWMutex
	plans []plan.Plan
}

// NewPlanStore creates a plan store with the given plans.
func NewPlanStore(plans []plan.Plan) *PlanStore {
	return &PlanStore{plans: plans}
}

// Get retrieves a plan by ID. Unknown plans are an error, never a silent
// default to a free tier.
func (s *PlanStore) Get(ctx context.Context, id string) (plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := plan.Find(s.plans, id); ok {
		return p, nil
	}
	return plan.Plan{}, errs.NotFound("plan", id)
}

// List returns all configured plans.
func (s *PlanStore) List(ctx context.Context) ([]plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]plan.Plan, len(s.plans))
	copy(out, s.plans)
	return out, nil
}

// Replace swaps the plan set (config hot reload).
func (s *PlanStore) Replace(plans []plan.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = plans
}

// Ensure interface compliance.
var _ ports.PlanStore = (*PlanStore)(nil)
