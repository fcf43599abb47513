package app

import (
	"context"
	"testing"
	"time"

	"github.com/artpar/guardrail/adapters/clock"
	"github.com/artpar/guardrail/adapters/memory"
	"github.com/artpar/guardrail/pkg/errs"
	"github.com/artpar/guardrail/ports"
	"github.com/rs/zerolog"
)

func newTestResolver(t *testing.T, clk ports.Clock) (*PlanResolver, *memory.PlanStore) {
	t.Helper()
	store := memory.NewPlanStore(testPlanSet())
	accounts := memory.NewAccountStore([]ports.Account{
		{ID: "acct-1", PlanID: "free", Seats: 1},
	}, clk)
	r := NewPlanResolver(PlanResolverDeps{
		Plans:    store,
		Accounts: accounts,
		Clock:    clk,
		Logger:   zerolog.Nop(),
	})
	return r, store
}

func TestPlanResolver_ResolveAndCache(t *testing.T) {
	clk := clock.NewFake(testStart)
	r, store := newTestResolver(t, clk)

	p, err := r.Resolve(context.Background(), "free")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "free" {
		t.Errorf("expected free, got %s", p.ID)
	}

	// A store swap is invisible until the TTL expires.
	store.Replace(nil)
	if p, err = r.Resolve(context.Background(), "free"); err != nil || p.ID != "free" {
		t.Errorf("expected cached plan within TTL, got %+v, %v", p, err)
	}

	clk.Advance(DefaultPlanCacheTTL + time.Second)
	if _, err = r.Resolve(context.Background(), "free"); !errs.IsNotFound(err) {
		t.Errorf("expected cache miss after TTL to hit the store, got %v", err)
	}
}

func TestPlanResolver_UnknownPlanIsError(t *testing.T) {
	clk := clock.NewFake(testStart)
	r, _ := newTestResolver(t, clk)

	if _, err := r.Resolve(context.Background(), "enterprise"); !errs.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestPlanResolver_ResolveAccount(t *testing.T) {
	clk := clock.NewFake(testStart)
	r, _ := newTestResolver(t, clk)

	p, err := r.ResolveAccount(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "free" {
		t.Errorf("expected the account's plan, got %s", p.ID)
	}
}

func TestPlanResolver_UpdateSubscriptionInvalidates(t *testing.T) {
	clk := clock.NewFake(testStart)
	r, _ := newTestResolver(t, clk)

	if _, err := r.ResolveAccount(context.Background(), "acct-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.UpdateSubscription(context.Background(), "acct-1", "pro", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := r.ResolveAccount(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "pro" {
		t.Errorf("expected the next check to see the new plan, got %s", p.ID)
	}
}

func TestPlanResolver_UpdateSubscriptionUnknownPlan(t *testing.T) {
	clk := clock.NewFake(testStart)
	r, _ := newTestResolver(t, clk)

	if err := r.UpdateSubscription(context.Background(), "acct-1", "enterprise", 1); !errs.IsNotFound(err) {
		t.Errorf("expected not found for unknown plan, got %v", err)
	}
}
