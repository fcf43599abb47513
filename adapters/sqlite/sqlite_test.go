package sqlite_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/artpar/guardrail/adapters/sqlite"
	"github.com/artpar/guardrail/domain/alert"
	"github.com/artpar/guardrail/domain/anomaly"
	"github.com/artpar/guardrail/domain/cost"
	"github.com/artpar/guardrail/domain/usage"
	"github.com/artpar/guardrail/pkg/errs"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	f, err := os.CreateTemp("", "guardrail-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := sqlite.Open(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		os.Remove(path)
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		os.Remove(path)
	})
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Errorf("expected re-running migrations to be a no-op, got %v", err)
	}
}

// -----------------------------------------------------------------------------
// CostEventStore Tests
// -----------------------------------------------------------------------------

func TestCostEventStore_AppendAndRange(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewCostEventStore(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	err := store.Append(ctx, []cost.Event{
		{ID: "ce-1", AccountID: "acct-1", Timestamp: base, Driver: cost.DriverToolCalls, CostImpact: 6, TraceID: "tr-1"},
		{ID: "ce-2", AccountID: "acct-1", Timestamp: base.Add(time.Minute), Driver: cost.DriverRetries, CostImpact: 2},
		{ID: "ce-3", AccountID: "acct-2", Timestamp: base, Driver: cost.DriverToolCalls, CostImpact: 9},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := store.Range(ctx, "acct-1", base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "ce-1" || events[0].TraceID != "tr-1" {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[1].TraceID != "" {
		t.Errorf("expected empty trace for ce-2, got %q", events[1].TraceID)
	}
}

func TestCostEventStore_RangeExcludesUpperBound(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewCostEventStore(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	store.Append(ctx, []cost.Event{
		{ID: "ce-1", AccountID: "acct-1", Timestamp: base, Driver: cost.DriverToolCalls, CostImpact: 1},
	})

	events, err := store.Range(ctx, "acct-1", base.Add(-time.Hour), base)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected [from, to) to exclude the boundary event, got %d", len(events))
	}
}

func TestCostEventStore_DailyTotals(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewCostEventStore(db)
	ctx := context.Background()

	store.Append(ctx, []cost.Event{
		{ID: "ce-1", AccountID: "acct-1", Timestamp: time.Date(2026, 8, 14, 9, 0, 0, 0, time.UTC), Driver: cost.DriverToolCalls, CostImpact: 5},
		{ID: "ce-2", AccountID: "acct-1", Timestamp: time.Date(2026, 8, 14, 18, 0, 0, 0, time.UTC), Driver: cost.DriverRetries, CostImpact: 3},
		{ID: "ce-3", AccountID: "acct-1", Timestamp: time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC), Driver: cost.DriverToolCalls, CostImpact: 7},
	})

	points, err := store.DailyTotals(ctx, "acct-1",
		time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("daily totals: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 days, got %d", len(points))
	}
	if points[0].Date != "2026-08-14" || points[0].Value != 8 {
		t.Errorf("unexpected first day %+v", points[0])
	}
	if points[1].Date != "2026-08-15" || points[1].Value != 7 {
		t.Errorf("unexpected second day %+v", points[1])
	}
}

func TestCostEventStore_DriverDailyTotals(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewCostEventStore(db)
	ctx := context.Background()

	day := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	store.Append(ctx, []cost.Event{
		{ID: "ce-1", AccountID: "acct-1", Timestamp: day, Driver: cost.DriverContextWindow, CostImpact: 4},
		{ID: "ce-2", AccountID: "acct-1", Timestamp: day, Driver: cost.DriverToolCalls, CostImpact: 6},
	})

	points, err := store.DriverDailyTotals(ctx, "acct-1", cost.DriverContextWindow,
		day.Add(-24*time.Hour), day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("driver daily totals: %v", err)
	}
	if len(points) != 1 || points[0].Value != 4 {
		t.Errorf("expected only context_window spend, got %+v", points)
	}
}

func TestCostEventStore_CountByTrace(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewCostEventStore(db)
	ctx := context.Background()

	day := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	var events []cost.Event
	for i := 0; i < 3; i++ {
		events = append(events, cost.Event{
			ID: "ce-a-" + string(rune('0'+i)), AccountID: "acct-1", Timestamp: day,
			Driver: cost.DriverToolCalls, CostImpact: 1, TraceID: "tr-a",
		})
	}
	// No trace id: must be ignored by the grouping.
	events = append(events, cost.Event{
		ID: "ce-x", AccountID: "acct-1", Timestamp: day, Driver: cost.DriverToolCalls, CostImpact: 1,
	})
	if err := store.Append(ctx, events); err != nil {
		t.Fatalf("append: %v", err)
	}

	counts, err := store.CountByTrace(ctx, "acct-1", cost.DriverToolCalls,
		day.Add(-time.Hour), day.Add(time.Hour))
	if err != nil {
		t.Fatalf("count by trace: %v", err)
	}
	if len(counts) != 1 || counts["tr-a"] != 3 {
		t.Errorf("expected tr-a=3 only, got %+v", counts)
	}
}

// -----------------------------------------------------------------------------
// AlertStore Tests
// -----------------------------------------------------------------------------

func testAlert(id string, created time.Time) alert.Alert {
	return alert.Alert{
		ID:        id,
		AccountID: "acct-1",
		Type:      alert.TypeQuotaWarning,
		Metric:    "tokens",
		Severity:  anomaly.SeverityMedium,
		Title:     "tokens usage at 80%",
		Message:   "Account has used 80000 of 100000 tokens this period (80%).",
		Metadata:  map[string]string{"percentage": "80.0", "plan_id": "free"},
		CreatedAt: created,
	}
}

func TestAlertStore_CreateAndLatest(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewAlertStore(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	if err := store.Create(ctx, testAlert("al-1", base)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, testAlert("al-2", base.Add(time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}

	latest, err := store.Latest(ctx, alert.Key{AccountID: "acct-1", Type: alert.TypeQuotaWarning, Metric: "tokens"})
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ID != "al-2" {
		t.Errorf("expected al-2, got %+v", latest)
	}
	if latest.Metadata["plan_id"] != "free" {
		t.Errorf("expected metadata round trip, got %+v", latest.Metadata)
	}
}

func TestAlertStore_LatestMissingKey(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewAlertStore(db)

	latest, err := store.Latest(context.Background(), alert.Key{AccountID: "acct-1", Type: alert.TypeCostAnomaly, Metric: "retry_storm"})
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil for an unseen key, got %+v", latest)
	}
}

func TestAlertStore_MarkReadLifecycle(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewAlertStore(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	store.Create(ctx, testAlert("al-1", base))

	active, err := store.ListActive(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active alert, got %d", len(active))
	}

	if err := store.MarkRead(ctx, "al-1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	active, _ = store.ListActive(ctx, "acct-1")
	if len(active) != 0 {
		t.Errorf("expected read alert to leave the active list, got %d", len(active))
	}

	// The read alert still backs the dedupe rule.
	latest, _ := store.Latest(ctx, alert.Key{AccountID: "acct-1", Type: alert.TypeQuotaWarning, Metric: "tokens"})
	if latest == nil || !latest.Read {
		t.Errorf("expected latest to return the read alert, got %+v", latest)
	}
}

func TestAlertStore_MarkReadUnknown(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewAlertStore(db)

	if err := store.MarkRead(context.Background(), "ghost"); !errs.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

// -----------------------------------------------------------------------------
// UsageArchive Tests
// -----------------------------------------------------------------------------

func TestUsageArchive_SaveDayUpserts(t *testing.T) {
	db := setupTestDB(t)
	archive := sqlite.NewUsageArchive(db)
	ctx := context.Background()

	archive.SaveDay(ctx, "acct-1", usage.MetricTokens, "2026-08-14", 100)
	archive.SaveDay(ctx, "acct-1", usage.MetricTokens, "2026-08-14", 250)
	archive.SaveDay(ctx, "acct-1", usage.MetricTokens, "2026-08-15", 50)

	points, err := archive.DailyRange(ctx, "acct-1", usage.MetricTokens, "2026-08-14", "2026-08-15")
	if err != nil {
		t.Fatalf("daily range: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 days, got %d", len(points))
	}
	if points[0].Value != 250 {
		t.Errorf("expected upserted value 250, got %f", points[0].Value)
	}
}

func TestUsageArchive_ArchivePeriod(t *testing.T) {
	db := setupTestDB(t)
	archive := sqlite.NewUsageArchive(db)
	ctx := context.Background()

	m := usage.NewMetrics("acct-1", "2026-08")
	m.Counters[usage.MetricTokens] = 90000
	m.Counters[usage.MetricRequests] = 800

	if err := archive.ArchivePeriod(ctx, m); err != nil {
		t.Fatalf("archive period: %v", err)
	}
	// Rollover retries upsert the same period.
	if err := archive.ArchivePeriod(ctx, m); err != nil {
		t.Errorf("expected re-archiving to upsert, got %v", err)
	}
}
