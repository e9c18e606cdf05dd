package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates a migrated store backed by a temp file
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "mantle_audit.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { store.Close() })
	return store
}

// testRun builds a run that just started
func testRun(id string, startedAt time.Time) *Run {
	return &Run{
		ID:        id,
		Workflow:  "warehouse_ingest",
		Trigger:   "manual",
		Status:    RunStatusRunning,
		StartedAt: startedAt,
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(Config{})
	if err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "mantle_audit.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"runs", "entity_outcomes"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Re-running migrations is a no-op
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("expected repeated migration to succeed, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	now := time.Now()

	// Create
	run := testRun("run-001", now)
	run.DryRun = true
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	// Read
	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}

	if retrieved.Workflow != "warehouse_ingest" {
		t.Errorf("expected workflow warehouse_ingest, got %s", retrieved.Workflow)
	}
	if retrieved.Trigger != "manual" {
		t.Errorf("expected trigger manual, got %s", retrieved.Trigger)
	}
	if retrieved.Status != RunStatusRunning {
		t.Errorf("expected status %s, got %s", RunStatusRunning, retrieved.Status)
	}
	if !retrieved.DryRun {
		t.Error("expected dry_run to round-trip")
	}
	if retrieved.CompletedAt != nil {
		t.Error("expected no completed_at on a running run")
	}
	if retrieved.StartedAt.IsZero() {
		t.Error("expected started_at to be set")
	}

	// Complete
	totals := RunTotals{Total: 5, Succeeded: 3, Failed: 1, Skipped: 1}
	if err := store.CompleteRun(ctx, run.ID, RunStatusSucceeded, totals, nil); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	completed, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get completed run: %v", err)
	}

	if completed.Status != RunStatusSucceeded {
		t.Errorf("expected status %s, got %s", RunStatusSucceeded, completed.Status)
	}
	if completed.Total != 5 || completed.Succeeded != 3 || completed.Failed != 1 || completed.Skipped != 1 {
		t.Errorf("expected totals 5/3/1/1, got %d/%d/%d/%d",
			completed.Total, completed.Succeeded, completed.Failed, completed.Skipped)
	}
	if completed.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if completed.Error != nil {
		t.Errorf("expected no error on a succeeded run, got %v", *completed.Error)
	}

	// Completing a missing run fails
	if err := store.CompleteRun(ctx, "no-such-run", RunStatusFailed, RunTotals{}, nil); err == nil {
		t.Error("expected error when completing a missing run")
	}
}

func TestCompleteRunRecordsError(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()

	run := testRun("run-002", time.Now())
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	errMsg := "policy evaluation denied the run with 2 violation(s)"
	if err := store.CompleteRun(ctx, run.ID, RunStatusFailed, RunTotals{}, &errMsg); err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	failed, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get failed run: %v", err)
	}

	if failed.Status != RunStatusFailed {
		t.Errorf("expected status %s, got %s", RunStatusFailed, failed.Status)
	}
	if failed.Error == nil || *failed.Error != errMsg {
		t.Errorf("expected error %q, got %v", errMsg, failed.Error)
	}
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	now := time.Now()

	// Staggered start times so ordering is deterministic
	for i, id := range []string{"run-old", "run-mid", "run-new"} {
		run := testRun(id, now.Add(time.Duration(i-2)*time.Hour))
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("failed to create run %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}

	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	// Most recent first
	want := []string{"run-new", "run-mid", "run-old"}
	for i, id := range want {
		if runs[i].ID != id {
			t.Errorf("expected run %s at position %d, got %s", id, i, runs[i].ID)
		}
	}

	// Limit
	limited, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list limited runs: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 runs, got %d", len(limited))
	}

	// Offset
	offset, err := store.ListRuns(ctx, 10, 2)
	if err != nil {
		t.Fatalf("failed to list offset runs: %v", err)
	}
	if len(offset) != 1 || offset[0].ID != "run-old" {
		t.Errorf("expected only run-old past the offset, got %v", offset)
	}
}

func TestOutcomeOperations(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	now := time.Now()

	run := testRun("run-003", now)
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	errMsg := "catalog request failed"
	outcomes := []*EntityOutcome{
		{
			RunID:      run.ID,
			Position:   0,
			EntityType: "database_service",
			Identifier: "database_service:warehouse",
			Fqn:        "warehouse",
			Operation:  "create",
			Status:     OutcomeStatusSucceeded,
			DurationMs: 42,
			RecordedAt: now,
		},
		{
			RunID:      run.ID,
			Position:   1,
			EntityType: "table",
			Identifier: "table:orders",
			Fqn:        "warehouse.appdb.public.orders",
			Operation:  "skip",
			Status:     OutcomeStatusSkipped,
			RecordedAt: now.Add(time.Second),
		},
		{
			RunID:      run.ID,
			Position:   2,
			EntityType: "table",
			Identifier: "table:customers",
			Operation:  "skip",
			Status:     OutcomeStatusFailed,
			Error:      &errMsg,
			DurationMs: 310,
			RecordedAt: now.Add(2 * time.Second),
		},
	}

	for _, outcome := range outcomes {
		if err := store.AppendOutcome(ctx, outcome); err != nil {
			t.Fatalf("failed to append outcome: %v", err)
		}
		if outcome.ID == 0 {
			t.Error("expected outcome ID to be set after insert")
		}
	}

	retrieved, err := store.ListOutcomes(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list outcomes: %v", err)
	}

	if len(retrieved) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(retrieved))
	}
	for i, outcome := range retrieved {
		if outcome.Position != i {
			t.Errorf("expected position %d, got %d", i, outcome.Position)
		}
	}

	if retrieved[0].Fqn != "warehouse" {
		t.Errorf("expected fqn warehouse, got %s", retrieved[0].Fqn)
	}
	if retrieved[0].DurationMs != 42 {
		t.Errorf("expected duration 42ms, got %d", retrieved[0].DurationMs)
	}
	if retrieved[1].Status != OutcomeStatusSkipped {
		t.Errorf("expected skipped status, got %s", retrieved[1].Status)
	}
	if retrieved[1].Error != nil {
		t.Errorf("expected no error on skipped outcome, got %v", *retrieved[1].Error)
	}
	if retrieved[2].Error == nil || *retrieved[2].Error != errMsg {
		t.Errorf("expected error %q, got %v", errMsg, retrieved[2].Error)
	}

	// Outcomes for an unknown run are empty, not an error
	empty, err := store.ListOutcomes(ctx, "no-such-run")
	if err != nil {
		t.Fatalf("failed to list outcomes for unknown run: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no outcomes, got %d", len(empty))
	}
}

func TestDeleteRunCascadesOutcomes(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	now := time.Now()

	run := testRun("run-004", now)
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	outcome := &EntityOutcome{
		RunID:      run.ID,
		Position:   0,
		EntityType: "table",
		Identifier: "table:orders",
		Operation:  "create",
		Status:     OutcomeStatusSucceeded,
		RecordedAt: now,
	}
	if err := store.AppendOutcome(ctx, outcome); err != nil {
		t.Fatalf("failed to append outcome: %v", err)
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}

	if _, err := store.GetRun(ctx, run.ID); err == nil {
		t.Error("expected error when getting deleted run")
	}

	outcomes, err := store.ListOutcomes(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list outcomes: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("expected 0 outcomes after cascade delete, got %d", len(outcomes))
	}

	if err := store.DeleteRun(ctx, "no-such-run"); err == nil {
		t.Error("expected error when deleting a missing run")
	}
}

func TestPruneRuns(t *testing.T) {
	store := setupTestStore(t)

	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		run := testRun("run-"+string(rune('a'+i)), now.Add(time.Duration(i-5)*time.Hour))
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	deleted, err := store.PruneRuns(ctx, 2)
	if err != nil {
		t.Fatalf("failed to prune runs: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 runs pruned, got %d", deleted)
	}

	remaining, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 runs to remain, got %d", len(remaining))
	}
	// The two most recent survive
	if remaining[0].ID != "run-e" || remaining[1].ID != "run-d" {
		t.Errorf("expected run-e and run-d to remain, got %s and %s", remaining[0].ID, remaining[1].ID)
	}

	// Pruning below the row count is a no-op
	deleted, err = store.PruneRuns(ctx, 10)
	if err != nil {
		t.Fatalf("failed to prune runs: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected 0 runs pruned, got %d", deleted)
	}

	if _, err := store.PruneRuns(ctx, 0); err == nil {
		t.Error("expected error for non-positive keep")
	}
}
