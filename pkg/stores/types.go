package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of an ingestion run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// OutcomeStatus represents the outcome of a single entity within a run.
type OutcomeStatus string

const (
	OutcomeStatusSucceeded OutcomeStatus = "succeeded"
	OutcomeStatusFailed    OutcomeStatus = "failed"
	OutcomeStatusSkipped   OutcomeStatus = "skipped"
)

// Run represents one ingestion run. A run that never reaches a terminal
// status stays "running" in the history, which is how interrupted runs
// show up in listings.
type Run struct {
	ID          string     `json:"id"`
	Workflow    string     `json:"workflow"`
	Trigger     string     `json:"trigger"` // manual or scheduled
	Status      RunStatus  `json:"status"`
	DryRun      bool       `json:"dry_run"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Total       int        `json:"total"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
	Error       *string    `json:"error,omitempty"`
}

// RunTotals are the aggregate entity counts stamped on a completed run.
type RunTotals struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// EntityOutcome represents the result of processing one entity during a
// run, in execution order.
type EntityOutcome struct {
	ID         int64         `json:"id"`
	RunID      string        `json:"run_id"`
	Position   int           `json:"position"`
	EntityType string        `json:"entity_type"`
	Identifier string        `json:"identifier"`
	Fqn        string        `json:"fqn,omitempty"`
	Operation  string        `json:"operation"` // create, update, skip
	Status     OutcomeStatus `json:"status"`
	Error      *string       `json:"error,omitempty"`
	DurationMs int64         `json:"duration_ms"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Store defines the interface for the run history store.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	CompleteRun(ctx context.Context, id string, status RunStatus, totals RunTotals, errMsg *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// Outcome operations
	AppendOutcome(ctx context.Context, outcome *EntityOutcome) error
	ListOutcomes(ctx context.Context, runID string) ([]*EntityOutcome, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
