package engine

import (
	"fmt"
	"strings"
	"time"
)

// Operation is the action taken for an entity during ingestion.
type Operation string

const (
	// OperationCreate indicates the entity was created in the catalog.
	OperationCreate Operation = "create"

	// OperationUpdate indicates the existing entity was updated.
	OperationUpdate Operation = "update"

	// OperationSkip indicates the entity was left untouched.
	OperationSkip Operation = "skip"
)

// ExecutionResult is the outcome of processing a single entity.
// Every entity handed to the executor produces exactly one result.
type ExecutionResult struct {
	// EntityType is the configured entity type (e.g. "table").
	EntityType string `json:"entity_type"`

	// Name is the configured entity name, if any.
	Name string `json:"name,omitempty"`

	// Fqn is the fully qualified name computed by the handler. Empty when
	// the failure occurred before the handler could be constructed.
	Fqn string `json:"fqn,omitempty"`

	// Operation is the action taken. Failures record OperationSkip.
	Operation Operation `json:"operation"`

	// Success is false only when the entity failed.
	Success bool `json:"success"`

	// Skipped is true when the idempotency decision was to skip.
	Skipped bool `json:"skipped,omitempty"`

	// Reason is the human-readable skip reason.
	Reason string `json:"reason,omitempty"`

	// SchemaChanges holds the schema comparison for entity types that
	// support schema evolution, when an existing entity was found.
	SchemaChanges *SchemaComparison `json:"schema_changes,omitempty"`

	// Err is the failure, if any.
	Err error `json:"-"`

	// StartedAt is when processing of this entity began.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long processing took.
	Duration time.Duration `json:"duration"`
}

// String renders the result in the single-line report format used by the
// summary banner and the audit log.
func (r ExecutionResult) String() string {
	if r.Success {
		if r.Skipped {
			return fmt.Sprintf("SKIPPED: %s - %s", r.Fqn, r.Reason)
		}
		changes := ""
		if r.SchemaChanges != nil {
			changes = fmt.Sprintf(" (%s)", r.SchemaChanges.Summary())
		}
		return fmt.Sprintf("%s: %s%s", strings.ToUpper(string(r.Operation)), r.Fqn, changes)
	}
	return fmt.Sprintf("FAILED: %s - %v", r.Fqn, r.Err)
}

// ErrorMessage returns the failure message, or an empty string on success.
func (r ExecutionResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// IngestionSummary aggregates the results of a run.
type IngestionSummary struct {
	// TotalEntities is the number of entities processed.
	TotalEntities int `json:"total_entities"`

	// Successful is the number of entities created or updated.
	Successful int `json:"successful"`

	// Skipped is the number of entities skipped by idempotency decisions.
	Skipped int `json:"skipped"`

	// Failed is the number of entities that failed.
	Failed int `json:"failed"`

	// DryRun records whether the run was a dry run.
	DryRun bool `json:"dry_run"`

	// StartTime is when the run began.
	StartTime time.Time `json:"start_time"`

	// EndTime is when the run finished.
	EndTime time.Time `json:"end_time"`

	// Duration is the total run duration, set by Finalize.
	Duration time.Duration `json:"duration"`

	// Results holds the per-entity outcomes in execution order.
	Results []ExecutionResult `json:"results"`

	// Stats holds the context counters for the run: created, updated,
	// dry run, and validation error totals.
	Stats ExecutionStats `json:"stats"`
}

// NewIngestionSummary returns a summary with the start time set.
func NewIngestionSummary() *IngestionSummary {
	return &IngestionSummary{StartTime: time.Now()}
}

// AddResult records a per-entity outcome and updates the counters.
func (s *IngestionSummary) AddResult(result ExecutionResult) {
	s.Results = append(s.Results, result)
	s.TotalEntities++

	switch {
	case !result.Success:
		s.Failed++
	case result.Skipped:
		s.Skipped++
	default:
		s.Successful++
	}
}

// Finalize sets the end time and duration.
func (s *IngestionSummary) Finalize() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// FailedResults returns the results of entities that failed, in order.
func (s *IngestionSummary) FailedResults() []ExecutionResult {
	var failed []ExecutionResult
	for _, r := range s.Results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}

// String renders the summary banner.
func (s *IngestionSummary) String() string {
	rule := strings.Repeat("=", 60)
	lines := []string{
		rule,
		"Ingestion Summary",
		rule,
		fmt.Sprintf("Total Entities:     %d", s.TotalEntities),
		fmt.Sprintf("Successful:         %d", s.Successful),
		fmt.Sprintf("Skipped:            %d", s.Skipped),
		fmt.Sprintf("Failed:             %d", s.Failed),
		fmt.Sprintf("Duration:           %.2fs", s.Duration.Seconds()),
		rule,
	}

	if s.Failed > 0 {
		lines = append(lines, "\nFailed Entities:")
		for _, r := range s.Results {
			if !r.Success {
				lines = append(lines, fmt.Sprintf("  - %s", r))
			}
		}
	}

	return strings.Join(lines, "\n")
}
