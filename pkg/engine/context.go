package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openmantle/openmantle/pkg/config"
)

// ProcessedEntity records one entity handled during a run.
type ProcessedEntity struct {
	// EntityType is the entity type.
	EntityType config.EntityType `json:"entity_type"`

	// Name is the declared entity name.
	Name string `json:"name"`

	// Fqn is the fully qualified name the entity was registered under.
	Fqn string `json:"fqn"`

	// Entity is the catalog payload returned by the write, if any.
	Entity Entity `json:"-"`

	// Success is false when processing failed.
	Success bool `json:"success"`

	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`

	// Created is true when the entity was created.
	Created bool `json:"created"`

	// Updated is true when the entity was updated.
	Updated bool `json:"updated"`

	// Skipped is true when the entity was skipped.
	Skipped bool `json:"skipped"`
}

// ExecutionStats aggregates counters for a run.
type ExecutionStats struct {
	TotalEntities    int       `json:"total_entities"`
	Successful       int       `json:"successful"`
	Failed           int       `json:"failed"`
	Skipped          int       `json:"skipped"`
	Updated          int       `json:"updated"`
	Created          int       `json:"created"`
	DryRun           int       `json:"dry_run"`
	ValidationErrors int       `json:"validation_errors"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time,omitempty"`
}

// DurationSeconds returns the run duration, or zero before Finalize.
func (s *ExecutionStats) DurationSeconds() float64 {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime).Seconds()
}

// ExecutionContext carries the shared state of one run: the loaded
// configuration, the catalog client, and the registry of entities
// processed so far. Entities registered here satisfy dependency checks
// for entities processed later in the same run.
type ExecutionContext struct {
	Config *config.IngestionConfig
	Client CatalogClient
	Stats  ExecutionStats

	processed map[string]*ProcessedEntity
	order     []string
}

// NewExecutionContext returns a context with the stats clock started.
func NewExecutionContext(cfg *config.IngestionConfig, client CatalogClient) *ExecutionContext {
	return &ExecutionContext{
		Config:    cfg,
		Client:    client,
		Stats:     ExecutionStats{StartTime: time.Now()},
		processed: make(map[string]*ProcessedEntity),
	}
}

// DryRun reports whether the run previews without writing.
func (c *ExecutionContext) DryRun() bool {
	return c.Config.Execution.DryRun
}

// ContinueOnError reports whether the run keeps going after entity
// failures.
func (c *ExecutionContext) ContinueOnError() bool {
	return c.Config.Execution.ContinueOnError
}

// FailFastOnDependency reports whether the run aborts on the first
// dependency validation failure.
func (c *ExecutionContext) FailFastOnDependency() bool {
	return c.Config.Execution.FailFastOnDependency
}

// RegisterEntity records a processed entity under its FQN and updates
// the counters. Created, Updated, and Skipped are counted only for
// successful entities, first one wins.
func (c *ExecutionContext) RegisterEntity(p ProcessedEntity) {
	c.put(p.Fqn, &p)

	c.Stats.TotalEntities++
	if !p.Success {
		c.Stats.Failed++
		return
	}
	c.Stats.Successful++
	switch {
	case p.Created:
		c.Stats.Created++
	case p.Updated:
		c.Stats.Updated++
	case p.Skipped:
		c.Stats.Skipped++
	}
}

// RegisterDryRun records an entity that would have been written. The
// entry satisfies dependency checks for later entities in the run.
func (c *ExecutionContext) RegisterDryRun(entityType config.EntityType, name, fqn string) {
	c.put(fqn, &ProcessedEntity{
		EntityType: entityType,
		Name:       name,
		Fqn:        fqn,
		Success:    true,
	})
	c.Stats.TotalEntities++
	c.Stats.DryRun++
}

// RegisterValidationError records an entity rejected before it produced
// an FQN. The entry is keyed by "type:name".
func (c *ExecutionContext) RegisterValidationError(entityType config.EntityType, name, errMsg string) {
	fqn := fmt.Sprintf("%s:%s", entityType, name)
	c.put(fqn, &ProcessedEntity{
		EntityType: entityType,
		Name:       name,
		Fqn:        fqn,
		Success:    false,
		Error:      errMsg,
	})
	c.Stats.TotalEntities++
	c.Stats.ValidationErrors++
	c.Stats.Failed++
}

func (c *ExecutionContext) put(fqn string, p *ProcessedEntity) {
	if _, seen := c.processed[fqn]; !seen {
		c.order = append(c.order, fqn)
	}
	c.processed[fqn] = p
}

// Processed returns the record for an FQN, or nil.
func (c *ExecutionContext) Processed(fqn string) *ProcessedEntity {
	return c.processed[fqn]
}

// LocalEntity returns the catalog payload registered for an FQN in this
// run, or nil. Dry-run existence checks use this instead of the catalog.
func (c *ExecutionContext) LocalEntity(fqn string) Entity {
	p := c.processed[fqn]
	if p == nil {
		return nil
	}
	return p.Entity
}

// EntityExists reports whether an FQN is satisfied either by an entity
// processed earlier in this run or by the catalog. The entity type for
// catalog lookups is inferred from FQN depth, so only the database
// hierarchy resolves remotely. Lookup failures count as absent.
func (c *ExecutionContext) EntityExists(ctx context.Context, fqn string) bool {
	if _, ok := c.processed[fqn]; ok {
		return true
	}

	entityType, ok := entityTypeForFqnDepth(fqn)
	if !ok {
		return false
	}

	entity, err := c.Client.FindByFqn(ctx, entityType, fqn)
	if err != nil {
		return false
	}
	return entity != nil
}

// AllProcessed returns every processed record in registration order.
func (c *ExecutionContext) AllProcessed() []*ProcessedEntity {
	out := make([]*ProcessedEntity, 0, len(c.order))
	for _, fqn := range c.order {
		out = append(out, c.processed[fqn])
	}
	return out
}

// FailedEntities returns the failed records in registration order.
func (c *ExecutionContext) FailedEntities() []*ProcessedEntity {
	var out []*ProcessedEntity
	for _, fqn := range c.order {
		if p := c.processed[fqn]; !p.Success {
			out = append(out, p)
		}
	}
	return out
}

// Finalize stamps the end time and returns the counters.
func (c *ExecutionContext) Finalize() ExecutionStats {
	c.Stats.EndTime = time.Now()
	return c.Stats
}

// entityTypeForFqnDepth infers the entity type of a dependency FQN from
// its dot depth: service, service.database, service.database.schema,
// service.database.schema.table.
func entityTypeForFqnDepth(fqn string) (config.EntityType, bool) {
	switch strings.Count(fqn, ".") {
	case 0:
		return config.TypeDatabaseService, true
	case 1:
		return config.TypeDatabase, true
	case 2:
		return config.TypeDatabaseSchema, true
	case 3:
		return config.TypeTable, true
	}
	return "", false
}
