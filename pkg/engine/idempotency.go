package engine

import (
	"fmt"
	"sync"

	"github.com/openmantle/openmantle/pkg/config"
)

// IdempotencyAction is what the executor should do with an entity after
// consulting the configured strategy.
type IdempotencyAction string

const (
	// ActionCreate means the entity does not exist and should be created.
	ActionCreate IdempotencyAction = "create"

	// ActionUpdate means the entity exists and should be updated.
	ActionUpdate IdempotencyAction = "update"

	// ActionSkip means the entity exists and should be left untouched.
	ActionSkip IdempotencyAction = "skip"

	// ActionFail means the entity exists and the run should record a failure.
	ActionFail IdempotencyAction = "fail"
)

// IdempotencyDecision is the outcome of an idempotency strategy.
type IdempotencyDecision struct {
	Action IdempotencyAction
	Reason string
}

// ShouldProceed reports whether a create or update should be performed.
func (d IdempotencyDecision) ShouldProceed() bool {
	return d.Action == ActionCreate || d.Action == ActionUpdate
}

// ShouldSkip reports whether the entity should be skipped.
func (d IdempotencyDecision) ShouldSkip() bool {
	return d.Action == ActionSkip
}

// ShouldFail reports whether the entity should be failed.
func (d IdempotencyDecision) ShouldFail() bool {
	return d.Action == ActionFail
}

// IdempotencyStrategy decides how to treat an entity given whether it
// already exists and, for schema-evolving types, the schema comparison.
// Strategies are pure functions: same inputs, same decision.
type IdempotencyStrategy func(entityExists bool, schemaChanges *SchemaComparison) IdempotencyDecision

// SkipIfExists is the default strategy: never touch an existing entity.
func SkipIfExists(entityExists bool, _ *SchemaComparison) IdempotencyDecision {
	if entityExists {
		return IdempotencyDecision{
			Action: ActionSkip,
			Reason: "Entity already exists (skip mode)",
		}
	}
	return IdempotencyDecision{
		Action: ActionCreate,
		Reason: "Entity does not exist",
	}
}

// UpdateIfChanged updates an existing entity only when the schema
// comparison reports changes. Existing entities without a comparison, or
// with an unchanged schema, are skipped.
func UpdateIfChanged(entityExists bool, schemaChanges *SchemaComparison) IdempotencyDecision {
	if !entityExists {
		return IdempotencyDecision{
			Action: ActionCreate,
			Reason: "Entity does not exist",
		}
	}
	if schemaChanges != nil && schemaChanges.HasChanges {
		return IdempotencyDecision{
			Action: ActionUpdate,
			Reason: fmt.Sprintf("Entity exists with schema changes: %s", schemaChanges.Summary()),
		}
	}
	return IdempotencyDecision{
		Action: ActionSkip,
		Reason: "Entity exists but no schema changes detected",
	}
}

// FailIfExists fails the entity when it already exists.
func FailIfExists(entityExists bool, _ *SchemaComparison) IdempotencyDecision {
	if entityExists {
		return IdempotencyDecision{
			Action: ActionFail,
			Reason: "Entity already exists (fail mode)",
		}
	}
	return IdempotencyDecision{
		Action: ActionCreate,
		Reason: "Entity does not exist",
	}
}

// StrategyRegistry maps idempotency modes to strategies. The registry is
// an explicit instance handed to the executor; there is no package-level
// registration.
type StrategyRegistry struct {
	mu         sync.RWMutex
	strategies map[config.IdempotencyMode]IdempotencyStrategy
}

// NewStrategyRegistry returns a registry seeded with the built-in
// skip, update, and fail strategies.
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{
		strategies: map[config.IdempotencyMode]IdempotencyStrategy{
			config.IdempotencySkip:   SkipIfExists,
			config.IdempotencyUpdate: UpdateIfChanged,
			config.IdempotencyFail:   FailIfExists,
		},
	}
}

// Get returns the strategy for a mode.
func (r *StrategyRegistry) Get(mode config.IdempotencyMode) (IdempotencyStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	strategy, ok := r.strategies[mode]
	if !ok {
		return nil, NewConfigurationError(fmt.Sprintf("unknown idempotency mode: %s", mode), nil)
	}
	return strategy, nil
}

// Register adds or replaces the strategy for a mode.
func (r *StrategyRegistry) Register(mode config.IdempotencyMode, strategy IdempotencyStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[mode] = strategy
}
