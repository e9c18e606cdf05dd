package engine

import (
	"context"
	"errors"
	"time"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/telemetry"
)

// EntityExecutor processes one entity declaration at a time through the
// full lifecycle: validate, check dependencies, build, compare, decide,
// act, record.
type EntityExecutor struct {
	execCtx    *ExecutionContext
	handlers   HandlerRegistry
	strategies *StrategyRegistry
	logger     *telemetry.Logger
}

// NewEntityExecutor returns an executor bound to a run's context. The
// strategy registry is seeded with the built-in idempotency modes.
func NewEntityExecutor(execCtx *ExecutionContext, handlers HandlerRegistry, logger *telemetry.Logger) *EntityExecutor {
	if logger == nil {
		logger = telemetry.Nop().Logger
	}
	return &EntityExecutor{
		execCtx:    execCtx,
		handlers:   handlers,
		strategies: NewStrategyRegistry(),
		logger:     logger,
	}
}

// Strategies exposes the idempotency strategy registry so callers can
// register custom modes before the run starts.
func (e *EntityExecutor) Strategies() *StrategyRegistry {
	return e.strategies
}

// Execute processes one entity declaration and always returns a result.
// Failures are captured in the result rather than returned; the caller
// decides whether the run continues.
func (e *EntityExecutor) Execute(ctx context.Context, entity config.EntityConfig) ExecutionResult {
	started := time.Now()

	handler, err := e.handlers.Handler(entity.Type)
	if err != nil {
		return e.failure(entity, "", started, e.wrap(entity, err))
	}

	if err := handler.Validate(&entity); err != nil {
		return e.failure(entity, "", started, e.wrap(entity, err))
	}

	fqn, err := handler.Fqn(&entity)
	if err != nil {
		return e.failure(entity, "", started, e.wrap(entity, err))
	}

	logger := e.logger.WithEntity(string(entity.Type), fqn)
	logger.Infof("Processing %s: %s", entity.Type, fqn)

	if err := e.checkDependencies(ctx, handler, &entity); err != nil {
		logger.WithError(err).Error("Dependency validation failed")
		return e.failure(entity, fqn, started, err)
	}

	payload, err := handler.Build(&entity)
	if err != nil {
		return e.failure(entity, fqn, started, e.wrap(entity, err))
	}

	existing := e.findExisting(ctx, entity.Type, fqn)

	var schemaChanges *SchemaComparison
	if handler.SupportsSchemaEvolution() && existing != nil {
		schemaChanges = CompareFields(existing.SchemaFields(), payload.SchemaFields())
	}

	decision, err := e.decide(&entity, existing != nil, schemaChanges)
	if err != nil {
		return e.failure(entity, fqn, started, e.wrap(entity, err))
	}

	if decision.ShouldSkip() {
		return ExecutionResult{
			EntityType:    string(entity.Type),
			Name:          entity.Name,
			Fqn:           fqn,
			Operation:     OperationSkip,
			Success:       true,
			Skipped:       true,
			Reason:        decision.Reason,
			SchemaChanges: schemaChanges,
			StartedAt:     started,
			Duration:      time.Since(started),
		}
	}

	if decision.ShouldFail() {
		failErr := NewEntityProcessingError(decision.Reason, ErrorClassPermanent, nil).
			WithEntity(string(entity.Type), entity.Name)
		logger.WithError(failErr).Error("Failed to process entity")
		return e.failure(entity, fqn, started, failErr)
	}

	operation := Operation(decision.Action)
	if err := e.act(ctx, decision.Action, &entity, fqn, payload); err != nil {
		wrapped := e.wrap(entity, err)
		logger.WithError(wrapped).Error("Failed to process entity")
		return e.failure(entity, fqn, started, wrapped)
	}

	logger.Infof("Successfully %sd %s: %s", operation, entity.Type, fqn)

	return ExecutionResult{
		EntityType:    string(entity.Type),
		Name:          entity.Name,
		Fqn:           fqn,
		Operation:     operation,
		Success:       true,
		Reason:        decision.Reason,
		SchemaChanges: schemaChanges,
		StartedAt:     started,
		Duration:      time.Since(started),
	}
}

// checkDependencies verifies that every parent FQN the handler declares
// is satisfied by this run or by the catalog.
func (e *EntityExecutor) checkDependencies(ctx context.Context, handler EntityHandler, entity *config.EntityConfig) error {
	deps, err := handler.Dependencies(entity)
	if err != nil {
		return e.wrap(*entity, err)
	}
	for _, dep := range deps {
		if !e.execCtx.EntityExists(ctx, dep) {
			return NewDependencyValidationError(string(entity.Type), entity.Name, dep)
		}
	}
	return nil
}

// findExisting looks up the current catalog entity for an FQN. Dry runs
// consult only entities registered earlier in this run; live runs query
// the catalog and treat lookup errors as absent.
func (e *EntityExecutor) findExisting(ctx context.Context, entityType config.EntityType, fqn string) Entity {
	if e.execCtx.DryRun() {
		return e.execCtx.LocalEntity(fqn)
	}
	entity, err := e.execCtx.Client.FindByFqn(ctx, entityType, fqn)
	if err != nil {
		return nil
	}
	return entity
}

// decide resolves the idempotency mode for the entity, entity-level
// override first, then the run default, and applies the strategy.
func (e *EntityExecutor) decide(entity *config.EntityConfig, exists bool, schemaChanges *SchemaComparison) (IdempotencyDecision, error) {
	mode := entity.Idempotency
	if mode == "" {
		mode = e.execCtx.Config.Defaults.Idempotency
	}
	if mode == "" {
		mode = config.IdempotencySkip
	}

	strategy, err := e.strategies.Get(mode)
	if err != nil {
		return IdempotencyDecision{}, err
	}
	return strategy(exists, schemaChanges), nil
}

// act performs the decided write and registers the outcome. Dry runs
// register the FQN without touching the catalog.
func (e *EntityExecutor) act(ctx context.Context, action IdempotencyAction, entity *config.EntityConfig, fqn string, payload Entity) error {
	name := entity.Name
	if name == "" {
		name = fqn
	}

	if e.execCtx.DryRun() {
		e.execCtx.RegisterDryRun(entity.Type, name, fqn)
		return nil
	}

	switch action {
	case ActionCreate:
		created, err := e.execCtx.Client.Create(ctx, payload)
		if err != nil {
			return err
		}
		e.execCtx.RegisterEntity(ProcessedEntity{
			EntityType: entity.Type,
			Name:       name,
			Fqn:        fqn,
			Entity:     created,
			Success:    true,
			Created:    true,
		})
	case ActionUpdate:
		updated, err := e.execCtx.Client.Update(ctx, payload)
		if err != nil {
			return err
		}
		e.execCtx.RegisterEntity(ProcessedEntity{
			EntityType: entity.Type,
			Name:       name,
			Fqn:        fqn,
			Entity:     updated,
			Success:    true,
			Updated:    true,
		})
	}
	return nil
}

// wrap coerces an arbitrary failure into a classified ingestion error
// with entity context. Already-classified errors pass through unchanged.
func (e *EntityExecutor) wrap(entity config.EntityConfig, err error) error {
	var ie *IngestError
	if errors.As(err, &ie) {
		return err
	}
	return NewEntityProcessingError(err.Error(), ErrorClassPermanent, err).
		WithEntity(string(entity.Type), entity.Name)
}

func (e *EntityExecutor) failure(entity config.EntityConfig, fqn string, started time.Time, err error) ExecutionResult {
	return ExecutionResult{
		EntityType: string(entity.Type),
		Name:       entity.Name,
		Fqn:        fqn,
		Operation:  OperationSkip,
		Success:    false,
		Err:        err,
		StartedAt:  started,
		Duration:   time.Since(started),
	}
}
