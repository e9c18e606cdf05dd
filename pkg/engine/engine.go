package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/stores"
	"github.com/openmantle/openmantle/pkg/telemetry"
)

// Options configures an Engine.
type Options struct {
	// Config is the loaded ingestion configuration.
	Config *config.IngestionConfig

	// Client is the catalog client lookups and writes go through.
	Client CatalogClient

	// Handlers resolves entity types to handlers.
	Handlers HandlerRegistry

	// Sources resolves discovery source names to connectors. May be nil
	// when the configuration declares no sources.
	Sources SourceRegistry

	// Policy gates the entity batch before execution. May be nil.
	Policy PolicyGate

	// Audit records run history. May be nil.
	Audit AuditLog

	// Telemetry provides logging, tracing, and metrics. Nil gets a
	// no-op stack.
	Telemetry *telemetry.Telemetry

	// Trigger labels what started the run, "manual" or "scheduled".
	Trigger string
}

// Engine orchestrates one ingestion run end to end: discovery expansion,
// policy evaluation, dependency resolution, and ordered execution.
type Engine struct {
	config    *config.IngestionConfig
	client    CatalogClient
	handlers  HandlerRegistry
	sources   SourceRegistry
	policy    PolicyGate
	audit     AuditLog
	telemetry *telemetry.Telemetry
	trigger   string
}

// New validates the options and returns an engine.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, NewConfigurationError("engine requires a configuration", nil)
	}
	if opts.Client == nil {
		return nil, NewConfigurationError("engine requires a catalog client", nil)
	}
	if opts.Handlers == nil {
		return nil, NewConfigurationError("engine requires an entity handler registry", nil)
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Nop()
	}
	if opts.Trigger == "" {
		opts.Trigger = "manual"
	}

	return &Engine{
		config:    opts.Config,
		client:    opts.Client,
		handlers:  opts.Handlers,
		sources:   opts.Sources,
		policy:    opts.Policy,
		audit:     opts.Audit,
		telemetry: opts.Telemetry,
		trigger:   opts.Trigger,
	}, nil
}

// Run executes the full ingestion flow and returns the summary. Fatal
// failures return the summary alongside the error so callers can still
// report partial progress. Per-entity failures never surface as an
// error; they are recorded in the summary.
func (e *Engine) Run(ctx context.Context) (*IngestionSummary, error) {
	runID := uuid.NewString()
	logger := e.telemetry.Logger.WithRunID(runID)

	ctx, span := e.telemetry.Tracer.StartRunSpan(ctx, runID)
	defer span.End()
	telemetry.SetAttributes(span, telemetry.AttrRunDryRun.Bool(e.config.Execution.DryRun))

	e.telemetry.Metrics.RecordRunStarted(e.trigger)

	summary := NewIngestionSummary()
	summary.DryRun = e.config.Execution.DryRun

	execCtx := NewExecutionContext(e.config, e.client)

	logger.Infof("Starting ingestion run: %s", e.config.Metadata.Name)
	if e.config.Execution.DryRun {
		logger.Warn("DRY RUN MODE - No changes will be made to the catalog")
	}
	e.auditBegin(ctx, logger, runID, summary.StartTime)

	logger.Info("Expanding discovery configurations")
	entities := e.expandDiscovery(ctx, logger)
	logger.Infof("Expanded to %d entities", len(entities))

	if err := e.evaluatePolicies(ctx, logger, entities); err != nil {
		return e.abort(ctx, span, logger, runID, summary, execCtx, err)
	}

	logger.Info("Resolving entity dependencies")
	resolver := NewDependencyResolver(entities)
	ordered, err := resolver.Resolve()
	if err != nil {
		return e.abort(ctx, span, logger, runID, summary, execCtx, err)
	}
	logger.Infof("Resolved %d entities in dependency order", len(ordered))

	logger.Info("Starting entity execution")
	executor := NewEntityExecutor(execCtx, e.handlers, logger)

	for i := range ordered {
		if ctx.Err() != nil {
			logger.Warn("Run cancelled")
			break
		}

		entity := ordered[i]
		entityCtx, entitySpan := e.telemetry.Tracer.StartEntitySpan(ctx, string(entity.Type), entity.Identifier())

		result := executor.Execute(entityCtx, entity)
		summary.AddResult(result)
		e.recordResult(entitySpan, logger, entity, result)
		e.auditOutcome(ctx, logger, runID, i, entity, result)
		entitySpan.End()

		if result.Success {
			continue
		}
		if IsDependencyValidation(result.Err) {
			if e.config.Execution.FailFastOnDependency {
				logger.Error("Stopping execution due to dependency error")
				break
			}
		} else if !e.config.Execution.ContinueOnError {
			logger.Error("Stopping execution after entity failure")
			break
		}
	}

	summary.Stats = execCtx.Finalize()
	summary.Finalize()

	status := "succeeded"
	if summary.Failed > 0 {
		status = "failed"
	}
	telemetry.SetAttributes(span, telemetry.AttrRunStatus.String(status))
	e.telemetry.Metrics.RecordRunCompleted(status, summary.Duration)
	e.auditComplete(ctx, logger, runID, stores.RunStatus(status), summary, nil)

	logger.Infof("\n%s", summary)
	return summary, nil
}

// recordResult logs the per-entity outcome and feeds the metrics and
// the entity span.
func (e *Engine) recordResult(span trace.Span, logger *telemetry.Logger, entity config.EntityConfig, result ExecutionResult) {
	status := "succeeded"
	switch {
	case !result.Success:
		status = "failed"
	case result.Skipped:
		status = "skipped"
	}
	e.telemetry.Metrics.RecordEntityProcessed(string(entity.Type), string(result.Operation), status, result.Duration)

	if result.SchemaChanges != nil {
		for _, change := range result.SchemaChanges.Changes {
			e.telemetry.Metrics.RecordSchemaChange(string(entity.Type), string(change.Kind))
		}
	}

	switch {
	case result.Success && result.Skipped:
		logger.Infof("⊘ %s", result)
		telemetry.RecordSuccess(span)
	case result.Success:
		logger.Infof("✓ %s", result)
		telemetry.RecordSuccess(span)
	default:
		logger.Errorf("✗ %s", result)
		telemetry.RecordError(span, result.Err)
		e.telemetry.Metrics.RecordError(string(KindOf(result.Err)))
	}
}

// evaluatePolicies runs the policy gate over the expanded batch. In
// advisory mode violations are logged and the run proceeds; a denial
// aborts the run before any entity is touched.
func (e *Engine) evaluatePolicies(ctx context.Context, logger *telemetry.Logger, entities []config.EntityConfig) error {
	if e.policy == nil {
		return nil
	}

	logger.Info("Evaluating policies")
	report, err := e.policy.Evaluate(ctx, entities)
	if err != nil {
		return NewConfigurationError("policy evaluation failed", err)
	}

	for _, v := range report.Violations {
		e.telemetry.Metrics.RecordPolicyViolation(v.Severity)

		fields := map[string]interface{}{"policy": v.Policy, "severity": v.Severity}
		if v.Entity != "" {
			fields["entity"] = v.Entity
		}
		if v.Severity == "error" {
			logger.WithFields(fields).Errorf("Policy violation: %s", v.Message)
		} else {
			logger.WithFields(fields).Warnf("Policy violation: %s", v.Message)
		}
	}

	if !report.Allowed {
		return NewPolicyViolationError(len(report.Violations))
	}
	return nil
}

// expandDiscovery turns discovery declarations into concrete entity
// declarations by querying their sources. Static declarations pass
// through in order. Discovery problems are logged and skipped so one
// unreachable source does not kill the batch.
func (e *Engine) expandDiscovery(ctx context.Context, logger *telemetry.Logger) []config.EntityConfig {
	expanded := make([]config.EntityConfig, 0, len(e.config.Entities))

	for i := range e.config.Entities {
		entity := e.config.Entities[i]
		if entity.Discovery == nil {
			expanded = append(expanded, entity)
			continue
		}

		discovery := entity.Discovery
		if e.sources == nil {
			logger.Errorf("Unknown source '%s' in discovery config", discovery.Source)
			continue
		}
		source, err := e.sources.Source(discovery.Source)
		if err != nil {
			logger.Errorf("Unknown source '%s' in discovery config", discovery.Source)
			continue
		}

		logger.Infof("Discovering %s entities from source '%s'", entity.Type, discovery.Source)

		discovered, err := e.discoverFromSource(ctx, source, DiscoveryRequest{
			EntityType:     entity.Type,
			Filter:         discovery.Filter,
			IncludePattern: discovery.IncludePattern,
			ExcludePattern: discovery.ExcludePattern,
		})
		if err != nil {
			logger.WithError(err).Errorf("Failed to discover from source '%s'", discovery.Source)
			e.telemetry.Metrics.RecordError("discovery")
			continue
		}

		logger.Infof("Discovered %d %s entities", len(discovered), entity.Type)
		e.telemetry.Metrics.RecordDiscoveredEntities(discovery.Source, string(entity.Type), len(discovered))
		expanded = append(expanded, discovered...)
	}

	return expanded
}

// discoverFromSource brackets one discovery request with connect and
// disconnect.
func (e *Engine) discoverFromSource(ctx context.Context, source Source, req DiscoveryRequest) ([]config.EntityConfig, error) {
	ctx, span := e.telemetry.Tracer.StartSourceSpan(ctx, source.Name(), "discover")
	defer span.End()

	if err := source.Connect(ctx); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer func() {
		if err := source.Disconnect(ctx); err != nil {
			e.telemetry.Logger.WithError(err).WithSource(source.Name(), string(source.Type())).Warn("Source disconnect failed")
		}
	}()

	discovered, err := source.Discover(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return discovered, nil
}

// abort finalizes the summary for a fatal pre-execution failure.
func (e *Engine) abort(ctx context.Context, span trace.Span, logger *telemetry.Logger, runID string, summary *IngestionSummary, execCtx *ExecutionContext, err error) (*IngestionSummary, error) {
	logger.WithError(err).Error("Fatal error during ingestion")

	summary.Stats = execCtx.Finalize()
	summary.Finalize()

	telemetry.RecordError(span, err)
	telemetry.SetAttributes(span, telemetry.AttrRunStatus.String("failed"))
	e.telemetry.Metrics.RecordRunCompleted("failed", summary.Duration)
	if kind := KindOf(err); kind != "" {
		e.telemetry.Metrics.RecordError(string(kind))
	}
	e.auditComplete(ctx, logger, runID, stores.RunStatusFailed, summary, err)

	return summary, err
}

// auditBegin records the run in the history store as it starts.
func (e *Engine) auditBegin(ctx context.Context, logger *telemetry.Logger, runID string, startedAt time.Time) {
	if e.audit == nil {
		return
	}

	run := &stores.Run{
		ID:        runID,
		Workflow:  e.config.Metadata.Name,
		Trigger:   e.trigger,
		Status:    stores.RunStatusRunning,
		DryRun:    e.config.Execution.DryRun,
		StartedAt: startedAt,
	}
	if err := e.audit.CreateRun(ctx, run); err != nil {
		logger.WithError(err).Warn("Failed to record run start")
	}
}

// auditOutcome records one entity outcome. Failures are always kept;
// successes and skips follow the audit config toggles.
func (e *Engine) auditOutcome(ctx context.Context, logger *telemetry.Logger, runID string, position int, entity config.EntityConfig, result ExecutionResult) {
	if e.audit == nil {
		return
	}

	status := stores.OutcomeStatusSucceeded
	switch {
	case !result.Success:
		status = stores.OutcomeStatusFailed
	case result.Skipped:
		if !e.config.Audit.IncludeSkipped {
			return
		}
		status = stores.OutcomeStatusSkipped
	default:
		if !e.config.Audit.IncludeSuccess {
			return
		}
	}

	var errMsg *string
	if result.Err != nil {
		msg := result.Err.Error()
		errMsg = &msg
	}

	outcome := &stores.EntityOutcome{
		RunID:      runID,
		Position:   position,
		EntityType: string(entity.Type),
		Identifier: entity.Identifier(),
		Fqn:        result.Fqn,
		Operation:  string(result.Operation),
		Status:     status,
		Error:      errMsg,
		DurationMs: result.Duration.Milliseconds(),
		RecordedAt: time.Now(),
	}
	if err := e.audit.AppendOutcome(ctx, outcome); err != nil {
		logger.WithError(err).Warn("Failed to record entity outcome")
	}
}

// auditComplete stamps the run's terminal status. The write survives a
// cancelled run context so interrupted runs still land in the history.
func (e *Engine) auditComplete(ctx context.Context, logger *telemetry.Logger, runID string, status stores.RunStatus, summary *IngestionSummary, runErr error) {
	if e.audit == nil {
		return
	}

	totals := stores.RunTotals{
		Total:     summary.TotalEntities,
		Succeeded: summary.Successful,
		Failed:    summary.Failed,
		Skipped:   summary.Skipped,
	}

	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}

	if err := e.audit.CompleteRun(context.WithoutCancel(ctx), runID, status, totals, errMsg); err != nil {
		logger.WithError(err).Warn("Failed to record run completion")
	}
}
