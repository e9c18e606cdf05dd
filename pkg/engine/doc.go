// Package engine provides the core types and orchestration for the OpenMantle
// ingestion engine.
//
// # Overview
//
// OpenMantle ingests declared metadata entities into a metadata catalog. The
// engine drives one run through a fixed pipeline:
//
//  1. Expand - Resolve discovery declarations into concrete entities (Source)
//  2. Gate - Evaluate the policy set over the batch (PolicyGate)
//  3. Order - Sort entities by their static dependency table (DependencyResolver)
//  4. Execute - Validate, build, and write each entity in order (Executor)
//  5. Summarize - Aggregate per-entity results (IngestionSummary)
//  6. Record - Persist the run and its outcomes (AuditLog)
//
// # Core Domain Types
//
// The package defines the types that represent the execution model:
//
//   - ExecutionResult: The outcome of processing one entity
//   - IngestionSummary: Aggregated results and counters for a run
//   - ExecutionContext: The per-run registry of processed entities and stats
//   - SchemaComparison: A field-level diff between existing and desired schemas
//   - IdempotencyDecision: What to do when an entity already exists
//   - IngestError: The structured error carried by every failure
//
// # Collaborator Interfaces
//
// The engine is wired over small interfaces so every collaborator can be
// replaced in tests:
//
//   - CatalogClient: FindByFqn, Create, Update against the catalog
//   - EntityHandler: Per-type FQN computation, validation, and wire building
//   - HandlerRegistry: Resolves entity types to handlers
//   - Source: Connect, Discover, Disconnect for discovery connectors
//   - SourceRegistry: Resolves configured source names to connectors
//   - PolicyGate: Evaluates the batch before execution
//   - AuditLog: Records the run and per-entity outcomes
//
// # Error Classification
//
// Failures carry a kind (configuration, circular_dependency,
// dependency_validation, entity_validation, entity_processing,
// policy_violation) and a retry class (transient or permanent). Use the
// helpers to inspect them:
//
//	if engine.IsDependencyValidation(err) {
//	    // Never subject to continue-on-error
//	}
//	if engine.IsRetryable(err) {
//	    // Transient failure, safe to retry
//	}
//
// # Example Usage
//
// Running an ingestion:
//
//	eng, err := engine.New(engine.Options{
//	    Config:   cfg,
//	    Client:   client,
//	    Handlers: handlers,
//	    Sources:  sources,
//	})
//	if err != nil {
//	    return err
//	}
//	summary, err := eng.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(summary)
//
// # Execution Semantics
//
// Entities execute sequentially in dependency order. A dependency validation
// failure is always fatal for its entity; continue_on_error only governs other
// failure kinds. Dry-run mode keeps catalog reads live while writes register
// locally, so idempotency decisions match what a real run would do.
package engine
