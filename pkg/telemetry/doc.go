// Package telemetry provides observability instrumentation for OpenMantle.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), and metrics (Prometheus) into a unified system for monitoring
// and debugging ingestion runs.
//
// # Architecture
//
// The telemetry system is built on three pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "mantle"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithRunID("run-123").WithEntity("table", "pg.analytics.public.orders")
//	logger.Info("Processing entity")
//	logger.WithError(err).Error("Entity processing failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into run flow and performance:
//
//	ctx, span := tel.Tracer.StartRunSpan(ctx, runID)
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    telemetry.AttrEntityFqn.String(fqn),
//	    telemetry.AttrOperation.String("create"),
//	)
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development), None (testing)
//
// # Metrics
//
// Prometheus metrics track ingestion behavior and performance:
//
//	// Record run execution
//	tel.Metrics.RecordRunStarted("manual")
//	tel.Metrics.RecordRunCompleted("succeeded", duration)
//
//	// Record entity outcomes
//	tel.Metrics.RecordEntityProcessed("table", "create", "succeeded", duration)
//
//	// Record catalog API traffic
//	tel.Metrics.RecordCatalogRequest("PUT", 200, duration)
//	tel.Metrics.RecordCatalogRetry("PUT")
//
// Metrics are exposed via HTTP at /metrics (default: :9464/metrics)
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	ic := telemetry.StartOperation(ctx, "discovery.expand",
//	    telemetry.AttrSourceName.String(source))
//	defer ic.End(err)
//
//	ic.Logger.Info("Expanding discovery entities")
//
// # Common Metrics
//
// Key metrics exposed:
//
//   - mantle_runs_started_total{trigger}
//   - mantle_runs_completed_total{status}
//   - mantle_run_duration_seconds{status}
//   - mantle_entities_processed_total{entity_type,operation,status}
//   - mantle_entity_duration_seconds{entity_type,operation}
//   - mantle_schema_changes_total{entity_type,change}
//   - mantle_catalog_requests_total{method,code}
//   - mantle_catalog_retries_total{method}
//   - mantle_discovered_entities_total{source,entity_type}
//   - mantle_errors_by_kind_total{kind}
//   - mantle_policy_violations_total{severity}
//   - mantle_active_runs
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// # Security Considerations
//
//   - Never log sensitive data (credentials, keys, tokens)
//   - Use secure connections (TLS) for trace exporters in production
//   - Limit metrics endpoint access via network policies
package telemetry
