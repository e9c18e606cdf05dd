package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics is the Prometheus instrumentation for the ingestion pipeline.
// A disabled instance records nothing and serves 404 from its handler;
// every Record method is safe to call either way.
type Metrics struct {
	config   MetricsConfig
	registry *prometheus.Registry
	server   *http.Server

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	entitiesProcessed *prometheus.CounterVec
	entityDuration    *prometheus.HistogramVec
	schemaChanges     *prometheus.CounterVec

	catalogRequests        *prometheus.CounterVec
	catalogRequestDuration *prometheus.HistogramVec
	catalogRetries         *prometheus.CounterVec

	discoveredEntities *prometheus.CounterVec
	errorsByKind       *prometheus.CounterVec
	policyViolations   *prometheus.CounterVec

	activeRuns      prometheus.Gauge
	pendingEntities prometheus.Gauge
}

// NewMetrics builds the metric set on a fresh registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help,
		}, labels)
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: name, Help: help, Buckets: buckets,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help,
		})
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),

		runsStarted:   counter("runs_started_total", "Total number of ingestion runs started", "trigger"),
		runsCompleted: counter("runs_completed_total", "Total number of ingestion runs completed", "status"),
		runDuration:   histogram("run_duration_seconds", "Duration of ingestion run execution in seconds", "status"),

		entitiesProcessed: counter("entities_processed_total", "Total number of entities processed", "entity_type", "operation", "status"),
		entityDuration:    histogram("entity_duration_seconds", "Duration of entity processing in seconds", "entity_type", "operation"),
		schemaChanges:     counter("schema_changes_total", "Total number of schema changes detected", "entity_type", "change"),

		catalogRequests:        counter("catalog_requests_total", "Total number of catalog API requests", "method", "code"),
		catalogRequestDuration: histogram("catalog_request_duration_seconds", "Duration of catalog API requests in seconds", "method"),
		catalogRetries:         counter("catalog_retries_total", "Total number of retried catalog API requests", "method"),

		discoveredEntities: counter("discovered_entities_total", "Total number of entities discovered from sources", "source", "entity_type"),
		errorsByKind:       counter("errors_by_kind_total", "Total number of errors by error kind", "kind"),
		policyViolations:   counter("policy_violations_total", "Total number of policy violations", "severity"),

		activeRuns:      gauge("active_runs", "Current number of active ingestion runs"),
		pendingEntities: gauge("pending_entities", "Current number of entities waiting to be processed"),
	}

	m.registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.entitiesProcessed,
		m.entityDuration,
		m.schemaChanges,
		m.catalogRequests,
		m.catalogRequestDuration,
		m.catalogRetries,
		m.discoveredEntities,
		m.errorsByKind,
		m.policyViolations,
		m.activeRuns,
		m.pendingEntities,
	)

	return m, nil
}

// RecordRunStarted counts a started run and raises the active gauge.
func (m *Metrics) RecordRunStarted(trigger string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(trigger).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted counts a finished run and lowers the active gauge.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordEntityProcessed records the outcome of processing a single entity.
func (m *Metrics) RecordEntityProcessed(entityType, operation, status string, duration time.Duration) {
	if m.entitiesProcessed == nil {
		return
	}
	m.entitiesProcessed.WithLabelValues(entityType, operation, status).Inc()
	m.entityDuration.WithLabelValues(entityType, operation).Observe(duration.Seconds())
}

// RecordSchemaChange records a detected schema change.
func (m *Metrics) RecordSchemaChange(entityType, change string) {
	if m.schemaChanges == nil {
		return
	}
	m.schemaChanges.WithLabelValues(entityType, change).Inc()
}

// RecordCatalogRequest records a catalog API request with its status code
// and duration.
func (m *Metrics) RecordCatalogRequest(method string, statusCode int, duration time.Duration) {
	if m.catalogRequests == nil {
		return
	}
	m.catalogRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	m.catalogRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCatalogRetry records a retried catalog API request.
func (m *Metrics) RecordCatalogRetry(method string) {
	if m.catalogRetries == nil {
		return
	}
	m.catalogRetries.WithLabelValues(method).Inc()
}

// RecordDiscoveredEntities records entities discovered from a source.
func (m *Metrics) RecordDiscoveredEntities(source, entityType string, count int) {
	if m.discoveredEntities == nil {
		return
	}
	m.discoveredEntities.WithLabelValues(source, entityType).Add(float64(count))
}

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// RecordPolicyViolation records a policy violation by severity.
func (m *Metrics) RecordPolicyViolation(severity string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(severity).Inc()
}

// SetActiveRuns sets the active run gauge.
func (m *Metrics) SetActiveRuns(count float64) {
	if m.activeRuns == nil {
		return
	}
	m.activeRuns.Set(count)
}

// SetPendingEntities sets the pending entity gauge.
func (m *Metrics) SetPendingEntities(count float64) {
	if m.pendingEntities == nil {
		return
	}
	m.pendingEntities.Set(count)
}

// Handler returns the scrape handler, or a 404 handler when disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer exposes the scrape endpoint on the configured
// address. A failure to serve is logged, not fatal.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

// Shutdown stops the scrape endpoint if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// Timer measures the duration of one operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
