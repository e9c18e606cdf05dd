package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/stores"
)

// fakeEntity is a minimal catalog payload for tests.
type fakeEntity struct {
	entityType config.EntityType
	fqn        string
	fields     map[string]string
}

func (f *fakeEntity) EntityType() config.EntityType   { return f.entityType }
func (f *fakeEntity) Fqn() string                     { return f.fqn }
func (f *fakeEntity) SchemaFields() map[string]string { return f.fields }

// fakeClient is an in-memory CatalogClient that records writes and
// lookups. Writes land in the existing map so later lookups see them.
type fakeClient struct {
	existing map[string]Entity
	failOn   map[string]error
	findErr  error

	created []string
	updated []string
	lookups []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		existing: make(map[string]Entity),
		failOn:   make(map[string]error),
	}
}

func (c *fakeClient) FindByFqn(_ context.Context, _ config.EntityType, fqn string) (Entity, error) {
	c.lookups = append(c.lookups, fqn)
	if c.findErr != nil {
		return nil, c.findErr
	}
	return c.existing[fqn], nil
}

func (c *fakeClient) Create(_ context.Context, entity Entity) (Entity, error) {
	if err := c.failOn[entity.Fqn()]; err != nil {
		return nil, err
	}
	c.created = append(c.created, entity.Fqn())
	c.existing[entity.Fqn()] = entity
	return entity, nil
}

func (c *fakeClient) Update(_ context.Context, entity Entity) (Entity, error) {
	if err := c.failOn[entity.Fqn()]; err != nil {
		return nil, err
	}
	c.updated = append(c.updated, entity.Fqn())
	c.existing[entity.Fqn()] = entity
	return entity, nil
}

// hierarchyHandler implements the database family FQN and dependency
// rules for tests: ancestor references are bare names joined with dots.
type hierarchyHandler struct {
	entityType  config.EntityType
	evolution   bool
	fields      map[string]string
	validateErr error
	buildErr    error
}

func (h *hierarchyHandler) Type() config.EntityType { return h.entityType }

func (h *hierarchyHandler) Validate(*config.EntityConfig) error { return h.validateErr }

func (h *hierarchyHandler) Fqn(e *config.EntityConfig) (string, error) {
	return strings.Join(append(h.ancestors(e), e.Name), "."), nil
}

func (h *hierarchyHandler) Dependencies(e *config.EntityConfig) ([]string, error) {
	parts := h.ancestors(e)
	if len(parts) == 0 {
		return nil, nil
	}
	return []string{strings.Join(parts, ".")}, nil
}

func (h *hierarchyHandler) Build(e *config.EntityConfig) (Entity, error) {
	if h.buildErr != nil {
		return nil, h.buildErr
	}
	fqn, _ := h.Fqn(e)
	return &fakeEntity{entityType: h.entityType, fqn: fqn, fields: h.fields}, nil
}

func (h *hierarchyHandler) SupportsSchemaEvolution() bool { return h.evolution }

func (h *hierarchyHandler) ancestors(e *config.EntityConfig) []string {
	var parts []string
	for _, key := range []string{"service", "database", "database_schema"} {
		if v := e.StringProperty(key); v != "" {
			parts = append(parts, v)
		}
	}
	return parts
}

// fakeRegistry is an explicit HandlerRegistry for tests.
type fakeRegistry struct {
	handlers map[config.EntityType]EntityHandler
}

func newHierarchyRegistry() *fakeRegistry {
	r := &fakeRegistry{handlers: make(map[config.EntityType]EntityHandler)}
	for _, entityType := range []config.EntityType{
		config.TypeDatabaseService,
		config.TypeDatabase,
		config.TypeDatabaseSchema,
		config.TypeTable,
	} {
		r.handlers[entityType] = &hierarchyHandler{
			entityType: entityType,
			evolution:  entityType == config.TypeTable,
		}
	}
	return r
}

func (r *fakeRegistry) Handler(entityType config.EntityType) (EntityHandler, error) {
	handler, ok := r.handlers[entityType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for entity type: %s", entityType)
	}
	return handler, nil
}

func (r *fakeRegistry) Types() []config.EntityType {
	types := make([]config.EntityType, 0, len(r.handlers))
	for entityType := range r.handlers {
		types = append(types, entityType)
	}
	return types
}

// fakeSource is a discovery connector returning canned declarations.
type fakeSource struct {
	name        string
	sourceType  config.SourceType
	entities    []config.EntityConfig
	connectErr  error
	discoverErr error

	connected    bool
	disconnected bool
}

func (s *fakeSource) Name() string            { return s.name }
func (s *fakeSource) Type() config.SourceType { return s.sourceType }

func (s *fakeSource) Connect(context.Context) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *fakeSource) Discover(_ context.Context, _ DiscoveryRequest) ([]config.EntityConfig, error) {
	if s.discoverErr != nil {
		return nil, s.discoverErr
	}
	return s.entities, nil
}

func (s *fakeSource) Disconnect(context.Context) error {
	s.disconnected = true
	return nil
}

type fakeSourceRegistry struct {
	sources map[string]Source
}

func (r *fakeSourceRegistry) Source(name string) (Source, error) {
	source, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", name)
	}
	return source, nil
}

func (r *fakeSourceRegistry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	return names
}

// fakeGate returns a canned policy report and records the batches it saw.
type fakeGate struct {
	report  *PolicyReport
	err     error
	batches [][]config.EntityConfig
}

func (g *fakeGate) Evaluate(_ context.Context, entities []config.EntityConfig) (*PolicyReport, error) {
	g.batches = append(g.batches, entities)
	if g.err != nil {
		return nil, g.err
	}
	return g.report, nil
}

// auditCompletion captures one CompleteRun call.
type auditCompletion struct {
	id     string
	status stores.RunStatus
	totals stores.RunTotals
	errMsg *string
}

// fakeAudit records run history calls in memory.
type fakeAudit struct {
	createErr error

	runs        []*stores.Run
	outcomes    []*stores.EntityOutcome
	completions []auditCompletion
}

func (a *fakeAudit) CreateRun(_ context.Context, run *stores.Run) error {
	if a.createErr != nil {
		return a.createErr
	}
	a.runs = append(a.runs, run)
	return nil
}

func (a *fakeAudit) AppendOutcome(_ context.Context, outcome *stores.EntityOutcome) error {
	a.outcomes = append(a.outcomes, outcome)
	return nil
}

func (a *fakeAudit) CompleteRun(_ context.Context, id string, status stores.RunStatus, totals stores.RunTotals, errMsg *string) error {
	a.completions = append(a.completions, auditCompletion{id: id, status: status, totals: totals, errMsg: errMsg})
	return nil
}

func testConfig(entities ...config.EntityConfig) *config.IngestionConfig {
	return &config.IngestionConfig{
		Metadata:  config.MetadataConfig{Name: "test-run"},
		Catalog:   config.CatalogConfig{Host: "http://localhost:8585"},
		Defaults:  config.DefaultsConfig{Idempotency: config.IdempotencySkip},
		Execution: config.ExecutionConfig{ContinueOnError: true},
		Entities:  entities,
	}
}

func serviceEntity(name string) config.EntityConfig {
	return config.EntityConfig{Type: config.TypeDatabaseService, Name: name}
}

func databaseEntity(name, service string) config.EntityConfig {
	return config.EntityConfig{
		Type:       config.TypeDatabase,
		Name:       name,
		Properties: map[string]interface{}{"service": service},
	}
}

func schemaEntity(name, service, database string) config.EntityConfig {
	return config.EntityConfig{
		Type:       config.TypeDatabaseSchema,
		Name:       name,
		Properties: map[string]interface{}{"service": service, "database": database},
	}
}

func tableEntity(name, service, database, schema string) config.EntityConfig {
	return config.EntityConfig{
		Type: config.TypeTable,
		Name: name,
		Properties: map[string]interface{}{
			"service":         service,
			"database":        database,
			"database_schema": schema,
		},
	}
}
