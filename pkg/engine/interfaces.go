package engine

import (
	"context"
	"time"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/stores"
)

// Entity is a catalog entity payload produced by an EntityHandler and
// exchanged with the catalog API. Concrete types live in pkg/catalog.
type Entity interface {
	// EntityType returns the entity type, e.g. "table".
	EntityType() config.EntityType

	// Fqn returns the fully qualified name.
	Fqn() string

	// SchemaFields returns the comparable schema as a field name to
	// declared type map. Entity types without a schema return nil.
	SchemaFields() map[string]string
}

// EntityHandler builds catalog entities of one type from their
// declarations. Handlers are stateless: the registry holds a single
// instance per type and the declaration is passed to every call.
type EntityHandler interface {
	// Type returns the entity type this handler serves.
	Type() config.EntityType

	// Validate checks the declaration for required fields and
	// well-formed properties.
	Validate(entity *config.EntityConfig) error

	// Fqn computes the fully qualified name for the declaration.
	Fqn(entity *config.EntityConfig) (string, error)

	// Dependencies returns the FQNs of the parents that must exist
	// before this entity is processed.
	Dependencies(entity *config.EntityConfig) ([]string, error)

	// Build constructs the catalog payload for the declaration.
	Build(entity *config.EntityConfig) (Entity, error)

	// SupportsSchemaEvolution reports whether schema comparison applies
	// to this entity type.
	SupportsSchemaEvolution() bool
}

// HandlerRegistry resolves entity types to their handlers.
type HandlerRegistry interface {
	// Handler returns the handler for an entity type.
	Handler(entityType config.EntityType) (EntityHandler, error)

	// Types lists the registered entity types.
	Types() []config.EntityType
}

// CatalogClient is the catalog API surface the engine needs. The full
// REST client lives in pkg/catalog.
type CatalogClient interface {
	// FindByFqn fetches an entity by fully qualified name. A nil entity
	// with a nil error means the entity does not exist.
	FindByFqn(ctx context.Context, entityType config.EntityType, fqn string) (Entity, error)

	// Create creates the entity in the catalog.
	Create(ctx context.Context, entity Entity) (Entity, error)

	// Update replaces the existing entity in the catalog.
	Update(ctx context.Context, entity Entity) (Entity, error)
}

// DiscoveryRequest describes one discovery expansion against a source.
type DiscoveryRequest struct {
	// EntityType is the type of entities to discover.
	EntityType config.EntityType

	// Filter holds connector-specific discovery filters.
	Filter map[string]interface{}

	// IncludePattern is a regex; only matching entity names are kept.
	IncludePattern string

	// ExcludePattern is a regex; matching entity names are dropped.
	ExcludePattern string
}

// Source is a discovery connector. The engine brackets every discovery
// request with Connect and Disconnect.
type Source interface {
	// Name returns the configured source name.
	Name() string

	// Type returns the connector type.
	Type() config.SourceType

	// Connect establishes the connection to the backing system.
	Connect(ctx context.Context) error

	// Discover returns entity declarations found in the backing system.
	Discover(ctx context.Context, req DiscoveryRequest) ([]config.EntityConfig, error)

	// Disconnect releases the connection.
	Disconnect(ctx context.Context) error
}

// SourceRegistry resolves the source names referenced by discovery
// declarations to connectors.
type SourceRegistry interface {
	// Source returns the connector for a configured source name.
	Source(name string) (Source, error)

	// Names lists the configured source names.
	Names() []string
}

// PolicyGate evaluates governance policies over the expanded entity set
// before execution starts.
type PolicyGate interface {
	// Evaluate returns the verdict for the entity batch.
	Evaluate(ctx context.Context, entities []config.EntityConfig) (*PolicyReport, error)
}

// PolicyReport is the outcome of policy evaluation.
type PolicyReport struct {
	// Allowed is false when an enforcing policy denied the batch.
	Allowed bool `json:"allowed"`

	// Violations lists the policy denials.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// EvaluatedAt is when evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// PolicyViolation is a single policy denial.
type PolicyViolation struct {
	// Policy is the package path of the denying policy.
	Policy string `json:"policy"`

	// Message is the denial message.
	Message string `json:"message"`

	// Severity is "error" or "warning".
	Severity string `json:"severity"`

	// Entity identifies the entity that triggered the denial, if any.
	Entity string `json:"entity,omitempty"`
}

// AuditLog is the slice of the run history store the engine writes
// during a run. The SQLite store in pkg/stores is the production
// implementation. Audit failures never fail a run.
type AuditLog interface {
	// CreateRun records a run that just started.
	CreateRun(ctx context.Context, run *stores.Run) error

	// AppendOutcome records one entity outcome within a run.
	AppendOutcome(ctx context.Context, outcome *stores.EntityOutcome) error

	// CompleteRun stamps a run with its terminal status and totals.
	CompleteRun(ctx context.Context, id string, status stores.RunStatus, totals stores.RunTotals, errMsg *string) error
}
