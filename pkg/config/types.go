package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType is a catalog entity type supported by the ingestion engine.
type EntityType string

const (
	// Database entities.
	TypeDatabaseService EntityType = "database_service"
	TypeDatabase        EntityType = "database"
	TypeDatabaseSchema  EntityType = "database_schema"
	TypeTable           EntityType = "table"

	// Pipeline entities.
	TypePipelineService EntityType = "pipeline_service"
	TypePipeline        EntityType = "pipeline"
	TypeTask            EntityType = "task"

	// Messaging entities.
	TypeMessagingService EntityType = "messaging_service"
	TypeTopic            EntityType = "topic"

	// ML entities.
	TypeMLModelService EntityType = "ml_model_service"
	TypeMLModel        EntityType = "ml_model"

	// Search entities.
	TypeSearchService EntityType = "search_service"
	TypeSearchIndex   EntityType = "search_index"

	// Governance entities.
	TypeTagCategory  EntityType = "tag_category"
	TypeTag          EntityType = "tag"
	TypeUser         EntityType = "user"
	TypeTeam         EntityType = "team"
	TypeGlossary     EntityType = "glossary"
	TypeGlossaryTerm EntityType = "glossary_term"
)

// EntityTypes lists every supported entity type.
var EntityTypes = []EntityType{
	TypeDatabaseService, TypeDatabase, TypeDatabaseSchema, TypeTable,
	TypePipelineService, TypePipeline, TypeTask,
	TypeMessagingService, TypeTopic,
	TypeMLModelService, TypeMLModel,
	TypeSearchService, TypeSearchIndex,
	TypeTagCategory, TypeTag, TypeUser, TypeTeam, TypeGlossary, TypeGlossaryTerm,
}

// IdempotencyMode controls how an entity that already exists in the
// catalog is handled.
type IdempotencyMode string

const (
	// IdempotencySkip leaves existing entities untouched (default).
	IdempotencySkip IdempotencyMode = "skip"

	// IdempotencyUpdate updates existing entities when their schema changed.
	IdempotencyUpdate IdempotencyMode = "update"

	// IdempotencyFail fails the entity when it already exists.
	IdempotencyFail IdempotencyMode = "fail"
)

// AuthType is the catalog authentication scheme.
type AuthType string

const (
	AuthNone  AuthType = "none"
	AuthBasic AuthType = "basic"
	AuthJWT   AuthType = "jwt"
)

// SourceType identifies a discovery connector implementation.
type SourceType string

const (
	// SourcePostgres discovers schemas and tables from a PostgreSQL server.
	SourcePostgres SourceType = "postgres"

	// SourceLake discovers parquet-backed tables from S3-compatible object storage.
	SourceLake SourceType = "lake"

	// SourceSFTP discovers structured files from an SFTP server.
	SourceSFTP SourceType = "sftp"
)

// Duration wraps time.Duration with YAML and JSON support for strings
// like "30s" and "1m30s". Bare numbers are interpreted as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) set(raw interface{}) error {
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration value of type %T", raw)
	}
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MetadataConfig describes the ingestion job.
type MetadataConfig struct {
	// Name is the ingestion job name.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Version is the configuration version.
	Version string `yaml:"version" json:"version,omitempty"`

	// Description is an optional job description.
	Description string `yaml:"description" json:"description,omitempty"`
}

// AuthConfig configures catalog authentication. Sensitive fields accept
// ${VAR} references resolved against the environment at load time.
type AuthConfig struct {
	// Type is the authentication scheme.
	Type AuthType `yaml:"type" json:"type" validate:"omitempty,oneof=none basic jwt"`

	// Username for basic auth.
	Username string `yaml:"username" json:"username,omitempty"`

	// Password for basic auth.
	Password string `yaml:"password" json:"password,omitempty"`

	// Token is the bearer token for jwt auth.
	Token string `yaml:"token" json:"token,omitempty"`
}

// RetryConfig tunes the exponential backoff applied to catalog requests.
type RetryConfig struct {
	// MaxAttempts is the number of retries after the initial attempt.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" validate:"min=0"`

	// InitialDelay is the delay before the first retry.
	InitialDelay Duration `yaml:"initial_delay" json:"initial_delay"`

	// MaxDelay caps the delay between retries.
	MaxDelay Duration `yaml:"max_delay" json:"max_delay"`

	// Multiplier is the backoff growth factor.
	Multiplier float64 `yaml:"multiplier" json:"multiplier" validate:"omitempty,gte=1"`

	// Jitter is the random delay fraction in [0, 1).
	Jitter float64 `yaml:"jitter" json:"jitter" validate:"gte=0,lt=1"`
}

// RateLimitConfig throttles catalog requests.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate. Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" validate:"gte=0"`

	// Burst is the burst allowance when limiting is enabled.
	Burst int `yaml:"burst" json:"burst" validate:"gte=0"`
}

// CatalogConfig configures the metadata catalog connection.
type CatalogConfig struct {
	// Host is the catalog server base URL.
	Host string `yaml:"host" json:"host" validate:"required,url"`

	// APIVersion selects the catalog API version path segment.
	APIVersion string `yaml:"api_version" json:"api_version,omitempty"`

	// Auth configures authentication.
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// VerifySSL controls TLS certificate verification.
	VerifySSL bool `yaml:"verify_ssl" json:"verify_ssl"`

	// Timeout is the per-request timeout.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// Retry tunes request retries.
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// RateLimit throttles outgoing requests.
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// DiscoveryConfig configures dynamic entity discovery from a source.
type DiscoveryConfig struct {
	// Source is the name of the source to discover from.
	Source string `yaml:"source" json:"source" validate:"required"`

	// Filter holds connector-specific discovery filters.
	Filter map[string]interface{} `yaml:"filter" json:"filter,omitempty"`

	// IncludePattern is a regex; only matching entity names are kept.
	IncludePattern string `yaml:"include_pattern" json:"include_pattern,omitempty"`

	// ExcludePattern is a regex; matching entity names are dropped.
	ExcludePattern string `yaml:"exclude_pattern" json:"exclude_pattern,omitempty"`
}

// EntityConfig declares one entity to ingest, either statically by name
// or dynamically through discovery.
type EntityConfig struct {
	// Type is the entity type.
	Type EntityType `yaml:"type" json:"type" validate:"required"`

	// Name is the entity name. Required unless Discovery is set.
	Name string `yaml:"name" json:"name,omitempty"`

	// Fqn optionally pins the fully qualified name.
	Fqn string `yaml:"fqn" json:"fqn,omitempty"`

	// Properties holds type-specific fields (parent references, columns, ...).
	Properties map[string]interface{} `yaml:"properties" json:"properties,omitempty"`

	// Discovery expands this declaration into discovered entities.
	Discovery *DiscoveryConfig `yaml:"discovery" json:"discovery,omitempty"`

	// Idempotency overrides the default idempotency mode for this entity.
	Idempotency IdempotencyMode `yaml:"idempotency" json:"idempotency,omitempty" validate:"omitempty,oneof=skip update fail"`
}

// Identifier returns the unique identifier used for dependency ordering:
// the pinned FQN when present, otherwise "type:name", otherwise
// "type:discovery:source" for discovery declarations.
func (e *EntityConfig) Identifier() string {
	if e.Fqn != "" {
		return e.Fqn
	}
	if e.Name != "" {
		return fmt.Sprintf("%s:%s", e.Type, e.Name)
	}
	if e.Discovery != nil {
		return fmt.Sprintf("%s:discovery:%s", e.Type, e.Discovery.Source)
	}
	return string(e.Type)
}

// StringProperty returns a string-valued property, or "" when absent or
// not a string.
func (e *EntityConfig) StringProperty(key string) string {
	if e.Properties == nil {
		return ""
	}
	v, ok := e.Properties[key].(string)
	if !ok {
		return ""
	}
	return v
}

// SourceConfig declares a discovery source connection.
type SourceConfig struct {
	// Name is the source name referenced by entity discovery blocks.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Type selects the connector implementation.
	Type SourceType `yaml:"type" json:"type" validate:"required,oneof=postgres lake sftp"`

	// Properties holds connector-specific connection settings.
	Properties map[string]interface{} `yaml:"properties" json:"properties,omitempty"`
}

// StringProperty returns a string-valued connection property, or the
// fallback when absent.
func (s *SourceConfig) StringProperty(key, fallback string) string {
	if s.Properties == nil {
		return fallback
	}
	v, ok := s.Properties[key].(string)
	if !ok || v == "" {
		return fallback
	}
	return v
}

// DefaultsConfig holds run-wide default behaviors.
type DefaultsConfig struct {
	// Idempotency is the default idempotency mode.
	Idempotency IdempotencyMode `yaml:"idempotency" json:"idempotency" validate:"omitempty,oneof=skip update fail"`
}

// ExecutionConfig controls run behavior.
type ExecutionConfig struct {
	// DryRun previews operations without writing to the catalog.
	DryRun bool `yaml:"dry_run" json:"dry_run"`

	// ContinueOnError keeps processing after entity failures.
	// Dependency validation failures are never subject to this flag.
	ContinueOnError bool `yaml:"continue_on_error" json:"continue_on_error"`

	// FailFastOnDependency aborts the run on the first dependency
	// validation failure.
	FailFastOnDependency bool `yaml:"fail_fast_on_dependency" json:"fail_fast_on_dependency"`
}

// AuditConfig configures the run history store.
type AuditConfig struct {
	// Enabled turns audit recording on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path is the SQLite database file for run history.
	Path string `yaml:"path" json:"path,omitempty"`

	// KeepRuns caps how many runs are retained. Zero keeps everything.
	KeepRuns int `yaml:"keep_runs" json:"keep_runs,omitempty" validate:"omitempty,min=1"`

	// IncludeSuccess records successful operations.
	IncludeSuccess bool `yaml:"include_success" json:"include_success"`

	// IncludeSkipped records skipped operations.
	IncludeSkipped bool `yaml:"include_skipped" json:"include_skipped"`
}

// PolicyConfig configures Rego policy evaluation over the entity set.
type PolicyConfig struct {
	// Enabled turns policy evaluation on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Paths lists .rego policy files or directories.
	Paths []string `yaml:"paths" json:"paths,omitempty"`

	// Mode is "advisory" (log violations) or "enforcing" (abort the run).
	Mode string `yaml:"mode" json:"mode,omitempty" validate:"omitempty,oneof=advisory enforcing"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	Level string `yaml:"level" json:"level,omitempty" validate:"omitempty,oneof=trace debug info warn error"`

	// Format is "console" or "json".
	Format string `yaml:"format" json:"format,omitempty" validate:"omitempty,oneof=console json"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Exporter is "otlp", "stdout", or "none".
	Exporter string `yaml:"exporter" json:"exporter,omitempty" validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP collector endpoint.
	Endpoint string `yaml:"endpoint" json:"endpoint,omitempty"`

	// SamplingRate is the trace sampling ratio in [0, 1].
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate" validate:"gte=0,lte=1"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns the metrics endpoint on (schedule mode only).
	Enabled bool `yaml:"enabled" json:"enabled"`

	// ListenAddress is the metrics HTTP listen address.
	ListenAddress string `yaml:"listen_address" json:"listen_address,omitempty"`

	// Namespace prefixes all metric names.
	Namespace string `yaml:"namespace" json:"namespace,omitempty"`
}

// TelemetryConfig groups observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// ScheduleConfig enables recurring runs.
type ScheduleConfig struct {
	// Cron is the schedule in cron syntax, e.g. "0 * * * *".
	Cron string `yaml:"cron" json:"cron" validate:"required"`
}

// TransformConfig points at a Starlark script applied to the raw
// configuration before validation.
type TransformConfig struct {
	// Script is the path to the Starlark script. The script must define
	// transform(config) returning the modified configuration.
	Script string `yaml:"script" json:"script" validate:"required"`

	// Timeout bounds script execution.
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

// IngestionConfig is the root configuration document.
type IngestionConfig struct {
	// Metadata describes the ingestion job.
	Metadata MetadataConfig `yaml:"metadata" json:"metadata" validate:"required"`

	// Catalog configures the metadata catalog connection.
	Catalog CatalogConfig `yaml:"catalog" json:"catalog" validate:"required"`

	// Sources declares discovery source connections.
	Sources []SourceConfig `yaml:"sources" json:"sources,omitempty" validate:"dive"`

	// Defaults holds run-wide default behaviors.
	Defaults DefaultsConfig `yaml:"defaults" json:"defaults"`

	// Entities lists the entities to ingest, statically or via discovery.
	Entities []EntityConfig `yaml:"entities" json:"entities" validate:"required,min=1,dive"`

	// Audit configures run history recording.
	Audit AuditConfig `yaml:"audit" json:"audit"`

	// Execution controls run behavior.
	Execution ExecutionConfig `yaml:"execution" json:"execution"`

	// Policy configures Rego policy evaluation.
	Policy *PolicyConfig `yaml:"policy" json:"policy,omitempty"`

	// Telemetry groups observability settings.
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`

	// Schedule enables recurring runs.
	Schedule *ScheduleConfig `yaml:"schedule" json:"schedule,omitempty"`

	// Transform applies a Starlark script to the raw configuration.
	Transform *TransformConfig `yaml:"transform" json:"transform,omitempty"`
}

// SourceByName returns the named source config, or nil.
func (c *IngestionConfig) SourceByName(name string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i]
		}
	}
	return nil
}
