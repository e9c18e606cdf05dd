package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} references.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Loader loads and validates ingestion configuration from YAML or CUE files.
type Loader struct {
	validate *validator.Validate
	cue      *CueLoader
}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{
		validate: validator.New(),
		cue:      NewCueLoader(),
	}
}

// Load reads, expands, transforms, and validates the configuration at path.
// Files ending in .cue are evaluated as CUE, everything else as YAML.
func (l *Loader) Load(ctx context.Context, path string) (*IngestionConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is not a file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	expanded, err := expandEnv(string(data))
	if err != nil {
		return nil, err
	}

	var cfg *IngestionConfig
	if filepath.Ext(path) == ".cue" {
		cfg, err = l.cue.Load(path, expanded)
	} else {
		cfg, err = l.decodeYAML(path, expanded)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Transform != nil {
		cfg, err = l.applyTransform(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *Loader) decodeYAML(path, content string) (*IngestionConfig, error) {
	var cfg IngestionConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML syntax in %s: %w", path, err)
	}
	return &cfg, nil
}

// applyTransform runs the configured Starlark script over the document
// and re-decodes the result. The document round-trips through JSON so
// the script sees plain dicts regardless of the source format.
func (l *Loader) applyTransform(ctx context.Context, cfg *IngestionConfig) (*IngestionConfig, error) {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration for transform: %w", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(encoded, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode configuration for transform: %w", err)
	}

	transformer := NewTransformer(cfg.Transform.Timeout.Std())
	transformed, err := transformer.Apply(ctx, cfg.Transform.Script, raw)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(transformed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transformed configuration: %w", err)
	}

	var result IngestionConfig
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("transformed configuration is invalid: %w", err)
	}
	return &result, nil
}

// expandEnv substitutes ${VAR} references with environment values.
// A reference to an unset variable is an error.
func expandEnv(content string) (string, error) {
	var missing []string
	expanded := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})

	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("environment variable not found: %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// applyDefaults fills unset fields with their documented defaults.
func applyDefaults(cfg *IngestionConfig) {
	if cfg.Metadata.Version == "" {
		cfg.Metadata.Version = "1.0"
	}
	if cfg.Catalog.APIVersion == "" {
		cfg.Catalog.APIVersion = "v1"
	}
	if cfg.Catalog.Auth.Type == "" {
		cfg.Catalog.Auth.Type = AuthNone
	}
	if cfg.Catalog.Timeout == 0 {
		cfg.Catalog.Timeout = Duration(30 * time.Second)
	}
	if cfg.Catalog.Retry.MaxAttempts == 0 {
		cfg.Catalog.Retry.MaxAttempts = 3
	}
	if cfg.Catalog.Retry.InitialDelay == 0 {
		cfg.Catalog.Retry.InitialDelay = Duration(100 * time.Millisecond)
	}
	if cfg.Catalog.Retry.MaxDelay == 0 {
		cfg.Catalog.Retry.MaxDelay = Duration(30 * time.Second)
	}
	if cfg.Catalog.Retry.Multiplier == 0 {
		cfg.Catalog.Retry.Multiplier = 2.0
	}
	if cfg.Defaults.Idempotency == "" {
		cfg.Defaults.Idempotency = IdempotencySkip
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = "mantle_audit.db"
	}
	if cfg.Policy != nil && cfg.Policy.Mode == "" {
		cfg.Policy.Mode = "advisory"
	}
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "console"
	}
	if cfg.Telemetry.Tracing.Exporter == "" {
		cfg.Telemetry.Tracing.Exporter = "none"
	}
	if cfg.Telemetry.Tracing.SamplingRate == 0 {
		cfg.Telemetry.Tracing.SamplingRate = 1.0
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = ":9464"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "mantle"
	}
	if cfg.Transform != nil && cfg.Transform.Timeout == 0 {
		cfg.Transform.Timeout = Duration(30 * time.Second)
	}
}

// Validate checks struct tags and cross-field rules.
func (l *Loader) Validate(cfg *IngestionConfig) error {
	if err := l.validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	var problems []string

	known := make(map[EntityType]bool, len(EntityTypes))
	for _, t := range EntityTypes {
		known[t] = true
	}

	sourceNames := make(map[string]bool, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if sourceNames[s.Name] {
			problems = append(problems, fmt.Sprintf("duplicate source name: %s", s.Name))
		}
		sourceNames[s.Name] = true
	}

	for i := range cfg.Entities {
		e := &cfg.Entities[i]
		if !known[e.Type] {
			problems = append(problems, fmt.Sprintf("entity %d: unsupported type %q", i, e.Type))
		}
		if e.Name == "" && e.Discovery == nil {
			problems = append(problems, fmt.Sprintf("entity %d (%s): either 'name' or 'discovery' must be provided", i, e.Type))
		}
		if e.Discovery != nil && !sourceNames[e.Discovery.Source] {
			problems = append(problems, fmt.Sprintf("entity %s references unknown source: %s", e.Type, e.Discovery.Source))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// formatValidationError renders validator errors one per line with their
// field path.
func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lines := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Trim the root struct name from the namespace.
		path := fe.Namespace()
		if idx := strings.Index(path, "."); idx >= 0 {
			path = path[idx+1:]
		}
		lines = append(lines, fmt.Sprintf("%s: failed %q validation", path, fe.Tag()))
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(lines, "\n  - "))
}
