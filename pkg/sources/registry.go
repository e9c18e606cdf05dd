package sources

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
	"github.com/openmantle/openmantle/pkg/telemetry"
)

// Registry maps configured source names to connectors. It implements
// engine.SourceRegistry.
type Registry struct {
	sources map[string]engine.Source
}

// NewRegistry builds one connector per source declaration. Connector
// construction validates connection properties, so a bad declaration
// fails the run before anything touches the catalog.
func NewRegistry(cfgs []config.SourceConfig, tel *telemetry.Telemetry) (*Registry, error) {
	if tel == nil {
		tel = telemetry.Nop()
	}
	registry := &Registry{sources: make(map[string]engine.Source, len(cfgs))}
	for _, cfg := range cfgs {
		if _, dup := registry.sources[cfg.Name]; dup {
			return nil, engine.NewConfigurationError(
				fmt.Sprintf("duplicate source name: %s", cfg.Name), nil)
		}
		source, err := newSource(cfg, tel)
		if err != nil {
			return nil, err
		}
		registry.sources[cfg.Name] = source
	}
	return registry, nil
}

// newSource constructs the connector for a source declaration.
func newSource(cfg config.SourceConfig, tel *telemetry.Telemetry) (engine.Source, error) {
	switch cfg.Type {
	case config.SourcePostgres:
		return NewPostgresSource(cfg, tel)
	case config.SourceLake:
		return NewLakeSource(cfg, tel)
	case config.SourceSFTP:
		return NewSFTPSource(cfg, tel)
	default:
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("no connector registered for source type: %s", cfg.Type), nil)
	}
}

// Add registers a connector under its name, replacing any existing one.
func (r *Registry) Add(source engine.Source) {
	r.sources[source.Name()] = source
}

// Source returns the connector for a configured source name.
func (r *Registry) Source(name string) (engine.Source, error) {
	source, ok := r.sources[name]
	if !ok {
		available := strings.Join(r.Names(), ", ")
		if available == "" {
			available = "none"
		}
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("unknown source '%s' (available: %s)", name, available), nil)
	}
	return source, nil
}

// Names lists the configured source names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
