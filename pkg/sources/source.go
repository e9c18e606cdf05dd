package sources

import (
	"errors"
	"fmt"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

// errNotConnected is returned by Discover when Connect has not run.
var errNotConnected = errors.New("not connected: call Connect first")

// requireSourceProperty returns a required string connection property or
// a configuration error naming the missing key.
func requireSourceProperty(cfg config.SourceConfig, key string) (string, error) {
	value := cfg.StringProperty(key, "")
	if value == "" {
		return "", engine.NewConfigurationError(
			fmt.Sprintf("source '%s' requires property '%s'", cfg.Name, key), nil)
	}
	return value, nil
}

// intSourceProperty returns an integer connection property, tolerating
// the numeric types YAML and JSON decoding produce.
func intSourceProperty(cfg config.SourceConfig, key string, fallback int) int {
	switch n := cfg.Properties[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}

// boolSourceProperty returns a boolean connection property.
func boolSourceProperty(cfg config.SourceConfig, key string, fallback bool) bool {
	if b, ok := cfg.Properties[key].(bool); ok {
		return b
	}
	return fallback
}

// unsupportedType flags a discovery request for an entity type the
// connector cannot produce. The engine logs it and skips the block.
func unsupportedType(name string, entityType config.EntityType) error {
	return fmt.Errorf("source '%s' does not support discovery of %s entities", name, entityType)
}

// column builds one column mapping in the shape table declarations
// carry. The slice type matters: handlers coerce columns from
// []interface{}, matching what YAML decoding produces for static
// declarations.
func column(name, dataType string) map[string]interface{} {
	return map[string]interface{}{
		"name":     name,
		"dataType": dataType,
	}
}
