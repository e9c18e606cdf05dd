package entities

import (
	"fmt"
	"strings"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

// validationError builds an entity validation failure carrying the
// declaration's type and name.
func validationError(entity *config.EntityConfig, format string, args ...interface{}) error {
	return engine.NewEntityValidationError(string(entity.Type), entity.Name, fmt.Sprintf(format, args...))
}

// requireName enforces the invariant shared by every entity type: a
// declaration names itself or carries a discovery block that will.
func requireName(entity *config.EntityConfig) error {
	if entity.Name == "" && entity.Discovery == nil {
		return validationError(entity, "Either 'name' or 'discovery' must be provided")
	}
	return nil
}

// requireProperty returns a required string property or a validation
// error naming the missing key.
func requireProperty(entity *config.EntityConfig, key string) (string, error) {
	value := entity.StringProperty(key)
	if value == "" {
		return "", validationError(entity, "Missing required property '%s'", key)
	}
	return value, nil
}

// joinFqn builds the dot-separated FQN from ancestor names and the
// entity's own name. An explicit fqn on the declaration wins.
func joinFqn(entity *config.EntityConfig, ancestors ...string) string {
	if entity.Fqn != "" {
		return entity.Fqn
	}
	if len(ancestors) == 0 {
		return entity.Name
	}
	parts := append(append(make([]string, 0, len(ancestors)+1), ancestors...), entity.Name)
	return strings.Join(parts, ".")
}

// listProperty coerces a property into the list-of-mappings shape that
// column, feature, and field declarations share. noun names the element
// kind in validation messages.
func listProperty(entity *config.EntityConfig, key, noun string) ([]map[string]interface{}, error) {
	raw, ok := entity.Properties[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, validationError(entity, "'%s' must be a list", key)
	}
	out := make([]map[string]interface{}, 0, len(items))
	for idx, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, validationError(entity, "%s at index %d must be a mapping", noun, idx)
		}
		out = append(out, m)
	}
	return out, nil
}

// mapProperty returns a mapping-valued property, or nil.
func mapProperty(entity *config.EntityConfig, key string) map[string]interface{} {
	m, _ := entity.Properties[key].(map[string]interface{})
	return m
}

// stringListProperty returns a list-of-strings property, dropping
// non-string elements.
func stringListProperty(entity *config.EntityConfig, key string) []string {
	items, ok := entity.Properties[key].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// intProperty returns an integer property, tolerating the numeric
// types YAML and JSON decoding produce.
func intProperty(entity *config.EntityConfig, key string, fallback int) int {
	switch n := entity.Properties[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}

// stringKey returns a string value from a declaration mapping.
func stringKey(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// stringifyKey renders a scalar value from a declaration mapping as a
// string. Hyperparameter values are declared as numbers as often as
// strings.
func stringifyKey(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// intKey returns a pointer to an integer value from a declaration
// mapping, or nil when absent.
func intKey(m map[string]interface{}, key string) *int {
	switch n := m[key].(type) {
	case int:
		v := n
		return &v
	case int64:
		v := int(n)
		return &v
	case float64:
		v := int(n)
		return &v
	}
	return nil
}
