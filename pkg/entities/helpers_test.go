package entities

import (
	"strings"
	"testing"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

func newEntity(entityType config.EntityType, name string, props map[string]interface{}) *config.EntityConfig {
	return &config.EntityConfig{Type: entityType, Name: name, Properties: props}
}

func assertValidationError(t *testing.T, err error, substring string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected validation error containing %q, got nil", substring)
	}
	if kind := engine.KindOf(err); kind != engine.ErrKindEntityValidation {
		t.Errorf("Expected entity_validation error, got kind %s", kind)
	}
	if !strings.Contains(err.Error(), substring) {
		t.Errorf("Expected error containing %q, got %q", substring, err.Error())
	}
}
