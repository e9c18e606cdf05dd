package sources

import (
	"strings"
	"testing"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

func sourceConfig(name string, sourceType config.SourceType, props map[string]interface{}) config.SourceConfig {
	return config.SourceConfig{Name: name, Type: sourceType, Properties: props}
}

func assertConfigError(t *testing.T, err error, substring string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected configuration error containing %q, got nil", substring)
	}
	if kind := engine.KindOf(err); kind != engine.ErrKindConfiguration {
		t.Errorf("Expected configuration error, got kind %s", kind)
	}
	if !strings.Contains(err.Error(), substring) {
		t.Errorf("Expected error containing %q, got %q", substring, err.Error())
	}
}

func assertProperty(t *testing.T, entity config.EntityConfig, key string, want interface{}) {
	t.Helper()
	got, ok := entity.Properties[key]
	if !ok {
		t.Fatalf("Expected property %q to be set", key)
	}
	if got != want {
		t.Errorf("Expected property %q = %v, got %v", key, want, got)
	}
}
