package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

func testEntity(entityType config.EntityType, name string, props map[string]interface{}) config.EntityConfig {
	return config.EntityConfig{
		Type:       entityType,
		Name:       name,
		Properties: props,
	}
}

func cleanBatch() []config.EntityConfig {
	return []config.EntityConfig{
		testEntity(config.TypeDatabaseService, "warehouse", map[string]interface{}{
			"service_type": "Postgres",
			"description":  "Primary warehouse",
		}),
		testEntity(config.TypeTable, "orders", map[string]interface{}{
			"service":         "warehouse",
			"database":        "appdb",
			"database_schema": "public",
			"columns":         []interface{}{map[string]interface{}{"name": "id", "dataType": "BIGINT"}},
		}),
	}
}

func TestNewEngine_LoadsBuiltins(t *testing.T) {
	gate, err := NewEngine(config.PolicyConfig{Enabled: true}, nil)
	if err != nil {
		t.Fatalf("Expected engine to build, got %v", err)
	}

	policies := gate.Policies()
	want := []string{"batch-size", "entity-naming", "service-description", "table-columns"}
	if len(policies) != len(want) {
		t.Fatalf("Expected %d built-in policies, got %d", len(want), len(policies))
	}
	for idx, name := range want {
		if policies[idx].Name != name {
			t.Errorf("Expected policy %s at %d, got %s", name, idx, policies[idx].Name)
		}
	}
	if gate.Mode() != "advisory" {
		t.Errorf("Expected default mode advisory, got %s", gate.Mode())
	}
}

func TestEngine_Evaluate_CleanBatch(t *testing.T) {
	gate, err := NewEngine(config.PolicyConfig{Enabled: true, Mode: "enforcing"}, nil)
	if err != nil {
		t.Fatalf("Expected engine to build, got %v", err)
	}

	report, err := gate.Evaluate(context.Background(), cleanBatch())
	if err != nil {
		t.Fatalf("Expected evaluation to succeed, got %v", err)
	}
	if !report.Allowed {
		t.Error("Expected a clean batch to be allowed")
	}
	if len(report.Violations) != 0 {
		t.Errorf("Expected no violations, got %v", report.Violations)
	}
}

func TestEngine_Evaluate_DottedNameDeniedWhenEnforcing(t *testing.T) {
	gate, err := NewEngine(config.PolicyConfig{Enabled: true, Mode: "enforcing"}, nil)
	if err != nil {
		t.Fatalf("Expected engine to build, got %v", err)
	}

	entities := []config.EntityConfig{
		testEntity(config.TypeTable, "bad.name", map[string]interface{}{
			"columns": []interface{}{map[string]interface{}{"name": "id", "dataType": "INT"}},
		}),
	}

	report, err := gate.Evaluate(context.Background(), entities)
	if err != nil {
		t.Fatalf("Expected evaluation to succeed, got %v", err)
	}
	if report.Allowed {
		t.Error("Expected enforcing mode to deny a dotted name")
	}
	if len(report.Violations) != 1 {
		t.Fatalf("Expected 1 violation, got %d: %v", len(report.Violations), report.Violations)
	}

	v := report.Violations[0]
	if v.Policy != "entity-naming" {
		t.Errorf("Expected entity-naming policy, got %s", v.Policy)
	}
	if v.Severity != "error" {
		t.Errorf("Expected error severity, got %s", v.Severity)
	}
	if v.Entity != "table:bad.name" {
		t.Errorf("Expected entity table:bad.name, got %s", v.Entity)
	}
	if !strings.Contains(v.Message, "must not contain dots") {
		t.Errorf("Unexpected message: %s", v.Message)
	}
}

func TestEngine_Evaluate_PinnedFqnExemptsDottedName(t *testing.T) {
	gate, err := NewEngine(config.PolicyConfig{Enabled: true, Mode: "enforcing"}, nil)
	if err != nil {
		t.Fatalf("Expected engine to build, got %v", err)
	}

	entities := []config.EntityConfig{
		{
			Type: config.TypeTable,
			Name: "legacy.orders",
			Fqn:  "warehouse.appdb.public.legacy_orders",
			Properties: map[string]interface{}{
				"columns": []interface{}{map[string]interface{}{"name": "id", "dataType": "INT"}},
			},
		},
	}

	report, err := gate.Evaluate(context.Background(), entities)
	if err != nil {
		t.Fatalf("Expected evaluation to succeed, got %v", err)
	}
	if !report.Allowed {
		t.Errorf("Expected pinned FQN to exempt the dotted name, got %v", report.Violations)
	}
}

func TestEngine_Evaluate_AdvisoryAlwaysAllows(t *testing.T) {
	gate, err := NewEngine(config.PolicyConfig{Enabled: true, Mode: "advisory"}, nil)
	if err != nil {
		t.Fatalf("Expected engine to build, got %v", err)
	}

	entities := []config.EntityConfig{
		testEntity(config.TypeTable, "bad.name", map[string]interface{}{
			"columns": []interface{}{map[string]interface{}{"name": "id", "dataType": "INT"}},
		}),
	}

	report, err := gate.Evaluate(context.Background(), entities)
	if err != nil {
		t.Fatalf("Expected evaluation to succeed, got %v", err)
	}
	if !report.Allowed {
		t.Error("Expected advisory mode to allow despite error violations")
	}
	if len(report.Violations) != 1 {
		t.Errorf("Expected the violation to still be reported, got %d", len(report.Violations))
	}
}

func TestEngine_Evaluate_AdvisoryWarnings(t *testing.T) {
	gate, err := NewEngine(config.PolicyConfig{Enabled: true, Mode: "enforcing"}, nil)
	if err != nil {
		t.Fatalf("Expected engine to build, got %v", err)
	}

	entities := []config.EntityConfig{
		testEntity(config.TypeDatabaseService, "warehouse", map[string]interface{}{
			"service_type": "Postgres",
		}),
		testEntity(config.TypeTable, "orders", map[string]interface{}{
			"service": "warehouse",
		}),
	}

	report, err := gate.Evaluate(context.Background(), entities)
	if err != nil {
		t.Fatalf("Expected evaluation to succeed, got %v", err)
	}
	if !report.Allowed {
		t.Error("Expected warnings alone to keep the batch allowed in enforcing mode")
	}

	byPolicy := make(map[string]engine.PolicyViolation)
	for _, v := range report.Violations {
		byPolicy[v.Policy] = v
	}
	if v, ok := byPolicy["service-description"]; !ok {
		t.Error("Expected a service-description warning")
	} else if v.Severity != "warning" {
		t.Errorf("Expected warning severity, got %s", v.Severity)
	}
	if v, ok := byPolicy["table-columns"]; !ok {
		t.Error("Expected a table-columns warning")
	} else if v.Entity != "table:orders" {
		t.Errorf("Expected entity table:orders, got %s", v.Entity)
	}
}

func TestEngine_Evaluate_CustomPolicyStringDenial(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "require-owner.rego", `# severity: warning
package mantle.policies.ownership

import rego.v1

deny contains msg if {
	input.entity
	input.entity.type == "table"
	not input.entity.properties.owner
	msg := sprintf("Table %s has no owner", [input.entity.name])
}`)

	gate, err := NewEngine(config.PolicyConfig{Enabled: true, Paths: []string{dir}}, nil)
	if err != nil {
		t.Fatalf("Expected engine to build, got %v", err)
	}

	entities := []config.EntityConfig{
		testEntity(config.TypeTable, "orders", map[string]interface{}{
			"columns": []interface{}{map[string]interface{}{"name": "id", "dataType": "INT"}},
		}),
	}

	report, err := gate.Evaluate(context.Background(), entities)
	if err != nil {
		t.Fatalf("Expected evaluation to succeed, got %v", err)
	}

	var found *engine.PolicyViolation
	for i := range report.Violations {
		if report.Violations[i].Policy == "require-owner" {
			found = &report.Violations[i]
		}
	}
	if found == nil {
		t.Fatalf("Expected a require-owner violation, got %v", report.Violations)
	}
	if found.Message != "Table orders has no owner" {
		t.Errorf("Unexpected message: %s", found.Message)
	}
	if found.Severity != "warning" {
		t.Errorf("Expected the annotated severity, got %s", found.Severity)
	}
	if found.Entity != "table:orders" {
		t.Errorf("Expected fallback entity attribution, got %s", found.Entity)
	}
}

func TestEngine_Evaluate_BatchPolicy(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "small-runs.rego", `# severity: warning
package mantle.policies.runsize

import rego.v1

deny contains msg if {
	input.entities
	count(input.entities) > 2
	msg := sprintf("Run declares %d entities", [count(input.entities)])
}`)

	gate, err := NewEngine(config.PolicyConfig{Enabled: true, Paths: []string{dir}}, nil)
	if err != nil {
		t.Fatalf("Expected engine to build, got %v", err)
	}

	entities := append(cleanBatch(),
		testEntity(config.TypeDatabase, "appdb", map[string]interface{}{
			"service":     "warehouse",
			"description": "Application database",
		}))

	report, err := gate.Evaluate(context.Background(), entities)
	if err != nil {
		t.Fatalf("Expected evaluation to succeed, got %v", err)
	}

	var found *engine.PolicyViolation
	for i := range report.Violations {
		if report.Violations[i].Policy == "small-runs" {
			found = &report.Violations[i]
		}
	}
	if found == nil {
		t.Fatalf("Expected a small-runs violation, got %v", report.Violations)
	}
	if found.Message != "Run declares 3 entities" {
		t.Errorf("Unexpected message: %s", found.Message)
	}
	if found.Entity != "" {
		t.Errorf("Expected no entity attribution for a batch violation, got %s", found.Entity)
	}
}

func TestEngine_Evaluate_ObjectDenialOverrides(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "tagged.rego", `package mantle.policies.tagged

import rego.v1

deny contains violation if {
	input.entity
	input.entity.type == "database"
	violation := {
		"message": "flagged",
		"severity": "warning",
		"entity": "custom:attribution",
	}
}`)

	gate, err := NewEngine(config.PolicyConfig{Enabled: true, Mode: "enforcing", Paths: []string{dir}}, nil)
	if err != nil {
		t.Fatalf("Expected engine to build, got %v", err)
	}

	entities := []config.EntityConfig{
		testEntity(config.TypeDatabase, "appdb", map[string]interface{}{"service": "warehouse"}),
	}

	report, err := gate.Evaluate(context.Background(), entities)
	if err != nil {
		t.Fatalf("Expected evaluation to succeed, got %v", err)
	}
	if !report.Allowed {
		t.Error("Expected the overridden warning severity to keep the batch allowed")
	}

	var found *engine.PolicyViolation
	for i := range report.Violations {
		if report.Violations[i].Policy == "tagged" {
			found = &report.Violations[i]
		}
	}
	if found == nil {
		t.Fatalf("Expected a tagged violation, got %v", report.Violations)
	}
	if found.Severity != "warning" {
		t.Errorf("Expected the object severity to win over the error default, got %s", found.Severity)
	}
	if found.Entity != "custom:attribution" {
		t.Errorf("Expected the object entity to win, got %s", found.Entity)
	}
}

func TestEngine_CustomPolicyReplacesBuiltin(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "service-description.rego", `package mantle.policies.documentation

import rego.v1

deny contains msg if {
	false
	msg := "never"
}`)

	gate, err := NewEngine(config.PolicyConfig{Enabled: true, Paths: []string{dir}}, nil)
	if err != nil {
		t.Fatalf("Expected engine to build, got %v", err)
	}
	if got := len(gate.Policies()); got != 4 {
		t.Errorf("Expected the override to keep 4 policies, got %d", got)
	}

	entities := []config.EntityConfig{
		testEntity(config.TypeDatabaseService, "warehouse", map[string]interface{}{
			"service_type": "Postgres",
		}),
	}
	report, err := gate.Evaluate(context.Background(), entities)
	if err != nil {
		t.Fatalf("Expected evaluation to succeed, got %v", err)
	}
	for _, v := range report.Violations {
		if v.Policy == "service-description" {
			t.Errorf("Expected the built-in to be replaced, got violation %v", v)
		}
	}
}

func TestNewEngine_ParseErrorFails(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "broken.rego", "this is not rego at all {")

	_, err := NewEngine(config.PolicyConfig{Enabled: true, Paths: []string{dir}}, nil)
	if err == nil {
		t.Fatal("Expected a parse failure")
	}
	if engine.KindOf(err) != engine.ErrKindConfiguration {
		t.Errorf("Expected a configuration error, got %v", err)
	}
}

func TestNewEngine_MissingPathFails(t *testing.T) {
	_, err := NewEngine(config.PolicyConfig{Enabled: true, Paths: []string{"/nonexistent/policies"}}, nil)
	if err == nil {
		t.Fatal("Expected a load failure")
	}
	if engine.KindOf(err) != engine.ErrKindConfiguration {
		t.Errorf("Expected a configuration error, got %v", err)
	}
}

func TestEngine_Reload(t *testing.T) {
	gate, err := NewEngine(config.PolicyConfig{Enabled: true}, nil)
	if err != nil {
		t.Fatalf("Expected engine to build, got %v", err)
	}

	custom := Policy{
		Name:     "no-temp-tables",
		Severity: SeverityError,
		Rego: `package mantle.policies.temptables

import rego.v1

deny contains msg if {
	input.entity
	input.entity.type == "table"
	startswith(input.entity.name, "tmp_")
	msg := sprintf("Table %s looks temporary", [input.entity.name])
}`,
	}

	if err := gate.Reload([]Policy{custom}); err != nil {
		t.Fatalf("Expected reload to succeed, got %v", err)
	}
	if got := len(gate.Policies()); got != 5 {
		t.Errorf("Expected 5 policies after reload, got %d", got)
	}

	entities := []config.EntityConfig{
		testEntity(config.TypeTable, "tmp_orders", map[string]interface{}{
			"columns": []interface{}{map[string]interface{}{"name": "id", "dataType": "INT"}},
		}),
	}
	report, err := gate.Evaluate(context.Background(), entities)
	if err != nil {
		t.Fatalf("Expected evaluation to succeed, got %v", err)
	}

	found := false
	for _, v := range report.Violations {
		if v.Policy == "no-temp-tables" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected the reloaded policy to fire, got %v", report.Violations)
	}
}

func TestEngine_ReloadKeepsOldSetOnFailure(t *testing.T) {
	gate, err := NewEngine(config.PolicyConfig{Enabled: true}, nil)
	if err != nil {
		t.Fatalf("Expected engine to build, got %v", err)
	}

	broken := Policy{Name: "broken", Severity: SeverityError, Rego: "not rego {"}
	if err := gate.Reload([]Policy{broken}); err == nil {
		t.Fatal("Expected reload of a broken policy to fail")
	}
	if got := len(gate.Policies()); got != 4 {
		t.Errorf("Expected the previous set to stay active, got %d policies", got)
	}
}
