package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}
	return path
}

func TestLoader_LoadFromFile(t *testing.T) {
	loader := NewLoader(nil)
	content := `# severity: warning
# Tables feeding dashboards must carry an owner.
package mantle.policies.ownership

import rego.v1

deny contains msg if {
	input.entity
	input.entity.type == "table"
	not input.entity.properties.owner
	msg := sprintf("Table %s has no owner", [input.entity.name])
}`
	path := writePolicy(t, t.TempDir(), "require-owner.rego", content)

	policies, err := loader.LoadFromPaths([]string{path})
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}

	p := policies[0]
	if p.Name != "require-owner" {
		t.Errorf("Expected name require-owner, got %s", p.Name)
	}
	if p.Severity != SeverityWarning {
		t.Errorf("Expected severity warning, got %s", p.Severity)
	}
	if p.Description != "Tables feeding dashboards must carry an owner." {
		t.Errorf("Unexpected description: %q", p.Description)
	}
	if p.Rego != content {
		t.Error("Rego content does not match the file")
	}
	if p.Path != path {
		t.Errorf("Expected path %s, got %s", path, p.Path)
	}
}

func TestLoader_DefaultSeverityIsError(t *testing.T) {
	loader := NewLoader(nil)
	path := writePolicy(t, t.TempDir(), "strict.rego",
		"package mantle.policies.strict\n\nimport rego.v1\n\ndeny contains msg if { false; msg := \"never\" }\n")

	policies, err := loader.LoadFromPaths([]string{path})
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policies[0].Severity != SeverityError {
		t.Errorf("Expected default severity error, got %s", policies[0].Severity)
	}
}

func TestLoader_InvalidSeverityAnnotationIgnored(t *testing.T) {
	loader := NewLoader(nil)
	path := writePolicy(t, t.TempDir(), "odd.rego",
		"# severity: catastrophic\npackage mantle.policies.odd\n\nimport rego.v1\n\ndeny contains msg if { false; msg := \"never\" }\n")

	policies, err := loader.LoadFromPaths([]string{path})
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policies[0].Severity != SeverityError {
		t.Errorf("Expected unknown annotation to keep the error default, got %s", policies[0].Severity)
	}
}

func TestLoader_LoadFromDirectory(t *testing.T) {
	loader := NewLoader(nil)
	dir := t.TempDir()

	writePolicy(t, dir, "one.rego", "package p.one\nimport rego.v1\ndeny contains msg if { false; msg := \"x\" }\n")
	writePolicy(t, dir, "two.rego", "package p.two\nimport rego.v1\ndeny contains msg if { false; msg := \"x\" }\n")
	writePolicy(t, dir, "README.md", "# not a policy")

	subDir := filepath.Join(dir, "nested")
	if err := os.Mkdir(subDir, 0o755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}
	writePolicy(t, subDir, "three.rego", "package p.three\nimport rego.v1\ndeny contains msg if { false; msg := \"x\" }\n")

	policies, err := loader.LoadFromPaths([]string{dir})
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(policies) != 3 {
		t.Errorf("Expected 3 policies including the nested one, got %d", len(policies))
	}
}

func TestLoader_LoadFromMixedPaths(t *testing.T) {
	loader := NewLoader(nil)
	root := t.TempDir()

	dir := filepath.Join(root, "policies")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	writePolicy(t, dir, "one.rego", "package p.one\nimport rego.v1\ndeny contains msg if { false; msg := \"x\" }\n")
	file := writePolicy(t, root, "two.rego", "package p.two\nimport rego.v1\ndeny contains msg if { false; msg := \"x\" }\n")

	policies, err := loader.LoadFromPaths([]string{dir, file})
	if err != nil {
		t.Fatalf("Failed to load paths: %v", err)
	}
	if len(policies) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(policies))
	}
}

func TestLoader_RejectsNonRegoFile(t *testing.T) {
	loader := NewLoader(nil)
	path := writePolicy(t, t.TempDir(), "policy.txt", "not a policy")

	_, err := loader.LoadFromPaths([]string{path})
	if err == nil {
		t.Fatal("Expected an error for a non-rego file")
	}
}

func TestLoader_MissingPath(t *testing.T) {
	loader := NewLoader(nil)

	_, err := loader.LoadFromPaths([]string{"/nonexistent/policies"})
	if err == nil {
		t.Fatal("Expected an error for a missing path")
	}
}

func TestParseHeader(t *testing.T) {
	cases := []struct {
		name         string
		source       string
		wantSeverity Severity
		wantDesc     string
	}{
		{
			name:         "single comment line",
			source:       "# Require owners on tables\npackage p\n",
			wantSeverity: SeverityError,
			wantDesc:     "Require owners on tables",
		},
		{
			name:         "multi line joined",
			source:       "# First line\n# second line\npackage p\n",
			wantSeverity: SeverityError,
			wantDesc:     "First line second line",
		},
		{
			name:         "severity line excluded from description",
			source:       "# severity: warning\n# Advisory rule\npackage p\n",
			wantSeverity: SeverityWarning,
			wantDesc:     "Advisory rule",
		},
		{
			name:         "comments after package ignored",
			source:       "package p\n# not a header\n",
			wantSeverity: SeverityError,
			wantDesc:     "",
		},
		{
			name:         "empty comment lines skipped",
			source:       "# First\n#\n# Second\npackage p\n",
			wantSeverity: SeverityError,
			wantDesc:     "First Second",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			severity, description := parseHeader(tc.source)
			if severity != tc.wantSeverity {
				t.Errorf("Expected severity %s, got %s", tc.wantSeverity, severity)
			}
			if description != tc.wantDesc {
				t.Errorf("Expected description %q, got %q", tc.wantDesc, description)
			}
		})
	}
}

func TestStopWatching_WithoutWatch(t *testing.T) {
	loader := NewLoader(nil)
	if err := loader.StopWatching(); err != nil {
		t.Errorf("Expected StopWatching without Watch to be a no-op, got %v", err)
	}
}
