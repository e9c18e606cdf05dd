package policy

// Severity classifies how a violation affects the run verdict.
type Severity string

const (
	// SeverityWarning marks violations that are reported but never
	// block a run.
	SeverityWarning Severity = "warning"

	// SeverityError marks violations that deny the run in enforcing
	// mode.
	SeverityError Severity = "error"
)

// Policy is one Rego policy with its metadata.
type Policy struct {
	// Name is the unique policy name, derived from the file name for
	// loaded policies.
	Name string `json:"name"`

	// Description is taken from the leading comment block.
	Description string `json:"description,omitempty"`

	// Package is the Rego package path, filled in at compile time.
	Package string `json:"package,omitempty"`

	// Severity is the default severity for violations that do not
	// declare their own.
	Severity Severity `json:"severity"`

	// Rego is the policy source.
	Rego string `json:"-"`

	// Path is the file the policy was loaded from, empty for built-ins.
	Path string `json:"path,omitempty"`
}
