package engine

import (
	"fmt"
	"sort"
)

// ChangeKind identifies the kind of a detected schema change.
type ChangeKind string

const (
	// ChangeColumnAdded indicates a field present in the desired schema
	// but absent from the existing one.
	ChangeColumnAdded ChangeKind = "column_added"

	// ChangeColumnRemoved indicates a field present in the existing schema
	// but absent from the desired one.
	ChangeColumnRemoved ChangeKind = "column_removed"

	// ChangeTypeChanged indicates a field whose declared type differs.
	ChangeTypeChanged ChangeKind = "type_changed"

	// ChangeNone indicates no difference.
	ChangeNone ChangeKind = "no_change"
)

// SchemaChange is a single detected difference between two schemas.
type SchemaChange struct {
	Kind     ChangeKind `json:"kind"`
	Field    string     `json:"field"`
	OldValue string     `json:"old_value,omitempty"`
	NewValue string     `json:"new_value,omitempty"`
}

// String renders the change for reports and logs.
func (c SchemaChange) String() string {
	switch c.Kind {
	case ChangeColumnAdded:
		return fmt.Sprintf("Added column '%s' (%s)", c.Field, c.NewValue)
	case ChangeColumnRemoved:
		return fmt.Sprintf("Removed column '%s' (%s)", c.Field, c.OldValue)
	case ChangeTypeChanged:
		return fmt.Sprintf("Changed column '%s' type from %s to %s", c.Field, c.OldValue, c.NewValue)
	default:
		return "No change"
	}
}

// TypePair records the old and new type of a changed field.
type TypePair struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// SchemaComparison is the result of comparing an existing schema against
// a desired one. Changes are ordered deterministically: additions first,
// then removals, then type changes, each sorted by field name.
type SchemaComparison struct {
	HasChanges    bool                `json:"has_changes"`
	Changes       []SchemaChange      `json:"changes"`
	AddedFields   []string            `json:"added_fields,omitempty"`
	RemovedFields []string            `json:"removed_fields,omitempty"`
	TypeChanges   map[string]TypePair `json:"type_changes,omitempty"`
}

// Summary returns a human-readable digest, e.g. "2 columns added, 1 type change".
func (c *SchemaComparison) Summary() string {
	if !c.HasChanges {
		return "No schema changes detected"
	}

	var parts []string
	if n := len(c.AddedFields); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s added", n, plural(n, "column", "columns")))
	}
	if n := len(c.RemovedFields); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s removed", n, plural(n, "column", "columns")))
	}
	if n := len(c.TypeChanges); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", n, plural(n, "type change", "type changes")))
	}

	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}

// CompareFields compares two field maps (name -> declared type) and returns
// the differences. Type labels are compared as exact strings; no type
// widening or case folding is applied.
func CompareFields(oldFields, newFields map[string]string) *SchemaComparison {
	var added, removed []string
	for name := range newFields {
		if _, ok := oldFields[name]; !ok {
			added = append(added, name)
		}
	}
	for name := range oldFields {
		if _, ok := newFields[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	typeChanges := make(map[string]TypePair)
	var changed []string
	for name, oldType := range oldFields {
		newType, ok := newFields[name]
		if !ok {
			continue
		}
		if oldType != newType {
			typeChanges[name] = TypePair{Old: oldType, New: newType}
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)

	var changes []SchemaChange
	for _, name := range added {
		changes = append(changes, SchemaChange{
			Kind:     ChangeColumnAdded,
			Field:    name,
			NewValue: newFields[name],
		})
	}
	for _, name := range removed {
		changes = append(changes, SchemaChange{
			Kind:     ChangeColumnRemoved,
			Field:    name,
			OldValue: oldFields[name],
		})
	}
	for _, name := range changed {
		changes = append(changes, SchemaChange{
			Kind:     ChangeTypeChanged,
			Field:    name,
			OldValue: typeChanges[name].Old,
			NewValue: typeChanges[name].New,
		})
	}

	if len(typeChanges) == 0 {
		typeChanges = nil
	}

	return &SchemaComparison{
		HasChanges:    len(changes) > 0,
		Changes:       changes,
		AddedFields:   added,
		RemovedFields: removed,
		TypeChanges:   typeChanges,
	}
}
