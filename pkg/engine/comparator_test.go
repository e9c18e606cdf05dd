package engine

import (
	"reflect"
	"testing"
)

func TestCompareFields_NoChanges(t *testing.T) {
	fields := map[string]string{"id": "INT", "name": "STRING"}

	cmp := CompareFields(fields, map[string]string{"id": "INT", "name": "STRING"})

	if cmp.HasChanges {
		t.Errorf("Expected no changes, got %v", cmp.Changes)
	}
	if len(cmp.AddedFields) != 0 || len(cmp.RemovedFields) != 0 || len(cmp.TypeChanges) != 0 {
		t.Errorf("Expected empty change sets, got %v / %v / %v",
			cmp.AddedFields, cmp.RemovedFields, cmp.TypeChanges)
	}
	if cmp.Summary() != "No schema changes detected" {
		t.Errorf("Unexpected summary: %q", cmp.Summary())
	}
}

func TestCompareFields_AddedAndRemoved(t *testing.T) {
	old := map[string]string{"id": "INT", "legacy": "STRING"}
	desired := map[string]string{"id": "INT", "name": "STRING", "amount": "DOUBLE"}

	cmp := CompareFields(old, desired)

	if !cmp.HasChanges {
		t.Fatal("Expected changes")
	}
	if !reflect.DeepEqual(cmp.AddedFields, []string{"amount", "name"}) {
		t.Errorf("Expected sorted additions, got %v", cmp.AddedFields)
	}
	if !reflect.DeepEqual(cmp.RemovedFields, []string{"legacy"}) {
		t.Errorf("Expected legacy removed, got %v", cmp.RemovedFields)
	}
	if cmp.TypeChanges != nil {
		t.Errorf("Expected no type changes, got %v", cmp.TypeChanges)
	}
}

func TestCompareFields_TypeChanged(t *testing.T) {
	cmp := CompareFields(
		map[string]string{"amount": "INT"},
		map[string]string{"amount": "DOUBLE"},
	)

	if !cmp.HasChanges {
		t.Fatal("Expected changes")
	}
	pair, ok := cmp.TypeChanges["amount"]
	if !ok {
		t.Fatalf("Expected type change for amount, got %v", cmp.TypeChanges)
	}
	if pair.Old != "INT" || pair.New != "DOUBLE" {
		t.Errorf("Expected INT -> DOUBLE, got %s -> %s", pair.Old, pair.New)
	}
}

func TestCompareFields_ChangeOrdering(t *testing.T) {
	// Additions first, then removals, then type changes, each sorted.
	old := map[string]string{"zulu": "INT", "alpha": "STRING", "kept": "INT"}
	desired := map[string]string{"beta": "STRING", "adam": "INT", "kept": "BIGINT"}

	cmp := CompareFields(old, desired)

	want := []SchemaChange{
		{Kind: ChangeColumnAdded, Field: "adam", NewValue: "INT"},
		{Kind: ChangeColumnAdded, Field: "beta", NewValue: "STRING"},
		{Kind: ChangeColumnRemoved, Field: "alpha", OldValue: "STRING"},
		{Kind: ChangeColumnRemoved, Field: "zulu", OldValue: "INT"},
		{Kind: ChangeTypeChanged, Field: "kept", OldValue: "INT", NewValue: "BIGINT"},
	}
	if !reflect.DeepEqual(cmp.Changes, want) {
		t.Errorf("Unexpected change list:\n got %v\nwant %v", cmp.Changes, want)
	}
}

func TestCompareFields_ExactTypeStrings(t *testing.T) {
	// Labels are compared byte for byte.
	cmp := CompareFields(
		map[string]string{"id": "int"},
		map[string]string{"id": "INT"},
	)
	if !cmp.HasChanges {
		t.Error("Expected case difference to register as a type change")
	}
}

func TestSchemaComparison_Summary(t *testing.T) {
	tests := []struct {
		name string
		old  map[string]string
		new  map[string]string
		want string
	}{
		{
			name: "single addition",
			old:  map[string]string{"id": "INT"},
			new:  map[string]string{"id": "INT", "name": "STRING"},
			want: "1 column added",
		},
		{
			name: "plural additions and removal",
			old:  map[string]string{"id": "INT", "legacy": "STRING"},
			new:  map[string]string{"id": "INT", "name": "STRING", "amount": "DOUBLE"},
			want: "2 columns added, 1 column removed",
		},
		{
			name: "single type change",
			old:  map[string]string{"amount": "INT"},
			new:  map[string]string{"amount": "DOUBLE"},
			want: "1 type change",
		},
		{
			name: "everything",
			old:  map[string]string{"a": "INT", "b": "INT"},
			new:  map[string]string{"b": "STRING", "c": "INT"},
			want: "1 column added, 1 column removed, 1 type change",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareFields(tt.old, tt.new).Summary()
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSchemaChange_String(t *testing.T) {
	added := SchemaChange{Kind: ChangeColumnAdded, Field: "name", NewValue: "STRING"}
	if added.String() != "Added column 'name' (STRING)" {
		t.Errorf("Unexpected format: %q", added.String())
	}

	removed := SchemaChange{Kind: ChangeColumnRemoved, Field: "legacy", OldValue: "STRING"}
	if removed.String() != "Removed column 'legacy' (STRING)" {
		t.Errorf("Unexpected format: %q", removed.String())
	}

	changed := SchemaChange{Kind: ChangeTypeChanged, Field: "amount", OldValue: "INT", NewValue: "DOUBLE"}
	if changed.String() != "Changed column 'amount' type from INT to DOUBLE" {
		t.Errorf("Unexpected format: %q", changed.String())
	}
}
