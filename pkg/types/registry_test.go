package types_test

import (
	"testing"

	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		typeName string
		wantOK   bool
	}{
		{"string", true},
		{"int", true},
		{"uuid", true},
		{"currency_code", true},
		{"timestamp", true},
		{"Money", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			_, ok := types.Lookup(tt.typeName)
			if ok != tt.wantOK {
				t.Errorf("Lookup(%q) ok = %v, want %v", tt.typeName, ok, tt.wantOK)
			}
		})
	}
}

func TestLookupReturnsFreshCopy(t *testing.T) {
	a := types.MustLookup("uuid")
	a.Patterns[0] = "changed"

	b := types.MustLookup("uuid")
	if b.Patterns[0] == "changed" {
		t.Errorf("Lookup shares pattern slice with the registry")
	}
}

func TestRegisteredKindsAccept(t *testing.T) {
	tests := []struct {
		kind  string
		input value.Value
		want  bool
	}{
		{"int", value.Int(3), true},
		{"int", value.Number(3.5), false},
		{"number", value.Number(3.5), true},
		{"uuid", value.String("7d444840-9dc0-11d1-b245-5ffdce74fad2"), true},
		{"uuid", value.String("not-a-uuid"), false},
		{"date", value.String("2026-10-19"), true},
		{"date", value.String("19/10/2026"), false},
		{"timestamp", value.String("2026-10-19T10:00:00Z"), true},
		{"email", value.String("ada@example.com"), true},
		{"email", value.String("ada"), false},
		{"currency_code", value.String("USD"), true},
		{"currency_code", value.String("usd"), false},
		{"decimal", value.String("-12.50"), true},
		{"bool", value.String("true"), false},
		{"null", value.Null(), true},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"_"+tt.input.String(), func(t *testing.T) {
			got := types.MustLookup(tt.kind).Accepts(tt.input)
			if got != tt.want {
				t.Errorf("%s accepts %s = %v, want %v", tt.kind, tt.input, got, tt.want)
			}
		})
	}
}

func TestKindNamesSorted(t *testing.T) {
	names := types.KindNames()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("KindNames not sorted: %v", names)
		}
	}
	if len(names) != len(types.Registry) {
		t.Errorf("KindNames() returned %d names, want %d", len(names), len(types.Registry))
	}
}
