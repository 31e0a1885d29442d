package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattbaird/ontology-sub000/pkg/types"
)

func TestParseExpr(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"builtin", "int", "int"},
		{"reference", "base.Money", "ref(base.Money)"},
		{"refined number", "{type: number, exclusive_min: 0, max: 1}", "number(>0,<=1)"},
		{"string lengths", "{type: string, min_length: 2, max_length: 4}", "string(len>=2,len<=4)"},
		{"pattern list", `{type: string, pattern: ["^a", "z$"]}`, `string(pattern="^a",pattern="z$")`},
		{"const", "{const: 3}", "number(enum=[3])"},
		{"enum", "{enum: [b, a]}", `string(enum=["a","b"])`},
		{"one_of", "{one_of: [int, string]}", "(int | string)"},
		{"list", "{items: string, max_items: 2}", "[string](max=2)"},
		{"ref form", "{ref: Money}", "ref(Money)"},
		{"closed all_of", "{all_of: [A, B], closed: true}", "close(ref(A) & ref(B))"},
		{"json input", `{"fields": {"x": {"type": "int", "required": true}}, "closed": true}`, "close{x!: int}"},
		{"default", "{fields: {n: {type: int, default: 1}}}", "{n?: int = 1}"},
		{
			"standalone conditional",
			"{when: {field: kind, in: [a, b], then: {fields: {x: {type: string, required: true}}}}}",
			`{if kind in ["a","b"] then {x!: string}}`,
		},
		{
			"presence conditional",
			"{fields: {a: string}, when: [{field: a, present: true, then: {fields: {b: int}}}]}",
			"{a?: string, if a present then {b?: int}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseExpr([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, types.Canonical(e))
		})
	}
}

func TestParseExprErrors(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		field      string
		suggestion string
	}{
		{"typo in key", "{type: int, minn: 0}", "expr.minn", "did you mean 'min'?"},
		{"typo in builtin", `{type: "in t"}`, "expr.type", "did you mean 'int'?"},
		{"too many dots", "a.b.c", "expr", ""},
		{"pattern on number", "{type: int, pattern: x}", "expr.pattern", ""},
		{"bad regexp", "{type: string, pattern: '('}", "expr.pattern", ""},
		{"pattern list of mappings", "{type: string, pattern: [{a: 1}]}", "expr.pattern", ""},
		{"pattern mapping", "{type: string, pattern: {a: 1}}", "expr.pattern", ""},
		{"enum kind mismatch", "{type: int, enum: [a]}", "expr", ""},
		{"refinement on ref", "{type: Money, min: 0}", "expr.min", "compose with all_of: [Money, {type: ..., min: ...}]"},
		{"two operators", "{when: {field: a, equals: 1, absent: true, then: int}}", "expr.when", "use exactly one of: equals, not_equals, in, present, absent"},
		{"no form", "{closed: true}", "expr", "add one of: type, fields, items, one_of, all_of, ref, when, enum, const"},
		{"inverted range", "{type: int, min: 5, max: 1}", "expr", "swap min and max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExpr([]byte(tt.input))
			var errs ValidationErrors
			require.ErrorAs(t, err, &errs)
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.field, errs[0].Field)
			if tt.suggestion != "" {
				assert.Equal(t, tt.suggestion, errs[0].Suggestion)
			}
		})
	}
}
