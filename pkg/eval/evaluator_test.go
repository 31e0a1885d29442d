package eval

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattbaird/ontology-sub000/pkg/types"
	"github.com/mattbaird/ontology-sub000/pkg/unify"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

func str() *types.Atom { return types.NewAtom(types.KindString) }
func num() *types.Atom { return types.NewAtom(types.KindNumber) }

type ruleAt struct {
	Path string
	Rule string
}

func rulesOf(r Result) []ruleAt {
	var out []ruleAt
	for _, v := range r.Violations {
		out = append(out, ruleAt{v.Path, v.Rule})
	}
	return out
}

func validate(t *testing.T, expr types.Expr, v value.Value) Result {
	t.Helper()
	return New(nil).Validate(context.Background(), expr, v)
}

func TestClosedStructRejectsUnexpectedField(t *testing.T) {
	s := types.NewStruct(true, types.Optional("x", num()))
	r := validate(t, s, value.Struct(value.F("x", value.Int(1)), value.F("y", value.Int(2))))

	assert.Equal(t, []ruleAt{{"y", RuleUnexpectedField}}, rulesOf(r))
	assert.Equal(t, SeverityData, r.Violations[0].Severity)
}

func TestConditionalRequirement(t *testing.T) {
	s := types.NewStruct(false, types.Required("kind", types.Enum(value.String("a"), value.String("b"))))
	s.Conditionals = []*types.Conditional{
		types.When(types.Equals("kind", value.String("a")), types.NewStruct(false, types.Required("extra", str()))),
	}

	r := validate(t, s, value.Struct(value.F("kind", value.String("a"))))
	assert.Equal(t, []ruleAt{{"extra", RuleRequired}}, rulesOf(r))

	r = validate(t, s, value.Struct(value.F("kind", value.String("b"))))
	assert.True(t, r.Accepted(), "unexpected violations: %v", r.Violations)
}

func TestConditionalOnClosedStructAdmitsItsFields(t *testing.T) {
	s := types.NewStruct(true, types.Required("kind", types.Enum(value.String("a"), value.String("b"))))
	s.Conditionals = []*types.Conditional{
		types.When(types.Equals("kind", value.String("a")), types.NewStruct(false, types.Required("extra", str()))),
	}

	r := validate(t, s, value.Struct(value.F("kind", value.String("a")), value.F("extra", value.String("x"))))
	assert.True(t, r.Accepted(), "unexpected violations: %v", r.Violations)

	r = validate(t, s, value.Struct(value.F("kind", value.String("b")), value.F("extra", value.String("x"))))
	assert.Equal(t, []ruleAt{{"extra", RuleUnexpectedField}}, rulesOf(r))
}

func TestNestedConditionalsReachFixpoint(t *testing.T) {
	second := types.NewStruct(false, types.Required("reason", str()))
	first := types.NewStruct(false, types.Optional("ended", types.NewAtom(types.KindBool)))
	first.Conditionals = []*types.Conditional{types.When(types.Equals("ended", value.Bool(true)), second)}

	s := types.NewStruct(false, types.Required("status", str()))
	s.Conditionals = []*types.Conditional{types.When(types.Equals("status", value.String("closed")), first)}

	r := validate(t, s, value.Struct(value.F("status", value.String("closed")), value.F("ended", value.Bool(true))))
	assert.Equal(t, []ruleAt{{"reason", RuleRequired}}, rulesOf(r))
}

func TestStructCollectsEveryViolation(t *testing.T) {
	s := types.NewStruct(true,
		types.Required("id", types.MustLookup("uuid")),
		types.Required("age", types.Int().AtLeast(0)),
		types.Required("name", str()),
		types.Optional("tags", types.NewList(str(), -1, 2)),
	)
	v := value.Struct(
		value.F("zzz", value.Bool(true)),
		value.F("age", value.Number(-1.5)),
		value.F("tags", value.List(value.String("a"), value.Int(1), value.String("c"))),
		value.F("aaa", value.Null()),
	)

	r := validate(t, s, v)
	assert.Equal(t, []ruleAt{
		{"id", RuleRequired},
		{"age", RuleInteger},
		{"age", RuleRange},
		{"name", RuleRequired},
		{"tags", RuleItems},
		{"tags[1]", RuleType},
		{"zzz", RuleUnexpectedField},
		{"aaa", RuleUnexpectedField},
	}, rulesOf(r))
}

func TestDefaultsAreFilled(t *testing.T) {
	s := types.NewStruct(false,
		types.Required("name", str()),
		types.WithDefault("status", types.Enum(value.String("active"), value.String("archived")), value.String("active")),
		types.Optional("meta", types.NewStruct(false, types.WithDefault("version", types.Int(), value.Int(1)))),
	)
	v := value.Struct(value.F("name", value.String("x")), value.F("meta", value.Struct()))

	r := validate(t, s, v)
	require.True(t, r.Accepted(), "unexpected violations: %v", r.Violations)

	want := value.Struct(
		value.F("name", value.String("x")),
		value.F("meta", value.Struct(value.F("version", value.Int(1)))),
		value.F("status", value.String("active")),
	)
	assert.True(t, value.Equal(want, r.Filled), "filled = %s", r.Filled)
}

func TestUnionAggregatesIntoOneViolation(t *testing.T) {
	u := types.NewUnion(
		types.NewStruct(true, types.Required("card", str())),
		types.NewStruct(true, types.Required("iban", str().Matching("^[A-Z]{2}"))),
	)

	r := validate(t, u, value.Struct(value.F("iban", value.String("de12"))))
	require.Len(t, r.Violations, 1)
	assert.Equal(t, RuleUnion, r.Violations[0].Rule)
	assert.Contains(t, r.Violations[0].Message, "closest")

	r = validate(t, u, value.Struct(value.F("card", value.String("4111"))))
	assert.True(t, r.Accepted())
}

func TestDynamicBounds(t *testing.T) {
	s := types.NewStruct(false,
		types.Required("start", types.Int()),
		types.Required("end", types.Int().Compared(types.OpGTE, "start")),
	)

	r := validate(t, s, value.Struct(value.F("start", value.Int(10)), value.F("end", value.Int(5))))
	assert.Equal(t, []ruleAt{{"end", RuleRange}}, rulesOf(r))

	r = validate(t, s, value.Struct(value.F("start", value.Int(10)), value.F("end", value.Int(10))))
	assert.True(t, r.Accepted())
}

func TestSchemaErrorsHaveSchemaSeverity(t *testing.T) {
	broken := &types.Composite{Left: types.Int().AtLeast(10), Right: types.Int().AtMost(5)}
	s := types.NewStruct(false, types.Required("n", broken), types.Required("m", &types.Ref{Package: "p", Name: "Missing"}))

	r := New(unify.Definitions{}).Validate(context.Background(), s, value.Struct(value.F("n", value.Int(7)), value.F("m", value.Int(1))))
	require.Len(t, r.Violations, 2)
	assert.Equal(t, ruleAt{"n", RuleConflict}, ruleAt{r.Violations[0].Path, r.Violations[0].Rule})
	assert.Equal(t, ruleAt{"m", RuleUnresolved}, ruleAt{r.Violations[1].Path, r.Violations[1].Rule})
	assert.True(t, r.HasSeverity(SeveritySchema))
	assert.False(t, r.HasSeverity(SeverityData))
}

func TestUnionKeepsSchemaViolationsOfAlternatives(t *testing.T) {
	s := types.NewStruct(false, types.Required("kind", str()), types.Required("x", types.Int()))
	s.Conditionals = []*types.Conditional{
		types.When(types.Equals("kind", value.String("a")), types.NewStruct(false, types.Required("x", str()))),
	}
	u := types.NewUnion(s, types.NewAtom(types.KindBool))
	v := value.Struct(value.F("kind", value.String("a")), value.F("x", value.Int(1)))

	direct := validate(t, s, v)
	require.NotEmpty(t, direct.Violations)
	require.False(t, direct.HasSeverity(SeverityData), "%v", direct.Violations)

	r := validate(t, u, v)
	assert.Equal(t, direct.Violations, r.Violations)
	assert.True(t, r.HasSeverity(SeveritySchema))
	assert.False(t, r.HasSeverity(SeverityData))

	r = validate(t, u, value.Bool(true))
	assert.True(t, r.Accepted(), "unexpected violations: %v", r.Violations)
}

func TestDeadlineYieldsTimeoutViolation(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	r := New(nil).Validate(ctx, types.Int(), value.String("not checked"))
	assert.Equal(t, []ruleAt{{"", RuleTimeout}}, rulesOf(r))
	assert.Equal(t, SeverityTimeout, r.Violations[0].Severity)
}

func TestDeadlineCheckedDuringRecursion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	items := make([]value.Value, 100)
	for i := range items {
		items[i] = value.Int(int64(i))
	}
	// The element type cancels the context the first time it is resolved
	elem := unify.ResolverFunc(func(*types.Ref) (types.Expr, bool) {
		cancel()
		return types.Int(), true
	})

	r := New(elem, WithCheckInterval(4)).Validate(ctx, types.NewList(&types.Ref{Name: "Elem"}, -1, -1), value.List(items...))
	require.NotEmpty(t, r.Violations)
	last := r.Violations[len(r.Violations)-1]
	assert.Equal(t, RuleTimeout, last.Rule)
	assert.Equal(t, 1, r.Count()[SeverityTimeout])
}

func TestViolationJSON(t *testing.T) {
	b, err := json.Marshal(Violation{Path: "a.b[0]", Rule: RuleRange, Message: "too small", Severity: SeverityData})
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"a.b[0]","rule":"range","message":"too small","severity":"data"}`, string(b))
}

func TestConcurrentValidationSharesExpressions(t *testing.T) {
	s := types.NewStruct(true, types.Required("kind", str()))
	s.Conditionals = []*types.Conditional{
		types.When(types.Equals("kind", value.String("a")), types.NewStruct(false, types.Required("extra", str()))),
	}
	e := New(nil)

	done := make(chan Result, 2)
	go func() { done <- e.Validate(context.Background(), s, value.Struct(value.F("kind", value.String("a")))) }()
	go func() { done <- e.Validate(context.Background(), s, value.Struct(value.F("kind", value.String("b")))) }()

	counts := []int{len((<-done).Violations), len((<-done).Violations)}
	assert.ElementsMatch(t, []int{0, 1}, counts)
}
