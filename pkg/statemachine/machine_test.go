package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattbaird/ontology-sub000/pkg/eval"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

func leaseTable() []Transition {
	return []Transition{
		{From: "draft", To: []string{"active", "cancelled"}},
		{From: "active", To: []string{"ended"}},
		{From: "ended", To: nil},
		{From: "cancelled", To: []string{}},
	}
}

func TestNewRejectsUndeclaredTargets(t *testing.T) {
	_, err := New("lease", []Transition{{From: "draft", To: []string{"active"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "draft -> active")

	_, err = New("lease", []Transition{{From: "a"}, {From: "a"}})
	assert.Error(t, err)
}

func TestIsValidTransition(t *testing.T) {
	m, err := New("lease", leaseTable())
	require.NoError(t, err)

	tests := []struct {
		from, to string
		want     bool
	}{
		{"draft", "active", true},
		{"active", "ended", true},
		{"active", "draft", false},
		{"ended", "active", false},
		{"draft", "draft", false},
		{"unknown", "active", false},
		{"draft", "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsValidTransition(tt.from, tt.to))
		})
	}
}

func TestSelfLoopPolicy(t *testing.T) {
	strict, err := New("lease", leaseTable())
	require.NoError(t, err)
	loose, err := New("lease", leaseTable(), WithSelfLoops(true))
	require.NoError(t, err)

	assert.False(t, strict.IsValidTransition("active", "active"))
	assert.True(t, loose.IsValidTransition("active", "active"))
	assert.True(t, loose.IsValidTransition("ended", "ended"))
	assert.False(t, loose.IsValidTransition("unknown", "unknown"), "self-loops never make unknown states valid")

	targets, err := loose.ValidTargets("active")
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "ended"}, targets)
}

func TestValidTargets(t *testing.T) {
	m, err := New("lease", leaseTable())
	require.NoError(t, err)

	targets, err := m.ValidTargets("draft")
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "cancelled"}, targets)

	targets, err = m.ValidTargets("ended")
	require.NoError(t, err)
	assert.NotNil(t, targets, "terminal states return an empty list, not nil")
	assert.Empty(t, targets)
	assert.True(t, m.Terminal("ended"))

	_, err = m.ValidTargets("archived")
	assert.ErrorIs(t, err, ErrUnknownState)
	assert.False(t, m.Terminal("archived"))
}

func TestEnumerateAll(t *testing.T) {
	m, err := New("door", []Transition{
		{From: "open", To: []string{"closed"}},
		{From: "closed", To: []string{"open", "locked"}},
		{From: "locked", To: []string{"closed"}},
	})
	require.NoError(t, err)

	mx := m.EnumerateAll()
	assert.Len(t, mx.Valid, 4)
	assert.Len(t, mx.Invalid, 5)
	assert.Equal(t, []Pair{
		{"open", "closed"},
		{"closed", "open"},
		{"closed", "locked"},
		{"locked", "closed"},
	}, mx.Valid)
	assert.Contains(t, mx.Invalid, Pair{"open", "open"})
	assert.Contains(t, mx.Invalid, Pair{"open", "locked"})

	loops, err := New("door", []Transition{
		{From: "open", To: []string{"closed"}},
		{From: "closed", To: []string{"open"}},
	}, WithSelfLoops(true))
	require.NoError(t, err)
	assert.Len(t, loops.EnumerateAll().Valid, 4)
	assert.Empty(t, loops.EnumerateAll().Invalid)
}

func TestCheckTransition(t *testing.T) {
	m, err := New("lease", leaseTable(), BoundTo("status"))
	require.NoError(t, err)

	entity := func(status string) value.Value {
		return value.Struct(value.F("id", value.String("l-1")), value.F("status", value.String(status)))
	}

	assert.Empty(t, m.CheckTransition(entity("draft"), entity("active")))
	assert.Empty(t, m.CheckTransition(entity("draft"), value.Struct(value.F("id", value.String("l-1")))), "absent state field")

	vs := m.CheckTransition(entity("ended"), entity("active"))
	require.Len(t, vs, 1)
	assert.Equal(t, eval.RuleTransition, vs[0].Rule)
	assert.Equal(t, "status", vs[0].Path)
	assert.Contains(t, vs[0].Message, "terminal")

	vs = m.CheckTransition(entity("active"), value.Struct(value.F("status", value.Int(3))))
	require.Len(t, vs, 1)
	assert.Equal(t, eval.RuleType, vs[0].Rule)
}

func TestCheckTransitionSelfLoopsAndUnknownStates(t *testing.T) {
	entity := func(status string) value.Value {
		return value.Struct(value.F("status", value.String(status)))
	}

	tests := []struct {
		name     string
		loops    bool
		from, to string
		message  string
	}{
		{name: "kept state without self loops", from: "draft", to: "draft", message: "does not allow draft -> draft"},
		{name: "kept state with self loops", loops: true, from: "draft", to: "draft"},
		{name: "kept terminal state with self loops", loops: true, from: "ended", to: "ended"},
		{name: "unknown state kept", from: "bogus", to: "bogus", message: `has no state "bogus"`},
		{name: "unknown state kept with self loops", loops: true, from: "bogus", to: "bogus", message: `has no state "bogus"`},
		{name: "unknown target", from: "draft", to: "bogus", message: `has no state "bogus"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New("lease", leaseTable(), BoundTo("status"), WithSelfLoops(tt.loops))
			require.NoError(t, err)
			assert.Equal(t, m.IsValidTransition(tt.from, tt.to), tt.message == "", "CheckTransition agrees with IsValidTransition")

			vs := m.CheckTransition(entity(tt.from), entity(tt.to))
			if tt.message == "" {
				assert.Empty(t, vs)
				return
			}
			require.Len(t, vs, 1)
			assert.Equal(t, eval.RuleTransition, vs[0].Rule)
			assert.Equal(t, eval.SeverityData, vs[0].Severity)
			assert.Contains(t, vs[0].Message, tt.message)
		})
	}
}
