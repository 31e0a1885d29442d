package schema

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lintFixture = `apiVersion: v1
kind: Package
name: lint
definitions:
  order_line:
    fields:
      unitPrice: int
      qty: {type: int, required: true, default: 1}
      size: {type: string, enum: [s, m], default: xl}
    when:
      - field: size
        equals: xxl
        then: {fields: {note: string}}
      - field: colour
        present: true
        then: {fields: {note: string}}
  Ticket:
    fields:
      state: {enum: [open, closed]}
machines:
  TicketFlow:
    entity: Ticket
    field: state
    transitions:
      open: [closed]
      closed: []
      archived: [open]
  Ghost:
    entity: Missing
    field: state
    transitions:
      a: []
`

func fields(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Field
	}
	return out
}

func TestLintCleanPackage(t *testing.T) {
	pkg, err := Parse(filepath.Join("testdata", "billing.yml"))
	require.NoError(t, err)

	result, err := Lint(pkg)
	require.NoError(t, err)
	assert.True(t, result.Empty(), result.Error())
	assert.Equal(t, "validation completed with no issues", result.Error())
}

func TestLintUnboundMachineField(t *testing.T) {
	pkg, err := Parse(filepath.Join("testdata", "base.yml"))
	require.NoError(t, err)

	result, err := Lint(pkg)
	require.NoError(t, err)
	assert.False(t, result.HasErrors())
	assert.Empty(t, result.Warnings)
	require.Len(t, result.Infos, 1)
	assert.Equal(t, "machines.Lease.field", result.Infos[0].Field)
}

func TestLintFindings(t *testing.T) {
	pkg, err := ParseBytes([]byte(lintFixture))
	require.NoError(t, err)

	result, err := Lint(pkg)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"definitions.order_line.size.default",
		"machines.Ghost.entity",
	}, fields(result.Errors))

	assert.Equal(t, []string{
		"definitions.order_line",
		"definitions.order_line.qty",
		"definitions.order_line.when",
		"definitions.order_line.when",
		"machines.TicketFlow.transitions",
		"machines.TicketFlow",
	}, fields(result.Warnings))
	assert.Equal(t, "use 'OrderLine'", result.Warnings[0].Suggestion)
	assert.Contains(t, result.Warnings[2].Message, "can never hold")
	assert.Contains(t, result.Warnings[3].Message, "colour")
	assert.Contains(t, result.Warnings[4].Message, "archived")

	require.Len(t, result.Infos, 1)
	assert.Equal(t, "definitions.order_line.unitPrice", result.Infos[0].Field)
	assert.Equal(t, "use 'unit_price'", result.Infos[0].Suggestion)

	assert.Contains(t, result.Error(), "Validation failed with 2 error(s), 6 warning(s)")
}

type failingValidator struct{}

func (failingValidator) Name() string { return "failing" }

func (failingValidator) Validate(*Package) (ValidatorResult, error) {
	return ValidatorResult{}, errors.New("boom")
}

type countingValidator struct{ calls int }

func (v *countingValidator) Name() string { return "counting" }

func (v *countingValidator) Validate(pkg *Package) (ValidatorResult, error) {
	v.calls++
	return ValidatorResult{Infos: []ValidationError{{Field: "name", Message: pkg.Name}}}, nil
}

func TestPipelineCustomValidators(t *testing.T) {
	pkg, err := Parse(filepath.Join("testdata", "billing.yml"))
	require.NoError(t, err)

	t.Run("results are merged", func(t *testing.T) {
		counter := &countingValidator{}
		p := NewValidationPipeline()
		p.AddValidator(counter)

		result, err := p.Validate(pkg)
		require.NoError(t, err)
		assert.Equal(t, 1, counter.calls)
		require.Len(t, result.Infos, 1)
		assert.Equal(t, "billing", result.Infos[0].Message)
	})

	t.Run("validator failure aborts", func(t *testing.T) {
		p := NewValidationPipeline()
		p.AddValidator(failingValidator{})

		_, err := p.Validate(pkg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validator failing failed")
	})
}

func TestClosest(t *testing.T) {
	candidates := []string{"Invoice", "Payment", "Money"}
	assert.Equal(t, "Invoice", Closest("Invoce", candidates))
	assert.Equal(t, "Money", Closest("money", candidates))
	assert.Equal(t, "", Closest("Ledger", candidates))
	assert.Equal(t, "", Closest("x", nil))
}
