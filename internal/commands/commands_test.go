package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattbaird/ontology-sub000/internal/output"
)

// resolved before any test changes directory
var testdataDir, _ = filepath.Abs("testdata")

func abs(t *testing.T, rel string) string {
	t.Helper()
	return filepath.Join(testdataDir, rel)
}

// run executes the CLI in an empty directory and returns stdout plus styled
// output together. Packages default to testdata/packages.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	if !slices.Contains(args, "-p") {
		args = append([]string{"-p", abs(t, "packages")}, args...)
	}
	t.Chdir(t.TempDir())
	t.Setenv("ONTOLOGY_LOG_LEVEL", "silent")
	cfgFile, settings = "", nil

	var out bytes.Buffer
	prev := output.SetOutput(&out)
	t.Cleanup(func() { output.SetOutput(prev) })

	root := RootCmd()
	Register(root)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheck(t *testing.T) {
	out, err := run(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 2 packages, 5 definitions, 2 machines")
}

func TestCheckReportsLoadErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shop.yml"), []byte("apiVersion: v1\nkind: Package\nname: shop\nimports: [inventory]\n"), 0o644))

	out, err := run(t, "check", "-p", dir)
	assert.ErrorIs(t, err, ErrReported)
	assert.Contains(t, out, "Failed to load packages: 1 error")
	assert.Contains(t, out, "unknown_import")
}

func TestValidate(t *testing.T) {
	out, err := run(t, "validate", "billing.Payment", abs(t, "data/payment_ok.yml"))
	require.NoError(t, err)
	assert.Contains(t, out, "payment_ok.yml: accepted")

	out, err = run(t, "validate", "billing.Payment", abs(t, "data/payment_ok.yml"), abs(t, "data/payment_bad.json"))
	assert.ErrorIs(t, err, ErrReported)
	assert.Contains(t, out, "payment_bad.json: 3 violations")
	for _, want := range []string{"amount: [range]", "currency: [pattern]", "note: [unexpected_field]"} {
		assert.Contains(t, out, want)
	}
}

func TestValidateJSON(t *testing.T) {
	out, err := run(t, "validate", "--json", "--expr", "{type: int, min: 0}", abs(t, "data/payment_ok.yml"))
	assert.ErrorIs(t, err, ErrReported)

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, false, results[0]["accepted"])
	violations := results[0]["violations"].([]any)
	require.Len(t, violations, 1)
	assert.Equal(t, "type", violations[0].(map[string]any)["rule"])
}

func TestValidateArguments(t *testing.T) {
	_, err := run(t, "validate", "Money")
	assert.ErrorContains(t, err, "requires a type and at least one data file")

	_, err = run(t, "validate", "--machine", "InvoiceFlow", abs(t, "data/payment_ok.yml"))
	assert.ErrorContains(t, err, "--machine requires --before")
}

func TestUnify(t *testing.T) {
	out, err := run(t, "unify", "base.Money", "Payment")
	require.NoError(t, err)
	assert.Equal(t, "close{amount!: int(>=0), currency!: string(pattern=\"^[A-Z]{3}$\")}\n", out)

	out, err = run(t, "unify", "Status", "Money")
	assert.ErrorIs(t, err, ErrReported)
	assert.Contains(t, out, "cannot unify")
}

func TestTransitionsAndMatrix(t *testing.T) {
	out, err := run(t, "transitions", "Lease", "draft")
	require.NoError(t, err)
	assert.Equal(t, "active\n", out)

	out, err = run(t, "transitions", "Lease", "ended")
	require.NoError(t, err)
	assert.Contains(t, out, "ended is terminal")

	out, err = run(t, "matrix", "Lease", "--json")
	require.NoError(t, err)
	var m struct {
		Valid   []map[string]string `json:"valid"`
		Invalid []map[string]string `json:"invalid"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, []map[string]string{{"from": "draft", "to": "active"}, {"from": "active", "to": "ended"}}, m.Valid)
	assert.Len(t, m.Invalid, 7)

	out, err = run(t, "matrix", "Lease")
	require.NoError(t, err)
	assert.Contains(t, out, "invalid")
}

func TestDrift(t *testing.T) {
	out, err := run(t, "drift", "--old", abs(t, "drift/v1"), "--new", abs(t, "drift/v2"))
	assert.ErrorIs(t, err, ErrReported)
	assert.Contains(t, out, "narrowed_incompatible: orders.Order.status via base.Status")
	assert.Contains(t, out, "widened: orders.Order.code via base.Code")

	out, err = run(t, "drift", "--old", abs(t, "drift/v1"), "--new", abs(t, "drift/v1"))
	require.NoError(t, err)
	assert.Contains(t, out, "No incompatible changes across 3 references")
}

func TestDriftSnapshot(t *testing.T) {
	snap := filepath.Join(t.TempDir(), "snap", "v1.yml")

	out, err := run(t, "drift", "snapshot", "-p", abs(t, "drift/v1"), "-o", snap)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote snapshot of 2 packages")

	_, err = run(t, "drift", "snapshot", "-p", abs(t, "drift/v1"), "-o", snap)
	assert.ErrorContains(t, err, "use --force")

	_, err = run(t, "drift", "--snapshot", snap, "--new", abs(t, "drift/v2"))
	assert.ErrorIs(t, err, ErrReported)

	_, err = run(t, "drift", "--snapshot", snap, "--new", abs(t, "drift/v1"))
	assert.NoError(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ontology ")
}
