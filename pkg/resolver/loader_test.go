package resolver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattbaird/ontology-sub000/pkg/types"
)

func TestLoadDirectory(t *testing.T) {
	g, err := NewLoader().Load(context.Background(), filepath.Join("testdata", "valid"))
	require.NoError(t, err)

	assert.Equal(t, []string{"base", "billing"}, g.Packages())
	assert.Equal(t, []string{
		"base.Money", "base.Status", "base.Period",
		"billing.Payment", "billing.Invoice",
	}, g.Definitions())

	payment, ok := g.Effective("billing.Payment")
	require.True(t, ok)
	assert.Equal(t, `close{amount!: int(>=0), currency!: string(pattern="^[A-Z]{3}$")}`, types.Canonical(payment))

	fp, ok := g.Fingerprint("billing.Payment")
	require.True(t, ok)
	assert.Equal(t, types.Fingerprint(payment), fp)
	assert.NotEmpty(t, g.Digest())

	// unqualified refs are qualified with their own package
	invoice, _ := g.Definition("billing.Invoice")
	lines, _ := invoice.(*types.Struct).Field("lines")
	assert.Equal(t, "[ref(billing.Payment)](min=1)", types.Canonical(lines.Type))

	loc, source, line := g.Location("base.Money")
	assert.Equal(t, types.Location{Package: "base", Definition: "Money"}, loc)
	assert.Equal(t, filepath.Join("testdata", "valid", "base.yml"), source)
	assert.Equal(t, 6, line)
}

func TestLoadMachines(t *testing.T) {
	g, err := NewLoader().Load(context.Background(), filepath.Join("testdata", "valid"))
	require.NoError(t, err)

	assert.Equal(t, []string{"base.Lease", "billing.InvoiceFlow"}, g.Machines())

	m, err := g.Machine("InvoiceFlow")
	require.NoError(t, err)
	assert.True(t, m.AllowSelfLoop)

	entity, ok := g.Entity("InvoiceFlow")
	require.True(t, ok)
	assert.Equal(t, "billing.Invoice", entity)

	_, err = g.Machine("InvoiceFlw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean InvoiceFlow?")

	warnings := g.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "info", warnings[0].Severity)
	assert.Equal(t, "machines.Lease.field", warnings[0].Field)
}

func TestLoadGlob(t *testing.T) {
	g, err := NewLoader().Load(context.Background(), filepath.Join("testdata", "valid", "*.yml"))
	require.NoError(t, err)
	assert.Len(t, g.Packages(), 2)
}

func TestLoadReusesParsedDocuments(t *testing.T) {
	l := NewLoader()
	dir := filepath.Join("testdata", "valid")

	first, err := l.Load(context.Background(), dir)
	require.NoError(t, err)
	second, err := l.Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, CacheStats{Hits: 2, Misses: 2}, l.Stats())
	assert.NotSame(t, first, second)
	assert.Equal(t, first.Digest(), second.Digest())
}

func TestLoadReportsEveryFileTogether(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), filepath.Join("testdata", "broken"))
	require.Error(t, err)

	errs := LoadErrors(err)
	require.Len(t, errs, 2)

	assert.Equal(t, KindSyntax, errs[0].Kind)
	assert.Equal(t, filepath.Join("testdata", "broken", "inventory.yml"), errs[0].Source)
	assert.Contains(t, errs[0].Message, "apiVersion")

	assert.Equal(t, KindUnknownImport, errs[1].Kind)
	assert.Equal(t, "shop", errs[1].Location.Package)
	assert.Equal(t, 4, errs[1].Line)
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader().Load(ctx, filepath.Join("testdata", "valid"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestExpand(t *testing.T) {
	files, err := Expand(
		filepath.Join("testdata", "valid"),
		filepath.Join("testdata", "valid", "base.yml"),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "valid", "base.yml"),
		filepath.Join("testdata", "valid", "billing.yml"),
	}, files)

	_, err = Expand(filepath.Join("testdata", "nothing", "*.yml"))
	assert.Error(t, err)

	_, err = Expand(filepath.Join("testdata", "missing.yml"))
	assert.Error(t, err)
}
