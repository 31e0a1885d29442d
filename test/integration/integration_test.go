//go:build integration
// +build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattbaird/ontology-sub000/internal/testing/testutil"
)

var binary string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "ontology-integration")
	if err != nil {
		panic(err)
	}
	binary = filepath.Join(dir, "ontology")

	build := exec.Command("go", "build", "-o", binary, "../../cmd/ontology")
	if out, err := build.CombinedOutput(); err != nil {
		panic("go build failed: " + err.Error() + "\n" + string(out))
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

const base = `apiVersion: v1
kind: Package
name: base
definitions:
  Money:
    closed: true
    fields:
      amount: {type: int, required: true}
      currency: {type: string, pattern: "^[A-Z]{3}$", required: true}
  Status: {enum: [draft, sent, paid]}
`

const billing = `apiVersion: v1
kind: Package
name: billing
imports: [base]
definitions:
  Payment:
    all_of: [base.Money, {fields: {amount: {type: int, min: 0}}}]
    closed: true
  Invoice:
    fields:
      total: {type: Payment, required: true}
      status: {type: base.Status, default: draft}
machines:
  InvoiceFlow:
    entity: Invoice
    field: status
    transitions: {draft: [sent], sent: [paid], paid: []}
`

func TestValidateWorkflow(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ws.Write("schemas/base.yml", base)
	ws.Write("schemas/billing.yml", billing)
	ws.Write("ontology.yml", "packages: [schemas]\n")

	out, code := ws.Run(binary, "check")
	if code != 0 {
		t.Fatalf("check failed: %s", out)
	}
	if !strings.Contains(out, "Loaded 2 packages") {
		t.Errorf("unexpected check output: %s", out)
	}

	ws.Write("ok.json", `{"total": {"amount": 5, "currency": "USD"}}`)
	ws.Write("bad.yml", "total: {amount: -5, currency: US}\nstatus: void\n")

	if out, code := ws.Run(binary, "validate", "Invoice", "ok.json"); code != 0 {
		t.Errorf("valid invoice rejected: %s", out)
	}

	out, code = ws.Run(binary, "validate", "Invoice", "bad.yml")
	if code == 0 {
		t.Fatal("invalid invoice accepted")
	}
	for _, want := range []string{"total.amount: [range]", "total.currency: [pattern]", "status: [enum]"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output: %s", want, out)
		}
	}

	ws.Write("draft.json", `{"total": {"amount": 5, "currency": "USD"}, "status": "draft"}`)
	ws.Write("sent.json", `{"total": {"amount": 5, "currency": "USD"}, "status": "sent"}`)
	ws.Write("paid.json", `{"total": {"amount": 5, "currency": "USD"}, "status": "paid"}`)
	if out, code := ws.Run(binary, "validate", "--machine", "InvoiceFlow", "--before", "draft.json", "paid.json"); code == 0 {
		t.Errorf("draft -> paid accepted: %s", out)
	}
	if out, code := ws.Run(binary, "validate", "--machine", "InvoiceFlow", "--before", "sent.json", "paid.json"); code != 0 {
		t.Errorf("sent -> paid rejected: %s", out)
	}
}

func TestDriftGate(t *testing.T) {
	ws := testutil.NewWorkspace(t)
	ws.Write("schemas/base.yml", base)
	ws.Write("schemas/billing.yml", billing)
	ws.Write("ontology.yml", "packages: [schemas]\n")

	if out, code := ws.Run(binary, "drift", "snapshot"); code != 0 {
		t.Fatalf("snapshot failed: %s", out)
	}
	if !ws.FileExists(".ontology/snapshot.yml") {
		t.Fatal("snapshot not written to the configured path")
	}

	ws.Write("schemas/base.yml", strings.Replace(base, "[draft, sent, paid]", "[draft, sent, paid, void]", 1))
	if out, code := ws.Run(binary, "drift"); code != 0 {
		t.Errorf("widening failed the gate: %s", out)
	}

	ws.Write("schemas/base.yml", strings.Replace(base, "[draft, sent, paid]", "[draft, paid]", 1))
	out, code := ws.Run(binary, "drift")
	if code == 0 {
		t.Fatalf("narrowing passed the gate: %s", out)
	}
	if !strings.Contains(out, "billing.Invoice.status via base.Status") {
		t.Errorf("narrowed reference not named: %s", out)
	}
}
