package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T, f func()) string {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })
	f()
	return buf.String()
}

func TestMessages(t *testing.T) {
	tests := []struct {
		name   string
		print  func(string)
		marker string
	}{
		{"success", Success, "✔"},
		{"error", Error, "✘"},
		{"warn", Warn, "!"},
		{"info", Info, "•"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := capture(t, func() { tt.print("loaded base") })
			assert.Contains(t, got, tt.marker)
			assert.Contains(t, got, "loaded base")
		})
	}
}

func TestVerbose(t *testing.T) {
	t.Cleanup(func() { SetVerbose(false) })

	assert.Empty(t, capture(t, func() { Verbose("hidden") }))

	SetVerbose(true)
	assert.Contains(t, capture(t, func() { Verbose("shown") }), "shown")
}

func TestTable(t *testing.T) {
	got := capture(t, func() {
		Table([]string{"from", "to", "valid"}, [][]string{{"draft", "active", "yes"}, {"draft", "ended", "no"}})
	})

	for _, want := range []string{"from", "draft", "active", "ended", "no"} {
		assert.Contains(t, got, want)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input      string
		defaultYes bool
		want       bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
		{"", true, true},
	}

	for _, tt := range tests {
		prev := SetInput(strings.NewReader(tt.input))
		var got bool
		prompt := capture(t, func() { got = Confirm("Overwrite snapshot?", tt.defaultYes) })
		SetInput(prev)

		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Contains(t, prompt, "Overwrite snapshot?")
	}
}
