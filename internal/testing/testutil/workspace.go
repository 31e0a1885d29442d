package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// Workspace is a temporary directory of package documents and data files
type Workspace struct {
	Root string
	t    *testing.T
}

// NewWorkspace creates an empty workspace
func NewWorkspace(t *testing.T) *Workspace {
	t.Helper()
	return &Workspace{Root: t.TempDir(), t: t}
}

// Path returns the absolute path of a workspace file
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Root, filepath.FromSlash(name))
}

// Write writes a file, creating parent directories. Writing an existing file
// replaces it.
func (w *Workspace) Write(name, content string) string {
	w.t.Helper()
	path := w.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		w.t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		w.t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// FileExists checks if a file exists in the workspace
func (w *Workspace) FileExists(name string) bool {
	w.t.Helper()
	_, err := os.Stat(w.Path(name))
	return err == nil
}

// ReadFile reads a file from the workspace
func (w *Workspace) ReadFile(name string) (string, error) {
	w.t.Helper()
	content, err := os.ReadFile(w.Path(name))
	return string(content), err
}

// Run executes binary with args inside the workspace and returns its
// combined output and exit code
func (w *Workspace) Run(binary string, args ...string) (string, int) {
	w.t.Helper()

	cmd := exec.Command(binary, args...)
	cmd.Dir = w.Root
	cmd.Env = append(os.Environ(), "ONTOLOGY_LOG_LEVEL=silent", "NO_COLOR=1")

	out, err := cmd.CombinedOutput()
	code := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			w.t.Fatalf("failed to run %s: %v", binary, err)
		}
		code = exitErr.ExitCode()
	}
	w.t.Logf("%s %v (exit %d):\n%s", filepath.Base(binary), args, code, out)
	return string(out), code
}
