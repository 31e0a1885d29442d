package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	ontology "github.com/mattbaird/ontology-sub000"
	"github.com/mattbaird/ontology-sub000/internal/output"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

// loadGraph loads the configured packages, printing every load error
func loadGraph(ctx context.Context) (*ontology.Graph, error) {
	cfg, err := currentConfig()
	if err != nil {
		return nil, err
	}
	return loadPaths(ctx, cfg.Packages)
}

func loadPaths(ctx context.Context, paths []string) (*ontology.Graph, error) {
	output.Verbose(fmt.Sprintf("Loading %v", paths))
	g, err := ontology.LoadPackages(ctx, paths...)
	if err != nil {
		reportLoadError(err)
		return nil, ErrReported
	}
	return g, nil
}

func reportLoadError(err error) {
	errs := ontology.LoadErrors(err)
	if len(errs) == 0 {
		output.Error(err.Error())
		return
	}
	output.Error(fmt.Sprintf("Failed to load packages: %d error(s)", len(errs)))
	for _, e := range errs {
		output.Step(e.Error())
	}
}

// readValue reads a YAML or JSON data file; "-" reads stdin
func readValue(path string) (value.Value, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return value.Value{}, fmt.Errorf("failed to read data file: %w", err)
	}
	v, err := value.ParseYAML(data)
	if err != nil {
		return value.Value{}, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
