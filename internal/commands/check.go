package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattbaird/ontology-sub000/internal/output"
)

// CheckCmd loads the packages and reports load errors and lint findings
func CheckCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load packages and report every problem",
		Long: `Loads every configured package and reports all problems at once:
syntax errors, unknown imports, import cycles, unresolved references,
composition conflicts, and conditions testing undeclared fields.

Lint warnings and suggestions are printed too; --strict fails on warnings.

Example:
  ontology check -p schemas/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(cmd.Context())
			if err != nil {
				return err
			}

			warnings := 0
			for _, w := range g.Warnings() {
				if w.Severity == "warning" {
					warnings++
					output.Warn(w.String())
				} else {
					output.Info(w.String())
				}
			}

			output.Success(fmt.Sprintf("Loaded %s, %s, %s",
				plural(len(g.Packages()), "package"),
				plural(len(g.Definitions()), "definition"),
				plural(len(g.Machines()), "machine")))
			output.Verbose("Graph digest: " + g.Digest().String())

			if strict && warnings > 0 {
				output.Error(fmt.Sprintf("%s in strict mode", plural(warnings, "warning")))
				return ErrReported
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when lint reports warnings")
	return cmd
}
