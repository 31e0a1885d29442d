package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	ontology "github.com/mattbaird/ontology-sub000"
	"github.com/mattbaird/ontology-sub000/internal/output"
	"github.com/mattbaird/ontology-sub000/pkg/value"
)

type fileResult struct {
	File       string               `json:"file"`
	Accepted   bool                 `json:"accepted"`
	Filled     value.Value          `json:"filled"`
	Violations []ontology.Violation `json:"violations"`
}

// ValidateCmd validates data files against a definition or inline expression
func ValidateCmd() *cobra.Command {
	var expr, transition, before string
	var asJSON bool
	var deadline time.Duration

	cmd := &cobra.Command{
		Use:   "validate [type] [file...]",
		Short: "Validate data files against a type",
		Long: `Validates YAML or JSON data files against a definition and prints
every violation with its path and rule. Use "-" to read stdin.

With --expr the type is an inline expression instead of a definition name.
With --machine the file is an entity update checked against the machine's
entity and transitions; --before names the previous version.

Examples:
  ontology validate billing.Invoice invoice.yml
  ontology validate --expr '{type: int, min: 0}' amount.json
  ontology validate --machine InvoiceFlow --before old.yml new.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			typeRef := ""
			switch {
			case expr != "" && transition != "":
				return fmt.Errorf("--expr and --machine cannot be combined")
			case expr == "" && transition == "":
				if len(args) < 2 {
					return fmt.Errorf("requires a type and at least one data file")
				}
				typeRef, args = args[0], args[1:]
			case len(args) == 0:
				return fmt.Errorf("requires at least one data file")
			}
			if transition != "" && before == "" {
				return fmt.Errorf("--machine requires --before")
			}

			cfg, err := currentConfig()
			if err != nil {
				return err
			}
			if deadline == 0 {
				deadline = cfg.Evaluation.Deadline
			}
			g, err := loadPaths(cmd.Context(), cfg.Packages)
			if err != nil {
				return err
			}

			var prev value.Value
			if transition != "" {
				if prev, err = readValue(before); err != nil {
					return err
				}
			}

			var results []fileResult
			rejected := 0
			for _, file := range args {
				v, err := readValue(file)
				if err != nil {
					return err
				}

				ctx, cancel := context.WithTimeout(cmd.Context(), deadline)
				var res ontology.Result
				switch {
				case transition != "":
					res, err = ontology.ValidateTransition(ctx, g, transition, prev, v)
				case expr != "":
					res, err = ontology.ValidateExpr(ctx, g, expr, v)
				default:
					res, err = ontology.Validate(ctx, g, typeRef, v)
				}
				cancel()
				if err != nil {
					return err
				}

				if !res.Accepted() {
					rejected++
				}
				violations := res.Violations
				if violations == nil {
					violations = []ontology.Violation{}
				}
				results = append(results, fileResult{File: file, Accepted: res.Accepted(), Filled: res.Filled, Violations: violations})
			}

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.Accepted {
						output.Success(r.File + ": accepted")
						continue
					}
					output.Error(fmt.Sprintf("%s: %s", r.File, plural(len(r.Violations), "violation")))
					for _, v := range r.Violations {
						output.Step(v.String())
					}
				}
			}

			if rejected > 0 {
				return ErrReported
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&expr, "expr", "", "Inline type expression instead of a definition name")
	cmd.Flags().StringVar(&transition, "machine", "", "Check files as updates of this machine's entity")
	cmd.Flags().StringVar(&before, "before", "", "Previous version of the entity for --machine")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "Evaluation deadline per file (default from config)")
	return cmd
}
