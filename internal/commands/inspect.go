package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	ontology "github.com/mattbaird/ontology-sub000"
	"github.com/mattbaird/ontology-sub000/internal/output"
	"github.com/mattbaird/ontology-sub000/pkg/types"
)

// UnifyCmd composes two definitions and prints the result
func UnifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unify [a] [b]",
		Short: "Compose two definitions",
		Long: `Unifies two definitions and prints the canonical form of the result,
or the path and reason of the conflict.

Example:
  ontology unify base.Money billing.Payment`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(cmd.Context())
			if err != nil {
				return err
			}
			e, err := ontology.Unify(g, args[0], args[1])
			if err != nil {
				if ontology.IsConflict(err) {
					output.Error(err.Error())
					return ErrReported
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), types.Canonical(e))
			return nil
		},
	}
}

// TransitionsCmd lists the states reachable from a state
func TransitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transitions [machine] [state]",
		Short: "List valid target states",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(cmd.Context())
			if err != nil {
				return err
			}
			targets, err := ontology.Transitions(g, args[0], args[1])
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				output.Info(fmt.Sprintf("%s is terminal", args[1]))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(targets, "\n"))
			return nil
		},
	}
}

// MatrixCmd prints every ordered pair of states and whether it is allowed
func MatrixCmd() *cobra.Command {
	var asJSON, validOnly bool

	cmd := &cobra.Command{
		Use:   "matrix [machine]",
		Short: "Enumerate every transition of a machine",
		Long: `Classifies the full cross product of a machine's states, self-loops
included, as valid or invalid. Useful for generating transition tests.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(cmd.Context())
			if err != nil {
				return err
			}
			m, err := ontology.EnumerateTransitionMatrix(g, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), m)
			}

			var rows [][]string
			for _, p := range m.Valid {
				rows = append(rows, []string{p.From, p.To, "valid"})
			}
			if !validOnly {
				for _, p := range m.Invalid {
					rows = append(rows, []string{p.From, p.To, "invalid"})
				}
			}
			output.Table([]string{"from", "to", "transition"}, rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the matrix as JSON")
	cmd.Flags().BoolVar(&validOnly, "valid", false, "Only print valid transitions")
	return cmd
}
