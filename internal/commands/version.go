package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	ontology "github.com/mattbaird/ontology-sub000"
)

// VersionCmd prints the version
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ontology %s\n", ontology.Version)
		},
	}
}
