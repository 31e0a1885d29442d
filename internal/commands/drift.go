package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	ontology "github.com/mattbaird/ontology-sub000"
	"github.com/mattbaird/ontology-sub000/internal/console"
	"github.com/mattbaird/ontology-sub000/internal/output"
	"github.com/mattbaird/ontology-sub000/pkg/drift"
)

// DriftCmd compares dependents against a new version of their base packages
func DriftCmd() *cobra.Command {
	var oldPaths, newPaths []string
	var snapshot string
	var asJSON, all bool

	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Detect base package changes that break dependents",
		Long: `Checks every reference from a dependent package into a base package,
together with what the dependent composes it with, and classifies it as
unchanged, widened, or narrowed_incompatible. Narrowed references fail the
command, which makes it usable as a CI gate.

The old side is either --old packages or a snapshot written by
'ontology drift snapshot'. The new side defaults to the configured packages.

Examples:
  ontology drift --old v1/ --new v2/
  ontology drift --snapshot .ontology/snapshot.yml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := currentConfig()
			if err != nil {
				return err
			}
			if len(oldPaths) == 0 && snapshot == "" {
				snapshot = cfg.Drift.Snapshot
			}
			if len(newPaths) == 0 {
				newPaths = cfg.Packages
			}

			next, err := loadPaths(cmd.Context(), newPaths)
			if err != nil {
				return err
			}

			var reports []drift.Report
			if len(oldPaths) > 0 {
				old, err := loadPaths(cmd.Context(), oldPaths)
				if err != nil {
					return err
				}
				reports = drift.Check(old, next)
			} else {
				f, err := os.Open(snapshot)
				if err != nil {
					return fmt.Errorf("failed to open snapshot (write one with 'ontology drift snapshot'): %w", err)
				}
				defer f.Close()
				s, err := drift.ReadSnapshot(f)
				if err != nil {
					return err
				}
				output.Verbose(fmt.Sprintf("Comparing against snapshot %s", s.Digest))
				if reports, err = drift.CheckSnapshot(s, next); err != nil {
					return fmt.Errorf("snapshot no longer loads: %w", err)
				}
			}

			narrowed := drift.Incompatible(reports)
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), reports); err != nil {
					return err
				}
			} else {
				printReports(reports, all)
			}
			if len(narrowed) > 0 {
				if !asJSON {
					output.Error((&ontology.DriftError{Reports: narrowed}).Error())
				}
				return ErrReported
			}
			if !asJSON {
				output.Success(fmt.Sprintf("No incompatible changes across %s", plural(len(reports), "reference")))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&oldPaths, "old", nil, "Packages before the change")
	cmd.Flags().StringSliceVar(&newPaths, "new", nil, "Packages after the change (default: configured packages)")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Snapshot to compare against instead of --old")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print reports as JSON")
	cmd.Flags().BoolVar(&all, "all", false, "Also print unchanged references")
	cmd.MarkFlagsMutuallyExclusive("old", "snapshot")

	cmd.AddCommand(driftSnapshotCmd())
	return cmd
}

func printReports(reports []drift.Report, all bool) {
	for _, r := range reports {
		switch r.Class {
		case drift.NarrowedIncompatible:
			output.Warn(r.String())
		case drift.Widened:
			output.Info(r.String())
		default:
			if !all {
				continue
			}
			output.Verbose(r.String())
		}
		for _, c := range r.Changes {
			output.Step(c.String())
		}
	}
}

func driftSnapshotCmd() *cobra.Command {
	var out string
	var force bool

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Record the configured packages for later drift checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := currentConfig()
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.Drift.Snapshot
			}

			g, err := loadPaths(cmd.Context(), cfg.Packages)
			if err != nil {
				return err
			}
			s, err := drift.Take(g)
			if err != nil {
				return err
			}

			if _, err := os.Stat(out); err == nil && !force {
				if !console.Interactive(os.Stdin) {
					return fmt.Errorf("%s exists (use --force to overwrite)", out)
				}
				if !output.Confirm(fmt.Sprintf("Overwrite %s?", out), false) {
					output.Info("Snapshot not written")
					return nil
				}
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("failed to create snapshot directory: %w", err)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create snapshot: %w", err)
			}
			if err := s.Write(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			output.Success(fmt.Sprintf("Wrote snapshot of %s to %s", plural(len(s.Packages), "package"), out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "Snapshot file (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing snapshot")
	return cmd
}
