package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	ontology "github.com/mattbaird/ontology-sub000"
	"github.com/mattbaird/ontology-sub000/internal/config"
	"github.com/mattbaird/ontology-sub000/internal/logger"
	"github.com/mattbaird/ontology-sub000/internal/output"
)

// ErrReported is returned by commands that already printed their failure
var ErrReported = errors.New("command failed")

var (
	cfgFile  string
	settings *viper.Viper
)

// RootCmd creates and returns the root command for the ontology CLI
func RootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "ontology",
		Short: "Constraint unification and validation engine",
		Long: `ontology loads packages of composable type constraints and checks
values, state transitions, and package changes against them.

Packages are YAML documents declaring named types built from scalars,
structs, lists, unions, conditionals, and compositions. Every command loads
the packages listed in ontology.yml, or the ones given with --packages.

• check the packages themselves
• validate data files against a type
• compose types, inspect state machines
• detect changes that break dependent packages`,
		Version:       ontology.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			output.SetVerbose(verbose)

			settings = config.New(cfgFile)
			for key, flag := range map[string]string{"packages": "packages", "log.level": "log-level"} {
				if err := settings.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			cfg, err := config.Load(settings)
			if err != nil {
				return err
			}

			level, err := logger.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			if verbose && level > logger.LevelDebug {
				level = logger.LevelDebug
			}
			logger.SetDefault(logger.NewLogger(level, cmd.ErrOrStderr()))
			output.Verbose(fmt.Sprintf("Using packages: %v", cfg.Packages))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output for debugging")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./ontology.yml)")
	cmd.PersistentFlags().StringSliceP("packages", "p", nil, "Package files, directories, or globs")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error, silent")

	return cmd
}

// Register adds every subcommand to root
func Register(root *cobra.Command) {
	root.AddCommand(CheckCmd())
	root.AddCommand(ValidateCmd())
	root.AddCommand(UnifyCmd())
	root.AddCommand(TransitionsCmd())
	root.AddCommand(MatrixCmd())
	root.AddCommand(DriftCmd())
	root.AddCommand(ConsoleCmd())
	root.AddCommand(ServeCmd())
	root.AddCommand(VersionCmd())
}

// currentConfig decodes the settings prepared by the root command
func currentConfig() (*config.Config, error) {
	if settings == nil {
		settings = config.New(cfgFile)
	}
	return config.Load(settings)
}
