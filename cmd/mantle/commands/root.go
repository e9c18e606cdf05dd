package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	// Build information, set by Execute
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	rootCmd := newRootCommand(version, commit, date)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mantle",
		Short: "OpenMantle - Metadata Catalog Ingestion Engine",
		Long: `OpenMantle ingests metadata entities into a metadata catalog from
declarative YAML or CUE configurations.

Features:
  - Declarative entity configs with env substitution
  - Discovery connectors (postgres, lake, sftpfs)
  - Dependency-ordered execution with idempotency modes
  - Dry-run planning against the live catalog
  - Rego policy gate (advisory or enforcing)
  - Run history in a local SQLite audit store
  - Cron-scheduled recurring runs`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newScheduleCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
