package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute an ingestion run",
		Long: `Execute one ingestion run against the configured catalog.

This command:
  - Loads and validates the ingestion configuration
  - Expands discovery sources into entity declarations
  - Evaluates Rego policies over the batch
  - Resolves dependencies and executes entities in order
  - Records the run in the audit store`,
		Example: `  # Run an ingestion
  mantle run --config ingest.yaml

  # Preview without writing to the catalog
  mantle run --config ingest.yaml --dry-run

  # Machine-readable summary on stdout
  mantle run --config ingest.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().
				Str("config", configPath).
				Bool("dry_run", dryRun).
				Msg("Starting ingestion run")

			rt, err := buildRuntime(ctx, runtimeOptions{trigger: "manual", forceDryRun: dryRun})
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if err := rt.client.Ping(ctx); err != nil {
				return fmt.Errorf("catalog is unreachable: %w", err)
			}

			summary, runErr := rt.engine.Run(ctx)
			rt.pruneHistory(ctx)
			if runErr != nil {
				return runErr
			}

			if jsonOutput {
				encoded, err := json.MarshalIndent(summary, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, string(encoded))
			}

			if summary.Failed > 0 {
				return fmt.Errorf("run completed with %d failed entities", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview operations without writing to the catalog")

	return cmd
}
