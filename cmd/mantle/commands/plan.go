package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openmantle/openmantle/pkg/engine"
	"github.com/spf13/cobra"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview an ingestion run",
		Long: `Preview the operations an ingestion run would perform.

Planning runs the full pipeline in dry-run mode: discovery expansion,
policy evaluation, dependency ordering, and idempotency decisions all
use live catalog reads, but nothing is written.

Operations are marked:
  + create    entity does not exist in the catalog
  ~ update    entity exists and would be updated
  = skip      entity exists and idempotency leaves it untouched
  ! failed    entity could not be planned`,
		Example: `  # Preview against the live catalog
  mantle plan --config ingest.yaml

  # Machine-readable plan on stdout
  mantle plan --config ingest.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := buildRuntime(ctx, runtimeOptions{trigger: "manual", forceDryRun: true})
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
				return nil
			}

			printPlan(summary)
			if summary.Failed > 0 {
				return fmt.Errorf("plan completed with %d failed entities", summary.Failed)
			}
			return nil
		},
	}

	return cmd
}

// printPlan renders the per-entity operations and a one-line rollup.
func printPlan(summary *engine.IngestionSummary) {
	var create, update, skip int
	for _, r := range summary.Results {
		marker := "!"
		switch {
		case !r.Success:
		case r.Operation == engine.OperationCreate:
			marker = "+"
			create++
		case r.Operation == engine.OperationUpdate:
			marker = "~"
			update++
		default:
			marker = "="
			skip++
		}
		name := r.Fqn
		if name == "" {
			name = r.Name
		}
		fmt.Printf("  %s %-18s %s\n", marker, r.EntityType, name)
	}

	fmt.Printf("\nPlan: %d to create, %d to update, %d unchanged", create, update, skip)
	if summary.Failed > 0 {
		fmt.Printf(", %d failed", summary.Failed)
	}
	fmt.Println()
}
