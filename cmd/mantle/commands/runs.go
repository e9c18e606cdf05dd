package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/openmantle/openmantle/pkg/stores"
	"github.com/spf13/cobra"
)

func newRunsCommand() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show ingestion run history",
		Long: `Show run history from the audit store.

Without arguments, lists the most recent runs. With a run ID, shows the
run together with its per-entity outcomes. A run stuck in "running"
never completed and was interrupted.

The store location comes from --db, or audit.path in the configuration
named by --config, or ./mantle_audit.db.`,
		Example: `  # List recent runs
  mantle runs --config ingest.yaml

  # Inspect one run
  mantle runs 4f6b2c1e-8d3a-4f4b-9c7d-2f1e6a5b0c9d --config ingest.yaml

  # Point at the store directly
  mantle runs --db ./mantle_audit.db --limit 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			path, err := resolveStorePath(ctx, dbPath)
			if err != nil {
				return err
			}
			store, err := openStore(ctx, path)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return showRun(ctx, store, args[0])
			}
			return listRuns(ctx, store, limit)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "audit store path (overrides the config)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")

	return cmd
}

// resolveStorePath picks the audit store location: the --db override,
// then the config's audit path, then the default next to the cwd.
func resolveStorePath(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if configPath != "" {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return "", err
		}
		return cfg.Audit.Path, nil
	}
	return "mantle_audit.db", nil
}

func listRuns(ctx context.Context, store *stores.SQLiteStore, limit int) error {
	runs, err := store.ListRuns(ctx, limit, 0)
	if err != nil {
		return err
	}

	if jsonOutput {
		encoded, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(encoded))
		return nil
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %-9s  %-9s  %-19s  %9s  %5s %5s %5s\n",
		"RUN ID", "WORKFLOW", "STATUS", "TRIGGER", "STARTED", "DURATION", "OK", "FAIL", "SKIP")
	for _, run := range runs {
		fmt.Printf("%-36s  %-20s  %-9s  %-9s  %-19s  %9s  %5d %5d %5d\n",
			run.ID,
			truncate(run.Workflow, 20),
			string(run.Status),
			run.Trigger,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			runDuration(run),
			run.Succeeded,
			run.Failed,
			run.Skipped)
	}
	return nil
}

func showRun(ctx context.Context, store *stores.SQLiteStore, id string) error {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	outcomes, err := store.ListOutcomes(ctx, id)
	if err != nil {
		return err
	}

	if jsonOutput {
		encoded, err := json.MarshalIndent(map[string]interface{}{
			"run":      run,
			"outcomes": outcomes,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(encoded))
		return nil
	}

	status := string(run.Status)
	if run.DryRun {
		status += " (dry run)"
	}

	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  Workflow:   %s\n", run.Workflow)
	fmt.Printf("  Status:     %s\n", status)
	fmt.Printf("  Trigger:    %s\n", run.Trigger)
	fmt.Printf("  Started:    %s\n", run.StartedAt.Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Printf("  Completed:  %s (%s)\n", run.CompletedAt.Format(time.RFC3339), runDuration(run))
	}
	fmt.Printf("  Entities:   %d total, %d succeeded, %d failed, %d skipped\n",
		run.Total, run.Succeeded, run.Failed, run.Skipped)
	if run.Error != nil {
		fmt.Printf("  Error:      %s\n", *run.Error)
	}

	if len(outcomes) == 0 {
		return nil
	}

	fmt.Println("\nOutcomes:")
	for _, o := range outcomes {
		name := o.Fqn
		if name == "" {
			name = o.Identifier
		}
		fmt.Printf("  #%-3d %-9s %-7s %-18s %s (%dms)\n",
			o.Position, string(o.Status), o.Operation, o.EntityType, name, o.DurationMs)
		if o.Error != nil {
			fmt.Printf("       %s\n", *o.Error)
		}
	}
	return nil
}

func runDuration(run *stores.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
