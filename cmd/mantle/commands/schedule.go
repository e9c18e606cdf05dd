package commands

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newScheduleCommand() *cobra.Command {
	var (
		cronSpec  string
		immediate bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run ingestion on a cron schedule",
		Long: `Run ingestion repeatedly on a cron schedule.

The scheduler:
  - Triggers a run on each cron tick, skipping ticks while a run is active
  - Serves Prometheus metrics when the metrics endpoint is enabled
  - Hot-reloads Rego policies when policy files change
  - Prunes run history to the configured retention after each run

The schedule comes from schedule.cron in the configuration, or --cron.
Runs until interrupted.`,
		Example: `  # Recurring ingestion per the config's schedule block
  mantle schedule --config ingest.yaml

  # Override the schedule
  mantle schedule --config ingest.yaml --cron "*/15 * * * *"

  # Run once immediately, then on schedule
  mantle schedule --config ingest.yaml --immediate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := buildRuntime(ctx, runtimeOptions{trigger: "scheduled"})
			if err != nil {
				return err
			}
			// Teardown still flushes after the interrupt cancels ctx.
			defer rt.Close(context.WithoutCancel(ctx))

			spec := cronSpec
			if spec == "" && rt.cfg.Schedule != nil {
				spec = rt.cfg.Schedule.Cron
			}
			if spec == "" {
				return fmt.Errorf("no schedule configured (set schedule.cron or pass --cron)")
			}

			if err := rt.client.Ping(ctx); err != nil {
				return fmt.Errorf("catalog is unreachable: %w", err)
			}

			if rt.tel.Config.Metrics.Enabled {
				if err := rt.tel.StartMetricsServer(); err != nil {
					return fmt.Errorf("failed to start metrics endpoint: %w", err)
				}
				log.Info().
					Str("address", rt.tel.Config.Metrics.ListenAddress).
					Msg("Metrics endpoint started")
			}

			if rt.gate != nil {
				if err := rt.gate.Watch(); err != nil {
					return fmt.Errorf("failed to watch policy paths: %w", err)
				}
			}

			// One run at a time. A tick that lands mid-run is skipped.
			running := make(chan struct{}, 1)
			runOnce := func() {
				select {
				case running <- struct{}{}:
				default:
					log.Warn().Msg("Previous run still active, skipping this tick")
					return
				}
				defer func() { <-running }()

				summary, err := rt.engine.Run(ctx)
				rt.pruneHistory(ctx)
				switch {
				case err != nil:
					log.Error().Err(err).Msg("Scheduled run failed")
				case summary.Failed > 0:
					log.Warn().
						Int("failed", summary.Failed).
						Msg("Scheduled run completed with failures")
				}
			}

			scheduler := cron.New()
			if _, err := scheduler.AddFunc(spec, runOnce); err != nil {
				return fmt.Errorf("invalid cron expression %q: %w", spec, err)
			}

			scheduler.Start()
			log.Info().Str("cron", spec).Msg("Scheduler started")

			if immediate {
				runOnce()
			}

			<-ctx.Done()
			log.Info().Msg("Stopping scheduler")

			// Wait for an in-flight run to finish before tearing down.
			<-scheduler.Stop().Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&cronSpec, "cron", "", "cron expression override")
	cmd.Flags().BoolVar(&immediate, "immediate", false, "run once immediately, then on schedule")

	return cmd
}
