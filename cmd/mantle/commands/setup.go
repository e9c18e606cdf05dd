package commands

import (
	"context"
	"fmt"

	"github.com/openmantle/openmantle/pkg/catalog"
	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
	"github.com/openmantle/openmantle/pkg/entities"
	"github.com/openmantle/openmantle/pkg/policy"
	"github.com/openmantle/openmantle/pkg/sources"
	"github.com/openmantle/openmantle/pkg/stores"
	"github.com/openmantle/openmantle/pkg/telemetry"
	"github.com/rs/zerolog/log"
)

// loadConfig loads and validates the configuration named by --config.
func loadConfig(ctx context.Context) (*config.IngestionConfig, error) {
	if configPath == "" {
		return nil, fmt.Errorf("no configuration file specified (use --config)")
	}
	return config.NewLoader().Load(ctx, configPath)
}

// telemetryConfig maps the ingestion config's telemetry block onto the
// telemetry stack defaults. The --verbose flag wins over the configured
// log level.
func telemetryConfig(cfg *config.IngestionConfig) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = buildVersion

	if v := cfg.Telemetry.Logging.Level; v != "" {
		tc.Logging.Level = v
	}
	if verbose {
		tc.Logging.Level = "debug"
	}
	if v := cfg.Telemetry.Logging.Format; v != "" {
		tc.Logging.Format = v
	}

	tc.Tracing.Enabled = cfg.Telemetry.Tracing.Enabled
	if v := cfg.Telemetry.Tracing.Exporter; v != "" {
		tc.Tracing.Exporter = v
	}
	if v := cfg.Telemetry.Tracing.Endpoint; v != "" {
		tc.Tracing.Endpoint = v
	}
	if v := cfg.Telemetry.Tracing.SamplingRate; v > 0 {
		tc.Tracing.SamplingRate = v
	}

	tc.Metrics.Enabled = cfg.Telemetry.Metrics.Enabled
	if v := cfg.Telemetry.Metrics.ListenAddress; v != "" {
		tc.Metrics.ListenAddress = v
	}
	if v := cfg.Telemetry.Metrics.Namespace; v != "" {
		tc.Metrics.Namespace = v
	}

	return tc
}

// runtime bundles everything an ingestion run needs.
type runtime struct {
	cfg    *config.IngestionConfig
	tel    *telemetry.Telemetry
	client *catalog.Client
	store  *stores.SQLiteStore
	gate   *policy.Engine
	engine *engine.Engine
}

// runtimeOptions tweak runtime assembly per command.
type runtimeOptions struct {
	// trigger labels runs started by this runtime, "manual" or "scheduled".
	trigger string

	// forceDryRun previews operations regardless of the config.
	forceDryRun bool
}

// buildRuntime assembles the full ingestion stack from the loaded
// configuration: catalog client, handler and source registries, policy
// gate, audit store, and the engine wired over all of them.
func buildRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if opts.forceDryRun {
		cfg.Execution.DryRun = true
	}

	tel, err := telemetry.NewTelemetry(telemetryConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	rt := &runtime{cfg: cfg, tel: tel}

	client, err := catalog.NewClient(catalog.Options{
		Config:    cfg.Catalog,
		DryRun:    cfg.Execution.DryRun,
		Telemetry: tel,
	})
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.client = client

	engOpts := engine.Options{
		Config:    cfg,
		Client:    client,
		Handlers:  entities.NewRegistry(),
		Telemetry: tel,
		Trigger:   opts.trigger,
	}

	if len(cfg.Sources) > 0 {
		registry, err := sources.NewRegistry(cfg.Sources, tel)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		engOpts.Sources = registry
	}

	if cfg.Policy != nil && cfg.Policy.Enabled {
		gate, err := policy.NewEngine(*cfg.Policy, tel)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.gate = gate
		engOpts.Policy = gate
	}

	if cfg.Audit.Enabled {
		store, err := openStore(ctx, cfg.Audit.Path)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.store = store
		engOpts.Audit = store
	}

	eng, err := engine.New(engOpts)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	rt.engine = eng

	return rt, nil
}

// openStore opens, initializes, and migrates the audit store at path.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate audit store: %w", err)
	}
	return store, nil
}

// Close releases every component the runtime holds.
func (rt *runtime) Close(ctx context.Context) {
	if rt.gate != nil {
		if err := rt.gate.Stop(); err != nil {
			log.Debug().Err(err).Msg("Failed to stop policy engine")
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close audit store")
		}
	}
	if rt.client != nil {
		rt.client.Close()
	}
	if rt.tel != nil {
		if err := rt.tel.Shutdown(ctx); err != nil {
			log.Debug().Err(err).Msg("Failed to shut down telemetry")
		}
	}
}

// pruneHistory enforces the audit retention cap after a run.
func (rt *runtime) pruneHistory(ctx context.Context) {
	if rt.store == nil || rt.cfg.Audit.KeepRuns <= 0 {
		return
	}
	pruned, err := rt.store.PruneRuns(ctx, rt.cfg.Audit.KeepRuns)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to prune run history")
		return
	}
	if pruned > 0 {
		log.Debug().Int64("pruned", pruned).Msg("Pruned run history")
	}
}
