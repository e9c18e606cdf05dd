package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openmantle/openmantle/pkg/policy"
	"github.com/openmantle/openmantle/pkg/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate an ingestion configuration",
		Long: `Validate an ingestion configuration without touching the catalog.

This command checks:
  - YAML or CUE syntax
  - Schema conformance and cross-field rules
  - Environment variable references resolve
  - Rego policies compile (when policy evaluation is enabled)`,
		Example: `  # Validate a config
  mantle validate --config ingest.yaml

  # Same, as a positional argument
  mantle validate ingest.yaml

  # Machine-readable result on stdout
  mantle validate ingest.yaml --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) > 0 {
				configPath = args[0]
			}

			log.Info().Str("config", configPath).Msg("Validating configuration")

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			policies := 0
			if cfg.Policy != nil && cfg.Policy.Enabled {
				gate, err := policy.NewEngine(*cfg.Policy, telemetry.Nop())
				if err != nil {
					return err
				}
				policies = len(gate.Policies())
			}

			if jsonOutput {
				out := map[string]interface{}{
					"valid":    true,
					"name":     cfg.Metadata.Name,
					"entities": len(cfg.Entities),
					"sources":  len(cfg.Sources),
					"policies": policies,
				}
				encoded, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, string(encoded))
				return nil
			}

			fmt.Printf("Configuration valid: %s (%d entities, %d sources, %d policies)\n",
				cfg.Metadata.Name, len(cfg.Entities), len(cfg.Sources), policies)
			return nil
		},
	}

	return cmd
}
