package commands

import (
	"encoding/json"
	"fmt"
	"os"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Example: `  # Human-readable version
  mantle version

  # Machine-readable version on stdout
  mantle version --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput {
				out := map[string]string{
					"version":    buildVersion,
					"commit":     buildCommit,
					"build_date": buildDate,
					"go_version": goruntime.Version(),
					"platform":   goruntime.GOOS + "/" + goruntime.GOARCH,
				}
				encoded, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, string(encoded))
				return nil
			}

			fmt.Printf("mantle %s\n", buildVersion)
			fmt.Printf("  commit:     %s\n", buildCommit)
			fmt.Printf("  built:      %s\n", buildDate)
			fmt.Printf("  go version: %s\n", goruntime.Version())
			fmt.Printf("  platform:   %s/%s\n", goruntime.GOOS, goruntime.GOARCH)
			return nil
		},
	}

	return cmd
}
