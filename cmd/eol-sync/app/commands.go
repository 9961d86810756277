// Package app provides the entry point for the EOL sync application.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/eol-sync/internal/config"
	"github.com/stacklok/eol-sync/internal/versions"
)

// Viper keys for flags that are not part of the config file
const (
	keyConfig  = "config"
	keyDataDir = "dataDir"
	keyAddress = "address"
)

// NewRootCmd creates a new root command for the EOL sync service.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:               "eol-sync",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Sync end-of-life framework counts into the service catalog",
		Long: `eol-sync reads service and framework entities from the catalog, counts how many
end-of-life frameworks each service uses and writes that count back onto the service.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to configuration file (YAML format)")
	flags.String("data-dir", "", "Directory for the persisted sync status (in memory when empty)")
	flags.Bool("dry-run", false, "Compute EOL counts without updating any service")
	flags.String("failure-policy", "", "What to do when a service update fails (abort or continue)")

	bindFlag(v, keyConfig, flags.Lookup("config"))
	bindFlag(v, keyDataDir, flags.Lookup("data-dir"))
	bindFlag(v, "sync.dryRun", flags.Lookup("dry-run"))
	bindFlag(v, "sync.failurePolicy", flags.Lookup("failure-policy"))

	if err := config.BindEnv(v); err != nil {
		slog.Error("Error binding environment", "error", err)
	}
	if err := v.BindEnv(keyConfig, config.EnvPrefix+"_CONFIG"); err != nil {
		slog.Error("Error binding environment", "key", keyConfig, "error", err)
	}
	if err := v.BindEnv(keyDataDir, config.EnvPrefix+"_DATA_DIR"); err != nil {
		slog.Error("Error binding environment", "key", keyDataDir, "error", err)
	}

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newRunCmd(v))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("error retrieving format flag: %w", err)
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("error formatting version info as JSON: %w", err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return nil
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "eol-sync %s (commit %s, built %s, %s %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return nil
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
