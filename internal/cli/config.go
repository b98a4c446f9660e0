package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"StockDashboard/internal/config"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage the dashboard configuration file.

Subcommands:
  init     - Write a default configuration file
  validate - Load and validate the configuration file

Examples:
  dashboard config init -o configs/config.yaml
  dashboard config validate -c configs/config.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		// defaults only, the existing file is not read
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = opts.configPath
			}
			if err := config.Default().Save(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created default configuration: %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "", "output path (default --config)")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			c := opts.cfg
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK: %s\n", opts.configPath)
			fmt.Fprintf(cmd.OutOrStdout(), "  provider: %s\n  symbol:   %s\n  refresh:  %ds\n",
				c.DataSource.Provider, c.Dashboard.Symbol, c.Dashboard.RefreshSeconds)
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
