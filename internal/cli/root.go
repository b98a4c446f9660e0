// Package cli implements the dashboard command line.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"StockDashboard/internal/collector"
	"StockDashboard/internal/config"
	"StockDashboard/internal/logging"
)

const defaultConfigPath = "configs/config.yaml"

// options are shared by all subcommands.
type options struct {
	configPath string
	logLevel   string

	cfg *config.Config
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Stock price dashboard with moving average overlays",
		Long: `Dashboard fetches daily prices for a ticker, overlays simple and
exponential moving averages and serves the chart, a summary table and a CSV
export over HTTP.

Examples:
  dashboard serve
  dashboard export AAPL --ema -o aapl.csv
  dashboard quote MSFT`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	defaultPath := defaultConfigPath
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultPath, "path to config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newExportCmd(opts),
		newQuoteCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *options) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogPretty); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// newFetcher builds the configured provider wrapped in a Collector.
func newFetcher(cfg *config.Config) (*collector.Collector, error) {
	ds := cfg.DataSource
	var fetcher collector.Fetcher
	switch ds.Provider {
	case config.ProviderYahoo, "":
		yf := collector.NewYahooFetcher(ds.BaseURL, cfg.Proxy, time.Duration(ds.TimeoutSeconds)*time.Second)
		yf.Retry.MaxRetries = uint64(ds.MaxRetries)
		fetcher = yf
	case config.ProviderAlpaca:
		fetcher = collector.NewAlpacaFetcher(ds.APIKey, ds.APISecret, ds.BaseURL, ds.Feed)
	case config.ProviderMock:
		fetcher = &collector.MockFetcher{Price: 150}
	default:
		return nil, fmt.Errorf("unknown data provider %q", ds.Provider)
	}
	return collector.NewCollector(fetcher), nil
}
