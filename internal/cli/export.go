package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"StockDashboard/internal/dashboard"
	"StockDashboard/internal/model"
	"StockDashboard/internal/view"
)

type exportFlags struct {
	output    string
	start     string
	end       string
	sma       bool
	ema       bool
	smaWindow int
	emaWindow int
}

func newExportCmd(opts *options) *cobra.Command {
	f := &exportFlags{}

	cmd := &cobra.Command{
		Use:   "export <SYMBOL>",
		Short: "Fetch a symbol, print its summary and write the CSV export",
		Long: `Fetch daily bars for SYMBOL, compute the enabled moving averages and
write the full series to <SYMBOL>_data.csv (or --output).

Examples:
  dashboard export AAPL
  dashboard export MSFT --start 2024-01-01 --end 2024-06-30 --ema --ema-window 50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, f, args[0])
		},
	}

	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file (default <SYMBOL>_data.csv)")
	cmd.Flags().StringVar(&f.start, "start", "", "first day, YYYY-MM-DD (default end minus lookback)")
	cmd.Flags().StringVar(&f.end, "end", "", "last day, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&f.sma, "sma", true, "include the simple moving average")
	cmd.Flags().BoolVar(&f.ema, "ema", false, "include the exponential moving average")
	cmd.Flags().IntVar(&f.smaWindow, "sma-window", 0, "SMA window (default from config)")
	cmd.Flags().IntVar(&f.emaWindow, "ema-window", 0, "EMA window (default from config)")
	return cmd
}

func (f *exportFlags) params(cfg dashboard.Params, symbol string) (dashboard.Params, error) {
	p := cfg
	p.Symbol = symbol
	p.ShowSMA = f.sma
	p.ShowEMA = f.ema
	if f.smaWindow > 0 {
		p.SMAWindow = f.smaWindow
	}
	if f.emaWindow > 0 {
		p.EMAWindow = f.emaWindow
	}

	var err error
	if f.end != "" {
		if p.End, err = time.Parse(model.DateLayout, f.end); err != nil {
			return p, fmt.Errorf("invalid --end: %w", err)
		}
		if f.start == "" {
			p.Start = p.End.Add(-cfg.End.Sub(cfg.Start))
		}
	}
	if f.start != "" {
		if p.Start, err = time.Parse(model.DateLayout, f.start); err != nil {
			return p, fmt.Errorf("invalid --start: %w", err)
		}
	}
	return p.Normalize(), nil
}

func runExport(cmd *cobra.Command, opts *options, f *exportFlags, symbol string) error {
	cfg := opts.cfg
	fetcher, err := newFetcher(cfg)
	if err != nil {
		return err
	}

	p, err := f.params(dashboard.DefaultParams(cfg.Dashboard, time.Now()), symbol)
	if err != nil {
		return err
	}

	svc := dashboard.NewService(fetcher, cfg.Dashboard.SummaryRows, cfg.Dashboard.TableRows)
	res, err := svc.Run(context.Background(), p)
	if err != nil {
		if res != nil && res.Notice != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), res.Notice)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if res.Quote != nil {
		fmt.Fprint(out, view.FormatQuote(res.Quote))
		fmt.Fprintln(out)
	}
	fmt.Fprint(out, view.FormatSummary(res.Bundle))

	if len(res.Bundle.Primary.Points) == 0 {
		return nil
	}
	path := f.output
	if path == "" {
		path = res.Bundle.Export.Filename
	}
	if err := os.WriteFile(path, res.Bundle.Export.Data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(out, "\nWrote %d rows to %s\n", len(res.Bundle.Primary.Points), path)
	return nil
}
