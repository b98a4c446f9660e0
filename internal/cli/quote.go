package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"StockDashboard/internal/collector"
	"StockDashboard/internal/view"
)

func newQuoteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <SYMBOL>",
		Short: "Print the latest quote for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fetcher, err := newFetcher(opts.cfg)
			if err != nil {
				return err
			}
			q, err := fetcher.FetchQuote(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), view.Notice(collector.NormalizeSymbol(args[0]), err))
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), view.FormatQuote(q))
			return nil
		},
	}
}
