package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"StockDashboard/internal/dashboard"
	"StockDashboard/internal/scheduler"
	"StockDashboard/internal/server"
)

func newServeCmd(opts *options) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and refresh feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				opts.cfg.Server.Port = port
			}
			return runServe(opts)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

func runServe(opts *options) error {
	cfg := opts.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.With().Str("component", "main").Logger()
	logger.Info().Msg("dashboard starting")

	fetcher, err := newFetcher(cfg)
	if err != nil {
		return err
	}
	logger.Info().Str("provider", fetcher.Name()).Msg("data source ready")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := dashboard.NewService(fetcher, cfg.Dashboard.SummaryRows, cfg.Dashboard.TableRows)
	hub := server.NewHub()

	var gate scheduler.MarketGate
	if cfg.Schedule.MarketHoursOnly {
		gate = scheduler.NewCalendarGate()
	}
	refresher := scheduler.NewRefresher(ctx, svc, hub.Publish, gate)
	refresher.SetParams(dashboard.DefaultParams(cfg.Dashboard, time.Now()), true)
	if err := refresher.SetInterval(cfg.Dashboard.RefreshSeconds); err != nil {
		return err
	}
	refresher.Start()
	defer refresher.Stop()

	srv := server.New(server.Deps{
		Config:    cfg,
		Runner:    svc,
		Fetcher:   fetcher,
		Refresher: refresher,
		Hub:       hub,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	// Prime the hub so the first websocket client gets data immediately.
	go func() { _, _ = refresher.RunNow() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received, stopping...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server shutdown")
	}
	cancel()
	logger.Info().Msg("dashboard stopped")
	return nil
}
