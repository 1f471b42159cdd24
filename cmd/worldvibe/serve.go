package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackcurious/worldvibe-sub000/internal/app"
	"github.com/stackcurious/worldvibe-sub000/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the HTTP API and its background maintenance (cache sweeps,
idempotency key purges). SIGINT or SIGTERM triggers a graceful shutdown:
in-flight requests finish, buffered analytics points are flushed and
broker connections are closed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, lg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, Version)
		if err != nil {
			lg.Warn().Err(err).Msg("tracing disabled")
			shutdownOTel = func(context.Context) error { return nil }
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownOTel(sctx); err != nil {
				lg.Error().Err(err).Msg("tracer shutdown")
			}
		}()

		a, err := app.New(ctx, cfg, lg)
		if err != nil {
			return err
		}
		if err := a.Run(ctx); err != nil {
			return err
		}
		lg.Info().Msg("worldvibe stopped cleanly")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
