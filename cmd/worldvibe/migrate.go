package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackcurious/worldvibe-sub000/internal/app"
)

var migrateTimeout time.Duration

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Applies the durable store schema (check-ins, idempotency keys, analytics
points and the SQL cache tables) to DB_PATH and, when TIMESERIES_DSN is set,
creates the time-series table (a hypertable on TimescaleDB).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, lg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
		defer cancel()
		return app.Migrate(ctx, cfg, lg)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().DurationVar(&migrateTimeout, "timeout", time.Minute, "overall migration timeout")
}
