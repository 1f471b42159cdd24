package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stackcurious/worldvibe-sub000/internal/config"
	"github.com/stackcurious/worldvibe-sub000/internal/sysutil"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var envFile string

var rootCmd = &cobra.Command{
	Use:     "worldvibe",
	Short:   "WorldVibe check-in API",
	Version: Version,
	Long: `worldvibe serves the WorldVibe API: one anonymous emotional check-in per
device per day, streaks, trending keywords and a live feed.

COMMANDS:
  serve     Start the HTTP API
  migrate   Create or update the database schema

Configuration is read from the environment; a .env file is loaded first
when present.

EXAMPLES:
  worldvibe serve
  LOG_PRETTY=1 worldvibe serve --env-file dev.env
  DB_PATH=/data/worldvibe.db worldvibe migrate
`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
}

// loadConfig loads the dotenv file (missing files are fine), reads the
// configuration and installs the global logger.
func loadConfig() (config.Config, zerolog.Logger, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return config.Config{}, zerolog.Nop(), fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	lg := sysutil.NewLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr, cfg.OTEL.ServiceName, Version)
	log.Logger = lg
	return cfg, lg, nil
}
