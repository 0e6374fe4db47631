package main

import (
	"fmt"
	"os"

	"github.com/brandradar/brandradar/internal/config"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "brandradar",
		Short:         "BrandRadar collects brand mentions, scores their sentiment and raises alerts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load environment variables from .env file if it exists
			if err := godotenv.Load(); err != nil {
				logrus.Debug("No .env file found, using environment variables")
			}

			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			*cfg = *loaded

			setupLogging(cfg)
			return nil
		},
	}
	cfg = &config.Config{}

	rootCmd.AddCommand(newServeCmd(cfg))
	rootCmd.AddCommand(newMonitorCmd(cfg))
	rootCmd.AddCommand(newSeedCmd(cfg))
	rootCmd.AddCommand(newCleanupCmd(cfg))

	return rootCmd
}

func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if cfg.Debug {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
}
