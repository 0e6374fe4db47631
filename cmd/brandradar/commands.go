package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brandradar/brandradar/internal/catalog"
	"github.com/brandradar/brandradar/internal/config"
	"github.com/brandradar/brandradar/internal/scheduler"
	"github.com/brandradar/brandradar/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logrus.Info("Starting BrandRadar")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.seedIfEmpty(ctx, cfg.BrandsFile); err != nil {
		return fmt.Errorf("failed to seed brands: %w", err)
	}

	schedulerService := scheduler.NewService(cfg, a.monitoring)
	if err := schedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer schedulerService.Stop()

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     server.New(a.store, a.monitoring).Handler(),
		ReadTimeout: 15 * time.Second,
		// POST /trigger runs a full cycle before responding
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
	return nil
}

func newMonitorCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run one monitoring cycle over all brands and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.monitoring.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), summary.String())
			for _, brand := range summary.Brands {
				line := fmt.Sprintf("  %-12s %3d new", brand.BrandName, brand.NewMentions)
				if len(brand.AlertsRaised) > 0 {
					line += fmt.Sprintf(", alerts: %v", brand.AlertsRaised)
				}
				if len(brand.FailedSources) > 0 {
					line += fmt.Sprintf(", failed sources: %v", brand.FailedSources)
				}
				if brand.Error != "" {
					line += ", error: " + brand.Error
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newSeedCmd(cfg *config.Config) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create or update the tracked brands from a catalog file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = cfg.BrandsFile
			}

			entries, err := catalog.Load(file)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := catalog.Seed(cmd.Context(), a.store, entries)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Setup complete! %d brands ready for monitoring (%d created, %d updated).\n",
				len(entries), result.Created, result.Updated)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "brand catalog YAML (default: BRANDS_FILE or the built-in catalog)")
	return cmd
}

func newCleanupCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete mentions and archived runs older than RETENTION_DAYS",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.monitoring.Cleanup(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d mentions and %d archived runs.\n", result.MentionsDeleted, result.RunsDeleted)
			return nil
		},
	}
}
