package main

import (
	"context"
	"fmt"

	"github.com/brandradar/brandradar/internal/alerts"
	"github.com/brandradar/brandradar/internal/catalog"
	"github.com/brandradar/brandradar/internal/config"
	"github.com/brandradar/brandradar/internal/ingest"
	"github.com/brandradar/brandradar/internal/monitoring"
	"github.com/brandradar/brandradar/internal/notifications"
	"github.com/brandradar/brandradar/internal/sources"
	"github.com/brandradar/brandradar/internal/storage"
	"github.com/sirupsen/logrus"
)

// app holds the wired components shared by the commands
type app struct {
	store      storage.Store
	monitoring *monitoring.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	var archive storage.Archive
	if cfg.StorageAccount != "" {
		blobArchive, err := storage.NewBlobArchive(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize run archive: %w", err)
		}
		archive = blobArchive
	} else {
		logrus.Info("AZURE_STORAGE_ACCOUNT not set, run archive disabled")
	}

	fetchers := sources.FromConfig(cfg)
	for _, f := range fetchers {
		logrus.WithFields(logrus.Fields{"source": f.Name(), "enabled": f.IsEnabled()}).Info("Registered source")
	}

	ingestor := ingest.NewIngestor(store, fetchers, nil, ingest.OptionsFromConfig(cfg))
	if cfg.AttributionPolicy == config.AttributionRandom {
		logrus.Warn("ATTRIBUTION_POLICY=random: unmatched items are assigned to a random brand")
	}
	evaluator := alerts.NewEvaluator(store, alerts.ThresholdsFromConfig(cfg))
	notifier := notifications.NewService(cfg)

	return &app{
		store:      store,
		monitoring: monitoring.NewService(cfg, store, ingestor, evaluator, notifier, archive),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logrus.Errorf("Failed to close store: %v", err)
	}
}

// seedIfEmpty loads the brand catalog when no brands exist yet
func (a *app) seedIfEmpty(ctx context.Context, brandsFile string) error {
	brands, err := a.store.ListBrands(ctx)
	if err != nil {
		return fmt.Errorf("failed to list brands: %w", err)
	}
	if len(brands) > 0 {
		return nil
	}

	entries, err := catalog.Load(brandsFile)
	if err != nil {
		return err
	}
	_, err = catalog.Seed(ctx, a.store, entries)
	return err
}
