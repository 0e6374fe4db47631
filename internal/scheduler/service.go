package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brandradar/brandradar/internal/config"
	"github.com/brandradar/brandradar/internal/models"
	"github.com/brandradar/brandradar/internal/monitoring"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	runTimeout     = 30 * time.Minute
	cleanupTimeout = 10 * time.Minute
)

// Runner is the work the scheduler triggers
type Runner interface {
	Run(ctx context.Context) (*models.RunSummary, error)
	Cleanup(ctx context.Context) (monitoring.CleanupResult, error)
}

// Service handles scheduling of monitoring runs and retention cleanup
type Service struct {
	monitorSchedule string
	cleanupSchedule string
	runner          Runner
	cron            *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, runner Runner) *Service {
	return &Service{
		monitorSchedule: cfg.MonitorSchedule,
		cleanupSchedule: cfg.CleanupSchedule,
		runner:          runner,
		cron:            cron.New(cron.WithSeconds()),
	}
}

// Start registers both jobs and starts the cron loop
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.monitorSchedule, s.runMonitoring); err != nil {
		return fmt.Errorf("invalid monitor schedule %q: %w", s.monitorSchedule, err)
	}

	if s.cleanupSchedule != "" {
		if _, err := s.cron.AddFunc(s.cleanupSchedule, s.runCleanup); err != nil {
			return fmt.Errorf("invalid cleanup schedule %q: %w", s.cleanupSchedule, err)
		}
	}

	s.cron.Start()
	logrus.Infof("Scheduler started (monitor: %s, cleanup: %s)", s.monitorSchedule, s.cleanupSchedule)
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}

func (s *Service) runMonitoring() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	logrus.Info("Starting scheduled monitoring run")
	summary, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, monitoring.ErrRunInProgress):
		logrus.Warn("Previous monitoring run still in progress, skipping")
	case err != nil:
		logrus.Errorf("Scheduled monitoring run failed: %v", err)
	default:
		logrus.Infof("Scheduled monitoring run finished: %s", summary)
	}
}

func (s *Service) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	logrus.Info("Starting scheduled retention cleanup")
	if _, err := s.runner.Cleanup(ctx); err != nil {
		logrus.Errorf("Scheduled cleanup failed: %v", err)
	}
}
