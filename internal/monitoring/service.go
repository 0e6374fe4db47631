package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brandradar/brandradar/internal/config"
	"github.com/brandradar/brandradar/internal/ingest"
	"github.com/brandradar/brandradar/internal/models"
	"github.com/brandradar/brandradar/internal/notifications"
	"github.com/brandradar/brandradar/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is returned when Run is called while another run is active
var ErrRunInProgress = errors.New("monitoring run already in progress")

// ErrArchiveDisabled is returned by run history lookups without an archive
var ErrArchiveDisabled = errors.New("run archive not configured")

// ArchivePrefix is the blob prefix of archived run summaries
const ArchivePrefix = "runs/"

const runTimeLayout = "20060102T150405Z"

// Store is the persistence the monitoring service needs
type Store interface {
	ListBrands(ctx context.Context) ([]models.Brand, error)
	DeleteMentionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Ingester collects new mentions for one brand, attributing items across catalog
type Ingester interface {
	IngestBrand(ctx context.Context, brand models.Brand, catalog []models.Brand) (ingest.Result, error)
}

// Evaluator raises threshold alerts for one brand
type Evaluator interface {
	Evaluate(ctx context.Context, brand models.Brand) ([]models.Alert, error)
}

// Service runs monitoring cycles over every tracked brand
type Service struct {
	store     Store
	ingestor  Ingester
	evaluator Evaluator
	notifier  notifications.Notifier
	archive   storage.Archive

	workers      int
	brandTimeout time.Duration
	retention    time.Duration

	running     atomic.Bool
	metrics     *Metrics
	lastSummary *models.RunSummary
	mu          sync.RWMutex
	now         func() time.Time
}

// Metrics holds monitoring metrics
type Metrics struct {
	TotalRuns          int            `json:"total_runs"`
	LastRunID          string         `json:"last_run_id,omitempty"`
	LastRun            time.Time      `json:"last_run"`
	LastRunDuration    string         `json:"last_run_duration"`
	NewMentions        int            `json:"new_mentions"`
	AlertsRaised       int            `json:"alerts_raised"`
	SourceMetrics      map[string]int `json:"source_metrics"`
	SentimentBreakdown map[string]int `json:"sentiment_breakdown"`
	FailedSources      map[string]int `json:"failed_sources"`
	ErrorCount         int            `json:"error_count"`
}

// CleanupResult reports what a retention pass removed
type CleanupResult struct {
	MentionsDeleted int64 `json:"mentions_deleted"`
	RunsDeleted     int   `json:"runs_deleted"`
}

// NewService creates a monitoring service. notifier and archive may be nil.
func NewService(cfg *config.Config, store Store, ingestor Ingester, evaluator Evaluator, notifier notifications.Notifier, archive storage.Archive) *Service {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	return &Service{
		store:        store,
		ingestor:     ingestor,
		evaluator:    evaluator,
		notifier:     notifier,
		archive:      archive,
		workers:      workers,
		brandTimeout: cfg.BrandTimeout,
		retention:    time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		metrics:      newMetrics(),
		now:          time.Now,
	}
}

func newMetrics() *Metrics {
	return &Metrics{
		SourceMetrics:      make(map[string]int),
		SentimentBreakdown: make(map[string]int),
		FailedSources:      make(map[string]int),
	}
}

// brandOutcome is what one brand contributed to a run
type brandOutcome struct {
	result models.BrandResult
	ingest ingest.Result
	alerts []models.Alert
}

// Run performs one monitoring cycle. Brand failures are recorded in the
// summary; only listing brands fails the run.
func (s *Service) Run(ctx context.Context) (*models.RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	start := s.now()
	runID := uuid.NewString()
	log := logrus.WithField("run_id", runID)
	log.Info("Starting monitoring run")

	brands, err := s.store.ListBrands(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	log.Infof("Monitoring %d brands with %d workers", len(brands), s.workers)

	outcomes := make([]brandOutcome, len(brands))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, brand := range brands {
		i, brand := i, brand
		g.Go(func() error {
			outcomes[i] = s.processBrand(ctx, brand, brands)
			return nil
		})
	}
	_ = g.Wait()

	finished := s.now()
	summary := &models.RunSummary{
		RunID:      runID,
		StartedAt:  start,
		FinishedAt: finished,
		Duration:   finished.Sub(start).String(),
		Brands:     make([]models.BrandResult, 0, len(brands)),
	}
	for _, outcome := range outcomes {
		summary.Brands = append(summary.Brands, outcome.result)
		summary.NewMentions += outcome.result.NewMentions
		summary.Alerts = append(summary.Alerts, outcome.alerts...)
		if outcome.result.Error != "" {
			summary.BrandsFailed++
		}
	}

	s.updateMetrics(summary, outcomes)

	if s.notifier != nil && s.notifier.IsEnabled() && len(summary.Alerts) > 0 {
		if err := s.notifier.SendRunReport(ctx, summary); err != nil {
			log.Errorf("Failed to send alert notifications: %v", err)
		}
	}

	if s.archive != nil {
		if err := s.archiveSummary(ctx, summary); err != nil {
			log.Errorf("Failed to archive run summary: %v", err)
		}
	}

	log.Info(summary.String())
	return summary, nil
}

// processBrand ingests then evaluates one brand. Evaluation runs even when
// ingestion failed so alerts still reflect the mentions already stored.
func (s *Service) processBrand(ctx context.Context, brand models.Brand, catalog []models.Brand) (outcome brandOutcome) {
	outcome.result = models.BrandResult{BrandID: brand.ID, BrandName: brand.Name}
	log := logrus.WithField("brand", brand.Name)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Brand processing panicked: %v", r)
			outcome.result.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	if s.brandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.brandTimeout)
		defer cancel()
	}

	var errs []error
	result, err := s.ingestor.IngestBrand(ctx, brand, catalog)
	outcome.ingest = result
	outcome.result.NewMentions = result.Created
	outcome.result.FailedSources = result.FailedSources
	if err != nil {
		log.Errorf("Ingestion failed: %v", err)
		errs = append(errs, fmt.Errorf("ingest: %w", err))
	} else {
		log.Infof("Saved %d new mentions", result.Created)
	}

	alerts, err := s.evaluator.Evaluate(ctx, brand)
	outcome.alerts = alerts
	for _, alert := range alerts {
		outcome.result.AlertsRaised = append(outcome.result.AlertsRaised, alert.Kind)
	}
	if err != nil {
		log.Errorf("Alert evaluation failed: %v", err)
		errs = append(errs, fmt.Errorf("evaluate: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		outcome.result.Error = err.Error()
	}
	return outcome
}

func (s *Service) updateMetrics(summary *models.RunSummary, outcomes []brandOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.TotalRuns++
	s.metrics.LastRunID = summary.RunID
	s.metrics.LastRun = summary.FinishedAt
	s.metrics.LastRunDuration = summary.Duration
	s.metrics.NewMentions = summary.NewMentions
	s.metrics.AlertsRaised = len(summary.Alerts)
	s.metrics.ErrorCount = summary.BrandsFailed

	// Reset counters
	s.metrics.SourceMetrics = make(map[string]int)
	s.metrics.SentimentBreakdown = make(map[string]int)
	s.metrics.FailedSources = make(map[string]int)

	for _, outcome := range outcomes {
		for source, n := range outcome.ingest.BySource {
			s.metrics.SourceMetrics[source] += n
		}
		for label, n := range outcome.ingest.BySentiment {
			s.metrics.SentimentBreakdown[string(label)] += n
		}
		for _, source := range outcome.ingest.FailedSources {
			s.metrics.FailedSources[source]++
		}
	}

	s.lastSummary = summary
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}

// LastSummary returns the summary of the most recent run, or nil
func (s *Service) LastSummary() *models.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSummary
}

// Running reports whether a run is in progress
func (s *Service) Running() bool {
	return s.running.Load()
}

func archiveName(summary *models.RunSummary) string {
	return fmt.Sprintf("%s%s-%s.json", ArchivePrefix, summary.StartedAt.UTC().Format(runTimeLayout), summary.RunID)
}

// archiveTime extracts the run start time encoded in an archive name
func archiveTime(name string) (time.Time, bool) {
	base := strings.TrimPrefix(name, ArchivePrefix)
	if len(base) < len(runTimeLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(runTimeLayout, base[:len(runTimeLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (s *Service) archiveSummary(ctx context.Context, summary *models.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	return s.archive.Store(ctx, archiveName(summary), data)
}

// ListRuns returns the archived run names, newest first
func (s *Service) ListRuns(ctx context.Context) ([]string, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}

	names, err := s.archive.List(ctx, ArchivePrefix)
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// GetRun loads one archived run summary
func (s *Service) GetRun(ctx context.Context, name string) (*models.RunSummary, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	if !strings.HasPrefix(name, ArchivePrefix) {
		name = ArchivePrefix + name
	}

	data, err := s.archive.Retrieve(ctx, name)
	if err != nil {
		return nil, err
	}

	var summary models.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode run summary %s: %w", name, err)
	}
	return &summary, nil
}

// Cleanup deletes mentions and archived runs older than the retention period.
func (s *Service) Cleanup(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	if s.retention <= 0 {
		logrus.Info("Retention disabled, skipping cleanup")
		return result, nil
	}

	cutoff := s.now().Add(-s.retention)
	deleted, err := s.store.DeleteMentionsBefore(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to delete old mentions: %w", err)
	}
	result.MentionsDeleted = deleted

	if s.archive != nil {
		names, err := s.archive.List(ctx, ArchivePrefix)
		if err != nil {
			return result, fmt.Errorf("failed to list archived runs: %w", err)
		}

		var errs []error
		for _, name := range names {
			started, ok := archiveTime(name)
			if !ok || !started.Before(cutoff) {
				continue
			}
			if err := s.archive.Delete(ctx, name); err != nil {
				errs = append(errs, err)
				continue
			}
			result.RunsDeleted++
		}
		if err := errors.Join(errs...); err != nil {
			return result, fmt.Errorf("failed to delete archived runs: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"mentions_deleted": result.MentionsDeleted,
		"runs_deleted":     result.RunsDeleted,
		"cutoff":           cutoff.Format(time.RFC3339),
	}).Info("Retention cleanup finished")
	return result, nil
}
