package alerts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/brandradar/brandradar/internal/config"
	"github.com/brandradar/brandradar/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	spikeWindow    = time.Hour
	baselineWindow = 7 * 24 * time.Hour
	negativeWindow = 24 * time.Hour
)

// AlertStore is the persistence the evaluator needs
type AlertStore interface {
	CountMentions(ctx context.Context, brandID int64, from, to time.Time) (int, error)
	CountMentionsBySentiment(ctx context.Context, brandID int64, from, to time.Time) (map[models.SentimentLabel]int, error)
	CreateAlertIfAbsent(ctx context.Context, alert models.Alert) (models.Alert, bool, error)
}

// Thresholds configure the alert checks
type Thresholds struct {
	SpikeMode       string
	SpikeThreshold  float64
	SpikeMultiplier float64
	NegativeRatio   float64
}

// ThresholdsFromConfig maps the alert settings of cfg
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		SpikeMode:       cfg.SpikeMode,
		SpikeThreshold:  cfg.SpikeThreshold,
		SpikeMultiplier: cfg.SpikeMultiplier,
		NegativeRatio:   cfg.NegativeRatioThreshold,
	}
}

// DefaultThresholds returns the adaptive spike check with a floor of 5 and a
// negative ratio of 0.5.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SpikeMode:       config.SpikeAdaptive,
		SpikeThreshold:  5,
		SpikeMultiplier: 2,
		NegativeRatio:   0.5,
	}
}

// Evaluator raises spike and negative-sentiment alerts for a brand
type Evaluator struct {
	store      AlertStore
	thresholds Thresholds
	now        func() time.Time
}

// NewEvaluator creates an evaluator
func NewEvaluator(store AlertStore, thresholds Thresholds) *Evaluator {
	return &Evaluator{
		store:      store,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Evaluate runs every check for brand and returns the alerts it newly raised.
// An already active alert of the same kind is left untouched and not returned.
func (e *Evaluator) Evaluate(ctx context.Context, brand models.Brand) ([]models.Alert, error) {
	now := e.now()
	var raised []models.Alert
	var errs []error

	if alert, ok, err := e.checkSpike(ctx, brand, now); err != nil {
		errs = append(errs, err)
	} else if ok {
		raised = append(raised, alert)
	}

	if alert, ok, err := e.checkNegative(ctx, brand, now); err != nil {
		errs = append(errs, err)
	} else if ok {
		raised = append(raised, alert)
	}

	return raised, errors.Join(errs...)
}

// SpikeThreshold returns the mention count the trailing hour must exceed.
func (e *Evaluator) SpikeThreshold(ctx context.Context, brand models.Brand, now time.Time) (float64, error) {
	if e.thresholds.SpikeMode != config.SpikeAdaptive {
		return e.thresholds.SpikeThreshold, nil
	}

	baselineEnd := now.Add(-spikeWindow)
	count, err := e.store.CountMentions(ctx, brand.ID, baselineEnd.Add(-baselineWindow), baselineEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to count baseline mentions: %w", err)
	}

	hourly := float64(count) / baselineWindow.Hours()
	return math.Max(e.thresholds.SpikeThreshold, hourly*e.thresholds.SpikeMultiplier), nil
}

func (e *Evaluator) checkSpike(ctx context.Context, brand models.Brand, now time.Time) (models.Alert, bool, error) {
	recent, err := e.store.CountMentions(ctx, brand.ID, now.Add(-spikeWindow), now)
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("spike check for %s: %w", brand.Name, err)
	}

	threshold, err := e.SpikeThreshold(ctx, brand, now)
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("spike check for %s: %w", brand.Name, err)
	}

	if float64(recent) <= threshold {
		return models.Alert{}, false, nil
	}

	return e.raise(ctx, brand, models.Alert{
		BrandID:   brand.ID,
		Kind:      models.AlertSpike,
		Message:   fmt.Sprintf("Mention spike detected for %s: %d mentions in the last hour (threshold %.1f)", brand.Name, recent, threshold),
		Threshold: threshold,
		Current:   float64(recent),
		CreatedAt: now,
	})
}

func (e *Evaluator) checkNegative(ctx context.Context, brand models.Brand, now time.Time) (models.Alert, bool, error) {
	counts, err := e.store.CountMentionsBySentiment(ctx, brand.ID, now.Add(-negativeWindow), now)
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("negative check for %s: %w", brand.Name, err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return models.Alert{}, false, nil
	}

	ratio := float64(counts[models.SentimentNegative]) / float64(total)
	if ratio <= e.thresholds.NegativeRatio {
		return models.Alert{}, false, nil
	}

	return e.raise(ctx, brand, models.Alert{
		BrandID:   brand.ID,
		Kind:      models.AlertNegative,
		Message:   fmt.Sprintf("High negative sentiment for %s: %.1f%% of %d mentions in the last 24 hours", brand.Name, ratio*100, total),
		Threshold: e.thresholds.NegativeRatio,
		Current:   ratio,
		CreatedAt: now,
	})
}

func (e *Evaluator) raise(ctx context.Context, brand models.Brand, alert models.Alert) (models.Alert, bool, error) {
	stored, created, err := e.store.CreateAlertIfAbsent(ctx, alert)
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("failed to create %s alert for %s: %w", alert.Kind, brand.Name, err)
	}

	log := logrus.WithFields(logrus.Fields{"brand": brand.Name, "alert_type": alert.Kind})
	if !created {
		log.Debugf("Alert already active (id %d)", stored.ID)
		return models.Alert{}, false, nil
	}

	log.Warn(stored.Message)
	return stored, true, nil
}
