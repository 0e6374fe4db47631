package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/brandradar/brandradar/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Listing limits
const (
	MaxMentionResults = 100
	MaxAlertResults   = 20
	MaxTopicResults   = 10
)

// Store defines the relational persistence used by ingestion, alerting and
// the read API. Uniqueness of mentions and active alerts is enforced by the
// database, so concurrent writers never produce duplicates.
type Store interface {
	ListBrands(ctx context.Context) ([]models.Brand, error)
	GetBrand(ctx context.Context, id int64) (models.Brand, error)
	// UpsertBrand creates the brand or replaces the keywords of the brand
	// with the same name. It reports whether a row was created.
	UpsertBrand(ctx context.Context, brand models.Brand) (models.Brand, bool, error)

	// InsertMention stores m unless (source, source_id) already exists.
	InsertMention(ctx context.Context, m models.Mention) (bool, error)
	// CountMentions counts mentions observed in [from, to).
	CountMentions(ctx context.Context, brandID int64, from, to time.Time) (int, error)
	CountMentionsBySentiment(ctx context.Context, brandID int64, from, to time.Time) (map[models.SentimentLabel]int, error)
	ListMentions(ctx context.Context, filter models.MentionFilter) ([]models.Mention, error)
	DeleteMentionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// CreateAlertIfAbsent inserts an active alert unless one of the same
	// brand and kind is already active, in which case that one is returned.
	CreateAlertIfAbsent(ctx context.Context, alert models.Alert) (models.Alert, bool, error)
	ListActiveAlerts(ctx context.Context, brandID int64) ([]models.Alert, error)
	DismissAlert(ctx context.Context, id int64) error

	SentimentStats(ctx context.Context, filter models.StatsFilter) (models.SentimentStats, error)
	TopicStats(ctx context.Context, filter models.StatsFilter) ([]models.TopicStat, error)
	SourceStats(ctx context.Context, filter models.StatsFilter) ([]models.SourceStat, error)
	Timeline(ctx context.Context, filter models.StatsFilter) ([]models.TimelinePoint, error)
	Counts(ctx context.Context) (models.Counts, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the store named by databaseURL and applies the schema.
// Supported forms are sqlite://path, sqlite::memory: and postgres:// URLs.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgresStore(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "sqlite:"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(databaseURL, "sqlite:"))
	default:
		return nil, fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

func newSentimentStats(positive, neutral, negative int, avg float64) models.SentimentStats {
	stats := models.SentimentStats{
		Positive:     positive,
		Neutral:      neutral,
		Negative:     negative,
		AvgSentiment: avg,
	}
	if total := positive + neutral + negative; total > 0 {
		stats.PositivePct = percent(positive, total)
		stats.NeutralPct = percent(neutral, total)
		stats.NegativePct = percent(negative, total)
	}
	return stats
}

// percent rounds to one decimal place
func percent(n, total int) float64 {
	return math.Round(float64(n)/float64(total)*1000) / 10
}

func mentionLimit(limit int) int {
	if limit <= 0 || limit > MaxMentionResults {
		return MaxMentionResults
	}
	return limit
}
