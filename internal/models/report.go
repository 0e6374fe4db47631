package models

import (
	"fmt"
	"time"
)

// BrandResult is the outcome of one brand inside a monitoring run
type BrandResult struct {
	BrandID       int64       `json:"brand_id"`
	BrandName     string      `json:"brand_name"`
	NewMentions   int         `json:"new_mentions"`
	AlertsRaised  []AlertKind `json:"alerts_raised,omitempty"`
	FailedSources []string    `json:"failed_sources,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// RunSummary aggregates the results of a monitoring run
type RunSummary struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Duration     string        `json:"duration"`
	NewMentions  int           `json:"new_mentions"`
	BrandsFailed int           `json:"brands_failed"`
	Brands       []BrandResult `json:"brands"`
	Alerts       []Alert       `json:"alerts,omitempty"`
}

// String renders the one-line summary reported to callers.
func (s *RunSummary) String() string {
	msg := fmt.Sprintf("Total %d new mentions saved across %d brands", s.NewMentions, len(s.Brands))
	if s.BrandsFailed > 0 {
		msg += fmt.Sprintf(" (%d failed)", s.BrandsFailed)
	}
	if len(s.Alerts) > 0 {
		msg += fmt.Sprintf(", %d alerts raised", len(s.Alerts))
	}
	return msg
}

// StatsFilter scopes the aggregate statistics queries
type StatsFilter struct {
	BrandID int64 // 0 means all brands
	Since   time.Time
}

// MentionFilter scopes mention listings
type MentionFilter struct {
	BrandID   int64
	Source    SourceKind
	Sentiment SentimentLabel
	Since     time.Time
	Limit     int
}

// SentimentStats holds label counts and percentages over a window
type SentimentStats struct {
	Positive     int     `json:"positive"`
	Neutral      int     `json:"neutral"`
	Negative     int     `json:"negative"`
	AvgSentiment float64 `json:"avg_sentiment"`
	PositivePct  float64 `json:"positive_pct"`
	NeutralPct   float64 `json:"neutral_pct"`
	NegativePct  float64 `json:"negative_pct"`
}

// TopicStat is the mention count for one topic label
type TopicStat struct {
	Topic        string  `json:"topic"`
	Count        int     `json:"count"`
	AvgSentiment float64 `json:"avg_sentiment"`
}

// SourceStat is the per-source breakdown of mentions
type SourceStat struct {
	Source       SourceKind `json:"source"`
	Count        int        `json:"count"`
	Positive     int        `json:"positive"`
	Negative     int        `json:"negative"`
	AvgSentiment float64    `json:"avg_sentiment"`
}

// TimelinePoint is the daily mention count split by sentiment
type TimelinePoint struct {
	Day      string `json:"day"` // YYYY-MM-DD
	Count    int    `json:"count"`
	Positive int    `json:"positive"`
	Negative int    `json:"negative"`
	Neutral  int    `json:"neutral"`
}

// Counts are the row totals reported by the status endpoint
type Counts struct {
	Brands   int `json:"brands"`
	Mentions int `json:"mentions"`
	Alerts   int `json:"alerts"`
}
