package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SourceKind is the channel a mention came from
type SourceKind string

const (
	SourceNews   SourceKind = "news"
	SourceSocial SourceKind = "social"
	SourceBlog   SourceKind = "blog"
)

// SentimentLabel is the three-way sentiment classification of a mention
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Valid reports whether l is one of the known labels.
func (l SentimentLabel) Valid() bool {
	switch l {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// AlertKind identifies the threshold check that raised an alert
type AlertKind string

const (
	AlertSpike    AlertKind = "spike"
	AlertNegative AlertKind = "negative"
	AlertTrending AlertKind = "trending"
)

// Brand is a tracked brand with its case-insensitive match terms
type Brand struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Keywords  []string  `json:"keywords"`
	CreatedAt time.Time `json:"created_at"`
}

// Terms returns the brand name followed by its keywords, deduplicated
// case-insensitively with blank entries removed.
func (b Brand) Terms() []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range append([]string{b.Name}, b.Keywords...) {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, t)
	}
	return terms
}

// RawItem is a candidate item returned by a source fetcher before attribution
type RawItem struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Author      string    `json:"author"`
	SourceID    string    `json:"source_id"` // empty when the upstream has no native id
	Tags        []string  `json:"tags,omitempty"`
}

// Mention is one persisted occurrence of brand-relevant content
type Mention struct {
	ID             int64          `json:"id"`
	BrandID        int64          `json:"brand_id"`
	Source         SourceKind     `json:"source"`
	SourceID       string         `json:"source_id"`
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	Body           string         `json:"text"`
	Author         string         `json:"author"`
	Sentiment      SentimentLabel `json:"sentiment"`
	SentimentScore float64        `json:"sentiment_score"` // -1 to 1
	Topic          string         `json:"topic"`
	ObservedAt     time.Time      `json:"timestamp"`
	IngestedAt     time.Time      `json:"created_at"`
}

// Validate checks the fields required before a mention can be persisted.
func (m Mention) Validate() error {
	var errs []error
	if m.BrandID <= 0 {
		errs = append(errs, errors.New("brand id is required"))
	}
	if m.Source == "" {
		errs = append(errs, errors.New("source is required"))
	}
	if m.SourceID == "" {
		errs = append(errs, errors.New("source id is required"))
	}
	if m.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if strings.TrimSpace(m.Body) == "" {
		errs = append(errs, errors.New("text is required"))
	}
	if !m.Sentiment.Valid() {
		errs = append(errs, fmt.Errorf("invalid sentiment %q", m.Sentiment))
	}
	if m.SentimentScore < -1 || m.SentimentScore > 1 {
		errs = append(errs, fmt.Errorf("sentiment score %v out of range", m.SentimentScore))
	}
	if m.ObservedAt.IsZero() {
		errs = append(errs, errors.New("timestamp is required"))
	}
	return errors.Join(errs...)
}

// Alert is a threshold alert raised for a brand
type Alert struct {
	ID        int64     `json:"id"`
	BrandID   int64     `json:"brand_id"`
	Kind      AlertKind `json:"alert_type"`
	Message   string    `json:"message"`
	Threshold float64   `json:"threshold_value"`
	Current   float64   `json:"current_value"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
