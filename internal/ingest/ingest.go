package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/brandradar/brandradar/internal/analysis"
	"github.com/brandradar/brandradar/internal/config"
	"github.com/brandradar/brandradar/internal/models"
	"github.com/brandradar/brandradar/internal/sources"
	"github.com/sirupsen/logrus"
)

// MaxTitleLength caps stored titles, in runes
const MaxTitleLength = 500

// MentionStore is the persistence the ingestor needs
type MentionStore interface {
	InsertMention(ctx context.Context, m models.Mention) (bool, error)
}

// Options tune a single ingestion cycle
type Options struct {
	Window            time.Duration
	Limit             int
	MaxTextLength     int
	AttributionPolicy string
}

// OptionsFromConfig maps the ingestion settings of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Window:            cfg.IngestWindow,
		Limit:             cfg.FetchLimit,
		MaxTextLength:     cfg.MaxTextLength,
		AttributionPolicy: cfg.AttributionPolicy,
	}
}

// Result describes what one ingestion cycle stored. Fetch failures are
// reported in FailedSources; they count as zero items from that source.
type Result struct {
	Created       int
	Skipped       int
	BySource      map[string]int
	BySentiment   map[models.SentimentLabel]int
	FailedSources []string
}

func newResult() Result {
	return Result{
		BySource:    make(map[string]int),
		BySentiment: make(map[models.SentimentLabel]int),
	}
}

// Ingestor pulls items from the enabled fetchers, attributes them to brands,
// scores them and stores the ones not seen before.
type Ingestor struct {
	store    MentionStore
	fetchers []sources.Fetcher
	scorer   analysis.SentimentScorer
	topics   *analysis.TopicExtractor
	matcher  *analysis.BrandMatcher
	opts     Options

	pick func(n int) int
	now  func() time.Time
}

// NewIngestor creates an ingestor over the given fetchers
func NewIngestor(store MentionStore, fetchers []sources.Fetcher, scorer analysis.SentimentScorer, opts Options) *Ingestor {
	if opts.Window <= 0 {
		opts.Window = 72 * time.Hour
	}
	if opts.Limit <= 0 {
		opts.Limit = sources.DefaultLimit
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = 1000
	}
	if opts.AttributionPolicy == "" {
		opts.AttributionPolicy = config.AttributionSkip
	}
	if scorer == nil {
		scorer = analysis.NewLexiconScorer()
	}

	return &Ingestor{
		store:    store,
		fetchers: fetchers,
		scorer:   scorer,
		topics:   analysis.NewTopicExtractor(),
		matcher:  analysis.NewBrandMatcher(),
		opts:     opts,
		pick:     rand.Intn,
		now:      time.Now,
	}
}

// Ingest runs one cycle for a single brand and returns the number of new
// mentions. It fails only when a mention cannot be stored.
func (i *Ingestor) Ingest(ctx context.Context, brand models.Brand) (int, error) {
	result, err := i.IngestBrand(ctx, brand, nil)
	return result.Created, err
}

// IngestAll runs one cycle with the union of all brands' terms and attributes
// each item to the first matching brand.
func (i *Ingestor) IngestAll(ctx context.Context, brands []models.Brand) (int, error) {
	if len(brands) == 0 {
		return 0, nil
	}
	result, err := i.run(ctx, brands, brands, unionTerms(brands))
	return result.Created, err
}

// IngestBrand is Ingest with the full cycle result. When catalog is given,
// items are attributed to the first matching brand of the catalog and only
// those attributed to brand are stored, so an item matching several brands
// lands on the same brand whichever brand's cycle sees it first.
func (i *Ingestor) IngestBrand(ctx context.Context, brand models.Brand, catalog []models.Brand) (Result, error) {
	if len(catalog) == 0 {
		catalog = []models.Brand{brand}
	}
	return i.run(ctx, []models.Brand{brand}, catalog, brand.Terms())
}

type fetchOutcome struct {
	fetcher sources.Fetcher
	items   []models.RawItem
	err     error
}

// run stores the fetched items attributed to one of targets. Attribution
// considers every brand in candidates, in order.
func (i *Ingestor) run(ctx context.Context, targets, candidates []models.Brand, keywords []string) (Result, error) {
	result := newResult()
	if len(keywords) == 0 {
		logrus.Warn("No search terms for ingestion, skipping")
		return result, nil
	}

	req := sources.FetchRequest{
		Keywords: keywords,
		Since:    i.now().Add(-i.opts.Window),
		Limit:    i.opts.Limit,
	}

	outcomes := i.fetchAll(ctx, req)
	if len(outcomes) == 0 {
		logrus.Warn("No sources enabled, nothing to ingest")
		return result, nil
	}

	for _, outcome := range outcomes {
		name := outcome.fetcher.Name()
		log := logrus.WithField("source", name)

		if outcome.err != nil {
			if errors.Is(outcome.err, sources.ErrRateLimited) {
				log.Warnf("Rate limited, keeping %d items: %v", len(outcome.items), outcome.err)
			} else {
				log.Errorf("Error fetching mentions: %v", outcome.err)
				result.FailedSources = append(result.FailedSources, name)
			}
		}

		for _, item := range outcome.items {
			mention, ok := i.buildMention(outcome.fetcher.Kind(), item, targets, candidates)
			if !ok {
				result.Skipped++
				continue
			}

			created, err := i.store.InsertMention(ctx, mention)
			if err != nil {
				return result, fmt.Errorf("failed to store mention from %s: %w", name, err)
			}
			if created {
				result.Created++
				result.BySource[name]++
				result.BySentiment[mention.Sentiment]++
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"created":        result.Created,
		"skipped":        result.Skipped,
		"failed_sources": len(result.FailedSources),
	}).Info("Ingestion cycle finished")
	return result, nil
}

// fetchAll queries every enabled fetcher concurrently. Outcomes keep the
// fetcher order so items are processed deterministically.
func (i *Ingestor) fetchAll(ctx context.Context, req sources.FetchRequest) []fetchOutcome {
	var enabled []sources.Fetcher
	for _, fetcher := range i.fetchers {
		if fetcher.IsEnabled() {
			enabled = append(enabled, fetcher)
		}
	}

	outcomes := make([]fetchOutcome, len(enabled))
	var wg sync.WaitGroup
	for idx, fetcher := range enabled {
		wg.Add(1)
		go func(idx int, f sources.Fetcher) {
			defer wg.Done()
			items, err := f.Fetch(ctx, req)
			outcomes[idx] = fetchOutcome{fetcher: f, items: items, err: err}
		}(idx, fetcher)
	}
	wg.Wait()

	return outcomes
}

// buildMention turns a raw item into a validated mention, or reports false
// when the item is attributed to no target brand or is incomplete.
func (i *Ingestor) buildMention(kind models.SourceKind, item models.RawItem, targets, candidates []models.Brand) (models.Mention, bool) {
	text := truncateRunes(strings.TrimSpace(item.Title+" "+item.Body), i.opts.MaxTextLength)
	log := logrus.WithFields(logrus.Fields{"source": kind, "url": item.URL})

	brand, ok := i.attribute(text, candidates)
	if !ok {
		log.Debug("No brand matched item, skipping")
		return models.Mention{}, false
	}
	if !containsBrand(targets, brand) {
		log.WithField("brand", brand.Name).Debug("Item belongs to another brand, skipping")
		return models.Mention{}, false
	}

	sourceID := item.SourceID
	if sourceID == "" {
		if item.URL == "" {
			log.Debug("Item has neither id nor url, skipping")
			return models.Mention{}, false
		}
		sourceID = SourceIDForURL(item.URL)
	}

	observedAt := item.PublishedAt
	if observedAt.IsZero() {
		observedAt = i.now()
	}

	label, score := i.scorer.Score(text)
	mention := models.Mention{
		BrandID:        brand.ID,
		Source:         kind,
		SourceID:       sourceID,
		URL:            CanonicalURL(item.URL),
		Title:          truncateRunes(item.Title, MaxTitleLength),
		Body:           text,
		Author:         item.Author,
		Sentiment:      label,
		SentimentScore: score,
		Topic:          i.topics.Extract(text),
		ObservedAt:     observedAt,
	}

	if err := mention.Validate(); err != nil {
		log.Warnf("Dropping invalid mention: %v", err)
		return models.Mention{}, false
	}
	return mention, true
}

func (i *Ingestor) attribute(text string, brands []models.Brand) (models.Brand, bool) {
	if brand, ok := i.matcher.Match(text, brands); ok {
		return brand, true
	}
	if i.opts.AttributionPolicy != config.AttributionRandom || len(brands) == 0 {
		return models.Brand{}, false
	}

	brand := brands[i.pick(len(brands))]
	logrus.WithField("brand", brand.Name).Warn("No brand matched item, attributing at random")
	return brand, true
}

func containsBrand(brands []models.Brand, brand models.Brand) bool {
	for _, b := range brands {
		if b.ID == brand.ID && b.Name == brand.Name {
			return true
		}
	}
	return false
}

func unionTerms(brands []models.Brand) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, brand := range brands {
		for _, term := range brand.Terms() {
			key := strings.ToLower(term)
			if seen[key] {
				continue
			}
			seen[key] = true
			terms = append(terms, term)
		}
	}
	return terms
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
