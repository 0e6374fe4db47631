package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/brandradar/brandradar/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
)

// BlogFeedFetcher polls a fixed list of RSS/Atom feeds. Keywords are
// ignored: every recent entry is returned and attribution happens later.
type BlogFeedFetcher struct {
	client  *resty.Client
	feeds   []string
	perFeed int
}

// NewBlogFeedFetcher creates a fetcher returning at most perFeed entries per feed
func NewBlogFeedFetcher(feeds []string, perFeed int, timeout time.Duration) *BlogFeedFetcher {
	if perFeed <= 0 {
		perFeed = 10
	}
	return &BlogFeedFetcher{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", "BrandRadar/1.0").
			SetHeader("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"),
		feeds:   feeds,
		perFeed: perFeed,
	}
}

func (b *BlogFeedFetcher) Name() string {
	return "blogs"
}

func (b *BlogFeedFetcher) Kind() models.SourceKind {
	return models.SourceBlog
}

func (b *BlogFeedFetcher) IsEnabled() bool {
	return len(b.feeds) > 0
}

// Fetch reads every feed. A failing feed is logged and skipped; an error is
// returned only when all feeds fail.
func (b *BlogFeedFetcher) Fetch(ctx context.Context, req FetchRequest) ([]models.RawItem, error) {
	if !b.IsEnabled() {
		return nil, fmt.Errorf("blogs: %w", ErrNotConfigured)
	}

	var items []models.RawItem
	var errs []error
	for _, feedURL := range b.feeds {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		entries, err := b.fetchFeed(ctx, feedURL, req.Since)
		if err != nil {
			logrus.Errorf("Error parsing feed %s: %v", feedURL, err)
			errs = append(errs, fmt.Errorf("%s: %w", feedURL, err))
			continue
		}

		logrus.Debugf("Found %d recent entries in %s", len(entries), feedURL)
		items = append(items, entries...)
	}

	if len(items) == 0 && len(errs) == len(b.feeds) {
		return nil, fmt.Errorf("blogs: %w: %w", ErrUpstreamUnavailable, errors.Join(errs...))
	}

	if limit := req.limit(); len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (b *BlogFeedFetcher) fetchFeed(ctx context.Context, feedURL string, since time.Time) ([]models.RawItem, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		Get(feedURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode())
	}

	feed, err := gofeed.NewParser().ParseString(resp.String())
	if err != nil {
		return nil, err
	}

	entries := feed.Items
	sort.SliceStable(entries, func(i, j int) bool {
		return entryTime(entries[i]).After(entryTime(entries[j]))
	})
	if len(entries) > b.perFeed {
		entries = entries[:b.perFeed]
	}

	var items []models.RawItem
	for _, entry := range entries {
		published := entryTime(entry)
		if !since.IsZero() && !published.IsZero() && published.Before(since) {
			continue
		}

		item, ok := convertEntry(entry, feed.Title)
		if !ok {
			continue
		}
		item.PublishedAt = published
		items = append(items, item)
	}

	return items, nil
}

func convertEntry(entry *gofeed.Item, blogName string) (models.RawItem, bool) {
	title := htmlToText(entry.Title)
	summary := entry.Description
	if strings.TrimSpace(summary) == "" {
		summary = entry.Content
	}
	body := htmlToText(summary)

	if entry.Link == "" || (title == "" && body == "") {
		return models.RawItem{}, false
	}

	author := strings.TrimSpace(blogName)
	if entry.Author != nil && strings.TrimSpace(entry.Author.Name) != "" {
		author = strings.TrimSpace(entry.Author.Name)
	} else if len(entry.Authors) > 0 && entry.Authors[0] != nil && entry.Authors[0].Name != "" {
		author = entry.Authors[0].Name
	}
	if author == "" {
		author = "Blog"
	}

	return models.RawItem{
		Title:    title,
		Body:     body,
		URL:      entry.Link,
		Author:   author,
		SourceID: strings.TrimSpace(entry.GUID),
		Tags:     entry.Categories,
	}, true
}

// entryTime returns the publish time, falling back to the update time.
func entryTime(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC()
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC()
	}
	return time.Time{}
}
