package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brandradar/brandradar/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// HackerNewsFetcher searches Hacker News stories and comments through the
// Algolia search API
type HackerNewsFetcher struct {
	client  *resty.Client
	baseURL string
	enabled bool
}

type hackerNewsSearch struct {
	Hits []hackerNewsHit `json:"hits"`
}

type hackerNewsHit struct {
	ObjectID    string   `json:"objectID"`
	Author      string   `json:"author"`
	CreatedAtI  int64    `json:"created_at_i"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	StoryText   string   `json:"story_text"`
	CommentText string   `json:"comment_text"`
	StoryTitle  string   `json:"story_title"`
	Tags        []string `json:"_tags"`
}

// NewHackerNewsFetcher creates a new Hacker News fetcher
func NewHackerNewsFetcher(baseURL string, enabled bool, timeout time.Duration) *HackerNewsFetcher {
	return &HackerNewsFetcher{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", "BrandRadar/1.0"),
		baseURL: strings.TrimRight(baseURL, "/"),
		enabled: enabled,
	}
}

func (h *HackerNewsFetcher) Name() string {
	return "hackernews"
}

func (h *HackerNewsFetcher) Kind() models.SourceKind {
	return models.SourceSocial
}

func (h *HackerNewsFetcher) IsEnabled() bool {
	return h.enabled // the search API doesn't require authentication
}

// Fetch runs one search per keyword and merges the hits by object id.
func (h *HackerNewsFetcher) Fetch(ctx context.Context, req FetchRequest) ([]models.RawItem, error) {
	if !h.IsEnabled() {
		return nil, fmt.Errorf("hackernews: %w", ErrNotConfigured)
	}

	limit := req.limit()
	seen := make(map[string]bool)
	var items []models.RawItem
	var errs []error
	attempted := 0

	for _, keyword := range req.Keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		if len(items) >= limit {
			break
		}
		attempted++

		hits, err := h.search(ctx, keyword, req.Since, limit)
		if err != nil {
			logrus.Errorf("Error searching Hacker News for %s: %v", keyword, err)
			errs = append(errs, err)
			if errors.Is(err, ErrRateLimited) {
				break
			}
			continue
		}

		for _, hit := range hits {
			if hit.ObjectID == "" || seen[hit.ObjectID] {
				continue
			}
			seen[hit.ObjectID] = true
			if item, ok := convertHit(hit); ok {
				items = append(items, item)
			}
		}
	}

	if len(items) > limit {
		items = items[:limit]
	}

	if len(errs) > 0 {
		for _, err := range errs {
			if errors.Is(err, ErrRateLimited) {
				return items, fmt.Errorf("hackernews: %w", ErrRateLimited)
			}
		}
		if len(errs) == attempted {
			return nil, fmt.Errorf("hackernews: %w", errors.Join(errs...))
		}
	}
	return items, nil
}

func (h *HackerNewsFetcher) search(ctx context.Context, keyword string, since time.Time, limit int) ([]hackerNewsHit, error) {
	params := map[string]string{
		"query":       `"` + keyword + `"`,
		"tags":        "(story,comment)",
		"hitsPerPage": strconv.Itoa(limit),
	}
	if !since.IsZero() {
		params["numericFilters"] = fmt.Sprintf("created_at_i>%d", since.Unix())
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(h.baseURL + "/search_by_date")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: hacker news API returned status %d", ErrUpstreamUnavailable, resp.StatusCode())
	}

	var result hackerNewsSearch
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUpstreamUnavailable, err)
	}

	return result.Hits, nil
}

func convertHit(hit hackerNewsHit) (models.RawItem, bool) {
	title := hit.Title
	if title == "" {
		title = hit.StoryTitle
	}
	text := hit.StoryText
	if text == "" {
		text = hit.CommentText
	}

	item := models.RawItem{
		Title:    htmlToText(title),
		Body:     htmlToText(text),
		Author:   hit.Author,
		SourceID: "hn-" + hit.ObjectID,
		URL:      fmt.Sprintf("https://news.ycombinator.com/item?id=%s", hit.ObjectID),
		Tags:     hit.Tags,
	}
	if item.Title == "" && item.Body == "" {
		return models.RawItem{}, false
	}

	// Use external URL if available and it's a story
	if hit.URL != "" && hit.CommentText == "" {
		item.URL = hit.URL
	}
	if hit.CreatedAtI > 0 {
		item.PublishedAt = time.Unix(hit.CreatedAtI, 0).UTC()
	}

	return item, true
}
