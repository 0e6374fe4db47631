package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brandradar/brandradar/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// maxNewsPageSize is the largest page NewsAPI accepts
const maxNewsPageSize = 100

// NewsFetcher retrieves articles from the NewsAPI "everything" endpoint
type NewsFetcher struct {
	client   *resty.Client
	apiKey   string
	baseURL  string
	language string
	limiter  *rate.Limiter
}

type newsResponse struct {
	Status       string        `json:"status"`
	TotalResults int           `json:"totalResults"`
	Articles     []newsArticle `json:"articles"`
	Code         string        `json:"code"`
	Message      string        `json:"message"`
}

type newsArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// NewNewsFetcher creates a NewsAPI fetcher. An empty apiKey leaves it disabled.
func NewNewsFetcher(apiKey, baseURL, language string, timeout time.Duration) *NewsFetcher {
	return &NewsFetcher{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", "BrandRadar/1.0"),
		apiKey:   apiKey,
		baseURL:  baseURL,
		language: language,
		limiter:  rate.NewLimiter(rate.Limit(5), 5),
	}
}

func (n *NewsFetcher) Name() string {
	return "newsapi"
}

func (n *NewsFetcher) Kind() models.SourceKind {
	return models.SourceNews
}

func (n *NewsFetcher) IsEnabled() bool {
	return n.apiKey != ""
}

// Fetch pages through matching articles until Limit is reached. A 429
// stops pagination and returns the items gathered so far with ErrRateLimited.
func (n *NewsFetcher) Fetch(ctx context.Context, req FetchRequest) ([]models.RawItem, error) {
	if !n.IsEnabled() {
		return nil, fmt.Errorf("newsapi: %w", ErrNotConfigured)
	}

	query := quoteKeywords(req.Keywords)
	if query == "" {
		return nil, nil
	}

	limit := req.limit()
	pageSize := limit
	if pageSize > maxNewsPageSize {
		pageSize = maxNewsPageSize
	}

	var items []models.RawItem
	for page := 1; len(items) < limit; page++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("newsapi: %w: %v", ErrUpstreamUnavailable, err)
		}

		params := map[string]string{
			"q":        query,
			"sortBy":   "publishedAt",
			"pageSize": strconv.Itoa(pageSize),
			"page":     strconv.Itoa(page),
		}
		if n.language != "" {
			params["language"] = n.language
		}
		if !req.Since.IsZero() {
			params["from"] = req.Since.UTC().Format(time.RFC3339)
		}

		resp, err := n.client.R().
			SetContext(ctx).
			SetHeader("X-Api-Key", n.apiKey).
			SetQueryParams(params).
			Get(n.baseURL)
		if err != nil {
			return nil, fmt.Errorf("newsapi: %w: %v", ErrUpstreamUnavailable, err)
		}

		if resp.StatusCode() == http.StatusTooManyRequests {
			logrus.Warnf("NewsAPI rate limit exceeded after %d items", len(items))
			return items, fmt.Errorf("newsapi: %w", ErrRateLimited)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("newsapi: %w: status %d", ErrUpstreamUnavailable, resp.StatusCode())
		}

		var body newsResponse
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return nil, fmt.Errorf("newsapi: %w: decoding response: %v", ErrUpstreamUnavailable, err)
		}
		if body.Status == "error" {
			return nil, fmt.Errorf("newsapi: %w: %s: %s", ErrUpstreamUnavailable, body.Code, body.Message)
		}

		for _, article := range body.Articles {
			if item, ok := convertArticle(article); ok {
				items = append(items, item)
			}
		}

		if len(body.Articles) < pageSize || page*pageSize >= body.TotalResults {
			break
		}
	}

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func convertArticle(a newsArticle) (models.RawItem, bool) {
	title := strings.TrimSpace(a.Title)
	description := strings.TrimSpace(a.Description)
	if (title == "" && description == "") || title == "[Removed]" || a.URL == "" {
		return models.RawItem{}, false
	}

	body := description
	if content := strings.TrimSpace(a.Content); content != "" {
		body = strings.TrimSpace(body + " " + content)
	}

	author := a.Source.Name
	if author == "" {
		author = a.Author
	}

	item := models.RawItem{
		Title:  title,
		Body:   body,
		URL:    a.URL,
		Author: author,
	}
	if published, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
		item.PublishedAt = published.UTC()
	}
	return item, true
}
