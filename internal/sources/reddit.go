package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brandradar/brandradar/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// RedditFetcher searches Reddit posts site-wide using application-only OAuth
type RedditFetcher struct {
	clientID     string
	clientSecret string
	client       *resty.Client
	authURL      string
	apiURL       string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type redditSearchResponse struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Selftext  string  `json:"selftext"`
	Author    string  `json:"author"`
	Subreddit string  `json:"subreddit"`
	Permalink string  `json:"permalink"`
	Created   float64 `json:"created_utc"`
}

// NewRedditFetcher creates a Reddit fetcher. It is disabled unless both
// credentials are set.
func NewRedditFetcher(clientID, clientSecret string, timeout time.Duration) *RedditFetcher {
	return &RedditFetcher{
		clientID:     clientID,
		clientSecret: clientSecret,
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", "BrandRadar/1.0"),
		authURL: "https://www.reddit.com/api/v1/access_token",
		apiURL:  "https://oauth.reddit.com",
	}
}

func (r *RedditFetcher) Name() string {
	return "reddit"
}

func (r *RedditFetcher) Kind() models.SourceKind {
	return models.SourceSocial
}

func (r *RedditFetcher) IsEnabled() bool {
	return r.clientID != "" && r.clientSecret != ""
}

// Fetch searches each keyword, newest first, and drops posts older than Since.
func (r *RedditFetcher) Fetch(ctx context.Context, req FetchRequest) ([]models.RawItem, error) {
	if !r.IsEnabled() {
		return nil, fmt.Errorf("reddit: %w", ErrNotConfigured)
	}

	token, err := r.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("reddit authentication failed: %w", err)
	}

	limit := req.limit()
	seen := make(map[string]bool)
	var items []models.RawItem
	var errs []error
	attempted := 0

	for _, keyword := range req.Keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" || len(items) >= limit {
			continue
		}
		attempted++

		posts, err := r.search(ctx, token, keyword, limit)
		if err != nil {
			logrus.Errorf("Failed to search Reddit for keyword '%s': %v", keyword, err)
			errs = append(errs, err)
			if errors.Is(err, ErrRateLimited) {
				return items, fmt.Errorf("reddit: %w", ErrRateLimited)
			}
			continue
		}

		for _, post := range posts {
			createdAt := time.Unix(int64(post.Created), 0).UTC()
			if !req.Since.IsZero() && createdAt.Before(req.Since) {
				continue
			}
			if post.ID == "" || seen[post.ID] {
				continue
			}
			seen[post.ID] = true

			items = append(items, models.RawItem{
				Title:       post.Title,
				Body:        strings.TrimSpace(post.Selftext),
				URL:         "https://www.reddit.com" + post.Permalink,
				PublishedAt: createdAt,
				Author:      post.Author,
				SourceID:    "reddit-" + post.ID,
				Tags:        []string{"r/" + post.Subreddit},
			})
		}
	}

	if attempted > 0 && len(errs) == attempted {
		return nil, fmt.Errorf("reddit: %w", errors.Join(errs...))
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// token returns a cached access token, refreshing it shortly before expiry.
func (r *RedditFetcher) token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessToken != "" && time.Now().Before(r.expiresAt) {
		return r.accessToken, nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBasicAuth(r.clientID, r.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
		}).
		Post(r.authURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned status %d", ErrUpstreamUnavailable, resp.StatusCode())
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return "", err
	}
	if authResp.AccessToken == "" {
		return "", errors.New("empty access token")
	}

	r.accessToken = authResp.AccessToken
	r.expiresAt = time.Now().Add(time.Duration(authResp.ExpiresIn)*time.Second - time.Minute)
	return r.accessToken, nil
}

func (r *RedditFetcher) search(ctx context.Context, token, keyword string, limit int) ([]redditPost, error) {
	if limit > 100 {
		limit = 100
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(map[string]string{
			"q":     `"` + keyword + `"`,
			"sort":  "new",
			"type":  "link",
			"limit": strconv.Itoa(limit),
		}).
		Get(r.apiURL + "/search.json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: reddit API returned status %d", ErrUpstreamUnavailable, resp.StatusCode())
	}

	var searchResp redditSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUpstreamUnavailable, err)
	}

	posts := make([]redditPost, 0, len(searchResp.Data.Children))
	for _, child := range searchResp.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}
