package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brandradar/brandradar/internal/config"
	"github.com/brandradar/brandradar/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestFetchers_NameKindAndEnabled(t *testing.T) {
	tests := []struct {
		name     string
		fetcher  Fetcher
		wantName string
		wantKind models.SourceKind
		enabled  bool
	}{
		{"News with key", NewNewsFetcher("key", "http://x", "en", time.Second), "newsapi", models.SourceNews, true},
		{"News without key", NewNewsFetcher("", "http://x", "en", time.Second), "newsapi", models.SourceNews, false},
		{"Blogs with feeds", NewBlogFeedFetcher([]string{"http://x/feed"}, 10, time.Second), "blogs", models.SourceBlog, true},
		{"Blogs without feeds", NewBlogFeedFetcher(nil, 10, time.Second), "blogs", models.SourceBlog, false},
		{"Hacker News", NewHackerNewsFetcher("http://x", true, time.Second), "hackernews", models.SourceSocial, true},
		{"Hacker News off", NewHackerNewsFetcher("http://x", false, time.Second), "hackernews", models.SourceSocial, false},
		{"Reddit with credentials", NewRedditFetcher("id", "secret", time.Second), "reddit", models.SourceSocial, true},
		{"Reddit missing secret", NewRedditFetcher("id", "", time.Second), "reddit", models.SourceSocial, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantName, tt.fetcher.Name())
			assert.Equal(t, tt.wantKind, tt.fetcher.Kind())
			assert.Equal(t, tt.enabled, tt.fetcher.IsEnabled())
		})
	}
}

func TestFetchers_DisabledReturnNotConfigured(t *testing.T) {
	fetchers := []Fetcher{
		NewNewsFetcher("", "http://x", "en", time.Second),
		NewBlogFeedFetcher(nil, 10, time.Second),
		NewHackerNewsFetcher("http://x", false, time.Second),
		NewRedditFetcher("", "", time.Second),
	}

	for _, f := range fetchers {
		items, err := f.Fetch(context.Background(), FetchRequest{Keywords: []string{"tesla"}})
		assert.ErrorIs(t, err, ErrNotConfigured, f.Name())
		assert.Empty(t, items)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{
		NewsAPIKey:       "key",
		BlogFeeds:        config.DefaultBlogFeeds,
		EnableHackerNews: true,
		FetchTimeout:     time.Second,
	}

	fetchers := FromConfig(cfg)
	require.Len(t, fetchers, 4)

	enabled := 0
	for _, f := range fetchers {
		if f.IsEnabled() {
			enabled++
		}
	}
	assert.Equal(t, 3, enabled)
}

func TestNewsFetcher_Fetch(t *testing.T) {
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, `"Tesla" OR "elon musk"`, r.URL.Query().Get("q"))
		assert.Equal(t, "en", r.URL.Query().Get("language"))
		assert.Equal(t, "publishedAt", r.URL.Query().Get("sortBy"))
		assert.Equal(t, "2024-05-01T00:00:00Z", r.URL.Query().Get("from"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))

		writeJSON(t, w, map[string]interface{}{
			"status":       "ok",
			"totalResults": 3,
			"articles": []map[string]interface{}{
				{
					"source":      map[string]string{"name": "Reuters"},
					"title":       "Tesla stock rises",
					"description": "Shares climbed",
					"content":     "Full story",
					"url":         "https://news.example.com/tesla-rises",
					"publishedAt": "2024-05-02T10:00:00Z",
				},
				{
					"source": map[string]string{"name": ""},
					"author": "Jane Doe",
					"title":  "Musk interview",
					"url":    "https://news.example.com/musk",
				},
				{
					"title": "[Removed]",
					"url":   "https://removed.com",
				},
			},
		})
	}))
	defer server.Close()

	fetcher := NewNewsFetcher("secret", server.URL, "en", 5*time.Second)
	items, err := fetcher.Fetch(context.Background(), FetchRequest{
		Keywords: []string{"Tesla", " ", "elon musk"},
		Since:    since,
		Limit:    20,
	})

	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Tesla stock rises", items[0].Title)
	assert.Equal(t, "Shares climbed Full story", items[0].Body)
	assert.Equal(t, "Reuters", items[0].Author)
	assert.Equal(t, time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC), items[0].PublishedAt)
	assert.Empty(t, items[0].SourceID)

	assert.Equal(t, "Jane Doe", items[1].Author)
	assert.True(t, items[1].PublishedAt.IsZero())
}

func TestNewsFetcher_RateLimitedKeepsPartialItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		articles := make([]map[string]interface{}, 0, maxNewsPageSize)
		for i := 0; i < maxNewsPageSize; i++ {
			articles = append(articles, map[string]interface{}{
				"title": fmt.Sprintf("Story %d", i),
				"url":   fmt.Sprintf("https://news.example.com/%d", i),
			})
		}
		writeJSON(t, w, map[string]interface{}{"status": "ok", "totalResults": 500, "articles": articles})
	}))
	defer server.Close()

	fetcher := NewNewsFetcher("secret", server.URL, "en", 5*time.Second)
	items, err := fetcher.Fetch(context.Background(), FetchRequest{Keywords: []string{"tesla"}, Limit: 150})

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, items, maxNewsPageSize)
}

func TestNewsFetcher_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
	}{
		{
			name: "Server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			timeout: time.Second,
		},
		{
			name: "API error payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, map[string]string{"status": "error", "code": "apiKeyInvalid", "message": "bad key"})
			},
			timeout: time.Second,
		},
		{
			name: "Timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(300 * time.Millisecond)
			},
			timeout: 50 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			fetcher := NewNewsFetcher("secret", server.URL, "en", tt.timeout)
			items, err := fetcher.Fetch(context.Background(), FetchRequest{Keywords: []string{"tesla"}})

			assert.ErrorIs(t, err, ErrUpstreamUnavailable)
			assert.Empty(t, items)
		})
	}
}

func rssFeed(now time.Time) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
  <title>Example Blog</title>
  <link>https://blog.example.com</link>
  <item>
    <title>Apple event recap</title>
    <link>https://blog.example.com/apple</link>
    <guid>post-2</guid>
    <description>Plain summary</description>
    <pubDate>` + now.Add(-2*time.Hour).Format(time.RFC1123Z) + `</pubDate>
  </item>
  <item>
    <title>Old news</title>
    <link>https://blog.example.com/old</link>
    <guid>post-0</guid>
    <description>Stale</description>
    <pubDate>` + now.Add(-100*time.Hour).Format(time.RFC1123Z) + `</pubDate>
  </item>
  <item>
    <title>Tesla unveils new battery</title>
    <link>https://blog.example.com/tesla</link>
    <guid>post-1</guid>
    <dc:creator>Jane Doe</dc:creator>
    <category>EV</category>
    <description><![CDATA[<p>The <b>new</b> battery &amp; more</p>]]></description>
    <pubDate>` + now.Add(-1*time.Hour).Format(time.RFC1123Z) + `</pubDate>
  </item>
</channel>
</rss>`
}

func TestBlogFeedFetcher_Fetch(t *testing.T) {
	now := time.Now()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFeed(now))
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	fetcher := NewBlogFeedFetcher([]string{bad.URL, good.URL}, 10, 5*time.Second)
	items, err := fetcher.Fetch(context.Background(), FetchRequest{Since: now.Add(-72 * time.Hour)})

	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Tesla unveils new battery", items[0].Title)
	assert.Equal(t, "The new battery & more", items[0].Body)
	assert.Equal(t, "Jane Doe", items[0].Author)
	assert.Equal(t, "post-1", items[0].SourceID)
	assert.Equal(t, []string{"EV"}, items[0].Tags)

	assert.Equal(t, "Apple event recap", items[1].Title)
	assert.Equal(t, "Example Blog", items[1].Author)
}

func TestBlogFeedFetcher_EntriesPerFeed(t *testing.T) {
	now := time.Now()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssFeed(now))
	}))
	defer server.Close()

	fetcher := NewBlogFeedFetcher([]string{server.URL}, 1, 5*time.Second)
	items, err := fetcher.Fetch(context.Background(), FetchRequest{})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "post-1", items[0].SourceID)
}

func TestBlogFeedFetcher_AllFeedsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	}))
	defer server.Close()

	fetcher := NewBlogFeedFetcher([]string{server.URL, server.URL + "/other"}, 10, 5*time.Second)
	items, err := fetcher.Fetch(context.Background(), FetchRequest{})

	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Empty(t, items)
}

func TestHackerNewsFetcher_Fetch(t *testing.T) {
	since := time.Now().Add(-24 * time.Hour)
	createdAt := time.Now().Add(-time.Hour).Unix()

	hits := map[string][]map[string]interface{}{
		`"tesla"`: {
			{"objectID": "1", "title": "Tesla launches robotaxi", "url": "https://example.com/robotaxi", "author": "pg", "created_at_i": createdAt},
			{"objectID": "2", "title": "Ask HN: Tesla or Rivian?", "story_text": "<p>Thinking about <i>buying</i></p>", "author": "dang", "created_at_i": createdAt},
		},
		`"elon musk"`: {
			{"objectID": "2", "title": "Ask HN: Tesla or Rivian?", "author": "dang", "created_at_i": createdAt},
			{"objectID": "3", "story_title": "Musk news", "comment_text": "Great comment", "story_url": "https://example.com/s", "author": "tptacek", "created_at_i": createdAt},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search_by_date", r.URL.Path)
		assert.Equal(t, "created_at_i>"+strconv.FormatInt(since.Unix(), 10), r.URL.Query().Get("numericFilters"))
		writeJSON(t, w, map[string]interface{}{"hits": hits[r.URL.Query().Get("query")]})
	}))
	defer server.Close()

	fetcher := NewHackerNewsFetcher(server.URL, true, 5*time.Second)
	items, err := fetcher.Fetch(context.Background(), FetchRequest{Keywords: []string{"tesla", "elon musk"}, Since: since})

	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "hn-1", items[0].SourceID)
	assert.Equal(t, "https://example.com/robotaxi", items[0].URL)
	assert.Equal(t, "Thinking about buying", items[1].Body)
	assert.Equal(t, "https://news.ycombinator.com/item?id=2", items[1].URL)
	assert.Equal(t, "Musk news", items[2].Title)
	assert.Equal(t, "Great comment", items[2].Body)
	assert.Equal(t, "https://news.ycombinator.com/item?id=3", items[2].URL)
}

func TestHackerNewsFetcher_PartialAndTotalFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") == `"tesla"` {
			writeJSON(t, w, map[string]interface{}{"hits": []map[string]interface{}{{"objectID": "9", "title": "Tesla"}}})
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	fetcher := NewHackerNewsFetcher(server.URL, true, 5*time.Second)

	items, err := fetcher.Fetch(context.Background(), FetchRequest{Keywords: []string{"tesla", "broken"}})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = fetcher.Fetch(context.Background(), FetchRequest{Keywords: []string{"broken"}})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Empty(t, items)
}

func TestRedditFetcher_Fetch(t *testing.T) {
	since := time.Now().Add(-24 * time.Hour)
	var tokenRequests int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenRequests, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		writeJSON(t, w, map[string]interface{}{"access_token": "tok", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/search.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(t, w, map[string]interface{}{
			"data": map[string]interface{}{
				"children": []map[string]interface{}{
					{"data": map[string]interface{}{"id": "abc", "title": "Nike drops new shoe", "selftext": "Looks great", "author": "u1", "subreddit": "Sneakers", "permalink": "/r/Sneakers/comments/abc/", "created_utc": float64(time.Now().Add(-time.Hour).Unix())}},
					{"data": map[string]interface{}{"id": "old", "title": "Ancient post", "permalink": "/r/x/comments/old/", "created_utc": float64(time.Now().Add(-48 * time.Hour).Unix())}},
				},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := NewRedditFetcher("id", "secret", 5*time.Second)
	fetcher.authURL = server.URL + "/api/v1/access_token"
	fetcher.apiURL = server.URL

	items, err := fetcher.Fetch(context.Background(), FetchRequest{Keywords: []string{"nike"}, Since: since})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "reddit-abc", items[0].SourceID)
	assert.Equal(t, "https://www.reddit.com/r/Sneakers/comments/abc/", items[0].URL)
	assert.Equal(t, []string{"r/Sneakers"}, items[0].Tags)

	_, err = fetcher.Fetch(context.Background(), FetchRequest{Keywords: []string{"nike"}, Since: since})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenRequests))
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Basic HTML tags",
			input:    "<p>Hello <strong>world</strong></p>",
			expected: "Hello world",
		},
		{
			name:     "Entities",
			input:    "Fish &amp; chips &lt;3",
			expected: "Fish & chips <3",
		},
		{
			name:     "Scripts dropped",
			input:    "<div>Visible<script>alert(1)</script></div>",
			expected: "Visible",
		},
		{
			name:     "No HTML tags",
			input:    "  Plain   text\ncontent ",
			expected: "Plain text content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, htmlToText(tt.input))
		})
	}
}

func TestQuoteKeywords(t *testing.T) {
	assert.Equal(t, `"apple" OR "tim cook"`, quoteKeywords([]string{"apple", "", `tim "cook"`}))
	assert.Empty(t, quoteKeywords(nil))
}
