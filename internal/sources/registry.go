package sources

import (
	"github.com/brandradar/brandradar/internal/config"
)

// FromConfig builds every known fetcher. Disabled fetchers are included so
// that callers can report them; the ingestor skips them.
func FromConfig(cfg *config.Config) []Fetcher {
	return []Fetcher{
		NewNewsFetcher(cfg.NewsAPIKey, cfg.NewsAPIURL, cfg.NewsLanguage, cfg.FetchTimeout),
		NewBlogFeedFetcher(cfg.BlogFeeds, cfg.BlogEntriesPerFeed, cfg.FetchTimeout),
		NewHackerNewsFetcher(cfg.HackerNewsURL, cfg.EnableHackerNews, cfg.FetchTimeout),
		NewRedditFetcher(cfg.RedditClientID, cfg.RedditClientSecret, cfg.FetchTimeout),
	}
}
