package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Attribution policies for items no brand matches
const (
	AttributionSkip   = "skip"
	AttributionRandom = "random"
)

// Spike threshold modes
const (
	SpikeAdaptive = "adaptive"
	SpikeFixed    = "fixed"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port     string
	Debug    bool
	LogLevel string

	// Persistence
	DatabaseURL string
	BrandsFile  string

	// News API
	NewsAPIKey   string
	NewsAPIURL   string
	NewsLanguage string

	// Blog feeds
	BlogFeeds          []string
	BlogEntriesPerFeed int

	// Social sources
	EnableHackerNews bool
	HackerNewsURL    string

	RedditClientID     string
	RedditClientSecret string

	// Fetching and ingestion
	FetchTimeout      time.Duration
	FetchLimit        int
	IngestWindow      time.Duration
	MaxTextLength     int
	AttributionPolicy string

	// Alert thresholds
	SpikeMode              string
	SpikeThreshold         float64
	SpikeMultiplier        float64
	NegativeRatioThreshold float64

	// Run control
	Workers         int
	BrandTimeout    time.Duration
	MonitorSchedule string
	CleanupSchedule string
	RetentionDays   int

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Azure Storage run archive (optional)
	StorageAccount   string
	StorageContainer string
}

// DefaultBlogFeeds are the syndication feeds polled when BLOG_FEEDS is unset
var DefaultBlogFeeds = []string{
	"https://techcrunch.com/feed/",
	"https://www.theverge.com/rss/index.xml",
	"https://www.wired.com/feed/rss",
	"https://feeds.arstechnica.com/arstechnica/index",
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Debug:    getBoolEnv("DEBUG", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", "sqlite://brandradar.db"),
		BrandsFile:  getEnv("BRANDS_FILE", ""),

		NewsAPIKey:   getEnv("NEWS_API_KEY", ""),
		NewsAPIURL:   getEnv("NEWS_API_URL", "https://newsapi.org/v2/everything"),
		NewsLanguage: getEnv("NEWS_LANGUAGE", "en"),

		BlogFeeds:          getSliceEnv("BLOG_FEEDS", DefaultBlogFeeds),
		BlogEntriesPerFeed: getIntEnv("BLOG_ENTRIES_PER_FEED", 10),

		EnableHackerNews: getBoolEnv("ENABLE_HACKERNEWS", true),
		HackerNewsURL:    getEnv("HACKERNEWS_API_URL", "https://hn.algolia.com/api/v1"),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),

		FetchTimeout:      getDurationEnv("FETCH_TIMEOUT", 10*time.Second),
		FetchLimit:        getIntEnv("FETCH_LIMIT", 50),
		IngestWindow:      getDurationEnv("INGEST_WINDOW", 72*time.Hour),
		MaxTextLength:     getIntEnv("MAX_TEXT_LENGTH", 1000),
		AttributionPolicy: strings.ToLower(getEnv("ATTRIBUTION_POLICY", AttributionSkip)),

		SpikeMode:              strings.ToLower(getEnv("SPIKE_MODE", SpikeAdaptive)),
		SpikeThreshold:         getFloatEnv("SPIKE_THRESHOLD", 5),
		SpikeMultiplier:        getFloatEnv("SPIKE_MULTIPLIER", 2.0),
		NegativeRatioThreshold: getFloatEnv("NEGATIVE_RATIO_THRESHOLD", 0.5),

		Workers:         getIntEnv("WORKERS", 4),
		BrandTimeout:    getDurationEnv("BRAND_TIMEOUT", 2*time.Minute),
		MonitorSchedule: getEnv("MONITOR_SCHEDULE", "0 */15 * * * *"),
		CleanupSchedule: getEnv("CLEANUP_SCHEDULE", "0 0 2 * * *"),
		RetentionDays:   getIntEnv("RETENTION_DAYS", 30),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "brandradar-runs"),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.AttributionPolicy != AttributionSkip && c.AttributionPolicy != AttributionRandom {
		return fmt.Errorf("ATTRIBUTION_POLICY must be '%s' or '%s'", AttributionSkip, AttributionRandom)
	}

	if c.SpikeMode != SpikeAdaptive && c.SpikeMode != SpikeFixed {
		return fmt.Errorf("SPIKE_MODE must be '%s' or '%s'", SpikeAdaptive, SpikeFixed)
	}

	if c.SpikeThreshold < 0 || c.SpikeMultiplier <= 0 {
		return fmt.Errorf("SPIKE_THRESHOLD must be >= 0 and SPIKE_MULTIPLIER > 0")
	}

	if c.NegativeRatioThreshold <= 0 || c.NegativeRatioThreshold >= 1 {
		return fmt.Errorf("NEGATIVE_RATIO_THRESHOLD must be between 0 and 1")
	}

	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1")
	}

	if c.FetchTimeout <= 0 || c.FetchLimit < 1 || c.MaxTextLength < 1 {
		return fmt.Errorf("FETCH_TIMEOUT, FETCH_LIMIT and MAX_TEXT_LENGTH must be positive")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
