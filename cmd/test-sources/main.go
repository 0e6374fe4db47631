package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/brandradar/brandradar/internal/config"
	"github.com/brandradar/brandradar/internal/sources"
	"github.com/joho/godotenv"
)

func main() {
	keywordsFlag := flag.String("keywords", "tesla,elon musk", "comma separated search terms")
	window := flag.Duration("window", 24*time.Hour, "how far back to search")
	limit := flag.Int("limit", 10, "maximum items per source")
	flag.Parse()

	fmt.Println("BrandRadar - Source Connectivity Test")
	fmt.Println("=====================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var keywords []string
	for _, kw := range strings.Split(*keywordsFlag, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	req := sources.FetchRequest{Keywords: keywords, Since: time.Now().Add(-*window), Limit: *limit}

	fmt.Printf("\nSearching for %q in the last %v\n", keywords, *window)
	fmt.Println(strings.Repeat("-", 40))

	for _, fetcher := range sources.FromConfig(cfg) {
		testSource(ctx, fetcher, req)
	}

	fmt.Println("\nConnectivity test completed.")
}

func testSource(ctx context.Context, fetcher sources.Fetcher, req sources.FetchRequest) {
	fmt.Printf("* %s (%s)... ", fetcher.Name(), fetcher.Kind())

	if !fetcher.IsEnabled() {
		fmt.Println("DISABLED (missing configuration)")
		return
	}

	start := time.Now()
	items, err := fetcher.Fetch(ctx, req)
	switch {
	case errors.Is(err, sources.ErrRateLimited):
		fmt.Printf("RATE LIMITED (%d items before throttling)\n", len(items))
	case err != nil:
		fmt.Printf("ERROR: %v\n", err)
		return
	default:
		fmt.Printf("OK (%d items in %v)\n", len(items), time.Since(start).Round(time.Millisecond))
	}

	if len(items) > 0 {
		fmt.Printf("  sample: %q\n  %s\n", items[0].Title, items[0].URL)
	}
}
