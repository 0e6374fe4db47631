package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brandradar/brandradar/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "brandradar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("BRANDRADAR_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("BRANDRADAR_TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	_, err = store.pool.Exec(ctx, `TRUNCATE brands, mentions, alerts RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store { return newSQLiteStore(t) })
}

func TestPostgresStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store { return newPostgresStore(t) })
}

func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"UpsertBrand", testUpsertBrand},
		{"InsertMentionIsIdempotent", testInsertMentionIsIdempotent},
		{"ConcurrentInsertCreatesOnce", testConcurrentInsertCreatesOnce},
		{"CountMentions", testCountMentions},
		{"ListMentions", testListMentions},
		{"DeleteMentionsBefore", testDeleteMentionsBefore},
		{"AlertLifecycle", testAlertLifecycle},
		{"Stats", testStats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func seedBrand(t *testing.T, s Store, name string, keywords ...string) models.Brand {
	t.Helper()
	brand, _, err := s.UpsertBrand(context.Background(), models.Brand{Name: name, Keywords: keywords})
	require.NoError(t, err)
	return brand
}

func mention(brandID int64, source models.SourceKind, id string, label models.SentimentLabel, observed time.Time) models.Mention {
	score := 0.0
	switch label {
	case models.SentimentPositive:
		score = 0.5
	case models.SentimentNegative:
		score = -0.5
	}
	return models.Mention{
		BrandID:        brandID,
		Source:         source,
		SourceID:       id,
		URL:            "https://example.com/" + id,
		Title:          "Title " + id,
		Body:           "Body " + id,
		Author:         "author",
		Sentiment:      label,
		SentimentScore: score,
		Topic:          "battery",
		ObservedAt:     observed,
	}
}

func testUpsertBrand(t *testing.T, s Store) {
	ctx := context.Background()

	brand, created, err := s.UpsertBrand(ctx, models.Brand{Name: "Tesla", Keywords: []string{"tesla"}})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, brand.ID)

	updated, created, err := s.UpsertBrand(ctx, models.Brand{Name: "Tesla", Keywords: []string{"tesla", "elon musk"}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, brand.ID, updated.ID)
	assert.Equal(t, []string{"tesla", "elon musk"}, updated.Keywords)

	got, err := s.GetBrand(ctx, brand.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tesla", got.Name)

	_, err = s.GetBrand(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.UpsertBrand(ctx, models.Brand{Name: "  "})
	assert.Error(t, err)

	seedBrand(t, s, "Apple")
	brands, err := s.ListBrands(ctx)
	require.NoError(t, err)
	require.Len(t, brands, 2)
	assert.Equal(t, "Tesla", brands[0].Name)
	assert.Equal(t, "Apple", brands[1].Name)
	assert.Equal(t, []string{}, brands[1].Keywords)
}

func testInsertMentionIsIdempotent(t *testing.T, s Store) {
	ctx := context.Background()
	brand := seedBrand(t, s, "Tesla")
	m := mention(brand.ID, models.SourceNews, "abc", models.SentimentPositive, time.Now())

	created, err := s.InsertMention(ctx, m)
	require.NoError(t, err)
	assert.True(t, created)

	m.Title = "changed"
	created, err = s.InsertMention(ctx, m)
	require.NoError(t, err)
	assert.False(t, created)

	// same id from another source is a different mention
	m.Source = models.SourceBlog
	created, err = s.InsertMention(ctx, m)
	require.NoError(t, err)
	assert.True(t, created)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Counts{Brands: 1, Mentions: 2}, counts)
}

func testConcurrentInsertCreatesOnce(t *testing.T, s Store) {
	ctx := context.Background()
	brand := seedBrand(t, s, "Tesla")
	m := mention(brand.ID, models.SourceNews, "same", models.SentimentNeutral, time.Now())

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.InsertMention(ctx, m)
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
}

func testCountMentions(t *testing.T, s Store) {
	ctx := context.Background()
	tesla := seedBrand(t, s, "Tesla")
	apple := seedBrand(t, s, "Apple")
	now := time.Now()

	inputs := []models.Mention{
		mention(tesla.ID, models.SourceNews, "1", models.SentimentNegative, now.Add(-10*time.Minute)),
		mention(tesla.ID, models.SourceNews, "2", models.SentimentNegative, now.Add(-30*time.Minute)),
		mention(tesla.ID, models.SourceNews, "3", models.SentimentPositive, now.Add(-3*time.Hour)),
		mention(apple.ID, models.SourceNews, "4", models.SentimentNeutral, now.Add(-5*time.Minute)),
	}
	for _, m := range inputs {
		_, err := s.InsertMention(ctx, m)
		require.NoError(t, err)
	}

	count, err := s.CountMentions(ctx, tesla.ID, now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.CountMentions(ctx, tesla.ID, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	bySentiment, err := s.CountMentionsBySentiment(ctx, tesla.ID, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 2, bySentiment[models.SentimentNegative])
	assert.Equal(t, 1, bySentiment[models.SentimentPositive])
	assert.Zero(t, bySentiment[models.SentimentNeutral])
}

func testListMentions(t *testing.T, s Store) {
	ctx := context.Background()
	tesla := seedBrand(t, s, "Tesla")
	apple := seedBrand(t, s, "Apple")
	now := time.Now()

	for i := 0; i < 5; i++ {
		_, err := s.InsertMention(ctx, mention(tesla.ID, models.SourceNews, fmt.Sprintf("n%d", i), models.SentimentPositive, now.Add(-time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := s.InsertMention(ctx, mention(tesla.ID, models.SourceBlog, "b1", models.SentimentNegative, now))
	require.NoError(t, err)
	_, err = s.InsertMention(ctx, mention(apple.ID, models.SourceNews, "a1", models.SentimentNeutral, now.Add(-10*24*time.Hour)))
	require.NoError(t, err)

	all, err := s.ListMentions(ctx, models.MentionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 7)
	assert.Equal(t, "a1", all[len(all)-1].SourceID)

	recent, err := s.ListMentions(ctx, models.MentionFilter{Since: now.Add(-7 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 6)

	news, err := s.ListMentions(ctx, models.MentionFilter{BrandID: tesla.ID, Source: models.SourceNews, Limit: 2})
	require.NoError(t, err)
	require.Len(t, news, 2)
	assert.Equal(t, "n0", news[0].SourceID)
	assert.Equal(t, "n1", news[1].SourceID)

	negative, err := s.ListMentions(ctx, models.MentionFilter{Sentiment: models.SentimentNegative})
	require.NoError(t, err)
	require.Len(t, negative, 1)
	assert.Equal(t, models.SourceBlog, negative[0].Source)
	assert.Equal(t, "Body b1", negative[0].Body)
	assert.WithinDuration(t, now, negative[0].ObservedAt, time.Second)
}

func testDeleteMentionsBefore(t *testing.T, s Store) {
	ctx := context.Background()
	brand := seedBrand(t, s, "Tesla")
	now := time.Now()

	_, err := s.InsertMention(ctx, mention(brand.ID, models.SourceNews, "old", models.SentimentNeutral, now.Add(-40*24*time.Hour)))
	require.NoError(t, err)
	_, err = s.InsertMention(ctx, mention(brand.ID, models.SourceNews, "new", models.SentimentNeutral, now))
	require.NoError(t, err)

	deleted, err := s.DeleteMentionsBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := s.ListMentions(ctx, models.MentionFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].SourceID)
}

func testAlertLifecycle(t *testing.T, s Store) {
	ctx := context.Background()
	brand := seedBrand(t, s, "Tesla")

	first, created, err := s.CreateAlertIfAbsent(ctx, models.Alert{
		BrandID: brand.ID, Kind: models.AlertSpike, Message: "spike", Threshold: 5, Current: 6,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, first.Active)
	assert.NotZero(t, first.ID)

	again, created, err := s.CreateAlertIfAbsent(ctx, models.Alert{
		BrandID: brand.ID, Kind: models.AlertSpike, Message: "bigger spike", Threshold: 5, Current: 9,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 6.0, again.Current)

	_, created, err = s.CreateAlertIfAbsent(ctx, models.Alert{
		BrandID: brand.ID, Kind: models.AlertNegative, Message: "negative", Threshold: 0.5, Current: 0.6,
	})
	require.NoError(t, err)
	assert.True(t, created)

	active, err := s.ListActiveAlerts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, s.DismissAlert(ctx, first.ID))
	assert.ErrorIs(t, s.DismissAlert(ctx, 9999), ErrNotFound)

	active, err = s.ListActiveAlerts(ctx, brand.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.AlertNegative, active[0].Kind)

	// dismissed alerts are not counted
	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Alerts)

	reopened, created, err := s.CreateAlertIfAbsent(ctx, models.Alert{
		BrandID: brand.ID, Kind: models.AlertSpike, Message: "spike", Threshold: 5, Current: 7,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, reopened.ID)
}

func testStats(t *testing.T, s Store) {
	ctx := context.Background()
	tesla := seedBrand(t, s, "Tesla")
	apple := seedBrand(t, s, "Apple")
	day := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	inputs := []models.Mention{
		mention(tesla.ID, models.SourceNews, "1", models.SentimentPositive, day),
		mention(tesla.ID, models.SourceNews, "2", models.SentimentNegative, day),
		mention(tesla.ID, models.SourceBlog, "3", models.SentimentNeutral, day.Add(24*time.Hour)),
		mention(apple.ID, models.SourceNews, "4", models.SentimentPositive, day),
	}
	inputs[2].Topic = "factory"
	for _, m := range inputs {
		_, err := s.InsertMention(ctx, m)
		require.NoError(t, err)
	}

	filter := models.StatsFilter{BrandID: tesla.ID, Since: day.Add(-time.Hour)}

	sentiment, err := s.SentimentStats(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, sentiment.Positive)
	assert.Equal(t, 1, sentiment.Neutral)
	assert.Equal(t, 1, sentiment.Negative)
	assert.InDelta(t, 0.0, sentiment.AvgSentiment, 1e-9)
	assert.Equal(t, 33.3, sentiment.PositivePct)

	topics, err := s.TopicStats(ctx, filter)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, models.TopicStat{Topic: "battery", Count: 2, AvgSentiment: 0}, topics[0])

	sourceStats, err := s.SourceStats(ctx, filter)
	require.NoError(t, err)
	require.Len(t, sourceStats, 2)
	assert.Equal(t, models.SourceNews, sourceStats[0].Source)
	assert.Equal(t, 2, sourceStats[0].Count)
	assert.Equal(t, 1, sourceStats[0].Positive)
	assert.Equal(t, 1, sourceStats[0].Negative)

	timeline, err := s.Timeline(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, []models.TimelinePoint{
		{Day: "2024-05-10", Count: 2, Positive: 1, Negative: 1},
		{Day: "2024-05-11", Count: 1, Neutral: 1},
	}, timeline)

	all, err := s.SentimentStats(ctx, models.StatsFilter{Since: day.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Positive)

	empty, err := s.SentimentStats(ctx, models.StatsFilter{Since: day.Add(30 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, models.SentimentStats{}, empty)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())

	_, err = Open(ctx, "mysql://localhost/brandradar")
	assert.Error(t, err)
}

func TestSentimentStatsPercentages(t *testing.T) {
	stats := newSentimentStats(2, 1, 0, 0.3)
	assert.Equal(t, 66.7, stats.PositivePct)
	assert.Equal(t, 33.3, stats.NeutralPct)
	assert.Equal(t, 0.0, stats.NegativePct)
}
