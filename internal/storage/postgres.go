package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/brandradar/brandradar/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

//go:embed sql/*.sql
var migrationFS embed.FS

// PostgresStore persists brands, mentions and alerts in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to databaseURL and runs the embedded migrations.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logrus.Infof("Connected to PostgreSQL store at %s", cfg.ConnConfig.Host)
	return s, nil
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationFS.ReadFile("sql/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ListBrands(ctx context.Context) ([]models.Brand, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, keywords, created_at FROM brands ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query brands: %w", err)
	}
	defer rows.Close()

	var brands []models.Brand
	for rows.Next() {
		var b models.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.Keywords, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

func (s *PostgresStore) GetBrand(ctx context.Context, id int64) (models.Brand, error) {
	var b models.Brand
	err := s.pool.QueryRow(ctx, `SELECT id, name, keywords, created_at FROM brands WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.Keywords, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Brand{}, ErrNotFound
	}
	if err != nil {
		return models.Brand{}, fmt.Errorf("get brand: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) UpsertBrand(ctx context.Context, brand models.Brand) (models.Brand, bool, error) {
	name := strings.TrimSpace(brand.Name)
	if name == "" {
		return models.Brand{}, false, errors.New("brand name is required")
	}
	createdAt := brand.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var b models.Brand
	var created bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO brands (name, keywords, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET keywords = EXCLUDED.keywords
		RETURNING id, name, keywords, created_at, (xmax = 0)
	`, name, nonNil(brand.Keywords), createdAt).Scan(&b.ID, &b.Name, &b.Keywords, &b.CreatedAt, &created)
	if err != nil {
		return models.Brand{}, false, fmt.Errorf("upsert brand: %w", err)
	}
	return b, created, nil
}

func (s *PostgresStore) InsertMention(ctx context.Context, m models.Mention) (bool, error) {
	ingestedAt := m.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now()
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO mentions (brand_id, source, source_id, url, title, text, author, sentiment, sentiment_score, topic, observed_at, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (source, source_id) DO NOTHING
	`, m.BrandID, string(m.Source), m.SourceID, m.URL, m.Title, m.Body, m.Author, string(m.Sentiment),
		m.SentimentScore, m.Topic, m.ObservedAt, ingestedAt)
	if err != nil {
		return false, fmt.Errorf("insert mention: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CountMentions(ctx context.Context, brandID int64, from, to time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM mentions WHERE brand_id = $1 AND observed_at >= $2 AND observed_at < $3
	`, brandID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count mentions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountMentionsBySentiment(ctx context.Context, brandID int64, from, to time.Time) (map[models.SentimentLabel]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sentiment, COUNT(*) FROM mentions
		WHERE brand_id = $1 AND observed_at >= $2 AND observed_at < $3
		GROUP BY sentiment
	`, brandID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count mentions by sentiment: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.SentimentLabel]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan sentiment count: %w", err)
		}
		counts[models.SentimentLabel(label)] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) ListMentions(ctx context.Context, filter models.MentionFilter) ([]models.Mention, error) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.BrandID > 0 {
		add("brand_id = $%d", filter.BrandID)
	}
	if filter.Source != "" {
		add("source = $%d", string(filter.Source))
	}
	if filter.Sentiment != "" {
		add("sentiment = $%d", string(filter.Sentiment))
	}
	if !filter.Since.IsZero() {
		add("observed_at >= $%d", filter.Since)
	}

	query := `SELECT id, brand_id, source, source_id, url, title, text, author, sentiment, sentiment_score, topic, observed_at, ingested_at FROM mentions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, mentionLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY observed_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mentions: %w", err)
	}
	defer rows.Close()

	var mentions []models.Mention
	for rows.Next() {
		var m models.Mention
		var source, sentiment string
		if err := rows.Scan(&m.ID, &m.BrandID, &source, &m.SourceID, &m.URL, &m.Title, &m.Body, &m.Author,
			&sentiment, &m.SentimentScore, &m.Topic, &m.ObservedAt, &m.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		m.Source = models.SourceKind(source)
		m.Sentiment = models.SentimentLabel(sentiment)
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}

func (s *PostgresStore) DeleteMentionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mentions WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete mentions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CreateAlertIfAbsent(ctx context.Context, alert models.Alert) (models.Alert, bool, error) {
	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO alerts (brand_id, kind, message, threshold_value, current_value, active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at
	`, alert.BrandID, string(alert.Kind), alert.Message, alert.Threshold, alert.Current, createdAt).
		Scan(&alert.ID, &alert.CreatedAt)
	if err == nil {
		alert.Active = true
		return alert, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Alert{}, false, fmt.Errorf("insert alert: %w", err)
	}

	var existing models.Alert
	var kind string
	err = s.pool.QueryRow(ctx, `
		SELECT id, brand_id, kind, message, threshold_value, current_value, active, created_at
		FROM alerts WHERE brand_id = $1 AND kind = $2 AND active
	`, alert.BrandID, string(alert.Kind)).Scan(&existing.ID, &existing.BrandID, &kind, &existing.Message,
		&existing.Threshold, &existing.Current, &existing.Active, &existing.CreatedAt)
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("load active alert: %w", err)
	}
	existing.Kind = models.AlertKind(kind)
	return existing, false, nil
}

func (s *PostgresStore) ListActiveAlerts(ctx context.Context, brandID int64) ([]models.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, brand_id, kind, message, threshold_value, current_value, active, created_at
		FROM alerts WHERE active AND ($1 = 0 OR brand_id = $1)
		ORDER BY created_at DESC, id DESC LIMIT $2
	`, brandID, MaxAlertResults)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var kind string
		if err := rows.Scan(&a.ID, &a.BrandID, &kind, &a.Message, &a.Threshold, &a.Current, &a.Active, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Kind = models.AlertKind(kind)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *PostgresStore) DismissAlert(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("dismiss alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func postgresStatsWhere(filter models.StatsFilter) (string, []interface{}) {
	where := "observed_at >= $1"
	args := []interface{}{filter.Since}
	if filter.BrandID > 0 {
		where += " AND brand_id = $2"
		args = append(args, filter.BrandID)
	}
	return where, args
}

func (s *PostgresStore) SentimentStats(ctx context.Context, filter models.StatsFilter) (models.SentimentStats, error) {
	where, args := postgresStatsWhere(filter)

	var positive, neutral, negative int
	var avg float64
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE sentiment = 'positive'),
			COUNT(*) FILTER (WHERE sentiment = 'neutral'),
			COUNT(*) FILTER (WHERE sentiment = 'negative'),
			COALESCE(AVG(sentiment_score), 0)
		FROM mentions WHERE `+where, args...).Scan(&positive, &neutral, &negative, &avg)
	if err != nil {
		return models.SentimentStats{}, fmt.Errorf("sentiment stats: %w", err)
	}
	return newSentimentStats(positive, neutral, negative, avg), nil
}

func (s *PostgresStore) TopicStats(ctx context.Context, filter models.StatsFilter) ([]models.TopicStat, error) {
	where, args := postgresStatsWhere(filter)
	args = append(args, MaxTopicResults)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT topic, COUNT(*) AS n, COALESCE(AVG(sentiment_score), 0)
		FROM mentions WHERE %s AND topic <> ''
		GROUP BY topic ORDER BY n DESC, topic LIMIT $%d`, where, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("topic stats: %w", err)
	}
	defer rows.Close()

	var topics []models.TopicStat
	for rows.Next() {
		var t models.TopicStat
		if err := rows.Scan(&t.Topic, &t.Count, &t.AvgSentiment); err != nil {
			return nil, fmt.Errorf("scan topic stat: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func (s *PostgresStore) SourceStats(ctx context.Context, filter models.StatsFilter) ([]models.SourceStat, error) {
	where, args := postgresStatsWhere(filter)

	rows, err := s.pool.Query(ctx, `
		SELECT source, COUNT(*) AS n,
			COUNT(*) FILTER (WHERE sentiment = 'positive'),
			COUNT(*) FILTER (WHERE sentiment = 'negative'),
			COALESCE(AVG(sentiment_score), 0)
		FROM mentions WHERE `+where+`
		GROUP BY source ORDER BY n DESC, source`, args...)
	if err != nil {
		return nil, fmt.Errorf("source stats: %w", err)
	}
	defer rows.Close()

	var sources []models.SourceStat
	for rows.Next() {
		var st models.SourceStat
		var source string
		if err := rows.Scan(&source, &st.Count, &st.Positive, &st.Negative, &st.AvgSentiment); err != nil {
			return nil, fmt.Errorf("scan source stat: %w", err)
		}
		st.Source = models.SourceKind(source)
		sources = append(sources, st)
	}
	return sources, rows.Err()
}

func (s *PostgresStore) Timeline(ctx context.Context, filter models.StatsFilter) ([]models.TimelinePoint, error) {
	where, args := postgresStatsWhere(filter)

	rows, err := s.pool.Query(ctx, `
		SELECT to_char(observed_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*),
			COUNT(*) FILTER (WHERE sentiment = 'positive'),
			COUNT(*) FILTER (WHERE sentiment = 'negative'),
			COUNT(*) FILTER (WHERE sentiment = 'neutral')
		FROM mentions WHERE `+where+`
		GROUP BY day ORDER BY day`, args...)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	defer rows.Close()

	var points []models.TimelinePoint
	for rows.Next() {
		var p models.TimelinePoint
		if err := rows.Scan(&p.Day, &p.Count, &p.Positive, &p.Negative, &p.Neutral); err != nil {
			return nil, fmt.Errorf("scan timeline point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *PostgresStore) Counts(ctx context.Context) (models.Counts, error) {
	var c models.Counts
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM brands), (SELECT COUNT(*) FROM mentions), (SELECT COUNT(*) FROM alerts WHERE active)
	`).Scan(&c.Brands, &c.Mentions, &c.Alerts)
	if err != nil {
		return models.Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}
