package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brandradar/brandradar/internal/models"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists brands, mentions and alerts in a local SQLite file.
// Times are stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS brands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		keywords TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS mentions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		brand_id INTEGER NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
		source TEXT NOT NULL,
		source_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		sentiment TEXT NOT NULL,
		sentiment_score REAL NOT NULL DEFAULT 0,
		topic TEXT NOT NULL DEFAULT '',
		observed_at INTEGER NOT NULL,
		ingested_at INTEGER NOT NULL,
		UNIQUE(source, source_id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_mentions_brand_observed ON mentions(brand_id, observed_at);`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		brand_id INTEGER NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		threshold_value REAL NOT NULL,
		current_value REAL NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_one_active ON alerts(brand_id, kind) WHERE active = 1;`,
}

// NewSQLiteStore opens (creating if needed) the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logrus.Infof("Opened SQLite store at %s", path)
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range sqliteSchema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListBrands(ctx context.Context) ([]models.Brand, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, keywords, created_at FROM brands ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query brands: %w", err)
	}
	defer rows.Close()

	var brands []models.Brand
	for rows.Next() {
		brand, err := scanSQLiteBrand(rows)
		if err != nil {
			return nil, err
		}
		brands = append(brands, brand)
	}
	return brands, rows.Err()
}

func (s *SQLiteStore) GetBrand(ctx context.Context, id int64) (models.Brand, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, keywords, created_at FROM brands WHERE id = ?`, id)
	brand, err := scanSQLiteBrand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Brand{}, ErrNotFound
	}
	return brand, err
}

func (s *SQLiteStore) UpsertBrand(ctx context.Context, brand models.Brand) (models.Brand, bool, error) {
	name := strings.TrimSpace(brand.Name)
	if name == "" {
		return models.Brand{}, false, errors.New("brand name is required")
	}
	keywords, err := json.Marshal(nonNil(brand.Keywords))
	if err != nil {
		return models.Brand{}, false, fmt.Errorf("marshal keywords: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Brand{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	created := false
	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM brands WHERE name = ?`, name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		createdAt := brand.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO brands (name, keywords, created_at) VALUES (?, ?, ?)`,
			name, string(keywords), createdAt.UnixMilli())
		if err != nil {
			return models.Brand{}, false, fmt.Errorf("insert brand: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return models.Brand{}, false, fmt.Errorf("insert brand: %w", err)
		}
		created = true
	case err != nil:
		return models.Brand{}, false, fmt.Errorf("lookup brand: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `UPDATE brands SET keywords = ? WHERE id = ?`, string(keywords), id); err != nil {
			return models.Brand{}, false, fmt.Errorf("update brand: %w", err)
		}
	}

	row := tx.QueryRowContext(ctx, `SELECT id, name, keywords, created_at FROM brands WHERE id = ?`, id)
	stored, err := scanSQLiteBrand(row)
	if err != nil {
		return models.Brand{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return models.Brand{}, false, fmt.Errorf("commit brand: %w", err)
	}
	return stored, created, nil
}

func (s *SQLiteStore) InsertMention(ctx context.Context, m models.Mention) (bool, error) {
	ingestedAt := m.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mentions (brand_id, source, source_id, url, title, text, author, sentiment, sentiment_score, topic, observed_at, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, source_id) DO NOTHING
	`, m.BrandID, string(m.Source), m.SourceID, m.URL, m.Title, m.Body, m.Author, string(m.Sentiment),
		m.SentimentScore, m.Topic, m.ObservedAt.UnixMilli(), ingestedAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("insert mention: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert mention: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) CountMentions(ctx context.Context, brandID int64, from, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mentions WHERE brand_id = ? AND observed_at >= ? AND observed_at < ?
	`, brandID, from.UnixMilli(), to.UnixMilli()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count mentions: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) CountMentionsBySentiment(ctx context.Context, brandID int64, from, to time.Time) (map[models.SentimentLabel]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sentiment, COUNT(*) FROM mentions
		WHERE brand_id = ? AND observed_at >= ? AND observed_at < ?
		GROUP BY sentiment
	`, brandID, from.UnixMilli(), to.UnixMilli())
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

func (s *SQLiteStore) ListMentions(ctx context.Context, filter models.MentionFilter) ([]models.Mention, error) {
	var conds []string
	var args []interface{}
	if filter.BrandID > 0 {
		conds = append(conds, "brand_id = ?")
		args = append(args, filter.BrandID)
	}
	if filter.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, string(filter.Source))
	}
	if filter.Sentiment != "" {
		conds = append(conds, "sentiment = ?")
		args = append(args, string(filter.Sentiment))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "observed_at >= ?")
		args = append(args, filter.Since.UnixMilli())
	}

	query := `SELECT id, brand_id, source, source_id, url, title, text, author, sentiment, sentiment_score, topic, observed_at, ingested_at FROM mentions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY observed_at DESC, id DESC LIMIT ?"
	args = append(args, mentionLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mentions: %w", err)
	}
	defer rows.Close()

	var mentions []models.Mention
	for rows.Next() {
		var m models.Mention
		var source, sentiment string
		var observedAt, ingestedAt int64
		if err := rows.Scan(&m.ID, &m.BrandID, &source, &m.SourceID, &m.URL, &m.Title, &m.Body, &m.Author,
			&sentiment, &m.SentimentScore, &m.Topic, &observedAt, &ingestedAt); err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		m.Source = models.SourceKind(source)
		m.Sentiment = models.SentimentLabel(sentiment)
		m.ObservedAt = time.UnixMilli(observedAt).UTC()
		m.IngestedAt = time.UnixMilli(ingestedAt).UTC()
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}

func (s *SQLiteStore) DeleteMentionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mentions WHERE observed_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete mentions: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) CreateAlertIfAbsent(ctx context.Context, alert models.Alert) (models.Alert, bool, error) {
	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (brand_id, kind, message, threshold_value, current_value, active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT DO NOTHING
	`, alert.BrandID, string(alert.Kind), alert.Message, alert.Threshold, alert.Current, createdAt.UnixMilli())
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("insert alert: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return models.Alert{}, false, fmt.Errorf("insert alert: %w", err)
		}
		alert.ID = id
		alert.Active = true
		alert.CreatedAt = time.UnixMilli(createdAt.UnixMilli()).UTC()
		return alert, true, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, brand_id, kind, message, threshold_value, current_value, active, created_at
		FROM alerts WHERE brand_id = ? AND kind = ? AND active = 1
	`, alert.BrandID, string(alert.Kind))
	existing, err := scanSQLiteAlert(row)
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("load active alert: %w", err)
	}
	return existing, false, nil
}

func (s *SQLiteStore) ListActiveAlerts(ctx context.Context, brandID int64) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, brand_id, kind, message, threshold_value, current_value, active, created_at
		FROM alerts WHERE active = 1 AND (? = 0 OR brand_id = ?)
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, brandID, brandID, MaxAlertResults)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		alert, err := scanSQLiteAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (s *SQLiteStore) DismissAlert(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("dismiss alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dismiss alert: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// sqliteStatsWhere scopes aggregate queries to a brand and window.
func sqliteStatsWhere(filter models.StatsFilter) (string, []interface{}) {
	where := "observed_at >= ?"
	args := []interface{}{filter.Since.UnixMilli()}
	if filter.BrandID > 0 {
		where += " AND brand_id = ?"
		args = append(args, filter.BrandID)
	}
	return where, args
}

func (s *SQLiteStore) SentimentStats(ctx context.Context, filter models.StatsFilter) (models.SentimentStats, error) {
	where, args := sqliteStatsWhere(filter)

	var positive, neutral, negative int
	var avg float64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN sentiment = 'positive' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sentiment = 'neutral' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sentiment = 'negative' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(sentiment_score), 0)
		FROM mentions WHERE `+where, args...).Scan(&positive, &neutral, &negative, &avg)
	if err != nil {
		return models.SentimentStats{}, fmt.Errorf("sentiment stats: %w", err)
	}
	return newSentimentStats(positive, neutral, negative, avg), nil
}

func (s *SQLiteStore) TopicStats(ctx context.Context, filter models.StatsFilter) ([]models.TopicStat, error) {
	where, args := sqliteStatsWhere(filter)
	args = append(args, MaxTopicResults)

	rows, err := s.db.QueryContext(ctx, `
		SELECT topic, COUNT(*) AS n, COALESCE(AVG(sentiment_score), 0)
		FROM mentions WHERE `+where+` AND topic <> ''
		GROUP BY topic ORDER BY n DESC, topic LIMIT ?`, args...)
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

func (s *SQLiteStore) SourceStats(ctx context.Context, filter models.StatsFilter) ([]models.SourceStat, error) {
	where, args := sqliteStatsWhere(filter)

	rows, err := s.db.QueryContext(ctx, `
		SELECT source, COUNT(*) AS n,
			COALESCE(SUM(CASE WHEN sentiment = 'positive' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sentiment = 'negative' THEN 1 ELSE 0 END), 0),
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

func (s *SQLiteStore) Timeline(ctx context.Context, filter models.StatsFilter) ([]models.TimelinePoint, error) {
	where, args := sqliteStatsWhere(filter)

	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', observed_at / 1000, 'unixepoch') AS day, COUNT(*),
			COALESCE(SUM(CASE WHEN sentiment = 'positive' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sentiment = 'negative' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sentiment = 'neutral' THEN 1 ELSE 0 END), 0)
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

func (s *SQLiteStore) Counts(ctx context.Context) (models.Counts, error) {
	var c models.Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM brands), (SELECT COUNT(*) FROM mentions), (SELECT COUNT(*) FROM alerts WHERE active = 1)
	`).Scan(&c.Brands, &c.Mentions, &c.Alerts)
	if err != nil {
		return models.Counts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteBrand(row rowScanner) (models.Brand, error) {
	var b models.Brand
	var keywords string
	var createdAt int64
	if err := row.Scan(&b.ID, &b.Name, &keywords, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Brand{}, err
		}
		return models.Brand{}, fmt.Errorf("scan brand: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &b.Keywords); err != nil {
		return models.Brand{}, fmt.Errorf("decode keywords for brand %d: %w", b.ID, err)
	}
	b.CreatedAt = time.UnixMilli(createdAt).UTC()
	return b, nil
}

func scanSQLiteAlert(row rowScanner) (models.Alert, error) {
	var a models.Alert
	var kind string
	var active int
	var createdAt int64
	if err := row.Scan(&a.ID, &a.BrandID, &kind, &a.Message, &a.Threshold, &a.Current, &active, &createdAt); err != nil {
		return models.Alert{}, fmt.Errorf("scan alert: %w", err)
	}
	a.Kind = models.AlertKind(kind)
	a.Active = active == 1
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	return a, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
