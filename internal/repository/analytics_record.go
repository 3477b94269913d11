package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pagedrop/pagedrop/internal/model"
)

// DefaultTopPathsLimit caps the top paths list in stats responses.
const DefaultTopPathsLimit = 10

// AnalyticsRecordRepository provides database access for analytics records.
type AnalyticsRecordRepository struct {
	repo *Repository
}

// NewAnalyticsRecordRepository creates a new AnalyticsRecordRepository.
func NewAnalyticsRecordRepository(repo *Repository) *AnalyticsRecordRepository {
	return &AnalyticsRecordRepository{repo: repo}
}

const insertRecordQuery = `
	INSERT INTO analytics_records (
		id, event_id, site_id, session_id, visitor_id, ip_hash, user_agent,
		browser, os, device_type, referrer, path, query, event_type, is_custom,
		event_name, event_data, session_start, session_duration, load_time,
		bandwidth, screen_size, language, country_code, is_bot, bot_name,
		occurred_at, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28
	)
	ON CONFLICT (event_id) DO NOTHING
`

// BulkInsert inserts records with idempotency via ON CONFLICT DO NOTHING.
func (r *AnalyticsRecordRepository) BulkInsert(ctx context.Context, records []*model.AnalyticsRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, record := range records {
		args, err := recordArgs(record)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", record.EventID, err)
		}
		batch.Queue(insertRecordQuery, args...)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(records); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert record %d: %w", i, err)
		}
	}

	return nil
}

func recordArgs(record *model.AnalyticsRecord) ([]any, error) {
	query := record.Query
	if query == nil {
		query = map[string]string{}
	}
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	data := record.EventData
	if data == nil {
		data = map[string]any{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return []any{
		record.ID,
		record.EventID,
		record.SiteID,
		record.SessionID,
		record.VisitorID,
		record.IPHash,
		nullableString(record.UserAgent),
		record.Browser,
		record.OS,
		record.DeviceType,
		nullableString(record.Referrer),
		record.Path,
		queryJSON,
		record.EventType,
		record.IsCustom,
		nullableString(record.EventName),
		dataJSON,
		record.SessionStart,
		record.SessionDuration,
		record.LoadTime,
		record.Bandwidth,
		nullableString(record.ScreenSize),
		nullableString(record.Language),
		nullableString(record.CountryCode),
		record.IsBot,
		nullableString(record.BotName),
		record.Timestamp,
		createdAt,
	}, nil
}

// RecordTotals are aggregate counts over a period.
type RecordTotals struct {
	Pageviews      int64
	UniqueVisitors int64
	Sessions       int64
	BotHits        int64
}

// GetRecordTotals aggregates persisted records of a site in [from, to).
func (r *AnalyticsRecordRepository) GetRecordTotals(ctx context.Context, siteID string, from, to time.Time) (*RecordTotals, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE event_type = 'pageview' AND NOT is_bot) AS pageviews,
			COUNT(DISTINCT visitor_id) FILTER (WHERE NOT is_bot) AS unique_visitors,
			COUNT(DISTINCT session_id) FILTER (WHERE NOT is_bot) AS sessions,
			COUNT(*) FILTER (WHERE is_bot) AS bot_hits
		FROM analytics_records
		WHERE site_id = $1 AND occurred_at >= $2 AND occurred_at < $3
	`

	var totals RecordTotals
	err := r.repo.pool.QueryRow(ctx, query, siteID, from, to).Scan(
		&totals.Pageviews,
		&totals.UniqueVisitors,
		&totals.Sessions,
		&totals.BotHits,
	)
	if err != nil {
		return nil, fmt.Errorf("query record totals: %w", err)
	}

	return &totals, nil
}

// GetTopPaths returns the most viewed paths of a site in [from, to).
func (r *AnalyticsRecordRepository) GetTopPaths(ctx context.Context, siteID string, from, to time.Time, limit int) ([]model.PathCount, error) {
	if limit <= 0 {
		limit = DefaultTopPathsLimit
	}

	query := `
		SELECT split_part(path, '?', 1) AS page, COUNT(*) AS views
		FROM analytics_records
		WHERE site_id = $1 AND occurred_at >= $2 AND occurred_at < $3
			AND event_type = 'pageview' AND NOT is_bot
		GROUP BY page
		ORDER BY views DESC, page ASC
		LIMIT $4
	`

	rows, err := r.repo.pool.Query(ctx, query, siteID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query top paths: %w", err)
	}
	defer rows.Close()

	var paths []model.PathCount
	for rows.Next() {
		var p model.PathCount
		if err := rows.Scan(&p.Path, &p.Views); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		paths = append(paths, p)
	}

	return paths, rows.Err()
}

// nullableString returns nil for empty strings.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
