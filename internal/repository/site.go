package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/pagedrop/pagedrop/internal/model"
)

// Common errors for site repository operations.
var (
	ErrSiteNotFound = errors.New("site not found")
	ErrSiteExists   = errors.New("site already exists")
)

const siteColumns = `id, name, domain, status, analytics_configured, analytics_enabled,
	analytics_exclude_admin, hit_count, session_count, created_at, updated_at`

// GetSiteByID retrieves a site by its id.
// This is the hot path for hit ingestion on cache misses.
func (r *Repository) GetSiteByID(ctx context.Context, id string) (*model.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = $1`

	site, err := scanSite(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSiteNotFound
		}
		return nil, fmt.Errorf("failed to get site by ID: %w", err)
	}

	return site, nil
}

// CreateSite inserts a site. Used by the seed script and tests; the hosting
// platform owns sites in production.
func (r *Repository) CreateSite(ctx context.Context, site *model.Site) error {
	query := `
		INSERT INTO sites (id, name, domain, status, analytics_configured, analytics_enabled,
			analytics_exclude_admin, hit_count, session_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	configured, enabled, excludeAdmin := false, true, false
	if site.Analytics != nil {
		configured = true
		enabled = site.Analytics.Enabled
		excludeAdmin = site.Analytics.ExcludeAdmin
	}

	_, err := r.pool.Exec(ctx, query,
		site.ID,
		site.Name,
		site.Domain,
		site.Status,
		configured,
		enabled,
		excludeAdmin,
		site.HitCount,
		site.SessionCount,
		site.CreatedAt,
		site.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSiteExists
		}
		return fmt.Errorf("failed to create site: %w", err)
	}

	return nil
}

// ApplyCounterDeltas adds flushed Redis counters to the persisted totals in a
// single statement. It returns the ids that matched no site.
func (r *Repository) ApplyCounterDeltas(ctx context.Context, deltas map[string]model.SiteCounters) ([]string, error) {
	if len(deltas) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	hits := make([]int64, len(ids))
	sessions := make([]int64, len(ids))
	bots := make([]int64, len(ids))
	for i, id := range ids {
		hits[i] = deltas[id].Hits
		sessions[i] = deltas[id].Sessions
		bots[i] = deltas[id].BotHits
	}

	query := `
		UPDATE sites AS s SET
			hit_count = s.hit_count + d.hits,
			session_count = s.session_count + d.sessions,
			bot_hit_count = s.bot_hit_count + d.bots,
			updated_at = NOW()
		FROM unnest($1::text[], $2::bigint[], $3::bigint[], $4::bigint[]) AS d(id, hits, sessions, bots)
		WHERE s.id = d.id
		RETURNING s.id
	`

	rows, err := r.pool.Query(ctx, query, pq.Array(ids), pq.Array(hits), pq.Array(sessions), pq.Array(bots))
	if err != nil {
		return nil, fmt.Errorf("failed to apply counter deltas: %w", err)
	}
	defer rows.Close()

	updated := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan updated site: %w", err)
		}
		updated[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updated sites: %w", err)
	}

	var missing []string
	for _, id := range ids {
		if !updated[id] {
			missing = append(missing, id)
		}
	}

	return missing, nil
}

func scanSite(row pgx.Row) (*model.Site, error) {
	var site model.Site
	var configured, enabled, excludeAdmin bool

	err := row.Scan(
		&site.ID,
		&site.Name,
		&site.Domain,
		&site.Status,
		&configured,
		&enabled,
		&excludeAdmin,
		&site.HitCount,
		&site.SessionCount,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if configured {
		site.Analytics = &model.SiteAnalytics{Enabled: enabled, ExcludeAdmin: excludeAdmin}
	}

	return &site, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	// PostgreSQL error code 23505 is unique_violation
	return err != nil && (strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "unique"))
}
