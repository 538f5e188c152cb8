package postgres

import (
	"context"
	"time"

	"github.com/launchpadhq/launchpad/internal/domain"
)

// InsertEvent records a tracked event and fills in its generated ID.
func (r *Repository) InsertEvent(ctx context.Context, event *domain.Event) error {
	const query = `INSERT INTO events (org_id, user_id, name, properties, timestamp, received_at, ip_address, user_agent)
		VALUES ($1, $2, $3, COALESCE($4, '{}'::jsonb), $5, $6, $7, $8)
		RETURNING id`
	row := r.pool.QueryRow(ctx, query,
		event.OrgID,
		event.UserID,
		event.Name,
		bytesToNil(event.Properties),
		event.Timestamp,
		event.ReceivedAt,
		emptyToNil(event.IPAddress),
		emptyToNil(event.UserAgent),
	)
	if err := row.Scan(&event.ID); err != nil {
		return mapPgError(err)
	}
	return nil
}

// CountDailyActiveUsers returns distinct event users per day, keyed by
// the day formatted as 2006-01-02. Days with no activity are absent.
func (r *Repository) CountDailyActiveUsers(ctx context.Context, orgID string, from, to time.Time) (map[string]int, error) {
	const query = `SELECT to_char(date_trunc('day', timestamp), 'YYYY-MM-DD') AS day, COUNT(DISTINCT user_id)
		FROM events
		WHERE org_id = $1 AND user_id IS NOT NULL AND timestamp >= $2 AND timestamp < $3
		GROUP BY day`
	rows, err := r.pool.Query(ctx, query, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, err
		}
		counts[day] = count
	}
	return counts, rows.Err()
}

// CountActiveUsers returns the number of distinct users with at least one
// event in the window.
func (r *Repository) CountActiveUsers(ctx context.Context, orgID string, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(DISTINCT user_id) FROM events
		WHERE org_id = $1 AND user_id IS NOT NULL AND timestamp >= $2 AND timestamp < $3`
	var count int
	if err := r.pool.QueryRow(ctx, query, orgID, from, to).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountNewMembers counts memberships that joined within the window.
func (r *Repository) CountNewMembers(ctx context.Context, orgID string, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM memberships
		WHERE org_id = $1 AND joined_at >= $2 AND joined_at < $3`
	var count int
	if err := r.pool.QueryRow(ctx, query, orgID, from, to).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountEventsByName returns per-event occurrence totals in the window,
// most frequent first.
func (r *Repository) CountEventsByName(ctx context.Context, orgID string, from, to time.Time) ([]domain.EventCount, error) {
	const query = `SELECT name, COUNT(*) FROM events
		WHERE org_id = $1 AND timestamp >= $2 AND timestamp < $3
		GROUP BY name
		ORDER BY COUNT(*) DESC, name`
	rows, err := r.pool.Query(ctx, query, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.EventCount
	for rows.Next() {
		var c domain.EventCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// UpsertDailyMetric writes one day's rollup for an organization.
func (r *Repository) UpsertDailyMetric(ctx context.Context, metric *domain.DailyMetric) error {
	const query = `INSERT INTO daily_metrics (org_id, date, dau, new_users, revenue_cents, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (org_id, date) DO UPDATE SET
			dau = EXCLUDED.dau,
			new_users = EXCLUDED.new_users,
			revenue_cents = EXCLUDED.revenue_cents,
			updated_at = NOW()`
	_, err := r.pool.Exec(ctx, query, metric.OrgID, metric.Date, metric.DAU, metric.NewUsers, metric.RevenueCents)
	return mapPgError(err)
}

// UpsertMonthlyMetric writes one month's rollup for an organization.
func (r *Repository) UpsertMonthlyMetric(ctx context.Context, metric *domain.MonthlyMetric) error {
	const query = `INSERT INTO monthly_metrics (org_id, year, month, mau, mrr_cents, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (org_id, year, month) DO UPDATE SET
			mau = EXCLUDED.mau,
			mrr_cents = EXCLUDED.mrr_cents,
			updated_at = NOW()`
	_, err := r.pool.Exec(ctx, query, metric.OrgID, metric.Year, metric.Month, metric.MAU, metric.MRRCents)
	return mapPgError(err)
}

// ListDailyMetrics returns rollups inside [from, to) ordered by date.
func (r *Repository) ListDailyMetrics(ctx context.Context, orgID string, from, to time.Time) ([]domain.DailyMetric, error) {
	const query = `SELECT org_id, date, dau, new_users, revenue_cents, updated_at
		FROM daily_metrics
		WHERE org_id = $1 AND date >= $2 AND date < $3
		ORDER BY date`
	rows, err := r.pool.Query(ctx, query, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := make([]domain.DailyMetric, 0)
	for rows.Next() {
		var m domain.DailyMetric
		if err := rows.Scan(&m.OrgID, &m.Date, &m.DAU, &m.NewUsers, &m.RevenueCents, &m.UpdatedAt); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// ListMonthlyMetrics returns the most recent monthly rollups.
func (r *Repository) ListMonthlyMetrics(ctx context.Context, orgID string, limit int) ([]domain.MonthlyMetric, error) {
	const query = `SELECT org_id, year, month, mau, mrr_cents, updated_at
		FROM monthly_metrics
		WHERE org_id = $1
		ORDER BY year DESC, month DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := make([]domain.MonthlyMetric, 0)
	for rows.Next() {
		var m domain.MonthlyMetric
		if err := rows.Scan(&m.OrgID, &m.Year, &m.Month, &m.MAU, &m.MRRCents, &m.UpdatedAt); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// ListOrganizationIDs returns every organization ID, used by the rollup worker.
func (r *Repository) ListOrganizationIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM organizations ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
