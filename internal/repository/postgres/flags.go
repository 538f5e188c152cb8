package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/repository"
)

// UpsertFeatureFlag stores an organization-level override.
func (r *Repository) UpsertFeatureFlag(ctx context.Context, flag *domain.FeatureFlag) error {
	const query = `INSERT INTO feature_flags (org_id, key, enabled, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (org_id, key) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, query, flag.OrgID, flag.Key, flag.Enabled)
	return mapPgError(err)
}

// DeleteFeatureFlag removes an override, falling back to plan defaults.
func (r *Repository) DeleteFeatureFlag(ctx context.Context, orgID, key string) error {
	const query = `DELETE FROM feature_flags WHERE org_id = $1 AND key = $2`
	tag, err := r.pool.Exec(ctx, query, orgID, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetFeatureFlag loads a single override.
func (r *Repository) GetFeatureFlag(ctx context.Context, orgID, key string) (*domain.FeatureFlag, error) {
	const query = `SELECT org_id, key, enabled, updated_at FROM feature_flags WHERE org_id = $1 AND key = $2`
	row := r.pool.QueryRow(ctx, query, orgID, key)
	var f domain.FeatureFlag
	if err := row.Scan(&f.OrgID, &f.Key, &f.Enabled, &f.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// ListFeatureFlags enumerates overrides for an organization.
func (r *Repository) ListFeatureFlags(ctx context.Context, orgID string) ([]domain.FeatureFlag, error) {
	const query = `SELECT org_id, key, enabled, updated_at FROM feature_flags WHERE org_id = $1 ORDER BY key`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flags := make([]domain.FeatureFlag, 0)
	for rows.Next() {
		var f domain.FeatureFlag
		if err := rows.Scan(&f.OrgID, &f.Key, &f.Enabled, &f.UpdatedAt); err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}
