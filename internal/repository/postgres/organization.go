package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/repository"
)

// CreateOrganization inserts an organization record.
func (r *Repository) CreateOrganization(ctx context.Context, org *domain.Organization) error {
	const query = `INSERT INTO organizations (id, name, slug, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`
	_, err := r.pool.Exec(ctx, query, org.ID, org.Name, org.Slug, org.OwnerID, org.CreatedAt)
	return mapPgError(err)
}

// UpdateOrganization mutates organization metadata.
func (r *Repository) UpdateOrganization(ctx context.Context, org *domain.Organization) error {
	const query = `UPDATE organizations SET name = $2, slug = $3, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	var updatedAt time.Time
	if err := r.pool.QueryRow(ctx, query, org.ID, org.Name, org.Slug).Scan(&updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return mapPgError(err)
	}
	org.UpdatedAt = updatedAt
	return nil
}

// DeleteOrganization removes an organization and, via cascades, its
// memberships, invitations, flags and analytics.
func (r *Repository) DeleteOrganization(ctx context.Context, orgID string) error {
	const query = `DELETE FROM organizations WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetOrganizationByID returns an organization by identifier.
func (r *Repository) GetOrganizationByID(ctx context.Context, orgID string) (*domain.Organization, error) {
	const query = `SELECT id, name, slug, owner_id, created_at, updated_at FROM organizations WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, orgID)
	var org domain.Organization
	if err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.OwnerID, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// SlugExists reports whether an organization slug is taken.
func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM organizations WHERE slug = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, slug).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ListOrganizationsByUser returns organizations the user belongs to.
func (r *Repository) ListOrganizationsByUser(ctx context.Context, userID string) ([]domain.Organization, error) {
	const query = `SELECT o.id, o.name, o.slug, o.owner_id, o.created_at, o.updated_at
		FROM organizations o
		INNER JOIN memberships m ON m.org_id = o.id
		WHERE m.user_id = $1
		ORDER BY o.created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orgs := make([]domain.Organization, 0)
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &org.OwnerID, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// UpsertMembership adds a member or updates their role.
func (r *Repository) UpsertMembership(ctx context.Context, member *domain.Membership) error {
	const query = `INSERT INTO memberships (org_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (org_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	_, err := r.pool.Exec(ctx, query, member.OrgID, member.UserID, member.Role, member.JoinedAt)
	return mapPgError(err)
}

// DeleteMembership removes a member from an organization.
func (r *Repository) DeleteMembership(ctx context.Context, orgID, userID string) error {
	const query = `DELETE FROM memberships WHERE org_id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, orgID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetMembership loads a single membership.
func (r *Repository) GetMembership(ctx context.Context, orgID, userID string) (*domain.Membership, error) {
	const query = `SELECT org_id, user_id, role, joined_at FROM memberships WHERE org_id = $1 AND user_id = $2`
	row := r.pool.QueryRow(ctx, query, orgID, userID)
	var m domain.Membership
	if err := row.Scan(&m.OrgID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListMemberships enumerates members of an organization.
func (r *Repository) ListMemberships(ctx context.Context, orgID string) ([]domain.Membership, error) {
	const query = `SELECT org_id, user_id, role, joined_at FROM memberships
		WHERE org_id = $1 ORDER BY joined_at ASC`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.Membership, 0)
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CreateInvitation inserts a pending invitation.
func (r *Repository) CreateInvitation(ctx context.Context, invite *domain.Invitation) error {
	const query = `INSERT INTO invitations (id, org_id, email, role, invited_by, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		invite.ID,
		invite.OrgID,
		invite.Email,
		invite.Role,
		invite.InvitedBy,
		invite.Token,
		invite.ExpiresAt,
		invite.CreatedAt,
	)
	return mapPgError(err)
}

// GetInvitationByToken fetches an invitation by its secure token.
func (r *Repository) GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	const query = `SELECT id, org_id, email, role, invited_by, token, expires_at, accepted_at, created_at
		FROM invitations WHERE token = $1`
	return r.scanInvitation(r.pool.QueryRow(ctx, query, token))
}

// GetPendingInvitation returns an open invitation for the email, if any.
func (r *Repository) GetPendingInvitation(ctx context.Context, orgID, email string) (*domain.Invitation, error) {
	const query = `SELECT id, org_id, email, role, invited_by, token, expires_at, accepted_at, created_at
		FROM invitations WHERE org_id = $1 AND email = $2 AND accepted_at IS NULL`
	return r.scanInvitation(r.pool.QueryRow(ctx, query, orgID, email))
}

// ListInvitationsByOrg enumerates invitations for an organization.
func (r *Repository) ListInvitationsByOrg(ctx context.Context, orgID string) ([]domain.Invitation, error) {
	const query = `SELECT id, org_id, email, role, invited_by, token, expires_at, accepted_at, created_at
		FROM invitations WHERE org_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invites := make([]domain.Invitation, 0)
	for rows.Next() {
		invite, err := r.scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, *invite)
	}
	return invites, rows.Err()
}

// MarkInvitationAccepted stamps the acceptance time.
func (r *Repository) MarkInvitationAccepted(ctx context.Context, inviteID string, acceptedAt time.Time) error {
	const query = `UPDATE invitations SET accepted_at = $2 WHERE id = $1 AND accepted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, inviteID, acceptedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteInvitation removes an invitation belonging to the organization.
func (r *Repository) DeleteInvitation(ctx context.Context, orgID, inviteID string) error {
	const query = `DELETE FROM invitations WHERE id = $1 AND org_id = $2`
	tag, err := r.pool.Exec(ctx, query, inviteID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteExpiredInvitations purges unaccepted invitations past the cutoff.
func (r *Repository) DeleteExpiredInvitations(ctx context.Context, expiredBefore time.Time) (int64, error) {
	const query = `DELETE FROM invitations WHERE accepted_at IS NULL AND expires_at < $1`
	tag, err := r.pool.Exec(ctx, query, expiredBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) scanInvitation(row pgx.Row) (*domain.Invitation, error) {
	var (
		invite   domain.Invitation
		accepted sql.NullTime
	)
	if err := row.Scan(
		&invite.ID,
		&invite.OrgID,
		&invite.Email,
		&invite.Role,
		&invite.InvitedBy,
		&invite.Token,
		&invite.ExpiresAt,
		&accepted,
		&invite.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if accepted.Valid {
		value := accepted.Time.UTC()
		invite.AcceptedAt = &value
	}
	return &invite, nil
}
