package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/repository"
)

const userColumns = `id, email, name, password_hash, email_verified, email_verification_token,
	password_reset_token, password_reset_expires_at, magic_link_token, magic_link_expires_at,
	is_staff, created_at, updated_at`

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, name, password_hash, email_verified, email_verification_token, is_staff, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.EmailVerified,
		emptyToNil(user.EmailVerificationToken),
		user.IsStaff,
		user.CreatedAt,
	)
	return mapPgError(err)
}

// UpdateUser rewrites the mutable columns of a user record.
func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users
		SET name = $2,
			password_hash = $3,
			email_verified = $4,
			email_verification_token = $5,
			password_reset_token = $6,
			password_reset_expires_at = $7,
			magic_link_token = $8,
			magic_link_expires_at = $9,
			updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.PasswordHash,
		user.EmailVerified,
		emptyToNil(user.EmailVerificationToken),
		emptyToNil(user.PasswordResetToken),
		timePtrToNil(user.PasswordResetExpiresAt),
		emptyToNil(user.MagicLinkToken),
		timePtrToNil(user.MagicLinkExpiresAt),
	)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetUserByVerificationToken looks up a user by email verification token.
func (r *Repository) GetUserByVerificationToken(ctx context.Context, token string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email_verification_token = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, token))
}

// GetUserByResetToken looks up a user by password reset token.
func (r *Repository) GetUserByResetToken(ctx context.Context, token string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE password_reset_token = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, token))
}

// GetUserByMagicLinkToken looks up a user by magic link token.
func (r *Repository) GetUserByMagicLinkToken(ctx context.Context, token string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE magic_link_token = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, token))
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u            domain.User
		verifyToken  sql.NullString
		resetToken   sql.NullString
		resetExpires sql.NullTime
		magicToken   sql.NullString
		magicExpires sql.NullTime
	)
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.EmailVerified,
		&verifyToken,
		&resetToken,
		&resetExpires,
		&magicToken,
		&magicExpires,
		&u.IsStaff,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if verifyToken.Valid {
		u.EmailVerificationToken = verifyToken.String
	}
	if resetToken.Valid {
		u.PasswordResetToken = resetToken.String
	}
	if resetExpires.Valid {
		value := resetExpires.Time.UTC()
		u.PasswordResetExpiresAt = &value
	}
	if magicToken.Valid {
		u.MagicLinkToken = magicToken.String
	}
	if magicExpires.Valid {
		value := magicExpires.Time.UTC()
		u.MagicLinkExpiresAt = &value
	}
	return &u, nil
}
