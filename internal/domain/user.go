package domain

import "time"

// User represents a platform account. Email is the login identifier.
type User struct {
	ID                     string
	Email                  string
	Name                   string
	PasswordHash           []byte
	EmailVerified          bool
	EmailVerificationToken string
	PasswordResetToken     string
	PasswordResetExpiresAt *time.Time
	MagicLinkToken         string
	MagicLinkExpiresAt     *time.Time
	IsStaff                bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
