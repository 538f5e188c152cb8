package domain

import "time"

// Membership roles, ordered by privilege.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Organization represents a tenant. Every resource in the platform hangs
// off an organization.
type Organization struct {
	ID        string
	Name      string
	Slug      string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Membership links a user to an organization with a role.
type Membership struct {
	OrgID    string
	UserID   string
	Role     string
	JoinedAt time.Time
}

// IsAdminOrOwner reports whether the membership carries management rights.
func (m Membership) IsAdminOrOwner() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin
}

// Invitation is a pending, token-based offer to join an organization.
type Invitation struct {
	ID         string
	OrgID      string
	Email      string
	Role       string
	InvitedBy  string
	Token      string
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
}

// IsExpired reports whether the invitation has passed its expiry.
func (i Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// CanAccept reports whether the invitation is still open.
func (i Invitation) CanAccept(now time.Time) bool {
	return i.AcceptedAt == nil && !i.IsExpired(now)
}
