package org

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/mailer"
	"github.com/launchpadhq/launchpad/internal/repository"
	"github.com/launchpadhq/launchpad/pkg/config"
)

var (
	// ErrForbidden is returned when the caller's role does not permit
	// the operation.
	ErrForbidden = errors.New("operation not permitted for this role")
	// ErrOwnerImmutable is returned for attempts to change or remove the
	// organization owner's membership.
	ErrOwnerImmutable = errors.New("owner membership cannot be changed")
	// ErrNotMember is returned when the target user does not belong to
	// the organization.
	ErrNotMember = errors.New("user is not a member of this organization")
	// ErrInvalidRole is returned for roles outside the known set.
	ErrInvalidRole = errors.New("role must be admin or member")
)

// Service manages organizations, memberships and invitations.
type Service struct {
	orgs    repository.OrganizationRepository
	invites repository.InvitationRepository
	users   repository.UserRepository
	mail    mailer.Mailer
	logger  *slog.Logger
	cfg     config.APIConfig
}

// New constructs a Service.
func New(orgs repository.OrganizationRepository, invites repository.InvitationRepository, users repository.UserRepository, mail mailer.Mailer, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{orgs: orgs, invites: invites, users: users, mail: mail, logger: logger, cfg: cfg}
}

// Create makes a new organization owned by userID. The creator gets an
// owner membership in the same call.
func (s Service) Create(ctx context.Context, userID, name string) (*domain.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("organization name required")
	}
	slug, err := s.uniqueSlug(ctx, name)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	org := &domain.Organization{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      slug,
		OwnerID:   userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orgs.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}
	member := &domain.Membership{OrgID: org.ID, UserID: userID, Role: domain.RoleOwner, JoinedAt: now}
	if err := s.orgs.UpsertMembership(ctx, member); err != nil {
		return nil, err
	}
	s.logger.Info("organization created", "org_id", org.ID, "slug", org.Slug, "owner_id", userID)
	return org, nil
}

// Get returns an organization the caller belongs to.
func (s Service) Get(ctx context.Context, orgID, userID string) (*domain.Organization, error) {
	if _, err := s.requireMembership(ctx, orgID, userID); err != nil {
		return nil, err
	}
	return s.orgs.GetOrganizationByID(ctx, orgID)
}

// ListForUser returns all organizations the user belongs to.
func (s Service) ListForUser(ctx context.Context, userID string) ([]domain.Organization, error) {
	return s.orgs.ListOrganizationsByUser(ctx, userID)
}

// Update renames an organization. Admins and the owner may rename.
func (s Service) Update(ctx context.Context, orgID, userID, name string) (*domain.Organization, error) {
	member, err := s.requireMembership(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if !member.IsAdminOrOwner() {
		return nil, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("organization name required")
	}
	org, err := s.orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	org.Name = name
	if err := s.orgs.UpdateOrganization(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// Delete removes an organization. Only the owner may delete.
func (s Service) Delete(ctx context.Context, orgID, userID string) error {
	member, err := s.requireMembership(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if member.Role != domain.RoleOwner {
		return ErrForbidden
	}
	if err := s.orgs.DeleteOrganization(ctx, orgID); err != nil {
		return err
	}
	s.logger.Info("organization deleted", "org_id", orgID, "user_id", userID)
	return nil
}

// Members lists an organization's memberships. Any member may view.
func (s Service) Members(ctx context.Context, orgID, userID string) ([]domain.Membership, error) {
	if _, err := s.requireMembership(ctx, orgID, userID); err != nil {
		return nil, err
	}
	return s.orgs.ListMemberships(ctx, orgID)
}

// Membership returns the caller's own membership in the organization.
func (s Service) Membership(ctx context.Context, orgID, userID string) (*domain.Membership, error) {
	return s.requireMembership(ctx, orgID, userID)
}

// ChangeRole updates a member's role. The owner's role never changes, and
// only the owner may promote to or demote from admin.
func (s Service) ChangeRole(ctx context.Context, orgID, actorID, targetID, role string) (*domain.Membership, error) {
	if role != domain.RoleAdmin && role != domain.RoleMember {
		return nil, ErrInvalidRole
	}
	actor, err := s.requireMembership(ctx, orgID, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleOwner {
		return nil, ErrForbidden
	}
	target, err := s.orgs.GetMembership(ctx, orgID, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, err
	}
	if target.Role == domain.RoleOwner {
		return nil, ErrOwnerImmutable
	}
	target.Role = role
	if err := s.orgs.UpsertMembership(ctx, target); err != nil {
		return nil, err
	}
	s.logger.Info("membership role changed", "org_id", orgID, "user_id", targetID, "role", role, "actor_id", actorID)
	return target, nil
}

// RemoveMember kicks a member out of the organization. The owner cannot be
// removed; admins may remove members; only the owner may remove admins.
func (s Service) RemoveMember(ctx context.Context, orgID, actorID, targetID string) error {
	actor, err := s.requireMembership(ctx, orgID, actorID)
	if err != nil {
		return err
	}
	target, err := s.orgs.GetMembership(ctx, orgID, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotMember
		}
		return err
	}
	if target.Role == domain.RoleOwner {
		return ErrOwnerImmutable
	}
	if actorID != targetID {
		if !actor.IsAdminOrOwner() {
			return ErrForbidden
		}
		if target.Role == domain.RoleAdmin && actor.Role != domain.RoleOwner {
			return ErrForbidden
		}
	}
	if err := s.orgs.DeleteMembership(ctx, orgID, targetID); err != nil {
		return err
	}
	s.logger.Info("membership removed", "org_id", orgID, "user_id", targetID, "actor_id", actorID)
	return nil
}

// Leave is self-removal. The owner cannot leave their own organization.
func (s Service) Leave(ctx context.Context, orgID, userID string) error {
	return s.RemoveMember(ctx, orgID, userID, userID)
}

func (s Service) requireMembership(ctx context.Context, orgID, userID string) (*domain.Membership, error) {
	member, err := s.orgs.GetMembership(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, err
	}
	return member, nil
}

func (s Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = "org"
	}
	slug := base
	for i := 2; ; i++ {
		exists, err := s.orgs.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
