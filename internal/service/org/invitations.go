package org

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/mailer"
	"github.com/launchpadhq/launchpad/internal/repository"
)

var (
	// ErrInviteExists is returned when the email already has a pending
	// invitation for the organization.
	ErrInviteExists = errors.New("a pending invitation already exists for this email")
	// ErrInviteInvalid is returned for unknown, expired or already
	// accepted invitation tokens.
	ErrInviteInvalid = errors.New("invitation is invalid or expired")
	// ErrAlreadyMember is returned when the invited user already belongs
	// to the organization.
	ErrAlreadyMember = errors.New("user is already a member of this organization")
)

// Invite creates a pending invitation and emails the join link. Admins and
// the owner may invite; invitations always grant admin or member roles.
func (s Service) Invite(ctx context.Context, orgID, actorID, email, role string) (*domain.Invitation, error) {
	if role != domain.RoleAdmin && role != domain.RoleMember {
		return nil, ErrInvalidRole
	}
	actor, err := s.requireMembership(ctx, orgID, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdminOrOwner() {
		return nil, ErrForbidden
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("email required")
	}
	if existing, err := s.users.GetUserByEmail(ctx, email); err == nil {
		if _, err := s.orgs.GetMembership(ctx, orgID, existing.ID); err == nil {
			return nil, ErrAlreadyMember
		}
	}
	if _, err := s.invites.GetPendingInvitation(ctx, orgID, email); err == nil {
		return nil, ErrInviteExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	invite := &domain.Invitation{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Email:     email,
		Role:      role,
		InvitedBy: actorID,
		Token:     newInviteToken(),
		ExpiresAt: now.Add(s.cfg.InvitationTTL),
		CreatedAt: now,
	}
	if err := s.invites.CreateInvitation(ctx, invite); err != nil {
		// The partial unique index on pending (org, email) closes the race
		// between the pending check above and this insert.
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrInviteExists
		}
		return nil, err
	}

	org, err := s.orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	link := fmt.Sprintf("%s/invitations/accept?token=%s", s.cfg.FrontendURL, invite.Token)
	if err := s.mail.Send(ctx, mailer.Message{
		To:      email,
		Subject: fmt.Sprintf("You've been invited to %s on %s", org.Name, s.cfg.SiteName),
		Text:    fmt.Sprintf("You have been invited to join %s as %s. Accept within %d days:\n\n%s", org.Name, role, int(s.cfg.InvitationTTL.Hours()/24), link),
	}); err != nil {
		s.logger.Error("failed to send invitation email", "org_id", orgID, "email", email, "error", err)
	}
	s.logger.Info("invitation created", "org_id", orgID, "email", email, "role", role, "actor_id", actorID)
	return invite, nil
}

// Invitations lists pending and accepted invitations for the organization.
// Admins and the owner may view.
func (s Service) Invitations(ctx context.Context, orgID, actorID string) ([]domain.Invitation, error) {
	actor, err := s.requireMembership(ctx, orgID, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdminOrOwner() {
		return nil, ErrForbidden
	}
	return s.invites.ListInvitationsByOrg(ctx, orgID)
}

// AcceptInvitation redeems an invitation token for the logged-in user. The
// token must be open and the user's email must match the invitation.
func (s Service) AcceptInvitation(ctx context.Context, token, userID string) (*domain.Membership, error) {
	invite, err := s.invites.GetInvitationByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInviteInvalid
		}
		return nil, err
	}
	now := time.Now().UTC()
	if !invite.CanAccept(now) {
		return nil, ErrInviteInvalid
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(user.Email, invite.Email) {
		return nil, ErrInviteInvalid
	}
	if _, err := s.orgs.GetMembership(ctx, invite.OrgID, userID); err == nil {
		return nil, ErrAlreadyMember
	}

	member := &domain.Membership{OrgID: invite.OrgID, UserID: userID, Role: invite.Role, JoinedAt: now}
	if err := s.orgs.UpsertMembership(ctx, member); err != nil {
		return nil, err
	}
	if err := s.invites.MarkInvitationAccepted(ctx, invite.ID, now); err != nil {
		return nil, err
	}
	s.logger.Info("invitation accepted", "org_id", invite.OrgID, "user_id", userID, "role", invite.Role)
	return member, nil
}

// RevokeInvitation deletes a pending invitation. Admins and the owner may
// revoke.
func (s Service) RevokeInvitation(ctx context.Context, orgID, actorID, inviteID string) error {
	actor, err := s.requireMembership(ctx, orgID, actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdminOrOwner() {
		return ErrForbidden
	}
	// The delete is scoped to orgID so an admin of one organization cannot
	// revoke another organization's invitation by ID.
	return s.invites.DeleteInvitation(ctx, orgID, inviteID)
}

// RunSweeper periodically deletes expired, unaccepted invitations until the
// context is cancelled.
func (s Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.InvitationSweepEvery)
	defer ticker.Stop()

	s.logger.Info("invitation sweeper started", "interval", s.cfg.InvitationSweepEvery)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("invitation sweeper stopped")
			return
		case <-ticker.C:
			s.sweepExpired(ctx)
		}
	}
}

func (s Service) sweepExpired(ctx context.Context) {
	// Invitations are kept for a grace period past expiry so recently
	// lapsed ones remain visible to admins before they vanish.
	cutoff := time.Now().UTC().Add(-s.cfg.InvitationSweepGrace)
	removed, err := s.invites.DeleteExpiredInvitations(ctx, cutoff)
	if err != nil {
		s.logger.Error("invitation sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("expired invitations removed", "count", removed)
	}
}

func newInviteToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
