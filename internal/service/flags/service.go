package flags

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"log/slog"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/repository"
)

var (
	// ErrInvalidKey is returned for flag keys outside the allowed format.
	ErrInvalidKey = errors.New("flag key must be lowercase letters, digits, dots, hyphens or underscores")
	// ErrForbidden is returned when the caller's role does not permit
	// flag management.
	ErrForbidden = errors.New("operation not permitted for this role")
)

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,99}$`)

// Service evaluates feature flags: explicit org overrides win, then the
// active plan's feature map, then off.
type Service struct {
	flags  repository.FeatureFlagRepository
	orgs   repository.OrganizationRepository
	subs   repository.SubscriptionRepository
	plans  repository.PlanRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(flags repository.FeatureFlagRepository, orgs repository.OrganizationRepository, subs repository.SubscriptionRepository, plans repository.PlanRepository, logger *slog.Logger) Service {
	return Service{flags: flags, orgs: orgs, subs: subs, plans: plans, logger: logger}
}

// Set writes an org-level override. Admins and the owner may set flags.
func (s Service) Set(ctx context.Context, orgID, actorID, key string, enabled bool) (*domain.FeatureFlag, error) {
	if !keyPattern.MatchString(key) {
		return nil, ErrInvalidKey
	}
	if err := s.requireAdmin(ctx, orgID, actorID); err != nil {
		return nil, err
	}
	flag := &domain.FeatureFlag{OrgID: orgID, Key: key, Enabled: enabled, UpdatedAt: time.Now().UTC()}
	if err := s.flags.UpsertFeatureFlag(ctx, flag); err != nil {
		return nil, err
	}
	s.logger.Info("feature flag set", "org_id", orgID, "key", key, "enabled", enabled, "actor_id", actorID)
	return flag, nil
}

// Unset removes an override, so evaluation falls back to the plan.
func (s Service) Unset(ctx context.Context, orgID, actorID, key string) error {
	if err := s.requireAdmin(ctx, orgID, actorID); err != nil {
		return err
	}
	if err := s.flags.DeleteFeatureFlag(ctx, orgID, key); err != nil {
		return err
	}
	s.logger.Info("feature flag unset", "org_id", orgID, "key", key, "actor_id", actorID)
	return nil
}

// List returns the organization's overrides. Any member may view.
func (s Service) List(ctx context.Context, orgID, actorID string) ([]domain.FeatureFlag, error) {
	if _, err := s.orgs.GetMembership(ctx, orgID, actorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	return s.flags.ListFeatureFlags(ctx, orgID)
}

// Evaluate resolves a single flag for the organization. An explicit
// override wins; otherwise the active plan's features map decides;
// otherwise the flag is off.
func (s Service) Evaluate(ctx context.Context, orgID, key string) (bool, error) {
	if flag, err := s.flags.GetFeatureFlag(ctx, orgID, key); err == nil {
		return flag.Enabled, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	return s.planDefault(ctx, orgID, key)
}

func (s Service) planDefault(ctx context.Context, orgID, key string) (bool, error) {
	sub, err := s.subs.GetCurrentSubscription(ctx, orgID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !sub.IsActive() {
		return false, nil
	}
	plan, err := s.plans.GetPlanByID(ctx, sub.PlanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if len(plan.Features) == 0 {
		return false, nil
	}
	var features map[string]bool
	if err := json.Unmarshal(plan.Features, &features); err != nil {
		s.logger.Warn("plan features are not a flag map", "plan_id", plan.ID, "error", err)
		return false, nil
	}
	return features[key], nil
}

func (s Service) requireAdmin(ctx context.Context, orgID, actorID string) error {
	member, err := s.orgs.GetMembership(ctx, orgID, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	if !member.IsAdminOrOwner() {
		return ErrForbidden
	}
	return nil
}
