package repository

import (
	"context"
	"time"

	"github.com/launchpadhq/launchpad/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (*domain.User, error)
	GetUserByResetToken(ctx context.Context, token string) (*domain.User, error)
	GetUserByMagicLinkToken(ctx context.Context, token string) (*domain.User, error)
}

// OrganizationRepository manages organizations and memberships.
type OrganizationRepository interface {
	CreateOrganization(ctx context.Context, org *domain.Organization) error
	UpdateOrganization(ctx context.Context, org *domain.Organization) error
	DeleteOrganization(ctx context.Context, orgID string) error
	GetOrganizationByID(ctx context.Context, orgID string) (*domain.Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	ListOrganizationsByUser(ctx context.Context, userID string) ([]domain.Organization, error)

	UpsertMembership(ctx context.Context, member *domain.Membership) error
	DeleteMembership(ctx context.Context, orgID, userID string) error
	GetMembership(ctx context.Context, orgID, userID string) (*domain.Membership, error)
	ListMemberships(ctx context.Context, orgID string) ([]domain.Membership, error)
}

// InvitationRepository stores pending organization invitations.
type InvitationRepository interface {
	CreateInvitation(ctx context.Context, invite *domain.Invitation) error
	GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error)
	GetPendingInvitation(ctx context.Context, orgID, email string) (*domain.Invitation, error)
	ListInvitationsByOrg(ctx context.Context, orgID string) ([]domain.Invitation, error)
	MarkInvitationAccepted(ctx context.Context, inviteID string, acceptedAt time.Time) error
	DeleteInvitation(ctx context.Context, orgID, inviteID string) error
	DeleteExpiredInvitations(ctx context.Context, expiredBefore time.Time) (int64, error)
}

// PlanRepository persists billing plans.
type PlanRepository interface {
	CreatePlan(ctx context.Context, plan *domain.Plan) error
	GetPlanByID(ctx context.Context, planID string) (*domain.Plan, error)
	PlanSlugExists(ctx context.Context, slug string) (bool, error)
	ListActivePlans(ctx context.Context) ([]domain.Plan, error)
}

// SubscriptionRepository persists subscriptions and invoices.
type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	UpdateSubscription(ctx context.Context, sub *domain.Subscription) error
	GetSubscriptionByID(ctx context.Context, subID string) (*domain.Subscription, error)
	GetSubscriptionByGatewayID(ctx context.Context, gateway, gatewaySubID string) (*domain.Subscription, error)
	GetCurrentSubscription(ctx context.Context, orgID string) (*domain.Subscription, error)

	UpsertInvoice(ctx context.Context, invoice *domain.Invoice) error
	ListInvoicesByOrg(ctx context.Context, orgID string, limit int) ([]domain.Invoice, error)
	SumPaidInvoiceCents(ctx context.Context, orgID string, from, to time.Time) (int64, error)
	SumPaidInvoiceCentsByDay(ctx context.Context, orgID string, from, to time.Time) (map[string]int64, error)
}

// WebhookEventRepository is the idempotency ledger for gateway webhooks.
type WebhookEventRepository interface {
	InsertWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error
	WebhookEventExists(ctx context.Context, gateway, eventID string) (bool, error)
}

// FeatureFlagRepository stores per-organization flag overrides.
type FeatureFlagRepository interface {
	UpsertFeatureFlag(ctx context.Context, flag *domain.FeatureFlag) error
	DeleteFeatureFlag(ctx context.Context, orgID, key string) error
	GetFeatureFlag(ctx context.Context, orgID, key string) (*domain.FeatureFlag, error)
	ListFeatureFlags(ctx context.Context, orgID string) ([]domain.FeatureFlag, error)
}

// AnalyticsRepository handles event persistence and metric aggregation.
type AnalyticsRepository interface {
	InsertEvent(ctx context.Context, event *domain.Event) error
	CountDailyActiveUsers(ctx context.Context, orgID string, from, to time.Time) (map[string]int, error)
	CountActiveUsers(ctx context.Context, orgID string, from, to time.Time) (int, error)
	CountNewMembers(ctx context.Context, orgID string, from, to time.Time) (int, error)
	CountEventsByName(ctx context.Context, orgID string, from, to time.Time) ([]domain.EventCount, error)

	UpsertDailyMetric(ctx context.Context, metric *domain.DailyMetric) error
	UpsertMonthlyMetric(ctx context.Context, metric *domain.MonthlyMetric) error
	ListDailyMetrics(ctx context.Context, orgID string, from, to time.Time) ([]domain.DailyMetric, error)
	ListMonthlyMetrics(ctx context.Context, orgID string, limit int) ([]domain.MonthlyMetric, error)
	ListOrganizationIDs(ctx context.Context) ([]string, error)
}
