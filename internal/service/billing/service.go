package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/repository"
	"github.com/launchpadhq/launchpad/internal/service/billing/gateway"
	"github.com/launchpadhq/launchpad/pkg/config"
)

var (
	// ErrNoSubscription is returned when the organization has no current
	// subscription.
	ErrNoSubscription = errors.New("organization has no subscription")
	// ErrPlanInactive is returned for subscribe attempts against retired
	// plans.
	ErrPlanInactive = errors.New("plan is not available for purchase")
	// ErrAlreadySubscribed is returned when the organization already has a
	// live subscription.
	ErrAlreadySubscribed = errors.New("organization already has an active subscription")
	// ErrStaffOnly is returned for plan management by non-staff users.
	ErrStaffOnly = errors.New("operation restricted to staff users")
)

// Service owns plans, subscriptions, invoices and webhook processing.
type Service struct {
	plans    repository.PlanRepository
	subs     repository.SubscriptionRepository
	webhooks repository.WebhookEventRepository
	gateways *gateway.Registry
	logger   *slog.Logger
	cfg      config.APIConfig
}

// New constructs a Service.
func New(plans repository.PlanRepository, subs repository.SubscriptionRepository, webhooks repository.WebhookEventRepository, gateways *gateway.Registry, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{plans: plans, subs: subs, webhooks: webhooks, gateways: gateways, logger: logger, cfg: cfg}
}

// PlanInput describes a plan to create.
type PlanInput struct {
	Name             string          `json:"name"`
	Gateway          string          `json:"gateway"`
	GatewayProductID string          `json:"gateway_product_id"`
	GatewayPriceID   string          `json:"gateway_price_id"`
	PriceCents       int             `json:"price_cents"`
	BillingInterval  string          `json:"billing_interval"`
	Features         json.RawMessage `json:"features"`
}

// CreatePlan registers a new billable plan. Staff only.
func (s Service) CreatePlan(ctx context.Context, actor *domain.User, in PlanInput) (*domain.Plan, error) {
	if actor == nil || !actor.IsStaff {
		return nil, ErrStaffOnly
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.New("plan name required")
	}
	if in.PriceCents < 0 {
		return nil, errors.New("price must not be negative")
	}
	if in.BillingInterval != "month" && in.BillingInterval != "year" {
		return nil, errors.New("billing interval must be month or year")
	}
	if in.Gateway == "" {
		in.Gateway = s.cfg.PaymentGateway
	}
	if _, err := s.gateways.Get(in.Gateway); err != nil {
		return nil, err
	}
	slug, err := s.uniquePlanSlug(ctx, name)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	plan := &domain.Plan{
		ID:               uuid.NewString(),
		Name:             name,
		Slug:             slug,
		Gateway:          in.Gateway,
		GatewayProductID: in.GatewayProductID,
		GatewayPriceID:   in.GatewayPriceID,
		PriceCents:       in.PriceCents,
		BillingInterval:  in.BillingInterval,
		Features:         in.Features,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.plans.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	s.logger.Info("plan created", "plan_id", plan.ID, "slug", plan.Slug, "gateway", plan.Gateway)
	return plan, nil
}

// ListPlans returns purchasable plans.
func (s Service) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	return s.plans.ListActivePlans(ctx)
}

// Subscribe creates a gateway subscription for the organization on the
// given plan and records it locally in incomplete state until the gateway
// confirms activation by webhook.
func (s Service) Subscribe(ctx context.Context, org *domain.Organization, billingEmail, planID string, trialDays int) (*domain.Subscription, error) {
	plan, err := s.plans.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanInactive
	}
	if current, err := s.subs.GetCurrentSubscription(ctx, org.ID); err == nil && current.IsActive() {
		return nil, ErrAlreadySubscribed
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	gw, err := s.gateways.Get(plan.Gateway)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, gw, org, billingEmail)
	if err != nil {
		return nil, err
	}
	info, err := gw.CreateSubscription(ctx, gateway.SubscriptionParams{
		CustomerID: customerID,
		PriceID:    plan.GatewayPriceID,
		TrialDays:  trialDays,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &domain.Subscription{
		ID:                    uuid.NewString(),
		OrgID:                 org.ID,
		PlanID:                plan.ID,
		Gateway:               plan.Gateway,
		GatewaySubscriptionID: info.ID,
		GatewayCustomerID:     customerID,
		Status:                normalizeStatus(info.Status),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if !info.CurrentPeriodStart.IsZero() {
		start, end := info.CurrentPeriodStart, info.CurrentPeriodEnd
		sub.CurrentPeriodStart = &start
		sub.CurrentPeriodEnd = &end
	}
	if trialDays > 0 {
		trialEnd := now.AddDate(0, 0, trialDays)
		sub.TrialEnd = &trialEnd
	}
	if err := s.subs.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("subscription created", "org_id", org.ID, "plan_id", plan.ID, "gateway", plan.Gateway, "status", sub.Status)
	return sub, nil
}

// CreateCheckoutSession starts a gateway-hosted checkout for the plan and
// returns the URL to redirect the customer to.
func (s Service) CreateCheckoutSession(ctx context.Context, org *domain.Organization, billingEmail, planID string) (*gateway.CheckoutSession, error) {
	plan, err := s.plans.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanInactive
	}
	gw, err := s.gateways.Get(plan.Gateway)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, gw, org, billingEmail)
	if err != nil {
		return nil, err
	}
	return gw.CreateCheckoutSession(ctx, gateway.CheckoutParams{
		CustomerID: customerID,
		PriceID:    plan.GatewayPriceID,
		SuccessURL: fmt.Sprintf("%s/billing/success", s.cfg.FrontendURL),
		CancelURL:  fmt.Sprintf("%s/billing/cancelled", s.cfg.FrontendURL),
	})
}

// Cancel stops the organization's subscription, either immediately or at
// the end of the paid period.
func (s Service) Cancel(ctx context.Context, orgID string, atPeriodEnd bool) (*domain.Subscription, error) {
	sub, err := s.subs.GetCurrentSubscription(ctx, orgID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, err
	}
	gw, err := s.gateways.Get(sub.Gateway)
	if err != nil {
		return nil, err
	}
	info, err := gw.CancelSubscription(ctx, sub.GatewaySubscriptionID, atPeriodEnd)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
		sub.Status = normalizeStatus(info.Status)
	} else {
		sub.Status = domain.SubscriptionCancelled
		sub.CancelledAt = &now
	}
	sub.UpdatedAt = now
	if err := s.subs.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("subscription cancelled", "org_id", orgID, "at_period_end", atPeriodEnd)
	return sub, nil
}

// CurrentSubscription returns the organization's subscription with its plan.
func (s Service) CurrentSubscription(ctx context.Context, orgID string) (*domain.Subscription, *domain.Plan, error) {
	sub, err := s.subs.GetCurrentSubscription(ctx, orgID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrNoSubscription
		}
		return nil, nil, err
	}
	plan, err := s.plans.GetPlanByID(ctx, sub.PlanID)
	if err != nil {
		return nil, nil, err
	}
	return sub, plan, nil
}

// ListInvoices returns the organization's most recent invoices.
func (s Service) ListInvoices(ctx context.Context, orgID string, limit int) ([]domain.Invoice, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.subs.ListInvoicesByOrg(ctx, orgID, limit)
}

func (s Service) ensureCustomer(ctx context.Context, gw gateway.Gateway, org *domain.Organization, billingEmail string) (string, error) {
	if sub, err := s.subs.GetCurrentSubscription(ctx, org.ID); err == nil && sub.Gateway == gw.Name() && sub.GatewayCustomerID != "" {
		return sub.GatewayCustomerID, nil
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}
	return gw.CreateCustomer(ctx, gateway.CustomerParams{
		Email: billingEmail,
		Name:  org.Name,
		OrgID: org.ID,
	})
}

func (s Service) uniquePlanSlug(ctx context.Context, name string) (string, error) {
	base := slugify(name)
	if base == "" {
		base = "plan"
	}
	slug := base
	for i := 2; ; i++ {
		exists, err := s.plans.PlanSlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

func slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// normalizeStatus maps gateway status vocabulary onto the local one.
func normalizeStatus(status string) string {
	switch status {
	case "active", "authenticated":
		return domain.SubscriptionActive
	case "trialing":
		return domain.SubscriptionTrialing
	case "past_due":
		return domain.SubscriptionPastDue
	case "canceled", "cancelled", "completed", "expired":
		return domain.SubscriptionCancelled
	case "unpaid", "halted":
		return domain.SubscriptionUnpaid
	default:
		return domain.SubscriptionIncomplete
	}
}
