package domain

import (
	"encoding/json"
	"time"
)

// Subscription statuses as reported by payment gateways.
const (
	SubscriptionIncomplete = "incomplete"
	SubscriptionTrialing   = "trialing"
	SubscriptionActive     = "active"
	SubscriptionPastDue    = "past_due"
	SubscriptionCancelled  = "cancelled"
	SubscriptionUnpaid     = "unpaid"
)

// Invoice statuses.
const (
	InvoiceDraft         = "draft"
	InvoiceOpen          = "open"
	InvoicePaid          = "paid"
	InvoiceVoid          = "void"
	InvoiceUncollectible = "uncollectible"
)

// Plan is a billable tier customers subscribe to.
type Plan struct {
	ID               string
	Name             string
	Slug             string
	Gateway          string
	GatewayProductID string
	GatewayPriceID   string
	PriceCents       int
	BillingInterval  string
	Features         json.RawMessage
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Subscription tracks an organization's subscription to a plan.
type Subscription struct {
	ID                    string
	OrgID                 string
	PlanID                string
	Gateway               string
	GatewaySubscriptionID string
	GatewayCustomerID     string
	Status                string
	CurrentPeriodStart    *time.Time
	CurrentPeriodEnd      *time.Time
	TrialEnd              *time.Time
	CancelAtPeriodEnd     bool
	CancelledAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsActive reports whether the subscription entitles the organization to
// its plan's features.
func (s Subscription) IsActive() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrialing
}

// Invoice records a billing charge against an organization.
type Invoice struct {
	ID               string
	OrgID            string
	SubscriptionID   *string
	Gateway          string
	GatewayInvoiceID string
	AmountCents      int64
	Currency         string
	Status           string
	IssuedAt         *time.Time
	PaidAt           *time.Time
	InvoiceURL       string
	CreatedAt        time.Time
}

// WebhookEvent is the idempotency ledger for gateway webhooks. Payload is
// stored encrypted.
type WebhookEvent struct {
	ID          int64
	Gateway     string
	EventID     string
	EventType   string
	Payload     []byte
	ProcessedAt time.Time
}
