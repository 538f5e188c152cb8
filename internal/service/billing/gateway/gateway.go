package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Normalized webhook event types. Every gateway translates its own event
// vocabulary into these before the billing service sees them.
const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventPaymentFailed         = "payment.failed"
	EventInvoicePaid           = "invoice.paid"
)

// CustomerParams describes a billing customer to create at the gateway.
type CustomerParams struct {
	Email string
	Name  string
	OrgID string
}

// SubscriptionParams describes a subscription to create at the gateway.
type SubscriptionParams struct {
	CustomerID string
	PriceID    string
	TrialDays  int
}

// SubscriptionInfo is the gateway's view of a subscription.
type SubscriptionInfo struct {
	ID                 string
	CustomerID         string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// CheckoutParams describes a hosted checkout to start.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession points the user at a gateway-hosted payment page.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// InvoiceData carries invoice details extracted from a webhook event.
type InvoiceData struct {
	GatewayInvoiceID string
	AmountCents      int64
	Currency         string
	URL              string
	PaidAt           time.Time
	PeriodStart      time.Time
	PeriodEnd        time.Time
}

// Event is a verified, normalized webhook event.
type Event struct {
	ID             string
	Type           string
	SubscriptionID string
	CustomerID     string
	Status         string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Invoice        *InvoiceData
	Raw            []byte
}

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = fmt.Errorf("gateway: invalid webhook signature")

// Gateway abstracts a payment provider. Implementations must be safe for
// concurrent use.
type Gateway interface {
	Name() string
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreateSubscription(ctx context.Context, params SubscriptionParams) (*SubscriptionInfo, error)
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*SubscriptionInfo, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	VerifyWebhook(payload []byte, header http.Header) (*Event, error)
}

// Registry resolves gateways by name.
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry builds a registry over the given gateways.
func NewRegistry(gateways ...Gateway) *Registry {
	m := make(map[string]Gateway, len(gateways))
	for _, g := range gateways {
		m[g.Name()] = g
	}
	return &Registry{gateways: m}
}

// Get returns the gateway registered under name.
func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("gateway: unknown gateway %q, supported: %s", name, strings.Join(r.Names(), ", "))
	}
	return g, nil
}

// Names lists registered gateway names in a stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
