package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Stripe implements Gateway on top of the Stripe API.
type Stripe struct {
	sc            *client.API
	webhookSecret string
}

// NewStripe builds a Stripe gateway from a secret key and webhook
// signing secret.
func NewStripe(secretKey, webhookSecret string) *Stripe {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Stripe{sc: sc, webhookSecret: webhookSecret}
}

var _ Gateway = (*Stripe)(nil)

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	cparams := &stripe.CustomerParams{
		Email: stripe.String(params.Email),
		Name:  stripe.String(params.Name),
	}
	cparams.Context = ctx
	cparams.AddMetadata("org_id", params.OrgID)
	customer, err := s.sc.Customers.New(cparams)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return customer.ID, nil
}

func (s *Stripe) CreateSubscription(ctx context.Context, params SubscriptionParams) (*SubscriptionInfo, error) {
	sparams := &stripe.SubscriptionParams{
		Customer: stripe.String(params.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(params.PriceID)},
		},
	}
	sparams.Context = ctx
	if params.TrialDays > 0 {
		sparams.TrialPeriodDays = stripe.Int64(int64(params.TrialDays))
	}
	sub, err := s.sc.Subscriptions.New(sparams)
	if err != nil {
		return nil, fmt.Errorf("stripe: create subscription: %w", err)
	}
	return stripeSubscriptionInfo(sub), nil
}

func (s *Stripe) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) (*SubscriptionInfo, error) {
	if atPeriodEnd {
		sparams := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		sparams.Context = ctx
		sub, err := s.sc.Subscriptions.Update(subscriptionID, sparams)
		if err != nil {
			return nil, fmt.Errorf("stripe: schedule cancel: %w", err)
		}
		return stripeSubscriptionInfo(sub), nil
	}
	cparams := &stripe.SubscriptionCancelParams{}
	cparams.Context = ctx
	sub, err := s.sc.Subscriptions.Cancel(subscriptionID, cparams)
	if err != nil {
		return nil, fmt.Errorf("stripe: cancel subscription: %w", err)
	}
	return stripeSubscriptionInfo(sub), nil
}

func (s *Stripe) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error) {
	gparams := &stripe.SubscriptionParams{}
	gparams.Context = ctx
	sub, err := s.sc.Subscriptions.Get(subscriptionID, gparams)
	if err != nil {
		return nil, fmt.Errorf("stripe: get subscription: %w", err)
	}
	return stripeSubscriptionInfo(sub), nil
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	cparams := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(params.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(params.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}
	cparams.Context = ctx
	session, err := s.sc.CheckoutSessions.New(cparams)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// VerifyWebhook checks the Stripe-Signature header before any parsing and
// translates Stripe event types into the normalized vocabulary. Events the
// billing service does not care about come back with an empty Type.
func (s *Stripe) VerifyWebhook(payload []byte, header http.Header) (*Event, error) {
	stripeEvent, err := webhook.ConstructEvent(payload, header.Get("Stripe-Signature"), s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{ID: stripeEvent.ID, Raw: payload}
	switch stripeEvent.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(stripeEvent.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("stripe: decode subscription event: %w", err)
		}
		event.SubscriptionID = sub.ID
		event.Status = string(sub.Status)
		event.PeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
		event.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		if sub.Customer != nil {
			event.CustomerID = sub.Customer.ID
		}
		if sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing {
			event.Type = EventSubscriptionActivated
		}
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(stripeEvent.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("stripe: decode subscription event: %w", err)
		}
		event.Type = EventSubscriptionCancelled
		event.SubscriptionID = sub.ID
		if sub.Customer != nil {
			event.CustomerID = sub.Customer.ID
		}
	case "invoice.payment_succeeded", "invoice.paid":
		var inv stripe.Invoice
		if err := json.Unmarshal(stripeEvent.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("stripe: decode invoice event: %w", err)
		}
		event.Type = EventInvoicePaid
		if inv.Subscription != nil {
			event.SubscriptionID = inv.Subscription.ID
		}
		if inv.Customer != nil {
			event.CustomerID = inv.Customer.ID
		}
		data := &InvoiceData{
			GatewayInvoiceID: inv.ID,
			AmountCents:      inv.AmountPaid,
			Currency:         string(inv.Currency),
			URL:              inv.HostedInvoiceURL,
			PeriodStart:      time.Unix(inv.PeriodStart, 0).UTC(),
			PeriodEnd:        time.Unix(inv.PeriodEnd, 0).UTC(),
		}
		if inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0 {
			data.PaidAt = time.Unix(inv.StatusTransitions.PaidAt, 0).UTC()
		}
		event.Invoice = data
		event.PeriodStart = data.PeriodStart
		event.PeriodEnd = data.PeriodEnd
	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(stripeEvent.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("stripe: decode invoice event: %w", err)
		}
		event.Type = EventPaymentFailed
		if inv.Subscription != nil {
			event.SubscriptionID = inv.Subscription.ID
		}
		if inv.Customer != nil {
			event.CustomerID = inv.Customer.ID
		}
	}
	return event, nil
}

func stripeSubscriptionInfo(sub *stripe.Subscription) *SubscriptionInfo {
	info := &SubscriptionInfo{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		info.CustomerID = sub.Customer.ID
	}
	return info
}
