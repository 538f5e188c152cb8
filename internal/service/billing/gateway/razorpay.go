package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

// Razorpay implements Gateway on top of the Razorpay API.
type Razorpay struct {
	client        *razorpay.Client
	webhookSecret string
}

// NewRazorpay builds a Razorpay gateway from API credentials and the
// webhook secret configured in the Razorpay dashboard.
func NewRazorpay(keyID, keySecret, webhookSecret string) *Razorpay {
	return &Razorpay{
		client:        razorpay.NewClient(keyID, keySecret),
		webhookSecret: webhookSecret,
	}
}

var _ Gateway = (*Razorpay)(nil)

func (r *Razorpay) Name() string { return "razorpay" }

func (r *Razorpay) CreateCustomer(_ context.Context, params CustomerParams) (string, error) {
	data := map[string]interface{}{
		"name":          params.Name,
		"email":         params.Email,
		"fail_existing": 0,
		"notes":         map[string]interface{}{"org_id": params.OrgID},
	}
	customer, err := r.client.Customer.Create(data, nil)
	if err != nil {
		return "", fmt.Errorf("razorpay: create customer: %w", err)
	}
	id, _ := customer["id"].(string)
	if id == "" {
		return "", fmt.Errorf("razorpay: create customer: response missing id")
	}
	return id, nil
}

func (r *Razorpay) CreateSubscription(_ context.Context, params SubscriptionParams) (*SubscriptionInfo, error) {
	data := map[string]interface{}{
		"plan_id":         params.PriceID,
		"customer_id":     params.CustomerID,
		"total_count":     120,
		"customer_notify": 1,
	}
	if params.TrialDays > 0 {
		data["start_at"] = time.Now().AddDate(0, 0, params.TrialDays).Unix()
	}
	sub, err := r.client.Subscription.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: create subscription: %w", err)
	}
	return razorpaySubscriptionInfo(sub), nil
}

func (r *Razorpay) CancelSubscription(_ context.Context, subscriptionID string, atPeriodEnd bool) (*SubscriptionInfo, error) {
	cycleEnd := 0
	if atPeriodEnd {
		cycleEnd = 1
	}
	data := map[string]interface{}{"cancel_at_cycle_end": cycleEnd}
	sub, err := r.client.Subscription.Cancel(subscriptionID, data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: cancel subscription: %w", err)
	}
	return razorpaySubscriptionInfo(sub), nil
}

func (r *Razorpay) GetSubscription(_ context.Context, subscriptionID string) (*SubscriptionInfo, error) {
	sub, err := r.client.Subscription.Fetch(subscriptionID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: fetch subscription: %w", err)
	}
	return razorpaySubscriptionInfo(sub), nil
}

// CreateCheckoutSession relies on Razorpay's hosted subscription page: the
// subscription entity carries a short_url the customer completes payment on.
func (r *Razorpay) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	data := map[string]interface{}{
		"plan_id":         params.PriceID,
		"customer_id":     params.CustomerID,
		"total_count":     120,
		"customer_notify": 1,
	}
	sub, err := r.client.Subscription.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay: create checkout subscription: %w", err)
	}
	id, _ := sub["id"].(string)
	url, _ := sub["short_url"].(string)
	if url == "" {
		return nil, fmt.Errorf("razorpay: subscription %s has no hosted payment page", id)
	}
	return &CheckoutSession{ID: id, URL: url}, nil
}

type razorpayWebhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Subscription struct {
			Entity razorpayEntity `json:"entity"`
		} `json:"subscription"`
		Payment struct {
			Entity razorpayEntity `json:"entity"`
		} `json:"payment"`
		Invoice struct {
			Entity razorpayEntity `json:"entity"`
		} `json:"invoice"`
	} `json:"payload"`
}

type razorpayEntity map[string]interface{}

func (e razorpayEntity) str(key string) string {
	v, _ := e[key].(string)
	return v
}

func (e razorpayEntity) int64(key string) int64 {
	switch v := e[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func (e razorpayEntity) unixTime(key string) time.Time {
	sec := e.int64(key)
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// VerifyWebhook checks the X-Razorpay-Signature HMAC before any parsing and
// translates Razorpay event names into the normalized vocabulary. Razorpay
// delivers the event ID in the X-Razorpay-Event-Id header.
func (r *Razorpay) VerifyWebhook(payload []byte, header http.Header) (*Event, error) {
	signature := header.Get("X-Razorpay-Signature")
	if !utils.VerifyWebhookSignature(string(payload), signature, r.webhookSecret) {
		return nil, ErrInvalidSignature
	}

	var body razorpayWebhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("razorpay: decode webhook body: %w", err)
	}

	sub := body.Payload.Subscription.Entity
	event := &Event{
		ID:             header.Get("X-Razorpay-Event-Id"),
		SubscriptionID: sub.str("id"),
		CustomerID:     sub.str("customer_id"),
		Status:         sub.str("status"),
		PeriodStart:    sub.unixTime("current_start"),
		PeriodEnd:      sub.unixTime("current_end"),
		Raw:            payload,
	}
	if event.ID == "" {
		event.ID = fmt.Sprintf("%s:%s:%d", body.Event, event.SubscriptionID, sub.int64("current_start"))
	}

	switch body.Event {
	case "subscription.activated", "subscription.resumed":
		event.Type = EventSubscriptionActivated
	case "subscription.charged":
		event.Type = EventSubscriptionCharged
		payment := body.Payload.Payment.Entity
		event.Invoice = &InvoiceData{
			GatewayInvoiceID: payment.str("id"),
			AmountCents:      payment.int64("amount"),
			Currency:         payment.str("currency"),
			PaidAt:           payment.unixTime("created_at"),
			PeriodStart:      event.PeriodStart,
			PeriodEnd:        event.PeriodEnd,
		}
	case "subscription.cancelled", "subscription.completed":
		event.Type = EventSubscriptionCancelled
	case "subscription.halted":
		// Razorpay halts a subscription after repeated charge failures.
		// It is a payment problem, not a cancellation: the subscription
		// goes unpaid and can resume once a charge succeeds.
		event.Type = EventPaymentFailed
		event.Status = "halted"
	case "payment.failed":
		event.Type = EventPaymentFailed
		payment := body.Payload.Payment.Entity
		if event.CustomerID == "" {
			event.CustomerID = payment.str("customer_id")
		}
	case "invoice.paid":
		event.Type = EventInvoicePaid
		invoice := body.Payload.Invoice.Entity
		if event.SubscriptionID == "" {
			event.SubscriptionID = invoice.str("subscription_id")
		}
		event.Invoice = &InvoiceData{
			GatewayInvoiceID: invoice.str("id"),
			AmountCents:      invoice.int64("amount_paid"),
			Currency:         invoice.str("currency"),
			URL:              invoice.str("short_url"),
			PaidAt:           invoice.unixTime("paid_at"),
			PeriodStart:      event.PeriodStart,
			PeriodEnd:        event.PeriodEnd,
		}
	}
	return event, nil
}

func razorpaySubscriptionInfo(sub map[string]interface{}) *SubscriptionInfo {
	entity := razorpayEntity(sub)
	return &SubscriptionInfo{
		ID:                 entity.str("id"),
		CustomerID:         entity.str("customer_id"),
		Status:             entity.str("status"),
		CurrentPeriodStart: entity.unixTime("current_start"),
		CurrentPeriodEnd:   entity.unixTime("current_end"),
		CancelAtPeriodEnd:  entity.int64("cancel_at_cycle_end") == 1,
	}
}
