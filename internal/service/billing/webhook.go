package billing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/repository"
	"github.com/launchpadhq/launchpad/internal/service/billing/gateway"
	"github.com/launchpadhq/launchpad/pkg/crypto"
)

// ErrEventProcessed is returned for webhook deliveries already recorded in
// the idempotency ledger.
var ErrEventProcessed = errors.New("webhook event already processed")

// HandleWebhook verifies, deduplicates and applies a gateway webhook. The
// signature is checked before the payload is parsed; replayed deliveries
// are acknowledged without reapplying their effects.
func (s Service) HandleWebhook(ctx context.Context, gatewayName string, payload []byte, header http.Header) error {
	gw, err := s.gateways.Get(gatewayName)
	if err != nil {
		return err
	}
	event, err := gw.VerifyWebhook(payload, header)
	if err != nil {
		return err
	}
	if event.Type == "" {
		// Event type the billing flow does not track. Acknowledge so the
		// gateway stops retrying.
		s.logger.Debug("webhook event ignored", "gateway", gatewayName, "event_id", event.ID)
		return nil
	}

	seen, err := s.webhooks.WebhookEventExists(ctx, gatewayName, event.ID)
	if err != nil {
		return err
	}
	if seen {
		s.logger.Info("webhook replay ignored", "gateway", gatewayName, "event_id", event.ID)
		return ErrEventProcessed
	}

	if err := s.applyEvent(ctx, gatewayName, event); err != nil {
		return err
	}

	encrypted, err := crypto.EncryptString(s.cfg.BillingEncryptionKey, string(event.Raw))
	if err != nil {
		return err
	}
	record := &domain.WebhookEvent{
		Gateway:     gatewayName,
		EventID:     event.ID,
		EventType:   event.Type,
		Payload:     encrypted,
		ProcessedAt: time.Now().UTC(),
	}
	if err := s.webhooks.InsertWebhookEvent(ctx, record); err != nil {
		// A concurrent delivery won the ledger race; the effects are
		// idempotent upserts so this is safe to treat as a replay.
		if errors.Is(err, repository.ErrConflict) {
			return ErrEventProcessed
		}
		return err
	}
	s.logger.Info("webhook processed", "gateway", gatewayName, "event_id", event.ID, "event_type", event.Type)
	return nil
}

func (s Service) applyEvent(ctx context.Context, gatewayName string, event *gateway.Event) error {
	sub, err := s.subs.GetSubscriptionByGatewayID(ctx, gatewayName, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Gateways can deliver events for subscriptions created outside
			// this platform. Acknowledge and move on.
			s.logger.Warn("webhook for unknown subscription", "gateway", gatewayName, "gateway_subscription_id", event.SubscriptionID, "event_type", event.Type)
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	switch event.Type {
	case gateway.EventSubscriptionActivated:
		sub.Status = domain.SubscriptionActive
		if event.Status == "trialing" {
			sub.Status = domain.SubscriptionTrialing
		}
		setPeriod(sub, event.PeriodStart, event.PeriodEnd)

	case gateway.EventSubscriptionCharged, gateway.EventInvoicePaid:
		sub.Status = domain.SubscriptionActive
		setPeriod(sub, event.PeriodStart, event.PeriodEnd)
		if event.Invoice != nil {
			if err := s.recordInvoice(ctx, sub, gatewayName, event.Invoice); err != nil {
				return err
			}
		}

	case gateway.EventSubscriptionCancelled:
		sub.Status = domain.SubscriptionCancelled
		sub.CancelledAt = &now

	case gateway.EventPaymentFailed:
		// A halted subscription has exhausted the gateway's retries and
		// stops being charged; anything earlier is still recoverable.
		if event.Status == "halted" {
			sub.Status = domain.SubscriptionUnpaid
		} else {
			sub.Status = domain.SubscriptionPastDue
		}
	}
	sub.UpdatedAt = now
	return s.subs.UpdateSubscription(ctx, sub)
}

func (s Service) recordInvoice(ctx context.Context, sub *domain.Subscription, gatewayName string, data *gateway.InvoiceData) error {
	subID := sub.ID
	issuedAt := data.PeriodStart
	invoice := &domain.Invoice{
		ID:               uuid.NewString(),
		OrgID:            sub.OrgID,
		SubscriptionID:   &subID,
		Gateway:          gatewayName,
		GatewayInvoiceID: data.GatewayInvoiceID,
		AmountCents:      data.AmountCents,
		Currency:         data.Currency,
		Status:           domain.InvoicePaid,
		InvoiceURL:       data.URL,
		CreatedAt:        time.Now().UTC(),
	}
	if !issuedAt.IsZero() {
		invoice.IssuedAt = &issuedAt
	}
	if !data.PaidAt.IsZero() {
		paidAt := data.PaidAt
		invoice.PaidAt = &paidAt
	}
	return s.subs.UpsertInvoice(ctx, invoice)
}

func setPeriod(sub *domain.Subscription, start, end time.Time) {
	if start.IsZero() || end.IsZero() {
		return
	}
	s, e := start, end
	sub.CurrentPeriodStart = &s
	sub.CurrentPeriodEnd = &e
}
