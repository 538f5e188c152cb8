package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/repository"
	"github.com/launchpadhq/launchpad/internal/service/billing/gateway"
	"github.com/launchpadhq/launchpad/pkg/config"
	"github.com/launchpadhq/launchpad/pkg/crypto"
)

func testConfig() config.APIConfig {
	return config.APIConfig{
		FrontendURL:          "http://localhost:3000",
		BillingEncryptionKey: "test-encryption-key",
	}
}

func testOrg() *domain.Organization {
	return &domain.Organization{ID: "org-1", Name: "Acme", OwnerID: "user-1"}
}

func activePlan() *domain.Plan {
	return &domain.Plan{
		ID:              "plan-1",
		Name:            "Pro",
		Slug:            "pro",
		Gateway:         "fake",
		GatewayPriceID:  "price_123",
		PriceCents:      4900,
		BillingInterval: "month",
		IsActive:        true,
	}
}

func TestSubscribeCreatesIncompleteSubscription(t *testing.T) {
	gw := &fakeGateway{
		createSubscriptionFunc: func(_ context.Context, params gateway.SubscriptionParams) (*gateway.SubscriptionInfo, error) {
			if params.PriceID != "price_123" {
				t.Fatalf("unexpected price id: %s", params.PriceID)
			}
			return &gateway.SubscriptionInfo{ID: "gwsub_1", CustomerID: params.CustomerID, Status: "incomplete"}, nil
		},
	}
	var created *domain.Subscription
	subs := &subRepoMock{
		createFunc: func(_ context.Context, sub *domain.Subscription) error {
			created = sub
			return nil
		},
	}
	svc := New(planRepoWith(activePlan()), subs, &webhookRepoMock{}, gateway.NewRegistry(gw), newLogger(), testConfig())

	sub, err := svc.Subscribe(context.Background(), testOrg(), "billing@acme.test", "plan-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != domain.SubscriptionIncomplete {
		t.Errorf("expected incomplete until webhook confirms, got %q", sub.Status)
	}
	if created == nil || created.GatewaySubscriptionID != "gwsub_1" {
		t.Error("expected subscription persisted with gateway id")
	}
	if gw.customersCreated != 1 {
		t.Errorf("expected one gateway customer, got %d", gw.customersCreated)
	}
}

func TestSubscribeRejectsActiveSubscription(t *testing.T) {
	subs := &subRepoMock{
		getCurrentFunc: func(_ context.Context, orgID string) (*domain.Subscription, error) {
			return &domain.Subscription{OrgID: orgID, Status: domain.SubscriptionActive}, nil
		},
	}
	svc := New(planRepoWith(activePlan()), subs, &webhookRepoMock{}, gateway.NewRegistry(&fakeGateway{}), newLogger(), testConfig())

	if _, err := svc.Subscribe(context.Background(), testOrg(), "billing@acme.test", "plan-1", 0); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}
}

func TestSubscribeInactivePlan(t *testing.T) {
	plan := activePlan()
	plan.IsActive = false
	svc := New(planRepoWith(plan), &subRepoMock{}, &webhookRepoMock{}, gateway.NewRegistry(&fakeGateway{}), newLogger(), testConfig())

	if _, err := svc.Subscribe(context.Background(), testOrg(), "billing@acme.test", "plan-1", 0); !errors.Is(err, ErrPlanInactive) {
		t.Fatalf("expected ErrPlanInactive, got %v", err)
	}
}

func TestSubscribeReusesExistingCustomer(t *testing.T) {
	gw := &fakeGateway{}
	subs := &subRepoMock{
		getCurrentFunc: func(_ context.Context, orgID string) (*domain.Subscription, error) {
			return &domain.Subscription{
				OrgID:             orgID,
				Gateway:           "fake",
				GatewayCustomerID: "cust_existing",
				Status:            domain.SubscriptionCancelled,
			}, nil
		},
	}
	svc := New(planRepoWith(activePlan()), subs, &webhookRepoMock{}, gateway.NewRegistry(gw), newLogger(), testConfig())

	sub, err := svc.Subscribe(context.Background(), testOrg(), "billing@acme.test", "plan-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.customersCreated != 0 {
		t.Errorf("expected existing customer reused, %d created", gw.customersCreated)
	}
	if sub.GatewayCustomerID != "cust_existing" {
		t.Errorf("expected cust_existing, got %q", sub.GatewayCustomerID)
	}
}

func TestCancelImmediate(t *testing.T) {
	var updated *domain.Subscription
	subs := &subRepoMock{
		getCurrentFunc: func(_ context.Context, orgID string) (*domain.Subscription, error) {
			return &domain.Subscription{ID: "sub-1", OrgID: orgID, Gateway: "fake", GatewaySubscriptionID: "gwsub_1", Status: domain.SubscriptionActive}, nil
		},
		updateFunc: func(_ context.Context, sub *domain.Subscription) error {
			updated = sub
			return nil
		},
	}
	svc := New(&planRepoMock{}, subs, &webhookRepoMock{}, gateway.NewRegistry(&fakeGateway{}), newLogger(), testConfig())

	sub, err := svc.Cancel(context.Background(), "org-1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != domain.SubscriptionCancelled || sub.CancelledAt == nil {
		t.Errorf("expected cancelled with timestamp, got %q", sub.Status)
	}
	if updated == nil {
		t.Error("expected subscription persisted")
	}
}

func TestCancelAtPeriodEnd(t *testing.T) {
	subs := &subRepoMock{
		getCurrentFunc: func(_ context.Context, orgID string) (*domain.Subscription, error) {
			return &domain.Subscription{ID: "sub-1", OrgID: orgID, Gateway: "fake", GatewaySubscriptionID: "gwsub_1", Status: domain.SubscriptionActive}, nil
		},
	}
	svc := New(&planRepoMock{}, subs, &webhookRepoMock{}, gateway.NewRegistry(&fakeGateway{}), newLogger(), testConfig())

	sub, err := svc.Cancel(context.Background(), "org-1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sub.CancelAtPeriodEnd {
		t.Error("expected cancel_at_period_end set")
	}
	if sub.Status == domain.SubscriptionCancelled {
		t.Error("subscription should stay live until the period ends")
	}
}

func TestCancelWithoutSubscription(t *testing.T) {
	svc := New(&planRepoMock{}, &subRepoMock{}, &webhookRepoMock{}, gateway.NewRegistry(&fakeGateway{}), newLogger(), testConfig())
	if _, err := svc.Cancel(context.Background(), "org-1", false); !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("expected ErrNoSubscription, got %v", err)
	}
}

func TestCreatePlanStaffOnly(t *testing.T) {
	svc := New(&planRepoMock{}, &subRepoMock{}, &webhookRepoMock{}, gateway.NewRegistry(&fakeGateway{}), newLogger(), testConfig())
	in := PlanInput{Name: "Pro", Gateway: "fake", PriceCents: 4900, BillingInterval: "month"}

	if _, err := svc.CreatePlan(context.Background(), &domain.User{ID: "u1"}, in); !errors.Is(err, ErrStaffOnly) {
		t.Fatalf("expected ErrStaffOnly, got %v", err)
	}
	plan, err := svc.CreatePlan(context.Background(), &domain.User{ID: "u1", IsStaff: true}, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Slug != "pro" {
		t.Errorf("expected slug pro, got %q", plan.Slug)
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	gw := &fakeGateway{
		verifyFunc: func([]byte, http.Header) (*gateway.Event, error) {
			return nil, gateway.ErrInvalidSignature
		},
	}
	svc := New(&planRepoMock{}, &subRepoMock{}, &webhookRepoMock{}, gateway.NewRegistry(gw), newLogger(), testConfig())

	err := svc.HandleWebhook(context.Background(), "fake", []byte("{}"), http.Header{})
	if !errors.Is(err, gateway.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestHandleWebhookReplay(t *testing.T) {
	gw := &fakeGateway{
		verifyFunc: func(payload []byte, _ http.Header) (*gateway.Event, error) {
			return &gateway.Event{ID: "evt_1", Type: gateway.EventSubscriptionActivated, SubscriptionID: "gwsub_1", Raw: payload}, nil
		},
	}
	webhooks := &webhookRepoMock{
		existsFunc: func(_ context.Context, gatewayName, eventID string) (bool, error) {
			return true, nil
		},
	}
	var updates int
	subs := &subRepoMock{
		updateFunc: func(context.Context, *domain.Subscription) error {
			updates++
			return nil
		},
	}
	svc := New(&planRepoMock{}, subs, webhooks, gateway.NewRegistry(gw), newLogger(), testConfig())

	err := svc.HandleWebhook(context.Background(), "fake", []byte("{}"), http.Header{})
	if !errors.Is(err, ErrEventProcessed) {
		t.Fatalf("expected ErrEventProcessed, got %v", err)
	}
	if updates != 0 {
		t.Errorf("replayed event must not reapply effects, got %d updates", updates)
	}
}

func TestHandleWebhookActivation(t *testing.T) {
	periodStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)
	gw := &fakeGateway{
		verifyFunc: func(payload []byte, _ http.Header) (*gateway.Event, error) {
			return &gateway.Event{
				ID:             "evt_1",
				Type:           gateway.EventSubscriptionActivated,
				SubscriptionID: "gwsub_1",
				Status:         "active",
				PeriodStart:    periodStart,
				PeriodEnd:      periodEnd,
				Raw:            payload,
			}, nil
		},
	}
	var updated *domain.Subscription
	subs := &subRepoMock{
		getByGatewayIDFunc: func(_ context.Context, gatewayName, gatewaySubID string) (*domain.Subscription, error) {
			return &domain.Subscription{ID: "sub-1", OrgID: "org-1", Gateway: gatewayName, GatewaySubscriptionID: gatewaySubID, Status: domain.SubscriptionIncomplete}, nil
		},
		updateFunc: func(_ context.Context, sub *domain.Subscription) error {
			updated = sub
			return nil
		},
	}
	var stored *domain.WebhookEvent
	webhooks := &webhookRepoMock{
		insertFunc: func(_ context.Context, event *domain.WebhookEvent) error {
			stored = event
			return nil
		},
	}
	cfg := testConfig()
	svc := New(&planRepoMock{}, subs, webhooks, gateway.NewRegistry(gw), newLogger(), cfg)

	payload := []byte(`{"id":"evt_1"}`)
	if err := svc.HandleWebhook(context.Background(), "fake", payload, http.Header{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated == nil || updated.Status != domain.SubscriptionActive {
		t.Fatalf("expected active subscription, got %+v", updated)
	}
	if updated.CurrentPeriodStart == nil || !updated.CurrentPeriodStart.Equal(periodStart) {
		t.Error("expected billing period recorded")
	}
	if stored == nil {
		t.Fatal("expected webhook recorded in ledger")
	}
	plain, err := crypto.DecryptToString(cfg.BillingEncryptionKey, stored.Payload)
	if err != nil {
		t.Fatalf("stored payload should decrypt: %v", err)
	}
	if plain != string(payload) {
		t.Errorf("decrypted payload mismatch: %q", plain)
	}
}

func TestHandleWebhookChargeRecordsInvoice(t *testing.T) {
	paidAt := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	gw := &fakeGateway{
		verifyFunc: func(payload []byte, _ http.Header) (*gateway.Event, error) {
			return &gateway.Event{
				ID:             "evt_2",
				Type:           gateway.EventSubscriptionCharged,
				SubscriptionID: "gwsub_1",
				Invoice: &gateway.InvoiceData{
					GatewayInvoiceID: "in_1",
					AmountCents:      4900,
					Currency:         "usd",
					PaidAt:           paidAt,
				},
				Raw: payload,
			}, nil
		},
	}
	var invoice *domain.Invoice
	subs := &subRepoMock{
		getByGatewayIDFunc: func(_ context.Context, gatewayName, gatewaySubID string) (*domain.Subscription, error) {
			return &domain.Subscription{ID: "sub-1", OrgID: "org-1", Gateway: gatewayName, GatewaySubscriptionID: gatewaySubID, Status: domain.SubscriptionPastDue}, nil
		},
		upsertInvoiceFunc: func(_ context.Context, inv *domain.Invoice) error {
			invoice = inv
			return nil
		},
	}
	svc := New(&planRepoMock{}, subs, &webhookRepoMock{}, gateway.NewRegistry(gw), newLogger(), testConfig())

	if err := svc.HandleWebhook(context.Background(), "fake", []byte("{}"), http.Header{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if invoice == nil {
		t.Fatal("expected invoice recorded")
	}
	if invoice.Status != domain.InvoicePaid || invoice.AmountCents != 4900 {
		t.Errorf("unexpected invoice: %+v", invoice)
	}
	if invoice.PaidAt == nil || !invoice.PaidAt.Equal(paidAt) {
		t.Error("expected paid_at carried over")
	}
}

func TestHandleWebhookPaymentFailed(t *testing.T) {
	gw := &fakeGateway{
		verifyFunc: func(payload []byte, _ http.Header) (*gateway.Event, error) {
			return &gateway.Event{ID: "evt_3", Type: gateway.EventPaymentFailed, SubscriptionID: "gwsub_1", Raw: payload}, nil
		},
	}
	var updated *domain.Subscription
	subs := &subRepoMock{
		getByGatewayIDFunc: func(_ context.Context, gatewayName, gatewaySubID string) (*domain.Subscription, error) {
			return &domain.Subscription{ID: "sub-1", OrgID: "org-1", Status: domain.SubscriptionActive}, nil
		},
		updateFunc: func(_ context.Context, sub *domain.Subscription) error {
			updated = sub
			return nil
		},
	}
	svc := New(&planRepoMock{}, subs, &webhookRepoMock{}, gateway.NewRegistry(gw), newLogger(), testConfig())

	if err := svc.HandleWebhook(context.Background(), "fake", []byte("{}"), http.Header{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated == nil || updated.Status != domain.SubscriptionPastDue {
		t.Errorf("expected past_due, got %+v", updated)
	}
}

func TestHandleWebhookHaltedGoesUnpaid(t *testing.T) {
	gw := &fakeGateway{
		verifyFunc: func(payload []byte, _ http.Header) (*gateway.Event, error) {
			return &gateway.Event{ID: "evt_5", Type: gateway.EventPaymentFailed, SubscriptionID: "gwsub_1", Status: "halted", Raw: payload}, nil
		},
	}
	var updated *domain.Subscription
	subs := &subRepoMock{
		getByGatewayIDFunc: func(_ context.Context, gatewayName, gatewaySubID string) (*domain.Subscription, error) {
			return &domain.Subscription{ID: "sub-1", OrgID: "org-1", Status: domain.SubscriptionPastDue}, nil
		},
		updateFunc: func(_ context.Context, sub *domain.Subscription) error {
			updated = sub
			return nil
		},
	}
	svc := New(&planRepoMock{}, subs, &webhookRepoMock{}, gateway.NewRegistry(gw), newLogger(), testConfig())

	if err := svc.HandleWebhook(context.Background(), "fake", []byte("{}"), http.Header{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated == nil || updated.Status != domain.SubscriptionUnpaid {
		t.Errorf("expected unpaid after halt, got %+v", updated)
	}
}

func TestHandleWebhookUnknownSubscriptionAcknowledged(t *testing.T) {
	gw := &fakeGateway{
		verifyFunc: func(payload []byte, _ http.Header) (*gateway.Event, error) {
			return &gateway.Event{ID: "evt_4", Type: gateway.EventSubscriptionCancelled, SubscriptionID: "gwsub_other", Raw: payload}, nil
		},
	}
	svc := New(&planRepoMock{}, &subRepoMock{}, &webhookRepoMock{}, gateway.NewRegistry(gw), newLogger(), testConfig())

	if err := svc.HandleWebhook(context.Background(), "fake", []byte("{}"), http.Header{}); err != nil {
		t.Fatalf("unknown subscription should be acknowledged, got %v", err)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]string{
		"active":        domain.SubscriptionActive,
		"authenticated": domain.SubscriptionActive,
		"trialing":      domain.SubscriptionTrialing,
		"past_due":      domain.SubscriptionPastDue,
		"halted":        domain.SubscriptionUnpaid,
		"canceled":      domain.SubscriptionCancelled,
		"completed":     domain.SubscriptionCancelled,
		"unpaid":        domain.SubscriptionUnpaid,
		"created":       domain.SubscriptionIncomplete,
	}
	for in, want := range cases {
		if got := normalizeStatus(in); got != want {
			t.Errorf("normalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func planRepoWith(plan *domain.Plan) *planRepoMock {
	return &planRepoMock{
		getByIDFunc: func(_ context.Context, planID string) (*domain.Plan, error) {
			if planID == plan.ID {
				return plan, nil
			}
			return nil, repository.ErrNotFound
		},
	}
}

type fakeGateway struct {
	customersCreated       int
	createSubscriptionFunc func(context.Context, gateway.SubscriptionParams) (*gateway.SubscriptionInfo, error)
	verifyFunc             func([]byte, http.Header) (*gateway.Event, error)
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreateCustomer(_ context.Context, params gateway.CustomerParams) (string, error) {
	g.customersCreated++
	return "cust_1", nil
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, params gateway.SubscriptionParams) (*gateway.SubscriptionInfo, error) {
	if g.createSubscriptionFunc != nil {
		return g.createSubscriptionFunc(ctx, params)
	}
	return &gateway.SubscriptionInfo{ID: "gwsub_1", CustomerID: params.CustomerID, Status: "incomplete"}, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, subscriptionID string, atPeriodEnd bool) (*gateway.SubscriptionInfo, error) {
	status := "cancelled"
	if atPeriodEnd {
		status = "active"
	}
	return &gateway.SubscriptionInfo{ID: subscriptionID, Status: status, CancelAtPeriodEnd: atPeriodEnd}, nil
}

func (g *fakeGateway) GetSubscription(_ context.Context, subscriptionID string) (*gateway.SubscriptionInfo, error) {
	return &gateway.SubscriptionInfo{ID: subscriptionID, Status: "active"}, nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, params gateway.CheckoutParams) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil
}

func (g *fakeGateway) VerifyWebhook(payload []byte, header http.Header) (*gateway.Event, error) {
	if g.verifyFunc != nil {
		return g.verifyFunc(payload, header)
	}
	return &gateway.Event{ID: "evt_0", Raw: payload}, nil
}

type planRepoMock struct {
	createFunc     func(context.Context, *domain.Plan) error
	getByIDFunc    func(context.Context, string) (*domain.Plan, error)
	slugExistsFunc func(context.Context, string) (bool, error)
	listFunc       func(context.Context) ([]domain.Plan, error)
}

func (m *planRepoMock) CreatePlan(ctx context.Context, plan *domain.Plan) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, plan)
	}
	return nil
}

func (m *planRepoMock) GetPlanByID(ctx context.Context, planID string) (*domain.Plan, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, planID)
	}
	return nil, repository.ErrNotFound
}

func (m *planRepoMock) PlanSlugExists(ctx context.Context, slug string) (bool, error) {
	if m.slugExistsFunc != nil {
		return m.slugExistsFunc(ctx, slug)
	}
	return false, nil
}

func (m *planRepoMock) ListActivePlans(ctx context.Context) ([]domain.Plan, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

type subRepoMock struct {
	createFunc         func(context.Context, *domain.Subscription) error
	updateFunc         func(context.Context, *domain.Subscription) error
	getByIDFunc        func(context.Context, string) (*domain.Subscription, error)
	getByGatewayIDFunc func(context.Context, string, string) (*domain.Subscription, error)
	getCurrentFunc     func(context.Context, string) (*domain.Subscription, error)
	upsertInvoiceFunc  func(context.Context, *domain.Invoice) error
	listInvoicesFunc   func(context.Context, string, int) ([]domain.Invoice, error)
	sumPaidFunc        func(context.Context, string, time.Time, time.Time) (int64, error)
}

func (m *subRepoMock) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, sub)
	}
	return nil
}

func (m *subRepoMock) UpdateSubscription(ctx context.Context, sub *domain.Subscription) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, sub)
	}
	return nil
}

func (m *subRepoMock) GetSubscriptionByID(ctx context.Context, subID string) (*domain.Subscription, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, subID)
	}
	return nil, repository.ErrNotFound
}

func (m *subRepoMock) GetSubscriptionByGatewayID(ctx context.Context, gatewayName, gatewaySubID string) (*domain.Subscription, error) {
	if m.getByGatewayIDFunc != nil {
		return m.getByGatewayIDFunc(ctx, gatewayName, gatewaySubID)
	}
	return nil, repository.ErrNotFound
}

func (m *subRepoMock) GetCurrentSubscription(ctx context.Context, orgID string) (*domain.Subscription, error) {
	if m.getCurrentFunc != nil {
		return m.getCurrentFunc(ctx, orgID)
	}
	return nil, repository.ErrNotFound
}

func (m *subRepoMock) UpsertInvoice(ctx context.Context, invoice *domain.Invoice) error {
	if m.upsertInvoiceFunc != nil {
		return m.upsertInvoiceFunc(ctx, invoice)
	}
	return nil
}

func (m *subRepoMock) ListInvoicesByOrg(ctx context.Context, orgID string, limit int) ([]domain.Invoice, error) {
	if m.listInvoicesFunc != nil {
		return m.listInvoicesFunc(ctx, orgID, limit)
	}
	return nil, nil
}

func (m *subRepoMock) SumPaidInvoiceCents(ctx context.Context, orgID string, from, to time.Time) (int64, error) {
	if m.sumPaidFunc != nil {
		return m.sumPaidFunc(ctx, orgID, from, to)
	}
	return 0, nil
}

func (m *subRepoMock) SumPaidInvoiceCentsByDay(context.Context, string, time.Time, time.Time) (map[string]int64, error) {
	return map[string]int64{}, nil
}

type webhookRepoMock struct {
	insertFunc func(context.Context, *domain.WebhookEvent) error
	existsFunc func(context.Context, string, string) (bool, error)
}

func (m *webhookRepoMock) InsertWebhookEvent(ctx context.Context, event *domain.WebhookEvent) error {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, event)
	}
	return nil
}

func (m *webhookRepoMock) WebhookEventExists(ctx context.Context, gatewayName, eventID string) (bool, error) {
	if m.existsFunc != nil {
		return m.existsFunc(ctx, gatewayName, eventID)
	}
	return false, nil
}
