package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/mailer"
	"github.com/launchpadhq/launchpad/internal/repository"
	"github.com/launchpadhq/launchpad/internal/service/analytics"
	"github.com/launchpadhq/launchpad/internal/service/auth"
	"github.com/launchpadhq/launchpad/internal/service/billing"
	"github.com/launchpadhq/launchpad/internal/service/billing/gateway"
	"github.com/launchpadhq/launchpad/internal/service/flags"
	"github.com/launchpadhq/launchpad/internal/service/org"
	"github.com/launchpadhq/launchpad/internal/ws"
	"github.com/launchpadhq/launchpad/pkg/config"
	jwtpkg "github.com/launchpadhq/launchpad/pkg/jwt"
)

type routerFixture struct {
	router *Router
	users  *memUserRepo
	orgs   *memOrgRepo
	flags  *memFlagRepo
	events *memAnalyticsRepo
}

func setupRouter(t *testing.T) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{
		JWTSecret:            "test-secret",
		AccessTokenTTL:       time.Hour,
		RefreshTokenTTL:      24 * time.Hour,
		FrontendURL:          "http://localhost:3000",
		SiteName:             "Launchpad",
		InvitationTTL:        7 * 24 * time.Hour,
		BillingEncryptionKey: "test-encryption-key",
	}
	mail := mailer.NewConsole(logger)

	users := newMemUserRepo()
	orgs := newMemOrgRepo()
	invites := newMemInviteRepo()
	flagRepo := newMemFlagRepo()
	events := newMemAnalyticsRepo()

	authSvc := auth.New(users, mail, logger, cfg)
	orgSvc := org.New(orgs, invites, users, mail, logger, cfg)
	billingSvc := billing.New(&memPlanRepo{}, &memSubRepo{}, &memWebhookRepo{}, gateway.NewRegistry(), logger, cfg)
	flagSvc := flags.New(flagRepo, orgs, &memSubRepo{}, &memPlanRepo{}, logger)
	analyticsSvc := analytics.New(events, &memSubRepo{}, nil, logger)

	router := NewRouter(logger, authSvc, orgSvc, billingSvc, flagSvc, analyticsSvc, ws.NewHub(), nil, nil)
	t.Cleanup(router.Close)

	return &routerFixture{router: router, users: users, orgs: orgs, flags: flagRepo, events: events}
}

func (f *routerFixture) addUser(t *testing.T, id, email string) string {
	t.Helper()
	f.users.mu.Lock()
	f.users.users[id] = &domain.User{ID: id, Email: email, Name: "Test User", EmailVerified: true}
	f.users.mu.Unlock()
	token, err := jwtpkg.GenerateToken(id, "", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (f *routerFixture) addOrg(t *testing.T, orgID, ownerID string) {
	t.Helper()
	f.orgs.mu.Lock()
	defer f.orgs.mu.Unlock()
	f.orgs.orgs[orgID] = &domain.Organization{ID: orgID, Name: "Acme", Slug: "acme", OwnerID: ownerID}
	f.orgs.members[orgID+"/"+ownerID] = &domain.Membership{OrgID: orgID, UserID: ownerID, Role: domain.RoleOwner, JoinedAt: time.Now()}
}

func doJSON(t *testing.T, router *Router, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestSignupLoginFlow(t *testing.T) {
	f := setupRouter(t)

	rr := doJSON(t, f.router, http.MethodPost, "/auth/signup", "", `{"email":"new@example.com","name":"New User","password":"longenough"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		User   map[string]any `json:"user"`
		Tokens auth.TokenPair `json:"tokens"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if created.Tokens.AccessToken == "" {
		t.Fatalf("expected access token issued")
	}
	if created.User["email"] != "new@example.com" {
		t.Fatalf("unexpected email: %v", created.User["email"])
	}

	rr = doJSON(t, f.router, http.MethodPost, "/auth/login", "", `{"email":"new@example.com","password":"longenough"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, f.router, http.MethodPost, "/auth/login", "", `{"email":"new@example.com","password":"wrongpassword"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestSignupDuplicateEmailConflicts(t *testing.T) {
	f := setupRouter(t)

	body := `{"email":"dupe@example.com","name":"Dupe","password":"longenough"}`
	if rr := doJSON(t, f.router, http.MethodPost, "/auth/signup", "", body); rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if rr := doJSON(t, f.router, http.MethodPost, "/auth/signup", "", body); rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestMagicLinkLoginFlow(t *testing.T) {
	f := setupRouter(t)
	f.addUser(t, "user-1", "link@example.com")

	rr := doJSON(t, f.router, http.MethodPost, "/auth/magic-link/request", "", `{"email":"link@example.com"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	// Unknown emails get the same response.
	if rr := doJSON(t, f.router, http.MethodPost, "/auth/magic-link/request", "", `{"email":"ghost@example.com"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 for unknown email, got %d", rr.Code)
	}

	f.users.mu.Lock()
	linkToken := f.users.users["user-1"].MagicLinkToken
	f.users.mu.Unlock()
	if linkToken == "" {
		t.Fatal("expected magic link token stored")
	}

	rr = doJSON(t, f.router, http.MethodPost, "/auth/magic-link/login", "", `{"token":"`+linkToken+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Tokens.AccessToken == "" {
		t.Fatal("expected access token issued")
	}

	// The link is single use.
	rr = doJSON(t, f.router, http.MethodPost, "/auth/magic-link/login", "", `{"token":"`+linkToken+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 on reuse, got %d", rr.Code)
	}
}

func TestMeRequiresAuth(t *testing.T) {
	f := setupRouter(t)

	rr := doJSON(t, f.router, http.MethodGet, "/auth/me", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}

	token := f.addUser(t, "user-1", "me@example.com")
	rr = doJSON(t, f.router, http.MethodGet, "/auth/me", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["user_id"] != "user-1" {
		t.Fatalf("unexpected user_id: %v", payload["user_id"])
	}
}

func TestCreateAndGetOrganization(t *testing.T) {
	f := setupRouter(t)
	token := f.addUser(t, "user-1", "owner@example.com")

	rr := doJSON(t, f.router, http.MethodPost, "/orgs", token, `{"name":"Acme Inc"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if created["slug"] != "acme-inc" {
		t.Fatalf("unexpected slug: %v", created["slug"])
	}
	orgID, _ := created["id"].(string)
	if orgID == "" {
		t.Fatalf("expected org id in payload")
	}

	rr = doJSON(t, f.router, http.MethodGet, "/orgs/"+orgID, token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	outsider := f.addUser(t, "user-2", "outsider@example.com")
	rr = doJSON(t, f.router, http.MethodGet, "/orgs/"+orgID, outsider, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for non-member, got %d", rr.Code)
	}
}

func TestOrgDeleteRequiresOwner(t *testing.T) {
	f := setupRouter(t)
	ownerToken := f.addUser(t, "owner-1", "owner@example.com")
	memberToken := f.addUser(t, "member-1", "member@example.com")
	f.addOrg(t, "org-1", "owner-1")
	f.orgs.mu.Lock()
	f.orgs.members["org-1/member-1"] = &domain.Membership{OrgID: "org-1", UserID: "member-1", Role: domain.RoleMember, JoinedAt: time.Now()}
	f.orgs.mu.Unlock()

	rr := doJSON(t, f.router, http.MethodDelete, "/orgs/org-1", memberToken, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
	rr = doJSON(t, f.router, http.MethodDelete, "/orgs/org-1", ownerToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestFeatureFlagLifecycle(t *testing.T) {
	f := setupRouter(t)
	token := f.addUser(t, "owner-1", "owner@example.com")
	f.addOrg(t, "org-1", "owner-1")

	rr := doJSON(t, f.router, http.MethodPost, "/orgs/org-1/flags", token, `{"key":"beta-dashboard","enabled":true}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, f.router, http.MethodGet, "/orgs/org-1/flags/beta-dashboard", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var evaluated map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&evaluated); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if evaluated["enabled"] != true {
		t.Fatalf("expected flag enabled, got %v", evaluated["enabled"])
	}

	rr = doJSON(t, f.router, http.MethodDelete, "/orgs/org-1/flags/beta-dashboard", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, f.router, http.MethodGet, "/orgs/org-1/flags/beta-dashboard", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if err := json.NewDecoder(rr.Body).Decode(&evaluated); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if evaluated["enabled"] != false {
		t.Fatalf("expected flag disabled after unset, got %v", evaluated["enabled"])
	}
}

func TestTrackEventRecordsActor(t *testing.T) {
	f := setupRouter(t)
	token := f.addUser(t, "owner-1", "owner@example.com")
	f.addOrg(t, "org-1", "owner-1")

	rr := doJSON(t, f.router, http.MethodPost, "/orgs/org-1/analytics/events", token, `{"name":"page_view","properties":{"path":"/home"}}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	if len(f.events.inserted) != 1 {
		t.Fatalf("expected one event persisted, got %d", len(f.events.inserted))
	}
	event := f.events.inserted[0]
	if event.Name != "page_view" {
		t.Fatalf("unexpected name %q", event.Name)
	}
	if event.UserID == nil || *event.UserID != "owner-1" {
		t.Fatalf("expected user id from token, got %v", event.UserID)
	}
}

func TestEventUsageEndpoints(t *testing.T) {
	f := setupRouter(t)
	token := f.addUser(t, "owner-1", "owner@example.com")
	f.addOrg(t, "org-1", "owner-1")

	for i := 0; i < 3; i++ {
		if rr := doJSON(t, f.router, http.MethodPost, "/orgs/org-1/analytics/events", token, `{"name":"page_view"}`); rr.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d", rr.Code)
		}
	}
	if rr := doJSON(t, f.router, http.MethodPost, "/orgs/org-1/analytics/events", token, `{"name":"export"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}

	rr := doJSON(t, f.router, http.MethodGet, "/orgs/org-1/analytics/events/top", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var top []domain.EventCount
	if err := json.NewDecoder(rr.Body).Decode(&top); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(top) != 2 || top[0].Name != "page_view" || top[0].Count != 3 {
		t.Fatalf("unexpected top events: %+v", top)
	}

	rr = doJSON(t, f.router, http.MethodGet, "/orgs/org-1/analytics/events/least-used", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var least []domain.EventCount
	if err := json.NewDecoder(rr.Body).Decode(&least); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(least) != 2 || least[0].Name != "export" {
		t.Fatalf("unexpected least-used events: %+v", least)
	}

	if rr := doJSON(t, f.router, http.MethodGet, "/orgs/org-1/analytics/revenue", token, ""); rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for revenue series, got %d", rr.Code)
	}
}

func TestAnalyticsRequiresMembership(t *testing.T) {
	f := setupRouter(t)
	f.addOrg(t, "org-1", "owner-1")
	outsider := f.addUser(t, "user-2", "outsider@example.com")

	rr := doJSON(t, f.router, http.MethodGet, "/orgs/org-1/analytics/dau", outsider, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestWebhookUnknownGatewayNotFound(t *testing.T) {
	f := setupRouter(t)

	rr := doJSON(t, f.router, http.MethodPost, "/webhooks/billing/paypal", "", `{}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 for unconfigured gateway, got %d", rr.Code)
	}
}

func TestWebhookInvalidSignatureRejected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{BillingEncryptionKey: "test-encryption-key"}
	gw := &badSignatureGateway{}
	billingSvc := billing.New(&memPlanRepo{}, &memSubRepo{}, &memWebhookRepo{}, gateway.NewRegistry(gw), logger, cfg)
	router := NewRouter(logger, auth.Service{}, org.Service{}, billingSvc, flags.Service{}, analytics.Service{}, nil, nil, nil)
	t.Cleanup(router.Close)

	rr := doJSON(t, router, http.MethodPost, "/webhooks/billing/fake", "", `{"anything":true}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHealthzReportsDatabase(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	healthErr := error(nil)
	router := NewRouter(logger, auth.Service{}, org.Service{}, billing.Service{}, flags.Service{}, analytics.Service{}, nil, nil, func(context.Context) error {
		return healthErr
	})
	t.Cleanup(router.Close)

	rr := doJSON(t, router, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	healthErr = context.DeadlineExceeded
	rr = doJSON(t, router, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestRouteLabelCollapsesIDs(t *testing.T) {
	cases := map[string]string{
		"/":                        "/",
		"/healthz":                 "/healthz",
		"/orgs":                    "/orgs",
		"/orgs/org-123":            "/orgs/{id}",
		"/orgs/org-123/members":    "/orgs/{id}/members",
		"/auth/login":              "/auth/login",
		"/webhooks/billing/stripe": "/webhooks/billing",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

type badSignatureGateway struct{}

func (g *badSignatureGateway) Name() string { return "fake" }
func (g *badSignatureGateway) CreateCustomer(context.Context, gateway.CustomerParams) (string, error) {
	return "", nil
}
func (g *badSignatureGateway) CreateSubscription(context.Context, gateway.SubscriptionParams) (*gateway.SubscriptionInfo, error) {
	return nil, nil
}
func (g *badSignatureGateway) CancelSubscription(context.Context, string, bool) (*gateway.SubscriptionInfo, error) {
	return nil, nil
}
func (g *badSignatureGateway) GetSubscription(context.Context, string) (*gateway.SubscriptionInfo, error) {
	return nil, nil
}
func (g *badSignatureGateway) CreateCheckoutSession(context.Context, gateway.CheckoutParams) (*gateway.CheckoutSession, error) {
	return nil, nil
}
func (g *badSignatureGateway) VerifyWebhook([]byte, http.Header) (*gateway.Event, error) {
	return nil, gateway.ErrInvalidSignature
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (m *memUserRepo) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return repository.ErrConflict
		}
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memUserRepo) UpdateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memUserRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUserRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[id]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memUserRepo) GetUserByVerificationToken(_ context.Context, token string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.EmailVerificationToken == token && token != "" {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUserRepo) GetUserByResetToken(_ context.Context, token string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.PasswordResetToken == token && token != "" {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUserRepo) GetUserByMagicLinkToken(_ context.Context, token string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.MagicLinkToken == token && token != "" {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memOrgRepo struct {
	mu      sync.Mutex
	orgs    map[string]*domain.Organization
	members map[string]*domain.Membership
}

func newMemOrgRepo() *memOrgRepo {
	return &memOrgRepo{orgs: make(map[string]*domain.Organization), members: make(map[string]*domain.Membership)}
}

func (m *memOrgRepo) CreateOrganization(_ context.Context, org *domain.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *org
	m.orgs[org.ID] = &clone
	return nil
}

func (m *memOrgRepo) UpdateOrganization(_ context.Context, org *domain.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[org.ID]; !ok {
		return repository.ErrNotFound
	}
	clone := *org
	m.orgs[org.ID] = &clone
	return nil
}

func (m *memOrgRepo) DeleteOrganization(_ context.Context, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orgs[orgID]; !ok {
		return repository.ErrNotFound
	}
	delete(m.orgs, orgID)
	return nil
}

func (m *memOrgRepo) GetOrganizationByID(_ context.Context, orgID string) (*domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if org, ok := m.orgs[orgID]; ok {
		clone := *org
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memOrgRepo) SlugExists(_ context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, org := range m.orgs {
		if org.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memOrgRepo) ListOrganizationsByUser(_ context.Context, userID string) ([]domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Organization
	for key, member := range m.members {
		if member.UserID != userID {
			continue
		}
		orgID := strings.SplitN(key, "/", 2)[0]
		if org, ok := m.orgs[orgID]; ok {
			out = append(out, *org)
		}
	}
	return out, nil
}

func (m *memOrgRepo) UpsertMembership(_ context.Context, member *domain.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *member
	m.members[member.OrgID+"/"+member.UserID] = &clone
	return nil
}

func (m *memOrgRepo) DeleteMembership(_ context.Context, orgID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := orgID + "/" + userID
	if _, ok := m.members[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.members, key)
	return nil
}

func (m *memOrgRepo) GetMembership(_ context.Context, orgID, userID string) (*domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if member, ok := m.members[orgID+"/"+userID]; ok {
		clone := *member
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memOrgRepo) ListMemberships(_ context.Context, orgID string) ([]domain.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Membership
	for _, member := range m.members {
		if member.OrgID == orgID {
			out = append(out, *member)
		}
	}
	return out, nil
}

type memInviteRepo struct {
	mu      sync.Mutex
	invites map[string]*domain.Invitation
}

func newMemInviteRepo() *memInviteRepo {
	return &memInviteRepo{invites: make(map[string]*domain.Invitation)}
}

func (m *memInviteRepo) CreateInvitation(_ context.Context, invite *domain.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *invite
	m.invites[invite.ID] = &clone
	return nil
}

func (m *memInviteRepo) GetInvitationByToken(_ context.Context, token string) (*domain.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, invite := range m.invites {
		if invite.Token == token {
			clone := *invite
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memInviteRepo) GetPendingInvitation(_ context.Context, orgID, email string) (*domain.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, invite := range m.invites {
		if invite.OrgID == orgID && invite.Email == email && invite.AcceptedAt == nil {
			clone := *invite
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memInviteRepo) ListInvitationsByOrg(_ context.Context, orgID string) ([]domain.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Invitation
	for _, invite := range m.invites {
		if invite.OrgID == orgID {
			out = append(out, *invite)
		}
	}
	return out, nil
}

func (m *memInviteRepo) MarkInvitationAccepted(_ context.Context, inviteID string, acceptedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	invite, ok := m.invites[inviteID]
	if !ok {
		return repository.ErrNotFound
	}
	invite.AcceptedAt = &acceptedAt
	return nil
}

func (m *memInviteRepo) DeleteInvitation(_ context.Context, orgID, inviteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	invite, ok := m.invites[inviteID]
	if !ok || invite.OrgID != orgID {
		return repository.ErrNotFound
	}
	delete(m.invites, inviteID)
	return nil
}

func (m *memInviteRepo) DeleteExpiredInvitations(_ context.Context, expiredBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, invite := range m.invites {
		if invite.ExpiresAt.Before(expiredBefore) && invite.AcceptedAt == nil {
			delete(m.invites, id)
			n++
		}
	}
	return n, nil
}

type memPlanRepo struct{}

func (m *memPlanRepo) CreatePlan(context.Context, *domain.Plan) error { return nil }
func (m *memPlanRepo) GetPlanByID(context.Context, string) (*domain.Plan, error) {
	return nil, repository.ErrNotFound
}
func (m *memPlanRepo) PlanSlugExists(context.Context, string) (bool, error) { return false, nil }
func (m *memPlanRepo) ListActivePlans(context.Context) ([]domain.Plan, error) {
	return nil, nil
}

type memSubRepo struct{}

func (m *memSubRepo) CreateSubscription(context.Context, *domain.Subscription) error { return nil }
func (m *memSubRepo) UpdateSubscription(context.Context, *domain.Subscription) error { return nil }
func (m *memSubRepo) GetSubscriptionByID(context.Context, string) (*domain.Subscription, error) {
	return nil, repository.ErrNotFound
}
func (m *memSubRepo) GetSubscriptionByGatewayID(context.Context, string, string) (*domain.Subscription, error) {
	return nil, repository.ErrNotFound
}
func (m *memSubRepo) GetCurrentSubscription(context.Context, string) (*domain.Subscription, error) {
	return nil, repository.ErrNotFound
}
func (m *memSubRepo) UpsertInvoice(context.Context, *domain.Invoice) error { return nil }
func (m *memSubRepo) ListInvoicesByOrg(context.Context, string, int) ([]domain.Invoice, error) {
	return nil, nil
}
func (m *memSubRepo) SumPaidInvoiceCents(context.Context, string, time.Time, time.Time) (int64, error) {
	return 0, nil
}
func (m *memSubRepo) SumPaidInvoiceCentsByDay(context.Context, string, time.Time, time.Time) (map[string]int64, error) {
	return map[string]int64{}, nil
}

type memWebhookRepo struct{}

func (m *memWebhookRepo) InsertWebhookEvent(context.Context, *domain.WebhookEvent) error { return nil }
func (m *memWebhookRepo) WebhookEventExists(context.Context, string, string) (bool, error) {
	return false, nil
}

type memFlagRepo struct {
	mu    sync.Mutex
	flags map[string]*domain.FeatureFlag
}

func newMemFlagRepo() *memFlagRepo {
	return &memFlagRepo{flags: make(map[string]*domain.FeatureFlag)}
}

func (m *memFlagRepo) UpsertFeatureFlag(_ context.Context, flag *domain.FeatureFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *flag
	m.flags[flag.OrgID+"/"+flag.Key] = &clone
	return nil
}

func (m *memFlagRepo) DeleteFeatureFlag(_ context.Context, orgID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mapKey := orgID + "/" + key
	if _, ok := m.flags[mapKey]; !ok {
		return repository.ErrNotFound
	}
	delete(m.flags, mapKey)
	return nil
}

func (m *memFlagRepo) GetFeatureFlag(_ context.Context, orgID, key string) (*domain.FeatureFlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if flag, ok := m.flags[orgID+"/"+key]; ok {
		clone := *flag
		return &clone, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memFlagRepo) ListFeatureFlags(_ context.Context, orgID string) ([]domain.FeatureFlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FeatureFlag
	for _, flag := range m.flags {
		if flag.OrgID == orgID {
			out = append(out, *flag)
		}
	}
	return out, nil
}

type memAnalyticsRepo struct {
	mu       sync.Mutex
	inserted []domain.Event
}

func newMemAnalyticsRepo() *memAnalyticsRepo {
	return &memAnalyticsRepo{}
}

func (m *memAnalyticsRepo) InsertEvent(_ context.Context, event *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = int64(len(m.inserted) + 1)
	m.inserted = append(m.inserted, *event)
	return nil
}

func (m *memAnalyticsRepo) CountDailyActiveUsers(context.Context, string, time.Time, time.Time) (map[string]int, error) {
	return map[string]int{}, nil
}

func (m *memAnalyticsRepo) CountActiveUsers(context.Context, string, time.Time, time.Time) (int, error) {
	return 0, nil
}

func (m *memAnalyticsRepo) CountNewMembers(context.Context, string, time.Time, time.Time) (int, error) {
	return 0, nil
}

func (m *memAnalyticsRepo) CountEventsByName(_ context.Context, orgID string, from, to time.Time) ([]domain.EventCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, event := range m.inserted {
		if event.OrgID == orgID {
			counts[event.Name]++
		}
	}
	out := make([]domain.EventCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, domain.EventCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memAnalyticsRepo) UpsertDailyMetric(context.Context, *domain.DailyMetric) error { return nil }
func (m *memAnalyticsRepo) UpsertMonthlyMetric(context.Context, *domain.MonthlyMetric) error {
	return nil
}

func (m *memAnalyticsRepo) ListDailyMetrics(context.Context, string, time.Time, time.Time) ([]domain.DailyMetric, error) {
	return nil, nil
}

func (m *memAnalyticsRepo) ListMonthlyMetrics(context.Context, string, int) ([]domain.MonthlyMetric, error) {
	return nil, nil
}

func (m *memAnalyticsRepo) ListOrganizationIDs(context.Context) ([]string, error) { return nil, nil }
