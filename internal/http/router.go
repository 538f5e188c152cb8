package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/repository"
	"github.com/launchpadhq/launchpad/internal/service/analytics"
	"github.com/launchpadhq/launchpad/internal/service/auth"
	"github.com/launchpadhq/launchpad/internal/service/billing"
	"github.com/launchpadhq/launchpad/internal/service/billing/gateway"
	"github.com/launchpadhq/launchpad/internal/service/flags"
	"github.com/launchpadhq/launchpad/internal/service/org"
	"github.com/launchpadhq/launchpad/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	auth      auth.Service
	orgs      org.Service
	billing   billing.Service
	flags     flags.Service
	analytics analytics.Service
	hub       *ws.Hub
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	dbHealth  func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
}

const (
	rateWindowDefault   = time.Minute
	rateWindowRealtime  = 30 * time.Second
	rateLimitSignup     = 5
	rateLimitLogin      = 12
	rateLimitReset      = 5
	rateLimitUserWrite  = 60
	rateLimitUserRead   = 120
	rateLimitTrack      = 600
	rateLimitWebsocket  = 30
	healthCheckTimeout  = 2 * time.Second
	maxWebhookBodyBytes = int64(128 * 1024)
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, orgSvc org.Service, billingSvc billing.Service, flagSvc flags.Service, analyticsSvc analytics.Service, hub *ws.Hub, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		auth:      authSvc,
		orgs:      orgSvc,
		billing:   billingSvc,
		flags:     flagSvc,
		analytics: analyticsSvc,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())

	r.mux.HandleFunc("/auth/signup", r.audit(r.withRateLimit("auth_signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit(r.withRateLimit("auth_login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/auth/refresh", r.audit(r.withRateLimit("auth_refresh", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleRefresh)))
	r.mux.HandleFunc("/auth/verify-email", r.audit(r.withRateLimit("auth_verify_email", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleVerifyEmail)))
	r.mux.HandleFunc("/auth/password-reset/request", r.audit(r.withRateLimit("auth_reset_request", rateLimitReset, rateWindowDefault, rateLimitKeyIP, r.handlePasswordResetRequest)))
	r.mux.HandleFunc("/auth/password-reset/confirm", r.audit(r.withRateLimit("auth_reset_confirm", rateLimitReset, rateWindowDefault, rateLimitKeyIP, r.handlePasswordResetConfirm)))
	r.mux.HandleFunc("/auth/magic-link/request", r.audit(r.withRateLimit("auth_magic_request", rateLimitReset, rateWindowDefault, rateLimitKeyIP, r.handleMagicLinkRequest)))
	r.mux.HandleFunc("/auth/magic-link/login", r.audit(r.withRateLimit("auth_magic_login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleMagicLinkLogin)))
	r.mux.HandleFunc("/auth/me", r.audit(r.handlerAuthRate("auth_me", rateLimitUserRead, rateWindowDefault, r.handleMe)))

	r.mux.HandleFunc("/orgs", r.audit(r.handlerAuthRate("orgs", rateLimitUserWrite, rateWindowDefault, r.handleOrgs)))
	r.mux.HandleFunc("/orgs/", r.audit(r.handlerAuthRate("orgs", rateLimitUserWrite, rateWindowDefault, r.handleOrgSubroutes)))
	r.mux.HandleFunc("/invitations/accept", r.audit(r.handlerAuthRate("invitations_accept", rateLimitUserWrite, rateWindowDefault, r.handleAcceptInvitation)))

	r.mux.HandleFunc("/billing/plans", r.audit(r.handleBillingPlans))
	r.mux.HandleFunc("/webhooks/billing/", r.audit(r.handleBillingWebhook))

	r.mux.HandleFunc("/ws/analytics", r.audit(r.handlerAuthRate("ws_analytics", rateLimitWebsocket, rateWindowRealtime, r.handleAnalyticsWS)))
	r.mux.HandleFunc("/sse/analytics", r.audit(r.handlerAuthRate("sse_analytics", rateLimitWebsocket, rateWindowRealtime, r.handleAnalyticsSSE)))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Signup(req.Context(), payload.Email, payload.Name, payload.Password)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, auth.ErrEmailTaken) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":   userPayload(user),
		"tokens": tokens,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":   userPayload(user),
		"tokens": tokens,
	})
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	tokens, err := r.auth.Refresh(req.Context(), payload.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

func (r *Router) handleVerifyEmail(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := r.auth.VerifyEmail(req.Context(), payload.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}

func (r *Router) handlePasswordResetRequest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.auth.RequestPasswordReset(req.Context(), payload.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "could not process reset request")
		return
	}
	// Same response whether or not the account exists.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset email sent if the account exists"})
}

func (r *Router) handlePasswordResetConfirm(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.auth.ResetPassword(req.Context(), payload.Token, payload.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (r *Router) handleMagicLinkRequest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.auth.RequestMagicLink(req.Context(), payload.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "could not process magic link request")
		return
	}
	// Same response whether or not the account exists.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "login email sent if the account exists"})
}

func (r *Router) handleMagicLinkLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.MagicLinkLogin(req.Context(), payload.Token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":   userPayload(user),
		"tokens": tokens,
	})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	orgs, err := r.orgs.ListForUser(req.Context(), info.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       info.UserID,
		"email":         info.Email,
		"org_id":        info.OrgID,
		"organizations": orgPayloads(orgs),
	})
}

func (r *Router) handleOrgs(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := r.orgs.Create(req.Context(), info.UserID, payload.Name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, orgPayload(created))
	case http.MethodGet:
		list, err := r.orgs.ListForUser(req.Context(), info.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, orgPayloads(list))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleOrgSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/orgs/")
	parts := strings.Split(trimmed, "/")
	orgID := parts[0]
	if orgID == "" {
		r.notFound(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleOrg(w, req, orgID, info)
	case parts[1] == "members":
		r.handleOrgMembers(w, req, orgID, parts[1:], info)
	case parts[1] == "leave" && len(parts) == 2:
		r.handleOrgLeave(w, req, orgID, info)
	case parts[1] == "switch" && len(parts) == 2:
		r.handleOrgSwitch(w, req, orgID, info)
	case parts[1] == "invitations":
		r.handleOrgInvitations(w, req, orgID, parts[1:], info)
	case parts[1] == "billing":
		r.handleOrgBilling(w, req, orgID, parts[1:], info)
	case parts[1] == "flags":
		r.handleOrgFlags(w, req, orgID, parts[1:], info)
	case parts[1] == "analytics":
		r.handleOrgAnalytics(w, req, orgID, parts[1:], info)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleOrg(w http.ResponseWriter, req *http.Request, orgID string, info authInfo) {
	switch req.Method {
	case http.MethodGet:
		found, err := r.orgs.Get(req.Context(), orgID, info.UserID)
		if err != nil {
			r.writeOrgError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orgPayload(found))
	case http.MethodPatch:
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		updated, err := r.orgs.Update(req.Context(), orgID, info.UserID, payload.Name)
		if err != nil {
			r.writeOrgError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orgPayload(updated))
	case http.MethodDelete:
		if err := r.orgs.Delete(req.Context(), orgID, info.UserID); err != nil {
			r.writeOrgError(w, err)
			return
		}
		if r.hub != nil {
			r.hub.CloseOrg(orgID)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleOrgMembers(w http.ResponseWriter, req *http.Request, orgID string, parts []string, info authInfo) {
	switch len(parts) {
	case 1:
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		members, err := r.orgs.Members(req.Context(), orgID, info.UserID)
		if err != nil {
			r.writeOrgError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, memberPayloads(members))
	case 2:
		targetID := parts[1]
		if targetID == "" {
			r.notFound(w)
			return
		}
		switch req.Method {
		case http.MethodPatch:
			var payload struct {
				Role string `json:"role"`
			}
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			member, err := r.orgs.ChangeRole(req.Context(), orgID, info.UserID, targetID, payload.Role)
			if err != nil {
				r.writeOrgError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, memberPayload(*member))
		case http.MethodDelete:
			if err := r.orgs.RemoveMember(req.Context(), orgID, info.UserID, targetID); err != nil {
				r.writeOrgError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
		default:
			r.methodNotAllowed(w)
		}
	default:
		r.notFound(w)
	}
}

func (r *Router) handleOrgLeave(w http.ResponseWriter, req *http.Request, orgID string, info authInfo) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if err := r.orgs.Leave(req.Context(), orgID, info.UserID); err != nil {
		r.writeOrgError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (r *Router) handleOrgSwitch(w http.ResponseWriter, req *http.Request, orgID string, info authInfo) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if _, err := r.orgs.Membership(req.Context(), orgID, info.UserID); err != nil {
		r.writeOrgError(w, err)
		return
	}
	tokens, err := r.auth.SwitchOrganization(info.UserID, orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

func (r *Router) handleOrgInvitations(w http.ResponseWriter, req *http.Request, orgID string, parts []string, info authInfo) {
	switch len(parts) {
	case 1:
		switch req.Method {
		case http.MethodPost:
			var payload struct {
				Email string `json:"email"`
				Role  string `json:"role"`
			}
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			if payload.Role == "" {
				payload.Role = domain.RoleMember
			}
			invite, err := r.orgs.Invite(req.Context(), orgID, info.UserID, payload.Email, payload.Role)
			if err != nil {
				r.writeOrgError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, invitePayload(*invite))
		case http.MethodGet:
			invites, err := r.orgs.Invitations(req.Context(), orgID, info.UserID)
			if err != nil {
				r.writeOrgError(w, err)
				return
			}
			payloads := make([]map[string]any, 0, len(invites))
			for _, invite := range invites {
				payloads = append(payloads, invitePayload(invite))
			}
			writeJSON(w, http.StatusOK, payloads)
		default:
			r.methodNotAllowed(w)
		}
	case 2:
		if req.Method != http.MethodDelete {
			r.methodNotAllowed(w)
			return
		}
		if err := r.orgs.RevokeInvitation(req.Context(), orgID, info.UserID, parts[1]); err != nil {
			r.writeOrgError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
	default:
		r.notFound(w)
	}
}

func (r *Router) handleAcceptInvitation(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	member, err := r.orgs.AcceptInvitation(req.Context(), payload.Token, info.UserID)
	if err != nil {
		r.writeOrgError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, memberPayload(*member))
}

func (r *Router) handleOrgBilling(w http.ResponseWriter, req *http.Request, orgID string, parts []string, info authInfo) {
	if len(parts) != 2 {
		r.notFound(w)
		return
	}
	member, err := r.orgs.Membership(req.Context(), orgID, info.UserID)
	if err != nil {
		r.writeOrgError(w, err)
		return
	}
	switch parts[1] {
	case "subscribe":
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		if !member.IsAdminOrOwner() {
			writeError(w, http.StatusForbidden, "billing changes require admin access")
			return
		}
		var payload struct {
			PlanID    string `json:"plan_id"`
			TrialDays int    `json:"trial_days"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		organization, err := r.orgs.Get(req.Context(), orgID, info.UserID)
		if err != nil {
			r.writeOrgError(w, err)
			return
		}
		sub, err := r.billing.Subscribe(req.Context(), organization, info.Email, payload.PlanID, payload.TrialDays)
		if err != nil {
			r.writeBillingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, subscriptionPayload(sub, nil))
	case "checkout":
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		if !member.IsAdminOrOwner() {
			writeError(w, http.StatusForbidden, "billing changes require admin access")
			return
		}
		var payload struct {
			PlanID string `json:"plan_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		organization, err := r.orgs.Get(req.Context(), orgID, info.UserID)
		if err != nil {
			r.writeOrgError(w, err)
			return
		}
		session, err := r.billing.CreateCheckoutSession(req.Context(), organization, info.Email, payload.PlanID)
		if err != nil {
			r.writeBillingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	case "subscription":
		switch req.Method {
		case http.MethodGet:
			sub, plan, err := r.billing.CurrentSubscription(req.Context(), orgID)
			if err != nil {
				r.writeBillingError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, subscriptionPayload(sub, plan))
		case http.MethodDelete:
			if !member.IsAdminOrOwner() {
				writeError(w, http.StatusForbidden, "billing changes require admin access")
				return
			}
			atPeriodEnd := req.URL.Query().Get("at_period_end") == "true"
			sub, err := r.billing.Cancel(req.Context(), orgID, atPeriodEnd)
			if err != nil {
				r.writeBillingError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, subscriptionPayload(sub, nil))
		default:
			r.methodNotAllowed(w)
		}
	case "invoices":
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		invoices, err := r.billing.ListInvoices(req.Context(), orgID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, invoicePayloads(invoices))
	default:
		r.notFound(w)
	}
}

func (r *Router) handleBillingPlans(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		plans, err := r.billing.ListPlans(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, planPayloads(plans))
	case http.MethodPost:
		ctx, info, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, isSetter := w.(contextSetter); isSetter {
			setter.SetContext(ctx)
		}
		req = req.WithContext(ctx)
		var payload billing.PlanInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		actor := &domain.User{ID: info.UserID, Email: info.Email, IsStaff: info.IsStaff}
		plan, err := r.billing.CreatePlan(req.Context(), actor, payload)
		if err != nil {
			if errors.Is(err, billing.ErrStaffOnly) {
				writeError(w, http.StatusForbidden, err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, planPayload(*plan))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleBillingWebhook(w http.ResponseWriter, req *http.Request) {
	gatewayName := strings.TrimPrefix(req.URL.Path, "/webhooks/billing/")
	if gatewayName == "" || strings.Contains(gatewayName, "/") {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	req.Body = http.MaxBytesReader(w, req.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	err = r.billing.HandleWebhook(req.Context(), gatewayName, payload, req.Header)
	switch {
	case err == nil:
		r.recordWebhookEvent(gatewayName, "processed")
		writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
	case errors.Is(err, billing.ErrEventProcessed):
		r.recordWebhookEvent(gatewayName, "duplicate")
		writeJSON(w, http.StatusOK, map[string]string{"status": "already processed"})
	case errors.Is(err, gateway.ErrInvalidSignature):
		r.recordWebhookEvent(gatewayName, "rejected")
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
	default:
		r.recordWebhookEvent(gatewayName, "error")
		r.logger.Error("webhook processing failed", "gateway", gatewayName, "error", err)
		writeError(w, http.StatusInternalServerError, "webhook processing failed")
	}
}

func (r *Router) handleEventUsage(w http.ResponseWriter, req *http.Request, orgID, order string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	var (
		counts []domain.EventCount
		err    error
	)
	switch order {
	case "top":
		counts, err = r.analytics.TopEvents(req.Context(), orgID, days, limit)
	case "least-used":
		counts, err = r.analytics.LeastUsedEvents(req.Context(), orgID, days, limit)
	default:
		r.notFound(w)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if counts == nil {
		counts = []domain.EventCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func (r *Router) handleOrgFlags(w http.ResponseWriter, req *http.Request, orgID string, parts []string, info authInfo) {
	switch len(parts) {
	case 1:
		switch req.Method {
		case http.MethodGet:
			list, err := r.flags.List(req.Context(), orgID, info.UserID)
			if err != nil {
				r.writeFlagError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, flagPayloads(list))
		case http.MethodPost:
			var payload struct {
				Key     string `json:"key"`
				Enabled bool   `json:"enabled"`
			}
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			flag, err := r.flags.Set(req.Context(), orgID, info.UserID, payload.Key, payload.Enabled)
			if err != nil {
				r.writeFlagError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, flagPayload(*flag))
		default:
			r.methodNotAllowed(w)
		}
	case 2:
		key := parts[1]
		switch req.Method {
		case http.MethodGet:
			if _, err := r.orgs.Membership(req.Context(), orgID, info.UserID); err != nil {
				r.writeOrgError(w, err)
				return
			}
			enabled, err := r.flags.Evaluate(req.Context(), orgID, key)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"key": key, "enabled": enabled})
		case http.MethodDelete:
			if err := r.flags.Unset(req.Context(), orgID, info.UserID, key); err != nil {
				r.writeFlagError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
		default:
			r.methodNotAllowed(w)
		}
	default:
		r.notFound(w)
	}
}

func (r *Router) handleOrgAnalytics(w http.ResponseWriter, req *http.Request, orgID string, parts []string, info authInfo) {
	if _, err := r.orgs.Membership(req.Context(), orgID, info.UserID); err != nil {
		r.writeOrgError(w, err)
		return
	}
	if len(parts) < 2 {
		r.notFound(w)
		return
	}
	switch parts[1] {
	case "events":
		if len(parts) == 3 {
			r.handleEventUsage(w, req, orgID, parts[2])
			return
		}
		if len(parts) != 2 || req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		var payload analytics.TrackInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		payload.UserID = info.UserID
		payload.IPAddress = clientIP(req)
		payload.UserAgent = req.UserAgent()
		event, err := r.analytics.Track(req.Context(), orgID, payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"id": event.ID, "timestamp": event.Timestamp})
	case "revenue":
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		days, _ := strconv.Atoi(req.URL.Query().Get("days"))
		series, err := r.analytics.RevenueSeries(req.Context(), orgID, days)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, series)
	case "dau":
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		days, _ := strconv.Atoi(req.URL.Query().Get("days"))
		series, err := r.analytics.DAUSeries(req.Context(), orgID, days)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, series)
	case "wau":
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		weeks, _ := strconv.Atoi(req.URL.Query().Get("weeks"))
		series, err := r.analytics.WAUSeries(req.Context(), orgID, weeks)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, series)
	case "mau":
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		mau, err := r.analytics.MAU(req.Context(), orgID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"mau": mau})
	case "metrics":
		if len(parts) != 3 || req.Method != http.MethodGet {
			r.notFound(w)
			return
		}
		switch parts[2] {
		case "daily":
			days, _ := strconv.Atoi(req.URL.Query().Get("days"))
			metrics, err := r.analytics.DailyMetrics(req.Context(), orgID, days)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, dailyMetricPayloads(metrics))
		case "monthly":
			limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
			metrics, err := r.analytics.MonthlyMetrics(req.Context(), orgID, limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, monthlyMetricPayloads(metrics))
		default:
			r.notFound(w)
		}
	default:
		r.notFound(w)
	}
}

func (r *Router) handleAnalyticsWS(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	orgID := req.URL.Query().Get("org_id")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter required")
		return
	}
	if _, err := r.orgs.Membership(req.Context(), orgID, info.UserID); err != nil {
		r.writeOrgError(w, err)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(orgID, client)
	go func() {
		defer func() {
			r.hub.Unregister(orgID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleAnalyticsSSE(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.missingAuthContext(w, req)
		return
	}
	orgID := req.URL.Query().Get("org_id")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter required")
		return
	}
	if _, err := r.orgs.Membership(req.Context(), orgID, info.UserID); err != nil {
		r.writeOrgError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.hub.Register(orgID, client)
	defer func() {
		r.hub.Unregister(orgID, client)
		client.Close()
	}()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) writeOrgError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, org.ErrNotMember):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, org.ErrForbidden), errors.Is(err, org.ErrOwnerImmutable):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, org.ErrInviteInvalid), errors.Is(err, org.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, org.ErrInviteExists), errors.Is(err, org.ErrAlreadyMember):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (r *Router) writeBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrNoSubscription):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, billing.ErrAlreadySubscribed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, billing.ErrPlanInactive):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (r *Router) writeFlagError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flags.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, flags.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (r *Router) missingAuthContext(w http.ResponseWriter, req *http.Request) {
	r.logger.Error("auth context missing", "path", req.URL.Path)
	writeError(w, http.StatusInternalServerError, "authorization context missing")
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, routeLabel(req.URL.Path), status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
			if info.OrgID != "" {
				fields = append(fields, "org_id", info.OrgID)
			}
		} else if strings.HasPrefix(req.URL.Path, "/webhooks/") {
			actor = "gateway"
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

// routeLabel collapses path parameters so metrics stay low-cardinality.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "/"
	}
	if parts[0] == "orgs" {
		switch len(parts) {
		case 1:
			return "/orgs"
		case 2:
			return "/orgs/{id}"
		default:
			return "/orgs/{id}/" + parts[2]
		}
	}
	if len(parts) == 1 {
		return "/" + parts[0]
	}
	return "/" + parts[0] + "/" + parts[1]
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
