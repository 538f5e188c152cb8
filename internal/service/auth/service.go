package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/mailer"
	"github.com/launchpadhq/launchpad/internal/repository"
	"github.com/launchpadhq/launchpad/pkg/config"
	"github.com/launchpadhq/launchpad/pkg/crypto"
	jwtpkg "github.com/launchpadhq/launchpad/pkg/jwt"
)

var (
	// ErrInvalidCredentials is returned for both unknown emails and wrong
	// passwords so login cannot be used to probe for accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when the signup email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrTokenInvalid is returned for unknown or expired verification and
	// reset tokens.
	ErrTokenInvalid = errors.New("token is invalid or expired")
	// ErrWeakPassword is returned when the password fails policy.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
)

const (
	resetTokenTTL = 2 * time.Hour
	magicLinkTTL  = 15 * time.Minute
)

// Service handles signup, login and account credential workflows.
type Service struct {
	users  repository.UserRepository
	mail   mailer.Mailer
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, mail mailer.Mailer, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, mail: mail, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Signup registers a new user and sends a verification email.
func (s Service) Signup(ctx context.Context, email, name, password string) (*domain.User, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, TokenPair{}, fmt.Errorf("invalid email address: %w", err)
	}
	if len(password) < 8 {
		return nil, TokenPair{}, ErrWeakPassword
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	now := time.Now().UTC()
	user := &domain.User{
		ID:                     uuid.NewString(),
		Email:                  email,
		Name:                   strings.TrimSpace(name),
		PasswordHash:           hash,
		EmailVerificationToken: newToken(),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, TokenPair{}, ErrEmailTaken
		}
		return nil, TokenPair{}, err
	}
	s.sendVerificationEmail(ctx, user)
	tokens, err := s.issueTokens(user.ID, "")
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, tokens, nil
}

// Login authenticates a user and returns tokens.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrInvalidCredentials
		}
		return nil, TokenPair{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrInvalidCredentials
	}
	tokens, err := s.issueTokens(user.ID, "")
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// Authorize validates a bearer token and returns the associated user and claims.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, errors.New("token required")
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// Refresh exchanges a valid refresh token for a new token pair, carrying the
// org context forward.
func (s Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := jwtpkg.Parse(strings.TrimSpace(refreshToken), s.cfg.JWTSecret)
	if err != nil {
		return TokenPair{}, err
	}
	if _, err := s.users.GetUserByID(ctx, claims.UserID); err != nil {
		return TokenPair{}, err
	}
	return s.issueTokens(claims.UserID, claims.OrgID)
}

// SwitchOrganization issues tokens scoped to the given organization. The
// caller must already have verified membership.
func (s Service) SwitchOrganization(userID, orgID string) (TokenPair, error) {
	return s.issueTokens(userID, orgID)
}

// VerifyEmail marks an account verified given its emailed token. The token
// survives verification, so clicking the link twice succeeds both times.
func (s Service) VerifyEmail(ctx context.Context, token string) (*domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrTokenInvalid
	}
	user, err := s.users.GetUserByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if user.EmailVerified {
		return user, nil
	}
	user.EmailVerified = true
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("email verified", "user_id", user.ID)
	return user, nil
}

// RequestPasswordReset issues a reset token and emails it. Unknown emails
// are silently ignored so the endpoint cannot enumerate accounts.
func (s Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	expires := time.Now().UTC().Add(resetTokenTTL)
	user.PasswordResetToken = newToken()
	user.PasswordResetExpiresAt = &expires
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return err
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.FrontendURL, user.PasswordResetToken)
	if err := s.mail.Send(ctx, mailer.Message{
		To:      user.Email,
		Subject: fmt.Sprintf("Reset your %s password", s.cfg.SiteName),
		Text:    fmt.Sprintf("A password reset was requested for your account. Use the link below within %d hours.\n\n%s", int(resetTokenTTL.Hours()), link),
	}); err != nil {
		s.logger.Error("failed to send password reset email", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword sets a new password given a valid reset token and
// invalidates the token.
func (s Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return ErrTokenInvalid
	}
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}
	user, err := s.users.GetUserByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenInvalid
		}
		return err
	}
	if user.PasswordResetExpiresAt == nil || time.Now().UTC().After(*user.PasswordResetExpiresAt) {
		return ErrTokenInvalid
	}
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.PasswordResetToken = ""
	user.PasswordResetExpiresAt = nil
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.logger.Info("password reset", "user_id", user.ID)
	return nil
}

// RequestMagicLink issues a short-lived login token and emails it. Unknown
// emails are silently ignored so the endpoint cannot enumerate accounts.
func (s Service) RequestMagicLink(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	expires := time.Now().UTC().Add(magicLinkTTL)
	user.MagicLinkToken = newToken()
	user.MagicLinkExpiresAt = &expires
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return err
	}
	link := fmt.Sprintf("%s/magic-login?token=%s", s.cfg.FrontendURL, user.MagicLinkToken)
	if err := s.mail.Send(ctx, mailer.Message{
		To:      user.Email,
		Subject: fmt.Sprintf("Sign in to %s", s.cfg.SiteName),
		Text:    fmt.Sprintf("Use the link below to sign in. It expires in %d minutes.\n\n%s", int(magicLinkTTL.Minutes()), link),
	}); err != nil {
		s.logger.Error("failed to send magic link email", "user_id", user.ID, "error", err)
	}
	return nil
}

// MagicLinkLogin exchanges a magic link token for a session. Logging in
// also counts as proof of mailbox ownership, so the account is marked
// verified. The token is single use.
func (s Service) MagicLinkLogin(ctx context.Context, token string) (*domain.User, TokenPair, error) {
	if strings.TrimSpace(token) == "" {
		return nil, TokenPair{}, ErrTokenInvalid
	}
	user, err := s.users.GetUserByMagicLinkToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrTokenInvalid
		}
		return nil, TokenPair{}, err
	}
	if user.MagicLinkExpiresAt == nil || time.Now().UTC().After(*user.MagicLinkExpiresAt) {
		return nil, TokenPair{}, ErrTokenInvalid
	}
	user.MagicLinkToken = ""
	user.MagicLinkExpiresAt = nil
	user.EmailVerified = true
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, TokenPair{}, err
	}
	tokens, err := s.issueTokens(user.ID, "")
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in via magic link", "user_id", user.ID)
	return user, tokens, nil
}

func (s Service) sendVerificationEmail(ctx context.Context, user *domain.User) {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.cfg.FrontendURL, user.EmailVerificationToken)
	err := s.mail.Send(ctx, mailer.Message{
		To:      user.Email,
		Subject: fmt.Sprintf("Verify your %s account", s.cfg.SiteName),
		Text:    fmt.Sprintf("Welcome to %s! Confirm your email address by visiting:\n\n%s", s.cfg.SiteName, link),
	})
	if err != nil {
		s.logger.Error("failed to send verification email", "user_id", user.ID, "error", err)
	}
}

func (s Service) issueTokens(userID, orgID string) (TokenPair, error) {
	access, err := jwtpkg.GenerateToken(userID, orgID, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(userID, orgID, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func newToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
