package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment     string
	Addr            string
	DatabaseURL     string
	MigrationsDir   string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	SiteName    string
	FrontendURL string

	EmailBackend string
	EmailFrom    string
	SMTPAddr     string
	SMTPUser     string
	SMTPPassword string

	PaymentGateway        string
	BillingEncryptionKey  string
	StripeSecretKey       string
	StripeWebhookSecret   string
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	InvitationTTL        time.Duration
	InvitationSweepEvery time.Duration
	InvitationSweepGrace time.Duration

	AnalyticsRollupEvery time.Duration

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:     GetString("APP_ENV", "development"),
		Addr:            GetString("API_ADDR", ":8000"),
		DatabaseURL:     GetString("DATABASE_URL", "postgres://launchpad:launchpad@db:5432/launchpad?sslmode=disable"),
		MigrationsDir:   GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:       GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:  time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL: time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24)) * time.Hour,

		SiteName:    GetString("SITE_NAME", "Launchpad"),
		FrontendURL: GetString("FRONTEND_URL", "http://localhost:3000"),

		EmailBackend: GetString("EMAIL_BACKEND", "console"),
		EmailFrom:    GetString("EMAIL_FROM", "noreply@launchpad.local"),
		SMTPAddr:     GetString("SMTP_ADDR", "localhost:1025"),
		SMTPUser:     GetString("SMTP_USER", ""),
		SMTPPassword: GetString("SMTP_PASSWORD", ""),

		PaymentGateway:        GetString("PAYMENT_GATEWAY", "stripe"),
		BillingEncryptionKey:  GetString("BILLING_ENCRYPTION_KEY", "supersecuresecret"),
		StripeSecretKey:       GetString("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:   GetString("STRIPE_WEBHOOK_SECRET", ""),
		RazorpayKeyID:         GetString("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret:     GetString("RAZORPAY_KEY_SECRET", ""),
		RazorpayWebhookSecret: GetString("RAZORPAY_WEBHOOK_SECRET", ""),

		InvitationTTL:        time.Duration(GetInt("INVITATION_TTL_HOURS", 168)) * time.Hour,
		InvitationSweepEvery: time.Duration(GetInt("INVITATION_SWEEP_MINUTES", 60)) * time.Minute,
		InvitationSweepGrace: time.Duration(GetInt("INVITATION_SWEEP_GRACE_HOURS", 24)) * time.Hour,

		AnalyticsRollupEvery: time.Duration(GetInt("ANALYTICS_ROLLUP_MINUTES", 15)) * time.Minute,

		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
