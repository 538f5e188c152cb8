package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/launchpadhq/launchpad/internal/app/migrate"
	httpx "github.com/launchpadhq/launchpad/internal/http"
	"github.com/launchpadhq/launchpad/internal/mailer"
	"github.com/launchpadhq/launchpad/internal/repository/postgres"
	"github.com/launchpadhq/launchpad/internal/service/analytics"
	"github.com/launchpadhq/launchpad/internal/service/auth"
	"github.com/launchpadhq/launchpad/internal/service/billing"
	"github.com/launchpadhq/launchpad/internal/service/billing/gateway"
	"github.com/launchpadhq/launchpad/internal/service/flags"
	"github.com/launchpadhq/launchpad/internal/service/org"
	"github.com/launchpadhq/launchpad/internal/ws"
	"github.com/launchpadhq/launchpad/pkg/config"
	"github.com/launchpadhq/launchpad/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	analyticsHub := ws.NewHub()

	var mail mailer.Mailer
	switch strings.ToLower(strings.TrimSpace(cfg.EmailBackend)) {
	case "smtp":
		mail = mailer.NewSMTP(cfg.SMTPAddr, cfg.EmailFrom, cfg.SMTPUser, cfg.SMTPPassword)
	default:
		mail = mailer.NewConsole(log)
	}

	var gateways []gateway.Gateway
	if cfg.StripeSecretKey != "" {
		gateways = append(gateways, gateway.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret))
	}
	if cfg.RazorpayKeyID != "" && cfg.RazorpayKeySecret != "" {
		gateways = append(gateways, gateway.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret))
	}
	registry := gateway.NewRegistry(gateways...)
	if len(gateways) == 0 {
		log.Warn("no payment gateways configured, billing endpoints will reject requests")
	} else {
		log.Info("payment gateways configured", "gateways", registry.Names())
	}

	authSvc := auth.New(repo, mail, log, cfg)
	orgSvc := org.New(repo, repo, repo, mail, log, cfg)
	billingSvc := billing.New(repo, repo, repo, registry, log, cfg)
	flagSvc := flags.New(repo, repo, repo, repo, log)
	analyticsSvc := analytics.New(repo, repo, analyticsHub, log)

	go orgSvc.RunSweeper(ctx)

	rollup := analytics.NewRollup(repo, repo, log, cfg.AnalyticsRollupEvery)
	go rollup.Run(ctx)

	var limiter httpx.RateLimiter = httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, orgSvc, billingSvc, flagSvc, analyticsSvc, analyticsHub, limiter, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
