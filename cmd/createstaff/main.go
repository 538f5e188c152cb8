package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/launchpadhq/launchpad/internal/domain"
	"github.com/launchpadhq/launchpad/internal/repository/postgres"
	"github.com/launchpadhq/launchpad/pkg/config"
	"github.com/launchpadhq/launchpad/pkg/crypto"
	"github.com/launchpadhq/launchpad/pkg/logger"
)

func main() {
	email := flag.String("email", "", "staff account email")
	name := flag.String("name", "", "display name")
	password := flag.String("password", "", "login password")
	timeout := flag.Duration("timeout", 30*time.Second, "command timeout")
	flag.Parse()

	cfg := config.LoadAPIConfig()
	log := logger.New("createstaff", slog.LevelInfo)

	normalized := strings.ToLower(strings.TrimSpace(*email))
	if normalized == "" || *password == "" {
		log.Error("email and password are required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	hash, err := crypto.HashPassword(*password)
	if err != nil {
		log.Error("failed to hash password", "error", err)
		os.Exit(1)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:            uuid.NewString(),
		Email:         normalized,
		Name:          strings.TrimSpace(*name),
		PasswordHash:  hash,
		EmailVerified: true,
		IsStaff:       true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := postgres.New(pool).CreateUser(ctx, user); err != nil {
		log.Error("failed to create staff user", "error", err)
		os.Exit(1)
	}
	log.Info("staff user created", "user_id", user.ID, "email", user.Email)
}
