// seed inserts development accounts for local testing. Run via go run ./cmd/seed.
// Idempotent: an account whose username already exists is left untouched.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"clavionx/backend/internal/config"
	"clavionx/backend/internal/db"
	passwordrepo "clavionx/backend/internal/password/repository"
	passwordservice "clavionx/backend/internal/password/service"
	"clavionx/backend/internal/platform/clock"
	"clavionx/backend/internal/security"
	userdomain "clavionx/backend/internal/user/domain"
	userrepo "clavionx/backend/internal/user/repository"
)

// defaultSeedPassword satisfies the default password policy. Override with SEED_PASSWORD.
const defaultSeedPassword = "Clavionx#2025"

var accounts = []userdomain.User{
	{Username: "admin", Email: "admin@example.com", Role: userdomain.RoleSuperAdmin, TwoFactorEnabled: true, TwoFactorMethod: userdomain.TwoFactorEmail},
	{Username: "ops", Email: "ops@example.com", Role: userdomain.RoleAdmin, TwoFactorEnabled: true, TwoFactorMethod: userdomain.TwoFactorEmail},
	{Username: "dev", Email: "dev@example.com", Role: userdomain.RoleStudent},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("seed: DATABASE_URL is not set")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer conn.Close()

	raw := os.Getenv("SEED_PASSWORD")
	if raw == "" {
		raw = defaultSeedPassword
	}
	hasher := security.NewHasher(cfg.BcryptCost)
	users := userrepo.NewPostgresRepository(conn)
	history := passwordservice.NewHistoryService(passwordrepo.NewPostgresRepository(conn), hasher, clock.System{}, cfg.PasswordHistorySize)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for _, a := range accounts {
		existing, err := users.GetByLogin(ctx, a.Username)
		if err != nil {
			log.Fatalf("seed: lookup %s: %v", a.Username, err)
		}
		if existing != nil {
			log.Printf("seed: %s already exists, skipping", a.Username)
			continue
		}
		hash, err := hasher.Hash([]byte(raw))
		if err != nil {
			log.Fatalf("seed: hash: %v", err)
		}
		now := time.Now().UTC()
		u := a
		u.ID = uuid.NewString()
		u.PasswordHash = hash
		u.CreatedAt, u.UpdatedAt = now, now
		if err := users.Create(ctx, &u); err != nil {
			log.Fatalf("seed: create %s: %v", a.Username, err)
		}
		if err := history.RecordChange(ctx, u.ID, hash); err != nil {
			log.Fatalf("seed: password history for %s: %v", a.Username, err)
		}
		log.Printf("seed: created %s (%s)", u.Username, u.Role)
	}
}
