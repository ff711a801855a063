package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"clavionx/backend/internal/audit"
	auditrepo "clavionx/backend/internal/audit/repository"
	"clavionx/backend/internal/config"
	"clavionx/backend/internal/db"
	devicerepo "clavionx/backend/internal/device/repository"
	"clavionx/backend/internal/devotp"
	lockoutrepo "clavionx/backend/internal/lockout/repository"
	"clavionx/backend/internal/mfa/notify"
	mfarepo "clavionx/backend/internal/mfa/repository"
	"clavionx/backend/internal/mfa/sms"
	"clavionx/backend/internal/password"
	passwordrepo "clavionx/backend/internal/password/repository"
	"clavionx/backend/internal/platform/clock"
	"clavionx/backend/internal/scheduler"
	"clavionx/backend/internal/security"
	"clavionx/backend/internal/server/interceptors"
	sessionrepo "clavionx/backend/internal/session/repository"
	userrepo "clavionx/backend/internal/user/repository"
)

// stores is the persistence layer: Postgres when DATABASE_URL is set, in-memory otherwise.
type stores struct {
	conn     *sql.DB
	users    userrepo.Repository
	sessions sessionrepo.Repository
	tokens   mfarepo.Repository
	devices  devicerepo.Repository
	lockout  lockoutrepo.Repository
	history  passwordrepo.Repository
	resets   passwordrepo.ResetRepository
	audit    auditrepo.Repository
	redis    *redis.Client
}

func openStores(cfg *config.Config) (*stores, error) {
	s := &stores{}
	if cfg.DatabaseURL == "" {
		log.Println("server: DATABASE_URL not set, using in-memory stores")
		s.users = userrepo.NewMemoryRepository()
		s.sessions = sessionrepo.NewMemoryRepository()
		s.tokens = mfarepo.NewMemoryRepository()
		s.devices = devicerepo.NewMemoryRepository()
		s.history = passwordrepo.NewMemoryRepository()
		s.resets = passwordrepo.NewMemoryResetRepository()
		s.audit = auditrepo.NewMemoryRepository()
	} else {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		s.conn = conn
		s.users = userrepo.NewPostgresRepository(conn)
		s.sessions = sessionrepo.NewPostgresRepository(conn)
		s.tokens = mfarepo.NewPostgresRepository(conn)
		s.devices = devicerepo.NewPostgresRepository(conn)
		s.history = passwordrepo.NewPostgresRepository(conn)
		s.resets = passwordrepo.NewPostgresResetRepository(conn)
		s.audit = auditrepo.NewPostgresRepository(conn)
	}

	switch cfg.LockoutBackend() {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("redis url: %w", err)
		}
		s.redis = redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		ttl := 2 * (cfg.LockoutWindowDuration() + cfg.LockoutLockDuration())
		s.lockout = lockoutrepo.NewRedisRepository(s.redis, ttl)
	case "postgres":
		s.lockout = lockoutrepo.NewPostgresRepository(s.conn)
	default:
		s.lockout = lockoutrepo.NewMemoryRepository()
	}
	log.Printf("server: lockout counters in %s", cfg.LockoutBackend())
	return s, nil
}

func (s *stores) close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// tokenProvider parses the configured signing keys. Outside production a missing key pair is
// replaced by a per-process key, so tokens do not survive a restart.
func tokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required in production")
		}
		signer, pub, err := security.GenerateEphemeralKey()
		if err != nil {
			return nil, err
		}
		log.Println("server: no JWT keys configured, using an ephemeral signing key")
		return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.CodeTTL()), nil
	}
	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("JWT_PRIVATE_KEY: %w", err)
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("JWT_PUBLIC_KEY: %w", err)
	}
	return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.CodeTTL()), nil
}

// notifier returns the delivery path for codes and reset links. In dev OTP mode both are parked in
// store for GET /dev/otp.
func notifier(cfg *config.Config, clk clock.Clock, store devotp.Store) notify.Notifier {
	if cfg.OTPReturnToClient {
		return &notify.DevNotifier{Store: store, Clock: clk, TTL: cfg.CodeTTL()}
	}
	r := &notify.Router{}
	if cfg.SMTPAddr != "" {
		r.Email = &notify.SMTPSender{
			Addr:     cfg.SMTPAddr,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  cfg.StoreCallTimeout(),
		}
	} else {
		log.Println("server: SMTP_ADDR not set, e-mail codes cannot be delivered")
	}
	if cfg.SMSLocalAPIKey != "" {
		r.SMS = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	}
	return r
}

func passwordPolicy(cfg *config.Config) password.Policy {
	return password.Policy{
		MinLength:      cfg.PasswordMinLength,
		MaxLength:      cfg.PasswordMaxLength,
		RequireUpper:   cfg.PasswordRequireUpper,
		RequireLower:   cfg.PasswordRequireLower,
		RequireDigit:   cfg.PasswordRequireDigit,
		RequireSpecial: cfg.PasswordRequireSpecial,
		RejectCommon:   cfg.PasswordRejectCommon,
	}
}

func auditLogger(repo auditrepo.Repository) *audit.Logger {
	return audit.NewAsyncLogger(repo, interceptors.ClientIP)
}

// maintenance is the set of periodic cleanup jobs.
type maintenance struct {
	CleanupInactive func(ctx context.Context, timeout time.Duration) (int, error)
	PurgeOld        func(ctx context.Context, retention time.Duration) (int, error)
	CleanupTokens   func(ctx context.Context, usedRetention time.Duration) (int, error)
	CleanupDevices  func(ctx context.Context) (int, error)
	CleanupResets   func(ctx context.Context, retention time.Duration) (int, error)
	SyncHealth      func(ctx context.Context) error
}

func registerJobs(s *scheduler.Scheduler, cfg *config.Config, m maintenance) error {
	jobs := []scheduler.Job{
		{
			Name:  "session-inactivity",
			Every: 30 * time.Minute,
			Run: scheduler.Counted("session-inactivity", func(ctx context.Context) (int, error) {
				return m.CleanupInactive(ctx, cfg.InactivityTimeout())
			}),
		},
		{
			Name:  "session-purge",
			Daily: scheduler.At(2, 0),
			Run: scheduler.Counted("session-purge", func(ctx context.Context) (int, error) {
				return m.PurgeOld(ctx, cfg.SessionRetentionPeriod())
			}),
		},
		{
			Name:  "twofactor-gc",
			Every: time.Hour,
			Run: scheduler.Counted("twofactor-gc", func(ctx context.Context) (int, error) {
				return m.CleanupTokens(ctx, cfg.UsedTokenRetention())
			}),
		},
		{
			Name:  "password-reset-gc",
			Every: time.Hour,
			Run: scheduler.Counted("password-reset-gc", func(ctx context.Context) (int, error) {
				return m.CleanupResets(ctx, 0)
			}),
		},
		{
			Name:  "trusted-device-gc",
			Daily: scheduler.At(2, 0),
			Run:   scheduler.Counted("trusted-device-gc", m.CleanupDevices),
		},
		{
			Name:    "health-sync",
			Every:   15 * time.Second,
			Timeout: 5 * time.Second,
			Run:     m.SyncHealth,
		},
	}
	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			return err
		}
	}
	return nil
}
