// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the browser-facing HTTP server listens on (e.g. :8081).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the admin gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. When empty the server runs on in-memory stores (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the Redis URL (redis://host:6379/0) used when LockoutStore is "redis".
	RedisURL string `mapstructure:"REDIS_URL"`
	// LockoutStore selects the failed-login counter backend: "postgres" (default when DATABASE_URL is set), "redis" or "memory".
	LockoutStore string `mapstructure:"LOCKOUT_STORE"`
	// StoreTimeout bounds every store call made while serving a request (e.g. "5s").
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim on challenge tickets and admin access tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim on challenge tickets and admin access tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the admin access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SessionMaxPerUser is the number of concurrently active sessions per user before the oldest is evicted.
	SessionMaxPerUser int `mapstructure:"SESSION_MAX_PER_USER"`
	// SessionInactivityTimeout deactivates sessions idle longer than this (e.g. "24h").
	SessionInactivityTimeout string `mapstructure:"SESSION_INACTIVITY_TIMEOUT"`
	// SessionRetention is how long terminated sessions are kept before purge (e.g. "720h").
	SessionRetention string `mapstructure:"SESSION_RETENTION"`
	// SessionCookieName is the name of the opaque session cookie.
	SessionCookieName string `mapstructure:"SESSION_COOKIE_NAME"`
	// SessionCookieSecure sets the Secure attribute on the session cookie.
	SessionCookieSecure bool `mapstructure:"SESSION_COOKIE_SECURE"`
	// SessionCookieMaxAge is the cookie max-age in seconds.
	SessionCookieMaxAge int `mapstructure:"SESSION_COOKIE_MAX_AGE"`

	// LockoutMaxAttempts is the number of failures inside the window that locks the account.
	LockoutMaxAttempts int `mapstructure:"LOCKOUT_MAX_ATTEMPTS"`
	// LockoutWindow is the sliding window for counting failures (e.g. "15m").
	LockoutWindow string `mapstructure:"LOCKOUT_WINDOW"`
	// LockoutDuration is how long an account stays locked (e.g. "15m").
	LockoutDuration string `mapstructure:"LOCKOUT_DURATION"`

	// TwoFactorCodeTTL is the lifetime of an issued verification code (e.g. "10m").
	TwoFactorCodeTTL string `mapstructure:"TWO_FACTOR_CODE_TTL"`
	// TwoFactorMaxAttempts is the number of wrong codes before a token is exhausted.
	TwoFactorMaxAttempts int `mapstructure:"TWO_FACTOR_MAX_ATTEMPTS"`
	// TwoFactorUsedRetention is how long consumed tokens are kept before cleanup (e.g. "168h").
	TwoFactorUsedRetention string `mapstructure:"TWO_FACTOR_USED_RETENTION"`
	// TrustedDeviceTTLDays is how long a remembered device bypasses 2FA.
	TrustedDeviceTTLDays int `mapstructure:"TRUSTED_DEVICE_TTL_DAYS"`

	// PasswordMinLength and PasswordMaxLength bound password length.
	PasswordMinLength int `mapstructure:"PASSWORD_MIN_LENGTH"`
	PasswordMaxLength int `mapstructure:"PASSWORD_MAX_LENGTH"`
	// PasswordRequireUpper, PasswordRequireLower, PasswordRequireDigit and PasswordRequireSpecial toggle the character class rules.
	PasswordRequireUpper   bool `mapstructure:"PASSWORD_REQUIRE_UPPER"`
	PasswordRequireLower   bool `mapstructure:"PASSWORD_REQUIRE_LOWER"`
	PasswordRequireDigit   bool `mapstructure:"PASSWORD_REQUIRE_DIGIT"`
	PasswordRequireSpecial bool `mapstructure:"PASSWORD_REQUIRE_SPECIAL"`
	// PasswordRejectCommon rejects passwords from the built-in weak list.
	PasswordRejectCommon bool `mapstructure:"PASSWORD_REJECT_COMMON"`
	// PasswordHistorySize is the number of previous passwords that may not be reused.
	PasswordHistorySize int `mapstructure:"PASSWORD_HISTORY_SIZE"`
	// PasswordResetTTL is how long a mailed reset link stays usable (e.g. "1h").
	PasswordResetTTL string `mapstructure:"PASSWORD_RESET_TTL"`
	// PasswordResetURL is the front-end page that receives the reset secret as ?token=.
	PasswordResetURL string `mapstructure:"PASSWORD_RESET_URL"`

	// SMTPAddr is host:port of the mail relay for e-mailed codes. Empty disables the e-mail channel.
	SMTPAddr     string `mapstructure:"SMTP_ADDR"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	// SMSLocalAPIKey is the API key for SMS Local. Empty disables the SMS channel.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	// OTPReturnToClient when true enables dev OTP mode: codes are kept for GET /dev/otp instead of being sent.
	// Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// PolicyDir optionally points at a directory of extra .rego modules loaded next to the built-in policy.
	PolicyDir string `mapstructure:"POLICY_DIR"`

	// RateLimitRPS and RateLimitBurst configure the per-IP limiter on the auth endpoints.
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
	// TrustedProxies is a comma-separated list of CIDRs whose X-Forwarded-For is believed by the
	// rate limiter. Requests from any other peer are limited by socket address.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// Telemetry (optional). When Kafka brokers are set, security events are also written to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for security events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// OTLPEndpoint is the OpenTelemetry collector gRPC endpoint. Empty disables OTLP export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LOCKOUT_STORE", "")
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "clavionx-auth")
	v.SetDefault("JWT_AUDIENCE", "clavionx-admin")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SESSION_MAX_PER_USER", 5)
	v.SetDefault("SESSION_INACTIVITY_TIMEOUT", "24h")
	v.SetDefault("SESSION_RETENTION", "720h") // 30d
	v.SetDefault("SESSION_COOKIE_NAME", "CLAVIONX_SESSION")
	v.SetDefault("SESSION_COOKIE_SECURE", false)
	v.SetDefault("SESSION_COOKIE_MAX_AGE", 1800)
	v.SetDefault("LOCKOUT_MAX_ATTEMPTS", 5)
	v.SetDefault("LOCKOUT_WINDOW", "15m")
	v.SetDefault("LOCKOUT_DURATION", "15m")
	v.SetDefault("TWO_FACTOR_CODE_TTL", "10m")
	v.SetDefault("TWO_FACTOR_MAX_ATTEMPTS", 3)
	v.SetDefault("TWO_FACTOR_USED_RETENTION", "168h") // 7d
	v.SetDefault("TRUSTED_DEVICE_TTL_DAYS", 30)
	v.SetDefault("PASSWORD_MIN_LENGTH", 8)
	v.SetDefault("PASSWORD_MAX_LENGTH", 100)
	v.SetDefault("PASSWORD_REQUIRE_UPPER", true)
	v.SetDefault("PASSWORD_REQUIRE_LOWER", true)
	v.SetDefault("PASSWORD_REQUIRE_DIGIT", true)
	v.SetDefault("PASSWORD_REQUIRE_SPECIAL", true)
	v.SetDefault("PASSWORD_REJECT_COMMON", true)
	v.SetDefault("PASSWORD_HISTORY_SIZE", 5)
	v.SetDefault("PASSWORD_RESET_TTL", "1h")
	v.SetDefault("PASSWORD_RESET_URL", "http://localhost:3000/reset-password")
	v.SetDefault("SMTP_ADDR", "")
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@clavionx.local")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("POLICY_DIR", "")
	v.SetDefault("RATE_LIMIT_RPS", 5.0)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "clavionx-security-events")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "clavionx-auth")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "clavionx-telemetry-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.IsProduction() {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	if cfg.DatabaseURL == "" && cfg.IsProduction() {
		return nil, errors.New("config: DATABASE_URL must be set when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	switch cfg.LockoutStore {
	case "", "postgres", "redis", "memory":
	default:
		return nil, errors.New("config: LOCKOUT_STORE must be one of postgres, redis, memory")
	}
	if cfg.LockoutStore == "redis" && cfg.RedisURL == "" {
		return nil, errors.New("config: REDIS_URL must be set when LOCKOUT_STORE=redis")
	}
	if cfg.LockoutStore == "postgres" && cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL must be set when LOCKOUT_STORE=postgres")
	}
	for _, p := range cfg.TrustedProxiesList() {
		if _, err := netip.ParsePrefix(p); err != nil {
			return nil, fmt.Errorf("config: TRUSTED_PROXIES: %w", err)
		}
	}

	if cfg.SessionMaxPerUser < 1 {
		return nil, errors.New("config: SESSION_MAX_PER_USER must be at least 1")
	}
	if cfg.LockoutMaxAttempts < 1 {
		return nil, errors.New("config: LOCKOUT_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.TwoFactorMaxAttempts < 1 {
		return nil, errors.New("config: TWO_FACTOR_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.PasswordMinLength < 1 || cfg.PasswordMaxLength < cfg.PasswordMinLength {
		return nil, errors.New("config: PASSWORD_MIN_LENGTH/PASSWORD_MAX_LENGTH are invalid")
	}
	if cfg.PasswordHistorySize < 0 {
		return nil, errors.New("config: PASSWORD_HISTORY_SIZE must not be negative")
	}
	if u, err := url.Parse(cfg.PasswordResetURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("config: PASSWORD_RESET_URL must be an absolute URL")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// LockoutBackend returns the effective lockout store, defaulting to postgres when a database is configured.
func (c *Config) LockoutBackend() string {
	if c.LockoutStore != "" {
		return c.LockoutStore
	}
	if c.DatabaseURL != "" {
		return "postgres"
	}
	return "memory"
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// AccessTTL parses JWTAccessTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration { return parseDuration(c.JWTAccessTTL, 15*time.Minute) }

// StoreCallTimeout parses StoreTimeout. Returns 5s if unset or invalid.
func (c *Config) StoreCallTimeout() time.Duration { return parseDuration(c.StoreTimeout, 5*time.Second) }

// InactivityTimeout parses SessionInactivityTimeout. Returns 24h if unset or invalid.
func (c *Config) InactivityTimeout() time.Duration {
	return parseDuration(c.SessionInactivityTimeout, 24*time.Hour)
}

// SessionRetentionPeriod parses SessionRetention. Returns 30 days if unset or invalid.
func (c *Config) SessionRetentionPeriod() time.Duration {
	return parseDuration(c.SessionRetention, 30*24*time.Hour)
}

// LockoutWindowDuration parses LockoutWindow. Returns 15m if unset or invalid.
func (c *Config) LockoutWindowDuration() time.Duration { return parseDuration(c.LockoutWindow, 15*time.Minute) }

// LockoutLockDuration parses LockoutDuration. Returns 15m if unset or invalid.
func (c *Config) LockoutLockDuration() time.Duration {
	return parseDuration(c.LockoutDuration, 15*time.Minute)
}

// CodeTTL parses TwoFactorCodeTTL. Returns 10m if unset or invalid.
func (c *Config) CodeTTL() time.Duration { return parseDuration(c.TwoFactorCodeTTL, 10*time.Minute) }

// UsedTokenRetention parses TwoFactorUsedRetention. Returns 7 days if unset or invalid.
func (c *Config) UsedTokenRetention() time.Duration {
	return parseDuration(c.TwoFactorUsedRetention, 7*24*time.Hour)
}

// ResetTTL parses PasswordResetTTL. Returns 1h if unset or invalid.
func (c *Config) ResetTTL() time.Duration { return parseDuration(c.PasswordResetTTL, time.Hour) }

// TrustTTL returns the trusted-device lifetime. Returns 30 days if unset.
func (c *Config) TrustTTL() time.Duration {
	if c.TrustedDeviceTTLDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.TrustedDeviceTTLDays) * 24 * time.Hour
}

// CookieTemplate returns the session cookie attributes without a value.
func (c *Config) CookieTemplate() http.Cookie {
	return http.Cookie{
		Name:     c.SessionCookieName,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.SessionCookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   c.SessionCookieMaxAge,
	}
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TelemetryKafkaBrokers)
}

// TrustedProxiesList returns the trusted proxy CIDRs.
func (c *Config) TrustedProxiesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
