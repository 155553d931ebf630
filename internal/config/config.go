package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/nortide/identity/pkg/config"
)

// Config holds all configuration for the identity service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"IDENTITY_HTTP_PORT" envDefault:"8007"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"identity"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"identity_secret"`
	PostgresDB   string `env:"IDENTITY_DB_NAME" envDefault:"identity_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"30"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"IDENTITY_REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret       string `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAccessExpiry string `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTIssuer       string `env:"JWT_ISSUER" envDefault:"nortide-identity"`
	JWTAudience     string `env:"JWT_AUDIENCE" envDefault:"nortide-clients"`

	// Sessions
	SessionTTL             time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SessionCacheTTL        time.Duration `env:"SESSION_CACHE_TTL" envDefault:"60s"`
	SessionNegativeTTL     time.Duration `env:"SESSION_NEGATIVE_CACHE_TTL" envDefault:"30s"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`
	SessionRetention       time.Duration `env:"SESSION_RETENTION" envDefault:"2160h"`

	// Authentication flows
	PendingRegisterTTL time.Duration `env:"FLOW_PENDING_REGISTER_TTL" envDefault:"10m"`
	LoginAttemptTTL    time.Duration `env:"FLOW_LOGIN_ATTEMPT_TTL" envDefault:"5m"`
	OAuthStateTTL      time.Duration `env:"FLOW_OAUTH_STATE_TTL" envDefault:"10m"`
	ChallengeTTL       time.Duration `env:"FLOW_CHALLENGE_TTL" envDefault:"5m"`
	VerifyCodeTTL      time.Duration `env:"FLOW_VERIFY_CODE_TTL" envDefault:"15m"`
	MaxCodeAttempts    int           `env:"FLOW_MAX_CODE_ATTEMPTS" envDefault:"5"`

	// TOTP
	TOTPIssuer string `env:"TOTP_ISSUER" envDefault:"Nortide"`

	// WebAuthn relying party
	WebAuthnRPID          string   `env:"WEBAUTHN_RP_ID" envDefault:"localhost"`
	WebAuthnRPDisplayName string   `env:"WEBAUTHN_RP_DISPLAY_NAME" envDefault:"Nortide"`
	WebAuthnRPOrigins     []string `env:"WEBAUTHN_RP_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// OAuth providers
	GoogleClientID     string `env:"OAUTH_GOOGLE_CLIENT_ID" envDefault:""`
	GoogleClientSecret string `env:"OAUTH_GOOGLE_CLIENT_SECRET" envDefault:""`
	GoogleRedirectURI  string `env:"OAUTH_GOOGLE_REDIRECT_URI" envDefault:""`
	AppleClientID      string `env:"OAUTH_APPLE_CLIENT_ID" envDefault:""`
	AppleClientSecret  string `env:"OAUTH_APPLE_CLIENT_SECRET" envDefault:""`
	AppleRedirectURI   string `env:"OAUTH_APPLE_REDIRECT_URI" envDefault:""`

	// Rate limiting
	RateLimitCapacity int           `env:"RATE_LIMIT_CAPACITY" envDefault:"20"`
	RateLimitLeakRate float64       `env:"RATE_LIMIT_LEAK_RATE" envDefault:"1"`
	RateLimitTTL      time.Duration `env:"RATE_LIMIT_TTL" envDefault:"5m"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"0.1"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load identity config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if cfg.Environment != "development" {
		if cfg.JWTSecret == "change-this-to-a-secure-secret" {
			return nil, fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", cfg.Environment)
		}
		if len(cfg.JWTSecret) < 32 {
			return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(cfg.JWTSecret))
		}
	}

	return cfg, nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}
