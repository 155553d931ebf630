package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nortide/identity/internal/cache"
	"github.com/nortide/identity/internal/config"
	"github.com/nortide/identity/internal/event"
	handler "github.com/nortide/identity/internal/handler/http"
	"github.com/nortide/identity/internal/oauth"
	"github.com/nortide/identity/internal/passkey"
	"github.com/nortide/identity/internal/ratelimit"
	"github.com/nortide/identity/internal/repository/postgres"
	"github.com/nortide/identity/internal/service"
	"github.com/nortide/identity/internal/session"
	"github.com/nortide/identity/internal/token"
	"github.com/nortide/identity/internal/totp"
	"github.com/nortide/identity/migrations"
	"github.com/nortide/identity/pkg/database"
	"github.com/nortide/identity/pkg/health"
	"github.com/nortide/identity/pkg/httpclient"
	pkgkafka "github.com/nortide/identity/pkg/kafka"
	"github.com/nortide/identity/pkg/tracing"
)

// App wires together all dependencies and runs the identity service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	sessions       *session.Manager
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName: "identity",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTELEndpoint,
		SampleRate:  cfg.OTELSampleRate,
		Enabled:     cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "identity")

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Initialize Redis for flow state, session cache, and rate limiting.
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("host", cfg.RedisHost),
		slog.Int("port", cfg.RedisPort),
	)

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Parse JWT expiry duration.
	accessExpiry, err := time.ParseDuration(cfg.JWTAccessExpiry)
	if err != nil {
		return nil, fmt.Errorf("parse JWT access expiry %q: %w", cfg.JWTAccessExpiry, err)
	}

	// Build the dependency graph.
	userRepo := postgres.NewUserRepository(pool)
	passkeyRepo := postgres.NewPasskeyRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)

	flowStore := cache.NewRedisStore(redisClient)
	codeStore := cache.NewVerificationStore(redisClient)

	sessionManager := session.NewManager(sessionRepo, flowStore, session.Config{
		TTL:         cfg.SessionTTL,
		CacheTTL:    cfg.SessionCacheTTL,
		NegativeTTL: cfg.SessionNegativeTTL,
	}, logger)

	tokenService := token.NewService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, accessExpiry)
	totpVerifier := totp.NewVerifier(cfg.TOTPIssuer, 0, 0, 0)

	webauthnVerifier, err := passkey.NewVerifier(passkey.Config{
		RPID:          cfg.WebAuthnRPID,
		RPDisplayName: cfg.WebAuthnRPDisplayName,
		RPOrigins:     cfg.WebAuthnRPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}

	providers := buildProviders(cfg, logger)
	eventProducer := event.NewProducer(producer, logger)

	authService := service.NewAuthService(
		userRepo,
		passkeyRepo,
		sessionManager,
		flowStore,
		codeStore,
		tokenService,
		totpVerifier,
		webauthnVerifier,
		providers,
		eventProducer,
		service.Config{
			PendingRegisterTTL: cfg.PendingRegisterTTL,
			LoginAttemptTTL:    cfg.LoginAttemptTTL,
			OAuthStateTTL:      cfg.OAuthStateTTL,
			ChallengeTTL:       cfg.ChallengeTTL,
			VerifyCodeTTL:      cfg.VerifyCodeTTL,
			MaxCodeAttempts:    cfg.MaxCodeAttempts,
		},
		logger,
	)

	limiter := ratelimit.NewLimiter(redisClient, cfg.RateLimitCapacity, cfg.RateLimitLeakRate, cfg.RateLimitTTL, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(authService, limiter, healthHandler, logger, handler.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Environment:    cfg.Environment,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		sessions:       sessionManager,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// buildProviders constructs the OAuth relying-party clients that have
// credentials configured. Each provider gets its own circuit breaker so an
// outage at one does not trip the other.
func buildProviders(cfg *config.Config, logger *slog.Logger) map[string]oauth.Provider {
	providers := make(map[string]oauth.Provider)

	baseClient := httpclient.New(httpclient.DefaultConfig())

	if cfg.GoogleClientID != "" {
		client := httpclient.NewCircuitBreakerClient(baseClient,
			httpclient.DefaultCircuitBreakerConfig("oauth-google"), logger)
		providers["google"] = oauth.NewGoogleProvider(oauth.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURI:  cfg.GoogleRedirectURI,
		}, client)
	}

	if cfg.AppleClientID != "" {
		client := httpclient.NewCircuitBreakerClient(baseClient,
			httpclient.DefaultCircuitBreakerConfig("oauth-apple"), logger)
		providers["apple"] = oauth.NewAppleProvider(oauth.Config{
			ClientID:     cfg.AppleClientID,
			ClientSecret: cfg.AppleClientSecret,
			RedirectURI:  cfg.AppleRedirectURI,
		}, client)
	}

	return providers
}

// Run starts the HTTP server and the session cleanup loop, blocking until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go a.cleanupLoop(ctx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// cleanupLoop periodically deletes terminal sessions past their retention
// window so the sessions table does not grow without bound.
func (a *App) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := a.sessions.CleanupExpired(ctx, a.cfg.SessionRetention)
			if err != nil {
				a.logger.Error("session cleanup failed", slog.String("error", err.Error()))
				continue
			}
			if deleted > 0 {
				a.logger.Info("session cleanup completed", slog.Int64("deleted", deleted))
			}
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Redis client.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
