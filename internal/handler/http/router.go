package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nortide/identity/internal/ratelimit"
	"github.com/nortide/identity/internal/service"
	"github.com/nortide/identity/pkg/health"
	"github.com/nortide/identity/pkg/middleware"
)

// NewRouter creates a chi router with all identity service routes registered.
// The rate limiter gates the public authentication endpoints before the
// orchestrator runs.
func NewRouter(
	authService *service.AuthService,
	limiter *ratelimit.Limiter,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("identity"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Token validator that bridges to the orchestrator: token signature plus
	// session liveness in one check.
	tokenValidator := func(ctx context.Context, accessToken string) (*middleware.Claims, error) {
		claims, err := authService.Authenticate(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
			Email:     claims.Email,
			Role:      claims.Role,
		}, nil
	}

	authHandler := NewAuthHandler(authService, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Public flow endpoints, rate limited per client IP.
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(limiter))

			r.Post("/totp/register/init", authHandler.TOTPRegisterInit)
			r.Post("/totp/register/complete", authHandler.TOTPRegisterComplete)
			r.Post("/totp/login/init", authHandler.TOTPLoginInit)
			r.Post("/totp/login/complete", authHandler.TOTPLoginComplete)

			r.Post("/oauth/{provider}/init", authHandler.OAuthInit)
			r.Post("/oauth/{provider}/complete", authHandler.OAuthComplete)

			r.Post("/passkey/register/init", authHandler.PasskeyRegisterInit)
			r.Post("/passkey/register/complete", authHandler.PasskeyRegisterComplete)
			r.Post("/passkey/login/init", authHandler.PasskeyLoginInit)
			r.Post("/passkey/login/complete", authHandler.PasskeyLoginComplete)
		})

		// Authenticated auth endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokenValidator))

			r.Post("/logout", authHandler.Logout)
			r.Post("/verify-email/init", authHandler.VerifyEmailInit)
			r.Post("/verify-email/complete", authHandler.VerifyEmailComplete)
		})
	})

	// Profile and session endpoints (auth required)
	sessionHandler := NewSessionHandler(authService, logger)

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))

		r.Get("/me", sessionHandler.GetProfile)
		r.Get("/me/sessions", sessionHandler.ListSessions)
		r.Delete("/me/sessions", sessionHandler.RevokeAllSessions)
		r.Delete("/me/sessions/{id}", sessionHandler.RevokeSession)
		r.Get("/me/passkeys", sessionHandler.ListPasskeys)
	})

	return r
}
