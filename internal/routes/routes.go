package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/kestrelsec/kestrel/internal/auth"
	"github.com/kestrelsec/kestrel/internal/handlers"
	"github.com/kestrelsec/kestrel/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	passwordHandler *handlers.PasswordHandler,
	tokenManager *auth.TokenManager,
	rateLimitConfig middleware.RateLimitConfig,
) {
	// Public routes - no authentication required
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/register", authHandler.Register)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/refresh", authHandler.RefreshToken)

	// Password reset flow - public by nature, rate limited
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/forgot-password", passwordHandler.ForgotPassword)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/verify-reset-code", passwordHandler.VerifyResetCode)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/reset-password", passwordHandler.ResetPassword)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		r.Put("/auth/change-password", passwordHandler.ChangePassword)
	})
}
