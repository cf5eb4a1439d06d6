package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kestrelsec/kestrel/internal/auth"
	"github.com/kestrelsec/kestrel/internal/background"
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/database"
	"github.com/kestrelsec/kestrel/internal/handlers"
	middlewareCustom "github.com/kestrelsec/kestrel/internal/middleware"
	"github.com/kestrelsec/kestrel/internal/repositories"
	"github.com/kestrelsec/kestrel/internal/routes"
	"github.com/kestrelsec/kestrel/internal/services"
	pkgauth "github.com/kestrelsec/kestrel/pkg/auth"
	pkghttp "github.com/kestrelsec/kestrel/pkg/http"
	pkglogger "github.com/kestrelsec/kestrel/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	historyRepo := repositories.NewPasswordHistoryRepository(db)
	secretRepo := repositories.NewTransientSecretRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(
		secretRepo,
		loginAttemptRepo,
		cfg.Security.AttemptRetention,
		logger,
		cfg.Auth.CleanupInterval,
	)

	// Initialize token manager
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Password policy from config
	policy := pkgauth.PolicyConfig{
		MinLength:           cfg.Security.MinLength,
		RequireUppercase:    cfg.Security.RequireUppercase,
		RequireLowercase:    cfg.Security.RequireLowercase,
		RequireNumbers:      cfg.Security.RequireNumbers,
		RequireSpecialChars: cfg.Security.RequireSpecialChars,
	}

	// Account lockout service
	lockoutConfig := services.LockoutConfig{
		MaxLoginAttempts:       cfg.Security.MaxLoginAttempts,
		LockoutDuration:        cfg.Security.LockoutDuration,
		ResetFailuresOnSuccess: cfg.Security.ResetFailuresOnSuccess,
	}
	lockoutService := services.NewLockoutService(loginAttemptRepo, lockoutConfig, logger)

	// Timing delay for auth security
	timingConfig := auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Auth.TimingDelayRandomMs,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	}
	timingDelay := auth.NewTimingDelay(timingConfig)

	// AWS SES email service
	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	passwordService := services.NewPasswordService(
		userRepo,
		historyRepo,
		policy,
		cfg.Security.PasswordHistoryCount,
		logger,
		auditLogger,
	)
	authService := services.NewAuthService(
		userRepo,
		historyRepo,
		lockoutService,
		tokenManager,
		timingDelay,
		policy,
		logger,
		auditLogger,
	)
	resetConfig := services.ResetConfig{
		CodeExpiry:  cfg.Security.ResetCodeExpiry,
		TokenExpiry: cfg.Security.ResetTokenExpiry,
	}
	resetService := services.NewPasswordResetService(
		userRepo,
		secretRepo,
		passwordService,
		emailService,
		resetConfig,
		logger,
		auditLogger,
	)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	passwordHandler := handlers.NewPasswordHandler(passwordService, resetService, ipConfig)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, passwordHandler, tokenManager, middlewareCustom.DefaultAuthRateLimit())

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
