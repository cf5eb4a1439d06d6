package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kestrelsec/kestrel/internal/auth"
	"github.com/kestrelsec/kestrel/internal/database"
	"github.com/kestrelsec/kestrel/internal/handlers"
	middlewareCustom "github.com/kestrelsec/kestrel/internal/middleware"
	"github.com/kestrelsec/kestrel/internal/routes"
	"github.com/kestrelsec/kestrel/internal/services"
	pkgauth "github.com/kestrelsec/kestrel/pkg/auth"
	pkghttp "github.com/kestrelsec/kestrel/pkg/http"
	pkglogger "github.com/kestrelsec/kestrel/pkg/logger"
)

// SentResetCode represents a captured password reset email
type SentResetCode struct {
	To        string
	Code      string
	ExpiresAt time.Time
}

// CapturingEmailService records reset codes instead of sending email
type CapturingEmailService struct {
	Sent []SentResetCode
	mu   sync.Mutex
}

func (m *CapturingEmailService) SendPasswordResetCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Sent = append(m.Sent, SentResetCode{To: email, Code: code, ExpiresAt: expiresAt})
	return nil
}

// LastCode returns the most recent captured reset code, or nil
func (m *CapturingEmailService) LastCode() *SentResetCode {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Sent) == 0 {
		return nil
	}
	return &m.Sent[len(m.Sent)-1]
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *CapturingEmailService
	TokenManager *auth.TokenManager
}

// NewTestServer initializes a complete HTTP server with real database + captured email
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	userRepo, loginAttemptRepo, historyRepo, secretRepo := InitializeRepositories(db)

	mockEmail := &CapturingEmailService{}

	tokenManager := auth.NewTokenManager(
		"test-secret-32-characters-long-for-testing",
		15*time.Minute,
		24*time.Hour,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)
	policy := pkgauth.DefaultPolicyConfig()

	lockoutService := services.NewLockoutService(loginAttemptRepo, services.LockoutConfig{
		MaxLoginAttempts: 5,
		LockoutDuration:  15 * time.Minute,
	}, logger)

	// Zero delay keeps the suite fast
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	passwordService := services.NewPasswordService(userRepo, historyRepo, policy, 5, logger, auditLogger)

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

	resetService := services.NewPasswordResetService(
		userRepo,
		secretRepo,
		passwordService,
		mockEmail,
		services.ResetConfig{
			CodeExpiry:  15 * time.Minute,
			TokenExpiry: 5 * time.Minute,
		},
		logger,
		auditLogger,
	)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: []string{}}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	passwordHandler := handlers.NewPasswordHandler(passwordService, resetService, ipConfig)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Generous rate limit so sequential tests sharing the server never throttle
	routes.RegisterRoutes(r, authHandler, passwordHandler, tokenManager, middlewareCustom.RateLimitConfig{
		Requests: 1000,
		Window:   time.Minute,
	})

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: mockEmail,
		TokenManager: tokenManager,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with a bearer token
func (ts *TestServer) RequestWithAuth(method, path string, body interface{}, accessToken string) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
}

// DecodeJSON decodes a response body into out and closes the body
func DecodeJSON(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}
