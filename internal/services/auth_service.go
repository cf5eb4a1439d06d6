package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kestrelsec/kestrel/internal/auth"
	"github.com/kestrelsec/kestrel/internal/models"
	pkgauth "github.com/kestrelsec/kestrel/pkg/auth"
	pkglogger "github.com/kestrelsec/kestrel/pkg/logger"
)

// AuthService handles authentication business logic
type AuthService struct {
	userRepo    UserRepository
	historyRepo PasswordHistoryRepository
	lockout     *LockoutService
	tm          *auth.TokenManager
	timingDelay *auth.TimingDelay
	policy      pkgauth.PolicyConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	userRepo UserRepository,
	historyRepo PasswordHistoryRepository,
	lockout *LockoutService,
	tm *auth.TokenManager,
	timingDelay *auth.TimingDelay,
	policy pkgauth.PolicyConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		historyRepo: historyRepo,
		lockout:     lockout,
		tm:          tm,
		timingDelay: timingDelay,
		policy:      policy,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
}

// Login authenticates a user and returns a token pair.
//
// The lockout gate runs before credential verification. A locked account
// is refused without recording a new attempt; every attempt that passes
// the gate produces exactly one attempt record, success or failure.
// Attempts against unknown usernames are recorded with no account.
func (s *AuthService) Login(ctx context.Context, username, password, ipAddress, userAgent string) (*AuthResponse, error) {
	start := time.Now()

	if username = strings.TrimSpace(username); username == "" {
		s.logger.Warn("login attempt with empty username")
		return nil, models.ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			if recErr := s.lockout.RecordAttempt(ctx, nil, false, ipAddress, userAgent); recErr != nil {
				s.logger.Error("failed to record login attempt", slog.Any("error", recErr))
			}
			s.logger.Info("login failed: invalid credentials")
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				IPAddress:     ipAddress,
				FailureReason: "invalid_credentials",
				Success:       false,
			})
			s.timingDelay.WaitFrom(start, false)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get user by username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	locked, err := s.lockout.IsLockedOut(ctx, user.ID)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if locked {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     ipAddress,
			FailureReason: "account_locked",
			Success:       false,
		})
		return nil, models.ErrAccountLocked
	}

	success := pkgauth.VerifyPassword(password, user.PasswordSalt, user.PasswordHash, user.HashVersion)

	if err := s.lockout.RecordAttempt(ctx, &user.ID, success, ipAddress, userAgent); err != nil {
		s.logger.Error("failed to record login attempt",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	if !success {
		s.logger.Info("login failed: invalid credentials")
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     ipAddress,
			FailureReason: "invalid_credentials",
			Success:       false,
		})
		s.timingDelay.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: ipAddress,
		Success:   true,
	})

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// Register creates a new user account and records the first credential in
// the history ledger. Reuse is never checked here: there is nothing to
// reuse against.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*UserResponse, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if username == "" {
		return nil, models.ErrBadRequest
	}
	if email == "" {
		return nil, models.ErrBadRequest
	}

	// Check for an existing account first so the common case fails before
	// the expensive hash. The unique constraints remain the authority.
	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: email already registered")
		return nil, models.ErrDuplicateKey
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check for existing email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ValidatePasswordForUser(password, username, s.policy); err != nil {
		return nil, err
	}

	hash, salt, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		HashVersion:  pkgauth.CurrentHashVersion,
	}

	createdUser, err := s.userRepo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateKey) {
			s.logger.Info("registration failed: duplicate username or email")
			return nil, models.ErrDuplicateKey
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if _, err := s.historyRepo.Record(ctx, createdUser.ID, hash, salt, pkgauth.CurrentHashVersion); err != nil {
		s.logger.Error("failed to record initial password history entry",
			slog.String("user_id", createdUser.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", createdUser.ID))
	s.auditLogger.LogAccountAction("user_registered", createdUser.ID, "", nil)

	return userModelToResponse(createdUser), nil
}

// RefreshToken generates a new token pair from a refresh token
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.tm.ValidateToken(refreshTokenString)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	if claims.Type != "refresh" {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found for token refresh", slog.String("user_id", claims.UserID))
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	newRefreshToken, err := s.tm.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// userModelToResponse converts a user model to response DTO
func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}
