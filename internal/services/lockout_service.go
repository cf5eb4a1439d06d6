package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrelsec/kestrel/internal/models"
)

// LoginAttemptRepository defines the interface for login attempt persistence
type LoginAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	GetFailedAttemptCount(ctx context.Context, userID string, since time.Time) (int, error)
	GetLastSuccessTime(ctx context.Context, userID string) (*time.Time, error)
}

// LockoutConfig holds configuration for per-account lockout behavior
type LockoutConfig struct {
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	// ResetFailuresOnSuccess makes a successful login end the failure
	// streak by only counting failures after the last success. Default
	// is the sliding-window-only policy.
	ResetFailuresOnSuccess bool
}

// LockoutService tracks authentication outcomes and computes rolling
// lockout state per account. The window is always evaluated per-account,
// never globally.
type LockoutService struct {
	repo   LoginAttemptRepository
	config LockoutConfig
	logger *slog.Logger
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo LoginAttemptRepository, config LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// IsLockedOut reports whether the account has reached the failed-attempt
// threshold within the lockout window. Callers must check this before
// verifying credentials.
func (s *LockoutService) IsLockedOut(ctx context.Context, userID string) (bool, error) {
	since := time.Now().Add(-s.config.LockoutDuration)

	if s.config.ResetFailuresOnSuccess {
		lastSuccess, err := s.repo.GetLastSuccessTime(ctx, userID)
		if err != nil {
			s.logger.Error("failed to look up last successful login",
				slog.String("user_id", userID), slog.Any("error", err))
			return false, err
		}
		if lastSuccess != nil && lastSuccess.After(since) {
			since = *lastSuccess
		}
	}

	failedCount, err := s.repo.GetFailedAttemptCount(ctx, userID, since)
	if err != nil {
		s.logger.Error("failed to count login failures",
			slog.String("user_id", userID), slog.Any("error", err))
		return false, err
	}

	if failedCount >= s.config.MaxLoginAttempts {
		s.logger.Warn("account locked out",
			slog.String("user_id", userID),
			slog.Int("failed_attempts", failedCount),
			slog.Duration("lockout_duration", s.config.LockoutDuration))
		return true, nil
	}

	return false, nil
}

// RecordAttempt appends an attempt record. userID is nil for attempts
// against unknown identities, which are still recorded for their
// origin-address forensic value.
func (s *LockoutService) RecordAttempt(ctx context.Context, userID *string, success bool, ipAddress, userAgent string) error {
	attempt := &models.LoginAttempt{
		UserID:    userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   success,
	}

	return s.repo.RecordAttempt(ctx, attempt)
}
