package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelsec/kestrel/internal/models"
	pkglogger "github.com/kestrelsec/kestrel/pkg/logger"
)

const (
	resetTokenBytes = 32 // 256 bits of entropy
	resetCodeDigits = 6
)

// TransientSecretStore defines the TTL-capable key-value store backing the
// reset flow. Exactly one live secret exists per (namespace, email); Get
// must not return expired entries.
type TransientSecretStore interface {
	Put(ctx context.Context, namespace, email, secret string, ttl time.Duration) error
	Get(ctx context.Context, namespace, email string) (*models.TransientSecret, error)
	Delete(ctx context.Context, namespace, email string) error
}

// ResetConfig holds expiry settings for the reset flow secrets
type ResetConfig struct {
	CodeExpiry  time.Duration
	TokenExpiry time.Duration
}

// PasswordResetService orchestrates the three-stage reset protocol:
// request a code, exchange the code for a token, consume the token to set
// a new password.
type PasswordResetService struct {
	userRepo     UserRepository
	secrets      TransientSecretStore
	passwords    *PasswordService
	emailService EmailService
	config       ResetConfig
	logger       *slog.Logger
	auditLogger  *pkglogger.AuditLogger
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(
	userRepo UserRepository,
	secrets TransientSecretStore,
	passwords *PasswordService,
	emailService EmailService,
	config ResetConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *PasswordResetService {
	return &PasswordResetService{
		userRepo:     userRepo,
		secrets:      secrets,
		passwords:    passwords,
		emailService: emailService,
		config:       config,
		logger:       logger,
		auditLogger:  auditLogger,
	}
}

// generateResetCode produces a uniform 6-digit numeric code from
// crypto/rand. Rejection sampling keeps the distribution unbiased.
func generateResetCode() (string, error) {
	const bound = 1000000
	// Largest multiple of bound below 2^64, for rejection sampling
	const limit = ^uint64(0) - (^uint64(0) % bound)

	for {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("failed to generate reset code: %w", err)
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v < limit {
			return fmt.Sprintf("%06d", v%bound), nil
		}
	}
}

// generateResetToken produces an unguessable URL-safe token
func generateResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// RequestReset issues a fresh reset code for the account matching email
// and dispatches it through the notification sink. Any prior un-expired
// code for the email is superseded. A delivery failure leaves the code
// live and surfaces ErrDeliveryFailed; the code itself is never included
// in the error.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("reset requested for unknown email",
				slog.String("email", pkglogger.SanitizedEmail(email)))
			return models.ErrNotFound
		}
		s.logger.Error("failed to look up account for reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	code, err := generateResetCode()
	if err != nil {
		s.logger.Error("failed to generate reset code", slog.Any("error", err))
		return models.ErrInternalServer
	}

	expiresAt := time.Now().Add(s.config.CodeExpiry)
	if err := s.secrets.Put(ctx, models.ResetCodeNamespace, email, code, s.config.CodeExpiry); err != nil {
		s.logger.Error("failed to store reset code",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("password_reset_requested", user.ID, "", nil)

	if err := s.emailService.SendPasswordResetCode(ctx, email, code, expiresAt); err != nil {
		// Non-fatal: the code stays live so delivery can be retried.
		s.logger.Error("failed to deliver reset code",
			slog.String("user_id", user.ID),
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return models.ErrDeliveryFailed
	}

	s.logger.Info("reset code issued",
		slog.String("user_id", user.ID),
		slog.Time("expires_at", expiresAt))

	return nil
}

// VerifyCode exchanges a valid reset code for a short-lived reset token.
// The code itself is left in place until the reset completes, so the
// caller may re-verify within the code window.
func (s *PasswordResetService) VerifyCode(ctx context.Context, email, code string) (string, error) {
	stored, err := s.secrets.Get(ctx, models.ResetCodeNamespace, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrResetInvalidOrExpired
		}
		s.logger.Error("failed to look up reset code", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if subtle.ConstantTimeCompare([]byte(stored.Secret), []byte(code)) != 1 {
		s.logger.Info("reset code mismatch",
			slog.String("email", pkglogger.SanitizedEmail(email)))
		return "", models.ErrResetInvalidOrExpired
	}

	token, err := generateResetToken()
	if err != nil {
		s.logger.Error("failed to generate reset token", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if err := s.secrets.Put(ctx, models.ResetTokenNamespace, email, token, s.config.TokenExpiry); err != nil {
		s.logger.Error("failed to store reset token", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.logger.Info("reset code verified",
		slog.String("email", pkglogger.SanitizedEmail(email)))

	return token, nil
}

// ResetPassword consumes a valid reset token and sets a new password,
// enforcing the same policy and reuse rules as a normal password change.
// Policy and reuse failures leave the token valid so the caller can retry
// with a different password until the token expires; success deletes both
// the token and the originating code.
func (s *PasswordResetService) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	stored, err := s.secrets.Get(ctx, models.ResetTokenNamespace, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrResetInvalidOrExpired
		}
		s.logger.Error("failed to look up reset token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if subtle.ConstantTimeCompare([]byte(stored.Secret), []byte(token)) != 1 {
		return models.ErrResetInvalidOrExpired
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to look up account for reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.passwords.ValidateNewPassword(newPassword, user.Username); err != nil {
		return err
	}

	reused, err := s.passwords.IsReused(ctx, user.ID, newPassword)
	if err != nil {
		return models.ErrInternalServer
	}
	if reused {
		return models.ErrPasswordReused
	}

	if err := s.passwords.SetPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}

	// Full cleanup: both secrets are consumed by a successful reset.
	if err := s.secrets.Delete(ctx, models.ResetTokenNamespace, email); err != nil {
		s.logger.Error("failed to delete reset token", slog.Any("error", err))
	}
	if err := s.secrets.Delete(ctx, models.ResetCodeNamespace, email); err != nil {
		s.logger.Error("failed to delete reset code", slog.Any("error", err))
	}

	s.logger.Info("password reset completed", slog.String("user_id", user.ID))
	s.auditLogger.LogPasswordChange("password_reset", user.ID, "", true)

	return nil
}
