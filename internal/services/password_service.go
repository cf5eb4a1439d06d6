package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kestrelsec/kestrel/internal/models"
	pkgauth "github.com/kestrelsec/kestrel/pkg/auth"
	pkglogger "github.com/kestrelsec/kestrel/pkg/logger"
)

// UserRepository defines the interface for account store operations
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, hash, salt string, version int) error
}

// PasswordHistoryRepository defines the interface for the credential ledger
type PasswordHistoryRepository interface {
	Record(ctx context.Context, userID, passwordHash, salt string, hashVersion int) (*models.PasswordHistory, error)
	GetRecent(ctx context.Context, userID string, n int) ([]*models.PasswordHistory, error)
}

// PasswordService owns password lifecycle logic: policy enforcement,
// reuse checks against the history ledger, and credential updates.
type PasswordService struct {
	userRepo     UserRepository
	historyRepo  PasswordHistoryRepository
	policy       pkgauth.PolicyConfig
	historyCount int
	logger       *slog.Logger
	auditLogger  *pkglogger.AuditLogger
}

// NewPasswordService creates a new PasswordService
func NewPasswordService(
	userRepo UserRepository,
	historyRepo PasswordHistoryRepository,
	policy pkgauth.PolicyConfig,
	historyCount int,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *PasswordService {
	return &PasswordService{
		userRepo:     userRepo,
		historyRepo:  historyRepo,
		policy:       policy,
		historyCount: historyCount,
		logger:       logger,
		auditLogger:  auditLogger,
	}
}

// ValidateNewPassword applies the policy rules, including the
// account-specific username rule.
func (s *PasswordService) ValidateNewPassword(password, username string) error {
	return pkgauth.ValidatePasswordForUser(password, username, s.policy)
}

// IsReused reports whether the candidate password matches any of the most
// recent historyCount ledger entries. Each entry's stored salt and hash
// version are used to recompute the candidate's hash; the first match
// short-circuits.
func (s *PasswordService) IsReused(ctx context.Context, userID, candidate string) (bool, error) {
	entries, err := s.historyRepo.GetRecent(ctx, userID, s.historyCount)
	if err != nil {
		s.logger.Error("failed to fetch password history",
			slog.String("user_id", userID), slog.Any("error", err))
		return false, err
	}

	for _, entry := range entries {
		if pkgauth.VerifyPassword(candidate, entry.Salt, entry.PasswordHash, entry.HashVersion) {
			return true, nil
		}
	}

	return false, nil
}

// SetPassword hashes the new password, writes it to the account store, and
// appends a ledger entry. Callers are responsible for policy and reuse
// checks.
func (s *PasswordService) SetPassword(ctx context.Context, userID, newPassword string) error {
	hash, salt, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, hash, salt, pkgauth.CurrentHashVersion); err != nil {
		s.logger.Error("failed to update credential hash",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.historyRepo.Record(ctx, userID, hash, salt, pkgauth.CurrentHashVersion); err != nil {
		s.logger.Error("failed to record password history entry",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	return nil
}

// ChangePassword verifies the current credential and rotates the account's
// password, enforcing policy and reuse rules.
func (s *PasswordService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ipAddress string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to load user for password change",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !pkgauth.VerifyPassword(currentPassword, user.PasswordSalt, user.PasswordHash, user.HashVersion) {
		s.auditLogger.LogPasswordChange("password_change", user.ID, ipAddress, false)
		return models.ErrInvalidCredentials
	}

	if err := s.ValidateNewPassword(newPassword, user.Username); err != nil {
		return err
	}

	if pkgauth.VerifyPassword(newPassword, user.PasswordSalt, user.PasswordHash, user.HashVersion) {
		return models.ErrSamePassword
	}

	reused, err := s.IsReused(ctx, user.ID, newPassword)
	if err != nil {
		return models.ErrInternalServer
	}
	if reused {
		return models.ErrPasswordReused
	}

	if err := s.SetPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}

	s.logger.Info("password changed", slog.String("user_id", user.ID))
	s.auditLogger.LogPasswordChange("password_change", user.ID, ipAddress, true)

	return nil
}
