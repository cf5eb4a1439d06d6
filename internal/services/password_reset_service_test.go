package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/kestrelsec/kestrel/internal/models"
	pkgauth "github.com/kestrelsec/kestrel/pkg/auth"
	pkglogger "github.com/kestrelsec/kestrel/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResetService(userRepo UserRepository, historyRepo PasswordHistoryRepository, secrets TransientSecretStore, email EmailService) *PasswordResetService {
	logger := slog.Default()
	auditLogger := pkglogger.NewAuditLogger(logger)
	passwords := NewPasswordService(userRepo, historyRepo, pkgauth.DefaultPolicyConfig(), 5, logger, auditLogger)
	return NewPasswordResetService(
		userRepo,
		secrets,
		passwords,
		email,
		ResetConfig{CodeExpiry: 15 * time.Minute, TokenExpiry: 5 * time.Minute},
		logger,
		auditLogger,
	)
}

func TestPasswordResetService_RequestReset_IssuesCode(t *testing.T) {
	user := NewTestUser("user123", "jdoe", "jdoe@example.com", "CurrentPassword1!")
	store := NewFakeSecretStore()

	var sentEmail, sentCode string
	mockUserRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	mockEmail := &MockEmailService{
		SendPasswordResetCodeFunc: func(ctx context.Context, email, code string, expiresAt time.Time) error {
			sentEmail, sentCode = email, code
			return nil
		},
	}

	service := newTestResetService(mockUserRepo, &MockPasswordHistoryRepository{}, store, mockEmail)

	err := service.RequestReset(context.Background(), "jdoe@example.com")
	require.NoError(t, err)

	assert.Equal(t, "jdoe@example.com", sentEmail)
	assert.Len(t, sentCode, 6)

	stored, err := store.Get(context.Background(), models.ResetCodeNamespace, "jdoe@example.com")
	require.NoError(t, err)
	assert.Equal(t, sentCode, stored.Secret)
}

func TestPasswordResetService_RequestReset_UnknownEmail(t *testing.T) {
	service := newTestResetService(&MockUserRepository{}, &MockPasswordHistoryRepository{}, NewFakeSecretStore(), &MockEmailService{})

	err := service.RequestReset(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPasswordResetService_RequestReset_SupersedesPriorCode(t *testing.T) {
	user := NewTestUser("user123", "jdoe", "jdoe@example.com", "CurrentPassword1!")
	store := NewFakeSecretStore()

	var codes []string
	mockUserRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	mockEmail := &MockEmailService{
		SendPasswordResetCodeFunc: func(ctx context.Context, email, code string, expiresAt time.Time) error {
			codes = append(codes, code)
			return nil
		},
	}

	service := newTestResetService(mockUserRepo, &MockPasswordHistoryRepository{}, store, mockEmail)

	require.NoError(t, service.RequestReset(context.Background(), "jdoe@example.com"))
	require.NoError(t, service.RequestReset(context.Background(), "jdoe@example.com"))
	require.Len(t, codes, 2)

	// Only the latest code is live.
	stored, err := store.Get(context.Background(), models.ResetCodeNamespace, "jdoe@example.com")
	require.NoError(t, err)
	assert.Equal(t, codes[1], stored.Secret)

	_, err = service.VerifyCode(context.Background(), "jdoe@example.com", codes[0])
	if codes[0] != codes[1] {
		assert.ErrorIs(t, err, models.ErrResetInvalidOrExpired)
	}
}

func TestPasswordResetService_RequestReset_DeliveryFailureLeavesCodeLive(t *testing.T) {
	user := NewTestUser("user123", "jdoe", "jdoe@example.com", "CurrentPassword1!")
	store := NewFakeSecretStore()

	mockUserRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	mockEmail := &MockEmailService{
		SendPasswordResetCodeFunc: func(ctx context.Context, email, code string, expiresAt time.Time) error {
			return errors.New("ses: throttled")
		},
	}

	service := newTestResetService(mockUserRepo, &MockPasswordHistoryRepository{}, store, mockEmail)

	err := service.RequestReset(context.Background(), "jdoe@example.com")
	assert.ErrorIs(t, err, models.ErrDeliveryFailed)

	// The error never carries the code itself.
	stored, getErr := store.Get(context.Background(), models.ResetCodeNamespace, "jdoe@example.com")
	require.NoError(t, getErr)
	assert.NotContains(t, err.Error(), stored.Secret)
}

func TestPasswordResetService_VerifyCode_MintsToken(t *testing.T) {
	store := NewFakeSecretStore()
	require.NoError(t, store.Put(context.Background(), models.ResetCodeNamespace, "jdoe@example.com", "123456", 15*time.Minute))

	service := newTestResetService(&MockUserRepository{}, &MockPasswordHistoryRepository{}, store, &MockEmailService{})

	token, err := service.VerifyCode(context.Background(), "jdoe@example.com", "123456")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	stored, err := store.Get(context.Background(), models.ResetTokenNamespace, "jdoe@example.com")
	require.NoError(t, err)
	assert.Equal(t, token, stored.Secret)

	// The code is left in place until the reset completes.
	_, err = store.Get(context.Background(), models.ResetCodeNamespace, "jdoe@example.com")
	assert.NoError(t, err)
}

func TestPasswordResetService_VerifyCode_WrongCode(t *testing.T) {
	store := NewFakeSecretStore()
	require.NoError(t, store.Put(context.Background(), models.ResetCodeNamespace, "jdoe@example.com", "123456", 15*time.Minute))

	service := newTestResetService(&MockUserRepository{}, &MockPasswordHistoryRepository{}, store, &MockEmailService{})

	token, err := service.VerifyCode(context.Background(), "jdoe@example.com", "654321")
	assert.ErrorIs(t, err, models.ErrResetInvalidOrExpired)
	assert.Empty(t, token)
}

func TestPasswordResetService_VerifyCode_ExpiredCode(t *testing.T) {
	store := NewFakeSecretStore()
	require.NoError(t, store.Put(context.Background(), models.ResetCodeNamespace, "jdoe@example.com", "123456", -time.Minute))

	service := newTestResetService(&MockUserRepository{}, &MockPasswordHistoryRepository{}, store, &MockEmailService{})

	_, err := service.VerifyCode(context.Background(), "jdoe@example.com", "123456")
	assert.ErrorIs(t, err, models.ErrResetInvalidOrExpired)
}

func TestPasswordResetService_VerifyCode_NoRequest(t *testing.T) {
	service := newTestResetService(&MockUserRepository{}, &MockPasswordHistoryRepository{}, NewFakeSecretStore(), &MockEmailService{})

	_, err := service.VerifyCode(context.Background(), "jdoe@example.com", "123456")
	assert.ErrorIs(t, err, models.ErrResetInvalidOrExpired)
}

func TestPasswordResetService_ResetPassword_FullFlow(t *testing.T) {
	user := NewTestUser("user123", "jdoe", "jdoe@example.com", "CurrentPassword1!")
	store := NewFakeSecretStore()

	var sentCode string
	updateCalled := false
	mockUserRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, hash, salt string, version int) error {
			updateCalled = true
			return nil
		},
	}
	mockEmail := &MockEmailService{
		SendPasswordResetCodeFunc: func(ctx context.Context, email, code string, expiresAt time.Time) error {
			sentCode = code
			return nil
		},
	}

	service := newTestResetService(mockUserRepo, &MockPasswordHistoryRepository{}, store, mockEmail)

	require.NoError(t, service.RequestReset(context.Background(), "jdoe@example.com"))

	token, err := service.VerifyCode(context.Background(), "jdoe@example.com", sentCode)
	require.NoError(t, err)

	err = service.ResetPassword(context.Background(), "jdoe@example.com", token, "BrandNewPassword7!")
	require.NoError(t, err)
	assert.True(t, updateCalled)

	// Both secrets are consumed by the successful reset.
	_, err = store.Get(context.Background(), models.ResetTokenNamespace, "jdoe@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = store.Get(context.Background(), models.ResetCodeNamespace, "jdoe@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// The consumed token no longer works.
	err = service.ResetPassword(context.Background(), "jdoe@example.com", token, "AnotherPassword8!")
	assert.ErrorIs(t, err, models.ErrResetInvalidOrExpired)
}

func TestPasswordResetService_ResetPassword_WrongToken(t *testing.T) {
	store := NewFakeSecretStore()
	require.NoError(t, store.Put(context.Background(), models.ResetTokenNamespace, "jdoe@example.com", "real-token", 5*time.Minute))

	service := newTestResetService(&MockUserRepository{}, &MockPasswordHistoryRepository{}, store, &MockEmailService{})

	err := service.ResetPassword(context.Background(), "jdoe@example.com", "forged-token", "BrandNewPassword7!")
	assert.ErrorIs(t, err, models.ErrResetInvalidOrExpired)
}

func TestPasswordResetService_ResetPassword_ExpiredToken(t *testing.T) {
	store := NewFakeSecretStore()
	require.NoError(t, store.Put(context.Background(), models.ResetTokenNamespace, "jdoe@example.com", "stale-token", -time.Minute))

	service := newTestResetService(&MockUserRepository{}, &MockPasswordHistoryRepository{}, store, &MockEmailService{})

	err := service.ResetPassword(context.Background(), "jdoe@example.com", "stale-token", "BrandNewPassword7!")
	assert.ErrorIs(t, err, models.ErrResetInvalidOrExpired)
}

func TestPasswordResetService_ResetPassword_PolicyFailureLeavesTokenLive(t *testing.T) {
	user := NewTestUser("user123", "jdoe", "jdoe@example.com", "CurrentPassword1!")
	store := NewFakeSecretStore()
	require.NoError(t, store.Put(context.Background(), models.ResetTokenNamespace, "jdoe@example.com", "live-token", 5*time.Minute))

	mockUserRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}

	service := newTestResetService(mockUserRepo, &MockPasswordHistoryRepository{}, store, &MockEmailService{})

	err := service.ResetPassword(context.Background(), "jdoe@example.com", "live-token", "weak")
	require.Error(t, err)
	assert.True(t, models.IsPolicyViolation(err))

	// The token survives a rejected password so the caller can retry.
	err = service.ResetPassword(context.Background(), "jdoe@example.com", "live-token", "BrandNewPassword7!")
	assert.NoError(t, err)
}

func TestPasswordResetService_ResetPassword_ReusedPassword(t *testing.T) {
	user := NewTestUser("user123", "jdoe", "jdoe@example.com", "CurrentPassword1!")
	store := NewFakeSecretStore()
	require.NoError(t, store.Put(context.Background(), models.ResetTokenNamespace, "jdoe@example.com", "live-token", 5*time.Minute))

	mockUserRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	mockHistoryRepo := &MockPasswordHistoryRepository{
		GetRecentFunc: func(ctx context.Context, userID string, n int) ([]*models.PasswordHistory, error) {
			return []*models.PasswordHistory{
				historyEntry(t, userID, "RetiredPassword9!"),
			}, nil
		},
	}

	service := newTestResetService(mockUserRepo, mockHistoryRepo, store, &MockEmailService{})

	err := service.ResetPassword(context.Background(), "jdoe@example.com", "live-token", "RetiredPassword9!")
	assert.ErrorIs(t, err, models.ErrPasswordReused)
}
