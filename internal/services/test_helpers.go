package services

import (
	"context"
	"time"

	"github.com/kestrelsec/kestrel/internal/models"
	pkgauth "github.com/kestrelsec/kestrel/pkg/auth"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc        func(ctx context.Context, id string) (*models.User, error)
	GetByUsernameFunc  func(ctx context.Context, username string) (*models.User, error)
	GetByEmailFunc     func(ctx context.Context, email string) (*models.User, error)
	CreateFunc         func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordFunc func(ctx context.Context, id, hash, salt string, version int) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, hash, salt string, version int) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, hash, salt, version)
	}
	return nil
}

// MockPasswordHistoryRepository implements PasswordHistoryRepository for testing
type MockPasswordHistoryRepository struct {
	RecordFunc    func(ctx context.Context, userID, passwordHash, salt string, hashVersion int) (*models.PasswordHistory, error)
	GetRecentFunc func(ctx context.Context, userID string, n int) ([]*models.PasswordHistory, error)
}

func (m *MockPasswordHistoryRepository) Record(ctx context.Context, userID, passwordHash, salt string, hashVersion int) (*models.PasswordHistory, error) {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, userID, passwordHash, salt, hashVersion)
	}
	return &models.PasswordHistory{UserID: userID, PasswordHash: passwordHash, Salt: salt, HashVersion: hashVersion, CreatedAt: time.Now()}, nil
}

func (m *MockPasswordHistoryRepository) GetRecent(ctx context.Context, userID string, n int) ([]*models.PasswordHistory, error) {
	if m.GetRecentFunc != nil {
		return m.GetRecentFunc(ctx, userID, n)
	}
	return []*models.PasswordHistory{}, nil
}

// MockLoginAttemptRepository implements LoginAttemptRepository for testing
type MockLoginAttemptRepository struct {
	RecordAttemptFunc         func(ctx context.Context, attempt *models.LoginAttempt) error
	GetFailedAttemptCountFunc func(ctx context.Context, userID string, since time.Time) (int, error)
	GetLastSuccessTimeFunc    func(ctx context.Context, userID string) (*time.Time, error)
}

func (m *MockLoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt)
	}
	return nil
}

func (m *MockLoginAttemptRepository) GetFailedAttemptCount(ctx context.Context, userID string, since time.Time) (int, error) {
	if m.GetFailedAttemptCountFunc != nil {
		return m.GetFailedAttemptCountFunc(ctx, userID, since)
	}
	return 0, nil
}

func (m *MockLoginAttemptRepository) GetLastSuccessTime(ctx context.Context, userID string) (*time.Time, error) {
	if m.GetLastSuccessTimeFunc != nil {
		return m.GetLastSuccessTimeFunc(ctx, userID)
	}
	return nil, nil
}

// MockTransientSecretStore implements TransientSecretStore for testing
type MockTransientSecretStore struct {
	PutFunc    func(ctx context.Context, namespace, email, secret string, ttl time.Duration) error
	GetFunc    func(ctx context.Context, namespace, email string) (*models.TransientSecret, error)
	DeleteFunc func(ctx context.Context, namespace, email string) error
}

func (m *MockTransientSecretStore) Put(ctx context.Context, namespace, email, secret string, ttl time.Duration) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, namespace, email, secret, ttl)
	}
	return nil
}

func (m *MockTransientSecretStore) Get(ctx context.Context, namespace, email string) (*models.TransientSecret, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, namespace, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockTransientSecretStore) Delete(ctx context.Context, namespace, email string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, namespace, email)
	}
	return nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendPasswordResetCodeFunc func(ctx context.Context, email, code string, expiresAt time.Time) error
}

func (m *MockEmailService) SendPasswordResetCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	if m.SendPasswordResetCodeFunc != nil {
		return m.SendPasswordResetCodeFunc(ctx, email, code, expiresAt)
	}
	return nil
}

// FakeSecretStore is an in-memory TransientSecretStore honoring TTLs,
// for exercising the full reset flow without a database.
type FakeSecretStore struct {
	entries map[string]*models.TransientSecret
}

func NewFakeSecretStore() *FakeSecretStore {
	return &FakeSecretStore{entries: make(map[string]*models.TransientSecret)}
}

func (f *FakeSecretStore) Put(ctx context.Context, namespace, email, secret string, ttl time.Duration) error {
	f.entries[namespace+"|"+email] = &models.TransientSecret{
		Namespace: namespace,
		Email:     email,
		Secret:    secret,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
	return nil
}

func (f *FakeSecretStore) Get(ctx context.Context, namespace, email string) (*models.TransientSecret, error) {
	entry, ok := f.entries[namespace+"|"+email]
	if !ok || entry.IsExpired() {
		return nil, models.ErrNotFound
	}
	return entry, nil
}

func (f *FakeSecretStore) Delete(ctx context.Context, namespace, email string) error {
	delete(f.entries, namespace+"|"+email)
	return nil
}

// NewTestUser builds a user with a real hash for the given password
func NewTestUser(id, username, email, password string) *models.User {
	hash, salt, err := pkgauth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	now := time.Now()
	return &models.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		HashVersion:  pkgauth.CurrentHashVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
