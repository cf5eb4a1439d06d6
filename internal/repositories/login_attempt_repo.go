package repositories

import (
	"context"
	"time"

	"github.com/kestrelsec/kestrel/internal/database"
	"github.com/kestrelsec/kestrel/internal/models"
)

// LoginAttemptRepository handles database operations for login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt appends a login attempt. user_id may be nil when the
// submitted identity matched no account.
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (user_id, ip_address, user_agent, success)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.UserID,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
	)

	return database.MapPostgresError(err)
}

// GetFailedAttemptCount returns the number of failed attempts for an account
// within a time window.
func (r *LoginAttemptRepository) GetFailedAttemptCount(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE user_id = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, userID, since).Scan(&count)
	return count, err
}

// GetLastSuccessTime returns the timestamp of the most recent successful
// login for an account, or nil when there is none.
func (r *LoginAttemptRepository) GetLastSuccessTime(ctx context.Context, userID string) (*time.Time, error) {
	query := `
		SELECT attempt_time FROM login_attempts
		WHERE user_id = $1 AND success = true
		ORDER BY attempt_time DESC
		LIMIT 1
	`

	var successTime time.Time
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(&successTime)
	if err != nil {
		if mapped := database.MapPostgresError(err); mapped == models.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}

	return &successTime, nil
}

// DeleteOlderThan removes attempt records older than the cutoff. The
// lockout query is windowed, so old rows are pure hygiene.
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE attempt_time < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
