package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kestrelsec/kestrel/internal/database"
	"github.com/kestrelsec/kestrel/internal/models"
)

// PasswordHistoryRepository handles the append-only credential history ledger
type PasswordHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewPasswordHistoryRepository creates a new PasswordHistoryRepository
func NewPasswordHistoryRepository(db *database.DB) *PasswordHistoryRepository {
	return &PasswordHistoryRepository{pool: db.Pool}
}

func scanHistoryRow(scanner rowScanner) (*models.PasswordHistory, error) {
	var entry models.PasswordHistory

	err := scanner.Scan(
		&entry.ID, &entry.UserID, &entry.PasswordHash,
		&entry.Salt, &entry.HashVersion, &entry.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &entry, nil
}

func scanHistoryRows(rows pgx.Rows) ([]*models.PasswordHistory, error) {
	defer rows.Close()

	entries := make([]*models.PasswordHistory, 0)

	for rows.Next() {
		entry, err := scanHistoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan password history entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return entries, nil
}

// Record appends a credential history entry. Entries are immutable once
// created; rows only go away with account deletion (ON DELETE CASCADE).
func (r *PasswordHistoryRepository) Record(ctx context.Context, userID, passwordHash, salt string, hashVersion int) (*models.PasswordHistory, error) {
	query := `
		INSERT INTO password_history (user_id, password_hash, salt, hash_version)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, password_hash, salt, hash_version, created_at
	`

	entry, err := scanHistoryRow(r.pool.QueryRow(ctx, query, userID, passwordHash, salt, hashVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to record password history entry: %w", err)
	}

	return entry, nil
}

// GetRecent returns the newest n entries for an account, ordered newest-first.
func (r *PasswordHistoryRepository) GetRecent(ctx context.Context, userID string, n int) ([]*models.PasswordHistory, error) {
	query := `
		SELECT id, user_id, password_hash, salt, hash_version, created_at
		FROM password_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query password history: %w", err)
	}

	return scanHistoryRows(rows)
}

// CountForUser returns the total number of ledger entries for an account.
func (r *PasswordHistoryRepository) CountForUser(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM password_history WHERE user_id = $1`

	var count int
	err := r.pool.QueryRow(ctx, query, userID).Scan(&count)
	return count, err
}
