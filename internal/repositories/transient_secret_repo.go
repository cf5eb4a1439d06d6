package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kestrelsec/kestrel/internal/database"
	"github.com/kestrelsec/kestrel/internal/models"
)

// TransientSecretRepository is a TTL-capable key-value store for short-lived
// secrets, keyed by (namespace, email). A write supersedes any prior secret
// under the same key, so at most one live secret exists per pair. Expiry is
// enforced at read time; no background sweep is required for correctness.
type TransientSecretRepository struct {
	pool *pgxpool.Pool
}

// NewTransientSecretRepository creates a new TransientSecretRepository
func NewTransientSecretRepository(db *database.DB) *TransientSecretRepository {
	return &TransientSecretRepository{pool: db.Pool}
}

// Put stores a secret under (namespace, email) with the given TTL,
// overwriting any existing secret for that key.
func (r *TransientSecretRepository) Put(ctx context.Context, namespace, email, secret string, ttl time.Duration) error {
	query := `
		INSERT INTO transient_secrets (namespace, email, secret, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (namespace, email)
		DO UPDATE SET secret = EXCLUDED.secret, expires_at = EXCLUDED.expires_at, created_at = NOW()
	`

	expiresAt := time.Now().Add(ttl)
	_, err := r.pool.Exec(ctx, query, namespace, email, secret, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store transient secret: %w", err)
	}

	return nil
}

// Get returns the live secret for (namespace, email). Expired and absent
// entries both surface as ErrNotFound; callers cannot distinguish the two.
func (r *TransientSecretRepository) Get(ctx context.Context, namespace, email string) (*models.TransientSecret, error) {
	query := `
		SELECT namespace, email, secret, expires_at, created_at
		FROM transient_secrets
		WHERE namespace = $1 AND email = $2 AND expires_at > NOW()
	`

	var entry models.TransientSecret
	err := r.pool.QueryRow(ctx, query, namespace, email).Scan(
		&entry.Namespace, &entry.Email, &entry.Secret, &entry.ExpiresAt, &entry.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &entry, nil
}

// Delete removes the secret for (namespace, email). Deleting an absent key
// is not an error.
func (r *TransientSecretRepository) Delete(ctx context.Context, namespace, email string) error {
	query := `DELETE FROM transient_secrets WHERE namespace = $1 AND email = $2`

	_, err := r.pool.Exec(ctx, query, namespace, email)
	if err != nil {
		return fmt.Errorf("failed to delete transient secret: %w", err)
	}

	return nil
}

// DeleteExpired purges rows past their expiry. Read-time filtering remains
// authoritative; this only keeps the table small.
func (r *TransientSecretRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM transient_secrets WHERE expires_at <= NOW()`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired secrets: %w", err)
	}

	return result.RowsAffected(), nil
}
