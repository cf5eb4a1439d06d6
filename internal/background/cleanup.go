package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrelsec/kestrel/internal/repositories"
)

// CleanupManager periodically prunes expired transient secrets and stale
// login attempt rows. Attempts are only needed for the lockout window, but
// rows are kept well past it for audit before being dropped.
type CleanupManager struct {
	secretRepo       *repositories.TransientSecretRepository
	attemptRepo      *repositories.LoginAttemptRepository
	attemptRetention time.Duration
	logger           *slog.Logger
	interval         time.Duration
	stopCh           chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	secretRepo *repositories.TransientSecretRepository,
	attemptRepo *repositories.LoginAttemptRepository,
	attemptRetention time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		secretRepo:       secretRepo,
		attemptRepo:      attemptRepo,
		attemptRetention: attemptRetention,
		logger:           logger,
		interval:         interval,
		stopCh:           make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup prunes expired rows from the database
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	secretsDeleted, err := cm.secretRepo.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired secrets", slog.Any("error", err))
	} else if secretsDeleted > 0 {
		cm.logger.Info("expired secret cleanup completed", slog.Int64("rows_deleted", secretsDeleted))
	}

	cutoff := time.Now().Add(-cm.attemptRetention)
	attemptsDeleted, err := cm.attemptRepo.DeleteOlderThan(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to cleanup old login attempts", slog.Any("error", err))
	} else if attemptsDeleted > 0 {
		cm.logger.Info("login attempt cleanup completed", slog.Int64("rows_deleted", attemptsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
