package background

import (
	"context"
	"log/slog"
	"time"
)

// Purger removes expired rows and reports how many went away.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// LocationTrimmer drops login-location history older than a cutoff.
type LocationTrimmer interface {
	DeleteLoginLocationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// locationRetention bounds how far back new-location detection looks.
const locationRetention = 180 * 24 * time.Hour

// CleanupManager periodically purges expired verification tokens and
// stale login-location history from the database.
type CleanupManager struct {
	verifications Purger
	locations     LocationTrimmer
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager. locations may be nil
// to skip location trimming.
func NewCleanupManager(verifications Purger, locations LocationTrimmer, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		verifications: verifications,
		locations:     locations,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
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

// runCleanup removes expired verification tokens and stale login
// locations from the database
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	purged, err := cm.verifications.PurgeExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to purge expired verifications", slog.Any("error", err))
	} else if purged > 0 {
		cm.logger.Info("expired verification cleanup completed", slog.Int64("rows_deleted", purged))
	}

	if cm.locations == nil {
		return
	}

	trimmed, err := cm.locations.DeleteLoginLocationsBefore(cleanupCtx, time.Now().Add(-locationRetention))
	if err != nil {
		cm.logger.Error("failed to trim login locations", slog.Any("error", err))
		return
	}
	if trimmed > 0 {
		cm.logger.Info("login location trim completed", slog.Int64("rows_deleted", trimmed))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
