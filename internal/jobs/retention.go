package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Hocaabinn/sampah-keren-sub001/internal/config"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/repository"
)

// StartRetentionJob periodically purges expired or revoked refresh
// sessions and unverified accounts older than the configured TTL.
func StartRetentionJob(ctx context.Context, cfg config.Config, store *repository.Store, logger *zap.Logger) {
	if !cfg.RetentionJobEnabled {
		return
	}
	interval := cfg.RetentionJobInterval
	if interval <= 0 {
		interval = time.Hour
	}
	timeout := cfg.RetentionJobTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				tickCtx, cancel := context.WithTimeout(ctx, timeout)

				sessions, err := store.DeleteStaleRefreshSessions(tickCtx, now)
				if err != nil {
					logger.Warn("retention: session purge failed", zap.Error(err))
				}
				accounts, err := store.DeleteUnverifiedUsersBefore(tickCtx, now.Add(-cfg.UnverifiedAccountTTL))
				if err != nil {
					logger.Warn("retention: unverified purge failed", zap.Error(err))
				}
				cancel()

				if sessions > 0 || accounts > 0 {
					logger.Info("retention pass complete",
						zap.Int64("sessionsPurged", sessions),
						zap.Int64("accountsPurged", accounts))
				}
			}
		}
	}()
}
