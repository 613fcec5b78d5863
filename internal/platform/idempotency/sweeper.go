package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweep runs store.Sweep every interval until ctx is cancelled. Each pass is capped at
// batch deletions and one minute.
func Sweep(ctx context.Context, store Store, interval time.Duration, batch int, logger *zap.Logger) {
	if store == nil || interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			passCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.Sweep(passCtx, now.UTC(), batch)
			cancel()
			if err != nil {
				logger.Warn("idempotency sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency sweep removed expired keys", zap.Int("count", removed))
			}
		}
	}
}
