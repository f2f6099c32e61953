package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// How often the parameter cache is refreshed in the background.
const refreshInterval = 20 * time.Second

// refreshLoop keeps the parameter cache warm so the next dispatch rarely
// pays a network round trip. Failures are logged only; the next dispatch
// simply fetches for itself.
func (e *Engine) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.cache.Refresh(ctx); err != nil {
				zap.L().Warn("background parameter refresh failed",
					zap.Error(err))
				continue
			}

			e.metrics.CacheRefreshes.Inc()
		}
	}
}
