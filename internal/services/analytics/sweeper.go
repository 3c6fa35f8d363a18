package analytics

import (
	"context"
	"time"

	"github.com/yungbote/video-gateway/internal/platform/logger"
)

// RunSweeper expires idle sessions every interval until ctx is done.
func RunSweeper(ctx context.Context, log *logger.Logger, svc Service, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := svc.ExpireIdle(ctx); err != nil && ctx.Err() == nil {
				log.Warn("Session sweep failed", "error", err)
			}
		}
	}
}
