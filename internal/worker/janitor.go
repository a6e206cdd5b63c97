package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/async-task-api/internal/backend"
)

// runJanitor periodically drops records past their retention window from
// backends that do not expire them on their own.
func (w *Worker) runJanitor(ctx context.Context, purger backend.Purger) {
	ticker := time.NewTicker(w.purgeInterval)
	defer ticker.Stop()

	w.logger.Info("Result janitor started",
		slog.Duration("interval", w.purgeInterval),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.purgeOnce(ctx, purger)
		}
	}
}

func (w *Worker) purgeOnce(ctx context.Context, purger backend.Purger) {
	purged, err := purger.PurgeExpired(ctx, w.now())
	if err != nil {
		w.logger.Warn("Failed to purge expired task records",
			slog.Any("error", err),
		)
		return
	}
	if purged > 0 {
		w.logger.Info("Purged expired task records",
			slog.Int64("count", purged),
		)
	}
}
