package uploads

import (
	"context"
	"time"

	"github.com/ManuGH/floodgate/internal/log"
	"github.com/ManuGH/floodgate/internal/scheduler"
)

// SweepTask returns the scheduler task that closes out stale upload
// sessions. interval is how often it fires, olderThan how long a session
// may sit in pending or processing before it is force-failed.
func SweepTask(engine *Engine, interval, olderThan time.Duration) scheduler.Task {
	return scheduler.Task{
		Name:           "upload-sweep",
		Schedule:       scheduler.Every(interval),
		MaxRunDuration: 2 * time.Minute,
		Handler: func(ctx context.Context) error {
			closed, err := engine.SweepStale(ctx, olderThan)
			if err != nil {
				return err
			}
			if closed > 0 {
				logger := log.WithComponentFromContext(ctx, "uploads")
				logger.Info().
					Int("closed", closed).
					Msg("upload.sweep_completed")
			}
			return nil
		},
	}
}
