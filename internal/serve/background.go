package serve

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/logfields"
)

// pendingBuilder is the part of the scheduler the background job needs.
type pendingBuilder interface {
	BuildPending(ctx context.Context, limit int) (int, error)
}

// backgroundBatch is the number of pending pages built per tick.
const backgroundBatch = 4

// startBackground builds pending lazy pages every interval until ctx is
// done. A tick that overlaps a running one is skipped.
func startBackground(ctx context.Context, b pendingBuilder, interval time.Duration, log *slog.Logger) (gocron.Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryServe, "create background scheduler").Build()
	}
	_, err = cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := b.BuildPending(ctx, backgroundBatch)
			switch {
			case err != nil && ctx.Err() == nil:
				log.Warn("Background build failed", logfields.Error(err))
			case n > 0:
				log.Debug("Background build of pending pages", logfields.Pages(n))
			}
		}),
		gocron.WithName("build-pending-pages"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = cron.Shutdown()
		return nil, ferrors.WrapError(err, ferrors.CategoryServe, "schedule background build").Build()
	}
	cron.Start()
	log.Info("Background build of pending pages enabled", slog.Duration("interval", interval))
	return cron, nil
}
