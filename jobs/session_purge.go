package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// SessionPurger removes sessions past their expiry and reports how many rows
// went away.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// PurgeObserver receives the purge count for metrics.
type PurgeObserver interface {
	ObserveSessionsPurged(count int64)
}

// SessionsPurgeJob sweeps expired sessions on a schedule.
type SessionsPurgeJob struct {
	purger   SessionPurger
	observer PurgeObserver
	logger   *slog.Logger
}

// NewSessionsPurgeJob constructs the purge job. observer may be nil.
func NewSessionsPurgeJob(purger SessionPurger, observer PurgeObserver, logger *slog.Logger) *SessionsPurgeJob {
	return &SessionsPurgeJob{purger: purger, observer: observer, logger: logger}
}

// Handle processes TaskSessionsPurge tasks.
func (j *SessionsPurgeJob) Handle(ctx context.Context, _ *asynq.Task) error {
	count, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		j.logger.Error("purge expired sessions", slog.Any("error", err))
		return err
	}
	if j.observer != nil {
		j.observer.ObserveSessionsPurged(count)
	}
	if count > 0 {
		j.logger.Info("purged expired sessions", slog.Int64("count", count))
	}
	return nil
}
