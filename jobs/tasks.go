package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPurge removes expired sessions from storage.
	TaskSessionsPurge = "sessions:purge"
)

// NewSessionsPurgeTask constructs the purge task. The task carries no
// payload; the handler sweeps everything past its expiry.
func NewSessionsPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPurge, nil)
}
