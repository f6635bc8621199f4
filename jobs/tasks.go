package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerSnapshot persists the in-memory ledger to the snapshot store.
	TaskLedgerSnapshot = "ledger:snapshot"
)

// SnapshotPayload describes why a snapshot was requested.
type SnapshotPayload struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewSnapshotTask constructs a ledger snapshot task.
func NewSnapshotTask(reason string) (*asynq.Task, error) {
	if reason == "" {
		reason = "manual"
	}
	data, err := json.Marshal(SnapshotPayload{Reason: reason, RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	// Only one snapshot per minute window; duplicates are dropped by asynq.
	return asynq.NewTask(TaskLedgerSnapshot, data, asynq.Unique(time.Minute)), nil
}
