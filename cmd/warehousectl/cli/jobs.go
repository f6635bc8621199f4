// Package cli implements the warehousectl operator commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/warehouse/jobs"
)

// Enqueuer submits snapshot tasks. Satisfied by *jobs.Client.
type Enqueuer interface {
	EnqueueSnapshot(ctx context.Context, reason string) (*asynq.TaskInfo, error)
	Close() error
}

// QueueInspector reads queue counters. Satisfied by *asynq.Inspector.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for the asynq queue.
type JobsCLI struct {
	client    Enqueuer
	inspector QueueInspector
}

// NewJobsCLI initialises the CLI helpers against the given Redis settings.
func NewJobsCLI(redisOpts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: jobs.NewClient(redisOpts), inspector: asynq.NewInspector(redisOpts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// TriggerSnapshot enqueues a ledger snapshot and prints the task id.
func (c *JobsCLI) TriggerSnapshot(ctx context.Context, out io.Writer) error {
	if c == nil || c.client == nil {
		return errors.New("jobs cli: client not configured")
	}
	info, err := c.client.EnqueueSnapshot(ctx, "cli")
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			_, _ = fmt.Fprintln(out, "snapshot already queued")
			return nil
		}
		return err
	}
	_, _ = fmt.Fprintf(out, "enqueued %s task %s on queue %s\n", info.Type, info.ID, info.Queue)
	return nil
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the counters of the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	if err := ctx.Err(); err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return stats, nil
		}
		return QueueStats{}, err
	}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// PrintQueueStats writes stats as aligned text.
func PrintQueueStats(out io.Writer, stats QueueStats) {
	_, _ = fmt.Fprintf(out, "queue      %s\n", stats.Queue)
	_, _ = fmt.Fprintf(out, "pending    %d\n", stats.Pending)
	_, _ = fmt.Fprintf(out, "active     %d\n", stats.Active)
	_, _ = fmt.Fprintf(out, "scheduled  %d\n", stats.Scheduled)
	_, _ = fmt.Fprintf(out, "retry      %d\n", stats.Retry)
	_, _ = fmt.Fprintf(out, "archived   %d\n", stats.Archived)
}
