package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/warehouse/internal/jobs"
	"github.com/odyssey-erp/warehouse/internal/warehouse"
)

// Snapshotter is the part of warehouse.Service the snapshot job drives.
type Snapshotter interface {
	Save(ctx context.Context) (warehouse.SnapshotMeta, error)
	Summary(ctx context.Context) warehouse.Summary
}

// SnapshotJob persists the ledger on schedule or on demand.
type SnapshotJob struct {
	Ledger  Snapshotter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSnapshotJob wires dependencies for the snapshot handler.
func NewSnapshotJob(ledger Snapshotter, logger *slog.Logger, metrics *jobmetrics.Metrics) *SnapshotJob {
	return &SnapshotJob{Ledger: ledger, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLedgerSnapshot tasks.
func (j *SnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger snapshot: handler not configured")
	}
	var payload SnapshotPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskLedgerSnapshot)
	logger := j.logger().With(slog.String("reason", payload.Reason))

	meta, err := j.Ledger.Save(ctx)
	if err != nil {
		logger.Error("ledger snapshot failed", slog.Any("error", err))
		return tracker.End(err)
	}
	summary := j.Ledger.Summary(ctx)
	j.Metrics.ObserveSnapshot(meta.TakenAt, summary.PendingUnits)
	logger.Info("ledger snapshot stored",
		slog.String("snapshot_id", meta.ID),
		slog.Int("clients", summary.Clients),
		slog.Int("pending_units", summary.PendingUnits),
	)
	return tracker.End(nil)
}

func (j *SnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
