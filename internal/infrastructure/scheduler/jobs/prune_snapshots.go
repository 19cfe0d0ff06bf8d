package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRUNE SNAPSHOTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// PruneSnapshotsJobName is the name the job is registered under.
const PruneSnapshotsJobName = "prune_snapshots"

// SnapshotPruner deletes stored snapshots older than a cutoff.
type SnapshotPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneSnapshotsJob removes snapshots past the retention period.
type PruneSnapshotsJob struct {
	pruner    SnapshotPruner
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewPruneSnapshotsJob creates a new prune job.
func NewPruneSnapshotsJob(pruner SnapshotPruner, retention time.Duration, logger *slog.Logger) *PruneSnapshotsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PruneSnapshotsJob{
		pruner:    pruner,
		retention: retention,
		logger:    logger.With("job", PruneSnapshotsJobName),
		now:       time.Now,
	}
}

// Name returns the job name.
func (j *PruneSnapshotsJob) Name() string {
	return PruneSnapshotsJobName
}

// Description returns a human-readable description.
func (j *PruneSnapshotsJob) Description() string {
	return fmt.Sprintf("Deletes snapshots older than %s", j.retention)
}

// Run deletes expired snapshots.
func (j *PruneSnapshotsJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)

	deleted, err := j.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}

	if deleted > 0 {
		j.logger.Info("old snapshots deleted",
			"deleted", deleted,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
	return nil
}
