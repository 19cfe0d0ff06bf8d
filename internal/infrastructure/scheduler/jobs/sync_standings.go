// Package jobs contains the scheduled jobs of markboard.
package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lksh/markboard/internal/application/command"
	"github.com/lksh/markboard/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC STANDINGS JOB
// ══════════════════════════════════════════════════════════════════════════════

// SyncStandingsJobName is the name the job is registered under.
const SyncStandingsJobName = "sync_standings"

// StandingsSyncer runs one standings synchronization.
type StandingsSyncer interface {
	Handle(ctx context.Context) (*command.SyncStandingsResult, error)
}

// SyncStandingsJob periodically re-downloads the standings page and stores
// a fresh snapshot.
type SyncStandingsJob struct {
	syncer StandingsSyncer
	logger *slog.Logger
}

// NewSyncStandingsJob creates a new sync job.
func NewSyncStandingsJob(syncer StandingsSyncer, logger *slog.Logger) *SyncStandingsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncStandingsJob{
		syncer: syncer,
		logger: logger.With("job", SyncStandingsJobName),
	}
}

// Name returns the job name.
func (j *SyncStandingsJob) Name() string {
	return SyncStandingsJobName
}

// Description returns a human-readable description.
func (j *SyncStandingsJob) Description() string {
	return "Downloads ejudge standings and stores a new snapshot"
}

// Run executes one sync. A sync already started elsewhere (for example by
// the refresh endpoint) is not a failure.
func (j *SyncStandingsJob) Run(ctx context.Context) error {
	result, err := j.syncer.Handle(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrSyncInProgress) {
			j.logger.Info("sync skipped, another run is in progress")
			return nil
		}
		return err
	}

	j.logger.Debug("sync stored",
		"snapshot_id", result.SnapshotID,
		"students", result.Students,
	)
	return nil
}
