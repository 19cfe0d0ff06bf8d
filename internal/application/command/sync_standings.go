// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/internal/domain/standings"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC STANDINGS COMMAND
// Pulls the standings page from ejudge, stores it as a new snapshot and
// refreshes the cache used by the API.
// ══════════════════════════════════════════════════════════════════════════════

// SyncStandingsResult contains the result of a synchronization.
type SyncStandingsResult struct {
	// SnapshotID is the ID of the stored snapshot.
	SnapshotID string `json:"snapshot_id"`

	// Students is the number of parsed standings rows.
	Students int `json:"students"`

	// Persisted indicates the snapshot was written to the repository.
	Persisted bool `json:"persisted"`

	// Cached indicates the snapshot was written to the cache.
	Cached bool `json:"cached"`

	// FetchedAt is when the standings page was requested.
	FetchedAt time.Time `json:"fetched_at"`

	// Duration is the total sync time.
	Duration time.Duration `json:"duration"`
}

// SyncStandingsConfig contains configuration for the handler.
type SyncStandingsConfig struct {
	// Contests is the contest range recorded in every snapshot.
	Contests shared.ContestRange

	// CacheTTL is the lifetime of the cached snapshot.
	CacheTTL time.Duration

	// AllowEmpty permits storing a standings page without rows.
	AllowEmpty bool
}

// DefaultSyncStandingsConfig returns the default configuration.
func DefaultSyncStandingsConfig() SyncStandingsConfig {
	return SyncStandingsConfig{
		CacheTTL: 10 * time.Minute,
	}
}

// SyncStandingsHandler handles standings synchronization.
// Only one sync runs at a time; a concurrent call gets shared.ErrSyncInProgress.
type SyncStandingsHandler struct {
	source standings.Source
	repo   standings.Repository
	cache  standings.Cache
	config SyncStandingsConfig
	logger *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// NewSyncStandingsHandler creates a new handler. repo and cache may be nil.
func NewSyncStandingsHandler(
	source standings.Source,
	repo standings.Repository,
	cache standings.Cache,
	config SyncStandingsConfig,
	logger *slog.Logger,
) *SyncStandingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultSyncStandingsConfig().CacheTTL
	}
	return &SyncStandingsHandler{
		source: source,
		repo:   repo,
		cache:  cache,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Handle executes the sync.
func (h *SyncStandingsHandler) Handle(ctx context.Context) (*SyncStandingsResult, error) {
	if !h.mu.TryLock() {
		return nil, shared.ErrSyncInProgress
	}
	defer h.mu.Unlock()

	start := h.now()

	table, err := h.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync_standings: fetch: %w", err)
	}
	if table.Len() == 0 && !h.config.AllowEmpty {
		return nil, shared.ErrEmptyStandings
	}

	snapshot := standings.NewSnapshot(h.config.Contests, table, start)
	result := &SyncStandingsResult{
		SnapshotID: snapshot.ID,
		Students:   table.Len(),
		FetchedAt:  snapshot.FetchedAt,
	}

	if h.repo != nil {
		if err := h.repo.Save(ctx, snapshot); err != nil {
			return nil, fmt.Errorf("sync_standings: save snapshot: %w", err)
		}
		result.Persisted = true
	}

	// Cache failures are not fatal: the repository still holds the snapshot.
	if h.cache != nil {
		if err := h.cache.Set(ctx, snapshot, h.config.CacheTTL); err != nil {
			h.logger.Warn("failed to cache snapshot",
				"snapshot_id", snapshot.ID,
				"error", err,
			)
		} else {
			result.Cached = true
		}
	}

	result.Duration = h.now().Sub(start)

	h.logger.Info("standings synced",
		"snapshot_id", result.SnapshotID,
		"students", result.Students,
		"contests", h.config.Contests.String(),
		"persisted", result.Persisted,
		"cached", result.Cached,
		"duration", result.Duration,
	)

	return result, nil
}
