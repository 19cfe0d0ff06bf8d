package redis

import (
	"context"
	"time"

	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/internal/domain/standings"
)

// ══════════════════════════════════════════════════════════════════════════════
// STANDINGS CACHE
// ══════════════════════════════════════════════════════════════════════════════

// latestKey holds the most recent snapshot. Older ones live in Postgres.
const latestKey = "markboard:standings:latest"

// defaultTTL applies when the caller passes no TTL.
const defaultTTL = 10 * time.Minute

// StandingsCache implements standings.Cache on top of Cache.
type StandingsCache struct {
	cache *Cache
	key   string
}

// NewStandingsCache creates a cache for the latest standings snapshot.
func NewStandingsCache(cache *Cache) *StandingsCache {
	return &StandingsCache{cache: cache, key: latestKey}
}

var _ standings.Cache = (*StandingsCache)(nil)

// cachedSnapshot is the JSON form of a snapshot.
type cachedSnapshot struct {
	ID        string           `json:"id"`
	From      string           `json:"contest_from"`
	To        string           `json:"contest_to"`
	FetchedAt time.Time        `json:"fetched_at"`
	Table     *standings.Table `json:"table"`
}

func toCached(s *standings.Snapshot) cachedSnapshot {
	return cachedSnapshot{
		ID:        s.ID,
		From:      s.Contests.From,
		To:        s.Contests.To,
		FetchedAt: s.FetchedAt,
		Table:     s.Table,
	}
}

func (c cachedSnapshot) snapshot() *standings.Snapshot {
	return &standings.Snapshot{
		ID:        c.ID,
		Contests:  shared.ContestRange{From: c.From, To: c.To},
		FetchedAt: c.FetchedAt.UTC(),
		Table:     c.Table,
	}
}

// Get returns the cached snapshot or ErrCacheMiss.
func (c *StandingsCache) Get(ctx context.Context) (*standings.Snapshot, error) {
	var cached cachedSnapshot
	if err := c.cache.getJSON(ctx, c.key, &cached); err != nil {
		return nil, err
	}
	if cached.Table == nil {
		return nil, ErrCacheMiss
	}
	return cached.snapshot(), nil
}

// Set stores the snapshot with the given TTL.
func (c *StandingsCache) Set(ctx context.Context, snapshot *standings.Snapshot, ttl time.Duration) error {
	if snapshot == nil || snapshot.Table == nil {
		return ErrCacheNilValue
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return c.cache.setJSON(ctx, c.key, toCached(snapshot), ttl)
}

// Invalidate removes the cached snapshot.
func (c *StandingsCache) Invalidate(ctx context.Context) error {
	return c.cache.del(ctx, c.key)
}
