// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/internal/domain/standings"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT PROVIDER
// Определяет, откуда взять актуальную таблицу результатов:
// кэш -> последний снапшот в БД -> живая загрузка из ejudge.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotProvider возвращает текущий снапшот таблицы результатов.
type SnapshotProvider interface {
	Current(ctx context.Context) (*standings.Snapshot, error)
}

// ProviderConfig содержит настройки провайдера.
type ProviderConfig struct {
	// Contests - диапазон контестов, подставляемый в снапшоты живой загрузки.
	Contests shared.ContestRange

	// CacheTTL - время жизни снапшота в кэше.
	CacheTTL time.Duration
}

// DefaultProviderConfig возвращает настройки по умолчанию.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		CacheTTL: 10 * time.Minute,
	}
}

// Provider реализует SnapshotProvider поверх опциональных кэша, репозитория
// и источника. Любой из них может быть nil.
type Provider struct {
	cache  standings.Cache
	repo   standings.Repository
	source standings.Source
	config ProviderConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewProvider создаёт провайдер снапшотов.
func NewProvider(
	cache standings.Cache,
	repo standings.Repository,
	source standings.Source,
	config ProviderConfig,
	logger *slog.Logger,
) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultProviderConfig().CacheTTL
	}
	return &Provider{
		cache:  cache,
		repo:   repo,
		source: source,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Current возвращает самый свежий доступный снапшот.
func (p *Provider) Current(ctx context.Context) (*standings.Snapshot, error) {
	if p.cache != nil {
		snapshot, err := p.cache.Get(ctx)
		if err == nil && snapshot != nil {
			return snapshot, nil
		}
		if err != nil {
			p.logger.Debug("standings cache miss", "error", err)
		}
	}

	if p.repo != nil {
		snapshot, err := p.repo.Latest(ctx)
		switch {
		case err == nil:
			p.warm(ctx, snapshot)
			return snapshot, nil
		case !shared.IsNotFound(err):
			p.logger.Warn("failed to load latest snapshot", "error", err)
		}
	}

	if p.source == nil {
		return nil, shared.ErrSnapshotNotFound
	}

	started := p.now()
	table, err := p.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch standings: %w", err)
	}

	snapshot := standings.NewSnapshot(p.config.Contests, table, started)
	p.logger.Info("standings fetched live",
		"snapshot_id", snapshot.ID,
		"students", table.Len(),
		"duration", p.now().Sub(started),
	)
	p.warm(ctx, snapshot)
	return snapshot, nil
}

// warm кладёт снапшот в кэш; ошибки кэша не влияют на ответ.
func (p *Provider) warm(ctx context.Context, snapshot *standings.Snapshot) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, snapshot, p.config.CacheTTL); err != nil {
		p.logger.Warn("failed to cache snapshot", "snapshot_id", snapshot.ID, "error", err)
	}
}

// currentTable - общий шаг всех запросов.
func currentTable(ctx context.Context, provider SnapshotProvider) (*standings.Table, error) {
	snapshot, err := provider.Current(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot == nil || snapshot.Table == nil {
		return nil, errors.New("query: provider returned empty snapshot")
	}
	return snapshot.Table, nil
}
