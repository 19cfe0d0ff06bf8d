package query

import (
	"context"

	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/internal/domain/standings"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT HISTORY QUERIES
// История сохранённых снапшотов. Требует репозиторий; без него запросы
// возвращают ErrServiceUnavailable.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultSnapshotsLimit - размер страницы по умолчанию.
	DefaultSnapshotsLimit = 20

	// MaxSnapshotsLimit - максимальный размер страницы.
	MaxSnapshotsLimit = 100
)

var errNoHistory = shared.NewDomainError("standings", "History", shared.ErrServiceUnavailable, "snapshot history is not configured")

// ListSnapshotsQuery содержит параметры запроса.
type ListSnapshotsQuery struct {
	// Limit - сколько последних снапшотов вернуть (0 = по умолчанию).
	Limit int
}

// Validate проверяет и нормализует параметры запроса.
func (q *ListSnapshotsQuery) Validate() error {
	if q.Limit < 0 {
		return shared.NewDomainError("standings", "ListSnapshots", shared.ErrValueOutOfRange, "limit must not be negative")
	}
	if q.Limit == 0 {
		q.Limit = DefaultSnapshotsLimit
	}
	if q.Limit > MaxSnapshotsLimit {
		q.Limit = MaxSnapshotsLimit
	}
	return nil
}

// ListSnapshotsHandler возвращает краткие описания последних снапшотов.
type ListSnapshotsHandler struct {
	repo standings.Repository
}

// NewListSnapshotsHandler создаёт новый обработчик. repo может быть nil.
func NewListSnapshotsHandler(repo standings.Repository) *ListSnapshotsHandler {
	return &ListSnapshotsHandler{repo: repo}
}

// Handle выполняет запрос.
func (h *ListSnapshotsHandler) Handle(ctx context.Context, q ListSnapshotsQuery) ([]standings.Summary, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if h.repo == nil {
		return nil, errNoHistory
	}

	summaries, err := h.repo.List(ctx, q.Limit)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []standings.Summary{}
	}
	return summaries, nil
}

// GetSnapshotResultsHandler возвращает результаты конкретного снапшота
// в порядке строк таблицы.
type GetSnapshotResultsHandler struct {
	repo standings.Repository
}

// NewGetSnapshotResultsHandler создаёт новый обработчик. repo может быть nil.
func NewGetSnapshotResultsHandler(repo standings.Repository) *GetSnapshotResultsHandler {
	return &GetSnapshotResultsHandler{repo: repo}
}

// Handle выполняет запрос.
func (h *GetSnapshotResultsHandler) Handle(ctx context.Context, snapshotID string) ([]standings.Result, error) {
	if snapshotID == "" {
		return nil, shared.NewDomainError("standings", "GetSnapshot", shared.ErrInvalidID, "snapshot ID is required")
	}
	if h.repo == nil {
		return nil, errNoHistory
	}

	snapshot, err := h.repo.Get(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	return snapshot.Table.Results(), nil
}
