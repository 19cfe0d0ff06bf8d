package query

import (
	"context"

	"github.com/lksh/markboard/internal/domain/standings"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RANKED TABLE QUERY
// Ранжированная выгрузка для results.csv: строки отсортированы по кортежу
// (группа, фамилия, имя, ejid, оценка).
// ══════════════════════════════════════════════════════════════════════════════

// GetRankedTableHandler обрабатывает запрос ранжированной таблицы.
type GetRankedTableHandler struct {
	provider SnapshotProvider
}

// NewGetRankedTableHandler создаёт новый обработчик.
func NewGetRankedTableHandler(provider SnapshotProvider) *GetRankedTableHandler {
	return &GetRankedTableHandler{provider: provider}
}

// Handle возвращает отсортированные строки.
func (h *GetRankedTableHandler) Handle(ctx context.Context) ([]standings.Row, error) {
	table, err := currentTable(ctx, h.provider)
	if err != nil {
		return nil, err
	}
	return table.RankedRows(), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET RESULTS QUERY
// Массовая JSON-выгрузка для дашборда, в порядке строк исходной таблицы.
// ══════════════════════════════════════════════════════════════════════════════

// GetResultsHandler обрабатывает запрос массовой выгрузки.
type GetResultsHandler struct {
	provider SnapshotProvider
}

// NewGetResultsHandler создаёт новый обработчик.
func NewGetResultsHandler(provider SnapshotProvider) *GetResultsHandler {
	return &GetResultsHandler{provider: provider}
}

// Handle возвращает результаты всех студентов.
func (h *GetResultsHandler) Handle(ctx context.Context) ([]standings.Result, error) {
	table, err := currentTable(ctx, h.provider)
	if err != nil {
		return nil, err
	}
	return table.Results(), nil
}
