package query

import (
	"context"

	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/internal/domain/standings"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PERSONAL RESULT QUERY
// Результат одного студента по ejudge ID. Отсутствие студента - это данные
// (payload с ошибкой), а не ошибка запроса.
// ══════════════════════════════════════════════════════════════════════════════

// GetPersonalResultQuery содержит параметры запроса.
type GetPersonalResultQuery struct {
	// EJID - ID студента в ejudge. Любое целое допустимо: неизвестный ID,
	// включая 0 и отрицательные, даёт ответ "ID не найден".
	EJID shared.EJID
}

// PersonalResultDTO - ответ персонального запроса.
type PersonalResultDTO struct {
	// Found - найден ли студент.
	Found bool

	// Result - результат студента (nil, если не найден).
	Result *standings.PersonalResult

	// Error - сообщение для клиента, если студент не найден.
	Error string
}

// Payload возвращает объект для JSON-ответа: результат или {"error": ...}.
func (d PersonalResultDTO) Payload() any {
	if !d.Found {
		return standings.NotFoundPayload{Error: d.Error}
	}
	return d.Result
}

// GetPersonalResultHandler обрабатывает персональные запросы.
type GetPersonalResultHandler struct {
	provider SnapshotProvider
}

// NewGetPersonalResultHandler создаёт новый обработчик.
func NewGetPersonalResultHandler(provider SnapshotProvider) *GetPersonalResultHandler {
	return &GetPersonalResultHandler{provider: provider}
}

// Handle выполняет запрос.
func (h *GetPersonalResultHandler) Handle(ctx context.Context, q GetPersonalResultQuery) (*PersonalResultDTO, error) {
	table, err := currentTable(ctx, h.provider)
	if err != nil {
		return nil, err
	}

	result, err := table.Personal(q.EJID)
	if shared.IsNotFound(err) {
		return &PersonalResultDTO{Found: false, Error: standings.NotFoundMessage}, nil
	}
	if err != nil {
		return nil, err
	}

	return &PersonalResultDTO{Found: true, Result: &result}, nil
}
