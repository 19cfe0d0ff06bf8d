package standings

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lksh/markboard/internal/domain/mark"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит историю снапшотов таблицы результатов.
type Repository interface {
	// Save сохраняет снапшот целиком (атомарно).
	Save(ctx context.Context, snapshot *Snapshot) error

	// Latest возвращает самый свежий снапшот.
	// Если снапшотов нет, возвращает shared.ErrSnapshotNotFound.
	Latest(ctx context.Context) (*Snapshot, error)

	// Get возвращает снапшот по ID.
	Get(ctx context.Context, id string) (*Snapshot, error)

	// List возвращает краткие описания последних снапшотов (новые первыми).
	List(ctx context.Context, limit int) ([]Summary, error)
}

// Cache хранит последний снапшот для быстрых ответов API.
type Cache interface {
	// Get возвращает закешированный снапшот или ошибку промаха.
	Get(ctx context.Context) (*Snapshot, error)

	// Set сохраняет снапшот с заданным TTL.
	Set(ctx context.Context, snapshot *Snapshot, ttl time.Duration) error

	// Invalidate удаляет закешированный снапшот.
	Invalidate(ctx context.Context) error
}

// Source загружает актуальную таблицу результатов из внешней системы.
type Source interface {
	Fetch(ctx context.Context) (*Table, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERIALIZATION
// ══════════════════════════════════════════════════════════════════════════════

type tableJSON struct {
	Grid    mark.Grid `json:"grid"`
	Entries []Entry   `json:"entries"`
}

// MarshalJSON сериализует таблицу вместе с сеткой и порядком строк.
func (t *Table) MarshalJSON() ([]byte, error) {
	entries := t.entries
	if entries == nil {
		entries = []Entry{}
	}
	return json.Marshal(tableJSON{Grid: t.grid, Entries: entries})
}

// UnmarshalJSON восстанавливает таблицу через Add: форма каждой строки
// проверяется, оценка пересчитывается, а сохранённая игнорируется.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw tableJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := raw.Grid.Validate(); err != nil {
		return err
	}

	restored := NewTable(raw.Grid)
	for _, e := range raw.Entries {
		if err := restored.Add(e.Student, e.Solved); err != nil {
			return err
		}
	}
	*t = *restored
	return nil
}
