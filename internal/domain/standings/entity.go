// Package standings содержит доменную модель таблицы результатов контеста:
// идентичность студента, упорядоченную таблицу флагов и производные
// представления (ранжированные строки, JSON-выгрузки, персональный результат).
package standings

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lksh/markboard/internal/domain/mark"
	"github.com/lksh/markboard/internal/domain/shared"
)

// NotFoundMessage - текст ошибки персонального запроса по неизвестному ID.
const NotFoundMessage = "ID не найден"

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - идентичность студента в таблице результатов ejudge.
// Структура сравнима и используется как ключ таблицы.
type Student struct {
	Group     string      `json:"group"`
	LastName  string      `json:"last_name"`
	FirstName string      `json:"first_name"`
	EJID      shared.EJID `json:"ejid"`
}

// Entry - строка таблицы: студент, его флаги решённых задач и оценка.
// Mark считается в Table.Add и всегда соответствует Solved.
type Entry struct {
	Student Student `json:"student"`
	Solved  []int   `json:"solved"`
	Mark    int     `json:"mark"`
}

// ══════════════════════════════════════════════════════════════════════════════
// TABLE
// ══════════════════════════════════════════════════════════════════════════════

// Table - упорядоченное отображение Student -> флаги.
// Порядок вставки сохраняется; повторное добавление того же студента
// заменяет флаги на прежней позиции.
type Table struct {
	grid    mark.Grid
	entries []Entry
	index   map[Student]int
}

// NewTable создаёт пустую таблицу для заданной сетки.
func NewTable(grid mark.Grid) *Table {
	return &Table{
		grid:  grid,
		index: make(map[Student]int),
	}
}

// Grid возвращает сетку таблицы.
func (t *Table) Grid() mark.Grid {
	return t.grid
}

// Add добавляет или обновляет строку студента и считает её оценку.
// Флаги копируются; некорректная форма возвращает *mark.ShapeError,
// и таблица не меняется.
func (t *Table) Add(student Student, solved []int) error {
	m, err := t.grid.Calculate(solved)
	if err != nil {
		return err
	}

	e := Entry{Student: student, Solved: slices.Clone(solved), Mark: m}
	if i, ok := t.index[student]; ok {
		t.entries[i] = e
		return nil
	}

	t.index[student] = len(t.entries)
	t.entries = append(t.entries, e)
	return nil
}

// Entries возвращает строки в порядке вставки.
func (t *Table) Entries() []Entry {
	return slices.Clone(t.entries)
}

// Len возвращает количество студентов.
func (t *Table) Len() int {
	return len(t.entries)
}

// Find возвращает первую (в порядке вставки) строку с данным ejudge ID.
func (t *Table) Find(ejid shared.EJID) (Entry, bool) {
	for _, e := range t.entries {
		if e.Student.EJID == ejid {
			return e, true
		}
	}
	return Entry{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// DERIVED VIEWS
// ══════════════════════════════════════════════════════════════════════════════

// Row - строка ранжированной выгрузки (group, last_name, first_name, ejid, mark).
type Row struct {
	Group     string
	LastName  string
	FirstName string
	EJID      shared.EJID
	Mark      int
}

// Compare сравнивает строки в естественном порядке кортежа.
func (r Row) Compare(o Row) int {
	return cmp.Or(
		cmp.Compare(r.Group, o.Group),
		cmp.Compare(r.LastName, o.LastName),
		cmp.Compare(r.FirstName, o.FirstName),
		cmp.Compare(r.EJID, o.EJID),
		cmp.Compare(r.Mark, o.Mark),
	)
}

// Result - элемент массовой JSON-выгрузки.
type Result struct {
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Group     string      `json:"group"`
	Score     int         `json:"score"`
	EJID      shared.EJID `json:"ejid"`
}

// PersonalResult - персональный результат студента с исходными флагами.
type PersonalResult struct {
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Group     string      `json:"group"`
	Score     int         `json:"score"`
	Solved    []int       `json:"solved"`
	EJID      shared.EJID `json:"ejid"`
}

// NotFoundPayload - ответ персонального запроса при отсутствии студента.
type NotFoundPayload struct {
	Error string `json:"error"`
}

// RankedRows возвращает строки, отсортированные по возрастанию кортежа
// (группа, фамилия, имя, ejid, оценка).
func (t *Table) RankedRows() []Row {
	rows := make([]Row, 0, len(t.entries))
	for _, e := range t.entries {
		rows = append(rows, Row{
			Group:     e.Student.Group,
			LastName:  e.Student.LastName,
			FirstName: e.Student.FirstName,
			EJID:      e.Student.EJID,
			Mark:      e.Mark,
		})
	}
	slices.SortFunc(rows, Row.Compare)
	return rows
}

// Results возвращает массовую выгрузку в порядке вставки.
func (t *Table) Results() []Result {
	results := make([]Result, 0, len(t.entries))
	for _, e := range t.entries {
		results = append(results, Result{
			FirstName: e.Student.FirstName,
			LastName:  e.Student.LastName,
			Group:     e.Student.Group,
			Score:     e.Mark,
			EJID:      e.Student.EJID,
		})
	}
	return results
}

// Personal возвращает персональный результат первого студента с данным ID.
// Если студента нет, возвращается shared.ErrStudentNotFound.
func (t *Table) Personal(ejid shared.EJID) (PersonalResult, error) {
	e, ok := t.Find(ejid)
	if !ok {
		return PersonalResult{}, shared.ErrStudentNotFound
	}
	return PersonalResult{
		FirstName: e.Student.FirstName,
		LastName:  e.Student.LastName,
		Group:     e.Student.Group,
		Score:     e.Mark,
		Solved:    slices.Clone(e.Solved),
		EJID:      e.Student.EJID,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - зафиксированная на момент загрузки таблица результатов.
type Snapshot struct {
	ID        string
	Contests  shared.ContestRange
	FetchedAt time.Time
	Table     *Table
}

// NewSnapshot создаёт снапшот с новым UUID.
func NewSnapshot(contests shared.ContestRange, table *Table, fetchedAt time.Time) *Snapshot {
	return &Snapshot{
		ID:        uuid.New().String(),
		Contests:  contests,
		FetchedAt: fetchedAt.UTC(),
		Table:     table,
	}
}

// Summary - краткое описание снапшота для списков.
type Summary struct {
	ID        string    `json:"id"`
	From      string    `json:"contest_from"`
	To        string    `json:"contest_to"`
	Grid      mark.Grid `json:"grid"`
	FetchedAt time.Time `json:"fetched_at"`
	Students  int       `json:"students"`
}

// Summary возвращает краткое описание снапшота.
func (s *Snapshot) Summary() Summary {
	return Summary{
		ID:        s.ID,
		From:      s.Contests.From,
		To:        s.Contests.To,
		Grid:      s.Table.Grid(),
		FetchedAt: s.FetchedAt,
		Students:  s.Table.Len(),
	}
}
