// Package mark содержит расчёт итоговой оценки (mark) студента по сетке
// "темы × уровни". Пакет не зависит от инфраструктуры: только чистые функции.
package mark

import (
	"fmt"
	"sort"

	"github.com/lksh/markboard/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRID
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultTopics - количество тем в сетке контеста.
	DefaultTopics = 6

	// DefaultLevels - количество уровней сложности в каждой теме.
	DefaultLevels = 5
)

// Grid описывает форму сетки задач.
// Задача с индексом i относится к теме i % Topics и уровню i / Topics:
// уровень 0 занимает индексы 0..Topics-1, уровень 1 - следующие Topics и т.д.
type Grid struct {
	Topics int `json:"topics"`
	Levels int `json:"levels"`
}

// DefaultGrid - стандартная сетка 6 тем × 5 уровней.
var DefaultGrid = Grid{Topics: DefaultTopics, Levels: DefaultLevels}

// Size возвращает ожидаемую длину последовательности флагов.
func (g Grid) Size() int {
	return g.Topics * g.Levels
}

// Validate проверяет, что размеры сетки положительные.
func (g Grid) Validate() error {
	if g.Topics <= 0 || g.Levels <= 0 {
		return shared.NewDomainError("mark", "ValidateGrid", shared.ErrValueOutOfRange,
			fmt.Sprintf("grid dimensions must be positive, got %dx%d", g.Topics, g.Levels))
	}
	return nil
}

// String возвращает строковое представление сетки.
func (g Grid) String() string {
	return fmt.Sprintf("%dx%d", g.Topics, g.Levels)
}

// ══════════════════════════════════════════════════════════════════════════════
// SHAPE ERROR
// ══════════════════════════════════════════════════════════════════════════════

// ShapeError возвращается, когда последовательность флагов не соответствует сетке:
// неверная длина или значение, отличное от 0 и 1.
type ShapeError struct {
	Grid  Grid
	Got   int // фактическая длина
	Index int // индекс некорректного значения, -1 если ошибка в длине
	Value int
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("mark: solved flag at index %d is %d, want 0 or 1", e.Index, e.Value)
	}
	return fmt.Sprintf("mark: solved flags length is %d, want %d for grid %s", e.Got, e.Grid.Size(), e.Grid)
}

// Is позволяет проверять ShapeError через errors.Is(err, shared.ErrInvalidInput).
func (e *ShapeError) Is(target error) bool {
	return target == shared.ErrInvalidInput
}

// CheckShape проверяет длину и бинарность флагов.
func (g Grid) CheckShape(solved []int) error {
	if len(solved) != g.Size() {
		return &ShapeError{Grid: g, Got: len(solved), Index: -1}
	}
	for i, v := range solved {
		if v != 0 && v != 1 {
			return &ShapeError{Grid: g, Got: len(solved), Index: i, Value: v}
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATION
// ══════════════════════════════════════════════════════════════════════════════

// TopicFlags возвращает флаги одной темы по возрастанию уровня.
// Длина solved должна быть проверена заранее.
func (g Grid) TopicFlags(solved []int, topic int) []int {
	flags := make([]int, 0, g.Levels)
	for i := topic; i < len(solved); i += g.Topics {
		flags = append(flags, solved[i])
	}
	return flags
}

// MaxLevels возвращает для каждой темы, где решена хотя бы одна задача,
// наибольший индекс уровня с решённой задачей. Темы без решений пропускаются.
func (g Grid) MaxLevels(solved []int) []int {
	maxLevels := make([]int, 0, g.Topics)
	for topic := 0; topic < g.Topics; topic++ {
		flags := g.TopicFlags(solved, topic)
		for level := len(flags) - 1; level >= 0; level-- {
			if flags[level] == 1 {
				maxLevels = append(maxLevels, level)
				break
			}
		}
	}
	return maxLevels
}

// Calculate вычисляет оценку по флагам решённых задач.
//
// Максимальные уровни тем сортируются по убыванию, затем каждому уровню
// назначается свободная ступень: при совпадении уровень понижается на 1,
// пока не найдётся свободная ступень или не будет достигнут 0. Совпадения
// на уровне 0 не добавляют новых ступеней. Оценка - число занятых ступеней.
func (g Grid) Calculate(solved []int) (int, error) {
	if err := g.CheckShape(solved); err != nil {
		return 0, err
	}

	maxLevels := g.MaxLevels(solved)
	sort.Sort(sort.Reverse(sort.IntSlice(maxLevels)))

	levels := make(map[int]struct{}, len(maxLevels))
	for _, level := range maxLevels {
		for {
			if _, taken := levels[level]; !taken || level == 0 {
				break
			}
			level--
		}
		levels[level] = struct{}{}
	}

	return min(len(levels), len(maxLevels)), nil
}

// Calculate вычисляет оценку по стандартной сетке.
func Calculate(solved []int) (int, error) {
	return DefaultGrid.Calculate(solved)
}
