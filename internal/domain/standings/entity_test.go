package standings

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lksh/markboard/internal/domain/mark"
	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solvedAt(indices ...int) []int {
	solved := make([]int, mark.DefaultGrid.Size())
	for _, i := range indices {
		solved[i] = 1
	}
	return solved
}

func sampleTable(t *testing.T) *Table {
	t.Helper()
	table := NewTable(mark.DefaultGrid)
	require.NoError(t, table.Add(Student{Group: "P", LastName: "Петров", FirstName: "Пётр", EJID: 42}, solvedAt(24)))
	require.NoError(t, table.Add(Student{Group: "A", LastName: "Иванов", FirstName: "Иван", EJID: 7}, solvedAt(0, 1, 2)))
	require.NoError(t, table.Add(Student{Group: "A", LastName: "Иванов", FirstName: "Анна", EJID: 9}, solvedAt()))
	return table
}

func TestTable_AddKeepsInsertionOrder(t *testing.T) {
	table := sampleTable(t)

	entries := table.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, shared.EJID(42), entries[0].Student.EJID)
	assert.Equal(t, shared.EJID(7), entries[1].Student.EJID)
	assert.Equal(t, shared.EJID(9), entries[2].Student.EJID)
}

func TestTable_AddSameStudentReplacesFlags(t *testing.T) {
	table := sampleTable(t)
	student := Student{Group: "P", LastName: "Петров", FirstName: "Пётр", EJID: 42}

	require.NoError(t, table.Add(student, solvedAt()))

	assert.Equal(t, 3, table.Len())
	entry, ok := table.Find(42)
	require.True(t, ok)
	assert.Equal(t, solvedAt(), entry.Solved)
	assert.Equal(t, student, table.Entries()[0].Student)
}

func TestTable_AddStoresMark(t *testing.T) {
	table := sampleTable(t)
	student := Student{Group: "P", LastName: "Петров", FirstName: "Пётр", EJID: 42}

	entry, ok := table.Find(42)
	require.True(t, ok)
	assert.Equal(t, 1, entry.Mark)

	require.NoError(t, table.Add(student, solvedAt()))
	entry, _ = table.Find(42)
	assert.Zero(t, entry.Mark)
}

func TestTable_RejectedAddLeavesRowUntouched(t *testing.T) {
	table := sampleTable(t)
	student := Student{Group: "A", LastName: "Иванов", FirstName: "Иван", EJID: 7}

	require.Error(t, table.Add(student, []int{1}))

	entry, ok := table.Find(7)
	require.True(t, ok)
	assert.Equal(t, solvedAt(0, 1, 2), entry.Solved)
	assert.Equal(t, 1, entry.Mark)
}

func TestTable_AddRejectsWrongShape(t *testing.T) {
	table := NewTable(mark.DefaultGrid)
	err := table.Add(Student{EJID: 1}, []int{1, 0, 1})

	var shapeErr *mark.ShapeError
	assert.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, 0, table.Len())
}

func TestTable_AddCopiesFlags(t *testing.T) {
	table := NewTable(mark.DefaultGrid)
	solved := solvedAt(3)
	require.NoError(t, table.Add(Student{EJID: 1}, solved))

	solved[3] = 0
	entry, _ := table.Find(1)
	assert.Equal(t, 1, entry.Solved[3])
}

func TestTable_RankedRowsSortedByTuple(t *testing.T) {
	rows := sampleTable(t).RankedRows()

	require.Len(t, rows, 3)
	assert.Equal(t, Row{Group: "A", LastName: "Иванов", FirstName: "Анна", EJID: 9, Mark: 0}, rows[0])
	assert.Equal(t, Row{Group: "A", LastName: "Иванов", FirstName: "Иван", EJID: 7, Mark: 1}, rows[1])
	assert.Equal(t, Row{Group: "P", LastName: "Петров", FirstName: "Пётр", EJID: 42, Mark: 1}, rows[2])
}

func TestRow_CompareFallsThroughToEJID(t *testing.T) {
	a := Row{Group: "A", LastName: "X", FirstName: "Y", EJID: 1, Mark: 5}
	b := Row{Group: "A", LastName: "X", FirstName: "Y", EJID: 2, Mark: 0}

	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))
	assert.Zero(t, a.Compare(a))
}

func TestTable_ResultsInInsertionOrder(t *testing.T) {
	results := sampleTable(t).Results()

	require.Len(t, results, 3)
	assert.Equal(t, Result{FirstName: "Пётр", LastName: "Петров", Group: "P", Score: 1, EJID: 42}, results[0])
	assert.Equal(t, shared.EJID(7), results[1].EJID)
	assert.Equal(t, 1, results[1].Score)
	assert.Equal(t, 0, results[2].Score)
}

func TestTable_Personal(t *testing.T) {
	table := sampleTable(t)

	res, err := table.Personal(7)
	require.NoError(t, err)
	assert.Equal(t, "Иван", res.FirstName)
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, solvedAt(0, 1, 2), res.Solved)

	_, err = table.Personal(1000)
	assert.True(t, shared.IsNotFound(err))
}

func TestTable_FindReturnsFirstMatch(t *testing.T) {
	table := NewTable(mark.DefaultGrid)
	require.NoError(t, table.Add(Student{Group: "A", LastName: "One", FirstName: "X", EJID: 5}, solvedAt(0)))
	require.NoError(t, table.Add(Student{Group: "B", LastName: "Two", FirstName: "Y", EJID: 5}, solvedAt()))

	entry, ok := table.Find(5)
	require.True(t, ok)
	assert.Equal(t, "One", entry.Student.LastName)
}

func TestTable_JSONRoundTrip(t *testing.T) {
	table := sampleTable(t)

	data, err := json.Marshal(table)
	require.NoError(t, err)

	var restored Table
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, table.Grid(), restored.Grid())
	assert.Equal(t, table.Entries(), restored.Entries())
	assert.Equal(t, table.Results(), restored.Results())
}

func TestTable_UnmarshalRecomputesMark(t *testing.T) {
	data, err := json.Marshal(sampleTable(t))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, e := range raw["entries"].([]any) {
		e.(map[string]any)["mark"] = 99
	}
	tampered, err := json.Marshal(raw)
	require.NoError(t, err)

	var restored Table
	require.NoError(t, json.Unmarshal(tampered, &restored))

	res, err := restored.Personal(42)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Score)
}

func TestTable_UnmarshalRejectsBadShape(t *testing.T) {
	var table Table
	err := json.Unmarshal([]byte(`{"grid":{"topics":2,"levels":2},"entries":[{"student":{"ejid":1},"solved":[1]}]}`), &table)

	var shapeErr *mark.ShapeError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestTable_UnmarshalRejectsBadGrid(t *testing.T) {
	var table Table
	err := json.Unmarshal([]byte(`{"grid":{"topics":0,"levels":5},"entries":[]}`), &table)
	assert.Error(t, err)
}

func TestSnapshot_Summary(t *testing.T) {
	table := sampleTable(t)
	fetched := time.Date(2024, 7, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*3600))

	snap := NewSnapshot(shared.ContestRange{From: "030813", To: "030817"}, table, fetched)
	sum := snap.Summary()

	assert.NotEmpty(t, sum.ID)
	assert.Equal(t, "030813", sum.From)
	assert.Equal(t, 3, sum.Students)
	assert.Equal(t, time.UTC, sum.FetchedAt.Location())
	assert.True(t, fetched.Equal(sum.FetchedAt))
}
