package ejudge

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lksh/markboard/internal/domain/mark"
	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var smallGrid = mark.Grid{Topics: 2, Levels: 2}

const standingsPage = `<html><body>
<h1>Standings</h1>
<table class="standings">
  <tr><th>Place</th><th>User</th><th>A</th><th>B</th><th>C</th><th>D</th><th>Score</th></tr>
  <tr ejid="101">
    <td>1</td>
    <td><nobr>P  Иванов Иван</nobr></td>
    <td title="A" class="ac">+</td>
    <td title="B" class="ac">+</td>
    <td title="C" class="wa">-1</td>
    <td title="D" class="ac">+</td>
    <td>3</td>
  </tr>
  <tr ejid="7">
    <td>2</td>
    <td><nobr>A Петрова Анна<br/>(guest)</nobr></td>
    <td title="A" class="ac first">+</td>
    <td title="B">.</td>
    <td title="C" class="">.</td>
    <td title="D" class=" ac ">+</td>
    <td>1</td>
  </tr>
  <tr><td colspan="7">footer</td></tr>
</table>
<table><tr ejid="999"><td><nobr>Z Ignored Row</nobr></td></tr></table>
</body></html>`

func TestParseStandings(t *testing.T) {
	table, err := ParseStandings(strings.NewReader(standingsPage), smallGrid)
	require.NoError(t, err)

	entries := table.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, "P", entries[0].Student.Group)
	assert.Equal(t, "Иванов", entries[0].Student.LastName)
	assert.Equal(t, "Иван", entries[0].Student.FirstName)
	assert.Equal(t, shared.EJID(101), entries[0].Student.EJID)
	assert.Equal(t, []int{1, 1, 0, 1}, entries[0].Solved)

	assert.Equal(t, "Петрова", entries[1].Student.LastName)
	assert.Equal(t, shared.EJID(7), entries[1].Student.EJID)
	// "ac first" is not exactly ["ac"]; " ac " is
	assert.Equal(t, []int{0, 0, 0, 1}, entries[1].Solved)
}

func TestParseStandings_OnlyFirstTable(t *testing.T) {
	table, err := ParseStandings(strings.NewReader(standingsPage), smallGrid)
	require.NoError(t, err)

	_, found := table.Find(999)
	assert.False(t, found)
}

func TestParseStandings_NoTable(t *testing.T) {
	_, err := ParseStandings(strings.NewReader("<html><body><p>maintenance</p></body></html>"), smallGrid)

	assert.ErrorIs(t, err, ErrNoTable)
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}

func TestParseStandings_EmptyTable(t *testing.T) {
	table, err := ParseStandings(strings.NewReader("<table><tr><th>x</th></tr></table>"), smallGrid)
	require.NoError(t, err)
	assert.Zero(t, table.Len())
}

func TestParseStandings_ZeroAndNegativeEJID(t *testing.T) {
	page := "<table>" +
		`<tr ejid="0"><td><nobr>P Нулев Пётр</nobr></td>` + cells(1, 0, 0, 0) + `</tr>` +
		`<tr ejid="-7"><td><nobr>Q Минусов Ян</nobr></td>` + cells(0, 0, 0, 1) + `</tr>` +
		"</table>"

	table, err := ParseStandings(strings.NewReader(page), smallGrid)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	zero, found := table.Find(0)
	require.True(t, found)
	assert.Equal(t, "Нулев", zero.Student.LastName)

	_, found = table.Find(-7)
	assert.True(t, found)
}

func TestParseStandings_MalformedRows(t *testing.T) {
	tests := []struct {
		name string
		row  string
		want error
	}{
		{
			name: "two name parts",
			row:  `<tr ejid="5"><td><nobr>P Иванов</nobr></td>` + cells(0, 0, 0, 0) + `</tr>`,
			want: shared.ErrInvalidFormat,
		},
		{
			name: "missing nobr",
			row:  `<tr ejid="5"><td>P Иванов Иван</td>` + cells(0, 0, 0, 0) + `</tr>`,
			want: shared.ErrInvalidFormat,
		},
		{
			name: "non-numeric ejid",
			row:  `<tr ejid="abc"><td><nobr>P Иванов Иван</nobr></td>` + cells(0, 0, 0, 0) + `</tr>`,
			want: shared.ErrInvalidID,
		},
		{
			name: "wrong cell count",
			row:  `<tr ejid="5"><td><nobr>P Иванов Иван</nobr></td>` + cells(1, 0, 1) + `</tr>`,
			want: shared.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStandings(strings.NewReader("<table>"+tt.row+"</table>"), smallGrid)
			require.Error(t, err)

			var rowErr *RowError
			require.True(t, errors.As(err, &rowErr))
			assert.Equal(t, 0, rowErr.Row)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseStandings_DefaultGridMarks(t *testing.T) {
	flags := make([]int, mark.DefaultGrid.Size())
	flags[24] = 1

	page := "<table>" +
		`<tr ejid="42"><td><nobr>P Сидоров Олег</nobr></td>` + cells(flags...) + `</tr>` +
		"</table>"

	table, err := ParseStandings(strings.NewReader(page), mark.DefaultGrid)
	require.NoError(t, err)

	result, err := table.Personal(42)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Score)
	assert.Equal(t, flags, result.Solved)
}

func TestParseStandings_InvalidGrid(t *testing.T) {
	_, err := ParseStandings(strings.NewReader(standingsPage), mark.Grid{})
	assert.True(t, shared.IsValidation(err))
}

// cells renders problem cells for the given flags.
func cells(flags ...int) string {
	var b strings.Builder
	for i, f := range flags {
		class := "wa"
		if f == 1 {
			class = "ac"
		}
		fmt.Fprintf(&b, `<td title="p%d" class="%s">x</td>`, i, class)
	}
	return b.String()
}
