package ejudge

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lksh/markboard/internal/domain/mark"
	"github.com/lksh/markboard/internal/domain/shared"
	"github.com/lksh/markboard/internal/domain/standings"
)

// ══════════════════════════════════════════════════════════════════════════════
// STANDINGS PARSER
// ══════════════════════════════════════════════════════════════════════════════

const (
	// studentRowSelector matches standings rows that belong to a participant.
	studentRowSelector = "tr[ejid]"

	// problemCellSelector matches per-problem cells; other cells are totals and names.
	problemCellSelector = "td[title]"

	// solvedClass marks an accepted problem.
	solvedClass = "ac"
)

// ErrNoTable is returned when the page has no <table> element.
var ErrNoTable = shared.WrapError("ejudge", "Parse", shared.ErrInvalidFormat,
	"standings table not found", errors.New("no <table> element"))

// RowError describes a standings row that could not be parsed.
type RowError struct {
	Row  int    // 0-based index among participant rows
	EJID string // raw ejid attribute
	Err  error
}

// Error implements the error interface.
func (e *RowError) Error() string {
	return fmt.Sprintf("ejudge: standings row %d (ejid %q): %v", e.Row, e.EJID, e.Err)
}

// Unwrap returns the underlying error.
func (e *RowError) Unwrap() error {
	return e.Err
}

// ParseStandings extracts the ordered student table from a standings page.
//
// Only the first <table> is inspected. Every row carrying an ejid attribute
// is a student; the first <nobr> holds "group last_name first_name" and the
// cells with a title attribute are the problems in grid order. A problem is
// solved iff its class list is exactly "ac".
func ParseStandings(r io.Reader, grid mark.Grid) (*standings.Table, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, shared.WrapError("ejudge", "Parse", shared.ErrInvalidFormat, "failed to read standings page", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	result := standings.NewTable(grid)
	var parseErr error

	table.Find(studentRowSelector).EachWithBreak(func(i int, row *goquery.Selection) bool {
		rawID, _ := row.Attr("ejid")

		student, err := parseStudent(row, rawID)
		if err == nil {
			err = result.Add(student, parseSolved(row))
		}
		if err != nil {
			parseErr = &RowError{Row: i, EJID: rawID, Err: err}
			return false
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return result, nil
}

// parseStudent reads the identity of a participant row.
func parseStudent(row *goquery.Selection, rawID string) (standings.Student, error) {
	ejid, err := shared.ParseEJID(rawID)
	if err != nil {
		return standings.Student{}, err
	}

	nobr := row.Find("nobr").First()
	if nobr.Length() == 0 {
		return standings.Student{}, shared.NewDomainError("ejudge", "Parse", shared.ErrInvalidFormat,
			"participant name cell not found")
	}

	fields := strings.Fields(nobr.Contents().First().Text())
	if len(fields) != 3 {
		return standings.Student{}, shared.NewDomainError("ejudge", "Parse", shared.ErrInvalidFormat,
			fmt.Sprintf("participant name must be \"group last first\", got %d fields", len(fields)))
	}

	return standings.Student{
		Group:     fields[0],
		LastName:  fields[1],
		FirstName: fields[2],
		EJID:      ejid,
	}, nil
}

// parseSolved converts the problem cells of a row to 0/1 flags.
func parseSolved(row *goquery.Selection) []int {
	cells := row.Find(problemCellSelector)
	solved := make([]int, 0, cells.Length())
	cells.Each(func(_ int, cell *goquery.Selection) {
		solved = append(solved, solvedFlag(cell))
	})
	return solved
}

// solvedFlag reports 1 when the class attribute is exactly "ac".
func solvedFlag(cell *goquery.Selection) int {
	class, _ := cell.Attr("class")
	classes := strings.Fields(class)
	if len(classes) == 1 && classes[0] == solvedClass {
		return 1
	}
	return 0
}
