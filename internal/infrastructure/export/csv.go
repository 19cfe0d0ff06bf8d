// Package export renders standings views into the files and payloads consumed
// outside the service: the ranked results.csv and the dashboard JSON.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lksh/markboard/internal/domain/standings"
)

// DefaultCSVFile is the file name written by the export command.
const DefaultCSVFile = "results.csv"

// CSVContentType is the media type of the ranked export.
const CSVContentType = "text/csv; charset=utf-8"

// WriteCSV writes ranked rows without a header:
// group,last_name,first_name,ejid,mark.
func WriteCSV(w io.Writer, rows []standings.Row) error {
	cw := csv.NewWriter(w)
	for _, row := range rows {
		record := []string{
			row.Group,
			row.LastName,
			row.FirstName,
			strconv.Itoa(row.EJID.Int()),
			strconv.Itoa(row.Mark),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

// WriteCSVFile atomically replaces path with the ranked export.
func WriteCSVFile(path string, rows []standings.Row) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("export: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = WriteCSV(tmp, rows); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("export: close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("export: chmod: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("export: rename: %w", err)
	}
	return nil
}
