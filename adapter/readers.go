// readers.go - XLSX and CSV sources for the adapter.
//
// Both readers produce a Table: first row headers, remaining rows data.
// Which reader to use is decided by file extension at the call site.
package adapter

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadTable picks a reader by file extension (.xlsx or .csv).
func ReadTable(r io.Reader, fileName string) (Table, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx":
		return ReadXLSX(r)
	case ".csv":
		return ReadCSV(r)
	default:
		return Table{}, fmt.Errorf("unsupported file type %q (want .xlsx or .csv)", filepath.Ext(fileName))
	}
}

// ReadXLSX reads the first sheet of an XLSX workbook.
func ReadXLSX(r io.Reader) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	return Table{Columns: rows[0], Rows: rows[1:]}, nil
}

// ReadCSV reads a comma-separated source. Rows may be ragged.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("csv source is empty")
	}

	return Table{Columns: rows[0], Rows: rows[1:]}, nil
}
