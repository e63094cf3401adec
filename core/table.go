package core

import (
	"io"
	"strings"
)

// Table is a spreadsheet decoded into a header row and data rows.
// Every row has exactly len(Headers) cells.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ColumnIndex returns the index of the first header matching one of names
// (case-insensitive, surrounding whitespace ignored), or -1.
func (t Table) ColumnIndex(names ...string) int {
	for i, h := range t.Headers {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, name := range names {
			if h == strings.ToLower(name) {
				return i
			}
		}
	}
	return -1
}

// Cell returns the trimmed value at row/col, or "" when col is out of range.
func (t Table) Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// RowError reports a spreadsheet row that could not be imported. Line is 1-based and counts the header.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// SpreadsheetCodec reads uploaded spreadsheets (xlsx or csv) into a Table and writes tables back as xlsx.
type SpreadsheetCodec interface {
	ReadTable(filename string, r io.Reader) (Table, error)
	WriteXLSX(w io.Writer, sheet string, t Table) error
}
