// Package spreadsheet decodes the uploaded xlsx and csv files and writes xlsx files.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/korean"

	"github.com/classnote/classnote/core"
)

const (
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeXLS  = "application/vnd.ms-excel"
	mimeZip  = "application/zip"
)

var (
	ErrUnsupported = errors.New("unsupported file type, upload an .xlsx or .csv file")
	ErrLegacyXLS   = errors.New("old .xls files are not supported, save the file as .xlsx")
	ErrNoHeader    = errors.New("the file has no header row")
	ErrEncoding    = errors.New("the csv file must be encoded in UTF-8 or CP949 (EUC-KR)")

	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

type Codec struct{}

var _ core.SpreadsheetCodec = Codec{}

func NewCodec() Codec {
	return Codec{}
}

// ReadTable detects the format from the content (falling back to the extension) and decodes it.
// The first non-empty row is the header; blank rows are skipped.
func (Codec) ReadTable(filename string, r io.Reader) (core.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Table{}, errors.Wrap(err, "reading file")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	mtype := mimetype.Detect(data)

	var rows [][]string
	switch {
	case mtype.Is(mimeXLSX) || (mtype.Is(mimeZip) && ext == ".xlsx"):
		rows, err = readXLSX(data)
	case mtype.Is(mimeXLS) || ext == ".xls":
		return core.Table{}, ErrLegacyXLS
	case ext == ".csv" || strings.HasPrefix(mtype.String(), "text/"):
		rows, err = readCSV(data)
	default:
		return core.Table{}, ErrUnsupported
	}
	if err != nil {
		return core.Table{}, err
	}
	return toTable(rows)
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "opening xlsx")
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, errors.Wrap(err, "reading xlsx rows")
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data, err := DecodeText(data)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading csv")
	}
	return rows, nil
}

// DecodeText returns data as UTF-8 without BOM. Text that is not valid UTF-8 is decoded as CP949.
func DecodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, err := korean.EUCKR.NewDecoder().Bytes(data)
	if err != nil || bytes.ContainsRune(decoded, utf8.RuneError) {
		return nil, ErrEncoding
	}
	return decoded, nil
}

func toTable(rows [][]string) (core.Table, error) {
	var table core.Table

	start := -1
	for i, row := range rows {
		if !isBlank(row) {
			start = i
			break
		}
	}
	if start < 0 {
		return table, ErrNoHeader
	}

	headers := rows[start]
	for len(headers) > 0 && strings.TrimSpace(headers[len(headers)-1]) == "" {
		headers = headers[:len(headers)-1]
	}
	table.Headers = make([]string, len(headers))
	for i, h := range headers {
		table.Headers[i] = strings.TrimSpace(h)
	}

	table.Rows = make([][]string, 0, len(rows)-start-1)
	for _, row := range rows[start+1:] {
		if isBlank(row) {
			continue
		}
		cells := make([]string, len(table.Headers))
		copy(cells, row)
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		table.Rows = append(table.Rows, cells)
	}
	return table, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// WriteXLSX writes t as a single sheet workbook.
func (Codec) WriteXLSX(w io.Writer, sheet string, t core.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return errors.Wrap(err, "creating stream writer")
	}
	for i, row := range append([][]string{t.Headers}, t.Rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err = sw.SetRow(cell, values); err != nil {
			return errors.Wrapf(err, "writing row %d", i+1)
		}
	}
	if err = sw.Flush(); err != nil {
		return errors.Wrap(err, "flushing sheet")
	}
	return errors.Wrap(f.Write(w), "writing xlsx")
}
