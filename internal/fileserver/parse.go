package fileserver

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"sharebridge/internal/fault"
)

// ReadStructured parses the named file as tabular data with a header
// row. sheet selects the sub-table; empty means the first sheet. maxRows
// caps the number of data rows returned, 0 means no cap.
func (s *Share) ReadStructured(name, sheet string, maxRows int) (*StructuredRows, error) {
	path, err := s.Stat(name)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return readExcel(path, sheet, maxRows)
	case ".csv":
		return readCSV(path, csvSheetName(name), maxRows)
	default:
		return nil, fault.Newf(fault.UnsupportedFormat, "file %s is not a readable tabular format", name)
	}
}

// ListSheets enumerates the sub-tables of the named file with their row
// counts (data rows, header excluded).
func (s *Share) ListSheets(name string) ([]TableSheet, error) {
	path, err := s.Stat(name)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return excelSheets(path)
	case ".csv":
		rows, err := readCSV(path, csvSheetName(name), 0)
		if err != nil {
			return nil, err
		}
		return []TableSheet{{Name: rows.Sheet, RowCount: len(rows.Data)}}, nil
	default:
		return nil, fault.Newf(fault.UnsupportedFormat, "file %s is not a readable tabular format", name)
	}
}

// csvSheetName is the pseudo sheet a CSV file exposes: its base name.
func csvSheetName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func readExcel(path, sheet string, maxRows int) (*StructuredRows, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.Parse, "cannot open workbook", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fault.Newf(fault.NotFound, "sheet %s not found", sheet)
	}

	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, fault.Wrap(fault.Parse, "cannot read sheet "+sheet, err)
	}
	return buildRows(raw, sheet, maxRows)
}

func excelSheets(path string) ([]TableSheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.Parse, "cannot open workbook", err)
	}
	defer f.Close()

	var sheets []TableSheet
	for _, name := range f.GetSheetList() {
		raw, err := f.GetRows(name)
		if err != nil {
			return nil, fault.Wrap(fault.Parse, "cannot read sheet "+name, err)
		}
		count := len(raw)
		if count > 0 {
			count-- // header row
		}
		sheets = append(sheets, TableSheet{Name: name, RowCount: count})
	}
	return sheets, nil
}

func readCSV(path, sheet string, maxRows int) (*StructuredRows, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(fault.Access, "cannot open file", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var raw [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Wrap(fault.Parse, "malformed csv", err)
		}
		raw = append(raw, record)
	}
	return buildRows(raw, sheet, maxRows)
}

// buildRows converts a header-first string grid into StructuredRows.
// Empty header cells are dropped, short rows are padded with nulls and
// trailing cells beyond the header width are ignored, so every row ends
// up with exactly the header's key set.
func buildRows(raw [][]string, sheet string, maxRows int) (*StructuredRows, error) {
	if len(raw) == 0 {
		return &StructuredRows{Columns: []string{}, Data: []map[string]any{}, Sheet: sheet}, nil
	}

	type column struct {
		name string
		idx  int
	}
	var columns []column
	for i, h := range raw[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		columns = append(columns, column{name: h, idx: i})
	}
	if len(columns) == 0 {
		return nil, fault.New(fault.Parse, "header row has no named columns")
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}

	data := make([]map[string]any, 0, len(raw)-1)
	for _, row := range raw[1:] {
		if maxRows > 0 && len(data) >= maxRows {
			break
		}
		rec := make(map[string]any, len(columns))
		for _, c := range columns {
			if c.idx < len(row) {
				rec[c.name] = cellValue(row[c.idx])
			} else {
				rec[c.name] = nil
			}
		}
		data = append(data, rec)
	}

	return &StructuredRows{
		Columns: names,
		Data:    data,
		Shape:   [2]int{len(data), len(names)},
		Sheet:   sheet,
	}, nil
}

// cellValue types a raw cell: number, boolean, null or string.
func cellValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return n
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
