package datasource

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// LoadXLSX reads one sheet of the workbook at path. An empty sheet name
// selects the first sheet.
func LoadXLSX(path, idColumn, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return readSheet(f, idColumn, sheet)
}

// ReadXLSX parses workbook data. Cells are read unformatted, so numbers
// arrive as written and text codes keep their leading zeros.
func ReadXLSX(r io.Reader, idColumn, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workbook: %w", err)
	}
	defer f.Close()
	return readSheet(f, idColumn, sheet)
}

func readSheet(f *excelize.File, idColumn, sheet string) (*Table, error) {
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	// leading blank rows are skipped so the header can sit below a title gap
	for len(rows) > 0 && len(rows[0]) == 0 {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}
	return newTable(rows, idColumn)
}
