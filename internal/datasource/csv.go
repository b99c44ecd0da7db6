// Package datasource reads the records and mapping profiles a form is
// filled from.
package datasource

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/a3tai/mcp-pdf-form-filler/internal/binding"
)

// DefaultIDColumn names the column records are addressed by
const DefaultIDColumn = "PRODUCTO"

// Table is a data sheet loaded into memory, keyed by its id column.
type Table struct {
	idColumn string
	columns  []string
	records  map[string]binding.DataRecord
	order    []string
}

// LoadTable reads a data file, choosing the format from its extension:
// .xlsx and .xlsm are read as workbooks, anything else as CSV.
func LoadTable(path, idColumn string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(path, idColumn, "")
	case ".xls":
		return nil, fmt.Errorf("legacy .xls workbooks are not supported, save %s as .xlsx", filepath.Base(path))
	default:
		return LoadCSV(path, idColumn)
	}
}

// LoadCSV reads the CSV file at path
func LoadCSV(path, idColumn string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, idColumn)
}

// ReadCSV parses CSV data. The delimiter (';', ',' or tab) is detected
// from the header line. Empty cells are left out of the record, numeric
// cells become int64 or float64.
func ReadCSV(r io.Reader, idColumn string) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV data is empty")
	}
	return newTable(rows, idColumn)
}

// newTable keys rows by the id column found in the first row
func newTable(rows [][]string, idColumn string) (*Table, error) {
	if idColumn == "" {
		idColumn = DefaultIDColumn
	}
	header := make([]string, len(rows[0]))
	idIndex := -1
	for i, name := range rows[0] {
		header[i] = strings.TrimSpace(name)
		if header[i] == idColumn {
			idIndex = i
		}
	}
	if idIndex < 0 {
		return nil, fmt.Errorf("id column %q not found in header", idColumn)
	}

	t := &Table{
		idColumn: idColumn,
		columns:  header,
		records:  make(map[string]binding.DataRecord),
	}

	for _, row := range rows[1:] {
		if idIndex >= len(row) {
			continue
		}
		id := normalizeID(row[idIndex])
		if id == "" {
			continue
		}
		if _, dup := t.records[id]; dup {
			// the first row for an identifier wins
			continue
		}

		values := make(map[string]binding.Value, len(header))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			if v, ok := cellValue(cell); ok {
				values[header[i]] = v
			}
		}
		t.records[id] = binding.DataRecord{ID: id, Values: values}
		t.order = append(t.order, id)
	}
	return t, nil
}

// Lookup returns the record with identifier id
func (t *Table) Lookup(id string) (binding.DataRecord, bool) {
	rec, ok := t.records[normalizeID(id)]
	return rec, ok
}

// IDs returns the identifiers in file order
func (t *Table) IDs() []string {
	return append([]string(nil), t.order...)
}

// Columns returns the header names
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// IDColumn returns the name of the identifier column
func (t *Table) IDColumn() string { return t.idColumn }

// Len returns the number of records
func (t *Table) Len() int { return len(t.order) }

func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, c := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(c))); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

// normalizeID trims an identifier and drops a zero fraction, so "12",
// " 12 " and "12.0" address the same record.
func normalizeID(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".,"); i > 0 && strings.Trim(s[i+1:], "0") == "" {
		if _, err := strconv.ParseInt(s[:i], 10, 64); err == nil {
			return s[:i]
		}
	}
	return s
}

func cellValue(cell string) (binding.Value, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil, false
	}
	// codes with leading zeros stay text
	if len(s) > 1 && s[0] == '0' && s[1] != '.' && s[1] != ',' {
		return s, true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, ok := binding.ParseNumber(s); ok && strings.ContainsAny(s, ".,") {
		return f, true
	}
	return s, true
}
