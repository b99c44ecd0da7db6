package datasource

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, rows [][]interface{}) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	return f
}

var productRows = [][]interface{}{
	{"PRODUCTO", "Potencia Nominal kW", "Administrativo", "Código"},
	{1, 5, "Ana", "007"},
	{2, 7.5, "Ana", "008"},
	{3, nil, "Luis", "009"},
	{2, 99, "Duplicado", "010"},
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "productos.xlsx")
	f := workbook(t, productRows)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := LoadXLSX(path, "", "")
	require.NoError(t, err)

	assert.Equal(t, "PRODUCTO", table.IDColumn())
	assert.Equal(t, []string{"1", "2", "3"}, table.IDs())
	assert.Equal(t, []string{"PRODUCTO", "Potencia Nominal kW", "Administrativo", "Código"}, table.Columns())

	rec, ok := table.Lookup("2")
	require.True(t, ok)
	assert.Equal(t, 7.5, rec.Values["Potencia Nominal kW"])
	assert.Equal(t, "Ana", rec.Values["Administrativo"])
	assert.Equal(t, "008", rec.Values["Código"])

	rec, ok = table.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, int64(5), rec.Values["Potencia Nominal kW"])

	rec, ok = table.Lookup("3")
	require.True(t, ok)
	_, present := rec.Get("Potencia Nominal kW")
	assert.False(t, present)
}

func TestReadXLSXNamedSheet(t *testing.T) {
	f := workbook(t, productRows)
	_, err := f.NewSheet("Climagas")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Climagas", "A3", &[]interface{}{"REF", "Titular"}))
	require.NoError(t, f.SetSheetRow("Climagas", "A4", &[]interface{}{"A1", "Climagas Madrid S.L."}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	table, err := ReadXLSX(bytes.NewReader(buf.Bytes()), "REF", "Climagas")
	require.NoError(t, err)
	rec, ok := table.Lookup("A1")
	require.True(t, ok)
	assert.Equal(t, "Climagas Madrid S.L.", rec.Values["Titular"])

	_, err = ReadXLSX(bytes.NewReader(buf.Bytes()), "REF", "Missing")
	assert.Error(t, err)
	_, err = ReadXLSX(bytes.NewReader(buf.Bytes()), "NOPE", "")
	assert.Error(t, err)
	_, err = ReadXLSX(bytes.NewReader([]byte("not a workbook")), "", "")
	assert.Error(t, err)
}

func TestLoadTableByExtension(t *testing.T) {
	dir := t.TempDir()

	xlsxPath := filepath.Join(dir, "productos.XLSX")
	f := workbook(t, productRows)
	require.NoError(t, f.SaveAs(xlsxPath))
	require.NoError(t, f.Close())

	csvPath := filepath.Join(dir, "productos.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(productsCSV), 0o644))

	for _, path := range []string{xlsxPath, csvPath} {
		table, err := LoadTable(path, DefaultIDColumn)
		require.NoError(t, err, path)
		assert.Equal(t, []string{"1", "2", "3"}, table.IDs(), path)
	}

	xlsPath := filepath.Join(dir, "productos.xls")
	require.NoError(t, os.WriteFile(xlsPath, []byte("legacy"), 0o644))
	_, err := LoadTable(xlsPath, "")
	if err == nil {
		t.Error("expected an error for a legacy .xls workbook")
	}
}
