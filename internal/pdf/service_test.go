package pdf

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	pdferrors "github.com/a3tai/mcp-pdf-form-filler/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/pdftest"
)

const testCSV = "PRODUCTO;Potencia Nominal kW;Administrativo\n" +
	"1;5;Ana\n" +
	"2;7;Ana\n" +
	"3;3;Luis\n"

const testProfile = `
policy: synthesized
read_only: false
fields:
  "Potencia Nominal kW": "Potencia Nominal kW"
  "Administrativo": "Administrativo"
aggregation:
  "Potencia Nominal kW": max
groups:
  climagas:
    "Textfield-110": "Climagas Madrid S.L."
`

// newTestService creates a workspace holding a template, a data file and
// a profile
func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()

	template := pdftest.Form(
		pdftest.Field{Name: "Potencia Nominal kW"},
		pdftest.Field{Name: "Administrativo"},
		pdftest.Field{Name: "Textfield-110"},
		pdftest.Field{Name: "Acepto", Type: "Btn", OnState: "Si"},
	)
	files := map[string][]byte{
		"template.pdf":  template,
		"productos.csv": []byte(testCSV),
		"profile.yaml":  []byte(testProfile),
		"notes.txt":     []byte("ignored"),
	}
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}

	service, err := NewService(10*1024*1024, dir, Defaults{})
	require.NoError(t, err)
	return service, dir
}

func TestNewService(t *testing.T) {
	service, dir := newTestService(t)

	if service.reader == nil || service.validator == nil || service.formReader == nil {
		t.Fatal("service components should not be nil")
	}
	if service.Directory() != dir {
		t.Errorf("Directory() = %s, want %s", service.Directory(), dir)
	}
	if service.GetMaxFileSize() != 10*1024*1024 {
		t.Errorf("unexpected max file size %d", service.GetMaxFileSize())
	}

	if _, err := NewService(1024, "", Defaults{}); err == nil {
		t.Error("expected error for empty directory")
	}
	if _, err := NewService(1024, dir, Defaults{Policy: "print"}); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestService_ValidateConfiguration(t *testing.T) {
	tests := []struct {
		name        string
		maxFileSize int64
		errorMsg    string
	}{
		{name: "valid configuration", maxFileSize: 1024 * 1024},
		{name: "zero max file size", maxFileSize: 0, errorMsg: "maxFileSize must be greater than 0"},
		{name: "negative max file size", maxFileSize: -1, errorMsg: "maxFileSize must be greater than 0"},
		{name: "max file size too large", maxFileSize: 2 * 1024 * 1024 * 1024, errorMsg: "maxFileSize cannot exceed 1GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewService(tt.maxFileSize, t.TempDir(), Defaults{})
			if err != nil {
				t.Fatal(err)
			}
			err = service.ValidateConfiguration()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.errorMsg {
				t.Errorf("expected error %q, got %v", tt.errorMsg, err)
			}
		})
	}
}

func TestService_PDFFillFormFromData(t *testing.T) {
	service, dir := newTestService(t)

	result, err := service.PDFFillForm(context.Background(), PDFFillFormRequest{
		TemplatePath: "template.pdf",
		DataPath:     "productos.csv",
		ProfilePath:  "profile.yaml",
		IDs:          []string{"1", "2"},
		Group:        "climagas",
		Verify:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "pdf_producto_1_2.pdf"), result.OutputPath)
	assert.FileExists(t, result.OutputPath)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, "synthesized", result.Policy)
	assert.Equal(t, "7", result.Values["Potencia Nominal kW"])
	assert.Equal(t, "Climagas Madrid S.L.", result.Values["Textfield-110"])
	assert.ElementsMatch(t, []string{"Potencia Nominal kW", "Administrativo", "Textfield-110"}, result.Written)

	require.NotNil(t, result.Verification)
	assert.True(t, result.Verification.OK, "%v", result.Verification.Mismatches)
	assert.Equal(t, "Climagas Madrid S.L.", result.Verification.Report.Fields["Textfield-110"])
	assert.Equal(t, 1, result.Verification.Report.Pages)
}

func TestService_PDFFillFormValues(t *testing.T) {
	service, dir := newTestService(t)
	readOnly := true

	result, err := service.PDFFillForm(context.Background(), PDFFillFormRequest{
		TemplatePath: filepath.Join(dir, "template.pdf"),
		Values:       map[string]interface{}{"Administrativo": "Luis", "Acepto": true},
		Policy:       "viewer",
		ReadOnly:     &readOnly,
		OutputPath:   "out/filled.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "filled.pdf"), result.OutputPath)
	assert.Equal(t, "viewer", result.Policy)

	fields, err := service.PDFListFields(PDFListFieldsRequest{Path: "out/filled.pdf"})
	require.NoError(t, err)
	assert.True(t, fields.NeedAppearances)

	byName := make(map[string]FieldInfo)
	for _, f := range fields.Fields {
		byName[f.Name] = f
	}
	assert.Equal(t, "Luis", byName["Administrativo"].Value)
	assert.True(t, byName["Administrativo"].ReadOnly)
	assert.Equal(t, "Si", byName["Acepto"].Value)
	assert.False(t, byName["Textfield-110"].ReadOnly)
}

func TestService_PDFFillFormDefaultOutputName(t *testing.T) {
	service, dir := newTestService(t)

	result, err := service.PDFFillForm(context.Background(), PDFFillFormRequest{
		TemplatePath: "template.pdf",
		Values:       map[string]interface{}{"Administrativo": "Ana"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "filled_template.pdf"), result.OutputPath)
}

func TestService_PDFFillFormFailuresWriteNothing(t *testing.T) {
	tests := []struct {
		name string
		req  PDFFillFormRequest
		kind pdferrors.Kind
	}{
		{
			name: "record not found",
			req:  PDFFillFormRequest{DataPath: "productos.csv", IDs: []string{"9999"}},
			kind: pdferrors.KindRecordNotFound,
		},
		{
			name: "ambiguous batch",
			req:  PDFFillFormRequest{DataPath: "productos.csv", IDs: []string{"1", "3"}},
			kind: pdferrors.KindAmbiguousAggregation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, dir := newTestService(t)
			tt.req.TemplatePath = "template.pdf"
			tt.req.OutputPath = "result.pdf"

			result, err := service.PDFFillForm(context.Background(), tt.req)
			assert.Nil(t, result)
			assert.True(t, pdferrors.IsKind(err, tt.kind), "got %v", err)
			assert.NoFileExists(t, filepath.Join(dir, "result.pdf"))
		})
	}
}

func TestService_PDFFillFormRejectsBadRequests(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  PDFFillFormRequest
	}{
		{name: "no values", req: PDFFillFormRequest{TemplatePath: "template.pdf"}},
		{name: "template outside workspace", req: PDFFillFormRequest{TemplatePath: "../template.pdf", Values: map[string]interface{}{"a": "b"}}},
		{name: "output outside workspace", req: PDFFillFormRequest{TemplatePath: "template.pdf", Values: map[string]interface{}{"a": "b"}, OutputPath: "/tmp/../etc/x.pdf"}},
		{name: "unknown policy", req: PDFFillFormRequest{TemplatePath: "template.pdf", Values: map[string]interface{}{"a": "b"}, Policy: "print"}},
		{name: "unknown group", req: PDFFillFormRequest{TemplatePath: "template.pdf", Values: map[string]interface{}{"a": "b"}, Group: "otra"}},
		{name: "missing template", req: PDFFillFormRequest{TemplatePath: "missing.pdf", Values: map[string]interface{}{"a": "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.PDFFillForm(ctx, tt.req); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestService_PDFFillFormCancelled(t *testing.T) {
	service, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.PDFFillForm(ctx, PDFFillFormRequest{
		TemplatePath: "template.pdf",
		Values:       map[string]interface{}{"Administrativo": "Ana"},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_PDFListFields(t *testing.T) {
	service, _ := newTestService(t)

	result, err := service.PDFListFields(PDFListFieldsRequest{Path: "template.pdf"})
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalCount)
	assert.False(t, result.NeedAppearances)
	for _, f := range result.Fields {
		assert.Equal(t, 1, f.Widgets, f.Name)
		assert.Equal(t, []int{1}, f.Pages, f.Name)
		if f.Name == "Acepto" {
			assert.Equal(t, "checkbox", f.Type)
			assert.Equal(t, "Si", f.OnState)
		}
	}
}

func TestService_PDFListRecords(t *testing.T) {
	service, _ := newTestService(t)

	result, err := service.PDFListRecords(PDFListRecordsRequest{Path: "productos.csv", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, "PRODUCTO", result.IDColumn)
	assert.Equal(t, []string{"1", "2"}, result.IDs)
	assert.Equal(t, 3, result.TotalCount)
	assert.True(t, result.Truncated)
	assert.Equal(t, []string{"PRODUCTO", "Potencia Nominal kW", "Administrativo"}, result.Columns)

	_, err = service.PDFListRecords(PDFListRecordsRequest{Path: "productos.csv", IDColumn: "REF"})
	assert.Error(t, err)
}

func TestService_FillFromWorkbook(t *testing.T) {
	service, dir := newTestService(t)

	book := excelize.NewFile()
	for i, row := range [][]interface{}{
		{"PRODUCTO", "Potencia Nominal kW", "Administrativo"},
		{1, 5, "Ana"},
		{2, 7, "Ana"},
	} {
		row := row
		require.NoError(t, book.SetSheetRow("Sheet1", "A"+strconv.Itoa(i+1), &row))
	}
	require.NoError(t, book.SaveAs(filepath.Join(dir, "productos.xlsx")))
	require.NoError(t, book.Close())

	records, err := service.PDFListRecords(PDFListRecordsRequest{Path: "productos.xlsx"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, records.IDs)

	result, err := service.PDFFillForm(context.Background(), PDFFillFormRequest{
		TemplatePath: "template.pdf",
		DataPath:     "productos.xlsx",
		ProfilePath:  "profile.yaml",
		IDs:          []string{"1", "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "7", result.Values["Potencia Nominal kW"])
	assert.Equal(t, "Ana", result.Values["Administrativo"])
}

func TestService_DefaultsApplyWithoutProfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "template.pdf"), pdftest.Form(pdftest.Field{Name: "Administrativo"}), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte("REF,Administrativo\nA1,Ana\n"), 0644))

	service, err := NewService(1024*1024, dir, Defaults{Policy: "overlay", IDColumn: "REF"})
	require.NoError(t, err)
	assert.Equal(t, "overlay", service.DefaultPolicy().String())

	result, err := service.PDFFillForm(context.Background(), PDFFillFormRequest{
		TemplatePath: "template.pdf",
		DataPath:     "data.csv",
		IDs:          []string{"A1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "overlay", result.Policy)
	assert.Equal(t, "Ana", result.Values["Administrativo"])
	assert.True(t, strings.HasSuffix(result.OutputPath, "pdf_producto_A1.pdf"))
}

func TestService_VerifyOutput(t *testing.T) {
	service, _ := newTestService(t)

	result, err := service.VerifyOutput(PDFVerifyOutputRequest{
		Path:     "template.pdf",
		Expected: map[string]string{"Administrativo": "Ana"},
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	require.Len(t, result.Mismatches, 1)
	assert.Equal(t, "Administrativo", result.Mismatches[0].Field)

	_, err = service.VerifyOutput(PDFVerifyOutputRequest{Path: "productos.csv"})
	assert.Error(t, err)
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.pdf")

	require.NoError(t, writeAtomic(path, []byte("first")))
	require.NoError(t, writeAtomic(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMapTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 data"), 0644))

	data, release, err := mapTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 data", string(data))
	release()

	empty := filepath.Join(dir, "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	data, release, err = mapTemplate(empty)
	require.NoError(t, err)
	assert.Empty(t, data)
	release()

	_, _, err = mapTemplate(filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)
}
