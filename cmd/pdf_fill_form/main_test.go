package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/pdftest"
)

const testProfile = `
id_column: REF
policy: synthesized
output_pattern: ficha_{id}.pdf
fields:
  "Potencia Nominal kW": Potencia
  "Titular": Titular
aggregation:
  "Potencia Nominal kW": sum
groups:
  climagas:
    "Instalador": "Climagas Madrid S.L."
`

func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string][]byte{
		"ficha.pdf": pdftest.Form(
			pdftest.Field{Name: "Potencia Nominal kW"},
			pdftest.Field{Name: "Titular"},
			pdftest.Field{Name: "Instalador"},
		),
		"datos.csv":  []byte("REF;Potencia;Titular\nA1;5;Ana\nA2;7;Ana\nB1;3;Luis\n"),
		"ficha.yaml": []byte(testProfile),
	}
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-t", "a.pdf", "-d", "b.csv", "-i", "1,2", "--read-only", "--format", "json"})
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", opts.Template)
	assert.Equal(t, []string{"1", "2"}, opts.IDs)
	assert.True(t, opts.ReadOnly)
	assert.True(t, opts.readOnlySet)
	assert.Equal(t, ".", opts.OutDir)

	tests := [][]string{
		{"-d", "b.csv", "-i", "1"},
		{"-t", "a.pdf", "-i", "1"},
		{"-t", "a.pdf", "-d", "b.csv"},
		{"-t", "a.pdf", "-d", "b.csv", "-i", "1", "--each", "-o", "x.pdf"},
		{"-t", "a.pdf", "-d", "b.csv", "-i", "1", "--format", "xml"},
		{"--unknown"},
	}
	for _, args := range tests {
		if _, err := parseFlags(args); err == nil {
			t.Errorf("parseFlags(%v): expected an error", args)
		}
	}
}

func TestRunAggregatesIntoOneDocument(t *testing.T) {
	dir := writeFixtures(t)

	outputs, err := run(&options{
		Template: filepath.Join(dir, "ficha.pdf"),
		Data:     filepath.Join(dir, "datos.csv"),
		Profile:  filepath.Join(dir, "ficha.yaml"),
		IDs:      []string{"A1", "A2"},
		Group:    "climagas",
		OutDir:   filepath.Join(dir, "out"),
		Verify:   true,
	})
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	out := outputs[0]
	assert.Equal(t, filepath.Join(dir, "out", "ficha_A1_A2.pdf"), out.OutputPath)
	assert.Equal(t, "synthesized", out.Policy)
	assert.Equal(t, "12", out.Values["Potencia Nominal kW"])
	assert.Equal(t, "Ana", out.Values["Titular"])
	assert.Equal(t, "Climagas Madrid S.L.", out.Values["Instalador"])
	assert.Empty(t, out.Mismatches)
	assert.FileExists(t, out.OutputPath)
}

func TestRunEach(t *testing.T) {
	dir := writeFixtures(t)

	outputs, err := run(&options{
		Template: filepath.Join(dir, "ficha.pdf"),
		Data:     filepath.Join(dir, "datos.csv"),
		Profile:  filepath.Join(dir, "ficha.yaml"),
		IDs:      []string{"A1", "B1"},
		Policy:   "viewer",
		OutDir:   dir,
		Each:     true,
	})
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Equal(t, "Ana", outputs[0].Values["Titular"])
	assert.Equal(t, "Luis", outputs[1].Values["Titular"])
	assert.Equal(t, "viewer", outputs[1].Policy)
	assert.FileExists(t, filepath.Join(dir, "ficha_B1.pdf"))
}

func TestRunFailureWritesNothing(t *testing.T) {
	dir := writeFixtures(t)
	out := filepath.Join(dir, "out.pdf")

	// A1 and B1 disagree on Titular, which has no aggregation rule
	_, err := run(&options{
		Template: filepath.Join(dir, "ficha.pdf"),
		Data:     filepath.Join(dir, "datos.csv"),
		Profile:  filepath.Join(dir, "ficha.yaml"),
		IDs:      []string{"A1", "B1"},
		Output:   out,
	})
	require.Error(t, err)
	assert.NoFileExists(t, out)

	_, err = run(&options{
		Template: filepath.Join(dir, "ficha.pdf"),
		Data:     filepath.Join(dir, "datos.csv"),
		Profile:  filepath.Join(dir, "ficha.yaml"),
		IDs:      []string{"ZZ"},
		Output:   out,
	})
	require.Error(t, err)
	assert.NoFileExists(t, out)
}

func TestWriteResults(t *testing.T) {
	outputs := []FillOutput{{
		IDs:        []string{"A1"},
		OutputPath: "ficha_A1.pdf",
		Policy:     "synthesized",
		Values:     map[string]string{"Titular": "Ana"},
		Warnings:   []string{"checkbox has no on state"},
	}}

	var text bytes.Buffer
	require.NoError(t, writeResults(&text, "text", outputs))
	assert.Contains(t, text.String(), "ficha_A1.pdf  (ids A1, policy synthesized, 1 fields)")
	assert.Contains(t, text.String(), "warning: checkbox has no on state")

	var js bytes.Buffer
	require.NoError(t, writeResults(&js, "json", outputs))
	var decoded []FillOutput
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, outputs, decoded)
}
