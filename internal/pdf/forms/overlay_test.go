package forms

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-form-filler/internal/binding"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/custom"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/pdftest"
)

func pageContent(t *testing.T, doc *custom.Document, page *custom.Page) []string {
	t.Helper()
	var parts []string
	arr, ok := doc.ResolveArray(page.Dict.Get("Contents"))
	require.True(t, ok, "/Contents is not an array")
	for _, elem := range arr.Elements {
		stream, ok := doc.ResolveStream(elem)
		require.True(t, ok)
		data, err := doc.Decode(stream)
		require.NoError(t, err)
		parts = append(parts, string(data))
	}
	return parts
}

func TestOverlayLines(t *testing.T) {
	lines := OverlayLines(binding.ValueBinding{
		"NIF":                 "B87512345",
		"Potencia Nominal kW": 7.5,
		"Vacio":               nil,
	})
	assert.Equal(t, []string{"NIF: B87512345", "Potencia Nominal kW: 7.5"}, lines)
}

func TestOverlayOnFormPage(t *testing.T) {
	values := binding.ValueBinding{"NIF": "B87512345", "Administrativo": "Ana"}
	doc, _ := fill(t, pdftest.Form(pdftest.Field{Name: "NIF"}, pdftest.Field{Name: "Otra", Page: 1}), values, PolicyOverlay)

	pages := doc.Pages()
	require.Len(t, pages, 2)

	parts := pageContent(t, doc, pages[0])
	require.Len(t, parts, 3)
	assert.Equal(t, "q\n", parts[0])
	assert.Contains(t, parts[1], "(Template) Tj")

	overlay := parts[2]
	assert.True(t, strings.HasPrefix(overlay, "Q\nq\nBT\n/Helv 10 Tf\n"), overlay)
	assert.Contains(t, overlay, "1 0 0 1 50 800 Tm\n(Administrativo: Ana) Tj")
	assert.Contains(t, overlay, "1 0 0 1 50 786 Tm\n(NIF: B87512345) Tj")
	assert.True(t, strings.HasSuffix(overlay, "ET\nQ"))

	res, ok := doc.ResolveDict(pages[0].Dict.Get("Resources"))
	require.True(t, ok)
	fonts, ok := doc.ResolveDict(res.Get("Font"))
	require.True(t, ok)
	assert.True(t, fonts.Has("F1"))
	assert.True(t, fonts.Has("Helv"))

	// the second page is untouched
	_, isStream := doc.ResolveStream(pages[1].Dict.Get("Contents"))
	assert.True(t, isStream)
}

func TestOverlayWithoutAcroForm(t *testing.T) {
	b := pdftest.New()
	catalog := b.Reserve()
	b.Add("<< /Type /Pages /Kids [3 0 R] /Count 1 /Resources << /Font << /Helv 5 0 R >> >> >>")
	b.Add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 842] /Contents 4 0 R >>")
	b.Add(pdftest.FlateStream("", []byte("0 0 m 10 10 l S")))
	b.Add("<< /Type /Font /Subtype /Type1 /BaseFont /Courier >>")
	b.Set(catalog, "<< /Type /Catalog /Pages 2 0 R >>")

	doc := load(t, b.Bytes(catalog))
	_, err := Synchronize(doc, nil, nil, PolicyOverlay, SyncOptions{Values: binding.ValueBinding{"NIF": "B1"}})
	require.NoError(t, err)

	out, err := custom.Serialize(doc)
	require.NoError(t, err)
	again := load(t, out)

	page := again.Pages()[0]
	parts := pageContent(t, again, page)
	require.Len(t, parts, 3)
	assert.Equal(t, "0 0 m 10 10 l S", parts[1])
	assert.Contains(t, parts[2], "/Helv1 10 Tf")

	// inherited resources were copied onto the page, keeping the old font
	res, ok := page.Dict.Get("Resources").(*custom.Dictionary)
	require.True(t, ok)
	fonts, ok := again.ResolveDict(res.Get("Font"))
	require.True(t, ok)
	assert.True(t, fonts.Has("Helv"))
	assert.True(t, fonts.Has("Helv1"))

	parent, ok := again.ResolveDict(page.Dict.Get("Parent"))
	require.True(t, ok)
	parentFonts, _ := again.ResolveDict(parent.GetDictionary("Resources").Get("Font"))
	assert.False(t, parentFonts.Has("Helv1"))
}

func TestOverlayNothingToDraw(t *testing.T) {
	template := pdftest.Form(pdftest.Field{Name: "NIF"})
	doc := load(t, template)
	require.NoError(t, Overlay(doc, nil))
	assert.False(t, doc.Modified())
}
