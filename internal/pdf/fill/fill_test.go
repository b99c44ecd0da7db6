package fill

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-form-filler/internal/binding"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/custom"
	pdferrors "github.com/a3tai/mcp-pdf-form-filler/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/forms"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/pdftest"
)

type records map[string]binding.DataRecord

func (r records) Lookup(id string) (binding.DataRecord, bool) {
	rec, ok := r[id]
	return rec, ok
}

func (r records) IDs() []string {
	var ids []string
	for id := range r {
		ids = append(ids, id)
	}
	return ids
}

func products() records {
	row := func(id string, kw int64, admin string) binding.DataRecord {
		return binding.DataRecord{ID: id, Values: map[string]binding.Value{
			"PRODUCTO":            id,
			"Potencia Nominal kW": kw,
			"Administrativo":      admin,
			"Empresa":             "Old Name",
		}}
	}
	return records{
		"1": row("1", 5, "Ana"),
		"2": row("2", 7, "Ana"),
		"3": row("3", 3, "Luis"),
	}
}

func template() []byte {
	return pdftest.Form(
		pdftest.Field{Name: "Potencia Nominal kW"},
		pdftest.Field{Name: "Administrativo"},
		pdftest.Field{Name: "Textfield-110"},
		pdftest.Field{Name: "NIF"},
	)
}

var mapping = map[string]string{
	"Potencia Nominal kW": "Potencia Nominal kW",
	"Administrativo":      "Administrativo",
	"Textfield-110":       "Empresa",
}

func fieldValues(t *testing.T, pdf []byte) map[string]string {
	t.Helper()
	doc, err := custom.Load(pdf)
	require.NoError(t, err)
	index, err := forms.Resolve(doc)
	require.NoError(t, err)

	out := make(map[string]string)
	for _, f := range index.Fields() {
		out[f.Name] = f.Value
	}
	return out
}

func TestFillFormSingleRecord(t *testing.T) {
	res, err := FillForm(template(), Request{
		FieldToColumn: mapping,
		SelectedIDs:   []string{"2"},
		Policy:        forms.PolicySynthesized,
		Source:        products(),
	})
	require.NoError(t, err)

	values := fieldValues(t, res.PDF)
	assert.Equal(t, "7", values["Potencia Nominal kW"])
	assert.Equal(t, "Ana", values["Administrativo"])
	assert.Equal(t, "Old Name", values["Textfield-110"])
	assert.Equal(t, "", values["NIF"])
	assert.ElementsMatch(t, []string{"Potencia Nominal kW", "Administrativo", "Textfield-110"}, res.Written)
	assert.Equal(t, "7", res.Stored["Potencia Nominal kW"])
	assert.Empty(t, res.Warnings)
	assert.True(t, bytes.HasPrefix(res.PDF, template()))
}

func TestFillFormBatchAggregation(t *testing.T) {
	tests := []struct {
		rule binding.AggregationRule
		want string
	}{
		{binding.RuleMax, "7"},
		{binding.RuleSum, "15"},
		{binding.RuleFirst, "5"},
	}

	for _, tt := range tests {
		t.Run(tt.rule.String(), func(t *testing.T) {
			res, err := FillForm(template(), Request{
				FieldToColumn: map[string]string{"Potencia Nominal kW": "Potencia Nominal kW"},
				SelectedIDs:   []string{"1", "2", "3"},
				Aggregation:   map[string]binding.AggregationRule{"Potencia Nominal kW": tt.rule},
				Policy:        forms.PolicyViewerRegenerate,
				Source:        products(),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, fieldValues(t, res.PDF)["Potencia Nominal kW"])
		})
	}
}

func TestFillFormReportsImplicitMerge(t *testing.T) {
	res, err := FillForm(template(), Request{
		FieldToColumn: map[string]string{"Potencia Nominal kW": "Potencia Nominal kW", "Administrativo": "Administrativo"},
		SelectedIDs:   []string{"1", "2"},
		Aggregation:   map[string]binding.AggregationRule{"Potencia Nominal kW": binding.RuleMax},
		Policy:        forms.PolicyViewerRegenerate,
		Source:        products(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", fieldValues(t, res.PDF)["Administrativo"])
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "Administrativo", res.Warnings[0].Field)
}

func TestFillFormAmbiguousBatch(t *testing.T) {
	res, err := FillForm(template(), Request{
		FieldToColumn: mapping,
		SelectedIDs:   []string{"1", "3"},
		Source:        products(),
	})
	assert.Nil(t, res)
	assert.True(t, pdferrors.IsKind(err, pdferrors.KindAmbiguousAggregation))
}

func TestFillFormRecordNotFound(t *testing.T) {
	res, err := FillForm(template(), Request{
		FieldToColumn: mapping,
		SelectedIDs:   []string{"9999"},
		Source:        products(),
	})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, pdferrors.IsKind(err, pdferrors.KindRecordNotFound))
	assert.Contains(t, err.Error(), "9999")
}

func TestFillFormGroupDefaultsOverride(t *testing.T) {
	res, err := FillForm(template(), Request{
		FieldToColumn: mapping,
		SelectedIDs:   []string{"1"},
		GroupDefaults: map[string]binding.Value{"Textfield-110": "Climagas Madrid S.L."},
		Policy:        forms.PolicySynthesized,
		Source:        products(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Climagas Madrid S.L.", res.Binding["Textfield-110"])
	assert.Equal(t, "Climagas Madrid S.L.", fieldValues(t, res.PDF)["Textfield-110"])
}

func TestFillValuesEmptyBindingIsNoOp(t *testing.T) {
	for _, policy := range []forms.RenderPolicy{forms.PolicyViewerRegenerate, forms.PolicySynthesized, forms.PolicyOverlay} {
		res, err := FillValues(template(), binding.ValueBinding{}, Options{Policy: policy})
		require.NoError(t, err)
		assert.True(t, bytes.Equal(template(), res.PDF), policy.String())
	}
}

func TestFillValuesNIFScenario(t *testing.T) {
	res, err := FillValues(pdftest.Form(pdftest.Field{Name: "NIF"}),
		binding.ValueBinding{"NIF": "B87512345"}, Options{Policy: forms.PolicySynthesized})
	require.NoError(t, err)

	doc, err := custom.Load(res.PDF)
	require.NoError(t, err)
	index, err := forms.Resolve(doc)
	require.NoError(t, err)

	nif, ok := index.Lookup("NIF")
	require.True(t, ok)
	assert.Equal(t, "B87512345", nif.Value)

	ap, ok := doc.ResolveDict(nif.Widgets[0].Dict().Get("AP"))
	require.True(t, ok)
	stream, ok := doc.ResolveStream(ap.Get("N"))
	require.True(t, ok)
	data, err := doc.Decode(stream)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Contains(t, string(data), "(B87512345) Tj")
}

func TestFillValuesSameNameWidgets(t *testing.T) {
	tmpl := pdftest.Form(
		pdftest.Field{Name: "NIF", Value: "(old)"},
		pdftest.Field{Name: "NIF", Value: "(old)", Page: 1},
	)
	for _, policy := range []forms.RenderPolicy{forms.PolicyViewerRegenerate, forms.PolicySynthesized} {
		res, err := FillValues(tmpl, binding.ValueBinding{"NIF": "B87512345"}, Options{Policy: policy})
		require.NoError(t, err)

		doc, err := custom.Load(res.PDF)
		require.NoError(t, err)
		index, err := forms.Resolve(doc)
		require.NoError(t, err)
		nif, ok := index.Lookup("NIF")
		require.True(t, ok)
		require.Len(t, nif.Widgets, 2)
		for _, w := range nif.Widgets {
			v, ok := doc.ResolveString(w.Dict().Get("V"))
			if !ok || forms.DecodeTextString(v) != "B87512345" {
				t.Errorf("%s: widget on page %d has /V %q", policy, w.Page, v)
			}
		}
	}
}

func TestFillValuesReadOnly(t *testing.T) {
	res, err := FillValues(template(), binding.ValueBinding{"NIF": "B1"}, Options{ReadOnly: true})
	require.NoError(t, err)

	doc, err := custom.Load(res.PDF)
	require.NoError(t, err)
	index, err := forms.Resolve(doc)
	require.NoError(t, err)
	nif, _ := index.Lookup("NIF")
	assert.True(t, nif.ReadOnly())
}

func TestFillValuesCorruptTemplate(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("not a pdf"), []byte("%PDF-1.7\ngarbage without objects")} {
		res, err := FillValues(data, binding.ValueBinding{"NIF": "x"}, Options{})
		assert.Nil(t, res)
		assert.True(t, pdferrors.IsKind(err, pdferrors.KindCorruptDocument), "%q: %v", data, err)
	}
}

func TestFillValuesEncryptedTemplate(t *testing.T) {
	b := pdftest.New()
	catalog := b.Reserve()
	b.Add("<< /Type /Pages /Kids [] /Count 0 >>")
	b.Add("<< /Filter /Standard /V 1 /R 2 /O (x) /U (y) /P -4 >>")
	b.Set(catalog, "<< /Type /Catalog /Pages 2 0 R >>")
	b.TrailerEntry("/Encrypt 3 0 R")

	_, err := FillValues(b.Bytes(catalog), binding.ValueBinding{"NIF": "x"}, Options{})
	assert.True(t, pdferrors.IsKind(err, pdferrors.KindCorruptDocument))
}

func TestFillValuesNoFormFields(t *testing.T) {
	b := pdftest.New()
	catalog := b.Reserve()
	b.Add("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.Add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 842] /Contents 4 0 R /Resources << >> >>")
	b.Add(pdftest.Stream("", []byte("BT ET")))
	b.Set(catalog, "<< /Type /Catalog /Pages 2 0 R >>")
	plain := b.Bytes(catalog)
	values := binding.ValueBinding{"NIF": "B87512345"}

	for _, policy := range []forms.RenderPolicy{forms.PolicyViewerRegenerate, forms.PolicySynthesized} {
		res, err := FillValues(plain, values, Options{Policy: policy})
		assert.Nil(t, res)
		assert.True(t, pdferrors.IsKind(err, pdferrors.KindNoFormFields), policy.String())
	}

	res, err := FillValues(plain, values, Options{Policy: forms.PolicyOverlay})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Empty(t, res.Written)

	doc, err := custom.Load(res.PDF)
	require.NoError(t, err)
	contents, ok := doc.ResolveArray(doc.Pages()[0].Dict.Get("Contents"))
	require.True(t, ok)
	last, ok := doc.ResolveStream(contents.Get(contents.Len() - 1))
	require.True(t, ok)
	data, err := doc.Decode(last)
	require.NoError(t, err)
	assert.Contains(t, string(data), "(NIF: B87512345) Tj")
}

func TestFillValuesRecoveredTemplate(t *testing.T) {
	data := pdftest.Form(pdftest.Field{Name: "NIF"})
	// point startxref at the header so the table has to be rebuilt
	idx := bytes.LastIndex(data, []byte("startxref\n"))
	require.Greater(t, idx, 0)
	damaged := append(append([]byte(nil), data[:idx]...), []byte("startxref\n5\n%EOF\n")...)

	res, err := FillValues(damaged, binding.ValueBinding{"NIF": "B1"}, Options{Policy: forms.PolicySynthesized})
	require.NoError(t, err)
	assert.True(t, res.Recovered)
	require.NotEmpty(t, res.Warnings)
	assert.Equal(t, "B1", fieldValues(t, res.PDF)["NIF"])
}

func TestConcurrentFillsShareNothing(t *testing.T) {
	tmpl := template()
	done := make(chan map[string]string, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			res, err := FillValues(tmpl, binding.ValueBinding{"NIF": string(rune('A' + i))}, Options{Policy: forms.PolicySynthesized})
			if err != nil {
				done <- nil
				return
			}
			doc, err := custom.Load(res.PDF)
			if err != nil {
				done <- nil
				return
			}
			index, err := forms.Resolve(doc)
			if err != nil {
				done <- nil
				return
			}
			f, _ := index.Lookup("NIF")
			done <- map[string]string{"want": string(rune('A' + i)), "got": f.Value}
		}(i)
	}
	for i := 0; i < 8; i++ {
		r := <-done
		require.NotNil(t, r)
		assert.Equal(t, r["want"], r["got"])
	}
	assert.True(t, bytes.Equal(tmpl, template()))
}
