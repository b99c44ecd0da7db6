// Package extraction re-reads filled documents with pdfcpu, a parser
// independent of the one used for filling, so output can be checked the
// way another consumer would see it.
package extraction

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/pkg/errors"
)

const maxFieldDepth = 64

// Report is what pdfcpu finds in a document
type Report struct {
	Pages           int               `json:"pages"`
	Fields          map[string]string `json:"fields"`
	NeedAppearances bool              `json:"need_appearances"`
	Valid           bool              `json:"valid"`
	ValidationError string            `json:"validation_error,omitempty"`
}

// Mismatch is a field whose value differs from the expected one
type Mismatch struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Missing  bool   `json:"missing,omitempty"`
}

// FormReader reads AcroForm values with pdfcpu
type FormReader struct {
	conf *model.Configuration
}

// NewFormReader creates a reader using relaxed validation
func NewFormReader() *FormReader {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &FormReader{conf: conf}
}

// ReadFile reads the document at path
func (fr *FormReader) ReadFile(path string) (*Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s failed", path)
	}
	defer file.Close()
	return fr.ReadFrom(file)
}

// Read reads a document held in memory
func (fr *FormReader) Read(data []byte) (*Report, error) {
	return fr.ReadFrom(bytes.NewReader(data))
}

// ReadFrom reads a document from rs
func (fr *FormReader) ReadFrom(rs io.ReadSeeker) (*Report, error) {
	ctx, err := api.ReadContext(rs, fr.conf)
	if err != nil {
		return nil, errors.Wrap(err, "read PDF context failed")
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, errors.Wrap(err, "page count failed")
	}

	report := &Report{
		Pages:  ctx.PageCount,
		Fields: make(map[string]string),
		Valid:  true,
	}
	if err := api.ValidateContext(ctx); err != nil {
		report.Valid = false
		report.ValidationError = err.Error()
	}

	if err := fr.readFields(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (fr *FormReader) readFields(ctx *model.Context, report *Report) error {
	rootDict, err := ctx.Catalog()
	if err != nil {
		return errors.Wrap(err, "catalog lookup failed")
	}

	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil
	}
	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil {
		return errors.Wrap(err, "dereference AcroForm failed")
	}
	if acroFormDict == nil {
		return nil
	}

	if b := acroFormDict.BooleanEntry("NeedAppearances"); b != nil {
		report.NeedAppearances = *b
	}

	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return nil
	}
	fieldsArray, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return errors.Wrap(err, "dereference Fields failed")
	}

	for _, obj := range fieldsArray {
		fr.readField(ctx, obj, "", report.Fields, 0)
	}
	return nil
}

// readField records the value of every terminal field below obj. A node
// is terminal when none of its kids carries a partial name.
func (fr *FormReader) readField(ctx *model.Context, obj types.Object, parent string, out map[string]string, depth int) {
	if depth > maxFieldDepth {
		return
	}
	fieldDict, err := ctx.DereferenceDict(obj)
	if err != nil || fieldDict == nil {
		return
	}

	name := parent
	if tObj, found := fieldDict.Find("T"); found {
		if t, err := ctx.DereferenceStringOrHexLiteral(tObj, model.V10, nil); err == nil {
			if name != "" {
				name += "."
			}
			name += t
		}
	}

	var named []types.Object
	if kidsObj, found := fieldDict.Find("Kids"); found {
		if kids, err := ctx.DereferenceArray(kidsObj); err == nil {
			for _, kid := range kids {
				kidDict, err := ctx.DereferenceDict(kid)
				if err != nil || kidDict == nil {
					continue
				}
				if _, ok := kidDict.Find("T"); ok {
					named = append(named, kid)
				}
			}
		}
	}

	if len(named) > 0 {
		for _, kid := range named {
			fr.readField(ctx, kid, name, out, depth+1)
		}
		return
	}
	if name == "" {
		return
	}

	value := ""
	if vObj, found := fieldDict.Find("V"); found {
		value = fr.valueString(ctx, vObj)
	}
	out[name] = value
}

func (fr *FormReader) valueString(ctx *model.Context, obj types.Object) string {
	o, err := ctx.Dereference(obj)
	if err != nil || o == nil {
		return ""
	}
	switch v := o.(type) {
	case types.Name:
		return v.Value()
	case types.Integer:
		return strconv.Itoa(v.Value())
	case types.Float:
		return strconv.FormatFloat(v.Value(), 'f', -1, 64)
	case types.Boolean:
		return strconv.FormatBool(v.Value())
	case types.Array:
		if len(v) > 0 {
			return fr.valueString(ctx, v[0])
		}
		return ""
	}
	if s, err := ctx.DereferenceStringOrHexLiteral(o, model.V10, nil); err == nil {
		return s
	}
	return ""
}

// Compare lists the fields of expected whose value in the report differs,
// sorted by field name.
func (r *Report) Compare(expected map[string]string) []Mismatch {
	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Mismatch
	for _, name := range names {
		actual, ok := r.Fields[name]
		if !ok {
			out = append(out, Mismatch{Field: name, Expected: expected[name], Missing: true})
			continue
		}
		if actual != expected[name] {
			out = append(out, Mismatch{Field: name, Expected: expected[name], Actual: actual})
		}
	}
	return out
}

// String summarises the mismatch
func (m Mismatch) String() string {
	if m.Missing {
		return fmt.Sprintf("%s: field not found", m.Field)
	}
	return fmt.Sprintf("%s: expected %q, found %q", m.Field, m.Expected, m.Actual)
}
