// Package fill runs the whole fill pipeline over a template held in
// memory: load, resolve, bind, write, synchronize, serialize.
package fill

import (
	"fmt"

	"github.com/a3tai/mcp-pdf-form-filler/internal/binding"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/custom"
	pdferrors "github.com/a3tai/mcp-pdf-form-filler/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/forms"
)

// Request describes one fill from a data source.
type Request struct {
	FieldToColumn map[string]string
	SelectedIDs   []string
	GroupDefaults map[string]binding.Value
	Aggregation   map[string]binding.AggregationRule
	Policy        forms.RenderPolicy
	Source        binding.Source
	ReadOnly      bool
}

// Options tunes FillValues
type Options struct {
	Policy   forms.RenderPolicy
	ReadOnly bool
	Metrics  *forms.Metrics
}

// Result is a filled document and what happened while producing it.
type Result struct {
	PDF       []byte
	Binding   binding.ValueBinding
	Written   []string
	Stored    map[string]string // value each written field now holds in /V
	Warnings  []pdferrors.Warning
	Recovered bool // the template's cross-reference data had to be rebuilt
}

// FillForm fills template with the values bound from the selected records.
// Either a complete document is returned or a *errors.FillError.
func FillForm(template []byte, req Request) (*Result, error) {
	if req.Source == nil {
		return nil, pdferrors.New(pdferrors.KindRecordNotFound, "no data source")
	}
	bind := func() (binding.ValueBinding, []pdferrors.Warning, error) {
		records, err := binding.Select(req.Source, req.SelectedIDs)
		if err != nil {
			return nil, nil, err
		}
		return binding.BindWithWarnings(records, req.FieldToColumn, req.GroupDefaults, req.Aggregation)
	}
	return run(template, bind, Options{Policy: req.Policy, ReadOnly: req.ReadOnly})
}

// FillValues fills template with an already resolved binding.
func FillValues(template []byte, values binding.ValueBinding, opts Options) (*Result, error) {
	return run(template, func() (binding.ValueBinding, []pdferrors.Warning, error) { return values, nil, nil }, opts)
}

func run(template []byte, bind func() (binding.ValueBinding, []pdferrors.Warning, error), opts Options) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = pdferrors.Wrap(pdferrors.KindCorruptDocument, fmt.Errorf("%v", r), "template could not be processed")
		}
	}()

	doc, err := custom.Load(template)
	if err != nil {
		return nil, pdferrors.Wrap(pdferrors.KindCorruptDocument, err, "template cannot be parsed")
	}

	var warnings pdferrors.Warnings
	if doc.Recovered() {
		warnings.Add("", "cross-reference data was damaged and has been rebuilt")
	}

	index, err := forms.Resolve(doc)
	if err != nil {
		if !pdferrors.IsKind(err, pdferrors.KindNoFormFields) || opts.Policy != forms.PolicyOverlay {
			return nil, err
		}
		index = nil
		warnings.Add("", "template has no AcroForm, values are drawn as page content only")
	}

	values, bindWarnings, err := bind()
	if err != nil {
		return nil, err
	}
	warnings.Merge(bindWarnings)

	result = &Result{Binding: values, Recovered: doc.Recovered()}
	if len(values) == 0 {
		result.PDF = append([]byte(nil), template...)
		result.Warnings = warnings.List()
		return result, nil
	}

	var report *forms.WriteReport
	if index != nil {
		report, err = forms.Write(doc, index, values, forms.WriteOptions{ReadOnly: opts.ReadOnly})
		if err != nil {
			return nil, err
		}
		warnings.Merge(report.Warnings)
		result.Stored = make(map[string]string, len(report.Fields))
		for _, w := range report.Fields {
			result.Written = append(result.Written, w.Field.Name)
			result.Stored[w.Field.Name] = w.Field.Value
		}
	}

	syncWarnings, err := forms.Synchronize(doc, index, report, opts.Policy, forms.SyncOptions{
		Values:  values,
		Metrics: opts.Metrics,
	})
	if err != nil {
		if pdferrors.KindOf(err) == pdferrors.KindUnknown {
			err = pdferrors.Wrap(pdferrors.KindCorruptDocument, err, "appearances cannot be updated")
		}
		return nil, err
	}
	warnings.Merge(syncWarnings)

	out, err := custom.Serialize(doc)
	if err != nil {
		return nil, pdferrors.Wrap(pdferrors.KindSerializationError, err, "filled document cannot be written")
	}

	result.PDF = out
	result.Warnings = warnings.List()
	return result, nil
}
