package forms

import (
	"strings"

	"github.com/a3tai/mcp-pdf-form-filler/internal/binding"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/custom"
	pdferrors "github.com/a3tai/mcp-pdf-form-filler/internal/pdf/errors"
)

// DefaultOnState is used for checkbox widgets whose appearance dictionary
// declares no on-state.
const DefaultOnState = "Yes"

// WriteOptions tunes Write
type WriteOptions struct {
	// ReadOnly sets the read-only flag on every written field.
	ReadOnly bool
}

// Written records one field Write changed and the text it received.
type Written struct {
	Field *Field
	Text  string
	On    bool // checkbox state
}

// WriteReport is the outcome of Write
type WriteReport struct {
	Fields   []Written
	Warnings []pdferrors.Warning
}

// Write stores the bound values in the field dictionaries. Every widget of
// a field receives the same value. Names missing from the template and
// values without a text form are skipped with a warning.
func Write(doc *custom.Document, index *FieldIndex, values binding.ValueBinding, opts WriteOptions) (*WriteReport, error) {
	report := &WriteReport{}
	var warnings pdferrors.Warnings

	for _, name := range values.Names() {
		v := values[name]
		field, ok := index.Lookup(name)
		if !ok {
			warnings.Add(name, "field not present in the template")
			continue
		}

		var w Written
		switch field.Type {
		case FieldCheckbox:
			w = writeCheckbox(doc, field, v, &warnings)
		default:
			text, ok := binding.Text(v)
			if !ok {
				warnings.Add(name, "value of type %T has no text form, skipped", v)
				continue
			}
			if field.Type == FieldUnknown {
				warnings.Add(name, "field type unknown, written as text")
			}
			setValue(field, custom.NewLiteral(EncodeTextString(text)))
			field.Value = text
			w = Written{Field: field, Text: text}
		}

		if opts.ReadOnly {
			field.Flags |= FlagReadOnly
			for _, dict := range field.Dicts() {
				dict.Set("Ff", custom.NewInt(field.Flags))
			}
		}
		for _, dict := range field.Dicts() {
			doc.Touch(dict)
		}
		report.Fields = append(report.Fields, w)
	}

	report.Warnings = warnings.List()
	return report, nil
}

func writeCheckbox(doc *custom.Document, field *Field, v binding.Value, warnings *pdferrors.Warnings) Written {
	on := Truthy(v)
	text, _ := binding.Text(v)

	state := "Off"
	for i, widget := range field.Widgets {
		widgetState := "Off"
		if on {
			widgetState = widget.OnState
			if widgetState == "" {
				widgetState = DefaultOnState
				warnings.Add(field.Name, "widget declares no on-state, using /%s", DefaultOnState)
			}
		}
		if i == 0 {
			state = widgetState
		}
		widget.dict.Set("AS", custom.NewName(widgetState))
		widget.State = widgetState
		doc.Touch(widget.dict)
	}
	if len(field.Widgets) == 0 && on {
		state = DefaultOnState
	}

	setValue(field, custom.NewName(state))
	field.Value = state
	return Written{Field: field, Text: text, On: on}
}

// setValue stores /V on every terminal dictionary of the field
func setValue(field *Field, v custom.PDFObject) {
	for _, dict := range field.Dicts() {
		dict.Set("V", custom.Clone(v))
	}
}

// Truthy reports whether a bound value turns a checkbox on. "", "0",
// "false" (any case), 0 and false are off; everything else is on.
func Truthy(v binding.Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		return s != "" && s != "0" && !strings.EqualFold(s, "false")
	}
	if n, ok := binding.Number(v); ok {
		return n != 0
	}
	return true
}
