// Package forms resolves, fills and renders AcroForm fields on a loaded
// document.
package forms

import (
	"fmt"
	"sort"
	"strings"

	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/custom"
)

// FieldType is the kind of value a field holds
type FieldType int

const (
	FieldUnknown FieldType = iota
	FieldText
	FieldCheckbox
	FieldChoice
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldCheckbox:
		return "checkbox"
	case FieldChoice:
		return "choice"
	default:
		return "unknown"
	}
}

// Field flag bits
const (
	FlagReadOnly   = 1 << 0
	FlagRequired   = 1 << 1
	FlagNoExport   = 1 << 2
	FlagMultiline  = 1 << 12
	FlagRadio      = 1 << 15
	FlagPushButton = 1 << 16
	FlagCombo      = 1 << 17
)

// Field is a terminal form field and every widget that displays it.
type Field struct {
	Name    string
	Type    FieldType
	Value   string
	Flags   int64
	DA      string
	Quad    int
	Widgets []*Widget

	Ref   *custom.IndirectRef // nil when the field dictionary is direct
	dict  *custom.Dictionary
	dicts []*custom.Dictionary // every terminal dictionary sharing Name
}

// Dict returns the first terminal field dictionary, which carries /V
func (f *Field) Dict() *custom.Dictionary { return f.dict }

// Dicts returns every terminal dictionary merged into the field. Sibling
// annotations that repeat the same /T each carry their own /V.
func (f *Field) Dicts() []*custom.Dictionary { return f.dicts }

func (f *Field) addDict(dict *custom.Dictionary) {
	for _, d := range f.dicts {
		if d == dict {
			return
		}
	}
	f.dicts = append(f.dicts, dict)
}

// ReadOnly reports whether the read-only flag is set
func (f *Field) ReadOnly() bool { return f.Flags&FlagReadOnly != 0 }

// Widget is one visual occurrence of a field.
type Widget struct {
	Page    int // -1 when the widget is not listed in any page's /Annots
	Rect    [4]float64
	State   string // current /AS
	OnState string // on-state name declared in /AP /N, "" if none
	Field   *Field

	Ref  *custom.IndirectRef
	dict *custom.Dictionary
}

// Dict returns the widget annotation dictionary
func (w *Widget) Dict() *custom.Dictionary { return w.dict }

// Width returns the rectangle width
func (w *Widget) Width() float64 { return abs(w.Rect[2] - w.Rect[0]) }

// Height returns the rectangle height
func (w *Widget) Height() float64 { return abs(w.Rect[3] - w.Rect[1]) }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// FieldIndex maps full field names to fields.
type FieldIndex struct {
	AcroForm *custom.Dictionary
	fields   map[string]*Field
	order    []string
}

func newFieldIndex(acroForm *custom.Dictionary) *FieldIndex {
	return &FieldIndex{
		AcroForm: acroForm,
		fields:   make(map[string]*Field),
	}
}

// Lookup returns the field called name
func (x *FieldIndex) Lookup(name string) (*Field, bool) {
	f, ok := x.fields[name]
	return f, ok
}

// Fields returns the fields in discovery order
func (x *FieldIndex) Fields() []*Field {
	out := make([]*Field, 0, len(x.order))
	for _, name := range x.order {
		out = append(out, x.fields[name])
	}
	return out
}

// Names returns the sorted field names
func (x *FieldIndex) Names() []string {
	names := append([]string(nil), x.order...)
	sort.Strings(names)
	return names
}

// Len returns the number of fields
func (x *FieldIndex) Len() int { return len(x.order) }

func (x *FieldIndex) add(f *Field) {
	x.fields[f.Name] = f
	x.order = append(x.order, f.Name)
}

// RenderPolicy selects how filled values become visible.
type RenderPolicy int

const (
	// PolicyViewerRegenerate asks viewers to rebuild appearances on open.
	PolicyViewerRegenerate RenderPolicy = iota
	// PolicySynthesized writes an appearance stream for every filled widget.
	PolicySynthesized
	// PolicyOverlay draws the values as page content.
	PolicyOverlay
)

func (p RenderPolicy) String() string {
	switch p {
	case PolicyViewerRegenerate:
		return "viewer"
	case PolicySynthesized:
		return "synthesized"
	case PolicyOverlay:
		return "overlay"
	default:
		return "unknown"
	}
}

// ParsePolicy reads a policy name. Several spellings are accepted.
func ParsePolicy(s string) (RenderPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "viewer", "viewer-regenerate", "viewerregenerate", "need-appearances", "needappearances":
		return PolicyViewerRegenerate, nil
	case "synthesized", "synthesized-appearance", "synthesizedappearance", "appearance":
		return PolicySynthesized, nil
	case "overlay", "overlay-composite", "overlaycomposite":
		return PolicyOverlay, nil
	}
	return PolicyViewerRegenerate, fmt.Errorf("unknown render policy %q (want viewer, synthesized or overlay)", s)
}
