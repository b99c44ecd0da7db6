package forms

import (
	"strings"

	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/custom"
	pdferrors "github.com/a3tai/mcp-pdf-form-filler/internal/pdf/errors"
)

const maxTreeDepth = 64

// resolver builds a FieldIndex for one document
type resolver struct {
	doc     *custom.Document
	index   *FieldIndex
	widgets map[*custom.Dictionary]bool
	nodes   map[*custom.Dictionary]bool
}

// Resolve indexes every terminal field of the document by its full name.
// Widgets are found through the pages' /Annots first, so each gets its
// page index; widgets reachable only from the /AcroForm /Fields tree are
// added afterwards with page -1.
func Resolve(doc *custom.Document) (*FieldIndex, error) {
	acroForm, ok := doc.ResolveDict(doc.Catalog().Get("AcroForm"))
	if !ok {
		return nil, pdferrors.New(pdferrors.KindNoFormFields, "document has no AcroForm")
	}

	r := &resolver{
		doc:     doc,
		index:   newFieldIndex(acroForm),
		widgets: make(map[*custom.Dictionary]bool),
		nodes:   make(map[*custom.Dictionary]bool),
	}

	for _, page := range doc.Pages() {
		for _, annot := range page.Annots(doc) {
			dict, ok := doc.ResolveDict(annot)
			if !ok || !isFieldAnnotation(dict) {
				continue
			}
			r.addWidget(dict, annot, page.Index)
		}
	}

	if fields, ok := doc.ResolveArray(acroForm.Get("Fields")); ok {
		for _, node := range fields.Elements {
			r.walk(node, 0)
		}
	}

	return r.index, nil
}

func isFieldAnnotation(dict *custom.Dictionary) bool {
	return dict.GetName("Subtype") == "Widget" || dict.Has("T") || dict.Has("Parent")
}

// walk visits the field tree below node looking for widgets not yet seen
func (r *resolver) walk(node custom.PDFObject, depth int) {
	dict, ok := r.doc.ResolveDict(node)
	if !ok || depth > maxTreeDepth || r.nodes[dict] {
		return
	}
	r.nodes[dict] = true

	kids, ok := r.doc.ResolveArray(dict.Get("Kids"))
	if !ok || kids.Len() == 0 {
		r.addWidget(dict, node, -1)
		return
	}
	for _, kid := range kids.Elements {
		r.walk(kid, depth+1)
	}
}

// addWidget attaches a widget annotation to its terminal field, creating
// the field on first sight.
func (r *resolver) addWidget(dict *custom.Dictionary, obj custom.PDFObject, page int) {
	if r.widgets[dict] {
		return
	}

	terminal := r.terminalField(dict)
	if terminal == nil {
		return
	}
	name := r.fullName(terminal)
	if name == "" {
		return
	}
	r.widgets[dict] = true

	field, ok := r.index.Lookup(name)
	if !ok {
		field = r.newField(name, terminal)
		r.index.add(field)
	}
	field.addDict(terminal)

	w := &Widget{
		Page:    page,
		Rect:    r.rect(dict),
		State:   dict.GetName("AS"),
		OnState: r.onState(dict),
		Field:   field,
		dict:    dict,
	}
	if ref, isRef := obj.(*custom.IndirectRef); isRef {
		w.Ref = ref
	} else if ref, found := r.doc.RefOf(dict); found {
		w.Ref = ref
	}
	field.Widgets = append(field.Widgets, w)
}

// terminalField returns the first dictionary, starting at the widget and
// walking /Parent, that carries a partial name.
func (r *resolver) terminalField(dict *custom.Dictionary) *custom.Dictionary {
	node := dict
	for i := 0; node != nil && i < maxTreeDepth; i++ {
		if node.Has("T") {
			return node
		}
		parent, ok := r.doc.ResolveDict(node.Get("Parent"))
		if !ok {
			return nil
		}
		node = parent
	}
	return nil
}

// fullName joins the partial names of dict and its ancestors, root-most
// first.
func (r *resolver) fullName(dict *custom.Dictionary) string {
	var parts []string
	node := dict
	for i := 0; node != nil && i < maxTreeDepth; i++ {
		if t, ok := r.doc.ResolveString(node.Get("T")); ok {
			parts = append(parts, DecodeTextString(t))
		}
		parent, ok := r.doc.ResolveDict(node.Get("Parent"))
		if !ok {
			break
		}
		node = parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// inherited looks key up on dict and then its /Parent chain
func (r *resolver) inherited(dict *custom.Dictionary, key string) custom.PDFObject {
	node := dict
	for i := 0; node != nil && i < maxTreeDepth; i++ {
		if node.Has(key) {
			return node.Get(key)
		}
		parent, ok := r.doc.ResolveDict(node.Get("Parent"))
		if !ok {
			break
		}
		node = parent
	}
	return nil
}

func (r *resolver) newField(name string, dict *custom.Dictionary) *Field {
	f := &Field{Name: name, dict: dict}
	if ref, ok := r.doc.RefOf(dict); ok {
		f.Ref = ref
	}

	if n, ok := r.doc.ResolveNumber(r.inherited(dict, "Ff")); ok {
		f.Flags = n.Int()
	}
	if n, ok := r.doc.ResolveNumber(r.inherited(dict, "Q")); ok {
		f.Quad = int(n.Int())
	}
	if da, ok := r.doc.ResolveString(r.inherited(dict, "DA")); ok {
		f.DA = da
	}

	switch r.doc.ResolveName(r.inherited(dict, "FT")) {
	case "Tx":
		f.Type = FieldText
	case "Btn":
		f.Type = FieldCheckbox
	case "Ch":
		f.Type = FieldChoice
	default:
		f.Type = FieldUnknown
	}

	f.Value = r.valueText(r.inherited(dict, "V"))
	return f
}

// valueText renders a /V entry as text
func (r *resolver) valueText(obj custom.PDFObject) string {
	if obj == nil {
		return ""
	}
	resolved, err := r.doc.Resolve(obj)
	if err != nil {
		return ""
	}
	switch v := resolved.(type) {
	case *custom.String:
		return DecodeTextString(v.Value)
	case *custom.Name:
		return v.Value
	case *custom.Number:
		return v.String()
	case *custom.Array:
		parts := make([]string, 0, v.Len())
		for _, elem := range v.Elements {
			parts = append(parts, r.valueText(elem))
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func (r *resolver) rect(dict *custom.Dictionary) [4]float64 {
	var out [4]float64
	arr, ok := r.doc.ResolveArray(dict.Get("Rect"))
	if !ok {
		return out
	}
	for i := 0; i < 4 && i < arr.Len(); i++ {
		if n, ok := r.doc.ResolveNumber(arr.Get(i)); ok {
			out[i] = n.Float()
		}
	}
	if out[0] > out[2] {
		out[0], out[2] = out[2], out[0]
	}
	if out[1] > out[3] {
		out[1], out[3] = out[3], out[1]
	}
	return out
}

// onState returns the first normal-appearance state that is not Off
func (r *resolver) onState(dict *custom.Dictionary) string {
	ap, ok := r.doc.ResolveDict(dict.Get("AP"))
	if !ok {
		return ""
	}
	normal, ok := r.doc.ResolveDict(ap.Get("N"))
	if !ok {
		return ""
	}
	// a stream is a single appearance with no states
	if _, isStream := r.doc.ResolveStream(ap.Get("N")); isStream {
		return ""
	}
	for _, key := range normal.Keys {
		if key.Value != "Off" {
			return key.Value
		}
	}
	return ""
}
