package forms

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/a3tai/mcp-pdf-form-filler/internal/binding"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/custom"
	pdferrors "github.com/a3tai/mcp-pdf-form-filler/internal/pdf/errors"
)

const (
	defaultDA    = "/Helv 0 Tf 0 g"
	textPadding  = 2.0
	fallbackFont = "Helv"
)

// SyncOptions carries what a policy needs beyond the write report.
type SyncOptions struct {
	// Values are drawn as "name: value" lines by PolicyOverlay.
	Values  binding.ValueBinding
	Metrics *Metrics
}

// Synchronize makes the written values visible under policy. index and
// report may be nil for PolicyOverlay.
func Synchronize(doc *custom.Document, index *FieldIndex, report *WriteReport, policy RenderPolicy, opts SyncOptions) ([]pdferrors.Warning, error) {
	switch policy {
	case PolicyViewerRegenerate:
		if index == nil {
			return nil, pdferrors.New(pdferrors.KindNoFormFields, "viewer regeneration needs an AcroForm")
		}
		index.AcroForm.Set("NeedAppearances", &custom.Bool{Value: true})
		doc.Touch(index.AcroForm)
		return nil, nil

	case PolicySynthesized:
		if index == nil {
			return nil, pdferrors.New(pdferrors.KindNoFormFields, "synthesized appearances need an AcroForm")
		}
		metrics := opts.Metrics
		if metrics == nil {
			metrics = DefaultMetrics()
		}
		s := &synthesizer{doc: doc, acroForm: index.AcroForm, metrics: metrics}
		return s.run(report)

	case PolicyOverlay:
		var warnings pdferrors.Warnings
		for _, name := range opts.Values.Names() {
			text, _ := binding.Text(opts.Values[name])
			if lost := unencodable(text); len(lost) > 0 {
				warnings.Add(name, "overlay draws %q as '?'", string(lost))
			}
		}
		return warnings.List(), Overlay(doc, OverlayLines(opts.Values))
	}
	return nil, fmt.Errorf("unknown render policy %d", policy)
}

// synthesizer writes one appearance stream per written text widget.
type synthesizer struct {
	doc      *custom.Document
	acroForm *custom.Dictionary
	metrics  *Metrics
	warnings pdferrors.Warnings
}

func (s *synthesizer) run(report *WriteReport) ([]pdferrors.Warning, error) {
	if report != nil {
		for _, w := range report.Fields {
			if w.Field.Type == FieldCheckbox {
				// /AS already selects one of the existing appearances
				continue
			}
			if lost := unencodable(w.Text); len(lost) > 0 {
				s.warnings.Add(w.Field.Name, "appearance shows %q as '?', the field value keeps them", string(lost))
			}
			for _, widget := range w.Field.Widgets {
				s.widget(widget, w.Text)
			}
		}
	}

	s.acroForm.Set("NeedAppearances", &custom.Bool{Value: false})
	s.doc.Touch(s.acroForm)
	return s.warnings.List(), nil
}

func (s *synthesizer) widget(widget *Widget, text string) {
	field := widget.Field
	w, h := widget.Width(), widget.Height()
	if w == 0 || h == 0 {
		s.warnings.Add(field.Name, "widget has an empty rectangle, no appearance written")
		return
	}

	fontName, fontSize, color := parseDA(s.defaultAppearance(widget))
	fontName, fontRef := s.font(fontName)
	if fontSize <= 0 {
		fontSize = s.metrics.FitSize(text, w, h, textPadding, maxAutoSize)
	}

	content := textAppearance(text, fontName, fontSize, color, w, h, field.Quad, s.metrics)

	res := custom.NewDictionary()
	fonts := custom.NewDictionary()
	fonts.Set(fontName, fontRef)
	res.Set("Font", fonts)

	dict := custom.NewDictionary()
	dict.Set("Type", custom.NewName("XObject"))
	dict.Set("Subtype", custom.NewName("Form"))
	dict.Set("BBox", custom.NewArray(custom.NewInt(0), custom.NewInt(0), custom.NewReal(w), custom.NewReal(h)))
	dict.Set("Resources", res)
	ref := s.doc.Add(custom.NewStream(dict, content))

	ap := custom.NewDictionary()
	ap.Set("N", ref)
	widget.dict.Set("AP", ap)
	s.doc.Touch(widget.dict)
}

// defaultAppearance returns the DA of the widget, its field or the form
func (s *synthesizer) defaultAppearance(widget *Widget) string {
	if da, ok := s.doc.ResolveString(widget.dict.Get("DA")); ok && da != "" {
		return da
	}
	if widget.Field.DA != "" {
		return widget.Field.DA
	}
	if da, ok := s.doc.ResolveString(s.acroForm.Get("DA")); ok && da != "" {
		return da
	}
	return defaultDA
}

// font returns the resource name and font reference to draw with. The DA
// font is taken from /DR when present. Otherwise a Helvetica font is
// registered in /DR under Helv.
func (s *synthesizer) font(name string) (string, custom.PDFObject) {
	dr, drOK := s.doc.ResolveDict(s.acroForm.Get("DR"))
	var fonts *custom.Dictionary
	fontsOK := false
	if drOK {
		fonts, fontsOK = s.doc.ResolveDict(dr.Get("Font"))
	}

	if fontsOK {
		if name != "" && fonts.Has(name) {
			return name, fonts.Get(name)
		}
		if fonts.Has(fallbackFont) {
			return fallbackFont, fonts.Get(fallbackFont)
		}
	}

	ref := s.doc.Add(helvetica())
	if !drOK {
		dr = custom.NewDictionary()
		s.acroForm.Set("DR", dr)
	}
	if !fontsOK {
		fonts = custom.NewDictionary()
		dr.Set("Font", fonts)
	}
	fonts.Set(fallbackFont, ref)
	switch {
	case fontsOK:
		s.doc.Touch(fonts)
	case drOK:
		s.doc.Touch(dr)
	default:
		s.doc.Touch(s.acroForm)
	}
	return fallbackFont, ref
}

func helvetica() *custom.Dictionary {
	font := custom.NewDictionary()
	font.Set("Type", custom.NewName("Font"))
	font.Set("Subtype", custom.NewName("Type1"))
	font.Set("BaseFont", custom.NewName("Helvetica"))
	font.Set("Encoding", custom.NewName("WinAnsiEncoding"))
	return font
}

// textAppearance builds the content of a single-line text widget.
func textAppearance(text, fontName string, size float64, color []float64, w, h float64, quad int, metrics *Metrics) []byte {
	var buf bytes.Buffer
	buf.WriteString("/Tx BMC\n")
	buf.WriteString("q\n")
	fmt.Fprintf(&buf, "1 1 %s %s re W n\n", num(w-2), num(h-2))
	buf.WriteString("BT\n")
	fmt.Fprintf(&buf, "%s %s Tf\n", custom.NewName(fontName), num(size))
	writeColor(&buf, color)

	x := textPadding
	if quad == 1 || quad == 2 {
		free := w - 2*textPadding - metrics.Width(text, size)
		if free > 0 {
			if quad == 1 {
				x += free / 2
			} else {
				x += free
			}
		}
	}
	y := (h - size) / 2
	if y < 1 {
		y = 1
	}
	y += size * 0.22
	fmt.Fprintf(&buf, "%s %s Td\n", num(x), num(y))
	fmt.Fprintf(&buf, "(%s) Tj\n", escapeText(winAnsi(text)))
	buf.WriteString("ET\n")
	buf.WriteString("Q\n")
	buf.WriteString("EMC")
	return buf.Bytes()
}

// parseDA reads the font name, size and fill colour of a default
// appearance string such as "/Helv 10 Tf 0 0 1 rg".
func parseDA(da string) (fontName string, fontSize float64, color []float64) {
	parts := strings.Fields(da)
	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "Tf":
			if i >= 2 && strings.HasPrefix(parts[i-2], "/") {
				fontName = parts[i-2][1:]
				fontSize = parseFloat(parts[i-1])
			}
		case "g":
			if i >= 1 {
				color = []float64{parseFloat(parts[i-1])}
			}
		case "rg":
			if i >= 3 {
				color = []float64{parseFloat(parts[i-3]), parseFloat(parts[i-2]), parseFloat(parts[i-1])}
			}
		case "k":
			if i >= 4 {
				color = []float64{parseFloat(parts[i-4]), parseFloat(parts[i-3]), parseFloat(parts[i-2]), parseFloat(parts[i-1])}
			}
		}
	}
	return
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func writeColor(buf *bytes.Buffer, color []float64) {
	switch len(color) {
	case 1:
		fmt.Fprintf(buf, "%.2f g\n", color[0])
	case 3:
		fmt.Fprintf(buf, "%.2f %.2f %.2f rg\n", color[0], color[1], color[2])
	case 4:
		fmt.Fprintf(buf, "%.2f %.2f %.2f %.2f k\n", color[0], color[1], color[2], color[3])
	default:
		buf.WriteString("0 g\n")
	}
}

// escapeText escapes a byte string for a literal string operand
func escapeText(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch c {
		case '\\', '(', ')':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\r':
			sb.WriteString(`\r`)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// num formats an operand with at most two decimals
func num(f float64) string {
	s := strconv.FormatFloat(f, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
