package pdftest

import (
	"fmt"
	"strings"
)

// Field describes one terminal form field. A dotted Name creates the
// intermediate parent fields.
type Field struct {
	Name    string
	Type    string // Tx, Btn or Ch; defaults to Tx
	Value   string // raw PDF syntax for /V, e.g. "(abc)" or "/Yes"
	Flags   int
	DA      string
	Rect    string // raw rectangle, defaults to a stacked layout
	OnState string // checkbox on-state name; adds an /AP with it and /Off
	Page    int    // zero-based page index
	Widgets int    // number of separate widget kids; 0 merges field and widget
	Extra   string // raw dictionary entries appended to the field
}

// FormOptions controls document-level parts of a generated form.
type FormOptions struct {
	Pages           int
	NeedAppearances bool
	NoDR            bool
	XRefStream      bool
	PageContent     string
}

// Form generates a document with an AcroForm holding fields.
func Form(fields ...Field) []byte {
	return FormWith(FormOptions{}, fields...)
}

// FormWith generates a form document with options.
func FormWith(opts FormOptions, fields ...Field) []byte {
	b := New()
	catalog := b.Reserve()
	pagesNum := b.Reserve()
	acroForm := b.Reserve()
	font := b.Add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	pageCount := opts.Pages
	for _, f := range fields {
		if f.Page+1 > pageCount {
			pageCount = f.Page + 1
		}
	}
	if pageCount == 0 {
		pageCount = 1
	}

	content := opts.PageContent
	if content == "" {
		content = "BT /F1 12 Tf 50 750 Td (Template) Tj ET"
	}

	pages := make([]int, pageCount)
	annots := make([][]string, pageCount)
	for i := range pages {
		pages[i] = b.Reserve()
	}

	var topLevel []string
	parents := make(map[string]int)
	kids := make(map[int][]string)

	for i, f := range fields {
		pageRef := fmt.Sprintf("%d 0 R", pages[f.Page])
		parentNum := 0
		segments := strings.Split(f.Name, ".")

		for depth := 0; depth < len(segments)-1; depth++ {
			path := strings.Join(segments[:depth+1], ".")
			num, ok := parents[path]
			if !ok {
				num = b.Reserve()
				parents[path] = num
				if parentNum == 0 {
					topLevel = append(topLevel, fmt.Sprintf("%d 0 R", num))
				} else {
					kids[parentNum] = append(kids[parentNum], fmt.Sprintf("%d 0 R", num))
				}
			}
			parentNum = num
		}

		kind := f.Type
		if kind == "" {
			kind = "Tx"
		}

		var field strings.Builder
		fmt.Fprintf(&field, "/FT /%s /T (%s)", kind, segments[len(segments)-1])
		if parentNum != 0 {
			fmt.Fprintf(&field, " /Parent %d 0 R", parentNum)
		}
		if f.Value != "" {
			fmt.Fprintf(&field, " /V %s", f.Value)
		}
		if f.Flags != 0 {
			fmt.Fprintf(&field, " /Ff %d", f.Flags)
		}
		if f.DA != "" {
			fmt.Fprintf(&field, " /DA (%s)", f.DA)
		}
		if f.Extra != "" {
			field.WriteString(" " + f.Extra)
		}

		widget := func(index int) string {
			rect := f.Rect
			if rect == "" {
				y := 700 - 30*(i+index)
				rect = fmt.Sprintf("[50 %d 250 %d]", y, y+20)
			}
			w := fmt.Sprintf("/Type /Annot /Subtype /Widget /Rect %s /P %s /F 4", rect, pageRef)
			if f.OnState != "" {
				on := b.Add(Stream("/Type /XObject /Subtype /Form /BBox [0 0 20 20]", []byte("0 0 m 20 20 l S")))
				off := b.Add(Stream("/Type /XObject /Subtype /Form /BBox [0 0 20 20]", []byte("")))
				w += fmt.Sprintf(" /AP << /N << /%s %d 0 R /Off %d 0 R >> >> /AS /Off", f.OnState, on, off)
			}
			return w
		}

		var fieldNum int
		if f.Widgets == 0 {
			fieldNum = b.Add(fmt.Sprintf("<< %s %s >>", field.String(), widget(0)))
			annots[f.Page] = append(annots[f.Page], fmt.Sprintf("%d 0 R", fieldNum))
		} else {
			fieldNum = b.Reserve()
			var widgetRefs []string
			for w := 0; w < f.Widgets; w++ {
				wn := b.Add(fmt.Sprintf("<< %s /Parent %d 0 R >>", widget(w), fieldNum))
				widgetRefs = append(widgetRefs, fmt.Sprintf("%d 0 R", wn))
				annots[f.Page] = append(annots[f.Page], fmt.Sprintf("%d 0 R", wn))
			}
			b.Set(fieldNum, fmt.Sprintf("<< %s /Kids [%s] >>", field.String(), strings.Join(widgetRefs, " ")))
		}

		if parentNum == 0 {
			topLevel = append(topLevel, fmt.Sprintf("%d 0 R", fieldNum))
		} else {
			kids[parentNum] = append(kids[parentNum], fmt.Sprintf("%d 0 R", fieldNum))
		}
	}

	for path, num := range parents {
		segments := strings.Split(path, ".")
		body := fmt.Sprintf("/T (%s) /Kids [%s]", segments[len(segments)-1], strings.Join(kids[num], " "))
		if len(segments) > 1 {
			body += fmt.Sprintf(" /Parent %d 0 R", parents[strings.Join(segments[:len(segments)-1], ".")])
		}
		b.Set(num, "<< "+body+" >>")
	}

	pageRefs := make([]string, pageCount)
	for i, num := range pages {
		contents := b.Add(Stream("", []byte(content)))
		b.Set(num, fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 842] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> /Annots [%s] >>",
			pagesNum, contents, font, strings.Join(annots[i], " ")))
		pageRefs[i] = fmt.Sprintf("%d 0 R", num)
	}

	b.Set(pagesNum, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(pageRefs, " "), pageCount))
	b.Set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R /AcroForm %d 0 R >>", pagesNum, acroForm))

	acro := fmt.Sprintf("/Fields [%s] /DA (/Helv 0 Tf 0 g)", strings.Join(topLevel, " "))
	if !opts.NoDR {
		acro += fmt.Sprintf(" /DR << /Font << /Helv %d 0 R >> >>", font)
	}
	if opts.NeedAppearances {
		acro += " /NeedAppearances true"
	}
	b.Set(acroForm, "<< "+acro+" >>")

	if opts.XRefStream {
		return b.XRefStream(catalog)
	}
	return b.Bytes(catalog)
}
