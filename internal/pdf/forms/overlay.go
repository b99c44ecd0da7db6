package forms

import (
	"bytes"
	"fmt"

	"github.com/a3tai/mcp-pdf-form-filler/internal/binding"
	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/custom"
)

// Overlay text layout on the first page, in points
const (
	overlayX    = 50
	overlayTop  = 800
	overlayStep = 14
	overlaySize = 10
	overlayFont = "Helv"
)

// OverlayLines renders a binding as sorted "name: value" lines. Values
// without a text form are left out.
func OverlayLines(values binding.ValueBinding) []string {
	lines := make([]string, 0, len(values))
	for _, name := range values.Names() {
		text, ok := binding.Text(values[name])
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", name, text))
	}
	return lines
}

// Overlay draws lines onto the first page as extra page content. The
// original content is bracketed by q/Q so its graphics state cannot leak
// into the overlay. The lines are placed at fixed positions and may cover
// form widgets.
func Overlay(doc *custom.Document, lines []string) error {
	pages := doc.Pages()
	if len(pages) == 0 {
		return fmt.Errorf("document has no pages to draw on")
	}
	if len(lines) == 0 {
		return nil
	}
	page := pages[0]

	fontName := addPageFont(doc, page.Dict)

	var buf bytes.Buffer
	original := contentRefs(doc, page.Dict)
	if len(original) > 0 {
		buf.WriteString("Q\n")
	}
	buf.WriteString("q\nBT\n")
	fmt.Fprintf(&buf, "%s %d Tf\n0 g\n", custom.NewName(fontName), overlaySize)
	for i, line := range lines {
		fmt.Fprintf(&buf, "1 0 0 1 %d %d Tm\n", overlayX, overlayTop-overlayStep*i)
		fmt.Fprintf(&buf, "(%s) Tj\n", escapeText(winAnsi(line)))
	}
	buf.WriteString("ET\nQ")
	overlayRef := doc.Add(custom.NewStream(nil, buf.Bytes()))

	contents := custom.NewArray()
	if len(original) > 0 {
		contents.Add(doc.Add(custom.NewStream(nil, []byte("q\n"))))
		contents.Elements = append(contents.Elements, original...)
	}
	contents.Add(overlayRef)

	page.Dict.Set("Contents", contents)
	doc.Touch(page.Dict)
	return nil
}

// contentRefs returns the page's content streams as a list
func contentRefs(doc *custom.Document, page *custom.Dictionary) []custom.PDFObject {
	obj := page.Get("Contents")
	if arr, ok := doc.ResolveArray(obj); ok {
		return append([]custom.PDFObject(nil), arr.Elements...)
	}
	if _, ok := doc.ResolveStream(obj); ok {
		return []custom.PDFObject{obj}
	}
	return nil
}

// addPageFont registers a Helvetica font in the page's own resources and
// returns its resource name. Shared or inherited resource dictionaries are
// copied first so other pages are unaffected.
func addPageFont(doc *custom.Document, page *custom.Dictionary) string {
	var res *custom.Dictionary
	if direct, ok := page.Get("Resources").(*custom.Dictionary); ok {
		res = direct
	} else if inherited, ok := doc.ResolveDict(doc.InheritedAttribute(page, "Resources")); ok {
		res = custom.Clone(inherited).(*custom.Dictionary)
	} else {
		res = custom.NewDictionary()
	}

	fonts := custom.NewDictionary()
	if existing, ok := doc.ResolveDict(res.Get("Font")); ok {
		fonts = custom.Clone(existing).(*custom.Dictionary)
	}

	name := overlayFont
	for i := 1; fonts.Has(name); i++ {
		name = fmt.Sprintf("%s%d", overlayFont, i)
	}
	fonts.Set(name, doc.Add(helvetica()))
	res.Set("Font", fonts)
	page.Set("Resources", res)
	return name
}
