package custom

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/xref"
)

// ErrEncrypted is returned by Load for documents with an /Encrypt entry.
var ErrEncrypted = errors.New("encrypted documents are not supported")

const maxRefChain = 32

// Document is a loaded PDF held in memory. Objects are parsed lazily and
// cached, so the same object number always yields the same Go value and
// edits made through one path are visible through every other.
type Document struct {
	data    []byte
	parser  *Parser
	version string

	table   *xref.Table
	trailer *Dictionary
	catalog *Dictionary
	pages   []*Page

	objects     map[int64]PDFObject
	generations map[int64]int64
	owners      map[PDFObject]int64
	dirty       map[int64]bool
	loading     map[int64]bool
	objStreams  map[int64]map[int64]PDFObject

	nextNumber int64
	startXRef  int64
	xrefStream bool
	recovered  bool
}

// Load parses the document structure of data. Cross-reference tables,
// cross-reference streams, hybrid files, object streams and incremental
// update chains are supported. When the recorded cross-reference data is
// unusable the object table is rebuilt by scanning the file.
func Load(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, NewParseError("empty file", 0)
	}

	version, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	d := &Document{
		data:    data,
		version: version,
	}
	d.reset()

	if err := d.loadXRef(); err != nil {
		if rerr := d.recoverXRef(); rerr != nil {
			return nil, NewParseError(fmt.Sprintf("cross-reference data unusable (%v); reconstruction failed: %v", err, rerr), -1)
		}
	}

	if d.trailer.Has("Encrypt") {
		return nil, ErrEncrypted
	}

	if err := d.loadCatalog(); err != nil {
		if d.recovered {
			return nil, err
		}
		if rerr := d.recoverXRef(); rerr != nil {
			return nil, err
		}
		if d.trailer.Has("Encrypt") {
			return nil, ErrEncrypted
		}
		if err := d.loadCatalog(); err != nil {
			return nil, err
		}
	}

	d.loadPages()

	d.nextNumber = int64(d.table.MaxObjectNumber()) + 1
	if size := d.trailer.GetInt("Size"); size > d.nextNumber {
		d.nextNumber = size
	}

	return d, nil
}

func (d *Document) reset() {
	d.parser = NewParser(d.data)
	d.parser.resolveLength = d.lengthOf
	d.table = xref.NewTable()
	d.objects = make(map[int64]PDFObject)
	d.generations = make(map[int64]int64)
	d.owners = make(map[PDFObject]int64)
	d.dirty = make(map[int64]bool)
	d.loading = make(map[int64]bool)
	d.objStreams = make(map[int64]map[int64]PDFObject)
}

func parseHeader(data []byte) (string, error) {
	window := data
	if len(window) > 1024 {
		window = window[:1024]
	}
	idx := bytes.Index(window, []byte(PDFHeaderPattern))
	if idx < 0 {
		return "", NewParseError("missing %PDF- header", 0)
	}

	start := idx + len(PDFHeaderPattern)
	end := start
	for end < len(data) && end-start < 8 && !IsWhitespace(data[end]) {
		end++
	}
	return string(data[start:end]), nil
}

// loadXRef follows the startxref offset and the /Prev chain, newest first.
func (d *Document) loadXRef() error {
	offset, err := xref.FindStartXRef(d.data)
	if err != nil {
		return err
	}
	d.startXRef = offset

	visited := make(map[int64]bool)
	newest := true
	for offset >= 0 {
		if visited[offset] {
			break
		}
		visited[offset] = true

		trailer, prev, err := d.loadSection(offset, newest)
		if err != nil {
			return err
		}
		if newest {
			d.trailer = trailer
			newest = false
		}
		offset = prev
	}

	if d.trailer == nil || !d.trailer.Has("Root") {
		return fmt.Errorf("trailer has no /Root entry")
	}
	return nil
}

// loadSection reads one cross-reference section and returns its trailer
// and the /Prev offset, or -1.
func (d *Document) loadSection(offset int64, newest bool) (*Dictionary, int64, error) {
	var trailer *Dictionary

	if xref.IsTableAt(d.data, offset) {
		entries, trailerPos, err := xref.ParseTableSection(d.data, offset)
		if err != nil {
			return nil, -1, err
		}
		obj, err := d.parser.ParseObjectAt(trailerPos)
		if err != nil {
			return nil, -1, fmt.Errorf("trailer: %w", err)
		}
		dict, ok := obj.(*Dictionary)
		if !ok {
			return nil, -1, NewParseError("trailer is not a dictionary", trailerPos)
		}
		trailer = dict
		d.addEntries(entries)

		// hybrid file: the stream fills in what the table leaves out
		if stm, ok := trailer.Get("XRefStm").(*Number); ok {
			if _, err := d.loadStreamSection(stm.Int()); err != nil {
				return nil, -1, fmt.Errorf("XRefStm: %w", err)
			}
		}
		if newest {
			d.xrefStream = false
		}
	} else {
		dict, err := d.loadStreamSection(offset)
		if err != nil {
			return nil, -1, err
		}
		trailer = dict
		if newest {
			d.xrefStream = true
		}
	}

	prev := int64(-1)
	if n, ok := trailer.Get("Prev").(*Number); ok {
		prev = n.Int()
	}
	return trailer, prev, nil
}

func (d *Document) addEntries(entries map[int]*xref.Entry) {
	for num, entry := range entries {
		d.table.AddIfAbsent(num, entry)
	}
}

func (d *Document) loadStreamSection(offset int64) (*Dictionary, error) {
	io, err := d.parser.ParseIndirectObjectAt(offset)
	if err != nil {
		return nil, err
	}
	stream, ok := io.Object.(*Stream)
	if !ok || stream.Dict.GetName("Type") != "XRef" {
		return nil, NewParseError("no cross-reference table or stream at startxref offset", offset)
	}

	decoded, err := DecodeStream(stream, nil)
	if err != nil {
		return nil, fmt.Errorf("cross-reference stream: %w", err)
	}

	widths := intArray(stream.Dict.GetArray("W"))
	ints := intArray(stream.Dict.GetArray("Index"))
	index := make([]int64, len(ints))
	for i, v := range ints {
		index[i] = int64(v)
	}
	if len(index) == 0 {
		index = []int64{0, stream.Dict.GetInt("Size")}
	}

	entries, err := xref.DecodeStreamRows(decoded, widths, index)
	if err != nil {
		return nil, err
	}
	d.addEntries(entries)
	return stream.Dict, nil
}

func intArray(arr *Array) []int {
	out := make([]int, 0, arr.Len())
	for _, elem := range arr.Elements {
		if n, ok := elem.(*Number); ok {
			out = append(out, int(n.Int()))
		}
	}
	return out
}

// recoverXRef rebuilds the object table by scanning the file for object
// headers and picks the newest usable trailer.
func (d *Document) recoverXRef() error {
	table, trailerOffsets := xref.Rebuild(d.data)
	if table.Len() == 0 {
		return fmt.Errorf("no objects found")
	}

	d.reset()
	d.table = table
	d.recovered = true
	d.xrefStream = false

	// Members of object streams are only reachable through their stream.
	var xrefStreams []*Dictionary
	for _, num := range table.ObjectNumbers() {
		obj, err := d.Object(int64(num))
		if err != nil {
			continue
		}
		stream, ok := obj.(*Stream)
		if !ok {
			continue
		}
		switch stream.Dict.GetName("Type") {
		case "ObjStm":
			members, err := d.objectStream(int64(num))
			if err != nil {
				continue
			}
			for member := range members {
				table.AddIfAbsent(int(member), &xref.Entry{Type: xref.EntryCompressed, StreamNumber: num})
			}
		case "XRef":
			xrefStreams = append(xrefStreams, stream.Dict)
		}
	}

	var candidates []*Dictionary
	for _, off := range trailerOffsets {
		if obj, err := d.parser.ParseObjectAt(off); err == nil {
			if dict, ok := obj.(*Dictionary); ok {
				candidates = append(candidates, dict)
			}
		}
	}
	candidates = append(candidates, xrefStreams...)

	for i := len(candidates) - 1; i >= 0; i-- {
		if root, ok := d.ResolveDict(candidates[i].Get("Root")); ok && root.GetName("Type") == "Catalog" {
			d.trailer = recoveredTrailer(candidates[i])
			return nil
		}
	}

	// No usable trailer: look for the catalog itself.
	numbers := table.ObjectNumbers()
	for i := len(numbers) - 1; i >= 0; i-- {
		obj, err := d.Object(int64(numbers[i]))
		if err != nil {
			continue
		}
		if dict, ok := obj.(*Dictionary); ok && dict.GetName("Type") == "Catalog" {
			d.trailer = NewDictionary()
			d.trailer.Set("Root", NewRef(ObjectID{Number: int64(numbers[i]), Generation: d.generations[int64(numbers[i])]}))
			return nil
		}
	}

	return fmt.Errorf("document catalog not found")
}

func recoveredTrailer(src *Dictionary) *Dictionary {
	trailer := NewDictionary()
	for _, key := range []string{"Root", "Info", "ID", "Encrypt"} {
		if src.Has(key) {
			trailer.Set(key, Clone(src.Get(key)))
		}
	}
	return trailer
}

func (d *Document) loadCatalog() error {
	catalog, ok := d.ResolveDict(d.trailer.Get("Root"))
	if !ok {
		return NewParseError("document catalog missing or not a dictionary", -1)
	}
	d.catalog = catalog
	return nil
}

// Page is a leaf of the page tree.
type Page struct {
	Index int
	Ref   *IndirectRef // nil for a page stored as a direct object
	Dict  *Dictionary
}

// Annots returns the page's annotation references, or nil.
func (p *Page) Annots(d *Document) []PDFObject {
	if arr, ok := d.ResolveArray(p.Dict.Get("Annots")); ok {
		return arr.Elements
	}
	return nil
}

// loadPages flattens the page tree in document order.
func (d *Document) loadPages() {
	d.pages = nil
	visited := make(map[*Dictionary]bool)

	var walk func(ref PDFObject, depth int)
	walk = func(ref PDFObject, depth int) {
		node, ok := d.ResolveDict(ref)
		if !ok || visited[node] || depth > maxNestingDepth {
			return
		}
		visited[node] = true

		kids, ok := d.ResolveArray(node.Get("Kids"))
		if !ok || node.GetName("Type") == "Page" {
			page := &Page{Index: len(d.pages), Dict: node}
			if r, isRef := ref.(*IndirectRef); isRef {
				page.Ref = r
			}
			d.pages = append(d.pages, page)
			return
		}
		for _, kid := range kids.Elements {
			walk(kid, depth+1)
		}
	}

	walk(d.catalog.Get("Pages"), 0)
}

func (d *Document) lengthOf(obj PDFObject) (int64, bool) {
	ref, ok := obj.(*IndirectRef)
	if !ok {
		return 0, false
	}
	if d.loading[ref.ObjectID.Number] {
		return 0, false
	}
	resolved, err := d.Object(ref.ObjectID.Number)
	if err != nil {
		return 0, false
	}
	n, ok := resolved.(*Number)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

// Object returns object number num, loading it on first use. Missing and
// free objects are null.
func (d *Document) Object(num int64) (PDFObject, error) {
	if obj, ok := d.objects[num]; ok {
		return obj, nil
	}
	if d.loading[num] {
		return nil, fmt.Errorf("object %d references itself while loading", num)
	}

	entry := d.table.Get(int(num))
	if entry == nil || entry.Type == xref.EntryFree {
		return &Null{}, nil
	}

	d.loading[num] = true
	defer delete(d.loading, num)

	var obj PDFObject
	var gen int64
	switch entry.Type {
	case xref.EntryInUse:
		io, err := d.parser.ParseIndirectObjectAt(entry.Offset)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", num, err)
		}
		if io.ID.Number != num {
			return nil, NewParseError(fmt.Sprintf("expected object %d, found %d", num, io.ID.Number), entry.Offset)
		}
		obj, gen = io.Object, io.ID.Generation
	case xref.EntryCompressed:
		members, err := d.objectStream(int64(entry.StreamNumber))
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", num, err)
		}
		var ok bool
		if obj, ok = members[num]; !ok {
			obj = &Null{}
		}
	}

	d.objects[num] = obj
	d.generations[num] = gen
	d.register(obj, num)
	return obj, nil
}

func (d *Document) objectStream(num int64) (map[int64]PDFObject, error) {
	if members, ok := d.objStreams[num]; ok {
		return members, nil
	}

	obj, err := d.Object(num)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*Stream)
	if !ok || stream.Dict.GetName("Type") != "ObjStm" {
		return nil, fmt.Errorf("object %d is not an object stream", num)
	}

	decoded, err := DecodeStream(stream, d.resolveOrNull)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", num, err)
	}

	members, _, err := parseObjectStream(decoded, stream.Dict.GetInt("N"), stream.Dict.GetInt("First"))
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", num, err)
	}
	d.objStreams[num] = members
	return members, nil
}

// register records num as the owner of obj and every container inside it.
func (d *Document) register(obj PDFObject, num int64) {
	if obj != nil {
		d.owners[obj] = num
	}
	d.registerChildren(obj, num)
}

func (d *Document) registerChildren(obj PDFObject, num int64) {
	switch v := obj.(type) {
	case *Dictionary:
		for _, value := range v.Values {
			d.registerContainer(value, num)
		}
	case *Array:
		for _, elem := range v.Elements {
			d.registerContainer(elem, num)
		}
	case *Stream:
		d.registerContainer(v.Dict, num)
	}
}

func (d *Document) registerContainer(obj PDFObject, num int64) {
	switch obj.(type) {
	case *Dictionary, *Array, *Stream:
		d.owners[obj] = num
		d.registerChildren(obj, num)
	}
}

// Resolve follows indirect references until a direct object is reached.
func (d *Document) Resolve(obj PDFObject) (PDFObject, error) {
	for i := 0; i < maxRefChain; i++ {
		ref, ok := obj.(*IndirectRef)
		if !ok {
			if obj == nil {
				return &Null{}, nil
			}
			return obj, nil
		}
		next, err := d.Object(ref.ObjectID.Number)
		if err != nil {
			return nil, err
		}
		obj = next
	}
	return nil, fmt.Errorf("reference chain longer than %d", maxRefChain)
}

func (d *Document) resolveOrNull(obj PDFObject) PDFObject {
	resolved, err := d.Resolve(obj)
	if err != nil {
		return &Null{}
	}
	return resolved
}

// ResolveDict resolves obj and returns it when it is a dictionary. The
// dictionary of a stream is returned for stream objects.
func (d *Document) ResolveDict(obj PDFObject) (*Dictionary, bool) {
	switch v := d.resolveOrNull(obj).(type) {
	case *Dictionary:
		return v, true
	case *Stream:
		return v.Dict, true
	}
	return nil, false
}

// ResolveArray resolves obj and returns it when it is an array
func (d *Document) ResolveArray(obj PDFObject) (*Array, bool) {
	arr, ok := d.resolveOrNull(obj).(*Array)
	return arr, ok
}

// ResolveStream resolves obj and returns it when it is a stream
func (d *Document) ResolveStream(obj PDFObject) (*Stream, bool) {
	s, ok := d.resolveOrNull(obj).(*Stream)
	return s, ok
}

// ResolveName resolves obj and returns the name value or ""
func (d *Document) ResolveName(obj PDFObject) string {
	if n, ok := d.resolveOrNull(obj).(*Name); ok {
		return n.Value
	}
	return ""
}

// ResolveString resolves obj and returns the string bytes or ""
func (d *Document) ResolveString(obj PDFObject) (string, bool) {
	s, ok := d.resolveOrNull(obj).(*String)
	if !ok {
		return "", false
	}
	return s.Value, true
}

// ResolveNumber resolves obj and returns it when it is a number
func (d *Document) ResolveNumber(obj PDFObject) (*Number, bool) {
	n, ok := d.resolveOrNull(obj).(*Number)
	return n, ok
}

// Decode returns the decoded bytes of a stream
func (d *Document) Decode(stream *Stream) ([]byte, error) {
	return DecodeStream(stream, d.resolveOrNull)
}

// Touch marks the indirect object containing obj as modified and adopts
// any containers added beneath it since it was loaded. It reports false
// when obj does not belong to an indirect object.
func (d *Document) Touch(obj PDFObject) bool {
	num, ok := d.owners[obj]
	if !ok {
		return false
	}
	d.register(obj, num)
	d.dirty[num] = true
	return true
}

// Add stores obj as a new indirect object and returns a reference to it.
func (d *Document) Add(obj PDFObject) *IndirectRef {
	num := d.nextNumber
	d.nextNumber++

	d.objects[num] = obj
	d.generations[num] = 0
	d.register(obj, num)
	d.dirty[num] = true
	return NewRef(ObjectID{Number: num})
}

// Replace stores obj as the new value of the object ref points to.
func (d *Document) Replace(ref *IndirectRef, obj PDFObject) {
	num := ref.ObjectID.Number
	d.objects[num] = obj
	d.generations[num] = ref.ObjectID.Generation
	d.register(obj, num)
	d.dirty[num] = true
	if num >= d.nextNumber {
		d.nextNumber = num + 1
	}
}

// RefOf returns a reference to the indirect object obj is the top-level
// value of.
func (d *Document) RefOf(obj PDFObject) (*IndirectRef, bool) {
	num, ok := d.owners[obj]
	if !ok || d.objects[num] != obj {
		return nil, false
	}
	return NewRef(ObjectID{Number: num, Generation: d.generations[num]}), true
}

// Modified reports whether any object has been changed
func (d *Document) Modified() bool {
	return len(d.dirty) > 0
}

// InheritedAttribute looks key up on page and then its /Parent chain.
func (d *Document) InheritedAttribute(page *Dictionary, key string) PDFObject {
	node := page
	for i := 0; node != nil && i < maxNestingDepth; i++ {
		if node.Has(key) {
			return node.Get(key)
		}
		parent, ok := d.ResolveDict(node.Get("Parent"))
		if !ok {
			break
		}
		node = parent
	}
	return &Null{}
}

// Version returns the header version such as "1.7"
func (d *Document) Version() string { return d.version }

// Trailer returns the newest trailer dictionary
func (d *Document) Trailer() *Dictionary { return d.trailer }

// Catalog returns the document catalog
func (d *Document) Catalog() *Dictionary { return d.catalog }

// Pages returns the pages in document order
func (d *Document) Pages() []*Page { return d.pages }

// Recovered reports whether the object table had to be rebuilt
func (d *Document) Recovered() bool { return d.recovered }

// UsesXRefStream reports whether the newest section is a stream
func (d *Document) UsesXRefStream() bool { return d.xrefStream }

// Data returns the bytes the document was loaded from
func (d *Document) Data() []byte { return d.data }

// String summarizes the document for logs
func (d *Document) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "PDF-%s, %d objects, %d pages", d.version, d.table.Len(), len(d.pages))
	if d.recovered {
		sb.WriteString(", recovered")
	}
	return sb.String()
}
