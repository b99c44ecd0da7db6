package xref

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// EntryType represents the type of cross-reference entry
type EntryType int

const (
	EntryFree EntryType = iota
	EntryInUse
	EntryCompressed
)

func (t EntryType) String() string {
	switch t {
	case EntryFree:
		return "free"
	case EntryInUse:
		return "in-use"
	case EntryCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// Entry is a single cross-reference row.
type Entry struct {
	Type         EntryType
	Offset       int64 // byte offset for in-use entries
	Generation   int
	StreamNumber int // object stream holding a compressed entry
	StreamIndex  int // index within that object stream
}

// Table maps object numbers to their newest cross-reference entry.
// Sections are merged newest first, so the first entry seen for an object
// number wins.
type Table struct {
	entries map[int]*Entry
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{entries: make(map[int]*Entry)}
}

// AddIfAbsent records entry for objNum unless a newer section already did.
func (t *Table) AddIfAbsent(objNum int, entry *Entry) bool {
	if _, exists := t.entries[objNum]; exists {
		return false
	}
	t.entries[objNum] = entry
	return true
}

// Set records entry for objNum, replacing any existing entry.
func (t *Table) Set(objNum int, entry *Entry) {
	t.entries[objNum] = entry
}

// Get returns the entry for objNum or nil
func (t *Table) Get(objNum int) *Entry {
	return t.entries[objNum]
}

// Len returns the number of entries
func (t *Table) Len() int {
	return len(t.entries)
}

// MaxObjectNumber returns the highest object number present.
func (t *Table) MaxObjectNumber() int {
	max := 0
	for n := range t.entries {
		if n > max {
			max = n
		}
	}
	return max
}

// ObjectNumbers returns all object numbers in ascending order
func (t *Table) ObjectNumbers() []int {
	numbers := make([]int, 0, len(t.entries))
	for n := range t.entries {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// FindStartXRef returns the offset recorded after the last startxref keyword.
func FindStartXRef(data []byte) (int64, error) {
	window := 2048
	if window > len(data) {
		window = len(data)
	}
	tail := data[len(data)-window:]

	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("startxref keyword not found")
	}

	rest := tail[idx+len("startxref"):]
	i := skipSpace(rest, 0)
	start := i
	for i < len(rest) && isDigit(rest[i]) {
		i++
	}
	if i == start {
		return 0, fmt.Errorf("missing offset after startxref")
	}

	offset, err := strconv.ParseInt(string(rest[start:i]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid startxref offset: %w", err)
	}
	if offset < 0 || offset >= int64(len(data)) {
		return 0, fmt.Errorf("startxref offset %d outside file of %d bytes", offset, len(data))
	}
	return offset, nil
}

// IsTableAt reports whether a classic "xref" table starts at offset.
func IsTableAt(data []byte, offset int64) bool {
	if offset < 0 || offset >= int64(len(data)) {
		return false
	}
	i := skipSpace(data, int(offset))
	return bytes.HasPrefix(data[i:], []byte("xref"))
}

// ParseTableSection parses a classic cross-reference table starting at
// offset. It returns the rows keyed by object number and the offset just
// after the "trailer" keyword, where the trailer dictionary begins.
func ParseTableSection(data []byte, offset int64) (map[int]*Entry, int64, error) {
	if !IsTableAt(data, offset) {
		return nil, 0, fmt.Errorf("expected 'xref' keyword at offset %d", offset)
	}

	pos := skipSpace(data, int(offset)) + len("xref")
	entries := make(map[int]*Entry)

	for {
		pos = skipSpace(data, pos)
		if pos >= len(data) {
			return nil, 0, fmt.Errorf("unexpected end of xref table")
		}
		if bytes.HasPrefix(data[pos:], []byte("trailer")) {
			return entries, int64(pos + len("trailer")), nil
		}

		// Subsection header: start count
		startNum, next, err := readInt(data, pos)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid xref subsection header at %d: %w", pos, err)
		}
		count, next, err := readInt(data, skipInlineSpace(data, next))
		if err != nil {
			return nil, 0, fmt.Errorf("invalid xref subsection count at %d: %w", next, err)
		}
		pos = next

		for i := int64(0); i < count; i++ {
			pos = skipSpace(data, pos)
			entry, next, err := parseEntryLine(data, pos)
			if err != nil {
				return nil, 0, fmt.Errorf("malformed xref entry %d: %w", startNum+i, err)
			}
			pos = next
			entries[int(startNum+i)] = entry
		}
	}
}

// parseEntryLine parses "oooooooooo ggggg n" starting at pos. Whitespace
// between the fields is accepted liberally.
func parseEntryLine(data []byte, pos int) (*Entry, int, error) {
	offset, next, err := readInt(data, pos)
	if err != nil {
		return nil, pos, err
	}
	generation, next, err := readInt(data, skipInlineSpace(data, next))
	if err != nil {
		return nil, pos, err
	}
	next = skipInlineSpace(data, next)
	if next >= len(data) {
		return nil, pos, fmt.Errorf("missing entry flag")
	}

	entry := &Entry{Offset: offset, Generation: int(generation)}
	switch data[next] {
	case 'n':
		entry.Type = EntryInUse
	case 'f':
		entry.Type = EntryFree
	default:
		return nil, pos, fmt.Errorf("unknown xref flag %q", data[next])
	}
	return entry, next + 1, nil
}

// DecodeStreamRows decodes the rows of an xref stream. widths is the /W
// array and index the flattened /Index array (start, count pairs).
func DecodeStreamRows(data []byte, widths []int, index []int64) (map[int]*Entry, error) {
	if len(widths) < 3 {
		return nil, fmt.Errorf("invalid W array %v", widths)
	}
	if len(index)%2 != 0 {
		return nil, fmt.Errorf("invalid Index array %v", index)
	}

	rowSize := 0
	for _, w := range widths {
		if w < 0 || w > 8 {
			return nil, fmt.Errorf("invalid W array %v", widths)
		}
		rowSize += w
	}
	if rowSize == 0 {
		return nil, fmt.Errorf("invalid W array %v", widths)
	}

	entries := make(map[int]*Entry)
	pos := 0
	for len(index) > 0 {
		start, count := index[0], index[1]
		index = index[2:]

		for i := int64(0); i < count; i++ {
			if pos+rowSize > len(data) {
				return nil, fmt.Errorf("xref stream truncated at row %d", start+i)
			}
			row := data[pos : pos+rowSize]
			pos += rowSize

			kind := 1
			if widths[0] > 0 {
				kind = decodeInt(row[:widths[0]])
			}
			f2 := decodeInt(row[widths[0] : widths[0]+widths[1]])
			f3 := decodeInt(row[widths[0]+widths[1] : widths[0]+widths[1]+widths[2]])

			objNum := int(start + i)
			switch kind {
			case 0:
				entries[objNum] = &Entry{Type: EntryFree, Generation: f3}
			case 1:
				entries[objNum] = &Entry{Type: EntryInUse, Offset: int64(f2), Generation: f3}
			case 2:
				entries[objNum] = &Entry{Type: EntryCompressed, StreamNumber: f2, StreamIndex: f3}
			default:
				// Unknown types are references to the null object.
				entries[objNum] = &Entry{Type: EntryFree}
			}
		}
	}
	return entries, nil
}

func decodeInt(b []byte) int {
	x := 0
	for _, c := range b {
		x = x<<8 | int(c)
	}
	return x
}

// Rebuild scans the whole file for "N G obj" headers and returns a table
// pointing at the last definition of every object, together with the
// offsets of every "trailer" keyword found. It is used when the recorded
// cross-reference data is unusable.
func Rebuild(data []byte) (*Table, []int64) {
	table := NewTable()
	var trailers []int64

	marker := []byte("obj")
	for i := 0; i < len(data); {
		j := bytes.Index(data[i:], marker)
		if j < 0 {
			break
		}
		at := i + j
		i = at + len(marker)

		// "endobj" also contains "obj"
		if at >= 3 && bytes.Equal(data[at-3:at], []byte("end")) {
			continue
		}
		if at+3 < len(data) && isRegular(data[at+3]) {
			continue
		}

		objNum, gen, start, ok := scanObjectHeader(data, at)
		if ok {
			table.Set(objNum, &Entry{Type: EntryInUse, Offset: int64(start), Generation: gen})
		}
	}

	keyword := []byte("trailer")
	for i := 0; i < len(data); {
		j := bytes.Index(data[i:], keyword)
		if j < 0 {
			break
		}
		trailers = append(trailers, int64(i+j+len(keyword)))
		i += j + len(keyword)
	}

	return table, trailers
}

// scanObjectHeader walks backwards from the "obj" keyword at pos reading
// the generation and object numbers.
func scanObjectHeader(data []byte, pos int) (int, int, int, bool) {
	i := pos - 1
	for i >= 0 && isSpace(data[i]) {
		i--
	}
	genEnd := i + 1
	for i >= 0 && isDigit(data[i]) {
		i--
	}
	genStart := i + 1
	if genStart == genEnd || i < 0 || !isSpace(data[i]) {
		return 0, 0, 0, false
	}
	for i >= 0 && isSpace(data[i]) {
		i--
	}
	numEnd := i + 1
	for i >= 0 && isDigit(data[i]) {
		i--
	}
	numStart := i + 1
	if numStart == numEnd {
		return 0, 0, 0, false
	}
	if i >= 0 && isRegular(data[i]) {
		return 0, 0, 0, false
	}

	objNum, err := strconv.Atoi(string(data[numStart:numEnd]))
	if err != nil {
		return 0, 0, 0, false
	}
	gen, err := strconv.Atoi(string(data[genStart:genEnd]))
	if err != nil {
		return 0, 0, 0, false
	}
	return objNum, gen, numStart, true
}

func readInt(data []byte, pos int) (int64, int, error) {
	start := pos
	for pos < len(data) && isDigit(data[pos]) {
		pos++
	}
	if pos == start {
		return 0, pos, fmt.Errorf("expected integer")
	}
	v, err := strconv.ParseInt(string(data[start:pos]), 10, 64)
	return v, pos, err
}

func skipSpace(data []byte, pos int) int {
	for pos < len(data) {
		if isSpace(data[pos]) {
			pos++
			continue
		}
		if data[pos] == '%' {
			for pos < len(data) && data[pos] != '\n' && data[pos] != '\r' {
				pos++
			}
			continue
		}
		break
	}
	return pos
}

func skipInlineSpace(data []byte, pos int) int {
	for pos < len(data) && (data[pos] == ' ' || data[pos] == '\t') {
		pos++
	}
	return pos
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isRegular(c byte) bool {
	if isSpace(c) {
		return false
	}
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}
