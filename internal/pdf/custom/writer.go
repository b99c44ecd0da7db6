package custom

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/a3tai/mcp-pdf-form-filler/internal/pdf/xref"
)

// Serialize writes the document. Unmodified documents come back byte for
// byte. Otherwise the changed and added objects are appended to the
// original bytes as an incremental update whose cross-reference section
// uses the same form (table or stream) as the newest existing one. A
// document whose table had to be rebuilt gets a complete table instead,
// since its old sections cannot be chained to.
func Serialize(d *Document) ([]byte, error) {
	if !d.Modified() {
		out := make([]byte, len(d.data))
		copy(out, d.data)
		return out, nil
	}

	if d.recovered {
		if err := d.materializeCompressed(); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(d.data) + 4096)
	buf.Write(d.data)
	if len(d.data) > 0 && d.data[len(d.data)-1] != '\n' && d.data[len(d.data)-1] != '\r' {
		buf.WriteByte('\n')
	}

	numbers := make([]int64, 0, len(d.dirty))
	for num := range d.dirty {
		numbers = append(numbers, num)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	rows := make([]xref.Row, 0, len(numbers)+1)
	for _, num := range numbers {
		obj, ok := d.objects[num]
		if !ok {
			return nil, fmt.Errorf("modified object %d is not loaded", num)
		}
		gen := d.generations[num]
		rows = append(rows, xref.Row{Number: int(num), Generation: int(gen), Offset: int64(buf.Len())})

		fmt.Fprintf(&buf, "%d %d obj\n", num, gen)
		buf.Write(appendObject(nil, obj))
		buf.WriteString("\nendobj\n")
	}

	if d.recovered {
		rows = d.fullTableRows(rows)
	}

	trailer := d.updateTrailer()

	if d.xrefStream && !d.recovered {
		return writeStreamSection(&buf, trailer, rows, d.nextNumber), nil
	}

	xrefOffset := buf.Len()
	xref.WriteTable(&buf, rows, d.recovered)
	buf.WriteString(TrailerKeyword + "\n")
	buf.Write(appendObject(nil, trailer))
	fmt.Fprintf(&buf, "\n%s\n%d\n%%%%EOF\n", StartXRefKeyword, xrefOffset)
	return buf.Bytes(), nil
}

// updateTrailer builds the trailer of the new section from the newest
// existing one.
func (d *Document) updateTrailer() *Dictionary {
	trailer := NewDictionary()
	size := d.nextNumber
	if old := d.trailer.GetInt("Size"); old > size {
		size = old
	}
	trailer.Set("Size", NewInt(size))

	for _, key := range []string{"Root", "Info", "ID"} {
		if d.trailer.Has(key) {
			trailer.Set(key, Clone(d.trailer.Get(key)))
		}
	}
	if !d.recovered {
		trailer.Set("Prev", NewInt(d.startXRef))
	}
	return trailer
}

// fullTableRows lists every object of a rebuilt document, with the rows
// of rewritten objects taking precedence.
func (d *Document) fullTableRows(updated []xref.Row) []xref.Row {
	seen := make(map[int]bool, len(updated))
	for _, r := range updated {
		seen[r.Number] = true
	}

	rows := append([]xref.Row(nil), updated...)
	for _, num := range d.table.ObjectNumbers() {
		entry := d.table.Get(num)
		if seen[num] || entry.Type != xref.EntryInUse {
			continue
		}
		rows = append(rows, xref.Row{Number: num, Generation: entry.Generation, Offset: entry.Offset})
	}
	return rows
}

// materializeCompressed marks every object living in an object stream as
// modified. A complete table has no way to point into object streams, so
// those objects are written out as plain objects.
func (d *Document) materializeCompressed() error {
	for _, num := range d.table.ObjectNumbers() {
		if d.table.Get(num).Type != xref.EntryCompressed {
			continue
		}
		if _, err := d.Object(int64(num)); err != nil {
			return fmt.Errorf("object %d: %w", num, err)
		}
		d.dirty[int64(num)] = true
	}
	return nil
}

func writeStreamSection(buf *bytes.Buffer, trailer *Dictionary, rows []xref.Row, streamNumber int64) []byte {
	offset := int64(buf.Len())
	rows = append(rows, xref.Row{Number: int(streamNumber), Offset: offset})
	data, index := xref.EncodeStream(rows)

	if size := trailer.GetInt("Size"); streamNumber+1 > size {
		trailer.Set("Size", NewInt(streamNumber+1))
	}

	dict := NewDictionary()
	dict.Set("Type", NewName("XRef"))
	for _, key := range trailer.Keys {
		dict.Set(key.Value, trailer.Get(key.Value))
	}

	widths := NewArray()
	for _, w := range xref.StreamWidths {
		widths.Add(NewInt(int64(w)))
	}
	dict.Set("W", widths)

	indexArr := NewArray()
	for _, v := range index {
		indexArr.Add(NewInt(int64(v)))
	}
	dict.Set("Index", indexArr)

	fmt.Fprintf(buf, "%d 0 obj\n", streamNumber)
	buf.Write(appendObject(nil, NewStream(dict, data)))
	buf.WriteString("\nendobj\n")
	fmt.Fprintf(buf, "%s\n%d\n%%%%EOF\n", StartXRefKeyword, offset)
	return buf.Bytes()
}
