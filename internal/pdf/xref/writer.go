package xref

import (
	"bytes"
	"fmt"
	"sort"
)

// Row is an in-use entry emitted by an incremental update.
type Row struct {
	Number     int
	Generation int
	Offset     int64
}

// sortRows orders rows by object number and drops duplicates, keeping the
// last row given for a number.
func sortRows(rows []Row) []Row {
	byNumber := make(map[int]Row, len(rows))
	for _, r := range rows {
		byNumber[r.Number] = r
	}
	out := make([]Row, 0, len(byNumber))
	for _, r := range byNumber {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// subsections groups sorted rows into runs of consecutive object numbers.
func subsections(rows []Row) [][]Row {
	var groups [][]Row
	for i := 0; i < len(rows); {
		j := i + 1
		for j < len(rows) && rows[j].Number == rows[j-1].Number+1 {
			j++
		}
		groups = append(groups, rows[i:j])
		i = j
	}
	return groups
}

// WriteTable writes a classic "xref" section. When includeFreeHead is set
// the section starts with the free-list head for object 0, which a full
// table written after reconstruction needs.
func WriteTable(buf *bytes.Buffer, rows []Row, includeFreeHead bool) {
	rows = sortRows(rows)
	buf.WriteString("xref\n")

	if includeFreeHead {
		if len(rows) > 0 && rows[0].Number == 1 {
			rows = append([]Row{{Number: 0, Generation: 65535}}, rows...)
		} else {
			buf.WriteString("0 1\n")
			buf.WriteString("0000000000 65535 f \n")
		}
	}

	for _, group := range subsections(rows) {
		fmt.Fprintf(buf, "%d %d\n", group[0].Number, len(group))
		for _, r := range group {
			if r.Number == 0 && includeFreeHead {
				buf.WriteString("0000000000 65535 f \n")
				continue
			}
			fmt.Fprintf(buf, "%010d %05d n \n", r.Offset, r.Generation)
		}
	}
}

// StreamWidths are the /W field widths used by EncodeStream.
var StreamWidths = []int{1, 4, 2}

// EncodeStream encodes rows for a cross-reference stream. It returns the
// unfiltered row bytes and the flattened /Index array.
func EncodeStream(rows []Row) ([]byte, []int) {
	rows = sortRows(rows)
	var data bytes.Buffer
	var index []int

	for _, group := range subsections(rows) {
		index = append(index, group[0].Number, len(group))
		for _, r := range group {
			data.WriteByte(1)
			data.Write([]byte{
				byte(r.Offset >> 24), byte(r.Offset >> 16), byte(r.Offset >> 8), byte(r.Offset),
			})
			data.Write([]byte{byte(r.Generation >> 8), byte(r.Generation)})
		}
	}
	return data.Bytes(), index
}
