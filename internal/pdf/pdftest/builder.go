// Package pdftest builds small, well-formed PDF files for tests. Offsets
// and cross-reference data are computed, so fixtures stay valid when their
// objects are edited.
package pdftest

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"
	"strings"
)

// Builder collects object bodies and writes them as a PDF file.
type Builder struct {
	objects map[int]string
	packed  map[int]bool
	next    int
	trailer []string
}

// New creates an empty builder. Object numbers start at 1.
func New() *Builder {
	return &Builder{
		objects: make(map[int]string),
		packed:  make(map[int]bool),
		next:    1,
	}
}

// Add appends an object body and returns its number.
func (b *Builder) Add(body string) int {
	num := b.next
	b.objects[num] = body
	b.next++
	return num
}

// Reserve allocates an object number to be filled in later with Set.
func (b *Builder) Reserve() int {
	num := b.next
	b.objects[num] = "null"
	b.next++
	return num
}

// Set replaces the body of object num.
func (b *Builder) Set(num int, body string) {
	b.objects[num] = body
	if num >= b.next {
		b.next = num + 1
	}
}

// Pack places objects in an object stream when written with XRefStream.
func (b *Builder) Pack(nums ...int) {
	for _, n := range nums {
		b.packed[n] = true
	}
}

// TrailerEntry adds a raw key/value pair to the trailer, such as "/Info 5 0 R".
func (b *Builder) TrailerEntry(entry string) {
	b.trailer = append(b.trailer, entry)
}

// Stream formats a stream object body with a correct /Length.
func Stream(dict string, data []byte) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

// FlateStream formats a zlib-compressed stream object body.
func FlateStream(dict string, data []byte) string {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return Stream(dict+" /Filter /FlateDecode", buf.Bytes())
}

func (b *Builder) numbers() []int {
	nums := make([]int, 0, len(b.objects))
	for n := range b.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func header(buf *bytes.Buffer) {
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
}

// Bytes writes the file with a classic cross-reference table.
func (b *Builder) Bytes(root int) []byte {
	var buf bytes.Buffer
	header(&buf)

	offsets := make(map[int]int)
	for _, n := range b.numbers() {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, b.objects[n])
	}

	xrefOffset := buf.Len()
	size := b.next
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for n := 1; n < size; n++ {
		if off, ok := offsets[n]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", off)
		} else {
			buf.WriteString("0000000000 00001 f \n")
		}
	}

	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R %s>>\n", size, root, b.trailerExtra())
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}

func (b *Builder) trailerExtra() string {
	if len(b.trailer) == 0 {
		return ""
	}
	return strings.Join(b.trailer, " ") + " "
}

// XRefStream writes the file with a compressed cross-reference stream.
// Objects marked with Pack go into a single object stream.
func (b *Builder) XRefStream(root int) []byte {
	var buf bytes.Buffer
	header(&buf)

	type row struct {
		kind byte
		f2   int
		f3   int
	}
	rows := make(map[int]row)

	var packedNums []int
	for _, n := range b.numbers() {
		if b.packed[n] {
			packedNums = append(packedNums, n)
			continue
		}
		rows[n] = row{kind: 1, f2: buf.Len()}
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, b.objects[n])
	}

	size := b.next
	if len(packedNums) > 0 {
		objStm := size
		size++

		var head, body bytes.Buffer
		for i, n := range packedNums {
			fmt.Fprintf(&head, "%d %d ", n, body.Len())
			body.WriteString(b.objects[n])
			body.WriteString("\n")
			rows[n] = row{kind: 2, f2: objStm, f3: i}
		}
		content := append(head.Bytes(), body.Bytes()...)
		rows[objStm] = row{kind: 1, f2: buf.Len()}
		dict := fmt.Sprintf("/Type /ObjStm /N %d /First %d", len(packedNums), head.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", objStm, FlateStream(dict, content))
	}

	xrefNum := size
	size++
	xrefOffset := buf.Len()
	rows[xrefNum] = row{kind: 1, f2: xrefOffset}

	var data bytes.Buffer
	for n := 0; n < size; n++ {
		r, ok := rows[n]
		if !ok {
			data.Write([]byte{0, 0, 0, 0, 0, 0, 0})
			continue
		}
		data.WriteByte(r.kind)
		data.Write([]byte{byte(r.f2 >> 24), byte(r.f2 >> 16), byte(r.f2 >> 8), byte(r.f2)})
		data.Write([]byte{byte(r.f3 >> 8), byte(r.f3)})
	}

	dict := fmt.Sprintf("/Type /XRef /Size %d /W [1 4 2] /Root %d 0 R %s", size, root, strings.TrimSpace(b.trailerExtra()))
	fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", xrefNum, FlateStream(dict, data.Bytes()))
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return buf.Bytes()
}
