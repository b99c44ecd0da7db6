package custom

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// appendObject appends the PDF syntax of obj to buf.
func appendObject(buf []byte, obj PDFObject) []byte {
	switch v := obj.(type) {
	case nil:
		return append(buf, "null"...)
	case *Array:
		buf = append(buf, '[')
		for i, elem := range v.Elements {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = appendObject(buf, elem)
		}
		return append(buf, ']')
	case *Dictionary:
		buf = append(buf, "<<"...)
		for _, key := range v.Keys {
			buf = append(buf, encodeName(key.Value)...)
			buf = append(buf, ' ')
			buf = appendObject(buf, v.Values[key.Value])
		}
		return append(buf, ">>"...)
	case *Stream:
		v.Dict.Set("Length", NewInt(int64(len(v.Data))))
		buf = appendObject(buf, v.Dict)
		buf = append(buf, "\nstream\n"...)
		buf = append(buf, v.Data...)
		return append(buf, "\nendstream"...)
	default:
		return append(buf, obj.String()...)
	}
}

// encodeLiteralString writes s as a (...) string
func encodeLiteralString(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('(')
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '(', ')', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(ch)
		case '\r':
			sb.WriteString(`\r`)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteByte(ch)
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

func encodeHexString(s string) string {
	return "<" + hex.EncodeToString([]byte(s)) + ">"
}

// encodeName writes a name, escaping bytes outside the regular printable range
func encodeName(name string) string {
	var sb strings.Builder
	sb.WriteByte('/')
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch < '!' || ch > '~' || ch == '#' || IsDelimiter(ch) {
			sb.WriteByte('#')
			sb.WriteString(strings.ToUpper(hex.EncodeToString([]byte{ch})))
			continue
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

// formatReal prints a real without exponent and with at most five decimals
func formatReal(v float64) string {
	s := strconv.FormatFloat(v, 'f', 5, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" || s == "-0" {
		return "0"
	}
	return s
}
