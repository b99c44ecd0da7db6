package forms

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// pdfDocDiffs lists the PDFDocEncoding code points that differ from
// Latin-1. 0x9F and 0xAD are undefined.
var pdfDocDiffs = map[byte]rune{
	0x18: '˘', 0x19: 'ˇ', 0x1A: 'ˆ', 0x1B: '˙',
	0x1C: '˝', 0x1D: '˛', 0x1E: '˚', 0x1F: '˜',
	0x80: '•', 0x81: '†', 0x82: '‡', 0x83: '…',
	0x84: '—', 0x85: '–', 0x86: 'ƒ', 0x87: '⁄',
	0x88: '‹', 0x89: '›', 0x8A: '−', 0x8B: '‰',
	0x8C: '„', 0x8D: '“', 0x8E: '”', 0x8F: '‘',
	0x90: '’', 0x91: '‚', 0x92: '™', 0x93: 'ﬁ',
	0x94: 'ﬂ', 0x95: 'Ł', 0x96: 'Œ', 0x97: 'Š',
	0x98: 'Ÿ', 0x99: 'Ž', 0x9A: 'ı', 0x9B: 'ł',
	0x9C: 'œ', 0x9D: 'š', 0x9E: 'ž', 0xA0: '€',
}

var pdfDocReverse = func() map[rune]byte {
	m := make(map[rune]byte, len(pdfDocDiffs))
	for b, r := range pdfDocDiffs {
		m[r] = b
	}
	return m
}()

// DecodeTextString converts the bytes of a PDF text string to UTF-8.
func DecodeTextString(raw string) string {
	switch {
	case strings.HasPrefix(raw, "\xfe\xff"):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if s, err := dec.String(raw); err == nil {
			return s
		}
	case strings.HasPrefix(raw, "\xef\xbb\xbf"):
		return raw[3:]
	}

	var sb strings.Builder
	sb.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if r, ok := pdfDocDiffs[b]; ok {
			sb.WriteRune(r)
			continue
		}
		sb.WriteRune(rune(b))
	}
	return sb.String()
}

// EncodeTextString converts UTF-8 to the bytes of a PDF text string:
// PDFDocEncoding when every character has a code, UTF-16BE with a byte
// order mark otherwise.
func EncodeTextString(s string) string {
	if out, ok := encodePDFDoc(s); ok {
		return out
	}
	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	out, err := enc.String(s)
	if err != nil {
		// invalid UTF-8 input; keep the bytes
		return s
	}
	return out
}

func encodePDFDoc(s string) (string, bool) {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if r == utf8.RuneError {
			return "", false
		}
		if b, ok := pdfDocReverse[r]; ok {
			buf = append(buf, b)
			continue
		}
		switch {
		case r == '\t' || r == '\n' || r == '\r':
		case r < 0x20 || r == 0x7F:
			return "", false
		case r >= 0x80 && r <= 0xA0:
			return "", false
		case r == 0xAD || r > 0xFF:
			return "", false
		}
		buf = append(buf, byte(r))
	}
	return string(buf), true
}

// winAnsi converts UTF-8 to WinAnsiEncoding for use with a standard
// Type1 font. Characters without a code become '?'.
func winAnsi(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := charmap.Windows1252.EncodeRune(r); ok {
			out = append(out, b)
			continue
		}
		out = append(out, '?')
	}
	return out
}

// unencodable returns the distinct characters of s that winAnsi replaces
func unencodable(s string) []rune {
	var out []rune
	seen := make(map[rune]bool)
	for _, r := range s {
		if _, ok := charmap.Windows1252.EncodeRune(r); ok || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
