package custom

import (
	"bytes"
	"strconv"
)

// TokenType represents the type of a lexical token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenHexString
	TokenName
	TokenKeyword
	TokenArrayStart // [
	TokenArrayEnd   // ]
	TokenDictStart  // <<
	TokenDictEnd    // >>
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenNumber:
		return "NUMBER"
	case TokenString:
		return "STRING"
	case TokenHexString:
		return "HEXSTRING"
	case TokenName:
		return "NAME"
	case TokenKeyword:
		return "KEYWORD"
	case TokenArrayStart:
		return "ARRAY_START"
	case TokenArrayEnd:
		return "ARRAY_END"
	case TokenDictStart:
		return "DICT_START"
	case TokenDictEnd:
		return "DICT_END"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token. Value holds decoded bytes for strings
// and names.
type Token struct {
	Type  TokenType
	Value string
	Pos   int64
}

// PDFLexer tokenizes PDF syntax held in memory
type PDFLexer struct {
	data []byte
	pos  int
}

// NewPDFLexer creates a lexer positioned at the start of data
func NewPDFLexer(data []byte) *PDFLexer {
	return &PDFLexer{data: data}
}

// Position returns the current byte offset
func (l *PDFLexer) Position() int64 {
	return int64(l.pos)
}

// Seek moves the lexer to offset
func (l *PDFLexer) Seek(offset int64) {
	if offset < 0 {
		offset = 0
	}
	if offset > int64(len(l.data)) {
		offset = int64(len(l.data))
	}
	l.pos = int(offset)
}

// Data returns the buffer being tokenized
func (l *PDFLexer) Data() []byte {
	return l.data
}

// SkipWhitespace skips whitespace and comments
func (l *PDFLexer) SkipWhitespace() {
	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		if IsWhitespace(ch) {
			l.pos++
			continue
		}
		if ch == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

// HasPrefix reports whether the input at the current position starts with s
func (l *PDFLexer) HasPrefix(s string) bool {
	return bytes.HasPrefix(l.data[l.pos:], []byte(s))
}

// NextToken returns the next token from the input
func (l *PDFLexer) NextToken() (Token, error) {
	l.SkipWhitespace()

	start := int64(l.pos)
	if l.pos >= len(l.data) {
		return Token{Type: TokenEOF, Pos: start}, nil
	}

	ch := l.data[l.pos]
	switch {
	case ch == '(':
		return l.readLiteralString()
	case ch == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			return Token{Type: TokenDictStart, Value: "<<", Pos: start}, nil
		}
		return l.readHexString()
	case ch == '>':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '>' {
			l.pos += 2
			return Token{Type: TokenDictEnd, Value: ">>", Pos: start}, nil
		}
		l.pos++
		return Token{}, NewParseError("unexpected '>'", start)
	case ch == '[':
		l.pos++
		return Token{Type: TokenArrayStart, Value: "[", Pos: start}, nil
	case ch == ']':
		l.pos++
		return Token{Type: TokenArrayEnd, Value: "]", Pos: start}, nil
	case ch == '/':
		return l.readName()
	case ch == '+' || ch == '-' || ch == '.' || (ch >= '0' && ch <= '9'):
		return l.readNumber()
	case ch == ')' || ch == '{' || ch == '}':
		l.pos++
		return Token{}, NewParseError("unexpected delimiter "+string(ch), start)
	default:
		return l.readKeyword()
	}
}

// readLiteralString reads a (...) string, handling escapes, octal codes,
// balanced parentheses and line continuations. End-of-line sequences
// inside the string are normalized to a single LF.
func (l *PDFLexer) readLiteralString() (Token, error) {
	start := int64(l.pos)
	l.pos++ // skip (

	var buf bytes.Buffer
	depth := 1

	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		l.pos++

		switch ch {
		case '(':
			depth++
			buf.WriteByte(ch)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Value: buf.String(), Pos: start}, nil
			}
			buf.WriteByte(ch)
		case '\r':
			buf.WriteByte('\n')
			if l.pos < len(l.data) && l.data[l.pos] == '\n' {
				l.pos++
			}
		case '\\':
			if l.pos >= len(l.data) {
				break
			}
			esc := l.data[l.pos]
			l.pos++
			switch esc {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '(', ')', '\\':
				buf.WriteByte(esc)
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
				// line continuation
			default:
				if esc >= '0' && esc <= '7' {
					val := int(esc - '0')
					for i := 0; i < 2 && l.pos < len(l.data); i++ {
						d := l.data[l.pos]
						if d < '0' || d > '7' {
							break
						}
						val = val*8 + int(d-'0')
						l.pos++
					}
					buf.WriteByte(byte(val))
				} else {
					// unknown escapes drop the backslash
					buf.WriteByte(esc)
				}
			}
		default:
			buf.WriteByte(ch)
		}
	}

	return Token{}, NewParseError("unterminated literal string", start)
}

// readHexString reads a <...> string and decodes it. An odd trailing digit
// is padded with 0.
func (l *PDFLexer) readHexString() (Token, error) {
	start := int64(l.pos)
	l.pos++ // skip <

	var buf bytes.Buffer
	var hi byte
	half := false

	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		l.pos++

		if ch == '>' {
			if half {
				buf.WriteByte(hi << 4)
			}
			return Token{Type: TokenHexString, Value: buf.String(), Pos: start}, nil
		}
		if IsWhitespace(ch) {
			continue
		}

		v, ok := hexValue(ch)
		if !ok {
			return Token{}, NewParseError("invalid hex digit in string", int64(l.pos-1))
		}
		if half {
			buf.WriteByte(hi<<4 | v)
			half = false
		} else {
			hi = v
			half = true
		}
	}

	return Token{}, NewParseError("unterminated hex string", start)
}

// readName reads a /Name, decoding #xx escapes
func (l *PDFLexer) readName() (Token, error) {
	start := int64(l.pos)
	l.pos++ // skip /

	var buf bytes.Buffer
	for l.pos < len(l.data) && IsRegular(l.data[l.pos]) {
		ch := l.data[l.pos]
		if ch == '#' && l.pos+2 < len(l.data) {
			hi, ok1 := hexValue(l.data[l.pos+1])
			lo, ok2 := hexValue(l.data[l.pos+2])
			if ok1 && ok2 {
				buf.WriteByte(hi<<4 | lo)
				l.pos += 3
				continue
			}
		}
		buf.WriteByte(ch)
		l.pos++
	}

	return Token{Type: TokenName, Value: buf.String(), Pos: start}, nil
}

// readNumber reads an integer or real number
func (l *PDFLexer) readNumber() (Token, error) {
	start := l.pos
	if l.data[l.pos] == '+' || l.data[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.data) {
		ch := l.data[l.pos]
		if (ch >= '0' && ch <= '9') || ch == '.' {
			l.pos++
			continue
		}
		break
	}

	text := string(l.data[start:l.pos])
	if text == "+" || text == "-" || text == "." {
		return Token{}, NewParseError("invalid number "+strconv.Quote(text), int64(start))
	}
	return Token{Type: TokenNumber, Value: text, Pos: int64(start)}, nil
}

// readKeyword reads a bare word such as true, null, obj or R
func (l *PDFLexer) readKeyword() (Token, error) {
	start := l.pos
	for l.pos < len(l.data) && IsRegular(l.data[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		l.pos++
		return Token{}, NewParseError("unexpected character", int64(start))
	}
	return Token{Type: TokenKeyword, Value: string(l.data[start:l.pos]), Pos: int64(start)}, nil
}

func hexValue(ch byte) (byte, bool) {
	switch {
	case ch >= '0' && ch <= '9':
		return ch - '0', true
	case ch >= 'a' && ch <= 'f':
		return ch - 'a' + 10, true
	case ch >= 'A' && ch <= 'F':
		return ch - 'A' + 10, true
	}
	return 0, false
}
