package custom

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const maxNestingDepth = 256

// Parser reads PDF objects out of an in-memory buffer
type Parser struct {
	lexer *PDFLexer
	depth int

	// resolveLength follows an indirect /Length value
	resolveLength func(PDFObject) (int64, bool)
}

// NewParser creates a parser over data
func NewParser(data []byte) *Parser {
	return &Parser{lexer: NewPDFLexer(data)}
}

// ParseIndirectObjectAt parses "N G obj ... endobj" starting at offset
func (p *Parser) ParseIndirectObjectAt(offset int64) (*IndirectObject, error) {
	if offset < 0 || offset >= int64(len(p.lexer.Data())) {
		return nil, NewParseError("object offset outside file", offset)
	}
	p.lexer.Seek(offset)
	return p.parseIndirectObject()
}

// ParseObjectAt parses a single direct object starting at offset
func (p *Parser) ParseObjectAt(offset int64) (PDFObject, error) {
	p.lexer.Seek(offset)
	p.depth = 0
	return p.parseObject()
}

func (p *Parser) parseIndirectObject() (*IndirectObject, error) {
	start := p.lexer.Position()

	numTok, err := p.lexer.NextToken()
	if err != nil {
		return nil, err
	}
	genTok, err := p.lexer.NextToken()
	if err != nil {
		return nil, err
	}
	objTok, err := p.lexer.NextToken()
	if err != nil {
		return nil, err
	}

	if numTok.Type != TokenNumber || genTok.Type != TokenNumber || objTok.Type != TokenKeyword || objTok.Value != ObjKeyword {
		return nil, NewParseError("expected object header 'N G obj'", start)
	}

	num, err1 := strconv.ParseInt(numTok.Value, 10, 64)
	gen, err2 := strconv.ParseInt(genTok.Value, 10, 64)
	if err1 != nil || err2 != nil {
		return nil, NewParseError("invalid object number", start)
	}

	p.depth = 0
	obj, err := p.parseObject()
	if err != nil {
		return nil, err
	}

	if kw, ok := obj.(*Keyword); ok {
		if kw.Value != EndObjKeyword {
			return nil, NewParseErrorWithContext("unexpected keyword in object body", start, kw.Value)
		}
		// "N G obj endobj" is an empty object
		return &IndirectObject{ID: ObjectID{Number: num, Generation: gen}, Object: &Null{}}, nil
	}

	if dict, ok := obj.(*Dictionary); ok {
		obj, err = p.checkForStream(dict)
		if err != nil {
			return nil, err
		}
	}

	return &IndirectObject{ID: ObjectID{Number: num, Generation: gen}, Object: obj}, nil
}

// parseObject parses the next object. Bare keywords other than true,
// false and null are returned as *Keyword for the caller to judge.
func (p *Parser) parseObject() (PDFObject, error) {
	tok, err := p.lexer.NextToken()
	if err != nil {
		return nil, err
	}
	return p.parseTokenAsObject(tok)
}

func (p *Parser) parseTokenAsObject(tok Token) (PDFObject, error) {
	switch tok.Type {
	case TokenEOF:
		return nil, NewParseError("unexpected end of file", tok.Pos)
	case TokenNumber:
		return p.parseNumberOrRef(tok)
	case TokenString:
		return &String{Value: tok.Value}, nil
	case TokenHexString:
		return &String{Value: tok.Value, IsHex: true}, nil
	case TokenName:
		return &Name{Value: tok.Value}, nil
	case TokenArrayStart:
		return p.nested(p.parseArray)
	case TokenDictStart:
		return p.nested(p.parseDictionary)
	case TokenKeyword:
		switch tok.Value {
		case "true":
			return &Bool{Value: true}, nil
		case "false":
			return &Bool{Value: false}, nil
		case "null":
			return &Null{}, nil
		}
		return &Keyword{Value: tok.Value}, nil
	default:
		return nil, NewParseErrorWithContext("unexpected token", tok.Pos, tok.Type.String())
	}
}

func (p *Parser) nested(parse func() (PDFObject, error)) (PDFObject, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxNestingDepth {
		return nil, NewParseError("objects nested too deeply", p.lexer.Position())
	}
	return parse()
}

func parseNumber(text string) *Number {
	if !strings.Contains(text, ".") {
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			return NewInt(v)
		}
	}
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return NewReal(v)
	}
	// Malformed numbers such as "--5" or "1.2.3" read as zero.
	return NewInt(0)
}

// parseNumberOrRef handles the "N G R" lookahead
func (p *Parser) parseNumberOrRef(numTok Token) (PDFObject, error) {
	num := parseNumber(numTok.Value)
	if !num.IsInteger() || num.Int() < 0 {
		return num, nil
	}

	saved := p.lexer.Position()
	genTok, err := p.lexer.NextToken()
	if err != nil || genTok.Type != TokenNumber {
		p.lexer.Seek(saved)
		return num, nil
	}
	gen := parseNumber(genTok.Value)
	if !gen.IsInteger() || gen.Int() < 0 {
		p.lexer.Seek(saved)
		return num, nil
	}

	rTok, err := p.lexer.NextToken()
	if err != nil || rTok.Type != TokenKeyword || rTok.Value != "R" {
		p.lexer.Seek(saved)
		return num, nil
	}

	return &IndirectRef{ObjectID: ObjectID{Number: num.Int(), Generation: gen.Int()}}, nil
}

func (p *Parser) parseArray() (PDFObject, error) {
	start := p.lexer.Position()
	arr := &Array{}

	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case TokenArrayEnd:
			return arr, nil
		case TokenEOF:
			return nil, NewParseError("unterminated array", start)
		}

		obj, err := p.parseTokenAsObject(tok)
		if err != nil {
			return nil, err
		}
		if kw, ok := obj.(*Keyword); ok {
			return nil, NewParseErrorWithContext("unexpected keyword in array", tok.Pos, kw.Value)
		}
		arr.Add(obj)
	}
}

func (p *Parser) parseDictionary() (PDFObject, error) {
	start := p.lexer.Position()
	dict := NewDictionary()

	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		switch tok.Type {
		case TokenDictEnd:
			return dict, nil
		case TokenEOF:
			return nil, NewParseError("unterminated dictionary", start)
		case TokenName:
		default:
			return nil, NewParseErrorWithContext("expected name as dictionary key", tok.Pos, tok.Value)
		}

		valueTok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}
		if valueTok.Type == TokenDictEnd {
			// a key without a value, treated as null
			dict.Set(tok.Value, &Null{})
			return dict, nil
		}

		value, err := p.parseTokenAsObject(valueTok)
		if err != nil {
			return nil, err
		}
		if kw, ok := value.(*Keyword); ok {
			return nil, NewParseErrorWithContext("unexpected keyword in dictionary", valueTok.Pos, kw.Value)
		}
		dict.Set(tok.Value, value)
	}
}

// checkForStream reads stream data following dict when present. A /Length
// that does not land on "endstream" is ignored and the data is delimited
// by searching for the keyword instead.
func (p *Parser) checkForStream(dict *Dictionary) (PDFObject, error) {
	saved := p.lexer.Position()
	p.lexer.SkipWhitespace()
	if !p.lexer.HasPrefix(StreamKeyword) {
		p.lexer.Seek(saved)
		return dict, nil
	}

	data := p.lexer.Data()
	pos := int(p.lexer.Position()) + len(StreamKeyword)
	if pos < len(data) && IsRegular(data[pos]) {
		p.lexer.Seek(saved)
		return dict, nil
	}
	for pos < len(data) && (data[pos] == ' ' || data[pos] == '\t') {
		pos++
	}
	if pos < len(data) && data[pos] == '\r' {
		pos++
	}
	if pos < len(data) && data[pos] == '\n' {
		pos++
	}
	dataStart := pos

	if length, ok := p.streamLength(dict); ok && length >= 0 && dataStart+int(length) <= len(data) {
		end := dataStart + int(length)
		after := end
		for after < len(data) && IsWhitespace(data[after]) {
			after++
		}
		if bytes.HasPrefix(data[after:], []byte(EndStreamKeyword)) {
			p.lexer.Seek(int64(after + len(EndStreamKeyword)))
			p.skipEndObj()
			return &Stream{Dict: dict, Data: data[dataStart:end:end], Offset: int64(dataStart)}, nil
		}
	}

	idx := bytes.Index(data[dataStart:], []byte(EndStreamKeyword))
	if idx < 0 {
		return nil, NewParseError("stream without endstream", int64(dataStart))
	}
	end := dataStart + idx
	if end > dataStart && data[end-1] == '\n' {
		end--
	}
	if end > dataStart && data[end-1] == '\r' {
		end--
	}

	p.lexer.Seek(int64(dataStart + idx + len(EndStreamKeyword)))
	p.skipEndObj()
	return &Stream{Dict: dict, Data: data[dataStart:end:end], Offset: int64(dataStart)}, nil
}

func (p *Parser) streamLength(dict *Dictionary) (int64, bool) {
	switch l := dict.Get("Length").(type) {
	case *Number:
		return l.Int(), true
	case *IndirectRef:
		if p.resolveLength != nil {
			return p.resolveLength(l)
		}
	}
	return 0, false
}

func (p *Parser) skipEndObj() {
	saved := p.lexer.Position()
	p.lexer.SkipWhitespace()
	if p.lexer.HasPrefix(EndObjKeyword) {
		p.lexer.Seek(p.lexer.Position() + int64(len(EndObjKeyword)))
		return
	}
	p.lexer.Seek(saved)
}

// parseObjectStream returns the objects packed in a decoded /ObjStm body,
// keyed by object number.
func parseObjectStream(decoded []byte, count, first int64) (map[int64]PDFObject, []int64, error) {
	header := NewPDFLexer(decoded)
	numbers := make([]int64, 0, count)
	offsets := make([]int64, 0, count)

	for i := int64(0); i < count; i++ {
		numTok, err := header.NextToken()
		if err != nil {
			return nil, nil, err
		}
		offTok, err := header.NextToken()
		if err != nil {
			return nil, nil, err
		}
		if numTok.Type != TokenNumber || offTok.Type != TokenNumber {
			return nil, nil, fmt.Errorf("object stream header truncated after %d entries", i)
		}
		numbers = append(numbers, parseNumber(numTok.Value).Int())
		offsets = append(offsets, parseNumber(offTok.Value).Int())
	}

	objects := make(map[int64]PDFObject, count)
	parser := NewParser(decoded)
	for i, num := range numbers {
		at := first + offsets[i]
		if at < 0 || at >= int64(len(decoded)) {
			return nil, nil, fmt.Errorf("object %d offset outside object stream", num)
		}
		obj, err := parser.ParseObjectAt(at)
		if err != nil {
			return nil, nil, fmt.Errorf("object %d in object stream: %w", num, err)
		}
		if _, exists := objects[num]; !exists {
			objects[num] = obj
		}
	}
	return objects, numbers, nil
}
