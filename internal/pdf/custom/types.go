package custom

import (
	"fmt"
	"strconv"
)

// ObjectType represents the type of a PDF object
type ObjectType int

const (
	TypeNull ObjectType = iota
	TypeBool
	TypeNumber
	TypeString
	TypeName
	TypeArray
	TypeDictionary
	TypeStream
	TypeIndirectRef
	TypeKeyword
)

func (t ObjectType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeName:
		return "name"
	case TypeArray:
		return "array"
	case TypeDictionary:
		return "dictionary"
	case TypeStream:
		return "stream"
	case TypeIndirectRef:
		return "indirect_ref"
	case TypeKeyword:
		return "keyword"
	default:
		return "unknown"
	}
}

// PDFObject is the base interface for all PDF objects. String returns the
// object's PDF syntax.
type PDFObject interface {
	Type() ObjectType
	String() string
}

// ObjectID represents a PDF object identifier
type ObjectID struct {
	Number     int64
	Generation int64
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%d %d", id.Number, id.Generation)
}

// Null represents a PDF null object
type Null struct{}

func (n *Null) Type() ObjectType { return TypeNull }
func (n *Null) String() string   { return "null" }

// Bool represents a PDF boolean object
type Bool struct {
	Value bool
}

func (b *Bool) Type() ObjectType { return TypeBool }
func (b *Bool) String() string {
	if b.Value {
		return "true"
	}
	return "false"
}

// Number represents a PDF numeric object (integer or real)
type Number struct {
	Value interface{} // int64 or float64
}

// NewInt creates an integer number
func NewInt(v int64) *Number { return &Number{Value: v} }

// NewReal creates a real number
func NewReal(v float64) *Number { return &Number{Value: v} }

func (n *Number) Type() ObjectType { return TypeNumber }
func (n *Number) String() string {
	switch v := n.Value.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return formatReal(v)
	default:
		return "0"
	}
}

func (n *Number) Int() int64 {
	switch v := n.Value.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func (n *Number) Float() float64 {
	switch v := n.Value.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		return 0.0
	}
}

// IsInteger reports whether the number was written without a fraction.
func (n *Number) IsInteger() bool {
	_, ok := n.Value.(int64)
	return ok
}

// String represents a PDF string object. Value holds the decoded bytes;
// IsHex only selects the form used when the string is written back.
type String struct {
	Value string
	IsHex bool
}

// NewLiteral creates a literal string from raw bytes
func NewLiteral(v string) *String { return &String{Value: v} }

func (s *String) Type() ObjectType { return TypeString }
func (s *String) String() string {
	if s.IsHex {
		return encodeHexString(s.Value)
	}
	return encodeLiteralString(s.Value)
}

// Name represents a PDF name object
type Name struct {
	Value string
}

// NewName creates a name object
func NewName(v string) *Name { return &Name{Value: v} }

func (n *Name) Type() ObjectType { return TypeName }
func (n *Name) String() string   { return encodeName(n.Value) }

// Array represents a PDF array object
type Array struct {
	Elements []PDFObject
}

// NewArray creates an array holding elems
func NewArray(elems ...PDFObject) *Array {
	return &Array{Elements: elems}
}

func (a *Array) Type() ObjectType { return TypeArray }
func (a *Array) String() string {
	return string(appendObject(nil, a))
}

func (a *Array) Len() int {
	return len(a.Elements)
}

func (a *Array) Get(index int) PDFObject {
	if index >= 0 && index < len(a.Elements) {
		return a.Elements[index]
	}
	return &Null{}
}

func (a *Array) Add(obj PDFObject) {
	a.Elements = append(a.Elements, obj)
}

// Dictionary represents a PDF dictionary object. Keys keeps insertion
// order so rewritten objects stay close to their source.
type Dictionary struct {
	Keys   []Name
	Values map[string]PDFObject
}

func NewDictionary() *Dictionary {
	return &Dictionary{
		Keys:   make([]Name, 0),
		Values: make(map[string]PDFObject),
	}
}

func (d *Dictionary) Type() ObjectType { return TypeDictionary }
func (d *Dictionary) String() string {
	return string(appendObject(nil, d))
}

func (d *Dictionary) Get(key string) PDFObject {
	if obj, exists := d.Values[key]; exists {
		return obj
	}
	return &Null{}
}

func (d *Dictionary) Set(key string, value PDFObject) {
	if _, exists := d.Values[key]; !exists {
		d.Keys = append(d.Keys, Name{Value: key})
	}
	d.Values[key] = value
}

func (d *Dictionary) Has(key string) bool {
	_, exists := d.Values[key]
	return exists
}

func (d *Dictionary) Remove(key string) {
	if _, exists := d.Values[key]; exists {
		delete(d.Values, key)
		for i, k := range d.Keys {
			if k.Value == key {
				d.Keys = append(d.Keys[:i], d.Keys[i+1:]...)
				break
			}
		}
	}
}

func (d *Dictionary) Len() int {
	return len(d.Keys)
}

// Convenience accessors for direct values. They do not follow references.
func (d *Dictionary) GetString(key string) string {
	if obj := d.Get(key); obj.Type() == TypeString {
		return obj.(*String).Value
	}
	return ""
}

func (d *Dictionary) GetInt(key string) int64 {
	if obj := d.Get(key); obj.Type() == TypeNumber {
		return obj.(*Number).Int()
	}
	return 0
}

func (d *Dictionary) GetBool(key string) bool {
	if obj := d.Get(key); obj.Type() == TypeBool {
		return obj.(*Bool).Value
	}
	return false
}

func (d *Dictionary) GetName(key string) string {
	if obj := d.Get(key); obj.Type() == TypeName {
		return obj.(*Name).Value
	}
	return ""
}

func (d *Dictionary) GetArray(key string) *Array {
	if obj := d.Get(key); obj.Type() == TypeArray {
		return obj.(*Array)
	}
	return &Array{}
}

func (d *Dictionary) GetDictionary(key string) *Dictionary {
	if obj := d.Get(key); obj.Type() == TypeDictionary {
		return obj.(*Dictionary)
	}
	return NewDictionary()
}

// Stream represents a PDF stream object. Data always holds the bytes as
// stored, encoded with the filters named in Dict.
type Stream struct {
	Dict   *Dictionary
	Data   []byte
	Offset int64 // file offset where stream data starts, 0 for new streams
}

// NewStream creates an unfiltered stream over data.
func NewStream(dict *Dictionary, data []byte) *Stream {
	if dict == nil {
		dict = NewDictionary()
	}
	dict.Set("Length", NewInt(int64(len(data))))
	return &Stream{Dict: dict, Data: data}
}

func (s *Stream) Type() ObjectType { return TypeStream }
func (s *Stream) String() string {
	return string(appendObject(nil, s))
}

func (s *Stream) GetFilter() []string {
	filterObj := s.Dict.Get("Filter")

	var filters []string
	switch f := filterObj.(type) {
	case *Name:
		filters = append(filters, f.Value)
	case *Array:
		for _, elem := range f.Elements {
			if name, ok := elem.(*Name); ok {
				filters = append(filters, name.Value)
			}
		}
	}
	return filters
}

// IndirectRef represents an indirect object reference
type IndirectRef struct {
	ObjectID ObjectID
}

// NewRef creates a reference to id
func NewRef(id ObjectID) *IndirectRef { return &IndirectRef{ObjectID: id} }

func (r *IndirectRef) Type() ObjectType { return TypeIndirectRef }
func (r *IndirectRef) String() string   { return fmt.Sprintf("%s R", r.ObjectID.String()) }

// Keyword represents a bare keyword found where an object was expected
type Keyword struct {
	Value string
}

func (k *Keyword) Type() ObjectType { return TypeKeyword }
func (k *Keyword) String() string   { return k.Value }

// IndirectObject represents an indirect object with its ID and content
type IndirectObject struct {
	ID     ObjectID
	Object PDFObject
}

func (io *IndirectObject) String() string {
	return fmt.Sprintf("%s obj\n%s\nendobj", io.ID.String(), io.Object.String())
}

// Clone returns a deep copy of obj. References are copied, not followed.
func Clone(obj PDFObject) PDFObject {
	switch v := obj.(type) {
	case *Array:
		out := &Array{Elements: make([]PDFObject, len(v.Elements))}
		for i, elem := range v.Elements {
			out.Elements[i] = Clone(elem)
		}
		return out
	case *Dictionary:
		out := NewDictionary()
		for _, key := range v.Keys {
			out.Set(key.Value, Clone(v.Values[key.Value]))
		}
		return out
	case *Stream:
		data := make([]byte, len(v.Data))
		copy(data, v.Data)
		return &Stream{Dict: Clone(v.Dict).(*Dictionary), Data: data}
	case *String:
		c := *v
		return &c
	case *Name:
		c := *v
		return &c
	case *Number:
		c := *v
		return &c
	case *Bool:
		c := *v
		return &c
	case *IndirectRef:
		c := *v
		return &c
	case nil:
		return &Null{}
	default:
		return obj
	}
}

// ParseError describes a syntax or structure problem in the file.
type ParseError struct {
	Message  string
	Position int64
	Context  string
}

func (e *ParseError) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("PDF parse error at position %d: %s", e.Position, e.Message)
	}
	return fmt.Sprintf("PDF parse error: %s", e.Message)
}

func NewParseError(msg string, pos int64) *ParseError {
	return &ParseError{
		Message:  msg,
		Position: pos,
	}
}

func NewParseErrorWithContext(msg string, pos int64, context string) *ParseError {
	return &ParseError{
		Message:  msg,
		Position: pos,
		Context:  context,
	}
}

// Constants for PDF parsing
const (
	PDFHeaderPattern = "%PDF-"

	ObjKeyword       = "obj"
	EndObjKeyword    = "endobj"
	StreamKeyword    = "stream"
	EndStreamKeyword = "endstream"
	TrailerKeyword   = "trailer"
	StartXRefKeyword = "startxref"
)

// IsWhitespace checks if a character is PDF whitespace
func IsWhitespace(ch byte) bool {
	return ch == 0 || ch == '\t' || ch == '\n' || ch == '\f' || ch == '\r' || ch == ' '
}

// IsDelimiter checks if a character is a PDF delimiter
func IsDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// IsRegular checks if a character is a regular character (not whitespace or delimiter)
func IsRegular(ch byte) bool {
	return !IsWhitespace(ch) && !IsDelimiter(ch)
}
