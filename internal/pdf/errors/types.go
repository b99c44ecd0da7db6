package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind identifies the category of a fill failure
type Kind int

const (
	KindUnknown Kind = iota
	KindCorruptDocument
	KindNoFormFields
	KindRecordNotFound
	KindAmbiguousAggregation
	KindSerializationError
)

// Severity indicates how a problem affects the output
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

// String returns a string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindCorruptDocument:
		return "CORRUPT_DOCUMENT"
	case KindNoFormFields:
		return "NO_FORM_FIELDS"
	case KindRecordNotFound:
		return "RECORD_NOT_FOUND"
	case KindAmbiguousAggregation:
		return "AMBIGUOUS_AGGREGATION"
	case KindSerializationError:
		return "SERIALIZATION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Severity returns the severity of a kind. Every kind aborts the request;
// the document kinds are fatal because no retry with other data can help.
func (k Kind) Severity() Severity {
	switch k {
	case KindCorruptDocument, KindSerializationError:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// FillError is returned by every failed fill. No output is produced when
// one is returned.
type FillError struct {
	Kind        Kind     `json:"kind"`
	Message     string   `json:"message"`
	Field       string   `json:"field,omitempty"`
	Identifiers []string `json:"identifiers,omitempty"`
	Err         error    `json:"-"`
}

// Error implements the error interface
func (e *FillError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Kind, e.Message)
	if e.Field != "" {
		fmt.Fprintf(&sb, " (field %q)", e.Field)
	}
	if len(e.Identifiers) > 0 {
		fmt.Fprintf(&sb, " (identifiers %s)", strings.Join(e.Identifiers, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// Unwrap returns the underlying cause
func (e *FillError) Unwrap() error { return e.Err }

// Is matches another FillError of the same kind, so the Err* sentinels
// work with errors.Is.
func (e *FillError) Is(target error) bool {
	t, ok := target.(*FillError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Field == "" && len(t.Identifiers) == 0
}

// Sentinels for errors.Is
var (
	ErrCorruptDocument      = &FillError{Kind: KindCorruptDocument}
	ErrNoFormFields         = &FillError{Kind: KindNoFormFields}
	ErrRecordNotFound       = &FillError{Kind: KindRecordNotFound}
	ErrAmbiguousAggregation = &FillError{Kind: KindAmbiguousAggregation}
	ErrSerialization        = &FillError{Kind: KindSerializationError}
)

// New creates a FillError
func New(kind Kind, message string) *FillError {
	return &FillError{Kind: kind, Message: message}
}

// Wrap creates a FillError caused by err
func Wrap(kind Kind, err error, message string) *FillError {
	return &FillError{Kind: kind, Message: message, Err: err}
}

// RecordNotFound names the identifiers that matched no record
func RecordNotFound(ids []string) *FillError {
	return &FillError{
		Kind:        KindRecordNotFound,
		Message:     "no record for the selected identifier(s)",
		Identifiers: append([]string(nil), ids...),
	}
}

// Ambiguous reports a field whose values cannot be combined
func Ambiguous(field, message string) *FillError {
	return &FillError{Kind: KindAmbiguousAggregation, Message: message, Field: field}
}

// WithField sets the field the error concerns
func (e *FillError) WithField(field string) *FillError {
	e.Field = field
	return e
}

// IsKind reports whether err is, or wraps, a FillError of kind
func IsKind(err error, kind Kind) bool {
	var fe *FillError
	if stderrors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first FillError in err's chain
func KindOf(err error) Kind {
	var fe *FillError
	if stderrors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Warning is a non-fatal problem; the output is still produced.
type Warning struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.Field == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}

// Warnings accumulates warnings in the order they were raised.
type Warnings struct {
	items []Warning
}

// Add records a warning
func (ws *Warnings) Add(field, format string, args ...interface{}) {
	ws.items = append(ws.items, Warning{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Merge appends other's warnings
func (ws *Warnings) Merge(other []Warning) {
	ws.items = append(ws.items, other...)
}

// List returns the warnings
func (ws *Warnings) List() []Warning {
	return append([]Warning(nil), ws.items...)
}

// Len returns the number of warnings
func (ws *Warnings) Len() int { return len(ws.items) }

// Summary returns a text summary of the warnings
func (ws *Warnings) Summary() string {
	switch len(ws.items) {
	case 0:
		return "No warnings"
	case 1:
		return "1 warning: " + ws.items[0].String()
	}
	return fmt.Sprintf("%d warnings", len(ws.items))
}
