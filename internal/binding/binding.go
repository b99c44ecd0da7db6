// Package binding turns data records into the field-name to value map a
// form is filled with.
package binding

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	pdferrors "github.com/a3tai/mcp-pdf-form-filler/internal/pdf/errors"
)

// Value is a scalar read from a data source: string, bool, int64,
// float64, time.Time or nil.
type Value interface{}

// DataRecord is one read-only row, addressed by its identifier.
type DataRecord struct {
	ID     string
	Values map[string]Value
}

// Get returns the value of column and whether the column is present
func (r DataRecord) Get(column string) (Value, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// ValueBinding maps field names to the values written into them.
type ValueBinding map[string]Value

// Names returns the sorted field names
func (b ValueBinding) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Source provides records by identifier.
type Source interface {
	Lookup(id string) (DataRecord, bool)
	IDs() []string
}

// AggregationRule combines the values of several records for one field
type AggregationRule int

const (
	RuleNone AggregationRule = iota
	RuleMax
	RuleSum
	RuleFirst
)

func (r AggregationRule) String() string {
	switch r {
	case RuleMax:
		return "max"
	case RuleSum:
		return "sum"
	case RuleFirst:
		return "first"
	default:
		return "none"
	}
}

// ParseRule reads a rule name
func ParseRule(s string) (AggregationRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "max":
		return RuleMax, nil
	case "sum":
		return RuleSum, nil
	case "first":
		return RuleFirst, nil
	case "", "none":
		return RuleNone, nil
	}
	return RuleNone, fmt.Errorf("unknown aggregation rule %q (want max, sum or first)", s)
}

// Select fetches the records for ids in the order given. Every missing
// identifier is named in the returned error.
func Select(source Source, ids []string) ([]DataRecord, error) {
	if len(ids) == 0 {
		return nil, pdferrors.New(pdferrors.KindRecordNotFound, "no identifier selected")
	}

	records := make([]DataRecord, 0, len(ids))
	var missing []string
	for _, id := range ids {
		rec, ok := source.Lookup(strings.TrimSpace(id))
		if !ok {
			missing = append(missing, id)
			continue
		}
		records = append(records, rec)
	}
	if len(missing) > 0 {
		return nil, pdferrors.RecordNotFound(missing)
	}
	return records, nil
}

// Bind resolves every mapped field from records, then applies
// groupDefaults on top. A single record is copied directly. With several
// records each field that receives more than one distinct value needs a
// rule; `first` takes the first selected record's value as is.
func Bind(records []DataRecord, fieldToColumn map[string]string, groupDefaults map[string]Value, rules map[string]AggregationRule) (ValueBinding, error) {
	out, _, err := BindWithWarnings(records, fieldToColumn, groupDefaults, rules)
	return out, err
}

// BindWithWarnings is Bind, also reporting the fields whose identical
// values were merged across records without a rule.
func BindWithWarnings(records []DataRecord, fieldToColumn map[string]string, groupDefaults map[string]Value,
	rules map[string]AggregationRule) (ValueBinding, []pdferrors.Warning, error) {
	out := make(ValueBinding, len(fieldToColumn)+len(groupDefaults))
	var warnings pdferrors.Warnings

	fields := make([]string, 0, len(fieldToColumn))
	for field := range fieldToColumn {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		column := fieldToColumn[field]

		if len(records) > 1 && rules[field] == RuleFirst {
			if v, ok := records[0].Get(column); ok && v != nil {
				out[field] = v
			}
			continue
		}

		var candidates []Value
		for _, rec := range records {
			if v, ok := rec.Get(column); ok && v != nil {
				candidates = append(candidates, v)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		if len(records) == 1 {
			out[field] = candidates[0]
			continue
		}

		rule := rules[field]
		if rule == RuleNone {
			v, err := sameValue(field, candidates)
			if err != nil {
				return nil, nil, err
			}
			if len(candidates) > 1 {
				warnings.Add(field, "%d records share the value %q, bound without an aggregation rule",
					len(candidates), textOrEmpty(v))
			}
			out[field] = v
			continue
		}

		v, err := aggregate(field, candidates, rule)
		if err != nil {
			return nil, nil, err
		}
		out[field] = v
	}

	for field, v := range groupDefaults {
		out[field] = v
	}
	return out, warnings.List(), nil
}

func aggregate(field string, values []Value, rule AggregationRule) (Value, error) {
	switch rule {
	case RuleMax, RuleSum:
		nums := make([]float64, 0, len(values))
		for _, v := range values {
			n, ok := Number(v)
			if !ok {
				return nil, pdferrors.Ambiguous(field, fmt.Sprintf("%s needs numbers, got %q", rule, textOrEmpty(v)))
			}
			nums = append(nums, n)
		}
		var result float64
		if rule == RuleMax {
			result = nums[0]
			for _, n := range nums[1:] {
				result = math.Max(result, n)
			}
		} else {
			for _, n := range nums {
				result += n
			}
		}
		return numberValue(result), nil
	}
	return sameValue(field, values)
}

// sameValue returns the value all candidates agree on
func sameValue(field string, values []Value) (Value, error) {
	distinct := make(map[string]bool)
	for _, v := range values {
		distinct[textOrEmpty(v)] = true
	}
	if len(distinct) == 1 {
		return values[0], nil
	}
	return nil, pdferrors.Ambiguous(field, fmt.Sprintf("%d different values and no aggregation rule", len(distinct)))
}

// numberValue keeps whole results as integers so they print without a
// fractional part.
func numberValue(f float64) Value {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// Number converts a value to float64. Strings may use a decimal comma.
func Number(v Value) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		return ParseNumber(n)
	}
	return 0, false
}

// ParseNumber parses "7", "7.5" and "7,5". Thousands separators are not
// accepted.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Text renders a value the way it is written into a field. It reports
// false for values that have no text form.
func Text(v Value) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format("2006-01-02"), true
		}
		return t.Format("2006-01-02 15:04:05"), true
	case fmt.Stringer:
		return t.String(), true
	}
	return "", false
}

func textOrEmpty(v Value) string {
	s, _ := Text(v)
	return s
}
