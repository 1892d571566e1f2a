package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/kjk/testdesk/u"
)

// DateLayout is how dates are persisted and displayed
const DateLayout = "2006-01-02"

// Record is an ordered mapping from field name to value.
// A value is nil (absent), string, float64 or time.Time (a calendar date
// at midnight UTC). Set converts other Go values to one of those.
type Record struct {
	fields []string
	values map[string]any
}

// NewRecord creates a record from field, value pairs
func NewRecord(kv ...any) *Record {
	u.PanicIf(len(kv)%2 != 0, "NewRecord: odd number of arguments")
	r := &Record{}
	for i := 0; i < len(kv); i += 2 {
		field, ok := kv[i].(string)
		u.PanicIf(!ok, "NewRecord: field name '%v' is not a string", kv[i])
		r.Set(field, kv[i+1])
	}
	return r
}

// ToDate returns t as a calendar date: midnight UTC of t's day
func ToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeValue converts v to one of the value types of a Record
func NormalizeValue(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case string:
		return v
	case float64:
		if math.IsNaN(v) {
			return nil
		}
		return v
	case float32:
		return NormalizeValue(float64(v))
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return ToDate(v)
	case *time.Time:
		if v == nil {
			return nil
		}
		return NormalizeValue(*v)
	}
	return fmt.Sprint(v)
}

// FormatValue returns display form of a value: "" for nil,
// shortest decimal for numbers, YYYY-MM-DD for dates
func FormatValue(v any) string {
	switch v := NormalizeValue(v).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(DateLayout)
	}
	panic("unreachable")
}

// Set sets value of a field. New fields are added at the end
func (r *Record) Set(field string, v any) {
	if r.values == nil {
		r.values = map[string]any{}
	}
	if _, ok := r.values[field]; !ok {
		r.fields = append(r.fields, field)
	}
	r.values[field] = NormalizeValue(v)
}

// Get returns value of a field, nil if absent
func (r *Record) Get(field string) any {
	return r.values[field]
}

// Has returns true if field is present, even if its value is nil
func (r *Record) Has(field string) bool {
	_, ok := r.values[field]
	return ok
}

func (r *Record) Delete(field string) {
	if !r.Has(field) {
		return
	}
	delete(r.values, field)
	r.fields = slices.DeleteFunc(r.fields, func(f string) bool {
		return f == field
	})
}

// Fields returns field names in insertion order
func (r *Record) Fields() []string {
	return slices.Clone(r.fields)
}

func (r *Record) Len() int {
	return len(r.fields)
}

func (r *Record) Clone() *Record {
	res := &Record{
		fields: slices.Clone(r.fields),
		values: make(map[string]any, len(r.values)),
	}
	for k, v := range r.values {
		res.values[k] = v
	}
	return res
}

// String returns display form of field's value
func (r *Record) String(field string) string {
	return FormatValue(r.Get(field))
}

func (r *Record) Float(field string) (float64, bool) {
	f, ok := r.Get(field).(float64)
	return f, ok
}

func (r *Record) Date(field string) (time.Time, bool) {
	t, ok := r.Get(field).(time.Time)
	return t, ok
}

// Identifier returns the application number, "" if absent
func (r *Record) Identifier() string {
	return r.String(FieldIdentifier)
}

// Equal returns true if both records have the same fields with
// the same values. Field order is not compared.
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	for _, f := range r.fields {
		if !o.Has(f) || !valueEqual(r.Get(f), o.Get(f)) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

// MarshalJSON writes record as a JSON object with fields in order.
// Dates are written as YYYY-MM-DD strings.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		var v any = r.values[f]
		if t, ok := v.(time.Time); ok {
			v = t.Format(DateLayout)
		}
		d, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(d)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat JSON object, preserving field order.
// Nested objects and arrays are rejected.
func (r *Record) UnmarshalJSON(d []byte) error {
	dec := json.NewDecoder(bytes.NewReader(d))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object")
	}
	*r = Record{}
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		field := tok.(string)
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		if _, ok := tok.(json.Delim); ok {
			return fmt.Errorf("field '%s': nested values are not supported", field)
		}
		r.Set(field, tok)
	}
	_, err = dec.Token()
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
