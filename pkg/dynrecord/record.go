package dynrecord

import (
	"fmt"
	"strings"
)

// Value is a tagged-union scalar or string. The zero Value is "unset".
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// BoolValue wraps a bool.
func BoolValue(v bool) Value { return Value{kind: KindBool, b: v} }

// IntValue wraps an integer.
func IntValue(v int64) Value { return Value{kind: KindInt, i: v} }

// FloatValue wraps a float.
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }

// StringValue wraps a string.
func StringValue(v string) Value { return Value{kind: KindString, s: v} }

// Kind returns the value's kind; zero for the unset value.
func (v Value) Kind() Kind { return v.kind }

// Bool returns the held bool.
func (v Value) Bool() bool { return v.b }

// Int returns the held integer.
func (v Value) Int() int64 { return v.i }

// Float returns the held float.
func (v Value) Float() float64 { return v.f }

// String returns the held string.
func (v Value) String() string { return v.s }

// valueOf maps a Go runtime value onto a Value. Only the scalar families the
// schema can declare are accepted; anything else is rejected, never coerced.
func valueOf(value any) (Value, bool) {
	switch v := value.(type) {
	case bool:
		return BoolValue(v), true
	case int:
		return IntValue(int64(v)), true
	case int32:
		return IntValue(int64(v)), true
	case int64:
		return IntValue(v), true
	case float32:
		return FloatValue(float64(v)), true
	case float64:
		return FloatValue(v), true
	case string:
		return StringValue(v), true
	case Value:
		return v, v.kind != 0
	default:
		return Value{}, false
	}
}

// Record is a schema-typed record under construction. It holds scalar/string
// values and owned nested records, both keyed by field id. A Record is not
// safe for concurrent mutation; build per request.
type Record struct {
	schema   *Schema
	typ      *recordType
	values   map[int]Value
	children map[int]*Record
}

func newRecord(schema *Schema, typ *recordType) *Record {
	return &Record{
		schema:   schema,
		typ:      typ,
		values:   make(map[int]Value),
		children: make(map[int]*Record),
	}
}

// TypeName returns the record's declared type name.
func (r *Record) TypeName() string { return r.typ.name }

func (r *Record) field(name string) (*Field, error) {
	field, ok := r.typ.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, r.typ.name, name)
	}
	return field, nil
}

// Set stores a scalar or string value under the named field, overwriting any
// prior value. The value's runtime type must match the field's declared type.
func (r *Record) Set(fieldName string, value any) error {
	field, err := r.field(fieldName)
	if err != nil {
		return err
	}
	v, ok := valueOf(value)
	if !ok {
		return fmt.Errorf("%w: %s.%s cannot hold %T", ErrFieldType, r.typ.name, fieldName, value)
	}
	if field.Kind != v.kind {
		return fmt.Errorf("%w: %s.%s is %s, got %s",
			ErrFieldType, r.typ.name, fieldName, field.Kind, v.kind)
	}
	r.values[field.ID] = v
	return nil
}

// Mutable returns the nested record for a table-typed field, creating it on
// first access. Repeated calls return the same instance.
func (r *Record) Mutable(fieldName string) (*Record, error) {
	field, err := r.field(fieldName)
	if err != nil {
		return nil, err
	}
	return r.mutable(field)
}

func (r *Record) mutable(field *Field) (*Record, error) {
	if field.Kind != KindTable {
		return nil, fmt.Errorf("%w: %s.%s is %s", ErrNotTable, r.typ.name, field.Name, field.Kind)
	}
	if child, ok := r.children[field.ID]; ok {
		return child, nil
	}
	child := newRecord(r.schema, r.schema.types[field.Table])
	r.children[field.ID] = child
	return child, nil
}

// SetPath sets a value addressed by a dotted field path, descending through
// table fields via Mutable for every segment but the last.
func (r *Record) SetPath(path string, value any) error {
	segments := strings.Split(path, ".")
	record := r
	for _, segment := range segments[:len(segments)-1] {
		child, err := record.Mutable(segment)
		if err != nil {
			return fmt.Errorf("path %q: %w", path, err)
		}
		record = child
	}
	if err := record.Set(segments[len(segments)-1], value); err != nil {
		return fmt.Errorf("path %q: %w", path, err)
	}
	return nil
}

// Get returns the stored value for a scalar/string field. ok is false when the
// field exists but is unset. Unknown fields return an error.
func (r *Record) Get(fieldName string) (Value, bool, error) {
	field, err := r.field(fieldName)
	if err != nil {
		return Value{}, false, err
	}
	v, ok := r.values[field.ID]
	return v, ok, nil
}

// Child returns the existing nested record for a table field, or nil if it was
// never materialized.
func (r *Record) Child(fieldName string) (*Record, error) {
	field, err := r.field(fieldName)
	if err != nil {
		return nil, err
	}
	if field.Kind != KindTable {
		return nil, fmt.Errorf("%w: %s.%s is %s", ErrNotTable, r.typ.name, field.Name, field.Kind)
	}
	return r.children[field.ID], nil
}
