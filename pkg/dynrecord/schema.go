// Package dynrecord builds schema-typed structured records dynamically, with
// fields resolved by name against schema metadata instead of generated
// accessors. Records serialize to a compact binary wire format in which nested
// records are written before their parent, so a parent always references
// children at known offsets.
package dynrecord

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownType indicates a type name absent from the schema.
	ErrUnknownType = errors.New("unknown schema type")

	// ErrUnknownField indicates a field name absent from the record's type.
	ErrUnknownField = errors.New("unknown field")

	// ErrFieldType indicates a value whose runtime type does not match the
	// field's declared type. Values are never coerced.
	ErrFieldType = errors.New("field type mismatch")

	// ErrNotTable indicates Mutable was called on a non-table field.
	ErrNotTable = errors.New("field is not a table")

	// ErrBadSchema indicates an inconsistent schema definition.
	ErrBadSchema = errors.New("invalid schema")
)

// Kind enumerates the declared field types.
type Kind int

const (
	KindBool Kind = iota + 1
	KindInt
	KindFloat
	KindString
	KindTable
)

// String returns the schema-file spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a schema-file kind spelling.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "bool":
		return KindBool, nil
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "string":
		return KindString, nil
	case "table":
		return KindTable, nil
	default:
		return 0, fmt.Errorf("%w: unknown kind %q", ErrBadSchema, s)
	}
}

// Field is one declared field of a type. ID is the stable wire identifier.
// Table names the nested type for KindTable fields.
type Field struct {
	Name  string
	ID    int
	Kind  Kind
	Table string
}

// TypeDef declares a named record type for schema construction.
type TypeDef struct {
	Name   string
	Fields []Field
}

type recordType struct {
	name    string
	byName  map[string]*Field
	byID    map[int]*Field
	ordered []*Field // ascending field id
}

// Schema is an immutable set of record types with a designated root type.
type Schema struct {
	root  string
	types map[string]*recordType
}

// NewSchema validates and builds a schema. Every table field must reference a
// declared type, field names and ids must be unique within a type, and the
// root type must exist.
func NewSchema(root string, defs []TypeDef) (*Schema, error) {
	s := &Schema{root: root, types: make(map[string]*recordType, len(defs))}
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("%w: type with empty name", ErrBadSchema)
		}
		if _, ok := s.types[def.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate type %q", ErrBadSchema, def.Name)
		}
		rt := &recordType{
			name:   def.Name,
			byName: make(map[string]*Field, len(def.Fields)),
			byID:   make(map[int]*Field, len(def.Fields)),
		}
		for i := range def.Fields {
			field := def.Fields[i]
			if field.Name == "" {
				return nil, fmt.Errorf("%w: type %q has a field with empty name", ErrBadSchema, def.Name)
			}
			if field.Kind < KindBool || field.Kind > KindTable {
				return nil, fmt.Errorf("%w: field %s.%s has invalid kind", ErrBadSchema, def.Name, field.Name)
			}
			if field.Kind == KindTable && field.Table == "" {
				return nil, fmt.Errorf("%w: table field %s.%s names no type", ErrBadSchema, def.Name, field.Name)
			}
			if field.ID < 0 {
				return nil, fmt.Errorf("%w: field %s.%s has negative id", ErrBadSchema, def.Name, field.Name)
			}
			if _, ok := rt.byName[field.Name]; ok {
				return nil, fmt.Errorf("%w: duplicate field %s.%s", ErrBadSchema, def.Name, field.Name)
			}
			if _, ok := rt.byID[field.ID]; ok {
				return nil, fmt.Errorf("%w: duplicate field id %d in type %q", ErrBadSchema, field.ID, def.Name)
			}
			f := &field
			rt.byName[field.Name] = f
			rt.byID[field.ID] = f
			rt.ordered = append(rt.ordered, f)
		}
		sort.Slice(rt.ordered, func(i, j int) bool { return rt.ordered[i].ID < rt.ordered[j].ID })
		s.types[def.Name] = rt
	}

	// Resolve table references after all types are known.
	for _, rt := range s.types {
		for _, field := range rt.ordered {
			if field.Kind == KindTable {
				if _, ok := s.types[field.Table]; !ok {
					return nil, fmt.Errorf("%w: field %s.%s references %w %q",
						ErrBadSchema, rt.name, field.Name, ErrUnknownType, field.Table)
				}
			}
		}
	}
	if _, ok := s.types[root]; !ok {
		return nil, fmt.Errorf("%w: root %w %q", ErrBadSchema, ErrUnknownType, root)
	}
	return s, nil
}

// Root returns the name of the schema's root type.
func (s *Schema) Root() string { return s.root }

// Builder creates empty records typed against a schema.
type Builder struct {
	schema *Schema
}

// NewBuilder wraps a schema.
func NewBuilder(schema *Schema) *Builder {
	return &Builder{schema: schema}
}

// NewRoot starts an empty record of the schema's root type.
func (b *Builder) NewRoot() *Record {
	return newRecord(b.schema, b.schema.types[b.schema.root])
}

// NewTable starts an empty record of the named type. Fails if the schema does
// not declare the type.
func (b *Builder) NewTable(name string) (*Record, error) {
	rt, ok := b.schema.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return newRecord(b.schema, rt), nil
}
