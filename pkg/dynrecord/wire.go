package dynrecord

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrBadWire indicates serialized record bytes that fail structural
// verification against the schema.
var ErrBadWire = errors.New("malformed serialized record")

// Wire format, little-endian throughout:
//
//	[4 bytes]  root table offset, backfilled after the root table is written
//	tables...  each table: uvarint field count, then per field in ascending
//	           field-id order: uvarint id, kind byte, payload
//
// Payloads: bool = 1 byte; int = zig-zag varint; float = 8 float64 bits;
// string = uvarint length + bytes; table = 4-byte offset of the child table,
// which is always written before (at a lower offset than) its parent.

// Serialize writes the record in dependency order: every nested child is
// fully serialized before the table that references it. A record with no
// fields set serializes to a valid empty instance.
func (r *Record) Serialize() []byte {
	buf := make([]byte, 4)
	root, buf := r.appendTable(buf)
	binary.LittleEndian.PutUint32(buf[:4], root)
	return buf
}

func (r *Record) appendTable(buf []byte) (uint32, []byte) {
	// Children first; remember where each one landed.
	childOffsets := make(map[int]uint32, len(r.children))
	for _, field := range r.typ.ordered {
		if child, ok := r.children[field.ID]; ok {
			var off uint32
			off, buf = child.appendTable(buf)
			childOffsets[field.ID] = off
		}
	}

	start := uint32(len(buf))
	count := len(r.values) + len(childOffsets)
	buf = binary.AppendUvarint(buf, uint64(count))
	for _, field := range r.typ.ordered {
		if v, ok := r.values[field.ID]; ok {
			buf = binary.AppendUvarint(buf, uint64(field.ID))
			buf = append(buf, byte(v.kind))
			switch v.kind {
			case KindBool:
				if v.b {
					buf = append(buf, 1)
				} else {
					buf = append(buf, 0)
				}
			case KindInt:
				buf = binary.AppendVarint(buf, v.i)
			case KindFloat:
				buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.f))
			case KindString:
				buf = binary.AppendUvarint(buf, uint64(len(v.s)))
				buf = append(buf, v.s...)
			}
			continue
		}
		if off, ok := childOffsets[field.ID]; ok {
			buf = binary.AppendUvarint(buf, uint64(field.ID))
			buf = append(buf, byte(KindTable))
			buf = binary.LittleEndian.AppendUint32(buf, off)
		}
	}
	return start, buf
}

// MergeFromSerialized imports field values from previously serialized bytes
// into the record, verifying every field against the schema. Values merge over
// existing ones; later Set calls win over merged values. Nested tables merge
// recursively through Mutable.
func (r *Record) MergeFromSerialized(buf []byte) error {
	if len(buf) < 4 {
		return fmt.Errorf("%w: truncated header", ErrBadWire)
	}
	root := binary.LittleEndian.Uint32(buf[:4])
	return r.mergeTable(buf, root)
}

func (r *Record) mergeTable(buf []byte, off uint32) error {
	c := cursor{buf: buf, pos: int(off)}
	if int(off) < 4 || int(off) >= len(buf) {
		return fmt.Errorf("%w: table offset %d out of range", ErrBadWire, off)
	}
	count, err := c.uvarint()
	if err != nil {
		return err
	}
	if count > uint64(len(buf)) {
		return fmt.Errorf("%w: implausible field count %d", ErrBadWire, count)
	}
	for i := uint64(0); i < count; i++ {
		id, err := c.uvarint()
		if err != nil {
			return err
		}
		kindByte, err := c.byte()
		if err != nil {
			return err
		}
		kind := Kind(kindByte)
		field, ok := r.typ.byID[int(id)]
		if !ok {
			return fmt.Errorf("%w: field id %d not declared by type %q", ErrBadWire, id, r.typ.name)
		}
		if field.Kind != kind {
			return fmt.Errorf("%w: field %s.%s is %s, wire says %s",
				ErrFieldType, r.typ.name, field.Name, field.Kind, kind)
		}
		switch kind {
		case KindBool:
			b, err := c.byte()
			if err != nil {
				return err
			}
			r.values[field.ID] = BoolValue(b != 0)
		case KindInt:
			v, err := c.varint()
			if err != nil {
				return err
			}
			r.values[field.ID] = IntValue(v)
		case KindFloat:
			bits, err := c.uint64()
			if err != nil {
				return err
			}
			r.values[field.ID] = FloatValue(math.Float64frombits(bits))
		case KindString:
			s, err := c.lenString()
			if err != nil {
				return err
			}
			r.values[field.ID] = StringValue(s)
		case KindTable:
			childOff, err := c.uint32()
			if err != nil {
				return err
			}
			// Children are serialized before parents; anything else is a
			// cycle or corruption.
			if childOff >= off {
				return fmt.Errorf("%w: child table at %d not before parent at %d", ErrBadWire, childOff, off)
			}
			child, err := r.mutable(field)
			if err != nil {
				return err
			}
			if err := child.mergeTable(buf, childOff); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown kind byte %d", ErrBadWire, kindByte)
		}
	}
	return nil
}

type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) byte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, fmt.Errorf("%w: unexpected end of buffer", ErrBadWire)
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) uvarint() (uint64, error) {
	v, n := binary.Uvarint(c.buf[c.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad uvarint", ErrBadWire)
	}
	c.pos += n
	return v, nil
}

func (c *cursor) varint() (int64, error) {
	v, n := binary.Varint(c.buf[c.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad varint", ErrBadWire)
	}
	c.pos += n
	return v, nil
}

func (c *cursor) uint32() (uint32, error) {
	if c.pos+4 > len(c.buf) {
		return 0, fmt.Errorf("%w: unexpected end of buffer", ErrBadWire)
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) uint64() (uint64, error) {
	if c.pos+8 > len(c.buf) {
		return 0, fmt.Errorf("%w: unexpected end of buffer", ErrBadWire)
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

func (c *cursor) lenString() (string, error) {
	n, err := c.uvarint()
	if err != nil {
		return "", err
	}
	if n > uint64(len(c.buf)-c.pos) {
		return "", fmt.Errorf("%w: string length %d exceeds buffer", ErrBadWire, n)
	}
	s := string(c.buf[c.pos : c.pos+int(n)])
	c.pos += int(n)
	return s, nil
}
