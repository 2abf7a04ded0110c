package dlp

import (
	"encoding/binary"
	"fmt"
)

// Field is one entry in a request or response's declarative wire schema: a
// typed codec bound to a field of the enclosing Go struct. Concrete request
// and response types build their Field table in a Fields() method instead
// of relying on reflection or per-message generated code, per the "Schema-
// by-annotation" design note in spec.md §9.
type Field interface {
	// Encode returns this field's wire payload (pre argument-header-wrap).
	Encode() []byte
	// Decode consumes payload (the argument's already-unwrapped bytes) and
	// stores the parsed value into the field it was bound to.
	Decode(payload []byte) error
}

// Uint8Field is a single unsigned byte.
type Uint8Field struct{ V *uint8 }

func (f Uint8Field) Encode() []byte { return []byte{*f.V} }
func (f Uint8Field) Decode(p []byte) error {
	if len(p) != 1 {
		return fmt.Errorf("%w: uint8 field got %d bytes", ErrProtocol, len(p))
	}
	*f.V = p[0]
	return nil
}

// Uint16Field is a big-endian 16-bit unsigned integer.
type Uint16Field struct{ V *uint16 }

func (f Uint16Field) Encode() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, *f.V)
	return b
}
func (f Uint16Field) Decode(p []byte) error {
	if len(p) != 2 {
		return fmt.Errorf("%w: uint16 field got %d bytes", ErrProtocol, len(p))
	}
	*f.V = binary.BigEndian.Uint16(p)
	return nil
}

// Uint32Field is a big-endian 32-bit unsigned integer.
type Uint32Field struct{ V *uint32 }

func (f Uint32Field) Encode() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, *f.V)
	return b
}
func (f Uint32Field) Decode(p []byte) error {
	if len(p) != 4 {
		return fmt.Errorf("%w: uint32 field got %d bytes", ErrProtocol, len(p))
	}
	*f.V = binary.BigEndian.Uint32(p)
	return nil
}

// BytesField is a fixed-length or variable-length opaque byte string; its
// entire content is the argument payload verbatim.
type BytesField struct{ V *[]byte }

func (f BytesField) Encode() []byte { return *f.V }
func (f BytesField) Decode(p []byte) error {
	*f.V = append([]byte{}, p...)
	return nil
}

// CStringField is a null-terminated string, the encoding Palm OS uses for
// user and database names.
type CStringField struct{ V *string }

func (f CStringField) Encode() []byte {
	return append([]byte(*f.V), 0)
}
func (f CStringField) Decode(p []byte) error {
	n := len(p)
	if n > 0 && p[n-1] == 0 {
		n--
	}
	*f.V = string(p[:n])
	return nil
}

// PStringField is a length-prefixed string: a single length byte followed
// by that many bytes of string data, with no trailing NUL.
type PStringField struct{ V *string }

func (f PStringField) Encode() []byte {
	s := *f.V
	if len(s) > 0xFF {
		s = s[:0xFF]
	}
	out := make([]byte, 0, 1+len(s))
	out = append(out, uint8(len(s)))
	return append(out, s...)
}
func (f PStringField) Decode(p []byte) error {
	if len(p) < 1 {
		return fmt.Errorf("%w: pstring field missing length byte", ErrProtocol)
	}
	n := int(p[0])
	if len(p) < 1+n {
		return fmt.Errorf("%w: pstring field truncated", ErrProtocol)
	}
	*f.V = string(p[1 : 1+n])
	return nil
}

// Record is implemented by nested wire structures (an argument whose
// payload is itself a sequence of fixed sub-fields, not a further
// argument-framed list).
type Record interface {
	Fields() []Field
}

// anonRecord lets a call site declare a Record inline, as a plain list of
// sub-fields, without naming a separate type that implements Record.
type anonRecord []Field

func (r anonRecord) Fields() []Field { return []Field(r) }

// RecordField nests a Record's own fields inline into the parent argument's
// payload, back to back with no additional framing.
type RecordField struct{ V Record }

func (f RecordField) Encode() []byte {
	var out []byte
	for _, sub := range f.V.Fields() {
		out = append(out, sub.Encode()...)
	}
	return out
}
func (f RecordField) Decode(p []byte) error {
	for _, sub := range f.V.Fields() {
		n, err := fieldWireLen(sub, p)
		if err != nil {
			return err
		}
		if err := sub.Decode(p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// fieldWireLen reports how many bytes of p a field consumes. Fixed-size
// fields have their width; a CString runs through its NUL (or to the end of
// p if there is none) and a PString through its length byte plus that many
// bytes. Bytes and RecordArray fields carry no length of their own, so
// fieldWireLen returns len(p) for them and they must be the last field in
// a Record.
func fieldWireLen(f Field, p []byte) (int, error) {
	switch v := f.(type) {
	case Uint8Field:
		return 1, nil
	case Uint16Field:
		return 2, nil
	case Uint32Field:
		return 4, nil
	case CStringField:
		for i, b := range p {
			if b == 0 {
				return i + 1, nil
			}
		}
		return len(p), nil
	case PStringField:
		if len(p) < 1 {
			return 0, fmt.Errorf("%w: pstring field missing length byte", ErrProtocol)
		}
		n := 1 + int(p[0])
		if n > len(p) {
			return 0, fmt.Errorf("%w: pstring field truncated", ErrProtocol)
		}
		return n, nil
	case BytesField:
		return len(p), nil
	case RecordArrayField:
		return len(p), nil
	default:
		return 0, fmt.Errorf("%w: unsupported nested field type %T", ErrProtocol, v)
	}
}

// RecordArrayField is a variable-length sequence of identically-shaped
// records, used for e.g. a database list response. Encode writes each
// element's own Fields() back to back; Decode calls New for a fresh Record
// to decode each element into (Encode does not use New). Elements have no
// individual length prefix, so each Record's Fields() must fully consume
// its own bytes (typically by ending in a fixed-width field or a single
// trailing variable-width field whose length is self-describing).
type RecordArrayField struct {
	Elems *[]Record
	New   func() Record
}

func (f RecordArrayField) Encode() []byte {
	var out []byte
	for _, e := range *f.Elems {
		for _, sub := range e.Fields() {
			out = append(out, sub.Encode()...)
		}
	}
	return out
}

func (f RecordArrayField) Decode(p []byte) error {
	var elems []Record
	for len(p) > 0 {
		e := f.New()
		for _, sub := range e.Fields() {
			n, err := fieldWireLen(sub, p)
			if err != nil {
				return err
			}
			if err := sub.Decode(p[:n]); err != nil {
				return err
			}
			p = p[n:]
		}
		elems = append(elems, e)
	}
	*f.Elems = elems
	return nil
}
