package protocol

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Numeric lists the Go types a Number leaf can hold
type Numeric interface {
	float32 | float64 |
		uint8 | uint16 | uint32 | uint64 |
		int8 | int16 | int32 | int64
}

// Number is a fixed-width numeric leaf. One variant covers every width; the
// type tag selects how the raw little-endian bits are interpreted.
type Number struct {
	name  string
	typ   Type
	bits  uint64
	fetch func() uint64
}

// NewNumber creates a numeric leaf tagged after T. fetch may be nil.
func NewNumber[T Numeric](name string, fetch func() T) *Number {
	n := newNumber(name, TypeOf[T]())
	if fetch != nil {
		n.fetch = func() uint64 { return numberBits(fetch()) }
	}
	return n
}

func newNumber(name string, typ Type) *Number {
	return &Number{name: name, typ: typ}
}

// TypeOf returns the wire tag for T
func TypeOf[T Numeric]() Type {
	var zero T
	switch any(zero).(type) {
	case float32:
		return TypeFloat
	case float64:
		return TypeDouble
	case uint8:
		return TypeUint8
	case uint16:
		return TypeUint16
	case uint32:
		return TypeUint32
	case uint64:
		return TypeUint64
	case int8:
		return TypeInt8
	case int16:
		return TypeInt16
	case int32:
		return TypeInt32
	default:
		return TypeInt64
	}
}

func numberBits[T Numeric](v T) uint64 {
	switch x := any(v).(type) {
	case float32:
		return uint64(math.Float32bits(x))
	case float64:
		return math.Float64bits(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	case int8:
		return uint64(uint8(x))
	case int16:
		return uint64(uint16(x))
	case int32:
		return uint64(uint32(x))
	case int64:
		return uint64(x)
	}
	return 0
}

func (n *Number) Name() string { return n.name }
func (n *Number) Type() Type   { return n.typ }

// Value returns the current value as the Go type matching the tag
func (n *Number) Value() any {
	switch n.typ {
	case TypeFloat:
		return float32FromBits(n.bits)
	case TypeDouble:
		return float64FromBits(n.bits)
	case TypeUint8:
		return uint8(n.bits)
	case TypeUint16:
		return uint16(n.bits)
	case TypeUint32:
		return uint32(n.bits)
	case TypeUint64:
		return n.bits
	case TypeInt8:
		return int8(n.bits)
	case TypeInt16:
		return int16(n.bits)
	case TypeInt32:
		return int32(n.bits)
	default:
		return int64(n.bits)
	}
}

// SetValue stores v, which must have the Go type matching the tag
func (n *Number) SetValue(v any) error {
	switch x := v.(type) {
	case float32:
		return SetNumber(n, x)
	case float64:
		return SetNumber(n, x)
	case uint8:
		return SetNumber(n, x)
	case uint16:
		return SetNumber(n, x)
	case uint32:
		return SetNumber(n, x)
	case uint64:
		return SetNumber(n, x)
	case int8:
		return SetNumber(n, x)
	case int16:
		return SetNumber(n, x)
	case int32:
		return SetNumber(n, x)
	case int64:
		return SetNumber(n, x)
	}
	return errors.Wrapf(ErrTypeMismatch, "%T for %s %q", v, n.typ, n.name)
}

// SetNumber stores v into n when T matches the tag of n
func SetNumber[T Numeric](n *Number, v T) error {
	if t := TypeOf[T](); t != n.typ {
		return errors.Wrapf(ErrTypeMismatch, "%s for %s %q", t, n.typ, n.name)
	}
	n.bits = numberBits(v)
	return nil
}

// NumberValue reads n as T when T matches the tag of n
func NumberValue[T Numeric](n *Number) (T, error) {
	v, ok := n.Value().(T)
	if !ok {
		var zero T
		return zero, errors.Wrapf(ErrTypeMismatch, "%s for %s %q", TypeOf[T](), n.typ, n.name)
	}
	return v, nil
}

func (n *Number) Fetch() {
	if n.fetch != nil {
		n.bits = n.fetch()
	}
}

func (n *Number) WriteSchema(w *PacketWriter) {
	w.WriteType(n.typ)
	w.WriteString(n.name)
}

func (n *Number) WriteValue(w *PacketWriter) {
	w.writeBits(n.bits, n.typ.Size())
}

func (n *Number) readValue(r *PacketReader) error {
	bits, err := r.readBits(n.typ.Size())
	if err != nil {
		return err
	}
	n.bits = bits
	return nil
}

func (n *Number) skipValue(r *PacketReader) error {
	return r.skip(n.typ.Size())
}

func (n *Number) describe(b *strings.Builder, indent int, data bool) {
	writeIndent(b, indent)
	if data {
		fmt.Fprintf(b, "%s:\t%v", n.name, n.Value())
		return
	}
	fmt.Fprintf(b, "%s:\t%s", n.name, n.typ)
}
