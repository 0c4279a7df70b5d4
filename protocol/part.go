package protocol

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// MaxSchemaDepth bounds Record nesting accepted from the wire
const MaxSchemaDepth = 32

// Part is one node of a channel schema. The set of variants is closed:
// *Record, *String and *Number. A Part's shape (tags, names, field order) never
// changes after construction; only leaf values do.
type Part interface {
	Name() string
	Type() Type

	// Fetch refreshes leaf values from their fetch functions
	Fetch()

	// WriteSchema encodes type tags and names, recursively
	WriteSchema(w *PacketWriter)
	// WriteValue encodes only the current values, in declaration order
	WriteValue(w *PacketWriter)

	readValue(r *PacketReader) error
	skipValue(r *PacketReader) error
	describe(b *strings.Builder, indent int, data bool)
}

// ReadValues decodes a value message into part in place. The whole message is
// checked against the shape first, so a short or malformed message leaves part
// untouched.
func ReadValues(part Part, r *PacketReader) error {
	if err := part.skipValue(r.Fork()); err != nil {
		return err
	}
	return part.readValue(r)
}

// Record is a named, ordered sequence of child parts
type Record struct {
	name   string
	fields []Part
}

// NewRecord creates a record owning fields
func NewRecord(name string, fields ...Part) *Record {
	return &Record{name: name, fields: fields}
}

func (rec *Record) Name() string { return rec.name }
func (rec *Record) Type() Type   { return TypeRecord }

// Fields returns the children in declaration order
func (rec *Record) Fields() []Part {
	out := make([]Part, len(rec.fields))
	copy(out, rec.fields)
	return out
}

// Field looks up a direct child by name
func (rec *Record) Field(name string) (Part, bool) {
	for _, f := range rec.fields {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

func (rec *Record) Fetch() {
	for _, f := range rec.fields {
		f.Fetch()
	}
}

func (rec *Record) WriteSchema(w *PacketWriter) {
	w.WriteType(TypeRecord)
	w.WriteString(rec.name)
	w.WriteUint32(uint32(len(rec.fields)))
	for _, f := range rec.fields {
		f.WriteSchema(w)
	}
}

func (rec *Record) WriteValue(w *PacketWriter) {
	for _, f := range rec.fields {
		f.WriteValue(w)
	}
}

func (rec *Record) readValue(r *PacketReader) error {
	for _, f := range rec.fields {
		if err := f.readValue(r); err != nil {
			return errors.Wrapf(err, "field %q", f.Name())
		}
	}
	return nil
}

func (rec *Record) skipValue(r *PacketReader) error {
	for _, f := range rec.fields {
		if err := f.skipValue(r); err != nil {
			return errors.Wrapf(err, "field %q", f.Name())
		}
	}
	return nil
}

func (rec *Record) describe(b *strings.Builder, indent int, data bool) {
	writeIndent(b, indent)
	fmt.Fprintf(b, "%s: record[%d]{\n", rec.name, len(rec.fields))
	for _, f := range rec.fields {
		f.describe(b, indent+1, data)
		b.WriteByte('\n')
	}
	writeIndent(b, indent)
	b.WriteByte('}')
}

// String is a named text leaf. Values are null-terminated on the wire.
type String struct {
	name  string
	value string
	fetch func() string
}

// NewString creates a string leaf. fetch may be nil, in which case Fetch
// leaves the value alone.
func NewString(name string, fetch func() string) *String {
	return &String{name: name, fetch: fetch}
}

func (s *String) Name() string { return s.name }
func (s *String) Type() Type   { return TypeString }

func (s *String) Value() string { return s.value }

func (s *String) SetValue(v string) { s.value = v }

func (s *String) Fetch() {
	if s.fetch != nil {
		s.value = s.fetch()
	}
}

func (s *String) WriteSchema(w *PacketWriter) {
	w.WriteType(TypeString)
	w.WriteString(s.name)
}

func (s *String) WriteValue(w *PacketWriter) {
	w.WriteString(s.value)
}

func (s *String) readValue(r *PacketReader) error {
	v, err := r.ReadString()
	if err != nil {
		return err
	}
	s.value = v
	return nil
}

func (s *String) skipValue(r *PacketReader) error {
	_, err := r.ReadString()
	return err
}

func (s *String) describe(b *strings.Builder, indent int, data bool) {
	writeIndent(b, indent)
	if data {
		fmt.Fprintf(b, "%s:\t%s", s.name, s.value)
		return
	}
	fmt.Fprintf(b, "%s: string", s.name)
}

// DecodeSchema rebuilds a fresh Part tree from its schema encoding
func DecodeSchema(r *PacketReader) (Part, error) {
	return decodeSchema(r, 0)
}

func decodeSchema(r *PacketReader, depth int) (Part, error) {
	if depth > MaxSchemaDepth {
		return nil, errors.WithStack(ErrSchemaTooDeep)
	}

	t, err := r.ReadType()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}

	switch {
	case t == TypeString:
		return NewString(name, nil), nil
	case t.IsNumeric():
		return newNumber(name, t), nil
	case t != TypeRecord:
		return nil, errors.Wrapf(ErrUnknownType, "tag %d for %q", t, name)
	}

	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	// Every field takes at least a tag and a terminator
	if uint64(count)*2 > uint64(r.Remaining()) {
		return nil, errors.Wrapf(ErrShortPacket, "record %q declares %d fields in %d bytes", name, count, r.Remaining())
	}

	fields := make([]Part, 0, count)
	for i := uint32(0); i < count; i++ {
		f, err := decodeSchema(r, depth+1)
		if err != nil {
			return nil, errors.Wrapf(err, "record %q field %d", name, i)
		}
		fields = append(fields, f)
	}
	return NewRecord(name, fields...), nil
}

// DecodeBroadcast extracts the channel id and schema from a validated
// Broadcast/Send packet
func DecodeBroadcast(packet Packet) (ChannelID, Part, error) {
	if len(packet) < PacketMinSize {
		return 0, nil, errors.WithStack(ErrTooSmall)
	}
	h := DecodeHeaderByte(packet[PacketPositionHeader])
	if h.Type != PacketTypeBroadcast || h.Function != PacketFunctionSend {
		return 0, nil, errors.Wrapf(ErrUnexpectedHeader, "%s/%s", h.Type, h.Function)
	}

	id := packet[PacketPositionChannel]
	r := PacketPayload(packet)
	part, err := DecodeSchema(r)
	if err != nil {
		return id, nil, err
	}
	if r.Remaining() != 0 {
		return id, nil, errors.Wrapf(ErrTrailingBytes, "%d bytes after schema", r.Remaining())
	}
	return id, part, nil
}

// DecodeData reads the values of a validated Data/Send packet into part. The
// payload must match the shape of part exactly; otherwise part is left as it
// was.
func DecodeData(packet Packet, part Part) error {
	if len(packet) < PacketMinSize {
		return errors.WithStack(ErrTooSmall)
	}
	h := DecodeHeaderByte(packet[PacketPositionHeader])
	if h.Type != PacketTypeData || h.Function != PacketFunctionSend {
		return errors.Wrapf(ErrUnexpectedHeader, "%s/%s", h.Type, h.Function)
	}

	r := PacketPayload(packet)
	check := r.Fork()
	if err := part.skipValue(check); err != nil {
		return err
	}
	if check.Remaining() != 0 {
		return errors.Wrapf(ErrTrailingBytes, "%d bytes after values", check.Remaining())
	}
	return part.readValue(r)
}

// Describe renders the schema of part as indented text
func Describe(part Part) string {
	var b strings.Builder
	part.describe(&b, 0, false)
	return b.String()
}

// DescribeData renders the current values of part as indented text
func DescribeData(part Part) string {
	var b strings.Builder
	part.describe(&b, 0, true)
	return b.String()
}

// SameShape reports whether two trees have identical tags, names and nesting
func SameShape(a, b Part) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type() != b.Type() || a.Name() != b.Name() {
		return false
	}
	ra, ok := a.(*Record)
	if !ok {
		return true
	}
	rb := b.(*Record)
	if len(ra.fields) != len(rb.fields) {
		return false
	}
	for i := range ra.fields {
		if !SameShape(ra.fields[i], rb.fields[i]) {
			return false
		}
	}
	return true
}

// NewTimestamped wraps data in a record whose first field is a uint32
// timestamp taken from clock on every Fetch
func NewTimestamped(name string, data Part, clock func() uint32) *Record {
	return NewRecord(name, NewNumber("timestamp", clock), data)
}

func writeIndent(b *strings.Builder, indent int) {
	for i := 0; i < indent; i++ {
		b.WriteString("  ")
	}
}
