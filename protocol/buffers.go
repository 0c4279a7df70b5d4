package protocol

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// PacketWriter accumulates an outgoing packet. Numbers are written
// little-endian on every platform so peers agree on the byte order.
type PacketWriter struct {
	buf []byte
}

// NewPacketWriter creates a writer with room for a typical packet
func NewPacketWriter() *PacketWriter {
	return &PacketWriter{buf: make([]byte, 0, 64)}
}

// Reset clears the buffer
func (w *PacketWriter) Reset() {
	w.buf = w.buf[:0]
}

// Len returns the number of bytes written so far
func (w *PacketWriter) Len() int {
	return len(w.buf)
}

// Packet returns a copy of the accumulated bytes
func (w *PacketWriter) Packet() Packet {
	out := make(Packet, len(w.buf))
	copy(out, w.buf)
	return out
}

func (w *PacketWriter) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

func (w *PacketWriter) WriteType(t Type) {
	w.buf = append(w.buf, byte(t))
}

// WriteString writes a null-terminated string. Anything after an embedded NUL
// cannot be represented and is dropped.
func (w *PacketWriter) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			break
		}
		w.buf = append(w.buf, s[i])
	}
	w.buf = append(w.buf, 0)
}

func (w *PacketWriter) WriteUint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *PacketWriter) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *PacketWriter) WriteUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// writeBits writes the low size bytes of bits
func (w *PacketWriter) writeBits(bits uint64, size int) {
	for i := 0; i < size; i++ {
		w.buf = append(w.buf, byte(bits>>(8*i)))
	}
}

func (w *PacketWriter) writeHeader(h PacketHeader, id ChannelID) {
	w.Reset()
	w.buf = append(w.buf, MakeHeaderByte(h), id)
}

func (w *PacketWriter) writeChecksum() {
	w.WriteUint32(Checksum(w.buf))
}

// WriteBroadcast builds a Broadcast/Send packet carrying the full schema of part
func (w *PacketWriter) WriteBroadcast(id ChannelID, part Part) Packet {
	w.writeHeader(PacketHeader{Type: PacketTypeBroadcast, Function: PacketFunctionSend}, id)
	part.WriteSchema(w)
	w.writeChecksum()
	return w.Packet()
}

// WriteData builds a Data/Send packet carrying only the values of part
func (w *PacketWriter) WriteData(id ChannelID, part Part) Packet {
	w.writeHeader(PacketHeader{Type: PacketTypeData, Function: PacketFunctionSend}, id)
	part.WriteValue(w)
	w.writeChecksum()
	return w.Packet()
}

// WriteAcknowledge builds the acknowledgment of a broadcast for id
func (w *PacketWriter) WriteAcknowledge(id ChannelID) Packet {
	w.writeHeader(PacketHeader{Type: PacketTypeBroadcast, Function: PacketFunctionAcknowledge}, id)
	w.writeChecksum()
	return w.Packet()
}

// PacketReader walks a packet front to back. Every read is bounds checked and
// fails with ErrShortPacket instead of reading past the end.
type PacketReader struct {
	data []byte
	pos  int
}

// NewPacketReader creates a reader positioned at offset
func NewPacketReader(data []byte, offset int) *PacketReader {
	if offset > len(data) {
		offset = len(data)
	}
	return &PacketReader{data: data, pos: offset}
}

// Remaining returns the number of unread bytes
func (r *PacketReader) Remaining() int {
	return len(r.data) - r.pos
}

// Position returns the read offset
func (r *PacketReader) Position() int {
	return r.pos
}

// Fork returns an independent reader at the same position
func (r *PacketReader) Fork() *PacketReader {
	return &PacketReader{data: r.data, pos: r.pos}
}

func (r *PacketReader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errors.WithStack(ErrShortPacket)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *PacketReader) ReadType() (Type, error) {
	b, err := r.ReadByte()
	return Type(b), err
}

// ReadString reads up to and including the next NUL
func (r *PacketReader) ReadString() (string, error) {
	for i := r.pos; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.pos:i])
			r.pos = i + 1
			return s, nil
		}
	}
	return "", errors.WithStack(ErrUnterminatedString)
}

func (r *PacketReader) ReadUint32() (uint32, error) {
	bits, err := r.readBits(4)
	return uint32(bits), err
}

// readBits reads size little-endian bytes
func (r *PacketReader) readBits(size int) (uint64, error) {
	if r.Remaining() < size {
		return 0, errors.Wrapf(ErrShortPacket, "reading %d bytes at offset %d of %d", size, r.pos, len(r.data))
	}
	var bits uint64
	for i := 0; i < size; i++ {
		bits |= uint64(r.data[r.pos+i]) << (8 * i)
	}
	r.pos += size
	return bits, nil
}

func (r *PacketReader) skip(size int) error {
	if r.Remaining() < size {
		return errors.Wrapf(ErrShortPacket, "skipping %d bytes at offset %d of %d", size, r.pos, len(r.data))
	}
	r.pos += size
	return nil
}

func float32FromBits(bits uint64) float32 {
	return math.Float32frombits(uint32(bits))
}

func float64FromBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}
