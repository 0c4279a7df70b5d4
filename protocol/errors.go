package protocol

import "github.com/pkg/errors"

// Packet validity and link errors. None of them are fatal; the link
// resynchronises on the next delimiter.
var (
	ErrTooSmall           = errors.New("packet too small")
	ErrBadChecksum        = errors.New("packet checksum mismatch")
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrQueueFull          = errors.New("queue full")
	ErrNegotiationTimeout = errors.New("channel negotiation timed out")
)

// Codec errors
var (
	ErrShortPacket        = errors.New("read past end of packet")
	ErrUnterminatedString = errors.New("unterminated string")
	ErrUnknownType        = errors.New("unknown type tag")
	ErrSchemaTooDeep      = errors.New("schema nesting too deep")
	ErrTrailingBytes      = errors.New("unexpected trailing bytes")
	ErrTypeMismatch       = errors.New("value type does not match part")
	ErrUnexpectedHeader   = errors.New("unexpected packet header")
)
