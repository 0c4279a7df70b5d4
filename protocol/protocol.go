// Package protocol implements the VDP wire format: COBS framing, packet
// headers, checksums and the self-describing Part schema/value codec.
package protocol

// Version represents the wire protocol version
const Version = "0.1.0"

// Protocol constants
const (
	PacketHeaderSize   = 2 // Header byte + channel id
	PacketChecksumSize = 4 // CRC-32 trailer
	PacketMinSize      = PacketHeaderSize + PacketChecksumSize

	PacketPositionHeader  = 0
	PacketPositionChannel = 1

	// ControlChannelID is reserved and never carries data
	ControlChannelID ChannelID = 0
	// MaxChannels is the number of distinct channel ids per peer
	MaxChannels = 256
)

const (
	packetTypeBit     = 7
	packetFunctionBit = 6
)

// ChannelID identifies one channel within a peer's local table
type ChannelID = uint8

// Packet is one unframed protocol message (header + id + payload + checksum)
type Packet = []byte

// WirePacket is a COBS framed packet. It contains no zero bytes except the
// leading and trailing delimiters.
type WirePacket = []byte

// PacketType selects what a packet carries
type PacketType uint8

const (
	PacketTypeBroadcast PacketType = 0
	PacketTypeData      PacketType = 1
)

func (t PacketType) String() string {
	if t == PacketTypeBroadcast {
		return "broadcast"
	}
	return "data"
}

// PacketFunction distinguishes a send from its acknowledgment
type PacketFunction uint8

const (
	PacketFunctionSend        PacketFunction = 0
	PacketFunctionAcknowledge PacketFunction = 1
)

func (f PacketFunction) String() string {
	if f == PacketFunctionSend {
		return "send"
	}
	return "acknowledge"
}

// PacketHeader is packed into the top two bits of byte 0
type PacketHeader struct {
	Type     PacketType
	Function PacketFunction
}

// MakeHeaderByte packs a header into its wire byte
func MakeHeaderByte(h PacketHeader) byte {
	var b byte
	b |= byte(h.Type&1) << packetTypeBit
	b |= byte(h.Function&1) << packetFunctionBit
	return b
}

// DecodeHeaderByte unpacks the wire byte. Low bits are ignored.
func DecodeHeaderByte(b byte) PacketHeader {
	return PacketHeader{
		Type:     PacketType((b >> packetTypeBit) & 1),
		Function: PacketFunction((b >> packetFunctionBit) & 1),
	}
}
