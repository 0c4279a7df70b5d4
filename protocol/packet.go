package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ValidatePacket checks the size and checksum of an unframed packet
func ValidatePacket(packet Packet) error {
	if len(packet) < PacketMinSize {
		return errors.Wrapf(ErrTooSmall, "%d bytes", len(packet))
	}

	body := len(packet) - PacketChecksumSize
	written := binary.LittleEndian.Uint32(packet[body:])
	if actual := Checksum(packet[:body]); actual != written {
		return errors.Wrapf(ErrBadChecksum, "computed 0x%08x, packet carries 0x%08x", actual, written)
	}
	return nil
}

// PacketPayload returns a reader over the bytes between the channel id and
// the checksum of a validated packet
func PacketPayload(packet Packet) *PacketReader {
	return NewPacketReader(packet[:len(packet)-PacketChecksumSize], PacketHeaderSize)
}
