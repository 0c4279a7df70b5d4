package protocol

import "hash/crc32"

// Checksum calculates the CRC-32 trailer of a packet. Both peers use the IEEE
// polynomial with the standard 0xFFFFFFFF seed and final xor.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
