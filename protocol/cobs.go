package protocol

const (
	cobsDelimiter = 0x00
	cobsMaxCode   = 0xFF // code for a block of 254 literal bytes with no implied zero
)

// CobsEncode frames a payload so the only zero bytes in the result are the
// leading and trailing delimiters. An empty payload encodes to nothing.
func CobsEncode(payload Packet) WirePacket {
	if len(payload) == 0 {
		return WirePacket{}
	}

	out := make(WirePacket, 0, len(payload)+len(payload)/254+3)
	out = append(out, cobsDelimiter)

	// Back-reference to the current block's length byte
	codeHead := len(out)
	out = append(out, 0)
	code := byte(1)

	for _, b := range payload {
		if b == 0 {
			out[codeHead] = code
			codeHead = len(out)
			out = append(out, 0)
			code = 1
			continue
		}

		out = append(out, b)
		code++
		if code == cobsMaxCode {
			out[codeHead] = code
			codeHead = len(out)
			out = append(out, 0)
			code = 1
		}
	}
	out[codeHead] = code

	return append(out, cobsDelimiter)
}

// CobsDecode reverses CobsEncode. Leading delimiters are skipped and decoding
// stops at the first delimiter after data. Malformed or truncated input never
// reads out of bounds; whatever could be recovered is returned.
func CobsDecode(wire WirePacket) Packet {
	i := 0
	for i < len(wire) && wire[i] == cobsDelimiter {
		i++
	}
	if i == len(wire) {
		return Packet{}
	}

	out := make(Packet, 0, len(wire)+len(wire)/254)
	prevCode := byte(cobsMaxCode) // first block has no implied zero before it

	for i < len(wire) {
		code := wire[i]
		i++
		if code == cobsDelimiter {
			break
		}

		if prevCode != cobsMaxCode {
			out = append(out, 0)
		}
		prevCode = code

		n := int(code) - 1
		if n > len(wire)-i {
			n = len(wire) - i
		}
		for _, b := range wire[i : i+n] {
			if b == cobsDelimiter {
				// Delimiter inside a block: the frame was cut short
				return out
			}
			out = append(out, b)
		}
		i += n
	}

	return out
}
