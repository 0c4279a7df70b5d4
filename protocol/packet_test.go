package protocol

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	// Standard CRC-32/IEEE check value
	if got := Checksum([]byte("123456789")); got != 0xCBF43926 {
		t.Errorf("Expected check value 0xCBF43926, got 0x%08X", got)
	}

	data1 := []byte{0x01, 0x02, 0x03}
	data2 := []byte{0x01, 0x02, 0x04}
	if Checksum(data1) == Checksum(data2) {
		t.Errorf("Checksum collision for %v and %v", data1, data2)
	}
}

func TestHeaderByte(t *testing.T) {
	testCases := []struct {
		header PacketHeader
		b      byte
	}{
		{PacketHeader{PacketTypeBroadcast, PacketFunctionSend}, 0x00},
		{PacketHeader{PacketTypeBroadcast, PacketFunctionAcknowledge}, 0x40},
		{PacketHeader{PacketTypeData, PacketFunctionSend}, 0x80},
		{PacketHeader{PacketTypeData, PacketFunctionAcknowledge}, 0xC0},
	}

	for _, tc := range testCases {
		if got := MakeHeaderByte(tc.header); got != tc.b {
			t.Errorf("MakeHeaderByte(%+v) = 0x%02X, expected 0x%02X", tc.header, got, tc.b)
		}
		// Low bits carry nothing
		if got := DecodeHeaderByte(tc.b | 0x3F); got != tc.header {
			t.Errorf("DecodeHeaderByte(0x%02X) = %+v, expected %+v", tc.b|0x3F, got, tc.header)
		}
	}
}

func TestValidatePacket(t *testing.T) {
	w := NewPacketWriter()
	good := w.WriteData(3, NewNumber("v", func() uint32 { return 0 }))

	testCases := []struct {
		name   string
		packet []byte
		err    error
	}{
		{name: "ok", packet: good},
		{name: "acknowledge is minimal", packet: w.WriteAcknowledge(9)},
		{name: "empty", packet: nil, err: ErrTooSmall},
		{name: "five bytes", packet: good[:5], err: ErrTooSmall},
		{name: "truncated", packet: good[:len(good)-1], err: ErrBadChecksum},
	}

	for i := 0; i < PacketChecksumSize; i++ {
		bad := append([]byte{}, good...)
		bad[len(bad)-1-i] ^= 0x01
		testCases = append(testCases, struct {
			name   string
			packet []byte
			err    error
		}{name: "checksum byte altered", packet: bad, err: ErrBadChecksum})
	}
	bad := append([]byte{}, good...)
	bad[PacketPositionChannel] = 4
	testCases = append(testCases, struct {
		name   string
		packet []byte
		err    error
	}{name: "body altered", packet: bad, err: ErrBadChecksum})

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePacket(tc.packet)
			if tc.err == nil {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, tc.err), "got %v", err)
		})
	}
}

func TestPacketLayout(t *testing.T) {
	requireT := require.New(t)

	part := NewNumber("v", func() uint32 { return 42 })
	part.Fetch()

	w := NewPacketWriter()
	packet := w.WriteData(1, part)
	requireT.Equal([]byte{0x80, 1, 42, 0, 0, 0}, packet[:6])
	requireT.Len(packet, 10)
	requireT.NoError(ValidatePacket(packet))

	ack := w.WriteAcknowledge(5)
	requireT.Len(ack, PacketMinSize)
	requireT.Equal([]byte{0x40, 5}, ack[:2])
	requireT.NoError(ValidatePacket(ack))
}

func TestDecodeBroadcast(t *testing.T) {
	requireT := require.New(t)

	schema := NewRecord("r", NewNumber[uint32]("a", nil), NewString("b", nil))
	w := NewPacketWriter()
	packet := w.WriteBroadcast(7, schema)
	requireT.NoError(ValidatePacket(packet))

	id, part, err := DecodeBroadcast(packet)
	requireT.NoError(err)
	requireT.Equal(ChannelID(7), id)
	requireT.True(SameShape(schema, part))

	_, _, err = DecodeBroadcast(w.WriteData(7, schema))
	requireT.True(errors.Is(err, ErrUnexpectedHeader))

	// Schema followed by junk before the checksum
	body := append(append([]byte{}, packet[:len(packet)-PacketChecksumSize]...), 0xAA)
	w.Reset()
	for _, b := range body {
		requireT.NoError(w.WriteByte(b))
	}
	w.WriteUint32(Checksum(body))
	_, _, err = DecodeBroadcast(w.Packet())
	requireT.True(errors.Is(err, ErrTrailingBytes))
}

func TestPacketReaderBounds(t *testing.T) {
	requireT := require.New(t)

	r := NewPacketReader([]byte{1, 2, 3}, 5)
	requireT.Zero(r.Remaining())
	_, err := r.ReadByte()
	requireT.True(errors.Is(err, ErrShortPacket))

	r = NewPacketReader([]byte{1, 2, 3}, 0)
	_, err = r.ReadUint32()
	requireT.True(errors.Is(err, ErrShortPacket))
	requireT.Equal(0, r.Position())

	s, err := NewPacketReader([]byte{'a', 'b', 0, 'c'}, 0).ReadString()
	requireT.NoError(err)
	requireT.Equal("ab", s)
}

func TestWriteStringTruncatesAtNul(t *testing.T) {
	w := NewPacketWriter()
	w.WriteString("ab\x00cd")
	require.Equal(t, []byte{'a', 'b', 0}, w.Packet())
}

func TestDecodeData(t *testing.T) {
	requireT := require.New(t)

	src := NewRecord("r",
		NewNumber("a", func() int8 { return -5 }),
		NewString("b", func() string { return "hi" }),
	)
	src.Fetch()
	dst := NewRecord("r", NewNumber[int8]("a", nil), NewString("b", nil))

	w := NewPacketWriter()
	packet := w.WriteData(2, src)
	requireT.NoError(DecodeData(packet, dst))
	requireT.Equal(DescribeData(src), DescribeData(dst))

	err := DecodeData(w.WriteBroadcast(2, src), dst)
	requireT.True(errors.Is(err, ErrUnexpectedHeader))

	// Payload longer than the shape
	other := NewRecord("r", NewNumber("a", func() int8 { return 1 }), NewString("b", func() string { return "longer" }))
	other.Fetch()
	narrow := NewNumber[int8]("a", nil)
	err = DecodeData(w.WriteData(2, other), narrow)
	requireT.True(errors.Is(err, ErrTrailingBytes))
	v, err := NumberValue[int8](narrow)
	requireT.NoError(err)
	requireT.Zero(v)
}
