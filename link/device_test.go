package link

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/outofforest/parallel"
	"github.com/outofforest/qa"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"vdp/protocol"
)

func TestFeedAssemblesPackets(t *testing.T) {
	requireT := require.New(t)

	d := New(DefaultConfig(), zaptest.NewLogger(t))
	var got []protocol.Packet
	d.RegisterReceiveCallback(func(p protocol.Packet) {
		got = append(got, p)
	})

	first := []byte{1, 0, 2}
	second := []byte{0xAA, 0xBB}
	// Redundant delimiters between frames are ignored
	d.FeedBytes(protocol.CobsEncode(first))
	d.FeedBytes([]byte{0, 0})
	for _, b := range protocol.CobsEncode(second) {
		d.Feed(b)
	}
	requireT.Equal(2, d.InboundLen())

	requireT.True(d.DecodeNext())
	requireT.True(d.DecodeNext())
	requireT.False(d.DecodeNext())
	requireT.Equal([]protocol.Packet{first, second}, got)
	requireT.EqualValues(2, d.Stats().Received)
}

func TestFeedSplitAcrossChunks(t *testing.T) {
	requireT := require.New(t)

	d := New(DefaultConfig(), nil)
	var got protocol.Packet
	d.RegisterReceiveCallback(func(p protocol.Packet) { got = p })

	payload := make([]byte, 600)
	for i := range payload {
		payload[i] = byte(i)
	}
	wire := protocol.CobsEncode(payload)
	d.FeedBytes(wire[:100])
	requireT.Zero(d.InboundLen())
	d.FeedBytes(wire[100:])
	requireT.Equal(1, d.InboundLen())

	requireT.True(d.DecodeNext())
	requireT.Equal(protocol.Packet(payload), got)
}

func TestInboundQueueOverflow(t *testing.T) {
	requireT := require.New(t)

	d := New(DefaultConfig(), zaptest.NewLogger(t))
	for i := 0; i < MaxInQueueSize+1; i++ {
		d.FeedBytes(protocol.CobsEncode([]byte{byte(i + 1)}))
	}
	requireT.Equal(MaxInQueueSize, d.InboundLen())
	requireT.EqualValues(1, d.Stats().DroppedInbound)

	// The oldest packets survive, the newest was dropped
	var got []protocol.Packet
	d.RegisterReceiveCallback(func(p protocol.Packet) { got = append(got, p) })
	for d.DecodeNext() {
	}
	requireT.Len(got, MaxInQueueSize)
	requireT.Equal(protocol.Packet{1}, got[0])
	requireT.Equal(protocol.Packet{MaxInQueueSize}, got[MaxInQueueSize-1])
}

func TestOutboundQueueOverflow(t *testing.T) {
	requireT := require.New(t)

	d := New(DefaultConfig(), zaptest.NewLogger(t))
	for i := 0; i < MaxOutQueueSize; i++ {
		requireT.True(d.SendPacket([]byte{byte(i), 0xFF}))
	}
	requireT.False(d.SendPacket([]byte{0x01}))
	requireT.Equal(MaxOutQueueSize, d.OutboundLen())
	requireT.EqualValues(1, d.Stats().DroppedOutbound)

	// FIFO order
	for i := 0; i < MaxOutQueueSize; i++ {
		wire, ok := d.DequeueOutbound()
		requireT.True(ok)
		requireT.Equal([]byte{byte(i), 0xFF}, protocol.CobsDecode(wire))
	}
	_, ok := d.DequeueOutbound()
	requireT.False(ok)
}

func TestSendEmptyPacket(t *testing.T) {
	d := New(DefaultConfig(), nil)
	require.False(t, d.SendPacket(nil))
	require.Zero(t, d.OutboundLen())
}

func TestOversizedFrameIsDiscarded(t *testing.T) {
	requireT := require.New(t)

	d := New(Config{MaxWirePacketSize: 8}, zaptest.NewLogger(t))
	var got []protocol.Packet
	d.RegisterReceiveCallback(func(p protocol.Packet) { got = append(got, p) })

	junk := make([]byte, 20)
	for i := range junk {
		junk[i] = 0x55
	}
	d.FeedBytes(junk)
	d.FeedBytes([]byte{0})
	d.FeedBytes(protocol.CobsEncode([]byte{7, 8}))
	for d.DecodeNext() {
	}

	requireT.Equal([]protocol.Packet{{7, 8}}, got)
	requireT.EqualValues(1, d.Stats().Oversized)
}

func TestRunOverPipe(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	defer func() {
		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	portA, portB := net.Pipe()
	a := New(DefaultConfig(), zaptest.NewLogger(t))
	b := New(DefaultConfig(), zaptest.NewLogger(t))

	received := make(chan protocol.Packet, 10)
	b.RegisterReceiveCallback(func(p protocol.Packet) { received <- p })
	echoed := make(chan protocol.Packet, 10)
	a.RegisterReceiveCallback(func(p protocol.Packet) { echoed <- p })

	group.Spawn("a", parallel.Fail, func(ctx context.Context) error {
		return a.Run(ctx, portA)
	})
	group.Spawn("b", parallel.Fail, func(ctx context.Context) error {
		return b.Run(ctx, portB)
	})

	packets := []protocol.Packet{{1, 2, 3}, {0, 0, 0}, {9}}
	for _, p := range packets {
		requireT.True(a.SendPacket(p))
	}
	for _, p := range packets {
		select {
		case got := <-received:
			requireT.Equal(p, got)
		case <-time.After(5 * time.Second):
			requireT.FailNow("timeout waiting for packet")
		}
	}

	requireT.True(b.SendPacket(protocol.Packet{4, 5}))
	select {
	case got := <-echoed:
		requireT.Equal(protocol.Packet{4, 5}, got)
	case <-time.After(5 * time.Second):
		requireT.FailNow("timeout waiting for reply")
	}
}
