package link

import (
	"sync"

	"vdp/protocol"
)

// packetFifo is a bounded ring of wire packets shared between workers. A
// full ring rejects the newest packet instead of blocking.
type packetFifo struct {
	mu    sync.Mutex
	buf   []protocol.WirePacket
	read  int
	count int

	// ready holds one pending wake-up for the consumer
	ready chan struct{}
}

func newPacketFifo(capacity int) *packetFifo {
	return &packetFifo{
		buf:   make([]protocol.WirePacket, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Push appends p, reporting false if the ring is full
func (f *packetFifo) Push(p protocol.WirePacket) bool {
	f.mu.Lock()
	if f.count == len(f.buf) {
		f.mu.Unlock()
		return false
	}
	f.buf[(f.read+f.count)%len(f.buf)] = p
	f.count++
	f.mu.Unlock()

	select {
	case f.ready <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest packet
func (f *packetFifo) Pop() (protocol.WirePacket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.count == 0 {
		return nil, false
	}
	p := f.buf[f.read]
	f.buf[f.read] = nil
	f.read = (f.read + 1) % len(f.buf)
	f.count--
	return p, true
}

// Len returns the number of queued packets
func (f *packetFifo) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Ready is signalled after a push; consumers re-check Pop after receiving
func (f *packetFifo) Ready() <-chan struct{} {
	return f.ready
}
