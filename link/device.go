// Package link turns a raw byte stream into COBS framed packets and back.
//
// A Device owns three pieces of shared state: the accumulation buffer that
// collects bytes until a delimiter arrives, a bounded inbound queue of complete
// wire packets and a bounded outbound queue waiting for the port. Both queues
// drop the newest packet when full; nothing here blocks a caller.
package link

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vdp/protocol"
)

// Queue and buffer limits
const (
	MaxOutQueueSize   = 50
	MaxInQueueSize    = 50
	MaxWirePacketSize = 4096
	DefaultIdleDelay  = time.Millisecond

	readBufferSize = 256
)

// Config holds link tuning
type Config struct {
	MaxInQueue        int           `toml:"max_in_queue"`
	MaxOutQueue       int           `toml:"max_out_queue"`
	MaxWirePacketSize int           `toml:"max_wire_packet"`
	IdleDelay         time.Duration `toml:"idle_delay"`
}

// DefaultConfig returns the queue bounds used by both peers
func DefaultConfig() Config {
	return Config{
		MaxInQueue:        MaxInQueueSize,
		MaxOutQueue:       MaxOutQueueSize,
		MaxWirePacketSize: MaxWirePacketSize,
		IdleDelay:         DefaultIdleDelay,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxInQueue <= 0 {
		c.MaxInQueue = d.MaxInQueue
	}
	if c.MaxOutQueue <= 0 {
		c.MaxOutQueue = d.MaxOutQueue
	}
	if c.MaxWirePacketSize <= 0 {
		c.MaxWirePacketSize = d.MaxWirePacketSize
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = d.IdleDelay
	}
	return c
}

// ReceiveCallback is invoked with every decoded inbound packet
type ReceiveCallback func(packet protocol.Packet)

// Stats counts packets the link had to throw away
type Stats struct {
	DroppedInbound  uint64
	DroppedOutbound uint64
	Oversized       uint64
	Received        uint64
	Sent            uint64
}

// Device is the COBS byte-stream assembler for one physical link
type Device struct {
	config Config
	log    *zap.Logger

	// Guards the accumulation buffer; only the reader touches it in practice
	inboundMu     sync.Mutex
	inboundBuffer []byte
	discarding    bool

	inbound  *packetFifo
	outbound *packetFifo

	callbackMu sync.RWMutex
	callback   ReceiveCallback

	droppedInbound  atomic.Uint64
	droppedOutbound atomic.Uint64
	oversized       atomic.Uint64
	received        atomic.Uint64
	sent            atomic.Uint64
}

// New creates a device. log may be nil.
func New(config Config, log *zap.Logger) *Device {
	if log == nil {
		log = zap.NewNop()
	}
	config = config.withDefaults()
	return &Device{
		config:        config,
		log:           log,
		inboundBuffer: make([]byte, 0, readBufferSize),
		inbound:       newPacketFifo(config.MaxInQueue),
		outbound:      newPacketFifo(config.MaxOutQueue),
	}
}

// RegisterReceiveCallback sets the consumer of decoded packets
func (d *Device) RegisterReceiveCallback(cb ReceiveCallback) {
	d.callbackMu.Lock()
	defer d.callbackMu.Unlock()
	d.callback = cb
}

// Feed consumes one byte from the wire
func (d *Device) Feed(b byte) {
	d.inboundMu.Lock()
	defer d.inboundMu.Unlock()
	d.feed(b)
}

// FeedBytes consumes a chunk of bytes from the wire
func (d *Device) FeedBytes(p []byte) {
	d.inboundMu.Lock()
	defer d.inboundMu.Unlock()
	for _, b := range p {
		d.feed(b)
	}
}

func (d *Device) feed(b byte) {
	if b != 0x00 {
		if d.discarding {
			return
		}
		if len(d.inboundBuffer) >= d.config.MaxWirePacketSize {
			// Drop everything up to the next delimiter
			d.discarding = true
			d.inboundBuffer = d.inboundBuffer[:0]
			d.oversized.Add(1)
			d.log.Warn("Dropping oversized inbound frame", zap.Int("limit", d.config.MaxWirePacketSize))
			return
		}
		d.inboundBuffer = append(d.inboundBuffer, b)
		return
	}

	if d.discarding {
		d.discarding = false
		return
	}
	if len(d.inboundBuffer) == 0 {
		// Redundant delimiter
		return
	}

	wire := make(protocol.WirePacket, len(d.inboundBuffer))
	copy(wire, d.inboundBuffer)
	d.inboundBuffer = d.inboundBuffer[:0]

	if !d.inbound.Push(wire) {
		d.droppedInbound.Add(1)
		d.log.Warn("Dropping inbound packet, inbound queue full", zap.Int("size", len(wire)))
	}
}

// SendPacket frames a packet and queues it for transmission. It returns false
// without queueing anything when the outbound queue is full.
func (d *Device) SendPacket(packet protocol.Packet) bool {
	wire := protocol.CobsEncode(packet)
	if len(wire) == 0 {
		return false
	}
	if !d.outbound.Push(wire) {
		d.droppedOutbound.Add(1)
		d.log.Debug("Outbound queue full", zap.Int("limit", d.config.MaxOutQueue))
		return false
	}
	return true
}

// DequeueOutbound pops the oldest queued wire packet
func (d *Device) DequeueOutbound() (protocol.WirePacket, bool) {
	return d.outbound.Pop()
}

// DecodeNext decodes the oldest inbound wire packet and hands it to the
// receive callback. It reports false when there was nothing to do.
func (d *Device) DecodeNext() bool {
	wire, ok := d.inbound.Pop()
	if !ok {
		return false
	}
	d.received.Add(1)

	packet := protocol.CobsDecode(wire)

	d.callbackMu.RLock()
	cb := d.callback
	d.callbackMu.RUnlock()

	if cb == nil {
		d.log.Debug("No receive callback installed, dropping packet", zap.Int("size", len(packet)))
		return true
	}
	cb(packet)
	return true
}

// InboundLen returns the number of complete wire packets waiting for decoding
func (d *Device) InboundLen() int {
	return d.inbound.Len()
}

// OutboundLen returns the number of wire packets waiting for the port
func (d *Device) OutboundLen() int {
	return d.outbound.Len()
}

// Stats returns a snapshot of the link counters
func (d *Device) Stats() Stats {
	return Stats{
		DroppedInbound:  d.droppedInbound.Load(),
		DroppedOutbound: d.droppedOutbound.Load(),
		Oversized:       d.oversized.Load(),
		Received:        d.received.Load(),
		Sent:            d.sent.Load(),
	}
}

// Run drives the link over port until ctx is done or the port fails. The port
// is closed on exit when it implements io.Closer; otherwise Run returns only
// after the pending Read does.
func (d *Device) Run(ctx context.Context, port io.ReadWriter) error {
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("writer", parallel.Fail, func(ctx context.Context) error {
			return d.runWriter(ctx, port)
		})
		spawn("reader", parallel.Fail, func(ctx context.Context) error {
			return d.runReader(ctx, port)
		})
		spawn("decoder", parallel.Fail, d.runDecoder)
		return nil
	})
}

func (d *Device) runWriter(ctx context.Context, port io.Writer) error {
	if c, ok := port.(io.Closer); ok {
		defer c.Close()
	}

	log := logger.Get(ctx)
	for {
		wire, ok := d.outbound.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return errors.WithStack(ctx.Err())
			case <-d.outbound.Ready():
			}
			continue
		}

		for len(wire) > 0 {
			n, err := port.Write(wire)
			if err != nil {
				if ctx.Err() != nil {
					return errors.WithStack(ctx.Err())
				}
				return errors.Wrap(err, "writing wire packet")
			}
			if n < len(wire) {
				log.Debug("Short write on link, continuing", zap.Int("wrote", n), zap.Int("size", len(wire)))
			}
			wire = wire[n:]
		}
		d.sent.Add(1)
	}
}

func (d *Device) runReader(ctx context.Context, port io.Reader) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			d.FeedBytes(buf[:n])
		}

		switch {
		case ctx.Err() != nil:
			return errors.WithStack(ctx.Err())
		case err == nil:
		case errors.Is(err, io.EOF):
			// Timed out serial reads report EOF; nothing available, so yield
			if n == 0 {
				select {
				case <-ctx.Done():
					return errors.WithStack(ctx.Err())
				case <-time.After(d.config.IdleDelay):
				}
			}
		default:
			return errors.Wrap(err, "reading from link")
		}
	}
}

func (d *Device) runDecoder(ctx context.Context) error {
	for {
		if d.DecodeNext() {
			continue
		}
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-d.inbound.Ready():
		}
	}
}
