// Package registry negotiates channels between two peers and dispatches
// inbound packets to user callbacks.
//
// A Controller opens channels, broadcasts their schemas with Negotiate and
// streams values with SendData once the peer acknowledged. A Listener mirrors
// the peer's channels from broadcasts, acknowledges them automatically and
// decodes data into the mirrored schemas.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vdp/link"
	"vdp/protocol"
)

// Registry errors
var (
	ErrNotController   = errors.New("only a controller negotiates")
	ErrNotAcked        = errors.New("channel not acknowledged by peer")
	ErrTooManyChannels = errors.New("no channel ids left")
	ErrNilPart         = errors.New("channel needs a part")
)

// Side is the protocol role of a registry
type Side int

const (
	Controller Side = iota
	Listener
)

func (s Side) String() string {
	if s == Controller {
		return "controller"
	}
	return "listener"
}

// Device is the transport capability the registry needs: send one packet
// without blocking and deliver every received packet to a callback
type Device interface {
	SendPacket(packet protocol.Packet) bool
	RegisterReceiveCallback(cb link.ReceiveCallback)
}

// Channel binds an id to the root of its schema
type Channel struct {
	ID    protocol.ChannelID
	Data  protocol.Part
	Acked bool
}

// CallbackFn receives a channel. The part is borrowed: it stays owned by the
// registry and must not be retained past the call when it is a remote channel.
type CallbackFn func(ch Channel)

// Stats holds diagnostic counters of dropped inbound packets
type Stats struct {
	TooSmall       uint64
	BadChecksum    uint64
	Malformed      uint64
	UnknownChannel uint64
}

// Registry owns the local and remote channel tables of one peer
type Registry struct {
	side   Side
	device Device
	config Config
	log    *zap.Logger

	mu sync.Mutex
	// Index equals channel id; slot 0 is the control channel and stays nil
	myChannels     []*Channel
	remoteChannels []*Channel
	onBroadcast    CallbackFn
	onData         CallbackFn
	writer         *protocol.PacketWriter

	tooSmall       atomic.Uint64
	badChecksum    atomic.Uint64
	malformed      atomic.Uint64
	unknownChannel atomic.Uint64
}

// Option configures a registry
type Option func(r *Registry)

// WithLogger sets the logger used for dropped packets and negotiation
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// WithConfig sets negotiation timing
func WithConfig(config Config) Option {
	return func(r *Registry) {
		r.config = config
	}
}

// WithBroadcastCallback installs the callback for schemas announced by the peer
func WithBroadcastCallback(fn CallbackFn) Option {
	return func(r *Registry) {
		r.onBroadcast = fn
	}
}

// WithDataCallback installs the callback for values received from the peer
func WithDataCallback(fn CallbackFn) Option {
	return func(r *Registry) {
		r.onData = fn
	}
}

// New creates a registry on top of device and subscribes to its packets
func New(device Device, side Side, opts ...Option) *Registry {
	r := &Registry{
		side:           side,
		device:         device,
		config:         DefaultConfig(),
		log:            zap.NewNop(),
		myChannels:     []*Channel{nil},
		remoteChannels: []*Channel{nil},
		writer:         protocol.NewPacketWriter(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.config = r.config.withDefaults()
	r.log = r.log.With(zap.Stringer("side", side))

	if r.onBroadcast == nil {
		r.onBroadcast = r.logBroadcast
	}
	if r.onData == nil {
		r.onData = r.logData
	}

	device.RegisterReceiveCallback(r.TakePacket)
	return r
}

func (r *Registry) logBroadcast(ch Channel) {
	r.log.Debug("No broadcast callback installed",
		zap.Uint8("channel", ch.ID), zap.String("schema", protocol.Describe(ch.Data)))
}

func (r *Registry) logData(ch Channel) {
	r.log.Debug("No data callback installed",
		zap.Uint8("channel", ch.ID), zap.String("data", protocol.DescribeData(ch.Data)))
}

// Side returns the role of the registry
func (r *Registry) Side() Side {
	return r.side
}

// InstallBroadcastCallback replaces the broadcast callback; nil restores the default
func (r *Registry) InstallBroadcastCallback(fn CallbackFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		fn = r.logBroadcast
	}
	r.onBroadcast = fn
}

// InstallDataCallback replaces the data callback; nil restores the default
func (r *Registry) InstallDataCallback(fn CallbackFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		fn = r.logData
	}
	r.onData = fn
}

// OpenChannel registers part under the next free id. Nothing is transmitted
// until Negotiate.
func (r *Registry) OpenChannel(part protocol.Part) (protocol.ChannelID, error) {
	if part == nil {
		return 0, errors.WithStack(ErrNilPart)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.myChannels) >= protocol.MaxChannels {
		return 0, errors.WithStack(ErrTooManyChannels)
	}
	id := protocol.ChannelID(len(r.myChannels))
	r.myChannels = append(r.myChannels, &Channel{ID: id, Data: part})
	return id, nil
}

// Channel returns a snapshot of a local channel
func (r *Registry) Channel(id protocol.ChannelID) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := r.localChannel(id)
	if ch == nil {
		return Channel{}, false
	}
	return *ch, true
}

// RemoteSchema returns the mirrored schema of a peer channel
func (r *Registry) RemoteSchema(id protocol.ChannelID) (protocol.Part, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := r.remoteChannel(id)
	if ch == nil {
		return nil, false
	}
	return ch.Data, true
}

// Stats returns the counters of dropped inbound packets
func (r *Registry) Stats() Stats {
	return Stats{
		TooSmall:       r.tooSmall.Load(),
		BadChecksum:    r.badChecksum.Load(),
		Malformed:      r.malformed.Load(),
		UnknownChannel: r.unknownChannel.Load(),
	}
}

func (r *Registry) localChannel(id protocol.ChannelID) *Channel {
	if int(id) >= len(r.myChannels) {
		return nil
	}
	return r.myChannels[id]
}

func (r *Registry) remoteChannel(id protocol.ChannelID) *Channel {
	if int(id) >= len(r.remoteChannels) {
		return nil
	}
	return r.remoteChannels[id]
}

// Negotiate broadcasts every unacknowledged local channel and waits for the
// peer to acknowledge it, retrying a bounded number of times. It succeeds only
// when every channel is acknowledged.
func (r *Registry) Negotiate(ctx context.Context) error {
	if r.side != Controller {
		return errors.WithStack(ErrNotController)
	}

	r.mu.Lock()
	pending := make([]protocol.ChannelID, 0, len(r.myChannels))
	for _, ch := range r.myChannels[1:] {
		if !ch.Acked {
			pending = append(pending, ch.ID)
		}
	}
	r.mu.Unlock()

	var failed []string
	for _, id := range pending {
		acked, err := r.negotiateChannel(ctx, id)
		if err != nil {
			return err
		}
		if !acked {
			failed = append(failed, fmt.Sprint(id))
		}
	}

	if len(failed) > 0 {
		return errors.Wrapf(protocol.ErrNegotiationTimeout, "channels %s", strings.Join(failed, ", "))
	}
	return nil
}

func (r *Registry) negotiateChannel(ctx context.Context, id protocol.ChannelID) (bool, error) {
	log := r.log.With(zap.Uint8("channel", id))

	for attempt := 1; attempt <= r.config.AckRetries; attempt++ {
		r.mu.Lock()
		ch := r.myChannels[id]
		packet := r.writer.WriteBroadcast(id, ch.Data)
		r.mu.Unlock()

		if !r.device.SendPacket(packet) {
			log.Warn("Broadcast not queued, outbound queue full", zap.Int("attempt", attempt))
		} else {
			log.Debug("Broadcast sent", zap.Int("attempt", attempt), zap.Int("size", len(packet)))
		}

		acked, err := r.awaitAck(ctx, id)
		if err != nil || acked {
			return acked, err
		}
		log.Debug("No acknowledgment", zap.Int("attempt", attempt), zap.Duration("timeout", r.config.AckTimeout))
	}

	log.Warn("Channel negotiation failed", zap.Int("attempts", r.config.AckRetries))
	return false, nil
}

func (r *Registry) awaitAck(ctx context.Context, id protocol.ChannelID) (bool, error) {
	deadline := time.NewTimer(r.config.AckTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(r.config.PollInterval)
	defer poll.Stop()

	for {
		if r.isAcked(id) {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, errors.WithStack(ctx.Err())
		case <-deadline.C:
			return r.isAcked(id), nil
		case <-poll.C:
		}
	}
}

func (r *Registry) isAcked(id protocol.ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := r.localChannel(id)
	return ch != nil && ch.Acked
}

// SendData transmits the values of part on an acknowledged channel. A nil part
// sends the channel's own part.
func (r *Registry) SendData(id protocol.ChannelID, part protocol.Part) error {
	r.mu.Lock()
	ch := r.localChannel(id)
	if ch == nil {
		r.mu.Unlock()
		return errors.Wrapf(protocol.ErrUnknownChannel, "channel %d", id)
	}
	if !ch.Acked {
		r.mu.Unlock()
		return errors.Wrapf(ErrNotAcked, "channel %d", id)
	}
	if part == nil {
		part = ch.Data
	}
	packet := r.writer.WriteData(id, part)
	r.mu.Unlock()

	if !r.device.SendPacket(packet) {
		return errors.Wrapf(protocol.ErrQueueFull, "channel %d", id)
	}
	return nil
}
