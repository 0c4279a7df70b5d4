// Package peer joins a port, a link device and a channel registry into one
// runnable endpoint.
package peer

import (
	"context"
	"io"
	"time"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vdp/host/config"
	"vdp/link"
	"vdp/protocol"
	"vdp/registry"
)

// Peer is one side of a connection
type Peer struct {
	link     *link.Device
	registry *registry.Registry
}

// New creates a peer. Registry options are applied after the configured ones.
func New(cfg config.Config, side registry.Side, log *zap.Logger, opts ...registry.Option) *Peer {
	if log == nil {
		log = zap.NewNop()
	}

	device := link.New(cfg.Link, log.Named("link"))
	opts = append([]registry.Option{
		registry.WithConfig(cfg.Registry),
		registry.WithLogger(log.Named("registry")),
	}, opts...)

	return &Peer{
		link:     device,
		registry: registry.New(device, side, opts...),
	}
}

// Link returns the byte-stream assembler of the peer
func (p *Peer) Link() *link.Device {
	return p.link
}

// Registry returns the channel registry of the peer
func (p *Peer) Registry() *registry.Registry {
	return p.registry
}

// Run moves packets between the port and the registry until ctx is done
func (p *Peer) Run(ctx context.Context, port io.ReadWriter) error {
	return p.link.Run(ctx, port)
}

// Stream negotiates all open channels and then, every interval, refreshes and
// sends the values of ids. Run must be active for the peer to make progress.
func (p *Peer) Stream(ctx context.Context, interval time.Duration, ids ...protocol.ChannelID) error {
	log := logger.Get(ctx)

	if err := p.registry.Negotiate(ctx); err != nil {
		return err
	}
	log.Info("Channels negotiated", zap.Int("channels", len(ids)))

	parts := make([]protocol.Part, 0, len(ids))
	for _, id := range ids {
		ch, ok := p.registry.Channel(id)
		if !ok {
			return errors.Wrapf(protocol.ErrUnknownChannel, "channel %d", id)
		}
		parts = append(parts, ch.Data)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for i, id := range ids {
			parts[i].Fetch()
			if err := p.registry.SendData(id, nil); err != nil {
				if !errors.Is(err, protocol.ErrQueueFull) {
					return err
				}
				log.Warn("Skipping update, outbound queue full", zap.Uint8("channel", id))
			}
		}

		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-ticker.C:
		}
	}
}
