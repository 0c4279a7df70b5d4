package registry

import (
	"go.uber.org/zap"

	"vdp/protocol"
)

// TakePacket handles one unframed packet received from the peer. Invalid
// packets are counted and dropped; nothing is returned to the transport.
func (r *Registry) TakePacket(packet protocol.Packet) {
	if err := protocol.ValidatePacket(packet); err != nil {
		if len(packet) < protocol.PacketMinSize {
			r.tooSmall.Add(1)
		} else {
			r.badChecksum.Add(1)
		}
		r.log.Debug("Dropping invalid packet", zap.Int("size", len(packet)), zap.Error(err))
		return
	}

	header := protocol.DecodeHeaderByte(packet[protocol.PacketPositionHeader])
	id := packet[protocol.PacketPositionChannel]

	switch {
	case header.Function == protocol.PacketFunctionAcknowledge:
		r.takeAcknowledge(id)
	case header.Type == protocol.PacketTypeBroadcast:
		r.takeBroadcast(packet)
	default:
		r.takeData(id, packet)
	}
}

func (r *Registry) takeBroadcast(packet protocol.Packet) {
	id, part, err := protocol.DecodeBroadcast(packet)
	if err != nil {
		r.malformed.Add(1)
		r.log.Warn("Dropping malformed broadcast", zap.Uint8("channel", id), zap.Error(err))
		return
	}
	if id == protocol.ControlChannelID {
		r.malformed.Add(1)
		r.log.Warn("Dropping broadcast on control channel")
		return
	}

	ch := &Channel{ID: id, Data: part, Acked: true}

	r.mu.Lock()
	for len(r.remoteChannels) <= int(id) {
		r.remoteChannels = append(r.remoteChannels, nil)
	}
	if prev := r.remoteChannels[id]; prev != nil {
		r.log.Debug("Peer redefined channel", zap.Uint8("channel", id),
			zap.Bool("sameShape", protocol.SameShape(prev.Data, part)))
	}
	r.remoteChannels[id] = ch
	callback := r.onBroadcast
	ack := r.writer.WriteAcknowledge(id)
	r.mu.Unlock()

	callback(*ch)

	if !r.device.SendPacket(ack) {
		r.log.Warn("Acknowledgment not queued, outbound queue full", zap.Uint8("channel", id))
	}
}

func (r *Registry) takeData(id protocol.ChannelID, packet protocol.Packet) {
	r.mu.Lock()
	ch := r.remoteChannel(id)
	if ch == nil {
		r.mu.Unlock()
		r.unknownChannel.Add(1)
		r.log.Debug("Dropping data for unknown channel", zap.Uint8("channel", id))
		return
	}

	err := protocol.DecodeData(packet, ch.Data)
	snapshot := *ch
	callback := r.onData
	r.mu.Unlock()

	if err != nil {
		r.malformed.Add(1)
		r.log.Warn("Dropping malformed data", zap.Uint8("channel", id), zap.Error(err))
		return
	}
	callback(snapshot)
}

func (r *Registry) takeAcknowledge(id protocol.ChannelID) {
	r.mu.Lock()
	ch := r.localChannel(id)
	if ch != nil {
		ch.Acked = true
	}
	r.mu.Unlock()

	if ch == nil {
		r.unknownChannel.Add(1)
		r.log.Debug("Ignoring acknowledgment for unknown channel", zap.Uint8("channel", id))
		return
	}
	r.log.Debug("Channel acknowledged", zap.Uint8("channel", id))
}
