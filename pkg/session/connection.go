// Package session ties the packet framer, channel multiplexer, priority
// manager, and ping/time-sync machinery into the per-connection and
// per-host frame schedule of spec.md §5: pre-update receive, fixed-update
// simulation (driven by the embedding application), post-update send.
package session

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tickforge/netsync/pkg/channel"
	"github.com/tickforge/netsync/pkg/netconfig"
	"github.com/tickforge/netsync/pkg/netmetrics"
	"github.com/tickforge/netsync/pkg/netsyncerr"
	"github.com/tickforge/netsync/pkg/peerid"
	"github.com/tickforge/netsync/pkg/pingsync"
	"github.com/tickforge/netsync/pkg/priority"
	"github.com/tickforge/netsync/pkg/tick"
	"github.com/tickforge/netsync/pkg/wire"
)

// Reserved channel ids every connection carries regardless of what the
// embedding application registers on top (spec.md §4.4 "dedicated
// unreliable channel whose priority bypasses the bandwidth quota").
const (
	ChannelPing uint16 = 0xFFFF
)

const pingEffectivePriority = priority.BypassThreshold

// MessageHandler receives one fully-reassembled, in-order (per the
// channel's mode) application payload.
type MessageHandler func(peer peerid.PeerId, payload []byte, originTick *tick.Tick)

type sentPacketInfo struct {
	refs []messageRef
	at   time.Time
}

type messageRef struct {
	channelID uint16
	messageID uint16
}

// Connection owns all per-peer state: the packet-id ack tracker, the
// channel set, the reassembler, the bandwidth limiter, and the ping
// estimator. It is touched by only one Host.Step call at a time (spec.md
// §5 "Shared resources").
type Connection struct {
	Peer peerid.PeerId

	channels   map[uint16]*channel.Set
	ackState   wire.AckState
	reassembly *wire.Reassembler
	bandwidth  *priority.Manager
	ping       *pingsync.Manager
	timeSync   *pingsync.TimeSync

	nextPacketID uint16
	sentPackets  map[uint16]sentPacketInfo

	startedAt time.Time
	LastRecv  time.Time

	cfg netconfig.Config
	log *logrus.Entry
}

// pingChannelSettings backs the reserved ping channel on every connection,
// independent of whatever the embedding application registers: unreliable
// (a lost ping is just answered by the next one) with a bypass-threshold
// priority so it is never starved by ordinary traffic.
var pingChannelSettings = channel.Settings{Mode: channel.ModeUnreliableUnordered, Priority: 1}

func newConnection(peer peerid.PeerId, reg *channel.Registry, cfg netconfig.Config, log *logrus.Entry, now time.Time) (*Connection, error) {
	sets, err := channel.BuildConnectionChannels(reg)
	if err != nil {
		return nil, fmt.Errorf("session: build channels for %s: %w", peer, err)
	}
	if _, ok := sets[ChannelPing]; !ok {
		sender, err := channel.NewSender(pingChannelSettings)
		if err != nil {
			return nil, fmt.Errorf("session: build ping channel: %w", err)
		}
		receiver, err := channel.NewReceiver(pingChannelSettings)
		if err != nil {
			return nil, fmt.Errorf("session: build ping channel: %w", err)
		}
		sets[ChannelPing] = &channel.Set{ChannelID: ChannelPing, Settings: pingChannelSettings, Sender: sender, Receiver: receiver}
	}
	return &Connection{
		Peer:        peer,
		channels:    sets,
		reassembly:  wire.NewReassembler(),
		bandwidth:   priority.NewManager(uint32(cfg.BandwidthQuotaBytesPerSec)),
		ping:        pingsync.NewManager(cfg.PingInterval),
		timeSync:    pingsync.NewTimeSync(cfg.TickDuration),
		sentPackets: make(map[uint16]sentPacketInfo),
		startedAt:   now,
		LastRecv:    now,
		cfg:         cfg,
		log:         log.WithField("peer", peer.String()),
	}, nil
}

// RTT reports the connection's current smoothed round-trip estimate.
func (c *Connection) RTT() time.Duration { return c.ping.Estimator.RTT() }

// Jitter reports the connection's current smoothed jitter estimate.
func (c *Connection) Jitter() time.Duration { return c.ping.Estimator.Jitter() }

// Enqueue buffers payload on the named channel for the next send pass.
func (c *Connection) Enqueue(channelID uint16, payload []byte, prio float32, originTick *tick.Tick) error {
	set, ok := c.channels[channelID]
	if !ok {
		return netsyncerr.New(netsyncerr.UnknownChannel, "Connection.Enqueue", fmt.Errorf("channel %d", channelID))
	}
	set.Sender.BufferSend(payload, prio, originTick)
	return nil
}

// ReadNext pops the next deliverable message buffered on channelID, per
// that channel's delivery mode (e.g. in-order for a reliable-ordered
// channel). The embedding application drains every channel it cares about
// once per fixed-update tick; undrained messages simply accumulate until
// read.
func (c *Connection) ReadNext(channelID uint16) (payload []byte, originTick *tick.Tick, ok bool) {
	set, exists := c.channels[channelID]
	if !exists {
		return nil, nil, false
	}
	return set.Receiver.ReadNext()
}

func decodePing(payload []byte) (pingsync.Ping, bool) {
	r := wire.NewReader(payload)
	kind, err := r.GetByte()
	if err != nil || kind != 0 {
		return pingsync.Ping{}, false
	}
	id, err := r.GetUint16()
	if err != nil {
		return pingsync.Ping{}, false
	}
	return pingsync.Ping{ID: pingsync.PingID(id)}, true
}

func decodePong(payload []byte) (pingsync.Pong, bool) {
	r := wire.NewReader(payload)
	kind, err := r.GetByte()
	if err != nil || kind != 1 {
		return pingsync.Pong{}, false
	}
	id, err := r.GetUint16()
	if err != nil {
		return pingsync.Pong{}, false
	}
	processTicks, err := r.GetUint32()
	if err != nil {
		return pingsync.Pong{}, false
	}
	return pingsync.Pong{PingID: pingsync.PingID(id), ServerProcessTicks: int32(processTicks)}, true
}

func encodePing(p pingsync.Ping) []byte {
	w := wire.NewWriter(3)
	w.PutByte(0)
	w.PutUint16(uint16(p.ID))
	return w.Bytes()
}

func encodePong(p pingsync.Pong) []byte {
	w := wire.NewWriter(7)
	w.PutByte(1)
	w.PutUint16(uint16(p.PingID))
	w.PutUint32(uint32(p.ServerProcessTicks))
	return w.Bytes()
}

// handlePingChannel drains the ping channel's receiver, answering Pings
// with a Pong and folding returning Pongs into the RTT estimator.
func (c *Connection) handlePingChannel(now time.Time, nowTick tick.Tick) {
	set, ok := c.channels[ChannelPing]
	if !ok {
		return
	}
	for {
		payload, _, ok := set.Receiver.ReadNext()
		if !ok {
			break
		}
		if ping, isPing := decodePing(payload); isPing {
			pong := pingsync.AnswerPing(ping, 0)
			set.Sender.BufferSend(encodePong(pong), pingEffectivePriority, nil)
			continue
		}
		if pong, isPong := decodePong(payload); isPong {
			c.ping.OnPong(pong, now, c.cfg.TickDuration)
		}
	}
	if p, due := c.ping.MaybeSendPing(now); due {
		set.Sender.BufferSend(encodePing(p), pingEffectivePriority, nil)
	}
}

// ingestPacket decodes one raw datagram, feeds channel receivers, and
// drives the packet-level ack bookkeeping. Malformed input is dropped and
// counted (spec.md §7 MalformedPacket).
func (c *Connection) ingestPacket(data []byte, now time.Time) {
	pkt, err := wire.Decode(data)
	if err != nil {
		netmetrics.PacketsDropped.WithLabelValues("malformed_packet").Inc()
		wrapped := netsyncerr.New(netsyncerr.MalformedPacket, "Connection.ingestPacket", err)
		c.log.WithError(wrapped).Debug("dropping malformed packet")
		return
	}
	c.LastRecv = now
	c.ackState.OnReceive(pkt.Header.PacketID)
	c.processAcks(pkt.Header)

	switch pkt.Header.PacketType {
	case wire.PacketTypeData:
		for _, group := range pkt.Groups {
			set, ok := c.channels[group.ChannelID]
			if !ok {
				netmetrics.PacketsDropped.WithLabelValues("unknown_channel").Inc()
				wrapped := netsyncerr.New(netsyncerr.UnknownChannel, "Connection.ingestPacket", fmt.Errorf("channel %d", group.ChannelID))
				c.log.WithError(wrapped).Debug("dropping packet group for unknown channel")
				continue
			}
			for _, msg := range group.Messages {
				var originTick *tick.Tick
				if msg.OriginTick != nil {
					t := tick.Tick(*msg.OriginTick)
					originTick = &t
				}
				set.Receiver.BufferRecv(msg.Payload, msg.MessageID, originTick, tick.Tick(pkt.Header.Tick))
			}
		}
		netmetrics.BytesReceived.WithLabelValues("total").Add(float64(len(data)))
	case wire.PacketTypeDataFragment:
		if pkt.Fragment == nil {
			return
		}
		c.reassembly.Sweep(wire.ReassemblyTTL)
		payload, complete := c.reassembly.Add(pkt.Fragment.ChannelID, pkt.Fragment.Fragment)
		if !complete {
			return
		}
		set, ok := c.channels[pkt.Fragment.ChannelID]
		if !ok {
			netmetrics.PacketsDropped.WithLabelValues("unknown_channel").Inc()
			wrapped := netsyncerr.New(netsyncerr.UnknownChannel, "Connection.ingestPacket", fmt.Errorf("channel %d", pkt.Fragment.ChannelID))
			c.log.WithError(wrapped).Debug("dropping fragment for unknown channel")
			return
		}
		id := pkt.Fragment.Fragment.MessageID
		set.Receiver.BufferRecv(payload, &id, nil, tick.Tick(pkt.Header.Tick))
	}
}

// processAcks confirms every outgoing packet id the remote header reports
// as received and relays that confirmation to the owning channel sender,
// per withack.go's "ack arriving via the packet layer" contract.
func (c *Connection) processAcks(h wire.PacketHeader) {
	confirm := func(packetID uint16) {
		info, ok := c.sentPackets[packetID]
		if !ok {
			return
		}
		delete(c.sentPackets, packetID)
		for _, ref := range info.refs {
			if set, ok := c.channels[ref.channelID]; ok {
				set.Sender.OnMessageAck(ref.messageID)
			}
		}
	}
	confirm(h.LastAckedPacketID)
	for i := uint(0); i < 32; i++ {
		packetID, received := wire.Received(h, i)
		if received {
			confirm(packetID)
		}
	}
}

// buildOutgoingPackets collects ready messages from every channel, runs
// them through the bandwidth limiter, and packs them into datagrams.
func (c *Connection) buildOutgoingPackets(now time.Time, nowTick tick.Tick) [][]byte {
	var candidates []priority.Candidate
	// priority.Candidate embeds a []byte payload, which can't back a map
	// key, so the original OutgoingMessage (for its OriginTick) is
	// recovered positionally below rather than through a lookup map.
	var originals []channel.OutgoingMessage
	for id, set := range c.channels {
		for _, m := range set.Sender.CollectReady(now, nowTick) {
			candidates = append(candidates, priority.Candidate{
				ChannelID: id,
				MessageID: m.MessageID,
				Priority:  m.Priority,
				ChanPrio:  set.Settings.Priority,
				Size:      len(m.Payload),
				Reliable:  set.Settings.Mode == channel.ModeReliableUnordered || set.Settings.Mode == channel.ModeReliableOrdered,
				Payload:   m.Payload,
			})
			originals = append(originals, m)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	approved, denied, _ := c.bandwidth.Select(now.Sub(c.startedAt).Seconds(), candidates)
	if len(denied) > 0 {
		netmetrics.PacketsDropped.WithLabelValues("bandwidth_exhausted").Add(float64(len(denied)))
	}

	used := make([]bool, len(originals))
	findOriginal := func(cand priority.Candidate) channel.OutgoingMessage {
		for i, o := range originals {
			if used[i] {
				continue
			}
			if samePayload(o.Payload, cand.Payload) {
				used[i] = true
				return o
			}
		}
		return channel.OutgoingMessage{Payload: cand.Payload, MessageID: cand.MessageID}
	}

	var pending []wire.PendingMessage
	for _, cand := range approved {
		m := findOriginal(cand)
		pending = append(pending, wire.PendingMessage{
			ChannelID:  cand.ChannelID,
			MessageID:  m.MessageID,
			OriginTick: m.OriginTick,
			Payload:    m.Payload,
		})
	}

	header := c.ackState.Header(c.nextPacketID, uint16(nowTick))
	packets, oversized := wire.BuildDataPackets(header, wire.DefaultMTU, pending)
	c.recordPacketRefs(c.nextPacketID, pending, now)
	c.nextPacketID++

	for _, m := range oversized {
		if m.MessageID == nil {
			continue // can't fragment a message with no id to key reassembly on
		}
		fragHeader := c.ackState.Header(c.nextPacketID, uint16(nowTick))
		frags, err := wire.BuildFragmentPackets(fragHeader, m.ChannelID, *m.MessageID, m.Payload, wire.DefaultMTU)
		if err != nil {
			wrapped := netsyncerr.New(netsyncerr.MessageTooLarge, "Connection.buildOutgoingPackets", err)
			c.log.WithError(wrapped).Warn("message too large to fragment")
			continue
		}
		c.recordPacketRefs(c.nextPacketID, []wire.PendingMessage{{ChannelID: m.ChannelID, MessageID: m.MessageID}}, now)
		c.nextPacketID++
		packets = append(packets, frags...)
	}

	for _, p := range packets {
		netmetrics.BytesSent.WithLabelValues("total").Add(float64(len(p)))
	}
	return packets
}

func (c *Connection) recordPacketRefs(packetID uint16, pending []wire.PendingMessage, now time.Time) {
	var refs []messageRef
	for _, m := range pending {
		if m.MessageID != nil {
			refs = append(refs, messageRef{channelID: m.ChannelID, messageID: *m.MessageID})
		}
	}
	if len(refs) == 0 {
		return
	}
	c.sentPackets[packetID] = sentPacketInfo{refs: refs, at: now}
}

// samePayload compares two payload slices by identity (same backing
// array), not content, so two distinct messages that happen to carry
// identical bytes are never confused with one another.
func samePayload(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}

// sentPacketRefTTL bounds how long an unacked outgoing packet's message
// refs are retained; past this, retransmission (for reliable channels)
// has already produced a fresh packet id to track instead, so the stale
// entry is just a leak waiting to happen.
const sentPacketRefTTL = 30 * time.Second

// sweepStalePacketRefs drops packet-id -> message-ref bookkeeping older
// than sentPacketRefTTL, calling OnMessageLost so reliable senders don't
// wait forever for an ack that was already superseded by a retransmit.
func (c *Connection) sweepStalePacketRefs(now time.Time) {
	for packetID, info := range c.sentPackets {
		if now.Sub(info.at) <= sentPacketRefTTL {
			continue
		}
		delete(c.sentPackets, packetID)
		for _, ref := range info.refs {
			if set, ok := c.channels[ref.channelID]; ok {
				set.Sender.OnMessageLost(ref.messageID)
			}
		}
	}
}

// Idle reports whether no packet has been received within timeout of now
// (spec.md §5 "Connection-level keepalive").
func (c *Connection) Idle(now time.Time, timeout time.Duration) bool {
	return now.Sub(c.LastRecv) > timeout
}
