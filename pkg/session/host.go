package session

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tickforge/netsync/pkg/channel"
	"github.com/tickforge/netsync/pkg/netconfig"
	"github.com/tickforge/netsync/pkg/netmetrics"
	"github.com/tickforge/netsync/pkg/peerid"
	"github.com/tickforge/netsync/pkg/tick"
	"github.com/tickforge/netsync/pkg/transport"
)

// keepaliveTimeout is spec.md §5's default connection-level keepalive.
const keepaliveTimeout = 10 * time.Second

// SimulateFn runs the fixed-update phase for one tick, after every
// connection's inbound traffic for that tick has been applied and before
// any of it is sent back out. It is passed the tick being simulated.
type SimulateFn func(t tick.Tick)

// Accept decides whether a brand-new remote peer, identified by the PeerId
// the transport reported, should become a connection. Returning false drops the
// first packet from that address silently (spec.md has no explicit
// rejection wire message).
type Accept func(remote peerid.PeerId) (accept bool)

// Host drives the three-phase frame schedule of spec.md §5 across every
// live Connection: pre-update receive, fixed-update simulation, post-update
// send. It is grounded on the teacher's Server (source/server/server.go),
// whose updateLoop/sessionCleanupLoop tickers become this single
// cooperative Step call, and whose Players map[int]*Player becomes
// connections keyed by PeerId.
type Host struct {
	transport transport.Transport
	channels  *channel.Registry
	cfg       netconfig.Config
	log       *logrus.Entry
	accept    Accept

	connections map[peerid.PeerId]*Connection

	currentTick tick.Tick
	accumulator time.Duration
	lastStep    time.Time

	Events chan Event
}

// NewHost wires a transport and channel registry into a running host. A
// nil accept always admits new peers (suitable for a client that only
// ever talks to one server).
func NewHost(tp transport.Transport, channels *channel.Registry, cfg netconfig.Config, log *logrus.Entry, accept Accept) *Host {
	if accept == nil {
		accept = func(peerid.PeerId) bool { return true }
	}
	return &Host{
		transport:   tp,
		channels:    channels,
		cfg:         cfg,
		log:         log,
		accept:      accept,
		connections: make(map[peerid.PeerId]*Connection),
		Events:      make(chan Event, 64),
	}
}

// Connection returns the live connection for peer, if any.
func (h *Host) Connection(peer peerid.PeerId) (*Connection, bool) {
	c, ok := h.connections[peer]
	return c, ok
}

// Connect eagerly creates a connection to peer without waiting for an
// inbound packet to trigger it, for a client that must speak first (the
// server has no address to receive from until the client's own transport
// hands it one, e.g. via transport.UDP.ConnectTo).
func (h *Host) Connect(peer peerid.PeerId, now time.Time) (*Connection, bool) {
	return h.getOrCreateConnection(peer, now)
}

// Connections returns every currently live connection's peer id.
func (h *Host) Connections() []peerid.PeerId {
	out := make([]peerid.PeerId, 0, len(h.connections))
	for p := range h.connections {
		out = append(out, p)
	}
	return out
}

func (h *Host) emit(ev Event) {
	select {
	case h.Events <- ev:
	default:
		h.log.Warn("event channel full, dropping event")
	}
}

func (h *Host) getOrCreateConnection(peer peerid.PeerId, now time.Time) (*Connection, bool) {
	if c, ok := h.connections[peer]; ok {
		return c, true
	}
	if !h.accept(peer) {
		return nil, false
	}
	c, err := newConnection(peer, h.channels, h.cfg, h.log, now)
	if err != nil {
		h.log.WithError(err).Error("failed to create connection")
		return nil, false
	}
	h.connections[peer] = c
	netmetrics.ConnectedPeers.Inc()
	h.emit(Event{Kind: EventConnected, Peer: peer})
	return c, true
}

func (h *Host) disconnect(peer peerid.PeerId, reason DisconnectReason) {
	if _, ok := h.connections[peer]; !ok {
		return
	}
	delete(h.connections, peer)
	netmetrics.ConnectedPeers.Dec()
	h.emit(Event{Kind: EventDisconnected, Peer: peer, Reason: reason})
}

// RaiseRollback reports a rollback the embedding simulation performed, so
// it surfaces on the event channel (spec.md §6 RollbackOccurred).
func (h *Host) RaiseRollback(peer peerid.PeerId, from, to tick.Tick) {
	h.emit(Event{Kind: EventRollbackOccurred, Peer: peer, RollbackFrom: from, RollbackTo: to})
}

// RaiseChecksumMismatch reports a determinism checksum disagreement
// (spec.md §6 ChecksumMismatch / §4.9).
func (h *Host) RaiseChecksumMismatch(peer peerid.PeerId, at tick.Tick) {
	netmetrics.ChecksumMismatches.Inc()
	h.emit(Event{Kind: EventChecksumMismatch, Peer: peer, MismatchTick: at})
}

// preUpdateReceive drains the transport, routes datagrams to the owning
// connection (minting one on first contact if accepted), and feeds the
// ping/pong control channel.
func (h *Host) preUpdateReceive(now time.Time) {
	for {
		data, peer, ok := h.transport.Recv()
		if !ok {
			break
		}
		conn, ok := h.getOrCreateConnection(peer, now)
		if !ok {
			continue
		}
		conn.ingestPacket(data, now)
	}
	for _, conn := range h.connections {
		conn.handlePingChannel(now, h.currentTick)
	}
}

// postUpdateSend flushes every connection's ready channel traffic to the
// transport and sweeps stale per-peer bookkeeping.
func (h *Host) postUpdateSend(now time.Time) {
	for peer, conn := range h.connections {
		conn.sweepStalePacketRefs(now)
		for _, packet := range conn.buildOutgoingPackets(now, h.currentTick) {
			if err := h.transport.Send(packet, peer); err != nil {
				h.log.WithError(err).WithField("peer", peer.String()).Debug("send failed, packet dropped")
			}
		}
	}
}

// sweepIdleConnections disconnects any connection silent past the
// configured keepalive timeout (spec.md §5 "Cancellation & timeouts").
func (h *Host) sweepIdleConnections(now time.Time) {
	for peer, conn := range h.connections {
		if conn.Idle(now, keepaliveTimeout) {
			h.disconnect(peer, DisconnectReasonKeepaliveTimeout)
		}
	}
}

// Step runs exactly one frame: pre-update receive, the caller-supplied
// fixed-update simulation for every tick the accumulator has banked since
// the last Step, then post-update send. It returns the number of
// fixed-update ticks actually simulated this frame (spec.md §5 "may
// iterate multiple times to catch up or zero times while waiting").
func (h *Host) Step(now time.Time, simulate SimulateFn) int {
	if h.lastStep.IsZero() {
		h.lastStep = now
	}
	h.accumulator += now.Sub(h.lastStep)
	h.lastStep = now

	h.preUpdateReceive(now)

	ran := 0
	for h.accumulator >= h.cfg.TickDuration {
		h.accumulator -= h.cfg.TickDuration
		simulate(h.currentTick)
		h.currentTick = h.currentTick.Add(1)
		ran++
	}

	h.postUpdateSend(now)
	h.sweepIdleConnections(now)
	return ran
}

// CurrentTick reports the tick the next fixed-update invocation will run.
func (h *Host) CurrentTick() tick.Tick { return h.currentTick }
