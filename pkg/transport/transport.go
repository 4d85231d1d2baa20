// Package transport implements the Transport collaborator interface of
// spec.md §6 plus two reference implementations: an in-process Loopback
// (for a locally-run host-server client) and a UDP transport.
package transport

import "github.com/tickforge/netsync/pkg/peerid"

// Transport is consumed, not implemented, by the core (spec.md §6): a
// non-blocking datagram in/out interface.
type Transport interface {
	// Recv returns the next received datagram, if any, non-blocking.
	Recv() (payload []byte, from peerid.PeerId, ok bool)
	// Send attempts to emit payload to peer. WouldBlock-style backpressure
	// is signaled by returning ErrWouldBlock. session.Host logs a failed
	// Send and drops that packet; it does not resend it on a later tick, so
	// only reliable channels recover its messages, through their own
	// retransmission.
	Send(payload []byte, to peerid.PeerId) error
	LocalAddr() string
	ConnectedPeers() []peerid.PeerId
}

// ErrWouldBlock is returned by Send when the underlying transport's
// outbound buffer is full this tick.
type ErrWouldBlock struct{}

func (ErrWouldBlock) Error() string { return "transport: would block" }
