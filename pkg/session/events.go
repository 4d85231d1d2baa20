package session

import (
	"github.com/tickforge/netsync/pkg/peerid"
	"github.com/tickforge/netsync/pkg/tick"
)

// EventKind is the closed set of out-of-band events the simulation can
// subscribe to (spec.md §6 "Observable events").
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventRollbackOccurred
	EventChecksumMismatch
)

// DisconnectReason explains why a connection was torn down.
type DisconnectReason int

const (
	DisconnectReasonKeepaliveTimeout DisconnectReason = iota
	DisconnectReasonTransportLost
	DisconnectReasonLocal
)

// Event is the sum type delivered on Host's event channel. Only the
// field(s) matching Kind are meaningful.
type Event struct {
	Kind EventKind
	Peer peerid.PeerId

	// EventDisconnected
	Reason DisconnectReason

	// EventRollbackOccurred
	RollbackFrom tick.Tick
	RollbackTo   tick.Tick

	// EventChecksumMismatch
	MismatchTick tick.Tick
}
