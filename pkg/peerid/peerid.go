// Package peerid implements the stable PeerId identifier for remote
// endpoints, closed to three variants: a locally-run host-server's
// zero-copy loopback client, a netcode-style numeric id, and a Steam u64.
package peerid

import "github.com/rs/xid"

// Kind tags which PeerId variant is populated.
type Kind uint8

const (
	// KindLocalHostServer identifies the client co-located with a
	// locally-run host-server, using an in-process loopback transport.
	KindLocalHostServer Kind = iota
	// KindNetcode identifies a peer by a 64-bit netcode-style client id.
	KindNetcode
	// KindSteam identifies a peer by Steam's 64-bit user id.
	KindSteam
)

// PeerId is a stable identifier for a remote endpoint.
type PeerId struct {
	kind    Kind
	numeric uint64
}

// LocalHostServer returns the PeerId variant used by a client co-located
// with a server it also hosts.
func LocalHostServer() PeerId {
	return PeerId{kind: KindLocalHostServer}
}

// Netcode wraps a netcode-numeric client id.
func Netcode(id uint64) PeerId {
	return PeerId{kind: KindNetcode, numeric: id}
}

// Steam wraps a Steam u64 id.
func Steam(id uint64) PeerId {
	return PeerId{kind: KindSteam, numeric: id}
}

// Kind reports which variant this PeerId holds.
func (p PeerId) Kind() Kind { return p.kind }

// Numeric returns the underlying numeric id for Netcode/Steam variants; it
// is zero and meaningless for KindLocalHostServer.
func (p PeerId) Numeric() uint64 { return p.numeric }

func (p PeerId) String() string {
	switch p.kind {
	case KindLocalHostServer:
		return "local-host-server"
	case KindSteam:
		return "steam:" + formatUint(p.numeric)
	default:
		return "netcode:" + formatUint(p.numeric)
	}
}

func formatUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// NewNetcodeID mints a fresh, process-unique netcode-numeric id using xid's
// globally-unique, roughly-sortable identifier generator, folded to 64 bits
// by keeping its 4-byte timestamp, the low byte of its process id and its
// 3-byte counter (the machine id is dropped). Used when a server accepts a new connection and needs a stable
// correlation id before the transport-level handshake assigns one.
func NewNetcodeID() uint64 {
	id := xid.New()
	b := id.Bytes()
	var v uint64
	for _, i := range [...]int{0, 1, 2, 3, 8, 9, 10, 11} {
		v = v<<8 | uint64(b[i])
	}
	return v
}
