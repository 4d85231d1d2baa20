package transport

import (
	"sync"

	"github.com/tickforge/netsync/pkg/peerid"
)

// Loopback is a zero-copy in-process transport for a client co-located
// with a locally-run host-server (spec.md §3 "Locally-run host-server
// client uses the local-host-of-server variant to enable a zero-copy
// in-process loopback"). Two Loopback ends are created in a pair via
// NewLoopbackPair and hand datagrams directly to each other's queue.
type Loopback struct {
	self peerid.PeerId
	peer *Loopback

	mu    sync.Mutex
	inbox [][]byte
}

// NewLoopbackPair returns two connected Loopback transports: one
// representing the client's view, one the server's.
func NewLoopbackPair() (client, server *Loopback) {
	c := &Loopback{self: peerid.LocalHostServer()}
	s := &Loopback{self: peerid.Netcode(0)}
	c.peer = s
	s.peer = c
	return c, s
}

func (l *Loopback) Recv() ([]byte, peerid.PeerId, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.inbox) == 0 {
		return nil, peerid.PeerId{}, false
	}
	p := l.inbox[0]
	l.inbox = l.inbox[1:]
	return p, l.peer.self, true
}

// Send hands payload directly to the peer's inbox; a Loopback never
// blocks or drops.
func (l *Loopback) Send(payload []byte, to peerid.PeerId) error {
	cp := append([]byte(nil), payload...)
	l.peer.mu.Lock()
	l.peer.inbox = append(l.peer.inbox, cp)
	l.peer.mu.Unlock()
	return nil
}

func (l *Loopback) LocalAddr() string { return l.self.String() }

func (l *Loopback) ConnectedPeers() []peerid.PeerId {
	return []peerid.PeerId{l.peer.self}
}
