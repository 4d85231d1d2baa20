package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tickforge/netsync/pkg/peerid"
)

// UDP is a reference Transport over net.UDPConn, grounded on the
// teacher's net.ListenUDP/ReadFromUDP loop (source/server/server.go). It
// presents the synchronous poll_recv/push_send interface spec.md §5
// requires: reads are drained into an internal queue by a background
// goroutine, and Recv pops from that queue non-blocking.
type UDP struct {
	conn *net.UDPConn
	log  *logrus.Entry

	mu       sync.Mutex
	peers    map[string]peerid.PeerId
	addrs    map[peerid.PeerId]*net.UDPAddr
	inbox    [][2]any // {[]byte, peerid.PeerId}
	resolver func(addr *net.UDPAddr) peerid.PeerId
}

// ListenUDP binds a UDP socket and starts draining it into an internal
// receive queue. resolver maps a newly-seen remote address to a PeerId
// (e.g. by minting a fresh netcode id via peerid.NewNetcodeID); existing
// peers are remembered by address.
func ListenUDP(addr string, resolver func(*net.UDPAddr) peerid.PeerId, log *logrus.Entry) (*UDP, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}
	u := &UDP{
		conn:     conn,
		log:      log,
		peers:    make(map[string]peerid.PeerId),
		addrs:    make(map[peerid.PeerId]*net.UDPAddr),
		resolver: resolver,
	}
	go u.readLoop()
	return u, nil
}

func (u *UDP) readLoop() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			u.log.WithError(err).Warn("udp read error, stopping read loop")
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		u.mu.Lock()
		pid, known := u.peers[addr.String()]
		if !known {
			pid = u.resolver(addr)
			u.peers[addr.String()] = pid
			u.addrs[pid] = addr
		}
		u.inbox = append(u.inbox, [2]any{data, pid})
		u.mu.Unlock()
	}
}

func (u *UDP) Recv() ([]byte, peerid.PeerId, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.inbox) == 0 {
		return nil, peerid.PeerId{}, false
	}
	item := u.inbox[0]
	u.inbox = u.inbox[1:]
	return item[0].([]byte), item[1].(peerid.PeerId), true
}

func (u *UDP) Send(payload []byte, to peerid.PeerId) error {
	u.mu.Lock()
	addr, ok := u.addrs[to]
	u.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: unknown peer %s", to)
	}
	_, err := u.conn.WriteToUDP(payload, addr)
	if err != nil {
		return fmt.Errorf("transport: write to %s: %w", to, err)
	}
	return nil
}

// ConnectTo pre-registers a remote address as a peer, letting a client
// Send to a server it hasn't received anything from yet (the readLoop-
// driven peer discovery above only covers addresses a server has already
// heard from). Returns the PeerId the resolver assigned.
func (u *UDP) ConnectTo(addr string) (peerid.PeerId, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return peerid.PeerId{}, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if pid, ok := u.peers[udpAddr.String()]; ok {
		return pid, nil
	}
	pid := u.resolver(udpAddr)
	u.peers[udpAddr.String()] = pid
	u.addrs[pid] = udpAddr
	return pid, nil
}

func (u *UDP) LocalAddr() string { return u.conn.LocalAddr().String() }

func (u *UDP) ConnectedPeers() []peerid.PeerId {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]peerid.PeerId, 0, len(u.addrs))
	for p := range u.addrs {
		out = append(out, p)
	}
	return out
}

func (u *UDP) Close() error {
	return u.conn.Close()
}
