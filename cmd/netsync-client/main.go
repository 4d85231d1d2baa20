// Command netsync-client dials a netsyncd host over UDP, sends a chat
// greeting, and logs heartbeat/RTT activity as it arrives. Grounded on
// the teacher's core/main.go signal-handling and graceful-shutdown
// structure, adapted to a client role.
package main

import (
	"encoding/binary"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tickforge/netsync/pkg/channel"
	"github.com/tickforge/netsync/pkg/logger"
	"github.com/tickforge/netsync/pkg/netconfig"
	"github.com/tickforge/netsync/pkg/peerid"
	"github.com/tickforge/netsync/pkg/session"
	"github.com/tickforge/netsync/pkg/tick"
	"github.com/tickforge/netsync/pkg/transport"
)

const version = "0.1.0"

const (
	heartbeatChannel uint16 = 1
	chatChannel      uint16 = 2
)

func buildRegistry() *channel.Registry {
	reg := channel.NewRegistry()
	reg.Register(heartbeatChannel, channel.Settings{Mode: channel.ModeUnreliableSequenced, Priority: 1})
	reg.Register(chatChannel, channel.Settings{Mode: channel.ModeReliableOrdered, Priority: 2})
	return reg
}

func main() {
	serverAddr := flag.String("server", "127.0.0.1:7777", "address of the netsyncd host to connect to")
	name := flag.String("name", "player", "chat greeting to send on connect")
	flag.Parse()

	logger.Banner("netsync-client", version)
	log := logger.New(logrus.InfoLevel)

	cfg := netconfig.Default()

	tp, err := transport.ListenUDP("0.0.0.0:0", func(a *net.UDPAddr) peerid.PeerId {
		return peerid.Netcode(peerid.NewNetcodeID())
	}, log)
	if err != nil {
		logger.Fatalf(log, "listen: %v", err)
	}
	defer tp.Close()

	serverPeer, err := tp.ConnectTo(*serverAddr)
	if err != nil {
		logger.Fatalf(log, "connect to %q: %v", *serverAddr, err)
	}

	host := session.NewHost(tp, buildRegistry(), cfg, log, nil)
	if _, ok := host.Connect(serverPeer, time.Now()); !ok {
		logger.Fatalf(log, "could not open connection to %q", *serverAddr)
	}

	logger.Section("connecting to " + *serverAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	stop := make(chan struct{})
	greeted := false
	go func() {
		ticker := time.NewTicker(cfg.TickDuration)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				host.Step(now, func(t tick.Tick) {
					conn, ok := host.Connection(serverPeer)
					if !ok {
						return
					}
					if !greeted {
						_ = conn.Enqueue(chatChannel, []byte("hello from "+*name), 1, nil)
						greeted = true
					}
					for {
						payload, _, ok := conn.ReadNext(heartbeatChannel)
						if !ok {
							break
						}
						if hb, ok := decodeHeartbeat(payload); ok {
							log.WithField("server_tick", hb).Debug("heartbeat")
						}
					}
				})
			}
		}
	}()

	go drainHeartbeats(host, serverPeer, log)
	go logEvents(host, log)

	<-sigCh
	log.Warn("shutdown signal received")
	close(stop)
	time.Sleep(100 * time.Millisecond)
	log.Info("netsync-client stopped")
}

func drainHeartbeats(host *session.Host, serverPeer peerid.PeerId, log *logrus.Entry) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		conn, ok := host.Connection(serverPeer)
		if !ok {
			continue
		}
		log.WithFields(logrus.Fields{
			"rtt":    conn.RTT(),
			"jitter": conn.Jitter(),
		}).Info("connection health")
	}
}

func logEvents(host *session.Host, log *logrus.Entry) {
	for ev := range host.Events {
		switch ev.Kind {
		case session.EventConnected:
			log.WithField("peer", ev.Peer.String()).Info("connected")
		case session.EventDisconnected:
			log.WithFields(logrus.Fields{"peer": ev.Peer.String(), "reason": ev.Reason}).Warn("disconnected")
		case session.EventRollbackOccurred:
			log.WithFields(logrus.Fields{"peer": ev.Peer.String(), "from": ev.RollbackFrom, "to": ev.RollbackTo}).Debug("rollback")
		case session.EventChecksumMismatch:
			log.WithFields(logrus.Fields{"peer": ev.Peer.String(), "tick": ev.MismatchTick}).Warn("checksum mismatch")
		}
	}
}

func decodeHeartbeat(payload []byte) (tick.Tick, bool) {
	if len(payload) < 2 {
		return 0, false
	}
	return tick.Tick(binary.LittleEndian.Uint16(payload)), true
}
