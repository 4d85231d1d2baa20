// Command netsyncd runs a standalone netsync host over UDP: it accepts
// client connections, broadcasts a tick heartbeat, and logs connect/
// disconnect/rollback/checksum activity. Grounded on the teacher's
// core/main.go signal-handling and graceful-shutdown structure.
package main

import (
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

// heartbeatChannel carries the server's periodic tick broadcast; chatChannel
// carries free-form text either side may send.
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
	addr := flag.String("addr", "0.0.0.0:7777", "UDP address to listen on")
	configPath := flag.String("config", "", "optional TOML config overriding defaults")
	flag.Parse()

	logger.Banner("netsyncd", version)
	log := logger.New(logrus.InfoLevel)

	cfg := netconfig.Default()
	if *configPath != "" {
		loaded, err := netconfig.Load(*configPath)
		if err != nil {
			logger.Fatalf(log, "load config %q: %v", *configPath, err)
		}
		cfg = loaded
	}

	tp, err := transport.ListenUDP(*addr, func(a *net.UDPAddr) peerid.PeerId {
		return peerid.Netcode(peerid.NewNetcodeID())
	}, log)
	if err != nil {
		logger.Fatalf(log, "listen %q: %v", *addr, err)
	}
	defer tp.Close()

	host := session.NewHost(tp, buildRegistry(), cfg, log, nil)

	logger.Section("netsyncd listening on " + *addr)
	log.WithFields(logrus.Fields{
		"tick_duration": cfg.TickDuration,
		"ping_interval": cfg.PingInterval,
	}).Info("host configured")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	stop := make(chan struct{})
	go runLoop(host, cfg.TickDuration, log, stop)
	go logEvents(host, log)

	<-sigCh
	log.Warn("shutdown signal received")
	close(stop)
	time.Sleep(100 * time.Millisecond)
	log.Info("netsyncd stopped")
}

func runLoop(host *session.Host, tickDuration time.Duration, log *logrus.Entry, stop <-chan struct{}) {
	ticker := time.NewTicker(tickDuration)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			host.Step(now, func(t tick.Tick) {
				drainChat(host, log)
				broadcastHeartbeat(host, t)
			})
		}
	}
}

// drainChat logs every chat message waiting on any connection.
func drainChat(host *session.Host, log *logrus.Entry) {
	for _, peer := range host.Connections() {
		conn, ok := host.Connection(peer)
		if !ok {
			continue
		}
		for {
			payload, _, ok := conn.ReadNext(chatChannel)
			if !ok {
				break
			}
			log.WithFields(logrus.Fields{"peer": peer.String(), "message": string(payload)}).Info("chat")
		}
	}
}

// broadcastHeartbeat enqueues the just-simulated tick number on every
// connected peer's heartbeat channel.
func broadcastHeartbeat(host *session.Host, t tick.Tick) {
	payload := []byte{byte(t), byte(t >> 8)}
	for _, peer := range host.Connections() {
		conn, ok := host.Connection(peer)
		if !ok {
			continue
		}
		_ = conn.Enqueue(heartbeatChannel, payload, 1, nil)
	}
}

func logEvents(host *session.Host, log *logrus.Entry) {
	for ev := range host.Events {
		switch ev.Kind {
		case session.EventConnected:
			log.WithField("peer", ev.Peer.String()).Info("peer connected")
		case session.EventDisconnected:
			log.WithFields(logrus.Fields{"peer": ev.Peer.String(), "reason": ev.Reason}).Info("peer disconnected")
		case session.EventRollbackOccurred:
			log.WithFields(logrus.Fields{"peer": ev.Peer.String(), "from": ev.RollbackFrom, "to": ev.RollbackTo}).Debug("rollback")
		case session.EventChecksumMismatch:
			log.WithFields(logrus.Fields{"peer": ev.Peer.String(), "tick": ev.MismatchTick}).Warn("checksum mismatch")
		}
	}
}
