// Package pingsync implements the ping/pong exchange, RTT/jitter
// estimation, and client-side tick time synchronization of spec.md §4.4.
package pingsync

import "time"

// PingID identifies one outstanding ping round-trip.
type PingID uint16

// Ping is sent by either peer on a dedicated unreliable channel whose
// priority bypasses the bandwidth quota.
type Ping struct {
	ID PingID
}

// Pong answers a Ping, reporting how long the remote spent processing
// before replying so the RTT estimate excludes that time.
type Pong struct {
	PingID             PingID
	ServerProcessTicks int32
}

const (
	rttAlpha       = 1.0 / 12.0 // EWMA smoothing factor for RTT
	devBeta        = 1.0 / 6.0  // EWMA smoothing factor for mean deviation
)

// Estimator tracks smoothed RTT and jitter using the TCP-style EWMA
// algorithm of spec.md §4.4, with the same outlier clamp.
type Estimator struct {
	srtt        time.Duration
	sdev        time.Duration
	initialized bool
}

// Sample folds one fresh RTT measurement into the estimator.
func (e *Estimator) Sample(rtt time.Duration) {
	if !e.initialized {
		e.srtt = rtt
		e.sdev = rtt / 2
		e.initialized = true
		return
	}
	clamp := e.outlierClamp()
	if rtt > clamp {
		rtt = clamp
	}
	delta := rtt - e.srtt
	if delta < 0 {
		delta = -delta
	}
	e.sdev = e.sdev + time.Duration(devBeta*(float64(delta)-float64(e.sdev)))
	e.srtt = e.srtt + time.Duration(rttAlpha*float64(rtt-e.srtt))
}

func (e *Estimator) outlierClamp() time.Duration {
	byDev := e.srtt + 3*e.sdev
	byFactor := 3 * e.srtt
	byAbsolute := e.srtt + 500*time.Millisecond
	min := byDev
	if byFactor < min {
		min = byFactor
	}
	if byAbsolute < min {
		min = byAbsolute
	}
	return min
}

// RTT returns the current smoothed round-trip time.
func (e *Estimator) RTT() time.Duration { return e.srtt }

// Jitter returns the reported jitter: smoothed-abs-deviation / 2.
func (e *Estimator) Jitter() time.Duration { return e.sdev / 2 }

// Manager drives the ping/pong exchange for one connection: issuing pings
// on PingInterval, matching returning pongs, and folding RTT samples into
// Estimator.
type Manager struct {
	Estimator    Estimator
	PingInterval time.Duration

	nextID    PingID
	inFlight  map[PingID]time.Time
	lastSent  time.Time
}

func NewManager(pingInterval time.Duration) *Manager {
	return &Manager{PingInterval: pingInterval, inFlight: make(map[PingID]time.Time)}
}

// MaybeSendPing returns a new Ping to send if PingInterval has elapsed
// since the last one, else ok=false.
func (m *Manager) MaybeSendPing(now time.Time) (Ping, bool) {
	if !m.lastSent.IsZero() && now.Sub(m.lastSent) < m.PingInterval {
		return Ping{}, false
	}
	id := m.nextID
	m.nextID++
	m.inFlight[id] = now
	m.lastSent = now
	return Ping{ID: id}, true
}

// OnPong folds a returning Pong's round trip into the RTT estimator,
// subtracting the remote's reported processing time.
func (m *Manager) OnPong(p Pong, now time.Time, tickDuration time.Duration) {
	sentAt, ok := m.inFlight[p.PingID]
	if !ok {
		return
	}
	delete(m.inFlight, p.PingID)
	rtt := now.Sub(sentAt)
	processTime := time.Duration(p.ServerProcessTicks) * tickDuration
	rtt -= processTime
	if rtt < 0 {
		rtt = 0
	}
	m.Estimator.Sample(rtt)
}

// AnswerPing builds the Pong for a received Ping, given how long this peer
// held it before replying.
func AnswerPing(p Ping, heldTicks int32) Pong {
	return Pong{PingID: p.ID, ServerProcessTicks: heldTicks}
}
