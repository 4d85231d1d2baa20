package channel

import (
	"time"

	"github.com/tickforge/netsync/pkg/tick"
)

const (
	minRetransmitBackoff = 30 * time.Millisecond
	maxRetransmitBackoff = 300 * time.Millisecond
)

type reliableEntry struct {
	msg              OutgoingMessage
	nextRetransmitAt time.Time
	backoff          time.Duration
}

// ReliableSender is shared by reliable-unordered and reliable-ordered: a
// message is retained until acked, retransmitted with exponential backoff
// starting at max(30ms, 1.5*rtt), capped at 300ms (spec.md §4.2). The two
// modes differ only in how the receiver delivers, so one sender type backs
// both.
type ReliableSender struct {
	settings Settings
	nextID   uint16
	pending  []OutgoingMessage
	inFlight map[uint16]*reliableEntry
	rtt      time.Duration
	accPrio  float32
}

func NewReliableSender(s Settings) *ReliableSender {
	return &ReliableSender{settings: s, inFlight: make(map[uint16]*reliableEntry)}
}

// SetRTT updates the RTT estimate used to seed the initial retransmit
// backoff (driven by pkg/pingsync).
func (s *ReliableSender) SetRTT(rtt time.Duration) { s.rtt = rtt }

func (s *ReliableSender) initialBackoff() time.Duration {
	b := time.Duration(float64(s.rtt) * 1.5)
	if b < minRetransmitBackoff {
		b = minRetransmitBackoff
	}
	if b > maxRetransmitBackoff {
		b = maxRetransmitBackoff
	}
	return b
}

func (s *ReliableSender) BufferSend(payload []byte, priority float32, originTick *tick.Tick) {
	id := s.nextID
	s.nextID++
	var ot *uint16
	if originTick != nil {
		v := uint16(*originTick)
		ot = &v
	}
	s.pending = append(s.pending, OutgoingMessage{Payload: payload, Priority: priority, MessageID: &id, OriginTick: ot})
	s.accPrio += s.settings.accrual()
}

func (s *ReliableSender) CollectReady(now time.Time, nowTick tick.Tick) []OutgoingMessage {
	var out []OutgoingMessage
	out = append(out, s.pending...)
	for _, m := range s.pending {
		s.inFlight[*m.MessageID] = &reliableEntry{msg: m, nextRetransmitAt: now.Add(s.initialBackoff()), backoff: s.initialBackoff()}
	}
	s.pending = nil
	s.accPrio = 0

	for _, e := range s.inFlight {
		if !now.Before(e.nextRetransmitAt) {
			out = append(out, e.msg)
			e.backoff *= 2
			if e.backoff > maxRetransmitBackoff {
				e.backoff = maxRetransmitBackoff
			}
			e.nextRetransmitAt = now.Add(e.backoff)
		}
	}
	return out
}

func (s *ReliableSender) OnMessageAck(id uint16) {
	delete(s.inFlight, id)
}

func (s *ReliableSender) OnMessageLost(id uint16) {
	if e, ok := s.inFlight[id]; ok {
		e.nextRetransmitAt = time.Time{} // force immediate retransmit next collect
	}
}

func (s *ReliableSender) AccumulatedPriority() float32 { return s.accPrio }

// InFlightCount reports unacked message count, for diagnostics/backpressure.
func (s *ReliableSender) InFlightCount() int { return len(s.inFlight) }

// ReliableUnorderedReceiver dedups by id and emits immediately in arrival
// order (no reordering buffer).
type ReliableUnorderedReceiver struct {
	seen   map[uint16]struct{}
	queue  []deliverable
	ackIDs []uint16
}

func NewReliableUnorderedReceiver() *ReliableUnorderedReceiver {
	return &ReliableUnorderedReceiver{seen: make(map[uint16]struct{})}
}

func (r *ReliableUnorderedReceiver) BufferRecv(payload []byte, messageID *uint16, originTick *tick.Tick, remoteTick tick.Tick) {
	if messageID == nil {
		return
	}
	if _, dup := r.seen[*messageID]; dup {
		r.ackIDs = append(r.ackIDs, *messageID) // re-ack in case the first ack was lost
		return
	}
	r.seen[*messageID] = struct{}{}
	r.queue = append(r.queue, deliverable{payload: payload, originTick: originTick})
	r.ackIDs = append(r.ackIDs, *messageID)
}

func (r *ReliableUnorderedReceiver) ReadNext() ([]byte, *tick.Tick, bool) {
	if len(r.queue) == 0 {
		return nil, nil, false
	}
	d := r.queue[0]
	r.queue = r.queue[1:]
	return d.payload, d.originTick, true
}

func (r *ReliableUnorderedReceiver) AckIDs() []uint16 {
	out := r.ackIDs
	r.ackIDs = nil
	return out
}
