package channel

import (
	"time"

	"github.com/tickforge/netsync/pkg/tick"
)

// UnreliableWithAckSender assigns an id and tracks in-flight messages so
// an ack arriving via the packet layer can trigger OnMessageAck; there is
// no retransmit. Used to feed delta-compression baseline acknowledgements
// (spec.md §4.2/§4.8).
type UnreliableWithAckSender struct {
	settings Settings
	nextID   uint16
	pending  []OutgoingMessage
	inFlight map[uint16]struct{}
	accPrio  float32
}

func NewUnreliableWithAckSender(s Settings) *UnreliableWithAckSender {
	return &UnreliableWithAckSender{settings: s, inFlight: make(map[uint16]struct{})}
}

func (s *UnreliableWithAckSender) BufferSend(payload []byte, priority float32, originTick *tick.Tick) {
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

func (s *UnreliableWithAckSender) CollectReady(now time.Time, nowTick tick.Tick) []OutgoingMessage {
	out := s.pending
	for _, m := range out {
		s.inFlight[*m.MessageID] = struct{}{}
	}
	s.pending = nil
	s.accPrio = 0
	return out
}

func (s *UnreliableWithAckSender) OnMessageAck(id uint16) {
	delete(s.inFlight, id)
}

func (s *UnreliableWithAckSender) OnMessageLost(id uint16) {
	delete(s.inFlight, id) // unreliable: no retransmit, just stop tracking
}

func (s *UnreliableWithAckSender) AccumulatedPriority() float32 { return s.accPrio }

// InFlightCount reports how many sent messages have not yet been acked or
// given up on, for diagnostics.
func (s *UnreliableWithAckSender) InFlightCount() int { return len(s.inFlight) }

// UnreliableWithAckReceiver delivers in arrival order like
// UnreliableUnordered, but additionally records every delivered id so
// AckIDs can report them back to the sender.
type UnreliableWithAckReceiver struct {
	queue   []deliverable
	ackIDs  []uint16
}

func NewUnreliableWithAckReceiver() *UnreliableWithAckReceiver {
	return &UnreliableWithAckReceiver{}
}

func (r *UnreliableWithAckReceiver) BufferRecv(payload []byte, messageID *uint16, originTick *tick.Tick, remoteTick tick.Tick) {
	r.queue = append(r.queue, deliverable{payload: payload, originTick: originTick})
	if messageID != nil {
		r.ackIDs = append(r.ackIDs, *messageID)
	}
}

func (r *UnreliableWithAckReceiver) ReadNext() ([]byte, *tick.Tick, bool) {
	if len(r.queue) == 0 {
		return nil, nil, false
	}
	d := r.queue[0]
	r.queue = r.queue[1:]
	return d.payload, d.originTick, true
}

func (r *UnreliableWithAckReceiver) AckIDs() []uint16 {
	out := r.ackIDs
	r.ackIDs = nil
	return out
}
