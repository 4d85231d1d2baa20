package channel

import (
	"time"

	"github.com/tickforge/netsync/pkg/tick"
)

// UnreliableUnorderedSender assigns no message id and forgets a message
// immediately after it is handed to the priority manager for this tick.
type UnreliableUnorderedSender struct {
	settings Settings
	pending  []OutgoingMessage
	accPrio  float32
}

func NewUnreliableUnorderedSender(s Settings) *UnreliableUnorderedSender {
	return &UnreliableUnorderedSender{settings: s}
}

func (s *UnreliableUnorderedSender) BufferSend(payload []byte, priority float32, originTick *tick.Tick) {
	var ot *uint16
	if originTick != nil {
		v := uint16(*originTick)
		ot = &v
	}
	s.pending = append(s.pending, OutgoingMessage{Payload: payload, Priority: priority, OriginTick: ot})
	s.accPrio += s.settings.accrual()
}

func (s *UnreliableUnorderedSender) CollectReady(now time.Time, nowTick tick.Tick) []OutgoingMessage {
	out := s.pending
	s.pending = nil
	s.accPrio = 0
	return out
}

func (s *UnreliableUnorderedSender) OnMessageAck(id uint16)  {}
func (s *UnreliableUnorderedSender) OnMessageLost(id uint16) {}
func (s *UnreliableUnorderedSender) AccumulatedPriority() float32 { return s.accPrio }

// UnreliableUnorderedReceiver emits messages in arrival order, with no
// dedup or reordering.
type UnreliableUnorderedReceiver struct {
	queue []deliverable
}

type deliverable struct {
	payload    []byte
	originTick *tick.Tick
}

func NewUnreliableUnorderedReceiver() *UnreliableUnorderedReceiver {
	return &UnreliableUnorderedReceiver{}
}

func (r *UnreliableUnorderedReceiver) BufferRecv(payload []byte, messageID *uint16, originTick *tick.Tick, remoteTick tick.Tick) {
	r.queue = append(r.queue, deliverable{payload: payload, originTick: originTick})
}

func (r *UnreliableUnorderedReceiver) ReadNext() ([]byte, *tick.Tick, bool) {
	if len(r.queue) == 0 {
		return nil, nil, false
	}
	d := r.queue[0]
	r.queue = r.queue[1:]
	return d.payload, d.originTick, true
}

func (r *UnreliableUnorderedReceiver) AckIDs() []uint16 { return nil }

// UnreliableSequencedSender assigns a MessageId so the receiver can drop
// stale arrivals.
type UnreliableSequencedSender struct {
	settings Settings
	nextID   uint16
	pending  []OutgoingMessage
	accPrio  float32
}

func NewUnreliableSequencedSender(s Settings) *UnreliableSequencedSender {
	return &UnreliableSequencedSender{settings: s}
}

func (s *UnreliableSequencedSender) BufferSend(payload []byte, priority float32, originTick *tick.Tick) {
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

func (s *UnreliableSequencedSender) CollectReady(now time.Time, nowTick tick.Tick) []OutgoingMessage {
	out := s.pending
	s.pending = nil
	s.accPrio = 0
	return out
}

func (s *UnreliableSequencedSender) OnMessageAck(id uint16)  {}
func (s *UnreliableSequencedSender) OnMessageLost(id uint16) {}
func (s *UnreliableSequencedSender) AccumulatedPriority() float32 { return s.accPrio }

// UnreliableSequencedReceiver drops any message whose id is not strictly
// after the last emitted id, under wrap-aware comparison.
type UnreliableSequencedReceiver struct {
	haveLast bool
	lastID   tick.Tick // reused as a generic wrap-aware u16 comparator
	queue    []deliverable
}

func NewUnreliableSequencedReceiver() *UnreliableSequencedReceiver {
	return &UnreliableSequencedReceiver{}
}

func (r *UnreliableSequencedReceiver) BufferRecv(payload []byte, messageID *uint16, originTick *tick.Tick, remoteTick tick.Tick) {
	if messageID == nil {
		return
	}
	id := tick.Tick(*messageID)
	if r.haveLast && !id.After(r.lastID) {
		return // stale or duplicate, drop
	}
	r.haveLast = true
	r.lastID = id
	r.queue = append(r.queue, deliverable{payload: payload, originTick: originTick})
}

func (r *UnreliableSequencedReceiver) ReadNext() ([]byte, *tick.Tick, bool) {
	if len(r.queue) == 0 {
		return nil, nil, false
	}
	d := r.queue[0]
	r.queue = r.queue[1:]
	return d.payload, d.originTick, true
}

func (r *UnreliableSequencedReceiver) AckIDs() []uint16 { return nil }
