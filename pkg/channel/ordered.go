package channel

import "github.com/tickforge/netsync/pkg/tick"

// ReliableOrderedReceiver retransmit-dedups like ReliableUnordered but
// buffers out-of-order arrivals and releases them contiguously by message
// id, giving FIFO delivery per spec.md §8 invariant 1 and §5's "spawn
// precedes insert/mutate" ordering guarantee.
type ReliableOrderedReceiver struct {
	expectNext uint16
	buffered   map[uint16]deliverable
	ready      []deliverable
	ackIDs     []uint16
}

func NewReliableOrderedReceiver() *ReliableOrderedReceiver {
	return &ReliableOrderedReceiver{buffered: make(map[uint16]deliverable)}
}

func (r *ReliableOrderedReceiver) BufferRecv(payload []byte, messageID *uint16, originTick *tick.Tick, remoteTick tick.Tick) {
	if messageID == nil {
		return
	}
	id := *messageID
	r.ackIDs = append(r.ackIDs, id)
	if _, dup := r.buffered[id]; dup {
		return
	}
	expectedTick := tick.Tick(r.expectNext)
	gotTick := tick.Tick(id)
	if gotTick.Before(expectedTick) {
		return // already delivered and past, stale duplicate
	}
	r.buffered[id] = deliverable{payload: payload, originTick: originTick}
	r.drain()
}

func (r *ReliableOrderedReceiver) drain() {
	for {
		d, ok := r.buffered[r.expectNext]
		if !ok {
			return
		}
		delete(r.buffered, r.expectNext)
		r.ready = append(r.ready, d)
		r.expectNext++
	}
}

func (r *ReliableOrderedReceiver) ReadNext() ([]byte, *tick.Tick, bool) {
	if len(r.ready) == 0 {
		return nil, nil, false
	}
	d := r.ready[0]
	r.ready = r.ready[1:]
	return d.payload, d.originTick, true
}

func (r *ReliableOrderedReceiver) AckIDs() []uint16 {
	out := r.ackIDs
	r.ackIDs = nil
	return out
}
