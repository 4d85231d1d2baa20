package channel

import (
	"time"

	"github.com/tickforge/netsync/pkg/tick"
)

// Sender is the common interface every delivery mode implements on the
// send side (spec.md §4.2).
type Sender interface {
	// BufferSend enqueues a payload for the next collection pass.
	BufferSend(payload []byte, priority float32, originTick *tick.Tick)
	// CollectReady returns messages ready to attempt sending this tick,
	// accounting for accumulated priority and (for reliable modes) pending
	// retransmits.
	CollectReady(now time.Time, nowTick tick.Tick) []OutgoingMessage
	// OnMessageAck notifies the sender that a previously-sent message with
	// this id has been acknowledged by the receiver.
	OnMessageAck(id uint16)
	// OnMessageLost notifies the sender that a message is presumed lost
	// (used by reliable modes to schedule retransmission).
	OnMessageLost(id uint16)
	// AccumulatedPriority is the channel's current priority, raised while
	// messages sit unsent and reset on send, feeding the priority manager.
	AccumulatedPriority() float32
}

// Receiver is the common interface every delivery mode implements on the
// receive side.
type Receiver interface {
	// BufferRecv ingests one reassembled message payload plus its
	// originating message id (if the wire presence flag was set) and the
	// tick it was received at (not necessarily the sender's OriginTick).
	BufferRecv(payload []byte, messageID *uint16, originTick *tick.Tick, remoteTick tick.Tick)
	// ReadNext pops the next deliverable message, if any, per the mode's
	// ordering contract.
	ReadNext() (payload []byte, originTick *tick.Tick, ok bool)
	// AckIDs returns message ids that should be acked back to the sender
	// since the last call (used by with-ack and reliable modes).
	AckIDs() []uint16
}
