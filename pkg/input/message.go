package input

import "github.com/tickforge/netsync/pkg/tick"

// TargetInputs is one target entity's redundant snapshot sequence within
// an InputMessage, ending at the message's EndTick.
type TargetInputs struct {
	Target   uint64 // entity id, opaque to this package
	Sequence [][]byte
}

// Message is the wire-level input payload: an end tick plus, per target
// entity, the last N encoded snapshots ending at that tick (spec.md §3).
// Redundancy N should be chosen so consecutive messages overlap by at
// least packet_redundancy messages' worth of ticks.
type Message struct {
	EndTick tick.Tick
	Inputs  []TargetInputs
}

// Redundancy computes N per spec.md §3: ceil(send_interval/tick_duration)
// * packet_redundancy, minimum 2x.
func Redundancy(sendInterval, tickDuration int64, packetRedundancy int) int {
	perInterval := sendInterval / tickDuration
	if sendInterval%tickDuration != 0 {
		perInterval++
	}
	n := int(perInterval) * packetRedundancy
	if n < 2 {
		n = 2
	}
	return n
}

// ApplyResult reports what ConsumeTargetInputs observed while merging a
// received redundant sequence into a server-side InputBuffer, used to
// detect remote-input mismatches for rollback (spec.md §4.5).
type ApplyResult struct {
	EarliestMismatch   tick.Tick
	HasMismatch        bool
}

// ConsumeTargetInputs applies a decoded TargetInputs sequence to buf,
// scanning oldest to newest: slots already matching the buffer are
// skipped, others are written; if a written value diverges from a prior
// predicted continuation already present at that tick, the earliest such
// tick is recorded (spec.md §4.5 Consumer algorithm).
func ConsumeTargetInputs[S any](buf *Buffer[S], endTick tick.Tick, decoded []S, present []bool, equal func(a, b S) bool) ApplyResult {
	var result ApplyResult
	n := len(decoded)
	start := endTick.Add(tick.Delta(-(n - 1)))
	for i := 0; i < n; i++ {
		if !present[i] {
			continue
		}
		t := start.Add(tick.Delta(i))
		if existing, ok := buf.Get(t); ok {
			if equal(existing, decoded[i]) {
				continue
			}
			if !result.HasMismatch || t.Before(result.EarliestMismatch) {
				result.EarliestMismatch = t
				result.HasMismatch = true
			}
		}
		buf.Set(t, decoded[i], equal)
	}
	return result
}
