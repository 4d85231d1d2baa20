// Package input implements the per-tick input buffer with run-length
// compression and redundant transmission of spec.md §3/§4.5/§9.
package input

import "github.com/tickforge/netsync/pkg/tick"

// SlotKind tags what an InputBuffer slot holds.
type SlotKind uint8

const (
	SlotAbsent SlotKind = iota
	SlotSameAsPrecedent
	SlotValue
)

// Slot is one tick's entry in an InputBuffer.
type Slot[S any] struct {
	Kind  SlotKind
	Value S // only meaningful when Kind == SlotValue
}

// Buffer is a tick-indexed ring of action snapshots for one input entity.
// Invariant: the slot at StartTick is never SlotSameAsPrecedent (enforced
// by popOldest, which Set reaches when StartTick shifts).
type Buffer[S any] struct {
	startTick tick.Tick
	slots     []Slot[S]
	capacity  int
}

// NewBuffer creates an empty buffer of the given capacity (max ticks kept).
func NewBuffer[S any](startTick tick.Tick, capacity int) *Buffer[S] {
	return &Buffer[S]{startTick: startTick, capacity: capacity}
}

func (b *Buffer[S]) StartTick() tick.Tick { return b.startTick }
func (b *Buffer[S]) Len() int             { return len(b.slots) }

func (b *Buffer[S]) endTickExclusive() tick.Tick {
	return b.startTick.Add(tick.Delta(len(b.slots)))
}

// Set writes a snapshot at the given tick, equal-checked against the
// previous tick's value for run-length compression. If t falls beyond the
// buffer's capacity window, StartTick is advanced, dropping the oldest
// entries and preserving only the last capacity values (spec.md §8
// boundary: "Input buffer full").
func (b *Buffer[S]) Set(t tick.Tick, value S, equal func(a, b S) bool) {
	if len(b.slots) == 0 {
		b.startTick = t
		b.slots = append(b.slots, Slot[S]{Kind: SlotValue, Value: value})
		return
	}
	if t.Before(b.startTick) {
		return // too old to represent, drop silently
	}
	end := b.endTickExclusive()
	if !t.Before(end) {
		// extend, filling any gap with Absent
		gap := int(t.Sub(end))
		for i := 0; i < gap; i++ {
			b.slots = append(b.slots, Slot[S]{Kind: SlotAbsent})
		}
		b.slots = append(b.slots, Slot[S]{Kind: SlotValue, Value: value})
	} else {
		idx := int(t.Sub(b.startTick))
		b.slots[idx] = Slot[S]{Kind: SlotValue, Value: value}
	}
	b.compress(equal)
	b.enforceCapacity()
}

// compress rewrites consecutive equal values into SameAsPrecedent markers,
// except the first slot (StartTick), which must always stay concrete. A
// Value separated from the previous concrete value by an Absent slot is
// never compressed, even if the values happen to be equal: SameAsPrecedent
// must only ever reference an unbroken run back to a real Value, since Get
// stops resolving the instant it crosses an Absent slot.
func (b *Buffer[S]) compress(equal func(a, b S) bool) {
	var lastConcrete *S
	for i := range b.slots {
		switch b.slots[i].Kind {
		case SlotAbsent:
			lastConcrete = nil
		case SlotValue:
			if i == 0 {
				v := b.slots[i].Value
				lastConcrete = &v
				continue
			}
			if lastConcrete != nil && equal(*lastConcrete, b.slots[i].Value) {
				b.slots[i] = Slot[S]{Kind: SlotSameAsPrecedent}
			} else {
				v := b.slots[i].Value
				lastConcrete = &v
			}
		}
	}
}

func (b *Buffer[S]) enforceCapacity() {
	if b.capacity <= 0 || len(b.slots) <= b.capacity {
		return
	}
	drop := len(b.slots) - b.capacity
	for i := 0; i < drop; i++ {
		b.popOldest()
	}
}

// popOldest removes the slot at StartTick, promoting a following
// SameAsPrecedent to a concrete value so the invariant holds for the new
// StartTick (spec.md §9).
func (b *Buffer[S]) popOldest() {
	if len(b.slots) == 0 {
		return
	}
	removed := b.slots[0]
	b.slots = b.slots[1:]
	b.startTick = b.startTick.Add(1)
	if len(b.slots) > 0 && b.slots[0].Kind == SlotSameAsPrecedent && removed.Kind == SlotValue {
		b.slots[0] = Slot[S]{Kind: SlotValue, Value: removed.Value}
	}
}

// Get resolves the effective value at tick t by walking backward through
// SameAsPrecedent markers, returning ok=false if t is Absent, out of
// range, or the buffer has no concrete value at or before t within range.
func (b *Buffer[S]) Get(t tick.Tick) (S, bool) {
	var zero S
	if len(b.slots) == 0 || t.Before(b.startTick) || !t.Before(b.endTickExclusive()) {
		return zero, false
	}
	idx := int(t.Sub(b.startTick))
	for i := idx; i >= 0; i-- {
		switch b.slots[i].Kind {
		case SlotValue:
			return b.slots[i].Value, true
		case SlotAbsent:
			return zero, false
		case SlotSameAsPrecedent:
			continue
		}
	}
	return zero, false
}

// Snapshot returns the last n effective values ending at (and including)
// endTick, oldest first, resolving SameAsPrecedent/Absent markers, for
// building an InputMessage's redundant sequence.
func (b *Buffer[S]) Snapshot(endTick tick.Tick, n int) []Slot[S] {
	out := make([]Slot[S], 0, n)
	start := endTick.Add(tick.Delta(-(n - 1)))
	for t := start; !t.After(endTick); t = t.Add(1) {
		if v, ok := b.Get(t); ok {
			out = append(out, Slot[S]{Kind: SlotValue, Value: v})
		} else {
			out = append(out, Slot[S]{Kind: SlotAbsent})
		}
	}
	return out
}
