package delta

import (
	"fmt"

	"github.com/tickforge/netsync/pkg/tick"
)

// Codec is the Diffable contract of spec.md §4.8: types opting into delta
// replication provide a neutral base value, a diff against a previous
// value, and diff application.
type Codec struct {
	BaseValue func() any
	Diff      func(base, next any) ([]byte, error)
	ApplyDiff func(base any, delta []byte) (any, error)
}

// MessageKind distinguishes a delta computed against the neutral base
// value from one computed against a previously-acknowledged tick.
type MessageKind uint8

const (
	FromBase MessageKind = iota
	Normal
)

// Message is what the sender emits for a delta-compressed mutation
// (spec.md §4.8 "Send").
type Message struct {
	Kind         MessageKind
	PreviousTick tick.Tick // meaningful only when Kind == Normal
	Delta        []byte
}

// ErrBaselineMissing reports spec.md §7's DeltaBaselineMissing: the
// receiver cannot find the previous_tick value a Normal message diffs
// against.
type ErrBaselineMissing struct {
	Entity uint64
	Kind   uint32
	Tick   tick.Tick
}

func (e *ErrBaselineMissing) Error() string {
	return fmt.Sprintf("delta: baseline missing for entity %d kind %d at tick %d", e.Entity, e.Kind, e.Tick)
}

// History is the receiver-side `DeltaComponentHistory` of spec.md §4.8: a
// tick-indexed value history per (entity, component), plus the oldest
// tick still referenced as a baseline so old entries can be pruned.
type History struct {
	codec       Codec
	values      map[tick.Tick]any
	oldestRefd  tick.Tick
	haveOldest  bool
}

func NewHistory(codec Codec) *History {
	return &History{codec: codec, values: make(map[tick.Tick]any)}
}

// Apply ingests msg, reconstructing and storing the new value at newTick.
// On Normal, previous_tick must already be present in history; its
// absence is reported as ErrBaselineMissing (fail loudly — it indicates
// an ack bookkeeping bug upstream).
func (h *History) Apply(key Key, newTick tick.Tick, msg Message) (any, error) {
	var base any
	switch msg.Kind {
	case FromBase:
		base = h.codec.BaseValue()
	case Normal:
		v, ok := h.values[msg.PreviousTick]
		if !ok {
			return nil, &ErrBaselineMissing{Entity: key.Entity, Kind: key.Kind, Tick: msg.PreviousTick}
		}
		base = v
	default:
		return nil, fmt.Errorf("delta: unknown message kind %d", msg.Kind)
	}
	next, err := h.codec.ApplyDiff(base, msg.Delta)
	if err != nil {
		return nil, fmt.Errorf("delta: apply diff: %w", err)
	}
	h.values[newTick] = next
	if msg.Kind == Normal {
		h.markReferenced(msg.PreviousTick)
	}
	return next, nil
}

func (h *History) markReferenced(t tick.Tick) {
	if !h.haveOldest || t.Before(h.oldestRefd) {
		h.oldestRefd = t
		h.haveOldest = true
	}
}

// Prune drops entries older than the oldest still-referenced baseline
// (spec.md §4.8 "Receive": "prune entries older than the oldest still-
// referenced baseline").
func (h *History) Prune() {
	if !h.haveOldest {
		return
	}
	for t := range h.values {
		if t.Before(h.oldestRefd) {
			delete(h.values, t)
		}
	}
}

// At returns the reconstructed value at t, if present.
func (h *History) At(t tick.Tick) (any, bool) {
	v, ok := h.values[t]
	return v, ok
}
