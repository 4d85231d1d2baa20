// Package prediction implements the client-side prediction/rollback
// engine of spec.md §4.6: per-component history, mismatch detection,
// rollback/resimulation, visual correction, and pre-spawned entity
// matching.
package prediction

import "github.com/tickforge/netsync/pkg/tick"

// StateKind tags one PredictionHistory entry.
type StateKind uint8

const (
	StatePredicted StateKind = iota
	StateConfirmed
	StateRemoved
	StateConfirmedRemoved
)

// State is one tick's entry in a PredictionHistory.
type State[C any] struct {
	Tick  tick.Tick
	Kind  StateKind
	Value C // meaningful only for StatePredicted/StateConfirmed
}

func (s State[C]) isConfirmed() bool {
	return s.Kind == StateConfirmed || s.Kind == StateConfirmedRemoved
}

// History is a per-predicted-entity, per-component tick-indexed, sorted
// sequence of States with at most one entry per tick. Confirmed entries
// survive ClearPredictedFrom (spec.md §3 invariant).
type History[C any] struct {
	entries []State[C]
}

func NewHistory[C any]() *History[C] { return &History[C]{} }

func (h *History[C]) find(t tick.Tick) int {
	lo, hi := 0, len(h.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if h.entries[mid].Tick.Before(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// At returns the entry at tick t, if any.
func (h *History[C]) At(t tick.Tick) (State[C], bool) {
	i := h.find(t)
	if i < len(h.entries) && h.entries[i].Tick == t {
		return h.entries[i], true
	}
	return State[C]{}, false
}

// Latest returns the most recent entry at or before t, if any.
func (h *History[C]) Latest(t tick.Tick) (State[C], bool) {
	i := h.find(t)
	if i < len(h.entries) && h.entries[i].Tick == t {
		return h.entries[i], true
	}
	if i == 0 {
		return State[C]{}, false
	}
	return h.entries[i-1], true
}

// insert places s at its sorted position, overwriting any existing entry
// at the same tick.
func (h *History[C]) insert(s State[C]) {
	i := h.find(s.Tick)
	if i < len(h.entries) && h.entries[i].Tick == s.Tick {
		h.entries[i] = s
		return
	}
	h.entries = append(h.entries, State[C]{})
	copy(h.entries[i+1:], h.entries[i:])
	h.entries[i] = s
}

// PushPredicted records a locally-computed value at t, provided it differs
// from the previous entry (caller is expected to have done the change
// check; PushPredicted unconditionally writes the entry it's given, per
// the normal-tick algorithm of spec.md §4.6 which writes only on detected
// change).
func (h *History[C]) PushPredicted(t tick.Tick, value C) {
	h.insert(State[C]{Tick: t, Kind: StatePredicted, Value: value})
}

// PushPredictedRemoved records a predicted absence at t.
func (h *History[C]) PushPredictedRemoved(t tick.Tick) {
	h.insert(State[C]{Tick: t, Kind: StateRemoved})
}

// InsertConfirmedResult reports whether the freshly-inserted confirmation
// mismatches an existing predicted entry at the same tick, per spec.md
// §4.6 "Confirmed ingest".
type InsertConfirmedResult struct {
	Mismatch bool
}

// InsertConfirmed writes a Confirmed(value) entry at tConf, received from
// the server. If a Predicted entry already existed at tConf and currentTick
// > tConf (i.e. the insert lands at or before current_tick-1), the new
// value is compared against it; a mismatch is reported to the caller so it
// can be folded into this frame's rollback decision.
func (h *History[C]) InsertConfirmed(tConf tick.Tick, value C, currentTick tick.Tick, equal func(a, b C) bool) InsertConfirmedResult {
	prior, hadPrior := h.At(tConf)
	h.insert(State[C]{Tick: tConf, Kind: StateConfirmed, Value: value})
	if !hadPrior || prior.Kind != StatePredicted {
		return InsertConfirmedResult{}
	}
	if tConf.After(currentTick.Add(-1)) {
		// only ticks at or before current_tick-1 have a predicted value
		// worth comparing against (spec.md §4.6 confirmed-ingest window).
		return InsertConfirmedResult{}
	}
	if !equal(prior.Value, value) {
		return InsertConfirmedResult{Mismatch: true}
	}
	return InsertConfirmedResult{}
}

// InsertConfirmedRemoved writes a ConfirmedRemoved marker at tConf.
func (h *History[C]) InsertConfirmedRemoved(tConf tick.Tick) {
	h.insert(State[C]{Tick: tConf, Kind: StateConfirmedRemoved})
}

// ClearPredictedFrom drops every Predicted/Removed entry strictly newer
// than tr while retaining all Confirmed*/ entries (spec.md §3 invariant,
// §4.6 step 2).
func (h *History[C]) ClearPredictedFrom(tr tick.Tick) {
	out := h.entries[:0:0]
	for _, e := range h.entries {
		if e.Tick.After(tr) && !e.isConfirmed() {
			continue
		}
		out = append(out, e)
	}
	h.entries = out
}

// RestoreValue returns the value to snap the runtime component to after a
// rollback to tr: the Confirmed entry at tr if present, else the Predicted
// entry at tr, else not-ok (component should be treated as absent).
func (h *History[C]) RestoreValue(tr tick.Tick) (C, bool) {
	e, ok := h.At(tr)
	if !ok {
		var zero C
		return zero, false
	}
	if e.Kind == StateRemoved || e.Kind == StateConfirmedRemoved {
		var zero C
		return zero, false
	}
	return e.Value, true
}

// ConfirmedAt reports the Confirmed value at exactly tick t, if any, used
// by the resimulation step 5 snap-before-simulating rule.
func (h *History[C]) ConfirmedAt(t tick.Tick) (C, bool) {
	e, ok := h.At(t)
	if !ok || !e.isConfirmed() || e.Kind == StateConfirmedRemoved {
		var zero C
		return zero, false
	}
	return e.Value, true
}
