package prediction

import "github.com/tickforge/netsync/pkg/tick"

// MismatchTracker accumulates the earliest divergence reported this frame
// across every predicted component/input stream, so a single rollback can
// be chosen to cover all of them (spec.md §4.6 "one rollback per frame").
type MismatchTracker struct {
	has     bool
	earliest tick.Tick
}

// Report folds in a newly observed mismatch tick. Safe to call zero or
// many times per frame; only the oldest tick survives.
func (m *MismatchTracker) Report(t tick.Tick) {
	if !m.has || t.Before(m.earliest) {
		m.earliest = t
		m.has = true
	}
}

// Reset clears accumulated state for the next frame.
func (m *MismatchTracker) Reset() {
	m.has = false
}

// Plan describes the rollback, if any, this frame should perform.
type Plan struct {
	ShouldRollback bool
	From           tick.Tick // earliest mismatched tick, inclusive
	Overflowed     bool      // depth exceeded maxRollbackTicks; rollback was skipped
}

// Resolve turns accumulated mismatch reports into a Plan. If the required
// rollback depth exceeds maxRollbackTicks, the rollback is abandoned for
// this frame entirely rather than performed at a shallower depth (spec.md
// §4.6 step 1: "If the required rollback depth exceeds the cap, abandon
// the rollback for this frame and log"; §7 RollbackOverflow: "Skip
// rollback this frame; log"; §8 boundary: "At max+1: it is skipped and
// logged").
func (m *MismatchTracker) Resolve(currentTick tick.Tick, maxRollbackTicks int) Plan {
	if !m.has {
		return Plan{}
	}
	from := m.earliest
	depth := int(currentTick.Sub(from))
	if maxRollbackTicks > 0 && depth > maxRollbackTicks {
		return Plan{Overflowed: true}
	}
	return Plan{ShouldRollback: true, From: from}
}

// StepFn resimulates one tick forward for a single predicted component,
// given the previous tick's effective value (ok=false if none) and the
// tick being computed, returning the new predicted value (ok=false if the
// component should be predicted-absent at this tick).
type StepFn[C any] func(prev C, prevOK bool, t tick.Tick) (C, bool)

// Resimulate rolls h back to plan.From, restoring its value (or recording
// predicted-absence if none exists), then replays StepFn forward through
// currentTick, writing fresh Predicted entries (spec.md §4.6 steps 2-5).
// plan.From keeps its restored value; each tick in (plan.From, currentTick]
// is resimulated from the tick before it, so the entry produced for
// currentTick is the new "last predicted" value.
func Resimulate[C any](h *History[C], plan Plan, currentTick tick.Tick, step StepFn[C]) {
	if !plan.ShouldRollback {
		return
	}
	h.ClearPredictedFrom(plan.From)
	prev, prevOK := h.RestoreValue(plan.From)
	if confirmed, ok := h.ConfirmedAt(plan.From); ok {
		prev, prevOK = confirmed, true
	}
	t := plan.From
	for t.Before(currentTick) {
		next := t.Add(1)
		v, ok := step(prev, prevOK, next)
		if ok {
			h.PushPredicted(next, v)
		} else {
			h.PushPredictedRemoved(next)
		}
		prev, prevOK = v, ok
		t = next
	}
}
