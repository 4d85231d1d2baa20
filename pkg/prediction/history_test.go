package prediction

import (
	"testing"
	"time"

	"github.com/tickforge/netsync/pkg/tick"
)

func eq(a, b int) bool { return a == b }

func TestClearPredictedFromRetainsConfirmed(t *testing.T) {
	h := NewHistory[int]()
	h.InsertConfirmed(10, 1, 10, eq)
	h.PushPredicted(11, 2)
	h.PushPredicted(12, 3)
	h.ClearPredictedFrom(10)
	if _, ok := h.At(11); ok {
		t.Fatal("predicted entry after rollback point should be cleared")
	}
	if v, ok := h.At(10); !ok || v.Value != 1 {
		t.Fatal("confirmed entry must survive clear")
	}
}

func TestInsertConfirmedDetectsMismatch(t *testing.T) {
	h := NewHistory[int]()
	h.PushPredicted(5, 100)
	res := h.InsertConfirmed(5, 200, 10, eq)
	if !res.Mismatch {
		t.Fatal("expected mismatch between predicted 100 and confirmed 200")
	}
}

func TestInsertConfirmedNoMismatchWhenEqual(t *testing.T) {
	h := NewHistory[int]()
	h.PushPredicted(5, 100)
	res := h.InsertConfirmed(5, 100, 10, eq)
	if res.Mismatch {
		t.Fatal("expected no mismatch for identical values")
	}
}

func TestRestoreValuePrefersConfirmed(t *testing.T) {
	h := NewHistory[int]()
	h.PushPredicted(5, 1)
	h.InsertConfirmed(5, 2, 10, eq)
	v, ok := h.RestoreValue(5)
	if !ok || v != 2 {
		t.Fatalf("expected confirmed value 2, got %v %v", v, ok)
	}
}

func TestResimulateReplaysForward(t *testing.T) {
	h := NewHistory[int]()
	h.InsertConfirmed(10, 100, 10, eq)
	h.PushPredicted(11, 101)
	h.PushPredicted(12, 999) // mispredicted; will be discarded by rollback

	var tracker MismatchTracker
	tracker.Report(tick.Tick(11))
	plan := tracker.Resolve(tick.Tick(13), 64)
	if !plan.ShouldRollback || plan.From != 11 {
		t.Fatalf("unexpected plan %+v", plan)
	}

	Resimulate(h, plan, tick.Tick(13), StepFn[int](func(prev int, prevOK bool, t tick.Tick) (int, bool) {
		if !prevOK {
			return 0, false
		}
		return prev + 1, true
	}))

	if v, ok := h.At(12); !ok || v.Value != 102 {
		t.Fatalf("expected resimulated value 102 at tick 12, got %v %v", v, ok)
	}
}

func TestResolveSkipsRollbackBeyondMaxDepth(t *testing.T) {
	var tracker MismatchTracker
	tracker.Report(tick.Tick(0))
	plan := tracker.Resolve(tick.Tick(100), 10)
	if plan.ShouldRollback {
		t.Fatalf("expected rollback to be abandoned past max depth, got %+v", plan)
	}
	if !plan.Overflowed {
		t.Fatalf("expected Overflowed to be set, got %+v", plan)
	}
}

func TestResolveAtExactlyMaxDepthStillRollsBack(t *testing.T) {
	var tracker MismatchTracker
	tracker.Report(tick.Tick(90))
	plan := tracker.Resolve(tick.Tick(100), 10)
	if !plan.ShouldRollback || plan.From != 90 || plan.Overflowed {
		t.Fatalf("expected an unclamped rollback from 90 at exactly max depth, got %+v", plan)
	}
}

func TestPreSpawnReconcileEarliestWins(t *testing.T) {
	r := NewPreSpawnRegistry()
	r.RegisterLocal(1, tick.Tick(5), 0xAAAA)
	r.RegisterLocal(2, tick.Tick(5), 0xAAAA)
	res := r.Reconcile(tick.Tick(5), 0xAAAA)
	if !res.Matched || res.Entity != 1 {
		t.Fatalf("expected earliest-spawned entity 1 to win, got %+v", res)
	}
	// second reconcile of the same hash should find the remaining candidate
	res2 := r.Reconcile(tick.Tick(5), 0xAAAA)
	if !res2.Matched || res2.Entity != 2 {
		t.Fatalf("expected second candidate 2, got %+v", res2)
	}
}

func TestPreSpawnExpire(t *testing.T) {
	r := NewPreSpawnRegistry()
	r.RegisterLocal(1, tick.Tick(1), 0x1)
	r.RegisterLocal(2, tick.Tick(20), 0x2)
	expired := r.Expire(tick.Tick(10))
	if len(expired) != 1 || expired[0] != 1 {
		t.Fatalf("expected entity 1 to expire, got %+v", expired)
	}
}

type vec2 struct{ x, y float64 }

func eqVec2(a, b vec2) bool { return a == b }

// A server confirmation that disagrees with what was predicted at the same
// tick must trigger a rollback to that tick, with the resimulation replaying
// forward from the confirmed value rather than the misprediction.
func TestRollbackResimulatesFromConfirmedValue(t *testing.T) {
	h := NewHistory[vec2]()

	// Client predicted (10,0) at tick 50 and kept moving +1 on x each tick.
	h.PushPredicted(50, vec2{10, 0})
	for t, x := tick.Tick(51), 11.0; t <= 54; t, x = t.Add(1), x+1 {
		h.PushPredicted(t, vec2{x, 0})
	}

	// The server's authoritative state for tick 50 arrives at tick 55,
	// disagreeing with the client's own predicted (10,0).
	currentTick := tick.Tick(55)
	var tracker MismatchTracker
	res := h.InsertConfirmed(50, vec2{12, 0}, currentTick, eqVec2)
	if !res.Mismatch {
		t.Fatal("expected mismatch between predicted (10,0) and confirmed (12,0)")
	}
	tracker.Report(50)

	plan := tracker.Resolve(currentTick, 64)
	if !plan.ShouldRollback || plan.From != 50 {
		t.Fatalf("expected rollback from tick 50, got %+v", plan)
	}

	Resimulate(h, plan, currentTick, StepFn[vec2](func(prev vec2, prevOK bool, _ tick.Tick) (vec2, bool) {
		if !prevOK {
			return vec2{}, false
		}
		return vec2{prev.x + 1, prev.y}, true
	}))

	// Resimulated forward 5 ticks (50->55) from the confirmed (12,0), not
	// from the original mispredicted (10,0).
	v, ok := h.At(54)
	if !ok || v.Value != (vec2{16, 0}) {
		t.Fatalf("expected resimulated (16,0) at tick 54 seeded from confirmed (12,0), got %+v ok=%v", v.Value, ok)
	}
}

// The visual correction blending a rollback snap into view must never jump
// by more than a bounded fraction of the total delta in a single frame, and
// must settle exactly on the target once its duration elapses.
func TestCorrectionNeverJumpsMoreThanBoundedFraction(t *testing.T) {
	lerp := func(from, to float64, t float64) float64 { return from + (to-from)*t }
	const frames = 10
	frameDur := 100 * time.Millisecond
	c := NewCorrection[float64](0, 8, frames*frameDur, lerp)

	prev := 0.0
	for i := 0; i < frames; i++ {
		cur := c.Advance(frameDur)
		if delta := cur - prev; delta > 3 {
			t.Fatalf("frame %d jumped by %v, exceeding the 3-unit bound", i, delta)
		}
		prev = cur
	}
	if !c.Done() || prev != 8 {
		t.Fatalf("expected correction to settle exactly on 8, got %v done=%v", prev, c.Done())
	}
}
