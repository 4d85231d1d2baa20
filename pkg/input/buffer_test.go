package input

import (
	"testing"

	"github.com/tickforge/netsync/pkg/tick"
)

func eqInt(a, b int) bool { return a == b }

func TestBufferStartTickNeverSameAsPrecedent(t *testing.T) {
	b := NewBuffer[int](tick.Tick(0), 100)
	b.Set(0, 1, eqInt)
	b.Set(1, 1, eqInt)
	b.Set(2, 1, eqInt)
	if b.slots[0].Kind != SlotValue {
		t.Fatalf("start tick slot must stay concrete, got %v", b.slots[0].Kind)
	}
	if b.slots[1].Kind != SlotSameAsPrecedent {
		t.Fatalf("expected compression at slot 1, got %v", b.slots[1].Kind)
	}
}

func TestBufferCapacityShiftsStartTick(t *testing.T) {
	b := NewBuffer[int](tick.Tick(0), 4)
	for i := 0; i < 10; i++ {
		b.Set(tick.Tick(i), i, eqInt)
	}
	if b.Len() != 4 {
		t.Fatalf("expected capacity-bound length 4, got %d", b.Len())
	}
	if b.StartTick() != 6 {
		t.Fatalf("expected start tick 6, got %d", b.StartTick())
	}
	// invariant: start tick slot concrete even after popping through
	// compressed runs
	if b.slots[0].Kind == SlotSameAsPrecedent {
		t.Fatalf("start tick slot must never be SameAsPrecedent after pop")
	}
}

func TestBufferPopPromotesSameAsPrecedent(t *testing.T) {
	b := NewBuffer[int](tick.Tick(0), 100)
	b.Set(0, 5, eqInt)
	b.Set(1, 5, eqInt) // compresses to SameAsPrecedent
	if b.slots[1].Kind != SlotSameAsPrecedent {
		t.Fatal("expected compression")
	}
	b.popOldest()
	if b.slots[0].Kind != SlotValue || b.slots[0].Value != 5 {
		t.Fatalf("expected promoted concrete value 5, got %+v", b.slots[0])
	}
}

func TestGetResolvesThroughCompression(t *testing.T) {
	b := NewBuffer[int](tick.Tick(10), 50)
	b.Set(10, 7, eqInt)
	b.Set(11, 7, eqInt)
	b.Set(12, 7, eqInt)
	v, ok := b.Get(12)
	if !ok || v != 7 {
		t.Fatalf("Get(12) = %v, %v; want 7, true", v, ok)
	}
}

func TestConsumeTargetInputsRecordsMismatch(t *testing.T) {
	buf := NewBuffer[int](tick.Tick(100), 50)
	buf.Set(100, 1, eqInt)
	buf.Set(101, 2, eqInt) // predicted continuation
	decoded := []int{1, 99}
	present := []bool{true, true}
	result := ConsumeTargetInputs(buf, tick.Tick(101), decoded, present, eqInt)
	if !result.HasMismatch || result.EarliestMismatch != 101 {
		t.Fatalf("expected mismatch at tick 101, got %+v", result)
	}
}

// A Value following a genuine gap (an Absent slot) must never be
// compressed into SameAsPrecedent, since Get stops resolving the instant
// it crosses an Absent slot and would otherwise silently lose the value.
func TestSetAfterGapStaysConcrete(t *testing.T) {
	b := NewBuffer[rune](tick.Tick(0), 50)
	b.Set(0, 'A', eqRune)
	b.Set(2, 'A', eqRune) // tick 1 left Absent
	if b.slots[1].Kind != SlotAbsent {
		t.Fatalf("expected tick 1 to stay Absent, got %v", b.slots[1].Kind)
	}
	if b.slots[2].Kind != SlotValue {
		t.Fatalf("expected tick 2 to stay a concrete Value despite matching tick 0, got %v", b.slots[2].Kind)
	}
	v, ok := b.Get(2)
	if !ok || v != 'A' {
		t.Fatalf("Get(2) = %q, %v; want 'A', true", v, ok)
	}
}

// A single dropped per-tick input message must still be recoverable on
// the receiver from a later message's redundant window, as long as
// packet_redundancy keeps that tick inside the window.
func TestDroppedInputRecoveredFromLaterRedundantWindow(t *testing.T) {
	const redundancy = 3 // packet_redundancy=3 worth of single-tick history

	client := NewBuffer[rune](tick.Tick(100), 50)
	client.Set(100, 'U', eqRune)
	client.Set(101, 'D', eqRune)
	client.Set(102, 'U', eqRune)

	server := NewBuffer[rune](tick.Tick(100), 50)

	// The message ending at tick 101 (covering [99,100,101]) is dropped in
	// isolation and never reaches ConsumeTargetInputs.

	// The next message, ending at tick 102, still covers tick 101 inside
	// its redundant window and is applied normally.
	snap := client.Snapshot(102, redundancy)
	decoded := make([]rune, len(snap))
	present := make([]bool, len(snap))
	for i, s := range snap {
		if s.Kind == SlotValue {
			decoded[i] = s.Value
			present[i] = true
		}
	}
	ConsumeTargetInputs(server, tick.Tick(102), decoded, present, eqRune)

	v, ok := server.Get(101)
	if !ok || v != 'D' {
		t.Fatalf("expected tick 101 to hold 'D' recovered from the tick-102 redundant window, got %q ok=%v", v, ok)
	}
}

func eqRune(a, b rune) bool { return a == b }

func TestMessageRoundTrip(t *testing.T) {
	m := Message{
		EndTick: 42,
		Inputs: []TargetInputs{
			{Target: 7, Sequence: [][]byte{{1, 2}, nil, {3}}},
		},
	}
	data := Encode(m)
	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.EndTick != m.EndTick || len(got.Inputs) != 1 || got.Inputs[0].Target != 7 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Inputs[0].Sequence) != 3 || len(got.Inputs[0].Sequence[0]) != 2 {
		t.Fatalf("sequence mismatch: %+v", got.Inputs[0].Sequence)
	}
}
