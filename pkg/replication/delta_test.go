package replication

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/tickforge/netsync/pkg/delta"
	"github.com/tickforge/netsync/pkg/tick"
)

const deltaPosKind ComponentKind = 2

func encodePosition(p Position) []byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], math.Float64bits(p.X))
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(p.Y))
	return b[:]
}

func decodePosition(b []byte) Position {
	return Position{
		X: math.Float64frombits(binary.LittleEndian.Uint64(b[0:8])),
		Y: math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
	}
}

// newDeltaTestRegistry registers Position a second time under a
// delta-compressed kind, diffing as a plain component-wise subtraction.
func newDeltaTestRegistry() *Registry {
	r := newTestRegistry()
	r.Register(deltaPosKind, VTable{
		Serialize:   func(v any) ([]byte, error) { return encodePosition(v.(Position)), nil },
		Deserialize: func(b []byte) (any, error) { return decodePosition(b), nil },
		BaseValue:   func() any { return Position{} },
		Diff: func(base, next any) ([]byte, error) {
			b, n := base.(Position), next.(Position)
			return encodePosition(Position{X: n.X - b.X, Y: n.Y - b.Y}), nil
		},
		ApplyDiff: func(base any, d []byte) (any, error) {
			b, diff := base.(Position), decodePosition(d)
			return Position{X: b.X + diff.X, Y: b.Y + diff.Y}, nil
		},
	})
	return r
}

func TestCompressMutationsFromBaseThenNormal(t *testing.T) {
	reg := newDeltaTestRegistry()
	store := delta.NewStore()

	first := Mutation{Entity: 1, Kind: deltaPosKind, Payload: encodePosition(Position{X: 5, Y: 5})}
	compressed, err := CompressMutations([]Mutation{first}, reg, store, tick.Tick(10), 1)
	if err != nil {
		t.Fatal(err)
	}
	if compressed[0].BaselineTick != nil {
		t.Fatalf("expected BaselineTick cleared after compression, got %v", compressed[0].BaselineTick)
	}
	msg, err := delta.Decode(compressed[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind != delta.FromBase {
		t.Fatalf("expected FromBase for the first send, got %v", msg.Kind)
	}

	bt := tick.Tick(10)
	second := Mutation{Entity: 1, Kind: deltaPosKind, Payload: encodePosition(Position{X: 8, Y: 5}), BaselineTick: &bt}
	compressed2, err := CompressMutations([]Mutation{second}, reg, store, tick.Tick(11), 1)
	if err != nil {
		t.Fatal(err)
	}
	msg2, err := delta.Decode(compressed2[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if msg2.Kind != delta.Normal || msg2.PreviousTick != 10 {
		t.Fatalf("expected a Normal diff against tick 10, got %+v", msg2)
	}
}

func TestCompressDecompressMutationsRoundTrip(t *testing.T) {
	reg := newDeltaTestRegistry()
	store := delta.NewStore()
	histories := make(map[delta.Key]*delta.History)

	m1 := Mutation{Entity: 1, Kind: deltaPosKind, Payload: encodePosition(Position{X: 1, Y: 2})}
	sent1, err := CompressMutations([]Mutation{m1}, reg, store, tick.Tick(1), 1)
	if err != nil {
		t.Fatal(err)
	}
	decompressed1, err := DecompressMutations(MutationsMessage{Tick: 1, Muts: sent1}, reg, histories)
	if err != nil {
		t.Fatal(err)
	}
	got1 := decodePosition(decompressed1.Muts[0].Payload)
	if got1 != (Position{X: 1, Y: 2}) {
		t.Fatalf("expected (1,2) after first round trip, got %+v", got1)
	}

	bt := tick.Tick(1)
	m2 := Mutation{Entity: 1, Kind: deltaPosKind, Payload: encodePosition(Position{X: 4, Y: 2}), BaselineTick: &bt}
	sent2, err := CompressMutations([]Mutation{m2}, reg, store, tick.Tick(2), 1)
	if err != nil {
		t.Fatal(err)
	}
	decompressed2, err := DecompressMutations(MutationsMessage{Tick: 2, Muts: sent2}, reg, histories)
	if err != nil {
		t.Fatal(err)
	}
	got2 := decodePosition(decompressed2.Muts[0].Payload)
	if got2 != (Position{X: 4, Y: 2}) {
		t.Fatalf("expected (4,2) reconstructed from the Normal diff, got %+v", got2)
	}
}

func TestCompressMutationsSkipsNonDeltaKinds(t *testing.T) {
	reg := newTestRegistry() // kind 1 has no Diff/ApplyDiff/BaseValue
	store := delta.NewStore()
	payload, _ := reg.kinds[1].Serialize(Position{X: 9})
	m := Mutation{Entity: 1, Kind: 1, Payload: payload}
	out, err := CompressMutations([]Mutation{m}, reg, store, tick.Tick(1), 1)
	if err != nil {
		t.Fatal(err)
	}
	if string(out[0].Payload) != string(payload) {
		t.Fatal("expected non-delta-compressed mutation to pass through unchanged")
	}
}
