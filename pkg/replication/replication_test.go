package replication

import (
	"testing"

	"github.com/tickforge/netsync/pkg/tick"
)

type Position struct {
	X, Y float64
}

func newTestRegistry() *Registry {
	r := NewRegistry()
	RegisterCBOR[Position](r, 1)
	return r
}

type fakeSource struct {
	comps   map[EntityID]map[ComponentKind]any
	changed map[EntityID]map[ComponentKind]bool
}

func (f *fakeSource) Components(e EntityID) map[ComponentKind]any { return f.comps[e] }
func (f *fakeSource) Changed(e EntityID, k ComponentKind) bool    { return f.changed[e][k] }
func (f *fakeSource) BaselineTick(e EntityID, k ComponentKind) (tick.Tick, bool) {
	return 0, false
}

func TestSenderGainedProducesSpawnAndInsert(t *testing.T) {
	reg := newTestRegistry()
	sender := NewSender(reg, NewGroupAssignment(), NewVisibilityTracker())
	src := &fakeSource{
		comps:   map[EntityID]map[ComponentKind]any{1: {1: Position{X: 1, Y: 2}}},
		changed: map[EntityID]map[ComponentKind]bool{},
	}
	actions, muts, err := sender.Pass(PeerKey(1), tick.Tick(5), map[EntityID]struct{}{1: {}}, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(muts) != 0 {
		t.Fatalf("expected no mutations on first visibility, got %d", len(muts))
	}
	if len(actions) != 1 || len(actions[0].Ops) != 2 {
		t.Fatalf("expected spawn+insert, got %+v", actions)
	}
	if actions[0].Ops[0].Kind != OpSpawn || actions[0].Ops[1].Kind != OpInsert {
		t.Fatalf("unexpected op order: %+v", actions[0].Ops)
	}
}

func TestSenderLostProducesDespawn(t *testing.T) {
	reg := newTestRegistry()
	sender := NewSender(reg, NewGroupAssignment(), NewVisibilityTracker())
	src := &fakeSource{comps: map[EntityID]map[ComponentKind]any{1: {1: Position{}}}}
	sender.Pass(PeerKey(1), tick.Tick(1), map[EntityID]struct{}{1: {}}, src)
	actions, _, err := sender.Pass(PeerKey(1), tick.Tick(2), map[EntityID]struct{}{}, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].Ops[0].Kind != OpDespawn {
		t.Fatalf("expected despawn, got %+v", actions)
	}
}

func TestSenderMaintainedMutatesOnlyWhenChanged(t *testing.T) {
	reg := newTestRegistry()
	sender := NewSender(reg, NewGroupAssignment(), NewVisibilityTracker())
	src := &fakeSource{
		comps:   map[EntityID]map[ComponentKind]any{1: {1: Position{X: 1}}},
		changed: map[EntityID]map[ComponentKind]bool{1: {1: false}},
	}
	sender.Pass(PeerKey(1), tick.Tick(1), map[EntityID]struct{}{1: {}}, src) // spawn
	_, muts, err := sender.Pass(PeerKey(1), tick.Tick(2), map[EntityID]struct{}{1: {}}, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(muts) != 0 {
		t.Fatalf("expected no mutation while unchanged, got %+v", muts)
	}

	src.changed[1][1] = true
	_, muts, err = sender.Pass(PeerKey(1), tick.Tick(3), map[EntityID]struct{}{1: {}}, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(muts) != 1 || len(muts[0].Muts) != 1 {
		t.Fatalf("expected one mutation, got %+v", muts)
	}
}

type fakeSink struct {
	spawned  map[EntityID][]ComponentKind
	despawn  map[EntityID]bool
	inserted map[EntityID]map[ComponentKind]any
	removed  map[EntityID]map[ComponentKind]bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		spawned:  map[EntityID][]ComponentKind{},
		despawn:  map[EntityID]bool{},
		inserted: map[EntityID]map[ComponentKind]any{},
		removed:  map[EntityID]map[ComponentKind]bool{},
	}
}

func (s *fakeSink) SpawnWith(e EntityID, kinds []ComponentKind) { s.spawned[e] = kinds }
func (s *fakeSink) Despawn(e EntityID)                          { s.despawn[e] = true }
func (s *fakeSink) Insert(e EntityID, k ComponentKind, v any) {
	if s.inserted[e] == nil {
		s.inserted[e] = map[ComponentKind]any{}
	}
	s.inserted[e][k] = v
}
func (s *fakeSink) Remove(e EntityID, k ComponentKind) {
	if s.removed[e] == nil {
		s.removed[e] = map[ComponentKind]bool{}
	}
	s.removed[e][k] = true
}

func TestReceiverAppliesActionsInOrder(t *testing.T) {
	reg := newTestRegistry()
	vt, _ := reg.Lookup(1)
	payload, _ := vt.Serialize(Position{X: 3, Y: 4})
	recv := NewReceiver(reg)
	sink := newFakeSink()
	msg := ActionsMessage{Group: 1, Tick: 10, Ops: []Action{
		{Kind: OpSpawn, Entity: 1, Kinds: []ComponentKind{1}},
		{Kind: OpInsert, Entity: 1, Comp: 1, Payload: payload},
	}}
	if err := recv.ApplyActions(msg, sink); err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.spawned[1]; !ok {
		t.Fatal("expected spawn applied")
	}
	pos, ok := sink.inserted[1][1].(Position)
	if !ok || pos.X != 3 || pos.Y != 4 {
		t.Fatalf("unexpected inserted value: %+v", sink.inserted[1][1])
	}
}

func TestReceiverDiscardsStaleMutation(t *testing.T) {
	reg := newTestRegistry()
	vt, _ := reg.Lookup(1)
	payload, _ := vt.Serialize(Position{X: 1})
	recv := NewReceiver(reg)
	sink := newFakeSink()
	recv.ApplyActions(ActionsMessage{Group: 1, Tick: 10, Ops: []Action{{Kind: OpSpawn, Entity: 1, Kinds: []ComponentKind{1}}}}, sink)

	applied, err := recv.ApplyMutations(MutationsMessage{Group: 1, Tick: 5, Muts: []Mutation{{Entity: 1, Kind: 1, Payload: payload}}}, sink)
	if err != nil {
		t.Fatal(err)
	}
	if applied != 0 {
		t.Fatalf("expected stale mutation discarded, got applied=%d", applied)
	}

	applied, err = recv.ApplyMutations(MutationsMessage{Group: 1, Tick: 11, Muts: []Mutation{{Entity: 1, Kind: 1, Payload: payload}}}, sink)
	if err != nil {
		t.Fatal(err)
	}
	if applied != 1 {
		t.Fatalf("expected fresh mutation applied, got %d", applied)
	}
}

func TestActionsMessageRoundTrip(t *testing.T) {
	msg := ActionsMessage{Group: 99, Tick: 7, Ops: []Action{
		{Kind: OpSpawn, Entity: 1, Kinds: []ComponentKind{1, 2}},
		{Kind: OpInsert, Entity: 1, Comp: 1, Payload: []byte("hi")},
		{Kind: OpRemove, Entity: 1, Comp: 2},
		{Kind: OpDespawn, Entity: 2},
	}}
	data := EncodeActions(msg)
	got, err := DecodeActions(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Group != msg.Group || got.Tick != msg.Tick || len(got.Ops) != 4 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestMutationsMessageRoundTrip(t *testing.T) {
	bt := tick.Tick(3)
	msg := MutationsMessage{Group: 1, Tick: 8, Muts: []Mutation{
		{Entity: 5, Kind: 1, Payload: []byte("abc"), BaselineTick: &bt},
	}}
	data := EncodeMutations(msg)
	got, err := DecodeMutations(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Muts) != 1 || got.Muts[0].BaselineTick == nil || *got.Muts[0].BaselineTick != 3 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
