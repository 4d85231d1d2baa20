package world

import (
	"sync/atomic"

	"github.com/tickforge/netsync/pkg/delta"
	"github.com/tickforge/netsync/pkg/replication"
	"github.com/tickforge/netsync/pkg/tick"
)

type entityRecord struct {
	components map[replication.ComponentKind]any
	changeTick map[replication.ComponentKind]uint64
}

// MemoryWorld is a plain in-memory EntityWorld reference implementation
// with per-component change-tick tracking (spec.md §6 "Change tracking:
// a per-tick counter the core reads to decide whether a component was
// mutated since the last send to a given client"). It also implements
// replication.ComponentSource directly, and replication.WorldSink via the
// ReplicationSink wrapper below.
type MemoryWorld struct {
	entities   map[replication.EntityID]*entityRecord
	nextLocal  uint64
	clock      uint64 // monotonically incremented on every mutation
	sentTick   map[sentKey]uint64
	deltaStore *delta.Store
}

// SetDeltaStore wires the shared sender-side delta.Store this world reads
// delta-compression baselines from (spec.md §4.8). Until called,
// BaselineTick always reports no baseline, forcing FromBase sends.
func (w *MemoryWorld) SetDeltaStore(s *delta.Store) { w.deltaStore = s }

func NewMemoryWorld() *MemoryWorld {
	return &MemoryWorld{entities: make(map[replication.EntityID]*entityRecord)}
}

func (w *MemoryWorld) tick() uint64 {
	w.clock++
	return w.clock
}

// SpawnWith (EntityWorld write op) allocates a fresh local entity id and
// inserts the given components, returning the new id.
func (w *MemoryWorld) SpawnWith(components map[replication.ComponentKind]any) replication.EntityID {
	id := replication.EntityID(atomic.AddUint64(&w.nextLocal, 1))
	rec := &entityRecord{components: map[replication.ComponentKind]any{}, changeTick: map[replication.ComponentKind]uint64{}}
	t := w.tick()
	for k, v := range components {
		rec.components[k] = v
		rec.changeTick[k] = t
	}
	w.entities[id] = rec
	return id
}

// spawnWithID spawns an entity under an explicit id supplied by a
// replicated Spawn action, with no component values yet (they follow as
// separate Insert ops in the same ActionsMessage, per spec.md §4.7).
func (w *MemoryWorld) spawnWithID(entity replication.EntityID, kinds []replication.ComponentKind) {
	w.entities[entity] = &entityRecord{components: map[replication.ComponentKind]any{}, changeTick: map[replication.ComponentKind]uint64{}}
}

// ReplicationSink adapts a MemoryWorld to replication.WorldSink. The two
// collaborator interfaces both want a method named SpawnWith but with
// different shapes (EntityWorld.SpawnWith assigns a fresh local id;
// WorldSink.SpawnWith is handed an id chosen by the remote sender), so
// MemoryWorld itself only implements EntityWorld and this thin wrapper
// carries the receiver-side variant.
type ReplicationSink struct{ *MemoryWorld }

func (s ReplicationSink) SpawnWith(entity replication.EntityID, kinds []replication.ComponentKind) {
	s.MemoryWorld.spawnWithID(entity, kinds)
}

func (w *MemoryWorld) Insert(entity replication.EntityID, kind replication.ComponentKind, value any) {
	rec, ok := w.entities[entity]
	if !ok {
		rec = &entityRecord{components: map[replication.ComponentKind]any{}, changeTick: map[replication.ComponentKind]uint64{}}
		w.entities[entity] = rec
	}
	rec.components[kind] = value
	rec.changeTick[kind] = w.tick()
}

func (w *MemoryWorld) Remove(entity replication.EntityID, kind replication.ComponentKind) {
	rec, ok := w.entities[entity]
	if !ok {
		return
	}
	delete(rec.components, kind)
	delete(rec.changeTick, kind)
}

func (w *MemoryWorld) Despawn(entity replication.EntityID) {
	delete(w.entities, entity)
}

func (w *MemoryWorld) IterEntitiesWith(kinds []replication.ComponentKind) []EntityView {
	var out []EntityView
	for id, rec := range w.entities {
		matched := map[replication.ComponentKind]any{}
		var newest uint64
		for _, k := range kinds {
			v, ok := rec.components[k]
			if !ok {
				continue
			}
			matched[k] = v
			if t := rec.changeTick[k]; t > newest {
				newest = t
			}
		}
		if len(matched) == 0 {
			continue
		}
		out = append(out, EntityView{Entity: id, Components: matched, ChangeTick: newest})
	}
	return out
}

// Components implements replication.ComponentSource against the live
// record for entity (all kinds present, not filtered).
func (w *MemoryWorld) Components(entity replication.EntityID) map[replication.ComponentKind]any {
	rec, ok := w.entities[entity]
	if !ok {
		return nil
	}
	return rec.components
}

// Changed implements replication.ComponentSource: true if (entity, kind)
// mutated since the last MarkSent call for that pair. A caller that never
// calls MarkSent sees every present component as always-changed.
func (w *MemoryWorld) Changed(entity replication.EntityID, kind replication.ComponentKind) bool {
	rec, ok := w.entities[entity]
	if !ok {
		return false
	}
	return rec.changeTick[kind] > w.lastSent(entity, kind)
}

func (w *MemoryWorld) lastSent(entity replication.EntityID, kind replication.ComponentKind) uint64 {
	if w.sentTick == nil {
		return 0
	}
	return w.sentTick[sentKey{entity, kind}]
}

type sentKey struct {
	entity replication.EntityID
	kind   replication.ComponentKind
}

// MarkSent records that (entity, kind)'s current value was just sent, so
// the next Changed call reports false until it mutates again.
func (w *MemoryWorld) MarkSent(entity replication.EntityID, kind replication.ComponentKind) {
	if w.sentTick == nil {
		w.sentTick = make(map[sentKey]uint64)
	}
	rec, ok := w.entities[entity]
	if !ok {
		return
	}
	w.sentTick[sentKey{entity, kind}] = rec.changeTick[kind]
}

// BaselineTick implements replication.ComponentSource's delta-compression
// hook by reading the most recent tick a value for (entity, kind) was
// recorded in the wired delta.Store, which replication.CompressMutations
// populates after every send (spec.md §4.8). Until SetDeltaStore is
// called, no baseline is ever reported, forcing FromBase sends.
func (w *MemoryWorld) BaselineTick(entity replication.EntityID, kind replication.ComponentKind) (tick.Tick, bool) {
	if w.deltaStore == nil {
		return 0, false
	}
	return w.deltaStore.LatestTick(delta.Key{Kind: uint32(kind), Entity: uint64(entity)})
}
