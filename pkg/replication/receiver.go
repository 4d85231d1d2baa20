package replication

import (
	"fmt"

	"github.com/tickforge/netsync/pkg/tick"
)

// WorldSink is the subset of the EntityWorld collaborator the receiver
// writes through (spec.md §6 "Write").
type WorldSink interface {
	SpawnWith(entity EntityID, kinds []ComponentKind)
	Despawn(entity EntityID)
	Insert(entity EntityID, kind ComponentKind, value any)
	Remove(entity EntityID, kind ComponentKind)
}

// Receiver applies ActionsMessage/MutationsMessage to a WorldSink, per
// spec.md §4.7 "Receiver pass".
type Receiver struct {
	registry *Registry
	// lastActionTick is the sender-tick of the most recently applied
	// ActionsMessage per entity, used to gate out-of-order mutations.
	lastActionTick map[EntityID]tick.Tick
}

func NewReceiver(registry *Registry) *Receiver {
	return &Receiver{registry: registry, lastActionTick: make(map[EntityID]tick.Tick)}
}

// ApplyActions applies every op in msg to sink, in order. Reliable-ordered
// delivery upstream guarantees this is called in sender tick order for a
// given group (spec.md §5).
func (r *Receiver) ApplyActions(msg ActionsMessage, sink WorldSink) error {
	for _, op := range msg.Ops {
		switch op.Kind {
		case OpSpawn:
			sink.SpawnWith(op.Entity, op.Kinds)
			r.lastActionTick[op.Entity] = msg.Tick
		case OpDespawn:
			sink.Despawn(op.Entity)
			delete(r.lastActionTick, op.Entity)
		case OpInsert:
			vt, ok := r.registry.Lookup(op.Comp)
			if !ok {
				return unknownComponentErr(op.Comp)
			}
			v, err := vt.Deserialize(op.Payload)
			if err != nil {
				return fmt.Errorf("replication: insert entity %d kind %d: %w", op.Entity, op.Comp, err)
			}
			sink.Insert(op.Entity, op.Comp, v)
			r.lastActionTick[op.Entity] = msg.Tick
		case OpRemove:
			sink.Remove(op.Entity, op.Comp)
			r.lastActionTick[op.Entity] = msg.Tick
		}
	}
	return nil
}

// ApplyMutations applies each mutation whose tick is at or after the last
// applied action tick for its entity; older ones are discarded (spec.md
// §4.7 "Receiver pass": "apply it only if its tick is >= the last-applied
// action tick for that entity, otherwise discard").
func (r *Receiver) ApplyMutations(msg MutationsMessage, sink WorldSink) (applied int, err error) {
	for _, m := range msg.Muts {
		if last, ok := r.lastActionTick[m.Entity]; ok && msg.Tick.Before(last) {
			continue
		}
		vt, ok := r.registry.Lookup(m.Kind)
		if !ok {
			return applied, unknownComponentErr(m.Kind)
		}
		v, derr := vt.Deserialize(m.Payload)
		if derr != nil {
			return applied, fmt.Errorf("replication: mutate entity %d kind %d: %w", m.Entity, m.Kind, derr)
		}
		sink.Insert(m.Entity, m.Kind, v)
		applied++
	}
	return applied, nil
}

// Forget drops tracked action-tick state for entity, e.g. on despawn
// cleanup or connection teardown.
func (r *Receiver) Forget(entity EntityID) {
	delete(r.lastActionTick, entity)
}
