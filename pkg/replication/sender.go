package replication

import (
	"fmt"

	"github.com/tickforge/netsync/pkg/tick"
)

func unknownComponentErr(kind ComponentKind) error {
	return fmt.Errorf("replication: unknown component kind %d", kind)
}

// OpKind tags one per-entity replication operation within an ActionsMessage.
type OpKind uint8

const (
	OpSpawn OpKind = iota
	OpDespawn
	OpInsert
	OpRemove
)

// Action is one Spawn/Despawn/Insert/Remove operation (spec.md §4.7).
type Action struct {
	Kind    OpKind
	Entity  EntityID
	Kinds   []ComponentKind // Spawn: every component kind the entity starts with
	Comp    ComponentKind   // Insert/Remove: the affected kind
	Payload []byte          // Insert: serialized component bytes
}

// ActionsMessage gathers every Spawn/Despawn/Insert/Remove for one
// replication group in one send pass, carried on a reliable-ordered
// channel (spec.md §4.7).
type ActionsMessage struct {
	Group GroupID
	Tick  tick.Tick
	Ops   []Action
}

// Mutation is one component value update (spec.md §4.7).
type Mutation struct {
	Entity       EntityID
	Kind         ComponentKind
	Payload      []byte
	BaselineTick *tick.Tick // set when Kind is delta-compressed
}

// MutationsMessage gathers every Mutate for one replication group in one
// send pass, carried on an unreliable-with-ack channel.
type MutationsMessage struct {
	Group GroupID
	Tick  tick.Tick
	Muts  []Mutation
}

// ClientKnowledge tracks, per client, which component kinds the sender
// believes that client currently holds for each known entity, so the next
// pass can diff against it.
type ClientKnowledge struct {
	entities map[EntityID]map[ComponentKind]struct{}
}

func NewClientKnowledge() *ClientKnowledge {
	return &ClientKnowledge{entities: make(map[EntityID]map[ComponentKind]struct{})}
}

func (k *ClientKnowledge) forget(entity EntityID) { delete(k.entities, entity) }

// ComponentSource supplies the sender with one entity's current component
// values and whether each has mutated since the last send to any client
// (the EntityWorld collaborator's change-tracking counter, spec.md §6).
type ComponentSource interface {
	Components(entity EntityID) map[ComponentKind]any
	Changed(entity EntityID, kind ComponentKind) bool
	// BaselineTick reports the delta-compression baseline tick to carry on
	// a mutation for (entity, kind), if that kind is delta-compressed and a
	// baseline currently exists (spec.md §4.8).
	BaselineTick(entity EntityID, kind ComponentKind) (tick.Tick, bool)
}

// Sender computes diffs per client and emits grouped Actions/Mutations
// messages (spec.md §4.7 "Sender pass").
type Sender struct {
	registry   *Registry
	groups     *GroupAssignment
	visibility *VisibilityTracker
	knowledge  map[PeerKey]*ClientKnowledge
}

func NewSender(registry *Registry, groups *GroupAssignment, visibility *VisibilityTracker) *Sender {
	return &Sender{registry: registry, groups: groups, visibility: visibility, knowledge: make(map[PeerKey]*ClientKnowledge)}
}

func (s *Sender) knowledgeFor(peer PeerKey) *ClientKnowledge {
	k, ok := s.knowledge[peer]
	if !ok {
		k = NewClientKnowledge()
		s.knowledge[peer] = k
	}
	return k
}

// Pass computes this tick's Actions/Mutations messages for one client,
// given the set of entities currently visible to it and a ComponentSource
// for reading values. One ActionsMessage/MutationsMessage is produced per
// non-empty replication group.
func (s *Sender) Pass(peer PeerKey, now tick.Tick, visible map[EntityID]struct{}, src ComponentSource) ([]ActionsMessage, []MutationsMessage, error) {
	know := s.knowledgeFor(peer)
	transitions := s.visibility.Update(peer, visible)

	actionsByGroup := make(map[GroupID][]Action)
	mutsByGroup := make(map[GroupID][]Mutation)

	addAction := func(entity EntityID, a Action) {
		g := s.groups.GroupOf(entity)
		actionsByGroup[g] = append(actionsByGroup[g], a)
	}
	addMutation := func(entity EntityID, m Mutation) {
		g := s.groups.GroupOf(entity)
		mutsByGroup[g] = append(mutsByGroup[g], m)
	}

	for entity, transition := range transitions {
		switch transition {
		case TransitionLost:
			addAction(entity, Action{Kind: OpDespawn, Entity: entity})
			know.forget(entity)

		case TransitionGained:
			comps := src.Components(entity)
			kinds := make([]ComponentKind, 0, len(comps))
			have := make(map[ComponentKind]struct{}, len(comps))
			for kind := range comps {
				kinds = append(kinds, kind)
				have[kind] = struct{}{}
			}
			addAction(entity, Action{Kind: OpSpawn, Entity: entity, Kinds: kinds})
			for kind, value := range comps {
				vt, ok := s.registry.Lookup(kind)
				if !ok {
					return nil, nil, unknownComponentErr(kind)
				}
				b, err := vt.Serialize(value)
				if err != nil {
					return nil, nil, err
				}
				addAction(entity, Action{Kind: OpInsert, Entity: entity, Comp: kind, Payload: b})
			}
			know.entities[entity] = have

		case TransitionMaintained:
			comps := src.Components(entity)
			prevHave := know.entities[entity]
			if prevHave == nil {
				prevHave = make(map[ComponentKind]struct{})
			}
			nowHave := make(map[ComponentKind]struct{}, len(comps))
			for kind, value := range comps {
				nowHave[kind] = struct{}{}
				vt, ok := s.registry.Lookup(kind)
				if !ok {
					return nil, nil, unknownComponentErr(kind)
				}
				_, wasPresent := prevHave[kind]
				if !wasPresent {
					b, err := vt.Serialize(value)
					if err != nil {
						return nil, nil, err
					}
					addAction(entity, Action{Kind: OpInsert, Entity: entity, Comp: kind, Payload: b})
					continue
				}
				if !src.Changed(entity, kind) {
					continue
				}
				b, err := vt.Serialize(value)
				if err != nil {
					return nil, nil, err
				}
				m := Mutation{Entity: entity, Kind: kind, Payload: b}
				if bt, ok := src.BaselineTick(entity, kind); ok {
					m.BaselineTick = &bt
				}
				addMutation(entity, m)
			}
			for kind := range prevHave {
				if _, still := nowHave[kind]; !still {
					addAction(entity, Action{Kind: OpRemove, Entity: entity, Comp: kind})
				}
			}
			know.entities[entity] = nowHave
		}
	}

	var actions []ActionsMessage
	for g, ops := range actionsByGroup {
		actions = append(actions, ActionsMessage{Group: g, Tick: now, Ops: ops})
	}
	var muts []MutationsMessage
	for g, ms := range mutsByGroup {
		muts = append(muts, MutationsMessage{Group: g, Tick: now, Muts: ms})
	}
	return actions, muts, nil
}

// Forget drops all per-client state for peer, e.g. on disconnect.
func (s *Sender) Forget(peer PeerKey) {
	delete(s.knowledge, peer)
	s.visibility.Forget(peer)
}
