package replication

// GroupID identifies a ReplicationGroup: a set of entities delivered as a
// unit so component references between them stay consistent on the
// receiving side (spec.md §3/§5).
type GroupID uint64

// GroupAssignment maps entities to their replication groups. Entities
// never explicitly assigned a group default to their own entity id as
// their group id — a singleton group — per original_source's replication
// crate, which does the same when no explicit group is configured.
type GroupAssignment struct {
	explicit map[EntityID]GroupID
}

func NewGroupAssignment() *GroupAssignment {
	return &GroupAssignment{explicit: make(map[EntityID]GroupID)}
}

// Assign places entity into an explicit group, e.g. a vehicle and its
// passengers.
func (g *GroupAssignment) Assign(entity EntityID, group GroupID) {
	g.explicit[entity] = group
}

// GroupOf resolves entity's group, defaulting to GroupID(entity).
func (g *GroupAssignment) GroupOf(entity EntityID) GroupID {
	if gid, ok := g.explicit[entity]; ok {
		return gid
	}
	return GroupID(entity)
}

// GroupPriority holds the per-group send priority (spec.md §3); defaults to 1.0
// when unset.
type GroupPriority struct {
	byGroup map[GroupID]float32
}

func NewGroupPriority() *GroupPriority {
	return &GroupPriority{byGroup: make(map[GroupID]float32)}
}

func (p *GroupPriority) Set(group GroupID, priority float32) {
	p.byGroup[group] = priority
}

func (p *GroupPriority) Get(group GroupID) float32 {
	if v, ok := p.byGroup[group]; ok {
		return v
	}
	return 1.0
}
