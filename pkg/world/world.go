// Package world implements the EntityWorld collaborator interface of
// spec.md §6 and a plain in-memory reference implementation with
// per-component change-tick tracking.
package world

import "github.com/tickforge/netsync/pkg/replication"

// EntityWorld is consumed, not implemented, by the core (spec.md §6).
type EntityWorld interface {
	// IterEntitiesWith yields every entity currently carrying every kind
	// in kinds, together with its component values and the tick it was
	// last changed.
	IterEntitiesWith(kinds []replication.ComponentKind) []EntityView
	Insert(entity replication.EntityID, kind replication.ComponentKind, value any)
	Remove(entity replication.EntityID, kind replication.ComponentKind)
	Despawn(entity replication.EntityID)
	SpawnWith(components map[replication.ComponentKind]any) replication.EntityID
}

// EntityView is one entity's matched component set plus its change tick,
// as read by a replication sender pass.
type EntityView struct {
	Entity     replication.EntityID
	Components map[replication.ComponentKind]any
	ChangeTick uint64
}
