// Package replication implements spec.md §4.7: the replication
// sender/receiver pair that turns entity/component state into
// Spawn/Despawn/Insert/Remove/Mutate operations, grouped, visibility-
// filtered, and acknowledged.
package replication

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
)

// ComponentKind is the 32-bit id a component type is registered under
// (spec.md §9 "polymorphism over component kinds").
type ComponentKind uint32

// EntityID is opaque to this package; it is whatever the EntityWorld
// collaborator uses to name an entity.
type EntityID uint64

// VTable holds the registry's function-pointer set for one component
// kind, looked up by ComponentKind rather than via interface dispatch so
// the registry can stay a flat, immutable-after-startup table (spec.md
// §9).
type VTable struct {
	Serialize   func(value any) ([]byte, error)
	Deserialize func(data []byte) (any, error)
	// MapEntities rewrites any entity references a component value holds,
	// using lookup for local<->remote translation (spec.md §9 "cyclic
	// references between entities"). Optional: nil if the component never
	// references other entities.
	MapEntities func(value any, lookup func(EntityID) EntityID) any
	// Diff and ApplyDiff implement the Diffable contract for
	// delta-compressed components (spec.md §4.8). Both nil if the
	// component kind is never delta-compressed.
	Diff      func(base, next any) ([]byte, error)
	ApplyDiff func(base any, delta []byte) (any, error)
	BaseValue func() any
}

// Registry maps ComponentKind to its VTable. Immutable after startup
// (spec.md §5), safe for concurrent reads without synchronization.
type Registry struct {
	kinds map[ComponentKind]VTable
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[ComponentKind]VTable)}
}

// Register installs a component kind's vtable. Diffable components should
// set Diff/ApplyDiff/BaseValue; others may leave them nil.
func (r *Registry) Register(kind ComponentKind, vt VTable) {
	r.kinds[kind] = vt
}

func (r *Registry) Lookup(kind ComponentKind) (VTable, bool) {
	vt, ok := r.kinds[kind]
	return vt, ok
}

// RegisterCBOR registers a component kind using the default cbor codec
// (spec.md §6 "Component and message payloads are opaque to the framer
// and encoded by the registered serializer for that kind" — cbor is the
// default serializer this implementation wires in).
func RegisterCBOR[T any](r *Registry, kind ComponentKind) {
	r.Register(kind, VTable{
		Serialize: func(value any) ([]byte, error) {
			return cbor.Marshal(value)
		},
		Deserialize: func(data []byte) (any, error) {
			var v T
			if err := cbor.Unmarshal(data, &v); err != nil {
				return nil, fmt.Errorf("replication: cbor decode kind %v: %w", kind, err)
			}
			return v, nil
		},
	})
}

// HashComponent computes the default per-component hash used by
// pkg/checksum's caller when no custom Hash vtable entry is registered:
// xxhash of the serialized bytes.
func HashComponent(vt VTable, value any) (uint64, error) {
	b, err := vt.Serialize(value)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(b), nil
}
