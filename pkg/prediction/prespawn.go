package prediction

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/tickforge/netsync/pkg/tick"
)

// HashSpawn computes the matching hash for a pre-spawned entity: an
// order-independent mix is not required here (unlike the determinism
// checksum) since the hash identifies one specific spawn's defining
// component set, encoded in a fixed, caller-chosen field order. Spec.md
// §4.6 "pre-spawned entity matching" only requires client and server to
// derive the same hash from the same inputs; this hashes the tick the
// entity was spawned on together with the caller-supplied component
// bytes so that coincidentally-identical spawns on different ticks never
// collide.
func HashSpawn(spawnTick tick.Tick, componentBytes ...[]byte) uint64 {
	h := xxhash.New()
	var tb [2]byte
	binary.LittleEndian.PutUint16(tb[:], uint16(spawnTick))
	h.Write(tb[:])
	for _, b := range componentBytes {
		h.Write(b)
	}
	return h.Sum64()
}

// pendingSpawn is one client-predicted entity awaiting server confirmation.
type pendingSpawn struct {
	entity   uint64
	hash     uint64
	tick     tick.Tick
	seq      uint64 // local spawn order, for earliest-spawned tiebreak
}

// PreSpawnRegistry reconciles locally-predicted "pre-spawned" entities
// (e.g. a bullet a client spawns immediately on fire, before the server's
// authoritative spawn replicates back) against the server's confirmed
// spawn for the same tick and hash, per spec.md §4.6. On a hash collision
// between multiple local candidates, the earliest-spawned one wins the
// match (an Open Question decision: the spec does not mandate a tiebreak
// order).
type PreSpawnRegistry struct {
	pending []pendingSpawn
	seq     uint64
}

func NewPreSpawnRegistry() *PreSpawnRegistry { return &PreSpawnRegistry{} }

// RegisterLocal records a locally pre-spawned entity awaiting confirmation.
func (r *PreSpawnRegistry) RegisterLocal(entity uint64, spawnTick tick.Tick, hash uint64) {
	r.seq++
	r.pending = append(r.pending, pendingSpawn{entity: entity, hash: hash, tick: spawnTick, seq: r.seq})
}

// MatchResult reports the outcome of reconciling a server-confirmed spawn.
type MatchResult struct {
	Matched  bool
	Entity   uint64 // the local entity that should be treated as Confirmed
}

// Reconcile looks for a pending local pre-spawn at spawnTick with the
// given hash. The earliest-registered candidate is claimed and removed
// from the pending set; any other pending entries sharing that tick and
// hash are left for a later, separate confirmed spawn (distinct entities
// with coincidentally equal hashes are expected to be rare, per spec).
// If nothing matches, the server spawn should be treated as an ordinary
// newly-replicated entity.
func (r *PreSpawnRegistry) Reconcile(spawnTick tick.Tick, hash uint64) MatchResult {
	best := -1
	for i, p := range r.pending {
		if p.tick != spawnTick || p.hash != hash {
			continue
		}
		if best == -1 || p.seq < r.pending[best].seq {
			best = i
		}
	}
	if best == -1 {
		return MatchResult{}
	}
	entity := r.pending[best].entity
	r.pending = append(r.pending[:best], r.pending[best+1:]...)
	return MatchResult{Matched: true, Entity: entity}
}

// Expire drops pending pre-spawns older than cutoff that were never
// confirmed, e.g. because the server rejected the action entirely; the
// caller is expected to despawn the corresponding local entity.
func (r *PreSpawnRegistry) Expire(cutoff tick.Tick) []uint64 {
	var expired []uint64
	kept := r.pending[:0:0]
	for _, p := range r.pending {
		if p.tick.Before(cutoff) {
			expired = append(expired, p.entity)
			continue
		}
		kept = append(kept, p)
	}
	r.pending = kept
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}
