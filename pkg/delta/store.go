// Package delta implements spec.md §4.8: the shared sender-side
// DeltaStore of acknowledged baselines and the per-connection receiver
// history that reconstructs values from diffs against those baselines.
package delta

import (
	"sync"

	"github.com/tickforge/netsync/pkg/tick"
)

// Key identifies one delta-compressed component instance.
type Key struct {
	Kind   uint32
	Entity uint64
}

type storedValue struct {
	value    any
	ackCount int
}

// Store is the process-wide, shared `(ComponentKind, EntityId) ->
// BTreeMap<Tick, (value, ack_count)>` table of spec.md §3. Access is
// coarse-mutex-guarded per spec.md §9: the store is touched once per
// mutation per client, well within a lock's cost budget.
type Store struct {
	mu   sync.Mutex
	data map[Key]map[tick.Tick]*storedValue
}

func NewStore() *Store {
	return &Store{data: make(map[Key]map[tick.Tick]*storedValue)}
}

// Get returns the baseline value stored for key at t, if present.
func (s *Store) Get(key Key, t tick.Tick) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTick, ok := s.data[key]
	if !ok {
		return nil, false
	}
	v, ok := byTick[t]
	if !ok {
		return nil, false
	}
	return v.value, true
}

// Insert stores a fresh baseline value for key at t, with ackCount set to
// the number of recipients it was just sent to (spec.md §4.8 "Send").
func (s *Store) Insert(key Key, t tick.Tick, value any, numRecipients int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTick, ok := s.data[key]
	if !ok {
		byTick = make(map[tick.Tick]*storedValue)
		s.data[key] = byTick
	}
	byTick[t] = &storedValue{value: value, ackCount: numRecipients}
}

// ReceiveAck decrements the ack count for key at t; once it reaches zero,
// that tick and every older stored tick for key are freed (spec.md §4.8
// "Ack").
func (s *Store) ReceiveAck(key Key, t tick.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTick, ok := s.data[key]
	if !ok {
		return
	}
	v, ok := byTick[t]
	if !ok {
		return
	}
	v.ackCount--
	if v.ackCount > 0 {
		return
	}
	for other := range byTick {
		if !other.After(t) {
			delete(byTick, other)
		}
	}
	if len(byTick) == 0 {
		delete(s.data, key)
	}
}

// TickWrapCleanup drops any stored entry more than u16::MAX/2 behind
// current, preventing wrap-around ambiguity (spec.md §4.8 "Tick wrap
// cleanup"); callers invoke this every u16::MAX/3 ticks.
const WrapCleanupInterval = 65535 / 3
const wrapAmbiguityWindow = 65535 / 2

func (s *Store) TickWrapCleanup(current tick.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, byTick := range s.data {
		for t := range byTick {
			if uint16(current-t) > wrapAmbiguityWindow {
				delete(byTick, t)
			}
		}
		if len(byTick) == 0 {
			delete(s.data, key)
		}
	}
}

// Count reports how many stored entries exist for key, for diagnostics.
func (s *Store) Count(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data[key])
}

// LatestTick returns the most recent tick a value was Inserted for key,
// the sender's natural delta-compression baseline: diffing the next send
// against the most recently sent value keeps each diff small, falling
// back to a FromBase send only when nothing has been sent yet (spec.md
// §4.8 "Send").
func (s *Store) LatestTick(key Key) (tick.Tick, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTick, ok := s.data[key]
	if !ok || len(byTick) == 0 {
		return 0, false
	}
	var latest tick.Tick
	have := false
	for t := range byTick {
		if !have || latest.Before(t) {
			latest = t
			have = true
		}
	}
	return latest, have
}
