package checksum

import "github.com/tickforge/netsync/pkg/tick"

// HistoryLimit is how many ticks of the server's own computed checksums
// are retained for comparison against late-arriving client checksums
// (spec.md §4.9 "Server": "history older than 30 ticks ... pruned").
const HistoryLimit = 30

// History is the server-side store of its own authoritative per-tick
// checksums, kept around long enough for a client's own TickChecksum
// (which may arrive several ticks late over an unreliable channel) to
// still be compared against what the server actually computed for that
// tick.
type History struct {
	entries map[tick.Tick]TickChecksum
}

func NewHistory() *History {
	return &History{entries: make(map[tick.Tick]TickChecksum)}
}

// Record stores cs, then prunes anything more than HistoryLimit ticks
// older than cs.Tick. Ticks are expected to arrive in non-decreasing
// order, since the prune window is anchored to the tick just recorded.
func (h *History) Record(cs TickChecksum) {
	h.entries[cs.Tick] = cs
	for t := range h.entries {
		if int(cs.Tick.Sub(t)) > HistoryLimit {
			delete(h.entries, t)
		}
	}
}

// Lookup returns the checksum the server computed for t, if it is still
// within the retained history window.
func (h *History) Lookup(t tick.Tick) (TickChecksum, bool) {
	cs, ok := h.entries[t]
	return cs, ok
}

// CompareAt compares a late-arriving checksum against the server's own
// stored checksum for the same tick. found is false if the server's
// history no longer retains that tick (too old, or never computed),
// in which case match is meaningless.
func (h *History) CompareAt(other TickChecksum) (match, found bool) {
	cs, ok := h.Lookup(other.Tick)
	if !ok {
		return false, false
	}
	return Compare(cs, other), true
}

// Len reports how many ticks of checksum history are currently retained,
// for diagnostics.
func (h *History) Len() int { return len(h.entries) }
