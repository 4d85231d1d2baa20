package wire

import "time"

// ReassemblyTTL is the default age after which an incomplete fragment
// buffer is dropped (spec.md §4.1, left implementation-defined by §9's
// open question; this repo sweeps lazily from the receive path, where
// pkg/session calls Sweep for each fragment it ingests, rather than on a
// background timer, matching the synchronous style of the rest of this
// package).
const ReassemblyTTL = 5 * time.Second

type reassemblyKey struct {
	channelID uint16
	messageID uint16
}

type reassemblyEntry struct {
	total      int
	have       int
	parts      [][]byte
	messageLen uint32
	lastSeen   time.Time
}

// Reassembler buffers fragments per (channel, message id) and emits the
// reconstructed payload once all fragments have arrived.
type Reassembler struct {
	entries map[reassemblyKey]*reassemblyEntry
	now     func() time.Time
}

func NewReassembler() *Reassembler {
	return &Reassembler{
		entries: make(map[reassemblyKey]*reassemblyEntry),
		now:     time.Now,
	}
}

// Add ingests one fragment. It returns (payload, true) once the message is
// complete.
func (r *Reassembler) Add(channelID uint16, frag FragmentData) ([]byte, bool) {
	key := reassemblyKey{channelID: channelID, messageID: frag.MessageID}
	e, ok := r.entries[key]
	if !ok {
		e = &reassemblyEntry{
			total:      int(frag.NumFragments),
			parts:      make([][]byte, frag.NumFragments),
			messageLen: frag.MessageLen,
		}
		r.entries[key] = e
	}
	if int(frag.FragmentID) >= len(e.parts) {
		return nil, false
	}
	if e.parts[frag.FragmentID] == nil {
		e.parts[frag.FragmentID] = append([]byte(nil), frag.FragmentBytes...)
		e.have++
	}
	e.lastSeen = r.now()
	if e.have < e.total {
		return nil, false
	}
	out := make([]byte, 0, e.messageLen)
	for _, p := range e.parts {
		out = append(out, p...)
	}
	delete(r.entries, key)
	return out, true
}

// Sweep drops reassembly buffers older than ttl. Called opportunistically
// from the receive path (pkg/session calls it before adding each fragment).
func (r *Reassembler) Sweep(ttl time.Duration) {
	now := r.now()
	for k, e := range r.entries {
		if now.Sub(e.lastSeen) > ttl {
			delete(r.entries, k)
		}
	}
}

// Pending returns the number of in-flight reassembly buffers, for metrics.
func (r *Reassembler) Pending() int {
	return len(r.entries)
}
