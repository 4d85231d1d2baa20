package checksum

import (
	"testing"

	"github.com/tickforge/netsync/pkg/tick"
)

func TestDigestOrderIndependent(t *testing.T) {
	a := New()
	a.Add(1, 100, []byte("position"))
	a.Add(2, 100, []byte("velocity"))
	a.Add(1, 200, []byte("position"))

	b := New()
	b.Add(1, 200, []byte("position"))
	b.Add(1, 100, []byte("position"))
	b.Add(2, 100, []byte("velocity"))

	if a.Digest() != b.Digest() {
		t.Fatalf("expected order-independent digest, got %x vs %x", a.Digest(), b.Digest())
	}
	if a.Count() != b.Count() {
		t.Fatalf("expected equal counts, got %d vs %d", a.Count(), b.Count())
	}
}

func TestDigestDistinguishesEntityAndKind(t *testing.T) {
	a := New()
	a.Add(1, 100, []byte("same"))
	b := New()
	b.Add(1, 200, []byte("same"))
	if a.Digest() == b.Digest() {
		t.Fatal("different entities with identical payload must not collide")
	}

	c := New()
	c.Add(2, 100, []byte("same"))
	if a.Digest() == c.Digest() {
		t.Fatal("different component kinds with identical payload must not collide")
	}
}

func TestCompareDetectsCountMismatch(t *testing.T) {
	x := TickChecksum{Tick: tick.Tick(5), Digest: 42, Count: 2}
	y := TickChecksum{Tick: tick.Tick(5), Digest: 42, Count: 3}
	if Compare(x, y) {
		t.Fatal("expected mismatch on differing component counts")
	}
}

func TestCompareMatches(t *testing.T) {
	x := TickChecksum{Tick: tick.Tick(5), Digest: 7, Count: 1}
	y := TickChecksum{Tick: tick.Tick(5), Digest: 7, Count: 1}
	if !Compare(x, y) {
		t.Fatal("expected match")
	}
}

func TestHistoryComparesLateArrival(t *testing.T) {
	h := NewHistory()
	h.Record(TickChecksum{Tick: tick.Tick(100), Digest: 9, Count: 1})

	// A client checksum for tick 100 arrives several ticks late, after the
	// server has already moved on.
	h.Record(TickChecksum{Tick: tick.Tick(103), Digest: 1, Count: 1})

	match, found := h.CompareAt(TickChecksum{Tick: tick.Tick(100), Digest: 9, Count: 1})
	if !found || !match {
		t.Fatalf("expected tick 100 still retained and matching, found=%v match=%v", found, match)
	}
}

func TestHistoryPrunesPastLimit(t *testing.T) {
	h := NewHistory()
	h.Record(TickChecksum{Tick: tick.Tick(1), Digest: 1, Count: 1})
	h.Record(TickChecksum{Tick: tick.Tick(1 + HistoryLimit + 1), Digest: 2, Count: 1})

	if _, found := h.Lookup(tick.Tick(1)); found {
		t.Fatal("expected tick 1 to be pruned once history exceeds the retention limit")
	}
	if h.Len() != 1 {
		t.Fatalf("expected exactly the surviving entry, got %d", h.Len())
	}
}

func TestHistoryCompareAtReportsNotFoundWhenPruned(t *testing.T) {
	h := NewHistory()
	h.Record(TickChecksum{Tick: tick.Tick(1), Digest: 1, Count: 1})
	h.Record(TickChecksum{Tick: tick.Tick(1 + HistoryLimit + 1), Digest: 2, Count: 1})

	_, found := h.CompareAt(TickChecksum{Tick: tick.Tick(1), Digest: 1, Count: 1})
	if found {
		t.Fatal("expected a pruned tick to report not found rather than a stale match")
	}
}
