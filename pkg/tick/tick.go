// Package tick implements the wrap-aware 16-bit logical clock shared by
// peers: Tick values, signed TickDelta arithmetic, and WrappedTime for
// wall-clock ping timestamps.
package tick

import "time"

// Tick is a monotonically increasing 16-bit counter. Ordering and timing at
// the application layer is expressed entirely in ticks; comparisons wrap
// around modulo 2^16 and are only meaningful for ticks within half the
// space of each other.
type Tick uint16

// Delta is a signed count of ticks.
type Delta int32

// Duration converts a tick count to a time.Duration given the configured
// tick length.
func (d Delta) Duration(tickDuration time.Duration) time.Duration {
	return time.Duration(d) * tickDuration
}

// Add returns t shifted by d ticks, wrapping modulo 2^16.
func (t Tick) Add(d Delta) Tick {
	return Tick(int32(t) + int32(d))
}

// Sub returns the signed difference t - other, interpreted modulo 2^16.
// The result is ambiguous once the true separation exceeds half the tick
// space (32768); callers comparing ticks further apart than that should
// not rely on ordering.
func (t Tick) Sub(other Tick) Delta {
	return Delta(int16(t - other))
}

// Before reports whether t precedes other under wrap-aware comparison.
func (t Tick) Before(other Tick) bool {
	return t.Sub(other) < 0
}

// After reports whether t follows other under wrap-aware comparison.
func (t Tick) After(other Tick) bool {
	return t.Sub(other) > 0
}

// Compare returns -1, 0, or 1 as t is before, equal to, or after other.
// Comparisons spanning more than half the tick space (32767) are
// inherently ambiguous; per spec this implementation returns 0 (Equal)
// rather than guessing a direction.
func (t Tick) Compare(other Tick) int {
	d := t.Sub(other)
	switch {
	case d > 32767 || d < -32767:
		return 0
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

// wrappedEpoch is the reference instant WrappedTime values are measured
// from. It is process-local and only used for relative arithmetic, never
// serialized as an absolute instant.
var wrappedEpoch = time.Now()

// WrappedTime is a monotonic wall-clock timestamp used exclusively for
// ping round-trip arithmetic and time-sync calculations; it is never used
// to order simulation events (Tick is used for that).
type WrappedTime struct {
	nanosSinceEpoch int64
}

// Now returns the current WrappedTime.
func Now() WrappedTime {
	return WrappedTime{nanosSinceEpoch: int64(time.Since(wrappedEpoch))}
}

// Sub returns the duration elapsed from other to w. May be negative.
func (w WrappedTime) Sub(other WrappedTime) time.Duration {
	return time.Duration(w.nanosSinceEpoch - other.nanosSinceEpoch)
}

// Add returns w shifted by d.
func (w WrappedTime) Add(d time.Duration) WrappedTime {
	return WrappedTime{nanosSinceEpoch: w.nanosSinceEpoch + int64(d)}
}

// IsZero reports whether w is the zero value (never initialized).
func (w WrappedTime) IsZero() bool {
	return w.nanosSinceEpoch == 0
}
