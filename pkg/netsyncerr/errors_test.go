package netsyncerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(MalformedPacket, "decode packet", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	err := New(RollbackOverflow, "resolve rollback", fmt.Errorf("depth 40 exceeds max 15"))
	if !errors.Is(err, Sentinel(RollbackOverflow)) {
		t.Fatal("expected errors.Is to match by kind via Sentinel")
	}
	if errors.Is(err, Sentinel(MalformedPacket)) {
		t.Fatal("expected mismatched kind to not match")
	}
}

func TestKindStringIsStable(t *testing.T) {
	cases := map[Kind]string{
		TransportLost:         "transport_lost",
		DeltaBaselineMissing:  "delta_baseline_missing",
		BandwidthExhausted:    "bandwidth_exhausted",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
