package tick

import "testing"

func TestSubWrapAround(t *testing.T) {
	a := Tick(5)
	b := Tick(65530) // 11 ticks before a, modulo 2^16
	if got := a.Sub(b); got != 11 {
		t.Errorf("a.Sub(b) = %d, want 11", got)
	}
	if !b.Before(a) {
		t.Errorf("expected %d before %d across wrap", b, a)
	}
}

func TestCompareAmbiguousAtHalfSpace(t *testing.T) {
	a := Tick(0)
	b := Tick(32768)
	if got := a.Compare(b); got != 0 {
		t.Errorf("Compare at exact half-space = %d, want 0 (ambiguous)", got)
	}
}

func TestCompareOrdering(t *testing.T) {
	if Tick(10).Compare(Tick(20)) != -1 {
		t.Errorf("expected 10 < 20")
	}
	if Tick(20).Compare(Tick(10)) != 1 {
		t.Errorf("expected 20 > 10")
	}
	if Tick(10).Compare(Tick(10)) != 0 {
		t.Errorf("expected 10 == 10")
	}
}

func TestAddWraps(t *testing.T) {
	t1 := Tick(65535)
	if got := t1.Add(1); got != 0 {
		t.Errorf("65535+1 = %d, want 0", got)
	}
}

func TestWrappedTimeSub(t *testing.T) {
	w1 := Now()
	w2 := w1.Add(50_000_000) // 50ms in ns
	if d := w2.Sub(w1); d.Milliseconds() != 50 {
		t.Errorf("delta = %v, want 50ms", d)
	}
}
