package captcha

import "testing"

func f(v float64) *float64 { return &v }

func TestAdaptiveRouterColdStartKeepsBaseOrder(t *testing.T) {
	r := NewAdaptiveRouter([]string{"a", "b"}, WithMinSamples(10))
	order, switched, changed := r.MaybeReorder([]string{"a", "b"}, 1)
	if switched || changed {
		t.Fatalf("expected no change during cold start with no samples, got order=%v switched=%v changed=%v", order, switched, changed)
	}
}

func TestAdaptiveRouterDegradesFailingHeadDuringColdStart(t *testing.T) {
	r := NewAdaptiveRouter([]string{"a", "b"}, WithMinSamples(10))
	for i := 0; i < 3; i++ {
		r.RecordAttempt("a", false, f(0.5), f(1.0))
	}
	order, _, changed := r.MaybeReorder([]string{"a", "b"}, 1)
	if !changed || order[0] != "b" {
		t.Fatalf("MaybeReorder() = %v changed=%v, want b promoted after a's fail streak", order, changed)
	}
}

func TestAdaptiveRouterSwitchesPrimaryOnBetterScore(t *testing.T) {
	r := NewAdaptiveRouter([]string{"a", "b"}, WithMinSamples(3), WithEpsilon(0.05))
	for i := 0; i < 10; i++ {
		r.RecordAttempt("a", false, f(1.0), f(1.0))
		r.RecordAttempt("b", true, f(0.1), f(0.1))
	}
	order, switched, changed := r.MaybeReorder([]string{"a", "b"}, 100)
	if !switched || !changed || order[0] != "b" {
		t.Fatalf("MaybeReorder() = %v switched=%v changed=%v, want b promoted to primary", order, switched, changed)
	}
}

func TestAdaptiveRouterFrozenSkipsReorder(t *testing.T) {
	r := NewAdaptiveRouter([]string{"a", "b"}, WithMinSamples(1))
	r.SetFrozen(true)
	for i := 0; i < 10; i++ {
		r.RecordAttempt("a", false, f(1.0), f(1.0))
		r.RecordAttempt("b", true, f(0.1), f(0.1))
	}
	order, switched, changed := r.MaybeReorder([]string{"a", "b"}, 100)
	if switched || changed || order[0] != "a" {
		t.Fatalf("MaybeReorder() while frozen = %v switched=%v changed=%v, want no-op", order, switched, changed)
	}
}

func TestAdaptiveRouterSnapshotRoundTrip(t *testing.T) {
	r := NewAdaptiveRouter([]string{"a", "b"}, WithMinSamples(1))
	r.RecordAttempt("a", true, f(0.3), f(0.4))
	r.RecordAttempt("a", false, f(0.5), f(0.6))

	snap := r.TakeSnapshot()

	r2 := NewAdaptiveRouter([]string{"a", "b"}, WithMinSamples(1))
	r2.LoadSnapshot(snap)
	snap2 := r2.TakeSnapshot()

	a1, a2 := snap.Stats["a"], snap2.Stats["a"]
	if a1.Count != a2.Count || a1.Success != a2.Success || a1.Failure != a2.Failure {
		t.Fatalf("snapshot round trip mismatch: %+v vs %+v", a1, a2)
	}
}

func TestAdaptiveRouterSelectProbeProviderPicksLeastSampled(t *testing.T) {
	r := NewAdaptiveRouter([]string{"a", "b"}, WithMinSamples(1))
	r.RecordAttempt("a", true, f(0.1), f(0.1))
	r.RecordAttempt("a", true, f(0.1), f(0.1))
	r.RecordAttempt("b", true, f(0.1), f(0.1))

	got := r.SelectProbeProvider([]string{"a", "b"})
	if got != "b" {
		t.Fatalf("SelectProbeProvider() = %q, want b (fewer samples)", got)
	}
}
