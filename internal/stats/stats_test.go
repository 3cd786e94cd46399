package stats

import (
	"testing"
	"time"
)

func TestIncAndCount(t *testing.T) {
	s := New()
	s.Inc("probe_attempt")
	s.Inc("probe_attempt")
	if got := s.Count("probe_attempt"); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
}

func TestSetGaugeOverwrites(t *testing.T) {
	s := New()
	s.SetGauge("pool_qsize", 3)
	s.SetGauge("pool_qsize", 5)
	if got := s.Gauge("pool_qsize"); got != 5 {
		t.Fatalf("Gauge() = %v, want 5", got)
	}
}

func TestRatePrunesOldEvents(t *testing.T) {
	s := New()
	// Inject a stale event directly, bypassing RecordEvent's time.Now().
	s.mu.Lock()
	s.rates["captcha_attempt"] = []time.Time{time.Now().Add(-2 * rateWindow)}
	s.mu.Unlock()

	if got := s.Rate("captcha_attempt"); got != 0 {
		t.Fatalf("Rate() = %v, want 0 after pruning stale event", got)
	}
}

func TestRateCountsRecentEvents(t *testing.T) {
	s := New()
	s.RecordEvent("captcha_attempt")
	s.RecordEvent("captcha_attempt")

	if got := s.Rate("captcha_attempt"); got <= 0 {
		t.Fatalf("Rate() = %v, want > 0 for recent events", got)
	}
}

func TestSnapshotCopiesAllSeries(t *testing.T) {
	s := New()
	s.Inc("a")
	s.SetGauge("b", 1.5)
	s.RecordEvent("c")

	snap := s.Snapshot([]string{"c"})
	if snap.Counts["a"] != 1 || snap.Gauges["b"] != 1.5 {
		t.Fatalf("Snapshot() = %+v, missing expected fields", snap)
	}
	if _, ok := snap.Rates["c"]; !ok {
		t.Fatalf("Snapshot() rates missing key c")
	}
}
