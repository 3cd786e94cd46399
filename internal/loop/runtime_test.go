package loop

import (
	"testing"
	"time"

	"github.com/pku-elective/autoelective/internal/breaker"
	"github.com/pku-elective/autoelective/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		OfflineThreshold:       3,
		OfflineProbeEvery:      time.Minute,
		OfflineObserveFor:      5 * time.Minute,
		AuthFailThreshold:      3,
		AuthCooldown:           time.Minute,
		HTMLParseThreshold:     3,
		HTMLParseCooldown:      time.Minute,
		CriticalCooldown:       time.Hour,
		CaptchaDegradeWindow:   time.Minute,
		CaptchaDegradeCooldown: time.Minute,
	}
}

func TestNewRuntimeBuildsNonNilCollaborators(t *testing.T) {
	rt := NewRuntime(testConfig())
	if rt.Config == nil || rt.Notifier == nil || rt.ErrorAgg == nil || rt.Stats == nil {
		t.Fatalf("NewRuntime() left a nil collaborator: %+v", rt)
	}
	if rt.Clock == nil {
		t.Fatalf("NewRuntime() left Clock nil, want breaker.RealClock")
	}
}

func TestNewBreakersSharesClockAcrossHierarchy(t *testing.T) {
	clk := breaker.NewFakeClock(time.Unix(0, 0))
	b := NewBreakers(testConfig(), clk)
	if b.Cooldown == nil || b.Offline == nil || b.Window == nil || b.Auth == nil ||
		b.HTMLParse == nil || b.Critical == nil || b.Degrade == nil {
		t.Fatalf("NewBreakers() left a nil breaker: %+v", b)
	}

	// The cooldown gate counts down only when the shared fake clock is
	// advanced, proving it was wired to clk rather than to
	// breaker.RealClock.
	b.Cooldown.Raise(time.Hour)
	before := b.Cooldown.Remaining()
	clk.Advance(time.Hour)
	after := b.Cooldown.Remaining()
	if before != time.Hour || after != 0 {
		t.Fatalf("cooldown gate should follow the shared fake clock, got before=%v after=%v", before, after)
	}
}

func TestNewBreakersDefaultsNilClockToReal(t *testing.T) {
	b := NewBreakers(testConfig(), nil)
	if b.Cooldown == nil {
		t.Fatalf("NewBreakers(nil) should still build a usable hierarchy")
	}
}
