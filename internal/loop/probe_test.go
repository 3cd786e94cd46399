package loop

import (
	"context"
	"testing"
	"time"

	"github.com/pku-elective/autoelective/internal/breaker"
	"github.com/pku-elective/autoelective/internal/captcha"
	"github.com/pku-elective/autoelective/internal/config"
	"github.com/pku-elective/autoelective/internal/session"
)

func newTestProbeLoop(cfg *config.Config, breakers *Breakers, mgr *session.Manager) *ProbeLoop {
	chain := captcha.NewChain(captcha.ChainConfig{Providers: map[string]captcha.Recognizer{}, Order: nil})
	return NewProbeLoop(cfg, breakers, mgr, chain, nil)
}

func TestProbeOnceNoopsWhenOffline(t *testing.T) {
	clk := breaker.NewFakeClock(time.Unix(0, 0))
	cfg := testConfig()
	breakers := NewBreakers(cfg, clk)
	for i := 0; i < cfg.OfflineThreshold; i++ {
		breakers.Offline.RecordFailure()
	}
	if !breakers.Offline.IsOffline() {
		t.Fatalf("test setup failed: breaker should be offline after %d failures", cfg.OfflineThreshold)
	}

	factory := func(kind session.Kind, generation int64) *session.Session {
		return session.New("probe", generation, kind, "ua")
	}
	mgr := session.NewManager(factory, 0, 1, 1, time.Second)

	p := newTestProbeLoop(cfg, breakers, mgr)
	p.probeOnce(context.Background())

	if mgr.Stats().Probe != 1 {
		t.Fatalf("probeOnce() should not have touched the probe pool while offline, stats=%v", mgr.Stats())
	}
}

func TestProbeOnceReturnsNotLoggedInSessionToRelogin(t *testing.T) {
	clk := breaker.NewFakeClock(time.Unix(0, 0))
	cfg := testConfig()
	breakers := NewBreakers(cfg, clk)

	factory := func(kind session.Kind, generation int64) *session.Session {
		return session.New("probe", generation, kind, "ua")
	}
	mgr := session.NewManager(factory, 0, 1, 2, time.Second)

	p := newTestProbeLoop(cfg, breakers, mgr)
	p.probeOnce(context.Background())

	stats := mgr.Stats()
	if stats.Probe != 0 || stats.Relogin != 2 {
		t.Fatalf("probeOnce() on a not-logged-in session should route it to relogin, stats=%v", stats)
	}
}

func TestProbeOnceSkipsWhenRouterFrozen(t *testing.T) {
	clk := breaker.NewFakeClock(time.Unix(0, 0))
	cfg := testConfig()
	breakers := NewBreakers(cfg, clk)

	factory := func(kind session.Kind, generation int64) *session.Session {
		return session.New("probe", generation, kind, "ua")
	}
	mgr := session.NewManager(factory, 0, 1, 1, time.Second)

	router := captcha.NewAdaptiveRouter(nil)
	router.SetFrozen(true)
	chain := captcha.NewChain(captcha.ChainConfig{Providers: map[string]captcha.Recognizer{}, Order: nil})
	p := NewProbeLoop(cfg, breakers, mgr, chain, router)
	p.probeOnce(context.Background())

	if mgr.Stats().Probe != 1 {
		t.Fatalf("probeOnce() should leave the probe session untouched while the router is frozen, stats=%v", mgr.Stats())
	}
}
