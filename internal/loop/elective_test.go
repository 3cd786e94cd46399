package loop

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/pku-elective/autoelective/internal/breaker"
	"github.com/pku-elective/autoelective/internal/captcha"
	"github.com/pku-elective/autoelective/internal/config"
	"github.com/pku-elective/autoelective/internal/course"
	"github.com/pku-elective/autoelective/internal/elective"
	"github.com/pku-elective/autoelective/internal/session"
	"github.com/pku-elective/autoelective/internal/stats"
)

func testIdentity(name string) course.Identity {
	return course.Identity{Name: name, ClassNo: "01", School: "school"}
}

func TestReconcileFiltersUnavailableAndDelayed(t *testing.T) {
	a, b, c := testIdentity("A"), testIdentity("B"), testIdentity("C")
	goals := course.NewGoalSet([]course.Identity{a, b, c})
	rules := course.Rules{Delay: map[course.Identity]int{c: 2}}
	l := &ElectiveLoop{goals: goals, rules: rules}

	listing := []course.Course{
		{Identity: a, MaxQuota: 10, UsedQuota: 10, Href: "/a"}, // full, not available
		{Identity: b, MaxQuota: 10, UsedQuota: 9, Href: "/b"},  // available
		{Identity: c, MaxQuota: 10, UsedQuota: 5, Href: "/c"},  // available but remaining(5) > delay threshold(2)
	}

	available := l.reconcile(listing)
	if len(available) != 1 || available[0].Identity != b {
		t.Fatalf("reconcile() = %v, want only B available", available)
	}
}

func TestReconcileAllowsDelayedCourseOnceUnderThreshold(t *testing.T) {
	c := testIdentity("C")
	goals := course.NewGoalSet([]course.Identity{c})
	rules := course.Rules{Delay: map[course.Identity]int{c: 5}}
	l := &ElectiveLoop{goals: goals, rules: rules}

	listing := []course.Course{{Identity: c, MaxQuota: 10, UsedQuota: 8, Href: "/c"}} // remaining = 2 <= 5
	available := l.reconcile(listing)
	if len(available) != 1 {
		t.Fatalf("reconcile() = %v, want C available once under delay threshold", available)
	}
}

func TestReconcileSkipsIgnoredGoals(t *testing.T) {
	a := testIdentity("A")
	goals := course.NewGoalSet([]course.Identity{a})
	goals.Ignore(a, course.ReasonElected)
	l := &ElectiveLoop{goals: goals, rules: course.Rules{}}

	listing := []course.Course{{Identity: a, MaxQuota: 10, UsedQuota: 0, Href: "/a"}}
	if available := l.reconcile(listing); len(available) != 0 {
		t.Fatalf("reconcile() = %v, want ignored goal excluded", available)
	}
}

func TestAnyElectedReportsGroupMember(t *testing.T) {
	a, b := testIdentity("A"), testIdentity("B")
	goals := course.NewGoalSet([]course.Identity{a, b})
	if anyElected(goals, []course.Identity{a, b}) {
		t.Fatalf("anyElected() = true before any election")
	}
	goals.Ignore(a, course.ReasonElected)
	if !anyElected(goals, []course.Identity{a, b}) {
		t.Fatalf("anyElected() = false, want true once A is elected")
	}
}

func TestAnyElectedIgnoresNonElectedReasons(t *testing.T) {
	a := testIdentity("A")
	goals := course.NewGoalSet([]course.Identity{a})
	goals.Ignore(a, course.ReasonMutexRules)
	if anyElected(goals, []course.Identity{a}) {
		t.Fatalf("anyElected() = true for a MutexRules ignore, want false")
	}
}

func TestClassifyValidateResponse(t *testing.T) {
	if !classifyValidateResponse([]byte(`{"valid":"2","msg":""}`)) {
		t.Fatalf("expected valid response to classify true")
	}
	if classifyValidateResponse([]byte(`{"valid":"0"}`)) {
		t.Fatalf("expected invalid response to classify false")
	}
}

func TestContainsBytes(t *testing.T) {
	if !containsBytes([]byte("hello world"), []byte("world")) {
		t.Fatalf("expected substring match")
	}
	if containsBytes([]byte("hello"), []byte("goodbye")) {
		t.Fatalf("expected no match")
	}
	if containsBytes([]byte("hi"), []byte("")) {
		t.Fatalf("empty needle should never match")
	}
}

func TestOutcomeLabel(t *testing.T) {
	if outcomeLabel(true) != "accepted" {
		t.Fatalf("outcomeLabel(true) = %q, want accepted", outcomeLabel(true))
	}
	if outcomeLabel(false) != "exhausted" {
		t.Fatalf("outcomeLabel(false) = %q, want exhausted", outcomeLabel(false))
	}
}

func TestCourseNames(t *testing.T) {
	a, b := testIdentity("A"), testIdentity("B")
	names := courseNames([]course.Course{{Identity: a}, {Identity: b}})
	if len(names) != 2 || names[0] != a.String() || names[1] != b.String() {
		t.Fatalf("courseNames() = %v", names)
	}
}

func newTestElectiveLoop(t *testing.T, clk breaker.Clock) *ElectiveLoop {
	t.Helper()
	cfg := &config.Config{RefreshInterval: 5 * time.Second, RefreshJitter: 0}
	breakers := NewBreakers(cfg, clk)
	rt := &Runtime{Config: cfg, Clock: clk, Stats: stats.New()}
	return &ElectiveLoop{cfg: cfg, rt: rt, breakers: breakers}
}

func TestSleepForUsesJitteredBaseWhenNoBreakerPressure(t *testing.T) {
	clk := breaker.NewFakeClock(time.Unix(0, 0))
	l := newTestElectiveLoop(t, clk)
	got := l.sleepFor("ok")
	if got != 5*time.Second {
		t.Fatalf("sleepFor() = %v, want exactly base 5s with zero jitter", got)
	}
}

func TestSleepForHonorsCooldown(t *testing.T) {
	clk := breaker.NewFakeClock(time.Unix(0, 0))
	l := newTestElectiveLoop(t, clk)
	l.breakers.Cooldown.Raise(time.Minute)
	got := l.sleepFor("ok")
	if got != time.Minute {
		t.Fatalf("sleepFor() = %v, want cooldown-dominated 1m", got)
	}
}

func TestSleepForGrowsWithConsecutiveErrors(t *testing.T) {
	clk := breaker.NewFakeClock(time.Unix(0, 0))
	l := newTestElectiveLoop(t, clk)
	l.consecutiveErrors = 5
	got := l.sleepFor("network_error")
	if got <= 5*time.Second {
		t.Fatalf("sleepFor() = %v, want backoff to exceed base after consecutive errors", got)
	}
}

func TestAcquireUsableSessionDropsStaleGenerationAndNotLoggedIn(t *testing.T) {
	factory := func(kind session.Kind, generation int64) *session.Session {
		return session.New("prewarmed", generation, kind, "ua")
	}
	mgr := session.NewManager(factory, 2, 0, 1, time.Second)

	// Drain the two pre-warmed sessions, then feed back one that is
	// stale and one that is fresh-but-not-logged-in before a usable one.
	mgr.Acquire(session.KindElective)
	mgr.Acquire(session.KindElective)

	stale := session.New("stale", -1, session.KindElective, "ua")
	mgr.Return(stale) // dropped: generation -1 never matches the pool's current generation

	notLoggedIn := session.New("fresh", mgr.Generation(), session.KindElective, "ua")
	mgr.Return(notLoggedIn)

	usable := session.New("usable", mgr.Generation(), session.KindElective, "ua")
	usable.SetLoggedIn(true)
	usable.ExpiredAt = time.Now().Add(time.Hour)
	mgr.Return(usable)

	cfg := &config.Config{SessionTTL: time.Hour}
	l := &ElectiveLoop{cfg: cfg, sessions: mgr}

	got, err := l.acquireUsableSession(context.Background())
	if err != nil {
		t.Fatalf("acquireUsableSession() error = %v", err)
	}
	if got.ID != "usable" {
		t.Fatalf("acquireUsableSession() = %q, want the usable session to surface", got.ID)
	}
}

// erroringTransport fails every request, standing in for a drawServlet
// call against an unreachable host without any real network I/O.
type erroringTransport struct{}

func (erroringTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, fmt.Errorf("simulated transport failure")
}

func TestSolveCaptchaExhaustsAfterMaxAttempts(t *testing.T) {
	cfg := &config.Config{}
	l := &ElectiveLoop{
		cfg:      cfg,
		breakers: &Breakers{Degrade: captcha.NewDegradeTracker(time.Minute, time.Minute, 2)},
		chain:    captcha.NewChain(captcha.ChainConfig{Providers: map[string]captcha.Recognizer{}, Order: nil}),
	}
	client := elective.New("10000000", "secret", elective.WithHTTPClient(&http.Client{Transport: erroringTransport{}}))
	_, _, ok := l.solveCaptcha(context.Background(), client)
	if ok {
		t.Fatalf("solveCaptcha() with a client that always errors drawing should never succeed")
	}
}
