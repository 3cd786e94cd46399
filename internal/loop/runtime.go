// Package loop wires every other package into the three long-lived
// tasks described by the system: the Elective Loop, the Login Loop,
// and the optional CAPTCHA Probe. It owns no state of its own beyond
// what's needed to coordinate those tasks — sessions, breakers, and
// goal reconciliation all live in the packages they were built for.
package loop

import (
	"time"

	"github.com/pku-elective/autoelective/internal/breaker"
	"github.com/pku-elective/autoelective/internal/captcha"
	"github.com/pku-elective/autoelective/internal/config"
	"github.com/pku-elective/autoelective/internal/notify"
	"github.com/pku-elective/autoelective/internal/stats"
)

// Runtime bundles the cross-cutting collaborators every task needs,
// replacing what would otherwise be package-level singletons: config,
// clock, notifier, and stats. Clock defaults to breaker.RealClock;
// tests substitute a breaker.FakeClock to drive breakers deterministically.
type Runtime struct {
	Config   *config.Config
	Clock    breaker.Clock
	Notifier *notify.Notifier
	ErrorAgg *notify.ErrorAggregator
	Stats    *stats.Stats
}

// NewRuntime builds a Runtime from cfg with sensible collaborators: a
// real clock, a webhook notifier (no-op if cfg.NotifyWebhookURL is
// empty), and a fresh stats registry.
func NewRuntime(cfg *config.Config) *Runtime {
	pusher := notify.NewWebhookPusher(cfg.NotifyWebhookURL, cfg.NotifyTitlePrefix)
	notifier := notify.New(pusher, map[notify.Category]time.Duration{
		notify.CategoryDegrade:       cfg.NotifyDegradeInterval,
		notify.CategoryCritical:      cfg.NotifyCriticalInterval,
		notify.CategoryCourseSuccess: 0,
		notify.CategoryCourseSkip:    0,
		notify.CategoryOffline:       cfg.NotifyDegradeInterval,
	})
	return &Runtime{
		Config:   cfg,
		Clock:    breaker.RealClock,
		Notifier: notifier,
		ErrorAgg: notify.NewErrorAggregator(notifier, cfg.NotifyErrorAggInterval),
		Stats:    stats.New(),
	}
}

// Breakers groups the circuit-breaker hierarchy that the Elective and
// Login loops both consult. A single instance is shared between them
// so an auth failure observed by one affects the other's cooldown.
type Breakers struct {
	Cooldown  *breaker.CooldownGate
	Offline   *breaker.OfflineBreaker
	Window    *breaker.OperationWindowBreaker
	Auth      *breaker.AuthBreaker
	HTMLParse *breaker.HTMLParseBreaker
	Critical  *breaker.CriticalBreaker
	Degrade   *captcha.DegradeTracker
}

// NewBreakers builds the full breaker hierarchy from cfg's thresholds
// and cooldowns, sharing clock across all of them so tests can drive
// every breaker from one FakeClock.
func NewBreakers(cfg *config.Config, clock breaker.Clock) *Breakers {
	if clock == nil {
		clock = breaker.RealClock
	}
	return &Breakers{
		Cooldown:  breaker.NewCooldownGate(clock),
		Offline:   breaker.NewOfflineBreaker(clock, cfg.OfflineThreshold, cfg.OfflineProbeEvery, cfg.OfflineObserveFor),
		Window:    breaker.NewOperationWindowBreaker(clock),
		Auth:      breaker.NewAuthBreaker(clock, cfg.AuthFailThreshold, cfg.AuthCooldown),
		HTMLParse: breaker.NewHTMLParseBreaker(clock, cfg.HTMLParseThreshold, cfg.HTMLParseCooldown),
		Critical:  breaker.NewCriticalBreaker(clock, cfg.CriticalCooldown),
		Degrade:   captcha.NewDegradeTracker(cfg.CaptchaDegradeWindow, cfg.CaptchaDegradeCooldown, cfg.CaptchaDegradeFailures),
	}
}
