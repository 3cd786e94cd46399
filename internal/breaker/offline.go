package breaker

import (
	"sync"
	"time"
)

// OfflineBreaker trips after a run of consecutive network failures,
// moving the agent into a slow health-probe loop instead of continuing
// to poll at full speed against a host that is plainly unreachable.
type OfflineBreaker struct {
	clock Clock

	threshold   int
	probeEvery  time.Duration
	observeFor  time.Duration

	mu         sync.Mutex
	streak     int
	offline    bool
	since      time.Time
	lastProbe  time.Time
}

// NewOfflineBreaker builds a breaker that trips after threshold
// consecutive failures and probes every probeEvery while offline. The
// first successful probe closes it; observeFor is the window the caller
// holds a raised minimum refresh interval for after recovery.
func NewOfflineBreaker(clock Clock, threshold int, probeEvery, observeFor time.Duration) *OfflineBreaker {
	if clock == nil {
		clock = RealClock
	}
	if threshold < 1 {
		threshold = 1
	}
	return &OfflineBreaker{clock: clock, threshold: threshold, probeEvery: probeEvery, observeFor: observeFor}
}

// RecordFailure registers a network-level failure (not an HTTP error
// response, a transport-level one: timeout, connection refused, DNS).
// Returns true the instant the breaker trips.
func (b *OfflineBreaker) RecordFailure() (tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streak++
	if !b.offline && b.streak >= b.threshold {
		b.offline = true
		b.since = b.clock.Now()
		return true
	}
	return false
}

// RecordSuccess clears the failure streak and, if currently offline,
// the first successful probe closes the breaker immediately. The
// caller is responsible for raising the post-recovery observation
// window (ObserveFor) on the shared cooldown gate.
func (b *OfflineBreaker) RecordSuccess() (recovered bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streak = 0
	if !b.offline {
		return false
	}
	b.offline = false
	return true
}

// IsOffline reports the current state.
func (b *OfflineBreaker) IsOffline() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offline
}

// ProbeEvery returns the configured interval between health probes
// while OFFLINE.
func (b *OfflineBreaker) ProbeEvery() time.Duration { return b.probeEvery }

// ObserveFor returns the configured observation window a recovered
// breaker holds a raised minimum refresh interval for.
func (b *OfflineBreaker) ObserveFor() time.Duration { return b.observeFor }

// ShouldProbe reports whether enough time has passed since the last
// probe to send another one, and marks the attempt as taken if so.
func (b *OfflineBreaker) ShouldProbe() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.offline {
		return false
	}
	now := b.clock.Now()
	if now.Sub(b.lastProbe) < b.probeEvery {
		return false
	}
	b.lastProbe = now
	return true
}
