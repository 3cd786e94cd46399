package breaker

import (
	"sync"
	"time"
)

// StreakCooldownBreaker trips a CooldownGate once a run of same-kind
// errors reaches a threshold, and resets the streak on any success.
// AuthBreaker, HTMLParseBreaker and CriticalBreaker are all thin named
// wrappers around this shape; they differ only in threshold, cooldown
// length, and what the caller does when Trip fires (drain sessions,
// notify, etc).
type StreakCooldownBreaker struct {
	gate      *CooldownGate
	threshold int
	cooldown  time.Duration

	mu     sync.Mutex
	streak int
}

// NewStreakCooldownBreaker builds a breaker that raises its gate for
// cooldown once streak reaches threshold consecutive failures.
func NewStreakCooldownBreaker(clock Clock, threshold int, cooldown time.Duration) *StreakCooldownBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &StreakCooldownBreaker{gate: NewCooldownGate(clock), threshold: threshold, cooldown: cooldown}
}

// RecordFailure bumps the streak and trips the gate once threshold is
// reached. It returns true on every failure at or past the threshold,
// re-raising the gate each time, until RecordSuccess resets the streak.
func (b *StreakCooldownBreaker) RecordFailure() (tripped bool) {
	b.mu.Lock()
	b.streak++
	trip := b.streak >= b.threshold
	b.mu.Unlock()
	if trip {
		b.gate.Raise(b.cooldown)
	}
	return trip
}

// RecordSuccess resets the streak.
func (b *StreakCooldownBreaker) RecordSuccess() {
	b.mu.Lock()
	b.streak = 0
	b.mu.Unlock()
}

// Streak returns the current consecutive-failure count.
func (b *StreakCooldownBreaker) Streak() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streak
}

// Gate exposes the underlying cooldown gate, so callers can Wait on it
// or query Remaining.
func (b *StreakCooldownBreaker) Gate() *CooldownGate { return b.gate }

// AuthBreaker trips after repeated IAAA/login failures.
type AuthBreaker struct{ *StreakCooldownBreaker }

// NewAuthBreaker builds an AuthBreaker with the given threshold and cooldown.
func NewAuthBreaker(clock Clock, threshold int, cooldown time.Duration) *AuthBreaker {
	return &AuthBreaker{NewStreakCooldownBreaker(clock, threshold, cooldown)}
}

// HTMLParseBreaker trips after repeated classifier parse failures,
// which usually means the site changed its markup shape.
type HTMLParseBreaker struct{ *StreakCooldownBreaker }

// NewHTMLParseBreaker builds an HTMLParseBreaker.
func NewHTMLParseBreaker(clock Clock, threshold int, cooldown time.Duration) *HTMLParseBreaker {
	return &HTMLParseBreaker{NewStreakCooldownBreaker(clock, threshold, cooldown)}
}

// CriticalBreaker trips immediately (threshold 1) on unrecoverable
// outcomes such as "caught cheating" or an IAAA-level forbidden, and
// holds a long cooldown.
type CriticalBreaker struct{ *StreakCooldownBreaker }

// NewCriticalBreaker builds a CriticalBreaker with a long cooldown.
func NewCriticalBreaker(clock Clock, cooldown time.Duration) *CriticalBreaker {
	return &CriticalBreaker{NewStreakCooldownBreaker(clock, 1, cooldown)}
}
