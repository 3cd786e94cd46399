package captcha

import (
	"sync"
	"time"
)

// DegradeTracker watches the recent CAPTCHA recognition streak
// (regardless of provider) and flags the subsystem as degraded once
// consecutive failures reach a threshold, so the caller can back off
// the whole elective loop rather than just rotating providers. A
// degrade is self-healing: once cooldown elapses, the streak resets
// and normal attempts resume.
type DegradeTracker struct {
	window    time.Duration
	cooldown  time.Duration
	threshold int // consecutive failures that trip degrade

	mu         sync.Mutex
	streak     int
	lastAt     time.Time
	degradedAt time.Time
	isDegraded bool
	onTrip     func()
}

// NewDegradeTracker builds a tracker. threshold is the number of
// consecutive recognition failures that trips degrade; window bounds
// how long a failure streak stays live before a gap resets it (a
// failure seen long after the last one doesn't compound toward an old
// streak).
func NewDegradeTracker(window, cooldown time.Duration, threshold int) *DegradeTracker {
	if threshold <= 0 {
		threshold = 2
	}
	return &DegradeTracker{window: window, cooldown: cooldown, threshold: threshold}
}

// SetOnTrip registers a callback invoked the instant the tracker
// transitions into the degraded state, used to advance the provider
// chain when switch-on-degrade is configured. Overwrites any
// previously registered callback.
func (d *DegradeTracker) SetOnTrip(fn func()) {
	d.mu.Lock()
	d.onTrip = fn
	d.mu.Unlock()
}

// RecordSuccess registers a successful attempt.
func (d *DegradeTracker) RecordSuccess() { d.record(true) }

// RecordFailure registers a failed attempt.
func (d *DegradeTracker) RecordFailure() { d.record(false) }

func (d *DegradeTracker) record(success bool) {
	now := time.Now()
	d.mu.Lock()

	if d.isDegraded {
		if now.Sub(d.degradedAt) >= d.cooldown {
			d.isDegraded = false
			d.streak = 0
		}
		d.mu.Unlock()
		return
	}

	if !d.lastAt.IsZero() && now.Sub(d.lastAt) >= d.window {
		d.streak = 0
	}
	d.lastAt = now

	if success {
		d.streak = 0
		d.mu.Unlock()
		return
	}
	d.streak++
	var fire func()
	if d.streak >= d.threshold {
		d.isDegraded = true
		d.degradedAt = now
		fire = d.onTrip
	}
	d.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// IsDegraded reports the current degrade state, clearing it (and the
// streak) once cooldown has elapsed since the trip.
func (d *DegradeTracker) IsDegraded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isDegraded && time.Since(d.degradedAt) >= d.cooldown {
		d.isDegraded = false
		d.streak = 0
	}
	return d.isDegraded
}

// CooldownRemaining reports how much longer the degrade will hold, or 0
// if not currently degraded.
func (d *DegradeTracker) CooldownRemaining() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isDegraded {
		return 0
	}
	if r := d.cooldown - time.Since(d.degradedAt); r > 0 {
		return r
	}
	return 0
}
