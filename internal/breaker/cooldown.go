package breaker

import (
	"context"
	"sync"
	"time"
)

// CooldownGate blocks callers until a deadline passes. Any number of
// goroutines can Raise a new deadline; only the furthest-out deadline
// wins, so repeated trips extend the cooldown rather than shortening it.
type CooldownGate struct {
	clock Clock
	mu    sync.Mutex
	until time.Time
}

// NewCooldownGate returns a gate that is initially open.
func NewCooldownGate(clock Clock) *CooldownGate {
	if clock == nil {
		clock = RealClock
	}
	return &CooldownGate{clock: clock}
}

// Raise extends the cooldown to at least now+d. A shorter d than the
// current remaining cooldown is a no-op.
func (g *CooldownGate) Raise(d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := g.clock.Now().Add(d)
	g.mu.Lock()
	if deadline.After(g.until) {
		g.until = deadline
	}
	g.mu.Unlock()
}

// Remaining returns how long until the gate opens, or 0 if already open.
func (g *CooldownGate) Remaining() time.Duration {
	g.mu.Lock()
	until := g.until
	g.mu.Unlock()
	if d := until.Sub(g.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// Wait blocks until the gate opens or ctx is done, whichever comes
// first. Returns ctx.Err() on cancellation.
func (g *CooldownGate) Wait(ctx context.Context) error {
	for {
		d := g.Remaining()
		if d == 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
