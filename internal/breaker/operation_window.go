package breaker

import (
	"strconv"
	"time"
)

// NextOperation describes when the next operation-window phase begins,
// as reported by a schedule cache.
type NextOperation struct {
	Phase string
	Start time.Time
}

// OperationWindowBreaker stretches the poll interval when the next
// known operation window (补退选/候补/补选) is far away, so the agent
// doesn't hammer the listing page for hours before registration opens.
// The mapping is piecewise by distance-to-start, matching the
// coarser-the-further-out shape operators rely on: minutes-level
// precision only matters once the window is imminent.
type OperationWindowBreaker struct {
	clock Clock
}

// NewOperationWindowBreaker builds a breaker using clock (RealClock if nil).
func NewOperationWindowBreaker(clock Clock) *OperationWindowBreaker {
	if clock == nil {
		clock = RealClock
	}
	return &OperationWindowBreaker{clock: clock}
}

// MinInterval returns the minimum poll interval implied by next,
// falling back to base when next is nil (no known future window, or
// the window has already started).
func (b *OperationWindowBreaker) MinInterval(next *NextOperation, base time.Duration) time.Duration {
	if next == nil {
		return base
	}
	delta := next.Start.Sub(b.clock.Now())
	switch {
	case delta <= 0:
		return base
	case delta >= 24*time.Hour:
		return clampMax(1800*time.Second, base)
	case delta >= 6*time.Hour:
		return clampMax(600*time.Second, base)
	case delta >= 2*time.Hour:
		return clampMax(120*time.Second, base)
	case delta >= 30*time.Minute:
		return clampMax(30*time.Second, base)
	case delta >= 5*time.Minute:
		return clampMax(10*time.Second, base)
	default:
		return base
	}
}

// clampMax never returns an interval shorter than the caller's base
// refresh interval: the operation-window breaker only ever lengthens
// the poll period, never shortens it below what the operator asked for.
func clampMax(candidate, base time.Duration) time.Duration {
	if candidate > base {
		return candidate
	}
	return base
}

// Reason renders a human-readable explanation of why the interval was
// stretched, used in logs and notifications.
func (b *OperationWindowBreaker) Reason(next *NextOperation) string {
	if next == nil {
		return ""
	}
	delta := next.Start.Sub(b.clock.Now())
	if delta <= 0 {
		return ""
	}
	return "next=" + next.Phase + "@" + next.Start.Format(time.RFC3339) +
		", delta=" + strconv.FormatInt(int64(delta.Truncate(time.Second).Seconds()), 10) + "s"
}
