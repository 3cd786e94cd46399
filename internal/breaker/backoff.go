package breaker

import "time"

// Backoff computes an additive delay on top of a caller-supplied base
// interval once a streak of errors crosses Threshold. It never collapses
// two independently configured Backoff instances into one: an auth
// backoff and a refresh backoff track unrelated failure streaks even
// though they share this type.
type Backoff struct {
	Threshold int           // errors before any extra delay is added
	Factor    time.Duration // extra delay added per error above Threshold
	Max       time.Duration // cap on the extra delay
}

// Extra returns the additional delay to add to a base interval given a
// consecutive-error count. Below Threshold it is always zero.
func (b Backoff) Extra(streak int) time.Duration {
	if streak <= b.Threshold {
		return 0
	}
	extra := time.Duration(streak-b.Threshold) * b.Factor
	if b.Max > 0 && extra > b.Max {
		return b.Max
	}
	return extra
}
