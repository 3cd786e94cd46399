package loop

import (
	"math/rand"
	"time"
)

// minRefreshInterval is the hard floor every jittered/backed-off sleep
// is clamped to, regardless of configuration.
const minRefreshInterval = 1 * time.Second

// JitteredRefresh returns base randomized by ±deviation (a fraction of
// base, e.g. 0.2 = ±20%), clamped to [minRefreshInterval, ∞). This is
// the "refresh interval" half of spec §4.1: base ± base·deviation·U(-1,1).
func JitteredRefresh(base time.Duration, deviation float64) time.Duration {
	if deviation <= 0 {
		return clampMinRefresh(base)
	}
	spread := float64(base) * deviation
	offset := (rand.Float64()*2 - 1) * spread
	d := time.Duration(float64(base) + offset)
	return clampMinRefresh(d)
}

func clampMinRefresh(d time.Duration) time.Duration {
	if d < minRefreshInterval {
		return minRefreshInterval
	}
	return d
}

// ErrorBackoff computes the extended sleep after consecutiveErrors
// have accumulated past threshold, following spec §4.1's backoff
// formula: sleep' = base + base·(factor^(errors-threshold+1) - 1),
// clamped to base+maxExtra. Returns base unchanged while errors are at
// or below threshold.
func ErrorBackoff(base time.Duration, consecutiveErrors, threshold int, factor float64, maxExtra time.Duration) time.Duration {
	if consecutiveErrors <= threshold {
		return base
	}
	exp := consecutiveErrors - threshold + 1
	extra := float64(base) * (pow(factor, exp) - 1)
	if extra < 0 {
		extra = 0
	}
	if extra > float64(maxExtra) {
		extra = float64(maxExtra)
	}
	return base + time.Duration(extra)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
