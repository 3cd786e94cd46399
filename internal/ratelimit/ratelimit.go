// Package ratelimit throttles outbound requests to the elective site:
// one global bucket plus one bucket per host, so a burst against the
// listing page can't starve the login host and vice versa.
package ratelimit

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a global token bucket and a set of lazily created
// per-host buckets. A Limiter with rate <= 0 is disabled and Consume
// always returns immediately with zero wait, matching the original
// throttle() contract where a non-positive rate turns limiting off.
type Limiter struct {
	rate     rate.Limit
	burst    int
	disabled bool

	global *rate.Limiter

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// New builds a Limiter. ratePerSec <= 0 disables limiting entirely.
func New(ratePerSec float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rate:     rate.Limit(ratePerSec),
		burst:    burst,
		disabled: ratePerSec <= 0,
		hosts:    make(map[string]*rate.Limiter),
	}
	if !l.disabled {
		l.global = rate.NewLimiter(l.rate, burst)
	}
	return l
}

func (l *Limiter) hostLimiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.hosts[host]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.hosts[host] = lim
	}
	return lim
}

// Consume blocks until both the global and the per-host bucket for
// rawURL's host have a token available, and returns the total time
// spent waiting. A disabled Limiter always returns (0, nil)
// immediately.
func (l *Limiter) Consume(ctx context.Context, rawURL string) (time.Duration, error) {
	if l.disabled {
		return 0, nil
	}
	host := hostOf(rawURL)
	start := time.Now()

	if err := l.global.Wait(ctx); err != nil {
		return time.Since(start), err
	}
	if err := l.hostLimiter(host).Wait(ctx); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
