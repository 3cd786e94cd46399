package captcha

import (
	"context"
	"fmt"
	"time"
)

// Chain orchestrates CAPTCHA recognition across a primary provider and
// its configured fallbacks, retrying the current provider natively
// before rotating to the next, and feeding every attempt into an
// AdaptiveRouter so the order can improve over time.
type Chain struct {
	providers      map[string]Recognizer
	order          []string
	nativeAttempts int
	router         *AdaptiveRouter
	validate       func(ctx context.Context, text string) (bool, error)
	sampler        *Sampler

	loopCount int
}

// ChainConfig configures NewChain.
type ChainConfig struct {
	Providers      map[string]Recognizer
	Order          []string // primary first, fallbacks after
	NativeAttempts int
	Router         *AdaptiveRouter
	// Validate submits a candidate solution to the site (or a dummy
	// local check) and reports whether it was accepted. When nil, every
	// non-empty recognition result is treated as accepted.
	Validate func(ctx context.Context, text string) (bool, error)
	Sampler  *Sampler
}

// NewChain builds a Chain from cfg.
func NewChain(cfg ChainConfig) *Chain {
	attempts := cfg.NativeAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Chain{
		providers:      cfg.Providers,
		order:          append([]string(nil), cfg.Order...),
		nativeAttempts: attempts,
		router:         cfg.Router,
		validate:       cfg.Validate,
		sampler:        cfg.Sampler,
	}
}

// HasProviders reports whether the chain has at least one provider.
func (c *Chain) HasProviders() bool { return len(c.order) > 0 }

// RotateForward permanently moves the current primary provider to the
// back of the order, used by switch-on-degrade to pick another primary
// once the chain degrades rather than waiting on the adaptive router's
// own score-based reordering.
func (c *Chain) RotateForward() {
	if len(c.order) < 2 {
		return
	}
	c.order = append(append([]string(nil), c.order[1:]...), c.order[0])
}

// Order returns the chain's current provider order (primary first).
func (c *Chain) Order() []string { return append([]string(nil), c.order...) }

// Attempt is one recognize-then-validate round against a single
// provider, returned from Solve for logging/sampling purposes.
type Attempt struct {
	Provider string
	Text     string
	Accepted bool
	Err      error
	Latency  time.Duration
}

// Solve tries providers in chain order, making up to nativeAttempts
// recognize+validate rounds against each before moving to the next. It
// returns the first accepted attempt, or ErrAllProvidersFailed if none
// succeeded. image is the raw CAPTCHA bytes; context deadline bounds
// the whole call, not each attempt.
func (c *Chain) Solve(ctx context.Context, image []byte) (Attempt, []Attempt, error) {
	return c.SolveWithValidate(ctx, image, c.validate)
}

// SolveWithValidate behaves like Solve but submits each candidate
// through validate instead of the chain's configured one. Callers that
// bind validation to a per-round HTTP session (the site's validate
// endpoint is session-scoped) use this to keep the Chain and its
// AdaptiveRouter state long-lived across sessions while still
// validating against whichever session is borrowing it this round.
func (c *Chain) SolveWithValidate(ctx context.Context, image []byte, validate func(ctx context.Context, text string) (bool, error)) (Attempt, []Attempt, error) {
	c.loopCount++
	if c.router != nil {
		if newOrder, _, changed := c.router.MaybeReorder(c.order, c.loopCount); changed {
			c.order = newOrder
		}
	}

	var history []Attempt
	for _, name := range c.order {
		recognizer, ok := c.providers[name]
		if !ok {
			continue
		}
		for i := 0; i < c.nativeAttempts; i++ {
			if ctx.Err() != nil {
				return Attempt{}, history, ctx.Err()
			}
			attempt := c.attemptOnce(ctx, name, recognizer, image, validate)
			history = append(history, attempt)
			if c.sampler != nil {
				c.sampler.Maybe(image, name, attempt.Accepted)
			}
			if attempt.Accepted {
				return attempt, history, nil
			}
		}
	}
	var lastErr error
	if len(history) > 0 {
		lastErr = history[len(history)-1].Err
	}
	return Attempt{}, history, &ErrAllProvidersFailed{Attempts: len(history), Last: lastErr}
}

func (c *Chain) attemptOnce(ctx context.Context, name string, recognizer Recognizer, image []byte, validate func(ctx context.Context, text string) (bool, error)) Attempt {
	start := time.Now()
	text, err := recognizer.Recognize(ctx, image)
	latency := time.Since(start)

	attempt := Attempt{Provider: name, Text: text, Latency: latency, Err: err}
	if err != nil {
		c.record(name, false, latency, nil)
		return attempt
	}

	accepted := text != ""
	var networkLatency *time.Duration
	if validate != nil {
		vStart := time.Now()
		ok, verr := validate(ctx, text)
		elapsed := time.Since(vStart)
		networkLatency = &elapsed
		if verr != nil {
			attempt.Err = verr
			c.record(name, false, latency, networkLatency)
			return attempt
		}
		accepted = ok
	}
	attempt.Accepted = accepted
	c.record(name, accepted, latency, networkLatency)
	return attempt
}

// record feeds one attempt's timings into the router: latency is the
// recognizer's own CPU-bound duration (t), hLatency is the validate
// request's network round-trip (h; the draw request is not timed), nil
// when no validate call happened (e.g. the recognizer itself failed
// before validation).
func (c *Chain) record(provider string, success bool, latency time.Duration, hLatency *time.Duration) {
	if c.router == nil {
		return
	}
	seconds := latency.Seconds()
	var hSeconds *float64
	if hLatency != nil {
		s := hLatency.Seconds()
		hSeconds = &s
	}
	c.router.RecordAttempt(provider, success, &seconds, hSeconds)
}

// String renders the chain's order for logs.
func (c *Chain) String() string {
	return fmt.Sprintf("chain(order=%v, native_attempts=%d)", c.order, c.nativeAttempts)
}
