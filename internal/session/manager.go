package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Factory creates a fresh session for the given kind and pool
// generation. It is supplied by the caller (cmd/autoelective) and picks
// the user-agent itself, so this package doesn't need to know how
// user-agents are chosen.
type Factory func(kind Kind, generation int64) *Session

// Manager owns the three bounded session pools (elective, probe,
// relogin) plus the monotonic generation counter used to detect and
// drop sessions that belong to a pool generation that has since been
// reset. Mirrors the pre-warm / bounded-channel / background-health
// shape of a browser connection pool, applied to plain HTTP sessions.
type Manager struct {
	factory Factory

	electiveSize int
	probeSize    int
	reloginSize  int

	generation atomic.Int64

	mu           sync.Mutex
	elective     chan *Session
	probe        chan *Session
	relogin      chan *Session
	resetting    atomic.Bool
	lastResetAt  time.Time
	resetCooldown time.Duration

	closed atomic.Bool
}

// NewManager builds pools of the given sizes and fills them via
// factory. reloginSize is forced to at least 1: the login loop always
// needs somewhere to put a freshly authenticated session.
func NewManager(factory Factory, electiveSize, probeSize, reloginSize int, resetCooldown time.Duration) *Manager {
	if reloginSize < 1 {
		reloginSize = 1
	}
	m := &Manager{
		factory:       factory,
		electiveSize:  electiveSize,
		probeSize:     probeSize,
		reloginSize:   reloginSize,
		resetCooldown: resetCooldown,
	}
	m.populate()
	return m
}

func (m *Manager) populate() {
	gen := m.generation.Load()
	m.elective = make(chan *Session, max(1, m.electiveSize))
	for i := 0; i < m.electiveSize; i++ {
		m.elective <- m.factory(KindElective, gen)
	}
	m.probe = make(chan *Session, max(1, m.probeSize))
	for i := 0; i < m.probeSize; i++ {
		m.probe <- m.factory(KindProbe, gen)
	}
	m.relogin = make(chan *Session, max(1, m.reloginSize))
	for i := 0; i < m.reloginSize; i++ {
		m.relogin <- m.factory(KindRelogin, gen)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (m *Manager) poolFor(kind Kind) chan *Session {
	switch kind {
	case KindElective:
		return m.elective
	case KindProbe:
		return m.probe
	default:
		return m.relogin
	}
}

// Acquire blocks until a session of the given kind is available.
func (m *Manager) Acquire(kind Kind) *Session {
	return <-m.poolFor(kind)
}

// TryAcquire returns a session of the given kind if one is immediately
// available, or nil otherwise.
func (m *Manager) TryAcquire(kind Kind) *Session {
	select {
	case s := <-m.poolFor(kind):
		return s
	default:
		return nil
	}
}

// AcquireCtx blocks until a session of the given kind is available or
// ctx is done, whichever comes first. Callers on a shutdown path should
// use this instead of Acquire so the block is cancellable.
func (m *Manager) AcquireCtx(ctx context.Context, kind Kind) (*Session, error) {
	select {
	case s := <-m.poolFor(kind):
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Return gives a session back to its home pool. Sessions from a
// generation older than the current one are dropped silently rather
// than returned, since they belong to a pool that has already been
// reset out from under them.
func (m *Manager) Return(s *Session) {
	if s == nil || m.closed.Load() {
		return
	}
	if s.Generation != m.generation.Load() {
		log.Debug().Str("session_id", s.ID).Int64("session_gen", s.Generation).
			Int64("current_gen", m.generation.Load()).Msg("session: dropping stale-generation session")
		return
	}
	pool := m.poolFor(s.Kind)
	select {
	case pool <- s:
	case <-time.After(2 * time.Second):
		log.Warn().Str("session_id", s.ID).Str("kind", s.Kind.String()).
			Msg("session: pool full on return, dropping session")
	}
}

// ReturnToRelogin enqueues s onto ReloginPool regardless of its home
// Kind, used when the Elective/Probe loop discovers a session is no
// longer authenticated (logged out, expired) and needs the Login Loop
// to re-authenticate it before it's usable again. Subject to the same
// stale-generation drop and fallback-with-timeout behavior as Return.
func (m *Manager) ReturnToRelogin(s *Session) {
	if s == nil || m.closed.Load() {
		return
	}
	if s.Generation != m.generation.Load() {
		log.Debug().Str("session_id", s.ID).Int64("session_gen", s.Generation).
			Int64("current_gen", m.generation.Load()).Msg("session: dropping stale-generation session")
		return
	}
	select {
	case m.relogin <- s:
	case <-time.After(2 * time.Second):
		log.Warn().Str("session_id", s.ID).Msg("session: relogin pool full on return, dropping session")
	}
}

// Kill places the shutdown sentinel onto ReloginPool, signaling the
// Login Loop to exit once it dequeues it. Unlike Return/ReturnToRelogin
// this ignores generation and closed-state: termination must always
// get through.
func (m *Manager) Kill() {
	select {
	case m.relogin <- NewKilled():
	case <-time.After(2 * time.Second):
		log.Warn().Msg("session: relogin pool full, dropping shutdown sentinel")
	}
}

// Generation returns the current pool generation.
func (m *Manager) Generation() int64 {
	return m.generation.Load()
}

// Reset drains and recreates all three pools under a new generation.
// It is non-blocking: if a reset is already in progress, or the last
// reset happened within the cooldown window, Reset is a no-op and
// returns false. This keeps concurrent breaker trips from stacking
// resets on top of each other.
func (m *Manager) Reset(reason string) bool {
	if m.closed.Load() {
		return false
	}
	if !m.resetting.CompareAndSwap(false, true) {
		return false
	}
	defer m.resetting.Store(false)

	m.mu.Lock()
	if time.Since(m.lastResetAt) < m.resetCooldown {
		m.mu.Unlock()
		return false
	}
	m.lastResetAt = time.Now()
	m.mu.Unlock()

	newGen := m.generation.Add(1)
	log.Warn().Str("reason", reason).Int64("generation", newGen).Msg("session: resetting pools")

	old := []chan *Session{m.elective, m.probe, m.relogin}
	m.populate()

	// Draining the old pools is pure bookkeeping (no network I/O): the
	// drains run in parallel on a small errgroup, and Reset waits for
	// them before returning.
	eg := new(errgroup.Group)
	eg.SetLimit(4)
	for _, pool := range old {
		pool := pool
		eg.Go(func() error {
			drainPool(pool)
			return nil
		})
	}
	_ = eg.Wait()
	return true
}

func drainPool(pool chan *Session) {
	close(pool)
	for range pool {
		// discarded: these sessions belong to a retired generation.
	}
}

// Close shuts the manager down, dropping all pooled sessions.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, pool := range []chan *Session{m.elective, m.probe, m.relogin} {
		drainPool(pool)
	}
	return nil
}

// Stats reports the number of sessions currently sitting in each pool,
// for metrics/logging.
type Stats struct {
	Elective   int
	Probe      int
	Relogin    int
	Generation int64
}

// Stats returns a snapshot of pool occupancy.
func (m *Manager) Stats() Stats {
	return Stats{
		Elective:   len(m.elective),
		Probe:      len(m.probe),
		Relogin:    len(m.relogin),
		Generation: m.generation.Load(),
	}
}

// String implements fmt.Stringer for convenient logging.
func (s Stats) String() string {
	return fmt.Sprintf("elective=%d probe=%d relogin=%d gen=%d", s.Elective, s.Probe, s.Relogin, s.Generation)
}
