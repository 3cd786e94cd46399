package loop

import (
	"context"
	"time"

	"github.com/pku-elective/autoelective/internal/captcha"
	"github.com/pku-elective/autoelective/internal/config"
	"github.com/pku-elective/autoelective/internal/elective"
	"github.com/pku-elective/autoelective/internal/session"
)

// ProbeLoop is the optional background task that warms the Adaptive
// Router's per-provider statistics without competing with burst
// traffic: it runs a full Draw+Recognize+Validate round through the
// chain in its current provider order, then sleeps. It does not pick
// the least-sampled provider (AdaptiveRouter.SelectProbeProvider is
// not called here).
type ProbeLoop struct {
	cfg      *config.Config
	breakers *Breakers
	sessions *session.Manager
	chain    *captcha.Chain
	router   *captcha.AdaptiveRouter
}

// NewProbeLoop builds a ProbeLoop. Callers should only start this when
// cfg.ProbeEnabled is true and a probe pool (possibly shared with the
// elective pool, per cfg.ProbeSharePool) has capacity.
func NewProbeLoop(cfg *config.Config, breakers *Breakers, sessions *session.Manager, chain *captcha.Chain, router *captcha.AdaptiveRouter) *ProbeLoop {
	return &ProbeLoop{cfg: cfg, breakers: breakers, sessions: sessions, chain: chain, router: router}
}

// Run drives probe rounds on cfg.ProbeInterval until ctx is canceled,
// pausing automatically while the Elective Loop holds a burst frozen
// or the system is OFFLINE.
func (p *ProbeLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeOnce(ctx)
		}
	}
}

func (p *ProbeLoop) probeOnce(ctx context.Context) {
	if p.breakers.Offline.IsOffline() {
		return
	}
	if p.router != nil && p.router.IsFrozen() {
		return
	}

	sess := p.sessions.TryAcquire(session.KindProbe)
	if sess == nil && p.cfg.ProbeSharePool {
		sess = p.sessions.TryAcquire(session.KindElective)
	}
	if sess == nil {
		return
	}
	defer p.sessions.Return(sess)

	if !sess.LoggedIn() || !sess.IsUsable(time.Now(), p.cfg.SessionTTL) {
		sess.SetLoggedIn(false)
		p.sessions.ReturnToRelogin(sess)
		return
	}

	client := elective.New(p.cfg.StudentID, p.cfg.Password,
		elective.WithHTTPClient(sess.Client(sessionHTTPTimeout)),
		elective.WithUserAgent(sess.UserAgent))

	image, err := client.DrawCaptcha(ctx)
	if err != nil {
		return
	}
	_, _, _ = p.chain.SolveWithValidate(ctx, image, validateAgainstSite(client))
}
