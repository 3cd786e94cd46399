package loop

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pku-elective/autoelective/internal/config"
	"github.com/pku-elective/autoelective/internal/elective"
	"github.com/pku-elective/autoelective/internal/session"
)

// LoginLoop consumes ReloginPool and returns freshly authenticated
// sessions to their home pool, rotating the User-Agent on every
// attempt and feeding failures into the shared Auth breaker.
type LoginLoop struct {
	cfg      *config.Config
	rt       *Runtime
	breakers *Breakers
	sessions *session.Manager

	consecutiveErrors int
}

// NewLoginLoop builds a LoginLoop over the given session manager,
// sharing the breaker hierarchy and runtime with the Elective Loop.
func NewLoginLoop(cfg *config.Config, rt *Runtime, breakers *Breakers, sessions *session.Manager) *LoginLoop {
	return &LoginLoop{cfg: cfg, rt: rt, breakers: breakers, sessions: sessions}
}

// Run consumes sessions from ReloginPool until it dequeues the
// shutdown sentinel or ctx is canceled.
func (l *LoginLoop) Run(ctx context.Context) {
	for {
		if err := l.breakers.Auth.Gate().Wait(ctx); err != nil {
			return
		}

		sess, err := l.sessions.AcquireCtx(ctx, session.KindRelogin)
		if err != nil {
			return
		}
		if sess.Killed {
			log.Info().Msg("login: shutdown sentinel received, exiting")
			return
		}
		if sess.Generation != l.sessions.Generation() {
			continue
		}

		sess.UserAgent = elective.RandomUserAgent()

		if err := l.reauthenticate(ctx, sess); err != nil {
			l.consecutiveErrors++
			if l.breakers.Auth.RecordFailure() {
				l.sessions.Reset("auth_breaker_tripped")
			}
			l.rt.ErrorAgg.Record("login_" + authErrorKind(err))
			sleep := ErrorBackoff(l.cfg.RefreshInterval, l.consecutiveErrors, l.cfg.AuthFailThreshold, 2.0, l.cfg.AuthCooldown)
			l.sessions.ReturnToRelogin(sess)
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return
			}
			continue
		}

		l.consecutiveErrors = 0
		l.breakers.Auth.RecordSuccess()
		sess.SetLoggedIn(true)
		sess.ExpiredAt = time.Now().Add(l.cfg.SessionTTL)
		l.sessions.Return(sess)
	}
}

// reauthenticate performs the IAAA handshake and SSO login against
// sess's own cookie jar and user-agent.
func (l *LoginLoop) reauthenticate(ctx context.Context, sess *session.Session) error {
	sess.LockOperation()
	defer sess.UnlockOperation()

	client := elective.New(l.cfg.StudentID, l.cfg.Password,
		elective.WithHTTPClient(sess.Client(sessionHTTPTimeout)),
		elective.WithUserAgent(sess.UserAgent))
	return client.Login(ctx)
}

func authErrorKind(err error) string {
	var authErr *elective.AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return "unknown"
}
