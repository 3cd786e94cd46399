package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pku-elective/autoelective/internal/breaker"
	"github.com/pku-elective/autoelective/internal/captcha"
	"github.com/pku-elective/autoelective/internal/classifier"
	"github.com/pku-elective/autoelective/internal/config"
	"github.com/pku-elective/autoelective/internal/course"
	"github.com/pku-elective/autoelective/internal/elective"
	"github.com/pku-elective/autoelective/internal/metrics"
	"github.com/pku-elective/autoelective/internal/notify"
	"github.com/pku-elective/autoelective/internal/ratelimit"
	"github.com/pku-elective/autoelective/internal/schedule"
	"github.com/pku-elective/autoelective/internal/session"
)

// maxCaptchaAttempts is the per-course burst budget (§4.1 step 9b): up
// to this many Draw→Recognize→Validate rounds before giving up on the
// current course for this burst.
const maxCaptchaAttempts = 15

const sessionHTTPTimeout = 15 * time.Second

// ElectiveLoop is the single-writer state machine that owns the goal
// set and drives one enrollment cycle per iteration: dequeue a
// session, fetch the listing, reconcile against goals, and — if
// anything is available — burst through CAPTCHA solving to elect it.
type ElectiveLoop struct {
	cfg      *config.Config
	rt       *Runtime
	breakers *Breakers

	sessions   *session.Manager
	schedule   *schedule.Cache
	classifier *classifier.Classifier
	chain      *captcha.Chain
	router     *captcha.AdaptiveRouter
	limiter    *ratelimit.Limiter

	goals *course.GoalSet
	rules course.Rules

	consecutiveErrors int
	loopCount         int
}

// NewElectiveLoop assembles a loop from its collaborators. goals/rules
// are captured once at construction and stay fixed for the process
// lifetime (a later reload of the goal-set file does not reach a
// running loop), since ignored-course state is keyed to the original
// goal identities.
func NewElectiveLoop(
	cfg *config.Config,
	rt *Runtime,
	breakers *Breakers,
	sessions *session.Manager,
	sched *schedule.Cache,
	cls *classifier.Classifier,
	chain *captcha.Chain,
	router *captcha.AdaptiveRouter,
	limiter *ratelimit.Limiter,
	goals *course.GoalSet,
	rules course.Rules,
) *ElectiveLoop {
	return &ElectiveLoop{
		cfg: cfg, rt: rt, breakers: breakers,
		sessions: sessions, schedule: sched, classifier: cls,
		chain: chain, router: router, limiter: limiter,
		goals: goals, rules: rules,
	}
}

// Run drives rounds until ctx is canceled or every goal is resolved
// (elected or ignored), at which point it posts the shutdown sentinel
// to ReloginPool and returns.
func (l *ElectiveLoop) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if l.goals.Done() {
			log.Info().Msg("elective: all goals resolved, shutting down")
			l.sessions.Kill()
			return
		}

		l.loopCount++
		sleep := l.round(ctx)
		if ctx.Err() != nil {
			return
		}
		l.rt.ErrorAgg.MaybeFlush(ctx)

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return
		}
	}
}

// round executes one pass of the per-round algorithm (§4.1 steps 1-10)
// and returns how long to sleep before the next one.
func (l *ElectiveLoop) round(ctx context.Context) time.Duration {
	start := time.Now()
	outcome := "ok"
	defer func() { metrics.RecordRound(outcome, time.Since(start)) }()

	// Step 1: honor any active cooldown.
	if err := l.breakers.Cooldown.Wait(ctx); err != nil {
		outcome = "canceled"
		return 0
	}

	// Step 2: OFFLINE branch.
	if l.breakers.Offline.IsOffline() {
		outcome = "offline"
		return l.probeAndWait(ctx)
	}

	// Step 3: dequeue a usable session.
	sess, err := l.acquireUsableSession(ctx)
	if err != nil {
		outcome = "canceled"
		return 0
	}
	defer l.sessions.Return(sess)

	client := elective.New(l.cfg.StudentID, l.cfg.Password,
		elective.WithHTTPClient(sess.Client(sessionHTTPTimeout)),
		elective.WithUserAgent(sess.UserAgent))

	// Step 4-5: fetch and classify the listing.
	body, statusCode, fetchErr := l.fetchListingWithRetry(ctx, client)
	if fetchErr != nil {
		outcome = l.handleTransportError(sess, fetchErr)
		return l.sleepFor(outcome)
	}

	result := l.classifier.Classify(statusCode, body)
	if !l.handleOutcome(ctx, sess, result) {
		outcome = string(result.Kind)
		return l.sleepFor(outcome)
	}

	l.breakers.HTMLParse.RecordSuccess()
	l.breakers.Offline.RecordSuccess()
	l.consecutiveErrors = 0

	// Step 6: reconcile goals against the parsed listing.
	available := l.reconcile(result.Courses)

	// Step 7: nothing to do this round.
	if len(available) == 0 {
		if l.router != nil {
			if newOrder, _, changed := l.router.MaybeReorder(l.chain.Order(), l.loopCount); changed {
				log.Debug().Strs("order", newOrder).Msg("captcha: provider order updated")
			}
		}
		outcome = "no_available"
		return l.sleepFor(outcome)
	}

	// Step 8: degrade + monitor-only short-circuit.
	if l.breakers.Degrade.IsDegraded() && l.cfg.CaptchaDegradeEnabled {
		names := courseNames(available)
		l.rt.Notifier.Notify(ctx, notify.CategoryCourseSkip, "captcha degraded",
			fmt.Sprintf("available but skipped while degraded: %v", names))
		outcome = "degraded_monitor_only"
		return l.sleepFor(outcome)
	}

	// Step 9: burst.
	if l.router != nil {
		l.router.SetFrozen(true)
	}
	l.burst(ctx, client, available)
	if l.router != nil {
		l.router.SetFrozen(false)
	}

	return l.sleepFor(outcome)
}

// acquireUsableSession dequeues from ElectivePool, dropping
// stale-generation handles and routing not-logged-in or expired
// sessions to ReloginPool, until a usable session surfaces.
func (l *ElectiveLoop) acquireUsableSession(ctx context.Context) (*session.Session, error) {
	for {
		sess, err := l.sessions.AcquireCtx(ctx, session.KindElective)
		if err != nil {
			return nil, err
		}
		if sess.Generation != l.sessions.Generation() {
			continue
		}
		if !sess.LoggedIn() || !sess.IsUsable(time.Now(), l.cfg.SessionTTL) {
			sess.SetLoggedIn(false)
			l.sessions.ReturnToRelogin(sess)
			continue
		}
		return sess, nil
	}
}

// fetchListingWithRetry fetches the first listing page, retrying up to
// 3 times on transport-level (NetworkError) failures, and consults the
// rate limiter before every attempt. Any other error is returned at
// once, and a response is returned as is, even when it rendered empty.
func (l *ElectiveLoop) fetchListingWithRetry(ctx context.Context, client *elective.Client) ([]byte, int, error) {
	const retries = 3
	var lastErr error
	for i := 0; i < retries; i++ {
		if l.limiter != nil {
			if _, err := l.limiter.Consume(ctx, "https://elective.pku.edu.cn/"); err != nil {
				return nil, 0, err
			}
		}
		body, statusCode, err := client.FetchListing(ctx, 1)
		if err == nil {
			return body, statusCode, nil
		}
		lastErr = err
		var netErr *elective.NetworkError
		if !errors.As(err, &netErr) {
			return nil, 0, err
		}
	}
	return nil, 0, lastErr
}

// handleTransportError classifies a transport-level failure into the
// offline breaker and returns the outcome label used to pick a sleep
// duration.
func (l *ElectiveLoop) handleTransportError(sess *session.Session, err error) string {
	l.consecutiveErrors++
	l.sessions.Return(sess)
	var netErr *elective.NetworkError
	if errors.As(err, &netErr) {
		if l.breakers.Offline.RecordFailure() {
			l.rt.Notifier.Notify(context.Background(), notify.CategoryOffline, "offline",
				"consecutive network failures crossed threshold")
		}
		l.rt.ErrorAgg.Record("network")
		return "network_error"
	}
	l.rt.ErrorAgg.Record("transport")
	return "transport_error"
}

// handleOutcome applies the classifier result's side effects (breaker
// feeding, session routing, notification) and reports whether the
// round should proceed to reconciliation.
func (l *ElectiveLoop) handleOutcome(ctx context.Context, sess *session.Session, o classifier.Outcome) bool {
	switch o.Kind {
	case classifier.OutcomeSuccess:
		return true
	case classifier.OutcomeParseFailure:
		if l.breakers.HTMLParse.RecordFailure() {
			l.breakers.Cooldown.Raise(l.cfg.HTMLParseCooldown)
			l.sessions.Reset("html_parse_breaker_tripped")
		}
		l.rt.ErrorAgg.Record("parse_failure")
		return false
	case classifier.OutcomeAuth:
		sess.SetLoggedIn(false)
		l.sessions.ReturnToRelogin(sess)
		if l.breakers.Auth.RecordFailure() {
			l.sessions.Reset("auth_breaker_tripped")
			l.rt.Notifier.Notify(ctx, notify.CategoryDegrade, "auth breaker tripped",
				"repeated auth failures, pool draining into relogin")
		}
		l.rt.ErrorAgg.Record("auth_" + o.Kind2)
		return false
	case classifier.OutcomeCritical:
		if l.breakers.Critical.RecordFailure() {
			l.breakers.Cooldown.Raise(l.cfg.CriticalCooldown)
			l.sessions.Reset("critical_breaker_tripped")
		}
		l.rt.Notifier.Notify(ctx, notify.CategoryCritical, "critical condition",
			fmt.Sprintf("%s: %s", o.Kind2, o.Message))
		return false
	case classifier.OutcomeTransport:
		l.rt.ErrorAgg.Record("transport_" + o.Kind2)
		return false
	case classifier.OutcomeDefer:
		if o.Kind2 == "not_in_operation" {
			next := l.nextOperation()
			minInterval := l.breakers.Window.MinInterval(next, l.cfg.RefreshInterval)
			l.breakers.Cooldown.Raise(minInterval)
			if reason := l.breakers.Window.Reason(next); reason != "" {
				log.Debug().Str("reason", reason).Msg("round: not in operation, stretching interval")
			}
		}
		return false
	default:
		return false
	}
}

// nextOperation consults the schedule cache for the next election
// phase, tolerating a cache miss by reporting no known window.
func (l *ElectiveLoop) nextOperation() *breaker.NextOperation {
	windows, err := l.schedule.Windows()
	if err != nil || windows == nil {
		return nil
	}
	next := schedule.NextOperation(windows, time.Now())
	if next == nil {
		return nil
	}
	return &breaker.NextOperation{Phase: next.Phase, Start: next.Start}
}

// reconcile returns the still-pending goals that the parsed listing
// shows as available and that no delay rule holds back, in priority
// order. It does not change goal state.
func (l *ElectiveLoop) reconcile(listing []course.Course) []course.Course {
	byIdentity := make(map[course.Identity]course.Course, len(listing))
	for _, c := range listing {
		byIdentity[c.Identity] = c
	}

	var available []course.Course
	for _, id := range l.goals.Pending() {
		c, ok := byIdentity[id]
		if !ok || !c.Available() {
			continue
		}
		if threshold := l.rules.DelayFor(id); threshold > 0 && c.RemainingQuota() > threshold {
			continue
		}
		available = append(available, c)
	}
	return available
}

// burst runs step 9 of the per-round algorithm: for each available
// course, re-check mutex, spend up to maxCaptchaAttempts draw/
// recognize/validate rounds, and on a validated code submit the
// election and route its typed result.
func (l *ElectiveLoop) burst(ctx context.Context, client *elective.Client, available []course.Course) {
	for _, c := range available {
		if ctx.Err() != nil {
			return
		}
		if _, ignored := l.goals.IsIgnored(c.Identity); ignored {
			continue
		}
		if group := l.rules.MutexGroup(c.Identity); len(group) > 0 {
			if anyElected(l.goals, group) {
				l.goals.Ignore(c.Identity, course.ReasonMutexRules)
				continue
			}
		}

		code, attempt, ok := l.solveCaptcha(ctx, client)
		metrics.RecordCaptchaAttempt(attempt.Provider, outcomeLabel(ok), attempt.Latency)
		if !ok {
			l.rt.Stats.Inc("captcha_exhausted")
			if l.breakers.Degrade.IsDegraded() {
				return // degrade window opened mid-burst: abort remaining courses
			}
			continue
		}

		l.electOne(ctx, client, c, code)

		if l.breakers.Degrade.IsDegraded() {
			return
		}
	}
}

// solveCaptcha runs up to maxCaptchaAttempts Draw→Recognize→Validate
// rounds for one course, returning the accepted code and the final
// Attempt for metrics, or ok=false if every attempt was exhausted.
func (l *ElectiveLoop) solveCaptcha(ctx context.Context, client *elective.Client) (string, captcha.Attempt, bool) {
	var last captcha.Attempt
	for i := 0; i < maxCaptchaAttempts; i++ {
		if ctx.Err() != nil {
			return "", last, false
		}
		if l.limiter != nil {
			if _, err := l.limiter.Consume(ctx, "https://elective.pku.edu.cn/DrawServlet"); err != nil {
				return "", last, false
			}
		}
		image, err := client.DrawCaptcha(ctx)
		if err != nil {
			l.breakers.Degrade.RecordFailure()
			continue
		}

		attempt, _, err := l.chain.SolveWithValidate(ctx, image, validateAgainstSite(client))
		last = attempt
		if err != nil {
			l.breakers.Degrade.RecordFailure()
			continue
		}
		l.breakers.Degrade.RecordSuccess()
		return attempt.Text, attempt, true
	}
	return "", last, false
}

// validateAgainstSite builds the Chain.Validate callback bound to one
// session's client: it submits a candidate code to the validate
// endpoint and reports whether the site accepted it ("2") or not.
func validateAgainstSite(client *elective.Client) func(ctx context.Context, text string) (bool, error) {
	return func(ctx context.Context, text string) (bool, error) {
		body, _, err := client.ValidateCaptcha(ctx, text)
		if err != nil {
			return false, err
		}
		return classifyValidateResponse(body), nil
	}
}

func classifyValidateResponse(body []byte) bool {
	const validMarker = `"valid":"2"`
	return containsBytes(body, []byte(validMarker))
}

func containsBytes(haystack, needle []byte) bool {
	n, m := len(haystack), len(needle)
	if m == 0 || m > n {
		return false
	}
	for i := 0; i+m <= n; i++ {
		if string(haystack[i:i+m]) == string(needle) {
			return true
		}
	}
	return false
}

// electOne submits the election request for a validated code and
// routes the typed result per §4.1 step 9c / §4.6.
func (l *ElectiveLoop) electOne(ctx context.Context, client *elective.Client, c course.Course, code string) {
	if l.limiter != nil {
		if _, err := l.limiter.Consume(ctx, "https://elective.pku.edu.cn/electSupplement.do"); err != nil {
			return
		}
	}
	body, statusCode, err := client.Elect(ctx, c.Href, "1")
	if err != nil {
		l.rt.ErrorAgg.Record("elect_transport")
		return
	}

	result := l.classifier.Classify(statusCode, body)
	switch result.Kind {
	case classifier.OutcomeSuccess:
		l.goals.Ignore(c.Identity, course.ReasonElected)
		metrics.RecordCourseOutcome("success")
		l.rt.Stats.Inc("elect_success")
		l.rt.Notifier.Notify(ctx, notify.CategoryCourseSuccess, "elected",
			c.Identity.String())
	case classifier.OutcomeSkip:
		l.goals.Ignore(c.Identity, result.Reason)
		metrics.RecordCourseOutcome(string(result.Reason))
		l.rt.Stats.Inc("elect_skip_" + string(result.Reason))
	case classifier.OutcomeDefer:
		if result.Kind2 == "defer" {
			// QuotaLimited: normal competition outcome, not an error.
			l.rt.Stats.Inc("elect_quota_limited")
			metrics.RecordCourseOutcome("quota_limited")
			return
		}
		l.rt.ErrorAgg.Record("elect_defer_" + result.Kind2)
	case classifier.OutcomeAuth:
		l.rt.ErrorAgg.Record("elect_auth_" + result.Kind2)
	case classifier.OutcomeCritical:
		if l.breakers.Critical.RecordFailure() {
			l.breakers.Cooldown.Raise(l.cfg.CriticalCooldown)
			l.sessions.Reset("critical_breaker_tripped")
		}
		l.rt.Notifier.Notify(ctx, notify.CategoryCritical, "critical condition during elect",
			fmt.Sprintf("%s: %s", result.Kind2, result.Message))
	default:
		l.rt.ErrorAgg.Record("elect_unknown")
	}
}

// probeAndWait runs a single lightweight health probe against the
// listing page while OFFLINE, recording the result into the offline
// breaker, and returns the interval to sleep before the next round.
func (l *ElectiveLoop) probeAndWait(ctx context.Context) time.Duration {
	if !l.breakers.Offline.ShouldProbe() {
		return l.cfg.RefreshInterval
	}
	sess, err := l.sessions.AcquireCtx(ctx, session.KindProbe)
	if err != nil {
		return l.cfg.RefreshInterval
	}
	defer l.sessions.Return(sess)

	client := elective.New(l.cfg.StudentID, l.cfg.Password,
		elective.WithHTTPClient(sess.Client(sessionHTTPTimeout)),
		elective.WithUserAgent(sess.UserAgent))
	_, _, err = client.FetchListing(ctx, 1)
	var netErr *elective.NetworkError
	if err != nil && errors.As(err, &netErr) {
		return l.breakers.Offline.ProbeEvery()
	}
	if l.breakers.Offline.RecordSuccess() {
		l.sessions.Reset("offline_recovered")
		l.breakers.Cooldown.Raise(l.breakers.Offline.ObserveFor())
	}
	return l.breakers.Offline.ProbeEvery()
}

// sleepFor computes the effective end-of-round sleep: the jittered
// refresh interval, backed off by consecutive errors, and stretched by
// any breaker-imposed minimum (operation-window, cooldown). Breakers
// compose additively: the result is the max of all three.
func (l *ElectiveLoop) sleepFor(outcome string) time.Duration {
	base := ErrorBackoff(l.cfg.RefreshInterval, l.consecutiveErrors, 3, 2.0, l.cfg.RefreshInterval*4)
	jittered := JitteredRefresh(base, l.cfg.RefreshJitter)

	windowMin := l.breakers.Window.MinInterval(l.nextOperation(), l.cfg.RefreshInterval)
	if windowMin > jittered {
		jittered = windowMin
	}
	if cooldown := l.breakers.Cooldown.Remaining(); cooldown > jittered {
		jittered = cooldown
	}
	l.rt.Stats.RecordEvent("round_" + outcome)
	return jittered
}

func courseNames(courses []course.Course) []string {
	names := make([]string, len(courses))
	for i, c := range courses {
		names[i] = c.Identity.String()
	}
	return names
}

func anyElected(goals *course.GoalSet, group []course.Identity) bool {
	for _, id := range group {
		if reason, ok := goals.IsIgnored(id); ok && reason == course.ReasonElected {
			return true
		}
	}
	return false
}

func outcomeLabel(ok bool) string {
	if ok {
		return "accepted"
	}
	return "exhausted"
}
