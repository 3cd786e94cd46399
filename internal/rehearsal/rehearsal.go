package rehearsal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/pku-elective/autoelective/internal/captcha"
	"github.com/pku-elective/autoelective/internal/classifier"
	"github.com/pku-elective/autoelective/internal/elective"
)

var reOpWindow = regexp.MustCompile(
	`([0-9]{4}-[0-9]{2}-[0-9]{2} [0-9]{2}:[0-9]{2}:[0-9]{2}).*?` +
		`([0-9]{4}-[0-9]{2}-[0-9]{2} [0-9]{2}:[0-9]{2}:[0-9]{2})`)

// ExtractOperationWindow best-effort extracts a "start -> end" window
// out of an error message like "...阶段时间: 2026-02-27 15:00:00 至
// 2026-03-10 10:00:00", returning ok=false if the message has no such
// pair.
func ExtractOperationWindow(message string) (string, bool) {
	m := reOpWindow.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("%s -> %s", m[1], m[2]), true
}

// ClassifyError maps a rehearsal-time error to a short kind label and
// whether it should only be treated as a rehearsal failure under
// --strict. A kind unrecognized here returns ("unknown", false): by
// default, any error not otherwise classified fails the rehearsal.
func ClassifyError(err error) (kind string, strictOnly bool) {
	if err == nil {
		return "", false
	}

	var authErr *elective.AuthError
	if errors.As(err, &authErr) {
		switch authErr.Kind {
		case "invalid_token":
			return "session", false
		default:
			return "iaaa", false
		}
	}

	var criticalErr *elective.CriticalError
	if errors.As(err, &criticalErr) {
		return "caught_cheating", false
	}

	var netErr *elective.NetworkError
	if errors.As(err, &netErr) {
		return "network", false
	}

	return "unknown", false
}

// ClassifyOutcome maps a non-error classifier.Outcome to the same
// (kind, strictOnly) shape ClassifyError uses, for outcomes that the
// classifier represents as data rather than as a Go error (the site
// being outside its operation window is the expected common case, not
// a malfunction).
func ClassifyOutcome(o classifier.Outcome) (kind string, strictOnly bool) {
	switch o.Kind {
	case classifier.OutcomeDefer:
		if o.Kind2 == "not_in_operation" {
			return "not_in_operation", true
		}
		return "defer", false
	case classifier.OutcomeAuth:
		return "session", false
	case classifier.OutcomeCritical:
		return "caught_cheating", false
	case classifier.OutcomeTransport:
		return "http_status", false
	case classifier.OutcomeParseFailure:
		return "parse_failure", false
	default:
		return "", false
	}
}

// Step records one read-only action the rehearsal performed.
type Step struct {
	Name      string
	Succeeded bool
	Kind      string // populated on failure, via ClassifyError/ClassifyOutcome
	Detail    string
}

// Summary is the result of a full rehearsal run.
type Summary struct {
	Steps     []Step
	StartedAt time.Time
	Duration  time.Duration
}

// Failed reports whether any step failed with a kind that isn't
// strict-only, or (when strict is true) any step failed at all.
func (s *Summary) Failed(strict bool) bool {
	for _, st := range s.Steps {
		if st.Succeeded {
			continue
		}
		if strict {
			return true
		}
		ok, _ := lookupStrictOnly(st.Kind)
		if !ok {
			return true
		}
	}
	return false
}

var strictOnlyKinds = map[string]bool{"not_in_operation": true}

func lookupStrictOnly(kind string) (bool, bool) {
	v, ok := strictOnlyKinds[kind]
	return v, ok
}

// Run performs a read-only dry run: login, fetch the listing, draw a
// CAPTCHA, and validate a recognized code. It never submits an
// election request — rehearsal exists to prove the client can reach
// and authenticate against the live site without risking an actual
// enrollment action.
func Run(ctx context.Context, client *elective.Client, chain *captcha.Chain, cls *classifier.Classifier) (*Summary, error) {
	summary := &Summary{StartedAt: time.Now()}
	defer func() { summary.Duration = time.Since(summary.StartedAt) }()

	step := func(name string, err error) bool {
		if err != nil {
			kind, _ := ClassifyError(err)
			summary.Steps = append(summary.Steps, Step{Name: name, Succeeded: false, Kind: kind, Detail: err.Error()})
			return false
		}
		summary.Steps = append(summary.Steps, Step{Name: name, Succeeded: true})
		return true
	}

	if !step("login", client.Login(ctx)) {
		return summary, nil
	}

	body, status, err := client.FetchListing(ctx, 0)
	if err != nil {
		step("fetch_listing", err)
		return summary, nil
	}
	outcome := cls.Classify(status, body)
	if outcome.Kind != classifier.OutcomeSuccess {
		kind, _ := ClassifyOutcome(outcome)
		summary.Steps = append(summary.Steps, Step{Name: "fetch_listing", Succeeded: false, Kind: kind, Detail: outcome.Message})
		return summary, nil
	}
	summary.Steps = append(summary.Steps, Step{Name: "fetch_listing", Succeeded: true, Detail: fmt.Sprintf("%d courses", len(outcome.Courses))})

	image, err := client.DrawCaptcha(ctx)
	if !step("draw_captcha", err) {
		return summary, nil
	}

	if chain != nil && chain.HasProviders() {
		attempt, _, err := chain.Solve(ctx, image)
		if !step("recognize_captcha", err) {
			return summary, nil
		}
		_, status, err = client.ValidateCaptcha(ctx, attempt.Text)
		if err != nil {
			step("validate_captcha", err)
			return summary, nil
		}
		summary.Steps = append(summary.Steps, Step{Name: "validate_captcha", Succeeded: status == 200})
	}

	return summary, nil
}
