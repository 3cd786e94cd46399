// Package classifier turns a raw elective-site HTTP response into a
// closed-set typed outcome, tolerating the markup-level noise (header
// reordering, missing cells, stray whitespace) the live site produces
// under load.
package classifier

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pku-elective/autoelective/internal/course"
)

// OutcomeKind is the closed set of shapes a classified response can take.
type OutcomeKind string

const (
	OutcomeSuccess      OutcomeKind = "success"
	OutcomeSkip         OutcomeKind = "skip"
	OutcomeDefer        OutcomeKind = "defer"
	OutcomeAuth         OutcomeKind = "auth"
	OutcomeTransport    OutcomeKind = "transport"
	OutcomeCritical     OutcomeKind = "critical"
	OutcomeParseFailure OutcomeKind = "parse_failure"
)

// Outcome is the sum-type result of classifying a response. Exactly one
// of the payload fields is meaningful, selected by Kind; callers should
// switch on Kind rather than inspecting payload fields directly.
type Outcome struct {
	Kind OutcomeKind

	Courses []course.Course // OutcomeSuccess: parsed listing table
	Reason  course.Reason   // OutcomeSkip
	Kind2   string          // OutcomeAuth / OutcomeCritical: sub-kind ("auth_expired", "caught_cheating", ...)
	Message string          // raw tip/title text, for logging
}

// Classifier runs an ordered chain of hooks over a response and
// returns the first conclusive Outcome. Each hook may also choose to
// pass (return ok=false) so a later, more specific hook gets a chance.
type Classifier struct {
	tips *TipsTable
	dump *Dumper
}

// New builds a Classifier using the given tips table (nil uses
// NewTipsTable's embedded default) and an optional Dumper for
// parse-failure post-mortems.
func New(tips *TipsTable, dump *Dumper) *Classifier {
	if tips == nil {
		tips = NewTipsTable()
	}
	return &Classifier{tips: tips, dump: dump}
}

type hook func(c *Classifier, statusCode int, body []byte, doc *goquery.Document) (Outcome, bool)

var hooks = []hook{
	statusCodeHook,
	titleHook,
	tipsHook,
	listingTableHook,
}

// Classify runs the hook chain against an HTTP response body. statusCode
// is supplied separately since the classifier never needs the full
// *http.Response, only its code.
func (c *Classifier) Classify(statusCode int, body []byte) Outcome {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		if c.dump != nil {
			c.dump.Save(body, "doc_parse_error")
		}
		return Outcome{Kind: OutcomeParseFailure, Message: err.Error()}
	}

	for _, h := range hooks {
		if outcome, ok := h(c, statusCode, body, doc); ok {
			return outcome
		}
	}
	if c.dump != nil {
		c.dump.Save(body, "no_hook_matched")
	}
	return Outcome{Kind: OutcomeParseFailure, Message: "no classifier hook matched"}
}

func statusCodeHook(_ *Classifier, statusCode int, _ []byte, _ *goquery.Document) (Outcome, bool) {
	switch {
	case statusCode == http.StatusOK:
		return Outcome{}, false
	case statusCode == http.StatusForbidden:
		return Outcome{Kind: OutcomeCritical, Kind2: "iaaa_forbidden"}, true
	case statusCode == http.StatusUnauthorized:
		return Outcome{Kind: OutcomeAuth, Kind2: "auth_expired"}, true
	case statusCode >= 500:
		return Outcome{Kind: OutcomeTransport, Kind2: "server_error", Message: http.StatusText(statusCode)}, true
	default:
		return Outcome{}, false
	}
}

func titleHook(_ *Classifier, _ int, _ []byte, doc *goquery.Document) (Outcome, bool) {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	switch {
	case strings.Contains(title, "登录"):
		return Outcome{Kind: OutcomeAuth, Kind2: "auth_expired", Message: title}, true
	case strings.Contains(title, "系统维护"):
		return Outcome{Kind: OutcomeTransport, Kind2: "maintenance", Message: title}, true
	default:
		return Outcome{}, false
	}
}

func tipsHook(c *Classifier, _ int, _ []byte, doc *goquery.Document) (Outcome, bool) {
	if errInfo := ErrInfo(doc); strings.Contains(errInfo, "token无效") {
		return Outcome{Kind: OutcomeAuth, Kind2: "invalid_token", Message: errInfo}, true
	}

	tips := strings.TrimSpace(doc.Find(`td[id="msgTips"]`).First().Text())
	if tips == "" {
		return Outcome{}, false
	}
	entry, ok := c.tips.Match(tips)
	if !ok {
		return Outcome{}, false
	}
	switch entry.Outcome {
	case "skip":
		return Outcome{Kind: OutcomeSkip, Reason: entry.Reason, Message: tips}, true
	case "defer", "captcha_rejected", "not_in_operation":
		return Outcome{Kind: OutcomeDefer, Kind2: entry.Outcome, Message: tips}, true
	case "auth_expired":
		return Outcome{Kind: OutcomeAuth, Kind2: "auth_expired", Message: tips}, true
	case "critical":
		return Outcome{Kind: OutcomeCritical, Kind2: string(entry.Reason), Message: tips}, true
	default:
		return Outcome{}, false
	}
}

func listingTableHook(_ *Classifier, _ int, _ []byte, doc *goquery.Document) (Outcome, bool) {
	courses := GetCoursesWithDetail(doc)
	if len(courses) == 0 {
		return Outcome{}, false
	}
	return Outcome{Kind: OutcomeSuccess, Courses: courses}, true
}

// errInfoPrefixes matches the "出错提示:"/"提示:" strong-tag label some
// error pages use instead of msgTips, matching the original parser's
// get_errInfo behavior.
var errInfoPrefixes = regexp.MustCompile(`^(出错提示|提示)[:：]\s*`)

// ErrInfo returns the text of the element holding the first strong-tag
// label (the label plus the message that follows it) with the label
// prefix stripped, or "" if the page doesn't have that shape.
func ErrInfo(doc *goquery.Document) string {
	text := strings.TrimSpace(doc.Find("strong").First().Parent().Text())
	return errInfoPrefixes.ReplaceAllString(text, "")
}
