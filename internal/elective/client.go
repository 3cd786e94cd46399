// Package elective implements the two HTTP clients the agent needs:
// IAAA (the university's unified login) and the elective site itself
// (listing, draw, validate, elect). Shaped after a functional-options
// HTTP client wrapping a cookiejar-backed *http.Client, the way a
// generic university-portal client would be built.
package elective

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/pku-elective/autoelective/internal/schedule"
)

const (
	iaaaHomeURL     = "https://iaaa.pku.edu.cn/iaaa/oauth.jsp"
	iaaaLoginURL    = "https://iaaa.pku.edu.cn/iaaa/oauthlogin.do"
	ssoLoginURL     = "https://elective.pku.edu.cn/elective2008/ssoLogin.do"
	listingURLFmt   = "https://elective.pku.edu.cn/elective2008/edu/pku/stu/elective/controller/supplement/SupplListCourse.do?netui_row=%d"
	drawServletURL  = "https://elective.pku.edu.cn/elective2008/DrawServlet"
	validateURLFmt  = "https://elective.pku.edu.cn/elective2008/edu/pku/stu/elective/controller/supplement/validate.do?xh=%s&id=%s"
	electURLFmt     = "https://elective.pku.edu.cn/elective2008/edu/pku/stu/elective/controller/supplement/electSupplement.do?index=%s&electionType=%s"
	helpScheduleURL = "https://elective.pku.edu.cn/elective2008/help/courseArrange.jsp"
)

// jsessionIDAlphabet is the character set observed in real JSESSIONID
// values (alphanumeric).
const jsessionIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// dummyJSessionIDCookie builds a placeholder JSESSIONID cookie shaped
// like a real Tomcat session ID (52 alphanumerics, a routing "!",
// then a numeric node suffix). The SSO endpoint rejects requests
// carrying no JSESSIONID at all or an implausibly-shaped one with a
// status 101; a real-shaped dummy avoids that rejection.
func dummyJSessionIDCookie() string {
	b := make([]byte, 52)
	for i := range b {
		b[i] = jsessionIDAlphabet[rand.Intn(len(jsessionIDAlphabet))]
	}
	return fmt.Sprintf("JSESSIONID=%s!%d", b, rand.Intn(10000))
}

// Client bundles the IAAA + elective HTTP surface behind a single
// cookiejar-backed *http.Client, the way a university-portal client
// wraps its whole session in one object instead of passing cookies by
// hand between requests.
type Client struct {
	http      *http.Client
	userAgent string
	studentID string
	password  string
}

// Option configures a Client at construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (for tests, or
// to inject a transport with custom TLS/proxy settings).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New builds a Client for studentID/password. A fresh cookie jar is
// created unless WithHTTPClient supplies one with its own.
func New(studentID, password string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		http:      &http.Client{Jar: jar, Timeout: 30 * time.Second},
		userAgent: RandomUserAgent(),
		studentID: studentID,
		password:  password,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: req.URL.Path, Err: err}
	}
	return resp, nil
}

// Login performs the full IAAA login handshake followed by the SSO
// handoff to the elective site, matching the shape of a browser
// session visiting /oauth/home, posting credentials, then presenting
// the token to ssoLogin with a placeholder JSESSIONID.
func (c *Client) Login(ctx context.Context) error {
	homeReq, err := http.NewRequestWithContext(ctx, http.MethodGet, iaaaHomeURL, nil)
	if err != nil {
		return err
	}
	if resp, err := c.do(homeReq); err != nil {
		return err
	} else {
		resp.Body.Close()
	}

	form := url.Values{}
	form.Set("appid", "syllabus")
	form.Set("userName", c.studentID)
	form.Set("password", c.password)
	form.Set("randCode", "")
	form.Set("smsCode", "")
	form.Set("otpCode", "")

	loginReq, err := http.NewRequestWithContext(ctx, http.MethodPost, iaaaLoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	loginReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.do(loginReq)
	if err != nil {
		return err
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if err := checkIAAASuccess(string(body)); err != nil {
		return err
	}

	token, ok := extractToken(string(body))
	if !ok {
		return NewAuthError("bad_credentials", "IAAA did not return a token", nil)
	}

	ssoReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ssoLoginURL+"?token="+url.QueryEscape(token), nil)
	if err != nil {
		return err
	}
	ssoReq.Header.Set("Cookie", dummyJSessionIDCookie())
	ssoResp, err := c.do(ssoReq)
	if err != nil {
		return err
	}
	ssoResp.Body.Close()
	if ssoResp.StatusCode == http.StatusForbidden {
		return NewAuthError("iaaa_forbidden", "elective site rejected SSO handoff", nil)
	}
	return nil
}

// extractToken pulls the "token":"..." field out of IAAA's JSON login
// response without pulling in a full JSON dependency for one field.
func extractToken(body string) (string, bool) {
	const key = `"token":"`
	i := strings.Index(body, key)
	if i < 0 {
		return "", false
	}
	rest := body[i+len(key):]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}

// checkIAAASuccess inspects IAAA's JSON login response for its
// "success" field and, when false, the nested error code, mirroring
// IAAA's own error taxonomy: E01 is a bad password, E21 is an
// account-level forbid, anything else is an undistinguished failure.
func checkIAAASuccess(body string) error {
	if extractBool(body, "success") {
		return nil
	}
	code, _ := extractString(body, "code")
	msg, _ := extractString(body, "msg")
	switch code {
	case "E01":
		return NewAuthError("bad_credentials", msg, nil)
	case "E21":
		return NewAuthError("iaaa_forbidden", msg, nil)
	default:
		return NewAuthError("sso_failed", msg, nil)
	}
}

func extractBool(body, key string) bool {
	i := strings.Index(body, `"`+key+`":`)
	if i < 0 {
		return false
	}
	rest := strings.TrimSpace(body[i+len(key)+3:])
	return strings.HasPrefix(rest, "true")
}

func extractString(body, key string) (string, bool) {
	marker := `"` + key + `":"`
	i := strings.Index(body, marker)
	if i < 0 {
		return "", false
	}
	rest := body[i+len(marker):]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}

// listingReferer returns the listing page URL, fixed to page 1: action
// endpoints downstream of the listing (draw/validate/elect) always
// refer back to page 1 regardless of which listing page surfaced them.
func listingReferer() string {
	return fmt.Sprintf(listingURLFmt, 1)
}

// FetchListing retrieves the supplementary-election listing page,
// returning the raw response body for the classifier to parse.
func (c *Client) FetchListing(ctx context.Context, page int) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(listingURLFmt, page), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Referer", helpScheduleURL)
	resp, err := c.do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return body, resp.StatusCode, err
}

// DrawCaptcha fetches a fresh CAPTCHA image for the draw step.
func (c *Client) DrawCaptcha(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, drawServletURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", listingReferer())
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// ValidateCaptcha submits a candidate CAPTCHA solution for pre-flight
// validation (the site lets you check a code before spending an actual
// election attempt on it).
func (c *Client) ValidateCaptcha(ctx context.Context, code string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(validateURLFmt, c.studentID, code), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Referer", listingReferer())
	resp, err := c.do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return body, resp.StatusCode, err
}

// Elect submits the actual election request for a course at the given
// listing index.
func (c *Client) Elect(ctx context.Context, index, electionType string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(electURLFmt, index, electionType), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Referer", listingReferer())
	resp, err := c.do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return body, resp.StatusCode, err
}

// ScheduleFetcher adapts Client to schedule.Fetcher, which takes no
// context: the schedule cache's refresh cadence is coarse (hours), so a
// background-bound context is sufficient.
type ScheduleFetcher struct {
	Client *Client
}

// FetchSchedule implements schedule.Fetcher.
func (f ScheduleFetcher) FetchSchedule() ([]schedule.Window, error) {
	return f.Client.fetchSchedule(context.Background())
}

// fetchSchedule retrieves and parses the help page's operation-window table.
func (c *Client) fetchSchedule(ctx context.Context) ([]schedule.Window, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, helpScheduleURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(body), "\n")
	return schedule.ParseHelpSchedule(lines, time.Now(), nil), nil
}
