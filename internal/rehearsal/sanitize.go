// Package rehearsal drives a read-only dry run of the election client
// against the live site (login, listing, draw, validate — never
// submit), and sanitizes whatever it captures into shareable fixtures.
package rehearsal

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	reSida       = regexp.MustCompile(`(?i)(sida=)([0-9a-f]{32})`)
	reToken      = regexp.MustCompile(`(?i)(token=)([^&;\s]+)`)
	reJSONToken  = regexp.MustCompile(`(?i)("token"\s*:\s*")([^"]*)`)
	reJSessionID = regexp.MustCompile(`(?i)(JSESSIONID=)([^;\s]+)`)
	rePHPSessID  = regexp.MustCompile(`(?i)(PHPSESSID=)([^;\s]+)`)
	reXHParam    = regexp.MustCompile(`(?i)(\bxh=)(\d+)`)
)

// SanitizeText redacts student-identifying and session-identifying
// substrings out of free text: the student ID itself (if given), the
// xh/sida/token/JSESSIONID/PHPSESSID query or cookie values, and a JSON
// "token" string field.
func SanitizeText(text, studentID string) string {
	s := text
	if studentID != "" {
		s = strings.ReplaceAll(s, studentID, "STUDENT_ID")
	}
	s = reXHParam.ReplaceAllString(s, "${1}STUDENT_ID")
	s = reSida.ReplaceAllString(s, "${1}SIDA")
	s = reToken.ReplaceAllString(s, "${1}TOKEN")
	s = reJSONToken.ReplaceAllString(s, "${1}TOKEN")
	s = reJSessionID.ReplaceAllString(s, "${1}JSESSIONID")
	s = rePHPSessID.ReplaceAllString(s, "${1}PHPSESSID")
	return s
}

var redactedQueryKeys = map[string]bool{
	"token": true, "sida": true, "xh": true, "student_id": true,
}

// RedactURL redacts sensitive query parameters from a URL string,
// dropping any fragment for fixture stability. Falls back to
// SanitizeText if the URL can't be parsed.
func RedactURL(rawURL, studentID string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return SanitizeText(rawURL, studentID)
	}
	q := u.Query()
	newQ := url.Values{}
	for k, values := range q {
		lk := strings.ToLower(k)
		for _, v := range values {
			switch {
			case redactedQueryKeys[lk]:
				newQ.Add(k, "REDACTED")
			case studentID != "" && v == studentID:
				newQ.Add(k, "REDACTED")
			default:
				rv := v
				if studentID != "" {
					rv = strings.ReplaceAll(rv, studentID, "STUDENT_ID")
				}
				newQ.Add(k, SanitizeText(rv, ""))
			}
		}
	}
	u.RawQuery = newQ.Encode()
	u.Fragment = ""
	return u.String()
}

// looksLikeText guesses whether raw bytes are text worth sanitizing,
// by content type first and a cheap leading-byte heuristic otherwise.
func looksLikeText(raw []byte, contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "text/") || strings.Contains(ct, "application/json") ||
		strings.Contains(ct, "application/javascript") || strings.Contains(ct, "xml") {
		return true
	}
	if len(raw) == 0 {
		return true
	}
	head := bytesTrimLeftSpace(raw)
	if len(head) == 0 {
		return true
	}
	switch head[0] {
	case '<', '{', '[':
		return true
	}
	return false
}

func bytesTrimLeftSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

// SanitizeBytes redacts a raw response body the same way SanitizeText
// does, skipping bodies that don't look like text (images, binary
// blobs) so they pass through unchanged.
func SanitizeBytes(raw []byte, contentType, studentID string) []byte {
	if raw == nil {
		return nil
	}
	if !looksLikeText(raw, contentType) {
		return raw
	}
	redacted := SanitizeText(string(raw), studentID)
	return []byte(redacted)
}
