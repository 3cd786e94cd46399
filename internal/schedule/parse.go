package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// cnDatetimeRe matches the help page's Chinese-style timestamp,
// e.g. "2026年3月2日 8:00" or "3月2日 08:00:00". The year is optional;
// when absent the caller supplies one via the rollover heuristic below.
var cnDatetimeRe = regexp.MustCompile(
	`(?:(\d{4})年)?(\d{1,2})月(\d{1,2})日\s*(\d{1,2}):(\d{2})(?::(\d{2}))?`,
)

// isoDatetimeRe matches a plain ISO-ish fallback some pages use instead,
// e.g. "2026-03-02 08:00:00".
var isoDatetimeRe = regexp.MustCompile(
	`(\d{4})-(\d{1,2})-(\d{1,2})[ T](\d{1,2}):(\d{2})(?::(\d{2}))?`,
)

// ParseCNDatetime parses a Chinese or ISO timestamp found on the help
// page. now is used to resolve a missing year via the rollover
// heuristic: if the parsed month/day would be more than 60 days in the
// past relative to now, the year is assumed to be now's year + 1
// (the page is describing the next occurrence, e.g. parsed in December
// for a date in January).
func ParseCNDatetime(s string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if m := cnDatetimeRe.FindStringSubmatch(s); m != nil {
		year := 0
		if m[1] != "" {
			year, _ = strconv.Atoi(m[1])
		}
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		minute, _ := strconv.Atoi(m[5])
		second := 0
		if m[6] != "" {
			second, _ = strconv.Atoi(m[6])
		}
		if year == 0 {
			year = resolveYear(month, day, now)
		}
		return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc), nil
	}
	if m := isoDatetimeRe.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		minute, _ := strconv.Atoi(m[5])
		second := 0
		if m[6] != "" {
			second, _ = strconv.Atoi(m[6])
		}
		return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("schedule: no recognizable datetime in %q", s)
}

// resolveYear picks the year closest in the future to now for a
// year-less month/day pair, accounting for the common case of the help
// page listing a date just after a year boundary.
func resolveYear(month, day int, now time.Time) int {
	candidate := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location())
	if now.Sub(candidate) > 60*24*time.Hour {
		return now.Year() + 1
	}
	return now.Year()
}

// phaseNameRe pulls a Chinese phase label preceding a colon, e.g.
// "第一轮补退选：2026年3月2日 8:00 - 2026年3月5日 23:59".
var phaseNameRe = regexp.MustCompile(`([^\s：:]{2,20})[：:]`)

// ParseHelpSchedule extracts operation windows from the raw text of the
// help page. Lines that don't match the phase-name/datetime-range shape
// are skipped rather than treated as a fatal error, since the help page
// also carries unrelated prose.
func ParseHelpSchedule(lines []string, now time.Time, loc *time.Location) []Window {
	var windows []Window
	for _, line := range lines {
		name := ""
		if m := phaseNameRe.FindStringSubmatch(line); m != nil {
			name = m[1]
		}
		if name == "" {
			continue
		}
		matches := cnDatetimeRe.FindAllStringIndex(line, -1)
		if len(matches) == 0 {
			matches = isoDatetimeRe.FindAllStringIndex(line, -1)
		}
		if len(matches) < 2 {
			continue
		}
		start, err1 := ParseCNDatetime(line[matches[0][0]:matches[0][1]], now, loc)
		end, err2 := ParseCNDatetime(line[matches[1][0]:matches[1][1]], now, loc)
		if err1 != nil || err2 != nil {
			continue
		}
		windows = append(windows, Window{Phase: name, Start: start, End: end})
	}
	return windows
}

// ExtractOperationWindow parses a server error message such as
// "当前不在补退选开放时间内，下一次开放时间为 2026年3月2日 08:00:00"
// into the embedded timestamp, i.e. when an out-of-window rejection
// will next become eligible. (internal/rehearsal has its own
// ExtractOperationWindow and does not call this one.)
func ExtractOperationWindow(message string, now time.Time, loc *time.Location) (time.Time, bool) {
	t, err := ParseCNDatetime(message, now, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
