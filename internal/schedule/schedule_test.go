package schedule

import (
	"testing"
	"time"
)

func TestParseCNDatetimeWithYear(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := ParseCNDatetime("2026年3月2日 8:00", now, time.UTC)
	if err != nil {
		t.Fatalf("ParseCNDatetime() error = %v", err)
	}
	want := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ParseCNDatetime() = %v, want %v", got, want)
	}
}

func TestParseCNDatetimeYearRollover(t *testing.T) {
	// Parsed in December for a date in January: should roll to next year.
	now := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)
	got, err := ParseCNDatetime("1月5日 08:00", now, time.UTC)
	if err != nil {
		t.Fatalf("ParseCNDatetime() error = %v", err)
	}
	if got.Year() != 2027 {
		t.Fatalf("ParseCNDatetime() year = %d, want 2027", got.Year())
	}
}

func TestParseCNDatetimeISOFallback(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := ParseCNDatetime("2026-03-02 08:00:00", now, time.UTC)
	if err != nil {
		t.Fatalf("ParseCNDatetime() error = %v", err)
	}
	want := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ParseCNDatetime() = %v, want %v", got, want)
	}
}

func TestNextOperationFiltersToElectionPhases(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	windows := []Window{
		{Phase: "新生入学教育", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)},
		{Phase: "第一轮补退选", Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour)},
		{Phase: "候补名单", Start: now.Add(2 * time.Hour), End: now.Add(3 * time.Hour)},
	}
	next := NextOperation(windows, now)
	if next == nil || next.Phase != "候补名单" {
		t.Fatalf("NextOperation() = %v, want 候补名单 (earliest election phase)", next)
	}
}

func TestInWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	windows := []Window{
		{Phase: "补退选", Start: now.Add(-time.Hour), End: now.Add(time.Hour)},
	}
	if !InWindow(windows, now) {
		t.Fatalf("InWindow() = false, want true")
	}
	if InWindow(windows, now.Add(2*time.Hour)) {
		t.Fatalf("InWindow() = true outside the window")
	}
}
