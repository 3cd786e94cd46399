package rehearsal

import (
	"testing"

	"github.com/pku-elective/autoelective/internal/classifier"
	"github.com/pku-elective/autoelective/internal/elective"
)

func TestExtractOperationWindowParsesPair(t *testing.T) {
	msg := "阶段时间: 2026-02-27 15:00:00 至 2026-03-10 10:00:00"
	got, ok := ExtractOperationWindow(msg)
	if !ok {
		t.Fatal("ExtractOperationWindow() ok = false, want true")
	}
	want := "2026-02-27 15:00:00 -> 2026-03-10 10:00:00"
	if got != want {
		t.Fatalf("ExtractOperationWindow() = %q, want %q", got, want)
	}
}

func TestExtractOperationWindowNoMatch(t *testing.T) {
	if _, ok := ExtractOperationWindow("no dates here"); ok {
		t.Fatal("ExtractOperationWindow() ok = true, want false")
	}
}

func TestClassifyErrorAuthInvalidTokenIsSession(t *testing.T) {
	kind, strictOnly := ClassifyError(elective.NewAuthError("invalid_token", "token无效", nil))
	if kind != "session" || strictOnly {
		t.Fatalf("ClassifyError() = (%q, %v), want (session, false)", kind, strictOnly)
	}
}

func TestClassifyErrorCriticalIsCaughtCheating(t *testing.T) {
	kind, _ := ClassifyError(&elective.CriticalError{Kind: "caught_cheating", Message: "flagged"})
	if kind != "caught_cheating" {
		t.Fatalf("ClassifyError() = %q, want caught_cheating", kind)
	}
}

func TestClassifyOutcomeNotInOperationIsStrictOnly(t *testing.T) {
	kind, strictOnly := ClassifyOutcome(classifier.Outcome{Kind: classifier.OutcomeDefer, Kind2: "not_in_operation"})
	if kind != "not_in_operation" || !strictOnly {
		t.Fatalf("ClassifyOutcome() = (%q, %v), want (not_in_operation, true)", kind, strictOnly)
	}
}

func TestSummaryFailedNonStrictIgnoresStrictOnlyFailure(t *testing.T) {
	s := &Summary{Steps: []Step{{Name: "fetch_listing", Succeeded: false, Kind: "not_in_operation"}}}
	if s.Failed(false) {
		t.Fatal("Failed(false) = true, want false for strict-only kind in non-strict mode")
	}
	if !s.Failed(true) {
		t.Fatal("Failed(true) = false, want true in strict mode")
	}
}
