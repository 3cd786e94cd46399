package rehearsal

import "testing"

func TestSanitizeTextRedactsStudentID(t *testing.T) {
	got := SanitizeText("student 1800000000 logged in", "1800000000")
	if got != "student STUDENT_ID logged in" {
		t.Fatalf("SanitizeText() = %q", got)
	}
}

func TestSanitizeTextRedactsSessionIdentifiers(t *testing.T) {
	got := SanitizeText("sida=abcdef0123456789abcdef0123456789; token=xyz; JSESSIONID=abc123", "")
	if got != "sida=SIDA; token=TOKEN; JSESSIONID=JSESSIONID" {
		t.Fatalf("SanitizeText() = %q", got)
	}
}

func TestRedactURLRedactsKnownQueryParams(t *testing.T) {
	got := RedactURL("https://elective.pku.edu.cn/x?xh=1800000000&token=abc&other=1", "1800000000")
	if got == "" {
		t.Fatal("RedactURL() returned empty string")
	}
	if contains(got, "1800000000") || contains(got, "abc") {
		t.Fatalf("RedactURL() = %q, leaked sensitive values", got)
	}
}

func TestRedactURLDropsFragment(t *testing.T) {
	got := RedactURL("https://example.com/path?x=1#secret", "")
	if contains(got, "secret") {
		t.Fatalf("RedactURL() = %q, fragment should be dropped", got)
	}
}

func TestSanitizeBytesPassesThroughBinary(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}
	got := SanitizeBytes(raw, "image/jpeg", "")
	if string(got) != string(raw) {
		t.Fatalf("SanitizeBytes() modified binary content")
	}
}

func TestSanitizeBytesRedactsTextBody(t *testing.T) {
	got := SanitizeBytes([]byte(`{"token":"abc123"}`), "application/json", "")
	if contains(string(got), "abc123") {
		t.Fatalf("SanitizeBytes() = %q, token leaked", got)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
