package elective

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractToken(t *testing.T) {
	body := `{"success":true,"token":"abc123","version":"1"}`
	token, ok := extractToken(body)
	if !ok || token != "abc123" {
		t.Fatalf("extractToken() = (%q, %v), want (abc123, true)", token, ok)
	}
}

func TestExtractTokenMissing(t *testing.T) {
	if _, ok := extractToken(`{"success":false}`); ok {
		t.Fatalf("extractToken() = ok=true, want false when no token field present")
	}
}

func TestCheckIAAASuccessOK(t *testing.T) {
	if err := checkIAAASuccess(`{"success":true}`); err != nil {
		t.Fatalf("checkIAAASuccess() error = %v, want nil", err)
	}
}

func TestCheckIAAASuccessIncorrectPassword(t *testing.T) {
	err := checkIAAASuccess(`{"success":false,"errors":{"code":"E01","msg":"bad"}}`)
	var authErr *AuthError
	if err == nil {
		t.Fatalf("checkIAAASuccess() error = nil, want AuthError")
	}
	if !errors.As(err, &authErr) || authErr.Kind != "bad_credentials" {
		t.Fatalf("checkIAAASuccess() = %v, want bad_credentials", err)
	}
}

func TestCheckIAAASuccessForbidden(t *testing.T) {
	err := checkIAAASuccess(`{"success":false,"errors":{"code":"E21","msg":"forbidden"}}`)
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Kind != "iaaa_forbidden" {
		t.Fatalf("checkIAAASuccess() = %v, want iaaa_forbidden", err)
	}
}

func TestDrawCaptchaReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-image-bytes"))
	}))
	defer srv.Close()

	c := New("10000000", "secret")
	c.http = srv.Client()

	// Point the draw request at our test server by overriding the URL
	// inline: DrawCaptcha uses the package constant, so exercise the
	// underlying do() path directly instead.
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	resp, err := c.do(req)
	if err != nil {
		t.Fatalf("do() error = %v", err)
	}
	defer resp.Body.Close()
	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	if !strings.Contains(string(buf[:n]), "fake-image-bytes") {
		t.Fatalf("response body = %q, want to contain fake-image-bytes", buf[:n])
	}
}
