package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Fatal("Handler() returned nil")
	}

	RecordRound("success", 1*time.Second)
	SetPoolMetrics("elective", 3, 2)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expectedMetrics := []string{
		"autoelective_pool_size",
		"autoelective_pool_available",
		"autoelective_rounds_total",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %q not found in output", metric)
		}
	}
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("1.0.0", "go1.22")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "autoelective_build_info") {
		t.Error("Expected autoelective_build_info metric")
	}
	if !strings.Contains(body, `version="1.0.0"`) {
		t.Error("Expected version label in build_info")
	}
}

func TestRecordRound(t *testing.T) {
	RecordRound("defer", 500*time.Millisecond)
	RecordRound("success", 2*time.Second)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "autoelective_rounds_total") {
		t.Error("Expected autoelective_rounds_total metric")
	}
	if !strings.Contains(body, "autoelective_round_duration_seconds") {
		t.Error("Expected autoelective_round_duration_seconds metric")
	}
}

func TestRecordCaptchaAttempt(t *testing.T) {
	RecordCaptchaAttempt("dummy", "accepted", 200*time.Millisecond)
	RecordCaptchaAttempt("dummy", "rejected", 150*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "autoelective_captcha_attempts_total") {
		t.Error("Expected autoelective_captcha_attempts_total metric")
	}
}

func TestSetBreakerState(t *testing.T) {
	SetBreakerState("offline", true)
	SetBreakerState("auth", false)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `autoelective_breaker_open{breaker="offline"} 1`) {
		t.Error("Expected offline breaker gauge set to 1")
	}
}

func TestSetPoolMetrics(t *testing.T) {
	SetPoolMetrics("probe", 1, 1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `autoelective_pool_size{pool="probe"} 1`) {
		t.Error("Expected probe pool size to be 1")
	}
}

func TestStartMemoryCollector(t *testing.T) {
	stopCh := make(chan struct{})
	go StartMemoryCollector(50*time.Millisecond, stopCh)
	time.Sleep(150 * time.Millisecond)
	close(stopCh)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "autoelective_memory_usage_bytes") {
		t.Error("Expected autoelective_memory_usage_bytes metric")
	}
	if !strings.Contains(body, "autoelective_goroutines") {
		t.Error("Expected autoelective_goroutines metric")
	}
}
