package preflight

import (
	"testing"
	"time"

	"github.com/pku-elective/autoelective/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		CaptchaCodeLength:      4,
		RefreshInterval:        5 * time.Second,
		RefreshJitter:          0.2,
		PoolSize:               2,
		CaptchaPrimaryProvider: "dummy",
	}
}

func TestRunCleanConfigHasNoErrors(t *testing.T) {
	issues := Run(baseConfig())
	if HasErrors(issues) {
		t.Fatalf("Run() = %v, want no errors for clean config", issues)
	}
}

func TestRunFlagsInvalidRefreshInterval(t *testing.T) {
	cfg := baseConfig()
	cfg.RefreshInterval = 0
	issues := Run(cfg)
	if !HasErrors(issues) {
		t.Fatalf("Run() = %v, want refresh_interval_invalid error", issues)
	}
}

func TestRunWarnsOnLowRefreshInterval(t *testing.T) {
	cfg := baseConfig()
	cfg.RefreshInterval = 500 * time.Millisecond
	issues := Run(cfg)
	found := false
	for _, i := range issues {
		if i.Code == "refresh_interval_low" && i.Level == LevelWarn {
			found = true
		}
	}
	if !found {
		t.Fatalf("Run() = %v, want refresh_interval_low warning", issues)
	}
}

func TestRunFlagsUnknownProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.CaptchaPrimaryProvider = "notreal"
	issues := Run(cfg)
	if !HasErrors(issues) {
		t.Fatalf("Run() = %v, want captcha_provider_unknown error", issues)
	}
}

func TestRunAllowsQwenPrefixedProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.CaptchaPrimaryProvider = "qwen3-vl-flash"
	cfg.CaptchaDashscopeAPIKey = "key"
	issues := Run(cfg)
	if HasErrors(issues) {
		t.Fatalf("Run() = %v, want no errors for qwen* provider with key set", issues)
	}
}

func TestRunFlagsMissingProviderCredential(t *testing.T) {
	cfg := baseConfig()
	cfg.CaptchaPrimaryProvider = "baidu"
	issues := Run(cfg)
	if !HasErrors(issues) {
		t.Fatalf("Run() = %v, want captcha_key_missing error for baidu without keys", issues)
	}
}

func TestRunWarnsOnProbeEnabledWithoutSharedPool(t *testing.T) {
	cfg := baseConfig()
	cfg.ProbeEnabled = true
	cfg.ProbeSharePool = false
	issues := Run(cfg)
	var codes []string
	for _, i := range issues {
		codes = append(codes, i.Code)
	}
	if !contains(codes, "captcha_probe_share_pool_false") {
		t.Fatalf("Run() codes = %v, want captcha_probe_share_pool_false", codes)
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
