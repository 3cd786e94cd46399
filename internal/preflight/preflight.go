// Package preflight statically validates a loaded configuration before
// any network activity starts. Run must never make a request or
// instantiate a CAPTCHA recognizer — only read already-parsed fields.
package preflight

import (
	"fmt"
	"strings"

	"github.com/pku-elective/autoelective/internal/config"
)

// Level is the severity of an Issue.
type Level string

const (
	LevelError Level = "ERROR"
	LevelWarn  Level = "WARN"
)

// Issue is one static validation finding.
type Issue struct {
	Level   Level
	Code    string
	Message string
	KeyPath string
}

func (i Issue) String() string {
	if i.KeyPath == "" {
		return fmt.Sprintf("[%s] %s: %s", i.Level, i.Code, i.Message)
	}
	return fmt.Sprintf("[%s] %s (%s): %s", i.Level, i.Code, i.KeyPath, i.Message)
}

// HasErrors reports whether any issue in the slice is LevelError.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Level == LevelError {
			return true
		}
	}
	return false
}

// isAllowedProvider mirrors the site's CAPTCHA provider allow-list:
// fixed names plus any "qwen"-prefixed alias.
func isAllowedProvider(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return false
	}
	switch n {
	case "dummy", "baidu", "gemini":
		return true
	}
	return strings.HasPrefix(n, "qwen")
}

// requiredKeyPaths returns the config fields a provider needs
// credentials for.
func requiredKeyPaths(provider string) []string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "baidu":
		return []string{"captcha.baidu_api_key", "captcha.baidu_secret_key"}
	case "gemini":
		return []string{"captcha.gemini_api_key"}
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(provider)), "qwen") {
		return []string{"captcha.dashscope_api_key"}
	}
	return nil
}

// getKeyValue reads a credential field out of cfg by its documented
// key path, explicit so preflight never has to reflect over config.
func getKeyValue(cfg *config.Config, keyPath string) string {
	switch keyPath {
	case "captcha.baidu_api_key":
		return cfg.CaptchaBaiduAPIKey
	case "captcha.baidu_secret_key":
		return cfg.CaptchaBaiduSecretKey
	case "captcha.gemini_api_key":
		return cfg.CaptchaGeminiAPIKey
	case "captcha.dashscope_api_key":
		return cfg.CaptchaDashscopeAPIKey
	}
	return ""
}

// Run validates cfg and returns every issue found. It performs no I/O
// and instantiates nothing.
func Run(cfg *config.Config) []Issue {
	var issues []Issue
	add := func(level Level, code, message, keyPath string) {
		issues = append(issues, Issue{Level: level, Code: code, Message: message, KeyPath: keyPath})
	}

	if cfg.CaptchaCodeLength < 1 {
		add(LevelError, "captcha_code_length_invalid",
			fmt.Sprintf("captcha.code_length must be > 0, got %d", cfg.CaptchaCodeLength),
			"captcha.code_length")
	}

	if cfg.RefreshInterval <= 0 {
		add(LevelError, "refresh_interval_invalid",
			fmt.Sprintf("client.refresh_interval must be > 0, got %v", cfg.RefreshInterval),
			"client.refresh_interval")
	} else if cfg.RefreshInterval.Seconds() < 1.0 {
		add(LevelWarn, "refresh_interval_low",
			fmt.Sprintf("client.refresh_interval is %v (< 1s). This may be too aggressive.", cfg.RefreshInterval),
			"client.refresh_interval")
	}

	if cfg.RefreshJitter < 0 {
		add(LevelError, "refresh_jitter_invalid",
			fmt.Sprintf("client.refresh_jitter must be >= 0, got %v", cfg.RefreshJitter),
			"client.refresh_jitter")
	}

	if cfg.PoolSize <= 0 {
		add(LevelError, "pool_size_invalid",
			fmt.Sprintf("client.pool_size must be > 0, got %d", cfg.PoolSize),
			"client.pool_size")
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.CaptchaPrimaryProvider))
	if provider != "" && !isAllowedProvider(provider) {
		add(LevelError, "captcha_provider_unknown",
			fmt.Sprintf("Unknown captcha provider: %q. Allowed: dummy/baidu/gemini/qwen*", provider),
			"captcha.provider")
	}
	if provider != "" {
		for _, kp := range requiredKeyPaths(provider) {
			if strings.TrimSpace(getKeyValue(cfg, kp)) == "" {
				add(LevelError, "captcha_key_missing",
					fmt.Sprintf("Missing required credential for provider %q: %s", provider, kp),
					kp)
			}
		}
	}

	for _, fp := range cfg.CaptchaFallback {
		fp = strings.ToLower(strings.TrimSpace(fp))
		if fp == "" {
			continue
		}
		if !isAllowedProvider(fp) {
			add(LevelError, "captcha_fallback_unknown",
				fmt.Sprintf("Unknown fallback captcha provider: %q. Allowed: dummy/baidu/gemini/qwen*", fp),
				"captcha.fallback_providers")
			continue
		}
		for _, kp := range requiredKeyPaths(fp) {
			if strings.TrimSpace(getKeyValue(cfg, kp)) == "" {
				add(LevelError, "captcha_fallback_key_missing",
					fmt.Sprintf("Missing required credential for fallback %q: %s", fp, kp),
					kp)
			}
		}
	}

	if cfg.ProbeEnabled {
		add(LevelWarn, "captcha_probe_enabled",
			"captcha.probe_enabled=true will add low-frequency background captcha requests.",
			"captcha.probe_enabled")
		if !cfg.ProbeSharePool {
			add(LevelWarn, "captcha_probe_share_pool_false",
				"captcha.probe_share_pool=false may occupy extra login/session slots. Prefer sharing the main pool unless you have quota.",
				"captcha.probe_share_pool")
		}
	}

	if cfg.RateLimitEnabled {
		add(LevelWarn, "rate_limit_enabled",
			"rate_limit.enable=true may slow burst; enable only as a safety net.",
			"rate_limit.enable")
	}

	return issues
}
