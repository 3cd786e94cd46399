package config

import (
	"os"
	"testing"
	"time"
)

func clearAutoelectiveEnv(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		for i := 0; i < len(env); i++ {
			if env[i] == '=' {
				key := env[:i]
				if len(key) > 12 && key[:12] == "AUTOELECTIVE" {
					old, had := os.LookupEnv(key)
					os.Unsetenv(key)
					if had {
						t.Cleanup(func() { os.Setenv(key, old) })
					}
				}
				break
			}
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAutoelectiveEnv(t)

	cfg := Load()
	if cfg.RefreshInterval != 5*time.Second {
		t.Errorf("RefreshInterval = %v, want 5s", cfg.RefreshInterval)
	}
	if cfg.PoolSize != 2 {
		t.Errorf("PoolSize = %d, want 2", cfg.PoolSize)
	}
	if cfg.CaptchaPrimaryProvider != "dummy" {
		t.Errorf("CaptchaPrimaryProvider = %q, want dummy", cfg.CaptchaPrimaryProvider)
	}
	if !cfg.RateLimitEnabled {
		t.Errorf("RateLimitEnabled = false, want true by default")
	}
}

func TestLoadRespectsEnvOverride(t *testing.T) {
	clearAutoelectiveEnv(t)
	os.Setenv("AUTOELECTIVE_POOL_SIZE", "7")
	defer os.Unsetenv("AUTOELECTIVE_POOL_SIZE")

	cfg := Load()
	if cfg.PoolSize != 7 {
		t.Errorf("PoolSize = %d, want 7 from env override", cfg.PoolSize)
	}
}

func TestValidateCapsRefreshInterval(t *testing.T) {
	cfg := &Config{RefreshInterval: time.Hour, PoolSize: 1, CaptchaCodeLength: 4, CaptchaNativeAttempts: 1}
	cfg.Validate()
	if cfg.RefreshInterval != maxRefreshInterval {
		t.Errorf("RefreshInterval = %v, want capped to %v", cfg.RefreshInterval, maxRefreshInterval)
	}
}

func TestValidateRejectsNonPositiveRefreshInterval(t *testing.T) {
	cfg := &Config{RefreshInterval: 0, PoolSize: 1, CaptchaCodeLength: 4, CaptchaNativeAttempts: 1}
	cfg.Validate()
	if cfg.RefreshInterval != 5*time.Second {
		t.Errorf("RefreshInterval = %v, want default 5s", cfg.RefreshInterval)
	}
}

func TestValidateCapsPoolSize(t *testing.T) {
	cfg := &Config{RefreshInterval: time.Second, PoolSize: 1000, CaptchaCodeLength: 4, CaptchaNativeAttempts: 1}
	cfg.Validate()
	if cfg.PoolSize != maxPoolSize {
		t.Errorf("PoolSize = %d, want capped to %d", cfg.PoolSize, maxPoolSize)
	}
}
