// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration upper bounds to prevent runaway settings from a typo'd
// environment variable turning into a hammering loop against the site.
const (
	maxRefreshInterval = 10 * time.Minute
	maxPoolSize        = 50
	maxRateLimitPerSec = 100
	maxCaptchaAttempts = 20
	minCodeLength      = 1
	maxCodeLength      = 12
)

// Config holds all application configuration. Scalar values are loaded
// from environment variables at startup, including the CAPTCHA provider
// chain (CaptchaPrimaryProvider/CaptchaFallback); the goal set and
// mutex/delay rules are structured data loaded separately by
// GoalSetManager (see goalset.go).
type Config struct {
	// Identity / credentials
	StudentID string
	Password  string

	// Polling
	RefreshInterval time.Duration
	RefreshJitter   float64 // fraction of RefreshInterval, e.g. 0.2 = ±20%
	ProbeInterval   time.Duration
	ProbeEnabled    bool
	ProbeSharePool  bool

	// Session pool
	PoolSize          int
	ProbePoolSize     int
	ReloginPoolSize   int
	SessionTTL        time.Duration
	PoolResetCooldown time.Duration

	// CAPTCHA
	CaptchaPrimaryProvider    string
	CaptchaFallback           []string
	CaptchaCodeLength         int
	CaptchaNativeAttempts     int
	CaptchaDegradeEnabled     bool
	CaptchaDegradeWindow      time.Duration
	CaptchaDegradeCooldown    time.Duration
	CaptchaDegradeFailures    int
	CaptchaSwitchOnDegrade    bool
	CaptchaAdaptiveEnabled    bool
	CaptchaAdaptiveMinSamples int
	CaptchaAdaptiveEpsilon    float64
	CaptchaSamplingEnabled    bool
	CaptchaSamplingRate       float64
	CaptchaSamplingDir        string

	// CAPTCHA provider credentials, read only by preflight and the
	// provider factories that need them — never logged.
	CaptchaBaiduAPIKey     string
	CaptchaBaiduSecretKey  string
	CaptchaGeminiAPIKey    string
	CaptchaDashscopeAPIKey string

	// Circuit breakers
	OfflineThreshold   int
	OfflineProbeEvery  time.Duration
	OfflineObserveFor  time.Duration
	AuthFailThreshold  int
	AuthCooldown       time.Duration
	HTMLParseThreshold int
	HTMLParseCooldown  time.Duration
	CriticalCooldown   time.Duration

	// Rate limiting
	RateLimitEnabled   bool
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Goal set / rules source
	GoalSetPath      string
	GoalSetHotReload bool

	// Logging
	LogLevel string

	// Notification
	NotifyWebhookURL       string
	NotifyTitlePrefix      string
	NotifyDegradeInterval  time.Duration
	NotifyCriticalInterval time.Duration
	NotifyErrorAggInterval time.Duration

	// Metrics
	MetricsEnabled bool
	MetricsAddr    string

	// Rehearsal / fixtures
	FixtureDir     string
	StrictSanitize bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		StudentID: getEnvString("AUTOELECTIVE_STUDENT_ID", ""),
		Password:  getEnvString("AUTOELECTIVE_PASSWORD", ""),

		RefreshInterval: getEnvDuration("AUTOELECTIVE_REFRESH_INTERVAL", 5*time.Second),
		RefreshJitter:   getEnvFloat("AUTOELECTIVE_REFRESH_JITTER", 0.2),
		ProbeInterval:   getEnvDuration("AUTOELECTIVE_PROBE_INTERVAL", 60*time.Second),
		ProbeEnabled:    getEnvBool("AUTOELECTIVE_PROBE_ENABLED", false),
		ProbeSharePool:  getEnvBool("AUTOELECTIVE_PROBE_SHARE_POOL", true),

		PoolSize:          getEnvInt("AUTOELECTIVE_POOL_SIZE", 2),
		ProbePoolSize:     getEnvInt("AUTOELECTIVE_PROBE_POOL_SIZE", 1),
		ReloginPoolSize:   getEnvInt("AUTOELECTIVE_RELOGIN_POOL_SIZE", 1),
		SessionTTL:        getEnvDuration("AUTOELECTIVE_SESSION_TTL", 25*time.Minute),
		PoolResetCooldown: getEnvDuration("AUTOELECTIVE_POOL_RESET_COOLDOWN", 30*time.Second),

		CaptchaPrimaryProvider:    getEnvString("AUTOELECTIVE_CAPTCHA_PROVIDER", "dummy"),
		CaptchaFallback:           getEnvStringSlice("AUTOELECTIVE_CAPTCHA_FALLBACK", nil),
		CaptchaCodeLength:         getEnvInt("AUTOELECTIVE_CAPTCHA_CODE_LENGTH", 4),
		CaptchaNativeAttempts:     getEnvInt("AUTOELECTIVE_CAPTCHA_NATIVE_ATTEMPTS", 3),
		CaptchaDegradeEnabled:     getEnvBool("AUTOELECTIVE_CAPTCHA_DEGRADE_ENABLED", true),
		CaptchaDegradeWindow:      getEnvDuration("AUTOELECTIVE_CAPTCHA_DEGRADE_WINDOW", 5*time.Minute),
		CaptchaDegradeCooldown:    getEnvDuration("AUTOELECTIVE_CAPTCHA_DEGRADE_COOLDOWN", 2*time.Minute),
		CaptchaDegradeFailures:    getEnvInt("AUTOELECTIVE_CAPTCHA_DEGRADE_FAILURES", 2),
		CaptchaSwitchOnDegrade:    getEnvBool("AUTOELECTIVE_CAPTCHA_SWITCH_ON_DEGRADE", false),
		CaptchaAdaptiveEnabled:    getEnvBool("AUTOELECTIVE_CAPTCHA_ADAPTIVE_ENABLED", true),
		CaptchaAdaptiveMinSamples: getEnvInt("AUTOELECTIVE_CAPTCHA_ADAPTIVE_MIN_SAMPLES", 10),
		CaptchaAdaptiveEpsilon:    getEnvFloat("AUTOELECTIVE_CAPTCHA_ADAPTIVE_EPSILON", 0.1),
		CaptchaSamplingEnabled:    getEnvBool("AUTOELECTIVE_CAPTCHA_SAMPLING_ENABLED", false),
		CaptchaSamplingRate:       getEnvFloat("AUTOELECTIVE_CAPTCHA_SAMPLING_RATE", 0.01),
		CaptchaSamplingDir:        getEnvString("AUTOELECTIVE_CAPTCHA_SAMPLING_DIR", "./captcha_samples"),

		CaptchaBaiduAPIKey:     getEnvString("AUTOELECTIVE_CAPTCHA_BAIDU_API_KEY", ""),
		CaptchaBaiduSecretKey:  getEnvString("AUTOELECTIVE_CAPTCHA_BAIDU_SECRET_KEY", ""),
		CaptchaGeminiAPIKey:    getEnvString("AUTOELECTIVE_CAPTCHA_GEMINI_API_KEY", ""),
		CaptchaDashscopeAPIKey: getEnvString("AUTOELECTIVE_CAPTCHA_DASHSCOPE_API_KEY", ""),

		OfflineThreshold:   getEnvInt("AUTOELECTIVE_OFFLINE_THRESHOLD", 5),
		OfflineProbeEvery:  getEnvDuration("AUTOELECTIVE_OFFLINE_PROBE_EVERY", 30*time.Second),
		OfflineObserveFor:  getEnvDuration("AUTOELECTIVE_OFFLINE_OBSERVE_FOR", 2*time.Minute),
		AuthFailThreshold:  getEnvInt("AUTOELECTIVE_AUTH_FAIL_THRESHOLD", 3),
		AuthCooldown:       getEnvDuration("AUTOELECTIVE_AUTH_COOLDOWN", 5*time.Minute),
		HTMLParseThreshold: getEnvInt("AUTOELECTIVE_HTML_PARSE_THRESHOLD", 5),
		HTMLParseCooldown:  getEnvDuration("AUTOELECTIVE_HTML_PARSE_COOLDOWN", 10*time.Minute),
		CriticalCooldown:   getEnvDuration("AUTOELECTIVE_CRITICAL_COOLDOWN", 2*time.Hour),

		RateLimitEnabled:   getEnvBool("AUTOELECTIVE_RATE_LIMIT_ENABLED", true),
		RateLimitPerSecond: getEnvFloat("AUTOELECTIVE_RATE_LIMIT_PER_SECOND", 2),
		RateLimitBurst:     getEnvInt("AUTOELECTIVE_RATE_LIMIT_BURST", 4),

		GoalSetPath:      getEnvString("AUTOELECTIVE_GOALSET_PATH", "./goalset.yaml"),
		GoalSetHotReload: getEnvBool("AUTOELECTIVE_GOALSET_HOT_RELOAD", true),

		LogLevel: getEnvString("AUTOELECTIVE_LOG_LEVEL", "info"),

		NotifyWebhookURL:       getEnvString("AUTOELECTIVE_NOTIFY_WEBHOOK_URL", ""),
		NotifyTitlePrefix:      getEnvString("AUTOELECTIVE_NOTIFY_TITLE_PREFIX", "[autoelective]"),
		NotifyDegradeInterval:  getEnvDuration("AUTOELECTIVE_NOTIFY_DEGRADE_INTERVAL", 10*time.Minute),
		NotifyCriticalInterval: getEnvDuration("AUTOELECTIVE_NOTIFY_CRITICAL_INTERVAL", time.Minute),
		NotifyErrorAggInterval: getEnvDuration("AUTOELECTIVE_NOTIFY_ERROR_AGG_INTERVAL", 5*time.Minute),

		MetricsEnabled: getEnvBool("AUTOELECTIVE_METRICS_ENABLED", true),
		MetricsAddr:    getEnvString("AUTOELECTIVE_METRICS_ADDR", "127.0.0.1:9101"),

		FixtureDir:     getEnvString("AUTOELECTIVE_FIXTURE_DIR", "./fixtures"),
		StrictSanitize: getEnvBool("AUTOELECTIVE_STRICT_SANITIZE", false),
	}
}

// Validate checks configuration values and corrects out-of-range ones
// to sensible defaults. Corrections to the refresh, pool size, CAPTCHA
// and rate-limit ceiling settings log a warning; the lower-bound clamps
// on probe/relogin pool sizes, rate-limit rate and burst, and breaker
// thresholds are applied silently.
func (c *Config) Validate() {
	if c.RefreshInterval <= 0 {
		log.Warn().Dur("interval", c.RefreshInterval).Msg("invalid refresh interval, using default 5s")
		c.RefreshInterval = 5 * time.Second
	} else if c.RefreshInterval > maxRefreshInterval {
		log.Warn().Dur("interval", c.RefreshInterval).Dur("max", maxRefreshInterval).Msg("refresh interval too high, capping")
		c.RefreshInterval = maxRefreshInterval
	}
	if c.RefreshJitter < 0 || c.RefreshJitter > 1 {
		log.Warn().Float64("jitter", c.RefreshJitter).Msg("invalid refresh jitter, using default 0.2")
		c.RefreshJitter = 0.2
	}

	if c.PoolSize < 1 {
		log.Warn().Int("size", c.PoolSize).Msg("invalid pool size, using default 2")
		c.PoolSize = 2
	} else if c.PoolSize > maxPoolSize {
		log.Warn().Int("size", c.PoolSize).Int("max", maxPoolSize).Msg("pool size too large, capping")
		c.PoolSize = maxPoolSize
	}
	if c.ProbePoolSize < 0 {
		c.ProbePoolSize = 0
	}
	if c.ReloginPoolSize < 1 {
		c.ReloginPoolSize = 1
	}

	if c.CaptchaCodeLength < minCodeLength || c.CaptchaCodeLength > maxCodeLength {
		log.Warn().Int("length", c.CaptchaCodeLength).Msg("invalid captcha code length, using default 4")
		c.CaptchaCodeLength = 4
	}
	if c.CaptchaNativeAttempts < 1 || c.CaptchaNativeAttempts > maxCaptchaAttempts {
		log.Warn().Int("attempts", c.CaptchaNativeAttempts).Msg("invalid native attempts, using default 3")
		c.CaptchaNativeAttempts = 3
	}

	if c.RateLimitPerSecond < 0 {
		c.RateLimitPerSecond = 0
	} else if c.RateLimitPerSecond > maxRateLimitPerSec {
		log.Warn().Float64("rate", c.RateLimitPerSecond).Msg("rate limit too high, capping")
		c.RateLimitPerSecond = maxRateLimitPerSec
	}
	if c.RateLimitBurst < 1 {
		c.RateLimitBurst = 1
	}

	if c.OfflineThreshold < 1 {
		c.OfflineThreshold = 1
	}
	if c.AuthFailThreshold < 1 {
		c.AuthFailThreshold = 1
	}
	if c.HTMLParseThreshold < 1 {
		c.HTMLParseThreshold = 1
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Float64("default", defaultValue).
			Msg("invalid float in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().Str("key", key).Str("value", value).Dur("default", defaultValue).
				Msg("duration must be positive, using default")
			return defaultValue
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
