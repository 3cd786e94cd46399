// Package metrics provides Prometheus metrics for the election agent.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RoundsTotal counts elective-loop rounds by outcome.
	RoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoelective_rounds_total",
			Help: "Total elective loop rounds by outcome",
		},
		[]string{"outcome"},
	)

	// RoundDuration tracks elective-loop round duration.
	RoundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoelective_round_duration_seconds",
			Help:    "Elective loop round duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"outcome"},
	)

	// PoolSize shows the configured size of each session pool.
	PoolSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoelective_pool_size",
			Help: "Configured session pool size",
		},
		[]string{"pool"},
	)

	// PoolAvailable shows available sessions in each pool.
	PoolAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoelective_pool_available",
			Help: "Available sessions in pool",
		},
		[]string{"pool"},
	)

	// PoolResetsTotal counts session pool resets.
	PoolResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoelective_pool_resets_total",
			Help: "Total session pool resets by reason",
		},
		[]string{"reason"},
	)

	// GoalsRemaining shows how many goals are still pending.
	GoalsRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autoelective_goals_remaining",
			Help: "Number of goal courses not yet elected or ignored",
		},
	)

	// CaptchaAttemptsTotal counts CAPTCHA recognition attempts by
	// provider and outcome.
	CaptchaAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoelective_captcha_attempts_total",
			Help: "Total CAPTCHA recognition attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// CaptchaLatencySeconds tracks CAPTCHA recognition latency by provider.
	CaptchaLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoelective_captcha_latency_seconds",
			Help:    "CAPTCHA recognition latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// BreakerState exposes each breaker's tripped/untripped state as a
	// 0/1 gauge, so dashboards can render circuit state over time.
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoelective_breaker_open",
			Help: "1 if the named circuit breaker is currently open/offline, 0 otherwise",
		},
		[]string{"breaker"},
	)

	// CourseOutcomesTotal counts classifier outcomes per kind.
	CourseOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoelective_course_outcomes_total",
			Help: "Total classifier outcomes by kind",
		},
		[]string{"kind"},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autoelective_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// MemorySysBytes shows system memory obtained.
	MemorySysBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autoelective_memory_sys_bytes",
			Help: "Total memory obtained from system",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autoelective_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoelective_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		RoundsTotal,
		RoundDuration,
		PoolSize,
		PoolAvailable,
		PoolResetsTotal,
		GoalsRemaining,
		CaptchaAttemptsTotal,
		CaptchaLatencySeconds,
		BreakerState,
		CourseOutcomesTotal,
		MemoryUsageBytes,
		MemorySysBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector starts a goroutine that periodically updates
// memory metrics until stopCh is closed.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	MemorySysBytes.Set(float64(m.Sys))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordRound records metrics for a completed elective loop round.
func RecordRound(outcome string, duration time.Duration) {
	RoundsTotal.WithLabelValues(outcome).Inc()
	RoundDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordCaptchaAttempt records a CAPTCHA recognition attempt.
func RecordCaptchaAttempt(provider, outcome string, latency time.Duration) {
	CaptchaAttemptsTotal.WithLabelValues(provider, outcome).Inc()
	CaptchaLatencySeconds.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordCourseOutcome records a classifier outcome for a goal course.
func RecordCourseOutcome(kind string) {
	CourseOutcomesTotal.WithLabelValues(kind).Inc()
}

// SetBreakerState sets the open/closed gauge for a named breaker.
func SetBreakerState(name string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	BreakerState.WithLabelValues(name).Set(v)
}

// SetPoolMetrics updates the size/available gauges for a named pool.
func SetPoolMetrics(pool string, size, available int) {
	PoolSize.WithLabelValues(pool).Set(float64(size))
	PoolAvailable.WithLabelValues(pool).Set(float64(available))
}
