package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pku-elective/autoelective/internal/breaker"
	"github.com/pku-elective/autoelective/internal/captcha"
	"github.com/pku-elective/autoelective/internal/classifier"
	"github.com/pku-elective/autoelective/internal/config"
	"github.com/pku-elective/autoelective/internal/elective"
	"github.com/pku-elective/autoelective/internal/loop"
	"github.com/pku-elective/autoelective/internal/metrics"
	"github.com/pku-elective/autoelective/internal/preflight"
	"github.com/pku-elective/autoelective/internal/ratelimit"
	"github.com/pku-elective/autoelective/internal/schedule"
	"github.com/pku-elective/autoelective/internal/session"
	"github.com/pku-elective/autoelective/pkg/version"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the election agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(runMain())
			return nil
		},
	}
}

// runMain wires every collaborator and blocks until a shutdown signal
// or the goal set is resolved, returning the process exit code.
func runMain() int {
	if err := loadConfigFile(configPath); err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("failed to load config file")
		return exitConfigError
	}

	cfg := config.Load()
	cfg.Validate()
	printBanner()

	issues := preflight.Run(cfg)
	for _, issue := range issues {
		if issue.Level == preflight.LevelError {
			log.Error().Str("code", issue.Code).Str("key", issue.KeyPath).Msg(issue.Message)
		} else {
			log.Warn().Str("code", issue.Code).Str("key", issue.KeyPath).Msg(issue.Message)
		}
	}
	if preflight.HasErrors(issues) {
		log.Error().Msg("preflight validation failed, refusing to start")
		return exitConfigError
	}

	goalMgr, err := config.NewGoalSetManager(cfg.GoalSetPath, cfg.GoalSetHotReload)
	if err != nil {
		log.Error().Err(err).Msg("failed to start goal set manager")
		return exitConfigError
	}
	defer goalMgr.Close()

	goals, rules := goalMgr.Current().ToDomain()
	if goals.Done() {
		log.Warn().Msg("goal set is empty or already fully resolved, nothing to do")
		return exitOK
	}

	rt := loop.NewRuntime(cfg)
	breakers := loop.NewBreakers(cfg, breaker.RealClock)

	sessions := session.NewManager(newSessionFactory(), cfg.PoolSize, effectiveProbePoolSize(cfg), cfg.ReloginPoolSize, cfg.PoolResetCooldown)

	chain, router, err := buildCaptchaChain(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to build captcha chain")
		return exitConfigError
	}

	if cfg.CaptchaSwitchOnDegrade {
		breakers.Degrade.SetOnTrip(chain.RotateForward)
	}

	sched := schedule.NewCache(elective.ScheduleFetcher{Client: elective.New(cfg.StudentID, cfg.Password)}, 6*time.Hour)
	limiter := buildRateLimiter(cfg)
	cls := classifier.New(nil, classifier.NewDumper(cfg.FixtureDir))

	electiveLoop := loop.NewElectiveLoop(cfg, rt, breakers, sessions, sched, cls, chain, router, limiter, goals, rules)
	loginLoop := loop.NewLoginLoop(cfg, rt, breakers, sessions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metrics.SetBuildInfo(version.Full(), version.GoVersion())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		go func() {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		stopCh := make(chan struct{})
		go metrics.StartMemoryCollector(15*time.Second, stopCh)
		defer close(stopCh)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { electiveLoop.Run(gctx); cancel(); return nil })
	g.Go(func() error { loginLoop.Run(gctx); return nil })
	if cfg.ProbeEnabled {
		probeLoop := loop.NewProbeLoop(cfg, breakers, sessions, chain, router)
		g.Go(func() error { probeLoop.Run(gctx); return nil })
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
	case <-gctx.Done():
		log.Info().Msg("all goals resolved, shutting down")
	}
	signal.Stop(quit)
	cancel()

	_ = g.Wait()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	log.Info().Msg("shutdown complete")
	return exitOK
}

// effectiveProbePoolSize honors ProbeSharePool: when the probe pool
// shares the elective pool, no dedicated probe-kind sessions are
// pre-warmed (the probe loop borrows an idle elective session via a
// non-blocking TryAcquire instead, skipping its tick when none is idle).
func effectiveProbePoolSize(cfg *config.Config) int {
	if cfg.ProbeSharePool {
		return 0
	}
	return cfg.ProbePoolSize
}

func newSessionFactory() session.Factory {
	return func(kind session.Kind, generation int64) *session.Session {
		return session.New(fmt.Sprintf("%s-%d-%d", kind, generation, time.Now().UnixNano()), generation, kind, elective.RandomUserAgent())
	}
}

// buildCaptchaChain assembles the provider chain and adaptive router
// from cfg.CaptchaPrimaryProvider/CaptchaFallback. Router state is not
// persisted or reloaded: a fresh process starts cold.
func buildCaptchaChain(cfg *config.Config) (*captcha.Chain, *captcha.AdaptiveRouter, error) {
	order := append([]string{cfg.CaptchaPrimaryProvider}, cfg.CaptchaFallback...)
	providers := make(map[string]captcha.Recognizer, len(order))
	providerCfg := map[string]string{
		"code_length":       fmt.Sprintf("%d", cfg.CaptchaCodeLength),
		"baidu_api_key":     cfg.CaptchaBaiduAPIKey,
		"baidu_secret_key":  cfg.CaptchaBaiduSecretKey,
		"gemini_api_key":    cfg.CaptchaGeminiAPIKey,
		"dashscope_api_key": cfg.CaptchaDashscopeAPIKey,
	}
	for _, name := range order {
		if _, ok := providers[name]; ok {
			continue
		}
		r, err := captcha.Get(name, providerCfg)
		if err != nil {
			return nil, nil, err
		}
		providers[name] = r
	}

	var router *captcha.AdaptiveRouter
	if cfg.CaptchaAdaptiveEnabled {
		router = captcha.NewAdaptiveRouter(order,
			captcha.WithEnabled(true),
			captcha.WithMinSamples(cfg.CaptchaAdaptiveMinSamples),
			captcha.WithEpsilon(cfg.CaptchaAdaptiveEpsilon))
	}

	var sampler *captcha.Sampler
	if cfg.CaptchaSamplingEnabled {
		sampler = captcha.NewSampler(cfg.CaptchaSamplingDir, cfg.CaptchaSamplingRate)
	}

	chain := captcha.NewChain(captcha.ChainConfig{
		Providers:      providers,
		Order:          order,
		NativeAttempts: cfg.CaptchaNativeAttempts,
		Router:         router,
		Sampler:        sampler,
	})
	return chain, router, nil
}

func buildRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimitEnabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
}
