// Command fluxgated is fluxgate's standalone decision service: it wires
// the store, rule-set provider, cache, resilience envelope, reload
// strategy, and engine together behind the HTTP decision endpoint. The
// embedded request-path filter (package filter) is not wired here.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fluxgate/fluxgate"
	"github.com/fluxgate/fluxgate/endpoint"
	fluxgateconfig "github.com/fluxgate/fluxgate/internal/config"
	"github.com/fluxgate/fluxgate/metrics"
	"github.com/fluxgate/fluxgate/reload"
	"github.com/fluxgate/fluxgate/resilience"
	"github.com/fluxgate/fluxgate/store"
	"github.com/fluxgate/fluxgate/store/memory"
	storeredis "github.com/fluxgate/fluxgate/store/redis"

	pgruleset "github.com/fluxgate/fluxgate/ruleset/postgres"
	yamlruleset "github.com/fluxgate/fluxgate/ruleset/yaml"
)

func main() {
	setupLogger()
	log.Info().Msg("fluxgated starting")

	cfg, err := fluxgateconfig.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	backend, pubsubSource, err := buildBackend(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build store backend")
	}

	envelope := resilience.New(backend, resilience.Config{
		Retry: resilience.RetryConfig{
			Attempts:     cfg.Resilience.RetryAttempts,
			InitialDelay: cfg.Resilience.RetryInitialDelay,
			Multiplier:   2.0,
			MaxDelay:     cfg.Resilience.RetryMaxDelay,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold:              cfg.Resilience.BreakerFailureThreshold,
			WaitDurationInOpenState:       cfg.Resilience.BreakerWaitDurationOpen,
			PermittedCallsInHalfOpenState: cfg.Resilience.BreakerPermittedHalfOpen,
			Fallback:                      resilience.FallbackStrategy(cfg.Resilience.BreakerFallback),
		},
	})

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build rule-set provider")
	}

	// NONE disables caching entirely (§4.6): every check hits the provider
	// directly, rather than ever risking a stale cached rule-set with no
	// reload path to invalidate it.
	reloadMode := fluxgate.ReloadMode(cfg.Reload.Mode)
	effectiveProvider := provider
	var reloadSink fluxgate.ReloadSink
	if reloadMode != fluxgate.ReloadNone {
		cache := fluxgate.NewRuleCache(cfg.RuleSets.CacheMaxSize, cfg.RuleSets.CacheTTL)
		cachingProvider := fluxgate.NewCachingProvider(provider, cache)
		effectiveProvider = cachingProvider
		reloadSink = cachingProvider
	}

	recorder := metrics.New(prometheus.DefaultRegisterer)

	limiter := fluxgate.NewRateLimiter(envelope, nil)
	engine, err := fluxgate.NewEngine(
		fluxgate.WithProvider(effectiveProvider),
		fluxgate.WithRateLimiter(limiter),
		fluxgate.WithMetrics(recorder),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}

	strategy := reload.Resolve(reloadMode, pubsubSource, cfg.Reload.Channel)
	if strategy != nil {
		go func() {
			if err := strategy.Run(reloadSink); err != nil {
				log.Error().Err(err).Msg("reload strategy exited")
			}
		}()
	}

	app := fiber.New()
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	endpoint.New(engine, cfg.RuleSets.DefaultId).Register(app)

	app.Server().ReadTimeout = cfg.Server.ReadTimeout
	app.Server().WriteTimeout = cfg.Server.WriteTimeout

	setupGracefulShutdown(app, strategy, envelope)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("starting HTTP server")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("HTTP server failed")
	}
}

// buildBackend constructs the configured store backend. pubsubSource is
// non-nil only when the backend exposes a pub/sub surface (redis),
// letting reload.Resolve pick AUTO mode correctly.
func buildBackend(cfg *fluxgateconfig.Config) (store.Backend, any, error) {
	switch cfg.Store.Backend {
	case "memory":
		return memory.New(), nil, nil
	default:
		backend, err := storeredis.New(storeredis.Config{RedisURL: cfg.Store.RedisURL})
		if err != nil {
			return nil, nil, err
		}
		return backend, backend, nil
	}
}

func buildProvider(cfg *fluxgateconfig.Config) (fluxgate.RuleSetProvider, error) {
	switch cfg.RuleSets.Provider {
	case "postgres":
		return pgruleset.New(context.Background(), pgruleset.Config{ConnString: cfg.RuleSets.PostgresURL})
	default:
		return yamlruleset.New(cfg.RuleSets.YamlDir)
	}
}

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if os.Getenv("LOG_FORMAT") == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// setupGracefulShutdown joins the HTTP server's and the reload strategy's
// shutdown within one grace period using an errgroup: each stops
// independently, and the group surfaces the first error without waiting
// out the others serially. The store backend is closed after the group
// has finished.
func setupGracefulShutdown(app *fiber.App, strategy fluxgate.ReloadStrategy, backend store.Backend) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ctx.Done()
		stop()

		log.Info().Msg("received shutdown signal, shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var group errgroup.Group
		group.Go(func() error {
			if strategy != nil {
				strategy.Stop()
			}
			return nil
		})
		group.Go(func() error {
			return app.ShutdownWithContext(shutdownCtx)
		})
		if err := group.Wait(); err != nil {
			log.Error().Err(err).Msg("error during HTTP shutdown")
		}

		if err := backend.Close(); err != nil {
			log.Error().Err(err).Msg("error closing store backend")
		}

		log.Info().Msg("shutdown complete")
	}()
}
