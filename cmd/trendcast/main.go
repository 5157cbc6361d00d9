package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trendcast/internal/api"
	"trendcast/internal/cache"
	"trendcast/internal/cfg"
	"trendcast/internal/common"
	"trendcast/internal/exchange/bitunix"
	"trendcast/internal/exchange/coinbase"
	"trendcast/internal/market"
	"trendcast/internal/metrics"
	"trendcast/internal/ml"
	"trendcast/internal/predict"
	"trendcast/internal/scheduler"
	"trendcast/internal/storage"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c.LogLevel, c.LogFormat)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize components
	m := metrics.New()
	mw := metrics.NewWrapper(m)

	registry, err := ml.NewRegistryFromManifest(c.ManifestPath, mw)
	if err != nil {
		log.Fatal().Err(err).Str("manifest", c.ManifestPath).Msg("model registry initialization failed")
	}
	if _, err := registry.Spec(c.DefaultModel); err != nil {
		log.Fatal().Err(err).Msg("default model is not in the manifest")
	}
	if c.PreloadModels {
		if err := registry.Preload(); err != nil {
			// Healthy models keep serving; failed ones answer with ModelLoadError.
			log.WithLevel(zerolog.FatalLevel).Err(err).Msg("some models failed to load, continuing")
		}
	}

	gateway, closeCache := initializeGateway(ctx, c, mw)
	defer closeCache()

	retry := predict.NewRetryPolicy(c.FetchRetries, c.RetryDelay)
	service := predict.New(registry, gateway, retry, mw)

	store := initializeStorage(c)
	var history api.History
	var recorder scheduler.Recorder
	if store != nil {
		defer store.Close()
		history, recorder = store, store
	}

	handler := api.NewHandler(service, registry, history, c.DefaultModel)
	handler.SetStreamInterval(c.StreamInterval)
	server := api.NewServer(handler, api.ServerConfig{
		Port:           c.Port,
		AllowedOrigins: c.AllowedOrigins,
		Metrics:        m,
		Gatherer:       prometheus.DefaultGatherer,
	})
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("HTTP server failed to start")
	}

	var sched *scheduler.Scheduler
	if c.Schedule != "" {
		sched = scheduler.New(c.Schedule, c.ScheduledModels, service, recorder, mw, retry.Budget(c.FetchTimeout))
		if err := sched.Start(); err != nil {
			log.Fatal().Err(err).Msg("scheduler failed to start")
		}
	}

	log.Info().
		Int("port", c.Port).
		Strs("models", registry.Names()).
		Str("default_model", c.DefaultModel).
		Str("venue", c.Venue).
		Msg("trendcast started")

	// Wait for shutdown signal
	waitForShutdown(ctx, cancel)

	if sched != nil {
		sched.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}

func setupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// newCandleSource builds the REST client for the configured venue.
func newCandleSource(c cfg.Settings) (market.CandleSource, error) {
	switch c.Venue {
	case common.VenueBitunix:
		return bitunix.NewREST(c.BaseURL, bitunix.KlineInterval(c.CandleInterval), c.RESTTimeout)
	case common.VenueCoinbase:
		return coinbase.NewREST(c.BaseURL, c.CandleInterval, c.RESTTimeout)
	default:
		return nil, fmt.Errorf("%s, got %q", common.ErrMsgUnknownVenue, c.Venue)
	}
}

// initializeGateway wires the venue client, the gateway and, when a TTL is
// set, the series cache. Redis is used when configured and reachable;
// otherwise the cache is in-process.
func initializeGateway(ctx context.Context, c cfg.Settings, mw *metrics.MetricsWrapper) (market.Fetcher, func()) {
	source, err := newCandleSource(c)
	if err != nil {
		log.Fatal().Err(err).Str("venue", c.Venue).Msg("market data client initialization failed")
	}

	var gateway market.Fetcher = market.NewGateway(source, c.FetchTimeout, mw)
	if c.CacheTTL <= 0 {
		return gateway, func() {}
	}

	if c.RedisAddr != "" {
		rc := cache.NewRedisCache(cache.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		defer pingCancel()
		err := rc.Ping(pingCtx)
		if err == nil {
			log.Info().Str("addr", c.RedisAddr).Dur("ttl", c.CacheTTL).Msg("series cache backed by redis")
			return market.NewCachedGateway(gateway, rc, c.CacheTTL, source.Venue(), mw), func() { rc.Close() }
		}
		log.Warn().Err(err).Str("addr", c.RedisAddr).Msg("redis unreachable, using in-process series cache")
		rc.Close()
	}

	log.Info().Dur("ttl", c.CacheTTL).Msg("series cache in process")
	return market.NewCachedGateway(gateway, cache.NewTTLCache(), c.CacheTTL, source.Venue(), mw), func() {}
}

// initializeStorage initializes storage if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath != "" {
		if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
			log.Warn().Err(err).Msg("storage directory unavailable, continuing without history")
			return nil
		}
		store, err := storage.New(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, continuing without history")
			return nil
		}
		return store
	}
	return nil
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()
}
