package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rishirilab/weather-fusion-service/internal/cache"
	"github.com/rishirilab/weather-fusion-service/internal/config"
	httphandler "github.com/rishirilab/weather-fusion-service/internal/http"
	"github.com/rishirilab/weather-fusion-service/internal/observability"
	"github.com/rishirilab/weather-fusion-service/internal/orchestrator"
	"github.com/rishirilab/weather-fusion-service/internal/service"
	"github.com/rishirilab/weather-fusion-service/internal/source"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	adapters := source.FromConfig(cfg, logger)
	available := 0
	for _, a := range adapters {
		if a.Available() {
			available++
		}
		logger.Info("source configured",
			zap.String("source", a.Name()),
			zap.Float64("weight", a.Weight()),
			zap.Bool("available", a.Available()))
	}
	if available == 0 {
		logger.Warn("no source adapter is available; every request will fail with no usable data")
	}

	timeouts := map[string]time.Duration{
		"openmeteo":  cfg.OpenMeteo.Timeout,
		"amedas":     cfg.Amedas.Timeout,
		"era5":       cfg.ERA5.Timeout,
		"msm":        cfg.MSM.Timeout,
		"satellite":  cfg.Satellite.Timeout,
		"radiosonde": cfg.Radiosonde.Timeout,
	}
	orch := orchestrator.New(adapters, func(a source.Adapter) time.Duration {
		if t, ok := timeouts[a.Name()]; ok && t > 0 {
			return t
		}
		return 20 * time.Second
	}, logger)

	var resultCache cache.Cache
	var memcached *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcached = mc
		resultCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		resultCache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	fusion := service.New(orch, resultCache, service.Options{
		CacheBackend:      cfg.CacheBackend,
		CacheTTL:          cfg.CacheTTL,
		CachePrecision:    cfg.CachePrecision,
		AggregateTimeout:  cfg.AggregateTimeout,
		DefaultMinQuality: cfg.MinQualityDefault,
		CoalesceTimeout:   cfg.AggregateTimeout + 5*time.Second,
	}, logger)

	warmer := cache.NewWarmer(fusion, cfg.WarmingSpots, cfg.WarmingWindow, logger)
	if err := warmer.Start(cfg.WarmingInterval); err != nil {
		logger.Warn("cache warmer failed to start", zap.Error(err))
	}
	defer warmer.Stop()

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	var cachePing func() error
	if memcached != nil {
		cachePing = memcached.Ping
	}
	handler := httphandler.NewHandler(fusion, adapters, cfg.MinQualityDefault, cfg.MaxWindow, cachePing, logger)
	router := handler.Router(logger, limiter, cfg.RequestTimeout, observability.MetricsHandler())

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logger.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight drain interrupted",
			zap.Int64("remaining", httphandler.InFlightCount()),
			zap.Error(err))
	}
	if memcached != nil {
		_ = memcached.Close()
	}
	if err := observability.FlushTelemetry(logger); err != nil {
		fmt.Fprintf(os.Stderr, "flush telemetry: %v\n", err)
	}
	logger.Info("shutdown complete")
}
