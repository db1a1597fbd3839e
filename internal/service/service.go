// Package service wires the fusion pipeline behind the one operation this
// core exposes: cache-aside lookup, concurrent source fan-out, hourly
// alignment, quality-weighted fusion, plausibility gating, and threshold
// filtering.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rishirilab/weather-fusion-service/internal/align"
	"github.com/rishirilab/weather-fusion-service/internal/cache"
	"github.com/rishirilab/weather-fusion-service/internal/fuse"
	"github.com/rishirilab/weather-fusion-service/internal/models"
	"github.com/rishirilab/weather-fusion-service/internal/observability"
	"github.com/rishirilab/weather-fusion-service/internal/orchestrator"
	"github.com/rishirilab/weather-fusion-service/internal/quality"
)

// ErrNoUsableData is the only caller-visible failure: every source was
// unavailable, failed, or returned nothing for the window — or everything
// fused fell below the caller's quality bar. Silently returning an empty
// series would hide a systemic outage, so the reason travels with the error.
var ErrNoUsableData = errors.New("no usable data")

// Options configures a FusionService.
type Options struct {
	CacheBackend      string // metrics label: "in_memory" or "memcached"
	CacheTTL          time.Duration
	CachePrecision    int
	AggregateTimeout  time.Duration
	DefaultMinQuality float64
	CoalesceTimeout   time.Duration // 0 disables request coalescing
}

// FusionService is the fused-weather pipeline. The cache is the only shared
// mutable state; everything downstream of the orchestrator is pure.
type FusionService struct {
	orch      *orchestrator.Orchestrator
	cache     cache.Cache
	opts      Options
	coalescer *requestCoalescer
	stampede  *stampedeTracker
	logger    *zap.Logger
}

// New creates a FusionService.
func New(orch *orchestrator.Orchestrator, c cache.Cache, opts Options, logger *zap.Logger) *FusionService {
	var coalescer *requestCoalescer
	if opts.CoalesceTimeout > 0 {
		coalescer = newRequestCoalescer(opts.CoalesceTimeout)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	return &FusionService{
		orch:      orch,
		cache:     c,
		opts:      opts,
		coalescer: coalescer,
		stampede:  newStampedeTracker(),
		logger:    logger,
	}
}

// GetFusedWeather returns the fused hourly series for (lat, lon, [start,end)).
// minQuality < 0 selects the configured default. The cached value is the
// scrubbed, pre-threshold series, so one entry serves every minQuality; the
// threshold is applied per call and never changes what is stored.
func (s *FusionService) GetFusedWeather(ctx context.Context, lat, lon float64, start, end time.Time, minQuality float64) (models.FusedSeries, error) {
	if minQuality < 0 {
		minQuality = s.opts.DefaultMinQuality
	}
	start, end = start.UTC(), end.UTC()
	key := cache.Key(lat, lon, start, end, s.opts.CachePrecision)
	logger := s.requestLogger(ctx)

	if series, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		observability.CacheHitsTotal.WithLabelValues(s.opts.CacheBackend).Inc()
		if logger != nil {
			logger.Debug("cache hit", zap.String("key", key))
		}
		series.Cached = true
		return s.applyThreshold(series, minQuality)
	} else if err != nil && logger != nil {
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}

	observability.CacheMissesTotal.WithLabelValues(s.opts.CacheBackend).Inc()
	if concurrent := s.stampede.RecordMiss(key); concurrent > 1 {
		observability.CacheStampedeDetectedTotal.Inc()
	}
	defer s.stampede.RecordHit(key)

	var (
		series models.FusedSeries
		err    error
	)
	if s.coalescer != nil {
		series, err = s.coalescer.GetOrDo(ctx, key, func() (models.FusedSeries, error) {
			return s.runPipeline(context.WithoutCancel(ctx), lat, lon, start, end)
		})
	} else {
		series, err = s.runPipeline(ctx, lat, lon, start, end)
	}
	if err != nil {
		observability.NoUsableDataTotal.Inc()
		return models.FusedSeries{}, err
	}

	if setErr := s.cache.Set(ctx, key, series, s.opts.CacheTTL); setErr != nil && logger != nil {
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
	}

	return s.applyThreshold(series, minQuality)
}

// runPipeline executes one full upstream fan-out plus fusion for a cache
// miss. The returned series is scrubbed but not threshold-filtered.
func (s *FusionService) runPipeline(ctx context.Context, lat, lon float64, start, end time.Time) (models.FusedSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.AggregateTimeout)
	defer cancel()

	res := s.orch.FetchAll(ctx, lat, lon, start, end)
	diag := models.Diagnostics{
		SourcesQueried:     res.SourcesQueried,
		SourcesUnavailable: res.SourcesUnavailable,
		SourcesFailed:      res.SourcesFailed,
	}

	if res.SourcesQueried == 0 {
		return models.FusedSeries{}, fmt.Errorf("%w: no source is configured and available", ErrNoUsableData)
	}
	if !res.Succeeded() {
		return models.FusedSeries{}, fmt.Errorf("%w: all %d queried sources failed", ErrNoUsableData, res.SourcesQueried)
	}

	raw := res.Union()
	for i := range raw {
		diag.FieldsDroppedRange += quality.ScrubObservation(&raw[i], s.logger)
	}

	aligned := align.Bucket(raw)
	diag.ObservationsDropped = aligned.Dropped
	for i := 0; i < aligned.Dropped; i++ {
		observability.ObservationsDroppedTotal.Inc()
	}
	if len(aligned.Buckets) == 0 {
		return models.FusedSeries{}, fmt.Errorf("%w: sources returned no observations for the window", ErrNoUsableData)
	}

	points := fuse.FuseBuckets(aligned.Buckets, lat, lon)
	for range points {
		observability.FusedPointsTotal.Inc()
	}

	scrubbed, dropped := quality.ScrubSeries(points, s.logger)
	diag.FieldsDroppedRange += dropped
	if len(scrubbed) == 0 {
		return models.FusedSeries{}, fmt.Errorf("%w: every fused point failed plausibility checks", ErrNoUsableData)
	}

	return models.FusedSeries{Points: scrubbed, Diagnostics: diag}, nil
}

// applyThreshold filters the series by minQuality. An entirely filtered-out
// series is the explicit no-data failure, not a silent empty result.
func (s *FusionService) applyThreshold(series models.FusedSeries, minQuality float64) (models.FusedSeries, error) {
	kept, below := quality.Threshold(series.Points, minQuality)
	series.Points = kept
	series.Diagnostics.PointsBelowQuality = below
	if len(kept) == 0 && below > 0 {
		observability.NoUsableDataTotal.Inc()
		return series, fmt.Errorf("%w: all %d fused points below minimum quality %.2f", ErrNoUsableData, below, minQuality)
	}
	return series, nil
}

// requestLogger extracts the request-scoped logger from ctx, falling back to
// the service logger.
func (s *FusionService) requestLogger(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return s.logger
}
