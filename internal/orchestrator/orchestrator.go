// Package orchestrator fans a fetch out to every available source adapter
// concurrently, bounds each by its per-source timeout, and tolerates partial
// failure: a slow or broken provider contributes nothing, never an error.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rishirilab/weather-fusion-service/internal/models"
	"github.com/rishirilab/weather-fusion-service/internal/observability"
	"github.com/rishirilab/weather-fusion-service/internal/source"
)

// Result is one fan-out's outcome: observations per source (failed or
// timed-out sources map to an empty slice) and the absorbed-failure counts.
type Result struct {
	BySource           map[string][]models.RawObservation
	SourcesQueried     int
	SourcesUnavailable int
	SourcesFailed      int
}

// Succeeded reports whether at least one source returned without error.
// An empty union with Succeeded()==true is thin coverage, not an outage.
func (r Result) Succeeded() bool {
	return r.SourcesQueried > r.SourcesFailed
}

// Union flattens the per-source observations into one slice.
func (r Result) Union() []models.RawObservation {
	var all []models.RawObservation
	for _, observations := range r.BySource {
		all = append(all, observations...)
	}
	return all
}

// Orchestrator runs the concurrent fan-out. Fan-out width is bounded by the
// number of configured adapters, so there is no unbounded concurrency.
type Orchestrator struct {
	adapters         []source.Adapter
	perSourceTimeout func(source.Adapter) time.Duration
	logger           *zap.Logger
}

// New creates an Orchestrator over the given adapters. timeoutFor returns
// the per-source deadline; nil means 20s for every source.
func New(adapters []source.Adapter, timeoutFor func(source.Adapter) time.Duration, logger *zap.Logger) *Orchestrator {
	if timeoutFor == nil {
		timeoutFor = func(source.Adapter) time.Duration { return 20 * time.Second }
	}
	return &Orchestrator{
		adapters:         adapters,
		perSourceTimeout: timeoutFor,
		logger:           logger,
	}
}

// FetchAll queries every available adapter concurrently and collects what
// lands before each per-source deadline. The ctx carries the aggregate
// request deadline; each fetch additionally gets its own tighter timeout.
func (o *Orchestrator) FetchAll(ctx context.Context, lat, lon float64, start, end time.Time) Result {
	res := Result{BySource: make(map[string][]models.RawObservation)}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, adapter := range o.adapters {
		if !adapter.Available() {
			res.SourcesUnavailable++
			if o.logger != nil {
				o.logger.Debug("source unavailable, skipped", zap.String("source", adapter.Name()))
			}
			continue
		}
		res.SourcesQueried++

		wg.Add(1)
		go func(a source.Adapter) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, o.perSourceTimeout(a))
			defer cancel()

			began := time.Now()
			observations, err := a.Fetch(fetchCtx, lat, lon, start, end)
			elapsed := time.Since(began)
			observability.SourceFetchDuration.WithLabelValues(a.Name()).Observe(elapsed.Seconds())

			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
					observability.SourceTimeoutsTotal.WithLabelValues(a.Name()).Inc()
				}
				observability.SourceFetchesTotal.WithLabelValues(a.Name(), "error").Inc()
				if o.logger != nil {
					o.logger.Warn("source fetch failed",
						zap.String("source", a.Name()),
						zap.Duration("elapsed", elapsed),
						zap.Error(err))
				}
				mu.Lock()
				res.SourcesFailed++
				res.BySource[a.Name()] = nil
				mu.Unlock()
				return
			}

			observability.SourceFetchesTotal.WithLabelValues(a.Name(), "success").Inc()
			if o.logger != nil {
				o.logger.Debug("source fetch complete",
					zap.String("source", a.Name()),
					zap.Int("observations", len(observations)),
					zap.Duration("elapsed", elapsed))
			}
			mu.Lock()
			res.BySource[a.Name()] = observations
			mu.Unlock()
		}(adapter)
	}

	wg.Wait()
	return res
}
