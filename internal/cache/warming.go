package cache

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/rishirilab/weather-fusion-service/internal/config"
	"github.com/rishirilab/weather-fusion-service/internal/models"
	"github.com/rishirilab/weather-fusion-service/internal/observability"
)

// SeriesFetcher is implemented by the service layer. Declared here so the
// warmer does not depend on the service package.
type SeriesFetcher interface {
	GetFusedWeather(ctx context.Context, lat, lon float64, start, end time.Time, minQuality float64) (models.FusedSeries, error)
}

// Warmer prefetches the fused series for configured drying spots on a fixed
// interval, so the first human request of the morning is a cache hit instead
// of a full upstream fan-out.
type Warmer struct {
	fetcher   SeriesFetcher
	spots     []config.Spot
	window    time.Duration
	scheduler *gocron.Scheduler
	logger    *zap.Logger
}

// NewWarmer creates a Warmer over the given spots. window is how far ahead
// of each run the prefetched series extends.
func NewWarmer(fetcher SeriesFetcher, spots []config.Spot, window time.Duration, logger *zap.Logger) *Warmer {
	return &Warmer{
		fetcher:   fetcher,
		spots:     spots,
		window:    window,
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger,
	}
}

// Start runs one immediate warm, then repeats every interval until Stop.
func (w *Warmer) Start(interval time.Duration) error {
	if len(w.spots) == 0 || interval <= 0 {
		if w.logger != nil {
			w.logger.Info("cache warming disabled")
		}
		return nil
	}

	_, err := w.scheduler.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		w.WarmOnce(ctx)
	})
	if err != nil {
		return err
	}

	w.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels future runs.
func (w *Warmer) Stop() {
	w.scheduler.Stop()
}

// WarmOnce prefetches every spot concurrently for [this hour, +window).
// Failures are logged and counted; warming never propagates errors.
func (w *Warmer) WarmOnce(ctx context.Context) {
	observability.CacheWarmingTotal.Inc()
	start := time.Now().UTC().Truncate(time.Hour)
	end := start.Add(w.window)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, spot := range w.spots {
		wg.Add(1)
		go func(sp config.Spot) {
			defer wg.Done()
			if _, err := w.fetcher.GetFusedWeather(ctx, sp.Latitude, sp.Longitude, start, end, 0); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				if w.logger != nil {
					w.logger.Warn("warm spot failed",
						zap.String("spot", sp.Name),
						zap.Error(err))
				}
			}
		}(spot)
	}
	wg.Wait()

	if failed > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
	}
	if w.logger != nil {
		w.logger.Info("cache warming run complete",
			zap.Int("spots", len(w.spots)),
			zap.Int("failed", failed))
	}
}
