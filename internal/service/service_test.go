package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rishirilab/weather-fusion-service/internal/cache"
	"github.com/rishirilab/weather-fusion-service/internal/models"
	"github.com/rishirilab/weather-fusion-service/internal/orchestrator"
	"github.com/rishirilab/weather-fusion-service/internal/source"
)

type fakeAdapter struct {
	name         string
	weight       float64
	available    bool
	observations []models.RawObservation
	err          error
	delay        time.Duration
	fetches      atomic.Int64
}

func (f *fakeAdapter) Name() string    { return f.name }
func (f *fakeAdapter) Weight() float64 { return f.weight }
func (f *fakeAdapter) Available() bool { return f.available }

func (f *fakeAdapter) Fetch(ctx context.Context, lat, lon float64, start, end time.Time) ([]models.RawObservation, error) {
	f.fetches.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.observations, f.err
}

func newTestService(t *testing.T, coalesceTimeout time.Duration, adapters ...source.Adapter) *FusionService {
	t.Helper()
	orch := orchestrator.New(adapters, func(source.Adapter) time.Duration { return time.Second }, zap.NewNop())
	return New(orch, cache.NewInMemoryCache(), Options{
		CacheBackend:      "in_memory",
		CacheTTL:          time.Minute,
		CachePrecision:    2,
		AggregateTimeout:  2 * time.Second,
		DefaultMinQuality: 0.5,
		CoalesceTimeout:   coalesceTimeout,
	}, zap.NewNop())
}

var (
	testStart = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	testEnd   = testStart.Add(3 * time.Hour)
)

// TestGetFusedWeather_Success verifies the full pipeline: fetch, align,
// fuse, and a time-ordered series with provenance.
func TestGetFusedWeather_Success(t *testing.T) {
	adapter := &fakeAdapter{
		name: "amedas", weight: 0.95, available: true,
		observations: []models.RawObservation{
			{Timestamp: testStart.Add(70 * time.Minute), TemperatureC: models.Float(4), Source: "amedas", Weight: 0.95},
			{Timestamp: testStart.Add(5 * time.Minute), TemperatureC: models.Float(3), Source: "amedas", Weight: 0.95},
		},
	}
	svc := newTestService(t, 0, adapter)

	series, err := svc.GetFusedWeather(context.Background(), 45.18, 141.23, testStart, testEnd, 0.5)
	if err != nil {
		t.Fatalf("GetFusedWeather() error = %v", err)
	}
	if series.Cached {
		t.Error("Cached = true on first call, want false")
	}
	if len(series.Points) != 2 {
		t.Fatalf("len(Points) = %d, want 2", len(series.Points))
	}
	if !series.Points[0].Timestamp.Before(series.Points[1].Timestamp) {
		t.Error("points must be in ascending time order")
	}
	p := series.Points[0]
	if !p.Timestamp.Equal(testStart) {
		t.Errorf("Points[0].Timestamp = %v, want %v", p.Timestamp, testStart)
	}
	if p.Quality != 0.95 {
		t.Errorf("Quality = %v, want 0.95", p.Quality)
	}
	if len(p.Sources) != 1 || p.Sources[0] != "amedas" {
		t.Errorf("Sources = %v, want [amedas]", p.Sources)
	}
	if series.Diagnostics.SourcesQueried != 1 {
		t.Errorf("SourcesQueried = %d, want 1", series.Diagnostics.SourcesQueried)
	}
}

// TestGetFusedWeather_CacheHit verifies the second identical request is
// served from cache without another fan-out and flagged Cached.
func TestGetFusedWeather_CacheHit(t *testing.T) {
	adapter := &fakeAdapter{
		name: "amedas", weight: 0.95, available: true,
		observations: []models.RawObservation{
			{Timestamp: testStart, TemperatureC: models.Float(4), Source: "amedas", Weight: 0.95},
		},
	}
	svc := newTestService(t, 0, adapter)
	ctx := context.Background()

	first, err := svc.GetFusedWeather(ctx, 45.18, 141.23, testStart, testEnd, 0.5)
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}
	second, err := svc.GetFusedWeather(ctx, 45.18, 141.23, testStart, testEnd, 0.5)
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}

	if got := adapter.fetches.Load(); got != 1 {
		t.Errorf("upstream fetches = %d, want 1", got)
	}
	if !second.Cached {
		t.Error("second call Cached = false, want true")
	}
	if len(first.Points) != len(second.Points) {
		t.Fatalf("cached series has %d points, fresh had %d", len(second.Points), len(first.Points))
	}
	if *first.Points[0].TemperatureC != *second.Points[0].TemperatureC {
		t.Error("cached point differs from the fresh one")
	}
}

// TestGetFusedWeather_ThresholdPerRequest verifies one cache entry serves
// every min-quality value: a stricter follow-up request filters the cached
// series instead of refetching, and can legitimately end with no data.
func TestGetFusedWeather_ThresholdPerRequest(t *testing.T) {
	adapter := &fakeAdapter{
		name: "openmeteo", weight: 0.8, available: true,
		observations: []models.RawObservation{
			{Timestamp: testStart, TemperatureC: models.Float(4), Source: "openmeteo", Weight: 0.8},
		},
	}
	svc := newTestService(t, 0, adapter)
	ctx := context.Background()

	if _, err := svc.GetFusedWeather(ctx, 45.18, 141.23, testStart, testEnd, 0.5); err != nil {
		t.Fatalf("first call error = %v", err)
	}

	series, err := svc.GetFusedWeather(ctx, 45.18, 141.23, testStart, testEnd, 0.9)
	if !errors.Is(err, ErrNoUsableData) {
		t.Fatalf("strict call error = %v, want ErrNoUsableData", err)
	}
	if got := adapter.fetches.Load(); got != 1 {
		t.Errorf("upstream fetches = %d, want 1 (threshold applied per request)", got)
	}
	if series.Diagnostics.PointsBelowQuality != 1 {
		t.Errorf("PointsBelowQuality = %d, want 1", series.Diagnostics.PointsBelowQuality)
	}

	// A looser request still succeeds off the same entry.
	loose, err := svc.GetFusedWeather(ctx, 45.18, 141.23, testStart, testEnd, 0.1)
	if err != nil {
		t.Fatalf("loose call error = %v", err)
	}
	if len(loose.Points) != 1 {
		t.Errorf("loose call points = %d, want 1", len(loose.Points))
	}
}

// TestGetFusedWeather_DefaultMinQuality verifies a negative minQuality
// selects the configured default.
func TestGetFusedWeather_DefaultMinQuality(t *testing.T) {
	// Weight 0.4 fuses below the 0.5 default.
	adapter := &fakeAdapter{
		name: "satellite", weight: 0.4, available: true,
		observations: []models.RawObservation{
			{Timestamp: testStart, CloudCoverPct: models.Float(80), Source: "satellite", Weight: 0.4},
		},
	}
	svc := newTestService(t, 0, adapter)

	_, err := svc.GetFusedWeather(context.Background(), 45.18, 141.23, testStart, testEnd, -1)
	if !errors.Is(err, ErrNoUsableData) {
		t.Errorf("GetFusedWeather() error = %v, want ErrNoUsableData under the 0.5 default", err)
	}
}

// TestGetFusedWeather_AllSourcesFailed verifies total upstream failure is a
// hard error, not an empty 200-shaped series.
func TestGetFusedWeather_AllSourcesFailed(t *testing.T) {
	svc := newTestService(t, 0,
		&fakeAdapter{name: "a", weight: 0.9, available: true, err: errors.New("down")},
		&fakeAdapter{name: "b", weight: 0.8, available: true, err: errors.New("down")},
	)

	_, err := svc.GetFusedWeather(context.Background(), 45.18, 141.23, testStart, testEnd, 0.5)
	if !errors.Is(err, ErrNoUsableData) {
		t.Errorf("GetFusedWeather() error = %v, want ErrNoUsableData", err)
	}
}

// TestGetFusedWeather_NoSourcesAvailable verifies the all-unavailable case
// signals no usable data without any fetch.
func TestGetFusedWeather_NoSourcesAvailable(t *testing.T) {
	adapter := &fakeAdapter{name: "a", weight: 0.9, available: false}
	svc := newTestService(t, 0, adapter)

	_, err := svc.GetFusedWeather(context.Background(), 45.18, 141.23, testStart, testEnd, 0.5)
	if !errors.Is(err, ErrNoUsableData) {
		t.Errorf("GetFusedWeather() error = %v, want ErrNoUsableData", err)
	}
	if adapter.fetches.Load() != 0 {
		t.Error("unavailable adapter must never be fetched")
	}
}

// TestGetFusedWeather_EmptyWindow verifies sources succeeding with zero
// observations still yields the explicit no-data error.
func TestGetFusedWeather_EmptyWindow(t *testing.T) {
	svc := newTestService(t, 0, &fakeAdapter{name: "a", weight: 0.9, available: true})

	_, err := svc.GetFusedWeather(context.Background(), 45.18, 141.23, testStart, testEnd, 0.5)
	if !errors.Is(err, ErrNoUsableData) {
		t.Errorf("GetFusedWeather() error = %v, want ErrNoUsableData", err)
	}
}

// TestGetFusedWeather_ImplausibleDataScrubbed verifies observations that
// fail every range check cannot produce points.
func TestGetFusedWeather_ImplausibleDataScrubbed(t *testing.T) {
	adapter := &fakeAdapter{
		name: "broken", weight: 0.9, available: true,
		observations: []models.RawObservation{
			{Timestamp: testStart, TemperatureC: models.Float(999), HumidityPct: models.Float(-40), Source: "broken", Weight: 0.9},
		},
	}
	svc := newTestService(t, 0, adapter)

	_, err := svc.GetFusedWeather(context.Background(), 45.18, 141.23, testStart, testEnd, 0.5)
	if !errors.Is(err, ErrNoUsableData) {
		t.Errorf("GetFusedWeather() error = %v, want ErrNoUsableData", err)
	}
}

// TestGetFusedWeather_Coalescing verifies concurrent identical misses share
// one upstream fan-out.
func TestGetFusedWeather_Coalescing(t *testing.T) {
	adapter := &fakeAdapter{
		name: "amedas", weight: 0.95, available: true, delay: 50 * time.Millisecond,
		observations: []models.RawObservation{
			{Timestamp: testStart, TemperatureC: models.Float(4), Source: "amedas", Weight: 0.95},
		},
	}
	svc := newTestService(t, 5*time.Second, adapter)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.GetFusedWeather(context.Background(), 45.18, 141.23, testStart, testEnd, 0.5)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d error = %v", i, err)
		}
	}
	if got := adapter.fetches.Load(); got != 1 {
		t.Errorf("upstream fetches = %d, want 1 with coalescing", got)
	}
}

// TestStampedeTracker verifies concurrent miss counting and cleanup.
func TestStampedeTracker(t *testing.T) {
	st := newStampedeTracker()

	if got := st.RecordMiss("k"); got != 1 {
		t.Errorf("first RecordMiss = %d, want 1", got)
	}
	if got := st.RecordMiss("k"); got != 2 {
		t.Errorf("second RecordMiss = %d, want 2", got)
	}
	st.RecordHit("k")
	st.RecordHit("k")
	if got := st.RecordMiss("k"); got != 1 {
		t.Errorf("RecordMiss after drain = %d, want 1", got)
	}
}
