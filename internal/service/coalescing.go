package service

import (
	"context"
	"sync"
	"time"

	"github.com/rishirilab/weather-fusion-service/internal/models"
)

// inFlightRequest tracks a single pipeline run that multiple callers may
// wait for.
type inFlightRequest struct {
	mu      sync.Mutex
	result  models.FusedSeries
	err     error
	done    bool
	waiters []chan struct{}
}

// requestCoalescer collapses concurrent cache misses for the same key into
// one upstream fan-out. Without it, N simultaneous requests for the same
// spot would each hit every provider.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightRequest),
		timeout:  timeout,
	}
}

// GetOrDo returns the result of an in-flight run for key if one exists,
// otherwise starts fn and registers it. Respects ctx cancellation and the
// coalescer timeout while waiting; the run itself is not cancelled when a
// waiter gives up.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.FusedSeries, error)) (models.FusedSeries, error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if exists {
		notify := make(chan struct{})
		req.mu.Lock()
		if req.done {
			result, err := req.result, req.err
			req.mu.Unlock()
			rc.mu.Unlock()
			return result, err
		}
		req.waiters = append(req.waiters, notify)
		req.mu.Unlock()
		rc.mu.Unlock()

		waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
		defer cancel()
		select {
		case <-notify:
			req.mu.Lock()
			result, err := req.result, req.err
			req.mu.Unlock()
			return result, err
		case <-waitCtx.Done():
			return models.FusedSeries{}, waitCtx.Err()
		}
	}

	req = &inFlightRequest{}
	rc.inFlight[key] = req
	rc.mu.Unlock()

	go func() {
		result, err := fn()

		req.mu.Lock()
		req.result = result
		req.err = err
		req.done = true
		waiters := req.waiters
		req.waiters = nil
		req.mu.Unlock()

		for _, notify := range waiters {
			close(notify)
		}

		rc.cleanup(key)
	}()

	notify := make(chan struct{})
	req.mu.Lock()
	if req.done {
		result, err := req.result, req.err
		req.mu.Unlock()
		return result, err
	}
	req.waiters = append(req.waiters, notify)
	req.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-notify:
		req.mu.Lock()
		result, err := req.result, req.err
		req.mu.Unlock()
		return result, err
	case <-waitCtx.Done():
		return models.FusedSeries{}, waitCtx.Err()
	}
}

// cleanup removes the completed request so a later miss starts fresh.
func (rc *requestCoalescer) cleanup(key string) {
	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
}
