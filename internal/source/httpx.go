package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// httpSource is the transport shared by every HTTP adapter: one client with
// a per-source timeout, a circuit breaker so a dead provider stops eating
// its timeout budget on every request, and retry with jittered backoff.
type httpSource struct {
	name           string
	client         *http.Client
	breaker        *gobreaker.CircuitBreaker
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	logger         *zap.Logger
}

func newHTTPSource(name string, timeout time.Duration, logger *zap.Logger) *httpSource {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &httpSource{
		name:           name,
		client:         &http.Client{Timeout: timeout},
		breaker:        breaker,
		retryAttempts:  3,
		retryBaseDelay: 200 * time.Millisecond,
		retryMaxDelay:  2 * time.Second,
		logger:         logger,
	}
}

// getJSON issues a GET with query params, retrying retryable failures, and
// decodes the response body into out.
func (h *httpSource) getJSON(ctx context.Context, rawURL string, params url.Values, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt < h.retryAttempts; attempt++ {
		if attempt > 0 {
			delay := h.backoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := h.callOnce(ctx, rawURL, params, out)
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: circuit open for %s", ErrUpstreamFailure, h.name)
		}

		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (h *httpSource) callOnce(ctx context.Context, rawURL string, params url.Values, out interface{}) error {
	base, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid source URL %q: %w", rawURL, err)
	}
	if params != nil {
		base.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := h.breaker.Execute(func() (interface{}, error) {
		resp, doErr := h.client.Do(req)
		if doErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamFailure, doErr)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, ErrRateLimited
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
		}

		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamFailure, readErr)
		}
		return raw, nil
	})
	if err != nil {
		return err
	}

	raw, ok := body.([]byte)
	if !ok {
		return fmt.Errorf("%w: unexpected breaker result", ErrUpstreamFailure)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: parse response: %v", ErrUpstreamFailure, err)
	}
	return nil
}

func (h *httpSource) backoff(attempt int) time.Duration {
	delay := float64(h.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(h.retryMaxDelay) {
		delay = float64(h.retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrUpstreamFailure) {
		// Parse failures won't heal on retry; transport failures might.
		return !strings.Contains(err.Error(), "parse response")
	}
	return false
}
