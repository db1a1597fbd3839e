// Package cache memoizes fused, quality-filtered series per location and
// window so nearby repeat requests within the TTL never re-run the upstream
// fan-out.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rishirilab/weather-fusion-service/internal/models"
)

// Cache is the contract both backends satisfy. Get returns the series only
// while its age is within the TTL it was stored with; Set overwrites
// unconditionally (last writer wins — entries are pure functions of key and
// upstream state, so a race between identical requests is harmless).
type Cache interface {
	Get(ctx context.Context, key string) (models.FusedSeries, bool, error)
	Set(ctx context.Context, key string, series models.FusedSeries, ttl time.Duration) error
}

// Key builds a cache key from the request location and window. Lat/lon are
// rounded to precision decimal places so nearby requests for effectively the
// same point share an entry.
func Key(lat, lon float64, start, end time.Time, precision int) string {
	return fmt.Sprintf("%.*f:%.*f:%s:%s",
		precision, lat,
		precision, lon,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339))
}

// InMemoryCache implements Cache with a map and TTL-based expiry. Entries
// are never swept proactively; an expired entry is dropped on access and a
// miss simply overwrites it, so memory is bounded by the number of distinct
// keys actually requested.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	series    models.FusedSeries
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves the cached series for the key if present and not expired.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.FusedSeries, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return models.FusedSeries{}, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := c.data[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return models.FusedSeries{}, false, nil
	}

	return entry.series, true, nil
}

// Set stores the series with the given TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, series models.FusedSeries, ttl time.Duration) error {
	c.mu.Lock()
	c.data[key] = cacheEntry{
		series:    series,
		expiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()
	return nil
}
