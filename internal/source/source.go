// Package source holds one adapter per upstream weather provider. Adapters
// share a uniform contract and own their provider's transport schema, field
// remapping, and unit conversions, so nothing upstream-specific leaks past
// this package.
package source

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rishirilab/weather-fusion-service/internal/config"
	"github.com/rishirilab/weather-fusion-service/internal/models"
)

var (
	// ErrUnavailable means the adapter is not configured (disabled, missing
	// URL or credential). Reported via Available; Fetch is never attempted.
	ErrUnavailable = errors.New("source unavailable")
	// ErrUpstreamFailure covers network errors, non-success responses and
	// malformed payloads during a fetch.
	ErrUpstreamFailure = errors.New("upstream failure")
	// ErrRateLimited means the provider returned 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrOutsideWindow means the adapter cannot serve any part of the
	// requested window (e.g. a reanalysis archive asked about the future).
	ErrOutsideWindow = errors.New("window outside source coverage")
)

// Adapter is the uniform provider contract. Available is a cheap
// configuration gate with no I/O. Fetch may fail; the orchestrator absorbs
// the error so a single broken provider never aborts a request.
type Adapter interface {
	Name() string
	Weight() float64
	Available() bool
	Fetch(ctx context.Context, lat, lon float64, start, end time.Time) ([]models.RawObservation, error)
}

// FromConfig builds every configured adapter. Unavailable adapters are still
// returned; the orchestrator skips them and counts the skip.
func FromConfig(cfg *config.Config, logger *zap.Logger) []Adapter {
	return []Adapter{
		NewOpenMeteo(cfg.OpenMeteo, cfg.OpenMeteoArchiveURL, logger),
		NewAmedas(cfg.Amedas, cfg.AmedasMaxStationKm, logger),
		NewERA5(cfg.ERA5, logger),
		NewMSM(cfg.MSM, logger),
		NewSatellite(cfg.Satellite, logger),
		NewRadiosonde(cfg.Radiosonde, logger),
	}
}
