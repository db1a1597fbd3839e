package source

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/rishirilab/weather-fusion-service/internal/config"
	"github.com/rishirilab/weather-fusion-service/internal/models"
)

// reanalysis data lags realtime; windows ending closer than this to now
// cannot be served.
const era5Lag = 5 * 24 * time.Hour

// ERA5 is the archival-reanalysis provider. Needs an API key and only
// covers windows entirely in the past, beyond the reanalysis lag.
type ERA5 struct {
	cfg    config.SourceConfig
	http   *httpSource
	logger *zap.Logger
}

func NewERA5(cfg config.SourceConfig, logger *zap.Logger) *ERA5 {
	return &ERA5{
		cfg:    cfg,
		http:   newHTTPSource("era5", cfg.Timeout, logger),
		logger: logger,
	}
}

func (s *ERA5) Name() string    { return "era5" }
func (s *ERA5) Weight() float64 { return s.cfg.Weight }

func (s *ERA5) Available() bool {
	return s.cfg.Enabled && s.cfg.URL != "" && s.cfg.APIKey != ""
}

type era5Response struct {
	Hours []struct {
		Time          string   `json:"valid_time"`
		TemperatureK  *float64 `json:"t2m"` // Kelvin
		DewpointK     *float64 `json:"d2m"`
		PressurePa    *float64 `json:"sp"` // Pa
		WindU         *float64 `json:"u10"`
		WindV         *float64 `json:"v10"`
		PrecipM       *float64 `json:"tp"` // metres
		CloudFraction *float64 `json:"tcc"` // 0..1
		SolarJM2      *float64 `json:"ssrd"` // J/m2 accumulated over the hour
	} `json:"hours"`
}

func (s *ERA5) Fetch(ctx context.Context, lat, lon float64, start, end time.Time) ([]models.RawObservation, error) {
	if end.After(time.Now().UTC().Add(-era5Lag)) {
		return nil, fmt.Errorf("%w: reanalysis not yet produced for window", ErrOutsideWindow)
	}

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.6f", lat))
	params.Set("longitude", fmt.Sprintf("%.6f", lon))
	params.Set("start", start.UTC().Format(time.RFC3339))
	params.Set("end", end.UTC().Format(time.RFC3339))
	params.Set("api_key", s.cfg.APIKey)

	var resp era5Response
	if err := s.http.getJSON(ctx, s.cfg.URL, params, &resp); err != nil {
		return nil, err
	}

	observations := make([]models.RawObservation, 0, len(resp.Hours))
	for _, h := range resp.Hours {
		ts, err := time.Parse(time.RFC3339, h.Time)
		if err != nil {
			continue
		}
		ts = ts.UTC()
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		speed, dir := windFromComponents(h.WindU, h.WindV)
		observations = append(observations, models.RawObservation{
			Timestamp:         ts,
			Latitude:          lat,
			Longitude:         lon,
			TemperatureC:      kelvinToCelsius(h.TemperatureK),
			HumidityPct:       relativeHumidity(h.TemperatureK, h.DewpointK),
			PressureHPa:       paToHPa(h.PressurePa),
			WindSpeedMS:       speed,
			WindDirectionDeg:  dir,
			PrecipitationMM:   metresToMM(h.PrecipM),
			CloudCoverPct:     fractionToPct(h.CloudFraction),
			SolarRadiationWM2: joulesToWatts(h.SolarJM2),
			Source:            s.Name(),
			Weight:            s.cfg.Weight,
		})
	}
	return observations, nil
}

