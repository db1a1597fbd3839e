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

// Radiosonde is the upper-air-sounding provider. Launches happen twice a day
// (00Z/12Z), so it contributes at most two observations per day: the surface
// level of each sounding. Sparse, but the most trusted thermodynamic data
// available.
type Radiosonde struct {
	cfg    config.SourceConfig
	http   *httpSource
	logger *zap.Logger
}

func NewRadiosonde(cfg config.SourceConfig, logger *zap.Logger) *Radiosonde {
	return &Radiosonde{
		cfg:    cfg,
		http:   newHTTPSource("radiosonde", cfg.Timeout, logger),
		logger: logger,
	}
}

func (s *Radiosonde) Name() string    { return "radiosonde" }
func (s *Radiosonde) Weight() float64 { return s.cfg.Weight }

func (s *Radiosonde) Available() bool {
	return s.cfg.Enabled && s.cfg.URL != ""
}

type radiosondeResponse struct {
	Soundings []struct {
		LaunchTime string `json:"launch_time"`
		Surface    struct {
			TemperatureC *float64 `json:"temperature_c"`
			HumidityPct  *float64 `json:"humidity_pct"`
			PressurePa   *float64 `json:"pressure_pa"`
			WindSpeedMS  *float64 `json:"wind_speed_ms"`
			WindDirDeg   *float64 `json:"wind_direction_deg"`
		} `json:"surface"`
	} `json:"soundings"`
}

func (s *Radiosonde) Fetch(ctx context.Context, lat, lon float64, start, end time.Time) ([]models.RawObservation, error) {
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%.6f", lat))
	params.Set("lon", fmt.Sprintf("%.6f", lon))
	params.Set("from", start.UTC().Format(time.RFC3339))
	params.Set("to", end.UTC().Format(time.RFC3339))

	var resp radiosondeResponse
	if err := s.http.getJSON(ctx, s.cfg.URL, params, &resp); err != nil {
		return nil, err
	}

	observations := make([]models.RawObservation, 0, len(resp.Soundings))
	for _, snd := range resp.Soundings {
		ts, err := time.Parse(time.RFC3339, snd.LaunchTime)
		if err != nil {
			continue
		}
		ts = ts.UTC()
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		observations = append(observations, models.RawObservation{
			Timestamp:        ts,
			Latitude:         lat,
			Longitude:        lon,
			TemperatureC:     snd.Surface.TemperatureC,
			HumidityPct:      snd.Surface.HumidityPct,
			PressureHPa:      paToHPa(snd.Surface.PressurePa),
			WindSpeedMS:      snd.Surface.WindSpeedMS,
			WindDirectionDeg: snd.Surface.WindDirDeg,
			Source:           s.Name(),
			Weight:           s.cfg.Weight,
		})
	}
	return observations, nil
}
