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

// MSM is the mesoscale model-grid provider. It serves the grid cell
// containing the request point; temperatures come in Kelvin and wind as
// u/v components, both remapped here.
type MSM struct {
	cfg    config.SourceConfig
	http   *httpSource
	logger *zap.Logger
}

func NewMSM(cfg config.SourceConfig, logger *zap.Logger) *MSM {
	return &MSM{
		cfg:    cfg,
		http:   newHTTPSource("msm", cfg.Timeout, logger),
		logger: logger,
	}
}

func (s *MSM) Name() string    { return "msm" }
func (s *MSM) Weight() float64 { return s.cfg.Weight }

func (s *MSM) Available() bool {
	return s.cfg.Enabled && s.cfg.URL != ""
}

type msmResponse struct {
	Grid struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lon"`
	} `json:"grid"`
	Steps []struct {
		Time         string   `json:"time"`
		TemperatureK *float64 `json:"temperature_k"`
		HumidityPct  *float64 `json:"rh"`
		PressurePa   *float64 `json:"pressure_pa"`
		WindU        *float64 `json:"wind_u"`
		WindV        *float64 `json:"wind_v"`
		PrecipMM     *float64 `json:"precip_mm"`
		CloudPct     *float64 `json:"cloud_pct"`
	} `json:"steps"`
}

func (s *MSM) Fetch(ctx context.Context, lat, lon float64, start, end time.Time) ([]models.RawObservation, error) {
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%.6f", lat))
	params.Set("lon", fmt.Sprintf("%.6f", lon))
	params.Set("from", start.UTC().Format(time.RFC3339))
	params.Set("to", end.UTC().Format(time.RFC3339))

	var resp msmResponse
	if err := s.http.getJSON(ctx, s.cfg.URL, params, &resp); err != nil {
		return nil, err
	}

	gridLat, gridLon := resp.Grid.Latitude, resp.Grid.Longitude
	if gridLat == 0 && gridLon == 0 {
		gridLat, gridLon = lat, lon
	}

	observations := make([]models.RawObservation, 0, len(resp.Steps))
	for _, step := range resp.Steps {
		ts, err := time.Parse(time.RFC3339, step.Time)
		if err != nil {
			continue
		}
		ts = ts.UTC()
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		speed, dir := windFromComponents(step.WindU, step.WindV)
		observations = append(observations, models.RawObservation{
			Timestamp:        ts,
			Latitude:         gridLat,
			Longitude:        gridLon,
			TemperatureC:     kelvinToCelsius(step.TemperatureK),
			HumidityPct:      step.HumidityPct,
			PressureHPa:      paToHPa(step.PressurePa),
			WindSpeedMS:      speed,
			WindDirectionDeg: dir,
			PrecipitationMM:  step.PrecipMM,
			CloudCoverPct:    step.CloudPct,
			Source:           s.Name(),
			Weight:           s.cfg.Weight,
		})
	}
	return observations, nil
}
