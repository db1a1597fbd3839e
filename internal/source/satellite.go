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

// Satellite is the satellite-derived provider. It only contributes the
// fields a geostationary imager can estimate: cloud cover and downward
// shortwave radiation.
type Satellite struct {
	cfg    config.SourceConfig
	http   *httpSource
	logger *zap.Logger
}

func NewSatellite(cfg config.SourceConfig, logger *zap.Logger) *Satellite {
	return &Satellite{
		cfg:    cfg,
		http:   newHTTPSource("satellite", cfg.Timeout, logger),
		logger: logger,
	}
}

func (s *Satellite) Name() string    { return "satellite" }
func (s *Satellite) Weight() float64 { return s.cfg.Weight }

func (s *Satellite) Available() bool {
	return s.cfg.Enabled && s.cfg.URL != "" && s.cfg.APIKey != ""
}

type satelliteResponse struct {
	Scenes []struct {
		Time          string   `json:"scan_time"`
		CloudFraction *float64 `json:"cloud_fraction"` // 0..1
		SolarWM2      *float64 `json:"dswrf"`
	} `json:"scenes"`
}

func (s *Satellite) Fetch(ctx context.Context, lat, lon float64, start, end time.Time) ([]models.RawObservation, error) {
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%.6f", lat))
	params.Set("lon", fmt.Sprintf("%.6f", lon))
	params.Set("start", start.UTC().Format(time.RFC3339))
	params.Set("end", end.UTC().Format(time.RFC3339))
	params.Set("api_key", s.cfg.APIKey)

	var resp satelliteResponse
	if err := s.http.getJSON(ctx, s.cfg.URL, params, &resp); err != nil {
		return nil, err
	}

	observations := make([]models.RawObservation, 0, len(resp.Scenes))
	for _, scene := range resp.Scenes {
		ts, err := time.Parse(time.RFC3339, scene.Time)
		if err != nil {
			continue
		}
		ts = ts.UTC()
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		observations = append(observations, models.RawObservation{
			Timestamp:         ts,
			Latitude:          lat,
			Longitude:         lon,
			CloudCoverPct:     fractionToPct(scene.CloudFraction),
			SolarRadiationWM2: scene.SolarWM2,
			Source:            s.Name(),
			Weight:            s.cfg.Weight,
		})
	}
	return observations, nil
}
