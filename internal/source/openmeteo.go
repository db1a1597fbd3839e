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

const openMeteoTimeLayout = "2006-01-02T15:04"

// OpenMeteo is the generic-forecast provider. It needs no credential; the
// forecast endpoint serves current/future windows and the archive endpoint
// serves windows entirely in the past.
type OpenMeteo struct {
	cfg        config.SourceConfig
	archiveURL string
	http       *httpSource
	logger     *zap.Logger
}

func NewOpenMeteo(cfg config.SourceConfig, archiveURL string, logger *zap.Logger) *OpenMeteo {
	return &OpenMeteo{
		cfg:        cfg,
		archiveURL: archiveURL,
		http:       newHTTPSource("openmeteo", cfg.Timeout, logger),
		logger:     logger,
	}
}

func (s *OpenMeteo) Name() string    { return "openmeteo" }
func (s *OpenMeteo) Weight() float64 { return s.cfg.Weight }

func (s *OpenMeteo) Available() bool {
	return s.cfg.Enabled && s.cfg.URL != ""
}

type openMeteoResponse struct {
	Hourly struct {
		Time           []string   `json:"time"`
		Temperature    []*float64 `json:"temperature_2m"`
		Humidity       []*float64 `json:"relative_humidity_2m"`
		Pressure       []*float64 `json:"surface_pressure"`
		WindSpeedKmh   []*float64 `json:"wind_speed_10m"`
		WindDirection  []*float64 `json:"wind_direction_10m"`
		Precipitation  []*float64 `json:"precipitation"`
		CloudCover     []*float64 `json:"cloud_cover"`
		ShortwaveWM2   []*float64 `json:"shortwave_radiation"`
	} `json:"hourly"`
}

func (s *OpenMeteo) Fetch(ctx context.Context, lat, lon float64, start, end time.Time) ([]models.RawObservation, error) {
	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.6f", lat))
	params.Set("longitude", fmt.Sprintf("%.6f", lon))
	params.Set("start_date", start.UTC().Format("2006-01-02"))
	params.Set("end_date", end.UTC().Format("2006-01-02"))
	params.Set("timezone", "UTC")
	params.Set("hourly", "temperature_2m,relative_humidity_2m,surface_pressure,"+
		"wind_speed_10m,wind_direction_10m,precipitation,cloud_cover,shortwave_radiation")

	endpoint := s.cfg.URL
	if end.Before(time.Now().UTC()) && s.archiveURL != "" {
		endpoint = s.archiveURL
	}

	var resp openMeteoResponse
	if err := s.http.getJSON(ctx, endpoint, params, &resp); err != nil {
		return nil, err
	}

	observations := make([]models.RawObservation, 0, len(resp.Hourly.Time))
	skipped := 0
	for i, raw := range resp.Hourly.Time {
		ts, err := time.ParseInLocation(openMeteoTimeLayout, raw, time.UTC)
		if err != nil {
			skipped++
			continue
		}
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		observations = append(observations, models.RawObservation{
			Timestamp:         ts,
			Latitude:          lat,
			Longitude:         lon,
			TemperatureC:      at(resp.Hourly.Temperature, i),
			HumidityPct:       at(resp.Hourly.Humidity, i),
			PressureHPa:       at(resp.Hourly.Pressure, i),
			WindSpeedMS:       kmhToMS(at(resp.Hourly.WindSpeedKmh, i)),
			WindDirectionDeg:  at(resp.Hourly.WindDirection, i),
			PrecipitationMM:   at(resp.Hourly.Precipitation, i),
			CloudCoverPct:     at(resp.Hourly.CloudCover, i),
			SolarRadiationWM2: at(resp.Hourly.ShortwaveWM2, i),
			Source:            s.Name(),
			Weight:            s.cfg.Weight,
		})
	}
	if skipped > 0 && s.logger != nil {
		s.logger.Warn("unparsable timestamps in open-meteo response",
			zap.Int("skipped", skipped))
	}
	return observations, nil
}

// at returns the i-th value of a sparse hourly column, nil when missing.
func at(values []*float64, i int) *float64 {
	if i < 0 || i >= len(values) || values[i] == nil {
		return nil
	}
	v := *values[i]
	return &v
}

// kmhToMS converts a wind speed from km/h (open-meteo's default unit) to m/s.
func kmhToMS(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(*v / 3.6)
}
