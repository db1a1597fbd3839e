package source

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/umahmood/haversine"
	"go.uber.org/zap"

	"github.com/rishirilab/weather-fusion-service/internal/config"
	"github.com/rishirilab/weather-fusion-service/internal/models"
)

// station is one ground-station of the observation network.
type station struct {
	ID        string
	Name      string
	Latitude  float64
	Longitude float64
}

// stations is the Rishiri-area ground-station table. Observations come from
// the station nearest to the request point, within the configured radius.
var stations = []station{
	{ID: "11151", Name: "Kutsugata", Latitude: 45.1786, Longitude: 141.1386},
	{ID: "11121", Name: "Oshidomari", Latitude: 45.2419, Longitude: 141.2308},
	{ID: "11016", Name: "Wakkanai", Latitude: 45.4156, Longitude: 141.6789},
	{ID: "11046", Name: "Hamatonbetsu", Latitude: 45.1225, Longitude: 142.3583},
}

// Amedas is the ground-station network adapter. Highest static trust of all
// sources: it reports measured values, not model output.
type Amedas struct {
	cfg          config.SourceConfig
	maxStationKm float64
	http         *httpSource
	logger       *zap.Logger
}

func NewAmedas(cfg config.SourceConfig, maxStationKm float64, logger *zap.Logger) *Amedas {
	return &Amedas{
		cfg:          cfg,
		maxStationKm: maxStationKm,
		http:         newHTTPSource("amedas", cfg.Timeout, logger),
		logger:       logger,
	}
}

func (s *Amedas) Name() string    { return "amedas" }
func (s *Amedas) Weight() float64 { return s.cfg.Weight }

func (s *Amedas) Available() bool {
	return s.cfg.Enabled && s.cfg.URL != ""
}

type amedasResponse struct {
	Observations []struct {
		Time            string   `json:"time"`
		TemperatureC    *float64 `json:"temp"`
		HumidityPct     *float64 `json:"humidity"`
		PressureHPa     *float64 `json:"pressure"`
		WindSpeedMS     *float64 `json:"windSpeed"`
		WindDirection16 *int     `json:"windDirection"` // 16-point compass, 1=NNE .. 16=N
		Precipitation1h *float64 `json:"precipitation1h"`
	} `json:"observations"`
}

func (s *Amedas) Fetch(ctx context.Context, lat, lon float64, start, end time.Time) ([]models.RawObservation, error) {
	st, distKm, ok := s.nearestStation(lat, lon)
	if !ok {
		return nil, fmt.Errorf("%w: no station within %.0f km", ErrOutsideWindow, s.maxStationKm)
	}
	if s.logger != nil {
		s.logger.Debug("amedas station selected",
			zap.String("station", st.Name),
			zap.Float64("distance_km", distKm))
	}

	params := url.Values{}
	params.Set("station", st.ID)
	params.Set("start", start.UTC().Format(time.RFC3339))
	params.Set("end", end.UTC().Format(time.RFC3339))

	var resp amedasResponse
	if err := s.http.getJSON(ctx, s.cfg.URL, params, &resp); err != nil {
		return nil, err
	}

	observations := make([]models.RawObservation, 0, len(resp.Observations))
	for _, o := range resp.Observations {
		ts, err := time.Parse(time.RFC3339, o.Time)
		if err != nil {
			continue
		}
		ts = ts.UTC()
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		observations = append(observations, models.RawObservation{
			Timestamp:        ts,
			Latitude:         st.Latitude,
			Longitude:        st.Longitude,
			TemperatureC:     o.TemperatureC,
			HumidityPct:      o.HumidityPct,
			PressureHPa:      o.PressureHPa,
			WindSpeedMS:      o.WindSpeedMS,
			WindDirectionDeg: compass16ToDegrees(o.WindDirection16),
			PrecipitationMM:  o.Precipitation1h,
			Source:           s.Name(),
			Weight:           s.cfg.Weight,
		})
	}
	return observations, nil
}

// nearestStation picks the closest station to the request point, rejecting
// anything beyond the configured radius.
func (s *Amedas) nearestStation(lat, lon float64) (station, float64, bool) {
	point := haversine.Coord{Lat: lat, Lon: lon}
	best := station{}
	bestKm := -1.0
	for _, st := range stations {
		_, km := haversine.Distance(point, haversine.Coord{Lat: st.Latitude, Lon: st.Longitude})
		if bestKm < 0 || km < bestKm {
			best = st
			bestKm = km
		}
	}
	if bestKm < 0 || bestKm > s.maxStationKm {
		return station{}, bestKm, false
	}
	return best, bestKm, true
}

// compass16ToDegrees converts the network's 16-point wind direction index to
// degrees (1 = NNE = 22.5, ..., 16 = N = 360 -> reported as 0).
func compass16ToDegrees(idx *int) *float64 {
	if idx == nil || *idx < 1 || *idx > 16 {
		return nil
	}
	deg := float64(*idx) * 22.5
	if deg >= 360 {
		deg -= 360
	}
	return models.Float(deg)
}
