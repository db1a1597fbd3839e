// Package quality range-validates observations and fused points against
// physical-plausibility bounds and applies the caller's minimum-quality
// threshold. A field failing its range check is dropped alone; the rest of
// the point still contributes.
package quality

import (
	"go.uber.org/zap"

	"github.com/rishirilab/weather-fusion-service/internal/models"
	"github.com/rishirilab/weather-fusion-service/internal/observability"
)

// fieldRange is the plausible physical range for one field, inclusive.
type fieldRange struct {
	min, max float64
}

var ranges = map[string]fieldRange{
	"temperature":     {-50, 60},   // deg C
	"humidity":        {0, 100},    // %
	"pressure":        {800, 1100}, // hPa
	"wind_speed":      {0, 100},    // m/s
	"wind_direction":  {0, 360},    // deg
	"precipitation":   {0, 200},    // mm per period
	"cloud_cover":     {0, 100},    // %
	"solar_radiation": {0, 1500},   // W/m2
}

// fieldSlot pairs a range-table name with an accessor into the shared field
// layout of RawObservation and FusedPoint.
type fieldSlot struct {
	name string
	get  func(*fields) **float64
}

// fields is the common optional-field layout of both point types.
type fields struct {
	temperature    **float64
	humidity       **float64
	pressure       **float64
	windSpeed      **float64
	windDirection  **float64
	precipitation  **float64
	cloudCover     **float64
	solarRadiation **float64
}

var fieldSlots = []fieldSlot{
	{"temperature", func(f *fields) **float64 { return f.temperature }},
	{"humidity", func(f *fields) **float64 { return f.humidity }},
	{"pressure", func(f *fields) **float64 { return f.pressure }},
	{"wind_speed", func(f *fields) **float64 { return f.windSpeed }},
	{"wind_direction", func(f *fields) **float64 { return f.windDirection }},
	{"precipitation", func(f *fields) **float64 { return f.precipitation }},
	{"cloud_cover", func(f *fields) **float64 { return f.cloudCover }},
	{"solar_radiation", func(f *fields) **float64 { return f.solarRadiation }},
}

// scrub clears every field whose value falls outside its plausible range and
// returns (dropped count, whether any field survives).
func scrub(f *fields, logger *zap.Logger) (int, bool) {
	dropped := 0
	present := false
	for _, slot := range fieldSlots {
		ptr := slot.get(f)
		if *ptr == nil {
			continue
		}
		r := ranges[slot.name]
		v := **ptr
		if v < r.min || v > r.max {
			if logger != nil {
				logger.Debug("implausible value dropped",
					zap.String("field", slot.name),
					zap.Float64("value", v))
			}
			observability.FieldsDroppedRangeTotal.WithLabelValues(slot.name).Inc()
			*ptr = nil
			dropped++
			continue
		}
		present = true
	}
	return dropped, present
}

// ScrubObservation drops implausible fields from a raw observation before it
// can poison the fused mean. Returns the number of fields dropped. The
// observation itself is kept even if every field was dropped; the aligner
// simply has nothing to fuse from it.
func ScrubObservation(o *models.RawObservation, logger *zap.Logger) int {
	f := fields{
		temperature:    &o.TemperatureC,
		humidity:       &o.HumidityPct,
		pressure:       &o.PressureHPa,
		windSpeed:      &o.WindSpeedMS,
		windDirection:  &o.WindDirectionDeg,
		precipitation:  &o.PrecipitationMM,
		cloudCover:     &o.CloudCoverPct,
		solarRadiation: &o.SolarRadiationWM2,
	}
	dropped, _ := scrub(&f, logger)
	return dropped
}

// ScrubPoint applies the post-fusion sanity gate to a fused point. Returns
// the number of fields dropped and whether any field survived; a point with
// no surviving field should be discarded entirely.
func ScrubPoint(p *models.FusedPoint, logger *zap.Logger) (int, bool) {
	f := fields{
		temperature:    &p.TemperatureC,
		humidity:       &p.HumidityPct,
		pressure:       &p.PressureHPa,
		windSpeed:      &p.WindSpeedMS,
		windDirection:  &p.WindDirectionDeg,
		precipitation:  &p.PrecipitationMM,
		cloudCover:     &p.CloudCoverPct,
		solarRadiation: &p.SolarRadiationWM2,
	}
	return scrub(&f, logger)
}

// ScrubSeries applies the post-fusion sanity gate to every point. A point
// whose every field failed its range check is discarded entirely. Returns
// the surviving points and the range-dropped field count.
func ScrubSeries(points []models.FusedPoint, logger *zap.Logger) ([]models.FusedPoint, int) {
	kept := make([]models.FusedPoint, 0, len(points))
	fieldsDropped := 0
	for i := range points {
		p := points[i]
		dropped, present := ScrubPoint(&p, logger)
		fieldsDropped += dropped
		if !present {
			continue
		}
		kept = append(kept, p)
	}
	return kept, fieldsDropped
}

// Threshold removes fused points whose quality score falls below minQuality,
// rather than returning low-confidence data silently. Returns the surviving
// points and the excluded count.
func Threshold(points []models.FusedPoint, minQuality float64) ([]models.FusedPoint, int) {
	kept := make([]models.FusedPoint, 0, len(points))
	below := 0
	for _, p := range points {
		if p.Quality < minQuality {
			below++
			observability.PointsBelowQualityTotal.Inc()
			continue
		}
		kept = append(kept, p)
	}
	return kept, below
}
