// Package fuse composites bucketed observations into quality-weighted
// FusedPoints: weighted means for scalar fields, a unit-vector circular mean
// for wind direction.
package fuse

import (
	"math"
	"sort"
	"time"

	"github.com/rishirilab/weather-fusion-service/internal/align"
	"github.com/rishirilab/weather-fusion-service/internal/models"
)

// epsilon below which the circular-mean resultant vector counts as fully
// canceled; the direction is then left absent rather than an arbitrary angle.
const cancelEpsilon = 1e-9

// FuseBuckets fuses every bucket and returns the points in ascending hour
// order. lat/lon are the request location, carried onto every point.
func FuseBuckets(buckets map[time.Time][]models.RawObservation, lat, lon float64) []models.FusedPoint {
	points := make([]models.FusedPoint, 0, len(buckets))
	for _, hour := range align.SortedHours(buckets) {
		points = append(points, FuseBucket(hour, buckets[hour], lat, lon))
	}
	return points
}

// FuseBucket composites one hourly bucket. Each scalar field is fused
// independently over the observations that supplied it; a field no
// observation supplied stays absent. No outlier rejection happens here.
func FuseBucket(hour time.Time, observations []models.RawObservation, lat, lon float64) models.FusedPoint {
	p := models.FusedPoint{
		Timestamp: hour,
		Latitude:  lat,
		Longitude: lon,
	}

	p.TemperatureC = weightedMean(observations, func(o models.RawObservation) *float64 { return o.TemperatureC })
	p.HumidityPct = weightedMean(observations, func(o models.RawObservation) *float64 { return o.HumidityPct })
	p.PressureHPa = weightedMean(observations, func(o models.RawObservation) *float64 { return o.PressureHPa })
	p.WindSpeedMS = weightedMean(observations, func(o models.RawObservation) *float64 { return o.WindSpeedMS })
	p.PrecipitationMM = weightedMean(observations, func(o models.RawObservation) *float64 { return o.PrecipitationMM })
	p.CloudCoverPct = weightedMean(observations, func(o models.RawObservation) *float64 { return o.CloudCoverPct })
	p.SolarRadiationWM2 = weightedMean(observations, func(o models.RawObservation) *float64 { return o.SolarRadiationWM2 })
	p.WindDirectionDeg = circularMean(observations)

	p.Sources, p.Quality = provenance(observations)
	return p
}

// weightedMean computes sum(v*w)/sum(w) over the observations where field
// returns a value. Returns nil when no observation supplies the field.
func weightedMean(observations []models.RawObservation, field func(models.RawObservation) *float64) *float64 {
	var sum, weightSum float64
	for _, o := range observations {
		v := field(o)
		if v == nil {
			continue
		}
		sum += *v * o.Weight
		weightSum += o.Weight
	}
	if weightSum == 0 {
		return nil
	}
	return models.Float(sum / weightSum)
}

// circularMean fuses wind directions via the weighted mean of unit vectors.
// A linear mean is wrong for angles (0 and 360 would average to 180). When
// the directions cancel the result is nil, never a misleading angle.
func circularMean(observations []models.RawObservation) *float64 {
	var x, y float64
	any := false
	for _, o := range observations {
		if o.WindDirectionDeg == nil {
			continue
		}
		any = true
		rad := *o.WindDirectionDeg * math.Pi / 180
		x += o.Weight * math.Cos(rad)
		y += o.Weight * math.Sin(rad)
	}
	if !any {
		return nil
	}
	if math.Abs(x) < cancelEpsilon && math.Abs(y) < cancelEpsilon {
		return nil
	}
	deg := math.Atan2(y, x) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	// atan2 can land exactly on 360 after the shift; keep [0,360).
	if deg >= 360 {
		deg -= 360
	}
	return models.Float(deg)
}

// provenance returns the sorted distinct contributing source names and the
// bucket quality score: the mean of the distinct sources' static weights, so
// a bucket fused from one low-trust source scores low even if that source
// supplied every field.
func provenance(observations []models.RawObservation) ([]string, float64) {
	weights := make(map[string]float64)
	for _, o := range observations {
		weights[o.Source] = o.Weight
	}
	if len(weights) == 0 {
		return nil, 0
	}
	sources := make([]string, 0, len(weights))
	var sum float64
	for name, w := range weights {
		sources = append(sources, name)
		sum += w
	}
	sort.Strings(sources)
	q := sum / float64(len(weights))
	if q > 1 {
		q = 1
	}
	if q < 0 {
		q = 0
	}
	return sources, q
}
