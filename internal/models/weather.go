package models

import "time"

// RawObservation is a single provider reading at one instant for one location.
// Optional fields are pointers so an unreported value stays distinguishable
// from zero; a missing value must never turn into a false 0.
type RawObservation struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`

	TemperatureC      *float64 `json:"temperatureC,omitempty"`
	HumidityPct       *float64 `json:"humidityPercent,omitempty"`
	PressureHPa       *float64 `json:"pressureHpa,omitempty"`
	WindSpeedMS       *float64 `json:"windSpeedMs,omitempty"`
	WindDirectionDeg  *float64 `json:"windDirectionDeg,omitempty"` // circular, [0,360)
	PrecipitationMM   *float64 `json:"precipitationMm,omitempty"`
	CloudCoverPct     *float64 `json:"cloudCoverPercent,omitempty"`
	SolarRadiationWM2 *float64 `json:"solarRadiationWm2,omitempty"`

	Source string  `json:"source"`
	Weight float64 `json:"weight"` // static per-source trust, [0,1]
}

// FusedPoint is one hour's composite across all contributing sources.
// Timestamp always falls on an hour boundary. Never mutated after fusion.
type FusedPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`

	TemperatureC      *float64 `json:"temperatureC,omitempty"`
	HumidityPct       *float64 `json:"humidityPercent,omitempty"`
	PressureHPa       *float64 `json:"pressureHpa,omitempty"`
	WindSpeedMS       *float64 `json:"windSpeedMs,omitempty"`
	WindDirectionDeg  *float64 `json:"windDirectionDeg,omitempty"`
	PrecipitationMM   *float64 `json:"precipitationMm,omitempty"`
	CloudCoverPct     *float64 `json:"cloudCoverPercent,omitempty"`
	SolarRadiationWM2 *float64 `json:"solarRadiationWm2,omitempty"`

	Quality float64  `json:"quality"` // [0,1]
	Sources []string `json:"sources"` // provenance; non-empty when any field is set
}

// Diagnostics counts the failures absorbed while building a series, so a
// systemic upstream outage stays observable even though no error propagates.
type Diagnostics struct {
	SourcesQueried      int `json:"sourcesQueried"`
	SourcesUnavailable  int `json:"sourcesUnavailable"`
	SourcesFailed       int `json:"sourcesFailed"`
	ObservationsDropped int `json:"observationsDropped"` // malformed timestamps
	FieldsDroppedRange  int `json:"fieldsDroppedRange"`
	PointsBelowQuality  int `json:"pointsBelowQuality"`
}

// FusedSeries is the result of one fused-weather request: a strictly
// time-ordered sequence of FusedPoints plus the diagnostics summary.
type FusedSeries struct {
	Points      []FusedPoint `json:"points"`
	Diagnostics Diagnostics  `json:"diagnostics"`
	Cached      bool         `json:"cached,omitempty"` // served from the result cache
}

// Float returns a pointer to v. Convenience for building observations.
func Float(v float64) *float64 {
	return &v
}
