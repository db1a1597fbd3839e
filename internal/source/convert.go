package source

import (
	"math"

	"github.com/rishirilab/weather-fusion-service/internal/models"
)

// Unit conversions shared by the adapters. Every adapter hands the aligner
// SI-ish canonical units: degC, %, hPa, m/s, degrees, mm, W/m2.

func kelvinToCelsius(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(*v - 273.15)
}

func paToHPa(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(*v / 100)
}

func metresToMM(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(*v * 1000)
}

func fractionToPct(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(*v * 100)
}

// joulesToWatts converts an hourly-accumulated J/m2 value to mean W/m2.
func joulesToWatts(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return models.Float(*v / 3600)
}

// windFromComponents derives speed and meteorological direction (where the
// wind blows from, 0=N, clockwise) from eastward/northward u,v components.
func windFromComponents(u, v *float64) (*float64, *float64) {
	if u == nil || v == nil {
		return nil, nil
	}
	speed := math.Hypot(*u, *v)
	if speed == 0 {
		return models.Float(0), nil
	}
	dir := math.Mod(270-math.Atan2(*v, *u)*180/math.Pi, 360)
	if dir < 0 {
		dir += 360
	}
	return models.Float(speed), models.Float(dir)
}

// relativeHumidity derives RH% from temperature and dewpoint in Kelvin via
// the Magnus approximation.
func relativeHumidity(tempK, dewK *float64) *float64 {
	if tempK == nil || dewK == nil {
		return nil
	}
	t := *tempK - 273.15
	td := *dewK - 273.15
	rh := 100 * math.Exp(17.625*td/(243.04+td)) / math.Exp(17.625*t/(243.04+t))
	if rh > 100 {
		rh = 100
	}
	if rh < 0 {
		rh = 0
	}
	return models.Float(rh)
}
