package source

import (
	"math"
	"testing"

	"github.com/rishirilab/weather-fusion-service/internal/models"
)

func wantApprox(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s = nil, want %v", name, want)
	}
	if math.Abs(*got-want) > 1e-6 {
		t.Errorf("%s = %v, want %v", name, *got, want)
	}
}

// TestScalarConversions verifies each unit conversion, including nil
// passthrough for missing inputs.
func TestScalarConversions(t *testing.T) {
	wantApprox(t, "kelvinToCelsius", kelvinToCelsius(models.Float(273.15)), 0)
	wantApprox(t, "kelvinToCelsius", kelvinToCelsius(models.Float(293.15)), 20)
	wantApprox(t, "paToHPa", paToHPa(models.Float(101325)), 1013.25)
	wantApprox(t, "metresToMM", metresToMM(models.Float(0.0025)), 2.5)
	wantApprox(t, "fractionToPct", fractionToPct(models.Float(0.75)), 75)
	wantApprox(t, "joulesToWatts", joulesToWatts(models.Float(3600000)), 1000)
	wantApprox(t, "kmhToMS", kmhToMS(models.Float(36)), 10)

	if kelvinToCelsius(nil) != nil || paToHPa(nil) != nil || metresToMM(nil) != nil ||
		fractionToPct(nil) != nil || joulesToWatts(nil) != nil || kmhToMS(nil) != nil {
		t.Error("conversions must pass nil through unchanged")
	}
}

// TestWindFromComponents verifies speed and meteorological direction derived
// from u/v components: direction is where the wind comes from.
func TestWindFromComponents(t *testing.T) {
	tests := []struct {
		name      string
		u, v      float64
		wantSpeed float64
		wantDir   float64
	}{
		{"wind from north", 0, -1, 1, 0},
		{"wind from east", -1, 0, 1, 90},
		{"wind from south", 0, 1, 1, 180},
		{"wind from west", 1, 0, 1, 270},
		{"wind from southwest", 3, 4, 5, 216.869898},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			speed, dir := windFromComponents(models.Float(tt.u), models.Float(tt.v))
			wantApprox(t, "speed", speed, tt.wantSpeed)
			wantApprox(t, "direction", dir, tt.wantDir)
		})
	}
}

// TestWindFromComponents_Calm verifies zero components yield zero speed and
// no direction at all.
func TestWindFromComponents_Calm(t *testing.T) {
	speed, dir := windFromComponents(models.Float(0), models.Float(0))
	wantApprox(t, "speed", speed, 0)
	if dir != nil {
		t.Errorf("direction = %v, want nil for calm wind", *dir)
	}
}

// TestWindFromComponents_Missing verifies a missing component drops both
// outputs.
func TestWindFromComponents_Missing(t *testing.T) {
	if s, d := windFromComponents(nil, models.Float(1)); s != nil || d != nil {
		t.Error("missing u must yield nil speed and direction")
	}
	if s, d := windFromComponents(models.Float(1), nil); s != nil || d != nil {
		t.Error("missing v must yield nil speed and direction")
	}
}

// TestRelativeHumidity verifies the Magnus approximation at its fixed point
// and clamping to [0, 100].
func TestRelativeHumidity(t *testing.T) {
	// Dewpoint equal to temperature means saturation.
	rh := relativeHumidity(models.Float(293.15), models.Float(293.15))
	wantApprox(t, "relativeHumidity saturated", rh, 100)

	// Dewpoint above temperature is supersaturation; clamp at 100.
	rh = relativeHumidity(models.Float(283.15), models.Float(293.15))
	if rh == nil || *rh != 100 {
		t.Errorf("relativeHumidity supersaturated = %v, want clamped 100", rh)
	}

	// 20C with 10C dewpoint is roughly 52-53%.
	rh = relativeHumidity(models.Float(293.15), models.Float(283.15))
	if rh == nil || *rh < 50 || *rh > 56 {
		t.Errorf("relativeHumidity(20C, dew 10C) = %v, want ~52-53", rh)
	}

	if relativeHumidity(nil, models.Float(283.15)) != nil {
		t.Error("missing temperature must yield nil")
	}
}

// TestCompass16ToDegrees verifies the 16-point compass conversion including
// north reporting as 0 and out-of-range indices dropping.
func TestCompass16ToDegrees(t *testing.T) {
	tests := []struct {
		idx  int
		want float64
	}{
		{1, 22.5},  // NNE
		{4, 90},    // E
		{8, 180},   // S
		{12, 270},  // W
		{16, 0},    // N wraps to 0
	}
	for _, tt := range tests {
		got := compass16ToDegrees(&tt.idx)
		wantApprox(t, "compass16ToDegrees", got, tt.want)
	}

	for _, bad := range []int{0, 17, -3} {
		if got := compass16ToDegrees(&bad); got != nil {
			t.Errorf("compass16ToDegrees(%d) = %v, want nil", bad, *got)
		}
	}
	if compass16ToDegrees(nil) != nil {
		t.Error("compass16ToDegrees(nil) must be nil")
	}
}
