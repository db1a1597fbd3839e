package source

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rishirilab/weather-fusion-service/internal/config"
)

func era5Adapter(url, key string) *ERA5 {
	return NewERA5(config.SourceConfig{
		Enabled: true,
		URL:     url,
		APIKey:  key,
		Weight:  0.9,
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

// TestERA5_Available verifies the adapter requires a credential.
func TestERA5_Available(t *testing.T) {
	if era5Adapter("https://example.invalid", "").Available() {
		t.Error("adapter without API key should not be available")
	}
	if !era5Adapter("https://example.invalid", "key").Available() {
		t.Error("configured adapter should be available")
	}
}

// TestERA5_Fetch_RecentWindowRejected verifies windows inside the reanalysis
// lag fail fast with ErrOutsideWindow.
func TestERA5_Fetch_RecentWindowRejected(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	adapter := era5Adapter(server.URL, "key")
	start := time.Now().UTC().Add(-48 * time.Hour)

	_, err := adapter.Fetch(context.Background(), 45, 141, start, start.Add(24*time.Hour))
	if !errors.Is(err, ErrOutsideWindow) {
		t.Errorf("Fetch() error = %v, want ErrOutsideWindow", err)
	}
	if called {
		t.Error("no HTTP request should be made for an unproduced window")
	}
}

// TestERA5_Fetch verifies reanalysis fields convert to canonical units:
// Kelvin to Celsius, Pa to hPa, metres to mm, fraction to percent,
// accumulated joules to watts, and u/v components to speed and direction.
func TestERA5_Fetch(t *testing.T) {
	start := time.Now().UTC().Add(-30 * 24 * time.Hour).Truncate(time.Hour)
	end := start.Add(2 * time.Hour)
	ts := start.Format(time.RFC3339)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("api_key"); got != "key" {
			t.Errorf("api_key param = %q, want key", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"hours": [
				{
					"valid_time": "` + ts + `",
					"t2m": 276.15,
					"d2m": 276.15,
					"sp": 101000,
					"u10": 0,
					"v10": -4,
					"tp": 0.001,
					"tcc": 0.6,
					"ssrd": 720000
				}
			]
		}`))
	}))
	defer server.Close()

	adapter := era5Adapter(server.URL, "key")
	observations, err := adapter.Fetch(context.Background(), 45, 141, start, end)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(observations) != 1 {
		t.Fatalf("len(observations) = %d, want 1", len(observations))
	}

	o := observations[0]
	wantApprox(t, "TemperatureC", o.TemperatureC, 3)
	wantApprox(t, "HumidityPct", o.HumidityPct, 100) // dewpoint equals temperature
	wantApprox(t, "PressureHPa", o.PressureHPa, 1010)
	wantApprox(t, "WindSpeedMS", o.WindSpeedMS, 4)
	wantApprox(t, "WindDirectionDeg", o.WindDirectionDeg, 0) // from the north
	wantApprox(t, "PrecipitationMM", o.PrecipitationMM, 1)
	wantApprox(t, "CloudCoverPct", o.CloudCoverPct, 60)
	wantApprox(t, "SolarRadiationWM2", o.SolarRadiationWM2, 200)
	if o.Source != "era5" || math.Abs(o.Weight-0.9) > 1e-9 {
		t.Errorf("provenance = (%q, %v), want (era5, 0.9)", o.Source, o.Weight)
	}
}
