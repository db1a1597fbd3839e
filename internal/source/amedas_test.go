package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rishirilab/weather-fusion-service/internal/config"
)

func amedasAdapter(url string, maxKm float64) *Amedas {
	return NewAmedas(config.SourceConfig{
		Enabled: true,
		URL:     url,
		Weight:  0.95,
		Timeout: 5 * time.Second,
	}, maxKm, zap.NewNop())
}

// TestAmedas_NearestStation verifies the closest station wins and the
// radius bound rejects far-away request points.
func TestAmedas_NearestStation(t *testing.T) {
	adapter := amedasAdapter("https://example.invalid", 50)

	tests := []struct {
		name     string
		lat, lon float64
		wantID   string
		wantOK   bool
	}{
		{"at kutsugata", 45.1786, 141.1386, "11151", true},
		{"near oshidomari", 45.25, 141.24, "11121", true},
		{"wakkanai side", 45.41, 141.68, "11016", true},
		{"tokyo is out of range", 35.6762, 139.6503, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, _, ok := adapter.nearestStation(tt.lat, tt.lon)
			if ok != tt.wantOK {
				t.Fatalf("nearestStation() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && st.ID != tt.wantID {
				t.Errorf("nearestStation() = %q, want %q", st.ID, tt.wantID)
			}
		})
	}
}

// TestAmedas_NearestStation_TightRadius verifies a small radius rejects
// even on-island points.
func TestAmedas_NearestStation_TightRadius(t *testing.T) {
	adapter := amedasAdapter("https://example.invalid", 1)
	if _, _, ok := adapter.nearestStation(45.3, 141.0); ok {
		t.Error("nearestStation() ok = true, want false with a 1 km radius")
	}
}

// TestAmedas_Fetch verifies station selection flows into the request, the
// compass wind direction converts to degrees, and observations carry the
// station coordinates.
func TestAmedas_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("station"); got != "11151" {
			t.Errorf("station param = %q, want 11151", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"observations": [
				{
					"time": "2026-03-10T01:00:00Z",
					"temp": 3.2,
					"humidity": 82,
					"pressure": 1009.5,
					"windSpeed": 7.5,
					"windDirection": 16,
					"precipitation1h": 0.5
				},
				{
					"time": "2026-03-09T23:00:00Z",
					"temp": 2.0
				}
			]
		}`))
	}))
	defer server.Close()

	adapter := amedasAdapter(server.URL, 50)
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	observations, err := adapter.Fetch(context.Background(), 45.1786, 141.1386, start, end)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(observations) != 1 {
		t.Fatalf("len(observations) = %d, want 1 (pre-window row filtered)", len(observations))
	}

	o := observations[0]
	if o.WindDirectionDeg == nil || *o.WindDirectionDeg != 0 {
		t.Errorf("WindDirectionDeg = %v, want 0 for compass index 16 (N)", o.WindDirectionDeg)
	}
	if o.Latitude != 45.1786 || o.Longitude != 141.1386 {
		t.Errorf("observation location = (%v, %v), want the station's coordinates", o.Latitude, o.Longitude)
	}
	if o.TemperatureC == nil || *o.TemperatureC != 3.2 {
		t.Errorf("TemperatureC = %v, want 3.2", o.TemperatureC)
	}
	if o.Source != "amedas" || o.Weight != 0.95 {
		t.Errorf("provenance = (%q, %v), want (amedas, 0.95)", o.Source, o.Weight)
	}
}

// TestAmedas_Fetch_NoStationInRange verifies a far-away request point fails
// with ErrOutsideWindow before any HTTP call.
func TestAmedas_Fetch_NoStationInRange(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	adapter := amedasAdapter(server.URL, 50)
	start := time.Now().UTC()

	_, err := adapter.Fetch(context.Background(), 35.6762, 139.6503, start, start.Add(time.Hour))
	if !errors.Is(err, ErrOutsideWindow) {
		t.Errorf("Fetch() error = %v, want ErrOutsideWindow", err)
	}
	if called {
		t.Error("no HTTP request should be made without a station in range")
	}
}
