package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazardwatch/internal/types"
)

var dodoma = types.MonitoredRegion{Name: "Dodoma", Latitude: -6.163, Longitude: 35.7516}

const openMeteoFixture = `{
  "utc_offset_seconds": 10800,
  "current": {"temperature_2m": 27.4, "relative_humidity_2m": 58,
              "surface_pressure": 885.0, "pressure_msl": 1009.2,
              "wind_speed_10m": 14.8, "precipitation": 0.2, "cloud_cover": 35},
  "daily": {
    "time": ["2026-03-10", "2026-03-11", "2026-03-12"],
    "temperature_2m_max": [31.0, 32.5, 30.1],
    "temperature_2m_min": [19.0, 20.1, 18.7],
    "temperature_2m_mean": [25.0, null, 24.2],
    "precipitation_sum": [12.5, 0.0, 0.4],
    "wind_speed_10m_max": [22.0, 18.5, 25.1],
    "relative_humidity_2m_mean": [70, 62, 66],
    "surface_pressure_mean": [886.0, 887.4, 885.9],
    "pressure_msl_mean": [1010.1, 1011.3, 1009.8],
    "cloud_cover_mean": [80, 20, 45]
  }
}`

func TestOpenMeteoFetch(t *testing.T) {
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		query = r.URL.Query()
		_, _ = w.Write([]byte(openMeteoFixture))
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC))
	client := NewOpenMeteoClientWithBase(newTestBase(fastPolicy(0)), OpenMeteoConfig{
		BaseURL:      srv.URL,
		ForecastDays: 3,
		Clock:        clock,
	})

	snap, err := client.Fetch(context.Background(), dodoma)
	require.NoError(t, err)

	assert.Equal(t, "-6.1630", query["latitude"][0])
	assert.Equal(t, "kmh", query["wind_speed_unit"][0])
	assert.Equal(t, "3", query["forecast_days"][0])
	assert.Contains(t, query["current"][0], "pressure_msl")
	assert.Contains(t, query["daily"][0], "pressure_msl_mean")
	assert.NotContains(t, query["current"][0], "surface_pressure")
	assert.NotContains(t, query["daily"][0], "surface_pressure")

	assert.Equal(t, "openmeteo", snap.Source)
	assert.Equal(t, clock.Now(), snap.FetchedAt)
	assert.Equal(t, 1009.2, snap.Current.Pressure)
	assert.Equal(t, 14.8, snap.Current.WindSpeed)

	require.Len(t, snap.Forecast, 3)
	first := snap.Forecast[0]
	assert.Equal(t, 1010.1, first.Pressure)
	assert.Equal(t, 12.5, first.Precipitation)
	assert.Equal(t, 31.0, first.TempMax)
	assert.Equal(t, 22.0, first.WindSpeed)
	_, offset := first.Date.Zone()
	assert.Equal(t, 10800, offset)
	assert.Equal(t, 10, first.Date.Day())

	// A null daily mean falls back to the midpoint of max and min.
	assert.InDelta(t, (32.5+20.1)/2, snap.Forecast[1].Temperature, 0.001)
}

func TestOpenMeteoFetch_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":true,"reason":"Latitude must be in range"}`))
	}))
	defer srv.Close()

	client := NewOpenMeteoClientWithBase(newTestBase(fastPolicy(0), WithUpstreamCode(types.ErrCodeUpstreamWeather)),
		OpenMeteoConfig{BaseURL: srv.URL})

	_, err := client.Fetch(context.Background(), dodoma)
	assert.Equal(t, types.ErrCodeUpstreamWeather, types.CodeOf(err))
}

func TestOpenMeteoFetch_EmptyDaily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"current":{},"daily":{"time":[]}}`))
	}))
	defer srv.Close()

	client := NewOpenMeteoClientWithBase(newTestBase(fastPolicy(0)), OpenMeteoConfig{BaseURL: srv.URL})
	_, err := client.Fetch(context.Background(), dodoma)
	assert.Equal(t, types.ErrCodeUpstreamWeather, types.CodeOf(err))
}
