package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"hazardwatch/internal/types"
)

const openMeteoAPIBase = "https://api.open-meteo.com"

var (
	openMeteoCurrent = strings.Join([]string{
		"temperature_2m", "relative_humidity_2m", "pressure_msl",
		"wind_speed_10m", "precipitation", "cloud_cover",
	}, ",")
	openMeteoDaily = strings.Join([]string{
		"temperature_2m_max", "temperature_2m_min", "temperature_2m_mean",
		"precipitation_sum", "wind_speed_10m_max", "relative_humidity_2m_mean",
		"pressure_msl_mean", "cloud_cover_mean",
	}, ",")
)

// OpenMeteoConfig configures an OpenMeteoClient. Open-Meteo needs no key.
type OpenMeteoConfig struct {
	BaseURL      string
	ForecastDays int
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// OpenMeteoClient fetches daily forecasts from the Open-Meteo forecast API.
type OpenMeteoClient struct {
	base         *BaseClient
	baseURL      string
	forecastDays int
	clock        clockwork.Clock
	logger       *slog.Logger
}

// NewOpenMeteoClient builds a client with its own breaker.
func NewOpenMeteoClient(httpClient *http.Client, cfg OpenMeteoConfig) *OpenMeteoClient {
	base := NewBaseClient(httpClient, "openmeteo", DefaultRetryPolicy(), WithUpstreamCode(types.ErrCodeUpstreamWeather))
	return NewOpenMeteoClientWithBase(base, cfg)
}

// NewOpenMeteoClientWithBase builds a client on a preconfigured BaseClient.
func NewOpenMeteoClientWithBase(base *BaseClient, cfg OpenMeteoConfig) *OpenMeteoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openMeteoAPIBase
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 16
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenMeteoClient{
		base:         base,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		forecastDays: cfg.ForecastDays,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
}

func (c *OpenMeteoClient) Name() string { return "openmeteo" }

type openMeteoResponse struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Current          struct {
		Temperature   float64 `json:"temperature_2m"`
		Humidity      float64 `json:"relative_humidity_2m"`
		Pressure      float64 `json:"pressure_msl"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		Precipitation float64 `json:"precipitation"`
		CloudCover    float64 `json:"cloud_cover"`
	} `json:"current"`
	Daily struct {
		Time          []string  `json:"time"`
		TempMax       []float64 `json:"temperature_2m_max"`
		TempMin       []float64 `json:"temperature_2m_min"`
		TempMean      []float64 `json:"temperature_2m_mean"`
		Precipitation []float64 `json:"precipitation_sum"`
		WindMax       []float64 `json:"wind_speed_10m_max"`
		Humidity      []float64 `json:"relative_humidity_2m_mean"`
		Pressure      []float64 `json:"pressure_msl_mean"`
		CloudCover    []float64 `json:"cloud_cover_mean"`
	} `json:"daily"`
}

// Fetch returns current conditions and a daily forecast. Wind is requested
// in km/h. Pressure must be mean sea-level hPa (pressure_msl), the reference
// the cyclone thresholds and OpenWeatherMap use.
func (c *OpenMeteoClient) Fetch(ctx context.Context, region types.MonitoredRegion) (types.WeatherSnapshot, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(region.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(region.Longitude, 'f', 4, 64))
	q.Set("current", openMeteoCurrent)
	q.Set("daily", openMeteoDaily)
	q.Set("forecast_days", strconv.Itoa(c.forecastDays))
	q.Set("wind_speed_unit", "kmh")
	q.Set("timezone", "auto")

	var body openMeteoResponse
	if err := c.base.GetJSON(ctx, c.baseURL+"/v1/forecast?"+q.Encode(), &body); err != nil {
		return types.WeatherSnapshot{}, fmt.Errorf("openmeteo fetch %s: %w", region.Name, err)
	}

	d := body.Daily
	if len(d.Time) == 0 {
		return types.WeatherSnapshot{}, types.NewAppError(types.ErrCodeUpstreamWeather, "openmeteo returned no daily forecast", nil)
	}

	loc := time.FixedZone("local", body.UTCOffsetSeconds)
	forecast := make([]types.ForecastEntry, 0, len(d.Time))
	for i, day := range d.Time {
		date, err := time.ParseInLocation("2006-01-02", day, loc)
		if err != nil {
			return types.WeatherSnapshot{}, types.NewAppError(types.ErrCodeUpstreamWeather, "openmeteo returned malformed date "+day, err)
		}
		entry := types.ForecastEntry{
			Date:    date,
			TempMax: at(d.TempMax, i),
			TempMin: at(d.TempMin, i),
			Conditions: types.Conditions{
				Temperature:   at(d.TempMean, i),
				Humidity:      at(d.Humidity, i),
				Pressure:      at(d.Pressure, i),
				WindSpeed:     at(d.WindMax, i),
				Precipitation: at(d.Precipitation, i),
				CloudCover:    at(d.CloudCover, i),
			},
		}
		if entry.Temperature == 0 && entry.TempMax != 0 {
			entry.Temperature = (entry.TempMax + entry.TempMin) / 2
		}
		forecast = append(forecast, entry)
	}

	cur := body.Current
	return types.WeatherSnapshot{
		Source:    c.Name(),
		Region:    region,
		FetchedAt: c.clock.Now(),
		Current: types.Conditions{
			Temperature:   cur.Temperature,
			Humidity:      cur.Humidity,
			Pressure:      cur.Pressure,
			WindSpeed:     cur.WindSpeed,
			Precipitation: cur.Precipitation,
			CloudCover:    cur.CloudCover,
		},
		Forecast: forecast,
	}, nil
}

// at tolerates the shorter arrays Open-Meteo returns for unavailable
// variables.
func at(xs []float64, i int) float64 {
	if i < len(xs) {
		return xs[i]
	}
	return 0
}
