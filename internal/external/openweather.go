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

const (
	openWeatherAPIBase = "https://api.openweathermap.org"
	msToKmh            = 3.6
)

// OpenWeatherConfig configures an OpenWeatherClient.
type OpenWeatherConfig struct {
	APIKey  string
	BaseURL string
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// OpenWeatherClient fetches from the OpenWeatherMap One Call 3.0 API.
type OpenWeatherClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	clock   clockwork.Clock
	logger  *slog.Logger
}

func NewOpenWeatherClient(httpClient *http.Client, cfg OpenWeatherConfig) *OpenWeatherClient {
	base := NewBaseClient(httpClient, "openweather", DefaultRetryPolicy(), WithUpstreamCode(types.ErrCodeUpstreamWeather))
	return NewOpenWeatherClientWithBase(base, cfg)
}

func NewOpenWeatherClientWithBase(base *BaseClient, cfg OpenWeatherConfig) *OpenWeatherClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openWeatherAPIBase
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenWeatherClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
}

func (c *OpenWeatherClient) Name() string { return "openweather" }

type owmCurrent struct {
	Temp      float64 `json:"temp"`
	Pressure  float64 `json:"pressure"`
	Humidity  float64 `json:"humidity"`
	Clouds    float64 `json:"clouds"`
	WindSpeed float64 `json:"wind_speed"`
	Rain      struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
}

type owmDaily struct {
	Dt   int64 `json:"dt"`
	Temp struct {
		Day float64 `json:"day"`
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"temp"`
	Pressure  float64 `json:"pressure"`
	Humidity  float64 `json:"humidity"`
	Clouds    float64 `json:"clouds"`
	WindSpeed float64 `json:"wind_speed"`
	WindGust  float64 `json:"wind_gust"`
	Rain      float64 `json:"rain"`
}

type owmResponse struct {
	TimezoneOffset int        `json:"timezone_offset"`
	Current        owmCurrent `json:"current"`
	Daily          []owmDaily `json:"daily"`
}

// Fetch converts wind from m/s to km/h and uses the daily gust when it
// exceeds the sustained wind.
func (c *OpenWeatherClient) Fetch(ctx context.Context, region types.MonitoredRegion) (types.WeatherSnapshot, error) {
	if c.apiKey == "" {
		return types.WeatherSnapshot{}, types.NewAppError(types.ErrCodeUpstreamWeather, "openweather api key not configured", nil)
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(region.Latitude, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(region.Longitude, 'f', 4, 64))
	q.Set("exclude", "minutely,hourly,alerts")
	q.Set("units", "metric")
	q.Set("appid", c.apiKey)

	var body owmResponse
	if err := c.base.GetJSON(ctx, c.baseURL+"/data/3.0/onecall?"+q.Encode(), &body); err != nil {
		return types.WeatherSnapshot{}, fmt.Errorf("openweather fetch %s: %w", region.Name, err)
	}
	if len(body.Daily) == 0 {
		return types.WeatherSnapshot{}, types.NewAppError(types.ErrCodeUpstreamWeather, "openweather returned no daily forecast", nil)
	}

	loc := time.FixedZone("local", body.TimezoneOffset)
	forecast := make([]types.ForecastEntry, 0, len(body.Daily))
	for _, d := range body.Daily {
		local := time.Unix(d.Dt, 0).In(loc)
		forecast = append(forecast, types.ForecastEntry{
			Date:    time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc),
			TempMax: d.Temp.Max,
			TempMin: d.Temp.Min,
			Conditions: types.Conditions{
				Temperature:   d.Temp.Day,
				Humidity:      d.Humidity,
				Pressure:      d.Pressure,
				WindSpeed:     max(d.WindSpeed, d.WindGust) * msToKmh,
				Precipitation: d.Rain,
				CloudCover:    d.Clouds,
			},
		})
	}

	cur := body.Current
	return types.WeatherSnapshot{
		Source:    c.Name(),
		Region:    region,
		FetchedAt: c.clock.Now(),
		Current: types.Conditions{
			Temperature:   cur.Temp,
			Humidity:      cur.Humidity,
			Pressure:      cur.Pressure,
			WindSpeed:     cur.WindSpeed * msToKmh,
			Precipitation: cur.Rain.OneHour,
			CloudCover:    cur.Clouds,
		},
		Forecast: forecast,
	}, nil
}
