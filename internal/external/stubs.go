package external

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"hazardwatch/internal/types"
)

// StubSMSGateway logs instead of sending. Used when IS_TEST_MODE is set or
// APP_ENV=local.
type StubSMSGateway struct {
	name   string
	logger *slog.Logger
}

var _ SMSGateway = (*StubSMSGateway)(nil)

func NewStubSMSGateway(name string, logger *slog.Logger) *StubSMSGateway {
	return &StubSMSGateway{name: name, logger: logger}
}

func (s *StubSMSGateway) Name() string { return s.name }

func (s *StubSMSGateway) Send(ctx context.Context, to, body, from string) (string, error) {
	id := "stub_" + uuid.NewString()
	s.logger.InfoContext(ctx, "stub: sms send",
		"gateway", s.name,
		"to", to,
		"from", from,
		"chars", len(body),
		"message_id", id,
	)
	return id, nil
}

// StubWeatherProvider returns fixed calm conditions so the pipeline can run
// in test mode without network access.
type StubWeatherProvider struct {
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewStubWeatherProvider(clock clockwork.Clock, logger *slog.Logger) *StubWeatherProvider {
	return &StubWeatherProvider{clock: clock, logger: logger}
}

func (s *StubWeatherProvider) Name() string { return "stub" }

func (s *StubWeatherProvider) Fetch(ctx context.Context, region types.MonitoredRegion) (types.WeatherSnapshot, error) {
	now := s.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	calm := types.Conditions{Temperature: 26, Humidity: 60, Pressure: 1012, WindSpeed: 12, Precipitation: 4, CloudCover: 40}
	forecast := make([]types.ForecastEntry, 7)
	for i := range forecast {
		forecast[i] = types.ForecastEntry{Date: midnight.AddDate(0, 0, i), Conditions: calm, TempMax: 30, TempMin: 21}
	}

	s.logger.DebugContext(ctx, "stub: weather fetch", "region", region.Name)
	return types.WeatherSnapshot{
		Source:    s.Name(),
		Region:    region,
		FetchedAt: now,
		Current:   calm,
		Forecast:  forecast,
	}, nil
}
