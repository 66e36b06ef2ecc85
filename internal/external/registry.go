package external

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"

	"hazardwatch/internal/config"
	"hazardwatch/internal/weather"
)

// ClientRegistry holds every vendor client the pipeline uses. SecondarySMS is
// nil when no secondary gateway is configured.
type ClientRegistry struct {
	Weather      []weather.Provider
	PrimarySMS   SMSGateway
	SecondarySMS SMSGateway
}

// NewClientRegistry builds the vendor clients. In test mode or APP_ENV=local
// the SMS gateways are stubs; in test mode the weather provider is too.
func NewClientRegistry(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	reg := &ClientRegistry{}

	if cfg.IsTestMode {
		logger.Info("initializing weather provider in STUB mode")
		reg.Weather = []weather.Provider{NewStubWeatherProvider(clock, logger.With("mode", "stub"))}
	} else {
		weatherHTTP := &http.Client{Timeout: cfg.Weather.Timeout}
		for _, name := range cfg.Weather.Providers {
			switch name {
			case "openmeteo":
				reg.Weather = append(reg.Weather, NewOpenMeteoClient(weatherHTTP, OpenMeteoConfig{
					BaseURL:      cfg.Weather.OpenMeteoBaseURL,
					ForecastDays: cfg.Weather.ForecastDays,
					Clock:        clock,
					Logger:       logger.With("client", "openmeteo"),
				}))
			case "openweather":
				if !cfg.Weather.OpenWeatherAPIKey.IsSet() {
					logger.Warn("openweather ranked but OPENWEATHER_API_KEY is empty; skipping")
					continue
				}
				reg.Weather = append(reg.Weather, NewOpenWeatherClient(weatherHTTP, OpenWeatherConfig{
					APIKey:  cfg.Weather.OpenWeatherAPIKey.Unmask(),
					BaseURL: cfg.Weather.OpenWeatherURL,
					Clock:   clock,
					Logger:  logger.With("client", "openweather"),
				}))
			default:
				return nil, fmt.Errorf("unknown weather provider %q", name)
			}
		}
		if len(reg.Weather) == 0 {
			return nil, fmt.Errorf("no usable weather provider in %v", cfg.Weather.Providers)
		}
	}

	if cfg.IsTestMode || cfg.Environment == "local" {
		logger.Info("initializing sms gateways in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		stubLogger := logger.With("mode", "stub")
		reg.PrimarySMS = NewStubSMSGateway("africastalking", stubLogger)
		if cfg.SMS.SecondaryConfigured() {
			reg.SecondarySMS = NewStubSMSGateway("twilio", stubLogger)
		}
		return reg, nil
	}

	smsHTTP := &http.Client{Timeout: cfg.SMS.Timeout}
	reg.PrimarySMS = NewAfricasTalkingClient(smsHTTP, AfricasTalkingConfig{
		Username: cfg.SMS.AfricasTalkingUsername,
		APIKey:   cfg.SMS.AfricasTalkingAPIKey.Unmask(),
		BaseURL:  cfg.SMS.AfricasTalkingBaseURL,
		Logger:   logger.With("client", "africastalking"),
	})
	if cfg.SMS.SecondaryConfigured() {
		reg.SecondarySMS = NewTwilioClient(smsHTTP, TwilioConfig{
			AccountSID: cfg.SMS.TwilioAccountSID,
			AuthToken:  cfg.SMS.TwilioAuthToken.Unmask(),
			FromNumber: cfg.SMS.TwilioFromNumber,
			BaseURL:    cfg.SMS.TwilioBaseURL,
			Logger:     logger.With("client", "twilio"),
		})
	}
	return reg, nil
}
