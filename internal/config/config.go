// Package config defines the process configuration for HazardWatch.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> SecretProvider (Lowest)
//
// Any missing required value, malformed threshold or invalid region file
// causes the process to exit on startup.
package config

import (
	"time"
	_ "time/tzdata" // SCHEDULER_TIMEZONE must resolve on minimal images

	"hazardwatch/internal/types"
)

// SecretString is an alias for types.SecretString so configuration secrets
// never reach the logs.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"hazardwatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Push          PushConfig
	Weather       WeatherConfig
	SMS           SMSConfig
	Thresholds    Thresholds
	Delivery      DeliveryConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig

	// Regions is populated from Weather.RegionsFile (or the built-in list)
	// after envconfig processing.
	Regions []types.MonitoredRegion `ignored:"true" validate:"required,min=1,dive"`

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo `ignored:"true"`
}

// ServerConfig holds the admin HTTP listener settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	// RequestTimeout bounds admin requests, including a synchronous run-now.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5m"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers. DeadLetterQueueURL is optional;
// when empty persistence failures are only logged.
type AWSConfig struct {
	Region             string `envconfig:"AWS_REGION" default:"af-south-1"`
	DeadLetterQueueURL string `envconfig:"SQS_DEAD_LETTER_URL" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// RedisConfig configures the Redis push backend.
type RedisConfig struct {
	Addr     string       `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password SecretString `envconfig:"REDIS_PASSWORD"`
	DB       int          `envconfig:"REDIS_DB" default:"0"`
}

// KafkaConfig configures the Kafka push backend.
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	Topic   string   `envconfig:"KAFKA_PUSH_TOPIC" default:"hazard-alerts"`
}

// PushConfig selects the real-time push backend.
type PushConfig struct {
	Backend       string `envconfig:"PUSH_BACKEND" default:"redis" validate:"oneof=redis kafka none"`
	ChannelPrefix string `envconfig:"PUSH_CHANNEL_PREFIX" default:"alerts"`
}

// WeatherConfig holds the provider ranking and transport settings.
type WeatherConfig struct {
	// Providers is the ranked list; the first provider to answer wins.
	Providers         []string      `envconfig:"WEATHER_PROVIDERS" default:"openmeteo,openweather" validate:"min=1,dive,oneof=openmeteo openweather"`
	OpenMeteoBaseURL  string        `envconfig:"OPENMETEO_BASE_URL" default:"https://api.open-meteo.com" validate:"url"`
	OpenWeatherAPIKey SecretString  `envconfig:"OPENWEATHER_API_KEY"`
	OpenWeatherURL    string        `envconfig:"OPENWEATHER_BASE_URL" default:"https://api.openweathermap.org" validate:"url"`
	ForecastDays      int           `envconfig:"WEATHER_FORECAST_DAYS" default:"16" validate:"min=7,max=16"`
	Timeout           time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s"`
	RegionDelay       time.Duration `envconfig:"WEATHER_REGION_DELAY" default:"1s"`
	RegionsFile       string        `envconfig:"REGIONS_FILE"`
}

// SMSConfig holds the gateway credentials. The secondary gateway is optional.
type SMSConfig struct {
	AfricasTalkingUsername string        `envconfig:"AT_USERNAME" default:"sandbox"`
	AfricasTalkingAPIKey   SecretString  `envconfig:"AT_API_KEY"`
	AfricasTalkingBaseURL  string        `envconfig:"AT_BASE_URL" default:"https://api.africastalking.com" validate:"url"`
	SenderID               string        `envconfig:"SMS_SENDER_ID" default:"HAZARDWATCH"`
	TwilioAccountSID       string        `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken        SecretString  `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber       string        `envconfig:"TWILIO_FROM_NUMBER"`
	TwilioBaseURL          string        `envconfig:"TWILIO_BASE_URL" default:"https://api.twilio.com" validate:"url"`
	Timeout                time.Duration `envconfig:"SMS_TIMEOUT" default:"10s"`
}

// SecondaryConfigured reports whether Twilio credentials are present.
func (c SMSConfig) SecondaryConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken.IsSet()
}

// DeliveryConfig tunes the delivery orchestrator.
type DeliveryConfig struct {
	MaxAlertsPerDay int           `envconfig:"MAX_ALERTS_PER_DAY" default:"10" validate:"min=1"`
	MaxAttempts     int           `envconfig:"DELIVERY_MAX_ATTEMPTS" default:"3" validate:"min=1,max=10"`
	RetryWindow     time.Duration `envconfig:"DELIVERY_RETRY_WINDOW" default:"24h"`
	MaxConcurrency  int           `envconfig:"DELIVERY_MAX_CONCURRENCY" default:"10" validate:"min=1"`
	DefaultMethods  []string      `envconfig:"DELIVERY_METHODS" default:"sms,push" validate:"min=1,dive,oneof=sms push email webhook"`
}

// SchedulerConfig holds job cadences. Wall-clock jobs run in Timezone.
type SchedulerConfig struct {
	Timezone       string        `envconfig:"SCHEDULER_TIMEZONE" default:"Africa/Dar_es_Salaam" validate:"timezone"`
	HazardInterval time.Duration `envconfig:"HAZARD_SWEEP_INTERVAL" default:"1h"`
	RetryInterval  time.Duration `envconfig:"RETRY_SWEEP_INTERVAL" default:"15m"`
	DigestTime     string        `envconfig:"DIGEST_TIME" default:"07:00"`
	ExpiryTime     string        `envconfig:"EXPIRY_TIME" default:"00:00"`
	ReminderWindow time.Duration `envconfig:"EXPIRY_REMINDER_WINDOW" default:"72h"`
	AlertTTL       time.Duration `envconfig:"ALERT_TTL" default:"72h"`
	DedupWindow    time.Duration `envconfig:"ALERT_DEDUP_WINDOW" default:"0s"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"HazardWatch"`
	// MetricsBackend selects where delivery metrics go.
	MetricsBackend string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSecretResolution indicates a SecretProvider lookup failed.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed validation rules,
	// including threshold cross-checks and region validation.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a value could not be parsed into its target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
