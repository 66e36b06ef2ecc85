// Package types holds the domain model shared by every HazardWatch package:
// monitored regions, weather snapshots, alerts, subscribers and delivery
// records, plus the AppError taxonomy and small context helpers.
package types

import "time"

// MonitoredRegion is a static, named location evaluated on every hazard sweep.
type MonitoredRegion struct {
	Name      string  `json:"name" yaml:"name" validate:"required"`
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`
}

// Conditions is one set of weather observations. Units: °C, %, hPa, km/h, mm
// and % cloud cover.
type Conditions struct {
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Pressure      float64 `json:"pressure"`
	WindSpeed     float64 `json:"wind_speed"`
	Precipitation float64 `json:"precipitation"`
	CloudCover    float64 `json:"cloud_cover"`
}

// ForecastEntry is a single dated forecast step. TempMax is zero when the
// provider does not report a daily maximum.
type ForecastEntry struct {
	Conditions
	Date    time.Time `json:"date"`
	TempMax float64   `json:"temp_max,omitempty"`
	TempMin float64   `json:"temp_min,omitempty"`
}

// PeakTemperature returns the daily maximum when known, otherwise the mean.
func (e ForecastEntry) PeakTemperature() float64 {
	if e.TempMax != 0 {
		return e.TempMax
	}
	return e.Temperature
}

// WeatherSnapshot is the normalized result of one provider fetch. It is not
// persisted; the rule engine consumes it immediately.
type WeatherSnapshot struct {
	Source    string          `json:"source"`
	Region    MonitoredRegion `json:"region"`
	FetchedAt time.Time       `json:"fetched_at"`
	Current   Conditions      `json:"current"`
	Forecast  []ForecastEntry `json:"forecast"`
}

// HazardType classifies an alert.
type HazardType string

const (
	HazardFlood    HazardType = "flood"
	HazardDrought  HazardType = "drought"
	HazardCyclone  HazardType = "cyclone"
	HazardLocust   HazardType = "locust"
	HazardDisease  HazardType = "disease"
	HazardHeatwave HazardType = "heatwave"
	HazardWildfire HazardType = "wildfire"
)

// Severity grades an alert. The zero value is not a valid severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so they can be compared; unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusExpired   AlertStatus = "expired"
	AlertStatusCancelled AlertStatus = "cancelled"
)

// Alert is a persisted hazard warning for a region. Type, severity and
// confidence never change after creation; only Status moves.
type Alert struct {
	ID               string         `json:"id"`
	Type             HazardType     `json:"type"`
	Severity         Severity       `json:"severity"`
	Confidence       int            `json:"confidence"`
	Region           string         `json:"region"`
	ForecastDate     time.Time      `json:"forecast_date"`
	LeadTimeHours    int            `json:"lead_time_hours"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Recommendations  string         `json:"recommendations"`
	ImpactAssessment string         `json:"impact_assessment"`
	Status           AlertStatus    `json:"status"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ExpiresAt        time.Time      `json:"expires_at"`
}
