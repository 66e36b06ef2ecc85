package config

import (
	"fmt"
	"strings"
)

// Thresholds are the hazard rule parameters. Units follow the weather model:
// mm for precipitation, km/h for wind, hPa for pressure, °C for temperature.
type Thresholds struct {
	FloodRain24h     float64 `envconfig:"FLOOD_RAIN_24H_MM" default:"100" validate:"gt=0"`
	FloodRain7d      float64 `envconfig:"FLOOD_RAIN_7D_MM" default:"200" validate:"gt=0"`
	DroughtDryDays   int     `envconfig:"DROUGHT_DRY_DAYS" default:"21" validate:"min=1,max=30"`
	DroughtRain30d   float64 `envconfig:"DROUGHT_RAIN_30D_MM" default:"50" validate:"gte=0"`
	DroughtHeatTemp  float64 `envconfig:"DROUGHT_HEAT_TEMP_C" default:"30"`
	CycloneWindSpeed float64 `envconfig:"CYCLONE_WIND_KMH" default:"119" validate:"gt=0"`
	CyclonePressure  float64 `envconfig:"CYCLONE_PRESSURE_HPA" default:"980" validate:"gt=800,lt=1100"`
	HeatwaveTemp     float64 `envconfig:"HEATWAVE_TEMP_C" default:"35"`
	HeatwaveDays     int     `envconfig:"HEATWAVE_DAYS" default:"3" validate:"min=1"`
}

// DefaultThresholds returns the same values the env defaults produce.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FloodRain24h:     100,
		FloodRain7d:      200,
		DroughtDryDays:   21,
		DroughtRain30d:   50,
		DroughtHeatTemp:  30,
		CycloneWindSpeed: 119,
		CyclonePressure:  980,
		HeatwaveTemp:     35,
		HeatwaveDays:     3,
	}
}

// Check runs the cross-field rules struct tags cannot express. It returns a
// ConfigError of type ErrValidation listing every violated rule.
func (t Thresholds) Check() error {
	var problems []string
	if t.FloodRain7d < t.FloodRain24h {
		problems = append(problems, fmt.Sprintf("FLOOD_RAIN_7D_MM (%.1f) must be >= FLOOD_RAIN_24H_MM (%.1f)", t.FloodRain7d, t.FloodRain24h))
	}
	if t.HeatwaveTemp <= 0 || t.HeatwaveTemp > 60 {
		problems = append(problems, fmt.Sprintf("HEATWAVE_TEMP_C (%.1f) is outside the plausible range", t.HeatwaveTemp))
	}
	if t.DroughtHeatTemp < -10 || t.DroughtHeatTemp > 60 {
		problems = append(problems, fmt.Sprintf("DROUGHT_HEAT_TEMP_C (%.1f) is outside the plausible range", t.DroughtHeatTemp))
	}
	if len(problems) == 0 {
		return nil
	}
	return &ConfigError{
		Type:    ErrValidation,
		Message: "invalid hazard thresholds: " + strings.Join(problems, "; "),
	}
}
