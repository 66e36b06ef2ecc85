package risk

import (
	"fmt"

	"hazardwatch/internal/config"
	"hazardwatch/internal/types"
)

// EvaluateCyclone fires on wind above CycloneWindSpeed (current or forecast
// maximum) or current pressure below CyclonePressure. A pressure trigger
// raises confidence from 75 to 85.
func EvaluateCyclone(region types.MonitoredRegion, snap types.WeatherSnapshot, th config.Thresholds) *types.Alert {
	maxWind, onset := snap.Current.WindSpeed, -1
	for i, f := range snap.Forecast {
		if f.WindSpeed > maxWind {
			maxWind, onset = f.WindSpeed, i
		}
	}

	lowPressure := snap.Current.Pressure > 0 && snap.Current.Pressure < th.CyclonePressure
	if maxWind <= th.CycloneWindSpeed && !lowPressure {
		return nil
	}

	sev := types.SeverityMedium
	switch {
	case maxWind > 150:
		sev = types.SeverityCritical
	case maxWind > 119:
		sev = types.SeverityHigh
	}

	confidence := 75
	if lowPressure {
		confidence = 85
	}

	a := newAlert(region, snap, types.HazardCyclone, sev, roundConfidence(float64(confidence)), onset)
	a.Title = fmt.Sprintf("Cyclone warning for %s", region.Name)
	a.Description = fmt.Sprintf("Winds up to %.0f km/h and pressure of %.0f hPa.", maxWind, snap.Current.Pressure)
	a.Recommendations = "Secure roofs and stored produce. Bring boats ashore. Follow evacuation instructions from local authorities."
	a.ImpactAssessment = "Damaging winds and storm surge possible along exposed areas."
	a.Metadata["max_wind_kmh"] = maxWind
	a.Metadata["pressure_hpa"] = snap.Current.Pressure
	return a
}
