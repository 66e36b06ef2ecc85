package risk

import (
	"fmt"
	"time"

	"hazardwatch/internal/config"
	"hazardwatch/internal/types"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// EvaluateFlood fires when 24h rainfall exceeds FloodRain24h or 7-day rainfall
// exceeds FloodRain7d. Severity is critical strictly above 1.5x the 24h
// threshold and high strictly above the threshold.
func EvaluateFlood(region types.MonitoredRegion, snap types.WeatherSnapshot, th config.Thresholds) *types.Alert {
	r24, idx24 := precipitationWithin(snap.Forecast, day)
	r7d, idx7d := precipitationWithin(snap.Forecast, week)

	fires24 := r24 > th.FloodRain24h
	if !fires24 && r7d <= th.FloodRain7d {
		return nil
	}

	sev := types.SeverityMedium
	switch {
	case r24 > 1.5*th.FloodRain24h:
		sev = types.SeverityCritical
	case fires24:
		sev = types.SeverityHigh
	}

	confidence := roundConfidence(min(95, 70+(r24/th.FloodRain24h)*15))

	onset := idx24
	if !fires24 {
		onset = idx7d
	}
	a := newAlert(region, snap, types.HazardFlood, sev, confidence, onset)
	a.Title = fmt.Sprintf("Flood warning for %s", region.Name)
	a.Description = fmt.Sprintf("Forecast rainfall of %.0fmm in 24 hours and %.0fmm over 7 days.", r24, r7d)
	a.Recommendations = "Move livestock and stored harvest to higher ground. Clear drainage channels. Avoid crossing flooded rivers."
	a.ImpactAssessment = floodImpact(sev)
	a.Metadata["rain_24h_mm"] = r24
	a.Metadata["rain_7d_mm"] = r7d
	return a
}

func floodImpact(sev types.Severity) string {
	switch sev {
	case types.SeverityCritical:
		return "Widespread flooding likely. Crop loss and road closures expected."
	case types.SeverityHigh:
		return "Localized flooding of low-lying fields likely."
	default:
		return "Waterlogging possible in poorly drained fields."
	}
}
