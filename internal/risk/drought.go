package risk

import (
	"fmt"

	"hazardwatch/internal/config"
	"hazardwatch/internal/types"
)

const (
	droughtHorizonDays = 30
	dryDayMaxMM        = 1.0
)

// EvaluateDrought counts dry days (< 1mm) over up to 30 forecast entries. It
// fires when the count exceeds DroughtDryDays, or when the 30-day total is
// below DroughtRain30d while the mean temperature exceeds DroughtHeatTemp.
func EvaluateDrought(region types.MonitoredRegion, snap types.WeatherSnapshot, th config.Thresholds) *types.Alert {
	horizon := snap.Forecast
	if len(horizon) > droughtHorizonDays {
		horizon = horizon[:droughtHorizonDays]
	}
	if len(horizon) == 0 {
		return nil
	}

	dry := 0
	total, tempSum := 0.0, 0.0
	for _, f := range horizon {
		if f.Precipitation < dryDayMaxMM {
			dry++
		}
		total += f.Precipitation
		tempSum += f.Temperature
	}
	avgTemp := tempSum / float64(len(horizon))

	if dry <= th.DroughtDryDays && !(total < th.DroughtRain30d && avgTemp > th.DroughtHeatTemp) {
		return nil
	}

	sev := types.SeverityMedium
	switch {
	case dry > 30:
		sev = types.SeverityCritical
	case dry > 25:
		sev = types.SeverityHigh
	}

	confidence := roundConfidence(min(90, 65+(float64(dry)/float64(th.DroughtDryDays))*20))

	a := newAlert(region, snap, types.HazardDrought, sev, confidence, 0)
	a.Title = fmt.Sprintf("Drought warning for %s", region.Name)
	a.Description = fmt.Sprintf("%d dry days expected with %.0fmm total rainfall and an average of %.1f°C.", dry, total, avgTemp)
	a.Recommendations = "Conserve water. Delay planting of water-intensive crops. Consider drought-tolerant varieties."
	a.ImpactAssessment = "Reduced soil moisture and pasture. Yield losses likely without irrigation."
	a.Metadata["dry_days"] = dry
	a.Metadata["rain_30d_mm"] = total
	a.Metadata["avg_temp_c"] = avgTemp
	return a
}
