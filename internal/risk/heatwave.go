package risk

import (
	"fmt"

	"hazardwatch/internal/config"
	"hazardwatch/internal/types"
)

// EvaluateHeatwave measures the run of consecutive days above HeatwaveTemp
// starting at day 0. It fires when the run reaches HeatwaveDays or the hottest
// forecast day exceeds HeatwaveTemp by more than 3°C.
func EvaluateHeatwave(region types.MonitoredRegion, snap types.WeatherSnapshot, th config.Thresholds) *types.Alert {
	if len(snap.Forecast) == 0 {
		return nil
	}

	run := 0
	for _, f := range snap.Forecast {
		if f.PeakTemperature() <= th.HeatwaveTemp {
			break
		}
		run++
	}

	maxTemp, hottest := snap.Forecast[0].PeakTemperature(), 0
	for i, f := range snap.Forecast {
		if t := f.PeakTemperature(); t > maxTemp {
			maxTemp, hottest = t, i
		}
	}

	if run < th.HeatwaveDays && maxTemp <= th.HeatwaveTemp+3 {
		return nil
	}

	sev := types.SeverityMedium
	switch {
	case maxTemp > 42 || run > 5:
		sev = types.SeverityCritical
	case maxTemp > 40 || run > 3:
		sev = types.SeverityHigh
	}

	onset := 0
	if run < th.HeatwaveDays {
		onset = hottest
	}

	a := newAlert(region, snap, types.HazardHeatwave, sev, roundConfidence(75), onset)
	a.Title = fmt.Sprintf("Heatwave warning for %s", region.Name)
	a.Description = fmt.Sprintf("%d consecutive hot days with temperatures up to %.0f°C.", run, maxTemp)
	a.Recommendations = "Water crops early or late in the day. Provide shade and water for livestock. Avoid outdoor work at midday."
	a.ImpactAssessment = "Heat stress for crops, livestock and outdoor workers."
	a.Metadata["consecutive_days"] = run
	a.Metadata["max_temp_c"] = maxTemp
	return a
}
