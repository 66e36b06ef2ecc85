// Package risk turns a weather snapshot into candidate hazard alerts. The
// evaluators are pure functions of (region, snapshot, thresholds): they do not
// log, persist or read the clock.
package risk

import (
	"math"
	"time"

	"hazardwatch/internal/config"
	"hazardwatch/internal/types"
)

// Evaluator inspects a snapshot for one hazard. It returns nil when the
// hazard's rule does not fire.
type Evaluator func(region types.MonitoredRegion, snap types.WeatherSnapshot, th config.Thresholds) *types.Alert

// Engine runs every evaluator against the same snapshot, so one region may
// produce several alerts of different types in a single pass.
type Engine struct {
	thresholds config.Thresholds
	evaluators []Evaluator
}

// NewEngine builds an engine with the flood, drought, cyclone and heatwave
// evaluators in that order.
func NewEngine(th config.Thresholds) *Engine {
	return &Engine{
		thresholds: th,
		evaluators: []Evaluator{EvaluateFlood, EvaluateDrought, EvaluateCyclone, EvaluateHeatwave},
	}
}

// Thresholds returns the thresholds the engine was built with.
func (e *Engine) Thresholds() config.Thresholds {
	return e.thresholds
}

// Evaluate returns the candidate alerts for the snapshot. Candidates carry no
// ID or timestamps; the alert store assigns those.
func (e *Engine) Evaluate(region types.MonitoredRegion, snap types.WeatherSnapshot) []types.Alert {
	var alerts []types.Alert
	for _, eval := range e.evaluators {
		if a := eval(region, snap, e.thresholds); a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts
}

// roundConfidence rounds half-up and clamps to [0,100].
func roundConfidence(x float64) int {
	c := int(math.Floor(x + 0.5))
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// windowEnd is the exclusive end of a forecast window anchored at the first
// entry, so daily and hourly forecasts aggregate the same way.
func windowEnd(forecast []types.ForecastEntry, d time.Duration) time.Time {
	return forecast[0].Date.Add(d)
}

// precipitationWithin sums precipitation for entries inside the window and
// returns the last contributing entry.
func precipitationWithin(forecast []types.ForecastEntry, d time.Duration) (float64, int) {
	if len(forecast) == 0 {
		return 0, -1
	}
	end := windowEnd(forecast, d)
	total, last := 0.0, -1
	for i, f := range forecast {
		if !f.Date.Before(end) {
			break
		}
		total += f.Precipitation
		last = i
	}
	return total, last
}

// leadTimeHours is the whole number of hours from fetch to onset, never
// negative.
func leadTimeHours(fetchedAt, onset time.Time) int {
	h := int(onset.Sub(fetchedAt).Hours())
	if h < 0 {
		return 0
	}
	return h
}

// onsetOf returns the forecast date at idx, or the fetch time for current
// conditions (idx < 0).
func onsetOf(snap types.WeatherSnapshot, idx int) time.Time {
	if idx < 0 || idx >= len(snap.Forecast) {
		return snap.FetchedAt
	}
	return snap.Forecast[idx].Date
}

func newAlert(region types.MonitoredRegion, snap types.WeatherSnapshot, hazard types.HazardType, sev types.Severity, confidence int, onsetIdx int) *types.Alert {
	onset := onsetOf(snap, onsetIdx)
	return &types.Alert{
		Type:          hazard,
		Severity:      sev,
		Confidence:    confidence,
		Region:        region.Name,
		ForecastDate:  onset,
		LeadTimeHours: leadTimeHours(snap.FetchedAt, onset),
		Status:        types.AlertStatusActive,
		Metadata: map[string]any{
			"source":    snap.Source,
			"latitude":  region.Latitude,
			"longitude": region.Longitude,
		},
	}
}
