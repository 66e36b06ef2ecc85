package observability

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// RunStats is the scheduler's cumulative counters. They live for the life of
// the process and reset only on restart. All methods are safe for
// concurrent use.
type RunStats struct {
	clock     clockwork.Clock
	startedAt time.Time

	weatherChecks    atomic.Int64
	alertsGenerated  atomic.Int64
	alertsDelivered  atomic.Int64
	deliveryFailures atomic.Int64

	lastWeatherCheck atomic.Pointer[time.Time]
	lastRetrySweep   atomic.Pointer[time.Time]
	lastDigest       atomic.Pointer[time.Time]
	lastExpiry       atomic.Pointer[time.Time]
}

func NewRunStats(clock clockwork.Clock) *RunStats {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RunStats{clock: clock, startedAt: clock.Now()}
}

// RecordWeatherCheck counts one completed hazard sweep.
func (s *RunStats) RecordWeatherCheck(alerts int) {
	s.weatherChecks.Add(1)
	s.alertsGenerated.Add(int64(alerts))
	now := s.clock.Now()
	s.lastWeatherCheck.Store(&now)
}

func (s *RunStats) RecordDeliveries(delivered, failed int) {
	s.alertsDelivered.Add(int64(delivered))
	s.deliveryFailures.Add(int64(failed))
}

func (s *RunStats) MarkRetrySweep() { s.mark(&s.lastRetrySweep) }
func (s *RunStats) MarkDigest()     { s.mark(&s.lastDigest) }
func (s *RunStats) MarkExpiry()     { s.mark(&s.lastExpiry) }

func (s *RunStats) mark(p *atomic.Pointer[time.Time]) {
	now := s.clock.Now()
	p.Store(&now)
}

// StatsSnapshot is the JSON shape returned by the stats endpoint.
type StatsSnapshot struct {
	WeatherChecks    int64      `json:"weather_checks"`
	AlertsGenerated  int64      `json:"alerts_generated"`
	AlertsDelivered  int64      `json:"alerts_delivered"`
	DeliveryFailures int64      `json:"delivery_failures"`
	LastWeatherCheck *time.Time `json:"last_weather_check,omitempty"`
	LastRetrySweep   *time.Time `json:"last_retry_sweep,omitempty"`
	LastDigest       *time.Time `json:"last_digest,omitempty"`
	LastExpiry       *time.Time `json:"last_expiry,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	UptimeSeconds    int64      `json:"uptime_seconds"`
	SuccessRate      string     `json:"success_rate"`
}

// Snapshot reads every counter. Individual fields are consistent; the set as
// a whole may straddle a concurrent update.
func (s *RunStats) Snapshot() StatsSnapshot {
	delivered := s.alertsDelivered.Load()
	failed := s.deliveryFailures.Load()
	return StatsSnapshot{
		WeatherChecks:    s.weatherChecks.Load(),
		AlertsGenerated:  s.alertsGenerated.Load(),
		AlertsDelivered:  delivered,
		DeliveryFailures: failed,
		LastWeatherCheck: s.lastWeatherCheck.Load(),
		LastRetrySweep:   s.lastRetrySweep.Load(),
		LastDigest:       s.lastDigest.Load(),
		LastExpiry:       s.lastExpiry.Load(),
		StartedAt:        s.startedAt,
		UptimeSeconds:    int64(s.clock.Since(s.startedAt).Seconds()),
		SuccessRate:      SuccessRate(delivered, failed),
	}
}

// SuccessRate formats delivered/(delivered+failed) as a percentage with two
// decimals, or "N/A" before any delivery was attempted.
func SuccessRate(delivered, failed int64) string {
	total := delivered + failed
	if total == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", float64(delivered)*100/float64(total))
}
