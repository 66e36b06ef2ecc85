// Package monitor runs the hazard sweep: fetch a snapshot per monitored
// region, evaluate it and persist the alerts that fire.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"hazardwatch/internal/observability"
	"hazardwatch/internal/queue"
	"hazardwatch/internal/risk"
	"hazardwatch/internal/types"
	"hazardwatch/internal/weather"
)

// AlertStore is the subset of db.AlertRepository the monitor needs.
type AlertStore interface {
	Create(ctx context.Context, a *types.Alert) error
	HighestActiveSeverity(ctx context.Context, region string, hazard types.HazardType, since time.Time) (types.Severity, error)
}

// DeadLetterSink receives alerts that could not be persisted.
type DeadLetterSink interface {
	Publish(ctx context.Context, kind string, payload any, cause error) error
}

// Config holds the dependencies for a RegionMonitor.
type Config struct {
	Regions     []types.MonitoredRegion
	Provider    weather.Provider
	Engine      *risk.Engine
	Alerts      AlertStore
	DeadLetters DeadLetterSink
	Stats       *observability.RunStats
	Metrics     *observability.Metrics
	Clock       clockwork.Clock

	// RegionDelay is the pause between two regions.
	RegionDelay time.Duration
	// AlertTTL sets ExpiresAt on every persisted alert.
	AlertTTL time.Duration
	// DedupWindow suppresses a candidate when an alert of the same region and
	// type with the same or higher severity was created inside it. Zero
	// disables suppression.
	DedupWindow time.Duration

	Logger *slog.Logger
}

// RegionMonitor walks the configured regions in order.
type RegionMonitor struct {
	regions     []types.MonitoredRegion
	provider    weather.Provider
	engine      *risk.Engine
	alerts      AlertStore
	deadLetters DeadLetterSink
	stats       *observability.RunStats
	metrics     *observability.Metrics
	clock       clockwork.Clock
	regionDelay time.Duration
	alertTTL    time.Duration
	dedupWindow time.Duration
	logger      *slog.Logger
}

func NewRegionMonitor(cfg Config) *RegionMonitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RegionMonitor{
		regions:     cfg.Regions,
		provider:    cfg.Provider,
		engine:      cfg.Engine,
		alerts:      cfg.Alerts,
		deadLetters: cfg.DeadLetters,
		stats:       cfg.Stats,
		metrics:     cfg.Metrics,
		clock:       clock,
		regionDelay: cfg.RegionDelay,
		alertTTL:    cfg.AlertTTL,
		dedupWindow: cfg.DedupWindow,
		logger:      logger,
	}
}

// Sweep evaluates every region once and returns the alerts that were
// persisted. A region whose providers all fail is skipped; an alert that fails
// to persist is dead-lettered and left out of the result. The only error
// returned is ctx's, together with the alerts persisted so far.
func (m *RegionMonitor) Sweep(ctx context.Context) ([]types.Alert, error) {
	var (
		persisted []types.Alert
		sweepErr  error
	)

	for i, region := range m.regions {
		if i > 0 && m.regionDelay > 0 {
			if err := m.sleep(ctx); err != nil {
				sweepErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			sweepErr = err
			break
		}
		persisted = append(persisted, m.sweepRegion(ctx, region)...)
	}

	if m.stats != nil {
		m.stats.RecordWeatherCheck(len(persisted))
	}
	m.logger.InfoContext(ctx, "hazard sweep complete",
		"regions", len(m.regions),
		"alerts", len(persisted),
	)
	return persisted, sweepErr
}

func (m *RegionMonitor) sweepRegion(ctx context.Context, region types.MonitoredRegion) []types.Alert {
	snap, err := m.provider.Fetch(ctx, region)
	if err != nil {
		m.countFetch(m.provider.Name(), false)
		m.logger.ErrorContext(ctx, "skipping region, no weather data",
			"region", region.Name,
			"error", err,
		)
		return nil
	}
	m.countFetch(snap.Source, true)

	candidates := m.engine.Evaluate(region, snap)
	var out []types.Alert
	for i := range candidates {
		a := candidates[i]
		if m.suppressed(ctx, a) {
			continue
		}

		now := m.clock.Now().UTC()
		a.CreatedAt = now
		a.ExpiresAt = now.Add(m.alertTTL)
		a.Status = types.AlertStatusActive

		if err := m.alerts.Create(ctx, &a); err != nil {
			m.persistFailed(ctx, a, err)
			continue
		}
		if m.metrics != nil {
			m.metrics.AlertsGenerated.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
		}
		m.logger.InfoContext(ctx, "alert generated",
			"alert_id", a.ID,
			"region", a.Region,
			"hazard", a.Type,
			"severity", a.Severity,
			"confidence", a.Confidence,
		)
		out = append(out, a)
	}
	return out
}

// suppressed reports whether a recent alert already covers the candidate. A
// failed lookup never suppresses.
func (m *RegionMonitor) suppressed(ctx context.Context, a types.Alert) bool {
	if m.dedupWindow <= 0 {
		return false
	}
	since := m.clock.Now().Add(-m.dedupWindow)
	existing, err := m.alerts.HighestActiveSeverity(ctx, a.Region, a.Type, since)
	if err != nil {
		m.logger.WarnContext(ctx, "dedup lookup failed, keeping alert",
			"region", a.Region,
			"hazard", a.Type,
			"error", err,
		)
		return false
	}
	if existing == "" || existing.Rank() < a.Severity.Rank() {
		return false
	}
	if m.metrics != nil {
		m.metrics.AlertsSuppressed.WithLabelValues(string(a.Type)).Inc()
	}
	m.logger.InfoContext(ctx, "alert suppressed, covered by recent alert",
		"region", a.Region,
		"hazard", a.Type,
		"severity", a.Severity,
		"existing_severity", existing,
	)
	return true
}

func (m *RegionMonitor) persistFailed(ctx context.Context, a types.Alert, err error) {
	if m.metrics != nil {
		m.metrics.PersistFailures.WithLabelValues(queue.KindAlert).Inc()
	}
	m.logger.ErrorContext(ctx, "failed to persist alert, dropping",
		"region", a.Region,
		"hazard", a.Type,
		"error", err,
	)
	if m.deadLetters == nil {
		return
	}
	if dlErr := m.deadLetters.Publish(ctx, queue.KindAlert, a, err); dlErr != nil {
		m.logger.ErrorContext(ctx, "failed to dead-letter alert",
			"region", a.Region,
			"hazard", a.Type,
			"error", dlErr,
		)
	}
}

func (m *RegionMonitor) countFetch(provider string, ok bool) {
	if m.metrics == nil {
		return
	}
	m.metrics.WeatherFetches.WithLabelValues(provider, observability.Outcome(ok, "error")).Inc()
}

func (m *RegionMonitor) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.clock.After(m.regionDelay):
		return nil
	}
}
