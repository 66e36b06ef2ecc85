// Package weather defines the provider contract for snapshot sources and the
// ranked fallback chain the region monitor fetches through.
package weather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"hazardwatch/internal/types"
)

// Provider fetches a normalized snapshot for one region. Implementations must
// honor ctx cancellation and return an error for any unusable response.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, region types.MonitoredRegion) (types.WeatherSnapshot, error)
}

// Chain tries providers in rank order and returns the first success.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

var _ Provider = (*Chain)(nil)

// NewChain builds a fallback chain. Order is significant.
func NewChain(providers []Provider, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, logger: logger}
}

// Name lists the ranked provider names.
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Fetch returns the snapshot from the highest-ranked provider that answers.
// A failing provider is logged at warn and the next one is tried; an
// upstream_weather_unavailable AppError is returned only when all fail.
func (c *Chain) Fetch(ctx context.Context, region types.MonitoredRegion) (types.WeatherSnapshot, error) {
	var lastErr error

	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return types.WeatherSnapshot{}, err
		}

		snap, err := p.Fetch(ctx, region)
		if err != nil {
			c.logger.WarnContext(ctx, "weather provider unavailable",
				"provider", p.Name(),
				"region", region.Name,
				"error", err,
			)
			lastErr = err
			continue
		}
		if snap.Source == "" {
			snap.Source = p.Name()
		}
		snap.Region = region
		return snap, nil
	}

	if lastErr != nil {
		return types.WeatherSnapshot{}, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamWeather,
			fmt.Sprintf("all weather providers failed for %s", region.Name),
			lastErr,
			map[string]any{"region": region.Name, "providers": len(c.providers)},
		)
	}

	return types.WeatherSnapshot{}, types.NewAppError(types.ErrCodeUpstreamWeather, "no weather providers configured", nil)
}
