// Package core is the delivery orchestrator: it sends an alert to a
// subscriber over each requested channel, fans an alert out to a region's
// subscribers under the daily cap, and re-attempts failed deliveries.
package core

import (
	"context"
	"time"

	"hazardwatch/internal/types"
)

// DeliveryStore is the subset of db.DeliveryRepository the orchestrator uses.
type DeliveryStore interface {
	Record(ctx context.Context, d *types.DeliveryRecord) error
	ListRetryable(ctx context.Context, since time.Time, maxAttempts, limit int) ([]types.DeliveryRecord, error)
	ClaimRetry(ctx context.Context, id string, maxAttempts int) (attempts int, ok bool, err error)
	RecordRetryOutcome(ctx context.Context, d *types.DeliveryRecord) error
}

// SubscriberStore is the subset of db.SubscriberRepository the orchestrator
// uses. ReserveDailySlot succeeds while the subscriber's sent and delivered
// records for day plus outstanding holds are below max; it is a single
// atomic statement at the store.
type SubscriberStore interface {
	ListActiveByRegion(ctx context.Context, region string, now time.Time) ([]types.Subscriber, error)
	GetByID(ctx context.Context, id string) (*types.Subscriber, error)
	ReserveDailySlot(ctx context.Context, subscriberID string, day time.Time, max int) (bool, error)
	ReleaseDailySlot(ctx context.Context, subscriberID string, day time.Time) error
	RecordUsage(ctx context.Context, subscriberID string) error
}

// AlertReader loads the alert a retried delivery belongs to.
type AlertReader interface {
	GetByID(ctx context.Context, id string) (*types.Alert, error)
}

// DeadLetterSink receives delivery records that could not be persisted.
type DeadLetterSink interface {
	Publish(ctx context.Context, kind string, payload any, cause error) error
}

// MetricResult categorizes a delivery outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
	MetricSkipped MetricResult = "skipped"
)

// DeliveryMetrics abstracts the telemetry sink for delivery outcomes.
type DeliveryMetrics interface {
	RecordDelivery(ctx context.Context, method types.DeliveryMethod, result MetricResult)
	RecordLatency(ctx context.Context, method types.DeliveryMethod, duration time.Duration)
	RecordCapSkip(ctx context.Context)
	RecordRetry(ctx context.Context, result MetricResult)
}

// RegionResult aggregates one deliverToRegion call. Delivered and Failed
// count subscribers, not methods.
type RegionResult struct {
	AlertID    string `json:"alert_id"`
	Recipients int    `json:"recipients"`
	Delivered  int    `json:"delivered"`
	Failed     int    `json:"failed"`
	Capped     int    `json:"capped"`
}

// RetryResult aggregates one retry sweep.
type RetryResult struct {
	Candidates int `json:"candidates"`
	Retried    int `json:"retried"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

type noopMetrics struct{}

func (noopMetrics) RecordDelivery(context.Context, types.DeliveryMethod, MetricResult) {}
func (noopMetrics) RecordLatency(context.Context, types.DeliveryMethod, time.Duration) {}
func (noopMetrics) RecordCapSkip(context.Context)                                     {}
func (noopMetrics) RecordRetry(context.Context, MetricResult)                         {}
