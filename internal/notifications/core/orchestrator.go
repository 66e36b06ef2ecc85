package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"hazardwatch/internal/queue"
	"hazardwatch/internal/types"
)

// Config holds the dependencies and limits for an Orchestrator.
type Config struct {
	Channels    []types.DeliveryChannel
	Deliveries  DeliveryStore
	Subscribers SubscriberStore
	Alerts      AlertReader
	DeadLetters DeadLetterSink
	Metrics     DeliveryMetrics
	Clock       clockwork.Clock
	// Location defines the calendar day the daily cap counts in.
	Location *time.Location

	DefaultMethods  []types.DeliveryMethod
	MaxAlertsPerDay int
	MaxAttempts     int
	RetryWindow     time.Duration
	MaxConcurrency  int
	RetryBatchSize  int

	Logger *slog.Logger
}

// Orchestrator delivers alerts and retries failed deliveries.
type Orchestrator struct {
	channels    map[types.DeliveryMethod]types.DeliveryChannel
	deliveries  DeliveryStore
	subscribers SubscriberStore
	alerts      AlertReader
	deadLetters DeadLetterSink
	metrics     DeliveryMetrics
	clock       clockwork.Clock
	location    *time.Location

	defaultMethods  []types.DeliveryMethod
	maxAlertsPerDay int
	maxAttempts     int
	retryWindow     time.Duration
	maxConcurrency  int
	retryBatchSize  int

	logger *slog.Logger
}

func NewOrchestrator(cfg Config) *Orchestrator {
	o := &Orchestrator{
		channels:        make(map[types.DeliveryMethod]types.DeliveryChannel, len(cfg.Channels)),
		deliveries:      cfg.Deliveries,
		subscribers:     cfg.Subscribers,
		alerts:          cfg.Alerts,
		deadLetters:     cfg.DeadLetters,
		metrics:         cfg.Metrics,
		clock:           cfg.Clock,
		location:        cfg.Location,
		defaultMethods:  cfg.DefaultMethods,
		maxAlertsPerDay: cfg.MaxAlertsPerDay,
		maxAttempts:     cfg.MaxAttempts,
		retryWindow:     cfg.RetryWindow,
		maxConcurrency:  cfg.MaxConcurrency,
		retryBatchSize:  cfg.RetryBatchSize,
		logger:          cfg.Logger,
	}
	for _, ch := range cfg.Channels {
		o.channels[ch.Method()] = ch
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.location == nil {
		o.location = time.UTC
	}
	if len(o.defaultMethods) == 0 {
		o.defaultMethods = []types.DeliveryMethod{types.MethodSMS, types.MethodPush}
	}
	if o.maxAlertsPerDay <= 0 {
		o.maxAlertsPerDay = 10
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = 3
	}
	if o.retryWindow <= 0 {
		o.retryWindow = 24 * time.Hour
	}
	if o.maxConcurrency <= 0 {
		o.maxConcurrency = 10
	}
	if o.retryBatchSize <= 0 {
		o.retryBatchSize = 500
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// DeliverAlert attempts every method independently and records each
// outcome. Empty methods means the configured defaults. The result is
// successful iff at least one method succeeded.
func (o *Orchestrator) DeliverAlert(ctx context.Context, alert *types.Alert, sub *types.Subscriber, methods []types.DeliveryMethod) types.DeliveryResult {
	if len(methods) == 0 {
		methods = o.defaultMethods
	}

	result := types.DeliveryResult{
		AlertID:      alert.ID,
		SubscriberID: sub.ID,
		Methods:      make([]types.MethodResult, 0, len(methods)),
	}

	for _, method := range methods {
		mr := o.send(ctx, method, alert, sub)
		o.record(ctx, &types.DeliveryRecord{
			AlertID:           alert.ID,
			SubscriberID:      sub.ID,
			Method:            method,
			Status:            mr.Status,
			Provider:          mr.Provider,
			ProviderMessageID: mr.ProviderMessageID,
			LastError:         mr.Error,
			SentAt:            o.clock.Now().UTC(),
			DeliveredAt:       deliveredAt(mr, o.clock.Now().UTC()),
		})
		if mr.Success {
			result.Success = true
		}
		result.Methods = append(result.Methods, mr)
	}
	return result
}

// send runs one channel and normalizes its result.
func (o *Orchestrator) send(ctx context.Context, method types.DeliveryMethod, alert *types.Alert, sub *types.Subscriber) types.MethodResult {
	ch, ok := o.channels[method]
	if !ok {
		err := types.NewAppError(types.ErrCodeDeliveryUnsupportedMethod,
			fmt.Sprintf("delivery method %q is not supported", method), nil)
		o.metrics.RecordDelivery(ctx, method, MetricFailed)
		return types.MethodResult{Method: method, Status: types.DeliveryFailed, Error: err.Error()}
	}

	start := o.clock.Now()
	mr, err := ch.Deliver(ctx, alert, sub)
	o.metrics.RecordLatency(ctx, method, o.clock.Since(start))

	mr.Method = method
	if err != nil {
		mr.Success = false
		mr.Status = types.DeliveryFailed
		if mr.Error == "" {
			mr.Error = err.Error()
		}
		o.metrics.RecordDelivery(ctx, method, MetricFailed)
		o.logger.WarnContext(ctx, "delivery failed",
			"alert_id", alert.ID,
			"subscriber_id", sub.ID,
			"method", method,
			"provider", mr.Provider,
			"error", err,
		)
		return mr
	}
	o.metrics.RecordDelivery(ctx, method, MetricSuccess)
	return mr
}

// record persists a delivery outcome. A store failure dead-letters the record
// and is otherwise swallowed; the delivery itself already happened.
func (o *Orchestrator) record(ctx context.Context, rec *types.DeliveryRecord) {
	err := o.deliveries.Record(ctx, rec)
	if err == nil {
		return
	}
	o.logger.ErrorContext(ctx, "failed to record delivery",
		"alert_id", rec.AlertID,
		"subscriber_id", rec.SubscriberID,
		"method", rec.Method,
		"error", err,
	)
	if o.deadLetters == nil {
		return
	}
	if dlErr := o.deadLetters.Publish(ctx, queue.KindDelivery, rec, err); dlErr != nil {
		o.logger.ErrorContext(ctx, "failed to dead-letter delivery",
			"alert_id", rec.AlertID,
			"subscriber_id", rec.SubscriberID,
			"error", dlErr,
		)
	}
}

// DeliverToRegion sends alert to every active subscriber of its region,
// at most MaxConcurrency at a time. A subscriber at the daily cap is skipped
// without a record. Per-subscriber failures never fail the call; only a
// failed subscriber lookup does.
func (o *Orchestrator) DeliverToRegion(ctx context.Context, alert *types.Alert) (RegionResult, error) {
	now := o.clock.Now()
	subs, err := o.subscribers.ListActiveByRegion(ctx, alert.Region, now)
	if err != nil {
		return RegionResult{AlertID: alert.ID}, fmt.Errorf("deliver to region %s: %w", alert.Region, err)
	}
	day := now.In(o.location)

	var (
		mu  sync.Mutex
		res = RegionResult{AlertID: alert.ID, Recipients: len(subs)}
		g   errgroup.Group
	)
	g.SetLimit(o.maxConcurrency)

	for i := range subs {
		sub := &subs[i]
		g.Go(func() error {
			outcome := o.deliverCapped(ctx, alert, sub, day)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeDelivered:
				res.Delivered++
			case outcomeCapped:
				res.Capped++
			default:
				res.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	o.logger.InfoContext(ctx, "region delivery complete",
		"alert_id", alert.ID,
		"region", alert.Region,
		"recipients", res.Recipients,
		"delivered", res.Delivered,
		"failed", res.Failed,
		"capped", res.Capped,
	)
	return res, nil
}

type subscriberOutcome int

const (
	outcomeFailed subscriberOutcome = iota
	outcomeDelivered
	outcomeCapped
)

// deliverCapped holds a daily slot, delivers, then drops the hold. The cap
// counts the subscriber's sent and delivered records for the day, so the
// hold is released only after DeliverAlert has written them.
func (o *Orchestrator) deliverCapped(ctx context.Context, alert *types.Alert, sub *types.Subscriber, day time.Time) subscriberOutcome {
	ok, err := o.subscribers.ReserveDailySlot(ctx, sub.ID, day, o.maxAlertsPerDay)
	if err != nil {
		o.logger.ErrorContext(ctx, "daily cap check failed, skipping subscriber",
			"alert_id", alert.ID,
			"subscriber_id", sub.ID,
			"error", err,
		)
		return outcomeFailed
	}
	if !ok {
		o.metrics.RecordCapSkip(ctx)
		o.logger.InfoContext(ctx, "daily cap reached, skipping subscriber",
			"alert_id", alert.ID,
			"subscriber_id", sub.ID,
			"max_per_day", o.maxAlertsPerDay,
		)
		return outcomeCapped
	}

	result := o.DeliverAlert(ctx, alert, sub, nil)
	if err := o.subscribers.ReleaseDailySlot(ctx, sub.ID, day); err != nil {
		o.logger.ErrorContext(ctx, "failed to release daily slot",
			"subscriber_id", sub.ID,
			"error", err,
		)
	}
	if !result.Success {
		return outcomeFailed
	}

	if err := o.subscribers.RecordUsage(ctx, sub.ID); err != nil {
		o.logger.ErrorContext(ctx, "failed to record subscription usage",
			"subscriber_id", sub.ID,
			"error", err,
		)
	}
	return outcomeDelivered
}

// RetryFailedDeliveries re-attempts failed records below the attempt
// ceiling whose first send falls inside the retry window. Records that
// failed with a permanent code (provider not configured, unsupported
// method) are skipped without a claim. Each record's
// attempt count is claimed atomically before the resend, so a record never
// goes past the ceiling even when sweeps overlap.
func (o *Orchestrator) RetryFailedDeliveries(ctx context.Context) (RetryResult, error) {
	since := o.clock.Now().Add(-o.retryWindow)
	records, err := o.deliveries.ListRetryable(ctx, since, o.maxAttempts, o.retryBatchSize)
	if err != nil {
		return RetryResult{}, fmt.Errorf("retry failed deliveries: %w", err)
	}

	res := RetryResult{Candidates: len(records)}
	alerts := map[string]*types.Alert{}
	subs := map[string]*types.Subscriber{}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec := records[i]
		if types.PermanentFailure(rec.LastError) {
			res.Skipped++
			continue
		}

		attempts, ok, err := o.deliveries.ClaimRetry(ctx, rec.ID, o.maxAttempts)
		if err != nil {
			o.logger.ErrorContext(ctx, "failed to claim retry",
				"delivery_id", rec.ID,
				"error", err,
			)
			res.Skipped++
			continue
		}
		if !ok {
			res.Skipped++
			o.metrics.RecordRetry(ctx, MetricSkipped)
			continue
		}
		rec.Attempts = attempts
		res.Retried++

		mr := o.retryOne(ctx, &rec, alerts, subs)
		rec.Status = mr.Status
		rec.Provider = mr.Provider
		rec.ProviderMessageID = mr.ProviderMessageID
		rec.LastError = mr.Error
		rec.DeliveredAt = deliveredAt(mr, o.clock.Now().UTC())

		if err := o.deliveries.RecordRetryOutcome(ctx, &rec); err != nil {
			o.logger.ErrorContext(ctx, "failed to record retry outcome",
				"delivery_id", rec.ID,
				"error", err,
			)
		}

		if mr.Success {
			res.Succeeded++
			o.metrics.RecordRetry(ctx, MetricSuccess)
		} else {
			res.Failed++
			o.metrics.RecordRetry(ctx, MetricFailed)
		}
	}

	o.logger.InfoContext(ctx, "retry sweep complete",
		"candidates", res.Candidates,
		"retried", res.Retried,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"skipped", res.Skipped,
	)
	return res, nil
}

func (o *Orchestrator) retryOne(ctx context.Context, rec *types.DeliveryRecord, alerts map[string]*types.Alert, subs map[string]*types.Subscriber) types.MethodResult {
	failed := func(err error) types.MethodResult {
		return types.MethodResult{Method: rec.Method, Status: types.DeliveryFailed, Provider: rec.Provider, Error: err.Error()}
	}

	alert, ok := alerts[rec.AlertID]
	if !ok {
		a, err := o.alerts.GetByID(ctx, rec.AlertID)
		if err != nil {
			return failed(err)
		}
		alerts[rec.AlertID] = a
		alert = a
	}
	if alert.Status != types.AlertStatusActive {
		return failed(types.NewAppError(types.ErrCodeConflictAlertNotActive,
			fmt.Sprintf("alert %s is %s", alert.ID, alert.Status), nil))
	}

	sub, ok := subs[rec.SubscriberID]
	if !ok {
		s, err := o.subscribers.GetByID(ctx, rec.SubscriberID)
		if err != nil {
			return failed(err)
		}
		subs[rec.SubscriberID] = s
		sub = s
	}

	return o.send(ctx, rec.Method, alert, sub)
}

func deliveredAt(mr types.MethodResult, now time.Time) *time.Time {
	if mr.Status != types.DeliveryDelivered {
		return nil
	}
	return &now
}
