package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hazardwatch/internal/notifications/digest"
	"hazardwatch/internal/notifications/sms"
)

// digestPeriod is how far back the daily digest looks for active alerts.
const digestPeriod = 24 * time.Hour

// runHazardSweep evaluates every region and fans each new alert out to the
// region's subscribers. Usage counters are bumped by the orchestrator per
// successful delivery.
func (s *Scheduler) runHazardSweep(ctx context.Context) (RunReport, error) {
	alerts, sweepErr := s.monitor.Sweep(ctx)
	report := RunReport{Alerts: len(alerts)}

	for i := range alerts {
		res, err := s.deliverer.DeliverToRegion(ctx, &alerts[i])
		if err != nil {
			s.logger.ErrorContext(ctx, "region delivery failed",
				"alert_id", alerts[i].ID,
				"region", alerts[i].Region,
				"error", err,
			)
			continue
		}
		report.Delivered += res.Delivered
		report.Failed += res.Failed
	}

	s.stats.RecordDeliveries(report.Delivered, report.Failed)
	if sweepErr != nil {
		return report, fmt.Errorf("hazard sweep: %w", sweepErr)
	}
	return report, nil
}

func (s *Scheduler) runRetrySweep(ctx context.Context) (RunReport, error) {
	res, err := s.deliverer.RetryFailedDeliveries(ctx)
	if err != nil {
		return RunReport{}, fmt.Errorf("retry sweep: %w", err)
	}
	s.stats.MarkRetrySweep()
	return RunReport{Items: res.Retried}, nil
}

// runDigest sends each digest recipient a summary of the last day's active
// alerts in the regions they follow. A failed send is logged and does not
// stop the run.
func (s *Scheduler) runDigest(ctx context.Context) (RunReport, error) {
	now := s.clock.Now()
	since := now.Add(-digestPeriod)

	alerts, err := s.alerts.ListActive(ctx, "", since)
	if err != nil {
		return RunReport{}, fmt.Errorf("listing active alerts: %w", err)
	}
	recipients, err := s.subscribers.ListDigestRecipients(ctx, now)
	if err != nil {
		return RunReport{}, fmt.Errorf("listing digest recipients: %w", err)
	}

	var report RunReport
	for _, sub := range recipients {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		body := digest.ForSubscriber(alerts, sub, since, now).Render(sub.Language)
		if _, err := s.sms.SendText(ctx, sub.Phone, body); err != nil {
			s.logger.WarnContext(ctx, "digest send failed",
				"subscriber_id", sub.ID,
				"to", sms.RedactPhone(sub.Phone),
				"error", err,
			)
			report.Failed++
			continue
		}
		report.Items++
	}

	s.stats.MarkDigest()
	s.logger.InfoContext(ctx, "digest sent",
		"recipients", len(recipients),
		"sent", report.Items,
		"failed", report.Failed,
		"alerts", len(alerts),
	)
	return report, nil
}

// runExpiry reminds subscribers whose plan lapses inside the reminder window,
// then expires lapsed subscriptions and alerts. Each step runs even when an
// earlier one failed; the errors are joined.
func (s *Scheduler) runExpiry(ctx context.Context) (RunReport, error) {
	now := s.clock.Now()
	var (
		report RunReport
		errs   []error
	)

	expiring, err := s.subscribers.ListExpiringUnreminded(ctx, now, s.reminderWindow)
	if err != nil {
		errs = append(errs, fmt.Errorf("listing expiring subscriptions: %w", err))
	}
	for _, sub := range expiring {
		body := sms.RenderReminder(sub.Language, sub.Subscription.Plan, sub.Subscription.ExpiresAt.In(s.location))
		if _, err := s.sms.SendText(ctx, sub.Phone, body); err != nil {
			s.logger.WarnContext(ctx, "expiry reminder failed",
				"subscriber_id", sub.ID,
				"subscription_id", sub.Subscription.ID,
				"error", err,
			)
			report.Failed++
			continue
		}
		if err := s.subscribers.MarkReminderSent(ctx, sub.Subscription.ID, now); err != nil {
			s.logger.WarnContext(ctx, "failed to mark reminder sent",
				"subscription_id", sub.Subscription.ID,
				"error", err,
			)
		}
		report.Items++
	}

	expired, err := s.subscribers.ExpireLapsed(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("expiring subscriptions: %w", err))
	}
	alertsExpired, err := s.alerts.ExpireDue(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("expiring alerts: %w", err))
	}

	s.stats.MarkExpiry()
	s.logger.InfoContext(ctx, "expiry run complete",
		"reminders_sent", report.Items,
		"reminders_failed", report.Failed,
		"subscriptions_expired", expired,
		"alerts_expired", alertsExpired,
	)
	report.Items += int(expired)
	return report, errors.Join(errs...)
}
