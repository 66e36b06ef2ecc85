package db

import (
	"context"
	"fmt"
	"time"

	"hazardwatch/internal/types"
)

// SubscriberRepository reads subscribers and maintains the usage counters the
// delivery pipeline owns. Counter updates are single conditional statements.
type SubscriberRepository struct {
	db DBTX
}

func NewSubscriberRepository(db DBTX) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

const subscriberSelect = `SELECT s.id, s.name, s.phone, s.email, s.region, s.regions, s.language, s.push_channel_id,
	       p.id, p.plan, p.status, p.expires_at, p.auto_renew, p.alerts_remaining, p.alerts_used
	FROM subscribers s
	JOIN subscriptions p ON p.subscriber_id = s.id`

// ListActiveByRegion returns subscribers whose primary region is region or
// whose region list contains it, and whose subscription is active and not
// past expiry at now.
func (r *SubscriberRepository) ListActiveByRegion(ctx context.Context, region string, now time.Time) ([]types.Subscriber, error) {
	return r.list(ctx, "active subscribers by region",
		subscriberSelect+`
	WHERE p.status = 'active' AND p.expires_at > $2
	  AND (s.region = $1 OR $1 = ANY(s.regions))
	ORDER BY s.id`,
		region, now)
}

// ListDigestRecipients returns active premium and enterprise subscribers.
func (r *SubscriberRepository) ListDigestRecipients(ctx context.Context, now time.Time) ([]types.Subscriber, error) {
	return r.list(ctx, "digest recipients",
		subscriberSelect+`
	WHERE p.status = 'active' AND p.expires_at > $1
	  AND p.plan IN ('premium', 'enterprise')
	ORDER BY s.id`,
		now)
}

// ListExpiringUnreminded returns active, non-renewing subscriptions expiring
// in (now, now+window] that have not been reminded yet.
func (r *SubscriberRepository) ListExpiringUnreminded(ctx context.Context, now time.Time, window time.Duration) ([]types.Subscriber, error) {
	return r.list(ctx, "expiring subscriptions",
		subscriberSelect+`
	WHERE p.status = 'active' AND p.auto_renew = false
	  AND p.expires_at > $1 AND p.expires_at <= $2
	  AND p.reminder_sent_at IS NULL
	ORDER BY p.expires_at`,
		now, now.Add(window))
}

// GetByID returns the subscriber or a not_found_subscriber AppError.
func (r *SubscriberRepository) GetByID(ctx context.Context, id string) (*types.Subscriber, error) {
	subs, err := r.list(ctx, "subscriber", subscriberSelect+` WHERE s.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, types.NewAppError(types.ErrCodeNotFoundSubscriber, fmt.Sprintf("subscriber %s not found", id), nil)
	}
	return &subs[0], nil
}

// MarkReminderSent stamps the subscription so the reminder is sent once.
func (r *SubscriberRepository) MarkReminderSent(ctx context.Context, subscriptionID string, at time.Time) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET reminder_sent_at = $2 WHERE id = $1`,
		subscriptionID, at,
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark reminder sent", err)
	}
	return nil
}

// ExpireLapsed flips active subscriptions whose expiry has passed.
func (r *SubscriberRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = 'expired'
		 WHERE status = 'active' AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to expire subscriptions", err)
	}
	return tag.RowsAffected(), nil
}

// ReserveDailySlot takes an in-flight hold for the subscriber's local day
// when the subscriber's successful (sent or delivered) delivery records for
// that day plus the holds already taken are below max. It is one conditional
// upsert, so concurrent reservations for the same subscriber serialize on the
// hold row. day carries the location the calendar day is counted in.
func (r *SubscriberRepository) ReserveDailySlot(ctx context.Context, subscriberID string, day time.Time, max int) (bool, error) {
	start, end := dayBounds(day)
	tag, err := r.db.Exec(ctx,
		`WITH recorded AS (
		   SELECT count(*) AS n FROM deliveries
		   WHERE subscriber_id = $1 AND status IN ('sent', 'delivered')
		     AND sent_at >= $3 AND sent_at < $4
		 )
		 INSERT INTO daily_delivery_holds (subscriber_id, day, held)
		 SELECT $1, $2, 1 FROM recorded WHERE recorded.n < $5
		 ON CONFLICT (subscriber_id, day) DO UPDATE
		   SET held = daily_delivery_holds.held + 1
		   WHERE daily_delivery_holds.held + (SELECT n FROM recorded) < $5`,
		subscriberID, dateOnly(day), start, end, max,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to reserve daily delivery slot", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseDailySlot drops the hold taken by ReserveDailySlot. Call it once the
// delivery records are written; from then on they carry the count.
func (r *SubscriberRepository) ReleaseDailySlot(ctx context.Context, subscriberID string, day time.Time) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE daily_delivery_holds SET held = held - 1
		 WHERE subscriber_id = $1 AND day = $2 AND held > 0`,
		subscriberID, dateOnly(day),
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release daily delivery slot", err)
	}
	return nil
}

// RecordUsage bumps alerts_used and decrements a limited allowance without
// letting it go below zero. Unlimited plans (NULL) stay NULL.
func (r *SubscriberRepository) RecordUsage(ctx context.Context, subscriberID string) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE subscriptions
		 SET alerts_used = alerts_used + 1,
		     alerts_remaining = CASE WHEN alerts_remaining IS NULL THEN NULL
		                             ELSE GREATEST(alerts_remaining - 1, 0) END
		 WHERE subscriber_id = $1 AND status = 'active'`,
		subscriberID,
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record subscription usage", err)
	}
	return nil
}

func (r *SubscriberRepository) list(ctx context.Context, what, sql string, args ...any) ([]types.Subscriber, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query "+what, err)
	}
	defer rows.Close()

	var out []types.Subscriber
	for rows.Next() {
		var (
			s     types.Subscriber
			email *string
			push  *string
		)
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Phone, &email, &s.Region, &s.Regions, &s.Language, &push,
			&s.Subscription.ID, &s.Subscription.Plan, &s.Subscription.Status, &s.Subscription.ExpiresAt,
			&s.Subscription.AutoRenew, &s.Subscription.AlertsRemaining, &s.Subscription.AlertsUsed,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan "+what, err)
		}
		if email != nil {
			s.Email = *email
		}
		if push != nil {
			s.PushChannelID = *push
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate "+what, err)
	}
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dayBounds returns the instants of local midnight starting t's day and the
// following one, in t's location.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
