package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"hazardwatch/internal/types"
)

// DeliveryRepository records per-method delivery outcomes. The table carries a
// unique key on (alert_id, subscriber_id, method) so recording is idempotent
// under at-least-once delivery.
type DeliveryRepository struct {
	db DBTX
}

func NewDeliveryRepository(db DBTX) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const deliveryColumns = `id, alert_id, subscriber_id, method, status, provider, provider_message_id,
	attempts, last_error, sent_at, delivered_at`

// Record inserts the first attempt for (alert, subscriber, method). A repeat
// of the same triple updates the outcome in place and keeps attempts.
func (r *DeliveryRepository) Record(ctx context.Context, d *types.DeliveryRecord) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Attempts == 0 {
		d.Attempts = 1
	}
	if d.SentAt.IsZero() {
		d.SentAt = time.Now().UTC()
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO deliveries (`+deliveryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (alert_id, subscriber_id, method) DO UPDATE
		   SET status = EXCLUDED.status,
		       provider = EXCLUDED.provider,
		       provider_message_id = EXCLUDED.provider_message_id,
		       last_error = EXCLUDED.last_error,
		       delivered_at = EXCLUDED.delivered_at
		 RETURNING id, attempts`,
		d.ID, d.AlertID, d.SubscriberID, d.Method, d.Status, d.Provider, d.ProviderMessageID,
		d.Attempts, d.LastError, d.SentAt, d.DeliveredAt,
	).Scan(&d.ID, &d.Attempts)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record delivery", err)
	}
	return nil
}

// ListRetryable returns failed records below the attempt ceiling whose first
// send is at or after since, oldest first. Records whose last error carries
// one of types.PermanentDeliveryCodes are never listed.
func (r *DeliveryRepository) ListRetryable(ctx context.Context, since time.Time, maxAttempts, limit int) ([]types.DeliveryRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries
		 WHERE status = 'failed' AND attempts < $1 AND sent_at >= $2
		   AND split_part(COALESCE(last_error, ''), ':', 1) <> ALL($4)
		 ORDER BY sent_at
		 LIMIT $3`,
		maxAttempts, since, limit, permanentCodes(),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query retryable deliveries", err)
	}
	defer rows.Close()

	var out []types.DeliveryRecord
	for rows.Next() {
		var d types.DeliveryRecord
		if err := rows.Scan(
			&d.ID, &d.AlertID, &d.SubscriberID, &d.Method, &d.Status, &d.Provider, &d.ProviderMessageID,
			&d.Attempts, &d.LastError, &d.SentAt, &d.DeliveredAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan delivery", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate deliveries", err)
	}
	return out, nil
}

// ClaimRetry increments attempts on a failed record still under the ceiling
// and returns the new count. ok is false when the record was already
// retried to the ceiling or is no longer failed, so attempts never exceed
// maxAttempts.
func (r *DeliveryRepository) ClaimRetry(ctx context.Context, id string, maxAttempts int) (attempts int, ok bool, err error) {
	err = r.db.QueryRow(ctx,
		`UPDATE deliveries SET attempts = attempts + 1
		 WHERE id = $1 AND status = 'failed' AND attempts < $2
		 RETURNING attempts`,
		id, maxAttempts,
	).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim delivery retry", err)
	}
	return attempts, true, nil
}

// RecordRetryOutcome stores the result of a claimed retry.
func (r *DeliveryRepository) RecordRetryOutcome(ctx context.Context, d *types.DeliveryRecord) error {
	_, err := r.db.Exec(ctx,
		`UPDATE deliveries
		 SET status = $2, provider = $3, provider_message_id = $4, last_error = $5, delivered_at = $6
		 WHERE id = $1`,
		d.ID, d.Status, d.Provider, d.ProviderMessageID, d.LastError, d.DeliveredAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record retry outcome", err)
	}
	return nil
}

func permanentCodes() []string {
	codes := make([]string, len(types.PermanentDeliveryCodes))
	for i, c := range types.PermanentDeliveryCodes {
		codes[i] = string(c)
	}
	return codes
}
