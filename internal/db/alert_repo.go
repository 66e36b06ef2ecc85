package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"hazardwatch/internal/types"
)

// AlertRepository persists hazard alerts. Alerts are never deleted; only
// their status moves from active to expired or cancelled.
type AlertRepository struct {
	db DBTX
}

func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, type, severity, confidence, region, forecast_date, lead_time_hours,
	title, description, recommendations, impact_assessment, status, metadata, created_at, expires_at`

// Create inserts the alert, assigning ID, CreatedAt and Status when unset.
func (r *AlertRepository) Create(ctx context.Context, a *types.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = types.AlertStatusActive
	}

	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode alert metadata", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.Type, a.Severity, a.Confidence, a.Region, a.ForecastDate, a.LeadTimeHours,
		a.Title, a.Description, a.Recommendations, a.ImpactAssessment, a.Status, meta,
		a.CreatedAt, a.ExpiresAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert alert", err)
	}
	return nil
}

// GetByID returns the alert or a not_found_alert AppError.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*types.Alert, error) {
	a, err := scanAlert(r.db.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundAlert, fmt.Sprintf("alert %s not found", id), nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load alert", err)
	}
	return a, nil
}

// ListActive returns active alerts created at or after since, newest first.
// An empty region matches every region.
func (r *AlertRepository) ListActive(ctx context.Context, region string, since time.Time) ([]types.Alert, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts
		 WHERE status = 'active' AND created_at >= $1 AND ($2 = '' OR region = $2)
		 ORDER BY created_at DESC`,
		since, region,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query active alerts", err)
	}
	defer rows.Close()

	var out []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate alerts", err)
	}
	return out, nil
}

// HighestActiveSeverity returns the most severe active alert of the given
// type for the region created at or after since, or "" when there is none.
func (r *AlertRepository) HighestActiveSeverity(ctx context.Context, region string, hazard types.HazardType, since time.Time) (types.Severity, error) {
	var sev types.Severity
	err := r.db.QueryRow(ctx,
		`SELECT severity FROM alerts
		 WHERE status = 'active' AND region = $1 AND type = $2 AND created_at >= $3
		 ORDER BY CASE severity WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END DESC
		 LIMIT 1`,
		region, hazard, since,
	).Scan(&sev)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to query recent alert severity", err)
	}
	return sev, nil
}

// Cancel moves an active alert to cancelled. It returns not_found_alert for an
// unknown id and conflict_alert_not_active when the alert already left active.
func (r *AlertRepository) Cancel(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET status = 'cancelled' WHERE id = $1 AND status = 'active'`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to cancel alert", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return types.NewAppErrorWithDetails(types.ErrCodeConflictAlertNotActive,
		fmt.Sprintf("alert %s is %s", id, existing.Status), nil,
		map[string]any{"status": existing.Status})
}

// ExpireDue flips active alerts whose expires_at has passed to expired.
func (r *AlertRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET status = 'expired'
		 WHERE status = 'active' AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to expire alerts", err)
	}
	return tag.RowsAffected(), nil
}

func scanAlert(row pgx.Row) (*types.Alert, error) {
	var (
		a    types.Alert
		meta []byte
	)
	if err := row.Scan(
		&a.ID, &a.Type, &a.Severity, &a.Confidence, &a.Region, &a.ForecastDate, &a.LeadTimeHours,
		&a.Title, &a.Description, &a.Recommendations, &a.ImpactAssessment, &a.Status, &meta,
		&a.CreatedAt, &a.ExpiresAt,
	); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &a, nil
}
