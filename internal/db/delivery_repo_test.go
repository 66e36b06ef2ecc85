package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hazardwatch/internal/types"
)

func TestDeliveryRepository_Record_FirstAttempt(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeliveryRepository(db)

	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ON CONFLICT (alert_id, subscriber_id, method)")
	}), mock.Anything).Return(&mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*string) = "d1"
		*dest[1].(*int) = 1
		return nil
	}})

	rec := &types.DeliveryRecord{
		AlertID: "a1", SubscriberID: "s1", Method: types.MethodSMS, Status: types.DeliveryFailed,
	}
	require.NoError(t, repo.Record(context.Background(), rec))
	assert.Equal(t, "d1", rec.ID)
	assert.Equal(t, 1, rec.Attempts)
	assert.False(t, rec.SentAt.IsZero())
}

func TestDeliveryRepository_Record_RepeatKeepsAttempts(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeliveryRepository(db)

	// Redelivery of the same triple returns the existing row.
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(valuesRow("existing", 2))

	rec := &types.DeliveryRecord{AlertID: "a1", SubscriberID: "s1", Method: types.MethodSMS, Status: types.DeliverySent}
	require.NoError(t, repo.Record(context.Background(), rec))
	assert.Equal(t, "existing", rec.ID)
	assert.Equal(t, 2, rec.Attempts)
}

func TestDeliveryRepository_ListRetryable(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeliveryRepository(db)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := newMockRows([][]any{
		{"d1", "a1", "s1", "sms", "failed", "africastalking", "", 1, "timeout", since.Add(time.Hour), nil},
		{"d2", "a1", "s2", "push", "failed", "redis", "", 2, "no channel", since.Add(2 * time.Hour), nil},
	})
	db.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "<> ALL($4)")
	}), []any{3, since, 100, []string{"delivery_provider_not_configured", "delivery_unsupported_method"}}).Return(rows, nil)

	recs, err := repo.ListRetryable(context.Background(), since, 3, 100)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, types.MethodPush, recs[1].Method)
	assert.Equal(t, 2, recs[1].Attempts)
	assert.Nil(t, recs[0].DeliveredAt)
}

func TestDeliveryRepository_ListRetryable_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeliveryRepository(db)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := repo.ListRetryable(context.Background(), time.Now(), 3, 10)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestDeliveryRepository_ClaimRetry(t *testing.T) {
	t.Run("under ceiling", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewDeliveryRepository(db)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"d1", 3}).
			Return(valuesRow(2))

		attempts, ok, err := repo.ClaimRetry(context.Background(), "d1", 3)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2, attempts)
	})

	t.Run("at ceiling is not retried", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewDeliveryRepository(db)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: pgx.ErrNoRows})

		attempts, ok, err := repo.ClaimRetry(context.Background(), "d1", 3)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, attempts)
	})

	t.Run("db error", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewDeliveryRepository(db)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: errors.New("deadlock")})

		_, ok, err := repo.ClaimRetry(context.Background(), "d1", 3)
		assert.False(t, ok)
		assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
	})
}

func TestDeliveryRepository_RecordRetryOutcome(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeliveryRepository(db)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	rec := &types.DeliveryRecord{ID: "d1", Status: types.DeliverySent, Provider: "twilio", ProviderMessageID: "SM1"}
	require.NoError(t, repo.RecordRetryOutcome(context.Background(), rec))
	db.AssertExpectations(t)
}
