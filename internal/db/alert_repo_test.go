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

func alertValues(id string, status types.AlertStatus, created time.Time) []any {
	return []any{
		id, "flood", "high", 75, "Dodoma", created.Add(24 * time.Hour), 24,
		"Flood warning: Dodoma", "Heavy rain", "Move to higher ground", "Roads may flood",
		string(status), []byte(`{"rain_24h_mm":120}`), created, created.Add(72 * time.Hour),
	}
}

func TestAlertRepository_Create_AssignsDefaults(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "INSERT INTO alerts")
	}), mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	a := &types.Alert{Type: types.HazardFlood, Severity: types.SeverityHigh, Region: "Dodoma"}
	require.NoError(t, repo.Create(context.Background(), a))

	assert.NotEmpty(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())
	assert.Equal(t, types.AlertStatusActive, a.Status)
	db.AssertExpectations(t)
}

func TestAlertRepository_Create_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Create(context.Background(), &types.Alert{Region: "Dodoma"})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestAlertRepository_GetByID(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)
	created := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"a1"}).
		Return(valuesRow(alertValues("a1", types.AlertStatusActive, created)...))

	a, err := repo.GetByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, types.HazardFlood, a.Type)
	assert.Equal(t, types.SeverityHigh, a.Severity)
	assert.Equal(t, 75, a.Confidence)
	assert.Equal(t, created.Add(72*time.Hour), a.ExpiresAt)
	assert.EqualValues(t, 120, a.Metadata["rain_24h_mm"])
}

func TestAlertRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "missing")
	assert.Equal(t, types.ErrCodeNotFoundAlert, types.CodeOf(err))
}

func TestAlertRepository_ListActive(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)
	created := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	rows := newMockRows([][]any{
		alertValues("a2", types.AlertStatusActive, created.Add(time.Hour)),
		alertValues("a1", types.AlertStatusActive, created),
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{created, "Dodoma"}).
		Return(rows, nil)

	alerts, err := repo.ListActive(context.Background(), "Dodoma", created)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "a2", alerts[0].ID)
	assert.True(t, rows.closed)
}

func TestAlertRepository_ListActive_ScanError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)

	rows := newMockRows([][]any{{}})
	rows.scanErr = errors.New("bad column")
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := repo.ListActive(context.Background(), "", time.Now())
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestAlertRepository_HighestActiveSeverity(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewAlertRepository(db)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(valuesRow("critical"))

		sev, err := repo.HighestActiveSeverity(context.Background(), "Dodoma", types.HazardFlood, time.Now())
		require.NoError(t, err)
		assert.Equal(t, types.SeverityCritical, sev)
	})

	t.Run("none", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewAlertRepository(db)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: pgx.ErrNoRows})

		sev, err := repo.HighestActiveSeverity(context.Background(), "Dodoma", types.HazardFlood, time.Now())
		require.NoError(t, err)
		assert.Empty(t, sev)
	})
}

func TestAlertRepository_Cancel(t *testing.T) {
	created := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	t.Run("active alert", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewAlertRepository(db)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"a1"}).
			Return(pgconn.NewCommandTag("UPDATE 1"), nil)

		require.NoError(t, repo.Cancel(context.Background(), "a1"))
		db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("already expired", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewAlertRepository(db)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("UPDATE 0"), nil)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(valuesRow(alertValues("a1", types.AlertStatusExpired, created)...))

		err := repo.Cancel(context.Background(), "a1")
		var appErr *types.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, types.ErrCodeConflictAlertNotActive, appErr.Code)
		assert.Equal(t, types.AlertStatusExpired, appErr.Details["status"])
	})

	t.Run("unknown", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewAlertRepository(db)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("UPDATE 0"), nil)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: pgx.ErrNoRows})

		err := repo.Cancel(context.Background(), "nope")
		assert.Equal(t, types.ErrCodeNotFoundAlert, types.CodeOf(err))
	})
}

func TestAlertRepository_ExpireDue(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepository(db)
	now := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{now}).
		Return(pgconn.NewCommandTag("UPDATE 4"), nil)

	n, err := repo.ExpireDue(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}
