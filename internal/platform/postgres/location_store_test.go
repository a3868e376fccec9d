package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/domain"
	"github.com/phrazzld/freshness/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLocationStore(t *testing.T) (*PostgresLocationStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresLocationStore(db, nil), mock
}

func locationRow(id uuid.UUID, state string, next any, confidence any) []any {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []any{
		id.String(), "Cafe Luna", "1 Main St", "cafe", state, confidence,
		"OPERATIONAL", 120, false, nil, next, created, created,
	}
}

func TestPostgresLocationStore_ListDue(t *testing.T) {
	s, mock := newMockLocationStore(t)
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	id := uuid.New()
	due := now.Add(-time.Hour)

	rows := sqlmock.NewRows(locationColumns).AddRow(locationRow(id, "VERIFIED", due, 0.9)...)
	mock.ExpectQuery("SELECT .* FROM locations WHERE state IN \\(\\$1\\) AND next_check_at <= \\$2 ORDER BY next_check_at ASC").
		WithArgs("VERIFIED", now).
		WillReturnRows(rows)

	locs, err := s.ListDue(context.Background(), []domain.LocationState{domain.LocationStateVerified}, now, 25)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, id, locs[0].ID)
	assert.Equal(t, domain.LocationStateVerified, locs[0].State)
	require.NotNil(t, locs[0].NextCheckAt)
	assert.True(t, due.Equal(*locs[0].NextCheckAt))
	require.NotNil(t, locs[0].ConfidenceScore)
	assert.InDelta(t, 0.9, *locs[0].ConfidenceScore, 1e-9)
	assert.Nil(t, locs[0].LastVerifiedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLocationStore_ListDue_NoStates(t *testing.T) {
	s, mock := newMockLocationStore(t)

	locs, err := s.ListDue(context.Background(), nil, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, locs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLocationStore_ListUnscheduled(t *testing.T) {
	s, mock := newMockLocationStore(t)
	id := uuid.New()

	rows := sqlmock.NewRows(locationColumns).AddRow(locationRow(id, "CANDIDATE", nil, nil)...)
	mock.ExpectQuery("FROM locations WHERE next_check_at IS NULL AND state NOT IN \\(\\$1,\\$2\\)").
		WithArgs("RETIRED", "SUSPENDED").
		WillReturnRows(rows)

	locs, err := s.ListUnscheduled(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Nil(t, locs[0].NextCheckAt)
	assert.Nil(t, locs[0].ConfidenceScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLocationStore_GetForUpdate(t *testing.T) {
	s, mock := newMockLocationStore(t)
	id := uuid.New()

	mock.ExpectQuery("FROM locations WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(locationColumns).AddRow(locationRow(id, "CANDIDATE", nil, nil)...))

	loc, err := s.GetForUpdate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Cafe Luna", loc.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLocationStore_Get_NotFound(t *testing.T) {
	s, mock := newMockLocationStore(t)

	mock.ExpectQuery("FROM locations WHERE id = \\$1").
		WillReturnRows(sqlmock.NewRows(locationColumns))

	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrLocationNotFound)
}

func TestPostgresLocationStore_SetNextCheck(t *testing.T) {
	t.Run("updated", func(t *testing.T) {
		s, mock := newMockLocationStore(t)
		id := uuid.New()
		next := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

		mock.ExpectExec("UPDATE locations SET next_check_at = \\$1, updated_at = NOW\\(\\) WHERE id = \\$2").
			WithArgs(next, id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.SetNextCheck(context.Background(), id, &next))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing location", func(t *testing.T) {
		s, mock := newMockLocationStore(t)

		mock.ExpectExec("UPDATE locations").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.SetNextCheck(context.Background(), uuid.New(), nil)
		assert.ErrorIs(t, err, store.ErrLocationNotFound)
	})
}

func TestPostgresLocationStore_UpdateVerification_RejectsInvalid(t *testing.T) {
	s, mock := newMockLocationStore(t)
	bad := 1.5
	loc := &domain.Location{
		ID:              uuid.New(),
		Name:            "Bad",
		Category:        "cafe",
		State:           domain.LocationStateVerified,
		ConfidenceScore: &bad,
	}

	err := s.UpdateVerification(context.Background(), loc)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.NoError(t, mock.ExpectationsWereMet())
}
