package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/ops"
	"github.com/phrazzld/freshness/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRunTracker_Lifecycle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	tracker := NewPostgresRunTracker(db, nil)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO job_runs").
		WithArgs(sqlmock.AnyArg(), ops.RunKindVerify).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET status = 'RUNNING'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET progress = \\$2, counters = \\$3").
		WithArgs(sqlmock.AnyArg(), 100, []byte(`{"claimed":2}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE job_runs\\s+SET status = \\$2").
		WithArgs(sqlmock.AnyArg(), "SUCCEEDED", []byte(`{"claimed":2,"completed":2}`), "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := tracker.StartRun(ctx, ops.RunKindVerify)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	require.NoError(t, tracker.MarkRunning(ctx, id))
	require.NoError(t, tracker.UpdateProgress(ctx, id, 140, ops.Counters{"claimed": 2}))
	require.NoError(t, tracker.FinishRun(ctx, id, ops.RunStatusSucceeded, ops.Counters{"claimed": 2, "completed": 2}, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRunTracker_UnknownRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("UPDATE job_runs").WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgresRunTracker(db, nil).MarkRunning(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestPostgresAuditLog_Log(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	locID := uuid.New()
	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(
			sqlmock.AnyArg(), ops.ActionLocationRetired, ops.ActorVerificationConsumer, locID,
			[]byte(`{"state":"CANDIDATE"}`), []byte(`{"state":"RETIRED"}`), true,
			[]byte(`{"reason":"closed"}`), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgresAuditLog(db, nil).Log(context.Background(), ops.Entry{
		Action:     ops.ActionLocationRetired,
		Actor:      ops.ActorVerificationConsumer,
		LocationID: locID,
		Before:     map[string]string{"state": "CANDIDATE"},
		After:      map[string]string{"state": "RETIRED"},
		Success:    true,
		Meta:       map[string]any{"reason": "closed"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
