package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/ops"
	"github.com/phrazzld/freshness/internal/store"
)

// PostgresRunTracker implements ops.RunTracker against the job_runs table.
type PostgresRunTracker struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresRunTracker creates a new PostgresRunTracker.
func NewPostgresRunTracker(db store.DBTX, l *slog.Logger) *PostgresRunTracker {
	if l == nil {
		l = slog.Default()
	}
	return &PostgresRunTracker{db: db, logger: l.With(slog.String("component", "run_tracker"))}
}

var _ ops.RunTracker = (*PostgresRunTracker)(nil)

// StartRun implements ops.RunTracker.
func (r *PostgresRunTracker) StartRun(ctx context.Context, kind string) (uuid.UUID, error) {
	id := uuid.New()
	const query = `INSERT INTO job_runs (id, kind, status, created_at) VALUES ($1, $2, 'QUEUED', NOW())`
	if _, err := r.db.ExecContext(ctx, query, id, kind); err != nil {
		return uuid.Nil, MapError(err)
	}
	return id, nil
}

// MarkRunning implements ops.RunTracker.
func (r *PostgresRunTracker) MarkRunning(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE job_runs SET status = 'RUNNING', started_at = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrRunNotFound)
}

// UpdateProgress implements ops.RunTracker.
func (r *PostgresRunTracker) UpdateProgress(
	ctx context.Context,
	id uuid.UUID,
	percent int,
	counters ops.Counters,
) error {
	encoded, err := encodeCounters(counters)
	if err != nil {
		return err
	}
	const query = `UPDATE job_runs SET progress = $2, counters = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, ops.ClampPercent(percent), encoded)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrRunNotFound)
}

// FinishRun implements ops.RunTracker. A succeeded run always reports 100%.
func (r *PostgresRunTracker) FinishRun(
	ctx context.Context,
	id uuid.UUID,
	status ops.RunStatus,
	counters ops.Counters,
	errMsg string,
) error {
	encoded, err := encodeCounters(counters)
	if err != nil {
		return err
	}
	const query = `
		UPDATE job_runs
		SET status = $2,
			counters = $3,
			error = NULLIF($4, ''),
			progress = CASE WHEN $2 = 'SUCCEEDED' THEN 100 ELSE progress END,
			finished_at = NOW()
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, string(status), encoded, errMsg)
	if err != nil {
		r.logger.Error("failed to finish run",
			slog.String("run_id", id.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrRunNotFound)
}

func encodeCounters(c ops.Counters) ([]byte, error) {
	if c == nil {
		c = ops.Counters{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode counters: %w", err)
	}
	return b, nil
}
