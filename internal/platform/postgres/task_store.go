package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/platform/logger"
	"github.com/phrazzld/freshness/internal/store"
	"github.com/phrazzld/freshness/internal/task"
)

const taskColumns = `id, task_type, location_id, status, attempts, last_attempted_at,
	is_success, error_message, created_at, updated_at`

// PostgresTaskStore implements the task.TaskStore interface using PostgreSQL
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
// A nil logger falls back to slog.Default().
func NewPostgresTaskStore(db store.DBTX, l *slog.Logger) *PostgresTaskStore {
	if l == nil {
		l = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: l.With(slog.String("component", "task_store")),
	}
}

var _ task.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements task.TaskStore.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) task.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// Enqueue implements task.TaskStore. The partial unique index on active
// tasks makes concurrent enqueues for one location collapse into one row.
func (s *PostgresTaskStore) Enqueue(ctx context.Context, locationID uuid.UUID) (bool, error) {
	const query = `
		INSERT INTO tasks (id, task_type, location_id, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, 'PENDING', 0, NOW(), NOW())
		ON CONFLICT (location_id) WHERE status IN ('PENDING', 'PROCESSING') DO NOTHING`

	result, err := s.db.ExecContext(ctx, query, uuid.New(), task.TypeVerification, locationID)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to enqueue task",
			slog.String("location_id", locationID.String()),
			slog.String("error", err.Error()))
		return false, MapError(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Claim implements task.TaskStore.
func (s *PostgresTaskStore) Claim(ctx context.Context, limit, maxAttempts int) ([]*task.Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		WITH picked AS (
			SELECT id FROM tasks
			WHERE task_type = $1 AND status = 'PENDING' AND attempts < $2
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE tasks t
		SET status = 'PROCESSING',
			attempts = t.attempts + 1,
			last_attempted_at = NOW(),
			updated_at = NOW()
		FROM picked
		WHERE t.id = picked.id
		RETURNING t.id, t.task_type, t.location_id, t.status, t.attempts, t.last_attempted_at,
			t.is_success, t.error_message, t.created_at, t.updated_at`

	tasks, err := s.queryTasks(ctx, "claim", query, task.TypeVerification, maxAttempts, limit)
	if err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not preserve the CTE ordering.
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Peek implements task.TaskStore.
func (s *PostgresTaskStore) Peek(ctx context.Context, limit, maxAttempts int) ([]*task.Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE task_type = $1 AND status = 'PENDING' AND attempts < $2
		ORDER BY created_at ASC
		LIMIT $3`

	return s.queryTasks(ctx, "peek", query, task.TypeVerification, maxAttempts, limit)
}

// Complete implements task.TaskStore.
func (s *PostgresTaskStore) Complete(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE tasks
		SET status = 'COMPLETED', is_success = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'`

	return s.exec(ctx, "complete", id, query, id)
}

// Fail implements task.TaskStore.
func (s *PostgresTaskStore) Fail(ctx context.Context, id uuid.UUID, message string) error {
	const query = `
		UPDATE tasks
		SET status = 'FAILED', is_success = FALSE, error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')`

	return s.exec(ctx, "fail", id, query, id, task.SanitizeMessage(message))
}

// Requeue implements task.TaskStore.
func (s *PostgresTaskStore) Requeue(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE tasks
		SET status = 'PENDING', updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'`

	return s.exec(ctx, "requeue", id, query, id)
}

// RecoverStale implements task.TaskStore.
func (s *PostgresTaskStore) RecoverStale(
	ctx context.Context,
	olderThan time.Duration,
	maxAttempts int,
) (task.Recovery, error) {
	const query = `
		WITH stale AS (
			SELECT id, attempts FROM tasks
			WHERE status = 'PROCESSING'
				AND last_attempted_at < NOW() - make_interval(secs => $1)
			FOR UPDATE SKIP LOCKED
		)
		UPDATE tasks t
		SET status = CASE WHEN stale.attempts < $2 THEN 'PENDING' ELSE 'FAILED' END,
			is_success = CASE WHEN stale.attempts < $2 THEN t.is_success ELSE FALSE END,
			error_message = CASE WHEN stale.attempts < $2 THEN t.error_message ELSE $3 END,
			updated_at = NOW()
		FROM stale
		WHERE t.id = stale.id
		RETURNING t.id, t.task_type, t.location_id, t.status, t.attempts, t.last_attempted_at,
			t.is_success, t.error_message, t.created_at, t.updated_at`

	tasks, err := s.queryTasks(ctx, "recover_stale", query, olderThan.Seconds(), maxAttempts, task.AbandonedMessage)
	if err != nil {
		return task.Recovery{}, err
	}

	var recovery task.Recovery
	for _, t := range tasks {
		if t.Status == task.TaskStatusPending {
			recovery.Requeued++
			continue
		}
		recovery.Failed = append(recovery.Failed, t)
	}
	sort.SliceStable(recovery.Failed, func(i, j int) bool {
		return recovery.Failed[i].CreatedAt.Before(recovery.Failed[j].CreatedAt)
	})

	if recovery.Total() > 0 {
		logger.FromContextOrDefault(ctx, s.logger).Info("recovered stale tasks",
			slog.Int("requeued", recovery.Requeued),
			slog.Int("failed", len(recovery.Failed)))
	}
	return recovery, nil
}

// CountByStatus implements task.TaskStore.
func (s *PostgresTaskStore) CountByStatus(ctx context.Context) (map[task.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[task.TaskStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[task.TaskStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}
	return counts, nil
}

// Get implements task.TaskStore.
func (s *PostgresTaskStore) Get(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return t, nil
}

func (s *PostgresTaskStore) exec(ctx context.Context, op string, id uuid.UUID, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("task update failed",
			slog.String("op", op),
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

func (s *PostgresTaskStore) queryTasks(ctx context.Context, op, query string, args ...any) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("task query failed",
			slog.String("op", op),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("task", op, "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, store.NewStoreError("task", op, "scan failed", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("task", op, "row iteration failed", err)
	}
	return out, nil
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t           task.Task
		status      string
		lastAttempt sql.NullTime
		isSuccess   sql.NullBool
		errMsg      sql.NullString
	)
	if err := row.Scan(
		&t.ID, &t.Type, &t.LocationID, &status, &t.Attempts, &lastAttempt,
		&isSuccess, &errMsg, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.Status = task.TaskStatus(status)
	if lastAttempt.Valid {
		v := lastAttempt.Time.UTC()
		t.LastAttemptedAt = &v
	}
	if isSuccess.Valid {
		v := isSuccess.Bool
		t.IsSuccess = &v
	}
	if errMsg.Valid {
		v := errMsg.String
		t.ErrorMessage = &v
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
