package task

import (
	"context"
	"database/sql"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/redact"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// IsTerminal reports whether a task in this status can never change again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TypeVerification is the only task type the queue carries.
const TypeVerification = "VERIFICATION"

// MaxErrorMessageLength bounds the stored error message, in characters.
const MaxErrorMessageLength = 500

// Task is one unit of verification work for a single location.
type Task struct {
	ID              uuid.UUID  `json:"id"`
	Type            string     `json:"task_type"`
	LocationID      uuid.UUID  `json:"location_id"`
	Status          TaskStatus `json:"status"`
	Attempts        int        `json:"attempts"`
	LastAttemptedAt *time.Time `json:"last_attempted_at,omitempty"`
	IsSuccess       *bool      `json:"is_success,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Claimable reports whether the task may be picked up by Claim.
func (t *Task) Claimable(maxAttempts int) bool {
	return t.Type == TypeVerification && t.Status == TaskStatusPending && t.Attempts < maxAttempts
}

// CanTransition encodes the lifecycle
// PENDING -> PROCESSING -> {COMPLETED, FAILED, PENDING}.
// A PENDING task may also be failed directly when abandoned.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusProcessing || to == TaskStatusFailed
	case TaskStatusProcessing:
		return to == TaskStatusCompleted || to == TaskStatusFailed || to == TaskStatusPending
	}
	return false
}

// SanitizeMessage redacts credentials and infrastructure details from msg
// and truncates it to MaxErrorMessageLength characters.
func SanitizeMessage(msg string) string {
	msg = redact.String(msg)
	if utf8.RuneCountInString(msg) <= MaxErrorMessageLength {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxErrorMessageLength])
}

// TaskStore defines the interface for the durable task queue.
type TaskStore interface {
	// Enqueue inserts a PENDING verification task for locationID. It is a
	// no-op returning false when the location already has a PENDING or
	// PROCESSING task.
	Enqueue(ctx context.Context, locationID uuid.UUID) (bool, error)

	// Claim atomically moves up to limit claimable tasks (oldest first) to
	// PROCESSING, increments their attempts and stamps last_attempted_at.
	// Rows locked by a concurrent claim are skipped, so concurrent callers
	// never receive the same task.
	Claim(ctx context.Context, limit, maxAttempts int) ([]*Task, error)

	// Peek returns up to limit claimable tasks without locking or modifying them.
	Peek(ctx context.Context, limit, maxAttempts int) ([]*Task, error)

	// Complete marks a task COMPLETED and successful. No-op on terminal or
	// missing tasks.
	Complete(ctx context.Context, id uuid.UUID) error

	// Fail marks a task FAILED with a sanitized message. No-op on terminal or
	// missing tasks.
	Fail(ctx context.Context, id uuid.UUID, message string) error

	// Requeue returns a PROCESSING task to PENDING, preserving attempts.
	// No-op for tasks in any other status.
	Requeue(ctx context.Context, id uuid.UUID) error

	// RecoverStale handles PROCESSING tasks whose last attempt is older than
	// olderThan: tasks with attempts left go back to PENDING, the rest FAIL.
	RecoverStale(ctx context.Context, olderThan time.Duration, maxAttempts int) (Recovery, error)

	// CountByStatus reports the number of tasks in each status.
	CountByStatus(ctx context.Context) (map[TaskStatus]int, error)

	// Get retrieves a task by ID.
	// Returns store.ErrTaskNotFound if the task does not exist.
	Get(ctx context.Context, id uuid.UUID) (*Task, error)

	// WithTx returns a TaskStore bound to tx.
	WithTx(tx *sql.Tx) TaskStore
}

// AbandonedMessage is recorded on tasks failed by RecoverStale.
const AbandonedMessage = "abandoned after max attempts"

// Recovery is the outcome of one RecoverStale call. Failed holds the tasks
// that were moved to FAILED, as they are after the update.
type Recovery struct {
	Requeued int
	Failed   []*Task
}

// Total is the number of tasks RecoverStale touched.
func (r Recovery) Total() int {
	return r.Requeued + len(r.Failed)
}
