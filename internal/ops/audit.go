package ops

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/platform/logger"
)

// Audit action types
const (
	ActionVerificationCompleted = "verification.completed"
	ActionVerificationFailed    = "verification.failed"
	ActionLocationRetired       = "location.retired"
	ActionLocationPromoted      = "location.promoted"
)

// ActorVerificationConsumer is the actor recorded for consumer writes.
const ActorVerificationConsumer = "verification-consumer"

// Entry is one audit record. Before and After are snapshots serialized as
// JSON by the store.
type Entry struct {
	Action     string
	Actor      string
	LocationID uuid.UUID
	Before     any
	After      any
	Success    bool
	Meta       map[string]any
	CreatedAt  time.Time
}

// AuditLog appends audit entries.
type AuditLog interface {
	Log(ctx context.Context, entry Entry) error
}

// NoopAuditLog discards every entry.
type NoopAuditLog struct{}

// Log implements AuditLog.
func (NoopAuditLog) Log(context.Context, Entry) error { return nil }

// LogBestEffort writes entry with its own timeout. Failures are logged and
// swallowed; auditing never changes the outcome of the work it describes.
func LogBestEffort(ctx context.Context, audit AuditLog, entry Entry, timeout time.Duration) {
	if audit == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	// Detach from the caller's cancellation so a shutdown still records
	// outcomes that already happened.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := audit.Log(auditCtx, entry); err != nil {
		logger.FromContext(ctx).Warn("failed to write audit entry",
			slog.String("action", entry.Action),
			slog.String("location_id", entry.LocationID.String()),
			slog.String("error", err.Error()))
	}
}

// MemoryAuditLog keeps entries in memory. Err, when set, is returned from
// every Log call after the entry is dropped.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []Entry
	Err     error
}

// Log implements AuditLog.
func (m *MemoryAuditLog) Log(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (m *MemoryAuditLog) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
