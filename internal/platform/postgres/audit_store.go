package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/ops"
	"github.com/phrazzld/freshness/internal/store"
)

// PostgresAuditLog implements ops.AuditLog against the audit_log table.
type PostgresAuditLog struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAuditLog creates a new PostgresAuditLog.
func NewPostgresAuditLog(db store.DBTX, l *slog.Logger) *PostgresAuditLog {
	if l == nil {
		l = slog.Default()
	}
	return &PostgresAuditLog{db: db, logger: l.With(slog.String("component", "audit_log"))}
}

var _ ops.AuditLog = (*PostgresAuditLog)(nil)

// Log implements ops.AuditLog.
func (a *PostgresAuditLog) Log(ctx context.Context, entry ops.Entry) error {
	before, err := marshalNullable(entry.Before)
	if err != nil {
		return fmt.Errorf("failed to encode before snapshot: %w", err)
	}
	after, err := marshalNullable(entry.After)
	if err != nil {
		return fmt.Errorf("failed to encode after snapshot: %w", err)
	}
	meta := entry.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var locationID any
	if entry.LocationID != uuid.Nil {
		locationID = entry.LocationID
	}

	query, args, err := psql.Insert("audit_log").
		Columns("id", "action_type", "actor", "location_id", "before", "after", "is_success", "meta", "created_at").
		Values(uuid.New(), entry.Action, entry.Actor, locationID, before, after, entry.Success, metaJSON, createdAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return MapError(err)
	}
	return nil
}

// marshalNullable encodes v as JSON, returning nil for a nil snapshot so the
// column stays SQL NULL.
func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
