package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/phrazzld/freshness/internal/domain"
	"github.com/phrazzld/freshness/internal/platform/logger"
	"github.com/phrazzld/freshness/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var locationColumns = []string{
	"id", "name", "address", "category", "state", "confidence_score",
	"business_status", "user_ratings_total", "is_probable_not_open_yet",
	"last_verified_at", "next_check_at", "created_at", "updated_at",
}

// PostgresLocationStore implements store.LocationStore using PostgreSQL.
type PostgresLocationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLocationStore creates a new PostgresLocationStore.
// A nil logger falls back to slog.Default().
func NewPostgresLocationStore(db store.DBTX, l *slog.Logger) *PostgresLocationStore {
	if l == nil {
		l = slog.Default()
	}
	return &PostgresLocationStore{
		db:     db,
		logger: l.With(slog.String("component", "location_store")),
	}
}

var _ store.LocationStore = (*PostgresLocationStore)(nil)

// WithTx implements store.LocationStore.
func (s *PostgresLocationStore) WithTx(tx *sql.Tx) store.LocationStore {
	return &PostgresLocationStore{db: tx, logger: s.logger}
}

// Create implements store.LocationStore.
func (s *PostgresLocationStore) Create(ctx context.Context, loc *domain.Location) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := loc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query, args, err := psql.Insert("locations").
		Columns(locationColumns...).
		Values(
			loc.ID, loc.Name, loc.Address, loc.Category, string(loc.State),
			nullFloat(loc.ConfidenceScore), nullString(loc.BusinessStatus),
			loc.UserRatingsTotal, loc.IsProbableNotOpenYet,
			nullTime(loc.LastVerifiedAt), nullTime(loc.NextCheckAt),
			loc.CreatedAt, loc.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to create location",
			slog.String("location_id", loc.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// Get implements store.LocationStore.
func (s *PostgresLocationStore) Get(ctx context.Context, id uuid.UUID) (*domain.Location, error) {
	return s.getOne(ctx, id, false)
}

// GetForUpdate implements store.LocationStore.
func (s *PostgresLocationStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Location, error) {
	return s.getOne(ctx, id, true)
}

func (s *PostgresLocationStore) getOne(ctx context.Context, id uuid.UUID, lock bool) (*domain.Location, error) {
	b := psql.Select(locationColumns...).From("locations").Where(sq.Eq{"id": id})
	if lock {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	loc, err := scanLocation(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrLocationNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get location",
			slog.String("location_id", id.String()),
			slog.Bool("for_update", lock),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return loc, nil
}

// ListUnscheduled implements store.LocationStore.
func (s *PostgresLocationStore) ListUnscheduled(ctx context.Context, limit int) ([]*domain.Location, error) {
	b := psql.Select(locationColumns...).
		From("locations").
		Where(sq.Eq{"next_check_at": nil}).
		Where(sq.NotEq{"state": []string{
			string(domain.LocationStateRetired),
			string(domain.LocationStateSuspended),
		}}).
		OrderBy("last_verified_at ASC NULLS FIRST", "created_at ASC", "id ASC").
		Limit(uint64(max(limit, 0)))
	return s.list(ctx, "list_unscheduled", b)
}

// ListDue implements store.LocationStore.
func (s *PostgresLocationStore) ListDue(
	ctx context.Context,
	states []domain.LocationState,
	now time.Time,
	limit int,
) ([]*domain.Location, error) {
	if len(states) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(states))
	for _, st := range states {
		names = append(names, string(st))
	}

	b := psql.Select(locationColumns...).
		From("locations").
		Where(sq.Eq{"state": names}).
		Where(sq.LtOrEq{"next_check_at": now}).
		OrderBy("next_check_at ASC", "id ASC").
		Limit(uint64(max(limit, 0)))
	return s.list(ctx, "list_due", b)
}

func (s *PostgresLocationStore) list(ctx context.Context, op string, b sq.SelectBuilder) ([]*domain.Location, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s query: %w", op, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query locations", slog.String("op", op), slog.String("error", err.Error()))
		return nil, store.NewStoreError("location", op, "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, store.NewStoreError("location", op, "scan failed", err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("location", op, "row iteration failed", err)
	}
	return out, nil
}

// SetNextCheck implements store.LocationStore.
func (s *PostgresLocationStore) SetNextCheck(ctx context.Context, id uuid.UUID, next *time.Time) error {
	query, args, err := psql.Update("locations").
		Set("next_check_at", nullTime(next)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to set next check",
			slog.String("location_id", id.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrLocationNotFound)
}

// UpdateVerification implements store.LocationStore.
func (s *PostgresLocationStore) UpdateVerification(ctx context.Context, loc *domain.Location) error {
	if err := loc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query, args, err := psql.Update("locations").
		Set("state", string(loc.State)).
		Set("category", loc.Category).
		Set("confidence_score", nullFloat(loc.ConfidenceScore)).
		Set("last_verified_at", nullTime(loc.LastVerifiedAt)).
		Set("next_check_at", nullTime(loc.NextCheckAt)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": loc.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update verification",
			slog.String("location_id", loc.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrLocationNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner) (*domain.Location, error) {
	var (
		loc            domain.Location
		state          string
		confidence     sql.NullFloat64
		businessStatus sql.NullString
		lastVerified   sql.NullTime
		nextCheck      sql.NullTime
	)
	if err := row.Scan(
		&loc.ID, &loc.Name, &loc.Address, &loc.Category, &state, &confidence,
		&businessStatus, &loc.UserRatingsTotal, &loc.IsProbableNotOpenYet,
		&lastVerified, &nextCheck, &loc.CreatedAt, &loc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	loc.State = domain.LocationState(state)
	if confidence.Valid {
		v := confidence.Float64
		loc.ConfidenceScore = &v
	}
	loc.BusinessStatus = businessStatus.String
	if lastVerified.Valid {
		v := lastVerified.Time.UTC()
		loc.LastVerifiedAt = &v
	}
	if nextCheck.Valid {
		v := nextCheck.Time.UTC()
		loc.NextCheckAt = &v
	}
	loc.CreatedAt = loc.CreatedAt.UTC()
	loc.UpdatedAt = loc.UpdatedAt.UTC()
	return &loc, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
