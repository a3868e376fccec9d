//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/freshness/internal/platform/postgres"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 30 * time.Second

// containerURL is shared by every test in a package run so only one
// container starts.
var (
	containerOnce sync.Once
	containerURL  string
	containerErr  error
)

// DatabaseURL returns DATABASE_URL, or starts a PostgreSQL container and
// returns its connection string.
func DatabaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		ctr, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("freshness_test"),
			tcpostgres.WithUsername("freshness_test"),
			tcpostgres.WithPassword("testpassword"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			containerErr = err
			return
		}
		// The container lives for the test binary; ryuk reaps it on exit.
		containerURL, containerErr = ctr.ConnectionString(ctx, "sslmode=disable")
	})
	require.NoError(t, containerErr, "failed to start postgres container")
	return containerURL
}

// Open returns a migrated database handle that is closed when the test ends.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	connCfg, err := pgx.ParseConfig(DatabaseURL(t))
	require.NoError(t, err, "failed to parse database url")

	db := stdlib.OpenDB(*connCfg)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "failed to ping test database")
	require.NoError(t, postgres.Migrate(ctx, db, "up"), "failed to apply migrations")
	return db
}

// Reset removes every row written by the stores. Use it in tests that
// commit, before and after the test body.
func Reset(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	_, err := db.ExecContext(ctx, `TRUNCATE tasks, audit_log, job_runs, locations CASCADE`)
	require.NoError(t, err, "failed to truncate tables")
}
