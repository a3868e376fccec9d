//go:build integration

// Package testdb provides utilities for database-backed tests.
//
// Each test runs in its own transaction, which is rolled back when the test
// completes, so tests never see each other's rows:
//
//	func TestEnqueue(t *testing.T) {
//	    db := testdb.Open(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        tasks := postgres.NewPostgresTaskStore(tx, nil)
//	        ...
//	    })
//	}
//
// Tests that exercise concurrent transactions (claim exclusivity) cannot
// share one transaction; they use Open directly and call Reset first.
//
// # Environment Variables
//
// - DATABASE_URL: use an existing database instead of starting a container
//
// When DATABASE_URL is unset, Open starts a throwaway PostgreSQL container
// with testcontainers.
package testdb
