// Package scheduler keeps every live location on a verification schedule.
//
// Bootstrap gives unscheduled locations their first next_check_at.
// EnqueueDue turns due locations into verification tasks and moves their
// next_check_at forward so the next scan does not pick them up again.
// Both are bounded by a limit, idempotent and safe to run from any number
// of processes: each row is re-read under a row lock in its own
// transaction, and a failing row is counted and skipped rather than
// aborting the batch.
package scheduler
