// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic, allowing business rules to remain
// independent of specific database technologies or persistence details.
//
// Stores that participate in a unit of work expose WithTx so callers can
// bind them to a transaction started by a TxRunner.
package store
