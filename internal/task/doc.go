// Package task defines the durable verification work queue: the task record,
// its lifecycle, and the TaskStore contract that lets multiple consumer
// processes claim work without overlap. It also provides an in-memory store
// with the same semantics and a Runner that drives periodic jobs.
package task
