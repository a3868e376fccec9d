// Package verification drains the task queue: each claimed task loads its
// location, asks the classifier for a verdict, and applies the verdict and
// the next freshness window under a row lock.
//
// A task that fails is requeued until it reaches its attempt limit, after
// which it is failed for good. Dry runs inspect the queue without writing.
package verification
