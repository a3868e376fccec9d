// Package ops defines the operational collaborators of the pipeline: the
// audit log that records every verification outcome and the run tracker
// that records each scheduler or consumer invocation with its progress and
// counters. Both are observers only; nothing in the pipeline reads them back.
package ops
