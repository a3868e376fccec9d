// Package freshness implements the policy that decides when a location is due
// for re-verification.
//
// The policy maps a location snapshot to a next-check instant. Status
// overrides (temporarily closed, not open yet) take precedence over the
// state-based bands, and every result is capped at an absolute maximum so no
// location drifts out of the verification cycle.
package freshness
