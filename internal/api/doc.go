// Package api serves the operational HTTP endpoints: health, queue depth and
// Prometheus metrics. It is not a user-facing API.
package api
