// Package monitoring provides Prometheus metrics for sessions,
// command execution, mixed-script blocks, and the HTTP API.
package monitoring
