// Package http provides the REST surface of the session API:
// session lifecycle, synchronous command execution, and input
// delivery to running processes.
package http
