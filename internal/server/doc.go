// Package server assembles the terminal service, API handlers,
// middleware, and metrics into a runnable HTTP server.
package server
