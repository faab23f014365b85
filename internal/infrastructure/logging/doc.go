// Package logging provides structured logging built on zap.
//
// Production builds emit JSON to stdout; development builds emit
// colorized console output with stacktraces enabled.
package logging
