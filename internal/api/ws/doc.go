// Package ws streams live command output over WebSocket. One
// connection serves one session: execute and input messages in,
// output and done events out.
package ws
