package terminal

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound reports an operation against an unknown or
// terminated session. The operation has no side effects.
var ErrSessionNotFound = errors.New("session not found")

// ErrNoActiveProcess reports input sent to a session with no running
// foreground process.
var ErrNoActiveProcess = errors.New("no active process")

// ErrSessionTerminated reports a command aborted because its session
// was terminated while the command was in flight. Any process spawned
// for the command has been killed.
var ErrSessionTerminated = errors.New("session terminated")

// ParseError reports malformed mixed-script input. No blocks run.
type ParseError struct {
	Offset int // byte offset of the offending block tag
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Msg)
}

// SpawnError reports that the OS failed to create a process for a
// block. Remaining blocks do not run.
type SpawnError struct {
	Block int
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("block %d: failed to spawn process: %v", e.Block, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError reports a guest process that completed with a nonzero
// exit status. Remaining blocks do not run.
type ExitError struct {
	Block int
	Code  int
}

func (e *ExitError) Error() string {
	if e.Block >= 0 {
		return fmt.Sprintf("block %d: exit status %d", e.Block, e.Code)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}
